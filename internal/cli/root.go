// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package cli wires the cardctl commands.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/cardctl/cardctl/pkg/cardtransfer"
)

// RootOpts holds global CLI options.
type RootOpts struct {
	RegistryURI string
	Token       string
	JSONOut     bool
	Quiet       bool
	Verbose     bool
	Config      string
	LogLevel    string
}

// Exit codes, stable across releases. Anything unmapped exits 1.
const (
	exitOK                  = 0
	exitGeneric             = 1
	exitInvalidQuery        = 2
	exitNotFound            = 3
	exitOnnxNotAvailable    = 4
	exitRegistryUnavailable = 5
	exitPartialDownload     = 6
	exitCorruptArtifact     = 7
	exitMaterializeFailed   = 8
	exitTimeout             = 9
)

// Execute runs the CLI and returns the process exit code.
func Execute(version string) int {
	ro := &RootOpts{}
	ctx, cancel := signalContext(context.Background())
	defer cancel()

	root := &cobra.Command{
		Use:           "cardctl",
		Short:         "Resolve model cards in an artifact registry and retrieve their files",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
	}

	// Global flags
	root.PersistentFlags().StringVar(&ro.RegistryURI, "registry-uri", "", "Registry base URL (also reads CARDCTL_REGISTRY_URI env)")
	root.PersistentFlags().StringVarP(&ro.Token, "token", "t", "", "Bearer credential for the registry (also reads CARDCTL_TOKEN env)")
	root.PersistentFlags().BoolVar(&ro.JSONOut, "json", false, "Emit machine-readable JSON events instead of live progress")
	root.PersistentFlags().BoolVarP(&ro.Quiet, "quiet", "q", false, "Quiet mode (minimal output)")
	root.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false, "Verbose logs (debug details)")
	root.PersistentFlags().StringVar(&ro.Config, "config", "", "Path to config file (JSON or YAML)")
	root.PersistentFlags().StringVar(&ro.LogLevel, "log-level", "info", "Log level: debug, info, warn, error")

	root.AddCommand(newDownloadModelCmd(ro))
	root.AddCommand(newDownloadMetadataCmd(ro))
	root.AddCommand(newListCardsCmd(ro))
	root.AddCommand(newGetMetricsCmd(ro))
	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newConfigCmd())
	root.SetHelpCommand(&cobra.Command{Use: "help", Hidden: true})

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return exitCode(err)
	}
	return exitOK
}

// exitCode maps the pipeline error taxonomy to stable exit codes.
func exitCode(err error) int {
	var (
		verr *cardtransfer.VerificationError
		perr *cardtransfer.PartialDownloadError
		merr *cardtransfer.MaterializeError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, cardtransfer.ErrInvalidQuery):
		return exitInvalidQuery
	case errors.Is(err, cardtransfer.ErrNotFound):
		return exitNotFound
	case errors.Is(err, cardtransfer.ErrOnnxNotAvailable):
		return exitOnnxNotAvailable
	case errors.Is(err, cardtransfer.ErrTimeout):
		return exitTimeout
	case errors.As(err, &verr):
		// A corrupt artifact reports its own code even when wrapped in a
		// partial-download failure.
		return exitCorruptArtifact
	case errors.As(err, &perr):
		return exitPartialDownload
	case errors.As(err, &merr):
		return exitMaterializeFailed
	case errors.Is(err, cardtransfer.ErrRegistryUnavailable):
		return exitRegistryUnavailable
	default:
		return exitGeneric
	}
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

// registryURI resolves the base URL: flag, then env, then config file.
func (ro *RootOpts) registryURI(fileCfg map[string]any) string {
	if v := strings.TrimSpace(ro.RegistryURI); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv("CARDCTL_REGISTRY_URI")); v != "" {
		return v
	}
	if v, ok := fileCfg["registry-uri"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// bearerToken resolves the credential: flag, then env, then config file.
func (ro *RootOpts) bearerToken(fileCfg map[string]any) string {
	if v := strings.TrimSpace(ro.Token); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv("CARDCTL_TOKEN")); v != "" {
		return v
	}
	if v, ok := fileCfg["token"]; ok && v != nil {
		return fmt.Sprint(v)
	}
	return ""
}

// jsonProgress returns a JSON-lines progress handler.
func jsonProgress(w io.Writer) cardtransfer.ProgressFunc {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	var mu sync.Mutex
	return func(ev cardtransfer.ProgressEvent) {
		mu.Lock()
		_ = enc.Encode(ev)
		mu.Unlock()
	}
}

// quietProgress prints only warnings and errors.
func quietProgress() cardtransfer.ProgressFunc {
	return func(ev cardtransfer.ProgressEvent) {
		switch ev.Event {
		case "warn":
			fmt.Fprintln(os.Stderr, "warning:", ev.Message)
		case "error":
			fmt.Fprintln(os.Stderr, "error:", ev.Message)
		}
	}
}
