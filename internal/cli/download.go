// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/cardctl/cardctl/internal/logging"
	"github.com/cardctl/cardctl/internal/tui"
	"github.com/cardctl/cardctl/pkg/cardtransfer"
)

type downloadOpts struct {
	name           string
	repository     string
	version        string
	uid            string
	onnx           bool
	preprocessor   bool
	writeDir       string
	ignoreRC       bool
	timeout        string
	concurrency    int
	retries        int
	backoffInitial string
	backoffMax     string
}

// registerQuery adds the card identification and destination flags shared by
// both download commands.
func (o *downloadOpts) registerQuery(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&o.name, "name", "n", "", "Card name")
	cmd.Flags().StringVarP(&o.repository, "repository", "r", "", "Repository the card belongs to")
	cmd.Flags().StringVar(&o.version, "version", "", "Version to retrieve (exact, or omit for latest)")
	cmd.Flags().StringVarP(&o.uid, "uid", "u", "", "Card UID (mutually exclusive with name/repository)")
	cmd.Flags().StringVarP(&o.writeDir, "write-dir", "w", "models", "Root directory for downloaded artifacts")
	cmd.Flags().BoolVar(&o.ignoreRC, "ignore-release-candidates", false, "Skip pre-release versions when resolving latest")
}

// registerTransfer adds the flags that only matter when artifact bytes move.
func (o *downloadOpts) registerTransfer(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.timeout, "timeout", "0s", "Overall deadline for the operation (0 disables)")
	cmd.Flags().IntVar(&o.concurrency, "concurrency", 0, "Parallel file downloads (0 = auto)")
	cmd.Flags().IntVar(&o.retries, "retries", 4, "Retry attempts per file")
	cmd.Flags().StringVar(&o.backoffInitial, "backoff-initial", "400ms", "Initial retry backoff")
	cmd.Flags().StringVar(&o.backoffMax, "backoff-max", "10s", "Maximum retry backoff")
}

func (o *downloadOpts) query() cardtransfer.Query {
	return cardtransfer.Query{
		Name:                    o.name,
		Repository:              o.repository,
		Version:                 o.version,
		UID:                     o.uid,
		IgnoreReleaseCandidates: o.ignoreRC,
	}
}

func (o *downloadOpts) settings(ro *RootOpts, fileCfg map[string]any) cardtransfer.Settings {
	cfg := cardtransfer.DefaultSettings()
	cfg.RegistryURI = ro.registryURI(fileCfg)
	cfg.Token = ro.bearerToken(fileCfg)
	cfg.Concurrency = o.concurrency
	cfg.Retries = o.retries
	cfg.BackoffInitial = o.backoffInitial
	cfg.BackoffMax = o.backoffMax
	cfg.Timeout = o.timeout
	return cfg
}

// progressFor picks the progress sink for the current output mode. The
// returned closer flushes any live rendering.
func progressFor(ro *RootOpts) (cardtransfer.ProgressFunc, func()) {
	switch {
	case ro.JSONOut:
		return jsonProgress(os.Stdout), func() {}
	case ro.Quiet:
		return quietProgress(), func() {}
	default:
		r := tui.NewRenderer()
		return r.Handler(), r.Close
	}
}

func newDownloadModelCmd(ro *RootOpts) *cobra.Command {
	opts := &downloadOpts{}

	cmd := &cobra.Command{
		Use:   "download-model",
		Short: "Download a model card's artifacts into a versioned directory",
		Long: `Resolves a model card by uid or by name and repository, then downloads its
artifacts in parallel, verifies them, and promotes them into
<write-dir>/<repository>/<name>/v<version> with an atomic rename.

Pass --onnx to require the ONNX variant and --preprocessor to also fetch
the preprocessor when the card has one.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fileCfg, err := loadFileConfig(ro.Config)
			if err != nil {
				return err
			}
			if err := applyConfigDefaults(cmd, fileCfg); err != nil {
				return err
			}

			log := logging.New(ro.LogLevel, ro.Quiet, ro.Verbose)
			progress, done := progressFor(ro)
			defer done()

			mods := cardtransfer.Modifiers{Onnx: opts.onnx, Preprocessor: opts.preprocessor}
			card, err := cardtransfer.Transfer(cmd.Context(), opts.query(), mods, opts.writeDir, opts.settings(ro, fileCfg), log, progress)
			if err != nil {
				return err
			}
			if ro.Quiet && !ro.JSONOut {
				fmt.Println(cardtransfer.DestinationDir(opts.writeDir, card))
			}
			return nil
		},
	}

	opts.registerQuery(cmd)
	opts.registerTransfer(cmd)
	cmd.Flags().BoolVar(&opts.onnx, "onnx", false, "Require the ONNX artifact (fails if the card has none)")
	cmd.Flags().BoolVar(&opts.preprocessor, "preprocessor", false, "Also fetch the preprocessor when present")

	return cmd
}

func newDownloadMetadataCmd(ro *RootOpts) *cobra.Command {
	opts := &downloadOpts{}

	cmd := &cobra.Command{
		Use:   "download-metadata",
		Short: "Download only a model card's metadata record",
		Long: `Resolves a model card and writes its metadata record as card.json under
<write-dir>/<repository>/<name>/v<version>, without fetching artifacts.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fileCfg, err := loadFileConfig(ro.Config)
			if err != nil {
				return err
			}
			if err := applyConfigDefaults(cmd, fileCfg); err != nil {
				return err
			}

			log := logging.New(ro.LogLevel, ro.Quiet, ro.Verbose)

			card, err := cardtransfer.FetchMetadata(cmd.Context(), opts.query(), opts.writeDir, opts.settings(ro, fileCfg), log)
			if err != nil {
				return err
			}
			if !ro.JSONOut {
				fmt.Println(cardtransfer.DestinationDir(opts.writeDir, card))
			}
			return nil
		},
	}

	opts.registerQuery(cmd)

	return cmd
}
