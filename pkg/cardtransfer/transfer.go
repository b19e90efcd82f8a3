// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cardtransfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"
)

// Transfer runs the whole pipeline for one invocation: resolve the query,
// build the manifest, fetch and verify every entry into a private staging
// directory, write the card metadata sidecar, and atomically promote the
// staging directory into the destination.
//
// The destination is derived from the resolved card:
//
//	<destRoot>/<repository>/<name>/v<version>
//
// On success it returns the resolved card. On any failure before promotion
// the destination is untouched; staging is removed except on ErrTimeout
// (partial files are kept for a caller that explicitly retries) and on
// *MaterializeError (kept for diagnosis).
func Transfer(ctx context.Context, q Query, mods Modifiers, destRoot string, cfg Settings, log logrus.FieldLogger, progress ProgressFunc) (*Card, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	emit := func(ev ProgressEvent) {
		if progress != nil {
			if ev.Time.IsZero() {
				ev.Time = time.Now().UTC()
			}
			progress(ev)
		}
	}

	if cfg.Timeout != "" && cfg.Timeout != "0" {
		d, err := time.ParseDuration(cfg.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout: %w", err)
		}
		if d > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, d)
			defer cancel()
		}
	}

	client, err := NewClient(cfg, log)
	if err != nil {
		return nil, err
	}

	emit(ProgressEvent{Event: "resolve_start", Message: queryString(q)})
	card, err := NewResolver(client).Resolve(ctx, q)
	if err != nil {
		return nil, mapDeadline(ctx, err)
	}
	emit(ProgressEvent{
		Event:   "resolve_done",
		Card:    card.UID,
		Message: fmt.Sprintf("%s/%s@%s", card.Repository, card.Name, card.Version),
	})

	manifest, skipped, err := BuildManifest(card, mods)
	if err != nil {
		return nil, err
	}
	for _, kind := range skipped {
		emit(ProgressEvent{
			Level:   "warn",
			Event:   "warn",
			Card:    card.UID,
			Message: fmt.Sprintf("card has no %s artifact, skipping", kind),
		})
	}
	for _, entry := range manifest.Entries {
		emit(ProgressEvent{Event: "plan_item", Card: card.UID, Path: entry.LocalPath, Total: entry.Size})
	}

	dest := DestinationDir(destRoot, card)
	staging, err := newStagingDir(dest)
	if err != nil {
		return nil, err
	}

	engine := NewEngine(client, cfg, log, progress)
	if err := engine.Fetch(ctx, manifest, staging); err != nil {
		if errors.Is(err, ErrTimeout) {
			// Keep partial files: a deliberate re-run may resume them.
			return nil, err
		}
		os.RemoveAll(staging)
		return nil, mapDeadline(ctx, err)
	}

	if err := writeCardFile(staging, card); err != nil {
		os.RemoveAll(staging)
		return nil, err
	}

	if err := Materialize(staging, dest); err != nil {
		// Staging is intentionally left behind here.
		return nil, err
	}
	emit(ProgressEvent{Event: "materialized", Card: card.UID, Message: dest})

	emit(ProgressEvent{
		Event:   "done",
		Card:    card.UID,
		Message: fmt.Sprintf("downloaded %d file(s) to %s", len(manifest.Entries)+1, dest),
	})
	return card, nil
}

// FetchMetadata resolves the query and writes only the card.json sidecar
// into the destination directory.
func FetchMetadata(ctx context.Context, q Query, destRoot string, cfg Settings, log logrus.FieldLogger) (*Card, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := NewClient(cfg, log)
	if err != nil {
		return nil, err
	}
	card, err := NewResolver(client).Resolve(ctx, q)
	if err != nil {
		return nil, err
	}
	dest := DestinationDir(destRoot, card)
	if err := os.MkdirAll(dest, 0o755); err != nil {
		return nil, err
	}
	if err := writeCardFile(dest, card); err != nil {
		return nil, err
	}
	return card, nil
}

// DestinationDir returns the fixed destination layout for a resolved card.
func DestinationDir(destRoot string, card *Card) string {
	return filepath.Join(destRoot, card.Repository, card.Name, "v"+card.Version)
}

func writeCardFile(dir string, card *Card) error {
	data, err := json.MarshalIndent(card, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, CardFileName), data, 0o644)
}

// mapDeadline converts a deadline-driven failure into ErrTimeout so callers
// see the taxonomy error rather than a transport wrapping of it.
func mapDeadline(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrTimeout
	}
	return err
}
