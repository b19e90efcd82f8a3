// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cardtransfer

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Materialize promotes a fully-verified staging directory into dest with a
// rename-based swap. An observer of dest sees either the prior content, no
// directory at all, or the complete new content, never an interleaving.
//
// When dest already exists it is first renamed aside, then the staging
// directory takes its place, then the old content is removed. If the swap
// fails the old content is renamed back, so dest is unchanged; the staging
// directory is left intact for diagnosis and a *MaterializeError is
// returned.
//
// Staging and dest must live on the same filesystem, which newStagingDir
// guarantees by placing staging next to dest.
func Materialize(stagingDir, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return &MaterializeError{Dest: dest, Err: err}
	}

	prior := ""
	if _, err := os.Stat(dest); err == nil {
		prior = dest + ".prior-" + shortID()
		if err := os.Rename(dest, prior); err != nil {
			return &MaterializeError{Dest: dest, Err: err}
		}
	}

	if err := os.Rename(stagingDir, dest); err != nil {
		if prior != "" {
			if rerr := os.Rename(prior, dest); rerr != nil {
				err = fmt.Errorf("%v (restore of prior content also failed: %v)", err, rerr)
			}
		}
		return &MaterializeError{Dest: dest, Err: err}
	}

	if prior != "" {
		// The swap is complete; leftover prior content is best-effort cleanup.
		os.RemoveAll(prior)
	}
	return nil
}

// newStagingDir creates (or reopens) the staging directory next to dest so
// the final promotion is a single same-filesystem rename. The name is
// derived from dest, not from the session: a run retrying after a timeout
// finds the previous run's .part files there and resumes them by range.
func newStagingDir(dest string) (string, error) {
	staging := filepath.Join(filepath.Dir(dest), "."+filepath.Base(dest)+".stage")
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return "", err
	}
	return staging, nil
}

func shortID() string {
	return uuid.NewString()[:8]
}
