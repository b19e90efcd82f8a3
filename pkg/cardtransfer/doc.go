// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

/*
Package cardtransfer resolves model cards in an artifact registry and
retrieves their files into a local directory.

The pipeline has five stages, each failing fast with a typed error:

  - resolution: a Query (uid, or name/repository/version) becomes exactly
    one Card; ambiguous version hints are settled deterministically by the
    highest semantic version, never by registry ordering
  - manifest: the Card plus Modifiers become a fixed, ordered list of
    FileEntry values with local names derived from the artifact kind
  - download: a bounded worker pool fetches entries into a session-private
    staging directory with retry, backoff and one resume-by-range attempt
    per entry
  - verification: byte count and SHA-256 are checked as each entry
    completes; corrupt content never leaves staging
  - materialization: the staging directory replaces the destination in a
    single atomic rename, so concurrent readers never observe a partial
    file tree

# Quick start

	cfg := cardtransfer.Settings{
	    RegistryURI: os.Getenv("CARDCTL_REGISTRY_URI"),
	    Token:       os.Getenv("CARDCTL_TOKEN"),
	}

	card, err := cardtransfer.Transfer(ctx,
	    cardtransfer.Query{Name: "income-classifier", Repository: "risk-team", Version: "latest"},
	    cardtransfer.Modifiers{Onnx: true},
	    "models", cfg, nil,
	    func(e cardtransfer.ProgressEvent) {
	        fmt.Printf("[%s] %s\n", e.Event, e.Path)
	    })

# Error taxonomy

Callers branch on sentinel values (ErrInvalidQuery, ErrNotFound,
ErrOnnxNotAvailable, ErrRegistryUnavailable, ErrTimeout) and structured
types (*PartialDownloadError, *VerificationError, *MaterializeError) via
errors.Is and errors.As. PartialDownloadError always names the specific
entries that failed and why.

# Concurrency

Entries download under a weighted semaphore sized from Settings.Concurrency
(default: GOMAXPROCS capped at 4). There is no required completion order
between entries, but promotion is gated on every entry being verified.
Concurrent invocations targeting the same destination race only at the
atomic-rename boundary; each completed materialization is internally
consistent.
*/
package cardtransfer
