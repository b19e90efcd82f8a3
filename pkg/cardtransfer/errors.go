// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cardtransfer

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the pipeline.
var (
	// ErrInvalidQuery is returned when the query supplies both or neither
	// identification form. It is raised before any network call.
	ErrInvalidQuery = errors.New("invalid query: provide either a uid or a name and repository")

	// ErrNotFound is returned when the registry reports no matching card.
	ErrNotFound = errors.New("card not found")

	// ErrOnnxNotAvailable is returned when --onnx is requested on a card
	// registered without an ONNX artifact.
	ErrOnnxNotAvailable = errors.New("onnx artifact requested but the card has none")

	// ErrRegistryUnavailable is returned when the registry could not be
	// reached after all retries.
	ErrRegistryUnavailable = errors.New("registry unavailable")

	// ErrTimeout is returned when the session deadline expires.
	ErrTimeout = errors.New("session deadline exceeded")
)

// EntryFailure names one manifest entry that ended failed, and why.
type EntryFailure struct {
	Path string
	Err  error
}

// PartialDownloadError reports a session in which one or more entries
// exhausted their retries. Sibling entries were still completed before the
// session failed.
type PartialDownloadError struct {
	Failed []EntryFailure
}

func (e *PartialDownloadError) Error() string {
	parts := make([]string, 0, len(e.Failed))
	for _, f := range e.Failed {
		parts = append(parts, fmt.Sprintf("%s (%v)", f.Path, f.Err))
	}
	return fmt.Sprintf("%d of the requested files failed: %s", len(e.Failed), strings.Join(parts, "; "))
}

// Unwrap exposes the per-entry causes to errors.Is/As.
func (e *PartialDownloadError) Unwrap() []error {
	errs := make([]error, len(e.Failed))
	for i, f := range e.Failed {
		errs[i] = f.Err
	}
	return errs
}

// VerificationError is returned when a staged file does not match its
// expected size or checksum. Corrupt content never reaches the destination.
type VerificationError struct {
	Path     string
	Method   string // "size" or "sha256"
	Expected string
	Actual   string
}

func (e *VerificationError) Error() string {
	return fmt.Sprintf("artifact corrupt: %s: %s mismatch (expected %s, got %s)",
		e.Path, e.Method, e.Expected, e.Actual)
}

// MaterializeError is returned when promoting the staging directory fails.
// The destination is guaranteed unchanged and staging is kept for diagnosis.
type MaterializeError struct {
	Dest string
	Err  error
}

func (e *MaterializeError) Error() string {
	return fmt.Sprintf("materialize %s: %v", e.Dest, e.Err)
}

func (e *MaterializeError) Unwrap() error {
	return e.Err
}

// APIError represents a non-success response from the registry.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
	URL        string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("registry error %d (%s): %s", e.StatusCode, e.Status, e.Message)
	}
	return fmt.Sprintf("registry error %d: %s", e.StatusCode, e.Status)
}

// IsRetryable returns true if the request might succeed on retry.
func (e *APIError) IsRetryable() bool {
	switch e.StatusCode {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// Is implements errors.Is for common error comparisons.
func (e *APIError) Is(target error) bool {
	switch e.StatusCode {
	case 404:
		return errors.Is(target, ErrNotFound)
	default:
		return false
	}
}
