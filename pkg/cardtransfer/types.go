// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cardtransfer

import "time"

// Query identifies the card to resolve. Exactly one identification form must
// be supplied: either UID alone, or Name and Repository (with an optional
// Version). Supplying both forms, or neither, is rejected before any network
// call is made.
//
// Example:
//
//	q := cardtransfer.Query{
//	    Name:       "income-classifier",
//	    Repository: "risk-team",
//	    Version:    "1.4.0", // or "latest", or empty
//	}
type Query struct {
	// Name is the card name within its repository.
	Name string

	// Repository is the repository (team/project namespace) the card
	// belongs to.
	Repository string

	// Version selects a card version. It may be a concrete semantic
	// version ("1.4.0"), a partial prefix ("1.4"), "latest", or empty.
	// Anything other than a full semantic version is treated as a
	// resolution hint: the registry is asked for candidates and the
	// highest semantic version wins.
	Version string

	// UID is the globally unique card identifier. When set, Name,
	// Repository and Version must be empty.
	UID string

	// IgnoreReleaseCandidates excludes prerelease versions (e.g.
	// "2.0.0-rc.1") from hint resolution.
	IgnoreReleaseCandidates bool
}

// Modifiers select optional artifact variants to retrieve alongside the base
// model.
type Modifiers struct {
	// Onnx requests the ONNX-converted variant. Requesting it on a card
	// registered without one is a hard error.
	Onnx bool

	// Preprocessor requests the associated preprocessor. Cards without one
	// produce a warning and the entry is skipped.
	Preprocessor bool
}

// ArtifactKind names one of the storage objects a card can carry.
type ArtifactKind string

const (
	KindModel        ArtifactKind = "model"
	KindOnnx         ArtifactKind = "onnx"
	KindPreprocessor ArtifactKind = "preprocessor"
)

// Artifact is one storage object referenced by a card: an opaque remote
// locator plus the size and checksum the staged bytes must match.
type Artifact struct {
	URI    string `json:"uri"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// CardArtifacts groups the storage locators of a card. Model is always
// present; Onnx and Preprocessor only when the card was registered with them.
type CardArtifacts struct {
	Model        Artifact  `json:"model"`
	Onnx         *Artifact `json:"onnx,omitempty"`
	Preprocessor *Artifact `json:"preprocessor,omitempty"`
}

// Card is a resolved registry record. Version is always fully resolved,
// never a hint. A Card is immutable once returned by the resolver.
type Card struct {
	UID          string        `json:"uid"`
	Name         string        `json:"name"`
	Repository   string        `json:"repository"`
	Version      string        `json:"version"`
	ArtifactType string        `json:"artifact_type"`
	Artifacts    CardArtifacts `json:"artifacts"`
}

// FileEntry maps one remote storage object to its fixed local name.
type FileEntry struct {
	Kind      ArtifactKind `json:"kind"`
	Locator   string       `json:"locator"`
	LocalPath string       `json:"localPath"`
	Size      int64        `json:"size"`
	SHA256    string       `json:"sha256"`
}

// Manifest is the ordered list of entries to retrieve for one request.
// Building it is deterministic: the same card and modifiers always yield the
// same manifest.
type Manifest struct {
	Entries []FileEntry `json:"entries"`
}

// TotalBytes returns the sum of all expected entry sizes.
func (m *Manifest) TotalBytes() int64 {
	var n int64
	for _, e := range m.Entries {
		n += e.Size
	}
	return n
}

// EntryStatus tracks one manifest entry through a download session.
type EntryStatus string

const (
	StatusPending    EntryStatus = "pending"
	StatusInProgress EntryStatus = "in-progress"
	StatusVerified   EntryStatus = "verified"
	StatusFailed     EntryStatus = "failed"
)

// Settings configures the transfer pipeline.
//
// Only RegistryURI is required. Everything else has a usable default:
//
//	cfg := cardtransfer.Settings{
//	    RegistryURI: os.Getenv("CARDCTL_REGISTRY_URI"),
//	    Token:       os.Getenv("CARDCTL_TOKEN"),
//	}
type Settings struct {
	// RegistryURI is the base URL of the artifact registry. A trailing
	// slash is trimmed. Required.
	RegistryURI string

	// Token is the opaque bearer credential sent on every registry call.
	// Empty means unauthenticated.
	Token string

	// Concurrency bounds the download worker pool. If <= 0, defaults to
	// GOMAXPROCS capped at 4 so a single invocation cannot overwhelm the
	// remote store.
	Concurrency int

	// Retries is the maximum number of retry attempts per entry and per
	// registry call. If <= 0, defaults to 3.
	Retries int

	// BackoffInitial is the delay before the first retry.
	// Accepts duration strings: "400ms", "1s". If empty, defaults to "400ms".
	BackoffInitial string

	// BackoffMax caps the exponential backoff delay.
	// If empty, defaults to "10s".
	BackoffMax string

	// Timeout bounds the whole session (resolution through promotion).
	// Accepts duration strings: "5m", "90s". Empty or "0" means no deadline.
	Timeout string
}

// ProgressEvent is a progress update emitted during a transfer.
//
// The Event field identifies the stage:
//   - "resolve_start": query validated, resolution request in flight
//   - "resolve_done":  a card was resolved (Message holds uid@version)
//   - "plan_item":     a manifest entry was planned
//   - "file_start":    download of an entry has started
//   - "file_progress": periodic byte-count update
//   - "retry":         a retry attempt is being made
//   - "file_done":     entry downloaded and verified
//   - "warn":          a non-fatal condition (e.g. preprocessor absent)
//   - "materialized":  staging promoted into the destination
//   - "error":         a fatal error occurred
//   - "done":          the transfer finished
type ProgressEvent struct {
	// Time is when the event occurred (UTC).
	Time time.Time `json:"time"`

	// Level is "info", "warn" or "error". Empty defaults to "info".
	Level string `json:"level,omitempty"`

	// Event is the event type identifier.
	Event string `json:"event"`

	// Card is the resolved card uid, once known.
	Card string `json:"card,omitempty"`

	// Path is the entry's local relative path.
	Path string `json:"path,omitempty"`

	// Total is the expected size in bytes of the entry (or session).
	Total int64 `json:"total,omitempty"`

	// Downloaded is the cumulative bytes staged so far.
	Downloaded int64 `json:"downloaded,omitempty"`

	// Attempt is the retry attempt number (1-based), set in "retry" events.
	Attempt int `json:"attempt,omitempty"`

	// Message carries additional context or error details.
	Message string `json:"message,omitempty"`
}

// ProgressFunc receives progress events. It is invoked from multiple
// goroutines and must be safe for concurrent use. A nil ProgressFunc is
// allowed and disables progress reporting.
type ProgressFunc func(ProgressEvent)

// DefaultSettings returns Settings with defaults filled in.
func DefaultSettings() Settings {
	return Settings{
		Concurrency:    4,
		Retries:        3,
		BackoffInitial: "400ms",
		BackoffMax:     "10s",
	}
}
