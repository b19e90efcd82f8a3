// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cardtransfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// progressReader wraps an io.Reader and emits progress events during reads.
type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	path       string
	emit       ProgressFunc
	lastEmit   time.Time
	interval   time.Duration
}

func newProgressReader(r io.Reader, offset, total int64, path string, emit ProgressFunc) *progressReader {
	return &progressReader{
		reader:     r,
		total:      total,
		downloaded: offset,
		path:       path,
		emit:       emit,
		lastEmit:   time.Now(),
		interval:   200 * time.Millisecond, // at most 5 emissions per second
	}
}

func (pr *progressReader) Read(p []byte) (n int, err error) {
	n, err = pr.reader.Read(p)
	if n > 0 {
		pr.downloaded += int64(n)
		if time.Since(pr.lastEmit) >= pr.interval || err == io.EOF {
			pr.emit(ProgressEvent{
				Event:      "file_progress",
				Path:       pr.path,
				Downloaded: pr.downloaded,
				Total:      pr.total,
			})
			pr.lastEmit = time.Now()
		}
	}
	return n, err
}

// Engine retrieves manifest entries into a private staging directory under a
// bounded worker pool. Each entry is independently retried with exponential
// backoff; a failing entry does not abort its siblings. Entries are verified
// as they complete, before being renamed from their .part staging name.
type Engine struct {
	client *Client
	cfg    Settings
	log    logrus.FieldLogger
	emit   ProgressFunc
}

// NewEngine creates a download engine. progress may be nil.
func NewEngine(client *Client, cfg Settings, log logrus.FieldLogger, progress ProgressFunc) *Engine {
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}
	emit := func(ev ProgressEvent) {
		if progress != nil {
			if ev.Time.IsZero() {
				ev.Time = time.Now().UTC()
			}
			progress(ev)
		}
	}
	return &Engine{client: client, cfg: cfg, log: log, emit: emit}
}

// poolSize bounds worker parallelism: proportional to available CPUs but
// capped so one invocation cannot overwhelm the remote store.
func (e *Engine) poolSize() int64 {
	n := e.cfg.Concurrency
	if n <= 0 {
		n = runtime.GOMAXPROCS(0)
		if n > 4 {
			n = 4
		}
	}
	return int64(n)
}

// Fetch downloads every manifest entry into stagingDir. It returns nil only
// when all entries are verified. When one or more entries exhaust their
// retries the remaining entries still run to completion and the session
// fails with *PartialDownloadError naming the losers. A session deadline
// expiry surfaces as ErrTimeout and leaves staged partial files in place.
func (e *Engine) Fetch(ctx context.Context, manifest *Manifest, stagingDir string) error {
	sem := semaphore.NewWeighted(e.poolSize())

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		statuses = make(map[string]EntryStatus, len(manifest.Entries))
		causes   = make(map[string]error, len(manifest.Entries))
	)
	for _, entry := range manifest.Entries {
		statuses[entry.LocalPath] = StatusPending
	}

	for _, entry := range manifest.Entries {
		if err := sem.Acquire(ctx, 1); err != nil {
			break // canceled or deadline hit, stop scheduling
		}

		it := entry
		mu.Lock()
		statuses[it.LocalPath] = StatusInProgress
		mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)

			err := e.fetchEntry(ctx, it, stagingDir)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				statuses[it.LocalPath] = StatusFailed
				causes[it.LocalPath] = err
				return
			}
			statuses[it.LocalPath] = StatusVerified
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrTimeout
		}
		return err
	}

	var failed []EntryFailure
	for _, entry := range manifest.Entries {
		if statuses[entry.LocalPath] != StatusVerified {
			cause := causes[entry.LocalPath]
			if cause == nil {
				cause = errors.New("not scheduled")
			}
			failed = append(failed, EntryFailure{Path: entry.LocalPath, Err: cause})
		}
	}
	if len(failed) > 0 {
		return &PartialDownloadError{Failed: failed}
	}
	return nil
}

// fetchEntry downloads, verifies and promotes a single entry within the
// staging directory. A corrupt result is deleted and counts as a failed
// attempt.
func (e *Engine) fetchEntry(ctx context.Context, entry FileEntry, stagingDir string) error {
	dst := stagingPath(stagingDir, entry)
	part := dst + ".part"

	retry := newRetry(e.cfg)
	retries := e.cfg.Retries
	if retries <= 0 {
		retries = 3
	}

	resumeTried := false
	var lastErr error

	e.emit(ProgressEvent{Event: "file_start", Path: entry.LocalPath, Total: entry.Size})

	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			e.emit(ProgressEvent{
				Event:   "retry",
				Path:    entry.LocalPath,
				Attempt: attempt,
				Message: lastErr.Error(),
			})
			if !sleepCtx(ctx, retry.Next()) {
				return ctx.Err()
			}
		}

		fetchURL, err := e.client.PresignURL(ctx, entry.Locator)
		if err != nil {
			if isTerminal(err) {
				return err
			}
			lastErr = err
			continue
		}

		if err := e.fetchOnce(ctx, fetchURL, entry, part, &resumeTried); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if isTerminal(err) {
				return err
			}
			lastErr = err
			continue
		}

		if err := verifyEntry(part, entry); err != nil {
			var ve *VerificationError
			if errors.As(err, &ve) {
				e.log.WithField("path", entry.LocalPath).Warnf("discarding corrupt download: %v", err)
				os.Remove(part)
				lastErr = err
				continue
			}
			return err
		}

		if err := os.Rename(part, dst); err != nil {
			return err
		}
		e.emit(ProgressEvent{Event: "file_done", Path: entry.LocalPath, Total: entry.Size})
		return nil
	}
	return lastErr
}

// fetchOnce performs one GET against the presigned URL, writing into the
// .part file. If a previous attempt left partial bytes, a single resume via
// Range request is tried; when the remote side ignores the range the file is
// truncated and fetched in full.
func (e *Engine) fetchOnce(ctx context.Context, fetchURL string, entry FileEntry, part string, resumeTried *bool) error {
	var offset int64
	if fi, err := os.Stat(part); err == nil && !*resumeTried && entry.Size > 0 && fi.Size() > 0 && fi.Size() < entry.Size {
		offset = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fetchURL, nil)
	if err != nil {
		return err
	}
	if offset > 0 {
		*resumeTried = true
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", offset))
	}

	resp, err := e.client.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var out *os.File
	switch {
	case offset > 0 && resp.StatusCode == http.StatusPartialContent:
		e.log.WithField("path", entry.LocalPath).Debugf("resuming at byte %d", offset)
		out, err = os.OpenFile(part, os.O_WRONLY|os.O_APPEND, 0o644)
	case resp.StatusCode == http.StatusOK:
		// Either a fresh fetch, or the remote ignored the range request;
		// both start the file over.
		offset = 0
		out, err = os.Create(part)
	default:
		return &APIError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        fetchURL,
		}
	}
	if err != nil {
		return err
	}

	pr := newProgressReader(resp.Body, offset, entry.Size, entry.LocalPath, e.emit)
	_, cerr := io.Copy(out, pr)
	if closeErr := out.Close(); cerr == nil {
		cerr = closeErr
	}
	return cerr
}

// isTerminal reports whether err can never succeed on an entry retry.
// ErrRegistryUnavailable counts: the client has already retried it with
// backoff, so the entry gives up rather than multiplying the attempts.
func isTerminal(err error) bool {
	if errors.Is(err, ErrRegistryUnavailable) {
		return true
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return !apiErr.IsRetryable()
	}
	return false
}

func stagingPath(stagingDir string, entry FileEntry) string {
	return filepath.Join(stagingDir, entry.LocalPath)
}
