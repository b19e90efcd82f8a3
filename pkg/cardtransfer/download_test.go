// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cardtransfer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

// blobRegistry is a fake registry plus blob store for engine tests. Presign
// requests return a URL pointing back at the same server.
type blobRegistry struct {
	srv   *httptest.Server
	mu    sync.Mutex
	blobs map[string]func(w http.ResponseWriter, r *http.Request)
	// ranges records the Range header of every blob request, per locator.
	ranges map[string][]string
}

func newBlobRegistry(t *testing.T) *blobRegistry {
	t.Helper()
	br := &blobRegistry{
		blobs:  map[string]func(http.ResponseWriter, *http.Request){},
		ranges: map[string][]string{},
	}
	br.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == routeFilePresigned:
			locator := r.URL.Query().Get("path")
			json.NewEncoder(w).Encode(presignedResponse{URL: br.srv.URL + "/blob/" + locator})
		case strings.HasPrefix(r.URL.Path, "/blob/"):
			locator := strings.TrimPrefix(r.URL.Path, "/blob/")
			br.mu.Lock()
			handler := br.blobs[locator]
			br.ranges[locator] = append(br.ranges[locator], r.Header.Get("Range"))
			br.mu.Unlock()
			if handler == nil {
				http.NotFound(w, r)
				return
			}
			handler(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(br.srv.Close)
	return br
}

// serveContent installs a blob that honors bytes=N- range requests.
func (br *blobRegistry) serveContent(locator string, content []byte) {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.blobs[locator] = func(w http.ResponseWriter, r *http.Request) {
		if rng := r.Header.Get("Range"); rng != "" {
			var off int64
			fmt.Sscanf(rng, "bytes=%d-", &off)
			if off > 0 && off < int64(len(content)) {
				w.WriteHeader(http.StatusPartialContent)
				w.Write(content[off:])
				return
			}
		}
		w.Write(content)
	}
}

func (br *blobRegistry) serve(locator string, handler func(http.ResponseWriter, *http.Request)) {
	br.mu.Lock()
	defer br.mu.Unlock()
	br.blobs[locator] = handler
}

func (br *blobRegistry) rangeHeaders(locator string) []string {
	br.mu.Lock()
	defer br.mu.Unlock()
	return append([]string(nil), br.ranges[locator]...)
}

func newTestEngine(t *testing.T, url string) *Engine {
	t.Helper()
	client, err := NewClient(testSettings(url), nil)
	if err != nil {
		t.Fatal(err)
	}
	return NewEngine(client, testSettings(url), nil, nil)
}

func blobEntry(locator string, content []byte) FileEntry {
	return FileEntry{
		Kind:      KindModel,
		Locator:   locator,
		LocalPath: "model.bin",
		Size:      int64(len(content)),
		SHA256:    sha256Hex(content),
	}
}

func TestEngine_FetchVerifiesAndStages(t *testing.T) {
	br := newBlobRegistry(t)
	content := []byte("the model weights")
	br.serveContent("store/model.bin", content)

	staging := t.TempDir()
	engine := newTestEngine(t, br.srv.URL)

	manifest := &Manifest{Entries: []FileEntry{blobEntry("store/model.bin", content)}}
	if err := engine.Fetch(context.Background(), manifest, staging); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(staging, "model.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Error("Staged content differs from served content")
	}
	if _, err := os.Stat(filepath.Join(staging, "model.bin.part")); !os.IsNotExist(err) {
		t.Error("Expected .part file to be renamed away")
	}
}

func TestEngine_ResumesWithRangeRequest(t *testing.T) {
	br := newBlobRegistry(t)
	content := []byte("0123456789abcdef0123456789abcdef")
	br.serveContent("store/model.bin", content)

	staging := t.TempDir()
	entry := blobEntry("store/model.bin", content)

	// A previous attempt left the first half staged.
	half := content[:len(content)/2]
	if err := os.WriteFile(filepath.Join(staging, "model.bin.part"), half, 0o644); err != nil {
		t.Fatal(err)
	}

	engine := newTestEngine(t, br.srv.URL)
	if err := engine.fetchEntry(context.Background(), entry, staging); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	headers := br.rangeHeaders("store/model.bin")
	if len(headers) != 1 || headers[0] != fmt.Sprintf("bytes=%d-", len(half)) {
		t.Errorf("Expected a single ranged request, got %v", headers)
	}

	got, err := os.ReadFile(filepath.Join(staging, "model.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Error("Resumed file does not match served content")
	}
}

func TestEngine_RangeIgnoredFallsBackToFullFetch(t *testing.T) {
	br := newBlobRegistry(t)
	content := []byte("0123456789abcdef0123456789abcdef")
	// This blob ignores Range and always answers 200 with the full body.
	br.serve("store/model.bin", func(w http.ResponseWriter, r *http.Request) {
		w.Write(content)
	})

	staging := t.TempDir()
	entry := blobEntry("store/model.bin", content)

	if err := os.WriteFile(filepath.Join(staging, "model.bin.part"), content[:8], 0o644); err != nil {
		t.Fatal(err)
	}

	engine := newTestEngine(t, br.srv.URL)
	if err := engine.fetchEntry(context.Background(), entry, staging); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(staging, "model.bin"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Error("Expected full refetch to replace the partial file")
	}
}

func TestEngine_CorruptDownloadRetried(t *testing.T) {
	br := newBlobRegistry(t)
	content := []byte("the true model weights")
	corrupt := []byte("xxx xxxx model weights") // same length, wrong bytes

	var calls int
	var mu sync.Mutex
	br.serve("store/model.bin", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		first := calls == 1
		mu.Unlock()
		if first {
			w.Write(corrupt)
			return
		}
		w.Write(content)
	})

	staging := t.TempDir()
	engine := newTestEngine(t, br.srv.URL)

	if err := engine.fetchEntry(context.Background(), blobEntry("store/model.bin", content), staging); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, _ := os.ReadFile(filepath.Join(staging, "model.bin"))
	if string(got) != string(content) {
		t.Error("Expected the corrupt first attempt to be discarded")
	}
}

func TestEngine_PartialDownloadNamesLosers(t *testing.T) {
	br := newBlobRegistry(t)
	good := []byte("good bytes")
	br.serveContent("store/model.bin", good)
	// store/onnx is never registered, so every attempt 404s.

	staging := t.TempDir()
	engine := newTestEngine(t, br.srv.URL)

	manifest := &Manifest{Entries: []FileEntry{
		blobEntry("store/model.bin", good),
		{Kind: KindOnnx, Locator: "store/onnx", LocalPath: "onnx-model.onnx", Size: 4},
	}}

	err := engine.Fetch(context.Background(), manifest, staging)

	var perr *PartialDownloadError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected PartialDownloadError, got %v", err)
	}
	if len(perr.Failed) != 1 || perr.Failed[0].Path != "onnx-model.onnx" {
		t.Errorf("Expected onnx-model.onnx to be named, got %+v", perr.Failed)
	}

	// The sibling still completed.
	if _, err := os.Stat(filepath.Join(staging, "model.bin")); err != nil {
		t.Errorf("Expected the healthy sibling to be staged: %v", err)
	}
}

func TestEngine_DeadlineSurfacesTimeout(t *testing.T) {
	br := newBlobRegistry(t)
	br.serve("store/model.bin", func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
	})

	staging := t.TempDir()
	engine := newTestEngine(t, br.srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	manifest := &Manifest{Entries: []FileEntry{{Kind: KindModel, Locator: "store/model.bin", LocalPath: "model.bin", Size: 10}}}
	err := engine.Fetch(ctx, manifest, staging)
	if !errors.Is(err, ErrTimeout) {
		t.Errorf("Expected ErrTimeout, got %v", err)
	}
}

func TestEngine_PoolSizeBounds(t *testing.T) {
	e := &Engine{cfg: Settings{Concurrency: 9}}
	if got := e.poolSize(); got != 9 {
		t.Errorf("Expected explicit concurrency to win, got %d", got)
	}
	e = &Engine{cfg: Settings{}}
	if got := e.poolSize(); got < 1 || got > 4 {
		t.Errorf("Expected default pool between 1 and 4, got %d", got)
	}
}
