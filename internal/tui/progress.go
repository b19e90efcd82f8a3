// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

// Package tui renders live transfer progress on a terminal.
package tui

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/cheggaaa/pb/v3"
	"github.com/fatih/color"
	"golang.org/x/term"

	"github.com/cardctl/cardctl/pkg/cardtransfer"
)

// Renderer displays one aggregate progress bar for the whole manifest plus
// per-file status lines. On a non-interactive stdout it degrades to plain
// line output.
type Renderer struct {
	mu          sync.Mutex
	interactive bool
	bar         *pb.ProgressBar
	total       int64
	perFile     map[string]int64
	closed      bool
}

// NewRenderer detects terminal capabilities and returns a renderer.
func NewRenderer() *Renderer {
	return &Renderer{
		interactive: term.IsTerminal(int(os.Stdout.Fd())) && os.Getenv("NO_COLOR") == "",
		perFile:     map[string]int64{},
	}
}

// Handler returns the progress callback to pass into the pipeline.
// It is safe for concurrent use.
func (r *Renderer) Handler() cardtransfer.ProgressFunc {
	return func(ev cardtransfer.ProgressEvent) {
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.closed {
			return
		}

		switch ev.Event {
		case "resolve_start":
			fmt.Printf("Resolving %s ...\n", ev.Message)
		case "resolve_done":
			fmt.Printf("Resolved %s (card %s)\n", color.GreenString(ev.Message), ev.Card)
		case "plan_item":
			r.total += ev.Total
		case "file_start":
			if r.interactive && r.bar == nil {
				r.bar = pb.Full.Start64(r.total)
				r.bar.Set(pb.Bytes, true)
			}
			if !r.interactive {
				fmt.Printf("downloading: %s (%d bytes)\n", ev.Path, ev.Total)
			}
		case "file_progress":
			r.perFile[ev.Path] = ev.Downloaded
			r.redraw()
		case "retry":
			r.println(color.YellowString("retry %s (attempt %d): %s", ev.Path, ev.Attempt, ev.Message))
		case "warn":
			r.println(color.YellowString("warning: %s", ev.Message))
		case "file_done":
			r.perFile[ev.Path] = ev.Total
			r.redraw()
			if !r.interactive {
				fmt.Printf("done: %s\n", ev.Path)
			}
		case "materialized":
			r.println("materialized: " + ev.Message)
		case "error":
			r.println(color.RedString("error: %s", ev.Message))
		case "done":
			r.finishBar()
			fmt.Println(color.GreenString(ev.Message))
		}
	}
}

// Close stops the bar; safe to call more than once.
func (r *Renderer) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finishBar()
	r.closed = true
}

func (r *Renderer) redraw() {
	if r.bar == nil {
		return
	}
	var sum int64
	for _, n := range r.perFile {
		sum += n
	}
	r.bar.SetTotal(r.total)
	r.bar.SetCurrent(sum)
}

// println writes a line without corrupting an active bar.
func (r *Renderer) println(s string) {
	if r.bar != nil {
		r.bar.Write()
	}
	fmt.Println(strings.TrimRight(s, "\n"))
}

func (r *Renderer) finishBar() {
	if r.bar != nil {
		r.bar.Finish()
		r.bar = nil
	}
}
