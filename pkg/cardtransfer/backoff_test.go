// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cardtransfer

import (
	"context"
	"testing"
	"time"
)

func TestBackoff_GrowsAndCaps(t *testing.T) {
	b := newRetry(Settings{BackoffInitial: "100ms", BackoffMax: "300ms"})

	first := b.Next()
	if first < 100*time.Millisecond {
		t.Errorf("First delay below initial: %v", first)
	}

	// Drain until growth saturates at the cap.
	for i := 0; i < 10; i++ {
		b.Next()
	}
	if b.next > 300*time.Millisecond {
		t.Errorf("Backoff exceeded cap: %v", b.next)
	}
}

func TestBackoff_BadDurationFallsBackToDefaults(t *testing.T) {
	b := newRetry(Settings{BackoffInitial: "not-a-duration"})
	if b.next != 400*time.Millisecond {
		t.Errorf("Expected default initial 400ms, got %v", b.next)
	}
}

func TestSleepCtx_CanceledEarly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleepCtx(ctx, time.Minute) {
		t.Error("Expected sleepCtx to report cancellation")
	}
}

func TestSleepCtx_Completes(t *testing.T) {
	if !sleepCtx(context.Background(), time.Millisecond) {
		t.Error("Expected sleepCtx to complete")
	}
}
