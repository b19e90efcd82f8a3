// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cardtransfer

import (
	"errors"
	"strings"
	"testing"
)

func TestPartialDownloadError_NamesEveryEntry(t *testing.T) {
	err := &PartialDownloadError{Failed: []EntryFailure{
		{Path: "model.joblib", Err: errors.New("connection reset")},
		{Path: "onnx-model.onnx", Err: errors.New("403 Forbidden")},
	}}

	msg := err.Error()
	if !strings.Contains(msg, "model.joblib") || !strings.Contains(msg, "onnx-model.onnx") {
		t.Errorf("Expected both entries named, got %q", msg)
	}
	if !strings.HasPrefix(msg, "2 of") {
		t.Errorf("Expected a count prefix, got %q", msg)
	}
}

func TestPartialDownloadError_UnwrapExposesCauses(t *testing.T) {
	cause := &VerificationError{Path: "model.joblib", Method: "sha256"}
	err := error(&PartialDownloadError{Failed: []EntryFailure{{Path: "model.joblib", Err: cause}}})

	var ve *VerificationError
	if !errors.As(err, &ve) {
		t.Error("Expected errors.As to reach the per-entry cause")
	}
}

func TestAPIError_Retryable(t *testing.T) {
	cases := map[int]bool{
		429: true, 500: true, 502: true, 503: true, 504: true,
		400: false, 401: false, 403: false, 404: false,
	}
	for code, want := range cases {
		e := &APIError{StatusCode: code}
		if got := e.IsRetryable(); got != want {
			t.Errorf("IsRetryable(%d) = %v, want %v", code, got, want)
		}
	}
}

func TestAPIError_NotFoundMatchesSentinel(t *testing.T) {
	err := error(&APIError{StatusCode: 404, Status: "404 Not Found"})
	if !errors.Is(err, ErrNotFound) {
		t.Error("Expected a 404 APIError to match ErrNotFound")
	}
	err = error(&APIError{StatusCode: 500})
	if errors.Is(err, ErrNotFound) {
		t.Error("Expected a 500 APIError not to match ErrNotFound")
	}
}

func TestMaterializeError_Unwrap(t *testing.T) {
	cause := errors.New("cross-device link")
	err := error(&MaterializeError{Dest: "/models/risk/clf/v1.4.0", Err: cause})
	if !errors.Is(err, cause) {
		t.Error("Expected MaterializeError to unwrap its cause")
	}
	if !strings.Contains(err.Error(), "/models/risk/clf/v1.4.0") {
		t.Errorf("Expected the destination in the message, got %q", err.Error())
	}
}
