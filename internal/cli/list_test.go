// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"errors"
	"testing"

	"github.com/cardctl/cardctl/pkg/cardtransfer"
)

func TestValidRegistryKind(t *testing.T) {
	for _, kind := range registryKinds {
		if !validRegistryKind(kind) {
			t.Errorf("Expected %q to be valid", kind)
		}
	}
	for _, kind := range []string{"", "models", "MODEL", "datasets"} {
		if validRegistryKind(kind) {
			t.Errorf("Expected %q to be invalid", kind)
		}
	}
}

func TestZipTags(t *testing.T) {
	t.Run("pairs positionally", func(t *testing.T) {
		tags, err := zipTags([]string{"stage", "owner"}, []string{"prod", "risk"})
		if err != nil {
			t.Fatalf("Unexpected error: %v", err)
		}
		if tags["stage"] != "prod" || tags["owner"] != "risk" {
			t.Errorf("Unexpected tags: %v", tags)
		}
	})

	t.Run("empty is nil", func(t *testing.T) {
		tags, err := zipTags(nil, nil)
		if err != nil || tags != nil {
			t.Errorf("Expected nil, nil; got %v, %v", tags, err)
		}
	})

	t.Run("length mismatch rejected", func(t *testing.T) {
		_, err := zipTags([]string{"stage"}, []string{"prod", "extra"})
		if !errors.Is(err, cardtransfer.ErrInvalidQuery) {
			t.Errorf("Expected ErrInvalidQuery, got %v", err)
		}
	})
}
