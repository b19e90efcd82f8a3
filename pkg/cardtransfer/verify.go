// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cardtransfer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
)

// verifyEntry confirms a staged file matches the manifest entry's expected
// size and checksum. It runs as each entry completes download, so a corrupt
// artifact surfaces before its siblings finish. Any mismatch is a
// *VerificationError; content failing verification is never promoted.
func verifyEntry(path string, entry FileEntry) error {
	fi, err := os.Stat(path)
	if err != nil {
		return err
	}
	if entry.Size > 0 && fi.Size() != entry.Size {
		return &VerificationError{
			Path:     entry.LocalPath,
			Method:   "size",
			Expected: fmt.Sprint(entry.Size),
			Actual:   fmt.Sprint(fi.Size()),
		}
	}
	if entry.SHA256 == "" {
		return nil
	}

	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return err
	}
	sum := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(sum, entry.SHA256) {
		return &VerificationError{
			Path:     entry.LocalPath,
			Method:   "sha256",
			Expected: entry.SHA256,
			Actual:   sum,
		}
	}
	return nil
}
