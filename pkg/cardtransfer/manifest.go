// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cardtransfer

import (
	"path"
	"strings"
)

// Fixed local name stems, keyed by artifact kind. Local paths are never
// derived from remote filenames, so a hostile locator cannot traverse out of
// the staging directory.
var localStems = map[ArtifactKind]string{
	KindModel:        "model",
	KindOnnx:         "onnx-model",
	KindPreprocessor: "preprocessor",
}

// CardFileName is the metadata sidecar written next to the artifacts.
const CardFileName = "card.json"

// BuildManifest converts a resolved card plus the requested modifiers into
// the ordered list of file entries to retrieve. It is pure: the same card
// and modifiers always produce the same manifest.
//
// The base entry is always present. The ONNX entry is included only when
// requested AND the card carries one; requesting it on a card without one is
// a hard error. The preprocessor entry follows the same rule except that a
// missing preprocessor is tolerated: the kind is reported in skipped and the
// entry is omitted.
func BuildManifest(card *Card, mods Modifiers) (manifest *Manifest, skipped []ArtifactKind, err error) {
	entries := []FileEntry{newEntry(KindModel, card.Artifacts.Model)}

	if mods.Onnx {
		if card.Artifacts.Onnx == nil {
			return nil, nil, ErrOnnxNotAvailable
		}
		entries = append(entries, newEntry(KindOnnx, *card.Artifacts.Onnx))
	}

	if mods.Preprocessor {
		if card.Artifacts.Preprocessor == nil {
			skipped = append(skipped, KindPreprocessor)
		} else {
			entries = append(entries, newEntry(KindPreprocessor, *card.Artifacts.Preprocessor))
		}
	}

	return &Manifest{Entries: entries}, skipped, nil
}

func newEntry(kind ArtifactKind, a Artifact) FileEntry {
	return FileEntry{
		Kind:      kind,
		Locator:   a.URI,
		LocalPath: localStems[kind] + safeExt(a.URI),
		Size:      a.Size,
		SHA256:    strings.ToLower(a.SHA256),
	}
}

// safeExt extracts a file extension from a locator, keeping only characters
// that cannot influence the directory layout. Anything suspicious collapses
// to no extension.
func safeExt(locator string) string {
	base := path.Base(strings.ReplaceAll(locator, "\\", "/"))
	ext := path.Ext(base)
	if ext == "" || ext == "." {
		return ""
	}
	for _, r := range ext[1:] {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		default:
			return ""
		}
	}
	return strings.ToLower(ext)
}
