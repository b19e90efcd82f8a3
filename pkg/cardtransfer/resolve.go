// Copyright 2025
// SPDX-License-Identifier: Apache-2.0

package cardtransfer

import (
	"context"
	"fmt"

	"golang.org/x/mod/semver"
)

// Resolver turns a user query into exactly one resolved card.
type Resolver struct {
	client *Client
}

// NewResolver creates a resolver backed by the given registry client.
func NewResolver(client *Client) *Resolver {
	return &Resolver{client: client}
}

// validateQuery enforces the exactly-one-form rule. It runs before any
// network call.
func validateQuery(q Query) error {
	hasUID := q.UID != ""
	hasNamed := q.Name != "" || q.Repository != "" || q.Version != ""
	if hasUID == hasNamed {
		return ErrInvalidQuery
	}
	if !hasUID && (q.Name == "" || q.Repository == "") {
		return fmt.Errorf("%w: name and repository are both required", ErrInvalidQuery)
	}
	return nil
}

// ambiguousVersion reports whether v is a resolution hint rather than a
// concrete semantic version. "", "latest" and partial prefixes like "1.4"
// are hints.
func ambiguousVersion(v string) bool {
	if v == "" || v == "latest" {
		return true
	}
	return semver.Canonical("v"+v) != "v"+v
}

// Resolve validates the query and resolves it against the registry.
//
// A uid query and a concrete-version query go straight to the resolution
// endpoint. An ambiguous version hint first lists the matching candidates
// and deterministically picks the highest semantic version. The tie-break is
// latest-wins, never first-returned: registry ordering is ignored.
func (r *Resolver) Resolve(ctx context.Context, q Query) (*Card, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}

	if q.UID != "" || !ambiguousVersion(q.Version) {
		return r.client.ResolveCard(ctx, q)
	}

	hint := q.Version
	if hint == "latest" {
		hint = ""
	}
	candidates, err := r.client.ListCards(ctx, ListCardsRequest{
		RegistryType:            "model",
		Name:                    q.Name,
		Repository:              q.Repository,
		Version:                 hint,
		IgnoreReleaseCandidates: q.IgnoreReleaseCandidates,
	})
	if err != nil {
		return nil, err
	}

	best := pickLatest(candidates, q.IgnoreReleaseCandidates)
	if best == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, queryString(q))
	}

	return r.client.ResolveCard(ctx, Query{UID: best.UID})
}

// pickLatest returns the candidate with the highest semantic version,
// optionally excluding prereleases. Candidates with unparseable versions are
// ignored. Returns nil when nothing qualifies.
//
// Duplicate versions are settled by the higher uid, so the choice never
// depends on the order the registry happened to return.
func pickLatest(cards []CardSummary, ignoreReleaseCandidates bool) *CardSummary {
	var best *CardSummary
	for i := range cards {
		c := &cards[i]
		v := "v" + c.Version
		if !semver.IsValid(v) {
			continue
		}
		if ignoreReleaseCandidates && semver.Prerelease(v) != "" {
			continue
		}
		if best == nil {
			best = c
			continue
		}
		switch semver.Compare(v, "v"+best.Version) {
		case 1:
			best = c
		case 0:
			if c.UID > best.UID {
				best = c
			}
		}
	}
	return best
}
