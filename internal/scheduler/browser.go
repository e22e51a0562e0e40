// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package scheduler drives rewards search submission: it selects terms
// from the prioritized queue, submits query variants through the browser
// collaborator, verifies point deltas, and paces submissions to stay
// under the rewards service's automation heuristics.
package scheduler

import (
	"context"
	"errors"

	"github.com/pdiddy/rewards-engine/pkg/types"
)

// Browser is the surface the engine needs from the browser session
// collaborator. Implementations wrap a real driver; Simulator provides
// an in-memory stand-in for rehearsal and tests.
type Browser interface {
	// AccountPoints returns the account's current rewards point balance.
	AccountPoints(ctx context.Context) (int, error)

	// RemainingSearches returns the outstanding search quota by device
	// profile.
	RemainingSearches(ctx context.Context) (types.RemainingSearches, error)

	// SubmitQuery types one query into the search box and submits it.
	// An error means the query could not be entered at the UI level; a
	// query the service accepts but awards no points for is not an
	// error.
	SubmitQuery(ctx context.Context, query string) error

	// Locale returns the session's language and geography codes.
	Locale() (language, geo string)
}

// TermSource supplies root terms and their query variants.
// *discovery.Client satisfies it; tests script their own.
type TermSource interface {
	TrendingTerms(ctx context.Context, count int, geo string) ([]string, error)
	Variants(ctx context.Context, term string) ([]string, error)
}

// ErrNoUsableTerms reports that the queue, the pool, and bounded fresh
// fetches all failed to yield a submittable variant. The run cannot make
// progress and must stop rather than loop on a dead term supply.
var ErrNoUsableTerms = errors.New("no usable search terms")

// ErrSearchBoxUnavailable reports repeated UI-level submission failures.
// Unlike a rejected query this points at an unhealthy browser session,
// so it aborts the run loudly.
var ErrSearchBoxUnavailable = errors.New("search box unavailable")
