// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scheduler

import (
	"context"
	"fmt"
	"io"
	"math/rand"
	"time"

	"github.com/pdiddy/rewards-engine/internal/prioritize"
	"github.com/pdiddy/rewards-engine/internal/store"
	"github.com/pdiddy/rewards-engine/pkg/types"
)

// Delay floors and jitter ranges for submission pacing. Variables rather
// than constants so rehearsal runs and tests can compress them.
var (
	// MinBackoff is the floor for the delay between repeat submissions.
	MinBackoff = 8 * time.Second

	// BackoffJitter bounds the random spread applied to every repeat
	// submission delay, whichever strategy computed it.
	BackoffJitter = 10 * time.Second

	// PauseJitterStep scales the up-to-59 jitter units added to a
	// suppression pause.
	PauseJitterStep = time.Second
)

const (
	// submitAttempts bounds retries of a single query submission at the
	// UI level before the search box is declared dead.
	submitAttempts = 3

	// refreshAttempts bounds how many times an exhausted queue is topped
	// up with fresh trends before the run gives up.
	refreshAttempts = 3

	// refreshBatchSize is how many trending terms one queue refresh
	// fetches.
	refreshBatchSize = 10
)

// Executor works through the prioritized queue one root term at a time.
// It owns the queue and the pacing state; persistent records (pool,
// blacklist, cooldowns, counter) live in the store.
type Executor struct {
	browser Browser
	source  TermSource
	store   *store.Store
	cfg     types.EngineConfig

	out   io.Writer
	queue []string
	state PacingState

	// Injected for tests; real runs use the wall clock.
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
	rng   *rand.Rand
}

// NewExecutor returns an executor over the given collaborators. Zero
// values in the search and pacing config sections are replaced with
// defaults. Progress lines go to out; pass nil to discard them.
func NewExecutor(browser Browser, source TermSource, st *store.Store, cfg types.EngineConfig, out io.Writer) *Executor {
	applyEngineDefaults(&cfg)
	if out == nil {
		out = io.Discard
	}
	return &Executor{
		browser: browser,
		source:  source,
		store:   st,
		cfg:     cfg,
		out:     out,
		state:   NewPacingState(),
		now:     time.Now,
		sleep:   sleepCtx,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// applyEngineDefaults fills zero values in the search and pacing
// sections. Discovery, store, and queue defaults are applied by their
// own packages.
func applyEngineDefaults(cfg *types.EngineConfig) {
	if cfg.Search.MaxRetries <= 0 {
		cfg.Search.MaxRetries = 4
	}
	if cfg.Search.BaseDelay <= 0 {
		cfg.Search.BaseDelay = 2 * time.Minute
	}
	if cfg.Search.Strategy == "" {
		cfg.Search.Strategy = types.RetryExponential
	}
	if cfg.Search.FetchMargin <= 0 {
		cfg.Search.FetchMargin = 15
	}
	if cfg.Search.CycleGapMin <= 0 {
		cfg.Search.CycleGapMin = 15 * time.Second
	}
	if cfg.Search.CycleGapMax <= cfg.Search.CycleGapMin {
		cfg.Search.CycleGapMax = cfg.Search.CycleGapMin + 10*time.Second
	}
	if cfg.Pacing.BurstThreshold <= 0 {
		cfg.Pacing.BurstThreshold = 4
	}
	if cfg.Pacing.BurstWindow <= 0 {
		cfg.Pacing.BurstWindow = 150 * time.Second
	}
	if cfg.Pacing.PauseBase <= 0 {
		cfg.Pacing.PauseBase = 30 * time.Minute
	}
	if cfg.Pacing.UnproductiveLimit <= 0 {
		cfg.Pacing.UnproductiveLimit = 3 * time.Minute
	}
}

// SearchOnce selects the highest-priority usable root term and works
// through its query variants until one earns points or the retry budget
// runs out. It reports whether any submission earned points. The root is
// retired on every path: requeued at the back while it still has
// unexplored variants, dropped otherwise, and placed on cooldown either
// way.
func (e *Executor) SearchOnce(ctx context.Context) (bool, error) {
	root, avail, err := e.selectRoot(ctx)
	if err != nil {
		return false, err
	}
	fmt.Fprintf(e.out, "searching %q (%d variants)\n", root, len(avail))

	// The retry budget never exceeds the variants actually available.
	retries := e.cfg.Search.MaxRetries
	if len(avail) < retries {
		retries = len(avail)
	}

	pointsBefore, err := e.browser.AccountPoints(ctx)
	if err != nil {
		return false, fmt.Errorf("reading points balance: %w", err)
	}

	var spent time.Duration
	idx := 0
	for attempt := 0; attempt <= retries && len(avail) > 0; attempt++ {
		if attempt > 0 {
			delay := e.backoff(attempt)
			spent += delay
			fmt.Fprintf(e.out, "  retrying in %s\n", delay.Round(time.Second))
			if err := e.sleep(ctx, delay); err != nil {
				return false, err
			}
		}

		if idx >= len(avail) {
			idx = 0
		}
		variant := avail[idx]

		if err := e.submit(ctx, variant); err != nil {
			return false, err
		}

		pointsAfter, err := e.browser.AccountPoints(ctx)
		if err != nil {
			// The submission may still have counted; move on to the
			// next variant rather than blacklisting this one.
			fmt.Fprintf(e.out, "  warning: points check failed: %v\n", err)
			idx++
			continue
		}

		if pointsAfter > pointsBefore {
			fmt.Fprintf(e.out, "earned %d points: %q\n", pointsAfter-pointsBefore, variant)
			avail = removeTerm(avail, variant)
			return true, e.recordSuccess(ctx, root, avail)
		}

		fmt.Fprintf(e.out, "  no points: %q\n", variant)
		if err := e.store.Blacklist(root, variant); err != nil {
			return false, fmt.Errorf("blacklisting variant: %w", err)
		}
		avail = removeTerm(avail, variant)
		idx = 0

		if spent > e.cfg.Pacing.UnproductiveLimit && e.state.AllowPause {
			return false, e.longRunPause(ctx, root, avail, spent)
		}
	}

	fmt.Fprintf(e.out, "no points earned for %q\n", root)
	e.retireRoot(root, avail)
	return false, nil
}

// selectRoot walks the queue for the first root whose variant list has a
// non-blacklisted entry. When the whole queue is exhausted it tops the
// pool up with fresh trending terms and rebuilds, a bounded number of
// times, before giving up with ErrNoUsableTerms.
func (e *Executor) selectRoot(ctx context.Context) (string, []string, error) {
	for refresh := 0; ; refresh++ {
		root, avail, err := e.firstAvailable(ctx)
		if err != nil {
			return "", nil, err
		}
		if root != "" {
			return root, avail, nil
		}
		if refresh >= refreshAttempts {
			return "", nil, ErrNoUsableTerms
		}

		fmt.Fprintf(e.out, "queue exhausted, fetching %d fresh trends\n", refreshBatchSize)
		_, geo := e.browser.Locale()
		terms, err := e.source.TrendingTerms(ctx, refreshBatchSize, geo)
		if err != nil {
			fmt.Fprintf(e.out, "  warning: trend fetch failed: %v\n", err)
		}
		if len(terms) > 0 {
			if _, err := e.store.AddTerms(terms...); err != nil {
				return "", nil, fmt.Errorf("storing fresh terms: %w", err)
			}
		}
		if err := e.rebuildQueue(); err != nil {
			return "", nil, err
		}
	}
}

func (e *Executor) firstAvailable(ctx context.Context) (string, []string, error) {
	for _, root := range e.queue {
		if err := ctx.Err(); err != nil {
			return "", nil, err
		}
		variants, err := e.source.Variants(ctx, root)
		if err != nil {
			fmt.Fprintf(e.out, "  warning: variants for %q: %v\n", root, err)
		}
		var avail []string
		for _, v := range variants {
			if !e.store.IsBlacklisted(root, v) {
				avail = append(avail, v)
			}
		}
		if len(avail) > 0 {
			return root, avail, nil
		}
	}
	return "", nil, nil
}

// rebuildQueue reloads the pool and rebuilds the prioritized queue for
// the current day.
func (e *Executor) rebuildQueue() error {
	pool, err := e.store.Terms()
	if err != nil {
		return fmt.Errorf("loading term pool: %w", err)
	}
	e.queue = prioritize.BuildQueue(pool, e.store.Cooldowns(), e.cfg.Queue, e.now())
	return nil
}

// submit drives one query through the browser, tolerating transient UI
// failures. Repeated failure points at a dead search box, which aborts
// the run rather than burning through the queue.
func (e *Executor) submit(ctx context.Context, query string) error {
	var last error
	for attempt := 0; attempt < submitAttempts; attempt++ {
		err := e.browser.SubmitQuery(ctx, query)
		if err == nil {
			return nil
		}
		last = err
		if ctx.Err() != nil {
			return ctx.Err()
		}
		fmt.Fprintf(e.out, "  warning: submitting %q: %v\n", query, err)
	}
	return fmt.Errorf("%w: %v", ErrSearchBoxUnavailable, last)
}

// backoff returns the delay before repeat submission attempt (1-based).
// The exponential strategy doubles from the base; the constant strategy
// stays at it. Either way a uniform jitter spreads the result, so repeat
// submissions never land on a fixed interval, and the delay never drops
// below MinBackoff.
func (e *Executor) backoff(attempt int) time.Duration {
	var d time.Duration
	if e.cfg.Search.Strategy == types.RetryConstant {
		d = e.cfg.Search.BaseDelay
	} else {
		d = e.cfg.Search.BaseDelay << (attempt - 1)
	}
	d += time.Duration((e.rng.Float64()*2 - 1) * float64(BackoffJitter))
	if d < MinBackoff {
		d = MinBackoff
	}
	return d
}

// recordSuccess retires the root, advances the success streak, and fires
// the burst pause when the streak reaches the threshold.
func (e *Executor) recordSuccess(ctx context.Context, root string, avail []string) error {
	e.retireRoot(root, avail)

	burst := e.state.RecordSuccess(e.now(), e.cfg.Pacing.BurstThreshold, e.cfg.Pacing.BurstWindow)
	if err := e.store.SetCounter(e.state.Streak); err != nil {
		return fmt.Errorf("saving search counter: %w", err)
	}
	if !burst {
		return nil
	}
	return e.burstPause(ctx)
}

// burstPause reacts to the streak reaching the burst threshold. The
// pause is skipped when it is disarmed or when the remaining quota shows
// the run is nearly done; the streak resets regardless so residual count
// cannot retrigger it. An unreadable quota does not skip the pause — the
// exemption needs proof the run is about to finish.
func (e *Executor) burstPause(ctx context.Context) error {
	nearlyDone := false
	if rem, err := e.browser.RemainingSearches(ctx); err != nil {
		fmt.Fprintf(e.out, "  warning: remaining-quota check failed: %v\n", err)
	} else {
		nearlyDone = rem.Total() == 0 ||
			(rem.Desktop == 1 && rem.Mobile == 0) ||
			(rem.Mobile == 1 && rem.Desktop == 0)
	}
	if e.state.AllowPause && !nearlyDone {
		pause := e.cfg.Pacing.PauseBase + time.Duration(1+e.rng.Intn(59))*PauseJitterStep
		fmt.Fprintf(e.out, "pausing %s after a burst of %d searches\n", pause.Round(time.Second), e.state.Streak)
		if err := e.sleep(ctx, pause); err != nil {
			return err
		}
		e.state.AllowPause = false
	}

	e.state.Streak = 0
	if err := e.store.SetCounter(0); err != nil {
		return fmt.Errorf("saving search counter: %w", err)
	}
	return nil
}

// longRunPause fires when a single root term has consumed more than the
// unproductive limit in retry delays without earning anything. The pause
// is credited with the time already spent waiting, the streak breaks,
// and the root is retired before returning.
func (e *Executor) longRunPause(ctx context.Context, root string, avail []string, spent time.Duration) error {
	pause := e.cfg.Pacing.PauseBase + time.Duration(1+e.rng.Intn(59))*PauseJitterStep - spent
	if pause < 0 {
		pause = 0
	}
	fmt.Fprintf(e.out, "pausing %s after %s of unproductive retries\n", pause.Round(time.Second), spent.Round(time.Second))
	if err := e.sleep(ctx, pause); err != nil {
		return err
	}

	e.state.Streak = 0
	e.state.LastSuccess = time.Time{}
	e.state.AllowPause = false
	if err := e.store.SetCounter(0); err != nil {
		return fmt.Errorf("saving search counter: %w", err)
	}
	e.retireRoot(root, avail)
	return nil
}

// retireRoot takes the root out of rotation: back of the queue when it
// still has unexplored variants, gone entirely when it does not. Either
// way the root starts its cooldown so it is not selected again today.
func (e *Executor) retireRoot(root string, avail []string) {
	if len(avail) > 0 {
		e.queue = append(removeTerm(e.queue, root), root)
	} else {
		e.queue = removeTerm(e.queue, root)
	}
	if err := e.store.Cooldown(root); err != nil {
		fmt.Fprintf(e.out, "  warning: recording cooldown for %q: %v\n", root, err)
	}
}

// removeTerm returns s without the first occurrence of term.
func removeTerm(s []string, term string) []string {
	for i, v := range s {
		if v == term {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
