// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scheduler

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
)

// Report summarizes one session run.
type Report struct {
	RunID        uuid.UUID `json:"run_id"`
	Started      time.Time `json:"started"`
	Finished     time.Time `json:"finished"`
	Cycles       int       `json:"cycles"`
	Successes    int       `json:"successes"`
	Failures     int       `json:"failures"`
	PointsEarned int       `json:"points_earned"`
	Completed    bool      `json:"completed"`
}

// Session drives an executor through a full daily run: it polls the
// remaining search quota, keeps the term pool topped up, and spaces
// submission cycles with a randomized gap.
type Session struct {
	exec *Executor
	out  io.Writer
}

// NewSession returns a session around the executor. Progress shares the
// executor's writer.
func NewSession(exec *Executor) *Session {
	return &Session{exec: exec, out: exec.out}
}

// Run executes search cycles until the remaining quota reaches zero, the
// context is cancelled, or the executor aborts. Persistent state is
// flushed before returning regardless of outcome; the pool and queue are
// cleared only after a fully completed run so an interrupted one resumes
// where it left off.
func (s *Session) Run(ctx context.Context) (Report, error) {
	e := s.exec
	report := Report{RunID: uuid.New(), Started: e.now()}
	fmt.Fprintf(s.out, "run %s starting\n", report.RunID)

	if _, err := e.store.SweepExpired(); err != nil {
		return report, fmt.Errorf("sweeping expired records: %w", err)
	}
	if err := e.store.SetCounter(0); err != nil {
		return report, fmt.Errorf("resetting search counter: %w", err)
	}
	e.state = NewPacingState()

	pointsStart, err := e.browser.AccountPoints(ctx)
	if err != nil {
		return report, fmt.Errorf("reading points balance: %w", err)
	}

	if err := e.rebuildQueue(); err != nil {
		return report, err
	}

	runErr := s.cycle(ctx, &report)

	if runErr == nil {
		if pointsEnd, err := e.browser.AccountPoints(ctx); err != nil {
			fmt.Fprintf(s.out, "  warning: final points check failed: %v\n", err)
		} else {
			report.PointsEarned = pointsEnd - pointsStart
		}
	}

	if report.Completed {
		if err := s.cleanup(); err != nil && runErr == nil {
			runErr = err
		}
	}
	if err := e.store.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("flushing store: %w", err)
	}

	report.Finished = e.now()
	fmt.Fprintf(s.out, "\nRun %s: %d cycles, %d earned, %d failed, %d points in %s\n",
		report.RunID, report.Cycles, report.Successes, report.Failures,
		report.PointsEarned, report.Finished.Sub(report.Started).Round(time.Second))
	return report, runErr
}

func (s *Session) cycle(ctx context.Context, report *Report) error {
	e := s.exec
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		rem, err := e.browser.RemainingSearches(ctx)
		if err != nil {
			return fmt.Errorf("reading remaining searches: %w", err)
		}
		if rem.Total() == 0 {
			report.Completed = true
			return nil
		}
		fmt.Fprintf(s.out, "remaining searches: %d desktop, %d mobile\n", rem.Desktop, rem.Mobile)

		// A failed top-up is not fatal: the executor refreshes the
		// queue itself and stops cleanly if terms truly run out.
		if err := s.topUpPool(ctx, rem.Total()); err != nil {
			fmt.Fprintf(s.out, "  warning: pool top-up failed: %v\n", err)
		}

		earned, err := e.SearchOnce(ctx)
		if err != nil {
			return err
		}
		report.Cycles++
		if earned {
			report.Successes++
		} else {
			report.Failures++
		}

		if err := e.sleep(ctx, s.cycleGap()); err != nil {
			return err
		}
	}
}

// topUpPool keeps the pool at least as large as the remaining quota,
// fetching a margin beyond it so the prioritizer has room to diversify.
// Fresh terms are shuffled before insertion to vary cluster seeding.
func (s *Session) topUpPool(ctx context.Context, remaining int) error {
	e := s.exec
	count, err := e.store.TermCount()
	if err != nil {
		return fmt.Errorf("counting pool terms: %w", err)
	}
	if count >= remaining {
		return nil
	}

	_, geo := e.browser.Locale()
	terms, err := e.source.TrendingTerms(ctx, remaining+e.cfg.Search.FetchMargin, geo)
	if err != nil {
		return fmt.Errorf("fetching trends: %w", err)
	}
	e.rng.Shuffle(len(terms), func(i, j int) { terms[i], terms[j] = terms[j], terms[i] })
	added, err := e.store.AddTerms(terms...)
	if err != nil {
		return fmt.Errorf("storing terms: %w", err)
	}
	fmt.Fprintf(s.out, "pool topped up with %d fresh terms\n", added)
	return e.rebuildQueue()
}

// cycleGap returns the randomized pause between submission cycles.
func (s *Session) cycleGap() time.Duration {
	e := s.exec
	span := e.cfg.Search.CycleGapMax - e.cfg.Search.CycleGapMin
	return e.cfg.Search.CycleGapMin + time.Duration(e.rng.Int63n(int64(span)+1))
}

// cleanup runs after the quota is fully cleared: the pool and queue are
// emptied so the next run starts from fresh trends, and expired
// blacklist and cooldown records are swept.
func (s *Session) cleanup() error {
	e := s.exec
	if err := e.store.ClearTerms(); err != nil {
		return fmt.Errorf("clearing term pool: %w", err)
	}
	e.queue = nil
	if _, err := e.store.SweepExpired(); err != nil {
		return fmt.Errorf("sweeping expired records: %w", err)
	}
	fmt.Fprintln(s.out, "quota cleared, term pool reset")
	return nil
}
