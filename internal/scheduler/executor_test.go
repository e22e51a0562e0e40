// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scheduler

import (
	"context"
	"errors"
	"io"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/pdiddy/rewards-engine/internal/store"
	"github.com/pdiddy/rewards-engine/pkg/types"
)

// --- fakes ---

// fakeBrowser scripts the browser collaborator. Submissions are accepted
// unless accept says otherwise; an accepted submission earns 5 points
// and consumes one remaining search, desktop first.
type fakeBrowser struct {
	points       int
	remaining    types.RemainingSearches
	remainingErr error
	accept       func(query string) bool
	submitErr    func(call int, query string) error
	pointsErr    func(call int) error
	submitted    []string
	submitCalls  int
	pointsCalls  int
}

func (f *fakeBrowser) AccountPoints(context.Context) (int, error) {
	f.pointsCalls++
	if f.pointsErr != nil {
		if err := f.pointsErr(f.pointsCalls); err != nil {
			return 0, err
		}
	}
	return f.points, nil
}

func (f *fakeBrowser) RemainingSearches(context.Context) (types.RemainingSearches, error) {
	if f.remainingErr != nil {
		return types.RemainingSearches{}, f.remainingErr
	}
	return f.remaining, nil
}

func (f *fakeBrowser) SubmitQuery(_ context.Context, query string) error {
	f.submitCalls++
	if f.submitErr != nil {
		if err := f.submitErr(f.submitCalls, query); err != nil {
			return err
		}
	}
	f.submitted = append(f.submitted, query)
	if f.accept == nil || f.accept(query) {
		f.points += 5
		switch {
		case f.remaining.Desktop > 0:
			f.remaining.Desktop--
		case f.remaining.Mobile > 0:
			f.remaining.Mobile--
		}
	}
	return nil
}

func (f *fakeBrowser) Locale() (string, string) { return "en", "US" }

// fakeSource scripts the term source. Roots missing from variants get
// the root itself back, matching the live source's fallback.
type fakeSource struct {
	variants    map[string][]string
	variantsErr map[string]error
	trends      [][]string
	trendsErr   error
	trendCalls  int
}

func (f *fakeSource) TrendingTerms(context.Context, int, string) ([]string, error) {
	f.trendCalls++
	if f.trendsErr != nil {
		return nil, f.trendsErr
	}
	if len(f.trends) == 0 {
		return nil, nil
	}
	batch := f.trends[0]
	f.trends = f.trends[1:]
	return batch, nil
}

func (f *fakeSource) Variants(_ context.Context, term string) ([]string, error) {
	if err := f.variantsErr[term]; err != nil {
		return []string{term}, err
	}
	if v, ok := f.variants[term]; ok {
		return append([]string(nil), v...), nil
	}
	return []string{term}, nil
}

// --- harness ---

type execHarness struct {
	exec   *Executor
	store  *store.Store
	sleeps []time.Duration
}

func newExecHarness(t *testing.T, browser Browser, source TermSource, pool []string, cfg types.EngineConfig) *execHarness {
	t.Helper()
	st, err := store.Open(types.StoreConfig{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	if len(pool) > 0 {
		if _, err := st.AddTerms(pool...); err != nil {
			t.Fatalf("seeding pool: %v", err)
		}
	}

	h := &execHarness{store: st}
	e := NewExecutor(browser, source, st, cfg, io.Discard)
	e.now = func() time.Time { return time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC) }
	e.rng = rand.New(rand.NewSource(1))
	e.sleep = func(_ context.Context, d time.Duration) error {
		h.sleeps = append(h.sleeps, d)
		return nil
	}
	if err := e.rebuildQueue(); err != nil {
		t.Fatalf("building queue: %v", err)
	}
	h.exec = e
	return h
}

// --- SearchOnce ---

func TestSearchOnceBlacklistsFailedVariantThenEarns(t *testing.T) {
	browser := &fakeBrowser{accept: func(q string) bool { return q == "solar eclipse timing" }}
	source := &fakeSource{variants: map[string][]string{
		"solar eclipse": {"solar eclipse glasses", "solar eclipse timing"},
	}}
	h := newExecHarness(t, browser, source, []string{"solar eclipse", "meteor shower"}, types.EngineConfig{})

	earned, err := h.exec.SearchOnce(context.Background())
	if err != nil {
		t.Fatalf("SearchOnce: %v", err)
	}
	if !earned {
		t.Fatal("SearchOnce reported no points earned")
	}

	want := []string{"solar eclipse glasses", "solar eclipse timing"}
	if !reflect.DeepEqual(browser.submitted, want) {
		t.Errorf("submitted %v, want %v", browser.submitted, want)
	}
	if !h.store.IsBlacklisted("solar eclipse", "solar eclipse glasses") {
		t.Error("failed variant not blacklisted")
	}
	if h.store.IsBlacklisted("solar eclipse", "solar eclipse timing") {
		t.Error("earning variant blacklisted")
	}
	// The last variant earned, so the root leaves the queue entirely.
	if wantQ := []string{"meteor shower"}; !reflect.DeepEqual(h.exec.queue, wantQ) {
		t.Errorf("queue %v, want %v", h.exec.queue, wantQ)
	}
	if _, ok := h.store.Cooldowns()["solar eclipse"]; !ok {
		t.Error("root not placed on cooldown")
	}
	if got := h.store.Counter(); got != 1 {
		t.Errorf("counter = %d, want 1", got)
	}
	if len(h.sleeps) != 1 {
		t.Fatalf("sleeps = %v, want one backoff", h.sleeps)
	}
	if got := h.sleeps[0]; got < 2*time.Minute-BackoffJitter || got > 2*time.Minute+BackoffJitter {
		t.Errorf("backoff = %v, want 2m jittered by at most %v", got, BackoffJitter)
	}
}

func TestSearchOnceMovesSuccessfulRootToBack(t *testing.T) {
	browser := &fakeBrowser{}
	source := &fakeSource{variants: map[string][]string{
		"solar eclipse": {"solar eclipse glasses", "solar eclipse timing"},
	}}
	h := newExecHarness(t, browser, source, []string{"solar eclipse", "meteor shower"}, types.EngineConfig{})

	earned, err := h.exec.SearchOnce(context.Background())
	if err != nil || !earned {
		t.Fatalf("SearchOnce = (%v, %v), want success", earned, err)
	}

	// A variant remains unexplored, so the root goes to the back
	// instead of leaving.
	want := []string{"meteor shower", "solar eclipse"}
	if !reflect.DeepEqual(h.exec.queue, want) {
		t.Errorf("queue %v, want %v", h.exec.queue, want)
	}
	if _, ok := h.store.Cooldowns()["solar eclipse"]; !ok {
		t.Error("root not placed on cooldown")
	}
}

func TestSearchOnceRetiresRootAfterExhaustingVariants(t *testing.T) {
	browser := &fakeBrowser{accept: func(string) bool { return false }}
	source := &fakeSource{variants: map[string][]string{
		"solar eclipse": {"solar eclipse glasses", "solar eclipse timing"},
	}}
	h := newExecHarness(t, browser, source, []string{"solar eclipse", "meteor shower"}, types.EngineConfig{})

	earned, err := h.exec.SearchOnce(context.Background())
	if err != nil {
		t.Fatalf("SearchOnce: %v", err)
	}
	if earned {
		t.Fatal("SearchOnce reported points for rejected submissions")
	}

	for _, v := range []string{"solar eclipse glasses", "solar eclipse timing"} {
		if !h.store.IsBlacklisted("solar eclipse", v) {
			t.Errorf("variant %q not blacklisted", v)
		}
	}
	if want := []string{"meteor shower"}; !reflect.DeepEqual(h.exec.queue, want) {
		t.Errorf("queue %v, want %v", h.exec.queue, want)
	}
	if _, ok := h.store.Cooldowns()["solar eclipse"]; !ok {
		t.Error("root not placed on cooldown")
	}
	if got := h.store.Counter(); got != 0 {
		t.Errorf("counter = %d, want 0", got)
	}
	if !h.exec.state.AllowPause {
		t.Error("pause disarmed without a pause firing")
	}
}

func TestSearchOncePausesAfterUnproductiveRetries(t *testing.T) {
	browser := &fakeBrowser{accept: func(string) bool { return false }}
	source := &fakeSource{variants: map[string][]string{
		"solar eclipse": {"solar eclipse glasses", "solar eclipse timing", "solar eclipse path"},
	}}
	h := newExecHarness(t, browser, source, []string{"solar eclipse", "meteor shower"}, types.EngineConfig{})

	earned, err := h.exec.SearchOnce(context.Background())
	if err != nil {
		t.Fatalf("SearchOnce: %v", err)
	}
	if earned {
		t.Fatal("SearchOnce reported points for rejected submissions")
	}

	// Backoffs near 2m then 4m push past the 3m unproductive limit, so
	// the third failure triggers a pause of the 30m base plus jitter
	// minus the time already spent waiting.
	if len(h.sleeps) != 3 {
		t.Fatalf("sleeps = %v, want two backoffs and a pause", h.sleeps)
	}
	if got := h.sleeps[0]; got < 2*time.Minute-BackoffJitter || got > 2*time.Minute+BackoffJitter {
		t.Errorf("first backoff = %v, want 2m jittered by at most %v", got, BackoffJitter)
	}
	if got := h.sleeps[1]; got < 4*time.Minute-BackoffJitter || got > 4*time.Minute+BackoffJitter {
		t.Errorf("second backoff = %v, want 4m jittered by at most %v", got, BackoffJitter)
	}
	spent := h.sleeps[0] + h.sleeps[1]
	total := h.sleeps[2] + spent
	if total < 30*time.Minute+time.Second || total > 30*time.Minute+59*time.Second {
		t.Errorf("pause = %v with %v spent, want their sum within [30m1s, 30m59s]", h.sleeps[2], spent)
	}
	if h.exec.state.AllowPause {
		t.Error("pause still armed after firing")
	}
	if h.exec.state.Streak != 0 || !h.exec.state.LastSuccess.IsZero() {
		t.Errorf("streak not broken: %+v", h.exec.state)
	}
	if want := []string{"meteor shower"}; !reflect.DeepEqual(h.exec.queue, want) {
		t.Errorf("queue %v, want %v", h.exec.queue, want)
	}
}

func TestSearchOnceBurstPause(t *testing.T) {
	browser := &fakeBrowser{remaining: types.RemainingSearches{Desktop: 10, Mobile: 5}}
	source := &fakeSource{}
	pool := []string{"solar eclipse", "meteor shower", "comet watch", "aurora forecast"}
	h := newExecHarness(t, browser, source, pool, types.EngineConfig{})

	for i := 0; i < 4; i++ {
		earned, err := h.exec.SearchOnce(context.Background())
		if err != nil || !earned {
			t.Fatalf("SearchOnce %d = (%v, %v), want success", i+1, earned, err)
		}
	}

	// The fourth tight success reaches the burst threshold and the
	// pause fires: base 30m plus up to 59s of jitter.
	if len(h.sleeps) != 1 {
		t.Fatalf("sleeps = %v, want exactly the burst pause", h.sleeps)
	}
	pause := h.sleeps[0]
	if pause < 30*time.Minute+time.Second || pause > 30*time.Minute+59*time.Second {
		t.Errorf("pause = %v, want within [30m1s, 30m59s]", pause)
	}
	if h.exec.state.AllowPause {
		t.Error("pause still armed after firing")
	}
	if h.exec.state.Streak != 0 {
		t.Errorf("streak = %d after burst, want 0", h.exec.state.Streak)
	}
	if got := h.store.Counter(); got != 0 {
		t.Errorf("counter = %d after burst, want 0", got)
	}
}

func TestSearchOnceBurstPauseSkippedNearQuotaEnd(t *testing.T) {
	browser := &fakeBrowser{remaining: types.RemainingSearches{Desktop: 5}}
	source := &fakeSource{}
	pool := []string{"solar eclipse", "meteor shower", "comet watch", "aurora forecast"}
	h := newExecHarness(t, browser, source, pool, types.EngineConfig{})

	for i := 0; i < 4; i++ {
		if _, err := h.exec.SearchOnce(context.Background()); err != nil {
			t.Fatalf("SearchOnce %d: %v", i+1, err)
		}
	}

	// One desktop search left and no mobile: the run is about to
	// finish, so pausing would only delay it.
	if len(h.sleeps) != 0 {
		t.Errorf("sleeps = %v, want none", h.sleeps)
	}
	if !h.exec.state.AllowPause {
		t.Error("pause disarmed without firing")
	}
	if h.exec.state.Streak != 0 {
		t.Errorf("streak = %d after burst reset, want 0", h.exec.state.Streak)
	}
}

func TestSearchOnceBurstPauseFiresWhenQuotaUnreadable(t *testing.T) {
	browser := &fakeBrowser{remainingErr: errors.New("quota widget missing")}
	source := &fakeSource{}
	pool := []string{"solar eclipse", "meteor shower", "comet watch", "aurora forecast"}
	h := newExecHarness(t, browser, source, pool, types.EngineConfig{})

	for i := 0; i < 4; i++ {
		earned, err := h.exec.SearchOnce(context.Background())
		if err != nil || !earned {
			t.Fatalf("SearchOnce %d = (%v, %v), want success", i+1, earned, err)
		}
	}

	// An unreadable quota must not look like an exhausted one: the
	// near-end exemption needs proof, so the pause still fires.
	if len(h.sleeps) != 1 {
		t.Fatalf("sleeps = %v, want exactly the burst pause", h.sleeps)
	}
	pause := h.sleeps[0]
	if pause < 30*time.Minute+time.Second || pause > 30*time.Minute+59*time.Second {
		t.Errorf("pause = %v, want within [30m1s, 30m59s]", pause)
	}
	if h.exec.state.AllowPause {
		t.Error("pause still armed after firing")
	}
}

func TestSearchOnceSkipsFullyBlacklistedRoot(t *testing.T) {
	browser := &fakeBrowser{}
	source := &fakeSource{}
	h := newExecHarness(t, browser, source, []string{"solar eclipse", "meteor shower"}, types.EngineConfig{})
	if err := h.store.Blacklist("solar eclipse", "solar eclipse"); err != nil {
		t.Fatalf("seeding blacklist: %v", err)
	}

	earned, err := h.exec.SearchOnce(context.Background())
	if err != nil || !earned {
		t.Fatalf("SearchOnce = (%v, %v), want success", earned, err)
	}

	if want := []string{"meteor shower"}; !reflect.DeepEqual(browser.submitted, want) {
		t.Errorf("submitted %v, want %v", browser.submitted, want)
	}
	// The skipped root keeps its place for a later day.
	if want := []string{"solar eclipse"}; !reflect.DeepEqual(h.exec.queue, want) {
		t.Errorf("queue %v, want %v", h.exec.queue, want)
	}
}

func TestSearchOnceRefreshesExhaustedQueue(t *testing.T) {
	browser := &fakeBrowser{}
	source := &fakeSource{trends: [][]string{{"comet watch"}}}
	h := newExecHarness(t, browser, source, nil, types.EngineConfig{})

	earned, err := h.exec.SearchOnce(context.Background())
	if err != nil || !earned {
		t.Fatalf("SearchOnce = (%v, %v), want success", earned, err)
	}
	if source.trendCalls != 1 {
		t.Errorf("trend fetches = %d, want 1", source.trendCalls)
	}
	if want := []string{"comet watch"}; !reflect.DeepEqual(browser.submitted, want) {
		t.Errorf("submitted %v, want %v", browser.submitted, want)
	}
}

func TestSearchOnceStopsWhenTermSupplyDries(t *testing.T) {
	browser := &fakeBrowser{}
	source := &fakeSource{}
	h := newExecHarness(t, browser, source, nil, types.EngineConfig{})

	_, err := h.exec.SearchOnce(context.Background())
	if !errors.Is(err, ErrNoUsableTerms) {
		t.Fatalf("SearchOnce error = %v, want ErrNoUsableTerms", err)
	}
	if source.trendCalls != refreshAttempts {
		t.Errorf("trend fetches = %d, want %d", source.trendCalls, refreshAttempts)
	}
}

func TestSearchOnceSearchBoxFailureAborts(t *testing.T) {
	browser := &fakeBrowser{submitErr: func(int, string) error {
		return errors.New("search box did not accept input")
	}}
	source := &fakeSource{}
	h := newExecHarness(t, browser, source, []string{"solar eclipse"}, types.EngineConfig{})

	_, err := h.exec.SearchOnce(context.Background())
	if !errors.Is(err, ErrSearchBoxUnavailable) {
		t.Fatalf("SearchOnce error = %v, want ErrSearchBoxUnavailable", err)
	}
	if browser.submitCalls != submitAttempts {
		t.Errorf("submit attempts = %d, want %d", browser.submitCalls, submitAttempts)
	}
}

func TestSearchOnceRecoversFromTransientSubmitFailure(t *testing.T) {
	browser := &fakeBrowser{submitErr: func(call int, _ string) error {
		if call == 1 {
			return errors.New("element went stale")
		}
		return nil
	}}
	source := &fakeSource{}
	h := newExecHarness(t, browser, source, []string{"solar eclipse"}, types.EngineConfig{})

	earned, err := h.exec.SearchOnce(context.Background())
	if err != nil || !earned {
		t.Fatalf("SearchOnce = (%v, %v), want success", earned, err)
	}
	if browser.submitCalls != 2 {
		t.Errorf("submit attempts = %d, want 2", browser.submitCalls)
	}
}

func TestSearchOncePointsCheckFailureMovesOn(t *testing.T) {
	browser := &fakeBrowser{pointsErr: func(call int) error {
		if call == 2 {
			return errors.New("points widget missing")
		}
		return nil
	}}
	source := &fakeSource{variants: map[string][]string{
		"solar eclipse": {"solar eclipse glasses", "solar eclipse timing"},
	}}
	h := newExecHarness(t, browser, source, []string{"solar eclipse"}, types.EngineConfig{})

	earned, err := h.exec.SearchOnce(context.Background())
	if err != nil || !earned {
		t.Fatalf("SearchOnce = (%v, %v), want success", earned, err)
	}

	// The unverified variant is not blacklisted; the next attempt just
	// moves to the next variant.
	if h.store.IsBlacklisted("solar eclipse", "solar eclipse glasses") {
		t.Error("unverified variant blacklisted")
	}
	want := []string{"solar eclipse glasses", "solar eclipse timing"}
	if !reflect.DeepEqual(browser.submitted, want) {
		t.Errorf("submitted %v, want %v", browser.submitted, want)
	}
}

// --- backoff ---

func TestBackoffExponentialDoublesWithJitter(t *testing.T) {
	h := newExecHarness(t, &fakeBrowser{}, &fakeSource{}, nil, types.EngineConfig{
		Search: types.SearchConfig{BaseDelay: 2 * time.Minute, Strategy: types.RetryExponential},
	})

	tests := []struct {
		attempt int
		center  time.Duration
	}{
		{1, 2 * time.Minute},
		{2, 4 * time.Minute},
		{3, 8 * time.Minute},
	}
	for _, tt := range tests {
		got := h.exec.backoff(tt.attempt)
		if got < tt.center-BackoffJitter || got > tt.center+BackoffJitter {
			t.Errorf("backoff(%d) = %v, want %v jittered by at most %v", tt.attempt, got, tt.center, BackoffJitter)
		}
	}
}

func TestBackoffConstantJitters(t *testing.T) {
	h := newExecHarness(t, &fakeBrowser{}, &fakeSource{}, nil, types.EngineConfig{
		Search: types.SearchConfig{BaseDelay: 2 * time.Minute, Strategy: types.RetryConstant},
	})

	lo := 2*time.Minute - BackoffJitter
	hi := 2*time.Minute + BackoffJitter
	for i := 0; i < 50; i++ {
		got := h.exec.backoff(1)
		if got < lo || got > hi {
			t.Fatalf("backoff = %v, want within [%v, %v]", got, lo, hi)
		}
	}
}

func TestBackoffNeverRepeatsFixedInterval(t *testing.T) {
	// Identical delays between retries are the automation signature the
	// jitter exists to break, under either strategy.
	for _, strategy := range []types.RetryStrategy{types.RetryExponential, types.RetryConstant} {
		h := newExecHarness(t, &fakeBrowser{}, &fakeSource{}, nil, types.EngineConfig{
			Search: types.SearchConfig{BaseDelay: 2 * time.Minute, Strategy: strategy},
		})
		seen := make(map[time.Duration]bool)
		for i := 0; i < 50; i++ {
			seen[h.exec.backoff(1)] = true
		}
		if len(seen) < 2 {
			t.Errorf("strategy %s: 50 delays collapsed to %v, want spread", strategy, seen)
		}
	}
}

func TestBackoffFloorsAtMinimum(t *testing.T) {
	h := newExecHarness(t, &fakeBrowser{}, &fakeSource{}, nil, types.EngineConfig{
		Search: types.SearchConfig{BaseDelay: time.Second, Strategy: types.RetryExponential},
	})
	// A 1s base jittered by up to -10s would go negative without the floor.
	for i := 0; i < 50; i++ {
		if got := h.exec.backoff(1); got < MinBackoff {
			t.Fatalf("backoff(1) = %v, want at least %v", got, MinBackoff)
		}
	}
}
