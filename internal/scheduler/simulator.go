// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package scheduler

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pdiddy/rewards-engine/pkg/types"
)

// SimulatorConfig seeds a Simulator.
type SimulatorConfig struct {
	// Desktop and Mobile are the starting remaining quotas
	// (defaults 20 and 10).
	Desktop int
	Mobile  int

	// PointsPer is the award for one accepted search (default 5).
	PointsPer int

	// FailRate is the share of submissions the simulated service
	// rejects without awarding points, in [0, 1).
	FailRate float64

	// Seed fixes the rejection sequence; 0 derives one from the clock.
	Seed int64

	// Language and Geo are returned by Locale (defaults "en", "US").
	Language string
	Geo      string
}

// Simulator is an in-memory Browser for rehearsal runs and tests. It
// models a rewards account with a fixed quota: an accepted submission
// earns points and consumes one remaining search (desktop first), while
// a configurable share of submissions is rejected and changes nothing.
type Simulator struct {
	mu        sync.Mutex
	points    int
	remaining types.RemainingSearches
	pointsPer int
	failRate  float64
	language  string
	geo       string
	rng       *rand.Rand
}

// NewSimulator returns a simulator with zero config fields defaulted.
func NewSimulator(cfg SimulatorConfig) *Simulator {
	if cfg.Desktop <= 0 {
		cfg.Desktop = 20
	}
	if cfg.Mobile <= 0 {
		cfg.Mobile = 10
	}
	if cfg.PointsPer <= 0 {
		cfg.PointsPer = 5
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}
	if cfg.Language == "" {
		cfg.Language = "en"
	}
	if cfg.Geo == "" {
		cfg.Geo = "US"
	}
	return &Simulator{
		remaining: types.RemainingSearches{Desktop: cfg.Desktop, Mobile: cfg.Mobile},
		pointsPer: cfg.PointsPer,
		failRate:  cfg.FailRate,
		language:  cfg.Language,
		geo:       cfg.Geo,
		rng:       rand.New(rand.NewSource(cfg.Seed)),
	}
}

func (s *Simulator) AccountPoints(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.points, nil
}

func (s *Simulator) RemainingSearches(ctx context.Context) (types.RemainingSearches, error) {
	if err := ctx.Err(); err != nil {
		return types.RemainingSearches{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remaining, nil
}

func (s *Simulator) SubmitQuery(ctx context.Context, query string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	// A rejected submission goes through at the UI level but earns
	// nothing, which is how the real service presents it.
	if s.rng.Float64() < s.failRate {
		return nil
	}
	switch {
	case s.remaining.Desktop > 0:
		s.remaining.Desktop--
	case s.remaining.Mobile > 0:
		s.remaining.Mobile--
	default:
		return nil
	}
	s.points += s.pointsPer
	return nil
}

func (s *Simulator) Locale() (language, geo string) {
	return s.language, s.geo
}

// --- offline term source ---

var (
	simTopics = []string{
		"weather forecast", "movie releases", "pasta recipes", "road trip",
		"premier league", "stock market", "hiking trails", "coffee brewing",
		"electric cars", "home workout",
	}
	simQualifiers = []string{
		"today", "near me", "this week", "for beginners", "best of",
		"latest news", "tips",
	}
)

// SimulatedTerms is an offline TermSource that fabricates trending terms
// and query variants, so rehearsal runs need no network at all. Terms
// are generated in a deterministic sequence that never repeats.
type SimulatedTerms struct {
	mu     sync.Mutex
	serial int
}

// NewSimulatedTerms returns a fresh generator.
func NewSimulatedTerms() *SimulatedTerms {
	return &SimulatedTerms{}
}

func (s *SimulatedTerms) TrendingTerms(ctx context.Context, count int, geo string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if count <= 0 {
		count = len(simTopics)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	terms := make([]string, 0, count)
	for i := 0; i < count; i++ {
		n := s.serial
		s.serial++
		topic := simTopics[n%len(simTopics)]
		qual := simQualifiers[(n/len(simTopics))%len(simQualifiers)]
		term := topic + " " + qual
		if round := n / (len(simTopics) * len(simQualifiers)); round > 0 {
			term = fmt.Sprintf("%s %d", term, round+1)
		}
		terms = append(terms, term)
	}
	return terms, nil
}

func (s *SimulatedTerms) Variants(ctx context.Context, term string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return []string{term}, err
	}
	return []string{
		term,
		term + " guide",
		term + " explained",
		term + " reviews",
	}, nil
}
