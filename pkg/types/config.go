package types

import "time"

// HTTPConfig holds shared HTTP settings used by components that make network requests.
type HTTPConfig struct {
	// Timeout is the HTTP request timeout.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`

	// UserAgent is the User-Agent header sent with HTTP requests
	// (e.g. "rewards-engine/0.1").
	UserAgent string `json:"user_agent" yaml:"user_agent"`
}

// DiscoveryConfig holds settings for the term discovery services.
type DiscoveryConfig struct {
	HTTPConfig `yaml:",inline"`

	// TrendsURL is the trending-searches endpoint. Override for tests.
	TrendsURL string `json:"trends_url,omitempty" yaml:"trends_url,omitempty"`

	// SuggestURL is the query-suggestion endpoint. Override for tests.
	SuggestURL string `json:"suggest_url,omitempty" yaml:"suggest_url,omitempty"`

	// Geo is the default two-letter geography code for trend requests
	// when the browser session does not supply one (default "US").
	Geo string `json:"geo" yaml:"geo"`

	// MaxRetries is the retry budget for transient HTTP failures (default 4).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// SuggestionsPerSecond caps the rate of suggestion lookups (default 2).
	SuggestionsPerSecond float64 `json:"suggestions_per_second" yaml:"suggestions_per_second"`
}

// StoreConfig holds settings for the scheduler's persistent state.
type StoreConfig struct {
	// DataDir is the base directory for scheduler state (default "data").
	// It holds the term pool database and the JSON record files.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// SaveThreshold is the number of buffered record mutations that
	// trigger a physical save (default 3).
	SaveThreshold int `json:"save_threshold" yaml:"save_threshold"`

	// BlacklistTTL is how long a failed query variant stays blacklisted
	// for its root term (default 30h).
	BlacklistTTL time.Duration `json:"blacklist_ttl" yaml:"blacklist_ttl"`

	// CooldownTTL is how long a searched root term is kept out of the
	// queue (default 24h).
	CooldownTTL time.Duration `json:"cooldown_ttl" yaml:"cooldown_ttl"`
}

// QueueConfig holds settings for queue prioritization.
type QueueConfig struct {
	// SimilarityThreshold is the Jaccard index above which two terms are
	// treated as near-duplicates and clustered together (default 0.7).
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold"`

	// MinSize is the queue size floor; cooling-down terms backfill the
	// queue up to this many entries when fresh terms run short (default 50).
	MinSize int `json:"min_size" yaml:"min_size"`
}

// RetryStrategy selects how retry delays grow between repeat submissions.
type RetryStrategy string

const (
	RetryExponential RetryStrategy = "exponential"
	RetryConstant    RetryStrategy = "constant"
)

// SearchConfig holds settings for the search executor and session loop.
type SearchConfig struct {
	// MaxRetries is the number of repeat submissions attempted for a root
	// term after the first attempt earns no points (default 4).
	MaxRetries int `json:"max_retries" yaml:"max_retries"`

	// BaseDelay is the delay before the first repeat submission (default 2m).
	BaseDelay time.Duration `json:"base_delay" yaml:"base_delay"`

	// Strategy selects constant or exponential retry delays (default exponential).
	Strategy RetryStrategy `json:"strategy" yaml:"strategy"`

	// FetchMargin is how many terms beyond the remaining search quota a
	// pool top-up requests, so the prioritizer has room to diversify
	// (default 15).
	FetchMargin int `json:"fetch_margin" yaml:"fetch_margin"`

	// CycleGapMin and CycleGapMax bound the randomized pause between
	// submission cycles (defaults 15s and 25s).
	CycleGapMin time.Duration `json:"cycle_gap_min" yaml:"cycle_gap_min"`
	CycleGapMax time.Duration `json:"cycle_gap_max" yaml:"cycle_gap_max"`
}

// PacingConfig holds the burst suppression settings that keep submission
// cadence under the rewards service's automation heuristics.
type PacingConfig struct {
	// BurstThreshold is the consecutive-success count that triggers a
	// suppression pause (default 4).
	BurstThreshold int `json:"burst_threshold" yaml:"burst_threshold"`

	// BurstWindow is the maximum gap between successes for the streak to
	// keep growing (default 150s).
	BurstWindow time.Duration `json:"burst_window" yaml:"burst_window"`

	// PauseBase is the base duration of a suppression pause; a random
	// jitter of up to a minute is added on top (default 30m).
	PauseBase time.Duration `json:"pause_base" yaml:"pause_base"`

	// UnproductiveLimit is the cumulative retry delay for a single root
	// term beyond which the executor pauses instead of grinding on
	// (default 3m).
	UnproductiveLimit time.Duration `json:"unproductive_limit" yaml:"unproductive_limit"`
}

// EngineConfig groups all component configurations for the engine.
type EngineConfig struct {
	Discovery DiscoveryConfig `json:"discovery" yaml:"discovery"`
	Store     StoreConfig     `json:"store" yaml:"store"`
	Queue     QueueConfig     `json:"queue" yaml:"queue"`
	Search    SearchConfig    `json:"search" yaml:"search"`
	Pacing    PacingConfig    `json:"pacing" yaml:"pacing"`
}
