// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package discovery fetches candidate root terms from the trending
// searches service and expands them into query variants through the
// suggestion service.
package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pdiddy/rewards-engine/internal/httputil"
	"github.com/pdiddy/rewards-engine/pkg/types"
)

// Defaults applied by New when the config leaves them unset.
const (
	defaultTrendsURL  = "https://trends.google.com/_/TrendsUi/data/batchexecute"
	defaultSuggestURL = "https://api.bing.com/osjson.aspx"
	defaultTimeout    = 30 * time.Second
	defaultUserAgent  = "rewards-engine/0.1"
	defaultPerSecond  = 2.0
	defaultGeo        = "US"
)

// Client queries the two term discovery services. Suggestion lookups are
// rate limited because the executor issues one per queued root on every
// queue walk.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	cfg     types.DiscoveryConfig
}

// New returns a Client for the configured endpoints, with unset fields
// defaulted.
func New(cfg types.DiscoveryConfig) *Client {
	if cfg.TrendsURL == "" {
		cfg.TrendsURL = defaultTrendsURL
	}
	if cfg.SuggestURL == "" {
		cfg.SuggestURL = defaultSuggestURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Geo == "" {
		cfg.Geo = defaultGeo
	}
	perSecond := cfg.SuggestionsPerSecond
	if perSecond <= 0 {
		perSecond = defaultPerSecond
	}

	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		cfg:     cfg,
	}
}

// TrendingTerms fetches up to count trending search topics for a
// geography over the last 48 hours. Topics come back lowercased and
// deduplicated, in the order the service reported them. When geo is
// empty the configured default applies. A failed or malformed fetch
// returns an error and no terms; callers treat that as "no new terms
// this cycle" rather than fatal.
func (c *Client) TrendingTerms(ctx context.Context, count int, geo string) ([]string, error) {
	if geo == "" {
		geo = c.cfg.Geo
	}

	// The batchexecute envelope. The inner argument is a JSON string
	// embedded in the form payload; 48 is the trailing-hours window.
	payload := fmt.Sprintf(`f.req=[[[i0OFE,"[null, null, \"%s\", 0, null, 48]"]]]`, geo)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TrendsURL, strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating trends request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.cfg.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("trends request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("trends service returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading trends response: %w", err)
	}

	topics, err := decodeTrendsPayload(string(body))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(topics))
	var terms []string
	for _, topic := range topics {
		term := strings.ToLower(topic)
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		terms = append(terms, term)
	}

	if count > 0 && len(terms) > count {
		terms = terms[:count]
	}
	return terms, nil
}

// decodeTrendsPayload digs the topic list out of the batchexecute
// response: the body is line-oriented, one line is a JSON envelope, its
// third element is a JSON document encoded as a string, and that
// document's second element lists the trend items.
func decodeTrendsPayload(text string) ([]string, error) {
	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if !strings.HasPrefix(trimmed, "[") || !strings.HasSuffix(trimmed, "]") {
			continue
		}
		topics, err := decodeTrendsLine(trimmed)
		if err != nil {
			continue
		}
		return topics, nil
	}
	return nil, fmt.Errorf("no trends payload found in response")
}

func decodeTrendsLine(line string) ([]string, error) {
	var envelope []json.RawMessage
	if err := json.Unmarshal([]byte(line), &envelope); err != nil {
		return nil, err
	}
	if len(envelope) == 0 {
		return nil, fmt.Errorf("empty envelope")
	}

	var first []json.RawMessage
	if err := json.Unmarshal(envelope[0], &first); err != nil {
		return nil, err
	}
	if len(first) < 3 {
		return nil, fmt.Errorf("envelope shorter than expected")
	}

	var embedded string
	if err := json.Unmarshal(first[2], &embedded); err != nil {
		return nil, err
	}

	var doc []json.RawMessage
	if err := json.Unmarshal([]byte(embedded), &doc); err != nil {
		return nil, err
	}
	if len(doc) < 2 {
		return nil, fmt.Errorf("trends document shorter than expected")
	}

	var items [][]json.RawMessage
	if err := json.Unmarshal(doc[1], &items); err != nil {
		return nil, err
	}

	var topics []string
	for _, item := range items {
		if len(item) == 0 {
			continue
		}
		var topic string
		if err := json.Unmarshal(item[0], &topic); err != nil {
			continue
		}
		topics = append(topics, topic)
	}
	if len(topics) == 0 {
		return nil, fmt.Errorf("no topics in trends document")
	}
	return topics, nil
}

// Variants expands a root term into submittable query variants via the
// suggestion service. It never returns an empty slice: on a failed call
// or an empty suggestion list the root term itself is the only variant,
// so the term stays schedulable. The error, when non-nil, reports the
// underlying failure for logging alongside the fallback.
func (c *Client) Variants(ctx context.Context, term string) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return []string{term}, err
	}

	u := c.cfg.SuggestURL + "?" + url.Values{"query": {term}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return []string{term}, fmt.Errorf("creating suggestion request: %w", err)
	}
	req.Header.Set("User-Agent", c.cfg.UserAgent)

	resp, err := httputil.DoWithRetry(ctx, c.http, req, c.cfg.MaxRetries)
	if err != nil {
		return []string{term}, fmt.Errorf("suggestion request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return []string{term}, fmt.Errorf("suggestion service returned HTTP %d", resp.StatusCode)
	}

	// Response shape: [query, [suggestion, ...]].
	var doc []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return []string{term}, fmt.Errorf("parsing suggestion response: %w", err)
	}
	if len(doc) < 2 {
		return []string{term}, fmt.Errorf("suggestion response shorter than expected")
	}

	var suggestions []string
	if err := json.Unmarshal(doc[1], &suggestions); err != nil {
		return []string{term}, fmt.Errorf("parsing suggestion list: %w", err)
	}
	if len(suggestions) == 0 {
		return []string{term}, nil
	}
	return suggestions, nil
}
