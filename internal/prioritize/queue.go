// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package prioritize orders the discovered-term pool into the diversified
// work queue the search executor walks.
package prioritize

import (
	"math"
	"math/rand"
	"sort"
	"time"

	"github.com/pdiddy/rewards-engine/pkg/types"
)

// Defaults applied by BuildQueue when the config leaves them unset.
const (
	defaultSimilarityThreshold = 0.7
	defaultMinSize             = 50
)

// diversityLookback is how many recently queued terms a candidate
// representative is scored against.
const diversityLookback = 3

// BuildQueue turns the discovered-term pool into a prioritized queue for
// one run. Terms failing the Latin-only filter are dropped, terms on
// cooldown are held back, and the rest are clustered by similarity so
// near-duplicate topics contribute one representative each. The queue
// favors large clusters first and picks each representative to be as
// unlike the most recently queued terms as possible. When fresh terms
// cannot fill the queue to cfg.MinSize, cooling-down terms backfill it,
// soonest expiry first.
//
// The pick of the very first representative is seeded by the calendar
// day, so within a day the queue is deterministic for a given pool but
// varies day to day.
func BuildQueue(pool []string, cooldowns map[string]time.Time, cfg types.QueueConfig, day time.Time) []string {
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = defaultSimilarityThreshold
	}
	minSize := cfg.MinSize
	if minSize <= 0 {
		minSize = defaultMinSize
	}

	var active, cooled []string
	for _, term := range pool {
		if !latinOnly(term) {
			continue
		}
		if _, onCooldown := cooldowns[term]; onCooldown {
			cooled = append(cooled, term)
			continue
		}
		active = append(active, term)
	}

	clusters := clusterBySimilarity(active, threshold)
	sort.SliceStable(clusters, func(i, j int) bool {
		return len(clusters[i]) > len(clusters[j])
	})

	rng := rand.New(rand.NewSource(daySeed(day)))

	var queue []string
	for _, cluster := range clusters {
		if len(queue) == 0 {
			queue = append(queue, cluster[rng.Intn(len(cluster))])
			continue
		}
		queue = append(queue, mostDiverse(cluster, queue))
	}

	if len(queue) < minSize && len(cooled) > 0 {
		sort.SliceStable(cooled, func(i, j int) bool {
			return cooldowns[cooled[i]].Before(cooldowns[cooled[j]])
		})
		need := minSize - len(queue)
		if need > len(cooled) {
			need = len(cooled)
		}
		queue = append(queue, cooled[:need]...)
	}

	if len(queue) > minSize {
		queue = queue[:minSize]
	}
	return queue
}

// clusterBySimilarity groups terms whose pairwise similarity to a cluster
// seed exceeds threshold. Single pass, pool order preserved within each
// cluster.
func clusterBySimilarity(terms []string, threshold float64) [][]string {
	var clusters [][]string
	assigned := make([]bool, len(terms))
	for i, term := range terms {
		if assigned[i] {
			continue
		}
		cluster := []string{term}
		assigned[i] = true
		for j := i + 1; j < len(terms); j++ {
			if assigned[j] {
				continue
			}
			if Similarity(term, terms[j]) > threshold {
				cluster = append(cluster, terms[j])
				assigned[j] = true
			}
		}
		clusters = append(clusters, cluster)
	}
	return clusters
}

// mostDiverse picks the cluster member whose worst-case similarity to the
// most recently queued terms is lowest, spreading adjacent queue entries
// across topics.
func mostDiverse(cluster, queue []string) string {
	recent := queue
	if len(recent) > diversityLookback {
		recent = recent[len(recent)-diversityLookback:]
	}

	best := cluster[0]
	bestScore := math.Inf(1)
	for _, candidate := range cluster {
		worst := 0.0
		for _, queued := range recent {
			if s := Similarity(candidate, queued); s > worst {
				worst = s
			}
		}
		if worst < bestScore {
			bestScore = worst
			best = candidate
		}
	}
	return best
}

// daySeed derives a deterministic RNG seed from the calendar day.
func daySeed(day time.Time) int64 {
	return int64(day.Year())*1000 + int64(day.YearDay())
}
