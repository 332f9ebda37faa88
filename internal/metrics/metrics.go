// Package metrics holds the Prometheus counters of the matching core.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Match paths.
const (
	PathRealtime     = "realtime"
	PathIntroduction = "introduction"
)

// Scoring fallback reasons.
const (
	FallbackError = "error"
	FallbackEmpty = "empty"
)

var (
	// MatchesCreated counts materialized matches by path.
	MatchesCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_matches_created_total",
		Help: "Total number of matches materialized, by matching path",
	}, []string{"path"})

	// ScoringFallbacks counts real-time attempts that used the nominal fallback score.
	ScoringFallbacks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "muzz_scoring_fallback_total",
		Help: "Total number of real-time scoring fallbacks, by reason",
	}, []string{"reason"})

	IntroductionsGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muzz_introductions_generated_total",
		Help: "Total number of introduction candidates persisted",
	})

	// QueueClaimConflicts counts lost races on the atomic queue claim.
	QueueClaimConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "muzz_queue_claim_conflicts_total",
		Help: "Total number of queue pair claims lost to a concurrent matcher",
	})
)
