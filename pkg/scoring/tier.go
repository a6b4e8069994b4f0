package scoring

import (
	"time"

	"github.com/miragesec/mirage/pkg/session"
)

// Response tiers. Tier 1 serves the clean generation, tier 2 routes it
// through the noise pipeline, tier 3 additionally notifies the audit ledger.
const (
	TierClean     = 1
	TierPerturbed = 2
	TierAudited   = 3
)

// TierPolicy is the tier decision table plus the escalation threshold.
// Boundary operators are inclusive (>=) except Tier3MinMinutes which is
// strict (>); both edges are pinned by tests so a deployment tuning these
// values knows exactly which side each boundary falls on.
type TierPolicy struct {
	// EscalationThreshold is the hybrid score at which an identity's
	// first-seen latch is set.
	EscalationThreshold float64 `yaml:"escalation_threshold"`

	// Tier3Score and Tier3MinMinutes gate tier 3: score >= Tier3Score AND
	// sustained duration strictly greater than Tier3MinMinutes.
	Tier3Score      float64 `yaml:"tier3_score"`
	Tier3MinMinutes float64 `yaml:"tier3_min_minutes"`

	// Tier2Score gates tier 2 on score alone; Tier2MinMinutes and
	// Tier2MaxMinutes gate it on sustained duration (inclusive range).
	Tier2Score      float64 `yaml:"tier2_score"`
	Tier2MinMinutes float64 `yaml:"tier2_min_minutes"`
	Tier2MaxMinutes float64 `yaml:"tier2_max_minutes"`
}

// DefaultTierPolicy returns the reference thresholds.
func DefaultTierPolicy() TierPolicy {
	return TierPolicy{
		EscalationThreshold: 0.65,
		Tier3Score:          0.95,
		Tier3MinMinutes:     10,
		Tier2Score:          0.8,
		Tier2MinMinutes:     2,
		Tier2MaxMinutes:     10,
	}
}

// TierDecision is the outcome of one state-machine evaluation.
type TierDecision struct {
	Tier            int
	DurationMinutes float64

	// Latched is true when this request set the identity's first-seen
	// anchor. The caller must persist the anchor before serving; a failed
	// persist fails the request closed.
	Latched bool
}

// Evaluate runs the tier state machine for one request. The identity value is
// mutated in place (latch only); everything else is derived fresh so that
// re-running with identical state and signals yields an identical decision.
//
// The first-seen latch is one-way: once an identity crosses the escalation
// threshold it stays flagged for the lifetime of the record. There is no
// decay.
func (p TierPolicy) Evaluate(sess *session.Identity, hybridScore float64, now time.Time) TierDecision {
	decision := TierDecision{Tier: TierClean}

	if sess.FirstSeenAt == nil && hybridScore >= p.EscalationThreshold {
		anchor := now
		sess.FirstSeenAt = &anchor
		decision.Latched = true
	}

	decision.DurationMinutes = sess.ActiveDuration(now)

	// First match wins; the three branches cover every (score, duration)
	// pair so no input falls through without a tier.
	switch {
	case hybridScore >= p.Tier3Score && decision.DurationMinutes > p.Tier3MinMinutes:
		decision.Tier = TierAudited
	case hybridScore >= p.Tier2Score ||
		(decision.DurationMinutes >= p.Tier2MinMinutes && decision.DurationMinutes <= p.Tier2MaxMinutes):
		decision.Tier = TierPerturbed
	default:
		decision.Tier = TierClean
	}

	return decision
}
