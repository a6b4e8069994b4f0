// Package session defines the per-identity state tracked across requests and
// the append-only audit records written for every processed query.
package session

import (
	"time"
)

// MaxRecentTimestamps caps the per-identity timestamp ring. Oldest entries are
// dropped first (count-based FIFO, not time-based eviction).
const MaxRecentTimestamps = 50

// Identity is the stateful record for one caller identity. One exists per
// distinct caller key; it is created lazily on first request and never deleted
// by the engine (retention is an external concern).
type Identity struct {
	// ID is the opaque stable caller key, primary key for the record.
	ID string `json:"identity"`

	// FirstSeenAt is the escalation anchor: nil until the hybrid score first
	// crosses the escalation threshold, then latched forever. Duration-based
	// tiering is measured from this point.
	FirstSeenAt *time.Time `json:"first_seen_at,omitempty"`

	// LastActiveAt is the timestamp of the most recent request.
	// Monotonically non-decreasing.
	LastActiveAt time.Time `json:"last_active_at"`

	// RecentTimestamps holds the last MaxRecentTimestamps request times,
	// oldest first. Input to the velocity signal.
	RecentTimestamps []time.Time `json:"recent_timestamps,omitempty"`

	// LastQueryEmbedding is the embedding of the previous query, or nil for a
	// brand-new identity. Overwritten every request.
	LastQueryEmbedding []float32 `json:"last_query_embedding,omitempty"`

	// DynamicMeanRPM caches the last computed velocity value for dashboards.
	DynamicMeanRPM float64 `json:"dynamic_mean_rpm"`

	// TotalQueries counts completed requests since creation.
	TotalQueries int64 `json:"total_queries"`

	// Tier caches the last computed tier (1/2/3) for reporting only. It is
	// recomputed fresh on every request and never trusted as input.
	Tier int `json:"tier"`

	// LedgerTx and LedgerHashID record the most recent successful ledger
	// submission for this identity (tier 3 only). Best effort.
	LedgerTx     string `json:"ledger_tx,omitempty"`
	LedgerHashID string `json:"ledger_hash_id,omitempty"`
}

// NewIdentity returns a fresh identity record with all derived fields zeroed.
func NewIdentity(id string, now time.Time) *Identity {
	return &Identity{
		ID:           id,
		LastActiveAt: now,
		Tier:         1,
	}
}

// AppendTimestamp records a request time on the identity, trimming the ring
// to MaxRecentTimestamps (oldest discarded first).
func (s *Identity) AppendTimestamp(ts time.Time) {
	s.RecentTimestamps = append(s.RecentTimestamps, ts)
	if len(s.RecentTimestamps) > MaxRecentTimestamps {
		s.RecentTimestamps = s.RecentTimestamps[len(s.RecentTimestamps)-MaxRecentTimestamps:]
	}
	if ts.After(s.LastActiveAt) {
		s.LastActiveAt = ts
	}
}

// ActiveDuration returns the minutes elapsed between the escalation anchor and
// the given time, or 0 if the identity was never flagged. Negative durations
// are clamped to 0.
func (s *Identity) ActiveDuration(now time.Time) float64 {
	if s.FirstSeenAt == nil {
		return 0
	}
	mins := now.Sub(*s.FirstSeenAt).Minutes()
	if mins < 0 {
		return 0
	}
	return mins
}

// Clone returns a deep copy so callers can mutate request-scoped state without
// aliasing store-owned slices.
func (s *Identity) Clone() *Identity {
	cp := *s
	if s.RecentTimestamps != nil {
		cp.RecentTimestamps = append([]time.Time(nil), s.RecentTimestamps...)
	}
	if s.LastQueryEmbedding != nil {
		cp.LastQueryEmbedding = append([]float32(nil), s.LastQueryEmbedding...)
	}
	if s.FirstSeenAt != nil {
		t := *s.FirstSeenAt
		cp.FirstSeenAt = &t
	}
	return &cp
}

// AuditRecord is one immutable forensic entry per processed request. The clean
// answer is always preserved even when a perturbed answer was served.
type AuditRecord struct {
	ID              string    `json:"id"`
	Identity        string    `json:"identity"`
	Timestamp       time.Time `json:"timestamp"`
	Prompt          string    `json:"prompt"`
	CleanResponse   string    `json:"clean_response"`
	ServedResponse  string    `json:"served_response"`
	Tier            int       `json:"tier"`
	HybridScore     float64   `json:"hybrid_score"`
	DurationMinutes float64   `json:"duration_minutes"`

	// PerturbationExhausted marks requests where tier >= 2 demanded a delta
	// but no strategy found an eligible target, so clean text was served.
	PerturbationExhausted bool `json:"perturbation_exhausted,omitempty"`
}

// NoisyServed reports whether the caller saw something other than the clean
// generation.
func (r *AuditRecord) NoisyServed() bool {
	return r.ServedResponse != r.CleanResponse
}

// LedgerEvent records one accepted submission to the external audit ledger.
type LedgerEvent struct {
	ID        string    `json:"id"`
	Identity  string    `json:"identity"`
	Timestamp time.Time `json:"timestamp"`
	Tier      int       `json:"tier"`
	TxHash    string    `json:"tx_hash,omitempty"`
	HashID    string    `json:"hash_id,omitempty"`
	Status    string    `json:"status"`
}
