// Package engine orchestrates one query through the full pipeline: score the
// caller, decide a tier, generate the clean answer, perturb it when flagged,
// and commit the forensic trail.
package engine

import (
	"context"
	"fmt"
	"hash/fnv"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/miragesec/mirage/pkg/embedding"
	"github.com/miragesec/mirage/pkg/forensics"
	"github.com/miragesec/mirage/pkg/generation"
	"github.com/miragesec/mirage/pkg/noise"
	"github.com/miragesec/mirage/pkg/scoring"
	"github.com/miragesec/mirage/pkg/session"
	"github.com/miragesec/mirage/pkg/store"
)

// lockStripes is the number of per-identity mutex stripes. Requests for the
// same identity serialize; distinct identities almost never contend.
const lockStripes = 64

// LedgerNotifier schedules an asynchronous ledger submission.
type LedgerNotifier interface {
	Dispatch(identity string, score, durationMinutes float64)
}

// QueryResult is everything one processed request produced.
type QueryResult struct {
	Response        string  `json:"response"`
	Tier            int     `json:"tier"`
	HybridScore     float64 `json:"hybrid_score"`
	DurationMinutes float64 `json:"duration_minutes"`

	VelocityScore  float64 `json:"velocity_score"`
	DiversityScore float64 `json:"diversity_score"`
	RPM            float64 `json:"rpm"`

	// Perturbed reports whether the served text differs from the clean
	// generation; Exhausted marks a tier >= 2 request that fell back to
	// clean text because no perturbation produced a delta.
	Perturbed bool   `json:"perturbed"`
	Exhausted bool   `json:"exhausted,omitempty"`
	AuditID   string `json:"audit_id"`
}

// Engine wires the collaborators together. All fields are set at construction
// and never mutated, so Engine methods are safe for concurrent use.
type Engine struct {
	records   store.RecordStore
	diversity *scoring.DiversityScorer
	generator generation.Generator
	pipeline  *noise.Pipeline
	ledger    LedgerNotifier
	archive   *forensics.Archive

	policy     scoring.TierPolicy
	weights    scoring.Weights
	rpmCeiling float64

	locks [lockStripes]sync.Mutex

	// now is swappable in tests.
	now func() time.Time
}

// Options carries optional engine knobs; zero values fall back to defaults.
type Options struct {
	Policy     scoring.TierPolicy
	Weights    scoring.Weights
	RPMCeiling float64

	// Ledger and Archive are optional. A nil ledger disables tier-3
	// notification; a nil archive disables the forensic prompt index.
	Ledger  LedgerNotifier
	Archive *forensics.Archive
}

// New builds an engine over the required collaborators.
func New(records store.RecordStore, embedder embedding.Embedder, generator generation.Generator, pipeline *noise.Pipeline, opts Options) (*Engine, error) {
	if records == nil {
		return nil, fmt.Errorf("record store is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if pipeline == nil {
		return nil, fmt.Errorf("noise pipeline is required")
	}

	if opts.Policy == (scoring.TierPolicy{}) {
		opts.Policy = scoring.DefaultTierPolicy()
	}
	if opts.Weights == (scoring.Weights{}) {
		opts.Weights = scoring.DefaultWeights()
	}
	if opts.RPMCeiling <= 0 {
		opts.RPMCeiling = scoring.DefaultRPMCeiling
	}

	return &Engine{
		records:    records,
		diversity:  scoring.NewDiversityScorer(embedder),
		generator:  generator,
		pipeline:   pipeline,
		ledger:     opts.Ledger,
		archive:    opts.Archive,
		policy:     opts.Policy,
		weights:    opts.Weights,
		rpmCeiling: opts.RPMCeiling,
		now:        func() time.Time { return time.Now().UTC() },
	}, nil
}

// HandleQuery processes one request end to end. Per-identity processing is
// serialized so concurrent requests from the same caller observe a consistent
// timestamp ring and embedding anchor.
func (e *Engine) HandleQuery(ctx context.Context, identity, prompt string) (*QueryResult, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: identity is required", ErrBadRequest)
	}
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrBadRequest)
	}

	lock := e.lockFor(identity)
	lock.Lock()
	defer lock.Unlock()

	sess, err := e.records.GetSession(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("%w: load session: %v", ErrPersistence, err)
	}

	now := e.now()

	// asLoaded snapshots the pre-request state. A fresh latch is persisted
	// against it so a failure later in the request commits nothing else.
	asLoaded := sess.Clone()

	sess.AppendTimestamp(now)
	sess.TotalQueries++

	// Threat signals.
	rpm := scoring.RequestsPerMinute(sess.RecentTimestamps, now)
	vScore := scoring.VelocityScore(rpm, e.rpmCeiling)

	dScore, embeddingVec, err := e.diversity.Score(ctx, prompt, sess.LastQueryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("%w: diversity signal: %v", ErrScoring, err)
	}

	hybrid := scoring.HybridScore(vScore, dScore, e.weights)
	decision := e.policy.Evaluate(sess, hybrid, now)

	// A fresh latch is persisted before anything is served: only the anchor
	// lands now, on the pre-request state; the ring and counters commit
	// after generation succeeds. If the anchor cannot be recorded the
	// request fails closed; a lost anchor would let a flagged identity
	// restart its escalation clock.
	if decision.Latched {
		anchor := *sess.FirstSeenAt
		asLoaded.FirstSeenAt = &anchor
		if err := e.records.PutSession(ctx, asLoaded); err != nil {
			return nil, fmt.Errorf("%w: persist escalation anchor: %v", ErrPersistence, err)
		}
	}

	clean, err := e.generator.Generate(ctx, prompt)
	if err != nil {
		// The latch (if any) stays; everything else is uncommitted.
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	served := clean
	exhausted := false
	if decision.Tier >= scoring.TierPerturbed {
		perturbed := e.pipeline.Perturb(clean)
		served = perturbed.Served
		exhausted = perturbed.Exhausted
	}

	sess.LastQueryEmbedding = embeddingVec
	sess.DynamicMeanRPM = rpm
	sess.Tier = decision.Tier

	// Commit state on a detached context: a caller that disconnects after
	// generation still had its request scored and must pay for it.
	commitCtx := context.WithoutCancel(ctx)
	if err := e.records.PutSession(commitCtx, sess); err != nil {
		return nil, fmt.Errorf("%w: persist session: %v", ErrPersistence, err)
	}

	rec := &session.AuditRecord{
		ID:                    uuid.NewString(),
		Identity:              identity,
		Timestamp:             now,
		Prompt:                prompt,
		CleanResponse:         clean,
		ServedResponse:        served,
		Tier:                  decision.Tier,
		HybridScore:           hybrid,
		DurationMinutes:       decision.DurationMinutes,
		PerturbationExhausted: exhausted,
	}
	if err := e.records.AppendAudit(commitCtx, rec); err != nil {
		log.Printf("[ENGINE] failed to append audit record for %s: %v", identity, err)
	}

	if decision.Tier >= scoring.TierPerturbed && e.archive != nil {
		go e.archive.Record(context.Background(), rec.ID, identity, prompt, decision.Tier, hybrid)
	}

	if decision.Tier == scoring.TierAudited && e.ledger != nil {
		e.ledger.Dispatch(identity, hybrid, decision.DurationMinutes)
	}

	return &QueryResult{
		Response:        served,
		Tier:            decision.Tier,
		HybridScore:     hybrid,
		DurationMinutes: decision.DurationMinutes,
		VelocityScore:   vScore,
		DiversityScore:  dScore,
		RPM:             rpm,
		Perturbed:       served != clean,
		Exhausted:       exhausted,
		AuditID:         rec.ID,
	}, nil
}

// Score computes the threat signals for a prompt without serving it or
// committing state. Used by the offline score subcommand and the admin
// what-if endpoint.
func (e *Engine) Score(ctx context.Context, identity, prompt string) (*QueryResult, error) {
	if identity == "" {
		return nil, fmt.Errorf("%w: identity is required", ErrBadRequest)
	}
	if prompt == "" {
		return nil, fmt.Errorf("%w: prompt is required", ErrBadRequest)
	}

	sess, err := e.records.GetSession(ctx, identity)
	if err != nil {
		return nil, fmt.Errorf("%w: load session: %v", ErrPersistence, err)
	}

	now := e.now()
	hypothetical := sess.Clone()
	hypothetical.AppendTimestamp(now)

	rpm := scoring.RequestsPerMinute(hypothetical.RecentTimestamps, now)
	vScore := scoring.VelocityScore(rpm, e.rpmCeiling)
	dScore, _, err := e.diversity.Score(ctx, prompt, sess.LastQueryEmbedding)
	if err != nil {
		return nil, fmt.Errorf("%w: diversity signal: %v", ErrScoring, err)
	}
	hybrid := scoring.HybridScore(vScore, dScore, e.weights)
	decision := e.policy.Evaluate(hypothetical, hybrid, now)

	return &QueryResult{
		Tier:            decision.Tier,
		HybridScore:     hybrid,
		DurationMinutes: decision.DurationMinutes,
		VelocityScore:   vScore,
		DiversityScore:  dScore,
		RPM:             rpm,
	}, nil
}

func (e *Engine) lockFor(identity string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(identity))
	return &e.locks[h.Sum32()%lockStripes]
}
