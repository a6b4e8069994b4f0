package noise

import (
	"log"
	"math/rand"
	"sync"
	"time"
)

// Result is the outcome of one perturbation run.
type Result struct {
	// Served is the text to return to the caller. Differs from the clean
	// input unless Exhausted is true.
	Served string

	// Applied lists the strategies that ran, in order. Fallback passes are
	// included.
	Applied []string

	// Exhausted is true when every strategy failed to produce a textual
	// delta (e.g. a one-word reply with no substitution target). The clean
	// text is served and the event is flagged for audit.
	Exhausted bool
}

// Pipeline composes perturbation strategies with a difference guarantee:
// for any text with at least one eligible token, the served output differs
// from the clean input. Internal failures degrade to the next strategy and
// never surface to the caller.
type Pipeline struct {
	primary  Strategy   // attempted first: most reliable at producing a delta
	extras   []Strategy // sampled per request
	fallback []Strategy // forced, in order, when the composed pass was a no-op

	// MaxExtras bounds how many sampled strategies run after the primary.
	maxExtras int

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPipeline builds the standard pipeline: lexical substitution first,
// one sampled extra from {truncation, reordering, filler insertion, framing},
// and a lexical-then-framing forced fallback.
func NewPipeline(synonyms SynonymSource) *Pipeline {
	lexical := NewLexicalSubstitution(synonyms)
	return &Pipeline{
		primary:   lexical,
		extras:    []Strategy{Truncation{}, Reordering{}, FillerInsertion{}, Framing{}},
		fallback:  []Strategy{lexical, Framing{}},
		maxExtras: 1,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// WithRand swaps the randomness source. Tests use a seeded source for
// reproducible strategy selection.
func (p *Pipeline) WithRand(rng *rand.Rand) *Pipeline {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rng = rng
	return p
}

// Perturb runs the composition policy over the clean text. Never panics and
// never alters the clean input; callers may serve Result.Served directly.
func (p *Pipeline) Perturb(clean string) (result Result) {
	result = Result{Served: clean}

	// A strategy bug must degrade, not take down the request path.
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[NOISE] strategy panic recovered, serving clean text: %v", r)
			result = Result{Served: clean, Exhausted: true}
		}
	}()

	p.mu.Lock()
	defer p.mu.Unlock()

	served := p.primary.Apply(clean, p.rng)
	result.Applied = append(result.Applied, p.primary.Name())

	extraCount := 1
	if p.maxExtras > 1 {
		extraCount += p.rng.Intn(p.maxExtras)
	}
	order := p.rng.Perm(len(p.extras))
	for _, idx := range order[:minInt(extraCount, len(order))] {
		served = p.extras[idx].Apply(served, p.rng)
		result.Applied = append(result.Applied, p.extras[idx].Name())
	}

	if served != clean {
		result.Served = served
		return result
	}

	// Difference guarantee: force the fallback chain until a delta appears.
	for _, s := range p.fallback {
		served = s.Apply(served, p.rng)
		result.Applied = append(result.Applied, s.Name())
		if served != clean {
			result.Served = served
			return result
		}
	}

	// Nothing eligible anywhere (e.g. a bare number or one-word reply).
	result.Served = clean
	result.Exhausted = true
	return result
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
