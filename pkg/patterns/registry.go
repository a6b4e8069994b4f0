// Package patterns classifies flagged prompts into extraction-probe
// categories. The engine never blocks on a pattern match - scoring stays
// purely behavioral - but the forensic archive and the admin surface use the
// category labels to make a pile of flagged prompts readable.
//
// All regexes compile once at first use and are shared; classification is a
// read-only scan over the compiled set.
package patterns

import (
	"regexp"
	"sync"
)

// Category is one extraction-probe intent.
type Category string

const (
	// CategoryPromptProbe covers attempts to read the system prompt or
	// hidden instructions.
	CategoryPromptProbe Category = "system_prompt_probe"

	// CategoryModelExtraction covers questions about weights, architecture
	// and internals.
	CategoryModelExtraction Category = "model_extraction"

	// CategoryDistillation covers bulk-generation requests typical of
	// training-data harvesting.
	CategoryDistillation Category = "distillation_harvest"

	// CategoryJailbreak covers instruction-override and persona attacks.
	CategoryJailbreak Category = "jailbreak"

	// CategoryRecon covers probing for deployment details such as sampling
	// parameters, versions and cutoffs.
	CategoryRecon Category = "deployment_recon"

	// CategoryUncategorized is the fallback when no pattern matches. The
	// prompt was flagged behaviorally, just not by textual signature.
	CategoryUncategorized Category = "uncategorized"
)

// Pattern is one compiled probe signature.
type Pattern struct {
	Name     string
	Regex    *regexp.Regexp
	Category Category
	// Severity ranks matches when several categories fire (higher wins).
	Severity int
}

// Registry holds the compiled probe signatures, organized by category.
type Registry struct {
	byCategory map[Category][]*Pattern
	all        []*Pattern
}

var (
	globalRegistry *Registry
	initOnce       sync.Once
)

// Get returns the shared registry, compiling the signatures on first use.
func Get() *Registry {
	initOnce.Do(func() {
		globalRegistry = newRegistry()
	})
	return globalRegistry
}

func newRegistry() *Registry {
	r := &Registry{
		byCategory: make(map[Category][]*Pattern),
	}
	r.registerPromptProbePatterns()
	r.registerModelExtractionPatterns()
	r.registerDistillationPatterns()
	r.registerJailbreakPatterns()
	r.registerReconPatterns()
	return r
}

func (r *Registry) register(name, pattern string, category Category, severity int) {
	p := &Pattern{
		Name:     name,
		Regex:    regexp.MustCompile(pattern),
		Category: category,
		Severity: severity,
	}
	r.byCategory[category] = append(r.byCategory[category], p)
	r.all = append(r.all, p)
}

// Classify returns the highest-severity category matching the text, with the
// specific pattern that fired. Unmatched text classifies as uncategorized.
func (r *Registry) Classify(text string) (Category, *Pattern) {
	var best *Pattern
	for _, p := range r.all {
		if best != nil && p.Severity <= best.Severity {
			continue
		}
		if p.Regex.MatchString(text) {
			best = p
		}
	}
	if best == nil {
		return CategoryUncategorized, nil
	}
	return best.Category, best
}

// MatchAll returns every pattern that fires on the text, across all
// categories. For forensic reports that want the full signature set.
func (r *Registry) MatchAll(text string) []*Pattern {
	var matches []*Pattern
	for _, p := range r.all {
		if p.Regex.MatchString(text) {
			matches = append(matches, p)
		}
	}
	return matches
}

// CategoryCount returns the number of signatures in a category.
func (r *Registry) CategoryCount(cat Category) int {
	return len(r.byCategory[cat])
}

// TotalPatterns returns the number of compiled signatures.
func (r *Registry) TotalPatterns() int {
	return len(r.all)
}
