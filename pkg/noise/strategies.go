package noise

import (
	"math/rand"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Strategy is one independent text perturbation. Implementations are pure
// text-to-text: no I/O, no errors, and they return the input unchanged when
// the text offers nothing to perturb.
type Strategy interface {
	// Name identifies the strategy in audit logs and tests.
	Name() string

	// Apply perturbs text using the provided randomness source.
	Apply(text string, rng *rand.Rand) string
}

// stopwords are never substitution targets: swapping them reads as broken
// English immediately.
var stopwords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {},
	"is": {}, "are": {}, "was": {}, "were": {}, "be": {}, "been": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"it": {}, "its": {}, "this": {}, "that": {}, "with": {}, "as": {},
	"by": {}, "from": {}, "not": {}, "no": {}, "so": {}, "if": {},
}

var titleCaser = cases.Title(language.English)

// ============================================================================
// STRATEGY 1: LEXICAL SUBSTITUTION
// ============================================================================

// LexicalSubstitution replaces a fraction of content words with close
// alternatives from a synonym source. The most reliable strategy at producing
// a textual delta, so the pipeline always attempts it first.
type LexicalSubstitution struct {
	Synonyms SynonymSource
	// Ratio is the fraction of eligible words to replace (minimum one word).
	Ratio float64
}

// NewLexicalSubstitution uses the built-in table and a 25% replacement ratio.
func NewLexicalSubstitution(source SynonymSource) *LexicalSubstitution {
	return &LexicalSubstitution{Synonyms: source, Ratio: 0.25}
}

func (s *LexicalSubstitution) Name() string { return "lexical_substitution" }

// Apply replaces up to Ratio of the eligible tokens. Eligible means: bare
// word is alphabetic, longer than 2 characters, and not a stopword. The
// leading capitalization of the original token is preserved.
func (s *LexicalSubstitution) Apply(text string, rng *rand.Rand) string {
	tokens := Words(text)
	if len(tokens) == 0 {
		return text
	}

	var eligible []int
	for i, tok := range tokens {
		_, word, _ := coreWord(tok)
		if !isAlphabetic(word) || len(word) <= 2 {
			continue
		}
		if _, stop := stopwords[strings.ToLower(word)]; stop {
			continue
		}
		if len(s.Synonyms.Synonyms(word)) == 0 {
			continue
		}
		eligible = append(eligible, i)
	}
	if len(eligible) == 0 {
		return text
	}

	ratio := s.Ratio
	if ratio <= 0 {
		ratio = 0.25
	}
	k := int(float64(len(eligible)) * ratio)
	if k < 1 {
		k = 1
	}
	if k > len(eligible) {
		k = len(eligible)
	}

	rng.Shuffle(len(eligible), func(i, j int) {
		eligible[i], eligible[j] = eligible[j], eligible[i]
	})

	out := append([]string(nil), tokens...)
	for _, idx := range eligible[:k] {
		prefix, word, suffix := coreWord(tokens[idx])
		alts := s.Synonyms.Synonyms(word)
		replacement := alts[rng.Intn(len(alts))]
		if startsUpper(word) {
			replacement = capitalizeFirstWord(replacement)
		}
		out[idx] = prefix + replacement + suffix
	}
	return strings.Join(out, " ")
}

func startsUpper(word string) bool {
	for _, r := range word {
		return unicode.IsUpper(r)
	}
	return false
}

// capitalizeFirstWord title-cases only the leading word of a possibly
// multi-word replacement ("seat of government" -> "Seat of government").
func capitalizeFirstWord(phrase string) string {
	parts := strings.SplitN(phrase, " ", 2)
	parts[0] = titleCaser.String(parts[0])
	return strings.Join(parts, " ")
}

// ============================================================================
// STRATEGY 2: TRUNCATION
// ============================================================================

// Truncation drops a random suffix of sentences, retaining roughly 60-85% of
// them and never fewer than 2. No-op for texts of 2 or fewer sentences.
type Truncation struct{}

func (Truncation) Name() string { return "truncation" }

func (Truncation) Apply(text string, rng *rand.Rand) string {
	sentences := Sentences(text)
	if len(sentences) <= 2 {
		return text
	}

	keepRatio := 0.6 + rng.Float64()*0.25 // [0.60, 0.85)
	// Truncating the product is intentional: short texts can land just under
	// the ratio (4 sentences keep 2), where the 2-sentence floor governs.
	// Do not round up.
	keep := int(float64(len(sentences)) * keepRatio)
	if keep < 2 {
		keep = 2
	}
	if keep >= len(sentences) {
		keep = len(sentences) - 1
	}
	return strings.Join(sentences[:keep], " ")
}

// ============================================================================
// STRATEGY 3: REORDERING
// ============================================================================

// Reordering keeps the first sentence fixed as the context anchor and
// randomly permutes the remainder. No-op for 2 or fewer sentences.
type Reordering struct{}

func (Reordering) Name() string { return "reordering" }

func (Reordering) Apply(text string, rng *rand.Rand) string {
	sentences := Sentences(text)
	if len(sentences) <= 2 {
		return text
	}

	rest := append([]string(nil), sentences[1:]...)
	rng.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
	return strings.Join(append([]string{sentences[0]}, rest...), " ")
}

// ============================================================================
// STRATEGY 4: FILLER INSERTION
// ============================================================================

var fillerPhrases = []string{
	"you know,", "basically,", "essentially,", "in other words,",
	"to put it simply,", "so to speak,", "if that makes sense,",
	"as mentioned,", "generally speaking,", "in most cases,",
}

// FillerInsertion splices discourse fillers into sentences without altering
// propositional content.
type FillerInsertion struct {
	// Probability of inserting a filler into each sentence (default 0.4).
	Probability float64
}

func (FillerInsertion) Name() string { return "filler_insertion" }

func (f FillerInsertion) Apply(text string, rng *rand.Rand) string {
	prob := f.Probability
	if prob <= 0 {
		prob = 0.4
	}

	sentences := Sentences(text)
	if len(sentences) == 0 {
		return text
	}

	out := make([]string, 0, len(sentences))
	for _, s := range sentences {
		if rng.Float64() < prob {
			words := Words(s)
			if len(words) > 3 {
				pos := 2 + rng.Intn(min(4, len(words)-2))
				filler := fillerPhrases[rng.Intn(len(fillerPhrases))]
				words = append(words[:pos], append([]string{filler}, words[pos:]...)...)
				s = strings.Join(words, " ")
			}
		}
		out = append(out, s)
	}
	return strings.Join(out, " ")
}

// ============================================================================
// STRATEGY 5: FRAMING
// ============================================================================

var (
	leadIns = []string{
		"Sure - here's what I can tell you.",
		"Happy to help with that.",
		"Here's a rundown.",
		"Let me walk you through it.",
	}
	leadOuts = []string{
		"Hope that helps.",
		"Let me know if you want more detail.",
		"That covers the essentials.",
		"Happy to expand on any part of this.",
	}
)

// Framing wraps the text with a lead-in and/or lead-out phrase that carries
// no propositional content. Always produces a delta for non-empty text,
// which makes it the terminal fallback.
type Framing struct{}

func (Framing) Name() string { return "framing" }

func (Framing) Apply(text string, rng *rand.Rand) string {
	if strings.TrimSpace(text) == "" {
		return text
	}

	switch rng.Intn(3) {
	case 0:
		return leadIns[rng.Intn(len(leadIns))] + " " + text
	case 1:
		return text + " " + leadOuts[rng.Intn(len(leadOuts))]
	default:
		return leadIns[rng.Intn(len(leadIns))] + " " + text + " " + leadOuts[rng.Intn(len(leadOuts))]
	}
}
