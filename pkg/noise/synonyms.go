package noise

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// SynonymSource supplies semantically close alternatives for content words.
type SynonymSource interface {
	// Synonyms returns alternatives for the lowercased word, or nil when
	// none are known.
	Synonyms(word string) []string
}

// TableSynonyms is an in-memory synonym table. The built-in table covers
// high-frequency content words so that almost any generated paragraph has at
// least one substitution target; deployments can extend it with a YAML pack.
type TableSynonyms struct {
	mu    sync.RWMutex
	table map[string][]string
}

// NewTableSynonyms returns a table seeded with the built-in entries.
func NewTableSynonyms() *TableSynonyms {
	t := &TableSynonyms{table: make(map[string][]string, len(builtinSynonyms))}
	for w, alts := range builtinSynonyms {
		t.table[w] = alts
	}
	return t
}

// Synonyms returns the alternatives for word, nil when unknown.
func (t *TableSynonyms) Synonyms(word string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.table[strings.ToLower(word)]
}

// LoadPack merges a YAML synonym pack (word -> [alternatives]) into the
// table. Pack entries are appended to built-in ones, not replacing them.
func (t *TableSynonyms) LoadPack(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read synonym pack: %w", err)
	}

	var pack map[string][]string
	if err := yaml.Unmarshal(data, &pack); err != nil {
		return fmt.Errorf("failed to parse synonym pack: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for word, alts := range pack {
		word = strings.ToLower(strings.TrimSpace(word))
		if word == "" || len(alts) == 0 {
			continue
		}
		t.table[word] = append(t.table[word], alts...)
	}
	return nil
}

// Size returns the number of words with at least one alternative.
func (t *TableSynonyms) Size() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.table)
}

// builtinSynonyms covers common content words in generated English prose.
var builtinSynonyms = map[string][]string{
	"important":   {"significant", "crucial", "essential", "vital"},
	"significant": {"important", "notable", "considerable"},
	"large":       {"big", "substantial", "sizable"},
	"small":       {"little", "minor", "modest"},
	"big":         {"large", "huge", "substantial"},
	"good":        {"solid", "strong", "sound"},
	"great":       {"excellent", "remarkable", "outstanding"},
	"bad":         {"poor", "weak", "unfavorable"},
	"fast":        {"quick", "rapid", "swift"},
	"quick":       {"fast", "rapid", "prompt"},
	"slow":        {"gradual", "sluggish", "unhurried"},
	"easy":        {"simple", "straightforward", "effortless"},
	"hard":        {"difficult", "tough", "demanding"},
	"difficult":   {"hard", "challenging", "tricky"},
	"simple":      {"easy", "basic", "straightforward"},
	"complex":     {"complicated", "intricate", "involved"},
	"common":      {"typical", "frequent", "widespread"},
	"different":   {"distinct", "separate", "varied"},
	"similar":     {"comparable", "alike", "related"},
	"main":        {"primary", "principal", "chief"},
	"primary":     {"main", "principal", "foremost"},
	"several":     {"multiple", "various", "numerous"},
	"many":        {"numerous", "countless", "plenty of"},
	"various":     {"several", "assorted", "diverse"},
	"often":       {"frequently", "commonly", "regularly"},
	"usually":     {"typically", "generally", "normally"},
	"always":      {"invariably", "consistently", "perpetually"},
	"quickly":     {"rapidly", "swiftly", "promptly"},
	"help":        {"assist", "aid", "support"},
	"helps":       {"assists", "aids", "supports"},
	"make":        {"create", "produce", "build"},
	"makes":       {"creates", "produces", "builds"},
	"made":        {"created", "produced", "built"},
	"create":      {"produce", "generate", "build"},
	"creates":     {"produces", "generates", "builds"},
	"use":         {"employ", "utilize", "apply"},
	"uses":        {"employs", "utilizes", "applies"},
	"used":        {"employed", "utilized", "applied"},
	"using":       {"employing", "utilizing", "applying"},
	"show":        {"demonstrate", "display", "illustrate"},
	"shows":       {"demonstrates", "displays", "illustrates"},
	"need":        {"require", "demand", "call for"},
	"needs":       {"requires", "demands", "calls for"},
	"provide":     {"supply", "offer", "deliver"},
	"provides":    {"supplies", "offers", "delivers"},
	"allow":       {"permit", "enable", "let"},
	"allows":      {"permits", "enables", "lets"},
	"include":     {"contain", "encompass", "cover"},
	"includes":    {"contains", "encompasses", "covers"},
	"consider":    {"regard", "view", "weigh"},
	"understand":  {"grasp", "comprehend", "follow"},
	"improve":     {"enhance", "strengthen", "refine"},
	"increase":    {"raise", "boost", "grow"},
	"reduce":      {"decrease", "lower", "cut"},
	"change":      {"alter", "modify", "shift"},
	"changes":     {"alters", "modifies", "shifts"},
	"begin":       {"start", "commence", "initiate"},
	"start":       {"begin", "commence", "launch"},
	"end":         {"finish", "conclude", "terminate"},
	"result":      {"outcome", "consequence", "effect"},
	"results":     {"outcomes", "consequences", "effects"},
	"method":      {"approach", "technique", "procedure"},
	"methods":     {"approaches", "techniques", "procedures"},
	"way":         {"manner", "approach", "means"},
	"ways":        {"manners", "approaches", "means"},
	"problem":     {"issue", "difficulty", "challenge"},
	"problems":    {"issues", "difficulties", "challenges"},
	"example":     {"instance", "illustration", "case"},
	"examples":    {"instances", "illustrations", "cases"},
	"part":        {"portion", "section", "component"},
	"parts":       {"portions", "sections", "components"},
	"people":      {"individuals", "persons", "folks"},
	"person":      {"individual", "human", "being"},
	"time":        {"period", "duration", "moment"},
	"place":       {"location", "spot", "site"},
	"work":        {"function", "operate", "perform"},
	"works":       {"functions", "operates", "performs"},
	"known":       {"recognized", "established", "familiar"},
	"new":         {"novel", "fresh", "recent"},
	"old":         {"aged", "ancient", "former"},
	"modern":      {"contemporary", "current", "present-day"},
	"popular":     {"widespread", "favored", "well-liked"},
	"powerful":    {"strong", "potent", "forceful"},
	"useful":      {"helpful", "valuable", "practical"},
	"water":       {"liquid", "fluid"},
	"world":       {"globe", "planet", "earth"},
	"country":     {"nation", "state", "land"},
	"city":        {"town", "municipality", "metropolis"},
	"capital":     {"seat of government", "chief city"},
	"answer":      {"response", "reply", "solution"},
	"question":    {"query", "inquiry", "prompt"},
	"information": {"data", "details", "knowledge"},
	"system":      {"framework", "structure", "setup"},
	"process":     {"procedure", "operation", "workflow"},
	"language":    {"tongue", "dialect", "speech"},
	"model":       {"framework", "representation", "scheme"},
	"number":      {"figure", "quantity", "count"},
	"numbers":     {"figures", "quantities", "counts"},
	"because":     {"since", "as", "given that"},
	"however":     {"nevertheless", "nonetheless", "yet"},
	"also":        {"additionally", "furthermore", "likewise"},
	"very":        {"extremely", "highly", "remarkably"},
	"about":       {"regarding", "concerning", "around"},
}
