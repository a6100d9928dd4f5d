// Package enrich turns a repaired plan into presentation text: bare
// placeholders gain an explanation and structured leaves collapse into
// readable sentences.
package enrich

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/spherical/account-planner/internal/domain"
)

// DefaultSuffix is appended to leaves that still lack real information.
const DefaultSuffix = "This information has not been captured yet and should be gathered with the account team, since the plan relies on it to prioritise effort."

var incompleteRe = regexp.MustCompile(`(?i)^\s*(tbd|tbc|unknown|pending|to be (determined|confirmed)|\?+)\s*[.!]?\s*$`)

// Config configures an Enricher.
type Config struct {
	Placeholder string
	Suffix      string
	// PreserveDepth is the number of object levels kept structured; plain
	// objects at this depth or shallower are never collapsed. Depth 1 is the
	// top-level sections.
	PreserveDepth int
}

// Enricher applies the narrative transforms. Safe for concurrent use.
type Enricher struct {
	placeholder   string
	suffix        string
	preserveDepth int
}

// New creates an Enricher.
func New(cfg Config) *Enricher {
	if cfg.Placeholder == "" {
		cfg.Placeholder = domain.Placeholder
	}
	if cfg.Suffix == "" {
		cfg.Suffix = DefaultSuffix
	}
	if cfg.PreserveDepth <= 0 {
		cfg.PreserveDepth = 1
	}
	return &Enricher{
		placeholder:   cfg.Placeholder,
		suffix:        cfg.Suffix,
		preserveDepth: cfg.PreserveDepth,
	}
}

// Enrich runs a default Enricher.
func Enrich(tree map[string]any) map[string]any {
	return New(Config{}).Enrich(tree)
}

// Enrich returns a transformed copy of a repaired tree. Some objects and
// lists of objects become strings, so it must run after every consumer of
// the structured form.
func (e *Enricher) Enrich(tree map[string]any) map[string]any {
	out := make(map[string]any, len(tree))
	for _, k := range sortedKeys(tree) {
		out[k] = e.node(tree[k], 1)
	}
	return out
}

func (e *Enricher) node(v any, depth int) any {
	switch x := v.(type) {
	case map[string]any:
		if depth > e.preserveDepth && isPlain(x) {
			return e.summarize(x)
		}
		out := make(map[string]any, len(x))
		for _, k := range sortedKeys(x) {
			out[k] = e.node(x[k], depth+1)
		}
		return out
	case []any:
		if s, ok := e.narrate(x); ok {
			return s
		}
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = e.node(item, depth+1)
		}
		return out
	case string:
		return e.Leaf(x)
	default:
		return v
	}
}

// Leaf appends the importance suffix to a value that reports missing
// information. Already-suffixed values are returned unchanged.
func (e *Enricher) Leaf(s string) string {
	if !e.Incomplete(s) || strings.HasSuffix(s, e.suffix) {
		return s
	}
	return strings.TrimRight(s, " .") + ". " + e.suffix
}

// Incomplete reports whether a leaf holds the placeholder or reads as
// unfinished.
func (e *Enricher) Incomplete(s string) bool {
	// Schema defaults carry the canonical marker whatever the configured one.
	return strings.Contains(s, e.placeholder) || strings.Contains(s, domain.Placeholder) ||
		incompleteRe.MatchString(s)
}

// narrate collapses a list of objects of a known shape into sentences.
func (e *Enricher) narrate(items []any) (string, bool) {
	if len(items) == 0 {
		return "", false
	}
	objs := make([]map[string]any, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok || !isPlain(obj) {
			return "", false
		}
		objs = append(objs, obj)
	}

	var render func(map[string]any) string
	switch {
	case allHave(objs, "risk", "mitigation"):
		render = func(o map[string]any) string {
			return fmt.Sprintf("Risk: %s. Mitigation: %s.", e.text(o["risk"]), e.text(o["mitigation"]))
		}
	case allHave(objs, "action", "owner", "due_date"):
		render = func(o map[string]any) string {
			return fmt.Sprintf("%s (owner: %s, due: %s).", e.text(o["action"]), e.text(o["owner"]), e.text(o["due_date"]))
		}
	case allHave(objs, "title", "challenge", "solution", "outcome"):
		render = func(o map[string]any) string {
			return fmt.Sprintf("%s: faced with %s, the customer adopted %s, resulting in %s.",
				e.text(o["title"]), e.lowerFirst(e.text(o["challenge"])), e.lowerFirst(e.text(o["solution"])), e.lowerFirst(e.text(o["outcome"])))
		}
	default:
		return "", false
	}

	sentences := make([]string, len(objs))
	for i, o := range objs {
		sentences[i] = render(o)
	}
	return e.Leaf(strings.Join(sentences, " ")), true
}

// summarize collapses a plain object to "Label: value; Label: value".
func (e *Enricher) summarize(obj map[string]any) string {
	keys := sortedKeys(obj)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, e.Label(k)+": "+e.text(obj[k]))
	}
	return e.Leaf(strings.Join(parts, "; "))
}

// Label turns a snake_case key into a title-cased label.
func (e *Enricher) Label(key string) string {
	// Casers carry state, so each call gets its own.
	return cases.Title(language.English).String(strings.ReplaceAll(key, "_", " "))
}

func (e *Enricher) text(v any) string {
	switch x := v.(type) {
	case nil:
		return e.placeholder
	case string:
		return strings.TrimRight(strings.TrimSpace(x), ".")
	default:
		return fmt.Sprint(x)
	}
}

func isPlain(obj map[string]any) bool {
	for _, v := range obj {
		switch v.(type) {
		case map[string]any, []any:
			return false
		}
	}
	return true
}

func allHave(objs []map[string]any, keys ...string) bool {
	for _, o := range objs {
		for _, k := range keys {
			if _, ok := o[k]; !ok {
				return false
			}
		}
	}
	return true
}

func (e *Enricher) lowerFirst(s string) string {
	if domain.IsPlaceholder(s, e.placeholder) {
		return s
	}
	r := []rune(s)
	if len(r) > 1 && r[1] >= 'A' && r[1] <= 'Z' {
		// Acronyms such as "AI" keep their case.
		return s
	}
	return strings.ToLower(string(r[:1])) + string(r[1:])
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
