// Package sanitize cleans string leaves of a plan tree: blank and junk values
// become the placeholder and degenerate repetitions are collapsed.
package sanitize

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/spherical/account-planner/internal/domain"
)


// DefaultNoRepeat lists tokens the model is known to stutter on.
var DefaultNoRepeat = []string{"Omega"}

const (
	defaultMaxPhraseWords = 6
	maxPasses             = 16
)

// Config configures a Sanitizer.
type Config struct {
	Placeholder    string   `yaml:"placeholder"`
	Junk           []string `yaml:"junk"`
	NoRepeat       []string `yaml:"no_repeat"`
	MaxPhraseWords int      `yaml:"max_phrase_words"`
}

func (c *Config) defaults() {
	if c.Placeholder == "" {
		c.Placeholder = domain.Placeholder
	}
	if c.Junk == nil {
		c.Junk = domain.DefaultJunk
	}
	if c.NoRepeat == nil {
		c.NoRepeat = DefaultNoRepeat
	}
	if c.MaxPhraseWords <= 0 {
		c.MaxPhraseWords = defaultMaxPhraseWords
	}
}

// Sanitizer applies the leaf rules. It is immutable after New and safe for
// concurrent use.
type Sanitizer struct {
	placeholder    string
	junk           map[string]struct{}
	collapse       []*regexp.Regexp
	maxPhraseWords int
}

// New compiles a Sanitizer from cfg.
func New(cfg Config) *Sanitizer {
	cfg.defaults()
	s := &Sanitizer{
		placeholder:    cfg.Placeholder,
		junk:           make(map[string]struct{}, len(cfg.Junk)),
		maxPhraseWords: cfg.MaxPhraseWords,
	}
	for _, j := range cfg.Junk {
		if j = strings.ToLower(strings.TrimSpace(j)); j != "" {
			s.junk[j] = struct{}{}
		}
	}
	// The placeholder collapses first, then each configured token.
	s.collapse = append(s.collapse, repetitionPattern(cfg.Placeholder))
	for _, tok := range cfg.NoRepeat {
		if tok = strings.TrimSpace(tok); tok != "" {
			s.collapse = append(s.collapse, repetitionPattern(tok))
		}
	}
	return s
}

// repetitionPattern matches two or more contiguous occurrences of phrase,
// case-insensitively and on word boundaries where the phrase has them.
func repetitionPattern(phrase string) *regexp.Regexp {
	q := regexp.QuoteMeta(phrase)
	q = strings.Join(strings.Fields(q), `\s+`)
	head, tail := "", ""
	runes := []rune(phrase)
	if isWordRune(runes[0]) {
		head = `\b`
	}
	if isWordRune(runes[len(runes)-1]) {
		tail = `\b`
	}
	return regexp.MustCompile(`(?i)` + head + `(` + q + `)(?:[\s,;]+` + q + `)+` + tail)
}

func isWordRune(r rune) bool {
	return r == '_' || (r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)))
}

var defaultSanitizer = New(Config{})

// Sanitize runs the default sanitizer over a tree.
func Sanitize(tree any) any {
	return defaultSanitizer.Sanitize(tree)
}

// Sanitize returns a copy of tree with every string leaf cleaned and null
// leaves replaced by the placeholder. It never fails.
func (s *Sanitizer) Sanitize(tree any) any {
	switch v := tree.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = s.Sanitize(child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, child := range v {
			out[i] = s.Sanitize(child)
		}
		return out
	case string:
		return s.String(v)
	case nil:
		return s.placeholder
	default:
		return v
	}
}

// SanitizeObject is Sanitize for a top-level object.
func (s *Sanitizer) SanitizeObject(tree map[string]any) map[string]any {
	return s.Sanitize(tree).(map[string]any)
}

// String applies the leaf rules to a single value until it stops changing.
func (s *Sanitizer) String(in string) string {
	out := in
	for i := 0; i < maxPasses; i++ {
		next := s.pass(out)
		if next == out {
			return out
		}
		out = next
	}
	return out
}

func (s *Sanitizer) pass(in string) string {
	v := strings.TrimSpace(in)
	if v == "" || s.IsJunk(v) {
		return s.placeholder
	}
	for _, re := range s.collapse {
		v = re.ReplaceAllString(v, "$1")
	}
	return collapsePhrases(v, s.maxPhraseWords)
}

// IsJunk reports whether v is a member of the junk vocabulary.
func (s *Sanitizer) IsJunk(v string) bool {
	_, ok := s.junk[strings.ToLower(strings.TrimSpace(v))]
	return ok
}

// Placeholder returns the canonical missing-value marker.
func (s *Sanitizer) Placeholder() string { return s.placeholder }

var wordRe = regexp.MustCompile(`\S+`)

// collapsePhrases reduces any run of three or more back-to-back copies of
// the same word sequence (up to maxWords long) to a single copy. Only the
// bytes of the dropped copies are removed; all other spacing is kept.
func collapsePhrases(s string, maxWords int) string {
	for n := 1; n <= maxWords; n++ {
		spans := wordRe.FindAllStringIndex(s, -1)
		if 3*n > len(spans) {
			break
		}
		words := make([]string, len(spans))
		for k, sp := range spans {
			words[k] = s[sp[0]:sp[1]]
		}

		var b strings.Builder
		last, cut := 0, false
		for i := 0; i < len(words); {
			reps := 1
			for i+(reps+1)*n <= len(words) && sameWords(words[i:i+n], words[i+reps*n:i+(reps+1)*n]) {
				reps++
			}
			if reps < 3 {
				i++
				continue
			}
			// Keep the first copy up to its last byte, then skip to the
			// end of the final copy.
			b.WriteString(s[last:spans[i+n-1][1]])
			last = spans[i+reps*n-1][1]
			i += reps * n
			cut = true
		}
		if cut {
			b.WriteString(s[last:])
			s = b.String()
		}
	}
	return s
}

func sameWords(a, b []string) bool {
	for i := range a {
		if !strings.EqualFold(trimPunct(a[i]), trimPunct(b[i])) {
			return false
		}
	}
	return true
}

func trimPunct(w string) string {
	return strings.TrimRight(w, ",;")
}
