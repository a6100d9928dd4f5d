// Package repair merges a partially populated plan tree against the schema
// so that every key the template references exists with the right shape.
package repair

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spherical/account-planner/internal/domain"
	"github.com/spherical/account-planner/internal/schema"
)

// Options configures an Engine.
type Options struct {
	// Junk lists values (case-insensitive, trimmed) that count as missing.
	Junk []string
	// Placeholder is the schema-independent missing marker. It counts as
	// missing so the position-specific placeholder replaces it.
	Placeholder string
}

// Report counts what a repair pass changed.
type Report struct {
	InsertedKeys      int `json:"inserted_keys"`
	ReplacedValues    int `json:"replaced_values"`
	SynthesizedLists  int `json:"synthesized_lists"`
	ReplacedElements  int `json:"replaced_elements"`
	PlaceholderLeaves int `json:"placeholder_leaves"`
}

// Changed reports whether the pass modified anything.
func (r Report) Changed() bool {
	return r.InsertedKeys+r.ReplacedValues+r.SynthesizedLists+r.ReplacedElements+r.PlaceholderLeaves > 0
}

// Engine repairs data trees. It holds no per-call state and is safe for
// concurrent use.
type Engine struct {
	junk        map[string]struct{}
	placeholder string
}

// New creates an Engine. Zero options use domain.DefaultJunk and
// domain.Placeholder.
func New(opts Options) *Engine {
	junk := opts.Junk
	if junk == nil {
		junk = domain.DefaultJunk
	}
	placeholder := opts.Placeholder
	if placeholder == "" {
		placeholder = domain.Placeholder
	}
	e := &Engine{
		junk:        make(map[string]struct{}, len(junk)+1),
		placeholder: placeholder,
	}
	for _, j := range junk {
		e.junk[strings.ToLower(strings.TrimSpace(j))] = struct{}{}
	}
	e.junk[strings.ToLower(placeholder)] = struct{}{}
	return e
}

var defaultEngine = New(Options{})

// Repair runs the default engine.
func Repair(data any, s *schema.Node) (map[string]any, error) {
	return defaultEngine.Repair(data, s)
}

// Repair merges data against s and returns a tree satisfying the schema.
// The input is not modified. Only a non-object top level is an error.
func (e *Engine) Repair(data any, s *schema.Node) (map[string]any, error) {
	out, _, err := e.RepairWithReport(data, s)
	return out, err
}

// RepairWithReport is Repair plus a summary of the changes made.
func (e *Engine) RepairWithReport(data any, s *schema.Node) (map[string]any, Report, error) {
	var rep Report
	obj, ok := data.(map[string]any)
	if !ok {
		return nil, rep, domain.InvalidShapeError(describe(data))
	}
	if s == nil || s.Kind() != schema.KindObject {
		return nil, rep, domain.ValidationError("schema root must be an object", nil)
	}
	return e.object(obj, s, &rep), rep, nil
}

func (e *Engine) merge(v any, s *schema.Node, rep *Report) any {
	switch s.Kind() {
	case schema.KindObject:
		obj, ok := v.(map[string]any)
		if !ok {
			rep.ReplacedValues++
			return s.Default()
		}
		return e.object(obj, s, rep)
	case schema.KindList:
		return e.list(v, s, rep)
	default:
		return e.leaf(v, s, rep)
	}
}

func (e *Engine) object(obj map[string]any, s *schema.Node, rep *Report) map[string]any {
	out := make(map[string]any, len(obj)+s.Len())
	for k, v := range obj {
		// Keys outside the schema pass through untouched.
		out[k] = v
	}
	for _, f := range s.Fields() {
		v, present := obj[f.Name]
		if !present {
			rep.InsertedKeys++
			out[f.Name] = f.Node.Default()
			continue
		}
		out[f.Name] = e.merge(v, f.Node, rep)
	}
	return out
}

func (e *Engine) list(v any, s *schema.Node, rep *Report) []any {
	items, ok := v.([]any)
	if !ok || len(items) == 0 {
		// Absent or empty means no information; the template still needs
		// one element to iterate.
		rep.SynthesizedLists++
		return []any{s.Elem().Default()}
	}
	elem := s.Elem()
	out := make([]any, len(items))
	for i, item := range items {
		if !conforms(item, elem) {
			rep.ReplacedElements++
			out[i] = elem.Default()
			continue
		}
		out[i] = e.merge(item, elem, rep)
	}
	return out
}

func (e *Engine) leaf(v any, s *schema.Node, rep *Report) any {
	if !isScalar(v) {
		rep.ReplacedValues++
		return s.Placeholder()
	}
	if e.missing(v) {
		if str, ok := v.(string); !ok || str != s.Placeholder() {
			rep.PlaceholderLeaves++
		}
		return s.Placeholder()
	}
	return v
}

// missing reports whether a scalar carries no information.
func (e *Engine) missing(v any) bool {
	if v == nil {
		return true
	}
	str, ok := v.(string)
	if !ok {
		return false
	}
	key := strings.ToLower(strings.TrimSpace(str))
	if key == "" {
		return true
	}
	_, junk := e.junk[key]
	return junk
}

// conforms decides whether a list element is shape-compatible with the
// template element: objects need objects, lists need lists, leaves need
// scalars.
func conforms(v any, elem *schema.Node) bool {
	switch elem.Kind() {
	case schema.KindObject:
		_, ok := v.(map[string]any)
		return ok
	case schema.KindList:
		_, ok := v.([]any)
		return ok
	default:
		return isScalar(v)
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, json.Number,
		float64, float32, int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64:
		return true
	default:
		return false
	}
}

func describe(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case []any:
		return "list"
	case string:
		return "string"
	default:
		if isScalar(v) {
			return "scalar"
		}
		return fmt.Sprintf("%T", v)
	}
}
