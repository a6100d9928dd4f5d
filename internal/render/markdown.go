package render

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spherical/account-planner/internal/domain"
	"github.com/spherical/account-planner/internal/enrich"
	"github.com/spherical/account-planner/internal/schema"
)

// MarkdownRenderer writes a plan as a Markdown summary, following the
// schema's field order. Fields not in the schema are listed after the
// known ones in key order.
type MarkdownRenderer struct {
	schema      *schema.Node
	labels      *enrich.Enricher
	placeholder string
}

// NewMarkdownRenderer creates a MarkdownRenderer. A nil schema uses the
// canonical one; an empty placeholder uses domain.Placeholder.
func NewMarkdownRenderer(s *schema.Node, placeholder string) *MarkdownRenderer {
	if s == nil {
		s = schema.Get()
	}
	if placeholder == "" {
		placeholder = domain.Placeholder
	}
	return &MarkdownRenderer{
		schema:      s,
		labels:      enrich.New(enrich.Config{Placeholder: placeholder}),
		placeholder: placeholder,
	}
}

// Render writes plan to w.
func (m *MarkdownRenderer) Render(plan map[string]any, w io.Writer) error {
	bw := bufio.NewWriter(w)

	title := "Account Plan"
	if name := domain.AccountName(plan); !domain.IsPlaceholder(name, m.placeholder) {
		title = name + " Account Plan"
	}
	fmt.Fprintf(bw, "# %s\n", title)

	for _, f := range m.fieldsOf(m.schema, plan) {
		m.section(bw, f.Name, f.Node, plan[f.Name], 2)
	}

	if err := bw.Flush(); err != nil {
		return domain.RenderError("write markdown", err)
	}
	return nil
}

func (m *MarkdownRenderer) section(w *bufio.Writer, key string, s *schema.Node, v any, level int) {
	fmt.Fprintf(w, "\n%s %s\n\n", strings.Repeat("#", min(level, 6)), m.labels.Label(key))

	switch x := v.(type) {
	case map[string]any:
		var nested []schema.Field
		for _, f := range m.fieldsOf(s, x) {
			switch x[f.Name].(type) {
			case map[string]any, []any:
				nested = append(nested, f)
			default:
				fmt.Fprintf(w, "- **%s:** %s\n", m.labels.Label(f.Name), m.cell(x[f.Name], false))
			}
		}
		for _, f := range nested {
			m.section(w, f.Name, f.Node, x[f.Name], level+1)
		}
	case []any:
		m.list(w, s, x)
	default:
		fmt.Fprintf(w, "%s\n", m.cell(v, false))
	}
}

func (m *MarkdownRenderer) list(w *bufio.Writer, s *schema.Node, items []any) {
	var elem *schema.Node
	if s != nil {
		elem = s.Elem()
	}

	var rows []map[string]any
	for _, it := range items {
		obj, ok := it.(map[string]any)
		if !ok {
			rows = nil
			break
		}
		rows = append(rows, obj)
	}
	if rows == nil {
		for _, it := range items {
			fmt.Fprintf(w, "- %s\n", m.cell(it, false))
		}
		return
	}

	var cols []string
	if elem != nil && elem.Kind() == schema.KindObject {
		for _, f := range elem.Fields() {
			cols = append(cols, f.Name)
		}
	}
	seen := make(map[string]bool, len(cols))
	for _, c := range cols {
		seen[c] = true
	}
	var extra []string
	for _, r := range rows {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				extra = append(extra, k)
			}
		}
	}
	sort.Strings(extra)
	cols = append(cols, extra...)

	labels := make([]string, len(cols))
	for i, c := range cols {
		labels[i] = m.labels.Label(c)
	}
	fmt.Fprintf(w, "| %s |\n", strings.Join(labels, " | "))
	fmt.Fprintf(w, "|%s\n", strings.Repeat(" --- |", len(cols)))
	for _, r := range rows {
		vals := make([]string, len(cols))
		for i, c := range cols {
			vals[i] = m.cell(r[c], true)
		}
		fmt.Fprintf(w, "| %s |\n", strings.Join(vals, " | "))
	}
}

// fieldsOf returns s's fields followed by any extra keys of v.
func (m *MarkdownRenderer) fieldsOf(s *schema.Node, v map[string]any) []schema.Field {
	var out []schema.Field
	known := map[string]bool{}
	if s != nil && s.Kind() == schema.KindObject {
		for _, f := range s.Fields() {
			if _, ok := v[f.Name]; ok {
				out = append(out, f)
				known[f.Name] = true
			}
		}
	}
	var extra []string
	for k := range v {
		if !known[k] {
			extra = append(extra, k)
		}
	}
	sort.Strings(extra)
	for _, k := range extra {
		out = append(out, schema.Field{Name: k})
	}
	return out
}

// cell formats a value for a list item or table cell.
func (m *MarkdownRenderer) cell(v any, inTable bool) string {
	var s string
	switch x := v.(type) {
	case nil:
		s = m.placeholder
	case string:
		s = strings.TrimSpace(x)
	case []any:
		parts := make([]string, len(x))
		for i, it := range x {
			parts[i] = m.cell(it, inTable)
		}
		s = strings.Join(parts, ", ")
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + m.cell(x[k], inTable)
		}
		s = strings.Join(parts, "; ")
	default:
		s = fmt.Sprint(x)
	}
	if inTable {
		s = strings.ReplaceAll(s, "|", `\|`)
		s = strings.ReplaceAll(s, "\n", "<br>")
	}
	return s
}
