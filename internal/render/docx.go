// Package render fills document templates with repaired account plans.
package render

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"html"
	"io"
	"regexp"
	"strings"
	"text/template"

	"github.com/spherical/account-planner/internal/domain"
	"github.com/spherical/account-planner/internal/observability"
)

// lineBreak ends the current text run, inserts a Word break and reopens
// the run, so multi-line values keep their lines.
const lineBreak = `</w:t><w:br/><w:t xml:space="preserve">`

var templatePartRe = regexp.MustCompile(`^word/(document|header\d*|footer\d*)\.xml$`)

var quoteReplacer = strings.NewReplacer("“", `"`, "”", `"`, "‘", "'", "’", "'")

// DocxRenderer executes Go templates embedded in Word documents. Actions
// such as {{.account_overview.account_name}} or
// {{range .account_strategy.risks}}...{{end}} may appear anywhere in the
// body, headers or footers; a key the data tree lacks fails the render.
type DocxRenderer struct {
	logger *observability.Logger
}

// NewDocxRenderer creates a DocxRenderer.
func NewDocxRenderer(logger *observability.Logger) *DocxRenderer {
	if logger == nil {
		logger = observability.Nop()
	}
	return &DocxRenderer{logger: logger.WithOperation("render")}
}

// Render writes a copy of the template at templatePath with every
// template part executed against plan.
func (r *DocxRenderer) Render(ctx context.Context, templatePath string, plan map[string]any, w io.Writer) error {
	zr, err := zip.OpenReader(templatePath)
	if err != nil {
		return domain.RenderError("open template "+templatePath, err)
	}
	defer zr.Close()

	data := escapeTree(plan)
	zw := zip.NewWriter(w)
	parts := 0

	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return domain.RenderError("render canceled", err)
		}
		if !templatePartRe.MatchString(f.Name) {
			if err := zw.Copy(f); err != nil {
				return domain.RenderError("copy "+f.Name, err)
			}
			continue
		}

		out, err := executePart(f, data)
		if err != nil {
			return domain.RenderError("render "+f.Name, err)
		}
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: f.Modified,
		})
		if err != nil {
			return domain.RenderError("write "+f.Name, err)
		}
		if _, err := fw.Write(out); err != nil {
			return domain.RenderError("write "+f.Name, err)
		}
		parts++
	}

	if parts == 0 {
		return domain.RenderError("template has no word/document.xml", nil)
	}
	if err := zw.Close(); err != nil {
		return domain.RenderError("finish document", err)
	}

	r.logger.Debug().Str("template", templatePath).Int("parts", parts).Msg("document rendered")
	return nil
}

func executePart(f *zip.File, data any) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	raw, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return nil, err
	}

	tmpl, err := template.New(f.Name).
		Option("missingkey=error").
		Funcs(funcs).
		Parse(mergeRuns(string(raw)))
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var funcs = template.FuncMap{
	"join": func(v any, sep string) string {
		items, ok := v.([]any)
		if !ok {
			return fmt.Sprint(v)
		}
		parts := make([]string, 0, len(items))
		for _, it := range items {
			parts = append(parts, fmt.Sprint(it))
		}
		return strings.Join(parts, sep)
	},
}

// mergeRuns removes the markup Word inserts inside template actions. Word
// splits text into runs at arbitrary points (spell check, edits, style
// changes), so "{{.a}}" may be stored as "{{.</w:t></w:r><w:r><w:t>a}}".
// Tags between the delimiters are dropped; the tags removed from one
// action always balance, so the document stays well formed. Entities and
// typographic quotes inside actions are restored to template syntax.
func mergeRuns(doc string) string {
	var b, action strings.Builder
	b.Grow(len(doc))
	inAction := false

	for i := 0; i < len(doc); {
		c := doc[i]
		if c == '<' {
			end := strings.IndexByte(doc[i:], '>')
			if end < 0 {
				b.WriteString(doc[i:])
				break
			}
			if !inAction {
				b.WriteString(doc[i : i+end+1])
			}
			i += end + 1
			continue
		}

		if !inAction && c == '{' {
			if j := nextText(doc, i+1); j < len(doc) && doc[j] == '{' {
				inAction = true
				action.Reset()
				i = j + 1
				continue
			}
		}
		if inAction && c == '}' {
			if j := nextText(doc, i+1); j < len(doc) && doc[j] == '}' {
				b.WriteString("{{")
				b.WriteString(quoteReplacer.Replace(html.UnescapeString(action.String())))
				b.WriteString("}}")
				inAction = false
				i = j + 1
				continue
			}
		}

		if inAction {
			action.WriteByte(c)
		} else {
			b.WriteByte(c)
		}
		i++
	}

	if inAction {
		// Unterminated; leave it for the parser to report.
		b.WriteString("{{")
		b.WriteString(action.String())
	}
	return b.String()
}

// nextText returns the index of the next byte outside a tag.
func nextText(doc string, i int) int {
	for i < len(doc) && doc[i] == '<' {
		end := strings.IndexByte(doc[i:], '>')
		if end < 0 {
			return len(doc)
		}
		i += end + 1
	}
	return i
}

// escapeTree copies v with every string made safe for WordprocessingML text.
func escapeTree(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, val := range x {
			out[k] = escapeTree(val)
		}
		return out
	case []any:
		out := make([]any, len(x))
		for i, val := range x {
			out[i] = escapeTree(val)
		}
		return out
	case string:
		return xmlText(x)
	case json.Number:
		return x.String()
	default:
		return x
	}
}

func xmlText(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		var b strings.Builder
		_ = xml.EscapeText(&b, []byte(strings.TrimRight(line, "\r")))
		lines[i] = b.String()
	}
	return strings.Join(lines, lineBreak)
}
