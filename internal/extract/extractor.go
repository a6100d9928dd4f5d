// Package extract turns uploaded documents and pasted text into the plain
// text sent to the structured extraction model.
package extract

import (
	"context"
	"fmt"
	"html"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/microcosm-cc/bluemonday"

	"github.com/spherical/account-planner/internal/domain"
	"github.com/spherical/account-planner/internal/observability"
)

// Format names a supported input type.
type Format string

const (
	FormatPDF      Format = "pdf"
	FormatDocx     Format = "docx"
	FormatText     Format = "text"
	FormatMarkdown Format = "markdown"
	FormatHTML     Format = "html"
	FormatPasted   Format = "pasted"
)

var formats = map[string]Format{
	".pdf":  FormatPDF,
	".docx": FormatDocx,
	".txt":  FormatText,
	".text": FormatText,
	".md":   FormatMarkdown,
	".html": FormatHTML,
	".htm":  FormatHTML,
}

// Document is the text pulled out of one input.
type Document struct {
	Path     string
	Filename string
	Format   Format
	Text     string
	Pages    int
	Size     int64
}

// Source converts the document into the pipeline's input record.
func (d *Document) Source() domain.Source {
	return domain.Source{Path: d.Path, Filename: d.Filename, Text: d.Text}
}

// Config configures an Extractor.
type Config struct {
	MaxFileSize int64
	// PDFBackend is "fitz" (MuPDF) or "pdfcpu" (pure Go).
	PDFBackend string
}

// Extractor reads documents from disk. It is safe for concurrent use.
type Extractor struct {
	cfg    Config
	logger *observability.Logger
	policy *bluemonday.Policy
	pdf    func(ctx context.Context, path string) (string, int, error)
}

// New creates an Extractor.
func New(cfg Config, logger *observability.Logger) *Extractor {
	if logger == nil {
		logger = observability.Nop()
	}
	e := &Extractor{
		cfg:    cfg,
		logger: logger.WithOperation("extract"),
		policy: bluemonday.StrictPolicy(),
	}
	if cfg.PDFBackend == "pdfcpu" {
		e.pdf = extractPDFContent
	} else {
		e.pdf = extractPDFFitz
	}
	return e
}

// Supported reports whether path has an extension the extractor reads.
func Supported(path string) bool {
	_, ok := formats[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Extract reads the file at path and returns its text.
func (e *Extractor) Extract(ctx context.Context, path string) (*Document, error) {
	info, err := e.validate(path)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	format := formats[strings.ToLower(filepath.Ext(path))]
	doc := &Document{
		Path:     path,
		Filename: filepath.Base(path),
		Format:   format,
		Size:     info.Size(),
	}

	var text string
	switch format {
	case FormatPDF:
		text, doc.Pages, err = e.pdf(ctx, path)
	case FormatDocx:
		text, err = extractDocx(path)
	case FormatHTML:
		var data []byte
		if data, err = os.ReadFile(path); err == nil {
			text = e.stripHTML(string(data))
		}
	default:
		var data []byte
		if data, err = os.ReadFile(path); err == nil {
			text = string(data)
		}
	}
	if err != nil {
		return nil, domain.IOError(fmt.Sprintf("extract %s", doc.Filename), err)
	}

	doc.Text = normalize(text)
	e.logger.Debug().
		Str("file", doc.Filename).
		Str("format", string(format)).
		Int("chars", len(doc.Text)).
		Int("pages", doc.Pages).
		Msg("text extracted")
	return doc, nil
}

// Text returns the document's text, or "" if it cannot be read. The reason
// is logged.
func (e *Extractor) Text(ctx context.Context, path string) string {
	doc, err := e.Extract(ctx, path)
	if err != nil {
		e.logger.Warn().Err(err).Str("path", path).Msg("text extraction failed")
		return ""
	}
	return doc.Text
}

// FromText wraps pasted text, removing any HTML markup.
func (e *Extractor) FromText(s string) *Document {
	text := s
	if looksLikeHTML(s) {
		text = e.stripHTML(s)
	}
	text = normalize(text)
	return &Document{
		Filename: "pasted_text",
		Format:   FormatPasted,
		Text:     text,
		Size:     int64(len(s)),
	}
}

func (e *Extractor) validate(path string) (os.FileInfo, error) {
	if strings.TrimSpace(path) == "" {
		return nil, domain.ValidationError("file path cannot be empty", nil)
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ValidationError(fmt.Sprintf("file does not exist: %s", path), err)
		}
		return nil, domain.ValidationError(fmt.Sprintf("cannot access file: %s", path), err)
	}
	if info.IsDir() {
		return nil, domain.ValidationError(fmt.Sprintf("path is a directory, not a file: %s", path), nil)
	}

	if !Supported(path) {
		return nil, domain.ValidationError(fmt.Sprintf("unsupported file type %q", filepath.Ext(path)), nil)
	}

	if e.cfg.MaxFileSize > 0 && info.Size() > e.cfg.MaxFileSize {
		return nil, domain.ValidationError(fmt.Sprintf("file is %s, limit is %s",
			humanize.Bytes(uint64(info.Size())), humanize.Bytes(uint64(e.cfg.MaxFileSize))), nil)
	}
	return info, nil
}

var (
	blockTagRe = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/tr|/h[1-6]|/table|/section|/article)\b[^>]*>`)
	cellTagRe  = regexp.MustCompile(`(?i)<\s*/t[dh]\s*>`)
	anyTagRe   = regexp.MustCompile(`</?[a-zA-Z][a-zA-Z0-9]*(\s[^>]*)?/?>`)
)

func looksLikeHTML(s string) bool {
	return anyTagRe.MatchString(s)
}

// stripHTML reduces markup to text, keeping block boundaries as newlines.
func (e *Extractor) stripHTML(s string) string {
	s = blockTagRe.ReplaceAllString(s, "$0\n")
	s = cellTagRe.ReplaceAllString(s, "$0 ")
	// The policy re-escapes text; callers want it plain.
	return html.UnescapeString(e.policy.Sanitize(s))
}

var (
	hspaceRe    = regexp.MustCompile(`[ \t\f\v\r]+`)
	blankRunsRe = regexp.MustCompile(`\n{3,}`)
)

// normalize collapses horizontal whitespace, trims each line and limits
// blank lines to one.
func normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(hspaceRe.ReplaceAllString(line, " "))
	}
	s = strings.Join(lines, "\n")
	return strings.TrimSpace(blankRunsRe.ReplaceAllString(s, "\n\n"))
}
