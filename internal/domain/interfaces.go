package domain

import (
	"context"
	"io"
)

// TextExtractor turns an input file into plain text
type TextExtractor interface {
	// Text returns the extracted text, or "" when the file cannot be read
	Text(ctx context.Context, path string) string
}

// StructuredExtractor asks a language model to map raw text onto the plan schema
type StructuredExtractor interface {
	// Complete sends the system instruction and user text and returns the raw model output
	Complete(ctx context.Context, system, user string) (string, error)
}

// Renderer fills a document template with a repaired plan tree
type Renderer interface {
	Render(ctx context.Context, templatePath string, plan map[string]any, w io.Writer) error
}
