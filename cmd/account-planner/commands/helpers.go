package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spherical/account-planner/cmd/account-planner/ui"
	"github.com/spherical/account-planner/internal/app"
	"github.com/spherical/account-planner/internal/domain"
)

// newApp wires the planner from the loaded configuration.
func newApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, cfg, nil, logger)
}

// signalContext is canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// resolveSource returns the document named by args, or the pasted text.
func resolveSource(a *app.App, args []string, text string) (domain.Source, error) {
	switch {
	case text != "" && len(args) > 0:
		return domain.Source{}, fmt.Errorf("pass either a file or --text, not both")
	case text == "-":
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return domain.Source{}, fmt.Errorf("read stdin: %w", err)
		}
		return a.Extractor.FromText(string(data)).Source(), nil
	case text != "":
		return a.Extractor.FromText(text).Source(), nil
	case len(args) == 1:
		return domain.Source{Path: args[0], Filename: filepath.Base(args[0])}, nil
	default:
		return domain.Source{}, fmt.Errorf("an input file or --text is required")
	}
}

var stageMessages = map[domain.EventType]string{
	domain.EventStart:         "Reading document...",
	domain.EventTextExtracted: "Extracting account plan with the model...",
	domain.EventLLMComplete:   "Repairing plan structure...",
	domain.EventRepaired:      "Rendering document...",
	domain.EventRendered:      "Finishing...",
}

// trackEvents shows pipeline stages on a spinner. The returned function
// stops tracking and waits for the last update.
func trackEvents(sp *ui.Spinner) (chan domain.StreamEvent, func()) {
	events := make(chan domain.StreamEvent, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if msg, ok := stageMessages[ev.Type]; ok {
				sp.UpdateMessage(msg)
			}
			ui.Debug("%s: %v", ev.Type, ev.Payload)
		}
	}()
	return events, func() {
		close(events)
		<-done
	}
}

// writeJSON writes v as indented JSON to path, or stdout when path is empty.
func writeJSON(path string, v any) error {
	w := os.Stdout
	if path != "" {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		defer f.Close()
		w = f
	}
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// readJSONFile decodes a plan tree from path, or stdin for "-".
func readJSONFile(path string) (any, error) {
	r := io.Reader(os.Stdin)
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.UseNumber()
	var tree any
	if err := dec.Decode(&tree); err != nil {
		return nil, domain.ValidationError("invalid JSON in "+path, err)
	}
	return tree, nil
}

// outputPath resolves where a generated document goes. output may name a
// .docx file or a directory; empty means the configured output dir.
func outputPath(output, filename string) (string, error) {
	if output == "" {
		output = cfg.Render.OutputDir
	}
	if filepath.Ext(output) == ".docx" {
		return output, os.MkdirAll(filepath.Dir(output), 0o755)
	}
	if err := os.MkdirAll(output, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	return filepath.Join(output, filename), nil
}
