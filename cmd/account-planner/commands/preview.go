package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/spherical/account-planner/cmd/account-planner/ui"
	"github.com/spherical/account-planner/internal/planner"
	"github.com/spherical/account-planner/internal/render"
	"github.com/spherical/account-planner/internal/schema"
)

var (
	previewText   string
	previewRaw    bool
	previewEnrich bool
	previewWidth  int
)

var previewCmd = &cobra.Command{
	Use:   "preview [plan.json|document]",
	Short: "Show a plan in the terminal",
	Long: `Preview renders a plan as formatted Markdown in the terminal. A .json
argument is repaired locally; any other document goes through the model
first.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPreview,
}

func init() {
	previewCmd.Flags().StringVarP(&previewText, "text", "t", "", `pasted account text ("-" reads stdin)`)
	previewCmd.Flags().BoolVar(&previewRaw, "raw", false, "print the Markdown source without styling")
	previewCmd.Flags().BoolVar(&previewEnrich, "enrich", false, "preview the narrative form")
	previewCmd.Flags().IntVar(&previewWidth, "width", 100, "word wrap width")
	rootCmd.AddCommand(previewCmd)
}

func runPreview(cmd *cobra.Command, args []string) error {
	var (
		plan map[string]any
		s    *schema.Node
		err  error
	)

	if previewText == "" && len(args) == 1 && strings.EqualFold(filepath.Ext(args[0]), ".json") {
		plan, s, err = repairLocal(args[0])
	} else {
		plan, s, err = extractForPreview(args)
	}
	if err != nil {
		return err
	}

	var md bytes.Buffer
	if err := render.NewMarkdownRenderer(s, cfg.Sanitize.Placeholder).Render(plan, &md); err != nil {
		return err
	}
	if previewRaw {
		_, err := os.Stdout.Write(md.Bytes())
		return err
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(previewWidth),
	)
	if err != nil {
		return fmt.Errorf("create markdown renderer: %w", err)
	}
	styled, err := r.Render(md.String())
	if err != nil {
		return fmt.Errorf("render markdown: %w", err)
	}
	_, err = fmt.Fprint(os.Stdout, styled)
	return err
}

func repairLocal(path string) (map[string]any, *schema.Node, error) {
	tree, err := readJSONFile(path)
	if err != nil {
		return nil, nil, err
	}
	plan, _, s, err := repairTree(tree, previewEnrich)
	return plan, s, err
}

func extractForPreview(args []string) (map[string]any, *schema.Node, error) {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer a.Close()

	src, err := resolveSource(a, args, previewText)
	if err != nil {
		return nil, nil, err
	}

	sp := ui.NewSpinner("Starting...")
	sp.Start()
	events, stop := trackEvents(sp)
	result, err := a.Planner.Extract(ctx, src, planner.Options{Enrich: previewEnrich, Events: events})
	stop()
	sp.Stop()
	if err != nil {
		return nil, nil, err
	}
	return result.Plan, a.Planner.Schema(), nil
}
