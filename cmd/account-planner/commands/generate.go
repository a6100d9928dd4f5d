package commands

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/spherical/account-planner/cmd/account-planner/ui"
	"github.com/spherical/account-planner/internal/planner"
)

var (
	generateText     string
	generateOutput   string
	generateTemplate string
	generateEnrich   bool
)

var generateCmd = &cobra.Command{
	Use:   "generate [file]",
	Short: "Generate an account plan document",
	Long: `Generate reads an account document (or pasted text with --text), extracts
the account plan with the configured model and renders it into the Word
template. The output is named after the account unless --output names a
.docx file.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runGenerate,
}

func init() {
	generateCmd.Flags().StringVarP(&generateText, "text", "t", "", `pasted account text ("-" reads stdin)`)
	generateCmd.Flags().StringVarP(&generateOutput, "output", "o", "", "output .docx file or directory (default: render.output_dir)")
	generateCmd.Flags().StringVar(&generateTemplate, "template", "", "Word template (default: render.template_path)")
	generateCmd.Flags().BoolVar(&generateEnrich, "enrich", false, "rewrite missing fields and lists as narrative text")
	rootCmd.AddCommand(generateCmd)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	if generateTemplate != "" {
		cfg.Render.TemplatePath = generateTemplate
	}
	if _, err := os.Stat(cfg.Render.TemplatePath); err != nil {
		return fmt.Errorf("template %s: %w", cfg.Render.TemplatePath, err)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := resolveSource(a, args, generateText)
	if err != nil {
		return err
	}

	ui.Section("Account Plan Generation")
	ui.Info("Input: %s", src.Filename)
	ui.Info("Template: %s", cfg.Render.TemplatePath)

	sp := ui.NewSpinner("Starting...")
	sp.Start()
	events, stop := trackEvents(sp)

	var buf bytes.Buffer
	result, err := a.Planner.Generate(ctx, src, &buf, planner.Options{
		Enrich: generateEnrich || cfg.Render.Enrich,
		Events: events,
	})
	stop()
	sp.Stop()
	if err != nil {
		ui.Error("Generation failed")
		return err
	}

	path, err := outputPath(generateOutput, result.Filename)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	if result.CacheHit {
		ui.Info("Model response served from cache")
	}
	ui.Success("Wrote %s (%s) in %v", path, humanize.Bytes(uint64(buf.Len())), result.Duration.Round(time.Millisecond))
	return nil
}
