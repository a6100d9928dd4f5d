package commands

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/spherical/account-planner/cmd/account-planner/ui"
	"github.com/spherical/account-planner/internal/domain"
	"github.com/spherical/account-planner/internal/extract"
	"github.com/spherical/account-planner/internal/planner"
)

var (
	batchConcurrency int
	batchOutputDir   string
	batchEnrich      bool
	batchFailFast    bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <file|dir>...",
	Short: "Generate plans for many documents",
	Long: `Batch generates one account plan per input document, running several
documents at once. Directories are scanned (not recursively) for supported
files.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().IntVarP(&batchConcurrency, "concurrency", "j", 4, "documents processed at once")
	batchCmd.Flags().StringVarP(&batchOutputDir, "output-dir", "o", "", "output directory (default: render.output_dir)")
	batchCmd.Flags().BoolVar(&batchEnrich, "enrich", false, "rewrite missing fields and lists as narrative text")
	batchCmd.Flags().BoolVar(&batchFailFast, "fail-fast", false, "stop at the first failed document")
	rootCmd.AddCommand(batchCmd)
}

type batchResult struct {
	input  string
	output string
	dur    time.Duration
	err    error
}

func runBatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	inputs, err := collectInputs(args)
	if err != nil {
		return err
	}
	if len(inputs) == 0 {
		return fmt.Errorf("no supported documents found")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	ui.Section("Batch Generation")
	ui.Info("%d documents, %d at a time", len(inputs), batchConcurrency)

	bar := ui.NewProgressBar(len(inputs), "Generating")
	results := make([]batchResult, len(inputs))
	// Output names come from account names, which can collide.
	var mu sync.Mutex
	claimed := map[string]bool{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(batchConcurrency, 1))
	for i, in := range inputs {
		g.Go(func() error {
			start := time.Now()
			res := batchResult{input: in}
			defer func() {
				res.dur = time.Since(start)
				results[i] = res
				bar.Add(1)
			}()

			var buf bytes.Buffer
			out, err := a.Planner.Generate(gctx, domain.Source{Path: in, Filename: filepath.Base(in)}, &buf,
				planner.Options{Enrich: batchEnrich || cfg.Render.Enrich})
			if err != nil {
				res.err = err
				if batchFailFast {
					return fmt.Errorf("%s: %w", in, err)
				}
				return nil
			}

			mu.Lock()
			name := uniqueName(claimed, out.Filename)
			mu.Unlock()

			path, err := outputPath(batchOutputDir, name)
			if err == nil {
				err = os.WriteFile(path, buf.Bytes(), 0o644)
			}
			res.output, res.err = path, err
			if err != nil && batchFailFast {
				return err
			}
			return nil
		})
	}
	groupErr := g.Wait()
	bar.Finish()

	rows := make([][]string, 0, len(results))
	failed := 0
	for _, r := range results {
		status, detail := "ok", r.output
		if r.err != nil {
			failed++
			status, detail = "failed", r.err.Error()
		}
		rows = append(rows, []string{filepath.Base(r.input), status, r.dur.Round(time.Millisecond).String(), detail})
	}
	ui.Table([]string{"Input", "Status", "Time", "Output"}, rows)

	if groupErr != nil {
		return groupErr
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(inputs))
	}
	ui.Success("Generated %d account plans", len(inputs))
	return nil
}

// collectInputs expands directories into their supported files.
func collectInputs(args []string) ([]string, error) {
	var inputs []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			inputs = append(inputs, arg)
			continue
		}
		entries, err := os.ReadDir(arg)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			if !e.IsDir() && extract.Supported(e.Name()) {
				inputs = append(inputs, filepath.Join(arg, e.Name()))
			}
		}
	}
	return inputs, nil
}

// uniqueName returns name, or name with a numeric suffix when taken.
func uniqueName(claimed map[string]bool, name string) string {
	ext := filepath.Ext(name)
	base := name[:len(name)-len(ext)]
	candidate := name
	for n := 2; claimed[candidate]; n++ {
		candidate = fmt.Sprintf("%s_%d%s", base, n, ext)
	}
	claimed[candidate] = true
	return candidate
}
