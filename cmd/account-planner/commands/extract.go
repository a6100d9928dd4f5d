package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/account-planner/cmd/account-planner/ui"
	"github.com/spherical/account-planner/internal/planner"
)

var (
	extractText   string
	extractOutput string
	extractEnrich bool
)

var extractCmd = &cobra.Command{
	Use:   "extract [file]",
	Short: "Extract the repaired plan as JSON",
	Long:  "Extract runs the model and repair steps and prints the plan tree as JSON instead of rendering a document.",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runExtract,
}

func init() {
	extractCmd.Flags().StringVarP(&extractText, "text", "t", "", `pasted account text ("-" reads stdin)`)
	extractCmd.Flags().StringVarP(&extractOutput, "output", "o", "", "write JSON to this file instead of stdout")
	extractCmd.Flags().BoolVar(&extractEnrich, "enrich", false, "return the narrative form")
	rootCmd.AddCommand(extractCmd)
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx, cancel := signalContext()
	defer cancel()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	src, err := resolveSource(a, args, extractText)
	if err != nil {
		return err
	}

	sp := ui.NewSpinner("Starting...")
	sp.Start()
	events, stop := trackEvents(sp)
	result, err := a.Planner.Extract(ctx, src, planner.Options{Enrich: extractEnrich, Events: events})
	stop()
	sp.Stop()
	if err != nil {
		return err
	}

	if err := writeJSON(extractOutput, result.Plan); err != nil {
		return err
	}
	if extractOutput != "" {
		ui.Success("Wrote %s", extractOutput)
	}
	return nil
}
