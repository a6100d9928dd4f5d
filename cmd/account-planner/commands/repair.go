package commands

import (
	"github.com/spf13/cobra"

	"github.com/spherical/account-planner/cmd/account-planner/ui"
	"github.com/spherical/account-planner/internal/enrich"
	"github.com/spherical/account-planner/internal/repair"
	"github.com/spherical/account-planner/internal/sanitize"
	"github.com/spherical/account-planner/internal/schema"
)

// repairTree sanitizes and repairs tree locally with the configured
// schema and vocabulary.
func repairTree(tree any, narrative bool) (map[string]any, repair.Report, *schema.Node, error) {
	s, err := schema.LoadFile(cfg.Schema.Path)
	if err != nil {
		return nil, repair.Report{}, nil, err
	}
	engine := repair.New(repair.Options{Junk: cfg.Sanitize.Junk, Placeholder: cfg.Sanitize.Placeholder})
	plan, report, err := engine.RepairWithReport(sanitize.New(cfg.Sanitize).Sanitize(tree), s)
	if err != nil {
		return nil, report, nil, err
	}
	if narrative {
		plan = enrich.New(enrich.Config{Placeholder: cfg.Sanitize.Placeholder}).Enrich(plan)
	}
	return plan, report, s, nil
}

var (
	repairOutput string
	repairEnrich bool
)

var repairCmd = &cobra.Command{
	Use:   "repair <plan.json|->",
	Short: "Sanitize and repair a plan tree",
	Long: `Repair reads a JSON plan tree, cleans its text and fills in every field the
template needs. No model is called, so no API key is required.`,
	Args: cobra.ExactArgs(1),
	RunE: runRepair,
}

func init() {
	repairCmd.Flags().StringVarP(&repairOutput, "output", "o", "", "write JSON to this file instead of stdout")
	repairCmd.Flags().BoolVar(&repairEnrich, "enrich", false, "also apply the narrative transforms")
	rootCmd.AddCommand(repairCmd)
}

func runRepair(cmd *cobra.Command, args []string) error {
	tree, err := readJSONFile(args[0])
	if err != nil {
		return err
	}

	plan, report, _, err := repairTree(tree, repairEnrich)
	if err != nil {
		return err
	}

	ui.Debug("inserted %d keys, replaced %d values, synthesized %d lists, replaced %d elements, %d placeholder leaves",
		report.InsertedKeys, report.ReplacedValues, report.SynthesizedLists, report.ReplacedElements, report.PlaceholderLeaves)

	return writeJSON(repairOutput, plan)
}
