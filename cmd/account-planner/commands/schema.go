package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/spherical/account-planner/internal/schema"
)

var schemaPaths bool

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Print the account plan structure",
	Long:  "Schema prints the default plan skeleton as JSON, or every key path with --paths.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := schema.LoadFile(cfg.Schema.Path)
		if err != nil {
			return err
		}
		if schemaPaths {
			for _, p := range s.Paths() {
				fmt.Fprintln(os.Stdout, p)
			}
			return nil
		}
		skeleton, err := s.Skeleton()
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(os.Stdout, "%s\n", skeleton)
		return err
	},
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaPaths, "paths", false, "list key paths instead of the skeleton")
	rootCmd.AddCommand(schemaCmd)
}
