package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
)

var (
	schemaJSONFlag bool
	schemaDOTFlag  bool
)

var schemaCmd = &cobra.Command{
	Use:   "schema <plan>",
	Short: "Print a plan's static structure",
	Long: `schema renders the plan without executing it: a per-level text
listing by default, the JSON document form with --json, or GraphViz
DOT with --dot.`,
	Args: cobra.ExactArgs(1),
	RunE: runSchema,
}

func init() {
	schemaCmd.Flags().BoolVar(&schemaJSONFlag, "json", false, "emit the JSON document form")
	schemaCmd.Flags().BoolVar(&schemaDOTFlag, "dot", false, "emit GraphViz DOT")
	root.AddCommand(schemaCmd)
}

func runSchema(cmd *cobra.Command, args []string) error {
	if schemaJSONFlag && schemaDOTFlag {
		return errs.Scriptf("--json and --dot are mutually exclusive")
	}

	p, _, err := loadPlan(args[0])
	if err != nil {
		return err
	}

	switch {
	case schemaJSONFlag:
		out, err := p.ExportJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	case schemaDOTFlag:
		fmt.Print(p.ExportDOT())
	default:
		fmt.Print(p.String())
	}
	return nil
}
