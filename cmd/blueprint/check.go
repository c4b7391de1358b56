package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
)

var checkPolicyFlag string

var checkCmd = &cobra.Command{
	Use:   "check <plan>",
	Short: "Validate a plan document or compiled plan",
	Long: `check decodes a plan and runs static validation: structure,
combinator arity, platform support, policy admissibility, unused
results, and same-level write races. Errors fail the check; warnings
print but do not.`,
	Args: cobra.ExactArgs(1),
	RunE: runCheck,
}

func init() {
	checkCmd.Flags().StringVar(&checkPolicyFlag, "policy", "", "policy file to validate operations against")
	root.AddCommand(checkCmd)
}

func runCheck(cmd *cobra.Command, args []string) error {
	p, _, err := loadPlan(args[0])
	if err != nil {
		return err
	}
	pol, err := loadRunPolicy(checkPolicyFlag)
	if err != nil {
		return err
	}

	report := plan.Check(p, pol)
	for _, w := range report.Warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	for _, e := range report.Errors {
		fmt.Fprintf(os.Stderr, "error: %s\n", e)
	}
	if !report.OK() {
		return errs.Scriptf("%s: %d error(s)", args[0], len(report.Errors))
	}

	fmt.Printf("%s: %d ops in %d levels, ok\n", args[0], p.Len(), len(report.Levels))
	return nil
}
