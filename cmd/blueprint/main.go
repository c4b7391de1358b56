// Command blueprint drives the plan engine from the shell: validate,
// compile, inspect, and execute plans, or serve the HTTP daemon.
package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/blueprint/internal/execctx"
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/plan/planfile"
	"github.com/GriffinCanCode/blueprint/internal/policy"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
)

var root = &cobra.Command{
	Use:   "blueprint",
	Short: "Two-phase plan engine: build once, execute concurrently",
	Long: `blueprint validates, compiles, inspects, and executes plans.

Plans arrive as JSON/YAML documents or compiled .bp files. Execution
resolves data and order dependencies, runs independent operations
concurrently, and reports a structured outcome.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "blueprint:", err)
		os.Exit(exitCode(err))
	}
}

// runFailure marks a plan that scheduled and then failed, as opposed to
// one that never loaded. The distinction is the exit code.
type runFailure struct{ err error }

func (f *runFailure) Error() string { return f.err.Error() }
func (f *runFailure) Unwrap() error { return f.err }

// exitCode maps errors onto the process exit code: 1 script/plan error,
// 2 execution failure, 3 cancellation.
func exitCode(err error) int {
	if errs.IsCancelled(err) {
		return 3
	}
	var rf *runFailure
	if errors.As(err, &rf) {
		return 2
	}
	return 1
}

// loadPlan reads a plan from path: compiled plans by magic, YAML by
// extension, JSON otherwise. Compiled plans come back with metadata.
func loadPlan(path string) (*plan.Plan, *planfile.Metadata, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, errs.Scriptf("cannot read %s: %v", path, err)
	}
	if planfile.Sniff(data) {
		p, meta, err := planfile.Unmarshal(data)
		if err != nil {
			return nil, nil, err
		}
		return p, &meta, nil
	}
	p, err := loadDocument(path, data)
	return p, nil, err
}

func loadDocument(path string, data []byte) (*plan.Plan, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return plan.ImportYAML(data)
	default:
		return plan.ImportJSON(data)
	}
}

// loadRunPolicy resolves the policy for executing commands: an explicit
// --policy flag wins, otherwise the policy named by blueprint.toml in
// the working directory, otherwise none.
func loadRunPolicy(explicit string) (*policy.Policy, error) {
	path := explicit
	if path == "" {
		data, err := os.ReadFile(execctx.ProjectFile)
		if err != nil {
			return nil, nil
		}
		proj, err := execctx.ParseProject(data)
		if err != nil {
			return nil, err
		}
		path = proj.Policy
		if path == "" {
			return nil, nil
		}
	}
	return policy.Load(path)
}
