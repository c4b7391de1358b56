package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/plan/planfile"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
)

var (
	compileOutFlag   string
	compileOptFlag   string
	compileStripFlag bool
)

var compileCmd = &cobra.Command{
	Use:   "compile <plan>",
	Short: "Compile a plan document to a .bp file",
	Long: `compile emits the compact binary form of a plan: zstd-compressed
payload, source hash, and compile timestamp. -O selects optimization:
0 none, 1 prune unreachable ops, 2 additionally fold literal compute.
--strip drops spans and the source name from the output.`,
	Args: cobra.ExactArgs(1),
	RunE: runCompile,
}

func init() {
	compileCmd.Flags().StringVarP(&compileOutFlag, "output", "o", "", "output path (default: input with .bp extension)")
	compileCmd.Flags().StringVarP(&compileOptFlag, "optimize", "O", "1", "optimization level: 0, 1, or 2")
	compileCmd.Flags().BoolVar(&compileStripFlag, "strip", false, "drop spans and source name")
	root.AddCommand(compileCmd)
}

func runCompile(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return errs.Scriptf("cannot read %s: %v", args[0], err)
	}
	if planfile.Sniff(raw) {
		return errs.Scriptf("%s is already compiled", args[0])
	}
	p, err := loadDocument(args[0], raw)
	if err != nil {
		return err
	}

	level, err := plan.ParseOptLevel(compileOptFlag)
	if err != nil {
		return err
	}
	p, stats, err := plan.Optimize(p, level)
	if err != nil {
		return err
	}

	out := compileOutFlag
	if out == "" {
		out = strings.TrimSuffix(args[0], filepath.Ext(args[0])) + ".bp"
	}

	meta := planfile.Metadata{
		SourceHash: planfile.HashSource(raw),
		CompiledAt: time.Now(),
	}
	if !compileStripFlag {
		meta.SourceName = filepath.Base(args[0])
	}

	data, err := planfile.Marshal(p, meta, planfile.Options{Compress: true, Strip: compileStripFlag})
	if err != nil {
		return err
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return errs.Scriptf("cannot write %s: %v", out, err)
	}

	fmt.Printf("%s: %d ops", out, p.Len())
	if stats.Folded > 0 || stats.Pruned > 0 {
		fmt.Printf(" (folded %d, pruned %d)", stats.Folded, stats.Pruned)
	}
	fmt.Printf(", %d bytes\n", len(data))
	return nil
}
