package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/plan/planfile"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
	"github.com/GriffinCanCode/blueprint/internal/value"
)

var (
	inspectJSONFlag   bool
	inspectTextFlag   bool
	inspectDisasmFlag bool
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <plan.bp>",
	Short: "Pretty-print a compiled plan",
	Long: `inspect decodes a compiled plan and prints its metadata. --text
adds the per-op listing, --json the document form, and --disasm the
low-level node records with wire tags.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().BoolVar(&inspectJSONFlag, "json", false, "emit the JSON document form")
	inspectCmd.Flags().BoolVar(&inspectTextFlag, "text", false, "emit the per-op listing")
	inspectCmd.Flags().BoolVar(&inspectDisasmFlag, "disasm", false, "emit node records with wire tags")
	root.AddCommand(inspectCmd)
}

func runInspect(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return errs.Scriptf("cannot read %s: %v", args[0], err)
	}
	if !planfile.Sniff(raw) {
		return errs.Scriptf("%s is not a compiled plan", args[0])
	}
	p, meta, err := planfile.Unmarshal(raw)
	if err != nil {
		return err
	}

	fmt.Printf("file:    %s (%d bytes)\n", args[0], len(raw))
	fmt.Printf("schema:  v%d\n", plan.SchemaVersion)
	fmt.Printf("ops:     %d\n", p.Len())
	fmt.Printf("roots:   %s\n", opIDs(p.Roots()))
	if !meta.CompiledAt.IsZero() {
		fmt.Printf("compiled: %s\n", meta.CompiledAt.UTC().Format("2006-01-02T15:04:05Z"))
	}
	if meta.SourceName != "" {
		fmt.Printf("source:  %s\n", meta.SourceName)
	}
	if meta.SourceHash != "" {
		fmt.Printf("sha256:  %s\n", meta.SourceHash)
	}

	if inspectJSONFlag {
		out, err := p.ExportJSON()
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	}
	if inspectTextFlag {
		fmt.Println()
		fmt.Print(p.String())
	}
	if inspectDisasmFlag {
		fmt.Println()
		disasm(p)
	}
	return nil
}

// disasm prints one line per node record: wire tag, family, summary,
// and the data/order deps the scheduler will honor.
func disasm(p *plan.Plan) {
	for _, n := range p.Nodes() {
		mark := " "
		if p.IsRoot(n.ID) {
			mark = "*"
		}
		fmt.Printf("%s 0x%04x %-10s %s", mark, n.Kind.Tag(), n.Kind.Family(), n.Summary())
		if len(n.DataDeps) > 0 {
			fmt.Printf("  data=%s", opIDs(n.DataDeps))
		}
		if len(n.OrderDeps) > 0 {
			fmt.Printf("  order=%s", opIDs(n.OrderDeps))
		}
		if n.Span != nil {
			fmt.Printf("  @%s", n.Span)
		}
		fmt.Println()
	}
}

func opIDs(ids []value.NodeID) string {
	var b strings.Builder
	for i, id := range ids {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "op%d", id)
	}
	return b.String()
}
