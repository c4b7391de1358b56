package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/GriffinCanCode/blueprint/internal/drivers"
	"github.com/GriffinCanCode/blueprint/internal/executor"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/config"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/logging"
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/plan/planfile"
	"github.com/GriffinCanCode/blueprint/internal/shared/errs"
)

var (
	runDryFlag    bool
	runPolicyFlag string

	execDryFlag    bool
	execPolicyFlag string
)

var runCmd = &cobra.Command{
	Use:   "run <plan.json|plan.yaml>",
	Short: "Execute a plan document",
	Args:  cobra.ExactArgs(1),
	RunE:  runRun,
}

var execCmd = &cobra.Command{
	Use:   "exec <plan.bp>",
	Short: "Execute a compiled plan",
	Args:  cobra.ExactArgs(1),
	RunE:  runExec,
}

func init() {
	runCmd.Flags().BoolVar(&runDryFlag, "dry-run", false, "print the plan instead of executing it")
	runCmd.Flags().StringVar(&runPolicyFlag, "policy", "", "policy file to enforce")
	execCmd.Flags().BoolVar(&execDryFlag, "dry-run", false, "print the plan instead of executing it")
	execCmd.Flags().StringVar(&execPolicyFlag, "policy", "", "policy file to enforce")
	root.AddCommand(runCmd)
	root.AddCommand(execCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return errs.Scriptf("cannot read %s: %v", args[0], err)
	}
	if planfile.Sniff(raw) {
		return errs.Scriptf("%s is compiled; use exec", args[0])
	}
	p, err := loadDocument(args[0], raw)
	if err != nil {
		return err
	}
	return executePlan(p, runDryFlag, runPolicyFlag)
}

func runExec(cmd *cobra.Command, args []string) error {
	raw, err := os.ReadFile(args[0])
	if err != nil {
		return errs.Scriptf("cannot read %s: %v", args[0], err)
	}
	if !planfile.Sniff(raw) {
		return errs.Scriptf("%s is not a compiled plan; use run", args[0])
	}
	p, _, err := planfile.Unmarshal(raw)
	if err != nil {
		return err
	}
	return executePlan(p, execDryFlag, execPolicyFlag)
}

// executePlan drives one plan to a terminal outcome on this process's
// drivers, cancelling on SIGINT/SIGTERM. The final value prints to
// stdout when it is not null.
func executePlan(p *plan.Plan, dryRun bool, policyFlag string) error {
	if dryRun {
		fmt.Print(p.String())
		return nil
	}

	cfg := config.LoadOrDefault()
	logger := buildLogger(cfg)
	defer func() { _ = logger.Sync() }()

	pol, err := loadRunPolicy(policyFlag)
	if err != nil {
		return err
	}

	set := drivers.New(drivers.Options{
		Config: cfg,
		Logger: logger,
		Policy: pol,
	})
	family, release := set.ForRun()
	defer release()

	ex := executor.New(executor.Options{
		MaxConcurrent: cfg.Executor.MaxConcurrent,
		Drivers:       family,
		Logger:        logger,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := ex.Execute(ctx, p)
	if err != nil {
		return err
	}
	if out.Status != executor.StatusSucceeded {
		reportFailure(out)
		return &runFailure{err: out.Err()}
	}

	if final := out.Final(); !final.IsNull() {
		fmt.Println(final.String())
	}
	return nil
}

// reportFailure prints the root cause and the ops that never ran
// because of it.
func reportFailure(out *executor.Outcome) {
	if cause := out.Err(); cause != nil {
		fmt.Fprintln(os.Stderr, cause)
	}
	if chain := out.DependencyChain(); len(chain) > 0 {
		ids := make([]string, len(chain))
		for i, id := range chain {
			ids[i] = fmt.Sprintf("op%d", id)
		}
		fmt.Fprintf(os.Stderr, "never ran: %s\n", strings.Join(ids, ", "))
	}
}

// buildLogger honors BLUEPRINT_LOG_LEVEL and BLUEPRINT_LOG_DEV.
func buildLogger(cfg *config.Config) *logging.Logger {
	lcfg := logging.DefaultConfig()
	if cfg.Logging.Development {
		lcfg = logging.DevelopmentConfig()
	}
	if cfg.Logging.Level != "" {
		lcfg.Level = cfg.Logging.Level
	}
	logger, err := logging.New(lcfg)
	if err != nil {
		return logging.NewDefault()
	}
	return logger
}
