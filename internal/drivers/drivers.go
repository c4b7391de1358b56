// Package drivers assembles the per-family driver set handed to the
// executor. Filesystem, HTTP, process, clock, and console drivers are
// shared across runs; the event driver is built fresh per run so handles
// never leak between plans.
package drivers

import (
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/GriffinCanCode/blueprint/internal/drivers/clock"
	"github.com/GriffinCanCode/blueprint/internal/drivers/console"
	"github.com/GriffinCanCode/blueprint/internal/drivers/fs"
	"github.com/GriffinCanCode/blueprint/internal/drivers/proc"
	"github.com/GriffinCanCode/blueprint/internal/drivers/web"
	"github.com/GriffinCanCode/blueprint/internal/events"
	"github.com/GriffinCanCode/blueprint/internal/executor"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/config"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/logging"
	"github.com/GriffinCanCode/blueprint/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/blueprint/internal/plan"
	"github.com/GriffinCanCode/blueprint/internal/policy"
)

// Options configures the driver set. Zero fields fall back to production
// defaults: OS filesystem, process stdio, default config.
type Options struct {
	Config  *config.Config
	Logger  *logging.Logger
	Metrics *monitoring.Metrics
	Policy  *policy.Policy
	FS      afero.Fs
	Stdout  io.Writer
	Stderr  io.Writer
}

// Set holds the shared drivers plus what per-run event tables need.
type Set struct {
	fs      *fs.Driver
	web     *web.Driver
	proc    *proc.Driver
	clock   *clock.Driver
	console *console.Driver

	events  config.EventsConfig
	log     *logging.Logger
	metrics *monitoring.Metrics
	pol     *policy.Policy
}

// New builds the shared drivers.
func New(opts Options) *Set {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Logger
	if log == nil {
		log = logging.NewNop()
	}

	var fsDriver *fs.Driver
	if opts.FS != nil {
		fsDriver = fs.NewWithFs(opts.FS, opts.Policy)
	} else {
		fsDriver = fs.New(opts.Policy)
	}

	stdout := opts.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	stderr := opts.Stderr
	if stderr == nil {
		stderr = os.Stderr
	}

	return &Set{
		fs:      fsDriver,
		web:     web.New(cfg.HTTP, opts.Policy),
		proc:    proc.New(opts.Policy),
		clock:   clock.New(),
		console: console.NewWithStreams(stdout, stderr),
		events:  cfg.Events,
		log:     log,
		metrics: opts.Metrics,
		pol:     opts.Policy,
	}
}

// ForRun returns the family map for one execution plus a release func that
// tears down the run's event table. Callers must invoke release once the
// run is terminal.
func (s *Set) ForRun() (map[plan.Family]executor.Driver, func()) {
	table := events.NewTable(s.events, s.log, s.metrics)
	m := map[plan.Family]executor.Driver{
		plan.FamilyFS:      s.fs,
		plan.FamilyHTTP:    s.web,
		plan.FamilyProc:    s.proc,
		plan.FamilyTime:    s.clock,
		plan.FamilyConsole: s.console,
		plan.FamilyEvent:   events.NewDriver(table, s.pol),
	}
	return m, table.Shutdown
}
