// Package logging wraps uber/zap for the engine's structured logs.
//
// Two encoder profiles exist: production emits JSON for machine
// parsing, development emits a colored console form. Both write to
// stderr; stdout belongs to the plans being executed.
//
// Scheduler and driver code attaches run and op identity through
// WithRun and WithOp so every line of a run can be correlated:
//
//	logger := logging.NewDefault()
//	logger.Info("run started", zap.String("run_id", id))
//	logger.WithRun(id).Debug("op ready", zap.Uint64("op", 4))
package logging
