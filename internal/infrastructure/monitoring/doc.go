/*
Package monitoring provides Prometheus metrics for the engine and its
daemon.

# Overview

One Metrics collector tracks everything observable about the engine:
plan runs, per-op execution, the ready queue, event sources, daemon
HTTP traffic, and WebSocket stream subscribers.

# Usage

	// Create metrics collector
	metrics := monitoring.NewMetrics()

	// Add middleware to the Gin router
	router.Use(monitoring.Middleware(metrics))

	// Record engine activity
	metrics.RecordRun("succeeded", duration)
	metrics.RecordOp("read_file", "succeeded", duration)
	metrics.SetOpsRunning(3)

# Metrics Endpoint

Expose the collector's registry on the daemon:

	router.GET("/metrics", gin.WrapH(metrics.Handler()))

Tests construct collectors on private registries with NewMetricsWith so
repeated registration never collides.
*/
package monitoring
