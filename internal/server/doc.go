// Package server assembles the blueprint daemon.
//
// The daemon owns one run manager and exposes it three ways:
//   - REST (submit, status, result, cancel, list) under /v1/plans
//   - a WebSocket transition stream under /stream/:id
//   - prometheus metrics and a JSON health check
//
// Server Lifecycle:
//  1. Load configuration from environment
//  2. Initialize logger (production or development)
//  3. Build drivers under the server-side policy
//  4. Setup HTTP routes and middleware
//  5. Serve on a connection-capped listener
//  6. Graceful shutdown: stop accepting, cancel live runs, wait
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(server.Options{Config: cfg})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := srv.Run(); err != nil {
//	    log.Fatal(err)
//	}
package server
