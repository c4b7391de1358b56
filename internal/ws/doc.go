// Package ws streams node state transitions over WebSocket.
//
// One connection watches one run. The server pushes frames; clients
// send nothing but control frames. Subscribing to an already-settled
// run yields the hello and outcome frames and a normal close.
//
// Frame Types (Server → Client):
//   - hello: run id, coarse status, op count, current state tally
//   - transition: one node state change (op, kind, from, to, at, error?)
//   - outcome: terminal status, final state tally, duration, error?
//
// Slow consumers miss transitions rather than stall the scheduler; the
// hello and outcome tallies let a client reconstruct the end state
// regardless.
//
// Example Usage:
//
//	handler := ws.NewHandler(runManager, metrics, logger)
//	router.GET("/stream/:id", handler.HandleConnection)
package ws
