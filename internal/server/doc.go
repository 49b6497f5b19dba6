// Package server provides the HTTP server behind the pdfxl live dashboard.
//
// This package is internal to pdfxl and handles all HTTP concerns:
//
//   - Dashboard serving: the embedded HTML page at "/"
//   - REST API: "/api/runs" (all runs) and "/api/runs/{run_id}" (one run)
//   - Server-Sent Events: real-time run updates at "/api/sse"
//   - Metrics: Prometheus exposition at "/metrics" when a handler is supplied
//
// The server supports graceful shutdown via context cancellation, with a
// 5-second timeout for in-flight requests.
package server
