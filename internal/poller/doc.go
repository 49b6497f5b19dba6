// Package poller provides the HTTP plumbing and the polling loop behind the
// pdfxl workflow.
//
// The main components are:
//
//   - [Client]: HTTP client wrapper with per-request timeouts and size limits
//   - [MultipartBody]: pre-measured multipart/form-data body with progress reporting
//   - [Poller]: chained, non-overlapping polling loop with cancel-on-exit
//
// Users of the pdfxl library should not need to interact with this package
// directly. Configuration is done through the main pdfxl package.
package poller
