// Package pdfxl is a client for PDF-to-Excel conversion services that
// accept a multipart batch upload and report progress through a status
// endpoint.
//
// A [Workflow] uploads a [Batch] while reporting byte-level progress,
// polls the status endpoint until the server reports completion, and hands
// every step to one or more [Sink] implementations for presentation.
//
// # Quick Start
//
//	wf, err := pdfxl.New(
//	    pdfxl.WithServer("http://localhost:5000"),
//	    pdfxl.WithAllowedExtensions(".pdf"),
//	    pdfxl.WithSink(pdfxl.NewTextSink(os.Stdout, pdfxl.PresentationStyle{})),
//	)
//	if err != nil {
//	    return err
//	}
//
//	batch, err := pdfxl.BatchFromFiles("q1.pdf", "q2.pdf")
//	if err != nil {
//	    return err
//	}
//
//	res, err := wf.Submit(ctx, batch)
//	if err != nil {
//	    return err // *pdfxl.Error, see Kind
//	}
//	paths, err := wf.DownloadAll(ctx, res, "out")
//
// # Lifecycle
//
// Each Submit moves the workflow through Idle → Uploading → Processing and
// ends in Completed or Failed. Status checks are chained: the next check is
// scheduled one poll interval after the previous one returned, so checks
// never overlap. Any failure is terminal and is not retried.
//
// # Presentation
//
// [TextSink] prints progress to a terminal in the configured
// [PresentationStyle]. [Dashboard] serves the same events as a live web
// page with a JSON API, Server-Sent Events and Prometheus metrics.
//
// # Architecture
//
//   - internal/poller: HTTP client, multipart body, chained polling loop
//   - internal/store: in-memory run views with pub/sub
//   - internal/server: dashboard HTTP server, REST API and SSE
//   - internal/metrics: Prometheus collectors
//   - internal/mockbackend: reference conversion service for tests and demos
//   - dashboard: embedded web UI assets
package pdfxl
