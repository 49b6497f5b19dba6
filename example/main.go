package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jpalmerr/pdfxl"
	"github.com/jpalmerr/pdfxl/internal/mockbackend"
)

func main() {
	// in-process conversion service on :5000
	backend := mockbackend.New(mockbackend.WithProcessingDelay(time.Second))
	defer backend.Close()
	go func() {
		if err := http.ListenAndServe(":5000", backend.Handler()); err != nil {
			slog.Error("mock backend stopped", "error", err)
		}
	}()
	time.Sleep(100 * time.Millisecond)

	style := pdfxl.PresentationStyle{Progress: pdfxl.ProgressBar, Results: pdfxl.ResultCards}

	var wf *pdfxl.Workflow
	dash, err := pdfxl.NewDashboard(pdfxl.DashboardConfig{
		Port:  8080,
		Title: "pdfxl demo",
		Style: style,
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			wf.MetricsHandler().ServeHTTP(w, r)
		}),
	})
	if err != nil {
		slog.Error("failed to create dashboard", "error", err)
		os.Exit(1)
	}

	wf, err = pdfxl.New(
		pdfxl.WithServer("http://localhost:5000"),
		pdfxl.WithPollInterval(500*time.Millisecond),
		pdfxl.WithAllowedExtensions(".pdf"),
		pdfxl.WithSink(pdfxl.NewTextSink(os.Stdout, style)),
		pdfxl.WithSink(dash),
		pdfxl.WithStatusCallback(func(e pdfxl.StatusEvent) {
			slog.Debug("status", "run_id", e.RunID, "processed", e.Snapshot.Processed, "total", e.Snapshot.Total)
		}),
	)
	if err != nil {
		slog.Error("failed to create workflow", "error", err)
		os.Exit(1)
	}
	defer wf.Close()

	// set up context with signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := dash.Start(ctx); err != nil {
		slog.Error("dashboard error", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  pdfxl demo")
	fmt.Println("  Open http://localhost:8080 in your browser")
	fmt.Println("  Press Ctrl+C to stop")
	fmt.Println()

	batch := pdfxl.Batch{
		pdfxl.BlobFromBytes("invoice-2024-01.pdf", []byte("%PDF-1.4 invoice")),
		pdfxl.BlobFromBytes("invoice-2024-02.pdf", []byte("%PDF-1.4 invoice")),
		pdfxl.BlobFromBytes("statement.pdf", []byte("%PDF-1.4 statement")),
	}

	res, err := wf.Submit(ctx, batch)
	if err != nil {
		slog.Error("conversion failed", "error", err, "kind", pdfxl.KindOf(err))
		os.Exit(1)
	}

	dir, err := os.MkdirTemp("", "pdfxl-demo-")
	if err != nil {
		slog.Error("failed to create output directory", "error", err)
		os.Exit(1)
	}
	paths, err := wf.DownloadAll(ctx, res, dir)
	if err != nil {
		slog.Error("download failed", "error", err)
		os.Exit(1)
	}
	for _, p := range paths {
		fmt.Println("Saved", p)
	}

	<-ctx.Done()
}
