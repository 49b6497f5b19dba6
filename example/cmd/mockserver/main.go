// Standalone mock conversion service for trying the CLI.
//
// Usage:
//
//	go run ./example/cmd/mockserver
//
// Then in another terminal:
//
//	go run ./cmd/pdfxl convert -c example/config.yaml some.pdf
package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/jpalmerr/pdfxl/internal/mockbackend"
)

func main() {
	addr := ":5000"
	if v := os.Getenv("MOCK_ADDR"); v != "" {
		addr = v
	}

	fmt.Printf("Mock conversion service starting on %s\n", addr)
	fmt.Println("Each PDF takes about two seconds to convert")
	fmt.Println("Press Ctrl+C to stop")
	fmt.Println()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	backend := mockbackend.New(
		mockbackend.WithProcessingDelay(2*time.Second),
		mockbackend.WithLogger(logger),
	)
	defer backend.Close()

	if err := http.ListenAndServe(addr, backend.Handler()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
