// Package mockbackend is an in-process stand-in for the PDF-to-Excel
// conversion service. It accepts batch uploads, simulates per-file
// processing in the background and serves the produced workbooks.
//
// It backs the package tests and the example mock server.
package mockbackend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	maxUploadMemory = 32 << 20
	outputPrefix    = "PID_Extract_Structured_Data_"
)

type task struct {
	total     int
	processed int
	downloads []string
}

// Backend serves the upload, status and download routes of the conversion
// service.
type Backend struct {
	delay  time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	tasks   map[string]*task
	outputs map[string][]byte

	uploads     atomic.Int32
	statusCalls atomic.Int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Option configures a [Backend].
type Option func(*Backend)

// WithProcessingDelay sets how long each file takes to "convert".
func WithProcessingDelay(d time.Duration) Option {
	return func(b *Backend) {
		b.delay = d
	}
}

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(b *Backend) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a Backend. Call [Backend.Close] to stop background processing.
func New(opts ...Option) *Backend {
	ctx, cancel := context.WithCancel(context.Background())
	b := &Backend{
		delay:   200 * time.Millisecond,
		logger:  slog.Default(),
		tasks:   make(map[string]*task),
		outputs: make(map[string][]byte),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Handler returns the service routes:
//
//	POST /upload             multipart field "files", returns {"task_id": ...}
//	GET  /status/{task_id}   returns {processed, total, done, downloads}
//	GET  /download/{name}    returns a produced workbook as an attachment
func (b *Backend) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /upload", b.handleUpload)
	mux.HandleFunc("GET /status/{task_id}", b.handleStatus)
	mux.HandleFunc("GET /download/{name}", b.handleDownload)
	return mux
}

// Close stops background processing and waits for it to exit.
func (b *Backend) Close() {
	b.cancel()
	b.wg.Wait()
}

// Uploads returns the number of upload requests received.
func (b *Backend) Uploads() int {
	return int(b.uploads.Load())
}

// StatusCalls returns the number of status requests received.
func (b *Backend) StatusCalls() int {
	return int(b.statusCalls.Load())
}

func (b *Backend) handleUpload(w http.ResponseWriter, r *http.Request) {
	b.uploads.Add(1)

	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No files"})
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No files"})
		return
	}

	names := make([]string, 0, len(headers))
	for _, fh := range headers {
		name, err := drain(fh)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		names = append(names, name)
	}

	taskID := uuid.NewString()
	b.mu.Lock()
	b.tasks[taskID] = &task{total: len(names)}
	b.mu.Unlock()

	b.logger.Info("batch accepted", "task_id", taskID, "files", len(names))

	b.wg.Add(1)
	go b.process(taskID, names)

	writeJSON(w, http.StatusOK, map[string]string{"task_id": taskID})
}

// drain reads an uploaded part fully and returns its sanitized name.
func drain(fh *multipart.FileHeader) (string, error) {
	f, err := fh.Open()
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := io.Copy(io.Discard, f); err != nil {
		return "", fmt.Errorf("reading %s: %w", fh.Filename, err)
	}
	return secureName(fh.Filename), nil
}

// process converts the files of a task one at a time. Files without a .pdf
// extension are counted but produce no workbook.
func (b *Backend) process(taskID string, names []string) {
	defer b.wg.Done()

	timer := time.NewTimer(b.delay)
	defer timer.Stop()

	for i, name := range names {
		if i > 0 {
			timer.Reset(b.delay)
		}
		select {
		case <-b.ctx.Done():
			return
		case <-timer.C:
		}

		b.mu.Lock()
		t := b.tasks[taskID]
		if isPDF(name) {
			out := outputPrefix + name + ".xlsx"
			b.outputs[out] = []byte(fmt.Sprintf("mock workbook for %s\n", name))
			t.downloads = append(t.downloads, "/download/"+out)
		}
		t.processed++
		b.mu.Unlock()

		b.logger.Debug("file processed", "task_id", taskID, "file", name)
	}
}

func (b *Backend) handleStatus(w http.ResponseWriter, r *http.Request) {
	b.statusCalls.Add(1)

	b.mu.Lock()
	var resp struct {
		Total     int      `json:"total"`
		Processed int      `json:"processed"`
		Downloads []string `json:"downloads"`
		Done      bool     `json:"done"`
	}
	resp.Downloads = []string{}
	// unknown tasks report zeros, which reads as done
	if t, ok := b.tasks[r.PathValue("task_id")]; ok {
		resp.Total = t.total
		resp.Processed = t.processed
		resp.Downloads = append(resp.Downloads, t.downloads...)
	}
	resp.Done = resp.Processed == resp.Total
	b.mu.Unlock()

	writeJSON(w, http.StatusOK, resp)
}

func (b *Backend) handleDownload(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	b.mu.Lock()
	data, ok := b.outputs[name]
	b.mu.Unlock()
	if !ok {
		http.Error(w, "Not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	_, _ = w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to write response", "error", err)
	}
}

func isPDF(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".pdf")
}

// secureName reduces a client-supplied file name to a safe base name.
func secureName(name string) string {
	name = path.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		default:
			return -1
		}
	}, name)
	name = strings.TrimLeft(name, ".")
	if name == "" {
		return "upload"
	}
	return name
}
