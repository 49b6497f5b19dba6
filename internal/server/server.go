package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jpalmerr/pdfxl/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write.
	// Must be <= shutdown timeout to ensure clean shutdown.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	defaultTitle = "pdfxl"

	indexPath = "assets/index.html"
)

// Page holds the values substituted into the dashboard HTML.
type Page struct {
	// Title is shown in the browser tab and header. Defaults to "pdfxl".
	Title string

	// ProgressStyle is "bar" or "percent".
	ProgressStyle string

	// ResultStyle is "links" or "cards".
	ResultStyle string
}

// placeholders maps template markers in index.html to escaped page values.
func (p Page) placeholders() []string {
	title := p.Title
	if title == "" {
		title = defaultTitle
	}
	return []string{
		"{{.Title}}", html.EscapeString(title),
		"{{.ProgressStyle}}", html.EscapeString(p.ProgressStyle),
		"{{.ResultStyle}}", html.EscapeString(p.ResultStyle),
	}
}

// Server handles HTTP requests for the dashboard and API.
type Server struct {
	store      store.Store
	port       int
	assets     fs.FS
	page       Page
	metrics    http.Handler
	logger     *slog.Logger
	httpServer *http.Server

	mu   sync.Mutex
	addr net.Addr
}

// NewServer creates a new HTTP [Server].
//
// Parameters:
//   - st: Store holding run statuses
//   - port: TCP port to listen on (0 picks a free port)
//   - assets: Embedded filesystem containing dashboard assets (may be nil)
//   - page: Values substituted into the dashboard HTML
//   - metrics: Handler mounted at /metrics (may be nil)
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, port int, assets fs.FS, page Page, metrics http.Handler, logger *slog.Logger) *Server {
	return &Server{
		store:   st,
		port:    port,
		assets:  assets,
		page:    page,
		metrics: metrics,
		logger:  logger,
	}
}

// Handler returns the request router. It is exposed for tests and for
// embedding the dashboard in another server.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/runs", s.handleRuns)
	mux.HandleFunc("/api/runs/{run_id}", s.handleRun)
	mux.HandleFunc("/api/sse", s.handleSSE)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics)
	}
	if s.assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns once the listener is bound. The server
// runs until the context is cancelled, then shuts down gracefully.
//
// Returns an error if the server fails to bind to the configured port.
func (s *Server) Start(ctx context.Context) error {
	// bind synchronously so port errors surface to the caller
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.port))
	if err != nil {
		return fmt.Errorf("failed to bind to port %d: %w", s.port, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		// request contexts derive from ctx so SSE handlers exit on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("http server shutdown error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// handleDashboard serves the main dashboard page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, indexPath)
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	rendered := strings.NewReplacer(s.page.placeholders()...).Replace(string(content))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err = w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleRuns returns all known runs as JSON.
func (s *Server) handleRuns(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.writeJSON(w, s.store.GetAll())
}

// handleRun returns a single run as JSON.
func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	status, ok := s.store.Get(r.PathValue("run_id"))
	if !ok {
		http.Error(w, "Run not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, status)
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("failed to encode response", "error", err)
	}
}

// handleSSE streams run updates via Server-Sent Events.
//
// Writes carry a deadline so a slow or vanished client cannot pin the
// handler past shutdown.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)
	deadlinesSupported := true

	send := func(status store.RunStatus) error {
		data, err := json.Marshal(status)
		if err != nil {
			s.logger.Warn("skipping unencodable run", "run_id", status.RunID, "error", err)
			return nil
		}

		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "event: run\ndata: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	// send headers now; an empty store would otherwise leave the client
	// waiting until the first update
	w.WriteHeader(http.StatusOK)
	if err := rc.Flush(); err != nil {
		return
	}

	// subscribe before the snapshot so no update falls in between
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	for _, status := range s.store.GetAll() {
		if err := send(status); err != nil {
			return
		}
	}

	for {
		select {
		case status, ok := <-ch:
			if !ok {
				return
			}
			if err := send(status); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on client disconnect and on server shutdown (BaseContext)
			return
		}
	}
}
