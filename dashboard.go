package pdfxl

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/jpalmerr/pdfxl/dashboard"
	"github.com/jpalmerr/pdfxl/internal/server"
	"github.com/jpalmerr/pdfxl/internal/store"
)

// DashboardConfig configures a [Dashboard].
type DashboardConfig struct {
	// Port to listen on. Zero picks a free port; see [Dashboard.Addr].
	Port int

	// Title shown in the page header. Defaults to "pdfxl".
	Title string

	// Style selects how the page draws progress and results.
	Style PresentationStyle

	// Metrics, if set, is served at /metrics. Typically
	// [Workflow.MetricsHandler].
	Metrics http.Handler

	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Dashboard is a [Sink] that keeps the latest view of every run and serves
// it as a live web page.
//
// Routes:
//   - GET /              the dashboard page
//   - GET /api/runs      all runs as JSON, oldest first
//   - GET /api/runs/{id} one run as JSON
//   - GET /api/sse       run updates as Server-Sent Events
//   - GET /metrics       Prometheus metrics, if configured
type Dashboard struct {
	store  *store.MemoryStore
	server *server.Server
	logger *slog.Logger
}

// NewDashboard creates a [Dashboard]. Register it with [WithSink] and call
// [Dashboard.Start] to serve it.
func NewDashboard(cfg DashboardConfig) (*Dashboard, error) {
	if cfg.Port < 0 || cfg.Port > 65535 {
		return nil, errors.New("port must be between 0 and 65535")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	style := cfg.Style.withDefaults()

	st := store.NewMemoryStore()
	page := server.Page{
		Title:         cfg.Title,
		ProgressStyle: string(style.Progress),
		ResultStyle:   string(style.Results),
	}
	return &Dashboard{
		store:  st,
		server: server.NewServer(st, cfg.Port, dashboard.Assets, page, cfg.Metrics, logger),
		logger: logger,
	}, nil
}

// Start binds the listener and serves until ctx is cancelled. It returns
// once the listener is bound.
func (d *Dashboard) Start(ctx context.Context) error {
	return d.server.Start(ctx)
}

// Addr returns the bound address, or nil before Start.
func (d *Dashboard) Addr() net.Addr {
	return d.server.Addr()
}

// Handler returns the dashboard's HTTP handler without starting a listener.
func (d *Dashboard) Handler() http.Handler {
	return d.server.Handler()
}

// Runs returns the recorded runs, oldest first.
func (d *Dashboard) Runs() []store.RunStatus {
	return d.store.GetAll()
}

func (d *Dashboard) OnProgress(e ProgressEvent) {
	d.update(e.RunID, func(rs *store.RunStatus) {
		rs.State = StateUploading.String()
		rs.Files = e.Files
		rs.UploadPercent = e.Percent
	})
}

func (d *Dashboard) OnStatus(e StatusEvent) {
	d.update(e.RunID, func(rs *store.RunStatus) {
		rs.State = StateProcessing.String()
		rs.TaskID = string(e.TaskHandle)
		rs.UploadPercent = 100
		rs.Processed = e.Snapshot.Processed
		rs.Total = e.Snapshot.Total
	})
}

func (d *Dashboard) OnTerminal(r Result) {
	d.update(r.RunID, func(rs *store.RunStatus) {
		rs.State = r.State.String()
		rs.TaskID = string(r.TaskHandle)
		rs.Processed = r.Snapshot.Processed
		rs.Total = r.Snapshot.Total
		rs.Downloads = nil
		for _, dl := range r.Downloads {
			rs.Downloads = append(rs.Downloads, store.DownloadLink{Label: dl.Label(), URL: dl.URL})
		}
		rs.Error = nil
		if r.Err != nil {
			msg := UserMessage(r.Err)
			rs.Error = &msg
		}
	})
}

// update merges a change into the stored view of a run.
func (d *Dashboard) update(runID string, apply func(*store.RunStatus)) {
	now := time.Now()
	rs, ok := d.store.Get(runID)
	if !ok {
		rs = store.RunStatus{RunID: runID, StartedAt: now}
	}
	apply(&rs)
	rs.UpdatedAt = now
	d.store.Update(rs)
}
