package pdfxl

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jpalmerr/pdfxl/internal/metrics"
	"github.com/jpalmerr/pdfxl/internal/poller"
)

const (
	defaultUploadPath   = "/upload"
	defaultStatusPath   = "/status/{task_id}"
	defaultPollInterval = time.Second
)

// Workflow drives one conversion at a time through upload, status polling
// and result presentation.
//
// A Workflow is created with [New] and reused across runs:
//
//	wf, err := pdfxl.New(
//	    pdfxl.WithServer("http://localhost:5000"),
//	    pdfxl.WithSink(pdfxl.NewTextSink(os.Stdout, pdfxl.PresentationStyle{})),
//	)
//	if err != nil {
//	    slog.Error("failed to create workflow", "error", err)
//	    os.Exit(1)
//	}
//
//	batch, _ := pdfxl.BatchFromFiles("a.pdf", "b.pdf")
//	res, err := wf.Submit(ctx, batch)
//
// All methods are safe for concurrent use, but only one run may be active:
// a concurrent Submit returns [ErrBusy].
type Workflow struct {
	submitter    Submitter
	oracle       StatusOracle
	client       *poller.Client
	base         *url.URL
	pollInterval time.Duration
	allowed      []string
	sinks        sinks
	logger       *slog.Logger
	metrics      *metrics.Collector
	downloader   *Downloader

	mu     sync.Mutex
	state  State
	runID  string
	handle TaskHandle
	poller *poller.Poller
}

// New creates a [Workflow] with the given options.
//
// Either [WithServer] or both [WithSubmitter] and [WithStatusOracle] must be
// given. Defaults:
//   - Upload path: /upload
//   - Status path: /status/{task_id}
//   - Poll interval: 1 second
//   - Download concurrency: 4
//
// Returns an error if any option is invalid.
func New(opts ...Option) (*Workflow, error) {
	cfg := &wfConfig{
		uploadPath:          defaultUploadPath,
		statusPath:          defaultStatusPath,
		headers:             make(map[string]string),
		pollInterval:        defaultPollInterval,
		downloadConcurrency: defaultDownloadConcurrency,
		downloadTimeout:     defaultDownloadTimeout,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	// default to slog.Default() if no logger provided
	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	var base *url.URL
	if cfg.server != "" {
		u, err := parseBaseURL(cfg.server)
		if err != nil {
			return nil, err
		}
		base = u
	}

	wf := &Workflow{
		submitter:    cfg.submitter,
		oracle:       cfg.oracle,
		base:         base,
		pollInterval: cfg.pollInterval,
		allowed:      cfg.allowedExtensions,
		sinks:        sinks{list: cfg.sinks, logger: logger},
		logger:       logger,
		metrics:      metrics.New(),
		state:        StateIdle,
	}

	if wf.submitter == nil || wf.oracle == nil {
		if base == nil {
			return nil, errors.New("a server URL is required unless both a submitter and a status oracle are set")
		}
		wf.client = poller.NewClient()
		transport := &httpTransport{
			client:        wf.client,
			base:          base,
			uploadPath:    cfg.uploadPath,
			statusPath:    cfg.statusPath,
			headers:       copyMap(cfg.headers),
			uploadTimeout: cfg.uploadTimeout,
			pollTimeout:   cfg.pollTimeout,
			logger:        logger,
		}
		if wf.submitter == nil {
			wf.submitter = transport
		}
		if wf.oracle == nil {
			wf.oracle = transport
		}
	}

	wf.downloader = newDownloader(cfg, wf.metrics, logger)
	return wf, nil
}

// State returns the current state. After a run ends it stays at
// [StateCompleted] or [StateFailed] until the next Submit.
func (w *Workflow) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// RunID returns the ID of the active or most recent run, or "" before the
// first accepted submission.
func (w *Workflow) RunID() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.runID
}

// TaskHandle returns the handle of the run being processed, or "" when no
// run is in [StateProcessing].
func (w *Workflow) TaskHandle() TaskHandle {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.handle
}

// PollCount returns the number of status checks issued by the active run,
// or 0 when no run is polling.
func (w *Workflow) PollCount() int {
	w.mu.Lock()
	p := w.poller
	w.mu.Unlock()
	if p == nil {
		return 0
	}
	return p.Attempts()
}

// Downloader returns the downloader sharing this workflow's headers and
// metrics.
func (w *Workflow) Downloader() *Downloader {
	return w.downloader
}

// DownloadAll fetches every result of a completed run into dir.
func (w *Workflow) DownloadAll(ctx context.Context, res Result, dir string) ([]string, error) {
	if len(res.Downloads) == 0 {
		return nil, errNoDownloads
	}
	return w.downloader.FetchAll(ctx, res.Downloads, dir)
}

// MetricsHandler returns an HTTP handler exposing the workflow's Prometheus
// metrics.
func (w *Workflow) MetricsHandler() http.Handler {
	return w.metrics.Handler()
}

// Close releases idle connections. The workflow stays usable.
func (w *Workflow) Close() {
	w.client.Close()
}

// Submit uploads batch, polls until the server reports completion or a
// failure occurs, and returns the run's [Result].
//
// Submit blocks for the whole run. Every sink receives exactly one
// OnTerminal call before Submit returns, and no status check is sent after
// it returns. The returned error is nil on [StateCompleted], [ErrBusy] if
// another run is active, and otherwise the *Error also stored in
// [Result.Err].
//
// Cancelling ctx aborts the upload or the polling and fails the run with
// [KindCanceled].
func (w *Workflow) Submit(ctx context.Context, batch Batch) (Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}

	w.mu.Lock()
	if w.state == StateUploading || w.state == StateProcessing {
		w.mu.Unlock()
		return Result{}, ErrBusy
	}

	r := &run{
		wf:          w,
		id:          uuid.NewString(),
		files:       len(batch),
		started:     time.Now(),
		lastPercent: -1,
	}

	if verr := batch.validate(w.allowed); verr != nil {
		w.state = StateIdle
		w.handle = ""
		w.mu.Unlock()

		w.metrics.RunRejected()
		w.logger.Info("batch rejected", "run_id", r.id, "reason", verr.Message)
		res := Result{RunID: r.id, State: StateIdle, Err: verr}
		w.sinks.terminal(res)
		return res, verr
	}

	w.state = StateUploading
	w.runID = r.id
	w.handle = ""
	w.mu.Unlock()

	w.metrics.RunStarted()
	w.logger.Info("conversion started", "run_id", r.id, "files", len(batch), "bytes", batch.TotalSize())

	res := r.execute(ctx, batch)
	if res.Err != nil {
		return res, res.Err
	}
	return res, nil
}

// setState records a transition for the active run.
func (w *Workflow) setState(s State, handle TaskHandle) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
	w.handle = handle
}

// run carries the per-submission state of a [Workflow].
type run struct {
	wf      *Workflow
	id      string
	files   int
	started time.Time

	// upload progress, written from the transport's body-reading goroutine
	progressMu  sync.Mutex
	lastPercent int
	sent        int64
	total       int64
	uploadDone  bool

	handle    TaskHandle
	snapshot  ProgressSnapshot
	polls     int
	completed bool
	err       *Error
}

func (r *run) execute(ctx context.Context, batch Batch) Result {
	w := r.wf

	r.emitProgress(0, 0, false)

	uploadStart := time.Now()
	handle, err := w.submitter.Submit(ctx, batch, r.onUploadProgress)
	if err != nil {
		e := asKind(err, KindUploadTransport)
		if ctx.Err() != nil {
			e = newError(KindCanceled, "", 0, ctx.Err())
		}
		r.closeUpload()
		w.metrics.ObserveUpload(string(e.Kind), r.sentBytes(), time.Since(uploadStart))
		return r.finish(StateFailed, e)
	}

	r.onUploadComplete(handle, time.Since(uploadStart))

	p := poller.New(w.pollInterval, r.onPollTick, w.logger)
	w.mu.Lock()
	w.poller = p
	w.mu.Unlock()

	p.Start(ctx)
	<-p.Done()
	p.Stop()

	w.mu.Lock()
	w.poller = nil
	w.mu.Unlock()

	switch {
	case r.completed:
		return r.finish(StateCompleted, nil)
	case r.err != nil:
		return r.finish(StateFailed, r.err)
	case p.Err() != nil:
		return r.finish(StateFailed, newError(KindPollTransport, "", 0, p.Err()))
	default:
		return r.finish(StateFailed, newError(KindCanceled, "", 0, context.Cause(ctx)))
	}
}

// onUploadProgress converts transport byte counts into a clamped,
// non-decreasing percentage.
func (r *run) onUploadProgress(sent, total int64) {
	percent := 0
	if total > 0 {
		percent = int(sent * 100 / total)
	}
	r.progressMu.Lock()
	r.sent, r.total = sent, total
	r.progressMu.Unlock()
	r.emitProgress(percent, sent, false)
}

// emitProgress forwards percent to the sinks if it advances the run's
// progress. final marks the upload-complete emission; nothing is emitted
// after it.
func (r *run) emitProgress(percent int, sent int64, final bool) {
	percent = max(0, min(100, percent))

	r.progressMu.Lock()
	if r.uploadDone || percent <= r.lastPercent {
		if final {
			r.uploadDone = true
		}
		r.progressMu.Unlock()
		return
	}
	r.lastPercent = percent
	if final {
		r.uploadDone = true
	}
	total := r.total
	// sinks are called under the lock so late transport reads cannot
	// interleave out of order
	r.wf.sinks.progress(ProgressEvent{RunID: r.id, Files: r.files, Percent: percent, Sent: sent, Total: total})
	r.progressMu.Unlock()
}

// closeUpload drops any progress reported after the upload returned.
func (r *run) closeUpload() {
	r.progressMu.Lock()
	r.uploadDone = true
	r.progressMu.Unlock()
}

func (r *run) sentBytes() int64 {
	r.progressMu.Lock()
	defer r.progressMu.Unlock()
	return r.sent
}

func (r *run) onUploadComplete(handle TaskHandle, d time.Duration) {
	w := r.wf

	r.progressMu.Lock()
	total := r.total
	r.progressMu.Unlock()

	r.emitProgress(100, total, true)
	w.metrics.ObserveUpload("success", total, d)

	r.handle = handle
	w.setState(StateProcessing, handle)
	w.logger.Info("upload complete",
		"run_id", r.id,
		"task_id", string(handle),
		"bytes", total,
		"latency_ms", d.Milliseconds(),
	)

	// announce processing before the first check, which is one interval away
	w.sinks.status(StatusEvent{RunID: r.id, TaskHandle: handle})
}

// onPollTick issues one status check. It runs on the poller goroutine.
func (r *run) onPollTick(ctx context.Context, attempt int) bool {
	start := time.Now()
	snap, err := r.wf.oracle.Status(ctx, r.handle)
	return r.onPollResult(ctx, attempt, snap, err, time.Since(start))
}

// onPollResult applies one status check outcome and reports whether
// polling must stop.
func (r *run) onPollResult(ctx context.Context, attempt int, snap ProgressSnapshot, err error, latency time.Duration) bool {
	w := r.wf
	r.polls = attempt

	if err != nil {
		e := asKind(err, KindPollTransport)
		if ctx.Err() != nil {
			e = newError(KindCanceled, "", 0, ctx.Err())
		}
		w.metrics.ObservePoll(string(e.Kind), latency)
		r.err = e
		return true
	}

	if cerr := checkSnapshot(snap); cerr != nil {
		w.metrics.ObservePoll(string(KindPollParse), latency)
		r.err = newError(KindPollParse, "", 0, cerr)
		return true
	}

	if !snap.Done && len(snap.Downloads) > 0 {
		w.logger.Debug("ignoring downloads on unfinished task",
			"run_id", r.id,
			"task_id", string(r.handle),
			"count", len(snap.Downloads),
		)
		snap.Downloads = nil
	}
	snap.Downloads = append([]string(nil), snap.Downloads...)
	r.snapshot = snap

	w.metrics.ObservePoll("success", latency)
	w.logger.Debug("status received",
		"run_id", r.id,
		"task_id", string(r.handle),
		"attempt", attempt,
		"processed", snap.Processed,
		"total", snap.Total,
		"done", snap.Done,
		"latency_ms", latency.Milliseconds(),
	)

	w.sinks.status(StatusEvent{RunID: r.id, TaskHandle: r.handle, Snapshot: snap, Attempt: attempt})

	if snap.Done {
		r.completed = true
		return true
	}
	return false
}

// finish moves the workflow to a terminal state and notifies the sinks.
func (r *run) finish(state State, e *Error) Result {
	w := r.wf

	res := Result{
		RunID:         r.id,
		State:         state,
		TaskHandle:    r.handle,
		Snapshot:      r.snapshot,
		UploadedBytes: r.sentBytes(),
		Polls:         r.polls,
		Duration:      time.Since(r.started),
	}
	if e != nil {
		res.Err = e
	}
	if state == StateCompleted {
		res.Downloads = resolveDownloads(w.base, r.snapshot.Downloads)
	}

	// the handle is discarded once the run is terminal
	w.setState(state, "")
	w.metrics.RunFinished(string(state))

	logAttrs := []any{
		"run_id", r.id,
		"task_id", string(r.handle),
		"state", string(state),
		"polls", r.polls,
		"duration_ms", res.Duration.Milliseconds(),
	}
	if e != nil {
		w.logger.Warn("conversion failed", append(logAttrs, "kind", string(e.Kind), "error", e.Error())...)
	} else {
		w.logger.Info("conversion completed", append(logAttrs, "downloads", len(res.Downloads))...)
	}

	w.sinks.terminal(res)
	return res
}

// copyMap returns a shallow copy of the map, or nil if input is nil.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
