package pdfxl

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/pdfxl/internal/store"
)

func newTestDashboard(t *testing.T, metrics http.Handler) *Dashboard {
	t.Helper()
	d, err := NewDashboard(DashboardConfig{
		Title:   "Conversions",
		Style:   PresentationStyle{Progress: ProgressPercent, Results: ResultCards},
		Metrics: metrics,
		Logger:  testLogger(),
	})
	require.NoError(t, err)
	return d
}

func TestDashboard_TracksRunLifecycle(t *testing.T) {
	d := newTestDashboard(t, nil)

	d.OnProgress(ProgressEvent{RunID: "r1", Files: 2, Percent: 40})
	runs := d.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "uploading", runs[0].State)
	assert.Equal(t, 2, runs[0].Files)
	assert.Equal(t, 40, runs[0].UploadPercent)

	d.OnStatus(StatusEvent{RunID: "r1", TaskHandle: "t1", Snapshot: ProgressSnapshot{Processed: 1, Total: 2}})
	runs = d.Runs()
	assert.Equal(t, "processing", runs[0].State)
	assert.Equal(t, "t1", runs[0].TaskID)
	assert.Equal(t, 1, runs[0].Processed)
	assert.Equal(t, 2, runs[0].Files, "fields from earlier events are kept")

	res := completedResult()
	res.RunID = "r1"
	res.TaskHandle = "t1"
	res.Snapshot = ProgressSnapshot{Processed: 2, Total: 2, Done: true}
	d.OnTerminal(res)

	runs = d.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "completed", runs[0].State)
	assert.Nil(t, runs[0].Error)
	assert.Equal(t, []store.DownloadLink{
		{Label: "Download Report 1", URL: "http://x.test/dl/1"},
		{Label: "Download Report 2", URL: "http://x.test/dl/2"},
	}, runs[0].Downloads)
	assert.False(t, runs[0].UpdatedAt.Before(runs[0].StartedAt))
}

func TestDashboard_RecordsFailuresAndRejections(t *testing.T) {
	d := newTestDashboard(t, nil)

	d.OnTerminal(Result{RunID: "rejected", State: StateIdle, Err: newError(KindValidation, "", 0, nil)})
	d.OnProgress(ProgressEvent{RunID: "failed", Files: 1})
	d.OnTerminal(Result{RunID: "failed", State: StateFailed, Err: newError(KindUploadServer, "No files", 400, nil)})

	byID := make(map[string]store.RunStatus)
	for _, rs := range d.Runs() {
		byID[rs.RunID] = rs
	}

	require.NotNil(t, byID["rejected"].Error)
	assert.Equal(t, "idle", byID["rejected"].State)
	assert.Equal(t, "Please select at least one PDF file.", *byID["rejected"].Error)

	require.NotNil(t, byID["failed"].Error)
	assert.Equal(t, "failed", byID["failed"].State)
	assert.Equal(t, "No files", *byID["failed"].Error)
}

func TestDashboard_Handler(t *testing.T) {
	metricsHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pdfxl_runs_active 0\n"))
	})
	d := newTestDashboard(t, metricsHandler)
	d.OnProgress(ProgressEvent{RunID: "r1", Files: 1, Percent: 100})

	h := d.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "<title>Conversions</title>")
	assert.Contains(t, body, `data-progress="percent"`)
	assert.Contains(t, body, `data-results="cards"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/runs/r1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var rs store.RunStatus
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&rs))
	assert.Equal(t, 100, rs.UploadPercent)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.True(t, strings.Contains(rec.Body.String(), "pdfxl_runs_active"))
}

func TestDashboard_AsWorkflowSink(t *testing.T) {
	oracle := &scriptedOracle{script: []ProgressSnapshot{
		{Processed: 0, Total: 1},
		{Processed: 1, Total: 1, Done: true, Downloads: []string{"/dl/1"}},
	}}
	d := newTestDashboard(t, nil)
	wf, _ := newFakeWorkflow(t, &fakeSubmitter{handle: "t9"}, oracle, WithSink(d))

	res, err := wf.Submit(context.Background(), pdfBatch("a.pdf"))
	require.NoError(t, err)

	rs, ok := d.store.Get(res.RunID)
	require.True(t, ok)
	assert.Equal(t, "completed", rs.State)
	assert.Equal(t, "t9", rs.TaskID)
	assert.Equal(t, 100, rs.UploadPercent)
	assert.Equal(t, 1, rs.Files)
	require.Len(t, rs.Downloads, 1)
	assert.Equal(t, "http://convert.example.test/dl/1", rs.Downloads[0].URL)
}

func TestDashboard_StartServesOnFreePort(t *testing.T) {
	d := newTestDashboard(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, d.Start(ctx))
	require.NotNil(t, d.Addr())

	port := d.Addr().(*net.TCPAddr).Port
	resp, err := http.Get(fmt.Sprintf("http://127.0.0.1:%d/api/runs", port))
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestNewDashboard_InvalidPort(t *testing.T) {
	_, err := NewDashboard(DashboardConfig{Port: 70000})
	assert.Error(t, err)
}
