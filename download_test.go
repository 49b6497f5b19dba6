package pdfxl

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpalmerr/pdfxl/internal/metrics"
)

func newTestDownloader(concurrency int) (*Downloader, *metrics.Collector) {
	m := metrics.New()
	cfg := &wfConfig{
		headers:             map[string]string{"X-Client": "pdfxl-test"},
		downloadConcurrency: concurrency,
		downloadTimeout:     5 * time.Second,
	}
	return newDownloader(cfg, m, testLogger()), m
}

func TestDownloader_Fetch(t *testing.T) {
	var gotHeader atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("X-Client"))
		switch r.URL.Path {
		case "/download/named":
			w.Header().Set("Content-Disposition", `attachment; filename="Q1 report.xlsx"`)
			_, _ = io.WriteString(w, "named body")
		case "/files/plain.xlsx":
			_, _ = io.WriteString(w, "plain body")
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)

	dl, _ := newTestDownloader(2)
	dir := t.TempDir()

	path, err := dl.Fetch(context.Background(), Download{Index: 1, URL: srv.URL + "/download/named"}, dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "Q1 report.xlsx"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "named body", string(data))
	assert.Equal(t, "pdfxl-test", gotHeader.Load())

	path, err = dl.Fetch(context.Background(), Download{Index: 2, URL: srv.URL + "/files/plain.xlsx"}, filepath.Join(dir, "nested"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "nested", "plain.xlsx"), path)
}

func TestDownloader_FetchErrorLeavesNoFile(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	t.Cleanup(srv.Close)

	dl, m := newTestDownloader(1)
	dir := t.TempDir()

	_, err := dl.Fetch(context.Background(), Download{Index: 1, URL: srv.URL + "/missing.xlsx"}, dir)
	require.ErrorContains(t, err, "unexpected status 404")

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	count, err := testutil.GatherAndCount(m.Registry(), "pdfxl_downloads_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDownloader_FetchAllKeepsOrderAndDedupesNames(t *testing.T) {
	var inFlight, maxInFlight atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			prev := maxInFlight.Load()
			if cur <= prev || maxInFlight.CompareAndSwap(prev, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		w.Header().Set("Content-Disposition", `attachment; filename="report.xlsx"`)
		_, _ = io.WriteString(w, r.URL.Path)
	}))
	t.Cleanup(srv.Close)

	dl, _ := newTestDownloader(2)
	dir := t.TempDir()
	base, err := url.Parse(srv.URL)
	require.NoError(t, err)
	downloads := resolveDownloads(base, []string{"/dl/1", "/dl/2", "/dl/3", "/dl/4"})

	paths, err := dl.FetchAll(context.Background(), downloads, dir)
	require.NoError(t, err)
	require.Len(t, paths, 4)

	seen := make(map[string]bool)
	for i, p := range paths {
		assert.False(t, seen[p], "duplicate path %s", p)
		seen[p] = true
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Equal(t, downloads[i].Locator, string(data))
	}
	assert.LessOrEqual(t, maxInFlight.Load(), int32(2))
}

func TestDownloader_FetchAllStopsOnError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/dl/2" {
			http.Error(w, "gone", http.StatusGone)
			return
		}
		_, _ = io.WriteString(w, "ok")
	}))
	t.Cleanup(srv.Close)

	dl, _ := newTestDownloader(1)
	base, _ := url.Parse(srv.URL)

	_, err := dl.FetchAll(context.Background(), resolveDownloads(base, []string{"/dl/1", "/dl/2"}), t.TempDir())
	assert.ErrorContains(t, err, "unexpected status 410")
}

func TestWorkflow_DownloadAllWithoutDownloads(t *testing.T) {
	wf, err := New(WithServer("http://x.test"), WithLogger(testLogger()))
	require.NoError(t, err)

	_, err = wf.DownloadAll(context.Background(), Result{State: StateCompleted}, t.TempDir())
	assert.ErrorIs(t, err, errNoDownloads)
}

func TestDownloadName(t *testing.T) {
	tests := []struct {
		name        string
		disposition string
		url         string
		want        string
	}{
		{"from disposition", `attachment; filename="out.xlsx"`, "http://x/dl/1", "out.xlsx"},
		{"disposition path stripped", `attachment; filename="../../etc/passwd"`, "http://x/dl/1", "passwd"},
		{"windows path stripped", `attachment; filename="C:\\tmp\\evil.xlsx"`, "http://x/dl/1", "evil.xlsx"},
		{"from url", "", "http://x/download/PID_a.pdf.xlsx", "PID_a.pdf.xlsx"},
		{"escaped url", "", "http://x/download/Q1%20report.xlsx", "Q1 report.xlsx"},
		{"bad disposition falls back to url", `;;;`, "http://x/files/b.xlsx", "b.xlsx"},
		{"nothing usable", "", "http://x/", fallbackDownloadName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, downloadName(tt.disposition, tt.url))
		})
	}
}

func TestResolveDownloads(t *testing.T) {
	base, err := url.Parse("http://convert.test:5000/app/")
	require.NoError(t, err)

	got := resolveDownloads(base, []string{"/download/a.xlsx", "b.xlsx", "https://cdn.test/c.xlsx"})

	require.Len(t, got, 3)
	assert.Equal(t, "http://convert.test:5000/download/a.xlsx", got[0].URL)
	assert.Equal(t, "http://convert.test:5000/app/b.xlsx", got[1].URL)
	assert.Equal(t, "https://cdn.test/c.xlsx", got[2].URL)
	assert.Equal(t, 3, got[2].Index)
	assert.Nil(t, resolveDownloads(base, nil))
}

func TestResolveDownloads_RejectsUnsafeSchemes(t *testing.T) {
	base, err := url.Parse("http://convert.test:5000/")
	require.NoError(t, err)

	got := resolveDownloads(base, []string{
		"javascript:alert(1)",
		"JavaScript:alert(1)",
		"data:text/html,<script>alert(1)</script>",
		"file:///etc/passwd",
		"/download/ok.xlsx",
	})

	require.Len(t, got, 5)
	for _, d := range got[:4] {
		assert.Empty(t, d.URL, "locator %q", d.Locator)
	}
	assert.Equal(t, "http://convert.test:5000/download/ok.xlsx", got[4].URL)

	// without a base, relative paths stay relative
	assert.Equal(t, "/dl/1", resolveLocator(nil, "/dl/1"))
	assert.Empty(t, resolveLocator(nil, "javascript:alert(1)"))
}
