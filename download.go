package pdfxl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/sync/errgroup"

	"github.com/jpalmerr/pdfxl/internal/metrics"
)

const (
	defaultDownloadTimeout     = 5 * time.Minute
	defaultDownloadConcurrency = 4
	fallbackDownloadName       = "report.xlsx"
)

// Downloader fetches conversion results to a local directory. Fetching a
// result never changes the state of the [Workflow] that produced it.
type Downloader struct {
	client      *resty.Client
	concurrency int
	metrics     *metrics.Collector
	logger      *slog.Logger
}

func newDownloader(cfg *wfConfig, m *metrics.Collector, logger *slog.Logger) *Downloader {
	client := resty.New()
	client.SetTimeout(cfg.downloadTimeout)
	client.SetRetryCount(0)
	client.SetHeaders(cfg.headers)

	return &Downloader{
		client:      client,
		concurrency: cfg.downloadConcurrency,
		metrics:     m,
		logger:      logger,
	}
}

// Fetch downloads d into dir and returns the path written.
//
// The file name comes from the Content-Disposition header when present,
// otherwise from the last URL path segment. An existing file of the same
// name is replaced. The body is written to a temporary file first, so a
// failed download never leaves a partial result behind.
func (dl *Downloader) Fetch(ctx context.Context, d Download, dir string) (string, error) {
	return dl.fetch(ctx, d, dir, nil)
}

// FetchAll downloads every result into dir, at most the configured number
// at a time, and returns the written paths in the order of ds. Name clashes
// between results get a numeric suffix.
//
// The first failure cancels the remaining downloads and is returned.
func (dl *Downloader) FetchAll(ctx context.Context, ds []Download, dir string) ([]string, error) {
	paths := make([]string, len(ds))
	names := &nameSet{taken: make(map[string]int)}

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(dl.concurrency)

	for i, d := range ds {
		g.Go(func() error {
			p, err := dl.fetch(groupCtx, d, dir, names)
			if err != nil {
				return err
			}
			paths[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return paths, nil
}

func (dl *Downloader) fetch(ctx context.Context, d Download, dir string, names *nameSet) (string, error) {
	if d.URL == "" {
		return "", fmt.Errorf("%s has no URL", d.Label())
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	start := time.Now()
	resp, err := dl.client.R().
		SetContext(ctx).
		SetDoNotParseResponse(true).
		Get(d.URL)
	if err != nil {
		dl.metrics.ObserveDownload("transport_error")
		return "", fmt.Errorf("downloading %s: %w", d.URL, err)
	}
	body := resp.RawBody()
	defer func() { _ = body.Close() }()

	if resp.StatusCode() < http.StatusOK || resp.StatusCode() >= http.StatusMultipleChoices {
		dl.metrics.ObserveDownload("http_error")
		return "", fmt.Errorf("downloading %s: unexpected status %d", d.URL, resp.StatusCode())
	}

	name := downloadName(resp.Header().Get("Content-Disposition"), d.URL)
	if names != nil {
		name = names.claim(name)
	}
	dest := filepath.Join(dir, name)

	written, err := writeAtomic(dest, body)
	if err != nil {
		dl.metrics.ObserveDownload("write_error")
		return "", err
	}

	dl.metrics.ObserveDownload("success")
	dl.logger.Info("download saved",
		"label", d.Label(),
		"url", d.URL,
		"path", dest,
		"bytes", written,
		"latency_ms", time.Since(start).Milliseconds(),
	)
	return dest, nil
}

// writeAtomic streams r into a temporary file next to dest and renames it
// into place once fully written.
func writeAtomic(dest string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".pdfxl-*.part")
	if err != nil {
		return 0, fmt.Errorf("creating temporary file: %w", err)
	}
	tmpName := tmp.Name()

	written, err := io.Copy(tmp, r)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmpName, dest)
	}
	if err != nil {
		_ = os.Remove(tmpName)
		return 0, fmt.Errorf("writing %s: %w", dest, err)
	}
	return written, nil
}

// downloadName picks a safe local file name for a result.
func downloadName(contentDisposition, rawURL string) string {
	if contentDisposition != "" {
		if _, params, err := mime.ParseMediaType(contentDisposition); err == nil {
			if name := sanitizeName(params["filename"]); name != "" {
				return name
			}
		}
	}
	if u, err := url.Parse(rawURL); err == nil {
		if name := sanitizeName(path.Base(u.Path)); name != "" {
			return name
		}
	}
	return fallbackDownloadName
}

// sanitizeName strips directory components so a server-chosen name cannot
// escape the output directory.
func sanitizeName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(strings.TrimSpace(name))
	switch name {
	case "", ".", "..", "/":
		return ""
	}
	return name
}

// nameSet hands out unique file names within one FetchAll call.
type nameSet struct {
	mu    sync.Mutex
	taken map[string]int
}

func (s *nameSet) claim(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.taken[name]
	s.taken[name] = n + 1
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	candidate := strings.TrimSuffix(name, ext) + "-" + strconv.Itoa(n+1) + ext
	for s.taken[candidate] > 0 {
		n++
		candidate = strings.TrimSuffix(name, ext) + "-" + strconv.Itoa(n+1) + ext
	}
	s.taken[candidate] = 1
	return candidate
}

// resolveDownloads turns raw server locators into numbered [Download] values.
func resolveDownloads(base *url.URL, locators []string) []Download {
	if len(locators) == 0 {
		return nil
	}
	out := make([]Download, len(locators))
	for i, loc := range locators {
		out[i] = Download{Index: i + 1, Locator: loc, URL: resolveLocator(base, loc)}
	}
	return out
}

var errNoDownloads = errors.New("run has no downloads")
