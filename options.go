package pdfxl

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// wfConfig holds mutable state during Workflow construction.
type wfConfig struct {
	server              string
	submitter           Submitter
	oracle              StatusOracle
	uploadPath          string
	statusPath          string
	headers             map[string]string
	pollInterval        time.Duration
	pollTimeout         time.Duration
	uploadTimeout       time.Duration
	sinks               []Sink
	allowedExtensions   []string
	logger              *slog.Logger
	downloadConcurrency int
	downloadTimeout     time.Duration
}

// Option is a function that configures a [Workflow] during construction.
//
// Option implements the functional options pattern. Options return an error
// if validation fails, and [New] returns the first such error.
type Option func(*wfConfig) error

// WithServer sets the base URL of the conversion service, for example
// "http://localhost:5000". Upload, status and relative download paths are
// resolved against it.
//
// Required unless both [WithSubmitter] and [WithStatusOracle] are given.
//
// Returns an error if the URL is not an absolute http(s) URL.
func WithServer(rawURL string) Option {
	return func(cfg *wfConfig) error {
		if _, err := parseBaseURL(rawURL); err != nil {
			return err
		}
		cfg.server = strings.TrimSpace(rawURL)
		return nil
	}
}

// WithSubmitter replaces the HTTP submission channel with a custom one.
func WithSubmitter(s Submitter) Option {
	return func(cfg *wfConfig) error {
		if s == nil {
			return errors.New("submitter cannot be nil")
		}
		cfg.submitter = s
		return nil
	}
}

// WithStatusOracle replaces the HTTP status endpoint with a custom one.
func WithStatusOracle(o StatusOracle) Option {
	return func(cfg *wfConfig) error {
		if o == nil {
			return errors.New("status oracle cannot be nil")
		}
		cfg.oracle = o
		return nil
	}
}

// WithUploadPath sets the submission path. Defaults to "/upload".
func WithUploadPath(path string) Option {
	return func(cfg *wfConfig) error {
		if strings.TrimSpace(path) == "" {
			return errors.New("upload path cannot be empty")
		}
		cfg.uploadPath = path
		return nil
	}
}

// WithStatusPath sets the status path template. It must contain
// "{task_id}", which is replaced with the escaped task handle.
// Defaults to "/status/{task_id}".
func WithStatusPath(path string) Option {
	return func(cfg *wfConfig) error {
		if !strings.Contains(path, taskIDPlaceholder) {
			return fmt.Errorf("status path must contain %s", taskIDPlaceholder)
		}
		cfg.statusPath = path
		return nil
	}
}

// WithHeaders adds HTTP headers sent with every upload, status and download
// request. Arguments are key-value pairs:
//
//	pdfxl.WithHeaders("X-Client", "cli", "X-Team", "finance")
//
// Returns an error if an odd number of arguments is given.
func WithHeaders(keyValues ...string) Option {
	return func(cfg *wfConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithPollInterval sets the delay between one status check completing and
// the next being sent. Defaults to one second.
//
// Returns an error if the duration is zero or negative.
func WithPollInterval(d time.Duration) Option {
	return func(cfg *wfConfig) error {
		if d <= 0 {
			return errors.New("poll interval must be positive")
		}
		cfg.pollInterval = d
		return nil
	}
}

// WithPollTimeout bounds each HTTP status check. By default a status check
// is bounded only by the context passed to [Workflow.Submit]. A check that
// times out fails the run with [KindPollTransport].
func WithPollTimeout(d time.Duration) Option {
	return func(cfg *wfConfig) error {
		if d <= 0 {
			return errors.New("poll timeout must be positive")
		}
		cfg.pollTimeout = d
		return nil
	}
}

// WithUploadTimeout bounds the HTTP submission request. Unbounded by default.
func WithUploadTimeout(d time.Duration) Option {
	return func(cfg *wfConfig) error {
		if d <= 0 {
			return errors.New("upload timeout must be positive")
		}
		cfg.uploadTimeout = d
		return nil
	}
}

// WithDownloadTimeout bounds each result download. Defaults to five minutes.
func WithDownloadTimeout(d time.Duration) Option {
	return func(cfg *wfConfig) error {
		if d <= 0 {
			return errors.New("download timeout must be positive")
		}
		cfg.downloadTimeout = d
		return nil
	}
}

// WithDownloadConcurrency limits how many results [Downloader.FetchAll]
// fetches at once. Defaults to 4.
func WithDownloadConcurrency(n int) Option {
	return func(cfg *wfConfig) error {
		if n < 1 {
			return errors.New("download concurrency must be positive")
		}
		cfg.downloadConcurrency = n
		return nil
	}
}

// WithSink registers a [Sink]. Sinks are called in registration order.
// Nil sinks are silently ignored.
func WithSink(s Sink) Option {
	return func(cfg *wfConfig) error {
		if s == nil {
			return nil
		}
		cfg.sinks = append(cfg.sinks, s)
		return nil
	}
}

// WithProgressCallback registers a function called on every upload
// progress change. Nil callbacks are silently ignored.
func WithProgressCallback(cb func(ProgressEvent)) Option {
	if cb == nil {
		return WithSink(nil)
	}
	return WithSink(SinkFuncs{Progress: cb})
}

// WithStatusCallback registers a function called after every successful
// status check. Nil callbacks are silently ignored.
//
// IMPORTANT: Callbacks must be non-blocking. The next status check is only
// scheduled once every sink has returned.
func WithStatusCallback(cb func(StatusEvent)) Option {
	if cb == nil {
		return WithSink(nil)
	}
	return WithSink(SinkFuncs{Status: cb})
}

// WithTerminalCallback registers a function called once per run with its
// [Result]. Nil callbacks are silently ignored.
func WithTerminalCallback(cb func(Result)) Option {
	if cb == nil {
		return WithSink(nil)
	}
	return WithSink(SinkFuncs{Terminal: cb})
}

// WithAllowedExtensions restricts batches to file names with one of the
// given extensions, compared case-insensitively. A leading dot is optional.
// By default every name is accepted.
func WithAllowedExtensions(exts ...string) Option {
	return func(cfg *wfConfig) error {
		normalized := make([]string, 0, len(exts))
		for _, ext := range exts {
			ext = strings.ToLower(strings.TrimSpace(ext))
			if ext == "" {
				return errors.New("extension cannot be empty")
			}
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			normalized = append(normalized, ext)
		}
		cfg.allowedExtensions = normalized
		return nil
	}
}

// WithLogger sets a custom structured logger.
//
// If not specified, defaults to slog.Default(). Routine status checks are
// logged at debug level, failures at warn.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *wfConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}
