package config

import (
	"log/slog"
	"sort"

	"github.com/jpalmerr/pdfxl"
)

// BuildOptions converts a validated configuration into workflow options.
func BuildOptions(cfg *Config, logger *slog.Logger) []pdfxl.Option {
	opts := []pdfxl.Option{
		pdfxl.WithServer(cfg.Server),
		pdfxl.WithUploadPath(cfg.UploadPath),
		pdfxl.WithStatusPath(cfg.StatusPath),
		pdfxl.WithPollInterval(cfg.PollInterval.Duration()),
		pdfxl.WithDownloadConcurrency(cfg.DownloadConcurrency),
	}

	if cfg.UploadTimeout != 0 {
		opts = append(opts, pdfxl.WithUploadTimeout(cfg.UploadTimeout.Duration()))
	}
	if cfg.PollTimeout != 0 {
		opts = append(opts, pdfxl.WithPollTimeout(cfg.PollTimeout.Duration()))
	}
	if len(cfg.Headers) > 0 {
		opts = append(opts, pdfxl.WithHeaders(mapToKeyValuePairs(cfg.Headers)...))
	}
	if len(cfg.AllowedExtensions) > 0 {
		opts = append(opts, pdfxl.WithAllowedExtensions(cfg.AllowedExtensions...))
	}
	if logger != nil {
		opts = append(opts, pdfxl.WithLogger(logger))
	}

	return opts
}

// BuildStyle converts the presentation settings into a style. Invalid
// values fall back to the defaults; [Config.Validate] reports them.
func BuildStyle(cfg *Config) pdfxl.PresentationStyle {
	progress, err := pdfxl.ParseProgressStyle(cfg.Presentation.Progress)
	if err != nil {
		progress = pdfxl.ProgressBar
	}
	results, err := pdfxl.ParseResultStyle(cfg.Presentation.Results)
	if err != nil {
		results = pdfxl.ResultLinks
	}
	return pdfxl.PresentationStyle{Progress: progress, Results: results}
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	// sort keys for deterministic ordering
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
