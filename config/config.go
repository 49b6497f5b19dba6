// Package config provides YAML configuration parsing for the pdfxl CLI.
//
// Example configuration:
//
//	server: ${PDFXL_SERVER:-http://localhost:5000}
//	poll_interval: 1s
//	upload_timeout: 10m
//
//	headers:
//	  X-Client: pdfxl
//
//	allowed_extensions: [.pdf]
//	presentation: bar:cards
//	output_dir: ./reports
//
//	dashboard:
//	  title: Conversions
//	  port: 8080
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/pdfxl"
)

// minPollInterval keeps a misconfigured client from hammering the service.
const minPollInterval = 100 * time.Millisecond

const (
	defaultUploadPath          = "/upload"
	defaultStatusPath          = "/status/{task_id}"
	defaultPollInterval        = time.Second
	defaultOutputDir           = "."
	defaultDownloadConcurrency = 4
)

// Config is the root configuration structure for the pdfxl CLI.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML, or [Default] when no
// file is given.
type Config struct {
	// Server is the base URL of the conversion service.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	Server string `yaml:"server"`

	// UploadPath is the batch submission path. Defaults to /upload.
	UploadPath string `yaml:"upload_path"`

	// StatusPath is the status path template; must contain {task_id}.
	// Defaults to /status/{task_id}.
	StatusPath string `yaml:"status_path"`

	// PollInterval is the delay between one status check completing and the
	// next one starting. Defaults to 1s.
	PollInterval Duration `yaml:"poll_interval"`

	// UploadTimeout bounds the upload request. Zero means unbounded.
	UploadTimeout Duration `yaml:"upload_timeout"`

	// PollTimeout bounds each status check. Zero means unbounded.
	PollTimeout Duration `yaml:"poll_timeout"`

	// Headers are sent with every request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// AllowedExtensions restricts which files may be submitted.
	// Defaults to [.pdf]; an explicit empty list accepts any file.
	AllowedExtensions []string `yaml:"allowed_extensions"`

	// Presentation selects the terminal and dashboard styles.
	Presentation PresentationConfig `yaml:"presentation"`

	// OutputDir is where results are downloaded. Defaults to ".".
	OutputDir string `yaml:"output_dir"`

	// DownloadConcurrency limits parallel downloads. Defaults to 4.
	DownloadConcurrency int `yaml:"download_concurrency"`

	// Dashboard configures the optional live web dashboard.
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// DashboardConfig configures the live web dashboard.
type DashboardConfig struct {
	// Title is the page title. Defaults to "pdfxl".
	Title string `yaml:"title"`

	// Port enables the dashboard when non-zero.
	Port int `yaml:"port"`
}

// PresentationConfig selects how progress and results are shown.
//
// It supports two formats in YAML:
//
// Shorthand string ("progress:results", either half optional):
//
//	presentation: bar:cards
//	presentation: percent
//
// Structured object:
//
//	presentation:
//	  progress: percent
//	  results: links
type PresentationConfig struct {
	// Progress is "bar" or "percent".
	Progress string

	// Results is "links" or "cards".
	Results string
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for PresentationConfig.
func (p *PresentationConfig) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		p.parseShorthand(s)
		return nil

	case yaml.MappingNode:
		// temporary struct to avoid infinite recursion
		var raw struct {
			Progress string `yaml:"progress"`
			Results  string `yaml:"results"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		p.Progress = raw.Progress
		p.Results = raw.Results
		return nil
	}

	return fmt.Errorf("presentation must be a string or object, got %v", node.Kind)
}

// ParsePresentation parses the "progress:results" shorthand used by the
// presentation key and the --presentation flag.
func ParsePresentation(s string) PresentationConfig {
	var p PresentationConfig
	p.parseShorthand(s)
	return p
}

// parseShorthand splits "progress:results". A single word is assigned to
// whichever half it names, so "cards" alone sets Results.
func (p *PresentationConfig) parseShorthand(s string) {
	s = strings.TrimSpace(s)
	if s == "" {
		return
	}
	if progress, results, ok := strings.Cut(s, ":"); ok {
		p.Progress = strings.TrimSpace(progress)
		p.Results = strings.TrimSpace(results)
		return
	}
	if _, err := pdfxl.ParseResultStyle(s); err == nil {
		p.Results = s
		return
	}
	p.Progress = s
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		// already have an error, skip processing
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		varName := submatches[1]
		hasDefault := submatches[2] != ""

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return submatches[3]
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Default returns a Config with every default applied and no server set.
func Default() *Config {
	return &Config{
		UploadPath:          defaultUploadPath,
		StatusPath:          defaultStatusPath,
		AllowedExtensions:   []string{".pdf"},
		PollInterval:        Duration(defaultPollInterval),
		OutputDir:           defaultOutputDir,
		DownloadConcurrency: defaultDownloadConcurrency,
	}
}

// Load reads and parses a YAML configuration file.
//
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data over [Default] and validates it.
//
// Environment variables are expanded in Server and Header values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate expands environment variables and checks every field.
// It is safe to call more than once.
func (c *Config) Validate() error {
	expanded, err := expandEnvVars(c.Server)
	if err != nil {
		return fmt.Errorf("server: %w", err)
	}
	c.Server = strings.TrimSpace(expanded)

	if c.Server == "" {
		return errors.New("server is required")
	}
	parsedURL, err := url.Parse(c.Server)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("server url scheme must be http or https, got %q", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return errors.New("server url must include a host")
	}

	if strings.TrimSpace(c.UploadPath) == "" {
		return errors.New("upload_path cannot be empty")
	}
	if !strings.Contains(c.StatusPath, "{task_id}") {
		return fmt.Errorf("status_path must contain {task_id}, got %q", c.StatusPath)
	}

	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.UploadTimeout.Duration() < 0 {
		return fmt.Errorf("upload_timeout cannot be negative, got %s", c.UploadTimeout.Duration())
	}
	if c.PollTimeout.Duration() < 0 {
		return fmt.Errorf("poll_timeout cannot be negative, got %s", c.PollTimeout.Duration())
	}

	for k, v := range c.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		c.Headers[k] = expanded
	}

	for i, ext := range c.AllowedExtensions {
		if strings.TrimSpace(ext) == "" {
			return fmt.Errorf("allowed_extensions[%d]: extension cannot be empty", i)
		}
	}

	if _, err := pdfxl.ParseProgressStyle(c.Presentation.Progress); err != nil {
		return fmt.Errorf("presentation: %w", err)
	}
	if _, err := pdfxl.ParseResultStyle(c.Presentation.Results); err != nil {
		return fmt.Errorf("presentation: %w", err)
	}

	if c.OutputDir == "" {
		c.OutputDir = defaultOutputDir
	}
	if c.DownloadConcurrency < 1 {
		return fmt.Errorf("download_concurrency must be at least 1, got %d", c.DownloadConcurrency)
	}

	if c.Dashboard.Port < 0 || c.Dashboard.Port > 65535 {
		return fmt.Errorf("dashboard.port must be between 0 and 65535, got %d", c.Dashboard.Port)
	}

	return nil
}
