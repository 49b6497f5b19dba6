package main

import (
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/jpalmerr/pdfxl"
	"github.com/jpalmerr/pdfxl/config"
	"github.com/spf13/cobra"
)

// convertCmd submits a batch and follows it to completion.
var convertCmd = &cobra.Command{
	Use:   "convert [files...]",
	Short: "Convert PDF files to Excel reports",
	Long: `Upload the given files as one batch, show progress until the service
finishes and download the generated reports.

Flags override values from the config file. Without a config file the
server must be given with --server or PDFXL_SERVER.

The command exits non-zero when the conversion fails or is interrupted
(Ctrl+C).

Example:
  pdfxl convert --server http://localhost:5000 a.pdf b.pdf
  pdfxl convert -c pdfxl.yaml --presentation percent:cards invoices/*.pdf
  pdfxl convert -c pdfxl.yaml --dashboard-port 8080 --keep-dashboard big.pdf`,
	RunE: runConvert,
}

func init() {
	rootCmd.AddCommand(convertCmd)

	f := convertCmd.Flags()
	f.StringP("config", "c", "", "path to config file")
	f.String("server", "", "conversion service base URL (default $PDFXL_SERVER)")
	f.Duration("poll-interval", 0, "delay between status checks")
	f.String("presentation", "", `display style as "progress:results", e.g. bar:cards`)
	f.StringP("output", "o", "", "directory for downloaded reports")
	f.Bool("no-download", false, "print the report links without downloading them")
	f.Int("dashboard-port", 0, "serve a live dashboard on this port")
	f.Bool("keep-dashboard", false, "keep serving the dashboard after the run until interrupted")
}

func runConvert(cmd *cobra.Command, args []string) error {
	logger, err := newLogger(cmd)
	if err != nil {
		return err
	}

	cfg, err := loadConvertConfig(cmd)
	if err != nil {
		return err
	}

	batch, err := pdfxl.BatchFromFiles(args...)
	if err != nil {
		return err
	}

	style := config.BuildStyle(cfg)
	opts := config.BuildOptions(cfg, logger)
	opts = append(opts, pdfxl.WithSink(pdfxl.NewTextSink(cmd.OutOrStdout(), style)))

	// cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wf *pdfxl.Workflow
	var dash *pdfxl.Dashboard
	if cfg.Dashboard.Port != 0 {
		dash, err = pdfxl.NewDashboard(pdfxl.DashboardConfig{
			Port:  cfg.Dashboard.Port,
			Title: cfg.Dashboard.Title,
			Style: style,
			// wf is assigned before the first request can arrive
			Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				wf.MetricsHandler().ServeHTTP(w, r)
			}),
			Logger: logger,
		})
		if err != nil {
			return fmt.Errorf("failed to create dashboard: %w", err)
		}
		opts = append(opts, pdfxl.WithSink(dash))
	}

	wf, err = pdfxl.New(opts...)
	if err != nil {
		return fmt.Errorf("failed to create workflow: %w", err)
	}
	defer wf.Close()

	if dash != nil {
		if err := dash.Start(ctx); err != nil {
			return fmt.Errorf("failed to start dashboard: %w", err)
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Dashboard: http://%s\n", dashboardHost(dash.Addr()))
	}

	res, err := wf.Submit(ctx, batch)
	if err != nil {
		// the text sink has already shown the message
		cmd.SilenceErrors = true
		return err
	}

	noDownload, _ := cmd.Flags().GetBool("no-download")
	if !noDownload && len(res.Downloads) > 0 {
		paths, err := wf.DownloadAll(ctx, res, cfg.OutputDir)
		if err != nil {
			return fmt.Errorf("failed to download reports: %w", err)
		}
		for _, p := range paths {
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", p)
		}
	}

	keep, _ := cmd.Flags().GetBool("keep-dashboard")
	if dash != nil && keep {
		fmt.Fprintln(cmd.ErrOrStderr(), "Dashboard still serving, press Ctrl+C to exit")
		<-ctx.Done()
	}
	return nil
}

// loadConvertConfig reads the optional config file and applies flag
// overrides on top of it.
func loadConvertConfig(cmd *cobra.Command) (*config.Config, error) {
	flags := cmd.Flags()

	cfg := config.Default()
	cfg.Server = "${PDFXL_SERVER:-}"
	if path, _ := flags.GetString("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if flags.Changed("server") {
		cfg.Server, _ = flags.GetString("server")
	}
	if flags.Changed("poll-interval") {
		d, _ := flags.GetDuration("poll-interval")
		cfg.PollInterval = config.Duration(d)
	}
	if flags.Changed("presentation") {
		raw, _ := flags.GetString("presentation")
		cfg.Presentation = config.ParsePresentation(raw)
	}
	if flags.Changed("output") {
		cfg.OutputDir, _ = flags.GetString("output")
	}
	if flags.Changed("dashboard-port") {
		cfg.Dashboard.Port, _ = flags.GetInt("dashboard-port")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// dashboardHost renders a listener address as a browsable host:port.
func dashboardHost(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok && (tcp.IP == nil || tcp.IP.IsUnspecified()) {
		return fmt.Sprintf("localhost:%d", tcp.Port)
	}
	return addr.String()
}
