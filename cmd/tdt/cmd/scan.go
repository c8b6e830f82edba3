package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/good-yellow-bee/tdt/internal/git"
	"github.com/good-yellow-bee/tdt/internal/metrics"
	"github.com/good-yellow-bee/tdt/internal/report"
	"github.com/good-yellow-bee/tdt/internal/scan"
	"github.com/good-yellow-bee/tdt/pkg/config"
)

// scanOptions is the resolved configuration of one run.
type scanOptions struct {
	Quiet        bool
	GitDir       string
	Includes     []string
	Pattern      string
	JSONOut      string
	HTMLOut      string
	TemplatePath string
	ConfigPath   string
	Workers      int
	MetricsFile  string
}

// applyConfigFile fills every option whose flag was not set explicitly from
// the configuration file.
func (o *scanOptions) applyConfigFile(changed func(name string) bool) error {
	cfg, err := config.LoadConfig(o.ConfigPath)
	if err != nil {
		return err
	}
	if !changed("includes") && len(cfg.Includes) > 0 {
		o.Includes = cfg.Includes
	}
	if !changed("pattern") && cfg.Pattern != "" {
		o.Pattern = cfg.Pattern
	}
	if !changed("json-out") {
		o.JSONOut = cfg.Output.JSON
	}
	if !changed("html-out") {
		o.HTMLOut = cfg.Output.HTML
	}
	if !changed("template") && cfg.Template != "" {
		o.TemplatePath = cfg.Template
	}
	if !changed("workers") {
		o.Workers = cfg.Workers
	}
	if !changed("metrics-file") && cfg.MetricsFile != "" {
		o.MetricsFile = cfg.MetricsFile
	}
	return nil
}

// loadTemplate returns the custom HTML template, or "" for the built-in one.
func (o *scanOptions) loadTemplate() (string, error) {
	if o.TemplatePath == "" {
		return "", nil
	}
	data, err := os.ReadFile(o.TemplatePath)
	if err != nil {
		return "", fmt.Errorf("read template: %w", err)
	}
	return string(data), nil
}

// runScan scans the repository, writes both reports and prints the summary.
// It returns errMatchesFound when the report is not empty.
func runScan(ctx context.Context, o *scanOptions, stdout io.Writer, logger *log.Logger) error {
	start := time.Now()

	if o.Workers < 1 {
		return fmt.Errorf("invalid --workers: %d (must be at least 1)", o.Workers)
	}
	tmpl, err := o.loadTemplate()
	if err != nil {
		return err
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			logger.Warn("received interrupt, stopping")
			cancel()
		case <-ctx.Done():
		}
	}()

	repo, err := git.Open(ctx, o.GitDir)
	if err != nil {
		return err
	}
	head, err := repo.Head(ctx)
	if err != nil {
		return err
	}
	logger.Debug("resolved HEAD", "dir", repo.Dir(), "commit", head)

	var m *metrics.ScanMetrics
	if o.MetricsFile != "" {
		m = metrics.NewScanMetrics()
		info := config.GetBuildInfo()
		m.SetBuildInfo(info.Version, info.Commit, info.BuildTime)
	}

	scanner, err := scan.NewScanner(repo, &scan.Options{
		Includes: o.Includes,
		Pattern:  o.Pattern,
		Workers:  o.Workers,
		Logger:   logger,
		Metrics:  m,
	})
	if err != nil {
		return err
	}

	logger.Debug("scanning", "pattern", o.Pattern, "includes", strings.Join(o.Includes, ","), "workers", o.Workers)
	matches, err := scanner.Scan(ctx, head)
	if err != nil {
		return err
	}

	rep := report.Build(report.RunArgs{
		GitDir:   o.GitDir,
		Includes: o.Includes,
		Quiet:    o.Quiet,
	}, head, matches)

	// Render everything before touching the output files.
	var jsonBuf, htmlBuf bytes.Buffer
	if err := report.NewExporter(report.ExportJSON, &jsonBuf).ExportReport(rep); err != nil {
		return err
	}
	htmlExporter := report.NewExporter(report.ExportHTML, &htmlBuf)
	htmlExporter.SetTemplate(tmpl)
	if err := htmlExporter.ExportReport(rep); err != nil {
		return err
	}
	if err := report.WriteOutputs(
		report.Output{Path: o.JSONOut, Data: jsonBuf.Bytes()},
		report.Output{Path: o.HTMLOut, Data: htmlBuf.Bytes()},
	); err != nil {
		return err
	}
	logger.Debug("reports written", "json", o.JSONOut, "html", o.HTMLOut, "matches", len(rep.Items))

	if !o.Quiet {
		if err := report.NewExporter(report.ExportText, stdout).ExportReport(rep); err != nil {
			return fmt.Errorf("write summary: %w", err)
		}
	}

	if m != nil {
		m.ObserveRun(time.Since(start), time.Now())
		if err := m.WriteTextfile(o.MetricsFile); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
		logger.Debug("metrics written", "path", o.MetricsFile)
	}

	if rep.HasMatches() {
		return errMatchesFound
	}
	return nil
}
