// Package scan finds the lines of tracked files that match a pattern and
// attributes each of them to the commit that last touched it.
package scan

import (
	"context"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/good-yellow-bee/tdt/internal/git"
	"github.com/good-yellow-bee/tdt/internal/metrics"
	"github.com/good-yellow-bee/tdt/internal/models"
)

// DefaultPattern is the line pattern used when none is given.
const DefaultPattern = "TODO"

// Backend is the version control backend a Scanner reads from.
type Backend interface {
	FileLister
	Blame(ctx context.Context, rev, path string) ([]git.BlameLine, error)
}

// Options configures a Scanner.
type Options struct {
	Includes []string             // Include globs (empty = DefaultIncludes)
	Pattern  string               // Line regexp, matched case-insensitively anywhere in the line
	Workers  int                  // Concurrent blames (<= 0 = 1)
	Logger   *log.Logger          // Progress logger (nil = discard)
	Metrics  *metrics.ScanMetrics // Optional run metrics
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() *Options {
	return &Options{
		Includes: DefaultIncludes,
		Pattern:  DefaultPattern,
		Workers:  1,
	}
}

// Scanner scans the files of a repository at a fixed revision.
type Scanner struct {
	backend Backend
	opts    *Options
	filter  *IncludeFilter
	pattern *regexp.Regexp
	logger  *log.Logger
}

// NewScanner creates a scanner reading from backend.
func NewScanner(backend Backend, opts *Options) (*Scanner, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	filter, err := NewIncludeFilter(opts.Includes)
	if err != nil {
		return nil, err
	}
	pattern, err := CompilePattern(opts.Pattern)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard)
	}

	return &Scanner{
		backend: backend,
		opts:    opts,
		filter:  filter,
		pattern: pattern,
		logger:  logger,
	}, nil
}

// CompilePattern compiles expr for case-insensitive matching. An empty
// expression selects DefaultPattern.
func CompilePattern(expr string) (*regexp.Regexp, error) {
	if strings.TrimSpace(expr) == "" {
		expr = DefaultPattern
	}
	re, err := regexp.Compile("(?i)" + expr)
	if err != nil {
		return nil, fmt.Errorf("invalid pattern %q: %w", expr, err)
	}
	return re, nil
}

// Files returns the tracked files selected by the include globs.
func (s *Scanner) Files(ctx context.Context) ([]string, error) {
	return ListFiles(ctx, s.backend, s.filter)
}

// Scan enumerates the included files and scans each of them at rev.
func (s *Scanner) Scan(ctx context.Context, rev string) ([]models.MatchRecord, error) {
	files, err := s.Files(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("enumerated files", "count", len(files), "includes", strings.Join(s.filter.Patterns, ","))
	return s.ScanFiles(ctx, rev, files)
}

// ScanFiles scans files at rev and returns their matches in file order, then
// line order. Up to Workers files are blamed at once; the first failure
// cancels the others.
func (s *Scanner) ScanFiles(ctx context.Context, rev string, files []string) ([]models.MatchRecord, error) {
	perFile := make([][]models.MatchRecord, len(files))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.opts.Workers)
	for i, path := range files {
		g.Go(func() error {
			records, err := s.ScanFile(gCtx, rev, path)
			if err != nil {
				return err
			}
			perFile[i] = records
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	matches := make([]models.MatchRecord, 0)
	for _, records := range perFile {
		matches = append(matches, records...)
	}
	return matches, nil
}

// ScanFile blames path at rev and returns the lines matching the pattern.
// Lines that are not valid UTF-8 are skipped.
func (s *Scanner) ScanFile(ctx context.Context, rev, path string) ([]models.MatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	lines, err := s.backend.Blame(ctx, rev, path)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	var (
		records []models.MatchRecord
		skipped int
	)
	for _, l := range lines {
		if !utf8.Valid(l.Text) {
			skipped++
			continue
		}
		text := string(l.Text)
		if !s.pattern.MatchString(text) {
			continue
		}
		records = append(records, models.MatchRecord{
			Commit: l.Commit.Hash,
			CommitAuthor: models.Author{
				Email: l.Commit.AuthorEmail,
				Name:  l.Commit.AuthorName,
			},
			CommittedDate: l.Commit.CommitterTime,
			File:          path,
			Line:          strings.TrimSpace(text),
			LineNo:        l.LineNo,
		})
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].LineNo < records[j].LineNo
	})

	s.opts.Metrics.ObserveFile(len(lines), skipped, len(records), elapsed)
	s.logger.Debug("scanned file", "path", path, "lines", len(lines), "skipped", skipped, "matches", len(records))
	return records, nil
}
