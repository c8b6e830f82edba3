// Package report assembles scan results into a report and renders it as
// JSON, HTML and a plain text summary.
package report

import (
	"github.com/good-yellow-bee/tdt/internal/models"
)

// RunArgs are the arguments a scan was run with. Fields are declared in
// lexicographic order of their JSON keys.
type RunArgs struct {
	GitDir   string   `json:"git_dir"`
	Includes []string `json:"includes"`
	Quiet    bool     `json:"quiet"`
}

// Report is the complete result of a scan run.
type Report struct {
	Args   RunArgs              `json:"args"`
	Commit string               `json:"commit"`
	Items  []models.MatchRecord `json:"items"`
}

// Build assembles a report. A nil matches slice yields an empty item list.
func Build(args RunArgs, head string, matches []models.MatchRecord) *Report {
	if matches == nil {
		matches = []models.MatchRecord{}
	}
	if args.Includes == nil {
		args.Includes = []string{}
	}
	return &Report{
		Args:   args,
		Commit: head,
		Items:  matches,
	}
}

// HasMatches reports whether any line matched.
func (r *Report) HasMatches() bool {
	return len(r.Items) > 0
}
