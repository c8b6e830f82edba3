// Package models contains the core data structures for tdt.
package models

import (
	"fmt"
	"time"
)

// DateLayout is the layout used when printing commit dates.
const DateLayout = "2006-01-02"

// Author identifies the author of a commit.
type Author struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

// String returns the author in "Name <email>" form.
func (a Author) String() string {
	return fmt.Sprintf("%s <%s>", a.Name, a.Email)
}

// MatchRecord is a single line that matched the scan pattern, enriched
// with the blame metadata of the commit that last touched it.
//
// Fields are declared in lexicographic order of their JSON keys so the
// encoded report is canonical without a custom marshaler.
type MatchRecord struct {
	// Commit is the full hash of the commit that last modified the line.
	Commit string `json:"commit"`

	// CommitAuthor is the author of Commit.
	CommitAuthor Author `json:"commit_author"`

	// CommittedDate is the committer timestamp of Commit, in seconds since epoch.
	CommittedDate int64 `json:"committed_date"`

	// File is the path of the file, relative to the scanned directory.
	File string `json:"file"`

	// Line is the matched line with surrounding whitespace removed.
	Line string `json:"line"`

	// LineNo is the 1-based line number within the file at HEAD.
	LineNo int `json:"lineno"`
}

// Location returns "file:lineno".
func (m MatchRecord) Location() string {
	return fmt.Sprintf("%s:%d", m.File, m.LineNo)
}

// CommittedTime returns CommittedDate as a local time.
func (m MatchRecord) CommittedTime() time.Time {
	return time.Unix(m.CommittedDate, 0).Local()
}

// CommittedDay formats the commit date as YYYY-MM-DD in local time.
func (m MatchRecord) CommittedDay() string {
	return m.CommittedTime().Format(DateLayout)
}
