package git

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Commit holds the blame metadata of a commit.
type Commit struct {
	Hash          string
	AuthorName    string
	AuthorEmail   string
	AuthorTime    int64
	CommitterTime int64
}

// BlameLine is one line of a blamed file.
type BlameLine struct {
	// LineNo is the 1-based line number in the blamed revision.
	LineNo int

	// Text is the raw line content without the trailing newline. It is not
	// guaranteed to be valid UTF-8.
	Text []byte

	// Commit is the commit that last modified the line.
	Commit *Commit
}

// ParseBlame parses the output of "git blame --porcelain" or
// "git blame --line-porcelain". Commit headers are shared between lines of
// the same commit, so both formats yield identical results.
func ParseBlame(r io.Reader) ([]BlameLine, error) {
	br := bufio.NewReader(r)
	commits := make(map[string]*Commit)

	var (
		lines   []BlameLine
		current *BlameLine
	)
	for {
		raw, err := br.ReadBytes('\n')
		if err != nil && err != io.EOF {
			return nil, err
		}
		if len(raw) == 0 && err == io.EOF {
			break
		}
		line := bytes.TrimSuffix(raw, []byte("\n"))

		switch {
		case current == nil:
			bl, err := parseBlameHeader(line, commits)
			if err != nil {
				return nil, err
			}
			current = bl
		case len(line) > 0 && line[0] == '\t':
			current.Text = append([]byte(nil), line[1:]...)
			lines = append(lines, *current)
			current = nil
		default:
			parseCommitHeader(current.Commit, string(line))
		}

		if err == io.EOF {
			break
		}
	}
	if current != nil {
		return nil, fmt.Errorf("truncated blame output at line %d", current.LineNo)
	}
	return lines, nil
}

// parseBlameHeader parses "<hash> <orig-line> <final-line> [<group-size>]".
func parseBlameHeader(line []byte, commits map[string]*Commit) (*BlameLine, error) {
	fields := strings.Fields(string(line))
	if len(fields) < 3 || !isHash(fields[0]) {
		return nil, fmt.Errorf("malformed blame header: %q", line)
	}
	lineNo, err := strconv.Atoi(fields[2])
	if err != nil || lineNo < 1 {
		return nil, fmt.Errorf("malformed blame line number: %q", line)
	}

	c, ok := commits[fields[0]]
	if !ok {
		c = &Commit{Hash: fields[0]}
		commits[fields[0]] = c
	}
	return &BlameLine{LineNo: lineNo, Commit: c}, nil
}

func parseCommitHeader(c *Commit, line string) {
	key, val, _ := strings.Cut(line, " ")
	switch key {
	case "author":
		c.AuthorName = val
	case "author-mail":
		c.AuthorEmail = strings.TrimSuffix(strings.TrimPrefix(val, "<"), ">")
	case "author-time":
		if ts, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.AuthorTime = ts
		}
	case "committer-time":
		if ts, err := strconv.ParseInt(val, 10, 64); err == nil {
			c.CommitterTime = ts
		}
	}
}
