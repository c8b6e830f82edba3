// Package git wraps the git toolchain binary for the read-only queries tdt
// needs: work tree validation, HEAD resolution, tracked file listing and blame.
package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"path/filepath"
	"strings"
)

// Errors returned by GitDir.
var (
	ErrInvalidRepository = errors.New("not a usable git work tree")
	ErrBlameFailed       = errors.New("blame failed")
)

// gitlinkMode is the index mode of submodule entries.
const gitlinkMode = "160000"

// GitDir is a directory in which one may run git commands.
type GitDir string

// Open returns a GitDir for dir after checking that it is a git work tree.
func Open(ctx context.Context, dir string) (GitDir, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrInvalidRepository, dir, err)
	}
	g := GitDir(abs)
	if err := g.CheckWorkTree(ctx); err != nil {
		return "", err
	}
	return g, nil
}

// Dir returns the working directory of the GitDir.
func (g GitDir) Dir() string {
	return string(g)
}

// Git runs the given git command in the GitDir and returns its stdout.
func (g GitDir) Git(ctx context.Context, args ...string) ([]byte, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = string(g)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			return nil, fmt.Errorf("git %s: %w", args[0], err)
		}
		return nil, fmt.Errorf("git %s: %w: %s", args[0], err, msg)
	}
	return stdout.Bytes(), nil
}

// CheckWorkTree returns ErrInvalidRepository unless the GitDir is inside a
// non-bare git work tree.
func (g GitDir) CheckWorkTree(ctx context.Context) error {
	out, err := g.Git(ctx, "rev-parse", "--is-inside-work-tree")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidRepository, g, err)
	}
	if strings.TrimSpace(string(out)) != "true" {
		return fmt.Errorf("%w: %s is not inside a work tree", ErrInvalidRepository, g)
	}
	return nil
}

// Head resolves HEAD to a full commit hash.
func (g GitDir) Head(ctx context.Context) (string, error) {
	out, err := g.Git(ctx, "rev-parse", "--verify", "HEAD^{commit}")
	if err != nil {
		return "", fmt.Errorf("%w: resolve HEAD: %v", ErrInvalidRepository, err)
	}
	split := strings.Fields(string(out))
	if len(split) != 1 || !isHash(split[0]) {
		return "", fmt.Errorf("%w: unable to parse commit hash from output: %q", ErrInvalidRepository, out)
	}
	return split[0], nil
}

// ListTrackedFiles returns the paths in the index relative to the GitDir, in
// git's listing order. Submodule entries are skipped and paths with several
// merge stages are listed once.
func (g GitDir) ListTrackedFiles(ctx context.Context) ([]string, error) {
	out, err := g.Git(ctx, "ls-files", "-z", "--stage")
	if err != nil {
		return nil, fmt.Errorf("%w: list files: %v", ErrInvalidRepository, err)
	}
	return parseLsFiles(out)
}

// parseLsFiles parses NUL separated "<mode> <object> <stage>\t<path>" entries.
func parseLsFiles(out []byte) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	for _, entry := range bytes.Split(out, []byte{0}) {
		if len(entry) == 0 {
			continue
		}
		meta, path, ok := strings.Cut(string(entry), "\t")
		if !ok {
			return nil, fmt.Errorf("malformed ls-files entry: %q", entry)
		}
		mode, _, _ := strings.Cut(meta, " ")
		if mode == gitlinkMode || seen[path] {
			continue
		}
		seen[path] = true
		files = append(files, path)
	}
	return files, nil
}

// Blame returns every line of path as of rev, annotated with the commit
// that last modified it.
func (g GitDir) Blame(ctx context.Context, rev, path string) ([]BlameLine, error) {
	out, err := g.Git(ctx, "blame", "--line-porcelain", rev, "--", path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBlameFailed, path, err)
	}
	lines, err := ParseBlame(bytes.NewReader(out))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBlameFailed, path, err)
	}
	return lines, nil
}

// isHash reports whether s looks like a full SHA-1 or SHA-256 object name.
func isHash(s string) bool {
	if len(s) != 40 && len(s) != 64 {
		return false
	}
	for _, c := range s {
		if !(c >= '0' && c <= '9' || c >= 'a' && c <= 'f') {
			return false
		}
	}
	return true
}
