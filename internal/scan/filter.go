package scan

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultIncludes are the globs used when no includes are given.
var DefaultIncludes = []string{
	"**/*.rb", "**/*.php", "**/*.c", "**/*.cpp", "**/*.h", "**/*.hpp",
	"**/*.py", "**/*.groovy", "**/*.java", "**/*.js", "**/*.ts",
	"**/*.jsx", "**/*.tsx", "**/*.html", "**/*.twig",
}

// IncludeFilter selects paths matching at least one glob. A glob without a
// slash is matched against the file name, so "*.js" selects lib/util.js. A
// glob with a slash is matched against the whole path, and "**" matches any
// number of directories, including none.
type IncludeFilter struct {
	Patterns []string
}

// NewIncludeFilter validates patterns and returns a filter for them.
// An empty list selects DefaultIncludes.
func NewIncludeFilter(patterns []string) (*IncludeFilter, error) {
	if len(patterns) == 0 {
		patterns = DefaultIncludes
	}
	for _, p := range patterns {
		if !doublestar.ValidatePattern(p) {
			return nil, fmt.Errorf("invalid include pattern: %q", p)
		}
	}
	return &IncludeFilter{Patterns: append([]string(nil), patterns...)}, nil
}

// Matches returns true if name matches any pattern.
func (f *IncludeFilter) Matches(name string) bool {
	base := path.Base(name)
	for _, p := range f.Patterns {
		subject := name
		if !strings.Contains(p, "/") {
			subject = base
		}
		// Patterns were validated, so Match cannot fail.
		if ok, _ := doublestar.Match(p, subject); ok {
			return true
		}
	}
	return false
}

// FileLister lists the files tracked by a repository.
type FileLister interface {
	ListTrackedFiles(ctx context.Context) ([]string, error)
}

// ListFiles returns the tracked files accepted by filter, keeping the
// lister's order.
func ListFiles(ctx context.Context, lister FileLister, filter *IncludeFilter) ([]string, error) {
	tracked, err := lister.ListTrackedFiles(ctx)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, path := range tracked {
		if filter.Matches(path) {
			files = append(files, path)
		}
	}
	return files, nil
}
