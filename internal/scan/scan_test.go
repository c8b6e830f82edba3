package scan

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync/atomic"
	"testing"
	"time"

	"github.com/good-yellow-bee/tdt/internal/git"
	"github.com/good-yellow-bee/tdt/internal/git/gittest"
	"github.com/good-yellow-bee/tdt/internal/metrics"
	"github.com/good-yellow-bee/tdt/internal/models"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

// fakeBackend serves canned blame output.
type fakeBackend struct {
	files  []string
	blames map[string][]git.BlameLine
	delay  map[string]time.Duration
	calls  atomic.Int32
}

func (f *fakeBackend) ListTrackedFiles(ctx context.Context) ([]string, error) {
	return f.files, nil
}

func (f *fakeBackend) Blame(ctx context.Context, rev, path string) ([]git.BlameLine, error) {
	f.calls.Add(1)
	if d := f.delay[path]; d > 0 {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	lines, ok := f.blames[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s: no such path at %s", git.ErrBlameFailed, path, rev)
	}
	return lines, nil
}

var (
	bob  = &git.Commit{Hash: "def456", AuthorName: "Bob", AuthorEmail: "bob@x.com", CommitterTime: 1600000000}
	jane = &git.Commit{Hash: "abc123", AuthorName: "Jane", AuthorEmail: "jane@x.com", CommitterTime: 1700000000}
)

func blameOf(c *git.Commit, texts ...string) []git.BlameLine {
	lines := make([]git.BlameLine, len(texts))
	for i, text := range texts {
		lines[i] = git.BlameLine{LineNo: i + 1, Text: []byte(text), Commit: c}
	}
	return lines
}

func newTestScanner(t *testing.T, backend Backend, opts *Options) *Scanner {
	t.Helper()
	s, err := NewScanner(backend, opts)
	if err != nil {
		t.Fatalf("NewScanner() error = %v", err)
	}
	return s
}

func TestScanFile_SingleMatch(t *testing.T) {
	backend := &fakeBackend{blames: map[string][]git.BlameLine{
		"a.py": {
			{LineNo: 1, Text: []byte("print(1)"), Commit: bob},
			{LineNo: 2, Text: []byte("# TODO fix"), Commit: jane},
		},
	}}
	s := newTestScanner(t, backend, nil)

	records, err := s.ScanFile(context.Background(), "HEAD", "a.py")
	if err != nil {
		t.Fatalf("ScanFile() error = %v", err)
	}

	want := []models.MatchRecord{{
		Commit:        "abc123",
		CommitAuthor:  models.Author{Name: "Jane", Email: "jane@x.com"},
		CommittedDate: 1700000000,
		File:          "a.py",
		Line:          "# TODO fix",
		LineNo:        2,
	}}
	if !reflect.DeepEqual(records, want) {
		t.Errorf("ScanFile() = %+v, want %+v", records, want)
	}
}

func TestScanFile_CaseInsensitive(t *testing.T) {
	backend := &fakeBackend{blames: map[string][]git.BlameLine{
		"x.js": blameOf(jane, "// todo lower", "// Todo title", "// TODO upper", "// nothing here", "  tOdO   "),
	}}
	s := newTestScanner(t, backend, nil)

	records, err := s.ScanFile(context.Background(), "HEAD", "x.js")
	if err != nil {
		t.Fatalf("ScanFile() error = %v", err)
	}

	var got []int
	for _, r := range records {
		got = append(got, r.LineNo)
	}
	if want := []int{1, 2, 3, 5}; !reflect.DeepEqual(got, want) {
		t.Errorf("matched lines = %v, want %v", got, want)
	}
	if records[3].Line != "tOdO" {
		t.Errorf("Line = %q, want trimmed %q", records[3].Line, "tOdO")
	}
}

func TestScanFile_BinaryLinesSkipped(t *testing.T) {
	backend := &fakeBackend{blames: map[string][]git.BlameLine{
		"mixed.c": blameOf(jane, "\xff\xfe TODO binary", "int x;", "\x80\x81", "// TODO after binary"),
	}}
	m := metrics.NewScanMetrics()
	s := newTestScanner(t, backend, &Options{Metrics: m})

	records, err := s.ScanFile(context.Background(), "HEAD", "mixed.c")
	if err != nil {
		t.Fatalf("ScanFile() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("len(records) = %d, want 1", len(records))
	}
	if records[0].LineNo != 4 {
		t.Errorf("LineNo = %d, want 4", records[0].LineNo)
	}
	if got := testutil.ToFloat64(m.LinesSkipped); got != 2 {
		t.Errorf("LinesSkipped = %v, want 2", got)
	}
}

func TestScanFile_LineNumbersAcrossChunks(t *testing.T) {
	// Three blame chunks from alternating commits.
	lines := []git.BlameLine{
		{LineNo: 1, Text: []byte("a"), Commit: bob},
		{LineNo: 2, Text: []byte("b"), Commit: bob},
		{LineNo: 3, Text: []byte("TODO c"), Commit: jane},
		{LineNo: 4, Text: []byte("d"), Commit: bob},
		{LineNo: 5, Text: []byte("TODO e"), Commit: bob},
	}
	backend := &fakeBackend{blames: map[string][]git.BlameLine{"f.py": lines}}
	s := newTestScanner(t, backend, nil)

	records, err := s.ScanFile(context.Background(), "HEAD", "f.py")
	if err != nil {
		t.Fatalf("ScanFile() error = %v", err)
	}
	if len(records) != 2 || records[0].LineNo != 3 || records[1].LineNo != 5 {
		t.Fatalf("records = %+v, want lines 3 and 5", records)
	}
	if records[0].Commit != "abc123" || records[1].Commit != "def456" {
		t.Errorf("commits = %s, %s", records[0].Commit, records[1].Commit)
	}
}

func TestScanFile_Empty(t *testing.T) {
	backend := &fakeBackend{blames: map[string][]git.BlameLine{"empty.py": nil}}
	s := newTestScanner(t, backend, nil)

	records, err := s.ScanFile(context.Background(), "HEAD", "empty.py")
	if err != nil {
		t.Fatalf("ScanFile() error = %v", err)
	}
	if len(records) != 0 {
		t.Errorf("len(records) = %d, want 0", len(records))
	}
}

func TestScanFile_CustomPattern(t *testing.T) {
	backend := &fakeBackend{blames: map[string][]git.BlameLine{
		"a.go": blameOf(jane, "// FIXME later", "// TODO now", "// hack around", "fixme: start"),
	}}
	s := newTestScanner(t, backend, &Options{Pattern: "^fixme|hack"})

	records, err := s.ScanFile(context.Background(), "HEAD", "a.go")
	if err != nil {
		t.Fatalf("ScanFile() error = %v", err)
	}
	var got []int
	for _, r := range records {
		got = append(got, r.LineNo)
	}
	if want := []int{3, 4}; !reflect.DeepEqual(got, want) {
		t.Errorf("matched lines = %v, want %v", got, want)
	}
}

func TestScanFiles_BlameFailureAborts(t *testing.T) {
	backend := &fakeBackend{blames: map[string][]git.BlameLine{
		"a.py": blameOf(jane, "# TODO"),
	}}
	s := newTestScanner(t, backend, nil)

	_, err := s.ScanFiles(context.Background(), "HEAD", []string{"a.py", "gone.py", "b.py"})
	if !errors.Is(err, git.ErrBlameFailed) {
		t.Fatalf("ScanFiles() error = %v, want ErrBlameFailed", err)
	}
	if got := backend.calls.Load(); got != 2 {
		t.Errorf("blame calls = %d, want 2 (stop at first failure)", got)
	}
}

func TestScanFiles_ParallelOrderMatchesSequential(t *testing.T) {
	files := []string{"a.py", "b.py", "c.py", "d.py", "e.py"}
	backend := &fakeBackend{
		files: files,
		blames: map[string][]git.BlameLine{
			"a.py": blameOf(jane, "TODO a1", "x", "TODO a3"),
			"b.py": blameOf(bob, "nothing"),
			"c.py": blameOf(bob, "TODO c1"),
			"d.py": blameOf(jane, "x", "TODO d2"),
			"e.py": blameOf(bob, "TODO e1", "TODO e2"),
		},
		// Earlier files finish last.
		delay: map[string]time.Duration{
			"a.py": 40 * time.Millisecond,
			"b.py": 30 * time.Millisecond,
			"c.py": 20 * time.Millisecond,
			"d.py": 10 * time.Millisecond,
		},
	}

	seq := newTestScanner(t, backend, &Options{Workers: 1})
	want, err := seq.ScanFiles(context.Background(), "HEAD", files)
	if err != nil {
		t.Fatalf("sequential ScanFiles() error = %v", err)
	}

	par := newTestScanner(t, backend, &Options{Workers: 4})
	got, err := par.ScanFiles(context.Background(), "HEAD", files)
	if err != nil {
		t.Fatalf("parallel ScanFiles() error = %v", err)
	}

	if !reflect.DeepEqual(got, want) {
		t.Errorf("parallel order differs:\n got %+v\nwant %+v", got, want)
	}
	if len(got) != 6 {
		t.Errorf("len(matches) = %d, want 6", len(got))
	}
}

func TestScanFiles_NoFiles(t *testing.T) {
	s := newTestScanner(t, &fakeBackend{}, nil)

	matches, err := s.ScanFiles(context.Background(), "HEAD", nil)
	if err != nil {
		t.Fatalf("ScanFiles() error = %v", err)
	}
	if matches == nil || len(matches) != 0 {
		t.Errorf("ScanFiles() = %#v, want empty non-nil slice", matches)
	}
}

func TestScanFiles_Canceled(t *testing.T) {
	backend := &fakeBackend{blames: map[string][]git.BlameLine{"a.py": blameOf(jane, "TODO")}}
	s := newTestScanner(t, backend, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.ScanFiles(ctx, "HEAD", []string{"a.py"}); !errors.Is(err, context.Canceled) {
		t.Errorf("ScanFiles() error = %v, want context.Canceled", err)
	}
}

func TestScanner_ScanIncludesFilter(t *testing.T) {
	backend := &fakeBackend{
		files: []string{"a.py", "docs/readme.md", "lib/util.js", "src/b.py"},
		blames: map[string][]git.BlameLine{
			"a.py":           blameOf(jane, "# TODO a"),
			"docs/readme.md": blameOf(jane, "TODO docs"),
			"lib/util.js":    blameOf(bob, "// todo js"),
			"src/b.py":       blameOf(bob, "# TODO b"),
		},
	}

	tests := []struct {
		name     string
		includes []string
		want     []string
	}{
		{"defaults match at any depth", nil, []string{"a.py", "lib/util.js", "src/b.py"}},
		{"bare glob matches file names at any depth", []string{"*.js"}, []string{"lib/util.js"}},
		{"bare glob markdown", []string{"*.md"}, []string{"docs/readme.md"}},
		{"doublestar markdown", []string{"**/*.md"}, []string{"docs/readme.md"}},
		{"glob with slash is anchored", []string{"docs/*.py"}, nil},
		{"explicit dir", []string{"src/**"}, []string{"src/b.py"}},
		{"brace alternation", []string{"**/*.{md,js}"}, []string{"docs/readme.md", "lib/util.js"}},
		{"exact file name", []string{"a.py"}, []string{"a.py"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestScanner(t, backend, &Options{Includes: tt.includes})
			matches, err := s.Scan(context.Background(), "HEAD")
			if err != nil {
				t.Fatalf("Scan() error = %v", err)
			}
			var got []string
			for _, m := range matches {
				got = append(got, m.File)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("matched files = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestNewScanner_InvalidOptions(t *testing.T) {
	if _, err := NewScanner(&fakeBackend{}, &Options{Pattern: "("}); err == nil {
		t.Error("NewScanner() expected error for invalid pattern")
	}
	if _, err := NewScanner(&fakeBackend{}, &Options{Includes: []string{"[a-"}}); err == nil {
		t.Error("NewScanner() expected error for invalid include")
	}
}

func TestCompilePattern(t *testing.T) {
	tests := []struct {
		expr    string
		line    string
		want    bool
		wantErr bool
	}{
		{"", "x = 1 # todo", true, false},
		{"TODO", "prefix TODO suffix", true, false},
		{"TODO", "TOD O", false, false},
		{"^TODO", "  TODO", false, false},
		{"FIXME|XXX", "// xxx", true, false},
		{"(", "", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.expr+"/"+tt.line, func(t *testing.T) {
			re, err := CompilePattern(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("CompilePattern(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if got := re.MatchString(tt.line); got != tt.want {
				t.Errorf("MatchString(%q) = %v, want %v", tt.line, got, tt.want)
			}
		})
	}
}

func TestScanner_GitRepository(t *testing.T) {
	ctx := context.Background()
	repo := gittest.NewRepo(t)
	repo.WriteFile("a.py", "print(1)\n")
	repo.WriteFile("notes.md", "TODO in markdown\n")
	repo.Commit("first", gittest.Author{Name: "Bob", Email: "bob@x.com"}, 1600000000)
	repo.WriteFile("a.py", "print(1)\n# TODO fix\n")
	head := repo.Commit("second", gittest.Author{Name: "Jane", Email: "jane@x.com"}, 1700000000)

	g, err := git.Open(ctx, repo.Dir)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	s := newTestScanner(t, g, nil)

	matches, err := s.Scan(ctx, head)
	if err != nil {
		t.Fatalf("Scan() error = %v", err)
	}
	want := []models.MatchRecord{{
		Commit:        head,
		CommitAuthor:  models.Author{Name: "Jane", Email: "jane@x.com"},
		CommittedDate: 1700000000,
		File:          "a.py",
		Line:          "# TODO fix",
		LineNo:        2,
	}}
	if !reflect.DeepEqual(matches, want) {
		t.Errorf("Scan() = %+v, want %+v", matches, want)
	}
}
