package report

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cbroglie/mustache"
	"github.com/fatih/color"

	"github.com/good-yellow-bee/tdt/internal/models"
)

// ErrTemplateFieldMissing is returned when an HTML template references a
// field the report does not have.
var ErrTemplateFieldMissing = errors.New("template references unknown field")

//go:embed templates/report.html.mustache
var templateFS embed.FS

// DefaultTemplateName is the embedded HTML template.
const DefaultTemplateName = "templates/report.html.mustache"

const jsonIndent = "    "

// ExportFormat defines the output format for exports.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportHTML ExportFormat = "html"
	ExportText ExportFormat = "text"
)

// Exporter writes a report in one format.
type Exporter struct {
	format   ExportFormat
	writer   io.Writer
	template string
}

// NewExporter creates an exporter for the given format. HTML exports use the
// embedded template unless SetTemplate is called.
func NewExporter(format ExportFormat, w io.Writer) *Exporter {
	return &Exporter{
		format: format,
		writer: w,
	}
}

// SetTemplate sets the mustache template used for HTML exports.
func (e *Exporter) SetTemplate(tmpl string) {
	e.template = tmpl
}

// ExportReport writes the report in the configured format.
func (e *Exporter) ExportReport(report *Report) error {
	switch e.format {
	case ExportHTML:
		tmpl := e.template
		if tmpl == "" {
			var err error
			if tmpl, err = DefaultTemplate(); err != nil {
				return err
			}
		}
		html, err := RenderHTML(report, tmpl)
		if err != nil {
			return err
		}
		_, err = io.WriteString(e.writer, html)
		return err
	case ExportText:
		return WriteSummary(e.writer, report)
	default:
		data, err := EncodeJSON(report)
		if err != nil {
			return err
		}
		_, err = e.writer.Write(data)
		return err
	}
}

// EncodeJSON returns the canonical JSON form of report: keys sorted at every
// level, four space indentation, no HTML escaping and a trailing newline.
func EncodeJSON(report *Report) ([]byte, error) {
	return encodeCanonical(report)
}

// DecodeJSON parses a report written by EncodeJSON.
func DecodeJSON(data []byte) (*Report, error) {
	var r Report
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

// Canonicalize re-encodes an arbitrary JSON document with the same rules as
// EncodeJSON. Integers are preserved exactly.
func Canonicalize(data []byte) ([]byte, error) {
	v, err := decodeGeneric(data)
	if err != nil {
		return nil, err
	}
	return encodeCanonical(v)
}

func encodeCanonical(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", jsonIndent)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	return buf.Bytes(), nil
}

func decodeGeneric(data []byte) (interface{}, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("decode json: %w", err)
	}
	return v, nil
}

// DefaultTemplate returns the embedded HTML template.
func DefaultTemplate() (string, error) {
	data, err := templateFS.ReadFile(DefaultTemplateName)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// RenderHTML renders report through a mustache template. The template sees
// the report in its JSON shape, e.g. {{commit}}, {{#items}}{{lineno}}{{/items}}
// and {{commit_author.name}}. A variable or section naming a field the report
// does not have fails with ErrTemplateFieldMissing, even when the section
// would not be rendered.
func RenderHTML(report *Report, tmpl string) (string, error) {
	t, err := mustache.ParseString(tmpl)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}

	shape, err := reportView(withSampleItems(report))
	if err != nil {
		return "", err
	}
	if err := checkFields(t.Tags(), []interface{}{shape}); err != nil {
		return "", err
	}

	view, err := reportView(report)
	if err != nil {
		return "", err
	}
	out, err := t.Render(view)
	if err != nil {
		return "", fmt.Errorf("render template: %w", err)
	}
	return out, nil
}

// reportView returns report in its JSON shape. Numbers stay json.Number so
// timestamps render as integers.
func reportView(report *Report) (interface{}, error) {
	data, err := EncodeJSON(report)
	if err != nil {
		return nil, err
	}
	return decodeGeneric(data)
}

// withSampleItems returns a copy of report whose lists hold at least one
// element, so the fields inside list sections can be checked on an empty
// report too.
func withSampleItems(report *Report) *Report {
	r := *report
	if len(r.Items) == 0 {
		r.Items = []models.MatchRecord{{}}
	}
	if len(r.Args.Includes) == 0 {
		r.Args.Includes = []string{""}
	}
	return &r
}

// checkFields resolves the name of every variable and section in tags
// against the context stack, innermost context last.
func checkFields(tags []mustache.Tag, stack []interface{}) error {
	for _, tag := range tags {
		switch tag.Type() {
		case mustache.Variable:
			if _, ok := resolveField(stack, tag.Name()); !ok {
				return fmt.Errorf("%w: %q", ErrTemplateFieldMissing, tag.Name())
			}
		case mustache.Section, mustache.InvertedSection:
			v, ok := resolveField(stack, tag.Name())
			if !ok {
				return fmt.Errorf("%w: %q", ErrTemplateFieldMissing, tag.Name())
			}
			inner := stack
			if tag.Type() == mustache.Section {
				inner = append(append([]interface{}(nil), stack...), sectionContext(v))
			}
			if err := checkFields(tag.Tags(), inner); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveField looks name up the way mustache does: the first segment in
// the innermost context that has it, the remaining dotted segments inside
// that value only.
func resolveField(stack []interface{}, name string) (interface{}, bool) {
	if name == "." {
		return stack[len(stack)-1], true
	}
	head, rest, dotted := strings.Cut(name, ".")
	for i := len(stack) - 1; i >= 0; i-- {
		m, ok := stack[i].(map[string]interface{})
		if !ok {
			continue
		}
		v, ok := m[head]
		if !ok {
			continue
		}
		if !dotted {
			return v, true
		}
		return resolveField([]interface{}{v}, rest)
	}
	return nil, false
}

// sectionContext is the context a section pushes for v: the first element
// of a list, v itself otherwise.
func sectionContext(v interface{}) interface{} {
	if list, ok := v.([]interface{}); ok {
		if len(list) == 0 {
			return nil
		}
		return list[0]
	}
	return v
}

var locationColor = color.New(color.Bold)

// WriteSummary prints one block per match:
//
//	location: <file>:<lineno>
//	code: <line>
//	commit: <commit>
//	author: <name> <<email>>
//	committed date: <YYYY-MM-DD>
func WriteSummary(w io.Writer, report *Report) error {
	for _, item := range report.Items {
		if _, err := locationColor.Fprintf(w, "location: %s\n", item.Location()); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(w, "code: %s\ncommit: %s\nauthor: %s\ncommitted date: %s\n\n",
			item.Line, item.Commit, item.CommitAuthor, item.CommittedDay()); err != nil {
			return err
		}
	}
	return nil
}
