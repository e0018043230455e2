// Package report exports a change log as a self-contained document and
// reads such documents back.
package report

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fakeyudi/snaptrace/internal/logview"
	"github.com/fakeyudi/snaptrace/tracer"
)

// Version is written into every report.
const Version = 1

// Report is the complete, renderable form of a change log.
type Report struct {
	Version   int                  `json:"version" yaml:"version"`
	Source    string               `json:"source" yaml:"source"`
	Generated time.Time            `json:"generated" yaml:"generated"`
	Events    []tracer.ChangeEvent `json:"events" yaml:"events"`
}

// New builds a report of events read from source.
func New(source string, events []tracer.ChangeEvent) *Report {
	return &Report{
		Version:   Version,
		Source:    source,
		Generated: time.Now().UTC().Truncate(time.Second),
		Events:    events,
	}
}

// Timeline replays the events of the report.
func (r *Report) Timeline() []logview.Entry {
	return logview.BuildTimeline(r.Events)
}

// Format names a report encoding.
type Format string

const (
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatMarkdown Format = "markdown"
)

// ParseFormat accepts the format names and their common aliases.
func ParseFormat(name string) (Format, error) {
	switch strings.ToLower(name) {
	case "json":
		return FormatJSON, nil
	case "yaml", "yml":
		return FormatYAML, nil
	case "markdown", "md":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unknown report format %q (want json, yaml or markdown)", name)
}

// FormatFromPath guesses the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return "", fmt.Errorf("cannot tell report format of %s", path)
	}
	return ParseFormat(ext)
}

// Extension is the file extension written for f.
func (f Format) Extension() string {
	switch f {
	case FormatYAML:
		return ".yaml"
	case FormatMarkdown:
		return ".md"
	}
	return ".json"
}

// RendererFor returns the renderer for f.
func RendererFor(f Format) (Renderer, error) {
	switch f {
	case FormatJSON:
		return &JSONRenderer{}, nil
	case FormatYAML:
		return &YAMLRenderer{}, nil
	case FormatMarkdown:
		return &MarkdownRenderer{}, nil
	}
	return nil, fmt.Errorf("no renderer for format %q", f)
}

// ParserFor returns the parser for f.
func ParserFor(f Format) (Parser, error) {
	switch f {
	case FormatJSON:
		return &JSONParser{}, nil
	case FormatYAML:
		return &YAMLParser{}, nil
	case FormatMarkdown:
		return &MarkdownParser{}, nil
	}
	return nil, fmt.Errorf("no parser for format %q", f)
}
