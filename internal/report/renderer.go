package report

import (
	"encoding/base64"
	"fmt"
	"sort"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/fakeyudi/snaptrace/internal/logview"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Renderer serializes a Report to bytes.
type Renderer interface {
	Render(r *Report) ([]byte, error)
}

// JSONRenderer renders a Report as indented JSON.
type JSONRenderer struct{}

func (*JSONRenderer) Render(r *Report) ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// YAMLRenderer renders a Report as YAML.
type YAMLRenderer struct{}

func (*YAMLRenderer) Render(r *Report) ([]byte, error) {
	return yaml.Marshal(r)
}

const (
	versionSentinel = "<!-- snaptrace-report-version: 1 -->"
	dataPrefix      = "<!-- snaptrace-data: "
	dataSuffix      = " -->"
)

// maxBacktrace is how many innermost frames the Markdown form shows per event.
const maxBacktrace = 5

// MarkdownRenderer renders a Report as readable Markdown with an embedded
// base64 JSON payload, so MarkdownParser recovers it losslessly.
type MarkdownRenderer struct{}

func (*MarkdownRenderer) Render(r *Report) ([]byte, error) {
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("marshal report: %w", err)
	}

	var sb strings.Builder
	sb.WriteString(versionSentinel + "\n")
	fmt.Fprintf(&sb, "%s%s%s\n\n", dataPrefix, base64.StdEncoding.EncodeToString(payload), dataSuffix)

	fmt.Fprintf(&sb, "# snaptrace: %s (%s)\n\n", r.Source, r.Generated.Format("2006-01-02 15:04:05 MST"))

	timeline := r.Timeline()

	sb.WriteString("## Summary\n\n")
	fmt.Fprintf(&sb, "- Events: %d\n", len(r.Events))
	var final logview.State
	if len(timeline) > 0 {
		final = timeline[len(timeline)-1].StateAfter
		fmt.Fprintf(&sb, "- Classes: %s\n", strings.Join(final.Classes(), ", "))
	}
	sb.WriteString("\n")

	sb.WriteString("## Timeline\n\n")
	if len(timeline) == 0 {
		sb.WriteString("_No changes recorded._\n\n")
	}
	for _, entry := range timeline {
		ev := entry.Event
		fmt.Fprintf(&sb, "### %d. %s.%s\n\n", entry.Index+1, ev.Class, ev.Method)
		sb.WriteString("| Field | Change | After |\n")
		sb.WriteString("|-------|--------|-------|\n")
		for _, name := range ev.Changes.Fields() {
			c := ev.Changes[name]
			fmt.Fprintf(&sb, "| %s | %s | `%s` |\n",
				name,
				escapeCell(logview.Classify(c.Before, c.After).Summary()),
				escapeCell(compact(c.After)),
			)
		}
		sb.WriteString("\n")

		if len(ev.Backtrace) > 0 {
			frames := ev.Backtrace
			if len(frames) > maxBacktrace {
				frames = frames[len(frames)-maxBacktrace:]
			}
			sb.WriteString("```\n")
			for i := len(frames) - 1; i >= 0; i-- {
				f := frames[i]
				fmt.Fprintf(&sb, "%s:%d %s\n", f.File, f.Line, f.Function)
				if f.Code != "" {
					fmt.Fprintf(&sb, "    %s\n", f.Code)
				}
			}
			sb.WriteString("```\n\n")
		}
	}

	sb.WriteString("## Final State\n\n")
	if len(final) == 0 {
		sb.WriteString("_No state._\n")
	}
	for _, class := range final.Classes() {
		fmt.Fprintf(&sb, "### %s\n\n", class)
		fields := final[class]
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "- %s: `%s`\n", name, compact(fields[name]))
		}
		sb.WriteString("\n")
	}

	return []byte(sb.String()), nil
}

func compact(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
