// Package tui provides a Bubble Tea TUI for stepping through a change log.
package tui

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	jsoniter "github.com/json-iterator/go"

	"github.com/fakeyudi/snaptrace/internal/logview"
	"github.com/fakeyudi/snaptrace/tracer"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// ── Styles ────────────

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 2)

	activeTabStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	inactiveTabStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("245")).
				Background(lipgloss.Color("235")).
				Padding(0, 1)

	tabSepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")).
			Background(lipgloss.Color("235"))

	sectionHeader = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	labelStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("33")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	indexStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("178"))

	classStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214")).Bold(true)
	methodStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("39")).Bold(true)
	codeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("252"))

	statusBarStyle = lipgloss.NewStyle().
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("245")).
			Padding(0, 1)

	diffAddStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("82"))
	diffDelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))

	selectedRowStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("15")).
				Background(lipgloss.Color("237"))
)

// ── Tab definitions ─────────────────

type tabID int

const (
	tabTimeline tabID = iota
	tabChanges
	tabBacktrace
	tabState
	tabCount
)

var tabNames = [tabCount]string{
	"Timeline", "Changes", "Backtrace", "State",
}

// EventMsg delivers an event appended to the log while the TUI runs.
type EventMsg tracer.ChangeEvent

// ── Model ────────────────────

// Model is the root Bubble Tea model for the TUI.
type Model struct {
	events    []tracer.ChangeEvent
	timeline  []logview.Entry
	filename  string
	activeTab tabID
	viewports [tabCount]viewport.Model
	width     int
	height    int
	ready     bool
	newest    bool // list newest event first
	cursor    int  // selected timeline index
}

// New creates a TUI model for events read from filename.
func New(events []tracer.ChangeEvent, filename string) Model {
	return Model{
		events:   events,
		timeline: logview.BuildTimeline(events),
		filename: filepath.Base(filename),
	}
}

// Selected returns the index of the selected timeline entry.
func (m Model) Selected() int { return m.cursor }

// ── Bubble Tea interface ───────────────

func (m Model) Init() tea.Cmd { return nil }

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "tab", "l", "right":
			m.activeTab = (m.activeTab + 1) % tabCount
			return m, nil
		case "shift+tab", "h", "left":
			m.activeTab = (m.activeTab - 1 + tabCount) % tabCount
			return m, nil
		case "1", "2", "3", "4":
			m.activeTab = tabID(msg.String()[0] - '1')
			return m, nil
		case "s":
			m.newest = !m.newest
			m.refresh()
			return m, nil
		case "n", "]":
			m.move(1)
			return m, nil
		case "p", "[":
			m.move(-1)
			return m, nil
		case "up", "k":
			if m.activeTab == tabTimeline {
				m.moveRow(-1)
				return m, nil
			}
		case "down", "j":
			if m.activeTab == tabTimeline {
				m.moveRow(1)
				return m, nil
			}
		}
		if !m.ready {
			return m, nil
		}
		var cmd tea.Cmd
		m.viewports[m.activeTab], cmd = m.viewports[m.activeTab].Update(msg)
		return m, cmd

	case EventMsg:
		follow := m.cursor == len(m.timeline)-1 || len(m.timeline) == 0
		m.events = append(m.events, tracer.ChangeEvent(msg))
		m.timeline = logview.BuildTimeline(m.events)
		if follow {
			m.cursor = len(m.timeline) - 1
		}
		m.refresh()
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.initViewports()
		return m, nil
	}
	return m, nil
}

func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}

	title := titleStyle.Width(m.width).Render(fmt.Sprintf("  snaptrace  %s  %d events", m.filename, len(m.timeline)))

	var tabParts []string
	for i := tabID(0); i < tabCount; i++ {
		label := fmt.Sprintf(" %d %s ", i+1, tabNames[i])
		if i == m.activeTab {
			tabParts = append(tabParts, activeTabStyle.Render(label))
		} else {
			tabParts = append(tabParts, inactiveTabStyle.Render(label))
		}
		if i < tabCount-1 {
			tabParts = append(tabParts, tabSepStyle.Render("│"))
		}
	}
	tabRow := lipgloss.NewStyle().
		Background(lipgloss.Color("235")).
		Width(m.width).
		Render(lipgloss.JoinHorizontal(lipgloss.Top, tabParts...))

	content := m.viewports[m.activeTab].View()

	hint := "  ←/→ tab  n/p event  1-4 jump  q quit"
	if m.activeTab == tabTimeline {
		dir := "oldest first"
		if m.newest {
			dir = "newest first"
		}
		hint += "  ↑/↓ select  s sort (" + dir + ")"
	}
	pct := fmt.Sprintf("%3.0f%%", m.viewports[m.activeTab].ScrollPercent()*100)
	pad := m.width - lipgloss.Width(hint) - len(pct) - 2
	if pad < 1 {
		pad = 1
	}
	statusBar := statusBarStyle.Width(m.width).Render(
		hint + strings.Repeat(" ", pad) + pct,
	)

	return lipgloss.JoinVertical(lipgloss.Left, title, tabRow, content, statusBar)
}

// ── Selection ───────────────────

// move steps the selection through the log in recording order.
func (m *Model) move(delta int) {
	next := m.cursor + delta
	if next < 0 || next >= len(m.timeline) {
		return
	}
	m.cursor = next
	m.refresh()
}

// moveRow steps the selection in display order.
func (m *Model) moveRow(delta int) {
	if m.newest {
		delta = -delta
	}
	m.move(delta)
}

// ── Viewport management ───────────────────────────────────────────────────────

func (m *Model) initViewports() {
	// title(1) + tabRow(1) + statusBar(1) = 3 fixed rows
	vpHeight := m.height - 3
	if vpHeight < 1 {
		vpHeight = 1
	}
	for i := tabID(0); i < tabCount; i++ {
		vp := viewport.New(m.width, vpHeight)
		vp.SetContent(m.renderTab(i))
		m.viewports[i] = vp
	}
}

func (m *Model) refresh() {
	if !m.ready {
		return
	}
	for i := tabID(0); i < tabCount; i++ {
		m.viewports[i].SetContent(m.renderTab(i))
	}
}

// ── Tab renderers ─────────────────────────────────────────────────────────────

func (m *Model) renderTab(t tabID) string {
	switch t {
	case tabTimeline:
		return m.renderTimeline()
	case tabChanges:
		return m.renderChanges()
	case tabBacktrace:
		return m.renderBacktrace()
	case tabState:
		return m.renderState()
	}
	return ""
}

func heading(s string) string {
	return "\n" + sectionHeader.Render("  "+s) + "\n\n"
}

func (m *Model) selected() (logview.Entry, bool) {
	if m.cursor < 0 || m.cursor >= len(m.timeline) {
		return logview.Entry{}, false
	}
	return m.timeline[m.cursor], true
}

func eventTitle(e logview.Entry) string {
	return indexStyle.Render(fmt.Sprintf("#%d", e.Index+1)) + "  " +
		classStyle.Render(e.Event.Class) + "." + methodStyle.Render(e.Event.Method)
}

func (m *Model) renderTimeline() string {
	var sb strings.Builder
	dir := "oldest first"
	if m.newest {
		dir = "newest first"
	}
	sb.WriteString(heading(fmt.Sprintf("Timeline (%d, %s)", len(m.timeline), dir)))
	if len(m.timeline) == 0 {
		sb.WriteString(dimStyle.Render("  (no changes recorded)") + "\n")
		return sb.String()
	}

	order := make([]int, len(m.timeline))
	for i := range order {
		order[i] = i
	}
	if m.newest {
		sort.Sort(sort.Reverse(sort.IntSlice(order)))
	}
	for _, i := range order {
		e := m.timeline[i]
		fields := dimStyle.Render(strings.Join(e.Event.Changes.Fields(), ", "))
		row := fmt.Sprintf("  %s  %s", eventTitle(e), fields)
		if i == m.cursor {
			row = selectedRowStyle.Width(max(m.width-2, 1)).Render(row)
		}
		sb.WriteString(row + "\n")
	}
	return sb.String()
}

func (m *Model) renderChanges() string {
	var sb strings.Builder
	e, ok := m.selected()
	if !ok {
		sb.WriteString(heading("Changes"))
		sb.WriteString(dimStyle.Render("  (no event selected)") + "\n")
		return sb.String()
	}
	sb.WriteString(heading("Changes of " + e.Event.Class + "." + e.Event.Method))
	changes := e.Event.Changes
	for _, name := range changes.Fields() {
		c := changes[name]
		d := logview.Classify(c.Before, c.After)
		sb.WriteString(labelStyle.Render("  "+name) + "  " + dimStyle.Render(d.Summary()) + "\n")
		for _, line := range strings.Split(pretty(c.Before), "\n") {
			sb.WriteString(diffDelStyle.Render("    - "+line) + "\n")
		}
		for _, line := range strings.Split(pretty(c.After), "\n") {
			sb.WriteString(diffAddStyle.Render("    + "+line) + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Model) renderBacktrace() string {
	var sb strings.Builder
	e, ok := m.selected()
	if !ok {
		sb.WriteString(heading("Backtrace"))
		sb.WriteString(dimStyle.Render("  (no event selected)") + "\n")
		return sb.String()
	}
	frames := e.Event.Backtrace
	sb.WriteString(heading(fmt.Sprintf("Backtrace (%d frames, innermost first)", len(frames))))
	for i := len(frames) - 1; i >= 0; i-- {
		f := frames[i]
		sb.WriteString(fmt.Sprintf("  %s  %s\n", methodStyle.Render(f.Function), dimStyle.Render(fmt.Sprintf("%s:%d", f.File, f.Line))))
		if f.Code != "" {
			sb.WriteString("      " + codeStyle.Render(f.Code) + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (m *Model) renderState() string {
	var sb strings.Builder
	e, ok := m.selected()
	if !ok {
		sb.WriteString(heading("State"))
		sb.WriteString(dimStyle.Render("  (no event selected)") + "\n")
		return sb.String()
	}
	sb.WriteString(heading(fmt.Sprintf("State after #%d", e.Index+1)))
	for _, class := range e.StateAfter.Classes() {
		sb.WriteString("  " + classStyle.Render(class) + "\n")
		fields := e.StateAfter[class]
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			origin := ""
			if o, ok := e.Origins[class+"."+name]; ok {
				origin = dimStyle.Render(fmt.Sprintf("  (set by #%d %s)", o.Entry+1, o.Method))
			}
			sb.WriteString("    " + labelStyle.Render(name) + origin + "\n")
			sb.WriteString(indent(pretty(fields[name]), "      ") + "\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// ── Helpers ───────────────────────────────────────────────────────────────────

func pretty(v any) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		if l != "" {
			lines[i] = prefix + l
		}
	}
	return strings.Join(lines, "\n")
}

// Run starts the TUI for events read from filename. When follow is not nil,
// every event it delivers is appended to the timeline; Run returns once the
// user quits.
func Run(events []tracer.ChangeEvent, filename string, follow func(send func(tracer.ChangeEvent))) error {
	p := tea.NewProgram(New(events, filename), tea.WithAltScreen())
	if follow != nil {
		go follow(func(ev tracer.ChangeEvent) { p.Send(EventMsg(ev)) })
	}
	_, err := p.Run()
	return err
}
