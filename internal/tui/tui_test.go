package tui

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/fakeyudi/snaptrace/tracer"
)

func sampleEvents() []tracer.ChangeEvent {
	return []tracer.ChangeEvent{
		{
			Class:   "SymNodeDict",
			Method:  "SetItem",
			Changes: tracer.ChangeSet{"sym_node_dict": {Before: map[string]any{}, After: map[string]any{"x": 1.0}}},
			Backtrace: []tracer.StackFrame{
				{File: "main.go", Line: 20, Function: "main.main", Code: "kt.AddSym(x)"},
				{File: "demo.go", Line: 40, Function: "demo.(*KeyTracer).AddSym", Code: "setItem(d, sym, v)"},
			},
		},
		{
			Class:   "KeyTracer",
			Method:  "Toggle",
			Changes: tracer.ChangeSet{"enabled": {Before: false, After: true}},
		},
	}
}

func press(m tea.Model, keys ...string) tea.Model {
	for _, k := range keys {
		var msg tea.KeyMsg
		switch k {
		case "tab":
			msg = tea.KeyMsg{Type: tea.KeyTab}
		case "down":
			msg = tea.KeyMsg{Type: tea.KeyDown}
		case "up":
			msg = tea.KeyMsg{Type: tea.KeyUp}
		default:
			msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(k)}
		}
		m, _ = m.Update(msg)
	}
	return m
}

func sized(m Model) tea.Model {
	next, _ := m.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return next
}

func TestViewBeforeSize(t *testing.T) {
	if got := New(nil, "log.txt").View(); got != "Loading…" {
		t.Errorf("got %q", got)
	}
}

func TestTimelineListsEvents(t *testing.T) {
	m := sized(New(sampleEvents(), "/tmp/log.txt"))
	view := m.View()
	for _, want := range []string{"snaptrace", "log.txt", "2 events", "SymNodeDict", "SetItem", "KeyTracer", "Toggle"} {
		if !strings.Contains(view, want) {
			t.Errorf("timeline view missing %q", want)
		}
	}
}

func TestSelectionMovesThroughEvents(t *testing.T) {
	m := sized(New(sampleEvents(), "log.txt"))
	m = press(m, "down")
	if got := m.(Model).Selected(); got != 1 {
		t.Fatalf("after down: want 1, got %d", got)
	}
	m = press(m, "down")
	if got := m.(Model).Selected(); got != 1 {
		t.Errorf("selection should stop at the last event, got %d", got)
	}
	m = press(m, "p", "p")
	if got := m.(Model).Selected(); got != 0 {
		t.Errorf("selection should stop at the first event, got %d", got)
	}

	// Newest first flips the meaning of up and down.
	m = press(m, "s", "up")
	if got := m.(Model).Selected(); got != 1 {
		t.Errorf("newest first up: want 1, got %d", got)
	}
}

func TestTabsFollowSelection(t *testing.T) {
	m := sized(New(sampleEvents(), "log.txt"))

	changes := press(m, "2").View()
	if !strings.Contains(changes, "sym_node_dict") || !strings.Contains(changes, `+ "x" added`) {
		t.Errorf("changes tab:\n%s", changes)
	}

	backtrace := press(m, "3").View()
	if !strings.Contains(backtrace, "kt.AddSym(x)") || !strings.Contains(backtrace, "main.go:20") {
		t.Errorf("backtrace tab:\n%s", backtrace)
	}

	state := press(m, "n", "4").View()
	for _, want := range []string{"State after #2", "SymNodeDict", "KeyTracer", "set by #2 Toggle"} {
		if !strings.Contains(state, want) {
			t.Errorf("state tab missing %q:\n%s", want, state)
		}
	}
}

func TestEventMsgAppendsAndFollows(t *testing.T) {
	m := sized(New(sampleEvents()[:1], "log.txt"))
	m, _ = m.Update(EventMsg(sampleEvents()[1]))
	if got := m.(Model).Selected(); got != 1 {
		t.Errorf("selection on the last event should follow new events, got %d", got)
	}
	if !strings.Contains(m.View(), "2 events") {
		t.Error("title should count the appended event")
	}
}

func TestEmptyLog(t *testing.T) {
	m := sized(New(nil, "log.txt"))
	if !strings.Contains(m.View(), "no changes recorded") {
		t.Errorf("empty timeline:\n%s", m.View())
	}
	if !strings.Contains(press(m, "2").View(), "no event selected") {
		t.Error("changes tab should say nothing is selected")
	}
}

func TestQuit(t *testing.T) {
	_, cmd := sized(New(nil, "log.txt")).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	if cmd == nil {
		t.Fatal("q should return a command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("q should quit")
	}
}
