package logview

import (
	"maps"
	"sort"
	"strconv"
	"strings"

	"github.com/fakeyudi/snaptrace/tracer"
)

// State is cumulative object state: class name to field name to the last
// recorded value.
type State map[string]map[string]any

// Origin names the timeline entry that last wrote a value.
type Origin struct {
	Entry  int    `json:"entry"`
	Method string `json:"method"`
}

// Entry is one event of the timeline together with the state it produced.
type Entry struct {
	Index      int                `json:"index"`
	Event      tracer.ChangeEvent `json:"event"`
	StateAfter State              `json:"state_after"`
	// Origins maps value paths ("Dict.entries", "Dict.entries.k",
	// "Dict.items[0]") to the entry that wrote them.
	Origins map[string]Origin `json:"origins"`
}

// BuildTimeline replays the after values of events in order. Every entry
// holds its own copy of the state, so later events never alter it.
func BuildTimeline(events []tracer.ChangeEvent) []Entry {
	timeline := make([]Entry, 0, len(events))
	state := State{}
	origins := map[string]Origin{}

	for i, ev := range events {
		fields := state[ev.Class]
		if fields == nil {
			fields = map[string]any{}
			state[ev.Class] = fields
		}
		origin := Origin{Entry: i, Method: ev.Method}
		for _, name := range ev.Changes.Fields() {
			after := ev.Changes[name].After
			fields[name] = after

			path := ev.Class + "." + name
			dropPaths(origins, path)
			trackOrigins(origins, path, after, origin)
		}
		timeline = append(timeline, Entry{
			Index:      i,
			Event:      ev,
			StateAfter: state.clone(),
			Origins:    maps.Clone(origins),
		})
	}
	return timeline
}

// StateAt returns the state after entry i, or an empty state when i is out
// of range.
func StateAt(timeline []Entry, i int) State {
	if i < 0 || i >= len(timeline) {
		return State{}
	}
	return timeline[i].StateAfter
}

// ChangesAt returns the changes of entry i, or an empty set when i is out of
// range.
func ChangesAt(timeline []Entry, i int) tracer.ChangeSet {
	if i < 0 || i >= len(timeline) {
		return tracer.ChangeSet{}
	}
	return timeline[i].Event.Changes
}

// Classes returns the class names present in s, sorted.
func (s State) Classes() []string {
	names := make([]string, 0, len(s))
	for name := range s {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s State) clone() State {
	out := make(State, len(s))
	for class, fields := range s {
		cp := make(map[string]any, len(fields))
		for name, v := range fields {
			cp[name] = deepCopy(v)
		}
		out[class] = cp
	}
	return out
}

func deepCopy(v any) any {
	switch v := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, e := range v {
			out[k] = deepCopy(e)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, e := range v {
			out[i] = deepCopy(e)
		}
		return out
	default:
		return v
	}
}

func trackOrigins(origins map[string]Origin, path string, v any, origin Origin) {
	origins[path] = origin
	switch v := v.(type) {
	case map[string]any:
		for k, e := range v {
			trackOrigins(origins, path+"."+k, e, origin)
		}
	case []any:
		for i, e := range v {
			trackOrigins(origins, path+"["+strconv.Itoa(i)+"]", e, origin)
		}
	}
}

// dropPaths forgets path and everything nested below it.
func dropPaths(origins map[string]Origin, path string) {
	for p := range origins {
		if p == path || strings.HasPrefix(p, path+".") || strings.HasPrefix(p, path+"[") {
			delete(origins, p)
		}
	}
}
