package tracer

import (
	"reflect"
	"sort"
)

// Absent stands in for a field missing from one side of a diff. It differs
// from nil and is written as null.
var Absent any = absent{}

type absent struct{}

func (absent) MarshalJSON() ([]byte, error) { return []byte("null"), nil }

func (absent) String() string { return "<absent>" }

// ChangeEntry holds the serialized values of one field before and after a call.
type ChangeEntry struct {
	Before any `json:"before"`
	After  any `json:"after"`
}

// ChangeSet maps field name to its change. An empty set means nothing
// observable happened.
type ChangeSet map[string]ChangeEntry

// Fields returns the changed field names, sorted.
func (c ChangeSet) Fields() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Diff compares two snapshots of the same object.
func Diff(before, after Snapshot) ChangeSet {
	changes := ChangeSet{}
	for name := range union(before, after) {
		b, ok := before[name]
		if !ok {
			b = Absent
		}
		a, ok := after[name]
		if !ok {
			a = Absent
		}
		if !Equal(b, a) {
			changes[name] = ChangeEntry{Before: b, After: a}
		}
	}
	return changes
}

// Equal reports structural equality of two serialized values.
func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}

func union(a, b Snapshot) map[string]struct{} {
	names := make(map[string]struct{}, len(a)+len(b))
	for name := range a {
		names[name] = struct{}{}
	}
	for name := range b {
		names[name] = struct{}{}
	}
	return names
}
