package logview

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// FieldDiff classifies the change of one field. For two mappings it lists
// the keys that were added, removed and changed; anything else is a plain
// replacement.
type FieldDiff struct {
	Added    []string `json:"added,omitempty"`
	Removed  []string `json:"removed,omitempty"`
	Changed  []string `json:"changed,omitempty"`
	Replaced bool     `json:"replaced,omitempty"`
}

// Classify compares the before and after values of a field.
func Classify(before, after any) FieldDiff {
	bm, bok := before.(map[string]any)
	am, aok := after.(map[string]any)
	if !bok || !aok {
		return FieldDiff{Replaced: !reflect.DeepEqual(before, after)}
	}
	var d FieldDiff
	for k, av := range am {
		bv, ok := bm[k]
		switch {
		case !ok:
			d.Added = append(d.Added, k)
		case !reflect.DeepEqual(av, bv):
			d.Changed = append(d.Changed, k)
		}
	}
	for k := range bm {
		if _, ok := am[k]; !ok {
			d.Removed = append(d.Removed, k)
		}
	}
	sort.Strings(d.Added)
	sort.Strings(d.Removed)
	sort.Strings(d.Changed)
	return d
}

// Empty reports whether nothing changed.
func (d FieldDiff) Empty() bool {
	return !d.Replaced && len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// Summary is a one-line description such as `+ "k1" added` or
// `+ 2 keys added: "a", "b"`.
func (d FieldDiff) Summary() string {
	if d.Replaced {
		return "~ value replaced"
	}
	var parts []string
	if s := keyList("+", "added", d.Added); s != "" {
		parts = append(parts, s)
	}
	if s := keyList("-", "removed", d.Removed); s != "" {
		parts = append(parts, s)
	}
	if s := keyList("~", "changed", d.Changed); s != "" {
		parts = append(parts, s)
	}
	if len(parts) == 0 {
		return "no changes"
	}
	return strings.Join(parts, "; ")
}

func keyList(sign, verb string, keys []string) string {
	switch len(keys) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%s %q %s", sign, keys[0], verb)
	}
	shown := keys
	if len(shown) > 3 {
		shown = shown[:3]
	}
	quoted := make([]string, len(shown))
	for i, k := range shown {
		quoted[i] = fmt.Sprintf("%q", k)
	}
	more := ""
	if len(keys) > 3 {
		more = "..."
	}
	return fmt.Sprintf("%s %d keys %s: %s%s", sign, len(keys), verb, strings.Join(quoted, ", "), more)
}
