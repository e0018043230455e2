// Package demo is a small instrumented program: a symbol table keyed by
// symbolic integers and a tracer that fills it. It shows nested recording,
// since KeyTracer.AddSym calls the instrumented SymNodeDict.SetItem.
package demo

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/fakeyudi/snaptrace/tracer"
)

// ErrKeyNotFound is returned by GetItem for a symbol that was never set.
var ErrKeyNotFound = errors.New("key not found")

// SymInt is a symbolic integer identified by its node name.
type SymInt struct {
	Node string
}

func (s SymInt) String() string { return "<SymInt " + s.Node + ">" }

// Object is an opaque payload.
type Object struct{}

// SymNodeDict maps symbols to values, hashing them by node name.
type SymNodeDict struct {
	symNodeDict map[string]any
}

// NewSymNodeDict returns an empty dictionary.
func NewSymNodeDict() *SymNodeDict {
	return &SymNodeDict{symNodeDict: map[string]any{}}
}

// SetItem stores value under the node of key.
func (d *SymNodeDict) SetItem(key SymInt, value any) {
	d.symNodeDict[key.Node] = value
}

// GetItem returns the value for key, or ErrKeyNotFound.
func (d *SymNodeDict) GetItem(key SymInt) (any, error) {
	v, ok := d.symNodeDict[key.Node]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrKeyNotFound, key)
	}
	return v, nil
}

// Contains reports whether key has a value.
func (d *SymNodeDict) Contains(key SymInt) bool {
	_, ok := d.symNodeDict[key.Node]
	return ok
}

// Get returns the value for key, or def when it is absent.
func (d *SymNodeDict) Get(key SymInt, def any) any {
	if v, ok := d.symNodeDict[key.Node]; ok {
		return v
	}
	return def
}

func (d *SymNodeDict) Len() int { return len(d.symNodeDict) }

func (d *SymNodeDict) String() string {
	keys := slices.Sorted(maps.Keys(d.symNodeDict))
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s:%v", k, d.symNodeDict[k])
	}
	return "SymNodeDict{" + strings.Join(parts, " ") + "}"
}

// KeyTracer records symbols as they are created.
type KeyTracer struct {
	symnodeTracker   *SymNodeDict
	sympyExprTracker map[string]any
	torchFnCounts    map[string]int
	enableThunkify   bool

	setItem func(*SymNodeDict, SymInt, any)
}

// NewKeyTracer returns a tracer whose stores go straight to its dictionary.
func NewKeyTracer() *KeyTracer {
	return &KeyTracer{
		symnodeTracker:   NewSymNodeDict(),
		sympyExprTracker: map[string]any{},
		torchFnCounts:    map[string]int{},
		setItem:          (*SymNodeDict).SetItem,
	}
}

// TraceFields lists the observable state; the store hook is not part of it.
func (k *KeyTracer) TraceFields() map[string]any {
	return map[string]any{
		"symnode_tracker":    k.symnodeTracker,
		"sympy_expr_tracker": k.sympyExprTracker,
		"torch_fn_counts":    k.torchFnCounts,
		"enable_thunkify":    k.enableThunkify,
	}
}

func (k *KeyTracer) AddSym(key string, val any) {
	k.setItem(k.symnodeTracker, SymInt{Node: key}, val)
}

func (k *KeyTracer) Toggle() {
	k.enableThunkify = !k.enableThunkify
}

// Symbols returns the dictionary the tracer fills.
func (k *KeyTracer) Symbols() *SymNodeDict { return k.symnodeTracker }

// Enabled reports the thunkify flag.
func (k *KeyTracer) Enabled() bool { return k.enableThunkify }

// Session holds the instrumented classes of the demo, all recording to one
// recorder.
type Session struct {
	Dicts   *tracer.Class[SymNodeDict]
	Tracers *tracer.Class[KeyTracer]

	setItem func(*SymNodeDict, SymInt, any)
	addSym  func(*KeyTracer, string, any)
	toggle  func(*KeyTracer)
}

// NewSession instruments SetItem on SymNodeDict and AddSym and Toggle on
// KeyTracer.
func NewSession(rec *tracer.Recorder, opts ...tracer.Option) *Session {
	s := &Session{
		Dicts:   tracer.Instrument[SymNodeDict](rec, tracer.Methods("SetItem"), opts...),
		Tracers: tracer.Instrument[KeyTracer](rec, tracer.Methods("AddSym", "Toggle"), opts...),
	}
	s.setItem = tracer.MustMethodFunc[func(*SymNodeDict, SymInt, any)](s.Dicts, "SetItem")
	s.addSym = tracer.MustMethodFunc[func(*KeyTracer, string, any)](s.Tracers, "AddSym")
	s.toggle = tracer.MustMethodFunc[func(*KeyTracer)](s.Tracers, "Toggle")
	return s
}

// NewKeyTracer returns a tracer whose stores are recorded.
func (s *Session) NewKeyTracer() *KeyTracer {
	k := NewKeyTracer()
	k.setItem = s.setItem
	return k
}

func (s *Session) SetItem(d *SymNodeDict, key SymInt, value any) { s.setItem(d, key, value) }

func (s *Session) AddSym(k *KeyTracer, key string, val any) { s.addSym(k, key, val) }

func (s *Session) Toggle(k *KeyTracer) { s.toggle(k) }

// Run performs the demo calls: two symbols added and the flag toggled.
func Run(rec *tracer.Recorder, opts ...tracer.Option) *KeyTracer {
	s := NewSession(rec, opts...)
	kt := s.NewKeyTracer()
	s.AddSym(kt, "s57", new(Object))
	s.AddSym(kt, "s99", []int{1, 2, 3})
	s.Toggle(kt)
	return kt
}
