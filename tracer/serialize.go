package tracer

import (
	"encoding"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"unsafe"
)

// DefaultMaxDepth bounds how far Serialize expands nested values.
const DefaultMaxDepth = 4

// classKey tags the serialized form of a struct with its type name.
const classKey = "__class__"

// Valuer lets a type choose its own serialized form. The returned value is
// serialized in place of the receiver.
type Valuer interface {
	TraceValue() any
}

// Serializer turns arbitrary values into a depth-bounded, cycle-safe tree
// made of nil, bool, int64, uint64, float64, string, []any and map[string]any.
type Serializer struct {
	MaxDepth int
}

// NewSerializer returns a Serializer with the given depth bound. Values
// below 1 fall back to DefaultMaxDepth.
func NewSerializer(maxDepth int) *Serializer {
	if maxDepth < 1 {
		maxDepth = DefaultMaxDepth
	}
	return &Serializer{MaxDepth: maxDepth}
}

// Serialize converts v using DefaultMaxDepth.
func Serialize(v any) any {
	return NewSerializer(DefaultMaxDepth).Serialize(v)
}

// Serialize converts v. It never panics.
func (s *Serializer) Serialize(v any) any {
	return s.value(reflect.ValueOf(v))
}

func (s *Serializer) value(v reflect.Value) any {
	limit := s.MaxDepth
	if limit < 1 {
		limit = DefaultMaxDepth
	}
	w := &walker{limit: limit, open: make(map[ref]struct{})}
	return w.value(v, 0)
}

// ref identifies a reference value on the current recursion path.
type ref struct {
	typ reflect.Type
	ptr uintptr
	n   int
}

// walker carries the state of a single serialization. open holds only the
// references of the current ancestor chain: a value shared by two sibling
// branches is expanded in both.
type walker struct {
	limit int
	open  map[ref]struct{}
}

func (w *walker) value(v reflect.Value, depth int) (out any) {
	defer func() {
		if r := recover(); r != nil {
			out = printable(v)
		}
	}()

	if !v.IsValid() {
		return nil
	}
	switch v.Kind() {
	case reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return w.value(v.Elem(), depth)
	case reflect.Pointer, reflect.Map, reflect.Slice:
		if v.IsNil() {
			return nil
		}
	}

	v = exposed(v)
	if leaf, ok := w.leaf(v, depth); ok {
		return leaf
	}
	if p, ok := primitive(v); ok {
		return p
	}

	id, isRef := identity(v)
	if isRef {
		if _, busy := w.open[id]; busy {
			return "<cycle:" + printable(v) + ">"
		}
	}
	if depth >= w.limit {
		return printable(v)
	}
	if isRef {
		w.open[id] = struct{}{}
		defer delete(w.open, id)
	}

	switch v.Kind() {
	case reflect.Pointer:
		return w.value(v.Elem(), depth)
	case reflect.Map:
		if isSet(v.Type()) {
			return w.set(v, depth)
		}
		return w.mapping(v, depth)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return printable(v)
		}
		return w.sequence(v, depth)
	case reflect.Array:
		return w.sequence(v, depth)
	case reflect.Struct:
		return w.object(v, depth)
	}
	return printable(v)
}

// leaf handles types that opt out of structural expansion.
func (w *walker) leaf(v reflect.Value, depth int) (any, bool) {
	if !v.CanInterface() {
		return nil, false
	}
	switch x := v.Interface().(type) {
	case Valuer:
		// The substitute counts as one level, so Valuers returning each
		// other stop at the depth bound.
		if depth >= w.limit {
			return printable(v), true
		}
		tv := reflect.ValueOf(x.TraceValue())
		if tv.IsValid() && tv.Type() == v.Type() {
			return printable(v), true
		}
		return w.value(tv, depth+1), true
	case encoding.TextMarshaler:
		b, err := x.MarshalText()
		if err != nil {
			return printable(v), true
		}
		return string(b), true
	}
	return nil, false
}

func (w *walker) mapping(v reflect.Value, depth int) any {
	type entry struct {
		key string
		val any
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		entries = append(entries, entry{
			key: w.key(iter.Key()),
			val: w.value(iter.Value(), depth+1),
		})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if entries[i].key != entries[j].key {
			return entries[i].key < entries[j].key
		}
		return fmt.Sprint(entries[i].val) < fmt.Sprint(entries[j].val)
	})

	out := make(map[string]any, len(entries))
	for _, e := range entries {
		k := e.key
		for n := 2; ; n++ {
			if _, taken := out[k]; !taken {
				break
			}
			k = e.key + "~" + strconv.Itoa(n)
		}
		out[k] = e.val
	}
	return out
}

// set serializes a map[K]struct{} as a sorted sequence of its keys.
func (w *walker) set(v reflect.Value, depth int) any {
	out := make([]any, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		out = append(out, w.value(iter.Key(), depth+1))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return fmt.Sprint(out[i]) < fmt.Sprint(out[j])
	})
	return out
}

func (w *walker) sequence(v reflect.Value, depth int) any {
	out := make([]any, v.Len())
	for i := range out {
		out[i] = w.value(v.Index(i), depth+1)
	}
	return out
}

func (w *walker) object(v reflect.Value, depth int) any {
	t := v.Type()
	out := make(map[string]any, t.NumField()+1)
	out[classKey] = typeName(t)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Name == "_" {
			continue
		}
		out[f.Name] = w.value(v.Field(i), depth+1)
	}
	return out
}

// key coerces a map key to text. A key whose printable form panics gets an
// identity placeholder instead; colliding placeholders are told apart by
// mapping like any other duplicate key.
func (w *walker) key(k reflect.Value) (s string) {
	defer func() {
		if r := recover(); r != nil {
			if id, ok := identity(k); ok {
				s = fmt.Sprintf("<key:%#x>", id.ptr)
			} else {
				s = "<key:unprintable>"
			}
		}
	}()
	if k.Kind() == reflect.Interface && !k.IsNil() {
		k = k.Elem()
	}
	if p, ok := primitive(k); ok {
		return text(p)
	}
	return render(exposed(k))
}

func primitive(v reflect.Value) (any, bool) {
	switch v.Kind() {
	case reflect.Bool:
		return v.Bool(), true
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint(), true
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		switch {
		case math.IsNaN(f):
			return "NaN", true
		case math.IsInf(f, 1):
			return "+Inf", true
		case math.IsInf(f, -1):
			return "-Inf", true
		}
		return f, true
	case reflect.String:
		return v.String(), true
	}
	return nil, false
}

func text(p any) string {
	switch x := p.(type) {
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case uint64:
		return strconv.FormatUint(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(p)
}

func identity(v reflect.Value) (ref, bool) {
	switch v.Kind() {
	case reflect.Pointer, reflect.Map:
		return ref{typ: v.Type(), ptr: v.Pointer()}, true
	case reflect.Slice:
		return ref{typ: v.Type(), ptr: v.Pointer(), n: v.Len()}, true
	}
	return ref{}, false
}

func isSet(t reflect.Type) bool {
	e := t.Elem()
	return e.Kind() == reflect.Struct && e.NumField() == 0
}

func typeName(t reflect.Type) string {
	if t.Name() != "" {
		return t.Name()
	}
	return t.String()
}

// exposed makes an addressable value read from an unexported field usable
// through Interface, so leaf capabilities and String methods still apply.
func exposed(v reflect.Value) reflect.Value {
	if v.CanInterface() || !v.CanAddr() {
		return v
	}
	return reflect.NewAt(v.Type(), unsafe.Pointer(v.UnsafeAddr())).Elem()
}

// Limits of the printable form: nesting levels, elements per collection,
// and elements in total.
const (
	printDepth    = 6
	maxPrintItems = 32
	maxPrintTotal = 256
)

// printable is the best-effort text form of v. It always terminates and
// never panics.
func printable(v reflect.Value) (s string) {
	defer func() {
		if r := recover(); r != nil {
			s = "<unprintable " + safeTypeString(v) + ">"
		}
	}()
	return render(exposed(v))
}

// render is printable without the recover; a panicking String method
// escapes to the caller.
func render(v reflect.Value) string {
	p := &printer{left: maxPrintTotal}
	return p.render(v, printDepth)
}

func safeTypeString(v reflect.Value) string {
	if !v.IsValid() {
		return "nil"
	}
	return v.Type().String()
}

type printer struct {
	left int
}

func (p *printer) render(v reflect.Value, budget int) string {
	if !v.IsValid() {
		return "<nil>"
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		if v.IsNil() {
			return "<nil>"
		}
	}
	if v.CanInterface() {
		if st, ok := v.Interface().(fmt.Stringer); ok {
			return st.String()
		}
	}
	if prim, ok := primitive(v); ok {
		if str, isStr := prim.(string); isStr && v.Kind() == reflect.String {
			return strconv.Quote(str)
		}
		return text(prim)
	}

	switch v.Kind() {
	case reflect.Interface:
		return p.render(v.Elem(), budget)
	case reflect.Pointer:
		if budget <= 0 || v.Elem().Kind() != reflect.Struct {
			return fmt.Sprintf("<%s at %#x>", v.Type(), v.Pointer())
		}
		return "&" + p.render(v.Elem(), budget)
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return fmt.Sprintf("%q", v.Bytes())
		}
		return p.items(v, budget)
	case reflect.Array:
		return p.items(v, budget)
	case reflect.Map:
		if budget <= 0 {
			return fmt.Sprintf("<%s len=%d>", v.Type(), v.Len())
		}
		return p.mapping(v, budget)
	case reflect.Struct:
		t := v.Type()
		if budget <= 0 {
			return typeName(t) + "{...}"
		}
		parts := make([]string, 0, t.NumField())
		for i := 0; i < t.NumField() && p.take(); i++ {
			parts = append(parts, t.Field(i).Name+":"+p.render(exposed(v.Field(i)), budget-1))
		}
		return typeName(t) + "{" + p.join(parts, t.NumField()) + "}"
	case reflect.Chan, reflect.Func, reflect.UnsafePointer:
		return fmt.Sprintf("<%s at %#x>", v.Type(), v.Pointer())
	case reflect.Complex64, reflect.Complex128:
		return strconv.FormatComplex(v.Complex(), 'g', -1, 128)
	}
	return "<" + v.Type().String() + ">"
}

func (p *printer) items(v reflect.Value, budget int) string {
	if budget <= 0 {
		return fmt.Sprintf("<%s len=%d>", v.Type(), v.Len())
	}
	parts := make([]string, 0, v.Len())
	for i := 0; i < v.Len() && i < maxPrintItems && p.take(); i++ {
		parts = append(parts, p.render(exposed(v.Index(i)), budget-1))
	}
	return "[" + p.join(parts, v.Len()) + "]"
}

// mapping renders the entries of a map in the order of their full
// printable forms, so the shared budget always covers the same entries.
func (p *printer) mapping(v reflect.Value, budget int) string {
	type entry struct {
		key, val reflect.Value
		order    string
	}
	entries := make([]entry, 0, v.Len())
	iter := v.MapRange()
	for iter.Next() {
		k, val := exposed(iter.Key()), exposed(iter.Value())
		order := render(k) + ":" + render(val)
		entries = append(entries, entry{key: k, val: val, order: order})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].order < entries[j].order
	})

	parts := make([]string, 0, min(len(entries), maxPrintItems))
	for _, e := range entries {
		if len(parts) == maxPrintItems || !p.take() {
			break
		}
		parts = append(parts, p.render(e.key, budget-1)+":"+p.render(e.val, budget-1))
	}
	return "map[" + p.join(parts, v.Len()) + "]"
}

// take spends one element of the total budget.
func (p *printer) take() bool {
	if p.left <= 0 {
		return false
	}
	p.left--
	return true
}

func (p *printer) join(parts []string, total int) string {
	if len(parts) > maxPrintItems {
		parts = parts[:maxPrintItems]
	}
	if len(parts) < total {
		parts = append(parts, "...")
	}
	return strings.Join(parts, " ")
}
