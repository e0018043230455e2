package tracer

import (
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"runtime"
	"sort"

	"github.com/fakeyudi/snaptrace/internal/logging"
)

var (
	// ErrUnknownMethod is returned when a type does not declare the named method.
	ErrUnknownMethod = errors.New("method not declared on type")

	// ErrSignatureMismatch is returned when the requested function type is not
	// the method expression type of the named method.
	ErrSignatureMismatch = errors.New("function type does not match method")

	// ErrBadArguments is returned by Call when the arguments do not fit the method.
	ErrBadArguments = errors.New("arguments do not match method")
)

// Policy selects which methods of a type get instrumented.
type Policy struct {
	names map[string]struct{} // nil selects everything
}

// AllMethods selects every method the type declares.
func AllMethods() Policy {
	return Policy{}
}

// Methods selects the named methods. With no names it selects everything.
func Methods(names ...string) Policy {
	if len(names) == 0 {
		return AllMethods()
	}
	p := Policy{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		p.names[n] = struct{}{}
	}
	return p
}

// All reports whether the policy selects every method.
func (p Policy) All() bool { return p.names == nil }

// Selects reports whether name is covered by the policy.
func (p Policy) Selects(name string) bool {
	if p.names == nil {
		return true
	}
	_, ok := p.names[name]
	return ok
}

// Names returns the explicitly selected names, sorted. It is empty for AllMethods.
func (p Policy) Names() []string {
	names := make([]string, 0, len(p.names))
	for n := range p.names {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Option configures Instrument.
type Option func(*options)

type options struct {
	maxDepth  int
	logger    *slog.Logger
	onError   func(error)
	className string
}

// WithMaxDepth sets the serializer depth bound used for snapshots.
func WithMaxDepth(n int) Option {
	return func(o *options) { o.maxDepth = n }
}

// WithLogger sets the logger for setup and record failures.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithErrorHandler receives every record failure. The instrumented call has
// already produced its results when the handler runs.
func WithErrorHandler(fn func(error)) Option {
	return func(o *options) { o.onError = fn }
}

// WithClassName overrides the class name written to events.
func WithClassName(name string) Option {
	return func(o *options) { o.className = name }
}

// Class is an instrumented type. It holds the original method expressions
// of *T and, for the methods selected by the policy, wrappers with the same
// signature that record field changes of the receiver.
type Class[T any] struct {
	name       string
	serializer *Serializer
	recorder   *Recorder
	logger     *slog.Logger
	onError    func(error)

	originals map[string]reflect.Value
	wrapped   map[string]reflect.Value
}

// Instrument resolves policy against the methods declared on T and *T and
// builds their wrappers. Methods promoted from embedded fields are not
// eligible, and policy names T does not declare are ignored. A nil recorder
// writes to DefaultLogPath.
//
// Instrumenting never touches T itself: every Class wraps the original
// methods, so instrumenting twice never stacks wrappers.
func Instrument[T any](rec *Recorder, policy Policy, opts ...Option) *Class[T] {
	o := options{maxDepth: DefaultMaxDepth}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logging.NewDiscardLogger()
	}
	if rec == nil {
		rec = NewRecorder(NewFileSink(DefaultLogPath()))
	}

	pt := reflect.TypeFor[*T]()
	if o.className == "" {
		o.className = typeName(pt.Elem())
	}
	c := &Class[T]{
		name:       o.className,
		serializer: NewSerializer(o.maxDepth),
		recorder:   rec,
		logger:     o.logger.With("class", o.className),
		originals:  make(map[string]reflect.Value),
		wrapped:    make(map[string]reflect.Value),
	}
	c.onError = o.onError
	if c.onError == nil {
		c.onError = func(err error) {
			c.logger.Error("failed to record change event", "error", err)
		}
	}

	for name, m := range declaredMethods(pt) {
		c.originals[name] = m.Func
		if !policy.Selects(name) {
			continue
		}
		c.wrapped[name] = c.wrap(name, m.Func)
		c.logger.Debug("instrumented method", "method", name)
	}
	for _, name := range policy.Names() {
		if _, ok := c.originals[name]; !ok {
			c.logger.Debug("skipping method not declared on type", "method", name)
		}
	}
	return c
}

// Name returns the class name written to events.
func (c *Class[T]) Name() string { return c.name }

// Instrumented reports whether calls to name are recorded.
func (c *Class[T]) Instrumented(name string) bool {
	_, ok := c.wrapped[name]
	return ok
}

// Methods returns the instrumented method names, sorted.
func (c *Class[T]) Methods() []string {
	names := make([]string, 0, len(c.wrapped))
	for n := range c.wrapped {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Recorder returns the recorder events are written to.
func (c *Class[T]) Recorder() *Recorder { return c.recorder }

// MethodFunc returns the named method as a function of type F, which must be
// the method expression type func(*T, args...) results. For an instrumented
// method the function is the recording wrapper, otherwise the plain method.
//
//	insert, err := tracer.MethodFunc[func(*Dict, string, int)](cls, "Insert")
func MethodFunc[F any, T any](c *Class[T], name string) (F, error) {
	var zero F
	fn, ok := c.lookup(name)
	if !ok {
		return zero, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, c.name, name)
	}
	want := reflect.TypeFor[F]()
	if fn.Type() != want {
		return zero, fmt.Errorf("%w: %s.%s is %s, not %s", ErrSignatureMismatch, c.name, name, fn.Type(), want)
	}
	return fn.Interface().(F), nil
}

// MustMethodFunc is MethodFunc for package-level setup; it panics on error.
func MustMethodFunc[F any, T any](c *Class[T], name string) F {
	fn, err := MethodFunc[F](c, name)
	if err != nil {
		panic(err)
	}
	return fn
}

// Call invokes the named method on obj through the class, so instrumented
// methods are recorded. Results are returned in declaration order.
func (c *Class[T]) Call(obj *T, name string, args ...any) ([]any, error) {
	fn, ok := c.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s.%s", ErrUnknownMethod, c.name, name)
	}
	ft := fn.Type()
	params := ft.NumIn() - 1
	if ft.IsVariadic() {
		if len(args) < params-1 {
			return nil, fmt.Errorf("%w: %s.%s wants at least %d arguments, got %d", ErrBadArguments, c.name, name, params-1, len(args))
		}
	} else if len(args) != params {
		return nil, fmt.Errorf("%w: %s.%s wants %d arguments, got %d", ErrBadArguments, c.name, name, params, len(args))
	}

	in := make([]reflect.Value, 0, len(args)+1)
	in = append(in, reflect.ValueOf(obj))
	for i, a := range args {
		pt := paramType(ft, i+1)
		v, err := argValue(a, pt)
		if err != nil {
			return nil, fmt.Errorf("%w: %s.%s argument %d: %w", ErrBadArguments, c.name, name, i+1, err)
		}
		in = append(in, v)
	}

	out := fn.Call(in)
	results := make([]any, len(out))
	for i, v := range out {
		results[i] = v.Interface()
	}
	return results, nil
}

func (c *Class[T]) lookup(name string) (reflect.Value, bool) {
	if fn, ok := c.wrapped[name]; ok {
		return fn, true
	}
	fn, ok := c.originals[name]
	return fn, ok
}

// wrap builds a function of the same type as orig that snapshots the
// receiver around the call. A panic in orig propagates before the second
// snapshot, so nothing is recorded for that call.
func (c *Class[T]) wrap(name string, orig reflect.Value) reflect.Value {
	ft := orig.Type()
	return reflect.MakeFunc(ft, func(args []reflect.Value) []reflect.Value {
		recv := args[0].Interface()
		before := c.serializer.Snapshot(recv)

		var out []reflect.Value
		if ft.IsVariadic() {
			out = orig.CallSlice(args)
		} else {
			out = orig.Call(args)
		}

		after := c.serializer.Snapshot(recv)
		if changes := Diff(before, after); len(changes) > 0 {
			c.emit(name, changes)
		}
		return out
	})
}

func (c *Class[T]) emit(method string, changes ChangeSet) {
	ev := NewChangeEvent(c.name, method, changes, userStack())
	if err := c.recorder.Record(ev); err != nil {
		c.onError(err)
	}
}

// declaredMethods returns the exported methods of pt (a pointer type) that
// are declared on its element type or on pt itself.
func declaredMethods(pt reflect.Type) map[string]reflect.Method {
	vt := pt.Elem()
	promoted := promotedNames(vt)
	out := make(map[string]reflect.Method, pt.NumMethod())
	for i := 0; i < pt.NumMethod(); i++ {
		m := pt.Method(i)
		if promoted[m.Name] && !declared(pt, vt, m.Name) {
			continue
		}
		out[m.Name] = m
	}
	return out
}

// promotedNames lists the methods reachable through embedded fields of t.
func promotedNames(t reflect.Type) map[string]bool {
	if t.Kind() != reflect.Struct {
		return nil
	}
	names := make(map[string]bool)
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if !f.Anonymous {
			continue
		}
		addMethodNames(names, f.Type)
		if f.Type.Kind() != reflect.Pointer && f.Type.Kind() != reflect.Interface {
			addMethodNames(names, reflect.PointerTo(f.Type))
		}
	}
	return names
}

func addMethodNames(names map[string]bool, t reflect.Type) {
	for i := 0; i < t.NumMethod(); i++ {
		names[t.Method(i).Name] = true
	}
}

// declared tells a method written for the type apart from a promoted one
// with the same name: promotion goes through compiler-generated wrappers.
func declared(pt, vt reflect.Type, name string) bool {
	if m, ok := vt.MethodByName(name); ok && !generated(m) {
		return true
	}
	m, ok := pt.MethodByName(name)
	return ok && !generated(m)
}

func generated(m reflect.Method) bool {
	fn := runtime.FuncForPC(m.Func.Pointer())
	if fn == nil {
		return true
	}
	file, _ := fn.FileLine(fn.Entry())
	return file == "<autogenerated>"
}

func paramType(ft reflect.Type, i int) reflect.Type {
	if ft.IsVariadic() && i >= ft.NumIn()-1 {
		return ft.In(ft.NumIn() - 1).Elem()
	}
	return ft.In(i)
}

func argValue(a any, t reflect.Type) (reflect.Value, error) {
	if a == nil {
		switch t.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(t), nil
		}
		return reflect.Value{}, fmt.Errorf("nil is not a valid %s", t)
	}
	v := reflect.ValueOf(a)
	if !v.Type().AssignableTo(t) {
		return reflect.Value{}, fmt.Errorf("%s is not assignable to %s", v.Type(), t)
	}
	if v.Type() != t {
		nv := reflect.New(t).Elem()
		nv.Set(v)
		return nv, nil
	}
	return v, nil
}
