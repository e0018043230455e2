// Package tracer records field-level mutations made through selected
// methods of a type.
//
// Instrument resolves a Policy against the methods declared on a struct type
// and returns a Class holding recording wrappers. A wrapper has the exact
// signature of the method expression it wraps: it snapshots the receiver,
// runs the original method, snapshots again and, if any field changed,
// appends one ChangeEvent to the Recorder's Sink together with the call
// stack of the caller.
//
//	cls := tracer.Instrument[Dict](tracer.NewRecorder(tracer.NewFileSink(path)), tracer.Methods("Insert"))
//	insert := tracer.MustMethodFunc[func(*Dict, string, int)](cls, "Insert")
//	insert(d, "k1", 10) // one line is appended to path
//
// Calls made directly on the type (d.Insert) are not recorded; callers opt
// in by going through the Class, either with typed functions from
// MethodFunc or dynamically with Class.Call.
//
// Field values are compared in serialized form. Serialize produces a tree
// of nil, bool, int64, uint64, float64, string, []any and map[string]any; it
// is bounded in depth, marks references that lead back into their own
// ancestors as "<cycle:...>", and never panics.
//
// Reflection reads every struct field, exported or not, but only struct
// fields: types whose observable state lives elsewhere implement FieldSet.
// Types implementing Valuer or encoding.TextMarshaler are serialized as
// leaves.
package tracer
