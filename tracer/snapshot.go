package tracer

import "reflect"

// FieldSet lets a type declare its observable fields explicitly. It takes
// precedence over reflection, which only sees struct fields.
type FieldSet interface {
	TraceFields() map[string]any
}

// Snapshot maps field name to serialized value at one instant.
type Snapshot map[string]any

// Snapshot captures the own fields of obj, serializing each one with a
// fresh cycle set. obj is normally a pointer to a struct; nil and
// non-struct values give an empty snapshot.
func (s *Serializer) Snapshot(obj any) Snapshot {
	snap := Snapshot{}
	if fs, ok := obj.(FieldSet); ok {
		for name, v := range traceFields(fs) {
			snap[name] = s.Serialize(v)
		}
		return snap
	}

	v := reflect.ValueOf(obj)
	for v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return snap
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return snap
	}
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		f := t.Field(i)
		if f.Name == "_" {
			continue
		}
		snap[f.Name] = s.value(v.Field(i))
	}
	return snap
}

// TakeSnapshot captures obj with DefaultMaxDepth.
func TakeSnapshot(obj any) Snapshot {
	return NewSerializer(DefaultMaxDepth).Snapshot(obj)
}

func traceFields(fs FieldSet) (fields map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			fields = nil
		}
	}()
	return fs.TraceFields()
}
