// Package fields holds the form field registry of a flow.
//
// A Registry is immutable: every operation returns a new Registry and leaves
// the receiver untouched, so a snapshot taken before an event is never
// affected by it. Names keep the order in which they were first added.
package fields

import (
	"errors"

	"github.com/im-adarsh/go-authflow/identity"
)

// ErrNameRequired is returned by Add when the field name is empty.
var ErrNameRequired = errors.New("fields: field name is required")

// Field is one registry entry.
type Field struct {
	Name  string
	Value string
	Error *identity.ErrorDetail
}

// Registry is an ordered mapping of field name to Field.
// The zero value is an empty registry ready to use.
type Registry struct {
	order  []string
	byName map[string]Field
}

// New returns an empty registry.
func New() Registry {
	return Registry{}
}

func (r Registry) clone() Registry {
	out := Registry{
		order:  make([]string, len(r.order), len(r.order)+1),
		byName: make(map[string]Field, len(r.byName)+1),
	}
	copy(out.order, r.order)
	for k, v := range r.byName {
		out.byName[k] = v
	}
	return out
}

// Add inserts name with value, or overwrites an existing entry in place.
// An overwrite clears the entry's error.
func (r Registry) Add(name, value string) (Registry, error) {
	if name == "" {
		return r, ErrNameRequired
	}
	out := r.clone()
	if _, ok := out.byName[name]; !ok {
		out.order = append(out.order, name)
	}
	out.byName[name] = Field{Name: name, Value: value}
	return out, nil
}

// Update overwrites the value of an existing entry and keeps its error.
// It is a no-op when name is absent.
func (r Registry) Update(name, value string) Registry {
	f, ok := r.byName[name]
	if !ok {
		return r
	}
	out := r.clone()
	f.Value = value
	out.byName[name] = f
	return out
}

// Remove deletes name. It is a no-op when name is absent.
func (r Registry) Remove(name string) Registry {
	if _, ok := r.byName[name]; !ok {
		return r
	}
	out := r.clone()
	delete(out.byName, name)
	for i, n := range out.order {
		if n == name {
			out.order = append(out.order[:i], out.order[i+1:]...)
			break
		}
	}
	return out
}

// SetError attaches err to an existing entry without touching its value.
// A nil err clears the error. It is a no-op when name is absent.
func (r Registry) SetError(name string, err *identity.ErrorDetail) Registry {
	f, ok := r.byName[name]
	if !ok {
		return r
	}
	out := r.clone()
	if err != nil {
		e := *err
		f.Error = &e
	} else {
		f.Error = nil
	}
	out.byName[name] = f
	return out
}

// Clear returns an empty registry.
func (r Registry) Clear() Registry {
	return Registry{}
}

// Get returns the entry for name.
func (r Registry) Get(name string) (Field, bool) {
	f, ok := r.byName[name]
	return f, ok
}

// Has reports whether name is present.
func (r Registry) Has(name string) bool {
	_, ok := r.byName[name]
	return ok
}

// Value returns the value of name, or "" when absent.
func (r Registry) Value(name string) string {
	return r.byName[name].Value
}

// Len returns the number of entries.
func (r Registry) Len() int {
	return len(r.order)
}

// Names returns the field names in insertion order.
func (r Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// All returns the entries in insertion order.
func (r Registry) All() []Field {
	out := make([]Field, 0, len(r.order))
	for _, n := range r.order {
		out = append(out, r.byName[n])
	}
	return out
}

// Values returns name → value for every entry.
func (r Registry) Values() map[string]string {
	out := make(map[string]string, len(r.byName))
	for n, f := range r.byName {
		out[n] = f.Value
	}
	return out
}

// Errors returns name → error for entries that carry one.
func (r Registry) Errors() map[string]identity.ErrorDetail {
	out := make(map[string]identity.ErrorDetail)
	for n, f := range r.byName {
		if f.Error != nil {
			out[n] = *f.Error
		}
	}
	return out
}
