package pattern

import (
	"fmt"
	"reflect"
)

// Bindings holds the values captured by a successful match.
type Bindings struct {
	names  []string
	values map[string]any
}

// Get returns the value bound to name.
func (b Bindings) Get(name string) (any, bool) {
	v, ok := b.values[name]
	return v, ok
}

// Names returns the bound names in pattern order.
func (b Bindings) Names() []string {
	out := make([]string, len(b.names))
	copy(out, b.names)
	return out
}

// Len returns the number of bound names.
func (b Bindings) Len() int { return len(b.names) }

// Value returns the value bound to name as a T. It panics if the name is not
// bound or the value is not a T; a nil value yields the zero T.
func Value[T any](b Bindings, name string) T {
	var zero T
	v, ok := b.values[name]
	if !ok {
		panic(newError(ErrUnbound, name, -1, "%s is not bound", name))
	}
	if v == nil {
		return zero
	}
	t, ok := v.(T)
	if !ok {
		panic(fmt.Sprintf("pattern: %s is %T, not %v", name, v, reflect.TypeOf((*T)(nil)).Elem()))
	}
	return t
}
