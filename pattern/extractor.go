package pattern

import (
	"fmt"
	"reflect"
	"sync"
)

// Extractor decomposes a value into the parts matched by the argument
// patterns of a call-shaped pattern. It reports false when the value does not
// have the expected shape. An interface value is unwrapped before the
// extractor sees it; a nil interface arrives as the zero reflect.Value.
type Extractor func(v reflect.Value) ([]reflect.Value, bool)

var (
	extractorsMu sync.RWMutex
	extractors   = map[string]Extractor{}
)

func init() {
	RegisterExtractor("Some", someExtractor)
	RegisterExtractor("None", noneExtractor)
}

// RegisterExtractor makes fn available to patterns as name(p, ...). Patterns
// resolve extractors when they are compiled, so registration belongs in an
// init function. It panics if name is empty or already registered.
func RegisterExtractor(name string, fn Extractor) {
	if name == "" || fn == nil {
		panic("pattern: RegisterExtractor needs a name and a function")
	}
	extractorsMu.Lock()
	defer extractorsMu.Unlock()
	if _, dup := extractors[name]; dup {
		panic(fmt.Sprintf("pattern: extractor %s registered twice", name))
	}
	extractors[name] = fn
}

func lookupExtractor(name string) Extractor {
	extractorsMu.RLock()
	defer extractorsMu.RUnlock()
	return extractors[name]
}

// Unapply adapts a typed decomposition function into an Extractor. Values
// that are not assignable to T do not match.
func Unapply[T any](fn func(T) ([]any, bool)) Extractor {
	target := reflect.TypeOf((*T)(nil)).Elem()
	return func(v reflect.Value) ([]reflect.Value, bool) {
		if !v.IsValid() || !v.CanInterface() || !v.Type().AssignableTo(target) {
			return nil, false
		}
		parts, ok := fn(v.Interface().(T))
		if !ok {
			return nil, false
		}
		out := make([]reflect.Value, len(parts))
		for i, p := range parts {
			out[i] = reflect.ValueOf(p)
		}
		return out, true
	}
}

func someExtractor(v reflect.Value) ([]reflect.Value, bool) {
	if !v.IsValid() || v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, false
	}
	return []reflect.Value{v.Elem()}, true
}

func noneExtractor(v reflect.Value) ([]reflect.Value, bool) {
	if !v.IsValid() {
		return nil, true
	}
	return nil, v.Kind() == reflect.Pointer && v.IsNil()
}
