package coerce

import "github.com/gnolang/coerce/pattern"

// Option configures a single assertion or coercion.
type Option func(*options)

type options struct {
	scope pattern.Scope
}

func newOptions(opts []Option) *options {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// WithScope makes the given names available to guards and results, next to
// the names bound by the pattern. Patterns compiled with a scope are not
// cached.
func WithScope(scope map[string]any) Option {
	return func(o *options) {
		o.scope = pattern.Scope(scope)
	}
}
