package coerce

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/davecgh/go-spew/spew"
)

var dumper = spew.ConfigState{
	Indent:                  "  ",
	DisablePointerAddresses: true,
	DisableCapacities:       true,
	SortKeys:                true,
	MaxDepth:                8,
}

// MatchFailure is the panic value of a failed assertion or coercion.
type MatchFailure struct {
	Op       string // Assert, Coerce, ... or the name of a generated function
	Pattern  string
	Location string // file:line of the call, when known
	Value    any
}

func (f *MatchFailure) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s: value did not match pattern %q", f.Op, f.Pattern)
	if f.Location != "" {
		sb.WriteString(" at ")
		sb.WriteString(f.Location)
	}
	sb.WriteString("\nvalue: ")
	sb.WriteString(strings.TrimRight(dumper.Sdump(f.Value), "\n"))
	return sb.String()
}

func (f *MatchFailure) Unwrap() error { return ErrNoMatch }

func newFailure(op, pat string, v any, skip int) *MatchFailure {
	f := &MatchFailure{Op: op, Pattern: pat, Value: v}
	if _, file, line, ok := runtime.Caller(skip); ok {
		f.Location = fmt.Sprintf("%s:%d", file, line)
	}
	return f
}

// Mismatch builds the failure for generated code, attributed to the caller
// of the generated function.
func Mismatch(op, pat string, v any) *MatchFailure {
	return newFailure(op, pat, v, 3)
}
