package pattern

import (
	"errors"
	"fmt"
	"go/scanner"
)

// ErrNoMatch is returned by Match when the value does not have the shape
// described by the pattern, or when the guard evaluates to false.
var ErrNoMatch = errors.New("pattern: value does not match")

// ErrorKind classifies expansion errors.
type ErrorKind int

const (
	ErrSyntax      ErrorKind = iota + 1 // source is not a valid Go expression
	ErrUnbound                          // name is neither bound nor in scope
	ErrDuplicate                        // binding or field listed twice
	ErrUnsupported                      // valid Go, but not a pattern form
	ErrShape                            // pattern can never fit the value's type
)

func (k ErrorKind) String() string {
	switch k {
	case ErrSyntax:
		return "syntax"
	case ErrUnbound:
		return "unbound"
	case ErrDuplicate:
		return "duplicate"
	case ErrUnsupported:
		return "unsupported"
	case ErrShape:
		return "shape"
	default:
		return "unknown"
	}
}

// ExpansionError reports a malformed pattern, guard or result expression.
// It is never produced for a value that merely fails to match.
type ExpansionError struct {
	Kind   ErrorKind
	Source string // pattern or expression source
	Offset int    // byte offset into Source, or -1
	Msg    string
}

func (e *ExpansionError) Error() string {
	if e.Offset >= 0 {
		return fmt.Sprintf("pattern %q:%d: %s", e.Source, e.Offset+1, e.Msg)
	}
	return fmt.Sprintf("pattern %q: %s", e.Source, e.Msg)
}

func newError(kind ErrorKind, src string, offset int, format string, args ...any) *ExpansionError {
	return &ExpansionError{
		Kind:   kind,
		Source: src,
		Offset: offset,
		Msg:    fmt.Sprintf(format, args...),
	}
}

// syntaxError converts a go/parser error into an ExpansionError.
func syntaxError(src string, err error) *ExpansionError {
	var list scanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return newError(ErrSyntax, src, list[0].Pos.Offset, "%s", list[0].Msg)
	}
	return newError(ErrSyntax, src, -1, "%v", err)
}

// IsExpansionError reports whether err is, or wraps, an *ExpansionError.
func IsExpansionError(err error) bool {
	var e *ExpansionError
	return errors.As(err, &e)
}

// EvalError reports a fault while evaluating a guard or result over the
// matched values, such as an index out of range or a nil dereference.
type EvalError struct {
	Source string
	Offset int
	Msg    string
}

func (e *EvalError) Error() string {
	return fmt.Sprintf("eval %q:%d: %s", e.Source, e.Offset+1, e.Msg)
}
