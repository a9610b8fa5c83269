// Package coerce asserts at the call site that a value has a given shape,
// and optionally destructures it into a result in the same step.
//
//	coerce.Assert(company, `Company{States: []string{_, _, _}}`)
//	states := coerce.Coerce[[]string](company, `Company{States: s}`, `s`)
//
// Patterns, guards and results are Go expressions, see package pattern for
// the forms they may take. An unqualified type name in a pattern refers to a
// type of the calling package, a qualified one such as geo.Point to a type of
// a package named geo. A value that does not fit the pattern makes the
// call panic with a *MatchFailure. A pattern or result that is malformed, or
// a result naming something the pattern does not bind, panics with a
// *pattern.ExpansionError before the value is looked at. Use Func and
// AssertFunc to surface those at package initialization, and the coercevet
// analyzer or coercegen to reject them at build time.
package coerce

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
	"strings"
	"sync"

	"github.com/gnolang/coerce/pattern"
)

// ErrNoMatch is wrapped by every *MatchFailure.
var ErrNoMatch = pattern.ErrNoMatch

var (
	patterns sync.Map // source -> *pattern.Pattern
	results  sync.Map // resultKey -> *pattern.Expr
)

type resultKey struct {
	pattern, result string
}

func compile(src string, o *options) (*pattern.Pattern, error) {
	if o.scope != nil {
		return pattern.CompileIn(src, o.scope)
	}
	if p, ok := patterns.Load(src); ok {
		return p.(*pattern.Pattern), nil
	}
	p, err := pattern.Compile(src)
	if err != nil {
		return nil, err
	}
	actual, _ := patterns.LoadOrStore(src, p)
	return actual.(*pattern.Pattern), nil
}

func compileResult(p *pattern.Pattern, src string, o *options) (*pattern.Expr, error) {
	if o.scope != nil {
		return pattern.CompileExpr(src, p.Names(), o.scope)
	}
	key := resultKey{p.String(), src}
	if e, ok := results.Load(key); ok {
		return e.(*pattern.Expr), nil
	}
	e, err := pattern.CompileExpr(src, p.Names(), nil)
	if err != nil {
		return nil, err
	}
	actual, _ := results.LoadOrStore(key, e)
	return actual.(*pattern.Expr), nil
}

// fail turns a match error into the panic value. Must be called directly
// from the exported entry point so the caller location is right.
func fail(op, pat string, v any, err error) any {
	if errors.Is(err, ErrNoMatch) {
		return newFailure(op, pat, v, 3)
	}
	return err
}

// callerPackage returns the import path of the package whose code called
// the function that calls it, skip frames further up. Unqualified type names
// in patterns are resolved there.
func callerPackage(skip int) string {
	var pcs [1]uintptr
	if runtime.Callers(skip+2, pcs[:]) == 0 {
		return ""
	}
	frame, _ := runtime.CallersFrames(pcs[:]).Next()
	return funcPackage(frame.Function)
}

// funcPackage extracts the package path from a symbol name such as
// example.com/geo.(*Point).String or gopkg.in/yaml%2ev3.Unmarshal.
func funcPackage(fn string) string {
	if i := strings.IndexByte(fn, '['); i >= 0 {
		fn = fn[:i]
	}
	slash := strings.LastIndexByte(fn, '/')
	dot := strings.IndexByte(fn[slash+1:], '.')
	if dot < 0 {
		return ""
	}
	return strings.ReplaceAll(fn[:slash+1+dot], "%2e", ".")
}

// Assert panics unless v matches pat.
func Assert[T any](v T, pat string, opts ...Option) {
	o := newOptions(opts)
	p, err := compile(pat, o)
	if err != nil {
		panic(err)
	}
	if _, err := p.MatchIn(callerPackage(1), reflect.ValueOf(&v).Elem()); err != nil {
		panic(fail("Assert", pat, v, err))
	}
}

// Coerce matches v against pat and returns result evaluated over the
// bindings, converted to R. The result is only evaluated when the match
// succeeds.
func Coerce[R, T any](v T, pat, result string, opts ...Option) R {
	o := newOptions(opts)
	p, err := compile(pat, o)
	if err != nil {
		panic(err)
	}
	r, err := compileResult(p, result, o)
	if err != nil {
		panic(err)
	}

	b, err := p.MatchIn(callerPackage(1), reflect.ValueOf(&v).Elem())
	if err != nil {
		panic(fail("Coerce", pat, v, err))
	}
	out, err := evalAs[R](r, b)
	if err != nil {
		panic(err)
	}
	return out
}

// With matches v against pat and passes the bindings to fn.
func With[R, T any](v T, pat string, fn func(pattern.Bindings) R, opts ...Option) R {
	o := newOptions(opts)
	p, err := compile(pat, o)
	if err != nil {
		panic(err)
	}
	b, err := p.MatchIn(callerPackage(1), reflect.ValueOf(&v).Elem())
	if err != nil {
		panic(fail("With", pat, v, err))
	}
	return fn(b)
}

// Try is the non-panicking form of Assert. A mismatch is reported as a
// *MatchFailure, which wraps ErrNoMatch.
func Try[T any](v T, pat string, opts ...Option) (pattern.Bindings, error) {
	o := newOptions(opts)
	p, err := compile(pat, o)
	if err != nil {
		return pattern.Bindings{}, err
	}
	b, err := p.MatchIn(callerPackage(1), reflect.ValueOf(&v).Elem())
	if errors.Is(err, ErrNoMatch) {
		return b, newFailure("Try", pat, v, 2)
	}
	return b, err
}

// Func compiles pat and result once and returns the coercion as a function.
// It panics on a malformed pattern or result, so a package-level
//
//	var states = coerce.Func[Company, []string](`Company{States: s}`, `s`)
//
// fails at initialization. The same declaration, in a file built with the
// coercegen tag, is a directive for the code generator.
func Func[In, Out any](pat, result string, opts ...Option) func(In) Out {
	o := newOptions(opts)
	p, err := compile(pat, o)
	if err != nil {
		panic(err)
	}
	r, err := compileResult(p, result, o)
	if err != nil {
		panic(err)
	}
	home := callerPackage(1)

	return func(v In) Out {
		b, err := p.MatchIn(home, reflect.ValueOf(&v).Elem())
		if err != nil {
			panic(fail("Func", pat, v, err))
		}
		out, err := evalAs[Out](r, b)
		if err != nil {
			panic(err)
		}
		return out
	}
}

// AssertFunc is Func for assertions.
func AssertFunc[In any](pat string, opts ...Option) func(In) {
	o := newOptions(opts)
	p, err := compile(pat, o)
	if err != nil {
		panic(err)
	}
	home := callerPackage(1)

	return func(v In) {
		if _, err := p.MatchIn(home, reflect.ValueOf(&v).Elem()); err != nil {
			panic(fail("AssertFunc", pat, v, err))
		}
	}
}

func evalAs[R any](e *pattern.Expr, b pattern.Bindings) (R, error) {
	var zero R
	x, err := e.Eval(b)
	if err != nil {
		return zero, err
	}
	return convert[R](x, e.String())
}

// convert gives a result the requested type. Besides assignment it allows
// conversions between types of the same kind and between numeric types, so
// an untyped constant result like 1 can be returned as a float64.
func convert[R any](x any, src string) (R, error) {
	var zero R
	rt := reflect.TypeOf((*R)(nil)).Elem()
	if x == nil {
		switch rt.Kind() {
		case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func, reflect.Interface:
			return zero, nil
		}
		return zero, fmt.Errorf("coerce: result %s is nil, not %v", src, rt)
	}
	if r, ok := x.(R); ok {
		return r, nil
	}

	xv := reflect.ValueOf(x)
	if xv.Type().ConvertibleTo(rt) && (xv.Kind() == rt.Kind() || (numeric(xv.Kind()) && numeric(rt.Kind()))) {
		return xv.Convert(rt).Interface().(R), nil
	}
	return zero, fmt.Errorf("coerce: result %s is %T, not %v", src, x, rt)
}

func numeric(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Complex128
}
