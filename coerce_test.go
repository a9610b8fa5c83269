package coerce_test

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gnolang/coerce"
	"github.com/gnolang/coerce/pattern"
)

type Company struct {
	Name   string
	States []string
}

type Person struct {
	Name string
	Age  int
}

type Point struct{ X, Y int }

type URL struct{ Host string }

func recoverPanic(fn func()) (r any) {
	defer func() { r = recover() }()
	fn()
	return nil
}

func acme() Company {
	return Company{Name: "Acme", States: []string{"NY", "NJ", "CT"}}
}

func TestAssertMatches(t *testing.T) {
	t.Parallel()

	one := 1
	ptr := &one

	tests := []struct {
		name    string
		pattern string
		run     func(pat string)
	}{
		{name: "Some(Some(_))", pattern: "Some(Some(_))", run: func(pat string) { coerce.Assert(&ptr, pat) }},
		{name: "struct", pattern: `Company{Name: "Acme"}`, run: func(pat string) { coerce.Assert(acme(), pat) }},
		{name: "slice", pattern: `[]string{"NY", _, _}`, run: func(pat string) { coerce.Assert(acme().States, pat) }},
		{name: "guard", pattern: "Person{Age: a} && a >= 18", run: func(pat string) { coerce.Assert(Person{Age: 18}, pat) }},
		{name: "interface value", pattern: "1", run: func(pat string) { coerce.Assert[any](1, pat) }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.NotPanics(t, func() { tt.run(tt.pattern) })
		})
	}
}

func TestAssertMismatch(t *testing.T) {
	t.Parallel()

	var nilInt *int
	tests := []struct {
		name string
		run  func()
	}{
		{name: "nil pointee", run: func() { coerce.Assert(&nilInt, "Some(Some(_))") }},
		{name: "other struct", run: func() { coerce.Assert(Person{Name: "Ann"}, "Company{States: s}") }},
		{name: "guard false", run: func() { coerce.Assert(Person{Age: 17}, "Person{Age: a} && a >= 18") }},
		{name: "interface int64", run: func() { coerce.Assert[any](int64(1), "1") }},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := recoverPanic(tt.run)
			require.NotNil(t, r)
			f, ok := r.(*coerce.MatchFailure)
			require.True(t, ok, "panicked with %T: %v", r, r)
			assert.Equal(t, "Assert", f.Op)
			assert.ErrorIs(t, f, coerce.ErrNoMatch)
		})
	}
}

func TestCoerce(t *testing.T) {
	t.Parallel()

	c := acme()
	states := coerce.Coerce[[]string](c, "Company{States: states}", "states")
	assert.Equal(t, []string{"NY", "NJ", "CT"}, states)
	assert.Equal(t, c.States, states)

	first := coerce.Coerce[string](c, "Company{States: []string{s, _, _}}", "s")
	assert.Equal(t, "NY", first)

	sum := coerce.Coerce[int](Point{3, 4}, "Point{x, y}", "x + y")
	assert.Equal(t, 7, sum)

	f := coerce.Coerce[float64](Point{3, 4}, "Point{x, _}", "x")
	assert.Equal(t, 3.0, f)

	var nothing *Person = coerce.Coerce[*Person](Point{}, "_", "nil")
	assert.Nil(t, nothing)
}

func TestCoerceMismatch(t *testing.T) {
	t.Parallel()

	r := recoverPanic(func() {
		coerce.Coerce[[]string](Person{Name: "Ann"}, "Company{States: states}", "states")
	})
	f, ok := r.(*coerce.MatchFailure)
	require.True(t, ok, "panicked with %T: %v", r, r)
	assert.Equal(t, "Coerce", f.Op)
	assert.Equal(t, "Company{States: states}", f.Pattern)
	assert.Equal(t, Person{Name: "Ann"}, f.Value)
	assert.Contains(t, f.Location, "coerce_test.go:")
}

func TestResultOnlyEvaluatedOnSuccess(t *testing.T) {
	t.Parallel()

	calls := 0
	scope := map[string]any{
		"track": func(s []string) int {
			calls++
			return len(s)
		},
	}

	r := recoverPanic(func() {
		coerce.Coerce[int](Person{}, "Company{States: s}", "track(s)", coerce.WithScope(scope))
	})
	require.IsType(t, &coerce.MatchFailure{}, r)
	assert.Equal(t, 0, calls)

	n := coerce.Coerce[int](acme(), "Company{States: s}", "track(s)", coerce.WithScope(scope))
	assert.Equal(t, 3, n)
	assert.Equal(t, 1, calls)
}

func TestSingleEvaluation(t *testing.T) {
	t.Parallel()

	calls := 0
	next := func() Company {
		calls++
		return acme()
	}

	got := coerce.Coerce[int](next(), "Company{States: s} && len(s) == 3", "len(s)")
	assert.Equal(t, 3, got)
	assert.Equal(t, 1, calls)

	coerce.Assert(next(), `Company{Name: n, States: []string{n2, _, _}} && n != n2`)
	assert.Equal(t, 2, calls)
}

func TestExpansionErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		kind pattern.ErrorKind
		run  func()
	}{
		{
			name: "unbound result",
			kind: pattern.ErrUnbound,
			run:  func() { coerce.Coerce[int](Point{}, "Point{x, _}", "y") },
		},
		{
			// the value would not match either; the expansion error wins
			name: "unbound result on mismatching value",
			kind: pattern.ErrUnbound,
			run:  func() { coerce.Coerce[int](Person{}, "Point{x, _}", "y") },
		},
		{
			name: "alternation",
			kind: pattern.ErrUnsupported,
			run:  func() { coerce.Assert(1, "1 || 2") },
		},
		{
			name: "duplicate binding",
			kind: pattern.ErrDuplicate,
			run:  func() { coerce.Assert(Point{}, "Point{x, x}") },
		},
		{
			name: "Func construction",
			kind: pattern.ErrUnbound,
			run:  func() { coerce.Func[Point, int]("Point{x, _}", "y") },
		},
		{
			name: "AssertFunc construction",
			kind: pattern.ErrSyntax,
			run:  func() { coerce.AssertFunc[Point]("Point{") },
		},
		{
			name: "guard unbound",
			kind: pattern.ErrUnbound,
			run:  func() { coerce.Assert(Point{}, "Point{x, _} && x > limit") },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			r := recoverPanic(tt.run)
			ee, ok := r.(*pattern.ExpansionError)
			require.True(t, ok, "panicked with %T: %v", r, r)
			assert.Equal(t, tt.kind, ee.Kind)
		})
	}
}

func TestWith(t *testing.T) {
	t.Parallel()

	got := coerce.With(acme(), "Company{Name: n, States: s}", func(b pattern.Bindings) string {
		return pattern.Value[string](b, "n") + ":" + pattern.Value[[]string](b, "s")[0]
	})
	assert.Equal(t, "Acme:NY", got)

	r := recoverPanic(func() {
		coerce.With(Person{}, "Company{}", func(pattern.Bindings) int { return 0 })
	})
	assert.IsType(t, &coerce.MatchFailure{}, r)
}

func TestFunc(t *testing.T) {
	t.Parallel()

	states := coerce.Func[Company, []string]("Company{States: s}", "s")
	assert.Equal(t, []string{"NY", "NJ", "CT"}, states(acme()))

	r := recoverPanic(func() { states(Company{States: nil}) })
	assert.Nil(t, r)

	nonEmpty := coerce.AssertFunc[Company]("Company{States: s} && len(s) > 0")
	assert.NotPanics(t, func() { nonEmpty(acme()) })

	r = recoverPanic(func() { nonEmpty(Company{}) })
	f, ok := r.(*coerce.MatchFailure)
	require.True(t, ok)
	assert.Equal(t, "AssertFunc", f.Op)
}

func TestTry(t *testing.T) {
	t.Parallel()

	b, err := coerce.Try(acme(), "Company{Name: n}")
	require.NoError(t, err)
	assert.Equal(t, "Acme", pattern.Value[string](b, "n"))

	_, err = coerce.Try(Person{}, "Company{Name: n}")
	require.Error(t, err)
	assert.ErrorIs(t, err, coerce.ErrNoMatch)

	var f *coerce.MatchFailure
	require.True(t, errors.As(err, &f))
	assert.Equal(t, "Try", f.Op)
	assert.Contains(t, f.Location, "coerce_test.go:")

	_, err = coerce.Try(Person{}, "Company{")
	assert.True(t, pattern.IsExpansionError(err))
}

func TestWithScope(t *testing.T) {
	t.Parallel()

	scope := map[string]any{"min": 2, "suffix": "!"}
	got := coerce.Coerce[string](acme(), "Company{States: s} && len(s) >= min", "s[0] + suffix", coerce.WithScope(scope))
	assert.Equal(t, "NY!", got)

	r := recoverPanic(func() {
		coerce.Assert(Company{States: []string{"NY"}}, "Company{States: s} && len(s) >= min", coerce.WithScope(scope))
	})
	assert.IsType(t, &coerce.MatchFailure{}, r)
}

func TestResultConversion(t *testing.T) {
	t.Parallel()

	r := recoverPanic(func() { coerce.Coerce[string](Point{1, 2}, "Point{x, _}", "x") })
	err, ok := r.(error)
	require.True(t, ok, "panicked with %T", r)
	assert.Contains(t, err.Error(), "is int, not string")

	assert.Equal(t, int64(1), coerce.Coerce[int64](Point{1, 2}, "Point{x, _}", "x"))
	assert.Equal(t, any(1), coerce.Coerce[any](Point{1, 2}, "Point{x, _}", "x"))
}

func TestMatchFailureMessage(t *testing.T) {
	t.Parallel()

	r := recoverPanic(func() { coerce.Assert(Person{Name: "Ann", Age: 7}, "Company{}") })
	f, ok := r.(*coerce.MatchFailure)
	require.True(t, ok)

	msg := f.Error()
	assert.Contains(t, msg, `Assert: value did not match pattern "Company{}" at `)
	assert.Contains(t, msg, "coerce_test.go:")
	assert.Contains(t, msg, "coerce_test.Person")
	assert.Contains(t, msg, `"Ann"`)
}

func TestMismatch(t *testing.T) {
	t.Parallel()

	generated := func(v Point) int {
		if v.X == 1 {
			return v.Y
		}
		panic(coerce.Mismatch("firstY", "Point{1, y}", v))
	}

	r := recoverPanic(func() { generated(Point{2, 2}) })
	f, ok := r.(*coerce.MatchFailure)
	require.True(t, ok)
	assert.Equal(t, "firstY", f.Op)
	assert.Equal(t, Point{2, 2}, f.Value)
	assert.Contains(t, f.Location, "coerce_test.go:")
}

func TestTypeNamesResolveInCaller(t *testing.T) {
	t.Parallel()

	foreign := url.URL{Host: "example.com"}
	local := URL{Host: "example.com"}

	r := recoverPanic(func() { coerce.Assert[any](foreign, "URL{Host: _}") })
	require.IsType(t, &coerce.MatchFailure{}, r)
	assert.NotPanics(t, func() { coerce.Assert[any](foreign, "url.URL{Host: _}") })
	assert.NotPanics(t, func() { coerce.Assert[any](local, "URL{Host: _}") })

	r = recoverPanic(func() { coerce.Assert[any](local, "url.URL{Host: _}") })
	require.IsType(t, &coerce.MatchFailure{}, r)

	_, err := coerce.Try[any](foreign, "URL{}")
	assert.ErrorIs(t, err, coerce.ErrNoMatch)

	host := coerce.Func[any, string]("URL{Host: h}", "h")
	assert.Equal(t, "example.com", host(local))
	r = recoverPanic(func() { host(foreign) })
	require.IsType(t, &coerce.MatchFailure{}, r)
}
