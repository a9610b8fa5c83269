package pattern

import (
	"errors"
	"net/url"
	"reflect"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type Company struct {
	Name   string
	States []string
}

type Person struct {
	Name string
	Age  int
}

func (p Person) Greet() string { return "hi " + p.Name }

func (p *Person) Older() int { return p.Age + 1 }

type Point struct{ X, Y int }

type ListNode struct {
	Val  int
	Next *ListNode
}

type Shape interface{ Area() float64 }

type Rect struct{ W, H float64 }

func (r Rect) Area() float64 { return r.W * r.H }

type Box struct{ V any }

type hidden struct {
	secret int
	Public int
}

var pairCalls atomic.Int32

func init() {
	RegisterExtractor("Pair", Unapply(func(p Point) ([]any, bool) {
		pairCalls.Add(1)
		return []any{p.X, p.Y}, true
	}))
}

func TestMatch(t *testing.T) {
	t.Parallel()

	one := 1
	pone := &one
	var nilInt *int
	list := &ListNode{Val: 1, Next: &ListNode{Val: 2}}
	boom := errors.New("boom")

	tests := []struct {
		name    string
		pattern string
		value   any
		want    map[string]any
	}{
		{name: "wildcard", pattern: "_", value: 5, want: map[string]any{}},
		{name: "binding", pattern: "x", value: 5, want: map[string]any{"x": 5}},
		{name: "int literal", pattern: "5", value: 5, want: map[string]any{}},
		{name: "int literal mismatch", pattern: "6", value: 5},
		{name: "string literal", pattern: `"NY"`, value: "NY", want: map[string]any{}},
		{name: "bool literal", pattern: "true", value: true, want: map[string]any{}},
		{name: "float literal against float32", pattern: "1.0", value: float32(1), want: map[string]any{}},
		{name: "negative literal", pattern: "-3", value: int8(-3), want: map[string]any{}},
		{name: "rune literal", pattern: "'a'", value: 'a', want: map[string]any{}},
		{
			name:    "keyed struct",
			pattern: "Company{States: states}",
			value:   Company{Name: "Acme", States: []string{"NY", "NJ", "CT"}},
			want:    map[string]any{"states": []string{"NY", "NJ", "CT"}},
		},
		{
			name:    "struct of another type",
			pattern: "Company{States: states}",
			value:   Person{Name: "Ann", Age: 30},
		},
		{
			name:    "qualified type name",
			pattern: "pattern.Point{X: x}",
			value:   Point{X: 4},
			want:    map[string]any{"x": 4},
		},
		{name: "positional struct", pattern: "Point{1, y}", value: Point{1, 2}, want: map[string]any{"y": 2}},
		{name: "positional struct mismatch", pattern: "Point{1, y}", value: Point{3, 2}},
		{name: "any struct with field", pattern: "_{Name: n}", value: Person{Name: "Ann"}, want: map[string]any{"n": "Ann"}},
		{name: "any struct without field", pattern: "_{Missing: n}", value: Person{Name: "Ann"}},
		{name: "pointer", pattern: "&ListNode{Val: v, Next: nil}", value: &ListNode{Val: 7}, want: map[string]any{"v": 7}},
		{name: "nested pointer", pattern: "&ListNode{Next: &ListNode{Val: v}}", value: list, want: map[string]any{"v": 2}},
		{name: "nil pointer", pattern: "&ListNode{}", value: (*ListNode)(nil)},
		{name: "Some of Some", pattern: "Some(Some(_))", value: &pone, want: map[string]any{}},
		{name: "Some of nil", pattern: "Some(Some(_))", value: &nilInt},
		{name: "Some binds pointee", pattern: "Some(v)", value: pone, want: map[string]any{"v": 1}},
		{name: "None", pattern: "None()", value: nilInt, want: map[string]any{}},
		{name: "None of non-nil", pattern: "None()", value: pone},
		{
			name:    "slice",
			pattern: `[]string{a, "NJ", _}`,
			value:   []string{"NY", "NJ", "CT"},
			want:    map[string]any{"a": "NY"},
		},
		{name: "slice length", pattern: "[]_{a}", value: []int{1, 2}},
		{name: "slice element type", pattern: "[]string{a}", value: []int{1}},
		{name: "array", pattern: "[2]int{a, b}", value: [2]int{3, 4}, want: map[string]any{"a": 3, "b": 4}},
		{name: "array is not a slice", pattern: "[]int{a, b}", value: [2]int{3, 4}},
		{name: "map", pattern: `map[string]int{"k": v}`, value: map[string]int{"k": 7, "j": 1}, want: map[string]any{"v": 7}},
		{name: "map missing key", pattern: `map[string]int{"k": v}`, value: map[string]int{"j": 1}},
		{name: "map with any types", pattern: `map[_]_{1: v}`, value: map[int]string{1: "one"}, want: map[string]any{"v": "one"}},
		{name: "type test", pattern: "Rect(r)", value: Shape(Rect{W: 2, H: 3}), want: map[string]any{"r": Rect{W: 2, H: 3}}},
		{name: "type test mismatch", pattern: "Point(p)", value: Rect{}},
		{name: "error type test", pattern: "error(e)", value: boom, want: map[string]any{"e": boom}},
		{name: "guard holds", pattern: "Person{Age: a} && a >= 18", value: Person{Age: 20}, want: map[string]any{"a": 20}},
		{name: "guard fails", pattern: "Person{Age: a} && a >= 18", value: Person{Age: 10}},
		{name: "guard uses method", pattern: `p && p.Greet() == "hi Ann"`, value: Person{Name: "Ann"}, want: map[string]any{"p": Person{Name: "Ann"}}},
		{name: "interface field literal", pattern: "Box{V: 1}", value: Box{V: 1}, want: map[string]any{}},
		{name: "interface field other int type", pattern: "Box{V: 1}", value: Box{V: int64(1)}},
		{name: "interface field float", pattern: "Box{V: 1}", value: Box{V: 1.0}},
		{name: "interface field nil", pattern: "Box{V: nil}", value: Box{}, want: map[string]any{}},
		{name: "interface field binds nil", pattern: "Box{V: v}", value: Box{}, want: map[string]any{"v": nil}},
		{name: "extractor", pattern: "Pair(x, 2)", value: Point{1, 2}, want: map[string]any{"x": 1}},
		{name: "extractor rejects type", pattern: "Pair(x, y)", value: Rect{}},
		{name: "exported field next to unexported", pattern: "hidden{Public: p}", value: hidden{secret: 1, Public: 2}, want: map[string]any{"p": 2}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := Compile(tt.pattern)
			require.NoError(t, err)

			b, err := p.MatchValue(tt.value)
			if tt.want == nil {
				assert.ErrorIs(t, err, ErrNoMatch)
				assert.Zero(t, b.Len())
				return
			}
			require.NoError(t, err)
			got := make(map[string]any, b.Len())
			for _, name := range b.Names() {
				got[name], _ = b.Get(name)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMatchShapeErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		pattern string
		value   any
	}{
		{name: "missing field on named type", pattern: "Person{Missing: n}", value: Person{}},
		{name: "positional arity", pattern: "Point{a}", value: Point{}},
		{name: "nil against int", pattern: "nil", value: 5},
		{name: "string literal against int", pattern: `"x"`, value: 5},
		{name: "unexported binding", pattern: "hidden{secret: s}", value: hidden{secret: 1}},
		{name: "extractor arity", pattern: "Pair(a)", value: Point{}},
		{name: "guard not boolean", pattern: "Person{Age: a} && a + 1", value: Person{}},
		{name: "map key type", pattern: `map[int]string{"k": v}`, value: map[int]string{}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p, err := Compile(tt.pattern)
			require.NoError(t, err)

			_, err = p.MatchValue(tt.value)
			var ee *ExpansionError
			require.True(t, errors.As(err, &ee), "got %v", err)
			assert.Equal(t, ErrShape, ee.Kind)
			assert.NotErrorIs(t, err, ErrNoMatch)
		})
	}
}

// URL shares its name with net/url.URL.
type URL struct{ Host string }

func TestMatchTypeNames(t *testing.T) {
	t.Parallel()

	home := reflect.TypeOf(URL{}).PkgPath()
	tests := []struct {
		name    string
		pattern string
		home    string
		value   any
		match   bool
	}{
		{name: "local type", pattern: "URL{Host: h}", home: home, value: URL{Host: "a"}, match: true},
		{name: "same name elsewhere", pattern: "URL{Host: h}", home: home, value: url.URL{Host: "a"}},
		{name: "any package", pattern: "URL{Host: h}", value: url.URL{Host: "a"}, match: true},
		{name: "qualified", pattern: "url.URL{Host: h}", home: home, value: url.URL{Host: "a"}, match: true},
		{name: "qualifier differs", pattern: "url.URL{Host: h}", value: URL{Host: "a"}},
		{name: "qualified local", pattern: "pattern.URL{Host: h}", home: home, value: URL{Host: "a"}, match: true},
		{name: "element type", pattern: "[]URL{u}", home: home, value: []url.URL{{}}},
		{name: "local element type", pattern: "[]URL{u}", home: home, value: []URL{{}}, match: true},
		{name: "map value type", pattern: "map[string]*url.URL{}", home: home, value: map[string]*url.URL{}, match: true},
		{name: "local map value type", pattern: "map[string]*URL{}", home: home, value: map[string]*url.URL{}},
		{name: "predeclared", pattern: "[]int{_}", home: home, value: []int{1}, match: true},
		{name: "byte alias", pattern: "[]byte{_}", home: home, value: []byte{1}, match: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			p := MustCompile(tt.pattern)
			_, err := p.MatchIn(tt.home, reflect.ValueOf(tt.value))
			if tt.match {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrNoMatch)
			}
		})
	}
}

func TestMatchStaticInterface(t *testing.T) {
	t.Parallel()

	var s Shape = Rect{W: 1, H: 1}
	p := MustCompile("Rect{W: w}")

	b, err := p.Match(reflect.ValueOf(&s).Elem())
	require.NoError(t, err)
	assert.Equal(t, 1.0, Value[float64](b, "w"))

	var v any = int64(3)
	_, err = MustCompile("3").Match(reflect.ValueOf(&v).Elem())
	assert.ErrorIs(t, err, ErrNoMatch)

	v = 3
	_, err = MustCompile("3").Match(reflect.ValueOf(&v).Elem())
	assert.NoError(t, err)
}

func TestBindingsOnlyOnSuccess(t *testing.T) {
	t.Parallel()

	p := MustCompile("Point{a, 2}")
	b, err := p.MatchValue(Point{1, 3})
	assert.ErrorIs(t, err, ErrNoMatch)
	_, ok := b.Get("a")
	assert.False(t, ok)
	assert.Empty(t, b.Names())
}

func TestExtractorRunsOncePerVisit(t *testing.T) {
	p := MustCompile("Pair(x, y)")

	before := pairCalls.Load()
	_, err := p.MatchValue(Point{1, 2})
	require.NoError(t, err)
	assert.Equal(t, int32(1), pairCalls.Load()-before)
}

func TestValue(t *testing.T) {
	t.Parallel()

	b, err := MustCompile("Company{Name: n, States: s}").MatchValue(Company{Name: "Acme"})
	require.NoError(t, err)

	assert.Equal(t, "Acme", Value[string](b, "n"))
	assert.Nil(t, Value[[]string](b, "s"))
	assert.Equal(t, []string{"n", "s"}, b.Names())

	assert.Panics(t, func() { Value[int](b, "n") })
	assert.Panics(t, func() { Value[string](b, "missing") })
}

func TestRegisterExtractorTwice(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { RegisterExtractor("Some", someExtractor) })
	assert.Panics(t, func() { RegisterExtractor("", someExtractor) })
}

func TestMatches(t *testing.T) {
	t.Parallel()

	p := MustCompile("Person{Age: 30}")
	assert.True(t, p.Matches(Person{Age: 30}))
	assert.False(t, p.Matches(Person{Age: 31}))
	assert.False(t, MustCompile("Person{Missing: 1}").Matches(Person{}))
}
