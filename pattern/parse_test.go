package pattern

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		src   string
		want  string
		kind  NodeKind
		names []string
	}{
		{src: "_", want: "_", kind: KindWildcard},
		{src: "x", want: "x", kind: KindBinding, names: []string{"x"}},
		{src: "(x)", want: "x", kind: KindBinding, names: []string{"x"}},
		{src: "-1", want: "-1", kind: KindLiteral},
		{src: `"NY"`, want: `"NY"`, kind: KindLiteral},
		{src: "true", want: "true", kind: KindLiteral},
		{src: "nil", want: "nil", kind: KindNil},
		{src: "Company{States: states}", want: "Company{States: states}", kind: KindStruct, names: []string{"states"}},
		{src: "Point{x, y}", want: "Point{x, y}", kind: KindStruct, names: []string{"x", "y"}},
		{src: "pkg.T{A: a}", want: "pkg.T{A: a}", kind: KindStruct, names: []string{"a"}},
		{src: "_{Name: n}", want: "_{Name: n}", kind: KindStruct, names: []string{"n"}},
		{src: "&Node{Next: nil}", want: "&Node{Next: nil}", kind: KindPointer},
		{src: "*p", want: "&p", kind: KindPointer, names: []string{"p"}},
		{src: "[]int{a, _, 3}", want: "[]int{a, _, 3}", kind: KindSequence, names: []string{"a"}},
		{src: "[...]_{a}", want: "[1]_{a}", kind: KindSequence, names: []string{"a"}},
		{src: `map[string]int{"k": v}`, want: `map[string]int{"k": v}`, kind: KindMap, names: []string{"v"}},
		{src: "Some(Some(_))", want: "Some(Some(_))", kind: KindExtract},
		{src: "None()", want: "None()", kind: KindExtract},
		{src: "Rect(r)", want: "Rect(r)", kind: KindExtract, names: []string{"r"}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.src, func(t *testing.T) {
			t.Parallel()

			p, err := Compile(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Root().String())
			assert.Equal(t, tt.kind, p.Root().Kind())
			if tt.names == nil {
				assert.Empty(t, p.Names())
			} else {
				assert.Equal(t, tt.names, p.Names())
			}
			assert.Equal(t, tt.src, p.String())
		})
	}
}

func TestParseErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		src    string
		kind   ErrorKind
		offset int
	}{
		{name: "duplicate binding", src: "Point{x, x}", kind: ErrDuplicate, offset: 9},
		{name: "duplicate field", src: "Point{X: a, X: b}", kind: ErrDuplicate, offset: 12},
		{name: "alternation", src: "a || b", kind: ErrUnsupported, offset: 0},
		{name: "arithmetic", src: "x + 1", kind: ErrUnsupported, offset: 0},
		{name: "syntax", src: "Point{", kind: ErrSyntax},
		{name: "unknown extractor arity", src: "f()", kind: ErrShape, offset: 0},
		{name: "Some without pattern", src: "Some()", kind: ErrShape, offset: 0},
		{name: "None with pattern", src: "None(x)", kind: ErrShape, offset: 0},
		{name: "array length", src: "[2]int{a}", kind: ErrShape, offset: 0},
		{name: "mixed struct elements", src: "Point{X: a, b}", kind: ErrSyntax, offset: 0},
		{name: "map key not constant", src: `map[string]int{k: v}`, kind: ErrUnsupported, offset: 15},
		{name: "guard name unbound", src: "Point{X: a} && len(b) > 0", kind: ErrUnbound, offset: 19},
		{name: "untyped composite", src: "Point{X: {a}}", kind: ErrUnsupported, offset: 9},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := Compile(tt.src)
			require.Error(t, err)

			var ee *ExpansionError
			require.True(t, errors.As(err, &ee), "got %T: %v", err, err)
			assert.Equal(t, tt.kind, ee.Kind, ee.Error())
			assert.Equal(t, tt.src, ee.Source)
			if tt.kind != ErrSyntax {
				assert.Equal(t, tt.offset, ee.Offset, ee.Error())
			}
			assert.True(t, IsExpansionError(err))
		})
	}
}

func TestExpansionErrorMessage(t *testing.T) {
	t.Parallel()

	_, err := Compile("Point{x, x}")
	require.Error(t, err)
	assert.Equal(t, `pattern "Point{x, x}":10: x bound more than once`, err.Error())
}

func TestGuardSource(t *testing.T) {
	t.Parallel()

	p, err := Compile("T{A: a} && a > 1 && a < 5")
	require.NoError(t, err)

	src, off := p.GuardSource()
	assert.Equal(t, "a > 1 && a < 5", src)
	assert.Equal(t, 11, off)
	require.NotNil(t, p.Guard())
	assert.Equal(t, "a > 1 && a < 5", p.Guard().String())
	assert.Equal(t, []string{"a"}, p.Guard().Names())

	p, err = Compile("T{A: a}")
	require.NoError(t, err)
	src, off = p.GuardSource()
	assert.Empty(t, src)
	assert.Equal(t, -1, off)
	assert.Nil(t, p.Guard())
}

func TestParseKeepsGuardUnresolved(t *testing.T) {
	t.Parallel()

	p, err := Parse("T{A: a} && a > limit")
	require.NoError(t, err)
	assert.Nil(t, p.Guard())

	_, err = p.MatchValue(struct{ A int }{A: 1})
	require.Error(t, err)
	assert.True(t, IsExpansionError(err))

	p, err = CompileIn("T{A: a} && a > limit", Scope{"limit": 0})
	require.NoError(t, err)
	require.NotNil(t, p.Guard())
	assert.Equal(t, []string{"a", "limit"}, p.Guard().Names())
}

func TestMustCompilePanics(t *testing.T) {
	t.Parallel()

	assert.Panics(t, func() { MustCompile("a || b") })
	assert.NotPanics(t, func() { MustCompile("Some(x)") })
}
