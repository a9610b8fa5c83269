package pattern

import (
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"go/types"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"sync"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// Match tests v against the pattern. It returns ErrNoMatch when the value
// does not fit, and an *ExpansionError when the pattern can never fit the
// value's type. Bindings are only returned on success.
//
// v is read as given: an interface-typed value (see reflect.ValueOf(&x).Elem())
// keeps its static type so that literals compare the way == does.
//
// A qualified type name such as geo.Point only matches a type of a package
// named geo. An unqualified one matches a type of that name declared in any
// package; use MatchIn to resolve it in a single package.
func (p *Pattern) Match(v reflect.Value) (Bindings, error) {
	return p.MatchIn("", v)
}

// MatchIn is Match with unqualified type names resolved in the package with
// import path pkgPath, as they would be in its source. Predeclared types
// match from anywhere.
func (p *Pattern) MatchIn(pkgPath string, v reflect.Value) (Bindings, error) {
	if p.guardAST != nil && p.guard == nil {
		return Bindings{}, newError(ErrUnsupported, p.src, p.guardStart, "guard was not compiled, use Compile")
	}

	m := &matcher{src: p.src, home: pkgPath, values: make(map[string]any, len(p.names))}
	if err := m.match(p.root, v); err != nil {
		return Bindings{}, err
	}
	b := Bindings{names: p.names, values: m.values}

	if p.guard != nil {
		ok, err := p.guard.evalBool(b)
		if err != nil {
			return Bindings{}, err
		}
		if !ok {
			return Bindings{}, ErrNoMatch
		}
	}
	return b, nil
}

// MatchValue is Match for a value held in an interface.
func (p *Pattern) MatchValue(v any) (Bindings, error) {
	return p.Match(reflect.ValueOf(v))
}

// Matches reports whether v matches, treating expansion errors as a mismatch.
func (p *Pattern) Matches(v any) bool {
	_, err := p.MatchValue(v)
	return err == nil
}

type matcher struct {
	src    string
	home   string // package of unqualified type names, any when empty
	values map[string]any
}

func (m *matcher) shape(n Node, format string, args ...any) error {
	return newError(ErrShape, m.src, n.Offset(), format, args...)
}

// dynamic unwraps an interface to the value it holds. A nil interface
// becomes the zero Value.
func dynamic(v reflect.Value) reflect.Value {
	if v.IsValid() && v.Kind() == reflect.Interface {
		if v.IsNil() {
			return reflect.Value{}
		}
		return v.Elem()
	}
	return v
}

func nilable(k reflect.Kind) bool {
	switch k {
	case reflect.Pointer, reflect.Slice, reflect.Map, reflect.Chan,
		reflect.Func, reflect.Interface, reflect.UnsafePointer:
		return true
	}
	return false
}

func isNil(v reflect.Value) bool {
	if !v.IsValid() {
		return true
	}
	return nilable(v.Kind()) && v.IsNil()
}

func (m *matcher) match(n Node, v reflect.Value) error {
	switch n := n.(type) {
	case *Wildcard:
		return nil

	case *Binding:
		if !v.IsValid() {
			m.values[n.Name] = nil
			return nil
		}
		if !v.CanInterface() {
			return m.shape(n, "cannot bind %s: value of unexported field", n.Name)
		}
		m.values[n.Name] = v.Interface()
		return nil

	case *Literal:
		return m.literal(n, v)

	case *Nil:
		if v.IsValid() && !nilable(v.Kind()) {
			return m.shape(n, "nil can never match a value of type %s", v.Type())
		}
		if isNil(v) {
			return nil
		}
		return ErrNoMatch

	case *Struct:
		return m.structure(n, v)

	case *Pointer:
		u := dynamic(v)
		if !u.IsValid() || u.Kind() != reflect.Pointer || u.IsNil() {
			return ErrNoMatch
		}
		return m.match(n.Elem, u.Elem())

	case *Sequence:
		u := dynamic(v)
		want := reflect.Slice
		if n.Array {
			want = reflect.Array
		}
		if !u.IsValid() || u.Kind() != want {
			return ErrNoMatch
		}
		if n.Elem != "" && !m.typeMatches(u.Type().Elem(), n.Elem) {
			return ErrNoMatch
		}
		if u.Len() != len(n.Elems) {
			return ErrNoMatch
		}
		for i, elem := range n.Elems {
			if err := m.match(elem, u.Index(i)); err != nil {
				return err
			}
		}
		return nil

	case *Map:
		return m.mapping(n, v)

	case *Extract:
		return m.extract(n, v)
	}
	return m.shape(n, "unknown pattern node %T", n)
}

func (m *matcher) structure(n *Struct, v reflect.Value) error {
	u := dynamic(v)
	if !u.IsValid() || u.Kind() != reflect.Struct {
		return ErrNoMatch
	}
	if n.Type != "" && !m.typeMatches(u.Type(), n.Type) {
		return ErrNoMatch
	}

	if n.Positional {
		if len(n.Fields) != u.NumField() {
			if n.Type == "" {
				return ErrNoMatch
			}
			return m.shape(n, "%s has %d fields, pattern lists %d", u.Type(), u.NumField(), len(n.Fields))
		}
		for i, f := range n.Fields {
			if err := m.match(f.Pattern, u.Field(i)); err != nil {
				return err
			}
		}
		return nil
	}

	for _, f := range n.Fields {
		sf, ok := u.Type().FieldByName(f.Name)
		if !ok {
			if n.Type == "" {
				return ErrNoMatch
			}
			return m.shape(f.Pattern, "%s has no field %s", u.Type(), f.Name)
		}
		fv, err := u.FieldByIndexErr(sf.Index)
		if err != nil {
			// promoted through a nil embedded pointer
			return ErrNoMatch
		}
		if err := m.match(f.Pattern, fv); err != nil {
			return err
		}
	}
	return nil
}

func (m *matcher) mapping(n *Map, v reflect.Value) error {
	u := dynamic(v)
	if !u.IsValid() || u.Kind() != reflect.Map {
		return ErrNoMatch
	}
	t := u.Type()
	if n.Key != "" && !m.typeMatches(t.Key(), n.Key) {
		return ErrNoMatch
	}
	if n.Value != "" && !m.typeMatches(t.Elem(), n.Value) {
		return ErrNoMatch
	}
	for _, e := range n.Entries {
		key, ok := constValue(e.Key.Value, t.Key())
		if !ok {
			return m.shape(e.Key, "key %s cannot be used with %s", e.Key.Text, t)
		}
		mv := u.MapIndex(key)
		if !mv.IsValid() {
			return ErrNoMatch
		}
		if err := m.match(e.Value, mv); err != nil {
			return err
		}
	}
	return nil
}

func (m *matcher) extract(n *Extract, v reflect.Value) error {
	u := dynamic(v)

	if fn := lookupExtractor(n.Name); fn != nil {
		parts, ok := fn(u)
		if !ok {
			return ErrNoMatch
		}
		if len(parts) != len(n.Args) {
			return m.shape(n, "%s produced %d values, pattern lists %d", n.Name, len(parts), len(n.Args))
		}
		for i, arg := range n.Args {
			if err := m.match(arg, parts[i]); err != nil {
				return err
			}
		}
		return nil
	}

	if !u.IsValid() || !m.typeMatches(u.Type(), n.Name) {
		return ErrNoMatch
	}
	return m.match(n.Args[0], u)
}

func (m *matcher) literal(n *Literal, v reflect.Value) error {
	if !v.IsValid() {
		return ErrNoMatch
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return ErrNoMatch
		}
		d := v.Elem()
		if d.Type() != defaultType(n.Value, n.Tok) {
			return ErrNoMatch
		}
		v = d
	}

	eq, ok := equalConst(v, n.Value)
	if !ok {
		return m.shape(n, "%s can never equal a value of type %s", n.Text, v.Type())
	}
	if !eq {
		return ErrNoMatch
	}
	return nil
}

// defaultType is the type an untyped constant takes when stored in an
// interface.
func defaultType(c constant.Value, tok token.Token) reflect.Type {
	switch c.Kind() {
	case constant.Bool:
		return reflect.TypeOf(false)
	case constant.String:
		return reflect.TypeOf("")
	case constant.Int:
		if tok == token.CHAR {
			return reflect.TypeOf(rune(0))
		}
		return reflect.TypeOf(0)
	case constant.Float:
		return reflect.TypeOf(0.0)
	case constant.Complex:
		return reflect.TypeOf(complex128(0))
	}
	return nil
}

// equalConst compares a concrete value with a constant. ok is false when
// the two can never be compared.
func equalConst(v reflect.Value, c constant.Value) (eq, ok bool) {
	switch v.Kind() {
	case reflect.Bool:
		if c.Kind() != constant.Bool {
			return false, false
		}
		return v.Bool() == constant.BoolVal(c), true

	case reflect.String:
		if c.Kind() != constant.String {
			return false, false
		}
		return v.String() == constant.StringVal(c), true

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i := constant.ToInt(c)
		if i.Kind() != constant.Int {
			return false, false
		}
		return constant.Compare(constant.MakeInt64(v.Int()), token.EQL, i), true

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		i := constant.ToInt(c)
		if i.Kind() != constant.Int {
			return false, false
		}
		return constant.Compare(constant.MakeUint64(v.Uint()), token.EQL, i), true

	case reflect.Float32, reflect.Float64:
		f := constant.ToFloat(c)
		if f.Kind() != constant.Float && f.Kind() != constant.Int {
			return false, false
		}
		fv, _ := constant.Float64Val(f)
		if v.Kind() == reflect.Float32 {
			return float32(v.Float()) == float32(fv), true
		}
		return v.Float() == fv, true

	case reflect.Complex64, reflect.Complex128:
		z := constant.ToComplex(c)
		if z.Kind() != constant.Complex && z.Kind() != constant.Float && z.Kind() != constant.Int {
			return false, false
		}
		re, _ := constant.Float64Val(constant.Real(z))
		im, _ := constant.Float64Val(constant.Imag(z))
		return v.Complex() == complex(re, im), true
	}
	return false, false
}

// constValue converts a constant to a value of type t, following the rules
// of assignment.
func constValue(c constant.Value, t reflect.Type) (reflect.Value, bool) {
	if t.Kind() == reflect.Interface {
		d := defaultValue(c, token.ILLEGAL)
		if !d.IsValid() || !d.Type().Implements(t) {
			return reflect.Value{}, false
		}
		return d, true
	}

	out := reflect.New(t).Elem()
	switch t.Kind() {
	case reflect.Bool:
		if c.Kind() != constant.Bool {
			return reflect.Value{}, false
		}
		out.SetBool(constant.BoolVal(c))
	case reflect.String:
		if c.Kind() != constant.String {
			return reflect.Value{}, false
		}
		out.SetString(constant.StringVal(c))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		i, exact := constant.Int64Val(constant.ToInt(c))
		if !exact || out.OverflowInt(i) {
			return reflect.Value{}, false
		}
		out.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u, exact := constant.Uint64Val(constant.ToInt(c))
		if !exact || out.OverflowUint(u) {
			return reflect.Value{}, false
		}
		out.SetUint(u)
	case reflect.Float32, reflect.Float64:
		f := constant.ToFloat(c)
		if f.Kind() == constant.Unknown {
			return reflect.Value{}, false
		}
		fv, _ := constant.Float64Val(f)
		out.SetFloat(fv)
	case reflect.Complex64, reflect.Complex128:
		z := constant.ToComplex(c)
		if z.Kind() == constant.Unknown {
			return reflect.Value{}, false
		}
		re, _ := constant.Float64Val(constant.Real(z))
		im, _ := constant.Float64Val(constant.Imag(z))
		out.SetComplex(complex(re, im))
	default:
		return reflect.Value{}, false
	}
	return out, true
}

// defaultValue converts a constant to a value of its default type.
func defaultValue(c constant.Value, tok token.Token) reflect.Value {
	t := defaultType(c, tok)
	if t == nil {
		return reflect.Value{}
	}
	v, ok := constValue(c, t)
	if !ok {
		return reflect.Value{}
	}
	return v
}

var qualifier = regexp.MustCompile(`[\w./-]+\.`)

var typeExprs sync.Map // type name -> ast.Expr, nil when it does not parse

func typeExpr(name string) ast.Expr {
	if x, ok := typeExprs.Load(name); ok {
		e, _ := x.(ast.Expr)
		return e
	}
	x, err := parser.ParseExpr(name)
	if err != nil {
		x = nil
	}
	actual, _ := typeExprs.LoadOrStore(name, x)
	e, _ := actual.(ast.Expr)
	return e
}

// typeMatches reports whether t is the type written as name in a pattern.
func (m *matcher) typeMatches(t reflect.Type, name string) bool {
	switch name {
	case "any", "interface{}":
		return true
	case "error":
		return t.Implements(errorType)
	}
	if x := typeExpr(name); x != nil {
		return m.typeIs(t, x)
	}
	return t.String() == name
}

var predeclaredAliases = map[string]string{"byte": "uint8", "rune": "int32"}

func (m *matcher) typeIs(t reflect.Type, x ast.Expr) bool {
	switch x := x.(type) {
	case *ast.ParenExpr:
		return m.typeIs(t, x.X)

	case *ast.Ident:
		name := x.Name
		if alias, ok := predeclaredAliases[name]; ok {
			name = alias
		}
		switch name {
		case "any":
			return t.Kind() == reflect.Interface && t.NumMethod() == 0
		case "error":
			return t == errorType
		}
		if t.Name() != name {
			return false
		}
		return t.PkgPath() == "" || m.home == "" || t.PkgPath() == m.home

	case *ast.SelectorExpr:
		pkg, ok := x.X.(*ast.Ident)
		if !ok || t.PkgPath() == "" || t.Name() != x.Sel.Name {
			return false
		}
		return strings.TrimSuffix(t.String(), "."+t.Name()) == pkg.Name

	case *ast.StarExpr:
		return t.Kind() == reflect.Pointer && m.typeIs(t.Elem(), x.X)

	case *ast.ArrayType:
		if x.Len == nil {
			return t.Kind() == reflect.Slice && m.typeIs(t.Elem(), x.Elt)
		}
		if t.Kind() != reflect.Array {
			return false
		}
		if lit, ok := x.Len.(*ast.BasicLit); ok {
			if n, err := strconv.Atoi(lit.Value); err == nil && n != t.Len() {
				return false
			}
		}
		return m.typeIs(t.Elem(), x.Elt)

	case *ast.MapType:
		return t.Kind() == reflect.Map && m.typeIs(t.Key(), x.Key) && m.typeIs(t.Elem(), x.Value)

	case *ast.InterfaceType:
		if x.Methods.NumFields() == 0 {
			return t.Kind() == reflect.Interface && t.NumMethod() == 0
		}
	}

	// generic instances, funcs, chans and literal struct types compare by
	// their text with package qualifiers dropped
	return qualifier.ReplaceAllString(t.String(), "") == qualifier.ReplaceAllString(types.ExprString(x), "")
}
