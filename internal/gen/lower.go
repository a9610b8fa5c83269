package gen

import (
	"errors"
	"fmt"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/scanner"
	"go/token"
	"go/types"
	"regexp"
	"strings"

	"github.com/gnolang/coerce/pattern"
)

// SiteError is a lowering error located in the pattern or the result text.
type SiteError struct {
	InResult bool
	Offset   int // byte offset in the pattern or result, -1 if unknown
	Kind     pattern.ErrorKind
	Msg      string
}

func (e *SiteError) Error() string { return e.Msg }

// Site is one coercion or assertion to lower to native code.
type Site struct {
	Fset    *token.FileSet
	Pkg     *types.Package
	Pos     token.Pos // type names in the pattern resolve in the scope at Pos
	In      types.Type
	Out     types.Type // nil for assertions
	Pattern string
	Result  string

	// Dynamic checks the pattern the way the run-time matcher reads it.
	// Names that are not types in scope may be extractors or types of other
	// packages, interface values are looked through, and the guard and
	// result are left to the matcher.
	Dynamic bool
}

func (s Site) assert() bool { return s.Out == nil }

// Validate checks that the site can be lowered: the pattern parses, every
// name in the guard and the result is bound or declared, and the pattern
// can match a value of type In.
func Validate(s Site) *SiteError {
	_, err := lowerSite(s, DefaultConfig().TempPrefix, types.RelativeTo(s.Pkg))
	return err
}

type line struct {
	text string
	open bool
	temp string // declared by this line, replaced by _ when never used
}

type acc struct {
	expr string
	typ  types.Type
}

type lowerer struct {
	site   Site
	prefix string
	ok     string
	qual   types.Qualifier
	used   map[string]bool
	lines  []line
	n      int
}

// lowered is the body of a generated function.
type lowered struct {
	lines []line
	param string
}

func lowerSite(s Site, prefix string, qual types.Qualifier) (*lowered, *SiteError) {
	p, err := pattern.Parse(s.Pattern)
	if err != nil {
		return nil, fromExpansion(err, false)
	}

	l := &lowerer{
		site:   s,
		prefix: prefix,
		ok:     prefix + "ok",
		qual:   qual,
		used:   make(map[string]bool),
	}

	bound := make(map[string]bool)
	var serr *SiteError
	walk(p.Root(), func(n pattern.Node) {
		b, ok := n.(*pattern.Binding)
		if !ok {
			return
		}
		bound[b.Name] = true
		if strings.HasPrefix(b.Name, prefix) && serr == nil {
			serr = &SiteError{Offset: b.Offset(), Kind: pattern.ErrUnsupported, Msg: fmt.Sprintf("binding %s uses the reserved prefix %s", b.Name, prefix)}
		}
	})
	if serr != nil {
		return nil, serr
	}

	guard, goff := p.GuardSource()
	if goff >= 0 && !s.Dynamic {
		if serr := l.useNames(guard, goff, bound, false); serr != nil {
			return nil, serr
		}
	}
	if !s.assert() && !s.Dynamic {
		if serr := l.useNames(s.Result, 0, bound, true); serr != nil {
			return nil, serr
		}
	}

	param := prefix + "0"
	if serr := l.lower(p.Root(), acc{param, s.In}); serr != nil {
		return nil, serr
	}
	if goff >= 0 {
		l.open("if %s {", guard)
	}
	if s.assert() {
		l.stmt("return")
	} else {
		l.stmt("return %s", s.Result)
	}
	l.dropUnusedTemps()
	return &lowered{lines: l.lines, param: param}, nil
}

func fromExpansion(err error, inResult bool) *SiteError {
	var ee *pattern.ExpansionError
	if errors.As(err, &ee) {
		return &SiteError{InResult: inResult, Offset: ee.Offset, Kind: ee.Kind, Msg: ee.Msg}
	}
	return &SiteError{InResult: inResult, Offset: -1, Msg: err.Error()}
}

func walk(n pattern.Node, fn func(pattern.Node)) {
	fn(n)
	switch n := n.(type) {
	case *pattern.Struct:
		for _, f := range n.Fields {
			walk(f.Pattern, fn)
		}
	case *pattern.Pointer:
		walk(n.Elem, fn)
	case *pattern.Sequence:
		for _, e := range n.Elems {
			walk(e, fn)
		}
	case *pattern.Map:
		for _, e := range n.Entries {
			walk(e.Value, fn)
		}
	case *pattern.Extract:
		for _, a := range n.Args {
			walk(a, fn)
		}
	}
}

// useNames marks the bindings used by src and rejects names that are
// neither bound nor declared in scope at the site.
func (l *lowerer) useNames(src string, base int, bound map[string]bool, inResult bool) *SiteError {
	x, err := parser.ParseExprFrom(token.NewFileSet(), "", src, 0)
	if err != nil {
		serr := &SiteError{InResult: inResult, Offset: -1, Kind: pattern.ErrSyntax, Msg: err.Error()}
		var list scanner.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			serr.Offset = base + list[0].Pos.Offset
			serr.Msg = list[0].Msg
		}
		return serr
	}

	ast.Inspect(x, func(n ast.Node) bool {
		if id, ok := n.(*ast.Ident); ok && bound[id.Name] {
			l.used[id.Name] = true
		}
		return true
	})

	var scope *types.Scope
	if l.site.Pkg != nil {
		scope = l.site.Pkg.Scope().Innermost(l.site.Pos)
	}
	for _, id := range freeIdents(x) {
		if bound[id.Name] {
			continue
		}
		if scope != nil {
			if _, obj := scope.LookupParent(id.Name, l.site.Pos); obj != nil {
				continue
			}
		} else if types.Universe.Lookup(id.Name) != nil {
			continue
		}
		return &SiteError{
			InResult: inResult,
			Offset:   base + int(id.Pos()) - 1,
			Kind:     pattern.ErrUnbound,
			Msg:      fmt.Sprintf("%s is not bound by the pattern", id.Name),
		}
	}
	return nil
}

// freeIdents returns the identifiers of x that refer to variables, skipping
// selected names, struct literal keys and function literals.
func freeIdents(x ast.Expr) []*ast.Ident {
	var ids []*ast.Ident
	ast.Inspect(x, func(n ast.Node) bool {
		switch n := n.(type) {
		case *ast.FuncLit:
			return false
		case *ast.SelectorExpr:
			ast.Inspect(n.X, func(m ast.Node) bool {
				if _, ok := m.(*ast.FuncLit); ok {
					return false
				}
				if id, ok := m.(*ast.Ident); ok && id.Name != "_" {
					ids = append(ids, id)
				}
				return true
			})
			return false
		case *ast.KeyValueExpr:
			if _, ok := n.Key.(*ast.Ident); ok {
				ast.Inspect(n.Value, func(m ast.Node) bool {
					if id, ok := m.(*ast.Ident); ok && id.Name != "_" {
						ids = append(ids, id)
					}
					return true
				})
				return false
			}
		case *ast.Ident:
			if n.Name != "_" {
				ids = append(ids, n)
			}
		}
		return true
	})
	return ids
}

func (l *lowerer) errorf(n pattern.Node, format string, args ...any) *SiteError {
	return &SiteError{Offset: n.Offset(), Kind: pattern.ErrShape, Msg: fmt.Sprintf(format, args...)}
}

func (l *lowerer) temp() string {
	l.n++
	return fmt.Sprintf("%s%d", l.prefix, l.n)
}

func (l *lowerer) open(format string, args ...any) {
	l.lines = append(l.lines, line{text: fmt.Sprintf(format, args...), open: true})
}

func (l *lowerer) openTemp(tmp, format string, args ...any) {
	l.lines = append(l.lines, line{text: fmt.Sprintf(format, args...), open: true, temp: tmp})
}

func (l *lowerer) stmt(format string, args ...any) {
	l.lines = append(l.lines, line{text: fmt.Sprintf(format, args...)})
}

func (l *lowerer) typeString(t types.Type) string {
	return types.TypeString(t, l.qual)
}

func (l *lowerer) resolve(n pattern.Node, name string) (types.Type, *SiteError) {
	tv, err := types.Eval(l.site.Fset, l.site.Pkg, l.site.Pos, name)
	if err != nil || !tv.IsType() {
		if l.site.Dynamic {
			return nil, nil
		}
		return nil, &SiteError{Offset: n.Offset(), Kind: pattern.ErrShape, Msg: fmt.Sprintf("%s is not a type", name)}
	}
	return tv.Type, nil
}

func isInterface(t types.Type) bool {
	_, ok := t.Underlying().(*types.Interface)
	return ok
}

// narrow makes a value of type t from a, asserting when a is an interface.
func (l *lowerer) narrow(n pattern.Node, a acc, t types.Type) (acc, *SiteError) {
	if types.Identical(a.typ, t) {
		return a, nil
	}
	if iface, ok := a.typ.Underlying().(*types.Interface); ok {
		if !types.AssertableTo(iface, t) {
			return a, l.errorf(n, "a value of type %s can never hold a %s", l.typeString(a.typ), l.typeString(t))
		}
		tmp := l.temp()
		l.openTemp(tmp, "if %s, %s := %s.(%s); %s {", tmp, l.ok, a.expr, l.typeString(t), l.ok)
		return acc{tmp, t}, nil
	}
	if isInterface(t) && types.Implements(a.typ, t.Underlying().(*types.Interface)) {
		return a, nil
	}
	return a, l.errorf(n, "a value of type %s is never a %s", l.typeString(a.typ), l.typeString(t))
}

// opaque reports whether n on a is left to the run-time matcher.
func (l *lowerer) opaque(n pattern.Node, a acc) bool {
	if !l.site.Dynamic || !isInterface(a.typ) {
		return false
	}
	switch n := n.(type) {
	case *pattern.Pointer:
		return true
	case *pattern.Struct:
		return n.Type == ""
	case *pattern.Sequence:
		return n.Elem == ""
	case *pattern.Map:
		return n.Key == "" || n.Value == ""
	case *pattern.Extract:
		return n.Name == "Some" || n.Name == "None"
	}
	return false
}

func (l *lowerer) lower(n pattern.Node, a acc) *SiteError {
	if l.opaque(n, a) {
		return nil
	}
	switch n := n.(type) {
	case *pattern.Wildcard:
		return nil

	case *pattern.Binding:
		if l.used[n.Name] {
			l.stmt("%s := %s", n.Name, a.expr)
		}
		return nil

	case *pattern.Literal:
		if err := l.literalFits(n, n.Value, n.Tok, a.typ); err != nil {
			return err
		}
		l.open("if %s == %s {", a.expr, n.Text)
		return nil

	case *pattern.Nil:
		if !nilable(a.typ) {
			return l.errorf(n, "nil can never match a value of type %s", l.typeString(a.typ))
		}
		l.open("if %s == nil {", a.expr)
		return nil

	case *pattern.Struct:
		return l.structure(n, a)

	case *pattern.Pointer:
		return l.pointer(n, n.Elem, a)

	case *pattern.Sequence:
		return l.sequence(n, a)

	case *pattern.Map:
		return l.mapping(n, a)

	case *pattern.Extract:
		return l.extract(n, a)
	}
	return l.errorf(n, "unsupported pattern %s", n)
}

func nilable(t types.Type) bool {
	switch u := t.Underlying().(type) {
	case *types.Pointer, *types.Slice, *types.Map, *types.Chan, *types.Signature, *types.Interface:
		return true
	case *types.Basic:
		return u.Kind() == types.UnsafePointer
	}
	return false
}

func defaultType(c constant.Value, tok token.Token) types.Type {
	switch c.Kind() {
	case constant.Bool:
		return types.Typ[types.Bool]
	case constant.String:
		return types.Typ[types.String]
	case constant.Int:
		if tok == token.CHAR {
			return types.Typ[types.Rune]
		}
		return types.Typ[types.Int]
	case constant.Float:
		return types.Typ[types.Float64]
	case constant.Complex:
		return types.Typ[types.Complex128]
	}
	return types.Typ[types.Invalid]
}

func (l *lowerer) literalFits(n pattern.Node, c constant.Value, tok token.Token, t types.Type) *SiteError {
	if isInterface(t) {
		if !types.AssignableTo(defaultType(c, tok), t) {
			return l.errorf(n, "%s can never be held by a value of type %s", n, l.typeString(t))
		}
		return nil
	}

	fits := false
	if b, ok := t.Underlying().(*types.Basic); ok {
		info := b.Info()
		switch {
		case info&types.IsBoolean != 0:
			fits = c.Kind() == constant.Bool
		case info&types.IsString != 0:
			fits = c.Kind() == constant.String
		case info&types.IsInteger != 0:
			fits = constant.ToInt(c).Kind() == constant.Int
		case info&types.IsFloat != 0:
			fits = constant.ToFloat(c).Kind() == constant.Float || c.Kind() == constant.Int
		case info&types.IsComplex != 0:
			fits = constant.ToComplex(c).Kind() != constant.Unknown
		}
	}
	if !fits {
		return l.errorf(n, "%s can never equal a value of type %s", n, l.typeString(t))
	}
	return nil
}

func (l *lowerer) structure(n *pattern.Struct, a acc) *SiteError {
	if n.Type != "" {
		t, err := l.resolve(n, n.Type)
		if err != nil || t == nil {
			return err
		}
		if a, err = l.narrow(n, a, t); err != nil {
			return err
		}
	}
	st, ok := a.typ.Underlying().(*types.Struct)
	if !ok {
		if isInterface(a.typ) {
			return l.errorf(n, "%s needs a struct type to match a value of type %s", n, l.typeString(a.typ))
		}
		return l.errorf(n, "a value of type %s is not a struct", l.typeString(a.typ))
	}

	if n.Positional {
		if st.NumFields() != len(n.Fields) {
			return l.errorf(n, "%s has %d fields, pattern lists %d", l.typeString(a.typ), st.NumFields(), len(n.Fields))
		}
		for i, f := range n.Fields {
			field := st.Field(i)
			if !field.Exported() && field.Pkg() != l.site.Pkg {
				return l.errorf(f.Pattern, "field %s of %s is unexported", field.Name(), l.typeString(a.typ))
			}
			if err := l.lower(f.Pattern, acc{a.expr + "." + field.Name(), field.Type()}); err != nil {
				return err
			}
		}
		return nil
	}

	for _, f := range n.Fields {
		obj, index, indirect := types.LookupFieldOrMethod(a.typ, false, l.site.Pkg, f.Name)
		field, ok := obj.(*types.Var)
		if !ok || !field.IsField() {
			return l.errorf(f.Pattern, "%s has no field %s", l.typeString(a.typ), f.Name)
		}
		if indirect && len(index) > 1 {
			return l.errorf(f.Pattern, "field %s is promoted through an embedded pointer", f.Name)
		}
		if err := l.lower(f.Pattern, acc{a.expr + "." + f.Name, field.Type()}); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowerer) pointer(n pattern.Node, elem pattern.Node, a acc) *SiteError {
	pt, ok := a.typ.Underlying().(*types.Pointer)
	if !ok {
		if isInterface(a.typ) {
			return l.errorf(n, "%s on a value of type %s needs a type test, e.g. (*T)(p)", n, l.typeString(a.typ))
		}
		return l.errorf(n, "a value of type %s is not a pointer", l.typeString(a.typ))
	}
	l.open("if %s != nil {", a.expr)
	return l.lower(elem, acc{"(*" + a.expr + ")", pt.Elem()})
}

func (l *lowerer) sequence(n *pattern.Sequence, a acc) *SiteError {
	if n.Elem != "" {
		elem, err := l.resolve(n, n.Elem)
		if err != nil || elem == nil {
			return err
		}
		var t types.Type = types.NewSlice(elem)
		if n.Array {
			t = types.NewArray(elem, int64(len(n.Elems)))
		}
		if a, err = l.narrow(n, a, t); err != nil {
			return err
		}
	}

	var elem types.Type
	switch u := a.typ.Underlying().(type) {
	case *types.Slice:
		if n.Array {
			return l.errorf(n, "array pattern can never match a slice of type %s", l.typeString(a.typ))
		}
		elem = u.Elem()
		l.open("if len(%s) == %d {", a.expr, len(n.Elems))
	case *types.Array:
		if !n.Array {
			return l.errorf(n, "slice pattern can never match an array of type %s", l.typeString(a.typ))
		}
		if u.Len() != int64(len(n.Elems)) {
			return l.errorf(n, "%s has length %d, pattern lists %d", l.typeString(a.typ), u.Len(), len(n.Elems))
		}
		elem = u.Elem()
	default:
		return l.errorf(n, "a value of type %s is not a slice or array", l.typeString(a.typ))
	}

	for i, e := range n.Elems {
		if err := l.lower(e, acc{fmt.Sprintf("%s[%d]", a.expr, i), elem}); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowerer) mapping(n *pattern.Map, a acc) *SiteError {
	var key, val types.Type
	var err *SiteError
	if n.Key != "" {
		if key, err = l.resolve(n, n.Key); err != nil {
			return err
		}
	}
	if n.Value != "" {
		if val, err = l.resolve(n, n.Value); err != nil {
			return err
		}
	}
	if (n.Key != "" && key == nil) || (n.Value != "" && val == nil) {
		return nil
	}
	if key != nil && val != nil {
		if a, err = l.narrow(n, a, types.NewMap(key, val)); err != nil {
			return err
		}
	}

	mt, ok := a.typ.Underlying().(*types.Map)
	if !ok {
		return l.errorf(n, "a value of type %s is not a map", l.typeString(a.typ))
	}
	if (key != nil && !types.Identical(key, mt.Key())) || (val != nil && !types.Identical(val, mt.Elem())) {
		return l.errorf(n, "%s can never match a value of type %s", n, l.typeString(a.typ))
	}

	for _, e := range n.Entries {
		if err := l.literalFits(e.Key, e.Key.Value, e.Key.Tok, mt.Key()); err != nil {
			return err
		}
		tmp := l.temp()
		l.openTemp(tmp, "if %s, %s := %s[%s]; %s {", tmp, l.ok, a.expr, e.Key.Text, l.ok)
		if err := l.lower(e.Value, acc{tmp, mt.Elem()}); err != nil {
			return err
		}
	}
	return nil
}

func (l *lowerer) extract(n *pattern.Extract, a acc) *SiteError {
	switch n.Name {
	case "Some":
		return l.pointer(n, n.Args[0], a)
	case "None":
		if _, ok := a.typ.Underlying().(*types.Pointer); !ok {
			return l.errorf(n, "None() needs a pointer, not a value of type %s", l.typeString(a.typ))
		}
		l.open("if %s == nil {", a.expr)
		return nil
	}

	if len(n.Args) != 1 {
		if l.site.Dynamic {
			return nil
		}
		return l.errorf(n, "%s is not a type; custom extractors are only available at run time", n.Name)
	}
	t, err := l.resolve(n, n.Name)
	if err != nil {
		err.Msg = fmt.Sprintf("%s is not a type; custom extractors are only available at run time", n.Name)
		return err
	}
	if t == nil {
		return nil
	}
	if a, err = l.narrow(n, a, t); err != nil {
		return err
	}
	return l.lower(n.Args[0], a)
}

// dropUnusedTemps renames temporaries nothing refers to, which the compiler
// would reject.
func (l *lowerer) dropUnusedTemps() {
	for i, ln := range l.lines {
		if ln.temp == "" {
			continue
		}
		word := regexp.MustCompile(`\b` + regexp.QuoteMeta(ln.temp) + `\b`)
		used := false
		for _, later := range l.lines[i+1:] {
			if word.MatchString(later.text) {
				used = true
				break
			}
		}
		if !used {
			l.lines[i].text = strings.Replace(ln.text, ln.temp+",", "_,", 1)
		}
	}
}
