package pattern

import (
	"cmp"
	"fmt"
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"go/types"
	"reflect"
)

// Scope supplies values for names that are not bound by a pattern.
type Scope map[string]any

// Expr is a compiled guard or result expression.
type Expr struct {
	src   string // source that offsets refer to
	text  string
	x     ast.Expr
	names []string
	scope Scope
}

// Names returns the free names used by the expression, in order of first use.
func (e *Expr) Names() []string {
	out := make([]string, len(e.names))
	copy(out, e.names)
	return out
}

// String returns the expression source.
func (e *Expr) String() string { return e.text }

// AST returns the parsed expression.
func (e *Expr) AST() ast.Expr { return e.x }

// ParseExpr parses src and checks that it only uses supported forms. Names
// are not resolved.
func ParseExpr(src string) (*Expr, error) {
	x, err := parseExpr(src)
	if err != nil {
		return nil, err
	}
	return newExpr(src, x, nil, nil, false)
}

// CompileExpr parses src and checks that every name it uses is either bound
// or present in scope.
func CompileExpr(src string, bound []string, scope Scope) (*Expr, error) {
	x, err := parseExpr(src)
	if err != nil {
		return nil, err
	}
	return newExpr(src, x, bound, scope, true)
}

func parseExpr(src string) (ast.Expr, error) {
	x, err := parser.ParseExprFrom(token.NewFileSet(), "", src, 0)
	if err != nil {
		return nil, syntaxError(src, err)
	}
	return x, nil
}

// offset converts a position to a byte offset. Every source is parsed into
// a fresh FileSet, whose only file has base 1.
func offset(p token.Pos) int { return int(p) - 1 }

func newExpr(src string, x ast.Expr, bound []string, scope Scope, strict bool) (*Expr, error) {
	c := &exprChecker{
		src:    src,
		bound:  make(map[string]bool, len(bound)),
		scope:  scope,
		strict: strict,
		seen:   make(map[string]bool),
	}
	for _, name := range bound {
		c.bound[name] = true
	}
	if err := c.check(x); err != nil {
		return nil, err
	}
	return &Expr{
		src:   src,
		text:  src[offset(x.Pos()):offset(x.End())],
		x:     x,
		names: c.names,
		scope: scope,
	}, nil
}

var basicTypes = map[string]reflect.Type{
	"bool":       reflect.TypeOf(false),
	"string":     reflect.TypeOf(""),
	"int":        reflect.TypeOf(int(0)),
	"int8":       reflect.TypeOf(int8(0)),
	"int16":      reflect.TypeOf(int16(0)),
	"int32":      reflect.TypeOf(int32(0)),
	"rune":       reflect.TypeOf(rune(0)),
	"int64":      reflect.TypeOf(int64(0)),
	"uint":       reflect.TypeOf(uint(0)),
	"uint8":      reflect.TypeOf(uint8(0)),
	"byte":       reflect.TypeOf(byte(0)),
	"uint16":     reflect.TypeOf(uint16(0)),
	"uint32":     reflect.TypeOf(uint32(0)),
	"uint64":     reflect.TypeOf(uint64(0)),
	"uintptr":    reflect.TypeOf(uintptr(0)),
	"float32":    reflect.TypeOf(float32(0)),
	"float64":    reflect.TypeOf(float64(0)),
	"complex64":  reflect.TypeOf(complex64(0)),
	"complex128": reflect.TypeOf(complex128(0)),
}

type exprChecker struct {
	src    string
	bound  map[string]bool
	scope  Scope
	strict bool
	seen   map[string]bool
	names  []string
}

func (c *exprChecker) errorf(kind ErrorKind, n ast.Node, format string, args ...any) error {
	return newError(kind, c.src, offset(n.Pos()), format, args...)
}

func (c *exprChecker) known(name string) bool {
	if c.bound[name] {
		return true
	}
	_, ok := c.scope[name]
	return ok
}

func (c *exprChecker) use(id *ast.Ident) error {
	if c.strict && !c.known(id.Name) {
		return c.errorf(ErrUnbound, id, "undefined: %s", id.Name)
	}
	if !c.seen[id.Name] {
		c.seen[id.Name] = true
		c.names = append(c.names, id.Name)
	}
	return nil
}

func (c *exprChecker) check(x ast.Expr) error {
	switch x := x.(type) {
	case *ast.Ident:
		switch x.Name {
		case "true", "false", "nil":
			return nil
		}
		return c.use(x)

	case *ast.BasicLit:
		if constant.MakeFromLiteral(x.Value, x.Kind, 0).Kind() == constant.Unknown {
			return c.errorf(ErrSyntax, x, "malformed literal %s", x.Value)
		}
		return nil

	case *ast.ParenExpr:
		return c.check(x.X)

	case *ast.SelectorExpr:
		return c.check(x.X)

	case *ast.IndexExpr:
		if err := c.check(x.X); err != nil {
			return err
		}
		return c.check(x.Index)

	case *ast.SliceExpr:
		if x.Slice3 {
			return c.errorf(ErrUnsupported, x, "3-index slices are not supported")
		}
		for _, e := range []ast.Expr{x.X, x.Low, x.High} {
			if e == nil {
				continue
			}
			if err := c.check(e); err != nil {
				return err
			}
		}
		return nil

	case *ast.UnaryExpr:
		switch x.Op {
		case token.NOT, token.SUB, token.ADD:
			return c.check(x.X)
		}
		return c.errorf(ErrUnsupported, x, "operator %s is not supported", x.Op)

	case *ast.BinaryExpr:
		switch x.Op {
		case token.LAND, token.LOR,
			token.EQL, token.NEQ, token.LSS, token.LEQ, token.GTR, token.GEQ,
			token.ADD, token.SUB, token.MUL, token.QUO, token.REM:
		default:
			return c.errorf(ErrUnsupported, x, "operator %s is not supported", x.Op)
		}
		if err := c.check(x.X); err != nil {
			return err
		}
		return c.check(x.Y)

	case *ast.CallExpr:
		if x.Ellipsis.IsValid() {
			return c.errorf(ErrUnsupported, x, "variadic calls are not supported")
		}
		switch fun := ast.Unparen(x.Fun).(type) {
		case *ast.Ident:
			switch {
			case c.known(fun.Name):
				if err := c.use(fun); err != nil {
					return err
				}
			case fun.Name == "len" || fun.Name == "cap" || basicTypes[fun.Name] != nil:
				if len(x.Args) != 1 {
					return c.errorf(ErrShape, x, "%s takes exactly one argument", fun.Name)
				}
			default:
				if err := c.use(fun); err != nil {
					return err
				}
			}
		case *ast.SelectorExpr:
			if err := c.check(fun.X); err != nil {
				return err
			}
		default:
			return c.errorf(ErrUnsupported, x.Fun, "cannot call %s", types.ExprString(x.Fun))
		}
		for _, arg := range x.Args {
			if err := c.check(arg); err != nil {
				return err
			}
		}
		return nil
	}
	return c.errorf(ErrUnsupported, x, "%T is not supported in expressions", x)
}

// operand is an intermediate value. An invalid v stands for nil. Untyped
// operands come from constants and take the type of the other side.
type operand struct {
	v       reflect.Value
	untyped bool
}

// Eval evaluates the expression with the names in b, then the expression's
// scope.
func (e *Expr) Eval(b Bindings) (any, error) {
	ev := &evaluator{e: e, b: b}
	o, err := ev.eval(e.x)
	if err != nil {
		return nil, err
	}
	if !o.v.IsValid() {
		return nil, nil
	}
	if !o.v.CanInterface() {
		return nil, ev.shape(e.x, "result is an unexported value")
	}
	return o.v.Interface(), nil
}

func (e *Expr) evalBool(b Bindings) (bool, error) {
	ev := &evaluator{e: e, b: b}
	o, err := ev.eval(e.x)
	if err != nil {
		return false, err
	}
	if !o.v.IsValid() || o.v.Kind() != reflect.Bool {
		return false, ev.shape(e.x, "guard %s is not a boolean", e.text)
	}
	return o.v.Bool(), nil
}

type evaluator struct {
	e *Expr
	b Bindings
}

func (ev *evaluator) shape(n ast.Node, format string, args ...any) error {
	return newError(ErrShape, ev.e.src, offset(n.Pos()), format, args...)
}

func (ev *evaluator) fault(n ast.Node, format string, args ...any) error {
	return &EvalError{Source: ev.e.src, Offset: offset(n.Pos()), Msg: fmt.Sprintf(format, args...)}
}

func typed(v reflect.Value) operand { return operand{v: v} }

func untypedOf(v any) operand { return operand{v: reflect.ValueOf(v), untyped: true} }

func valueOf(v any) reflect.Value {
	if v == nil {
		return reflect.Value{}
	}
	return reflect.ValueOf(v)
}

func (ev *evaluator) lookup(name string) (reflect.Value, bool) {
	if v, ok := ev.b.values[name]; ok {
		return valueOf(v), true
	}
	if v, ok := ev.e.scope[name]; ok {
		return valueOf(v), true
	}
	return reflect.Value{}, false
}

func (ev *evaluator) eval(x ast.Expr) (operand, error) {
	switch x := x.(type) {
	case *ast.Ident:
		switch x.Name {
		case "true", "false":
			return untypedOf(x.Name == "true"), nil
		case "nil":
			return operand{untyped: true}, nil
		}
		v, ok := ev.lookup(x.Name)
		if !ok {
			return operand{}, newError(ErrUnbound, ev.e.src, offset(x.Pos()), "undefined: %s", x.Name)
		}
		return typed(v), nil

	case *ast.BasicLit:
		v := defaultValue(constant.MakeFromLiteral(x.Value, x.Kind, 0), x.Kind)
		if !v.IsValid() {
			return operand{}, ev.shape(x, "constant %s overflows its default type", x.Value)
		}
		return operand{v: v, untyped: true}, nil

	case *ast.ParenExpr:
		return ev.eval(x.X)

	case *ast.SelectorExpr:
		recv, err := ev.eval(x.X)
		if err != nil {
			return operand{}, err
		}
		return ev.selector(x, recv.v)

	case *ast.IndexExpr:
		return ev.index(x)

	case *ast.SliceExpr:
		return ev.slice(x)

	case *ast.UnaryExpr:
		return ev.unary(x)

	case *ast.BinaryExpr:
		return ev.binary(x)

	case *ast.CallExpr:
		return ev.call(x)
	}
	return operand{}, newError(ErrUnsupported, ev.e.src, offset(x.Pos()), "%T is not supported in expressions", x)
}

func (ev *evaluator) selector(x *ast.SelectorExpr, v reflect.Value) (operand, error) {
	name := x.Sel.Name
	if !v.IsValid() {
		return operand{}, ev.fault(x, "nil has no field %s", name)
	}
	if v.Kind() == reflect.Interface {
		if v.IsNil() {
			return operand{}, ev.fault(x, "nil interface has no field %s", name)
		}
		v = v.Elem()
	}

	s := v
	if s.Kind() == reflect.Pointer {
		if s.IsNil() {
			return operand{}, ev.fault(x, "nil pointer dereference selecting %s", name)
		}
		s = s.Elem()
	}
	if s.Kind() == reflect.Struct {
		if sf, ok := s.Type().FieldByName(name); ok {
			fv, err := s.FieldByIndexErr(sf.Index)
			if err != nil {
				return operand{}, ev.fault(x, "nil pointer dereference selecting %s", name)
			}
			if !fv.CanInterface() {
				return operand{}, ev.shape(x.Sel, "%s is unexported", name)
			}
			return typed(fv), nil
		}
	}
	if method(v, name).IsValid() {
		return operand{}, newError(ErrUnsupported, ev.e.src, offset(x.Sel.Pos()), "method value %s must be called", name)
	}
	return operand{}, ev.shape(x.Sel, "%s has no field or method %s", v.Type(), name)
}

// method finds a method by name, taking the address of a copy for pointer
// receivers.
func method(v reflect.Value, name string) reflect.Value {
	if !v.IsValid() {
		return reflect.Value{}
	}
	if m := v.MethodByName(name); m.IsValid() {
		return m
	}
	if v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface || !v.CanInterface() {
		return reflect.Value{}
	}
	p := reflect.New(v.Type())
	p.Elem().Set(v)
	return p.MethodByName(name)
}

func (ev *evaluator) call(x *ast.CallExpr) (operand, error) {
	switch fun := ast.Unparen(x.Fun).(type) {
	case *ast.Ident:
		if v, ok := ev.lookup(fun.Name); ok {
			return ev.apply(x, v)
		}
		switch fun.Name {
		case "len", "cap":
			return ev.builtin(x, fun.Name)
		}
		if t := basicTypes[fun.Name]; t != nil {
			return ev.convert(x, t)
		}
		return operand{}, newError(ErrUnbound, ev.e.src, offset(fun.Pos()), "undefined: %s", fun.Name)

	case *ast.SelectorExpr:
		recv, err := ev.eval(fun.X)
		if err != nil {
			return operand{}, err
		}
		if !recv.v.IsValid() {
			return operand{}, ev.fault(fun, "nil has no method %s", fun.Sel.Name)
		}
		m := method(recv.v, fun.Sel.Name)
		if !m.IsValid() {
			if recv.v.Kind() == reflect.Interface && recv.v.IsNil() {
				return operand{}, ev.fault(fun, "method %s called on nil interface", fun.Sel.Name)
			}
			// a func-typed field
			f, err := ev.selector(fun, recv.v)
			if err != nil {
				return operand{}, err
			}
			return ev.apply(x, f.v)
		}
		return ev.apply(x, m)
	}
	return operand{}, newError(ErrUnsupported, ev.e.src, offset(x.Pos()), "cannot call %s", types.ExprString(x.Fun))
}

func (ev *evaluator) apply(x *ast.CallExpr, fn reflect.Value) (operand, error) {
	if !fn.IsValid() || fn.Kind() != reflect.Func {
		return operand{}, ev.shape(x.Fun, "cannot call non-function")
	}
	if fn.IsNil() {
		return operand{}, ev.fault(x.Fun, "call of nil function")
	}
	t := fn.Type()
	if t.NumOut() != 1 {
		return operand{}, ev.shape(x.Fun, "function must return exactly one value, returns %d", t.NumOut())
	}
	n := t.NumIn()
	if (!t.IsVariadic() && len(x.Args) != n) || (t.IsVariadic() && len(x.Args) < n-1) {
		return operand{}, ev.shape(x, "wrong number of arguments: have %d, want %d", len(x.Args), n)
	}

	in := make([]reflect.Value, len(x.Args))
	for i, arg := range x.Args {
		pt := t.In(min(i, n-1))
		if t.IsVariadic() && i >= n-1 {
			pt = pt.Elem()
		}
		o, err := ev.eval(arg)
		if err != nil {
			return operand{}, err
		}
		v, ok := assign(o, pt)
		if !ok {
			return operand{}, ev.shape(arg, "cannot use argument as %s", pt)
		}
		in[i] = v
	}
	return typed(fn.Call(in)[0]), nil
}

func (ev *evaluator) builtin(x *ast.CallExpr, name string) (operand, error) {
	o, err := ev.eval(x.Args[0])
	if err != nil {
		return operand{}, err
	}
	v := o.v
	if v.IsValid() && v.Kind() == reflect.Pointer && v.Type().Elem().Kind() == reflect.Array {
		if v.IsNil() {
			return typed(reflect.ValueOf(v.Type().Elem().Len())), nil
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return operand{}, ev.shape(x.Args[0], "invalid argument nil for %s", name)
	}

	switch name {
	case "len":
		switch v.Kind() {
		case reflect.String, reflect.Slice, reflect.Array, reflect.Map, reflect.Chan:
			return typed(reflect.ValueOf(v.Len())), nil
		}
	case "cap":
		switch v.Kind() {
		case reflect.Slice, reflect.Array, reflect.Chan:
			return typed(reflect.ValueOf(v.Cap())), nil
		}
	}
	return operand{}, ev.shape(x.Args[0], "invalid argument for %s: %s", name, v.Type())
}

func (ev *evaluator) convert(x *ast.CallExpr, t reflect.Type) (operand, error) {
	o, err := ev.eval(x.Args[0])
	if err != nil {
		return operand{}, err
	}
	if o.untyped {
		if v, ok := convertUntyped(o, t); ok {
			return typed(v), nil
		}
	}
	if !o.v.IsValid() || !o.v.Type().ConvertibleTo(t) {
		return operand{}, ev.shape(x, "cannot convert to %s", t)
	}
	return typed(o.v.Convert(t)), nil
}

func (ev *evaluator) index(x *ast.IndexExpr) (operand, error) {
	o, err := ev.eval(x.X)
	if err != nil {
		return operand{}, err
	}
	idx, err := ev.eval(x.Index)
	if err != nil {
		return operand{}, err
	}

	v := o.v
	if v.IsValid() && v.Kind() == reflect.Pointer && v.Type().Elem().Kind() == reflect.Array {
		if v.IsNil() {
			return operand{}, ev.fault(x, "nil pointer dereference")
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return operand{}, ev.fault(x, "index of nil")
	}

	switch v.Kind() {
	case reflect.String, reflect.Slice, reflect.Array:
		i, ok := toInt(idx)
		if !ok {
			return operand{}, ev.shape(x.Index, "index must be an integer")
		}
		if i < 0 || i >= v.Len() {
			return operand{}, ev.fault(x, "index out of range [%d] with length %d", i, v.Len())
		}
		return typed(v.Index(i)), nil

	case reflect.Map:
		key, ok := assign(idx, v.Type().Key())
		if !ok {
			return operand{}, ev.shape(x.Index, "cannot use index as %s", v.Type().Key())
		}
		mv := v.MapIndex(key)
		if !mv.IsValid() {
			mv = reflect.Zero(v.Type().Elem())
		}
		return typed(mv), nil
	}
	return operand{}, ev.shape(x, "cannot index %s", v.Type())
}

func (ev *evaluator) slice(x *ast.SliceExpr) (operand, error) {
	o, err := ev.eval(x.X)
	if err != nil {
		return operand{}, err
	}
	v := o.v
	if v.IsValid() && v.Kind() == reflect.Pointer && v.Type().Elem().Kind() == reflect.Array {
		if v.IsNil() {
			return operand{}, ev.fault(x, "nil pointer dereference")
		}
		v = v.Elem()
	}
	if !v.IsValid() {
		return operand{}, ev.fault(x, "slice of nil")
	}

	var limit int
	switch v.Kind() {
	case reflect.String:
		limit = v.Len()
	case reflect.Slice:
		limit = v.Cap()
	case reflect.Array:
		limit = v.Len()
		if !v.CanAddr() {
			a := reflect.New(v.Type()).Elem()
			a.Set(v)
			v = a
		}
	default:
		return operand{}, ev.shape(x, "cannot slice %s", v.Type())
	}

	lo, hi := 0, v.Len()
	for _, bound := range []struct {
		x   ast.Expr
		dst *int
	}{{x.Low, &lo}, {x.High, &hi}} {
		if bound.x == nil {
			continue
		}
		b, err := ev.eval(bound.x)
		if err != nil {
			return operand{}, err
		}
		i, ok := toInt(b)
		if !ok {
			return operand{}, ev.shape(bound.x, "slice index must be an integer")
		}
		*bound.dst = i
	}
	if lo < 0 || hi < lo || hi > limit {
		return operand{}, ev.fault(x, "slice bounds out of range [%d:%d] with capacity %d", lo, hi, limit)
	}
	return typed(v.Slice(lo, hi)), nil
}

func (ev *evaluator) unary(x *ast.UnaryExpr) (operand, error) {
	o, err := ev.eval(x.X)
	if err != nil {
		return operand{}, err
	}
	v := o.v
	if !v.IsValid() {
		return operand{}, ev.shape(x, "invalid operation: %s nil", x.Op)
	}

	out := reflect.New(v.Type()).Elem()
	switch x.Op {
	case token.NOT:
		if v.Kind() != reflect.Bool {
			return operand{}, ev.shape(x, "operator ! not defined on %s", v.Type())
		}
		out.SetBool(!v.Bool())
	case token.ADD:
		if !numeric(v.Kind()) {
			return operand{}, ev.shape(x, "operator + not defined on %s", v.Type())
		}
		out.Set(v)
	case token.SUB:
		switch {
		case isInt(v.Kind()):
			out.SetInt(-v.Int())
		case isUint(v.Kind()):
			out.SetUint(-v.Uint())
		case isFloat(v.Kind()):
			out.SetFloat(-v.Float())
		case isComplex(v.Kind()):
			out.SetComplex(-v.Complex())
		default:
			return operand{}, ev.shape(x, "operator - not defined on %s", v.Type())
		}
	}
	return operand{v: out, untyped: o.untyped}, nil
}

func (ev *evaluator) binary(x *ast.BinaryExpr) (operand, error) {
	if x.Op == token.LAND || x.Op == token.LOR {
		return ev.logical(x)
	}

	l, err := ev.eval(x.X)
	if err != nil {
		return operand{}, err
	}
	r, err := ev.eval(x.Y)
	if err != nil {
		return operand{}, err
	}

	switch x.Op {
	case token.EQL, token.NEQ:
		eq, err := ev.equal(x, l, r)
		if err != nil {
			return operand{}, err
		}
		return untypedOf(eq == (x.Op == token.EQL)), nil
	}

	l, r, err = ev.unify(x, l, r)
	if err != nil {
		return operand{}, err
	}

	switch x.Op {
	case token.LSS, token.LEQ, token.GTR, token.GEQ:
		res, ok := ordered(x.Op, l.v, r.v)
		if !ok {
			return operand{}, ev.shape(x, "operator %s not defined on %s", x.Op, l.v.Type())
		}
		return untypedOf(res), nil
	}

	v, err := ev.arith(x, l.v, r.v)
	if err != nil {
		return operand{}, err
	}
	return operand{v: v, untyped: l.untyped && r.untyped}, nil
}

func (ev *evaluator) logical(x *ast.BinaryExpr) (operand, error) {
	truth := func(e ast.Expr) (bool, bool, error) {
		o, err := ev.eval(e)
		if err != nil {
			return false, false, err
		}
		if !o.v.IsValid() || o.v.Kind() != reflect.Bool {
			return false, false, ev.shape(e, "operand of %s is not a boolean", x.Op)
		}
		return o.v.Bool(), o.untyped, nil
	}

	l, lu, err := truth(x.X)
	if err != nil {
		return operand{}, err
	}
	if (x.Op == token.LAND && !l) || (x.Op == token.LOR && l) {
		return operand{v: reflect.ValueOf(l), untyped: lu}, nil
	}
	r, ru, err := truth(x.Y)
	if err != nil {
		return operand{}, err
	}
	return operand{v: reflect.ValueOf(r), untyped: lu && ru}, nil
}

func (ev *evaluator) equal(x *ast.BinaryExpr, l, r operand) (bool, error) {
	if !l.v.IsValid() || !r.v.IsValid() {
		other := l.v
		if !other.IsValid() {
			other = r.v
		}
		if other.IsValid() && !nilable(other.Kind()) {
			return false, ev.shape(x, "cannot compare %s with nil", other.Type())
		}
		return isNil(other), nil
	}

	if l.v.Kind() == reflect.Interface || r.v.Kind() == reflect.Interface {
		a, b := dynamic(l.v), dynamic(r.v)
		if !a.IsValid() || !b.IsValid() {
			return !a.IsValid() && !b.IsValid(), nil
		}
		if a.Type() != b.Type() {
			return false, nil
		}
		if !a.Type().Comparable() {
			return false, ev.fault(x, "comparing uncomparable type %s", a.Type())
		}
		return a.Interface() == b.Interface(), nil
	}

	l, r, err := ev.unify(x, l, r)
	if err != nil {
		return false, err
	}
	if !l.v.Type().Comparable() {
		return false, ev.shape(x, "%s cannot be compared", l.v.Type())
	}
	return l.v.Interface() == r.v.Interface(), nil
}

// unify gives both operands the same type, converting an untyped side to
// the type of the other.
func (ev *evaluator) unify(x *ast.BinaryExpr, l, r operand) (operand, operand, error) {
	if !l.v.IsValid() || !r.v.IsValid() {
		return l, r, ev.shape(x, "invalid operation: operator %s not defined on nil", x.Op)
	}

	switch {
	case l.untyped && r.untyped:
		t := l.v.Type()
		if rankOf(r.v.Kind()) > rankOf(t.Kind()) {
			t = r.v.Type()
		}
		lv, lok := convertUntyped(l, t)
		rv, rok := convertUntyped(r, t)
		if !lok || !rok {
			return l, r, ev.shape(x, "mismatched types %s and %s", l.v.Type(), r.v.Type())
		}
		return operand{v: lv, untyped: true}, operand{v: rv, untyped: true}, nil

	case l.untyped:
		v, ok := convertUntyped(l, r.v.Type())
		if !ok {
			return l, r, ev.shape(x.X, "cannot use %s as %s", l.v.Type(), r.v.Type())
		}
		return typed(v), r, nil

	case r.untyped:
		v, ok := convertUntyped(r, l.v.Type())
		if !ok {
			return l, r, ev.shape(x.Y, "cannot use %s as %s", r.v.Type(), l.v.Type())
		}
		return l, typed(v), nil
	}

	if l.v.Type() != r.v.Type() {
		return l, r, ev.shape(x, "mismatched types %s and %s", l.v.Type(), r.v.Type())
	}
	return l, r, nil
}

func (ev *evaluator) arith(x *ast.BinaryExpr, a, b reflect.Value) (reflect.Value, error) {
	out := reflect.New(a.Type()).Elem()
	k := a.Kind()
	switch {
	case isInt(k):
		p, q := a.Int(), b.Int()
		if (x.Op == token.QUO || x.Op == token.REM) && q == 0 {
			return out, ev.fault(x, "integer divide by zero")
		}
		out.SetInt(intOp(x.Op, p, q))
	case isUint(k):
		p, q := a.Uint(), b.Uint()
		if (x.Op == token.QUO || x.Op == token.REM) && q == 0 {
			return out, ev.fault(x, "integer divide by zero")
		}
		out.SetUint(intOp(x.Op, p, q))
	case isFloat(k):
		if x.Op == token.REM {
			return out, ev.shape(x, "operator %% not defined on %s", a.Type())
		}
		out.SetFloat(floatOp(x.Op, a.Float(), b.Float()))
	case isComplex(k):
		if x.Op == token.REM {
			return out, ev.shape(x, "operator %% not defined on %s", a.Type())
		}
		out.SetComplex(floatOp(x.Op, a.Complex(), b.Complex()))
	case k == reflect.String && x.Op == token.ADD:
		out.SetString(a.String() + b.String())
	default:
		return out, ev.shape(x, "operator %s not defined on %s", x.Op, a.Type())
	}
	return out, nil
}

func intOp[T int64 | uint64](op token.Token, a, b T) T {
	switch op {
	case token.ADD:
		return a + b
	case token.SUB:
		return a - b
	case token.MUL:
		return a * b
	case token.QUO:
		return a / b
	default:
		return a % b
	}
}

func floatOp[T float64 | complex128](op token.Token, a, b T) T {
	switch op {
	case token.ADD:
		return a + b
	case token.SUB:
		return a - b
	case token.MUL:
		return a * b
	default:
		return a / b
	}
}

func ordered(op token.Token, a, b reflect.Value) (bool, bool) {
	k := a.Kind()
	switch {
	case isInt(k):
		return compare(op, a.Int(), b.Int()), true
	case isUint(k):
		return compare(op, a.Uint(), b.Uint()), true
	case isFloat(k):
		return compare(op, a.Float(), b.Float()), true
	case k == reflect.String:
		return compare(op, a.String(), b.String()), true
	}
	return false, false
}

func compare[T cmp.Ordered](op token.Token, a, b T) bool {
	switch op {
	case token.LSS:
		return a < b
	case token.LEQ:
		return a <= b
	case token.GTR:
		return a > b
	default:
		return a >= b
	}
}

// assign converts o for use where a value of type t is expected.
func assign(o operand, t reflect.Type) (reflect.Value, bool) {
	if o.untyped {
		return convertUntyped(o, t)
	}
	if !o.v.IsValid() {
		if nilable(t.Kind()) {
			return reflect.Zero(t), true
		}
		return reflect.Value{}, false
	}
	if !o.v.Type().AssignableTo(t) {
		return reflect.Value{}, false
	}
	return o.v, true
}

func convertUntyped(o operand, t reflect.Type) (reflect.Value, bool) {
	if !o.v.IsValid() {
		if nilable(t.Kind()) {
			return reflect.Zero(t), true
		}
		return reflect.Value{}, false
	}
	c, ok := toConst(o.v)
	if !ok {
		return reflect.Value{}, false
	}
	return constValue(c, t)
}

func toConst(v reflect.Value) (constant.Value, bool) {
	k := v.Kind()
	switch {
	case k == reflect.Bool:
		return constant.MakeBool(v.Bool()), true
	case k == reflect.String:
		return constant.MakeString(v.String()), true
	case isInt(k):
		return constant.MakeInt64(v.Int()), true
	case isUint(k):
		return constant.MakeUint64(v.Uint()), true
	case isFloat(k):
		return constant.MakeFloat64(v.Float()), true
	case isComplex(k):
		z := v.Complex()
		return constant.BinaryOp(
			constant.MakeFloat64(real(z)), token.ADD,
			constant.MakeImag(constant.MakeFloat64(imag(z))),
		), true
	}
	return nil, false
}

func toInt(o operand) (int, bool) {
	v := o.v
	if !v.IsValid() {
		return 0, false
	}
	switch {
	case isInt(v.Kind()):
		return int(v.Int()), true
	case isUint(v.Kind()):
		return int(v.Uint()), true
	case o.untyped && isFloat(v.Kind()):
		f := v.Float()
		if f == float64(int(f)) {
			return int(f), true
		}
	}
	return 0, false
}

// rankOf orders untyped constant kinds: integer, rune, float, complex.
func rankOf(k reflect.Kind) int {
	switch k {
	case reflect.Int:
		return 1
	case reflect.Int32:
		return 2
	case reflect.Float64:
		return 3
	case reflect.Complex128:
		return 4
	}
	return 0
}

func isInt(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUint(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isComplex(k reflect.Kind) bool {
	return k == reflect.Complex64 || k == reflect.Complex128
}

func numeric(k reflect.Kind) bool {
	return isInt(k) || isUint(k) || isFloat(k) || isComplex(k)
}
