package pattern

import (
	"go/ast"
	"go/constant"
	"go/parser"
	"go/token"
	"go/types"
)

// Parse parses src into a pattern without resolving the names used by its
// guard. Callers that evaluate the guard themselves (the code generator, for
// one) use Parse; everyone else wants Compile.
func Parse(src string) (*Pattern, error) {
	fset := token.NewFileSet()
	x, err := parser.ParseExprFrom(fset, "", src, 0)
	if err != nil {
		return nil, syntaxError(src, err)
	}

	c := &compiler{
		src:  src,
		fset: fset,
		seen: make(map[string]bool),
	}

	structural, guards := splitGuard(x)
	root, err := c.node(structural)
	if err != nil {
		return nil, err
	}

	p := &Pattern{
		src:        src,
		root:       root,
		names:      c.names,
		guardStart: -1,
	}
	if len(guards) > 0 {
		g := guards[0]
		for _, next := range guards[1:] {
			g = &ast.BinaryExpr{X: g, OpPos: next.Pos(), Op: token.LAND, Y: next}
		}
		p.guardAST = g
		p.guardStart = c.offset(guards[0])
	}
	return p, nil
}

// Compile parses src and compiles its guard. Every name used by the guard
// must be bound by the pattern.
func Compile(src string) (*Pattern, error) {
	return CompileIn(src, nil)
}

// CompileIn is like Compile, but the guard may also use the names in scope.
func CompileIn(src string, scope Scope) (*Pattern, error) {
	p, err := Parse(src)
	if err != nil {
		return nil, err
	}
	if p.guardAST == nil {
		return p, nil
	}

	guard, err := newExpr(src, p.guardAST, p.names, scope, true)
	if err != nil {
		return nil, err
	}
	p.guard = guard
	return p, nil
}

// MustCompile is like Compile but panics with the *ExpansionError.
func MustCompile(src string) *Pattern {
	p, err := Compile(src)
	if err != nil {
		panic(err)
	}
	return p
}

// splitGuard separates `pattern && g1 && g2` into the pattern and its
// guards, left to right.
func splitGuard(x ast.Expr) (ast.Expr, []ast.Expr) {
	var guards []ast.Expr
	for {
		bin, ok := x.(*ast.BinaryExpr)
		if !ok || bin.Op != token.LAND {
			break
		}
		guards = append(guards, bin.Y)
		x = bin.X
	}
	for i, j := 0, len(guards)-1; i < j; i, j = i+1, j-1 {
		guards[i], guards[j] = guards[j], guards[i]
	}
	return x, guards
}

type compiler struct {
	src   string
	fset  *token.FileSet
	seen  map[string]bool
	names []string
}

func (c *compiler) offset(n ast.Node) int {
	return c.fset.Position(n.Pos()).Offset
}

func (c *compiler) errorf(kind ErrorKind, n ast.Node, format string, args ...any) *ExpansionError {
	return newError(kind, c.src, c.offset(n), format, args...)
}

func (c *compiler) text(n ast.Node) string {
	start := c.fset.Position(n.Pos()).Offset
	end := c.fset.Position(n.End()).Offset
	return c.src[start:end]
}

func (c *compiler) node(x ast.Expr) (Node, error) {
	pos := c.offset(x)

	switch x := x.(type) {
	case *ast.ParenExpr:
		return c.node(x.X)

	case *ast.Ident:
		switch x.Name {
		case "_":
			return &Wildcard{pos: pos}, nil
		case "nil":
			return &Nil{pos: pos}, nil
		case "true", "false":
			return &Literal{
				Value: constant.MakeBool(x.Name == "true"),
				Text:  x.Name,
				Tok:   token.IDENT,
				pos:   pos,
			}, nil
		}
		if c.seen[x.Name] {
			return nil, c.errorf(ErrDuplicate, x, "%s bound more than once", x.Name)
		}
		c.seen[x.Name] = true
		c.names = append(c.names, x.Name)
		return &Binding{Name: x.Name, pos: pos}, nil

	case *ast.BasicLit:
		return c.literal(x)

	case *ast.UnaryExpr:
		switch x.Op {
		case token.AND:
			elem, err := c.node(x.X)
			if err != nil {
				return nil, err
			}
			return &Pointer{Elem: elem, pos: pos}, nil
		case token.SUB, token.ADD:
			lit, ok := x.X.(*ast.BasicLit)
			if !ok || lit.Kind == token.STRING {
				return nil, c.errorf(ErrUnsupported, x, "%s is not a constant", c.text(x))
			}
			base, err := c.literal(lit)
			if err != nil {
				return nil, err
			}
			base.Value = constant.UnaryOp(x.Op, base.Value, 0)
			base.Text = c.text(x)
			base.pos = pos
			return base, nil
		}

	case *ast.StarExpr:
		elem, err := c.node(x.X)
		if err != nil {
			return nil, err
		}
		return &Pointer{Elem: elem, pos: pos}, nil

	case *ast.CompositeLit:
		return c.composite(x)

	case *ast.CallExpr:
		return c.extract(x)

	case *ast.BinaryExpr:
		switch x.Op {
		case token.LOR:
			return nil, c.errorf(ErrUnsupported, x, "alternative patterns are not supported")
		case token.LAND:
			return nil, c.errorf(ErrUnsupported, x, "a guard must follow the whole pattern")
		}
	}

	return nil, c.errorf(ErrUnsupported, x, "%s is not a pattern", c.text(x))
}

func (c *compiler) literal(lit *ast.BasicLit) (*Literal, error) {
	v := constant.MakeFromLiteral(lit.Value, lit.Kind, 0)
	if v.Kind() == constant.Unknown {
		return nil, c.errorf(ErrSyntax, lit, "malformed literal %s", lit.Value)
	}
	return &Literal{
		Value: v,
		Text:  lit.Value,
		Tok:   lit.Kind,
		pos:   c.offset(lit),
	}, nil
}

// typeText renders a type expression, mapping the blank identifier to "".
func typeText(x ast.Expr) string {
	if id, ok := x.(*ast.Ident); ok && id.Name == "_" {
		return ""
	}
	return types.ExprString(x)
}

func (c *compiler) composite(x *ast.CompositeLit) (Node, error) {
	pos := c.offset(x)

	switch t := x.Type.(type) {
	case nil:
		return nil, c.errorf(ErrUnsupported, x, "composite pattern needs a type, use _{...}")

	case *ast.ArrayType:
		seq := &Sequence{Elem: typeText(t.Elt), pos: pos}
		if t.Len != nil {
			seq.Array = true
			if _, ellipsis := t.Len.(*ast.Ellipsis); !ellipsis {
				n, ok := c.arrayLen(t.Len)
				if !ok {
					return nil, c.errorf(ErrUnsupported, t.Len, "array length must be an integer literal")
				}
				if n != len(x.Elts) {
					return nil, c.errorf(ErrShape, x, "array pattern of length %d lists %d elements", n, len(x.Elts))
				}
			}
		}
		for _, elt := range x.Elts {
			if kv, ok := elt.(*ast.KeyValueExpr); ok {
				return nil, c.errorf(ErrUnsupported, kv, "indexed elements are not supported in sequence patterns")
			}
			n, err := c.node(elt)
			if err != nil {
				return nil, err
			}
			seq.Elems = append(seq.Elems, n)
		}
		return seq, nil

	case *ast.MapType:
		m := &Map{Key: typeText(t.Key), Value: typeText(t.Value), pos: pos}
		keys := make(map[string]bool)
		for _, elt := range x.Elts {
			kv, ok := elt.(*ast.KeyValueExpr)
			if !ok {
				return nil, c.errorf(ErrSyntax, elt, "missing key in map pattern")
			}
			key, err := c.mapKey(kv.Key)
			if err != nil {
				return nil, err
			}
			if keys[key.Value.ExactString()] {
				return nil, c.errorf(ErrDuplicate, kv.Key, "key %s listed more than once", key.Text)
			}
			keys[key.Value.ExactString()] = true
			val, err := c.node(kv.Value)
			if err != nil {
				return nil, err
			}
			m.Entries = append(m.Entries, Entry{Key: key, Value: val})
		}
		return m, nil
	}

	s := &Struct{Type: typeText(x.Type), pos: pos}
	keyed := 0
	fields := make(map[string]bool)
	for _, elt := range x.Elts {
		kv, ok := elt.(*ast.KeyValueExpr)
		if !ok {
			n, err := c.node(elt)
			if err != nil {
				return nil, err
			}
			s.Fields = append(s.Fields, Field{Pattern: n})
			continue
		}
		keyed++
		name, ok := kv.Key.(*ast.Ident)
		if !ok {
			return nil, c.errorf(ErrSyntax, kv.Key, "invalid field name %s", c.text(kv.Key))
		}
		if fields[name.Name] {
			return nil, c.errorf(ErrDuplicate, kv.Key, "field %s listed more than once", name.Name)
		}
		fields[name.Name] = true
		n, err := c.node(kv.Value)
		if err != nil {
			return nil, err
		}
		s.Fields = append(s.Fields, Field{Name: name.Name, Pattern: n})
	}
	if keyed > 0 && keyed != len(x.Elts) {
		return nil, c.errorf(ErrSyntax, x, "mixture of field:value and value elements in struct pattern")
	}
	s.Positional = keyed == 0 && len(x.Elts) > 0
	return s, nil
}

func (c *compiler) arrayLen(x ast.Expr) (int, bool) {
	lit, ok := x.(*ast.BasicLit)
	if !ok || lit.Kind != token.INT {
		return 0, false
	}
	n, ok := constant.Int64Val(constant.MakeFromLiteral(lit.Value, lit.Kind, 0))
	return int(n), ok
}

func (c *compiler) mapKey(x ast.Expr) (*Literal, error) {
	n, err := c.node(x)
	if err != nil {
		return nil, err
	}
	lit, ok := n.(*Literal)
	if !ok {
		return nil, c.errorf(ErrUnsupported, x, "map pattern keys must be constants")
	}
	return lit, nil
}

func (c *compiler) extract(x *ast.CallExpr) (Node, error) {
	if x.Ellipsis.IsValid() {
		return nil, c.errorf(ErrUnsupported, x, "variadic extractor patterns are not supported")
	}

	fun := ast.Unparen(x.Fun)
	switch fun.(type) {
	case *ast.Ident, *ast.SelectorExpr, *ast.StarExpr, *ast.ArrayType, *ast.MapType,
		*ast.IndexExpr, *ast.IndexListExpr, *ast.InterfaceType:
	default:
		return nil, c.errorf(ErrUnsupported, x.Fun, "%s is not an extractor or type", c.text(x.Fun))
	}

	e := &Extract{Name: types.ExprString(fun), pos: c.offset(x)}
	for _, arg := range x.Args {
		n, err := c.node(arg)
		if err != nil {
			return nil, err
		}
		e.Args = append(e.Args, n)
	}

	switch e.Name {
	case "Some":
		if len(e.Args) != 1 {
			return nil, c.errorf(ErrShape, x, "Some takes exactly one pattern")
		}
	case "None":
		if len(e.Args) != 0 {
			return nil, c.errorf(ErrShape, x, "None takes no patterns")
		}
	default:
		if lookupExtractor(e.Name) == nil && len(e.Args) != 1 {
			return nil, c.errorf(ErrShape, x, "type pattern %s takes exactly one pattern", e.Name)
		}
	}
	return e, nil
}
