package pattern

import (
	"fmt"
	"go/ast"
	"go/constant"
	"go/token"
	"strings"
)

// NodeKind defines the type of pattern node.
type NodeKind int

const (
	KindWildcard NodeKind = iota
	KindBinding
	KindLiteral
	KindNil
	KindStruct
	KindPointer
	KindSequence
	KindMap
	KindExtract
)

func (k NodeKind) String() string {
	switch k {
	case KindWildcard:
		return "wildcard"
	case KindBinding:
		return "binding"
	case KindLiteral:
		return "literal"
	case KindNil:
		return "nil"
	case KindStruct:
		return "struct"
	case KindPointer:
		return "pointer"
	case KindSequence:
		return "sequence"
	case KindMap:
		return "map"
	case KindExtract:
		return "extract"
	default:
		return "unknown"
	}
}

// Node is a single element of a compiled pattern.
type Node interface {
	Kind() NodeKind
	String() string
	Offset() int // byte offset of the node in the pattern source
}

var (
	_ Node = (*Wildcard)(nil)
	_ Node = (*Binding)(nil)
	_ Node = (*Literal)(nil)
	_ Node = (*Nil)(nil)
	_ Node = (*Struct)(nil)
	_ Node = (*Pointer)(nil)
	_ Node = (*Sequence)(nil)
	_ Node = (*Map)(nil)
	_ Node = (*Extract)(nil)
)

// Wildcard matches any value.
type Wildcard struct {
	pos int
}

func (w *Wildcard) Kind() NodeKind { return KindWildcard }
func (w *Wildcard) String() string { return "_" }
func (w *Wildcard) Offset() int    { return w.pos }

// Binding matches any value and captures it under Name.
type Binding struct {
	Name string
	pos  int
}

func (b *Binding) Kind() NodeKind { return KindBinding }
func (b *Binding) String() string { return b.Name }
func (b *Binding) Offset() int    { return b.pos }

// Literal matches a value equal to a constant.
type Literal struct {
	Value constant.Value
	Text  string      // source text, e.g. -1 or "NY"
	Tok   token.Token // INT, FLOAT, IMAG, CHAR, STRING, or IDENT for booleans
	pos   int
}

func (l *Literal) Kind() NodeKind { return KindLiteral }
func (l *Literal) String() string { return l.Text }
func (l *Literal) Offset() int    { return l.pos }

// Nil matches nil pointers, slices, maps, channels, funcs and interfaces.
type Nil struct {
	pos int
}

func (n *Nil) Kind() NodeKind { return KindNil }
func (n *Nil) String() string { return "nil" }
func (n *Nil) Offset() int    { return n.pos }

// Field is one element of a struct pattern. Name is empty for positional
// elements.
type Field struct {
	Name    string
	Pattern Node
}

// Struct matches a struct value. An empty Type accepts any struct type.
type Struct struct {
	Type       string
	Fields     []Field
	Positional bool
	pos        int
}

func (s *Struct) Kind() NodeKind { return KindStruct }
func (s *Struct) String() string {
	typ := s.Type
	if typ == "" {
		typ = "_"
	}
	parts := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		if f.Name == "" {
			parts[i] = f.Pattern.String()
		} else {
			parts[i] = f.Name + ": " + f.Pattern.String()
		}
	}
	return fmt.Sprintf("%s{%s}", typ, strings.Join(parts, ", "))
}
func (s *Struct) Offset() int { return s.pos }

// Pointer matches a non-nil pointer whose pointee matches Elem.
type Pointer struct {
	Elem Node
	pos  int
}

func (p *Pointer) Kind() NodeKind { return KindPointer }
func (p *Pointer) String() string { return "&" + p.Elem.String() }
func (p *Pointer) Offset() int    { return p.pos }

// Sequence matches a slice, or an array when Array is set, element-wise.
// An empty Elem accepts any element type.
type Sequence struct {
	Elem  string
	Array bool
	Elems []Node
	pos   int
}

func (s *Sequence) Kind() NodeKind { return KindSequence }
func (s *Sequence) String() string {
	elem := s.Elem
	if elem == "" {
		elem = "_"
	}
	prefix := "[]"
	if s.Array {
		prefix = fmt.Sprintf("[%d]", len(s.Elems))
	}
	parts := make([]string, len(s.Elems))
	for i, e := range s.Elems {
		parts[i] = e.String()
	}
	return fmt.Sprintf("%s%s{%s}", prefix, elem, strings.Join(parts, ", "))
}
func (s *Sequence) Offset() int { return s.pos }

// Entry is one key of a map pattern.
type Entry struct {
	Key   *Literal
	Value Node
}

// Map matches a map containing every listed key. Empty Key or Value types
// accept any key or element type.
type Map struct {
	Key     string
	Value   string
	Entries []Entry
	pos     int
}

func (m *Map) Kind() NodeKind { return KindMap }
func (m *Map) String() string {
	key, val := m.Key, m.Value
	if key == "" {
		key = "_"
	}
	if val == "" {
		val = "_"
	}
	parts := make([]string, len(m.Entries))
	for i, e := range m.Entries {
		parts[i] = e.Key.Text + ": " + e.Value.String()
	}
	return fmt.Sprintf("map[%s]%s{%s}", key, val, strings.Join(parts, ", "))
}
func (m *Map) Offset() int { return m.pos }

// Extract is a call-shaped pattern: a built-in or registered extractor, or
// a type test when Name does not name an extractor.
type Extract struct {
	Name string
	Args []Node
	pos  int
}

func (e *Extract) Kind() NodeKind { return KindExtract }
func (e *Extract) String() string {
	parts := make([]string, len(e.Args))
	for i, a := range e.Args {
		parts[i] = a.String()
	}
	return fmt.Sprintf("%s(%s)", e.Name, strings.Join(parts, ", "))
}
func (e *Extract) Offset() int { return e.pos }

// Pattern is a compiled pattern, ready to be matched.
type Pattern struct {
	src        string
	root       Node
	names      []string
	guardAST   ast.Expr
	guardStart int
	guard      *Expr
}

// String returns the pattern source.
func (p *Pattern) String() string { return p.src }

// Root returns the structural part of the pattern.
func (p *Pattern) Root() Node { return p.root }

// Names returns the binding names in the order they appear.
func (p *Pattern) Names() []string {
	out := make([]string, len(p.names))
	copy(out, p.names)
	return out
}

// Guard returns the compiled guard, or nil. Patterns built with Parse carry
// the guard source only.
func (p *Pattern) Guard() *Expr { return p.guard }

// GuardSource returns the source text of the guard and its offset in the
// pattern, or "" and -1 when the pattern has no guard.
func (p *Pattern) GuardSource() (string, int) {
	if p.guardAST == nil {
		return "", -1
	}
	return p.src[p.guardStart:], p.guardStart
}
