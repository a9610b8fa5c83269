package check

import (
	"fmt"
	"go/ast"
	"go/token"
	"strings"
)

// ignorePrefix starts a comment that silences diagnostics. It may be
// followed by a colon and a comma-separated list of kinds:
//
//	//coercecheck:ignore
//	//coercecheck:ignore:shape,unbound
const ignorePrefix = "//" + Name + ":ignore"

// ignores holds the suppressed ranges of one file.
type ignores struct {
	scopes []ignoreScope
}

type ignoreScope struct {
	kinds      map[string]struct{} // empty means every kind
	start, end int                 // lines, inclusive
}

// parseIgnores collects the ignore comments of f. A comment before the
// package clause covers the whole file, a trailing comment covers the
// statement or declaration it ends, and a comment on its own line covers
// the statement or declaration starting on the next line.
func parseIgnores(fset *token.FileSet, f *ast.File) *ignores {
	ig := &ignores{}
	var nodes map[int]ast.Node
	packageLine := fset.Position(f.Package).Line

	for _, cg := range f.Comments {
		for _, c := range cg.List {
			kinds, err := parseIgnoreComment(c.Text)
			if err != nil {
				continue
			}
			if nodes == nil {
				nodes = indexByLine(fset, f)
			}
			ig.scopes = append(ig.scopes, scopeOf(fset, f, c, kinds, nodes, packageLine))
		}
	}
	return ig
}

func parseIgnoreComment(text string) (map[string]struct{}, error) {
	rest, ok := strings.CutPrefix(text, ignorePrefix)
	if !ok {
		return nil, fmt.Errorf("not an ignore comment")
	}
	kinds := make(map[string]struct{})
	if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
		return kinds, nil
	}
	if rest[0] != ':' {
		return nil, fmt.Errorf("invalid ignore comment format")
	}
	list, _, _ := strings.Cut(rest[1:], " ")
	for _, k := range strings.Split(list, ",") {
		if k = strings.TrimSpace(k); k != "" {
			kinds[k] = struct{}{}
		}
	}
	if len(kinds) == 0 {
		return nil, fmt.Errorf("invalid ignore comment: no kinds after colon")
	}
	return kinds, nil
}

func scopeOf(fset *token.FileSet, f *ast.File, c *ast.Comment, kinds map[string]struct{}, nodes map[int]ast.Node, packageLine int) ignoreScope {
	pos := fset.Position(c.Slash)
	s := ignoreScope{kinds: kinds, start: pos.Line, end: pos.Line}

	if pos.Line < packageLine {
		s.start, s.end = 1, fset.Position(f.End()).Line
		return s
	}
	if n, ok := nodes[pos.Line]; ok && fset.Position(n.Pos()).Offset < pos.Offset {
		s.start = fset.Position(n.Pos()).Line
		s.end = fset.Position(n.End()).Line
		return s
	}
	if n, ok := nodes[pos.Line+1]; ok {
		s.end = fset.Position(n.End()).Line
	}
	return s
}

// indexByLine maps each line to the first statement or declaration
// starting on it.
func indexByLine(fset *token.FileSet, f *ast.File) map[int]ast.Node {
	nodes := make(map[int]ast.Node)
	ast.Inspect(f, func(n ast.Node) bool {
		switch n.(type) {
		case ast.Stmt, ast.Decl, *ast.ValueSpec:
			line := fset.Position(n.Pos()).Line
			if _, ok := nodes[line]; !ok {
				nodes[line] = n
			}
		}
		return n != nil
	})
	return nodes
}

// covers reports whether a diagnostic of the given kind on line is
// suppressed.
func (ig *ignores) covers(line int, kind string) bool {
	for _, s := range ig.scopes {
		if line < s.start || line > s.end {
			continue
		}
		if len(s.kinds) == 0 {
			return true
		}
		if _, ok := s.kinds[kind]; ok {
			return true
		}
	}
	return false
}
