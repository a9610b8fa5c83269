// Package check reports malformed patterns and results at coerce call sites
// before the program runs.
package check

import (
	"errors"
	"fmt"
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"

	"github.com/gnolang/coerce/internal/gen"
	"github.com/gnolang/coerce/pattern"
)

const Name = "coercecheck"

var Analyzer = &analysis.Analyzer{
	Name: Name,
	Doc:  "check coerce patterns, guards and results at their call sites",
	Run:  run,
}

var buildTag string

func init() {
	Analyzer.Flags.StringVar(&buildTag, "tag", gen.DefaultConfig().BuildTag, "build tag of coercegen directive files")
}

// call describes where the pattern and result are among the arguments of
// each coerce entry point, and which type argument is the matched type.
type call struct {
	pattern, result int // argument index, -1 if absent
	fixed           int // arguments before the options
	in              int // type argument index of the matched value
	out             int // type argument index of the result, -1 if absent
}

var calls = map[string]call{
	"Assert":      {pattern: 1, result: -1, fixed: 2, in: 0, out: -1},
	"Coerce":      {pattern: 1, result: 2, fixed: 3, in: 1, out: 0},
	"With":        {pattern: 1, result: -1, fixed: 3, in: 1, out: -1},
	"Try":         {pattern: 1, result: -1, fixed: 2, in: 0, out: -1},
	"Func":        {pattern: 0, result: 1, fixed: 2, in: 0, out: 1},
	"AssertFunc":  {pattern: 0, result: -1, fixed: 1, in: 0, out: -1},
	"MustCompile": {pattern: 0, result: -1, fixed: 1, in: -1, out: -1},
}

func run(pass *analysis.Pass) (interface{}, error) {
	return checkFiles(pass, buildTag)
}

func checkFiles(pass *analysis.Pass, tag string) (interface{}, error) {
	for _, f := range pass.Files {
		directives := gen.IsDirectiveFile(f, tag)
		fp := pass
		if ig := parseIgnores(pass.Fset, f); len(ig.scopes) > 0 {
			fp = filtered(pass, ig)
		}
		ast.Inspect(f, func(n ast.Node) bool {
			c, ok := n.(*ast.CallExpr)
			if !ok {
				return true
			}
			checkCall(fp, c, directives)
			return true
		})
	}
	return nil, nil
}

// filtered returns a copy of pass that drops diagnostics covered by ig.
func filtered(pass *analysis.Pass, ig *ignores) *analysis.Pass {
	fp := *pass
	fp.Report = func(d analysis.Diagnostic) {
		if ig.covers(pass.Fset.Position(d.Pos).Line, d.Category) {
			return
		}
		pass.Report(d)
	}
	return &fp
}

func checkCall(pass *analysis.Pass, c *ast.CallExpr, directive bool) {
	name, id := callee(pass.TypesInfo, c)
	desc, ok := calls[name]
	if !ok || desc.pattern >= len(c.Args) {
		return
	}

	patArg := c.Args[desc.pattern]
	pat, ok := gen.ConstString(pass.TypesInfo, patArg)
	if !ok {
		return
	}
	// directives are checked the way the generator lowers them
	generated := directive && (name == "Func" || name == "AssertFunc")
	// options may bring names into scope for the guard and the result
	strict := len(c.Args) <= desc.fixed && !c.Ellipsis.IsValid() && !generated

	var p *pattern.Pattern
	var err error
	if strict {
		p, err = pattern.Compile(pat)
	} else {
		p, err = pattern.Parse(pat)
	}
	if err != nil {
		report(pass, patArg, err)
		return
	}

	var result string
	if desc.result >= 0 && desc.result < len(c.Args) {
		resArg := c.Args[desc.result]
		if result, ok = gen.ConstString(pass.TypesInfo, resArg); ok && !generated {
			if strict {
				_, err = pattern.CompileExpr(result, p.Names(), nil)
			} else {
				_, err = pattern.ParseExpr(result)
			}
			if err != nil {
				report(pass, resArg, err)
				return
			}
		}
	}

	if desc.in < 0 || id == nil {
		return
	}
	inst, ok := pass.TypesInfo.Instances[id]
	if !ok || desc.in >= inst.TypeArgs.Len() {
		return
	}

	site := gen.Site{
		Fset:    pass.Fset,
		Pkg:     pass.Pkg,
		Pos:     c.Pos(),
		In:      inst.TypeArgs.At(desc.in),
		Pattern: pat,
		Dynamic: !generated,
	}
	if generated && desc.out >= 0 && result != "" {
		site.Out = inst.TypeArgs.At(desc.out)
		site.Result = result
	}
	if serr := gen.Validate(site); serr != nil {
		arg := patArg
		if serr.InResult {
			arg = c.Args[desc.result]
		}
		pass.Report(analysis.Diagnostic{
			Pos:      gen.TextPos(arg, serr.Offset),
			End:      arg.End(),
			Category: serr.Kind.String(),
			Message:  serr.Msg,
		})
	}
}

// callee resolves calls into the coerce package and pattern.MustCompile.
func callee(info *types.Info, c *ast.CallExpr) (string, *ast.Ident) {
	if name, id := gen.Callee(info, c); name != "" {
		return name, id
	}
	sel, ok := ast.Unparen(c.Fun).(*ast.SelectorExpr)
	if !ok {
		return "", nil
	}
	fn, ok := info.Uses[sel.Sel].(*types.Func)
	if !ok || fn.Pkg() == nil || fn.Pkg().Path() != gen.CoercePath+"/pattern" || fn.Name() != "MustCompile" {
		return "", nil
	}
	return "MustCompile", nil
}

func report(pass *analysis.Pass, arg ast.Expr, err error) {
	var ee *pattern.ExpansionError
	if !errors.As(err, &ee) {
		pass.Reportf(arg.Pos(), "%v", err)
		return
	}
	pass.Report(analysis.Diagnostic{
		Pos:      gen.TextPos(arg, ee.Offset),
		End:      arg.End(),
		Category: ee.Kind.String(),
		Message:  fmt.Sprintf("%s: %s", kindText(ee.Kind), ee.Msg),
	})
}

func kindText(k pattern.ErrorKind) string {
	switch k {
	case pattern.ErrSyntax:
		return "malformed pattern"
	case pattern.ErrUnbound:
		return "unbound name"
	case pattern.ErrDuplicate:
		return "duplicate"
	case pattern.ErrUnsupported:
		return "unsupported pattern"
	}
	return "impossible pattern"
}
