package gen

import (
	"errors"
	"fmt"
	"go/ast"
	"go/build/constraint"
	"go/constant"
	"go/token"
	"go/types"
	"strings"
)

// Directive is a package-level
//
//	var name = coerce.Func[In, Out](pattern, result)
//	var name = coerce.AssertFunc[In](pattern)
//
// declared in a file built only with the generator tag.
type Directive struct {
	Name    string
	Assert  bool
	In      types.Type
	Out     types.Type // nil for AssertFunc
	Pattern string
	Result  string

	File *ast.File
	Decl *ast.ValueSpec
	Call *ast.CallExpr

	patternArg ast.Expr
	resultArg  ast.Expr
}

// Pos is the position of the directive name.
func (d *Directive) Pos() token.Pos { return d.Decl.Names[0].Pos() }

// patternPos maps an offset in the pattern text to a file position.
func (d *Directive) patternPos(offset int) token.Pos {
	return TextPos(d.patternArg, offset)
}

func (d *Directive) resultPos(offset int) token.Pos {
	return TextPos(d.resultArg, offset)
}

// TextPos maps an offset in a string constant to a position. Offsets are
// exact for raw strings and for interpreted strings without escapes.
func TextPos(arg ast.Expr, offset int) token.Pos {
	lit, ok := ast.Unparen(arg).(*ast.BasicLit)
	if !ok || offset < 0 {
		return arg.Pos()
	}
	return lit.Pos() + 1 + token.Pos(offset)
}

// Callee returns the coerce function a call refers to, "" if it calls
// anything else.
func Callee(info *types.Info, call *ast.CallExpr) (string, *ast.Ident) {
	fun := ast.Unparen(call.Fun)
	switch f := fun.(type) {
	case *ast.IndexExpr:
		fun = f.X
	case *ast.IndexListExpr:
		fun = f.X
	}

	var id *ast.Ident
	switch f := fun.(type) {
	case *ast.Ident:
		id = f
	case *ast.SelectorExpr:
		id = f.Sel
	default:
		return "", nil
	}

	fn, ok := info.Uses[id].(*types.Func)
	if !ok || fn.Pkg() == nil || fn.Pkg().Path() != CoercePath {
		return "", nil
	}
	return fn.Name(), id
}

// ConstString returns the value of a constant string argument.
func ConstString(info *types.Info, arg ast.Expr) (string, bool) {
	tv, ok := info.Types[arg]
	if !ok || tv.Value == nil || tv.Value.Kind() != constant.String {
		return "", false
	}
	return constant.StringVal(tv.Value), true
}

// IsDirectiveFile reports whether f is only built with tag.
func IsDirectiveFile(f *ast.File, tag string) bool {
	for _, group := range f.Comments {
		if group.Pos() >= f.Package {
			break
		}
		for _, c := range group.List {
			if !constraint.IsGoBuild(c.Text) {
				continue
			}
			x, err := constraint.Parse(c.Text)
			if err != nil {
				return false
			}
			return onlyWith(x, tag)
		}
	}
	return false
}

// maxConstraintTags bounds the assignments onlyWith enumerates.
const maxConstraintTags = 12

// onlyWith reports whether x holds for some assignment of the other tags
// when tag is set and for none when it is not.
func onlyWith(x constraint.Expr, tag string) bool {
	var others []string
	seen := map[string]bool{tag: true}
	x.Eval(func(t string) bool {
		if !seen[t] {
			seen[t] = true
			others = append(others, t)
		}
		return false
	})
	if len(others) > maxConstraintTags {
		return false
	}

	with := false
	for mask := 0; mask < 1<<len(others); mask++ {
		set := func(t string) bool {
			for i, o := range others {
				if o == t {
					return mask&(1<<i) != 0
				}
			}
			return false
		}
		if x.Eval(set) {
			// builds without tag
			return false
		}
		if x.Eval(func(t string) bool { return t == tag || set(t) }) {
			with = true
		}
	}
	return with
}

// findDirectives collects the directives of the files built with tag.
// Calls to Func or AssertFunc that are not proper directives are errors.
func findDirectives(fset *token.FileSet, files []*ast.File, info *types.Info, tag string) ([]*Directive, []*ast.File, Errors) {
	var (
		dirs     []*Directive
		dirFiles []*ast.File
		errs     Errors
	)
	errorf := func(pos token.Pos, format string, args ...any) {
		errs = append(errs, &Error{Pos: fset.Position(pos), Msg: fmt.Sprintf(format, args...)})
	}

	for _, f := range files {
		if !IsDirectiveFile(f, tag) {
			continue
		}
		dirFiles = append(dirFiles, f)

		for _, decl := range f.Decls {
			gd, ok := decl.(*ast.GenDecl)
			if !ok || gd.Tok != token.VAR {
				continue
			}
			for _, spec := range gd.Specs {
				vs := spec.(*ast.ValueSpec)
				for i, value := range vs.Values {
					call, ok := ast.Unparen(value).(*ast.CallExpr)
					if !ok {
						continue
					}
					name, id := Callee(info, call)
					if name != "Func" && name != "AssertFunc" {
						continue
					}
					if len(vs.Names) != 1 {
						errorf(call.Pos(), "directive must be a single var = %s declaration", name)
						continue
					}

					d := &Directive{
						Name:   vs.Names[i].Name,
						Assert: name == "AssertFunc",
						File:   f,
						Decl:   &ast.ValueSpec{Names: []*ast.Ident{vs.Names[i]}, Values: []ast.Expr{value}},
						Call:   call,
					}
					if err := d.fill(info, id); err != nil {
						errorf(call.Pos(), "%v", err)
						continue
					}
					if d.Name == "_" {
						errorf(vs.Names[i].Pos(), "directive needs a name")
						continue
					}
					dirs = append(dirs, d)
				}
			}
		}

		// Func and AssertFunc anywhere else in a directive file cannot be
		// generated.
		ast.Inspect(f, func(n ast.Node) bool {
			fd, ok := n.(*ast.FuncDecl)
			if !ok {
				return true
			}
			ast.Inspect(fd, func(n ast.Node) bool {
				call, ok := n.(*ast.CallExpr)
				if !ok {
					return true
				}
				if name, _ := Callee(info, call); name == "Func" || name == "AssertFunc" {
					errorf(call.Pos(), "%s in a function body is not a directive; declare it at package level", name)
				}
				return true
			})
			return false
		})
	}
	return dirs, dirFiles, errs
}

func (d *Directive) fill(info *types.Info, id *ast.Ident) error {
	inst, ok := info.Instances[id]
	if !ok {
		return errors.New("cannot determine the type arguments")
	}

	want := 2
	if d.Assert {
		want = 1
	}
	if len(d.Call.Args) != want {
		return fmt.Errorf("directive takes exactly %d arguments; options are not supported", want)
	}

	d.In = inst.TypeArgs.At(0)
	if !d.Assert {
		d.Out = inst.TypeArgs.At(1)
	}

	d.patternArg = d.Call.Args[0]
	if d.Pattern, ok = ConstString(info, d.patternArg); !ok {
		return errors.New("pattern must be a constant string")
	}
	if d.Assert {
		return nil
	}

	d.resultArg = d.Call.Args[1]
	if d.Result, ok = ConstString(info, d.resultArg); !ok {
		return errors.New("result must be a constant string")
	}
	if strings.TrimSpace(d.Result) == "" {
		return errors.New("result must not be empty")
	}
	return nil
}
