package gen

import (
	"bytes"
	"fmt"
	"go/ast"
	"go/format"
	"go/parser"
	"go/token"
	"go/types"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

const header = "// Code generated by coercegen. DO NOT EDIT."

// Input is one type-checked package, loaded with the generator build tag.
type Input struct {
	Fset  *token.FileSet
	Files []*ast.File
	Pkg   *types.Package
	Info  *types.Info
	// Import resolves imports when type-checking the package against the
	// generated file. Verification is skipped when it is nil.
	Import types.Importer
}

type Generator struct {
	cfg    Config
	logger *zap.Logger

	// DryRun reports what would be written without touching any file.
	DryRun bool
}

func New(cfg Config, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{cfg: cfg, logger: logger}
}

func (g *Generator) Config() Config { return g.cfg }

// Emit returns the generated file for the package and the number of
// functions in it. The output is nil when the package has no directives.
// Directive problems are returned as Errors.
func (g *Generator) Emit(in Input) ([]byte, int, error) {
	dirs, dirFiles, errs := findDirectives(in.Fset, in.Files, in.Info, g.cfg.BuildTag)
	if len(dirs) == 0 {
		return nil, 0, errs.Err()
	}

	imports := newImportSet(in.Pkg)
	for _, f := range dirFiles {
		errs = append(errs, imports.addFile(in.Fset, in.Info, f)...)
	}

	var funcs bytes.Buffer
	for _, d := range dirs {
		lw, serr := lowerSite(Site{
			Fset:    in.Fset,
			Pkg:     in.Pkg,
			Pos:     d.Pos(),
			In:      d.In,
			Out:     d.Out,
			Pattern: d.Pattern,
			Result:  d.Result,
		}, g.cfg.TempPrefix, imports.qualifier)
		if serr != nil {
			errs = append(errs, d.siteError(in.Fset, serr))
			continue
		}
		g.writeFunc(&funcs, in.Fset, d, lw, imports)
	}
	if len(errs) > 0 {
		return nil, 0, errs
	}

	out, err := g.render(in.Pkg.Name(), funcs.Bytes(), imports)
	if err != nil {
		return nil, 0, err
	}

	if in.Import != nil {
		if errs := g.verify(in, dirs, out); len(errs) > 0 {
			return nil, 0, errs
		}
	}
	g.warnComplexity(in.Pkg.Path(), dirs, out)
	g.logger.Debug("emitted package",
		zap.String("package", in.Pkg.Path()),
		zap.Int("funcs", len(dirs)))
	return out, len(dirs), nil
}

// warnComplexity logs the directives whose generated function is harder
// to follow than the configured limit.
func (g *Generator) warnComplexity(pkgPath string, dirs []*Directive, out []byte) {
	stats, err := overComplex(g.cfg.Output, out, g.cfg.MaxComplexity)
	if err != nil {
		g.logger.Debug("complexity analysis failed", zap.Error(err))
		return
	}
	byName := make(map[string]*Directive, len(dirs))
	for _, d := range dirs {
		byName[d.Name] = d
	}
	for _, stat := range stats {
		fields := []zap.Field{
			zap.String("package", pkgPath),
			zap.String("func", stat.FuncName),
			zap.Int("complexity", stat.Complexity),
			zap.Int("limit", g.cfg.MaxComplexity),
		}
		if d, ok := byName[stat.FuncName]; ok {
			fields = append(fields, zap.String("pattern", d.Pattern))
		}
		g.logger.Warn("generated matcher exceeds complexity limit", fields...)
	}
}

func (d *Directive) siteError(fset *token.FileSet, serr *SiteError) *Error {
	pos := d.patternPos(serr.Offset)
	if serr.InResult {
		pos = d.resultPos(serr.Offset)
	}
	return &Error{Pos: fset.Position(pos), Kind: serr.Kind, Msg: serr.Msg}
}

func (g *Generator) writeFunc(w *bytes.Buffer, fset *token.FileSet, d *Directive, lw *lowered, imports *importSet) {
	pos := fset.Position(d.Pos())
	fmt.Fprintf(w, "\n// %s is generated from %s:%d.\n", d.Name, filepath.Base(pos.Filename), pos.Line)

	out := ""
	if d.Out != nil {
		out = " " + types.TypeString(d.Out, imports.qualifier)
	}
	fmt.Fprintf(w, "func %s(%s %s)%s {\n", d.Name, lw.param, types.TypeString(d.In, imports.qualifier), out)

	depth := 1
	for _, ln := range lw.lines {
		w.WriteString(strings.Repeat("\t", depth))
		w.WriteString(ln.text)
		w.WriteByte('\n')
		if ln.open {
			depth++
		}
	}
	for depth > 1 {
		depth--
		w.WriteString(strings.Repeat("\t", depth))
		w.WriteString("}\n")
	}
	if opened(lw.lines) {
		fmt.Fprintf(w, "\tpanic(%sMismatch(%s, %s, %s))\n",
			imports.selector(CoercePath), strconv.Quote(d.Name), strconv.Quote(d.Pattern), lw.param)
	}
	w.WriteString("}\n")
}

// opened reports whether any line can fall through to the mismatch.
func opened(lines []line) bool {
	for _, ln := range lines {
		if ln.open {
			return true
		}
	}
	return false
}

func (g *Generator) render(pkgName string, funcs []byte, imports *importSet) ([]byte, error) {
	var src bytes.Buffer
	fmt.Fprintf(&src, "%s\n\n//go:build !%s\n\npackage %s\n", header, g.cfg.BuildTag, pkgName)
	src.Write(funcs)

	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, g.cfg.Output, src.Bytes(), parser.ParseComments)
	if err != nil {
		return nil, fmt.Errorf("internal error: generated code does not parse: %w\n%s", err, src.Bytes())
	}
	imports.apply(fset, f)

	var out bytes.Buffer
	if err := format.Node(&out, fset, f); err != nil {
		return nil, fmt.Errorf("formatting generated code: %w", err)
	}
	return out.Bytes(), nil
}

// verify type-checks the package with the generated file in place of the
// directive files, attributing errors in generated code to their directive.
func (g *Generator) verify(in Input, dirs []*Directive, out []byte) Errors {
	var dir string
	var files []*ast.File
	for _, f := range in.Files {
		name := in.Fset.Position(f.Package).Filename
		dir = filepath.Dir(name)
		if IsDirectiveFile(f, g.cfg.BuildTag) || filepath.Base(name) == g.cfg.Output {
			continue
		}
		files = append(files, f)
	}

	gf, err := parser.ParseFile(in.Fset, filepath.Join(dir, g.cfg.Output), out, parser.ParseComments)
	if err != nil {
		return Errors{{Msg: fmt.Sprintf("internal error: %v", err)}}
	}
	files = append(files, gf)

	byName := make(map[string]*Directive, len(dirs))
	for _, d := range dirs {
		byName[d.Name] = d
	}

	var errs Errors
	conf := types.Config{
		Importer: in.Import,
		Error: func(err error) {
			te, ok := err.(types.Error)
			if !ok {
				errs = append(errs, &Error{Msg: err.Error()})
				return
			}
			if d := enclosing(gf, te.Pos, byName); d != nil {
				errs = append(errs, &Error{
					Pos: in.Fset.Position(d.Pos()),
					Msg: fmt.Sprintf("generated %s does not compile: %s", d.Name, te.Msg),
				})
				return
			}
			errs = append(errs, &Error{
				Pos: in.Fset.Position(te.Pos),
				Msg: fmt.Sprintf("package does not compile with generated code: %s", te.Msg),
			})
		},
	}
	_, _ = conf.Check(in.Pkg.Path(), in.Fset, files, nil)
	return errs
}

func enclosing(f *ast.File, pos token.Pos, dirs map[string]*Directive) *Directive {
	if pos < f.Pos() || pos > f.End() {
		return nil
	}
	for _, decl := range f.Decls {
		fd, ok := decl.(*ast.FuncDecl)
		if ok && fd.Pos() <= pos && pos <= fd.End() {
			return dirs[fd.Name.Name]
		}
	}
	return nil
}
