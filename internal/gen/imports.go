package gen

import (
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	pathpkg "path"
	"strconv"

	"golang.org/x/tools/go/ast/astutil"
)

// importSet holds the imports of the generated file. It starts from the
// imports of the directive files, so result text refers to packages by
// the same names, and grows with packages needed only to spell types.
type importSet struct {
	pkg    *types.Package
	byName map[string]string
	byPath map[string]string
	order  []string
}

func newImportSet(pkg *types.Package) *importSet {
	return &importSet{
		pkg:    pkg,
		byName: make(map[string]string),
		byPath: make(map[string]string),
	}
}

func (s *importSet) addFile(fset *token.FileSet, info *types.Info, f *ast.File) Errors {
	var errs Errors
	for _, imp := range f.Imports {
		path, err := strconv.Unquote(imp.Path.Value)
		if err != nil {
			continue
		}
		var name string
		switch {
		case imp.Name != nil:
			name = imp.Name.Name
		case info != nil && info.PkgNameOf(imp) != nil:
			name = info.PkgNameOf(imp).Name()
		default:
			continue
		}
		if name == "_" {
			continue
		}
		if prev, ok := s.byName[name]; ok && prev != path && name != "." {
			errs = append(errs, &Error{
				Pos: fset.Position(imp.Pos()),
				Msg: fmt.Sprintf("%s is imported as %s in another directive file", prev, name),
			})
			continue
		}
		s.add(name, path)
	}
	return errs
}

func (s *importSet) add(name, path string) {
	if _, ok := s.byPath[path]; ok {
		return
	}
	if name != "." {
		s.byName[name] = path
	}
	s.byPath[path] = name
	s.order = append(s.order, path)
}

// qualifier names packages for types.TypeString, importing them when the
// directive files did not.
func (s *importSet) qualifier(p *types.Package) string {
	if p == s.pkg {
		return ""
	}
	if name, ok := s.byPath[p.Path()]; ok {
		if name == "." {
			return ""
		}
		return name
	}
	name := p.Name()
	for i := 2; ; i++ {
		if _, taken := s.byName[name]; !taken {
			break
		}
		name = fmt.Sprintf("%s%d", p.Name(), i)
	}
	s.add(name, p.Path())
	return name
}

// selector returns the prefix for exported names of the package at path.
func (s *importSet) selector(path string) string {
	name, ok := s.byPath[path]
	if !ok {
		name = pathpkg.Base(path)
		s.add(name, path)
	}
	if name == "." {
		return ""
	}
	return name + "."
}

// apply adds every import to f and removes those f does not use.
func (s *importSet) apply(fset *token.FileSet, f *ast.File) {
	for _, path := range s.order {
		astutil.AddNamedImport(fset, f, s.specName(path), path)
	}
	for _, path := range s.order {
		if s.byPath[path] == "." {
			continue
		}
		if !astutil.UsesImport(f, path) {
			astutil.DeleteNamedImport(fset, f, s.specName(path), path)
		}
	}
}

// specName is the name written in the import spec, empty when it is the
// last path element.
func (s *importSet) specName(path string) string {
	name := s.byPath[path]
	if name == pathpkg.Base(path) {
		return ""
	}
	return name
}
