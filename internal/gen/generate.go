package gen

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"go/types"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/packages"
)

// LoadMode is what the generator needs from go/packages.
const LoadMode = packages.NeedName | packages.NeedFiles | packages.NeedSyntax |
	packages.NeedTypes | packages.NeedTypesInfo | packages.NeedImports | packages.NeedDeps

// Result is the outcome for one package.
type Result struct {
	PkgPath string
	Output  string // path of the generated file
	Source  []byte
	Funcs   int
	Written bool // the file changed on disk
	Removed bool // a stale generated file was deleted
	Err     error
}

// Generate loads the packages matching patterns under dir with the
// generator build tag and writes a generated file next to every package
// that declares directives. Errors of individual packages are reported in
// their Result.
func (g *Generator) Generate(ctx context.Context, dir string, patterns ...string) ([]Result, error) {
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	pkgs, err := g.Load(ctx, dir, patterns...)
	if err != nil {
		return nil, err
	}

	var bar *progressbar.ProgressBar
	if len(pkgs) > 1 && !g.DryRun {
		bar = progressbar.NewOptions(len(pkgs),
			progressbar.OptionSetDescription("coercegen"),
			progressbar.OptionEnableColorCodes(true),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "[green]=[reset]",
				SaucerHead:    "[green]>[reset]",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}))
	}

	results := make([]Result, len(pkgs))
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for i, pkg := range pkgs {
		i, pkg := i, pkg
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = g.generatePackage(dir, pkg)
			if bar != nil {
				_ = bar.Add(1)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	kept := results[:0]
	for _, r := range results {
		if r.PkgPath != "" {
			kept = append(kept, r)
		}
	}
	return kept, nil
}

// Load loads packages the way Generate sees them.
func (g *Generator) Load(ctx context.Context, dir string, patterns ...string) ([]*packages.Package, error) {
	cfg := &packages.Config{
		Context:    ctx,
		Mode:       LoadMode,
		Dir:        dir,
		BuildFlags: []string{"-tags=" + g.cfg.BuildTag},
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("error loading packages: %w", err)
	}
	g.logger.Debug("loaded packages", zap.String("dir", dir), zap.Int("count", len(pkgs)))
	return pkgs, nil
}

func (g *Generator) generatePackage(root string, pkg *packages.Package) Result {
	if len(pkg.GoFiles) == 0 {
		return Result{}
	}
	dir := filepath.Dir(pkg.GoFiles[0])
	if rel, err := filepath.Rel(root, dir); err == nil && g.cfg.Ignored(rel) {
		g.logger.Debug("ignoring package", zap.String("package", pkg.PkgPath))
		return Result{}
	}

	res := Result{PkgPath: pkg.PkgPath, Output: filepath.Join(dir, g.cfg.Output)}
	if len(pkg.Errors) > 0 {
		errs := make([]error, len(pkg.Errors))
		for i, e := range pkg.Errors {
			errs[i] = e
		}
		res.Err = errors.Join(errs...)
		return res
	}

	src, n, err := g.Emit(Input{
		Fset:   pkg.Fset,
		Files:  pkg.Syntax,
		Pkg:    pkg.Types,
		Info:   pkg.TypesInfo,
		Import: importerFor(pkg),
	})
	if err != nil {
		res.Err = err
		return res
	}
	res.Source, res.Funcs = src, n

	if g.DryRun {
		return res
	}
	if src == nil {
		res.Removed, res.Err = removeStale(res.Output)
		if res.Removed {
			g.logger.Info("removed stale generated file", zap.String("file", res.Output))
		}
		return res
	}
	res.Written, res.Err = writeIfChanged(res.Output, src)
	if res.Written {
		g.logger.Info("generated", zap.String("file", res.Output), zap.Int("funcs", n))
	}
	return res
}

func writeIfChanged(path string, src []byte) (bool, error) {
	old, err := os.ReadFile(path)
	if err == nil && bytes.Equal(old, src) {
		return false, nil
	}
	if err := os.WriteFile(path, src, 0o644); err != nil {
		return false, fmt.Errorf("error writing %s: %w", path, err)
	}
	return true, nil
}

// removeStale deletes path if it is a file this generator wrote.
func removeStale(path string) (bool, error) {
	old, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !bytes.HasPrefix(old, []byte(header)) {
		return false, nil
	}
	return true, os.Remove(path)
}

// importerFor resolves every package reachable from pkg, which covers the
// imports of the generated file.
func importerFor(pkg *packages.Package) types.Importer {
	byPath := make(map[string]*types.Package)
	packages.Visit([]*packages.Package{pkg}, func(p *packages.Package) bool {
		if p.Types != nil {
			byPath[p.PkgPath] = p.Types
		}
		return true
	}, nil)
	for path, p := range pkg.Imports {
		if p.Types != nil {
			byPath[path] = p.Types
		}
	}
	return mapImporter(byPath)
}

type mapImporter map[string]*types.Package

func (m mapImporter) Import(path string) (*types.Package, error) {
	if path == "unsafe" {
		return types.Unsafe, nil
	}
	if p, ok := m[path]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("package %s not loaded", path)
}
