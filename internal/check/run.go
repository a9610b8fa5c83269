package check

import (
	"context"
	"fmt"
	"go/ast"
	"go/token"
	"go/types"
	"runtime"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/packages"

	tt "github.com/gnolang/coerce/internal/types"
)

// Run loads the packages matching patterns under dir with the directive
// build tag and returns the issues the analyzer finds, sorted by position.
func Run(ctx context.Context, logger *zap.Logger, dir, tag string, patterns ...string) ([]tt.Issue, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(patterns) == 0 {
		patterns = []string{"./..."}
	}
	cfg := &packages.Config{
		Context:    ctx,
		Mode:       packages.NeedName | packages.NeedFiles | packages.NeedSyntax | packages.NeedTypes | packages.NeedTypesInfo,
		Dir:        dir,
		Tests:      true,
		BuildFlags: []string{"-tags=" + tag},
	}
	pkgs, err := packages.Load(cfg, patterns...)
	if err != nil {
		return nil, fmt.Errorf("error loading packages: %w", err)
	}

	var (
		mu     sync.Mutex
		issues []tt.Issue
		seen   = make(map[token.Position]bool)
	)
	eg, ctx := errgroup.WithContext(ctx)
	eg.SetLimit(runtime.NumCPU())
	for _, pkg := range pkgs {
		pkg := pkg
		eg.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			if len(pkg.Errors) > 0 {
				logger.Warn("skipping package with errors",
					zap.String("package", pkg.PkgPath),
					zap.String("error", pkg.Errors[0].Error()))
				return nil
			}
			found, err := RunPackage(pkg.Fset, pkg.Syntax, pkg.Types, pkg.TypesInfo, tag)
			if err != nil {
				return fmt.Errorf("%s: %w", pkg.PkgPath, err)
			}

			mu.Lock()
			defer mu.Unlock()
			// test variants repeat the files of the package under test
			for _, issue := range found {
				if seen[issue.Start] {
					continue
				}
				seen[issue.Start] = true
				issues = append(issues, issue)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(issues, func(i, j int) bool {
		a, b := issues[i].Start, issues[j].Start
		if a.Filename != b.Filename {
			return a.Filename < b.Filename
		}
		return a.Offset < b.Offset
	})
	return issues, nil
}

// RunPackage runs the analyzer over one type-checked package.
func RunPackage(fset *token.FileSet, files []*ast.File, pkg *types.Package, info *types.Info, tag string) ([]tt.Issue, error) {
	var issues []tt.Issue
	pass := &analysis.Pass{
		Analyzer:  Analyzer,
		Fset:      fset,
		Files:     files,
		Pkg:       pkg,
		TypesInfo: info,
		ResultOf:  make(map[*analysis.Analyzer]interface{}),
		Report: func(d analysis.Diagnostic) {
			start := fset.Position(d.Pos)
			end := start
			if d.End.IsValid() {
				end = fset.Position(d.End)
			}
			issues = append(issues, tt.Issue{
				Rule:     Name,
				Category: d.Category,
				Filename: start.Filename,
				Message:  d.Message,
				Severity: tt.SeverityError,
				Start:    start,
				End:      end,
			})
		},
	}

	if _, err := checkFiles(pass, tag); err != nil {
		return nil, err
	}
	return issues, nil
}
