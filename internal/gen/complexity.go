package gen

import (
	"go/parser"
	"go/token"
	"sort"

	"github.com/fzipp/gocyclo"
)

// overComplex returns the functions of a generated file whose cyclomatic
// complexity exceeds limit, most complex first.
func overComplex(filename string, src []byte, limit int) (gocyclo.Stats, error) {
	if limit <= 0 {
		return nil, nil
	}
	fset := token.NewFileSet()
	f, err := parser.ParseFile(fset, filename, src, 0)
	if err != nil {
		return nil, err
	}

	var over gocyclo.Stats
	for _, stat := range gocyclo.AnalyzeASTFile(f, fset, nil) {
		if stat.Complexity > limit {
			over = append(over, stat)
		}
	}
	sort.SliceStable(over, func(i, j int) bool {
		return over[i].Complexity > over[j].Complexity
	})
	return over, nil
}
