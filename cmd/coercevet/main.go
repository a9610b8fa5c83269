// Command coercevet runs the coerce pattern checker as a standalone vet
// tool:
//
//	go vet -vettool=$(which coercevet) ./...
package main

import (
	"golang.org/x/tools/go/analysis/singlechecker"

	"github.com/gnolang/coerce/internal/check"
)

func main() { singlechecker.Main(check.Analyzer) }
