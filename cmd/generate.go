package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/coerce/formatter"
	"github.com/gnolang/coerce/internal/gen"
	tt "github.com/gnolang/coerce/internal/types"
)

var (
	dryRun bool
	watch  bool
	dir    string
)

var errIssues = errors.New("issues found")

var generateCmd = &cobra.Command{
	Use:   "generate [packages...]",
	Short: "Write coerce_gen.go for every package declaring directives",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		g := gen.New(cfg, logger)
		g.DryRun = dryRun

		if watch {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			return g.Watch(ctx, dir, args, func(results []gen.Result, err error) {
				if err != nil {
					logger.Error("generation failed", zap.Error(err))
					return
				}
				_ = report(cmd.OutOrStdout(), results, dryRun)
			})
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		results, err := g.Generate(ctx, dir, args...)
		if err != nil {
			return err
		}
		return report(cmd.OutOrStdout(), results, dryRun)
	},
}

func init() {
	generateCmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Print the generated files instead of writing them")
	generateCmd.Flags().BoolVarP(&watch, "watch", "w", false, "Regenerate whenever a Go file changes")
	generateCmd.Flags().StringVarP(&dir, "dir", "C", ".", "Directory to resolve packages from")
}

// report prints the outcome of a run. Directive errors are printed with
// their source, other failures are logged.
func report(w io.Writer, results []gen.Result, dryRun bool) error {
	var issues []tt.Issue
	failed := false
	for _, r := range results {
		var errs gen.Errors
		switch {
		case errors.As(r.Err, &errs):
			issues = append(issues, errs.Issues()...)
			continue
		case r.Err != nil:
			logger.Error("package failed", zap.String("package", r.PkgPath), zap.Error(r.Err))
			failed = true
			continue
		}

		switch {
		case dryRun && r.Source != nil:
			fmt.Fprintf(w, "// %s\n%s\n", r.Output, r.Source)
		case r.Written:
			fmt.Fprintf(w, "wrote %s (%d functions)\n", r.Output, r.Funcs)
		case r.Removed:
			fmt.Fprintf(w, "removed %s\n", r.Output)
		}
	}

	if len(issues) > 0 {
		if err := formatter.Print(w, issues); err != nil {
			return err
		}
		return errIssues
	}
	if failed {
		return errors.New("generation failed")
	}
	return nil
}
