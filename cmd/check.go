package cmd

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/gnolang/coerce/formatter"
	"github.com/gnolang/coerce/internal/check"
)

var (
	jsonOutput bool
	outPath    string
)

var checkCmd = &cobra.Command{
	Use:   "check [packages...]",
	Short: "Report malformed patterns and results at coerce call sites",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		issues, err := check.Run(ctx, logger, dir, cfg.BuildTag, args...)
		if err != nil {
			return err
		}
		logger.Debug("check finished", zap.Int("issues", len(issues)))

		w := cmd.OutOrStdout()
		if outPath != "" {
			f, err := os.Create(outPath)
			if err != nil {
				return err
			}
			defer f.Close()
			w = f
		}

		if jsonOutput {
			err = formatter.PrintJSON(w, issues)
		} else {
			err = formatter.Print(w, issues)
		}
		if err != nil {
			return err
		}
		if len(issues) > 0 {
			return errIssues
		}
		return nil
	},
}

func init() {
	checkCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output issues in JSON format")
	checkCmd.Flags().StringVarP(&outPath, "output", "o", "", "Write issues to this file")
	checkCmd.Flags().StringVarP(&dir, "dir", "C", ".", "Directory to resolve packages from")
}
