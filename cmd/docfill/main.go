// Command docfill fills, scans and inspects DOCX templates from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// app holds what the subcommands share once flags are parsed.
type app struct {
	log *zap.Logger
}

func newRootCmd(a *app) *cobra.Command {
	if a.log == nil {
		a.log = zap.NewNop()
	}
	var verbose bool
	root := &cobra.Command{
		Use:           "docfill",
		Short:         "Fill placeholder tokens in DOCX templates",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg := zap.NewProductionConfig()
			cfg.Encoding = "console"
			cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
			cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
			if verbose {
				cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
			}
			l, err := cfg.Build()
			if err != nil {
				return err
			}
			a.log = l
			return nil
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log progress to stderr")
	root.AddCommand(newFillCmd(a), newScanCmd(), newQuestionsCmd())
	return root
}

func main() {
	a := &app{}
	err := newRootCmd(a).Execute()
	_ = a.log.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, "docfill:", err)
		os.Exit(1)
	}
}
