package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"legalscan/pkg/fill"
	"legalscan/pkg/placeholder"
)

type fillFlags struct {
	answers    string
	family     string
	schemaDir  string
	outDir     string
	suffix     string
	jobs       int
	labelStyle string
	noGuard    bool
	noScope    bool
}

func newFillCmd(a *app) *cobra.Command {
	var f fillFlags
	cmd := &cobra.Command{
		Use:   "fill [flags] template.docx...",
		Short: "Substitute answers into one or more documents",
		Long: `Fills every given document with the same answers and writes
<name><suffix>.docx next to it, or into --out-dir.

Answers are JSON or YAML: a list of {placeholder, answer, index} or a
mapping of placeholder to answer in order. With --family the file maps
schema fields to values instead.

Example:
  docfill fill --answers answers.json safe.docx
  docfill fill --family postmoney_safe --answers deal.yaml --out-dir out/ a.docx b.docx`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFill(cmd, a.log, f, args)
		},
	}
	cmd.Flags().StringVarP(&f.answers, "answers", "a", "", "answers file (JSON or YAML)")
	cmd.Flags().StringVar(&f.family, "family", "", "predefined template family")
	cmd.Flags().StringVar(&f.schemaDir, "schema-dir", "", "directory of extra family schemas")
	cmd.Flags().StringVarP(&f.outDir, "out-dir", "o", "", "output directory (default: next to each input)")
	cmd.Flags().StringVar(&f.suffix, "suffix", "_filled", "suffix added to output file names")
	cmd.Flags().IntVarP(&f.jobs, "jobs", "j", runtime.NumCPU(), "documents filled in parallel")
	cmd.Flags().StringVar(&f.labelStyle, "label-style", "colon", "labeled blank rewrite: colon or dash")
	cmd.Flags().BoolVar(&f.noGuard, "no-currency-guard", false, "fill repeated equal currency values in a block")
	cmd.Flags().BoolVar(&f.noScope, "no-scope", false, "disable party signature block scoping")
	_ = cmd.MarkFlagRequired("answers")
	return cmd
}

type fileResult struct {
	Input  string      `json:"input"`
	Output string      `json:"output"`
	Report fill.Report `json:"report"`
}

func runFill(cmd *cobra.Command, log *zap.Logger, f fillFlags, files []string) error {
	style, err := placeholder.ParseLabelStyle(f.labelStyle)
	if err != nil {
		return err
	}
	opts := fill.DefaultOptions()
	opts.Placeholder.LabelStyle = style
	opts.Placeholder.SuppressRepeatedCurrency = !f.noGuard

	var entries []placeholder.AnswerEntry
	if f.family != "" {
		sch, err := familySchema(f.family, f.schemaDir)
		if err != nil {
			return err
		}
		if entries, err = loadFamilyAnswers(f.answers, sch); err != nil {
			return err
		}
		opts.Scope = placeholder.ScopeRules{}
	} else if entries, err = loadAnswers(f.answers); err != nil {
		return err
	}
	if f.noScope {
		opts.Scope = placeholder.ScopeRules{}
	}
	m, err := placeholder.Normalize(entries)
	if err != nil {
		return err
	}
	log.Debug("answers loaded", zap.Int("keys", m.Len()), zap.Int("files", len(files)))

	if f.outDir != "" {
		if err := os.MkdirAll(f.outDir, 0o755); err != nil {
			return err
		}
	}
	results, err := fillFiles(cmd.Context(), log, files, m, opts, f.outDir, f.suffix, f.jobs)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func outputPath(in, outDir, suffix string) (string, error) {
	ext := filepath.Ext(in)
	name := strings.TrimSuffix(filepath.Base(in), ext) + suffix + ext
	dir := filepath.Dir(in)
	if outDir != "" {
		dir = outDir
	}
	out := filepath.Join(dir, name)
	if filepath.Clean(out) == filepath.Clean(in) {
		return "", fmt.Errorf("%s: output would overwrite the input; set --suffix or --out-dir", in)
	}
	return out, nil
}

// fillFiles fills files concurrently, at most jobs at a time. Results keep
// the input order. The first failure cancels the documents not yet started.
func fillFiles(ctx context.Context, log *zap.Logger, files []string, m placeholder.AnswerMap, opts fill.Options, outDir, suffix string, jobs int) ([]fileResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if jobs < 1 {
		jobs = 1
	}
	outs := make([]string, len(files))
	seen := make(map[string]string, len(files))
	for i, in := range files {
		out, err := outputPath(in, outDir, suffix)
		if err != nil {
			return nil, err
		}
		if prev, dup := seen[out]; dup {
			return nil, fmt.Errorf("%s and %s would both be written to %s", prev, in, out)
		}
		seen[out] = in
		outs[i] = out
	}

	results := make([]fileResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, in := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			data, err := os.ReadFile(in)
			if err != nil {
				return err
			}
			filled, rep, err := fill.FillBytes(data, m, opts)
			if err != nil {
				return fmt.Errorf("%s: %w", in, err)
			}
			if err := os.WriteFile(outs[i], filled, 0o644); err != nil {
				return err
			}
			log.Info("filled",
				zap.String("input", in),
				zap.String("output", outs[i]),
				zap.Int("blocks_changed", rep.BlocksChanged),
				zap.Strings("unused", rep.Unused))
			results[i] = fileResult{Input: in, Output: outs[i], Report: rep}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}
