package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/gotaxon/eval"
	"github.com/brunobiangulo/gotaxon/llm"
)

func (a *app) evalCmd() *cobra.Command {
	var goldCats bool
	var reportPath string
	cmd := &cobra.Command{
		Use:   "eval [dataset-file]",
		Short: "Score both passes against a gold taxonomy",
		Long: `Run the category and parent/child passes over a gold dataset (YAML or JSON
with name, terms, categories and "Parent>Child" relations) and report
coverage, category assignment precision/recall and relation precision/recall/F1.

Without a dataset file a small built-in produce taxonomy is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds := eval.SampleDataset()
			if len(args) == 1 {
				var err error
				if ds, err = eval.LoadDataset(args[0]); err != nil {
					return err
				}
			}

			e, err := a.openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := a.context(cmd)
			defer cancel()

			report, usage, err := e.Evaluate(ctx, ds, goldCats)
			if err != nil {
				return err
			}

			if a.jsonOut {
				if err := printJSON(cmd.OutOrStdout(), evalOutput{Report: report, Usage: usage}); err != nil {
					return err
				}
			} else {
				fmt.Fprint(cmd.OutOrStdout(), eval.FormatReport(report))
				fmt.Fprintf(cmd.OutOrStdout(), "\nOracle: %d calls, %d prompt / %d completion tokens\n",
					usage.Calls, usage.PromptTokens, usage.CompletionTokens)
			}

			if reportPath != "" {
				if err := writeReport(reportPath, evalOutput{Report: report, Usage: usage}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "Eval report written to: %s\n", reportPath)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&goldCats, "gold-categories", false, "Relate the gold categories instead of the produced ones")
	cmd.Flags().StringVar(&reportPath, "report", "", "Also write the JSON report to this path")
	return cmd
}

type evalOutput struct {
	*eval.Report
	Usage llm.Usage `json:"usage"`
}

func writeReport(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating report directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

func (a *app) providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported LLM providers and their API key variables",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, p := range llm.Providers() {
				key := llm.APIKeyEnv(p)
				if key == "" {
					key = "-"
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %s\n", p, key)
			}
			return nil
		},
	}
}
