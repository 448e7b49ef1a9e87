package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/gotaxon"
	"github.com/brunobiangulo/gotaxon/llm"
	"github.com/brunobiangulo/gotaxon/taxonomy"
)

func (a *app) categorizeCmd() *cobra.Command {
	var out, group string
	cmd := &cobra.Command{
		Use:   "categorize <terms-file>",
		Short: "Sort a term list into categories",
		Long: `Read terms from a .txt/.lst (one per line), .xlsx, .pdf or .docx file and
ask the oracle to categorize them, 200 terms per call by default.

The merged category map is written to --out as indented JSON, or printed
when --out is not given.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := a.context(cmd)
			defer cancel()

			run, err := e.CategorizeFile(ctx, args[0], gotaxon.WithTaskGroup(group))
			if err != nil {
				return err
			}
			if out != "" {
				if err := gotaxon.WriteCategoryFile(out, run.Categories); err != nil {
					return err
				}
			} else if err := printJSON(cmd.OutOrStdout(), run.Categories); err != nil {
				return err
			}
			printSummary(cmd.ErrOrStderr(), run.RunID, run.Summary, run.Usage)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the category map to this file")
	cmd.Flags().StringVar(&group, "task-group", "", "Task group to tag the run with")
	return cmd
}

func (a *app) relateCmd() *cobra.Command {
	var out, group string
	cmd := &cobra.Command{
		Use:   "relate <category-file>",
		Short: "Find parent/child relations inside each category",
		Long: `Read a category map (JSON, as written by categorize) and ask the oracle for
"Parent>Child" relations category by category. Terms of the catch-all
category are offered alongside every other category, and relations found
so far are carried into later prompts.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEngine()
			if err != nil {
				return err
			}
			defer e.Close()

			ctx, cancel := a.context(cmd)
			defer cancel()

			run, err := e.RelateFile(ctx, args[0], gotaxon.WithTaskGroup(group))
			if err != nil {
				return err
			}
			if out != "" {
				if err := gotaxon.WriteRelationFile(out, run.Relations); err != nil {
					return err
				}
			} else if err := printJSON(cmd.OutOrStdout(), relationsOrEmpty(run.Relations)); err != nil {
				return err
			}
			printSummary(cmd.ErrOrStderr(), run.RunID, run.Summary, run.Usage)
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the relations to this file")
	cmd.Flags().StringVar(&group, "task-group", "", "Task group to tag the run with")
	return cmd
}

func relationsOrEmpty(rs taxonomy.RelationSet) taxonomy.RelationSet {
	if rs == nil {
		return taxonomy.RelationSet{}
	}
	return rs
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printSummary(w io.Writer, runID string, s taxonomy.Summary, u llm.Usage) {
	fmt.Fprintf(w, "run %s: %d/%d chunks merged, %d items, %d oracle calls (%d prompt / %d completion tokens)\n",
		runID, s.Attempted-s.Failed, s.Attempted, s.Items, u.Calls, u.PromptTokens, u.CompletionTokens)
	if s.Failed > 0 {
		fmt.Fprintf(w, "failed chunks: %v\n", s.FailedIndices)
	}
}
