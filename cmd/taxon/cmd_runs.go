package main

import (
	"fmt"
	"log/slog"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/gotaxon/graph"
	"github.com/brunobiangulo/gotaxon/store"
)

func (a *app) runsCmd() *cobra.Command {
	var f store.RunFilter
	cmd := &cobra.Command{
		Use:   "runs [run-id]",
		Short: "List recorded runs, or show one",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				d, err := e.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(out, d)
			}

			runs, err := e.ListRuns(cmd.Context(), f)
			if err != nil {
				return err
			}
			if a.jsonOut {
				if runs == nil {
					runs = []store.Run{}
				}
				return printJSON(out, runs)
			}
			tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPASS\tGROUP\tSTATUS\tCHUNKS\tFAILED\tITEMS\tCREATED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
					r.ID, r.Pass, r.TaskGroup, r.Status, r.Attempted, r.Failed, r.Items, r.CreatedAt)
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&f.Pass, "pass", "", "Only runs of this pass (category, parent_child)")
	cmd.Flags().StringVar(&f.TaskGroup, "task-group", "", "Only runs of this task group")
	cmd.Flags().IntVar(&f.Limit, "limit", 20, "Maximum number of runs")
	return cmd
}

func (a *app) treeCmd() *cobra.Command {
	var term, group string
	var depth int
	cmd := &cobra.Command{
		Use:   "tree [run-id]",
		Short: "Render the hierarchy of a parent/child run",
		Long: `Render the hierarchy of a parent/child run as an indented outline.
Without a run ID the latest finished parent/child run of --task-group is used.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && group == "" {
				return fmt.Errorf("a run ID or --task-group is required")
			}

			e, err := a.openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			out := cmd.OutOrStdout()

			var runID string
			if len(args) == 1 {
				runID = args[0]
			} else {
				run, err := e.LatestRun(cmd.Context(), store.PassParentChild, group)
				if err != nil {
					return err
				}
				runID = run.ID
				slog.Debug("taxon: using latest run", "run_id", runID, "task_group", group)
			}

			h, err := e.Hierarchy(cmd.Context(), runID)
			if err != nil {
				return err
			}

			if term != "" {
				if !h.Has(term) {
					return fmt.Errorf("term %q not in run %s", term, runID)
				}
				fmt.Fprintf(out, "parents:     %v\n", h.Parents(term))
				fmt.Fprintf(out, "ancestors:   %v\n", h.Ancestors(term, depth))
				fmt.Fprintf(out, "children:    %v\n", h.Children(term))
				fmt.Fprintf(out, "descendants: %v\n", h.Descendants(term, depth))
				return nil
			}

			forest := h.Tree()
			if a.jsonOut {
				return printJSON(out, forest)
			}
			if err := graph.Render(out, forest); err != nil {
				return err
			}
			s := h.Stats()
			fmt.Fprintf(cmd.ErrOrStderr(), "%d terms, %d edges (%d duplicates), %d roots, %d components, %d cycles\n",
				s.Terms, s.Edges, s.Duplicates, s.Roots, s.Components, s.Cycles)
			for _, c := range h.Cycles() {
				fmt.Fprintf(cmd.ErrOrStderr(), "cycle: %v\n", c)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&term, "term", "", "Show the neighbourhood of one term instead")
	cmd.Flags().IntVar(&depth, "depth", 0, "Levels for --term (0 = unlimited)")
	cmd.Flags().StringVar(&group, "task-group", "", "Use the latest parent/child run of this task group")
	return cmd
}

func (a *app) rmCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <run-id>...",
		Short: "Delete recorded runs",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := a.openEngine()
			if err != nil {
				return err
			}
			defer e.Close()
			for _, id := range args {
				if err := e.DeleteRun(cmd.Context(), id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			return nil
		},
	}
}
