package eval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/brunobiangulo/gotaxon/taxonomy"
)

// Evaluator runs both taxonomy passes over a dataset and scores the output
// against its gold parts.
type Evaluator struct {
	builder       *taxonomy.Builder
	goldCatsInput bool
}

// NewEvaluator creates a new evaluator.
func NewEvaluator(b *taxonomy.Builder) *Evaluator {
	return &Evaluator{builder: b}
}

// SetGoldCategoryInput feeds the gold category map to the parent/child pass
// instead of the produced one, isolating relation quality from category
// quality.
func (e *Evaluator) SetGoldCategoryInput(on bool) {
	e.goldCatsInput = on
}

// Report holds the results of an evaluation run.
type Report struct {
	Dataset         string                `json:"dataset"`
	Coverage        Coverage              `json:"coverage"`
	Assignments     *Score                `json:"assignments,omitempty"`
	Relations       *RelationScore        `json:"relations,omitempty"`
	CategorySummary taxonomy.Summary      `json:"category_summary"`
	RelationSummary taxonomy.Summary      `json:"relation_summary"`
	Categories      *taxonomy.CategoryMap `json:"categories"`
	Produced        taxonomy.RelationSet  `json:"produced"`
	RunTime         time.Duration         `json:"run_time"`
}

// Run executes the evaluation. Chunk failures are reflected in the summaries
// and the scores; only an unusable dataset is an error.
func (e *Evaluator) Run(ctx context.Context, ds Dataset) (*Report, error) {
	if len(ds.Terms) == 0 && (ds.Categories == nil || !e.goldCatsInput) {
		return nil, fmt.Errorf("dataset %q has no terms to categorize", ds.Name)
	}
	start := time.Now()
	report := &Report{Dataset: ds.Name}
	catchAll := e.builder.Config().CatchAll

	cats := taxonomy.NewCategoryMap()
	if len(ds.Terms) > 0 {
		cr := e.builder.BuildCategories(ctx, ds.Terms)
		cats = cr.Categories
		report.CategorySummary = cr.Summary
	}
	report.Categories = cats
	report.Coverage = ScoreCoverage(ds.Terms, cats, catchAll)
	if ds.Categories != nil && len(ds.Terms) > 0 {
		s := ScoreAssignments(cats, ds.Categories)
		report.Assignments = &s
	}

	input := cats
	if e.goldCatsInput && ds.Categories != nil {
		input = ds.Categories
	}
	rr := e.builder.BuildRelations(ctx, input)
	report.Produced = rr.Relations
	report.RelationSummary = rr.Summary
	if len(ds.Relations) > 0 {
		s := ScoreRelations(rr.Relations, ds.Relations)
		report.Relations = &s
	}
	report.RunTime = time.Since(start)

	attrs := []any{
		"dataset", ds.Name,
		"coverage", fmt.Sprintf("%.2f", report.Coverage.Ratio),
		"elapsed_ms", report.RunTime.Milliseconds(),
	}
	if report.Relations != nil {
		attrs = append(attrs, "relation_f1", fmt.Sprintf("%.2f", report.Relations.F1))
	}
	slog.Info("eval: run complete", attrs...)
	return report, nil
}

// FormatReport produces a human-readable report string.
func FormatReport(r *Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "=== Evaluation Report: %s ===\n", r.Dataset)
	fmt.Fprintf(&b, "Run time: %s\n\n", r.RunTime.Round(time.Millisecond))

	fmt.Fprintf(&b, "Category pass: %d/%d chunks ok\n",
		r.CategorySummary.Attempted-r.CategorySummary.Failed, r.CategorySummary.Attempted)
	fmt.Fprintf(&b, "Relation pass: %d/%d chunks ok\n\n",
		r.RelationSummary.Attempted-r.RelationSummary.Failed, r.RelationSummary.Attempted)

	c := r.Coverage
	fmt.Fprintf(&b, "Coverage:\n")
	fmt.Fprintf(&b, "  Terms:      %d\n", c.Terms)
	fmt.Fprintf(&b, "  Covered:    %d (%.1f%%)\n", c.Covered, c.Ratio*100)
	fmt.Fprintf(&b, "  Catch-all:  %d\n", c.CatchAll)
	if len(c.Missing) > 0 {
		fmt.Fprintf(&b, "  Missing:    %s\n", strings.Join(c.Missing, ", "))
	}
	if len(c.Extraneous) > 0 {
		fmt.Fprintf(&b, "  Extraneous: %s\n", strings.Join(c.Extraneous, ", "))
	}
	fmt.Fprintln(&b)

	if r.Assignments != nil {
		fmt.Fprintf(&b, "Category Assignments:\n")
		writeScore(&b, *r.Assignments)
		fmt.Fprintln(&b)
	}

	if rs := r.Relations; rs != nil {
		fmt.Fprintf(&b, "Relations (%d predicted, %d gold):\n", rs.Predicted, rs.Gold)
		writeScore(&b, rs.Score)
		if rs.Reversed > 0 {
			fmt.Fprintf(&b, "  Reversed:   %d\n", rs.Reversed)
		}
		for _, m := range rs.Missing {
			fmt.Fprintf(&b, "  [MISS] %s\n", m)
		}
		for _, s := range rs.Spurious {
			fmt.Fprintf(&b, "  [EXTRA] %s\n", s)
		}
	}
	return b.String()
}

func writeScore(b *strings.Builder, s Score) {
	fmt.Fprintf(b, "  Precision:  %.2f\n", s.Precision)
	fmt.Fprintf(b, "  Recall:     %.2f\n", s.Recall)
	fmt.Fprintf(b, "  F1:         %.2f\n", s.F1)
}
