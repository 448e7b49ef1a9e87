package taxonomy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/brunobiangulo/gotaxon/chunker"
)

// Oracle turns a prompt into free text. Implementations must be safe for
// concurrent use when the category pass runs in parallel.
type Oracle interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// OracleFunc adapts a function to the Oracle interface.
type OracleFunc func(ctx context.Context, prompt string) (string, error)

func (f OracleFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// Config tunes a Builder.
type Config struct {
	// ChunkSize bounds the number of terms per oracle request.
	ChunkSize int `json:"chunk_size" yaml:"chunk_size"`

	// CategoryConcurrency is how many category chunks may be in flight at
	// once. The merged result does not depend on it.
	CategoryConcurrency int `json:"category_concurrency" yaml:"category_concurrency"`

	// CatchAll names the category whose terms are added to every other
	// category's chunks in the parent/child pass.
	CatchAll string `json:"catch_all" yaml:"catch_all"`

	// ValidateTerms fails chunks whose response names terms that were not
	// offered to the oracle.
	ValidateTerms bool `json:"validate_terms" yaml:"validate_terms"`
}

// DefaultConfig returns the reference configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize:           chunker.DefaultSize,
		CategoryConcurrency: 1,
		CatchAll:            DefaultCatchAll,
	}
}

// Builder runs the two extraction passes over a term list.
type Builder struct {
	oracle  Oracle
	prompts PromptBuilder
	chunker *chunker.Chunker
	cfg     Config
}

// NewBuilder creates a Builder. A nil prompts uses the default prompts.
func NewBuilder(oracle Oracle, prompts PromptBuilder, cfg Config) (*Builder, error) {
	if oracle == nil {
		return nil, errors.New("taxonomy: oracle is required")
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = chunker.DefaultSize
	}
	if cfg.ChunkSize < 0 {
		return nil, chunker.ErrInvalidSize
	}
	if cfg.CategoryConcurrency <= 0 {
		cfg.CategoryConcurrency = 1
	}
	if cfg.CatchAll == "" {
		cfg.CatchAll = DefaultCatchAll
	}
	if prompts == nil {
		prompts = NewPrompts("", nil, cfg.CatchAll)
	}
	return &Builder{
		oracle:  oracle,
		prompts: prompts,
		chunker: chunker.New(chunker.Config{Size: cfg.ChunkSize}),
		cfg:     cfg,
	}, nil
}

// Config returns the effective configuration.
func (b *Builder) Config() Config { return b.cfg }

// BuildCategories groups terms into categories. Chunks are classified
// independently, up to CategoryConcurrency at a time, and merged in chunk
// order. A failed chunk is logged and skipped; the result holds whatever
// was merged even when every chunk failed.
func (b *Builder) BuildCategories(ctx context.Context, terms []string) *CategoryResult {
	start := time.Now()
	chunks, _ := b.chunker.Chunk(terms)

	slog.Info("taxonomy: category pass started",
		"terms", len(terms), "chunks", len(chunks),
		"chunk_size", b.cfg.ChunkSize, "concurrency", b.cfg.CategoryConcurrency)

	outcomes := make([]ChunkOutcome, len(chunks))
	parsed := make([]*CategoryMap, len(chunks))

	var g errgroup.Group
	g.SetLimit(b.cfg.CategoryConcurrency)
	for i, chunk := range chunks {
		outcomes[i] = ChunkOutcome{Index: i, CategoryChunk: i, Terms: len(chunk), State: StatePending}
		if err := ctx.Err(); err != nil {
			outcomes[i].fail(err, KindCanceled)
			continue
		}
		g.Go(func() error {
			parsed[i] = b.categorizeChunk(ctx, chunk, &outcomes[i])
			return nil
		})
	}
	_ = g.Wait()

	mem := newMemory()
	for i := range outcomes {
		o := &outcomes[i]
		if o.State != StateParsed {
			slog.Warn("taxonomy: category chunk failed",
				"chunk", o.Index, "kind", o.Kind, "error", o.Err)
			continue
		}
		mem.addCategories(parsed[i])
		o.State = StateMerged
	}

	res := &CategoryResult{
		Categories: mem.categories,
		Outcomes:   outcomes,
		Summary:    summarize(outcomes),
	}
	logSummary("category", res.Summary, start)
	return res
}

func (b *Builder) categorizeChunk(ctx context.Context, chunk []string, o *ChunkOutcome) *CategoryMap {
	if err := ctx.Err(); err != nil {
		o.fail(err, KindCanceled)
		return nil
	}
	start := time.Now()
	defer func() { o.Elapsed = time.Since(start) }()

	o.State = StatePrompted
	raw, err := b.oracle.Generate(ctx, b.prompts.CategoryPrompt(chunk))
	if err != nil {
		o.fail(fmt.Errorf("%w: %w", ErrOracle, err), KindOracle)
		return nil
	}
	m, err := ParseCategories(raw)
	if err != nil {
		o.fail(err, KindParse)
		return nil
	}
	o.State = StateParsed
	if b.cfg.ValidateTerms {
		if err := validateCategories(m, chunk); err != nil {
			o.fail(err, KindValidation)
			return nil
		}
	}
	o.Items = m.TermCount()
	slog.Debug("taxonomy: category chunk parsed",
		"chunk", o.Index, "categories", m.Len(), "terms", o.Items,
		"elapsed", time.Since(start).Round(time.Millisecond))
	return m
}

// subjectPlan is one category of the parent/child pass with its chunks.
type subjectPlan struct {
	category string
	chunks   [][]string
}

// plan lists, in key order, every category except the catch-all, each with
// the catch-all's terms appended before chunking.
func (b *Builder) plan(categories *CategoryMap) []subjectPlan {
	var extra []string
	if categories.Has(b.cfg.CatchAll) {
		extra = categories.Get(b.cfg.CatchAll)
	} else if categories.Len() > 0 {
		slog.Warn("taxonomy: catch-all category missing, relating categories on their own",
			"catch_all", b.cfg.CatchAll)
	}

	var plans []subjectPlan
	for _, cat := range categories.Keys() {
		if cat == b.cfg.CatchAll {
			continue
		}
		own := categories.Get(cat)
		combined := make([]string, 0, len(own)+len(extra))
		combined = append(combined, own...)
		combined = append(combined, extra...)
		chunks, _ := b.chunker.Chunk(combined)
		plans = append(plans, subjectPlan{category: cat, chunks: chunks})
	}
	return plans
}

// BuildRelations finds parent/child relations category by category. Chunks
// run strictly in order and every prompt carries all relations merged
// before it. A failed chunk is logged and skipped.
func (b *Builder) BuildRelations(ctx context.Context, categories *CategoryMap) *RelationResult {
	start := time.Now()
	mem := newMemory()
	mem.addCategories(categories)

	plans := b.plan(mem.categories)
	total := 0
	for _, p := range plans {
		total += len(p.chunks)
	}
	slog.Info("taxonomy: parent/child pass started",
		"categories", len(plans), "chunks", total,
		"chunk_size", b.cfg.ChunkSize, "catch_all", b.cfg.CatchAll)

	outcomes := make([]ChunkOutcome, 0, total)
	for _, p := range plans {
		for j, chunk := range p.chunks {
			o := ChunkOutcome{
				Index:         len(outcomes),
				Category:      p.category,
				CategoryChunk: j,
				Terms:         len(chunk),
				State:         StatePending,
			}
			if err := ctx.Err(); err != nil {
				o.fail(err, KindCanceled)
				outcomes = append(outcomes, o)
				continue
			}

			rs := b.relateChunk(ctx, chunk, mem, &o)
			if o.State == StateParsed {
				mem.addRelations(rs)
				o.State = StateMerged
				slog.Info("taxonomy: chunk processed",
					"progress", fmt.Sprintf("%d/%d", o.Index+1, total),
					"category", p.category, "chunk", j, "relations", len(rs),
					"elapsed", o.Elapsed.Round(time.Millisecond))
			} else {
				slog.Warn("taxonomy: parent/child chunk failed",
					"chunk", j, "category", p.category, "kind", o.Kind, "error", o.Err)
			}
			outcomes = append(outcomes, o)
		}
	}

	res := &RelationResult{
		Relations: mem.Relations(),
		Outcomes:  outcomes,
		Summary:   summarize(outcomes),
	}
	logSummary("parent/child", res.Summary, start)
	return res
}

func (b *Builder) relateChunk(ctx context.Context, chunk []string, mem *Memory, o *ChunkOutcome) RelationSet {
	start := time.Now()
	defer func() { o.Elapsed = time.Since(start) }()

	o.State = StatePrompted
	raw, err := b.oracle.Generate(ctx, b.prompts.RelationPrompt(chunk, mem.Relations()))
	if err != nil {
		o.fail(fmt.Errorf("%w: %w", ErrOracle, err), KindOracle)
		return nil
	}
	rs := ParseRelations(raw)
	o.State = StateParsed
	if b.cfg.ValidateTerms {
		if err := validateRelations(rs, chunk, mem); err != nil {
			o.fail(err, KindValidation)
			return nil
		}
	}
	o.Items = len(rs)
	return rs
}

func logSummary(pass string, s Summary, start time.Time) {
	attrs := []any{
		"pass", pass,
		"attempted", s.Attempted,
		"failed", s.Failed,
		"items", s.Items,
		"elapsed", time.Since(start).Round(time.Millisecond),
	}
	switch {
	case s.AllFailed():
		slog.Error("taxonomy: every chunk failed", attrs...)
	case s.Failed > 0:
		slog.Warn("taxonomy: pass completed with failures", append(attrs, "failed_indices", s.FailedIndices)...)
	default:
		slog.Info("taxonomy: pass completed", attrs...)
	}
}

func termSet(terms []string) map[string]struct{} {
	set := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		set[t] = struct{}{}
	}
	return set
}

// validateCategories checks that every categorized term was in the chunk.
func validateCategories(m *CategoryMap, chunk []string) error {
	universe := termSet(chunk)
	for _, k := range m.Keys() {
		for _, t := range m.Get(k) {
			if _, ok := universe[t]; !ok {
				return fmt.Errorf("%w: %q under %q", ErrValidation, t, k)
			}
		}
	}
	return nil
}

// validateRelations checks both ends of every relation against the chunk
// and the terms of previously merged relations.
func validateRelations(rs RelationSet, chunk []string, mem *Memory) error {
	universe := termSet(chunk)
	for t := range mem.terms() {
		universe[t] = struct{}{}
	}
	for _, r := range rs {
		if _, ok := universe[r.Parent]; !ok {
			return fmt.Errorf("%w: parent %q", ErrValidation, r.Parent)
		}
		if _, ok := universe[r.Child]; !ok {
			return fmt.Errorf("%w: child %q", ErrValidation, r.Child)
		}
	}
	return nil
}
