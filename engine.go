package gotaxon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/brunobiangulo/gotaxon/eval"
	"github.com/brunobiangulo/gotaxon/graph"
	"github.com/brunobiangulo/gotaxon/llm"
	"github.com/brunobiangulo/gotaxon/parser"
	"github.com/brunobiangulo/gotaxon/store"
	"github.com/brunobiangulo/gotaxon/taxonomy"
)

// Engine is the main entry point for building taxonomies.
type Engine interface {
	// Categorize sorts terms into categories, chunk by chunk, and records
	// the run. No terms yield an empty, completed run.
	Categorize(ctx context.Context, terms []string, opts ...RunOption) (*CategoryRun, error)

	// CategorizeFile reads terms from a .txt, .lst, .xlsx, .pdf or .docx file
	// and categorizes them.
	CategorizeFile(ctx context.Context, path string, opts ...RunOption) (*CategoryRun, error)

	// Relate finds parent/child relations inside each category, carrying
	// earlier relations into later prompts. An empty map yields an empty,
	// completed run.
	Relate(ctx context.Context, categories *taxonomy.CategoryMap, opts ...RunOption) (*RelationRun, error)

	// RelateFile reads a category map JSON file, whatever its extension, and
	// relates it.
	RelateFile(ctx context.Context, path string, opts ...RunOption) (*RelationRun, error)

	// Evaluate runs both passes over a gold dataset and scores the output.
	Evaluate(ctx context.Context, ds eval.Dataset, goldCategoryInput bool) (*eval.Report, llm.Usage, error)

	// GetRun returns a persisted run with its outcomes and output.
	GetRun(ctx context.Context, id string) (*RunDetail, error)

	// ListRuns returns persisted runs, newest first.
	ListRuns(ctx context.Context, filter store.RunFilter) ([]store.Run, error)

	// LatestRun returns the newest finished run of a pass for a task group.
	LatestRun(ctx context.Context, pass, taskGroup string) (*store.Run, error)

	// DeleteRun removes a run and everything recorded for it.
	DeleteRun(ctx context.Context, id string) error

	// RunRelations returns the relations of a run that mention any of terms.
	RunRelations(ctx context.Context, runID string, terms ...string) (taxonomy.RelationSet, error)

	// Hierarchy builds the parent/child view of a parent/child run.
	Hierarchy(ctx context.Context, runID string) (*graph.Hierarchy, error)

	// Store returns the underlying store for diagnostic access.
	Store() *store.Store

	// Close cleanly shuts down the engine.
	Close() error
}

// CategoryRun is the result of a category pass plus its run ID.
type CategoryRun struct {
	RunID string `json:"run_id"`
	*taxonomy.CategoryResult
	Usage llm.Usage `json:"usage"`
}

// RelationRun is the result of a parent/child pass plus its run ID.
type RelationRun struct {
	RunID string `json:"run_id"`
	*taxonomy.RelationResult
	Usage llm.Usage `json:"usage"`
}

// RunDetail is a stored run with everything recorded for it.
type RunDetail struct {
	store.Run
	Outcomes   []taxonomy.ChunkOutcome `json:"outcomes"`
	Categories *taxonomy.CategoryMap   `json:"categories,omitempty"`
	Relations  taxonomy.RelationSet    `json:"relations,omitempty"`
}

// RunOption configures a single pass.
type RunOption func(*runOptions)

type runOptions struct {
	taskGroup string
	source    string
	metadata  map[string]string
}

// WithTaskGroup tags the run with the task group it belongs to.
func WithTaskGroup(group string) RunOption {
	return func(o *runOptions) { o.taskGroup = group }
}

// WithSource records where the input came from.
func WithSource(source string) RunOption {
	return func(o *runOptions) { o.source = source }
}

// WithMetadata attaches custom metadata to the run.
func WithMetadata(metadata map[string]string) RunOption {
	return func(o *runOptions) { o.metadata = metadata }
}

// Option configures engine construction.
type Option func(*engineOptions)

type engineOptions struct {
	provider llm.Provider
	prompts  taxonomy.PromptBuilder
}

// WithProvider uses p instead of building a provider from Config.LLM.
func WithProvider(p llm.Provider) Option {
	return func(o *engineOptions) { o.provider = p }
}

// WithPrompts replaces the default prompt builder.
func WithPrompts(pb taxonomy.PromptBuilder) Option {
	return func(o *engineOptions) { o.prompts = pb }
}

// engine is the concrete implementation of Engine.
type engine struct {
	cfg      Config
	store    *store.Store
	provider llm.Provider
	prompts  taxonomy.PromptBuilder
	parsers  *parser.Registry
}

// New creates a new engine with the given configuration.
func New(cfg Config, opts ...Option) (Engine, error) {
	options := &engineOptions{}
	for _, o := range opts {
		o(options)
	}
	if options.provider != nil && cfg.LLM.Provider == "" {
		cfg.LLM.Provider = "custom"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	provider := options.provider
	if provider == nil {
		p, err := llm.NewProvider(cfg.LLM)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrOracleUnavailable, err)
		}
		provider = p
	}

	prompts := options.prompts
	if prompts == nil {
		prompts = taxonomy.NewPrompts(cfg.Domain, cfg.Categories, cfg.CatchAll)
	}

	s, err := store.New(cfg.resolveDBPath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	return &engine{
		cfg:      cfg,
		store:    s,
		provider: provider,
		prompts:  prompts,
		parsers:  parser.NewRegistry(),
	}, nil
}

// newPass builds a fresh oracle and builder so usage counters cover exactly
// one pass.
func (e *engine) newPass() (*taxonomy.Builder, *llm.Oracle, error) {
	oracle := llm.NewOracle(e.provider, e.cfg.LLM.Model, e.cfg.Sampling, e.cfg.OracleTimeout)
	b, err := taxonomy.NewBuilder(oracle, e.prompts, e.cfg.taxonomyConfig())
	if err != nil {
		return nil, nil, err
	}
	return b, oracle, nil
}

func (e *engine) Categorize(ctx context.Context, terms []string, opts ...RunOption) (*CategoryRun, error) {
	if len(terms) == 0 {
		slog.Warn("gotaxon: category pass over no terms")
	}
	b, oracle, err := e.newPass()
	if err != nil {
		return nil, err
	}

	id, err := e.startRun(ctx, store.PassCategory, len(terms), opts)
	if err != nil {
		return nil, err
	}
	res := b.BuildCategories(ctx, terms)
	usage := oracle.Usage()

	err = e.finishRun(ctx, id, res.Outcomes, res.Summary, usage, func(ctx context.Context) error {
		return e.store.SaveCategories(ctx, id, res.Categories)
	})
	if err != nil {
		return nil, err
	}
	return &CategoryRun{RunID: id, CategoryResult: res, Usage: usage}, nil
}

func (e *engine) CategorizeFile(ctx context.Context, path string, opts ...RunOption) (*CategoryRun, error) {
	pr, err := e.parse(ctx, path)
	if err != nil {
		return nil, err
	}
	return e.Categorize(ctx, pr.Terms, append([]RunOption{WithSource(path)}, opts...)...)
}

func (e *engine) Relate(ctx context.Context, categories *taxonomy.CategoryMap, opts ...RunOption) (*RelationRun, error) {
	if categories.Len() == 0 {
		slog.Warn("gotaxon: parent/child pass over no categories")
		categories = taxonomy.NewCategoryMap()
	}
	b, oracle, err := e.newPass()
	if err != nil {
		return nil, err
	}

	id, err := e.startRun(ctx, store.PassParentChild, categories.TermCount(), opts)
	if err != nil {
		return nil, err
	}
	res := b.BuildRelations(ctx, categories)
	usage := oracle.Usage()

	err = e.finishRun(ctx, id, res.Outcomes, res.Summary, usage, func(ctx context.Context) error {
		return e.store.SaveRelations(ctx, id, res.Relations)
	})
	if err != nil {
		return nil, err
	}
	return &RelationRun{RunID: id, RelationResult: res, Usage: usage}, nil
}

func (e *engine) RelateFile(ctx context.Context, path string, opts ...RunOption) (*RelationRun, error) {
	cats, err := ReadCategoryFile(path)
	if err != nil {
		return nil, err
	}
	return e.Relate(ctx, cats, append([]RunOption{WithSource(path)}, opts...)...)
}

func (e *engine) parse(ctx context.Context, path string) (*parser.ParseResult, error) {
	format := parser.FormatOf(path)
	if _, err := e.parsers.Get(format); err != nil {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
	pr, err := e.parsers.ParseFile(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: parsing %s: %w", ErrInvalidInput, path, err)
	}
	slog.Debug("gotaxon: source parsed", "path", path, "format", format, "terms", len(pr.Terms))
	return pr, nil
}

func (e *engine) Evaluate(ctx context.Context, ds eval.Dataset, goldCategoryInput bool) (*eval.Report, llm.Usage, error) {
	b, oracle, err := e.newPass()
	if err != nil {
		return nil, llm.Usage{}, err
	}
	ev := eval.NewEvaluator(b)
	ev.SetGoldCategoryInput(goldCategoryInput)
	report, err := ev.Run(ctx, ds)
	if err != nil {
		return nil, oracle.Usage(), fmt.Errorf("%w: %v", ErrEmptyInput, err)
	}
	return report, oracle.Usage(), nil
}

func (e *engine) startRun(ctx context.Context, pass string, termCount int, opts []RunOption) (string, error) {
	options := &runOptions{}
	for _, o := range opts {
		o(options)
	}
	var metadataJSON string
	if options.metadata != nil {
		data, _ := json.Marshal(options.metadata)
		metadataJSON = string(data)
	}

	id, err := e.store.CreateRun(ctx, store.Run{
		Pass:      pass,
		TaskGroup: options.taskGroup,
		Source:    options.source,
		ChunkSize: e.cfg.taxonomyConfig().ChunkSize,
		TermCount: termCount,
		Model:     e.cfg.LLM.Model,
		Metadata:  metadataJSON,
	})
	if err != nil {
		return "", fmt.Errorf("creating run: %w", err)
	}
	slog.Info("gotaxon: run started", "run", id, "pass", pass, "task_group", options.taskGroup, "terms", termCount)
	return id, nil
}

// finishRun persists outcomes and output, then closes the run. It keeps
// going after the caller's context is canceled so that a partial run is
// still recorded.
func (e *engine) finishRun(ctx context.Context, id string, outcomes []taxonomy.ChunkOutcome,
	sum taxonomy.Summary, usage llm.Usage, saveOutput func(context.Context) error) error {
	canceled := ctx.Err() != nil
	ctx = context.WithoutCancel(ctx)

	if err := e.store.SaveOutcomes(ctx, id, outcomes); err != nil {
		return fmt.Errorf("saving outcomes: %w", err)
	}
	if err := saveOutput(ctx); err != nil {
		return fmt.Errorf("saving output: %w", err)
	}

	status := runStatus(sum, canceled)
	err := e.store.FinishRun(ctx, id, store.RunResult{
		Status:           status,
		Attempted:        sum.Attempted,
		Failed:           sum.Failed,
		Items:            sum.Items,
		OracleCalls:      usage.Calls,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
	})
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	slog.Info("gotaxon: run finished", "run", id, "status", status,
		"attempted", sum.Attempted, "failed", sum.Failed, "items", sum.Items,
		"oracle_calls", usage.Calls)
	return nil
}

func runStatus(sum taxonomy.Summary, canceled bool) string {
	switch {
	case canceled:
		return store.StatusCanceled
	case sum.OK():
		return store.StatusCompleted
	case sum.AllFailed():
		return store.StatusFailed
	default:
		return store.StatusPartial
	}
}

func (e *engine) GetRun(ctx context.Context, id string) (*RunDetail, error) {
	run, err := e.store.GetRun(ctx, id)
	if err != nil {
		return nil, mapNotFound(err, id)
	}
	d := &RunDetail{Run: *run}
	if d.Outcomes, err = e.store.GetOutcomes(ctx, id); err != nil {
		return nil, fmt.Errorf("loading outcomes: %w", err)
	}
	switch run.Pass {
	case store.PassCategory:
		if d.Categories, err = e.store.GetCategories(ctx, id); err != nil {
			return nil, fmt.Errorf("loading categories: %w", err)
		}
	case store.PassParentChild:
		if d.Relations, err = e.store.GetRelations(ctx, id); err != nil {
			return nil, fmt.Errorf("loading relations: %w", err)
		}
	}
	return d, nil
}

func (e *engine) ListRuns(ctx context.Context, filter store.RunFilter) ([]store.Run, error) {
	return e.store.ListRuns(ctx, filter)
}

func (e *engine) LatestRun(ctx context.Context, pass, taskGroup string) (*store.Run, error) {
	run, err := e.store.LatestRun(ctx, pass, taskGroup)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: no finished %s run for task group %q", ErrRunNotFound, pass, taskGroup)
	}
	return run, err
}

func (e *engine) DeleteRun(ctx context.Context, id string) error {
	if err := e.store.DeleteRun(ctx, id); err != nil {
		return mapNotFound(err, id)
	}
	slog.Info("gotaxon: run deleted", "run_id", id)
	return nil
}

func (e *engine) RunRelations(ctx context.Context, runID string, terms ...string) (taxonomy.RelationSet, error) {
	if _, err := e.store.GetRun(ctx, runID); err != nil {
		return nil, mapNotFound(err, runID)
	}
	return e.store.RelationsByTerm(ctx, runID, terms...)
}

func (e *engine) Hierarchy(ctx context.Context, runID string) (*graph.Hierarchy, error) {
	if _, err := e.store.GetRun(ctx, runID); err != nil {
		return nil, mapNotFound(err, runID)
	}
	return graph.FromRun(ctx, e.store, runID)
}

func mapNotFound(err error, id string) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return err
}

// Store returns the underlying store.
func (e *engine) Store() *store.Store {
	return e.store
}

// Close shuts down the engine.
func (e *engine) Close() error {
	return e.store.Close()
}
