//go:build cgo

package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/brunobiangulo/gotaxon/taxonomy"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestRun(t *testing.T, s *Store, pass, taskGroup string) string {
	t.Helper()
	id, err := s.CreateRun(context.Background(), Run{
		Pass:      pass,
		TaskGroup: taskGroup,
		Source:    "data/" + taskGroup + "/train_data.txt",
		ChunkSize: 200,
		TermCount: 3,
		Model:     "gemini-2.5-pro",
	})
	if err != nil {
		t.Fatalf("creating run: %v", err)
	}
	return id
}

// ---------------------------------------------------------------------------
// Schema / construction
// ---------------------------------------------------------------------------

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.DB() == nil {
		t.Fatal("expected non-nil *sql.DB")
	}
}

func TestNewCreatesParentDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sub", "dir")
	s, err := New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("creating store in nested dir: %v", err)
	}
	s.Close()
}

func TestMigrateIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	var version int
	if err := s.DB().QueryRowContext(ctx, "SELECT MAX(version) FROM schema_version").Scan(&version); err != nil {
		t.Fatalf("reading version: %v", err)
	}
	if version != migrations[len(migrations)-1].version {
		t.Errorf("version = %d, want %d", version, migrations[len(migrations)-1].version)
	}

	var n int
	if err := s.DB().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name LIKE 'idx_relations_%'").Scan(&n); err != nil {
		t.Fatalf("reading indexes: %v", err)
	}
	if n != 2 {
		t.Errorf("relation indexes = %d, want 2", n)
	}
	if _, err := s.DB().ExecContext(ctx, "UPDATE runs SET oracle_calls = 0, prompt_tokens = 0, completion_tokens = 0"); err != nil {
		t.Errorf("usage columns missing: %v", err)
	}
}

func TestReopenKeepsData(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	s, err := New(dbPath)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	id, err := s.CreateRun(context.Background(), Run{Pass: PassCategory, ChunkSize: 10})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	s.Close()

	s, err = New(dbPath)
	if err != nil {
		t.Fatalf("reopening: %v", err)
	}
	defer s.Close()
	if _, err := s.GetRun(context.Background(), id); err != nil {
		t.Fatalf("GetRun after reopen: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Runs
// ---------------------------------------------------------------------------

func TestCreateAndGetRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := newTestRun(t, s, PassCategory, "food")
	if len(id) != 36 {
		t.Errorf("id = %q, want a UUID", id)
	}

	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Pass != PassCategory || got.TaskGroup != "food" || got.Status != StatusRunning {
		t.Errorf("run = %+v", got)
	}
	if got.CreatedAt == "" || got.FinishedAt != "" {
		t.Errorf("timestamps = %q / %q", got.CreatedAt, got.FinishedAt)
	}
}

func TestCreateRunKeepsGivenID(t *testing.T) {
	s := newTestStore(t)
	id, err := s.CreateRun(context.Background(), Run{ID: "fixed", Pass: PassParentChild, ChunkSize: 1})
	if err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	if id != "fixed" {
		t.Errorf("id = %q, want fixed", id)
	}
}

func TestGetRunNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetRun(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestFinishRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := newTestRun(t, s, PassCategory, "food")

	if err := s.FinishRun(ctx, id, RunResult{
		Status:       StatusPartial,
		Attempted:    3,
		Failed:       1,
		Items:        40,
		OracleCalls:  3,
		PromptTokens: 900,
	}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}

	got, err := s.GetRun(ctx, id)
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if got.Status != StatusPartial || got.Attempted != 3 || got.Failed != 1 || got.Items != 40 {
		t.Errorf("run = %+v", got)
	}
	if got.OracleCalls != 3 || got.PromptTokens != 900 {
		t.Errorf("usage = %d/%d", got.OracleCalls, got.PromptTokens)
	}
	if got.FinishedAt == "" {
		t.Error("finished_at not set")
	}

	if err := s.FinishRun(ctx, "missing", RunResult{Status: StatusFailed}); !errors.Is(err, ErrNotFound) {
		t.Errorf("FinishRun(missing) err = %v, want ErrNotFound", err)
	}
}

func TestListRunsFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first := newTestRun(t, s, PassCategory, "food")
	second := newTestRun(t, s, PassParentChild, "food")
	third := newTestRun(t, s, PassCategory, "chem")

	all, err := s.ListRuns(ctx, RunFilter{})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	var ids []string
	for _, r := range all {
		ids = append(ids, r.ID)
	}
	if diff := cmp.Diff([]string{third, second, first}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}

	food, err := s.ListRuns(ctx, RunFilter{TaskGroup: "food", Pass: PassCategory})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(food) != 1 || food[0].ID != first {
		t.Errorf("filtered = %+v", food)
	}

	limited, err := s.ListRuns(ctx, RunFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("limited = %d runs, want 2", len(limited))
	}
}

func TestLatestRunSkipsRunning(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	done := newTestRun(t, s, PassCategory, "food")
	if err := s.FinishRun(ctx, done, RunResult{Status: StatusCompleted}); err != nil {
		t.Fatalf("FinishRun: %v", err)
	}
	newTestRun(t, s, PassCategory, "food") // still running

	got, err := s.LatestRun(ctx, PassCategory, "food")
	if err != nil {
		t.Fatalf("LatestRun: %v", err)
	}
	if got.ID != done {
		t.Errorf("LatestRun = %s, want %s", got.ID, done)
	}

	if _, err := s.LatestRun(ctx, PassParentChild, "food"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// Outcomes, categories, relations
// ---------------------------------------------------------------------------

func TestOutcomesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := newTestRun(t, s, PassParentChild, "food")

	in := []taxonomy.ChunkOutcome{
		{Index: 0, Category: "Fruit", CategoryChunk: 0, Terms: 200, State: taxonomy.StateMerged, Items: 12, Elapsed: 1500 * time.Millisecond},
		{Index: 1, Category: "Fruit", CategoryChunk: 1, Terms: 17, State: taxonomy.StateFailed, Kind: taxonomy.KindOracle, Error: "taxonomy: oracle call failed: timeout"},
	}
	if err := s.SaveOutcomes(ctx, id, in); err != nil {
		t.Fatalf("SaveOutcomes: %v", err)
	}

	got, err := s.GetOutcomes(ctx, id)
	if err != nil {
		t.Fatalf("GetOutcomes: %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("outcomes mismatch (-want +got):\n%s", diff)
	}
}

func TestCategoriesRoundTripKeepsOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := newTestRun(t, s, PassCategory, "food")

	in := taxonomy.NewCategoryMap()
	in.Set("Zoology", []string{"Cat", "Dog", "Cat"})
	in.Set("Other", []string{})
	in.Set("Anatomy", []string{"Heart"})
	if err := s.SaveCategories(ctx, id, in); err != nil {
		t.Fatalf("SaveCategories: %v", err)
	}

	got, err := s.GetCategories(ctx, id)
	if err != nil {
		t.Fatalf("GetCategories: %v", err)
	}
	if diff := cmp.Diff(in.Keys(), got.Keys()); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	for _, k := range in.Keys() {
		if diff := cmp.Diff(in.Get(k), got.Get(k)); diff != "" {
			t.Errorf("%s mismatch (-want +got):\n%s", k, diff)
		}
	}
}

func TestRelationsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := newTestRun(t, s, PassParentChild, "food")

	in := taxonomy.RelationSet{{"Food", "Fruit"}, {"Fruit", "Apple"}, {"Food", "Fruit"}}
	if err := s.SaveRelations(ctx, id, in); err != nil {
		t.Fatalf("SaveRelations: %v", err)
	}

	got, err := s.GetRelations(ctx, id)
	if err != nil {
		t.Fatalf("GetRelations: %v", err)
	}
	if diff := cmp.Diff(in, got); diff != "" {
		t.Errorf("relations mismatch (-want +got):\n%s", diff)
	}

	byTerm, err := s.RelationsByTerm(ctx, id, "Apple")
	if err != nil {
		t.Fatalf("RelationsByTerm: %v", err)
	}
	if diff := cmp.Diff(taxonomy.RelationSet{{"Fruit", "Apple"}}, byTerm); diff != "" {
		t.Errorf("by term mismatch (-want +got):\n%s", diff)
	}
}

func TestDeleteRunCascades(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	id := newTestRun(t, s, PassCategory, "food")

	cats := taxonomy.NewCategoryMap()
	cats.Set("Fruit", []string{"Apple"})
	if err := s.SaveCategories(ctx, id, cats); err != nil {
		t.Fatalf("SaveCategories: %v", err)
	}
	if err := s.SaveRelations(ctx, id, taxonomy.RelationSet{{"Fruit", "Apple"}}); err != nil {
		t.Fatalf("SaveRelations: %v", err)
	}
	if err := s.SaveOutcomes(ctx, id, []taxonomy.ChunkOutcome{{State: taxonomy.StateMerged}}); err != nil {
		t.Fatalf("SaveOutcomes: %v", err)
	}

	if err := s.DeleteRun(ctx, id); err != nil {
		t.Fatalf("DeleteRun: %v", err)
	}

	stats, err := s.DBStats(ctx)
	if err != nil {
		t.Fatalf("DBStats: %v", err)
	}
	if diff := cmp.Diff(&DBStats{}, stats); diff != "" {
		t.Errorf("stats after delete (-want +got):\n%s", diff)
	}

	if err := s.DeleteRun(ctx, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}
