package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/brunobiangulo/gotaxon/taxonomy"
)

// ErrNotFound is returned when a run ID does not exist.
var ErrNotFound = errors.New("store: not found")

// Pass kinds.
const (
	PassCategory    = "category"
	PassParentChild = "parent_child"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed" // every chunk merged
	StatusPartial   = "partial"   // some chunks failed
	StatusFailed    = "failed"    // every chunk failed
	StatusCanceled  = "canceled"
)

// Run represents a row in the runs table.
type Run struct {
	ID               string `json:"id"`
	Pass             string `json:"pass"`
	TaskGroup        string `json:"task_group,omitempty"`
	Source           string `json:"source,omitempty"`
	ChunkSize        int    `json:"chunk_size"`
	TermCount        int    `json:"term_count"`
	Attempted        int    `json:"attempted"`
	Failed           int    `json:"failed"`
	Items            int    `json:"items"`
	Status           string `json:"status"`
	Model            string `json:"model,omitempty"`
	OracleCalls      int64  `json:"oracle_calls"`
	PromptTokens     int64  `json:"prompt_tokens"`
	CompletionTokens int64  `json:"completion_tokens"`
	Metadata         string `json:"metadata,omitempty"`
	CreatedAt        string `json:"created_at"`
	FinishedAt       string `json:"finished_at,omitempty"`
}

// RunResult is what FinishRun records once a pass is over.
type RunResult struct {
	Status           string
	Attempted        int
	Failed           int
	Items            int
	OracleCalls      int64
	PromptTokens     int64
	CompletionTokens int64
}

// RunFilter narrows ListRuns. Zero fields match everything.
type RunFilter struct {
	Pass      string
	TaskGroup string
	Limit     int
}

// Store wraps the SQLite database for all gotaxon persistence.
type Store struct {
	db *sql.DB
}

// New opens (or creates) a SQLite database at the given path and
// initialises the schema.
func New(dbPath string) (*Store, error) {
	// Ensure parent directory exists
	dir := filepath.Dir(dbPath)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// Create schema
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	// Connection pool settings for SQLite.
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}

	// Run pending migrations.
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced queries.
func (s *Store) DB() *sql.DB {
	return s.db
}

// --- Run operations ---

// CreateRun inserts a run in the running state. An empty ID is replaced by a
// fresh UUID. Returns the run ID.
func (s *Store) CreateRun(ctx context.Context, r Run) (string, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if r.Status == "" {
		r.Status = StatusRunning
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, pass, task_group, source, chunk_size, term_count, status, model, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.Pass, r.TaskGroup, r.Source, r.ChunkSize, r.TermCount, r.Status, r.Model, nullIfEmpty(r.Metadata))
	if err != nil {
		return "", err
	}
	return r.ID, nil
}

// FinishRun records the final counters and status of a run.
func (s *Store) FinishRun(ctx context.Context, id string, res RunResult) error {
	out, err := s.db.ExecContext(ctx, `
		UPDATE runs SET status = ?, attempted = ?, failed = ?, items = ?,
			oracle_calls = ?, prompt_tokens = ?, completion_tokens = ?,
			finished_at = CURRENT_TIMESTAMP
		WHERE id = ?
	`, res.Status, res.Attempted, res.Failed, res.Items,
		res.OracleCalls, res.PromptTokens, res.CompletionTokens, id)
	if err != nil {
		return err
	}
	return expectOneRow(out)
}

const runColumns = `id, pass, task_group, source, chunk_size, term_count, attempted, failed, items,
	status, model, oracle_calls, prompt_tokens, completion_tokens, metadata, created_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*Run, error) {
	r := &Run{}
	var taskGroup, source, model, metadata, finishedAt sql.NullString
	if err := row.Scan(&r.ID, &r.Pass, &taskGroup, &source, &r.ChunkSize, &r.TermCount,
		&r.Attempted, &r.Failed, &r.Items, &r.Status, &model,
		&r.OracleCalls, &r.PromptTokens, &r.CompletionTokens,
		&metadata, &r.CreatedAt, &finishedAt); err != nil {
		return nil, err
	}
	r.TaskGroup = taskGroup.String
	r.Source = source.String
	r.Model = model.String
	r.Metadata = metadata.String
	r.FinishedAt = finishedAt.String
	return r, nil
}

// GetRun retrieves a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx,
		"SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context, f RunFilter) ([]Run, error) {
	var where []string
	var args []interface{}
	if f.Pass != "" {
		where = append(where, "pass = ?")
		args = append(args, f.Pass)
	}
	if f.TaskGroup != "" {
		where = append(where, "task_group = ?")
		args = append(args, f.TaskGroup)
	}

	query := "SELECT " + runColumns + " FROM runs"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, rowid DESC"
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

// LatestRun returns the newest finished run of pass for a task group.
func (s *Store) LatestRun(ctx context.Context, pass, taskGroup string) (*Run, error) {
	r, err := scanRun(s.db.QueryRowContext(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE pass = ? AND task_group = ? AND status != ?
		ORDER BY created_at DESC, rowid DESC LIMIT 1
	`, pass, taskGroup, StatusRunning))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return r, err
}

// DeleteRun removes a run and everything recorded for it.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		// category_terms cascades from categories, not from runs.
		if _, err := tx.ExecContext(ctx, "DELETE FROM category_terms WHERE run_id = ?", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE id = ?", id)
		if err != nil {
			return err
		}
		return expectOneRow(res)
	})
}

// --- Outcome operations ---

// SaveOutcomes stores the per-chunk outcomes of a run, replacing any
// previously saved for it.
func (s *Store) SaveOutcomes(ctx context.Context, runID string, outcomes []taxonomy.ChunkOutcome) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM chunk_outcomes WHERE run_id = ?", runID); err != nil {
			return err
		}
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO chunk_outcomes (run_id, chunk_index, category, category_chunk, term_count,
				state, error_kind, error, item_count, elapsed_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, o := range outcomes {
			if _, err := stmt.ExecContext(ctx, runID, o.Index, nullIfEmpty(o.Category), o.CategoryChunk,
				o.Terms, string(o.State), nullIfEmpty(string(o.Kind)), nullIfEmpty(o.Error),
				o.Items, o.Elapsed.Milliseconds()); err != nil {
				return fmt.Errorf("inserting outcome %d: %w", o.Index, err)
			}
		}
		return nil
	})
}

// GetOutcomes returns the outcomes of a run in chunk order. Err is not
// restored; Error carries its text.
func (s *Store) GetOutcomes(ctx context.Context, runID string) ([]taxonomy.ChunkOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT chunk_index, category, category_chunk, term_count, state, error_kind, error, item_count, elapsed_ms
		FROM chunk_outcomes WHERE run_id = ? ORDER BY chunk_index
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []taxonomy.ChunkOutcome
	for rows.Next() {
		var o taxonomy.ChunkOutcome
		var category, kind, errText sql.NullString
		var state string
		var elapsedMS int64
		if err := rows.Scan(&o.Index, &category, &o.CategoryChunk, &o.Terms, &state,
			&kind, &errText, &o.Items, &elapsedMS); err != nil {
			return nil, err
		}
		o.Category = category.String
		o.State = taxonomy.State(state)
		o.Kind = taxonomy.ErrorKind(kind.String)
		o.Error = errText.String
		o.Elapsed = time.Duration(elapsedMS) * time.Millisecond
		out = append(out, o)
	}
	return out, rows.Err()
}

// --- Category operations ---

// SaveCategories stores a category map, keeping key and term order.
func (s *Store) SaveCategories(ctx context.Context, runID string, m *taxonomy.CategoryMap) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		catStmt, err := tx.PrepareContext(ctx,
			"INSERT INTO categories (run_id, position, name) VALUES (?, ?, ?)")
		if err != nil {
			return err
		}
		defer catStmt.Close()

		termStmt, err := tx.PrepareContext(ctx,
			"INSERT INTO category_terms (run_id, category_position, position, term) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer termStmt.Close()

		for i, name := range m.Keys() {
			if _, err := catStmt.ExecContext(ctx, runID, i, name); err != nil {
				return fmt.Errorf("inserting category %q: %w", name, err)
			}
			for j, term := range m.Get(name) {
				if _, err := termStmt.ExecContext(ctx, runID, i, j, term); err != nil {
					return fmt.Errorf("inserting term %q: %w", term, err)
				}
			}
		}
		return nil
	})
}

// GetCategories rebuilds the category map of a run.
func (s *Store) GetCategories(ctx context.Context, runID string) (*taxonomy.CategoryMap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT c.name, t.term
		FROM categories c
		LEFT JOIN category_terms t ON t.run_id = c.run_id AND t.category_position = c.position
		WHERE c.run_id = ?
		ORDER BY c.position, t.position
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	m := taxonomy.NewCategoryMap()
	var name string
	var terms []string
	started := false
	for rows.Next() {
		var cat string
		var term sql.NullString
		if err := rows.Scan(&cat, &term); err != nil {
			return nil, err
		}
		if !started || cat != name {
			if started {
				m.Set(name, terms)
			}
			name, terms, started = cat, []string{}, true
		}
		if term.Valid {
			terms = append(terms, term.String)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if started {
		m.Set(name, terms)
	}
	return m, nil
}

// --- Relation operations ---

// SaveRelations stores a relation set in order.
func (s *Store) SaveRelations(ctx context.Context, runID string, rs taxonomy.RelationSet) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT INTO relations (run_id, position, parent, child) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i, r := range rs {
			if _, err := stmt.ExecContext(ctx, runID, i, r.Parent, r.Child); err != nil {
				return fmt.Errorf("inserting relation %s: %w", r, err)
			}
		}
		return nil
	})
}

// GetRelations returns the relations of a run in discovery order.
func (s *Store) GetRelations(ctx context.Context, runID string) (taxonomy.RelationSet, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT parent, child FROM relations WHERE run_id = ? ORDER BY position", runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rs := taxonomy.RelationSet{}
	for rows.Next() {
		var r taxonomy.Relation
		if err := rows.Scan(&r.Parent, &r.Child); err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return rs, rows.Err()
}

// RelationsByTerm returns the relations of a run in which term is the
// parent or the child.
func (s *Store) RelationsByTerm(ctx context.Context, runID string, terms ...string) (taxonomy.RelationSet, error) {
	if len(terms) == 0 {
		return taxonomy.RelationSet{}, nil
	}
	in := "?" + repeatPlaceholders(len(terms)-1)
	args := make([]interface{}, 0, 1+2*len(terms))
	args = append(args, runID)
	for _, t := range terms {
		args = append(args, t)
	}
	for _, t := range terms {
		args = append(args, t)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT parent, child FROM relations
		WHERE run_id = ? AND (parent IN (`+in+`) OR child IN (`+in+`))
		ORDER BY position
	`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	rs := taxonomy.RelationSet{}
	for rows.Next() {
		var r taxonomy.Relation
		if err := rows.Scan(&r.Parent, &r.Child); err != nil {
			return nil, err
		}
		rs = append(rs, r)
	}
	return rs, rows.Err()
}

// DBStats holds counts of key database objects.
type DBStats struct {
	Runs       int `json:"runs"`
	Outcomes   int `json:"outcomes"`
	Categories int `json:"categories"`
	Terms      int `json:"terms"`
	Relations  int `json:"relations"`
}

// DBStats returns counts of runs, outcomes, categories, terms and relations.
func (s *Store) DBStats(ctx context.Context) (*DBStats, error) {
	stats := &DBStats{}
	queries := []struct {
		query string
		dest  *int
	}{
		{"SELECT COUNT(*) FROM runs", &stats.Runs},
		{"SELECT COUNT(*) FROM chunk_outcomes", &stats.Outcomes},
		{"SELECT COUNT(*) FROM categories", &stats.Categories},
		{"SELECT COUNT(*) FROM category_terms", &stats.Terms},
		{"SELECT COUNT(*) FROM relations", &stats.Relations},
	}
	for _, q := range queries {
		if err := s.db.QueryRowContext(ctx, q.query).Scan(q.dest); err != nil {
			return nil, fmt.Errorf("counting %s: %w", q.query, err)
		}
	}
	return stats, nil
}

// --- helpers ---

func (s *Store) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func repeatPlaceholders(n int) string {
	s := ""
	for i := 0; i < n; i++ {
		s += ", ?"
	}
	return s
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
