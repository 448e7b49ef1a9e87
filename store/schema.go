package store

// schemaSQL is the DDL for all tables.
const schemaSQL = `
-- One row per pipeline pass
CREATE TABLE IF NOT EXISTS runs (
    id TEXT PRIMARY KEY,
    pass TEXT NOT NULL,
    task_group TEXT,
    source TEXT,
    chunk_size INTEGER NOT NULL,
    term_count INTEGER DEFAULT 0,
    attempted INTEGER DEFAULT 0,
    failed INTEGER DEFAULT 0,
    items INTEGER DEFAULT 0,
    status TEXT DEFAULT 'running',
    model TEXT,
    metadata JSON,
    created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
    finished_at DATETIME
);

-- Per-chunk outcome of a run
CREATE TABLE IF NOT EXISTS chunk_outcomes (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    chunk_index INTEGER NOT NULL,
    category TEXT,
    category_chunk INTEGER,
    term_count INTEGER,
    state TEXT NOT NULL,
    error_kind TEXT,
    error TEXT,
    item_count INTEGER DEFAULT 0,
    elapsed_ms INTEGER DEFAULT 0,
    PRIMARY KEY (run_id, chunk_index)
);

-- Category keys in insertion order (kept separately so empty categories survive)
CREATE TABLE IF NOT EXISTS categories (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    name TEXT NOT NULL,
    PRIMARY KEY (run_id, position)
);

CREATE TABLE IF NOT EXISTS category_terms (
    run_id TEXT NOT NULL,
    category_position INTEGER NOT NULL,
    position INTEGER NOT NULL,
    term TEXT NOT NULL,
    PRIMARY KEY (run_id, category_position, position),
    FOREIGN KEY (run_id, category_position) REFERENCES categories(run_id, position) ON DELETE CASCADE
);

-- Parent/child relations in discovery order, duplicates allowed
CREATE TABLE IF NOT EXISTS relations (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    parent TEXT NOT NULL,
    child TEXT NOT NULL,
    PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_task_group ON runs(task_group, pass, created_at);
`
