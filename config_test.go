package gotaxon

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/brunobiangulo/gotaxon/taxonomy"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.ChunkSize != 200 {
		t.Errorf("ChunkSize = %d, want 200", cfg.ChunkSize)
	}
	if cfg.LLM.Provider != "gemini" || cfg.LLM.Model != "gemini-2.5-pro" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.Sampling.Temperature != 0.1 || cfg.Sampling.TopK != 3 || cfg.Sampling.TopP != 0.9 {
		t.Errorf("Sampling = %+v", cfg.Sampling)
	}
	if cfg.OracleTimeout != 90*time.Second {
		t.Errorf("OracleTimeout = %s", cfg.OracleTimeout)
	}
	if cfg.CatchAll != "Other" {
		t.Errorf("CatchAll = %q", cfg.CatchAll)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	// Categories must be a copy.
	cfg.Categories[0] = "changed"
	if taxonomy.DefaultCategories[0] == "changed" {
		t.Error("DefaultConfig shares the package category slice")
	}
}

func TestLoadConfigYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gotaxon.yaml")
	doc := `
db_path: /tmp/x.db
llm:
  provider: groq
  model: llama-3.3-70b-versatile
  max_retries: 2
sampling:
  temperature: 0.3
  top_k: 5
  top_p: 0.8
chunk_size: 50
category_concurrency: 4
oracle_timeout: 45s
pass_timeout: 1h
categories: [Fruit, Vegetable, Other]
`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DBPath != "/tmp/x.db" || cfg.LLM.Provider != "groq" || cfg.LLM.MaxRetries != 2 {
		t.Errorf("unexpected config %+v", cfg)
	}
	if cfg.ChunkSize != 50 || cfg.CategoryConcurrency != 4 || cfg.OracleTimeout != 45*time.Second {
		t.Errorf("pipeline fields = %d/%d/%s", cfg.ChunkSize, cfg.CategoryConcurrency, cfg.OracleTimeout)
	}
	if cfg.PassTimeout != time.Hour {
		t.Errorf("PassTimeout = %s", cfg.PassTimeout)
	}
	if cfg.Sampling.TopK != 5 {
		t.Errorf("Sampling = %+v", cfg.Sampling)
	}
	if diff := cmp.Diff([]string{"Fruit", "Vegetable", "Other"}, cfg.Categories); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}
	// Untouched fields keep their defaults.
	if cfg.CatchAll != "Other" || cfg.DataDir != "data" {
		t.Errorf("defaults lost: catch_all=%q data_dir=%q", cfg.CatchAll, cfg.DataDir)
	}
}

func TestLoadConfigJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gotaxon.json")
	doc, _ := json.Marshal(map[string]any{"chunk_size": 10, "domain": "culinary"})
	if err := os.WriteFile(path, doc, 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.ChunkSize != 10 || cfg.Domain != "culinary" {
		t.Errorf("got chunk_size=%d domain=%q", cfg.ChunkSize, cfg.Domain)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		return p
	}

	tests := []struct {
		name    string
		path    string
		invalid bool
	}{
		{"missing file", filepath.Join(dir, "nope.yaml"), false},
		{"unknown extension", write("cfg.toml", "x = 1"), true},
		{"bad yaml", write("bad.yaml", "chunk_size: [1"), true},
		{"bad json", write("bad.json", "{"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(tt.path)
			if err == nil {
				t.Fatal("expected error")
			}
			if got := errors.Is(err, ErrInvalidConfig); got != tt.invalid {
				t.Errorf("errors.Is(ErrInvalidConfig) = %v, want %v (%v)", got, tt.invalid, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	t.Setenv("GOTAXON_LLM_PROVIDER", "openai")
	t.Setenv("GOTAXON_LLM_MODEL", "gpt-4o-mini")
	t.Setenv("GOTAXON_CHUNK_SIZE", "25")
	t.Setenv("GOTAXON_ORACLE_TIMEOUT", "2m")
	t.Setenv("GOTAXON_PASS_TIMEOUT", "45m")
	t.Setenv("GOTAXON_CATEGORIES", "A, B ,,C")
	t.Setenv("GOTAXON_VALIDATE_TERMS", "true")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.Model != "gpt-4o-mini" {
		t.Errorf("LLM = %+v", cfg.LLM)
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Errorf("APIKey = %q, want fallback from OPENAI_API_KEY", cfg.LLM.APIKey)
	}
	if cfg.ChunkSize != 25 || cfg.OracleTimeout != 2*time.Minute || !cfg.ValidateTerms {
		t.Errorf("chunk=%d timeout=%s validate=%v", cfg.ChunkSize, cfg.OracleTimeout, cfg.ValidateTerms)
	}
	if cfg.PassTimeout != 45*time.Minute {
		t.Errorf("PassTimeout = %s", cfg.PassTimeout)
	}
	if diff := cmp.Diff([]string{"A", "B", "C"}, cfg.Categories); diff != "" {
		t.Errorf("categories mismatch (-want +got):\n%s", diff)
	}
}

func TestApplyEnvExplicitKeyWins(t *testing.T) {
	t.Setenv("GOTAXON_LLM_API_KEY", "explicit")
	t.Setenv("GEMINI_API_KEY", "fallback")
	cfg := DefaultConfig()
	if err := cfg.ApplyEnv(); err != nil {
		t.Fatalf("ApplyEnv: %v", err)
	}
	if cfg.LLM.APIKey != "explicit" {
		t.Errorf("APIKey = %q", cfg.LLM.APIKey)
	}
}

func TestApplyEnvInvalid(t *testing.T) {
	for _, kv := range [][2]string{
		{"GOTAXON_CHUNK_SIZE", "many"},
		{"GOTAXON_ORACLE_TIMEOUT", "soon"},
		{"GOTAXON_PASS_TIMEOUT", "later"},
		{"GOTAXON_VALIDATE_TERMS", "perhaps"},
	} {
		t.Run(kv[0], func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			cfg := DefaultConfig()
			if err := cfg.ApplyEnv(); !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("ApplyEnv error = %v, want ErrInvalidConfig", err)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no provider", func(c *Config) { c.LLM.Provider = "" }, "provider"},
		{"negative chunk", func(c *Config) { c.ChunkSize = -1 }, "chunk_size"},
		{"negative concurrency", func(c *Config) { c.CategoryConcurrency = -2 }, "category_concurrency"},
		{"negative timeout", func(c *Config) { c.OracleTimeout = -time.Second }, "oracle_timeout"},
		{"negative pass timeout", func(c *Config) { c.PassTimeout = -time.Minute }, "pass_timeout"},
		{"top_p above one", func(c *Config) { c.Sampling.TopP = 1.5 }, "top_p"},
		{"negative temperature", func(c *Config) { c.Sampling.Temperature = -0.1 }, "temperature"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if !errors.Is(err, ErrInvalidConfig) {
				t.Fatalf("Validate() = %v, want ErrInvalidConfig", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestResolveDBPath(t *testing.T) {
	cfg := Config{DBPath: "/data/x.db"}
	if got := cfg.resolveDBPath(); got != "/data/x.db" {
		t.Errorf("explicit path: got %q", got)
	}
	cfg = Config{DBName: "runs", StorageDir: "local"}
	if got := cfg.resolveDBPath(); got != "runs.db" {
		t.Errorf("local: got %q", got)
	}
	cfg = Config{StorageDir: "home"}
	if got := cfg.resolveDBPath(); !strings.HasSuffix(got, filepath.Join(".gotaxon", "gotaxon.db")) {
		t.Errorf("home: got %q", got)
	}
}

func TestTaskGroupDir(t *testing.T) {
	got, err := TaskGroupDir("data", "schema_org-2")
	if err != nil || got != filepath.Join("data", "schema_org-2") {
		t.Errorf("TaskGroupDir = %q, %v", got, err)
	}
	for _, bad := range []string{"", "..", "../etc", "a/b", ".hidden"} {
		if _, err := TaskGroupDir("data", bad); !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("TaskGroupDir(%q) error = %v, want ErrInvalidConfig", bad, err)
		}
	}
}

func TestWriteArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "group")

	cats := taxonomy.NewCategoryMap()
	cats.Set("Zoology", []string{"Cat"})
	cats.Set("Botany", []string{"Fern", "Moss"})
	catPath := filepath.Join(dir, CategoryFile)
	if err := WriteCategoryFile(catPath, cats); err != nil {
		t.Fatalf("WriteCategoryFile: %v", err)
	}
	got, _ := os.ReadFile(catPath)
	want := "{\n  \"Zoology\": [\n    \"Cat\"\n  ],\n  \"Botany\": [\n    \"Fern\",\n    \"Moss\"\n  ]\n}"
	if string(got) != want {
		t.Errorf("category file:\n%s\nwant:\n%s", got, want)
	}

	relPath := filepath.Join(dir, RelationFile)
	if err := WriteRelationFile(relPath, taxonomy.RelationSet{{Parent: "Plant", Child: "Fern"}}); err != nil {
		t.Fatalf("WriteRelationFile: %v", err)
	}
	got, _ = os.ReadFile(relPath)
	want = "[\n  {\n    \"parent\": \"Plant\",\n    \"child\": \"Fern\"\n  }\n]"
	if string(got) != want {
		t.Errorf("relation file:\n%s\nwant:\n%s", got, want)
	}

	if err := WriteRelationFile(relPath, nil); err != nil {
		t.Fatal(err)
	}
	got, _ = os.ReadFile(relPath)
	if string(got) != "[]" {
		t.Errorf("empty relation file = %q, want []", got)
	}
}
