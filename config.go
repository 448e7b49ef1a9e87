package gotaxon

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brunobiangulo/gotaxon/llm"
	"github.com/brunobiangulo/gotaxon/taxonomy"
)

// Config holds all configuration for the gotaxon engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.gotaxon/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath
	// is not explicitly set. "home" (default) uses ~/.gotaxon/,
	// "local" uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// DataDir holds one directory per task group with train_data.txt,
	// category.txt and isArelationship.json.
	DataDir string `json:"data_dir" yaml:"data_dir"`

	LLM      llm.Config   `json:"llm" yaml:"llm"`
	Sampling llm.Sampling `json:"sampling" yaml:"sampling"`

	// Pipeline
	ChunkSize           int           `json:"chunk_size" yaml:"chunk_size"`
	CategoryConcurrency int           `json:"category_concurrency" yaml:"category_concurrency"`
	OracleTimeout       time.Duration `json:"oracle_timeout" yaml:"oracle_timeout"` // per call; 0 disables
	PassTimeout         time.Duration `json:"pass_timeout" yaml:"pass_timeout"`     // whole pass over HTTP; 0 disables
	CatchAll            string        `json:"catch_all" yaml:"catch_all"`
	ValidateTerms       bool          `json:"validate_terms" yaml:"validate_terms"`

	// Prompting
	Domain     string   `json:"domain" yaml:"domain"`
	Categories []string `json:"categories" yaml:"categories"`
}

// DefaultConfig returns a Config matching the reference pipeline: Gemini
// 2.5 Pro, near-deterministic sampling and 200-term chunks.
func DefaultConfig() Config {
	return Config{
		DBName:     "gotaxon",
		StorageDir: "home",
		DataDir:    "data",
		LLM: llm.Config{
			Provider: "gemini",
			Model:    "gemini-2.5-pro",
		},
		Sampling:            llm.DefaultSampling(),
		ChunkSize:           taxonomy.DefaultConfig().ChunkSize,
		CategoryConcurrency: 1,
		OracleTimeout:       90 * time.Second,
		CatchAll:            taxonomy.DefaultCatchAll,
		Domain:              taxonomy.DefaultDomain,
		Categories:          append([]string(nil), taxonomy.DefaultCategories...),
	}
}

// LoadConfig reads a YAML or JSON file on top of DefaultConfig. The format
// is picked by extension.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json":
		err = json.Unmarshal(data, &cfg)
	default:
		return cfg, fmt.Errorf("%w: config %s: unknown extension", ErrInvalidConfig, path)
	}
	if err != nil {
		return cfg, fmt.Errorf("%w: parsing %s: %v", ErrInvalidConfig, path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from GOTAXON_* environment variables. When no
// API key is configured, the provider's well-known key variable is used.
func (c *Config) ApplyEnv() error {
	str := map[string]*string{
		"GOTAXON_DB_PATH":      &c.DBPath,
		"GOTAXON_DATA_DIR":     &c.DataDir,
		"GOTAXON_LLM_PROVIDER": &c.LLM.Provider,
		"GOTAXON_LLM_MODEL":    &c.LLM.Model,
		"GOTAXON_LLM_BASE_URL": &c.LLM.BaseURL,
		"GOTAXON_LLM_API_KEY":  &c.LLM.APIKey,
		"GOTAXON_CATCH_ALL":    &c.CatchAll,
		"GOTAXON_DOMAIN":       &c.Domain,
	}
	for key, dst := range str {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"GOTAXON_CHUNK_SIZE":           &c.ChunkSize,
		"GOTAXON_CATEGORY_CONCURRENCY": &c.CategoryConcurrency,
		"GOTAXON_LLM_MAX_RETRIES":      &c.LLM.MaxRetries,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, v, err)
		}
		*dst = n
	}

	durations := map[string]*time.Duration{
		"GOTAXON_ORACLE_TIMEOUT": &c.OracleTimeout,
		"GOTAXON_PASS_TIMEOUT":   &c.PassTimeout,
	}
	for key, dst := range durations {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalidConfig, key, v, err)
		}
		*dst = d
	}
	if v := os.Getenv("GOTAXON_CATEGORIES"); v != "" {
		c.Categories = nil
		for _, cat := range strings.Split(v, ",") {
			if cat = strings.TrimSpace(cat); cat != "" {
				c.Categories = append(c.Categories, cat)
			}
		}
	}
	if v := os.Getenv("GOTAXON_VALIDATE_TERMS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%w: GOTAXON_VALIDATE_TERMS=%q: %v", ErrInvalidConfig, v, err)
		}
		c.ValidateTerms = b
	}

	// Fallback: check well-known provider env vars for API keys.
	if c.LLM.APIKey == "" {
		if key := llm.APIKeyEnv(c.LLM.Provider); key != "" {
			c.LLM.APIKey = os.Getenv(key)
		}
	}
	return nil
}

// Validate reports the first invalid field, wrapped in ErrInvalidConfig.
func (c *Config) Validate() error {
	switch {
	case c.LLM.Provider == "":
		return fmt.Errorf("%w: llm provider is required", ErrInvalidConfig)
	case c.ChunkSize < 0:
		return fmt.Errorf("%w: chunk_size must not be negative", ErrInvalidConfig)
	case c.CategoryConcurrency < 0:
		return fmt.Errorf("%w: category_concurrency must not be negative", ErrInvalidConfig)
	case c.OracleTimeout < 0:
		return fmt.Errorf("%w: oracle_timeout must not be negative", ErrInvalidConfig)
	case c.PassTimeout < 0:
		return fmt.Errorf("%w: pass_timeout must not be negative", ErrInvalidConfig)
	case c.LLM.MaxRetries < 0:
		return fmt.Errorf("%w: llm.max_retries must not be negative", ErrInvalidConfig)
	case c.Sampling.Temperature < 0:
		return fmt.Errorf("%w: sampling.temperature must not be negative", ErrInvalidConfig)
	case c.Sampling.TopP < 0 || c.Sampling.TopP > 1:
		return fmt.Errorf("%w: sampling.top_p must be within [0, 1]", ErrInvalidConfig)
	case c.Sampling.TopK < 0:
		return fmt.Errorf("%w: sampling.top_k must not be negative", ErrInvalidConfig)
	}
	return nil
}

// resolveDBPath computes the final database path from config fields.
func (c *Config) resolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "gotaxon"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db"
		}
		return filepath.Join(home, ".gotaxon", name+".db")
	}
}

func (c *Config) taxonomyConfig() taxonomy.Config {
	return taxonomy.Config{
		ChunkSize:           c.ChunkSize,
		CategoryConcurrency: c.CategoryConcurrency,
		CatchAll:            c.CatchAll,
		ValidateTerms:       c.ValidateTerms,
	}
}
