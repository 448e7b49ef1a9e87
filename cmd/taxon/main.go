// Command taxon builds term taxonomies from the command line.
//
//	taxon categorize data/schema/train_data.txt --out data/schema/category.txt
//	taxon relate data/schema/category.txt --out data/schema/isArelationship.json
//	taxon tree --task-group schema
//	taxon eval gold.yaml --gold-categories
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/brunobiangulo/gotaxon"
)

// app holds the global flags shared by every subcommand.
type app struct {
	configPath  string
	verbose     bool
	dbPath      string
	provider    string
	model       string
	chunkSize   int
	concurrency int
	timeout     time.Duration
	jsonOut     bool

	// newEngine is swapped in tests.
	newEngine func(cfg gotaxon.Config) (gotaxon.Engine, error)
}

func newRootCmd() *cobra.Command {
	a := &app{newEngine: func(cfg gotaxon.Config) (gotaxon.Engine, error) { return gotaxon.New(cfg) }}
	return a.rootCmd()
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "taxon",
		Short: "Build term taxonomies with an LLM",
		Long: `taxon sorts a flat term list into categories and then finds
parent/child ("is-a") relations inside each category, chunk by chunk.

Every pass is recorded in a SQLite database so runs can be listed,
inspected and rendered as a tree afterwards.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			level := slog.LevelInfo
			if a.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
			return nil
		},
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&a.configPath, "config", "c", "", "Config file (YAML or JSON)")
	pf.BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")
	pf.StringVar(&a.dbPath, "db", "", "SQLite database path (overrides config)")
	pf.StringVar(&a.provider, "provider", "", "LLM provider (overrides config)")
	pf.StringVar(&a.model, "model", "", "LLM model (overrides config)")
	pf.IntVar(&a.chunkSize, "chunk-size", 0, "Terms per oracle call (overrides config)")
	pf.IntVar(&a.concurrency, "concurrency", 0, "Parallel category chunks (overrides config)")
	pf.DurationVar(&a.timeout, "timeout", 0, "Overall operation timeout (0 = none)")
	pf.BoolVar(&a.jsonOut, "json", false, "Print results as JSON")

	root.AddCommand(
		a.categorizeCmd(),
		a.relateCmd(),
		a.runsCmd(),
		a.treeCmd(),
		a.rmCmd(),
		a.evalCmd(),
		a.providersCmd(),
	)
	return root
}

// loadConfig layers defaults, the config file, the environment and flags.
func (a *app) loadConfig() (gotaxon.Config, error) {
	cfg := gotaxon.DefaultConfig()
	if a.configPath != "" {
		var err error
		if cfg, err = gotaxon.LoadConfig(a.configPath); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return cfg, err
	}
	if a.dbPath != "" {
		cfg.DBPath = a.dbPath
	}
	if a.provider != "" {
		cfg.LLM.Provider = a.provider
	}
	if a.model != "" {
		cfg.LLM.Model = a.model
	}
	if a.chunkSize != 0 {
		cfg.ChunkSize = a.chunkSize
	}
	if a.concurrency != 0 {
		cfg.CategoryConcurrency = a.concurrency
	}
	return cfg, nil
}

func (a *app) openEngine() (gotaxon.Engine, error) {
	cfg, err := a.loadConfig()
	if err != nil {
		return nil, err
	}
	return a.newEngine(cfg)
}

// context returns a context canceled on SIGINT/SIGTERM or after --timeout.
// A canceled pass still records what it merged.
func (a *app) context(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	parent := cmd.Context()
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	if a.timeout <= 0 {
		return ctx, stop
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	return ctx, func() { cancel(); stop() }
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
