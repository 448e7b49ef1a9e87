// Command server exposes the taxonomy passes over HTTP.
//
// Each task group is a directory under the data dir holding train_data.txt;
// GET /category/{group} writes category.txt next to it and
// GET /parent-child/{group} turns that into isArelationship.json.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/brunobiangulo/gotaxon"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server: exiting", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to config file (YAML or JSON)")
	addr := flag.String("addr", ":8080", "Listen address")
	dataDir := flag.String("data", "", "Task group data directory (overrides config)")
	grace := flag.Duration("grace", 30*time.Second, "How long running passes may finish on shutdown")
	debug := flag.Bool("debug", false, "Log at debug level")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})))

	cfg := gotaxon.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = gotaxon.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		return err
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}

	engine, err := gotaxon.New(cfg)
	if err != nil {
		return err
	}
	defer engine.Close()

	// Canceling base after the grace period stops running passes and
	// records them as canceled.
	base, cancelPasses := context.WithCancel(context.Background())
	defer cancelPasses()

	h := newHandler(engine, cfg.DataDir)
	h.passes = base
	h.passTimeout = cfg.PassTimeout

	srv := &http.Server{
		Addr: *addr,
		Handler: chain(h.routes(),
			recoveryMiddleware,
			corsMiddleware(os.Getenv("GOTAXON_CORS_ORIGINS")),
			authMiddleware(os.Getenv("GOTAXON_API_KEY")),
			logMiddleware,
		),
		BaseContext:       func(net.Listener) context.Context { return base },
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		// No WriteTimeout: a pass over a large term list takes minutes.
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		slog.Info("server: listening", "addr", *addr, "data_dir", cfg.DataDir,
			"provider", cfg.LLM.Provider, "model", cfg.LLM.Model)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("server: shutting down", "grace", *grace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), *grace)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("server: passes still running, canceling them", "error", err)
		cancelPasses()
		// Give canceled passes a moment to record their outcome.
		finalCtx, cancelFinal := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelFinal()
		if err := srv.Shutdown(finalCtx); err != nil {
			slog.Warn("server: forced stop", "error", err)
		}
	}
	slog.Info("server: stopped")
	return nil
}
