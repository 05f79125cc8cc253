package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/libreshield/shieldd/internal/shield/common/clock"
	"github.com/libreshield/shieldd/internal/shield/common/log"
	"github.com/libreshield/shieldd/internal/shield/config"
	"github.com/libreshield/shieldd/internal/shield/gateways/dispatch"
	"github.com/libreshield/shieldd/internal/shield/gateways/httpapi"
	"github.com/libreshield/shieldd/internal/shield/repos/override"
	"github.com/libreshield/shieldd/internal/shield/repos/policy"
	"github.com/libreshield/shieldd/internal/shield/repos/policy/bolt"
	"github.com/libreshield/shieldd/internal/shield/repos/policy/seed"
	"github.com/libreshield/shieldd/internal/shield/repos/rules"
	"github.com/libreshield/shieldd/internal/shield/repos/rules/bloom"
	"github.com/libreshield/shieldd/internal/shield/repos/rules/lru"
	"github.com/libreshield/shieldd/internal/shield/repos/stats"
	"github.com/libreshield/shieldd/internal/shield/services/engine"
	"github.com/libreshield/shieldd/internal/shield/services/gate"
	"github.com/libreshield/shieldd/internal/shield/services/sweeper"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "shieldd"

	defaultShutdownTimeout = 10 * time.Second
)

// Application holds all the components of the policy daemon.
type Application struct {
	config  *config.AppConfig
	store   policy.Store
	server  *httpapi.Server
	sweeper *sweeper.Sweeper
}

func main() {
	// Load configuration from environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Configure global logging
	err = log.Configure(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		os.Exit(1)
	}

	log.Info(map[string]any{
		"version":    version,
		"env":        cfg.Env,
		"log_level":  cfg.LogLevel,
		"listen":     cfg.Listen,
		"db_path":    cfg.DBPath,
		"seed_dir":   cfg.SeedDir,
		"cache_size": cfg.CacheSize,
	}, "Starting shieldd")

	// Build application with all dependencies
	app, err := buildApplication(cfg)
	if err != nil {
		log.Fatal(map[string]any{"error": err}, "Failed to build application")
	}

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	if err := app.Run(ctx); err != nil {
		log.Fatal(map[string]any{"error": err}, "Daemon failed")
	}

	log.Info(nil, "shieldd stopped gracefully")
}

// policyAdapter presents the rules holder as the engine's policy source. The
// engine asks for a view once per decision and the adapter hands it the
// current immutable index.
type policyAdapter struct {
	holder *rules.Holder
}

func (a policyAdapter) Current(_ context.Context) (engine.PolicyView, error) {
	return a.holder.Current(), nil
}

// buildApplication constructs all components and wires them together.
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	// Shared clock for consistent time across all components
	clk := &clock.RealClock{}
	logger := log.GetLogger()

	// Open the persisted policy record. A missing file means first run.
	_, statErr := os.Stat(cfg.DBPath)
	firstRun := os.IsNotExist(statErr)

	store, err := bolt.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open policy store: %w", err)
	}

	ctx := context.Background()
	rec, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load policy record: %w", err)
	}

	// Apply seed lists to an empty database only; user edits are never
	// overwritten by seeds.
	if firstRun && cfg.SeedDir != "" {
		seeded, err := seed.LoadDirectory(cfg.SeedDir, rec.Settings)
		if err != nil {
			return nil, fmt.Errorf("failed to load seed directory: %w", err)
		}
		if err := store.SaveSettings(ctx, seeded); err != nil {
			return nil, fmt.Errorf("failed to persist seeded settings: %w", err)
		}
		rec.Settings = seeded
		log.Info(map[string]any{
			"seed_dir":         cfg.SeedDir,
			"blocked_domains":  len(seeded.BlockedDomains),
			"blocked_keywords": len(seeded.BlockedKeywords),
			"allowed_sites":    len(seeded.AllowedSites),
		}, "Seed lists applied")
	}

	// Rules holder: immutable index rebuilt on every settings mutation.
	holder, err := rules.NewHolder(rec.Settings, rules.HolderOptions{
		Factory:  bloom.NewFactory(),
		FPRate:   cfg.BloomFPRate,
		NewCache: func() (rules.DecisionCache, error) { return lru.New(cfg.CacheSize) },
	})
	if err != nil {
		return nil, fmt.Errorf("failed to build rules index: %w", err)
	}

	overrideStore := override.New(override.Options{
		Clock:   clk,
		Saver:   store,
		Logger:  logger,
		Initial: rec.Overrides,
	})

	statsRecorder := stats.New(rec.UsageStats, store, logger)

	credentialGate := gate.New(gate.Options{
		Credential:       rec.Credential,
		Iterations:       cfg.KDFIterations,
		LockoutThreshold: cfg.LockoutThreshold,
		LockoutWindow:    time.Duration(cfg.LockoutSeconds) * time.Second,
		Store:            store,
		Clock:            clk,
		Logger:           logger,
	})

	decisionEngine := engine.New(engine.Options{
		Policy:           policyAdapter{holder: holder},
		Overrides:        overrideStore,
		Stats:            statsRecorder,
		Clock:            clk,
		Logger:           logger,
		InternalPrefixes: cfg.InternalURLPrefixes,
	})

	handler := dispatch.New(dispatch.Options{
		Engine:    decisionEngine,
		Gate:      credentialGate,
		Overrides: overrideStore,
		Stats:     statsRecorder,
		Holder:    holder,
		Store:     store,
		Clock:     clk,
		Logger:    logger,
	})

	server := httpapi.NewServer(cfg.Listen, handler, logger)

	sweepInterval := time.Duration(cfg.SweepIntervalSeconds) * time.Second
	maintenance := sweeper.New(overrideStore, statsRecorder, clk, logger, sweepInterval)

	return &Application{
		config:  cfg,
		store:   store,
		server:  server,
		sweeper: maintenance,
	}, nil
}

// Run starts the daemon and blocks until the context is cancelled.
func (app *Application) Run(ctx context.Context) error {
	if err := app.server.Start(ctx); err != nil {
		return fmt.Errorf("failed to start message transport: %w", err)
	}

	app.sweeper.Start(ctx)

	log.Info(map[string]any{
		"address": app.server.Address(),
	}, "Policy daemon started")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info(nil, "Shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	done := make(chan struct{})
	go func() {
		app.sweeper.Stop()
		if err := app.server.Stop(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error during transport shutdown")
		}
		if err := app.store.Close(); err != nil {
			log.Warn(map[string]any{"error": err}, "Error closing policy store")
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info(nil, "Graceful shutdown completed")
		return nil
	case <-shutdownCtx.Done():
		log.Warn(map[string]any{"timeout": defaultShutdownTimeout}, "Shutdown timeout exceeded")
		return fmt.Errorf("shutdown timeout")
	}
}
