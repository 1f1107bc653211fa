package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/haukened/rr-block/internal/block/common/clock"
	"github.com/haukened/rr-block/internal/block/common/lockfile"
	"github.com/haukened/rr-block/internal/block/common/log"
	"github.com/haukened/rr-block/internal/block/config"
	"github.com/haukened/rr-block/internal/block/domain"
	"github.com/haukened/rr-block/internal/block/gateways/firewall"
	"github.com/haukened/rr-block/internal/block/gateways/probe"
	"github.com/haukened/rr-block/internal/block/gateways/resolver"
	"github.com/haukened/rr-block/internal/block/repos/state"
	"github.com/haukened/rr-block/internal/block/repos/targets"
	"github.com/haukened/rr-block/internal/block/services/sync"
)

const (
	// Version information
	version = "0.1.0-dev"
	appName = "rr-blockd"
)

// Application holds all the components of the blocker
type Application struct {
	config  *config.AppConfig
	targets []domain.Target
	sync    *sync.Synchronizer
	state   *state.Store // nil when state is disabled or unavailable
}

func main() {
	os.Exit(run())
}

// run is main without os.Exit so tests can drive it.
func run() int {
	// Load configuration from file and environment
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return 1
	}

	// Configure global logging
	if err := log.Configure(cfg.Env, cfg.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "Logging configuration error: %v\n", err)
		return 1
	}

	log.Info(map[string]any{
		"version":      version,
		"env":          cfg.Env,
		"log_level":    cfg.LogLevel,
		"targets_file": cfg.TargetsFile,
		"chain":        cfg.Chain,
		"resolvers":    len(cfg.Resolvers),
	}, "Starting "+appName)

	// The chain and the rules files are single-writer resources; refuse to
	// run alongside another instance.
	lock, err := lockfile.Acquire(cfg.LockFile)
	if err != nil {
		log.Error(map[string]any{"error": err.Error()}, "Failed to acquire run lock")
		return 1
	}
	defer lock.Release()

	app, err := buildApplication(cfg)
	if err != nil {
		log.Error(map[string]any{"error": err.Error()}, "Failed to build application")
		return 1
	}
	if app.state != nil {
		defer app.state.Close()
		if last, found, err := app.state.LastRun(); err == nil && found {
			log.Info(map[string]any{
				"finished_at": last.FinishedAt,
				"rules":       last.RulesApplied,
			}, "Previous run found")
		}
	}

	// Setup cancellation on shutdown signals
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigChan
		log.Info(map[string]any{"signal": sig.String()}, "Shutdown signal received")
		cancel()
	}()

	report, err := app.sync.Synchronize(ctx, app.targets)
	logReport(report)
	if err != nil {
		log.Error(map[string]any{"error": err.Error()}, "Synchronization failed")
		return 1
	}

	log.Info(nil, "Synchronization completed")
	return 0
}

// buildApplication constructs all components and wires them together
func buildApplication(cfg *config.AppConfig) (*Application, error) {
	clk := clock.RealClock{}
	logger := log.GetLogger()

	// Load the target set up front; resolution failures are runtime
	// warnings but an unreadable targets file is a build failure.
	tgts, err := targets.Load(cfg.TargetsFile, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to load targets: %w", err)
	}

	dnsResolver, err := resolver.New(resolver.Options{
		Servers:     cfg.Resolvers,
		Timeout:     cfg.ResolveTimeout(),
		Concurrency: cfg.Concurrency,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create resolver: %w", err)
	}

	var prober sync.Prober
	if cfg.ProbeHTTP {
		prober = probe.New(probe.Options{
			Timeout: cfg.ProbeTimeout(),
			Logger:  logger,
		})
		log.Info(map[string]any{"timeout": cfg.ProbeTimeout()}, "HTTP probing enabled")
	}

	rules, err := firewall.New(firewall.Options{
		Chain:       cfg.Chain,
		RulesFileV4: cfg.RulesFileV4,
		RulesFileV6: cfg.RulesFileV6,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create firewall manager: %w", err)
	}

	// Run state is a convenience; a broken state database downgrades to a
	// warning rather than blocking enforcement.
	var stateStore *state.Store
	if cfg.StateFile != "" {
		stateStore, err = state.New(cfg.StateFile)
		if err != nil {
			log.Warn(map[string]any{"path": cfg.StateFile, "error": err.Error()}, "Run state unavailable")
			stateStore = nil
		}
	}

	syncService, err := sync.New(sync.Options{
		Resolver:    dnsResolver,
		Prober:      prober,
		Rules:       rules,
		State:       asStateStore(stateStore),
		Expand:      expandFunc(cfg),
		Clock:       clk,
		Logger:      logger,
		Concurrency: cfg.Concurrency,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create synchronizer: %w", err)
	}

	return &Application{
		config:  cfg,
		targets: tgts,
		sync:    syncService,
		state:   stateStore,
	}, nil
}

// asStateStore converts the optional concrete store to the service
// interface without smuggling a typed nil into it.
func asStateStore(s *state.Store) sync.StateStore {
	if s == nil {
		return nil
	}
	return s
}

// expandFunc wires subdomain-prefix expansion when enabled; nil lets the
// synchronizer fall back to plain de-duplicated target names.
func expandFunc(cfg *config.AppConfig) sync.ExpandFunc {
	if !cfg.ExpandSubdomains {
		return nil
	}
	prefixes := cfg.ExpandPrefixes
	return func(tgts []domain.Target) []string {
		return targets.Expand(tgts, prefixes)
	}
}

// logReport emits the aggregate outcome, warnings included, in one place.
func logReport(report domain.SyncReport) {
	if len(report.Warnings) > 0 {
		log.Warn(map[string]any{
			"count": len(report.Warnings),
			"names": report.WarningNames(),
		}, "Some names did not resolve")
	}
	log.Info(map[string]any{
		"targets":   report.Targets,
		"names":     report.Names,
		"addresses": report.Addresses,
		"rules":     report.RulesApplied,
		"persisted": report.Persisted,
		"duration":  report.Duration().Round(time.Millisecond).String(),
	}, "Synchronization report")
}
