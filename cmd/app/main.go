package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"oracle_consensus/pkg/config"
	"oracle_consensus/pkg/data"
	"oracle_consensus/pkg/oracle"
	"oracle_consensus/pkg/utils"
)

var (
	configFile = flag.String("config", "config.yaml", "Path to configuration file")
	debug      = flag.Bool("debug", false, "Enable debug logging to console")
)

func main() {
	flag.Parse()

	logger, err := initLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Fatal("Failed to load configuration",
			zap.String("path", *configFile),
			zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := oracle.NewRegistry(logger.Named("registry"))
	if err := registerProviders(registry, cfg.Providers); err != nil {
		logger.Fatal("Failed to register providers", zap.Error(err))
	}

	engine, err := oracle.NewEngine(registry, logger.Named("engine"), &cfg.Oracle)
	if err != nil {
		logger.Fatal("Failed to create engine", zap.Error(err))
	}

	healthChecker := oracle.NewHealthChecker(registry, cfg.Health.Schedule, cfg.Health.Timeout, logger.Named("health"))
	if err := healthChecker.Start(); err != nil {
		logger.Fatal("Failed to start health checker", zap.Error(err))
	}
	defer healthChecker.Stop()

	var sink *data.AuditSink
	if cfg.Database.URL != "" {
		repo, err := data.NewPostgresRepository(ctx, cfg.Database.URL, logger.Named("repository"))
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
		}
		defer repo.Close()

		sink = data.NewAuditSink(repo, engine.Events(), logger.Named("audit"))
		sink.Start()
		defer sink.Stop()
	} else {
		logger.Info("Round history persistence disabled: no database URL configured")
	}

	logger.Info("Oracle consensus engine ready",
		zap.Int("providers", registry.Len()),
		zap.String("environment", cfg.Environment))

	// Block until interrupted
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("Shutting down", zap.String("signal", sig.String()))
}

func initLogger(debug bool) (*zap.Logger, error) {
	logCfg := utils.DefaultLogConfig()
	if debug {
		logCfg.Level = "debug"
		logCfg.Console = true
	}
	return utils.NewLogger(logCfg)
}

// registerProviders wires the statically configured providers into the
// registry. Adapter construction is keyed by kind; only the simulated kind
// ships with the engine, real adapters register themselves here.
func registerProviders(registry *oracle.Registry, defs []config.ProviderDef) error {
	for _, def := range defs {
		fetcher, err := newFetcher(def)
		if err != nil {
			return fmt.Errorf("provider %s: %w", def.Name, err)
		}
		if err := registry.Register(oracle.Provider{
			Name:        def.Name,
			Kind:        def.Kind,
			DataTypes:   def.DataTypes,
			Reliability: def.Reliability,
			Fetcher:     fetcher,
		}); err != nil {
			return fmt.Errorf("registering %s: %w", def.Name, err)
		}
	}
	return nil
}

func newFetcher(def config.ProviderDef) (oracle.Fetcher, error) {
	switch def.Kind {
	case "simulated", "":
		return &simulatedFetcher{base: 100, jitter: 2}, nil
	default:
		return nil, fmt.Errorf("unknown provider kind: %s", def.Kind)
	}
}

// simulatedFetcher answers every query with a random walk around a base
// value. Useful for local runs and smoke tests without live adapters.
type simulatedFetcher struct {
	base   float64
	jitter float64
}

func (f *simulatedFetcher) Fetch(ctx context.Context, dataType, subject string) (interface{}, float64, error) {
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case <-time.After(time.Duration(rand.Intn(50)) * time.Millisecond):
	}
	value := f.base + (rand.Float64()*2-1)*f.jitter
	return value, 0.8 + rand.Float64()*0.2, nil
}

func (f *simulatedFetcher) HealthCheck(ctx context.Context) error {
	return nil
}
