package oracle

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// HealthChecker periodically probes provider adapters and flips their status
// between active and error. It runs on its own schedule, independent of
// queries: it touches only Status and LastHealthCheck, which the query and
// feedback paths never write.
type HealthChecker struct {
	registry *Registry
	cron     *cron.Cron
	schedule string
	timeout  time.Duration
	logger   *zap.Logger
}

// NewHealthChecker creates a health checker. schedule uses cron syntax,
// e.g. "@every 5m".
func NewHealthChecker(registry *Registry, schedule string, timeout time.Duration, logger *zap.Logger) *HealthChecker {
	return &HealthChecker{
		registry: registry,
		cron:     cron.New(),
		schedule: schedule,
		timeout:  timeout,
		logger:   logger,
	}
}

// Start begins periodic health checking
func (hc *HealthChecker) Start() error {
	if _, err := hc.cron.AddFunc(hc.schedule, func() {
		hc.CheckAll(context.Background())
	}); err != nil {
		return fmt.Errorf("scheduling health checks: %w", err)
	}

	hc.cron.Start()
	hc.logger.Info("Health checker started",
		zap.String("schedule", hc.schedule),
		zap.Duration("timeout", hc.timeout))
	return nil
}

// Stop halts the periodic checks, waiting for an in-flight run to finish
func (hc *HealthChecker) Stop() {
	ctx := hc.cron.Stop()
	<-ctx.Done()
	hc.logger.Info("Health checker stopped")
}

// CheckAll probes every registered provider once. Adapters that do not
// implement HealthReporter are assumed healthy.
func (hc *HealthChecker) CheckAll(ctx context.Context) {
	for _, node := range hc.registry.List() {
		name := node.Provider.Name
		status := ProviderStatusActive

		if reporter, ok := node.Provider.Fetcher.(HealthReporter); ok {
			checkCtx, cancel := context.WithTimeout(ctx, hc.timeout)
			if err := reporter.HealthCheck(checkCtx); err != nil {
				status = ProviderStatusError
				hc.logger.Warn("Provider health check failed",
					zap.String("provider", name),
					zap.Error(err))
			}
			cancel()
		}

		if err := hc.registry.SetStatus(name, status, time.Now()); err != nil {
			hc.logger.Warn("Health status update failed",
				zap.String("provider", name),
				zap.Error(err))
		}
	}
}
