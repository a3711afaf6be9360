package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/ppob-wallet-ledger/internal/domain/provider"
)

// HealthMonitor probes every active provider on a worker pool and feeds the
// results back into the orchestrator.
type HealthMonitor struct {
	orch     *Orchestrator
	pool     *ants.Pool
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger
}

// HealthMonitorConfig sizes the probe pool and paces the sweep.
type HealthMonitorConfig struct {
	PoolSize int
	Interval time.Duration
	Timeout  time.Duration
}

func NewHealthMonitor(orch *Orchestrator, cfg HealthMonitorConfig, logger *slog.Logger) (*HealthMonitor, error) {
	if cfg.PoolSize <= 0 {
		cfg.PoolSize = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create health check pool: %w", err)
	}
	return &HealthMonitor{
		orch:     orch,
		pool:     pool,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   logger.With("component", "health_monitor"),
	}, nil
}

// CheckAll probes every active provider, waits for the results and persists
// the resulting snapshot.
func (m *HealthMonitor) CheckAll(ctx context.Context) []provider.Registration {
	targets := m.orch.checkTargets()

	var wg sync.WaitGroup
	for name, handler := range targets {
		name, handler := name, handler
		wg.Add(1)
		err := m.pool.Submit(func() {
			defer wg.Done()
			m.orch.recordHealth(name, m.probe(ctx, name, handler))
		})
		if err != nil {
			wg.Done()
			m.logger.Error("Failed to submit health check", "provider", name, "error", err)
		}
	}
	wg.Wait()

	if err := m.orch.Persist(ctx); err != nil {
		m.logger.Error("Health snapshot not saved", "error", err)
	}
	return m.orch.Registrations()
}

func (m *HealthMonitor) probe(ctx context.Context, name string, h provider.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("health check panicked: %v", r)
		}
	}()

	checkCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	if err = h.HealthCheck(checkCtx); err != nil {
		m.logger.Warn("Provider health check failed", "provider", name, "error", err)
	}
	return err
}

// Start runs CheckAll every interval until ctx is canceled.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.logger.Info("Starting provider health monitor", "interval", m.interval.String(), "timeout", m.timeout.String())
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health monitor stopping due to context cancellation.")
			return
		case <-ticker.C:
			regs := m.CheckAll(ctx)
			m.logger.Debug("Health sweep finished", "providers", len(regs))
		}
	}
}

// Shutdown releases the probe pool.
func (m *HealthMonitor) Shutdown() {
	m.logger.Info("Shutting down health check pool", "running_workers", m.pool.Running())
	m.pool.Release()
}
