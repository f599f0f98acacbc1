package sse

import (
	"fmt"

	"github.com/robfig/cron/v3"

	"go.uber.org/zap"
)

// Janitor runs the registry's periodic tasks: the idle sweep and the
// heartbeat, each on its own fixed period. The heartbeat interval is expected
// to be shorter than the idle timeout so healthy clients keep receiving
// traffic between sweeps.
type Janitor struct {
	cron     *cron.Cron
	registry *Registry
	logger   *zap.Logger
}

// NewJanitor schedules sweep and heartbeat jobs for the registry.
func NewJanitor(registry *Registry, logger *zap.Logger) (*Janitor, error) {
	c := cron.New()
	cfg := registry.Config()

	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.SweepInterval), registry.Sweep); err != nil {
		return nil, fmt.Errorf("failed to schedule sweep: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", cfg.HeartbeatInterval), registry.Heartbeat); err != nil {
		return nil, fmt.Errorf("failed to schedule heartbeat: %w", err)
	}

	return &Janitor{cron: c, registry: registry, logger: logger}, nil
}

// Start begins the periodic schedules.
func (j *Janitor) Start() {
	j.logger.Info("starting connection janitor",
		zap.Duration("sweep_interval", j.registry.Config().SweepInterval),
		zap.Duration("heartbeat_interval", j.registry.Config().HeartbeatInterval))
	j.cron.Start()
}

// Stop halts the schedules; running jobs finish first.
func (j *Janitor) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
}
