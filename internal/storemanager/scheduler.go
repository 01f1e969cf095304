package storemanager

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Default maintenance schedules, in cron syntax with seconds.
const (
	DefaultRebalanceSchedule = "0 0 */6 * * *"
	DefaultCleanupSchedule   = "0 30 * * * *"
)

// SchedulerConfig selects what runs periodically.
type SchedulerConfig struct {
	// Tenants to maintain. Empty runs every job once across all tenants.
	Tenants           []string
	RebalanceSchedule string
	CleanupSchedule   string
	// Timeout bounds a single run. Default: 30 minutes.
	Timeout time.Duration
}

// Scheduler runs rebalance and cleanup on cron schedules.
type Scheduler struct {
	manager *Manager
	config  SchedulerConfig
	cron    *cron.Cron
	logger  *zap.Logger
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(manager *Manager, cfg SchedulerConfig, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RebalanceSchedule == "" {
		cfg.RebalanceSchedule = DefaultRebalanceSchedule
	}
	if cfg.CleanupSchedule == "" {
		cfg.CleanupSchedule = DefaultCleanupSchedule
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Minute
	}
	return &Scheduler{
		manager: manager,
		config:  cfg,
		cron:    cron.New(cron.WithSeconds()),
		logger:  logger,
	}
}

// Start registers the jobs and starts the cron runner.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.config.RebalanceSchedule, s.RunRebalance); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(s.config.CleanupSchedule, s.RunCleanup); err != nil {
		return err
	}
	s.cron.Start()
	s.logger.Info("maintenance scheduler started",
		zap.String("rebalance", s.config.RebalanceSchedule),
		zap.String("cleanup", s.config.CleanupSchedule),
		zap.Strings("tenants", s.config.Tenants))
	return nil
}

// Stop stops the runner and waits for running jobs.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info("maintenance scheduler stopped")
}

// RunRebalance rebalances every configured tenant.
func (s *Scheduler) RunRebalance() {
	s.forEachTenant("rebalance", func(ctx context.Context, tenant string) error {
		_, err := s.manager.RebalanceClusters(ctx, tenant, "")
		return err
	})
}

// RunCleanup cleans every configured tenant.
func (s *Scheduler) RunCleanup() {
	s.forEachTenant("cleanup", func(ctx context.Context, tenant string) error {
		_, err := s.manager.Cleanup(ctx, tenant)
		return err
	})
}

func (s *Scheduler) forEachTenant(job string, fn func(ctx context.Context, tenant string) error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.Timeout)
	defer cancel()

	tenants := s.config.Tenants
	if len(tenants) == 0 {
		tenants = []string{""}
	}
	for _, tenant := range tenants {
		if err := fn(ctx, tenant); err != nil {
			s.logger.Error("scheduled maintenance failed",
				zap.String("job", job), zap.String("tenant_id", tenant), zap.Error(err))
		}
	}
}
