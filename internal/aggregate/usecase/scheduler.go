package usecase

import (
	"context"
	"fmt"
	"sync"

	"github.com/uc-cdis/metadata-service-sub001/internal/aggregate/config"
	"github.com/uc-cdis/metadata-service-sub001/internal/shared/logger"

	"github.com/robfig/cron/v3"
)

// ConfigLoader returns the populate config for the next cycle
type ConfigLoader func() (*config.PopulateConfig, error)

// Scheduler runs aggregation cycles on a cron schedule inside the server
type Scheduler struct {
	populator *Populator
	load      ConfigLoader
	log       logger.Logger

	mu     sync.Mutex
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler creates a stopped scheduler
func NewScheduler(p *Populator, load ConfigLoader, log logger.Logger) *Scheduler {
	return &Scheduler{populator: p, load: load, log: log.WithComponent("aggregate-scheduler")}
}

// Start schedules cycles with spec, a six-field cron expression with
// seconds. Overlapping runs are skipped.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	clog := cronLogger{log: s.log}
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	s.ctx, s.cancel = context.WithCancel(ctx)
	if _, err := c.AddFunc(spec, func() { s.RunOnce(s.ctx) }); err != nil {
		s.cancel()
		return fmt.Errorf("invalid refresh schedule %q: %w", spec, err)
	}
	c.Start()
	s.cron = c
	s.log.WithContext(ctx).Info("Aggregation scheduler started", "schedule", spec)
	return nil
}

// RunOnce loads the config and runs a single cycle
func (s *Scheduler) RunOnce(ctx context.Context) {
	cfg, err := s.load()
	if err != nil {
		s.log.WithContext(ctx).Error("Failed to load populate config", "error", err)
		return
	}
	if _, err := s.populator.Run(ctx, cfg); err != nil {
		s.log.WithContext(ctx).Warn("Aggregation cycle interrupted", "error", err)
	}
}

// Stop cancels a running cycle and waits for it to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron == nil {
		return
	}
	s.cancel()
	<-s.cron.Stop().Done()
	s.cron = nil
}

// cronLogger routes cron's own logging through the service logger
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(append([]interface{}{msg}, keysAndValues...)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(append([]interface{}{msg, "error", err}, keysAndValues...)...)
}
