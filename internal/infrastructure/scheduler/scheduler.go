package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/wekeepgrowing/billing-engine/internal/config"
	"github.com/wekeepgrowing/billing-engine/internal/usecase"
)

// Default sweep cadences, used when the config leaves a spec empty.
const (
	defaultBillingRunSpec   = "*/5 * * * *"
	defaultCancellationSpec = "*/10 * * * *"
	defaultSessionPurgeSpec = "0 * * * *"
)

// Scheduler drives the periodic billing sweeps on cron schedules.
type Scheduler struct {
	cron   *cron.Cron
	sweeps *usecase.SweepService
	config *config.SchedulerConfig
	logger *zap.Logger

	// lastCancellationSweep is the lower bound of the next cancellation
	// window. Windows are half-open so a scheduled cancellation lands in
	// exactly one sweep.
	mu                    sync.Mutex
	lastCancellationSweep time.Time
}

// NewScheduler creates a new scheduler
func NewScheduler(sweeps *usecase.SweepService, cfg *config.SchedulerConfig, logger *zap.Logger) *Scheduler {
	// The first cancellation window opens at the zero time so anything that
	// fell due while the process was down is caught up on the first sweep.
	return &Scheduler{
		cron:   cron.New(),
		sweeps: sweeps,
		config: cfg,
		logger: logger,
	}
}

// Start registers the sweep jobs and starts the cron loop.
func (s *Scheduler) Start() error {
	if err := s.register(specOr(s.config.BillingRunSpec, defaultBillingRunSpec), "billing_runs", s.runBillingSweep); err != nil {
		return err
	}
	if err := s.register(specOr(s.config.CancellationSpec, defaultCancellationSpec), "cancellations", s.runCancellationSweep); err != nil {
		return err
	}
	if err := s.register(specOr(s.config.SessionPurgeSpec, defaultSessionPurgeSpec), "session_purge", s.runSessionPurge); err != nil {
		return err
	}

	s.cron.Start()
	s.logger.Info("Scheduler started")
	return nil
}

// Stop stops the cron loop and waits for in-flight jobs to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Scheduler stopped")
}

func (s *Scheduler) register(spec, name string, job func()) error {
	if _, err := s.cron.AddFunc(spec, job); err != nil {
		return fmt.Errorf("failed to schedule %s sweep: %w", name, err)
	}
	s.logger.Info("Registered sweep", zap.String("sweep", name), zap.String("spec", spec))
	return nil
}

func (s *Scheduler) runBillingSweep() {
	ctx := context.Background()
	attempted, err := s.sweeps.RunDueBillingRuns(ctx)
	if err != nil {
		s.logger.Error("Billing run sweep failed", zap.Error(err))
		return
	}
	if attempted > 0 {
		s.logger.Info("Billing run sweep completed", zap.Int("attempted", attempted))
	}
}

func (s *Scheduler) runCancellationSweep() {
	s.mu.Lock()
	from := s.lastCancellationSweep
	to := time.Now().UTC()
	s.lastCancellationSweep = to
	s.mu.Unlock()

	ctx := context.Background()
	finalized, err := s.sweeps.FinalizeDueCancellations(ctx, from, to)
	if err != nil {
		s.logger.Error("Cancellation sweep failed", zap.Error(err))
		return
	}
	if finalized > 0 {
		s.logger.Info("Cancellation sweep completed",
			zap.Int("finalized", finalized),
			zap.Time("window_from", from),
			zap.Time("window_to", to))
	}
}

func (s *Scheduler) runSessionPurge() {
	ctx := context.Background()
	purged, err := s.sweeps.PurgeExpiredSessions(ctx)
	if err != nil {
		s.logger.Error("Session purge sweep failed", zap.Error(err))
		return
	}
	if purged > 0 {
		s.logger.Info("Session purge completed", zap.Int64("purged", purged))
	}
}

func specOr(spec, fallback string) string {
	if spec == "" {
		return fallback
	}
	return spec
}
