package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	appprocurement "github.com/manavault/backend/internal/application/procurement"
	"github.com/manavault/backend/internal/infrastructure/telemetry"
)

// Reconciler runs one reconciliation pass over every pending sub-order.
type Reconciler interface {
	ReconcileAllPending(ctx context.Context) (*appprocurement.ReconciliationSummary, error)
}

// ReconciliationSchedulerConfig holds configuration for the reconciliation scheduler
type ReconciliationSchedulerConfig struct {
	Enabled bool

	// Interval between the end of one run and the start of the next
	Interval time.Duration

	// RunTimeout bounds a single run, supplier calls included
	RunTimeout time.Duration

	// RunOnStart triggers a run as soon as the scheduler starts
	RunOnStart bool
}

// DefaultReconciliationSchedulerConfig returns default configuration
func DefaultReconciliationSchedulerConfig() ReconciliationSchedulerConfig {
	return ReconciliationSchedulerConfig{
		Enabled:    true,
		Interval:   5 * time.Minute,
		RunTimeout: 4 * time.Minute,
		RunOnStart: true,
	}
}

// Validate validates the configuration
func (c ReconciliationSchedulerConfig) Validate() error {
	if c.Interval <= 0 {
		return fmt.Errorf("%w: interval must be positive", ErrInvalidConfig)
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("%w: run timeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// RunRecord is the outcome of one scheduled or triggered run.
type RunRecord struct {
	Trigger   string
	StartedAt time.Time
	Summary   *appprocurement.ReconciliationSummary
	Err       error
}

// ReconciliationScheduler runs reconciliation on an interval. Runs never
// overlap: triggers that arrive during a run are coalesced into one follow-up run.
type ReconciliationScheduler struct {
	reconciler Reconciler
	logger     *zap.Logger
	config     ReconciliationSchedulerConfig

	trigger   chan string
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool

	lastMu  sync.RWMutex
	lastRun *RunRecord
}

// NewReconciliationScheduler creates a new reconciliation scheduler
func NewReconciliationScheduler(reconciler Reconciler, logger *zap.Logger, config ReconciliationSchedulerConfig) (*ReconciliationScheduler, error) {
	if config.Enabled {
		if err := config.Validate(); err != nil {
			return nil, err
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReconciliationScheduler{
		reconciler: reconciler,
		logger:     logger,
		config:     config,
		trigger:    make(chan string, 1),
	}, nil
}

// Start starts the scheduler loop. A disabled scheduler logs and returns.
func (s *ReconciliationScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Reconciliation scheduler is disabled")
		return nil
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	if s.config.RunOnStart {
		s.enqueue("startup")
	}

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Reconciliation scheduler started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("run_timeout", s.config.RunTimeout),
		zap.Bool("run_on_start", s.config.RunOnStart),
	)
	return nil
}

// Stop cancels the loop and waits for an in-flight run, bounded by ctx.
func (s *ReconciliationScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Reconciliation scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Reconciliation scheduler stop timed out")
		return ctx.Err()
	}
}

// TriggerImmediate queues a run without waiting for the interval.
func (s *ReconciliationScheduler) TriggerImmediate() error {
	s.mu.Lock()
	running := s.isRunning
	s.mu.Unlock()
	if !running {
		return ErrSchedulerNotRunning
	}
	s.enqueue("manual")
	return nil
}

// IsRunning reports whether the loop is active.
func (s *ReconciliationScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// LastRun returns the most recent run, or nil before the first one finishes.
func (s *ReconciliationScheduler) LastRun() *RunRecord {
	s.lastMu.RLock()
	defer s.lastMu.RUnlock()
	if s.lastRun == nil {
		return nil
	}
	rec := *s.lastRun
	return &rec
}

func (s *ReconciliationScheduler) enqueue(reason string) {
	select {
	case s.trigger <- reason:
	default:
		// a run is already queued
	}
}

func (s *ReconciliationScheduler) loop(ctx context.Context) {
	defer s.wg.Done()

	timer := time.NewTimer(s.config.Interval)
	defer timer.Stop()

	for {
		var reason string
		select {
		case <-ctx.Done():
			return
		case reason = <-s.trigger:
		case <-timer.C:
			reason = "interval"
		}

		s.execute(ctx, reason)

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.config.Interval)
	}
}

func (s *ReconciliationScheduler) execute(ctx context.Context, reason string) {
	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	rec := &RunRecord{Trigger: reason, StartedAt: time.Now()}
	telemetry.WithProfilingLabels(runCtx, map[string]string{"job": "reconciliation", "trigger": reason}, func(ctx context.Context) {
		rec.Summary, rec.Err = s.reconciler.ReconcileAllPending(ctx)
	})

	switch {
	case rec.Err != nil:
		s.logger.Error("Scheduled reconciliation failed",
			zap.String("trigger", reason),
			zap.Duration("elapsed", time.Since(rec.StartedAt)),
			zap.Error(rec.Err),
		)
	case rec.Summary != nil:
		s.logger.Info("Scheduled reconciliation finished",
			zap.String("trigger", reason),
			zap.Int("total_orders", rec.Summary.TotalOrders),
			zap.Int("processed_orders", rec.Summary.ProcessedOrders),
			zap.Int("failed_orders", rec.Summary.FailedOrders),
			zap.Int("vouchers_added", rec.Summary.TotalVouchersAdded),
			zap.Duration("elapsed", time.Since(rec.StartedAt)),
		)
	}

	s.lastMu.Lock()
	s.lastRun = rec
	s.lastMu.Unlock()
}
