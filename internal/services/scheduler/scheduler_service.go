package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/mekong/internal/common"
	"github.com/ternarybob/mekong/internal/models"
)

// PipelineRunner is what the scheduler needs from the orchestrator.
type PipelineRunner interface {
	Run(ctx context.Context) (*models.RunHistory, error)
}

// Service triggers pipeline runs on a cron schedule. Single-flight: a tick
// arriving while a pass is still running is skipped, not queued.
type Service struct {
	orchestrator PipelineRunner
	config       *common.SchedulerConfig
	cron         *cron.Cron
	logger       arbor.ILogger

	mu        sync.Mutex
	isRunning bool
	started   bool
	cancelRun context.CancelFunc
	runDone   chan struct{}
}

func NewService(orchestrator PipelineRunner, config *common.SchedulerConfig, logger arbor.ILogger) *Service {
	return &Service{
		orchestrator: orchestrator,
		config:       config,
		cron:         cron.New(),
		logger:       logger,
	}
}

// Start registers the schedule and launches the first run after a short
// warm-up delay.
func (s *Service) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return fmt.Errorf("scheduler already running")
	}

	schedule := s.config.Schedule
	if schedule == "" {
		schedule = "@hourly"
	}
	if _, err := s.cron.AddFunc(schedule, s.tick); err != nil {
		return fmt.Errorf("failed to register schedule %q: %w", schedule, err)
	}

	startupDelay := common.MustDuration(s.config.StartupDelay, time.Minute)
	time.AfterFunc(startupDelay, s.tick)

	s.cron.Start()
	s.started = true
	s.logger.Info().
		Str("schedule", schedule).
		Dur("startup_delay", startupDelay).
		Msg("Scheduler started")
	return nil
}

// tick is one scheduled trigger. Overlapping passes are skipped.
func (s *Service) tick() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	if s.isRunning {
		s.mu.Unlock()
		s.logger.Warn().Msg("Previous run still in progress, skipping tick")
		return
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancelRun = cancel
	s.runDone = done
	s.mu.Unlock()

	defer func() {
		close(done)
		cancel()
		s.mu.Lock()
		s.isRunning = false
		s.cancelRun = nil
		s.runDone = nil
		s.mu.Unlock()
	}()

	if _, err := s.orchestrator.Run(ctx); err != nil {
		s.logger.Error().Err(err).Msg("Scheduled run failed")
	}
}

// RunOnce performs exactly one synchronous pass.
func (s *Service) RunOnce(ctx context.Context) (*models.RunHistory, error) {
	return s.orchestrator.Run(ctx)
}

// Stop shuts the scheduler down, giving an in-flight pass the configured
// grace window to finish before cancelling it.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.started = false
	done := s.runDone
	cancel := s.cancelRun
	s.mu.Unlock()

	cronCtx := s.cron.Stop()
	<-cronCtx.Done()

	if done == nil {
		s.logger.Info().Msg("Scheduler stopped")
		return
	}

	grace := common.MustDuration(s.config.GracePeriod, 2*time.Minute)
	s.logger.Info().Dur("grace", grace).Msg("Waiting for in-flight run to finish")
	select {
	case <-done:
	case <-time.After(grace):
		s.logger.Warn().Msg("Grace period elapsed, cancelling in-flight run")
		if cancel != nil {
			cancel()
		}
		<-done
	}
	s.logger.Info().Msg("Scheduler stopped")
}
