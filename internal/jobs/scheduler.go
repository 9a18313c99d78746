package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gorm.io/gorm"

	"qrlink/internal/config"
)

// DBManager is the database surface the maintenance jobs need.
type DBManager interface {
	GetConnection() *gorm.DB
	CheckpointWAL(mode string) error
}

// Job is a periodic maintenance task.
type Job interface {
	Name() string
	Run() error
}

// Scheduler is responsible for running background jobs
type Scheduler struct {
	logger   *slog.Logger
	interval time.Duration
	jobs     []Job

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	isRunning bool

	// Mutex to prevent concurrent job executions
	processingMutex sync.Mutex
	isProcessing    bool
}

func NewScheduler(dbManager DBManager, logger *slog.Logger, cfg *config.Config) *Scheduler {
	return NewSchedulerWithJobs(logger, cfg.JobInterval(),
		NewOrphanScanCleanupJob(dbManager, logger),
		NewWALCheckpointJob(dbManager, logger),
	)
}

func NewSchedulerWithJobs(logger *slog.Logger, interval time.Duration, jobs ...Job) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger:   logger,
		interval: interval,
		jobs:     jobs,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// executeJobSafely runs a job only if no other job is currently executing
func (s *Scheduler) executeJobSafely(job Job) {
	s.processingMutex.Lock()
	if s.isProcessing {
		s.logger.Debug("Skipping job execution - previous job still running", slog.String("job", job.Name()))
		s.processingMutex.Unlock()
		return
	}
	s.isProcessing = true
	s.processingMutex.Unlock()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Panic recovered in background job",
				slog.String("job", job.Name()),
				slog.Any("panic", r))
		}

		s.processingMutex.Lock()
		s.isProcessing = false
		s.processingMutex.Unlock()
	}()

	if err := job.Run(); err != nil {
		s.logger.Error("Error executing job", slog.String("job", job.Name()), slog.Any("error", err))
	}
}

// Start begins all background jobs
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.logger.Info("Background jobs already running.")
		return nil
	}
	if s.ctx.Err() != nil {
		s.logger.Info("Background jobs are stopped.")
		return nil
	}
	s.isRunning = true

	for _, job := range s.jobs {
		s.startJob(job)
	}

	s.logger.Info("Background jobs started",
		slog.Int("jobs", len(s.jobs)),
		slog.Duration("interval", s.interval))
	return nil
}

func (s *Scheduler) startJob(job Job) {
	ticker := time.NewTicker(s.interval)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer ticker.Stop()

		s.executeJobSafely(job)
		for {
			select {
			case <-ticker.C:
				s.executeJobSafely(job)
			case <-s.ctx.Done():
				s.logger.Info("Background job stopped", slog.String("job", job.Name()))
				return
			}
		}
	}()
}

// Stop halts all background jobs and waits for running ones to return.
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background jobs...")
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.isRunning = false
	s.mu.Unlock()
	s.logger.Info("Background jobs stopped")
}

// IsRunning returns whether jobs are currently running
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}
