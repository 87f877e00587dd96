package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/timsteinerr/transcriptor/internal/core/domain"
	"golang.org/x/sync/semaphore"
)

// SchedulerConfig defines concurrency limits
type SchedulerConfig struct {
	// MaxConcurrentJobs bounds running pipelines. Zero or less means unbounded.
	MaxConcurrentJobs int64
}

// JobHandler runs one job to completion.
type JobHandler func(ctx context.Context, req domain.JobRequest)

// JobScheduler hands every submitted job to its own goroutine. Dispatch never
// blocks the caller; with a limit configured, goroutines wait for a slot.
type JobScheduler struct {
	logger    *slog.Logger
	semaphore *semaphore.Weighted
	wg        sync.WaitGroup
}

func NewJobScheduler(logger *slog.Logger, cfg SchedulerConfig) *JobScheduler {
	s := &JobScheduler{logger: logger}
	if cfg.MaxConcurrentJobs > 0 {
		s.semaphore = semaphore.NewWeighted(cfg.MaxConcurrentJobs)
	}
	return s
}

// Dispatch starts handler for req in the background and returns at once.
func (s *JobScheduler) Dispatch(ctx context.Context, req domain.JobRequest, handler JobHandler) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		if s.semaphore != nil {
			if err := s.semaphore.Acquire(ctx, 1); err != nil {
				s.logger.Error("failed to acquire job slot", "job_id", req.ID, "error", err)
				return
			}
			defer s.semaphore.Release(1)
		}
		handler(ctx, req)
	}()
	s.logger.Info("job dispatched", "job_id", req.ID)
}

// Wait blocks until every dispatched job has returned.
func (s *JobScheduler) Wait() {
	s.wg.Wait()
}
