package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/timsteinerr/transcriptor/internal/core/domain"
)

// maxIDAttempts bounds id regeneration on collision.
const maxIDAttempts = 8

// JobService is the surface the HTTP layer talks to: submit, status, cleanup.
type JobService struct {
	logger    *slog.Logger
	registry  *JobRegistry
	scheduler *JobScheduler
	pipeline  *WorkerPipeline
	eventBus  *EventBus
	newID     func() domain.JobID
}

func NewJobService(
	logger *slog.Logger,
	registry *JobRegistry,
	scheduler *JobScheduler,
	pipeline *WorkerPipeline,
	eventBus *EventBus,
) *JobService {
	return &JobService{
		logger:    logger,
		registry:  registry,
		scheduler: scheduler,
		pipeline:  pipeline,
		eventBus:  eventBus,
		newID:     NewJobID,
	}
}

// NewJobID returns a random, URL-safe 12 character id.
func NewJobID() domain.JobID {
	id := strings.ReplaceAll(uuid.New().String(), "-", "")
	return domain.JobID(id[:12])
}

// Submit registers a queued job for url and starts its pipeline without waiting.
// ctx scopes the pipeline run, so pass a process-lifetime context rather than a request one.
func (s *JobService) Submit(ctx context.Context, url string) (domain.JobID, error) {
	url = strings.TrimSpace(url)
	if url == "" {
		return "", domain.ErrEmptyURL
	}

	id, err := s.register()
	if err != nil {
		return "", err
	}

	s.eventBus.Publish(Event{
		JobID:     id,
		Type:      EventTypeStatus,
		Status:    domain.JobStatusQueued,
		Progress:  domain.ProgressQueued,
		URL:       url,
		Timestamp: time.Now().Unix(),
	})
	s.scheduler.Dispatch(ctx, domain.JobRequest{ID: id, URL: url}, s.pipeline.Run)

	s.logger.Info("job submitted", "job_id", id, "url", url)
	return id, nil
}

func (s *JobService) register() (domain.JobID, error) {
	var lastErr error
	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id := s.newID()
		err := s.registry.Create(id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, domain.ErrJobExists) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("failed to allocate job id: %w", lastErr)
}

// Status returns the current record for id.
func (s *JobService) Status(id domain.JobID) (domain.JobRecord, error) {
	return s.registry.Get(id)
}

// Cleanup forgets the job. A running pipeline is not stopped; its later
// updates are dropped by the registry.
func (s *JobService) Cleanup(id domain.JobID) {
	s.registry.Delete(id)
	s.logger.Info("job cleaned up", "job_id", id)
}

// ActiveJobs returns the number of records currently held.
func (s *JobService) ActiveJobs() int {
	return s.registry.Len()
}
