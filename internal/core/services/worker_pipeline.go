package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/timsteinerr/transcriptor/internal/core/domain"
	"github.com/timsteinerr/transcriptor/internal/core/ports"
)

// DefaultFetchTimeout bounds one fetcher run.
const DefaultFetchTimeout = 10 * time.Minute

// maxDiagnosticRunes caps the fetcher stderr excerpt stored in a failed record.
const maxDiagnosticRunes = 500

// PipelineConfig tunes the pipeline.
type PipelineConfig struct {
	FetchTimeout time.Duration
}

// PipelineError is a stage-aware failure. Message is what the job record shows.
type PipelineError struct {
	Stage   domain.JobStatus
	Message string
	Err     error
}

func (e *PipelineError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Stage, e.Message)
}

func (e *PipelineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// WorkerPipeline drives one job through download and transcription.
// It keeps its own working copy of the record and only writes to the registry.
type WorkerPipeline struct {
	logger       *slog.Logger
	registry     *JobRegistry
	workspace    *WorkspaceManager
	eventBus     *EventBus
	fetcher      ports.Fetcher
	transcriber  ports.Transcriber
	fetchTimeout time.Duration
}

func NewWorkerPipeline(
	logger *slog.Logger,
	registry *JobRegistry,
	ws *WorkspaceManager,
	eventBus *EventBus,
	fetcher ports.Fetcher,
	transcriber ports.Transcriber,
	cfg PipelineConfig,
) *WorkerPipeline {
	timeout := cfg.FetchTimeout
	if timeout <= 0 {
		timeout = DefaultFetchTimeout
	}
	return &WorkerPipeline{
		logger:       logger,
		registry:     registry,
		workspace:    ws,
		eventBus:     eventBus,
		fetcher:      fetcher,
		transcriber:  transcriber,
		fetchTimeout: timeout,
	}
}

// jobRun is the pipeline's private view of one job.
type jobRun struct {
	req    domain.JobRequest
	record domain.JobRecord
	logger *slog.Logger
}

// Run executes the job to a terminal state. It never panics and always
// removes the job workspace before returning.
func (p *WorkerPipeline) Run(ctx context.Context, req domain.JobRequest) {
	run := &jobRun{
		req:    req,
		record: domain.NewJobRecord(req.ID, time.Now()),
		logger: p.logger.With("job_id", req.ID),
	}
	run.logger.Info("executing job", "url", req.URL)

	defer p.cleanupWorkspace(run)
	defer func() {
		if r := recover(); r != nil {
			run.logger.Error("pipeline panic", "panic", r)
			p.advance(run, domain.Failed{Message: fmt.Sprintf("internal error: %v", r)})
		}
	}()

	transcript, err := p.execute(ctx, run)
	if err != nil {
		run.logger.Error("job failed", "error", err)
		p.advance(run, domain.Failed{Message: failureMessage(err)})
		return
	}

	p.advance(run, domain.Completed{Transcript: transcript})
	run.logger.Info("job completed", "language", transcript.Language, "segments", len(transcript.Segments))
}

func (p *WorkerPipeline) execute(ctx context.Context, run *jobRun) (domain.Transcript, error) {
	dir, err := p.workspace.Prepare(run.req.ID)
	if err != nil {
		return domain.Transcript{}, &PipelineError{Stage: domain.JobStatusQueued, Message: err.Error(), Err: err}
	}

	// 1. Download and extract audio
	p.advance(run, domain.Downloading{})
	if err := p.fetch(ctx, run.req.URL, dir); err != nil {
		return domain.Transcript{}, err
	}

	audioPath, err := FindAudio(dir)
	if err != nil {
		msg := err.Error()
		if errors.Is(err, domain.ErrNoAudio) {
			msg = "No audio file produced after download."
		}
		return domain.Transcript{}, &PipelineError{Stage: domain.JobStatusDownloading, Message: msg, Err: err}
	}
	run.logger.Info("audio located", "path", audioPath)

	// 2. Transcribe
	p.advance(run, domain.Transcribing{})
	transcript, err := p.transcriber.Transcribe(ctx, audioPath)
	if err != nil {
		return domain.Transcript{}, &PipelineError{Stage: domain.JobStatusTranscribing, Message: err.Error(), Err: err}
	}

	return transcript.Normalize(), nil
}

func (p *WorkerPipeline) fetch(ctx context.Context, url, dir string) error {
	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	res, err := p.fetcher.Fetch(fetchCtx, url, dir)
	if errors.Is(fetchCtx.Err(), context.DeadlineExceeded) || errors.Is(err, domain.ErrFetchTimeout) {
		return &PipelineError{
			Stage:   domain.JobStatusDownloading,
			Message: TimeoutMessage(p.fetchTimeout),
			Err:     domain.ErrFetchTimeout,
		}
	}
	if err != nil {
		return &PipelineError{Stage: domain.JobStatusDownloading, Message: err.Error(), Err: err}
	}
	if res.ExitCode != 0 {
		return &PipelineError{
			Stage:   domain.JobStatusDownloading,
			Message: "Download failed: " + truncateRunes(res.Stderr, maxDiagnosticRunes),
			Err:     fmt.Errorf("fetcher exit code %d", res.ExitCode),
		}
	}
	return nil
}

// advance applies u to the working copy and the registry, then publishes it.
func (p *WorkerPipeline) advance(run *jobRun, u domain.JobUpdate) {
	if !domain.Apply(&run.record, u, time.Now()) {
		return
	}
	if !p.registry.Update(run.req.ID, u) {
		run.logger.Debug("registry update dropped", "status", u.Status())
	}

	event := Event{
		JobID:     run.req.ID,
		Type:      EventTypeStatus,
		Status:    run.record.Status,
		Progress:  run.record.Progress,
		Message:   run.record.Error,
		URL:       run.req.URL,
		Timestamp: time.Now().Unix(),
	}
	if run.record.Result != nil {
		event.Language = run.record.Result.Language
	}
	p.eventBus.Publish(event)
}

func (p *WorkerPipeline) cleanupWorkspace(run *jobRun) {
	if err := p.workspace.Cleanup(run.req.ID); err != nil {
		run.logger.Warn("failed to remove job workspace", "path", p.workspace.Path(run.req.ID), "error", err)
	}
}

// TimeoutMessage is the record message for a fetch that exceeded its limit.
func TimeoutMessage(limit time.Duration) string {
	if limit >= time.Minute && limit%time.Minute == 0 {
		return fmt.Sprintf("Download timed out (%d min limit).", int(limit/time.Minute))
	}
	return fmt.Sprintf("Download timed out (%s limit).", limit)
}

func failureMessage(err error) string {
	var pErr *PipelineError
	if errors.As(err, &pErr) && pErr.Message != "" {
		return pErr.Message
	}
	return err.Error()
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
