package ports

import (
	"context"
	"time"

	"github.com/timsteinerr/transcriptor/internal/core/domain"
)

// FetchResult is the outcome of one fetcher process run.
type FetchResult struct {
	ExitCode int
	Stderr   string
}

// Fetcher downloads a remote URL and deposits one normalized audio file in destDir.
// A non-zero ExitCode with a nil error means the tool ran and reported failure.
// The caller bounds the call with a context deadline.
type Fetcher interface {
	Fetch(ctx context.Context, url, destDir string) (FetchResult, error)
}

// Transcriber converts an audio file into text, segments and a language tag.
type Transcriber interface {
	Transcribe(ctx context.Context, audioPath string) (domain.Transcript, error)
}

// HistoryEntry is a terminal job outcome kept for operators.
type HistoryEntry struct {
	JobID      domain.JobID     `json:"job_id"`
	URL        string           `json:"url"`
	Status     domain.JobStatus `json:"status"`
	Error      string           `json:"error,omitempty"`
	Language   string           `json:"language,omitempty"`
	FinishedAt time.Time        `json:"finished_at"`
}

// HistoryRepository stores terminal job outcomes. It is never used to restore jobs.
type HistoryRepository interface {
	SaveOutcome(ctx context.Context, entry HistoryEntry) error
	ListRecent(ctx context.Context, limit int) ([]HistoryEntry, error)
}

// EventSink receives serialized job events for mirroring outside the process.
type EventSink interface {
	Append(ctx context.Context, jobID domain.JobID, eventType string, payload []byte) error
}
