package domain

import (
	"encoding/json"
	"errors"
	"time"
)

type JobID string

type JobStatus string

const (
	JobStatusQueued       JobStatus = "queued"
	JobStatusDownloading  JobStatus = "downloading"
	JobStatusTranscribing JobStatus = "transcribing"
	JobStatusDone         JobStatus = "done"
	JobStatusError        JobStatus = "error"
)

// IsTerminal reports whether no further mutation may happen in this state.
func (s JobStatus) IsTerminal() bool {
	return s == JobStatusDone || s == JobStatusError
}

// Progress markers reached on each transition.
const (
	ProgressQueued       = 0
	ProgressDownloading  = 10
	ProgressTranscribing = 50
	ProgressDone         = 100
)

// UnknownLanguage is recorded when the engine does not report a language.
const UnknownLanguage = "unknown"

var (
	ErrJobNotFound  = errors.New("job not found")
	ErrJobExists    = errors.New("job already exists")
	ErrEmptyURL     = errors.New("no URL provided")
	ErrFetchTimeout = errors.New("download timed out")
	ErrNoAudio      = errors.New("no audio file produced after download")
)

// JobRequest binds a job id to the URL it was submitted with.
type JobRequest struct {
	ID  JobID
	URL string
}

// JobRecord is the state snapshot of one transcription request.
// Result is set only in JobStatusDone, Error only in JobStatusError.
type JobRecord struct {
	ID        JobID
	Status    JobStatus
	Progress  int
	Result    *Transcript
	Error     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewJobRecord returns a freshly queued record.
func NewJobRecord(id JobID, now time.Time) JobRecord {
	return JobRecord{
		ID:        id,
		Status:    JobStatusQueued,
		Progress:  ProgressQueued,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a copy that shares no mutable memory with r.
func (r JobRecord) Clone() JobRecord {
	if r.Result != nil {
		res := r.Result.Clone()
		r.Result = &res
	}
	return r
}

// jobRecordJSON is the wire form polled by clients. Absent fields encode as null.
type jobRecordJSON struct {
	Status     JobStatus `json:"status"`
	Progress   int       `json:"progress"`
	Transcript *string   `json:"transcript"`
	Segments   []Segment `json:"segments"`
	Language   *string   `json:"language"`
	Error      *string   `json:"error"`
}

// MarshalJSON encodes the record with the status polling schema.
func (r JobRecord) MarshalJSON() ([]byte, error) {
	out := jobRecordJSON{
		Status:   r.Status,
		Progress: r.Progress,
	}
	if r.Result != nil {
		text := r.Result.Text
		lang := r.Result.Language
		out.Transcript = &text
		out.Language = &lang
		out.Segments = r.Result.Segments
		if out.Segments == nil {
			out.Segments = []Segment{}
		}
	}
	if r.Status == JobStatusError {
		msg := r.Error
		out.Error = &msg
	}
	return json.Marshal(out)
}

// JobUpdate is a closed set of state transitions applied by the registry.
// Each variant writes the complete field set of its target state.
type JobUpdate interface {
	Status() JobStatus
	apply(r *JobRecord)
}

// Downloading moves a job into the fetch phase.
type Downloading struct{}

func (Downloading) Status() JobStatus { return JobStatusDownloading }

func (Downloading) apply(r *JobRecord) {
	r.Status = JobStatusDownloading
	r.Progress = max(r.Progress, ProgressDownloading)
}

// Transcribing moves a job into the speech-to-text phase.
type Transcribing struct{}

func (Transcribing) Status() JobStatus { return JobStatusTranscribing }

func (Transcribing) apply(r *JobRecord) {
	r.Status = JobStatusTranscribing
	r.Progress = max(r.Progress, ProgressTranscribing)
}

// Completed records the transcription result.
type Completed struct {
	Transcript Transcript
}

func (Completed) Status() JobStatus { return JobStatusDone }

func (c Completed) apply(r *JobRecord) {
	res := c.Transcript.Clone()
	r.Status = JobStatusDone
	r.Progress = ProgressDone
	r.Result = &res
	r.Error = ""
}

// Failed records a terminal failure. Progress is left where it was.
type Failed struct {
	Message string
}

func (Failed) Status() JobStatus { return JobStatusError }

func (f Failed) apply(r *JobRecord) {
	r.Status = JobStatusError
	r.Error = f.Message
	if r.Error == "" {
		r.Error = "unknown error"
	}
	r.Result = nil
}

// Apply mutates r with u unless r is already terminal. It reports whether r changed.
func Apply(r *JobRecord, u JobUpdate, now time.Time) bool {
	if u == nil || r.Status.IsTerminal() {
		return false
	}
	u.apply(r)
	r.UpdatedAt = now
	return true
}
