package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/timsteinerr/transcriptor/internal/core/domain"
)

// JobRegistry is the single source of truth for job state, shared between
// request handlers and pipeline goroutines. All access goes through its methods.
type JobRegistry struct {
	mu   sync.RWMutex
	jobs map[domain.JobID]*domain.JobRecord
	now  func() time.Time
}

func NewJobRegistry() *JobRegistry {
	return &JobRegistry{
		jobs: make(map[domain.JobID]*domain.JobRecord),
		now:  time.Now,
	}
}

// Create inserts a queued record. Ids must be fresh.
func (r *JobRegistry) Create(id domain.JobID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.jobs[id]; exists {
		return fmt.Errorf("create %s: %w", id, domain.ErrJobExists)
	}
	rec := domain.NewJobRecord(id, r.now())
	r.jobs[id] = &rec
	return nil
}

// Update applies u to the record. Updates for deleted or terminal records are
// dropped; the return value reports whether the record changed.
func (r *JobRegistry) Update(id domain.JobID, u domain.JobUpdate) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.jobs[id]
	if !ok {
		return false
	}
	return domain.Apply(rec, u, r.now())
}

// Get returns a copy of the record.
func (r *JobRegistry) Get(id domain.JobID) (domain.JobRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.jobs[id]
	if !ok {
		return domain.JobRecord{}, domain.ErrJobNotFound
	}
	return rec.Clone(), nil
}

// Delete removes the record. Missing ids are ignored.
func (r *JobRegistry) Delete(id domain.JobID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.jobs, id)
}

// Len returns the number of tracked jobs.
func (r *JobRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs)
}
