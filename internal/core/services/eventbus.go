package services

import (
	"log/slog"
	"sync"

	"github.com/timsteinerr/transcriptor/internal/core/domain"
)

type EventType string

const (
	EventTypeStatus EventType = "status"
	EventTypeLog    EventType = "log"
)

// Event describes one job transition or log line.
type Event struct {
	JobID     domain.JobID     `json:"job_id"`
	Type      EventType        `json:"type"`
	Status    domain.JobStatus `json:"status,omitempty"`
	Progress  int              `json:"progress"`
	Message   string           `json:"message,omitempty"`
	URL       string           `json:"url,omitempty"`
	Language  string           `json:"language,omitempty"`
	Timestamp int64            `json:"timestamp"`
}

// Terminal reports whether the event closes a job lifecycle.
func (e Event) Terminal() bool {
	return e.Type == EventTypeStatus && e.Status.IsTerminal()
}

// EventBus fans job events out to every subscriber without blocking publishers.
type EventBus struct {
	logger *slog.Logger
	mu     sync.RWMutex
	subs   []chan Event
}

func NewEventBus(logger *slog.Logger) *EventBus {
	return &EventBus{logger: logger}
}

// Subscribe returns a channel that receives the events of every job.
func (b *EventBus) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 256)
	b.subs = append(b.subs, ch)

	var once sync.Once
	unsub := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, sub := range b.subs {
				if sub == ch {
					close(ch)
					b.subs = append(b.subs[:i], b.subs[i+1:]...)
					break
				}
			}
		})
	}

	return ch, unsub
}

// Publish sends an event to all subscribers.
// It never blocks; events for full channels are dropped.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subs {
		b.deliver(ch, e)
	}
}

func (b *EventBus) deliver(ch chan Event, e Event) {
	select {
	case ch <- e:
	default:
		b.logger.Warn("event bus channel full, dropping event", "job_id", e.JobID, "status", e.Status)
	}
}
