package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/timsteinerr/transcriptor/internal/core/ports"
)

// HistoryRecorder persists terminal job outcomes as they are published.
type HistoryRecorder struct {
	logger *slog.Logger
	bus    *EventBus
	repo   ports.HistoryRepository
}

func NewHistoryRecorder(logger *slog.Logger, bus *EventBus, repo ports.HistoryRepository) *HistoryRecorder {
	return &HistoryRecorder{logger: logger, bus: bus, repo: repo}
}

// Run consumes events until ctx is done. Events already buffered when ctx
// ends are still recorded; ctx bounds the loop, not the individual saves.
func (h *HistoryRecorder) Run(ctx context.Context) error {
	events, unsub := h.bus.Subscribe()
	defer unsub()
	saveCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			drain(events, func(e Event) { h.record(saveCtx, e) })
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			h.record(saveCtx, e)
		}
	}
}

func (h *HistoryRecorder) record(ctx context.Context, e Event) {
	if !e.Terminal() {
		return
	}
	entry := ports.HistoryEntry{
		JobID:      e.JobID,
		URL:        e.URL,
		Status:     e.Status,
		Error:      e.Message,
		Language:   e.Language,
		FinishedAt: time.Unix(e.Timestamp, 0).UTC(),
	}
	if err := h.repo.SaveOutcome(ctx, entry); err != nil {
		h.logger.Warn("failed to record job outcome", "job_id", e.JobID, "error", err)
	}
}

// EventRelay forwards every published event to an external sink.
type EventRelay struct {
	logger *slog.Logger
	bus    *EventBus
	sink   ports.EventSink
}

func NewEventRelay(logger *slog.Logger, bus *EventBus, sink ports.EventSink) *EventRelay {
	return &EventRelay{logger: logger, bus: bus, sink: sink}
}

// Run forwards events until ctx is done, then flushes what is still buffered.
// Sink failures are logged and skipped.
func (r *EventRelay) Run(ctx context.Context) error {
	events, unsub := r.bus.Subscribe()
	defer unsub()
	appendCtx := context.WithoutCancel(ctx)

	for {
		select {
		case <-ctx.Done():
			drain(events, func(e Event) { r.forward(appendCtx, e) })
			return nil
		case e, ok := <-events:
			if !ok {
				return nil
			}
			r.forward(appendCtx, e)
		}
	}
}

func (r *EventRelay) forward(ctx context.Context, e Event) {
	payload, err := json.Marshal(e)
	if err != nil {
		r.logger.Error("failed to encode event", "job_id", e.JobID, "error", err)
		return
	}
	if err := r.sink.Append(ctx, e.JobID, string(e.Type), payload); err != nil {
		r.logger.Warn("failed to relay event", "job_id", e.JobID, "error", err)
	}
}

// drain hands every event already buffered in events to fn without waiting for more.
func drain(events <-chan Event, fn func(Event)) {
	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			fn(e)
		default:
			return
		}
	}
}
