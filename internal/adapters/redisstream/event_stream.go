package redisstream

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/timsteinerr/transcriptor/internal/core/domain"
	"github.com/timsteinerr/transcriptor/internal/core/ports"
)

// DefaultStream is the stream key events are appended to.
const DefaultStream = "transcriptor:events"

// defaultMaxLen trims the stream approximately to this many entries.
const defaultMaxLen = 10000

// Options configures the Redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient constructs a go-redis client. It returns nil when no address is set.
func NewClient(opts Options) *redis.Client {
	if opts.Addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         opts.Addr,
		Password:     opts.Password,
		DB:           opts.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

// Ping validates the connection. A nil client is always healthy.
func Ping(ctx context.Context, client *redis.Client) error {
	if client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}

// EventStream appends job events to a Redis stream with XADD.
type EventStream struct {
	client *redis.Client
	stream string
	maxLen int64
}

var _ ports.EventSink = (*EventStream)(nil)

func NewEventStream(client *redis.Client, stream string, maxLen int64) *EventStream {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = defaultMaxLen
	}
	return &EventStream{client: client, stream: stream, maxLen: maxLen}
}

// Append adds one event entry. With a nil client it does nothing.
func (s *EventStream) Append(ctx context.Context, jobID domain.JobID, eventType string, payload []byte) error {
	if s.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	args := &redis.XAddArgs{
		Stream: s.stream,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]any{
			"job_id": string(jobID),
			"type":   eventType,
			"data":   payload,
		},
	}
	if err := s.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("xadd %s: %w", s.stream, err)
	}
	return nil
}

// Stream returns the target stream key.
func (s *EventStream) Stream() string {
	return s.stream
}
