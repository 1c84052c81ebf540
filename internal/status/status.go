// Package status publishes dispatch and robot events to a capped Redis
// stream that status UIs can follow.
package status

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const streamMaxLen = 2000

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type Event struct {
	Source  string // "dispatch" or "robot"
	Level   Level
	Step    string
	Message string
	Fields  map[string]any
}

type Publisher interface {
	Publish(ctx context.Context, ev Event)
}

// RedisPublisher appends events to a stream with XADD MAXLEN ~.
// Publishing is best effort; failures are logged at debug level.
type RedisPublisher struct {
	client *redis.Client
	stream string
	logger *slog.Logger
	now    func() time.Time
}

func NewRedisPublisher(client *redis.Client, stream string, logger *slog.Logger) *RedisPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisPublisher{client: client, stream: stream, logger: logger, now: time.Now}
}

func (p *RedisPublisher) Stream() string {
	return p.stream
}

func (p *RedisPublisher) Publish(ctx context.Context, ev Event) {
	if p == nil || p.client == nil || p.stream == "" {
		return
	}

	values := map[string]any{
		"source":  ev.Source,
		"level":   string(ev.Level),
		"step":    ev.Step,
		"message": ev.Message,
		"ts":      p.now().UTC().Format(time.RFC3339Nano),
	}
	for key, value := range ev.Fields {
		values[key] = value
	}

	if err := p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: values,
	}).Err(); err != nil {
		p.logger.DebugContext(ctx, "status publish failed", "error", err, "stream", p.stream)
	}
}

// Nop discards events. Used when Redis is not configured.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}
