package robot

import (
	"context"
	"log/slog"
	"unicode/utf8"

	"gsd.app/relay/common/logger"
	"gsd.app/relay/internal/status"
)

// Monitor drains a channel's inbound data. The robot echoes what it received,
// so payloads are logged and published but never interpreted.
type Monitor struct {
	channel   Channel
	publisher status.Publisher
	logger    *slog.Logger
}

func NewMonitor(channel Channel, publisher status.Publisher, logger *slog.Logger) *Monitor {
	if publisher == nil {
		publisher = status.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{channel: channel, publisher: publisher, logger: logger}
}

// Run returns when ctx is done or the channel's inbound stream closes.
func (m *Monitor) Run(ctx context.Context) error {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component:    "relay.robot.monitor",
		RobotAddress: logger.Ptr(m.channel.Address()),
	})

	incoming := m.channel.Incoming()
	for {
		select {
		case <-ctx.Done():
			return nil
		case data, ok := <-incoming:
			if !ok {
				m.logger.InfoContext(ctx, "robot inbound stream closed")
				return nil
			}
			m.handle(ctx, data)
		}
	}
}

func (m *Monitor) handle(ctx context.Context, data []byte) {
	text := string(data)
	if !utf8.Valid(data) {
		text = "<binary>"
	}

	m.logger.InfoContext(ctx, "robot data received",
		"bytes", len(data),
		"data", logger.Truncate(text, 256))

	m.publisher.Publish(ctx, status.Event{
		Source:  "robot",
		Level:   status.LevelInfo,
		Step:    "received",
		Message: logger.Truncate(text, 1024),
		Fields:  map[string]any{"bytes": len(data), "address": m.channel.Address()},
	})
}
