package audit

import (
	"context"
	"log/slog"
)

// Sink receives fire-and-forget audit events. Implementations must never
// fail the calling operation; they are not required for correctness.
type Sink interface {
	Record(ctx context.Context, actor, action string, details map[string]any)
}

type publisher interface {
	Publish(ctx context.Context, routingKey string, body any) error
}

// EventSink publishes audit events to the event exchange under audit.*
// routing keys. Publish errors are logged and swallowed.
type EventSink struct {
	producer publisher
	logger   *slog.Logger
}

func NewEventSink(producer publisher, logger *slog.Logger) *EventSink {
	return &EventSink{producer: producer, logger: logger}
}

func (s *EventSink) Record(ctx context.Context, actor, action string, details map[string]any) {
	body := map[string]any{
		"actor":   actor,
		"action":  action,
		"details": details,
	}
	if err := s.producer.Publish(ctx, "audit."+action, body); err != nil {
		s.logger.Warn("audit publish failed", "action", action, "error", err)
	}
}

// LogSink writes audit events to the structured log. Used when no broker
// is configured, and in tests.
type LogSink struct {
	logger *slog.Logger
}

func NewLogSink(logger *slog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(_ context.Context, actor, action string, details map[string]any) {
	s.logger.Info("audit", "actor", actor, "action", action, "details", details)
}
