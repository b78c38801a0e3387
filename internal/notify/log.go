package notify

import (
	"context"
	"log/slog"

	"github.com/dukerupert/daybook/internal/model"
)

// Log writes reminders to a structured logger. It is always part of the
// fan-out so headless setups still leave a trace.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger.With("component", "notify")}
}

func (l *Log) Notify(ctx context.Context, a model.Alarm) error {
	l.logger.InfoContext(ctx, "reminder",
		"kind", a.Kind,
		"entity_id", a.EntityID,
		"title", a.Title,
		"body", a.Body,
		"trigger_at", a.TriggerAt,
	)
	return nil
}
