// Package logsink writes lifecycle events and escalation messages to zap loggers
package logsink

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/event"
)

// AuditSink emits one structured log entry per lifecycle event. The entries
// are meant to be shipped by the log pipeline to the audit store.
type AuditSink struct {
	logger *zap.Logger
}

// NewAuditSink creates an audit sink on a named child logger
func NewAuditSink(logger *zap.Logger) *AuditSink {
	return &AuditSink{logger: logger.Named("audit")}
}

// Record implements port.AuditSink
func (s *AuditSink) Record(ctx context.Context, evt *event.Event) error {
	fields := []zap.Field{
		zap.String("event_id", evt.ID),
		zap.String("event_type", string(evt.Type)),
		zap.String("correlation_id", evt.CorrelationID),
		zap.Time("occurred_at", evt.Timestamp.UTC().Truncate(time.Millisecond)),
	}
	if evt.DocumentID != "" {
		fields = append(fields, zap.String("document_id", evt.DocumentID))
	}
	if evt.VersionID != "" {
		fields = append(fields, zap.String("version_id", evt.VersionID))
	}
	if evt.ActorID != "" {
		fields = append(fields, zap.String("actor_id", evt.ActorID))
	}
	if len(evt.Payload) > 0 {
		fields = append(fields, zap.Any("payload", evt.Payload))
	}

	s.logger.Info("lifecycle event", fields...)
	return nil
}

var _ port.AuditSink = (*AuditSink)(nil)
