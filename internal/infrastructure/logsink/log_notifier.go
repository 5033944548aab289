package logsink

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
)

// LogNotifier stands in for the Lark notifier when Lark is disabled
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) NotifyEscalation(ctx context.Context, msg port.EscalationMessage) error {
	fields := []zap.Field{
		zap.String("document_title", msg.DocumentTitle),
		zap.String("version", msg.VersionString),
		zap.Strings("recipients", msg.Recipients),
	}
	if msg.Record != nil {
		fields = append(fields,
			zap.String("record_id", msg.Record.ID),
			zap.String("version_id", msg.Record.VersionID),
			zap.Int("level", msg.Record.Level),
			zap.String("notify_role", string(msg.Record.NotifyRole)),
		)
	}
	n.logger.Warn("Review escalation", fields...)
	return nil
}

var _ port.Notifier = (*LogNotifier)(nil)
