package service

import (
	"context"
	"fmt"

	"github.com/garyjia/controlled-docs/internal/application/dispatcher"
	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/event"
)

const auditHandlerName = "audit-sink"

// AuditService forwards lifecycle events to the audit sink
type AuditService interface {
	// Register subscribes the service to every event of the dispatcher
	Register(d dispatcher.Dispatcher)
	// Handle records a single event
	Handle(ctx context.Context, evt *event.Event) error
}

type auditServiceImpl struct {
	sink   port.AuditSink
	logger Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(sink port.AuditSink, logger Logger) AuditService {
	return &auditServiceImpl{
		sink:   sink,
		logger: logger,
	}
}

func (s *auditServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeAll(auditHandlerName, s.Handle)
}

func (s *auditServiceImpl) Handle(ctx context.Context, evt *event.Event) error {
	if evt == nil || !evt.Type.IsValid() {
		return fmt.Errorf("audit: unsupported event %v", evt)
	}

	if err := s.sink.Record(ctx, evt); err != nil {
		s.logger.Error("Failed to record audit event",
			"error", err,
			"event_id", evt.ID,
			"event_type", evt.Type,
			"version_id", evt.VersionID,
		)
		return fmt.Errorf("record audit event: %w", err)
	}
	return nil
}
