package port

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/garyjia/controlled-docs/internal/domain/entity"
	"github.com/garyjia/controlled-docs/internal/domain/event"
)

// TemplateBinder resolves template IDs. Returns (nil, nil) for unknown templates.
type TemplateBinder interface {
	ResolveTemplate(ctx context.Context, templateID string) (*entity.TemplateBinding, error)
}

// EscalationMessage is what the notification collaborator delivers for one escalation record
type EscalationMessage struct {
	Record        *entity.EscalationRecord
	DocumentTitle string
	DocType       string
	VersionString string
	Recipients    []string
}

// ErrDeliveryRejected marks a notification the channel refused permanently. It is not retried.
var ErrDeliveryRejected = errors.New("notification rejected by channel")

// Notifier delivers escalation messages to people
type Notifier interface {
	NotifyEscalation(ctx context.Context, msg EscalationMessage) error
}

// RaciParser reads a RACI matrix from a spreadsheet upload
type RaciParser interface {
	Parse(r io.Reader) (entity.RaciMatrix, error)
}

// AuditSink receives lifecycle events. Storage of the audit log is outside this service.
type AuditSink interface {
	Record(ctx context.Context, evt *event.Event) error
}

// LeaderLock grants a single active instance for background work
type LeaderLock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}
