package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/garyjia/controlled-docs/internal/domain/event"
)

type mockAuditSink struct {
	recorded []*event.Event
	err      error
}

func (m *mockAuditSink) Record(ctx context.Context, evt *event.Event) error {
	if m.err != nil {
		return m.err
	}
	m.recorded = append(m.recorded, evt)
	return nil
}

func TestAuditService_Register(t *testing.T) {
	sink := &mockAuditSink{}
	d := &mockDispatcher{}
	svc := NewAuditService(sink, &mockLogger{})

	svc.Register(d)

	handler, ok := d.wildcard[auditHandlerName]
	if !ok {
		t.Fatalf("audit handler not registered, have %v", d.wildcard)
	}

	evt := event.NewTransition("doc-1", "v1", "alice", "SUBMIT", "DRAFT", "IN_REVIEW", time.Now())
	if err := handler(context.Background(), evt); err != nil {
		t.Fatalf("handler failed: %v", err)
	}
	if len(sink.recorded) != 1 || sink.recorded[0].ID != evt.ID {
		t.Errorf("recorded %v, want the dispatched event", sink.recorded)
	}
}

func TestAuditService_Handle(t *testing.T) {
	sinkErr := errors.New("disk full")

	tests := []struct {
		name      string
		evt       *event.Event
		sinkErr   error
		wantErr   bool
		wantSink  int
		wantError int
	}{
		{
			name:     "transition recorded",
			evt:      event.NewTransition("doc-1", "v1", "alice", "APPROVE", "IN_REVIEW", "APPROVED", time.Now()),
			wantSink: 1,
		},
		{
			name:     "escalation recorded",
			evt:      event.NewEscalation("doc-1", "v1", 2, "QA Officer", nil, time.Now()),
			wantSink: 1,
		},
		{
			name:    "nil event",
			evt:     nil,
			wantErr: true,
		},
		{
			name:    "unknown type",
			evt:     event.NewEvent("document.shredded", "doc-1", "v1", "alice", nil),
			wantErr: true,
		},
		{
			name:      "sink failure",
			evt:       event.NewEvent(event.TypeDocumentCreated, "doc-1", "", "alice", nil),
			sinkErr:   sinkErr,
			wantErr:   true,
			wantError: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &mockAuditSink{err: tt.sinkErr}
			logger := &mockLogger{}
			svc := NewAuditService(sink, logger)

			err := svc.Handle(context.Background(), tt.evt)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Handle() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.sinkErr != nil && !errors.Is(err, tt.sinkErr) {
				t.Errorf("Handle() error = %v, want wrapped %v", err, tt.sinkErr)
			}
			if len(sink.recorded) != tt.wantSink {
				t.Errorf("recorded %d events, want %d", len(sink.recorded), tt.wantSink)
			}
			if len(logger.errors) != tt.wantError {
				t.Errorf("logged %d errors, want %d", len(logger.errors), tt.wantError)
			}
		})
	}
}
