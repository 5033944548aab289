package lark

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
	"github.com/garyjia/controlled-docs/internal/domain/entity"
)

type sentMessage struct {
	receiveIDType string
	receiveID     string
	msgType       string
	content       string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentMessage
	errFn func(receiveID string) error
}

func (f *fakeSender) SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errFn != nil {
		if err := f.errFn(receiveID); err != nil {
			return "", err
		}
	}
	f.sent = append(f.sent, sentMessage{receiveIDType, receiveID, msgType, content})
	return "om_" + receiveID, nil
}

func escalationMessage(recipients ...string) port.EscalationMessage {
	return port.EscalationMessage{
		Record: &entity.EscalationRecord{
			ID:          "rec-1",
			VersionID:   "v1",
			DocumentID:  "doc-1",
			Level:       2,
			NotifyRole:  entity.RoleQAOfficer,
			TriggeredAt: time.Date(2026, 4, 9, 8, 0, 0, 0, time.UTC),
		},
		DocumentTitle: "Cleaning SOP",
		DocType:       "SOP",
		VersionString: "3.0",
		Recipients:    recipients,
	}
}

func TestNotifier_NotifyEscalation(t *testing.T) {
	sender := &fakeSender{}
	n := NewNotifier(sender, NotifierConfig{ReceiveIDType: "user_id"}, zap.NewNop())

	require.NoError(t, n.NotifyEscalation(context.Background(), escalationMessage("u1", "u2")))
	require.Len(t, sender.sent, 2)

	first := sender.sent[0]
	assert.Equal(t, "user_id", first.receiveIDType)
	assert.Equal(t, "u1", first.receiveID)
	assert.Equal(t, "text", first.msgType)

	var body map[string]string
	require.NoError(t, json.Unmarshal([]byte(first.content), &body))
	assert.Contains(t, body["text"], "Cleaning SOP v3.0 (SOP)")
	assert.Contains(t, body["text"], "Escalation level 2 for QA Officer")
}

func TestNotifier_Errors(t *testing.T) {
	t.Run("every recipient refused", func(t *testing.T) {
		sender := &fakeSender{errFn: func(string) error { return &APIError{Code: 230013, Msg: "no availability"} }}
		n := NewNotifier(sender, NotifierConfig{}, zap.NewNop())

		err := n.NotifyEscalation(context.Background(), escalationMessage("u1", "u2"))
		assert.ErrorIs(t, err, port.ErrDeliveryRejected)
	})

	t.Run("transient failure is retryable", func(t *testing.T) {
		sender := &fakeSender{errFn: func(id string) error {
			if id == "u2" {
				return errors.New("connection reset")
			}
			return nil
		}}
		n := NewNotifier(sender, NotifierConfig{}, zap.NewNop())

		err := n.NotifyEscalation(context.Background(), escalationMessage("u1", "u2"))
		require.Error(t, err)
		assert.NotErrorIs(t, err, port.ErrDeliveryRejected)
		assert.Len(t, sender.sent, 1)
	})

	t.Run("no recipients", func(t *testing.T) {
		n := NewNotifier(&fakeSender{}, NotifierConfig{}, zap.NewNop())
		err := n.NotifyEscalation(context.Background(), escalationMessage())
		assert.ErrorIs(t, err, port.ErrDeliveryRejected)
	})
}

func TestNotifier_BreakerOpens(t *testing.T) {
	calls := 0
	sender := &fakeSender{errFn: func(string) error {
		calls++
		return errors.New("503 service unavailable")
	}}
	n := NewNotifier(sender, NotifierConfig{BreakerThreshold: 2, BreakerTimeout: time.Minute}, zap.NewNop())

	for i := 0; i < 4; i++ {
		_ = n.NotifyEscalation(context.Background(), escalationMessage("u1"))
	}

	assert.Equal(t, 2, calls, "open circuit should stop calls to Lark")

	fresh := NewNotifier(&fakeSender{}, NotifierConfig{}, zap.NewNop())
	assert.NotEqual(t, fresh.BreakerState(), n.BreakerState())
}

func TestFormatEscalation(t *testing.T) {
	msg := escalationMessage("u1")
	msg.DocumentTitle = ""
	msg.VersionString = ""
	msg.DocType = ""

	text := FormatEscalation(msg)
	assert.Contains(t, text, "Review overdue: doc-1")
	assert.Contains(t, text, "Escalated at 2026-04-09 08:00 UTC")
}
