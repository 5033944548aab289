package lark

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"go.uber.org/zap"

	"github.com/garyjia/controlled-docs/internal/application/port"
)

// Lark codes that will not succeed on retry: bad receiver, bot not in chat,
// receiver outside the app's visibility
var permanentCodes = map[int]bool{
	230001: true,
	230002: true,
	230013: true,
}

// messageSender is the subset of MessageAPI used by the notifier
type messageSender interface {
	SendMessage(ctx context.Context, receiveIDType, receiveID, msgType, content string) (string, error)
}

// NotifierConfig configures escalation delivery over Lark IM
type NotifierConfig struct {
	ReceiveIDType string
	// BreakerThreshold is the number of consecutive failures that opens the circuit
	BreakerThreshold int
	BreakerTimeout   time.Duration
}

// Notifier implements port.Notifier with Lark text messages, one per recipient.
// Calls go through a circuit breaker so an unavailable Lark API fails fast.
type Notifier struct {
	sender  messageSender
	config  NotifierConfig
	breaker circuitbreaker.CircuitBreaker[string]
	logger  *zap.Logger
}

// NewNotifier creates a new Lark escalation notifier
func NewNotifier(sender messageSender, config NotifierConfig, logger *zap.Logger) *Notifier {
	if config.ReceiveIDType == "" {
		config.ReceiveIDType = "open_id"
	}
	if config.BreakerThreshold <= 0 {
		config.BreakerThreshold = 5
	}
	if config.BreakerTimeout <= 0 {
		config.BreakerTimeout = 30 * time.Second
	}

	threshold := uint32(config.BreakerThreshold) // #nosec G115 -- threshold is validated
	return &Notifier{
		sender: sender,
		config: config,
		breaker: circuitbreaker.New[string](circuitbreaker.Config{
			MaxRequests: 1,
			Interval:    config.BreakerTimeout,
			Timeout:     config.BreakerTimeout,
			ReadyToTrip: func(counts circuitbreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
		}),
		logger: logger,
	}
}

// NotifyEscalation sends the escalation text to every recipient. It returns
// port.ErrDeliveryRejected only when every recipient was refused permanently.
func (n *Notifier) NotifyEscalation(ctx context.Context, msg port.EscalationMessage) error {
	if len(msg.Recipients) == 0 {
		return fmt.Errorf("%w: no recipients", port.ErrDeliveryRejected)
	}

	content, err := json.Marshal(map[string]string{"text": FormatEscalation(msg)})
	if err != nil {
		return fmt.Errorf("failed to marshal message content: %w", err)
	}

	var errs []error
	rejected := 0
	for _, recipient := range msg.Recipients {
		_, err := n.breaker.Execute(ctx, func(ctx context.Context) (string, error) {
			return n.sender.SendMessage(ctx, n.config.ReceiveIDType, recipient, "text", string(content))
		})
		if err == nil {
			continue
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && permanentCodes[apiErr.Code] {
			rejected++
			n.logger.Warn("Lark refused escalation recipient",
				zap.String("recipient", recipient),
				zap.Int("code", apiErr.Code))
		}
		errs = append(errs, fmt.Errorf("recipient %s: %w", recipient, err))
	}

	if len(errs) == 0 {
		return nil
	}
	if rejected == len(msg.Recipients) {
		return fmt.Errorf("%w: %w", port.ErrDeliveryRejected, errors.Join(errs...))
	}
	return errors.Join(errs...)
}

// BreakerState reports the circuit state for health output
func (n *Notifier) BreakerState() string {
	return n.breaker.State().String()
}

// FormatEscalation renders the plain-text body of an escalation message
func FormatEscalation(msg port.EscalationMessage) string {
	var b strings.Builder
	title := msg.DocumentTitle
	if title == "" && msg.Record != nil {
		title = msg.Record.DocumentID
	}

	fmt.Fprintf(&b, "Review overdue: %s", title)
	if msg.VersionString != "" {
		fmt.Fprintf(&b, " v%s", msg.VersionString)
	}
	if msg.DocType != "" {
		fmt.Fprintf(&b, " (%s)", msg.DocType)
	}
	if msg.Record != nil {
		fmt.Fprintf(&b, "\nEscalation level %d", msg.Record.Level)
		if msg.Record.NotifyRole != "" {
			fmt.Fprintf(&b, " for %s", msg.Record.NotifyRole)
		}
		fmt.Fprintf(&b, "\nEscalated at %s", msg.Record.TriggeredAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return b.String()
}

var _ port.Notifier = (*Notifier)(nil)
