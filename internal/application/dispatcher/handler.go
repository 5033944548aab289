package dispatcher

import (
	"context"
	"fmt"

	"github.com/garyjia/controlled-docs/internal/domain/event"
)

// Handler reacts to a committed lifecycle event
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo describes a registered handler
type HandlerInfo struct {
	Name      string
	EventType event.Type
	// AllEvents marks handlers registered with SubscribeAll; EventType is empty for them
	AllEvents   bool
	Handler     Handler
	Description string
}

// PanicError is returned when a handler panics
type PanicError struct {
	Handler string
	Value   interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("handler %s panicked: %v", e.Handler, e.Value)
}

// invoke runs the handler, turning a panic into a *PanicError
func (h HandlerInfo) invoke(ctx context.Context, evt *event.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Handler: h.Name, Value: r}
		}
	}()
	return h.Handler(ctx, evt)
}
