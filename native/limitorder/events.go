package limitorder

import "strconv"

const (
	EventTypeOrderCreated    = "limitorder.created"
	EventTypeOrderCancelled  = "limitorder.cancelled"
	EventTypeOrderExecuted   = "limitorder.executed"
	EventTypeExecutionFailed = "limitorder.execution_failed"
)

// Event is the payload handed to the configured emitter after a committed
// state transition (or a failed execution attempt).
type Event struct {
	Type       string
	Attributes map[string]string
}

// Emitter receives engine events. Implementations must not block.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter drops all events.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

func newOrderEvent(eventType string, o *Order) Event {
	attrs := map[string]string{
		"id":    strconv.FormatUint(o.ID, 10),
		"owner": o.Owner.Hex(),
		"token": o.TokenOut.Hex(),
	}
	if o.AmountIn != nil {
		attrs["amountIn"] = o.AmountIn.String()
	}
	return Event{Type: eventType, Attributes: attrs}
}

func newExecutionFailedEvent(o *Order, cause error) Event {
	evt := newOrderEvent(EventTypeExecutionFailed, o)
	if cause != nil {
		evt.Attributes["reason"] = cause.Error()
	}
	return evt
}
