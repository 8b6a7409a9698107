package crowdsale

import "time"

type EventType string

const (
	EventContribution         EventType = "contribution"
	EventExcessReturned       EventType = "excess_returned"
	EventCollected            EventType = "collected"
	EventRefund               EventType = "refund"
	EventWhitelistUpdated     EventType = "whitelist_updated"
	EventOwnershipTransferred EventType = "ownership_transferred"
)

// Event describes one sale-level state change. Amounts are decimal strings.
type Event struct {
	Type      EventType `json:"type"`
	Account   string    `json:"account,omitempty"`
	Amount    string    `json:"amount,omitempty"`
	Tokens    string    `json:"tokens,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// EventHandler receives sale events after the emitting operation succeeds.
type EventHandler func(event Event)

// RegisterEventHandler adds a handler notified of every future sale event.
func (e *Engine) RegisterEventHandler(handler EventHandler) {
	e.handlersMu.Lock()
	defer e.handlersMu.Unlock()
	e.handlers = append(e.handlers, handler)
}

// emit fans an event out to the registered handlers. Non-blocking: each
// handler runs on its own goroutine.
func (e *Engine) emit(event Event) {
	e.handlersMu.RLock()
	handlers := make([]EventHandler, len(e.handlers))
	copy(handlers, e.handlers)
	e.handlersMu.RUnlock()

	for _, handler := range handlers {
		go handler(event)
	}
}
