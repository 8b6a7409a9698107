package ledger

import (
	"time"
)

type EventType string

const (
	EventTransfer EventType = "Transfer"
	EventMint     EventType = "Mint"
	EventBurn     EventType = "Burn"
	EventApproval EventType = "Approval"
)

// Event records one successful ledger mutation. Amounts are decimal strings
// so journal entries serialize without loss.
type Event struct {
	Type      EventType `json:"type"`
	From      string    `json:"from,omitempty"`
	To        string    `json:"to,omitempty"`
	Amount    string    `json:"amount"`
	Timestamp time.Time `json:"timestamp"`
	TxHash    string    `json:"tx_hash"`
}

// emitEvent appends to the journal. Callers hold l.mu.
func (l *Ledger) emitEvent(event Event) {
	l.events = append(l.events, event)
}

// Events returns a copy of the full event journal.
func (l *Ledger) Events() []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	events := make([]Event, len(l.events))
	copy(events, l.events)
	return events
}

// EventsByType returns journal entries of one type.
func (l *Ledger) EventsByType(eventType EventType) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var filtered []Event
	for _, event := range l.events {
		if event.Type == eventType {
			filtered = append(filtered, event)
		}
	}
	return filtered
}
