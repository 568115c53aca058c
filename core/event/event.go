// Package event defines progress events published while a run executes.
// Events are consumed by the CLI progress reporter; processing outcomes are
// returned by the orchestrator directly, not reconstructed from events.
package event

// Event is the base interface for all events.
type Event interface {
	// EventName returns the name of the event for logging/debugging
	EventName() string
}

// AccountEvent is an event that originates from one account's processing.
type AccountEvent interface {
	Event
	// AccountID returns the source account id
	AccountID() string
}

// baseAccountEvent provides common implementation for account events.
type baseAccountEvent struct {
	accountID string
}

func (e *baseAccountEvent) AccountID() string {
	return e.accountID
}
