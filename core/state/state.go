// Package state defines the free-license claim state machine.
package state

import "fmt"

// ClaimState represents the state of a product-page claim attempt.
type ClaimState int

const (
	// StateInit is the initial state: opening the product page.
	StateInit ClaimState = iota
	// StateAgeGate indicates an age-verification interstitial is being passed.
	StateAgeGate
	// StateOwnershipCheck indicates the page is being checked for an
	// already-owned affordance.
	StateOwnershipCheck
	// StateEligibilityCheck indicates the page is being checked for a
	// free-license form.
	StateEligibilityCheck
	// StateParamResolution indicates claim params are being resolved from
	// cache or scraped from the page.
	StateParamResolution
	// StateSubmit indicates the add-free-license request is being issued.
	StateSubmit
	// StateDone is terminal: the license was acquired.
	StateDone
	// StateSkipped is terminal: no action was needed or possible.
	StateSkipped
	// StateFailed is terminal: the claim could not complete.
	StateFailed
)

// String returns the string representation of the state.
func (s ClaimState) String() string {
	switch s {
	case StateInit:
		return "Init"
	case StateAgeGate:
		return "AgeGate"
	case StateOwnershipCheck:
		return "OwnershipCheck"
	case StateEligibilityCheck:
		return "EligibilityCheck"
	case StateParamResolution:
		return "ParamResolution"
	case StateSubmit:
		return "Submit"
	case StateDone:
		return "Done"
	case StateSkipped:
		return "Skipped"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// validTransitions defines the allowed state transitions.
// Key is the current state, value is the list of valid target states.
var validTransitions = map[ClaimState][]ClaimState{
	StateInit:             {StateAgeGate, StateOwnershipCheck, StateFailed},
	StateAgeGate:          {StateOwnershipCheck, StateFailed},
	StateOwnershipCheck:   {StateEligibilityCheck, StateSkipped, StateFailed},
	StateEligibilityCheck: {StateParamResolution, StateDone, StateSkipped, StateFailed},
	// Submit may re-enter ParamResolution exactly once: a stale cached
	// param set gets one re-scrape before the attempt fails.
	StateParamResolution: {StateSubmit, StateFailed},
	StateSubmit:          {StateDone, StateParamResolution, StateFailed},
	StateDone:            {},
	StateSkipped:         {},
	StateFailed:          {},
}

// CanTransitionTo checks if transitioning from the current state to the
// target state is valid.
func (s ClaimState) CanTransitionTo(target ClaimState) bool {
	for _, t := range validTransitions[s] {
		if t == target {
			return true
		}
	}
	return false
}

// ValidTransitions returns the list of valid target states from the current state.
func (s ClaimState) ValidTransitions() []ClaimState {
	return validTransitions[s]
}

// IsTerminal returns true if the state admits no further transitions.
func (s ClaimState) IsTerminal() bool {
	return s == StateDone || s == StateSkipped || s == StateFailed
}

// TransitionError represents an invalid state transition attempt.
type TransitionError struct {
	From   ClaimState
	To     ClaimState
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("invalid claim transition from %s to %s: %s", e.From, e.To, e.Reason)
	}
	return fmt.Sprintf("invalid claim transition from %s to %s", e.From, e.To)
}

// NewTransitionError creates a new TransitionError.
func NewTransitionError(from, to ClaimState, reason string) *TransitionError {
	return &TransitionError{From: from, To: to, Reason: reason}
}
