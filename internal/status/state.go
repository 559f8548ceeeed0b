package status

import (
	"errors"
	"time"

	"github.com/vietddude/calldispatch/internal/core/domain"
)

// State is an alias for domain.StatusState for internal use.
type State = domain.StatusState

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ValidTransitions defines allowed state transitions.
// Key is the current state, value is the list of valid next states.
// Transitions into Idle are only taken by the reset timer.
var ValidTransitions = map[State][]State{
	domain.StateIdle:        {domain.StateNeedsWallet, domain.StateSending},
	domain.StateNeedsWallet: {domain.StateSending},
	domain.StateSending: {
		domain.StateSent,
		domain.StateCancelled,
		domain.StateError,
	},
	domain.StateSent:      {domain.StateConfirmed, domain.StateError, domain.StateIdle},
	domain.StateConfirmed: {domain.StateIdle},
	domain.StateCancelled: {domain.StateSending, domain.StateIdle},
	domain.StateError:     {domain.StateSending, domain.StateIdle},
}

// CanTransition checks if a transition from one state to another is valid.
func CanTransition(from, to State) bool {
	validTargets, ok := ValidTransitions[from]
	if !ok {
		return false
	}

	for _, target := range validTargets {
		if target == to {
			return true
		}
	}
	return false
}

// Transition represents a state change with metadata.
type Transition struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// NewTransition creates a new transition record.
func NewTransition(from, to State, reason string, at time.Time) Transition {
	return Transition{
		From:      from,
		To:        to,
		Reason:    reason,
		Timestamp: at,
	}
}

// StateDescription returns a human-readable description of a state.
func StateDescription(s State) string {
	switch s {
	case domain.StateIdle:
		return "Idle - ready to send"
	case domain.StateNeedsWallet:
		return "Needs wallet - no connected account"
	case domain.StateSending:
		return "Sending - waiting for the wallet"
	case domain.StateSent:
		return "Sent - submitted, waiting for confirmation"
	case domain.StateConfirmed:
		return "Confirmed - included on chain"
	case domain.StateCancelled:
		return "Cancelled - rejected in the wallet"
	case domain.StateError:
		return "Error - dispatch or execution failed"
	default:
		return "Unknown state"
	}
}
