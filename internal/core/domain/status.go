package domain

// StatusState is the lifecycle state shown to callers.
type StatusState string

const (
	StateIdle        StatusState = "idle"
	StateNeedsWallet StatusState = "needs_wallet"
	StateSending     StatusState = "sending"
	StateSent        StatusState = "sent"
	StateConfirmed   StatusState = "confirmed"
	StateCancelled   StatusState = "cancelled"
	StateError       StatusState = "error"
)

// TxStatus is the caller-observable status. Only the status tracker creates new values.
type TxStatus struct {
	State   StatusState `json:"state"`
	Handle  string      `json:"handle,omitempty"`
	TxHash  string      `json:"tx_hash,omitempty"`
	Message string      `json:"message,omitempty"`
}

// IsTerminal reports whether the state is reset to idle after a grace window.
func (s StatusState) IsTerminal() bool {
	switch s {
	case StateSent, StateConfirmed, StateCancelled, StateError:
		return true
	}
	return false
}
