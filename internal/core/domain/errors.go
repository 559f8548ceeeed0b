package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNeedsWallet is returned when no account is connected.
	ErrNeedsWallet = errors.New("no connected account")

	// ErrUnsupportedProtocol is returned when no submission path can carry the batch.
	ErrUnsupportedProtocol = errors.New("unsupported submission protocol")

	// ErrCapabilityRejected marks a wallet that refused the capability payload.
	ErrCapabilityRejected = errors.New("capability rejected")

	// ErrUserRejected is returned when the user declined the wallet prompt.
	ErrUserRejected = errors.New("user rejected request")

	// ErrSubmissionFailed wraps opaque wallet or RPC failures.
	ErrSubmissionFailed = errors.New("submission failed")

	// ErrSimulationFailed is returned when the pre-flight call reverts.
	ErrSimulationFailed = errors.New("simulation failed")

	// ErrBusy is returned when a send is attempted while a previous one is still in flight.
	ErrBusy = errors.New("previous transaction still in progress")
)

// DispatchError carries a taxonomy kind together with the raw cause.
type DispatchError struct {
	Kind error
	Op   string
	Err  error
}

func (e *DispatchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
}

func (e *DispatchError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// NewDispatchError builds a DispatchError.
func NewDispatchError(kind error, op string, err error) *DispatchError {
	return &DispatchError{Kind: kind, Op: op, Err: err}
}

// UserMessage maps an error to one short, non-technical status line.
func UserMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUserRejected):
		return "Transaction cancelled"
	case errors.Is(err, ErrNeedsWallet):
		return "Connect a wallet to continue"
	case errors.Is(err, ErrUnsupportedProtocol):
		return "Your wallet can't send this transaction"
	case errors.Is(err, ErrSimulationFailed):
		return "This transaction would fail"
	case errors.Is(err, ErrBusy):
		return "A transaction is already in progress"
	default:
		return "Transaction failed"
	}
}
