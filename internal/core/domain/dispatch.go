package domain

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// DispatchMethod identifies the wallet protocol a dispatch went through.
type DispatchMethod string

const (
	MethodBatchedCall       DispatchMethod = "wallet_sendCalls"
	MethodLegacyTransaction DispatchMethod = "eth_sendTransaction"
)

// DispatchResult is produced once per successful dispatch.
type DispatchResult struct {
	Method DispatchMethod
	Mode   AttributionMode
	// Handle is the bundle id for batched calls, the transaction hash otherwise.
	Handle string
	Calls  CallBatch
}

// BundleState is the reduced state of a batched-call bundle.
type BundleState string

const (
	BundlePending BundleState = "pending"
	BundleSuccess BundleState = "success"
	BundleFailure BundleState = "failure"
)

// BundleStatus is the answer of a bundle-status query.
type BundleStatus struct {
	State      BundleState
	StatusCode int
	Receipts   []Receipt
}

// Receipt is the subset of a transaction receipt the tracker needs.
type Receipt struct {
	TransactionHash string
	BlockNumber     uint64
	// Status is 1 for success and 0 for a reverted transaction.
	Status uint64
}

// JournalEntry is the diagnostic record of one dispatch.
type JournalEntry struct {
	ID          string    `json:"id"            db:"id"`
	SessionID   string    `json:"session_id"    db:"session_id"`
	ChainID     uint64    `json:"chain_id"      db:"chain_id"`
	Method      string    `json:"method"        db:"method"`
	Mode        string    `json:"mode"          db:"mode"`
	Handle      string    `json:"handle"        db:"handle"`
	CallCount   int       `json:"call_count"    db:"call_count"`
	State       string    `json:"state"         db:"state"`
	TxHash      string    `json:"tx_hash"       db:"tx_hash"`
	ErrorDetail string    `json:"error_detail"  db:"error_detail"`
	CreatedAt   time.Time `json:"created_at"    db:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"    db:"updated_at"`
}

// BatchSubmission is the payload of a batched-call submission.
type BatchSubmission struct {
	ChainID uint64
	From    common.Address
	Calls   []Call
	// Capabilities is nil when no capability channel is used.
	Capabilities map[string]any
}

// LegacySubmission is the payload of a single legacy transaction.
type LegacySubmission struct {
	ChainID uint64
	From    common.Address
	Call    Call
}
