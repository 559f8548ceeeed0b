package domain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
)

// Call is a single state-changing call against a contract (a call intent).
type Call struct {
	To    common.Address `json:"to"`
	Data  hexutil.Bytes  `json:"data"`
	Value *uint256.Int   `json:"value,omitempty"`
}

// CallBatch is an ordered set of calls. Order is the execution order when batched.
type CallBatch struct {
	calls []Call
}

// NewCallBatch copies the given calls into an immutable batch.
func NewCallBatch(calls ...Call) CallBatch {
	out := make([]Call, len(calls))
	for i, c := range calls {
		out[i] = c.clone()
	}
	return CallBatch{calls: out}
}

// Len returns the number of calls in the batch.
func (b CallBatch) Len() int {
	return len(b.calls)
}

// Calls returns a copy of the calls in order.
func (b CallBatch) Calls() []Call {
	out := make([]Call, len(b.calls))
	for i, c := range b.calls {
		out[i] = c.clone()
	}
	return out
}

// At returns a copy of the i-th call.
func (b CallBatch) At(i int) Call {
	return b.calls[i].clone()
}

// Map builds a new batch by applying fn to a copy of every call.
func (b CallBatch) Map(fn func(Call) Call) CallBatch {
	out := make([]Call, len(b.calls))
	for i, c := range b.calls {
		out[i] = fn(c.clone())
	}
	return CallBatch{calls: out}
}

func (c Call) clone() Call {
	out := Call{To: c.To}
	if c.Data != nil {
		out.Data = append(hexutil.Bytes{}, c.Data...)
	}
	if c.Value != nil {
		out.Value = new(uint256.Int).Set(c.Value)
	}
	return out
}

// ValueHex returns the call value as a JSON-RPC quantity.
func (c Call) ValueHex() string {
	if c.Value == nil {
		return "0x0"
	}
	return c.Value.Hex()
}
