package dispatch

import (
	"errors"
	"strings"

	"github.com/vietddude/calldispatch/internal/infra/rpc/provider"
)

// ErrorClass is the dispatcher's reading of a wallet error.
type ErrorClass int

const (
	// ClassOpaque is any failure the dispatcher cannot recover from.
	ClassOpaque ErrorClass = iota
	// ClassUserRejected means the user declined the prompt.
	ClassUserRejected
	// ClassCapabilityRejected means the wallet accepted the request shape but
	// refused the capability payload.
	ClassCapabilityRejected
	// ClassProtocolUnsupported means the wallet does not implement batched calls.
	ClassProtocolUnsupported
)

func (c ErrorClass) String() string {
	switch c {
	case ClassUserRejected:
		return "user_rejected"
	case ClassCapabilityRejected:
		return "capability_rejected"
	case ClassProtocolUnsupported:
		return "protocol_unsupported"
	default:
		return "opaque"
	}
}

var (
	userRejectedPhrases = []string{
		"user rejected",
		"user denied",
		"user cancelled",
		"user canceled",
		"rejected by user",
		"denied by user",
	}
	capabilityRejectedPhrases = []string{
		"invalid params",
		"invalid parameters",
		"invalid param",
		"datasuffix",
		"data_suffix",
		"capabilit",
		"suffix",
	}
	protocolUnsupportedPhrases = []string{
		"wallet_sendcalls",
		"method not found",
		"method not supported",
		"unsupported method",
		"not supported",
		"not implemented",
		"does not exist",
	}
)

// Classify maps a wallet error to an ErrorClass.
//
// Wallets do not share an error taxonomy, so this combines well-known
// JSON-RPC and EIP-1193/5792 codes with message heuristics. It is the only
// place those heuristics live; a wallet that changes its wording can change
// the fallback path taken.
func Classify(err error) ErrorClass {
	if err == nil {
		return ClassOpaque
	}

	text := err.Error()
	var rpcErr *provider.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case provider.CodeUserRejected:
			return ClassUserRejected
		case provider.CodeInvalidParams, provider.CodeUnsupportedCapability:
			return ClassCapabilityRejected
		case provider.CodeMethodNotFound, provider.CodeUnsupportedCall:
			return ClassProtocolUnsupported
		}
		text = rpcErr.Message + " " + string(rpcErr.Data)
	}
	text = strings.ToLower(text)

	switch {
	case containsAny(text, userRejectedPhrases):
		return ClassUserRejected
	case containsAny(text, capabilityRejectedPhrases):
		return ClassCapabilityRejected
	case containsAny(text, protocolUnsupportedPhrases):
		return ClassProtocolUnsupported
	default:
		return ClassOpaque
	}
}

func containsAny(s string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
