package dispatch

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/vietddude/calldispatch/internal/infra/rpc/provider"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ClassOpaque},
		{"rejection code", &provider.RPCError{Code: 4001, Message: "denied"}, ClassUserRejected},
		{"rejection phrase", errors.New("MetaMask Tx Signature: User denied transaction signature."), ClassUserRejected},
		{"invalid params code", &provider.RPCError{Code: -32602, Message: "bad"}, ClassCapabilityRejected},
		{"unsupported capability code", &provider.RPCError{Code: 5700, Message: "unsupported"}, ClassCapabilityRejected},
		{"capability field in message", &provider.RPCError{Code: -32000, Message: "unknown field dataSuffix"}, ClassCapabilityRejected},
		{"capability field in data", &provider.RPCError{Code: -32000, Message: "rejected", Data: json.RawMessage(`{"field":"capabilities"}`)}, ClassCapabilityRejected},
		{"generic rejection naming capability", &provider.RPCError{Code: -32000, Message: "request rejected: invalid dataSuffix capability"}, ClassCapabilityRejected},
		{"generic rejection naming capability text", errors.New("request rejected: invalid dataSuffix capability"), ClassCapabilityRejected},
		{"user rejected the request", errors.New("User rejected the request."), ClassUserRejected},
		{"method not found code", &provider.RPCError{Code: -32601, Message: "nope"}, ClassProtocolUnsupported},
		{"unsupported method code", &provider.RPCError{Code: 4200, Message: "nope"}, ClassProtocolUnsupported},
		{"method name in message", &provider.RPCError{Code: -32603, Message: "wallet_sendCalls is unavailable"}, ClassProtocolUnsupported},
		{"not supported phrase", errors.New("this method is not supported"), ClassProtocolUnsupported},
		{"wrapped rpc error", fmt.Errorf("send: %w", &provider.RPCError{Code: 4001}), ClassUserRejected},
		{"opaque", errors.New("insufficient funds"), ClassOpaque},
		{"opaque rpc", &provider.RPCError{Code: -32000, Message: "nonce too low"}, ClassOpaque},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.err); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}
