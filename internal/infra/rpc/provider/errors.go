package provider

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Well-known JSON-RPC, EIP-1193 and EIP-5792 error codes.
const (
	CodeExecutionReverted = 3

	CodeParseError      = -32700
	CodeInvalidRequest  = -32600
	CodeMethodNotFound  = -32601
	CodeInvalidParams   = -32602
	CodeInternalError   = -32603
	CodeUserRejected    = 4001
	CodeUnauthorized    = 4100
	CodeUnsupportedCall = 4200
	CodeDisconnected    = 4900

	CodeUnsupportedCapability = 5700
	CodeUnknownBundle         = 5730
)

// RPCError is the error object of a JSON-RPC response. Wallets put their
// own codes and free-form text here, so it is kept verbatim.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if len(e.Data) > 0 && string(e.Data) != "null" {
		return fmt.Sprintf("rpc error %d: %s (data: %s)", e.Code, e.Message, string(e.Data))
	}
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// IsReverted reports whether err is an eth_call or estimate revert.
func IsReverted(err error) bool {
	var rpcErr *RPCError
	if errors.As(err, &rpcErr) {
		if rpcErr.Code == CodeExecutionReverted {
			return true
		}
		return strings.Contains(strings.ToLower(rpcErr.Message), "execution reverted")
	}
	return false
}

// HTTPError is returned for non-200 responses.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http %d: %s", e.StatusCode, e.Body)
}
