// Package rpc provides resilient JSON-RPC connectivity for wallets and chain nodes.
//
// # Quick Start
//
//	import "github.com/vietddude/calldispatch/internal/infra/rpc"
//
//	router := rpc.NewRouter()
//	router.AddProvider("8453", rpc.NewHTTPProvider("base-public", baseURL, 10*time.Second))
//	router.AddProvider("8453", rpc.NewHTTPProvider("base-backup", backupURL, 10*time.Second))
//
//	client := rpc.NewClient("8453", router)
//	receipt, err := client.Call(ctx, "eth_getTransactionReceipt", []any{hash})
//
// # Package Structure
//
//   - provider/ - HTTPProvider, RPCError, monitoring
//   - routing/  - provider selection, retry and failover
//
// Constructors are re-exported at the root level for convenience.
package rpc

import (
	"time"

	"github.com/vietddude/calldispatch/internal/infra/rpc/provider"
	"github.com/vietddude/calldispatch/internal/infra/rpc/routing"
)

// HTTPProvider implements JSON-RPC over HTTP.
type HTTPProvider = provider.HTTPProvider

// DefaultRouter orders providers by health with a circuit breaker.
type DefaultRouter = routing.DefaultRouter

// RetryConfig defines retry behavior.
type RetryConfig = routing.RetryConfig

// NewHTTPProvider creates a new HTTP-based RPC provider.
func NewHTTPProvider(name, endpoint string, timeout time.Duration) *HTTPProvider {
	return provider.NewHTTPProvider(name, endpoint, timeout)
}

// NewRouter creates a new router.
func NewRouter() *DefaultRouter {
	return routing.NewRouter()
}
