// Package provider implements JSON-RPC endpoints.
//
// This package contains:
//   - Provider interface: core abstraction for an RPC endpoint
//   - HTTPProvider: JSON-RPC 2.0 over HTTP, used for both wallets and chain nodes
//   - RPCError: the structured error object returned by the endpoint
//   - ProviderMonitor: latency and throttle tracking
package provider

import (
	"context"
	"time"
)

// Provider defines the core interface for any RPC endpoint.
type Provider interface {
	// GetName returns provider identifier (e.g., "wallet", "base-public")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Close cleans up resources
	Close() error
}

// RPCProvider extends Provider with JSON-RPC calls.
type RPCProvider interface {
	Provider

	// Call makes a single RPC request
	Call(ctx context.Context, method string, params []any) (any, error)
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool
	Latency       time.Duration
	ErrorRate     float64
	LastSuccessAt time.Time
	LastFailureAt time.Time
	Throttled     bool
	RecentLatency time.Duration // mean over the monitor's recent window
	Throttles     int
}
