package rpc

import (
	"context"
	"time"

	"github.com/vietddude/calldispatch/internal/infra/rpc/routing"
	"github.com/vietddude/calldispatch/internal/metrics"
)

// Client makes read-only calls against the providers of one chain.
// Submissions never go through it: they must not be retried.
type Client struct {
	router  routing.Router
	chainID string
	retry   RetryConfig
}

// NewClient creates a new read client.
func NewClient(chainID string, router routing.Router) *Client {
	return &Client{
		chainID: chainID,
		router:  router,
		retry:   routing.DefaultRetryConfig,
	}
}

// Call makes an RPC call with retry and failover across providers.
func (c *Client) Call(ctx context.Context, method string, params []any) (any, error) {
	start := time.Now()
	result, err := routing.CallWithRetryAndFailover(ctx, c.router, c.chainID, method, params, c.retry)

	metrics.RPCCallsTotal.WithLabelValues(c.chainID, method).Inc()
	metrics.RPCLatency.WithLabelValues(c.chainID, method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RPCErrorsTotal.WithLabelValues(c.chainID, method).Inc()
	}
	return result, err
}

// ProviderCount returns how many providers back this client.
func (c *Client) ProviderCount() int {
	return len(c.router.GetAllProviders(c.chainID))
}
