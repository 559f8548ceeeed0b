package routing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/vietddude/calldispatch/internal/infra/rpc/provider"
)

// RetryConfig defines retry behavior for read-only calls.
type RetryConfig struct {
	MaxAttempts     int
	InitialDelay    time.Duration
	MaxDelay        time.Duration
	BackoffMultiple float64
}

// DefaultRetryConfig provides sensible defaults.
var DefaultRetryConfig = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    250 * time.Millisecond,
	MaxDelay:        5 * time.Second,
	BackoffMultiple: 2.0,
}

// ErrorAction determines how to handle a transport error.
type ErrorAction int

const (
	ActionRetry ErrorAction = iota
	ActionFailover
	ActionFatal
)

func (a ErrorAction) String() string {
	switch a {
	case ActionFailover:
		return "failover"
	case ActionFatal:
		return "fatal"
	default:
		return "retry"
	}
}

// ClassifyError determines the action for a given error.
// It only decides transport behaviour; wallet semantics live in the dispatcher.
func ClassifyError(err error) ErrorAction {
	if err == nil {
		return ActionRetry
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return ActionFatal
	}

	if provider.IsReverted(err) {
		return ActionFatal
	}

	var rpcErr *provider.RPCError
	if errors.As(err, &rpcErr) {
		switch rpcErr.Code {
		case provider.CodeParseError, provider.CodeInvalidRequest,
			provider.CodeMethodNotFound, provider.CodeInvalidParams,
			provider.CodeUserRejected, provider.CodeUnauthorized,
			provider.CodeUnsupportedCall, provider.CodeUnsupportedCapability,
			provider.CodeUnknownBundle:
			return ActionFatal
		}
	}

	var httpErr *provider.HTTPError
	if errors.As(err, &httpErr) {
		switch {
		case httpErr.StatusCode == 429 || httpErr.StatusCode == 403 || httpErr.StatusCode == 401:
			return ActionFailover
		case httpErr.StatusCode >= 400 && httpErr.StatusCode < 500:
			return ActionFatal
		}
	}

	sLower := strings.ToLower(err.Error())
	if strings.Contains(sLower, "too many requests") ||
		strings.Contains(sLower, "quota") ||
		strings.Contains(sLower, "rate limit") ||
		strings.Contains(sLower, "throttled") {
		return ActionFailover
	}

	// Default to Retry (network, 5xx, etc)
	return ActionRetry
}

// CallWithRetry executes an RPC call with exponential backoff.
// Only use it for idempotent reads: a retried submission would prompt the user twice.
func CallWithRetry(
	ctx context.Context,
	p provider.RPCProvider,
	method string,
	params []any,
	config RetryConfig,
) (any, error) {
	var lastErr error

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		result, err := p.Call(ctx, method, params)
		if err == nil {
			return result, nil
		}
		lastErr = err

		switch ClassifyError(err) {
		case ActionFatal, ActionFailover:
			return nil, err
		}

		if attempt == config.MaxAttempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(calculateBackoff(attempt, config)):
		}
	}

	return nil, fmt.Errorf("failed after %d attempts: %w", config.MaxAttempts, lastErr)
}

// CallWithRetryAndFailover tries every provider of a chain with retry.
func CallWithRetryAndFailover(
	ctx context.Context,
	router Router,
	chainID string,
	method string,
	params []any,
	config RetryConfig,
) (any, error) {
	providers := router.GetAllProviders(chainID)
	if len(providers) == 0 {
		return nil, fmt.Errorf("no providers for chain %s", chainID)
	}

	var lastErr error
	for _, p := range providers {
		rpcP, ok := p.(provider.RPCProvider)
		if !ok || !p.IsAvailable() {
			continue
		}
		start := time.Now()
		result, err := CallWithRetry(ctx, rpcP, method, params, config)
		if err == nil {
			router.RecordSuccess(p.GetName(), time.Since(start))
			return result, nil
		}

		// A revert is the node's answer, not a provider failure.
		if provider.IsReverted(err) {
			router.RecordSuccess(p.GetName(), time.Since(start))
			return nil, err
		}

		lastErr = err
		router.RecordFailure(p.GetName(), err)

		if ClassifyError(err) == ActionFatal {
			return nil, fmt.Errorf("fatal error from provider %s: %w", p.GetName(), err)
		}
	}

	if lastErr == nil {
		return nil, fmt.Errorf("no available providers for chain %s", chainID)
	}
	return nil, fmt.Errorf("all providers failed: %w", lastErr)
}

func calculateBackoff(attempt int, config RetryConfig) time.Duration {
	delay := float64(config.InitialDelay) * math.Pow(config.BackoffMultiple, float64(attempt))
	if delay > float64(config.MaxDelay) {
		delay = float64(config.MaxDelay)
	}
	return time.Duration(delay)
}
