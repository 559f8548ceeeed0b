package routing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/vietddude/calldispatch/internal/infra/rpc/provider"
)

func TestClassifyError(t *testing.T) {
	tests := []struct {
		err    error
		expect ErrorAction
	}{
		{&provider.HTTPError{StatusCode: 429, Body: "Too Many Requests"}, ActionFailover},
		{errors.New("project rate limit exceeded"), ActionFailover},
		{errors.New("quota exceeded"), ActionFailover},
		{&provider.HTTPError{StatusCode: 403, Body: "Forbidden"}, ActionFailover},
		{&provider.RPCError{Code: -32600, Message: "Invalid request"}, ActionFatal},
		{&provider.RPCError{Code: -32601, Message: "Method not found"}, ActionFatal},
		{&provider.RPCError{Code: 4001, Message: "User rejected"}, ActionFatal},
		{&provider.RPCError{Code: 3, Message: "execution reverted: insufficient balance", Data: []byte(`"0x08c379a0"`)}, ActionFatal},
		{&provider.RPCError{Code: -32000, Message: "execution reverted"}, ActionFatal},
		{fmt.Errorf("wrapped: %w", context.Canceled), ActionFatal},
		{errors.New("connection reset by peer"), ActionRetry},
		{errors.New("timeout"), ActionRetry},
		{&provider.HTTPError{StatusCode: 502, Body: "Bad Gateway"}, ActionRetry},
	}

	for _, tt := range tests {
		if got := ClassifyError(tt.err); got != tt.expect {
			t.Errorf("ClassifyError(%q) = %v, want %v", tt.err, got, tt.expect)
		}
	}
}

type mockProvider struct {
	name      string
	results   []error
	callCount int
}

func (m *mockProvider) GetName() string                  { return m.name }
func (m *mockProvider) GetHealth() provider.HealthStatus { return provider.HealthStatus{Available: true} }
func (m *mockProvider) IsAvailable() bool                { return true }
func (m *mockProvider) Close() error                     { return nil }

func (m *mockProvider) Call(ctx context.Context, method string, params []any) (any, error) {
	i := m.callCount
	m.callCount++
	if i < len(m.results) && m.results[i] != nil {
		return nil, m.results[i]
	}
	return m.name, nil
}

var fastRetry = RetryConfig{
	MaxAttempts:     3,
	InitialDelay:    time.Millisecond,
	MaxDelay:        time.Millisecond,
	BackoffMultiple: 1,
}

func TestCallWithRetry_RetriesTransient(t *testing.T) {
	p := &mockProvider{name: "a", results: []error{errors.New("connection reset"), nil}}

	result, err := CallWithRetry(context.Background(), p, "eth_getTransactionReceipt", nil, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "a" || p.callCount != 2 {
		t.Errorf("expected success on second attempt, got %v after %d calls", result, p.callCount)
	}
}

func TestCallWithRetry_StopsOnFatal(t *testing.T) {
	p := &mockProvider{name: "a", results: []error{&provider.RPCError{Code: -32602, Message: "invalid params"}}}

	if _, err := CallWithRetry(context.Background(), p, "eth_call", nil, fastRetry); err == nil {
		t.Fatal("expected error")
	}
	if p.callCount != 1 {
		t.Errorf("expected a single attempt, got %d", p.callCount)
	}
}

func TestCallWithRetryAndFailover(t *testing.T) {
	router := NewRouter()
	throttled := &mockProvider{name: "a", results: []error{&provider.HTTPError{StatusCode: 429}}}
	healthy := &mockProvider{name: "b"}
	router.AddProvider("8453", throttled)
	router.AddProvider("8453", healthy)

	result, err := CallWithRetryAndFailover(context.Background(), router, "8453", "eth_getTransactionReceipt", nil, fastRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "b" {
		t.Errorf("expected failover to provider b, got %v", result)
	}
}

func TestRouter_CircuitBreaker(t *testing.T) {
	router := NewRouter()
	a := &mockProvider{name: "a"}
	b := &mockProvider{name: "b"}
	router.AddProvider("1", a)
	router.AddProvider("1", b)

	for i := 0; i < 5; i++ {
		router.RecordFailure("a", errors.New("boom"))
	}

	all := router.GetAllProviders("1")
	if all[0].GetName() != "b" {
		t.Errorf("expected healthy provider first, got %s", all[0].GetName())
	}
}

func TestCallWithRetryAndFailover_RevertStopsFailover(t *testing.T) {
	router := NewRouter()
	reverting := &mockProvider{name: "a", results: []error{&provider.RPCError{Code: 3, Message: "execution reverted"}}}
	other := &mockProvider{name: "b"}
	router.AddProvider("8453", reverting)
	router.AddProvider("8453", other)

	_, err := CallWithRetryAndFailover(context.Background(), router, "8453", "eth_call", nil, fastRetry)
	if !provider.IsReverted(err) {
		t.Fatalf("expected revert error, got %v", err)
	}
	if reverting.callCount != 1 {
		t.Errorf("expected a single attempt on the reverting provider, got %d", reverting.callCount)
	}
	if other.callCount != 0 {
		t.Errorf("expected no failover after a revert, got %d calls", other.callCount)
	}
}
