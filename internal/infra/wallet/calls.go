package wallet

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/calldispatch/internal/core/domain"
)

// GetCapabilities issues wallet_getCapabilities for the connected account and chain.
func (c *Client) GetCapabilities(ctx context.Context) (any, error) {
	return c.Request(ctx, "wallet_getCapabilities", c.account.Hex(), []string{domain.ChainIDHex(c.chainID)})
}

// SendCalls submits a batch through wallet_sendCalls and returns the bundle id.
func (c *Client) SendCalls(ctx context.Context, sub domain.BatchSubmission) (string, error) {
	calls := make([]map[string]any, len(sub.Calls))
	for i, call := range sub.Calls {
		calls[i] = callObject(call)
	}

	payload := map[string]any{
		"version":        SendCallsVersion,
		"chainId":        domain.ChainIDHex(sub.ChainID),
		"atomicRequired": false,
		"calls":          calls,
	}
	if sub.From != (common.Address{}) {
		payload["from"] = sub.From.Hex()
	}
	if sub.Capabilities != nil {
		payload["capabilities"] = sub.Capabilities
	}

	result, err := c.Request(ctx, "wallet_sendCalls", payload)
	if err != nil {
		return "", err
	}

	// v1 wallets answer with the bare id string.
	switch v := result.(type) {
	case string:
		return v, nil
	case map[string]any:
		if id, ok := v["id"].(string); ok && id != "" {
			return id, nil
		}
	}
	return "", fmt.Errorf("unexpected send calls response: %v", result)
}

// SendTransaction submits one call with eth_sendTransaction and returns its hash.
func (c *Client) SendTransaction(ctx context.Context, sub domain.LegacySubmission) (string, error) {
	tx := callObject(sub.Call)
	tx["from"] = sub.From.Hex()
	tx["chainId"] = domain.ChainIDHex(sub.ChainID)

	result, err := c.Request(ctx, "eth_sendTransaction", tx)
	if err != nil {
		return "", err
	}
	hash, ok := result.(string)
	if !ok || hash == "" {
		return "", fmt.Errorf("unexpected send transaction response: %v", result)
	}
	return hash, nil
}

// Simulate runs the call with eth_call against the latest block.
// A revert comes back as an error.
func (c *Client) Simulate(ctx context.Context, call domain.Call, from common.Address) error {
	obj := callObject(call)
	obj["from"] = from.Hex()
	_, err := c.read(ctx, "eth_call", []any{obj, "latest"})
	return err
}

// GetCallsStatus queries wallet_getCallsStatus for a bundle.
func (c *Client) GetCallsStatus(ctx context.Context, id string) (*domain.BundleStatus, error) {
	result, err := c.Request(ctx, "wallet_getCallsStatus", id)
	if err != nil {
		return nil, err
	}
	raw, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected calls status response: %v", result)
	}
	return parseBundleStatus(raw)
}

// GetTransactionReceipt returns the receipt, or nil while the transaction is pending.
func (c *Client) GetTransactionReceipt(ctx context.Context, hash string) (*domain.Receipt, error) {
	result, err := c.read(ctx, "eth_getTransactionReceipt", []any{hash})
	if err != nil {
		return nil, err
	}
	if result == nil {
		return nil, nil
	}
	raw, ok := result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected receipt response: %v", result)
	}
	r := parseReceipt(raw)
	return &r, nil
}

func callObject(call domain.Call) map[string]any {
	data := call.Data
	if data == nil {
		data = hexutil.Bytes{}
	}
	return map[string]any{
		"to":    call.To.Hex(),
		"data":  data.String(),
		"value": call.ValueHex(),
	}
}

func parseBundleStatus(raw map[string]any) (*domain.BundleStatus, error) {
	st := &domain.BundleStatus{}

	switch v := raw["status"].(type) {
	case float64:
		st.StatusCode = int(v)
		st.State = stateFromCode(st.StatusCode)
	case string:
		st.State = stateFromString(v)
	default:
		return nil, fmt.Errorf("missing bundle status: %v", raw["status"])
	}

	if receipts, ok := raw["receipts"].([]any); ok {
		for _, r := range receipts {
			if m, ok := r.(map[string]any); ok {
				st.Receipts = append(st.Receipts, parseReceipt(m))
			}
		}
	}
	return st, nil
}

// stateFromCode maps EIP-5792 v2 status codes.
func stateFromCode(code int) domain.BundleState {
	switch {
	case code >= 100 && code < 200:
		return domain.BundlePending
	case code >= 200 && code < 300:
		return domain.BundleSuccess
	default:
		return domain.BundleFailure
	}
}

func stateFromString(s string) domain.BundleState {
	switch strings.ToLower(s) {
	case "pending":
		return domain.BundlePending
	case "confirmed", "success":
		return domain.BundleSuccess
	default:
		return domain.BundleFailure
	}
}

func parseReceipt(raw map[string]any) domain.Receipt {
	r := domain.Receipt{Status: 1}
	if h, ok := raw["transactionHash"].(string); ok {
		r.TransactionHash = h
	}
	if n, ok := raw["blockNumber"].(string); ok {
		r.BlockNumber, _ = hexutil.DecodeUint64(n)
	}
	if s, ok := raw["status"].(string); ok {
		if v, err := hexutil.DecodeUint64(s); err == nil {
			r.Status = v
		}
	}
	return r
}
