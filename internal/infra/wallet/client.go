// Package wallet talks to a connected wallet over JSON-RPC.
//
// The Client implements every collaborator the dispatcher and the status
// tracker consume: capability introspection, batched-call submission
// (EIP-5792 wallet_sendCalls), legacy eth_sendTransaction, bundle status,
// receipts and eth_call simulation. Read-only queries can be routed to chain
// nodes instead of the wallet with WithReader.
package wallet

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ethereum/go-ethereum/common"

	"github.com/vietddude/calldispatch/internal/infra/rpc/provider"
)

// SendCallsVersion is the EIP-5792 payload version sent to wallets.
const SendCallsVersion = "2.0.0"

// Reader serves read-only JSON-RPC calls. *rpc.Client implements it.
type Reader interface {
	Call(ctx context.Context, method string, params []any) (any, error)
}

// Client is a JSON-RPC wallet client bound to one account and chain.
type Client struct {
	provider provider.RPCProvider
	reader   Reader
	account  common.Address
	chainID  uint64
	log      *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithReader routes receipts and simulation through r instead of the wallet.
func WithReader(r Reader) Option {
	return func(c *Client) { c.reader = r }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// NewClient creates a wallet client. A zero account means no account is connected.
func NewClient(p provider.RPCProvider, account common.Address, chainID uint64, opts ...Option) *Client {
	c := &Client{
		provider: p,
		account:  account,
		chainID:  chainID,
		log:      slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Request sends a raw JSON-RPC request to the wallet.
func (c *Client) Request(ctx context.Context, method string, params ...any) (any, error) {
	return c.provider.Call(ctx, method, params)
}

// Identity identifies the wallet session. It changes on reconnect to another
// endpoint, account switch or chain switch.
func (c *Client) Identity() string {
	return fmt.Sprintf("%s|%s|%d", c.provider.GetName(), c.account.Hex(), c.chainID)
}

// Account returns the connected account.
func (c *Client) Account() common.Address {
	return c.account
}

// HasAccount reports whether an account is connected.
func (c *Client) HasAccount() bool {
	return c.account != (common.Address{})
}

// ChainID returns the chain the wallet is bound to.
func (c *Client) ChainID() uint64 {
	return c.chainID
}

// Close releases the underlying transport.
func (c *Client) Close() error {
	return c.provider.Close()
}

func (c *Client) read(ctx context.Context, method string, params []any) (any, error) {
	if c.reader != nil {
		result, err := c.reader.Call(ctx, method, params)
		if err == nil {
			return result, nil
		}
		if provider.IsReverted(err) {
			return nil, err
		}
		c.log.Debug("Read provider failed, falling back to wallet", "method", method, "error", err)
	}
	return c.provider.Call(ctx, method, params)
}
