package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/calldispatch/internal/core/domain"
	"github.com/vietddude/calldispatch/internal/infra/rpc/routing"
	"github.com/vietddude/calldispatch/internal/metrics"
)

var (
	// ErrPollTimeout is returned when no terminal state was observed within the attempt budget.
	ErrPollTimeout = errors.New("confirmation poll timed out")

	// ErrExecutionFailed is reported when the bundle or transaction failed on chain.
	ErrExecutionFailed = errors.New("execution failed")
)

// BundleSource queries batched call status.
type BundleSource interface {
	GetCallsStatus(ctx context.Context, id string) (*domain.BundleStatus, error)
}

// ReceiptSource queries transaction receipts. A nil receipt means pending.
type ReceiptSource interface {
	GetTransactionReceipt(ctx context.Context, hash string) (*domain.Receipt, error)
}

// PollConfig bounds a poll loop.
type PollConfig struct {
	Interval    time.Duration `yaml:"interval"`
	MaxAttempts int           `yaml:"max_attempts"`
}

// DefaultPollConfig polls every two seconds for about five minutes.
var DefaultPollConfig = PollConfig{
	Interval:    2 * time.Second,
	MaxAttempts: 150,
}

// Outcome is the terminal result of a poll.
type Outcome struct {
	Success    bool
	TxHash     string
	StatusCode int
}

// Err returns the failure as an error, nil on success.
func (o Outcome) Err() error {
	if o.Success {
		return nil
	}
	if o.StatusCode != 0 {
		return fmt.Errorf("%w: status %d", ErrExecutionFailed, o.StatusCode)
	}
	return ErrExecutionFailed
}

type poller struct {
	name  string
	cfg   PollConfig
	clock clockwork.Clock
	log   *slog.Logger
}

func newPoller(name string, cfg PollConfig, clock clockwork.Clock, log *slog.Logger) poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollConfig.Interval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultPollConfig.MaxAttempts
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if log == nil {
		log = slog.Default()
	}
	return poller{name: name, cfg: cfg, clock: clock, log: log}
}

// run calls check until it reports done, the attempts run out or a fatal error occurs.
func (p poller) run(ctx context.Context, handle string, check func(context.Context) (*Outcome, error)) (*Outcome, error) {
	for attempt := 1; attempt <= p.cfg.MaxAttempts; attempt++ {
		out, err := check(ctx)
		switch {
		case err != nil:
			if routing.ClassifyError(err) == routing.ActionFatal {
				metrics.PollAttempts.WithLabelValues(p.name, "fatal").Inc()
				return nil, fmt.Errorf("poll %s: %w", handle, err)
			}
			metrics.PollAttempts.WithLabelValues(p.name, "error").Inc()
			p.log.Debug("Poll attempt failed", "poller", p.name, "handle", handle, "attempt", attempt, "error", err)
		case out != nil:
			metrics.PollAttempts.WithLabelValues(p.name, "done").Inc()
			return out, nil
		default:
			metrics.PollAttempts.WithLabelValues(p.name, "pending").Inc()
		}

		if attempt < p.cfg.MaxAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-p.clock.After(p.cfg.Interval):
			}
		}
	}
	return nil, fmt.Errorf("%w: %s after %d attempts", ErrPollTimeout, handle, p.cfg.MaxAttempts)
}

// BundlePoller polls wallet_getCallsStatus until the bundle is final.
type BundlePoller struct {
	src BundleSource
	poller
}

// NewBundlePoller creates a bundle poller. A nil clock uses the real clock.
func NewBundlePoller(src BundleSource, cfg PollConfig, clock clockwork.Clock, log *slog.Logger) *BundlePoller {
	return &BundlePoller{src: src, poller: newPoller("bundle", cfg, clock, log)}
}

// Poll blocks until the bundle succeeds or fails. On success the first
// receipt's transaction hash is reported when the wallet returned one.
func (p *BundlePoller) Poll(ctx context.Context, id string) (*Outcome, error) {
	return p.run(ctx, id, func(ctx context.Context) (*Outcome, error) {
		st, err := p.src.GetCallsStatus(ctx, id)
		if err != nil || st == nil {
			return nil, err
		}

		switch st.State {
		case domain.BundleSuccess:
			out := &Outcome{Success: true, StatusCode: st.StatusCode}
			if len(st.Receipts) > 0 {
				out.TxHash = st.Receipts[0].TransactionHash
			}
			return out, nil
		case domain.BundleFailure:
			return &Outcome{StatusCode: st.StatusCode}, nil
		}
		return nil, nil
	})
}

// ReceiptPoller polls eth_getTransactionReceipt until the transaction is mined.
type ReceiptPoller struct {
	src ReceiptSource
	poller
}

// NewReceiptPoller creates a receipt poller. A nil clock uses the real clock.
func NewReceiptPoller(src ReceiptSource, cfg PollConfig, clock clockwork.Clock, log *slog.Logger) *ReceiptPoller {
	return &ReceiptPoller{src: src, poller: newPoller("receipt", cfg, clock, log)}
}

// Poll blocks until the transaction has a receipt.
func (p *ReceiptPoller) Poll(ctx context.Context, hash string) (*Outcome, error) {
	return p.run(ctx, hash, func(ctx context.Context) (*Outcome, error) {
		r, err := p.src.GetTransactionReceipt(ctx, hash)
		if err != nil || r == nil {
			return nil, err
		}
		txHash := r.TransactionHash
		if txHash == "" {
			txHash = hash
		}
		return &Outcome{Success: r.Status == 1, TxHash: txHash}, nil
	})
}
