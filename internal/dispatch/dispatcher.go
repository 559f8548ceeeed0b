// Package dispatch submits call batches through whichever protocol the
// connected wallet supports, attaching the builder attribution suffix.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/calldispatch/internal/attribution"
	"github.com/vietddude/calldispatch/internal/capability"
	"github.com/vietddude/calldispatch/internal/core/domain"
	"github.com/vietddude/calldispatch/internal/metrics"
)

// BatchSubmitter submits a batch through wallet_sendCalls.
type BatchSubmitter interface {
	SendCalls(ctx context.Context, sub domain.BatchSubmission) (string, error)
}

// LegacySubmitter submits one call through eth_sendTransaction.
type LegacySubmitter interface {
	SendTransaction(ctx context.Context, sub domain.LegacySubmission) (string, error)
}

// Simulator runs a call without submitting it and fails if it would revert.
type Simulator interface {
	Simulate(ctx context.Context, call domain.Call, from common.Address) error
}

// Detector answers whether a wallet attaches the suffix itself.
type Detector interface {
	Detect(ctx context.Context, w capability.Wallet) domain.CapabilitySupport
}

// Config holds attribution settings.
type Config struct {
	BuilderCode string `yaml:"builder_code"`
	ForceManual bool   `yaml:"force_manual"`
}

// Request is one dispatch.
type Request struct {
	Calls   domain.CallBatch
	ChainID uint64
	Account common.Address
}

// ErrEmptyBatch is returned for a request without calls.
var ErrEmptyBatch = errors.New("empty call batch")

// Dispatcher runs the submission pipeline. Collaborators left unset are
// treated as unavailable.
type Dispatcher struct {
	cfg    Config
	suffix attribution.Suffix

	wallet   capability.Wallet
	detector Detector
	batch    BatchSubmitter
	legacy   LegacySubmitter
	sim      Simulator

	log *slog.Logger

	mu     sync.Mutex
	logged map[string]struct{}
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithWallet sets the wallet used for capability detection.
func WithWallet(w capability.Wallet) Option {
	return func(d *Dispatcher) { d.wallet = w }
}

// WithDetector sets the capability detector.
func WithDetector(det Detector) Option {
	return func(d *Dispatcher) { d.detector = det }
}

// WithBatchSubmitter enables the batched path.
func WithBatchSubmitter(b BatchSubmitter) Option {
	return func(d *Dispatcher) { d.batch = b }
}

// WithLegacySubmitter enables the legacy path.
func WithLegacySubmitter(l LegacySubmitter) Option {
	return func(d *Dispatcher) { d.legacy = l }
}

// WithSimulator enables pre-flight simulation on the legacy path.
func WithSimulator(s Simulator) Option {
	return func(d *Dispatcher) { d.sim = s }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// New creates a Dispatcher. An invalid builder code disables attribution.
func New(cfg Config, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		cfg:    cfg,
		log:    slog.Default(),
		logged: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}

	if cfg.BuilderCode != "" {
		s, err := attribution.Encode(cfg.BuilderCode)
		if err != nil {
			d.log.Warn("Invalid builder code, attribution disabled", "error", err)
		}
		d.suffix = s
	}
	return d
}

// Suffix returns the encoded builder suffix, nil when attribution is off.
func (d *Dispatcher) Suffix() attribution.Suffix {
	return d.suffix
}

// Dispatch submits req and reports the method and mode actually used.
// At most two wallet prompts are shown.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (*domain.DispatchResult, error) {
	start := time.Now()

	res, err := d.dispatch(ctx, req)
	if err != nil {
		kind := errorKind(err)
		if !errors.Is(err, domain.ErrUserRejected) {
			metrics.DispatchErrorsTotal.WithLabelValues(kind).Inc()
		}
		metrics.DispatchesTotal.WithLabelValues("", "", kind).Inc()
		return nil, err
	}

	metrics.DispatchesTotal.WithLabelValues(string(res.Method), string(res.Mode), "submitted").Inc()
	metrics.DispatchLatency.WithLabelValues(string(res.Method)).Observe(time.Since(start).Seconds())
	return res, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, req Request) (*domain.DispatchResult, error) {
	if req.Calls.Len() == 0 {
		return nil, domain.NewDispatchError(domain.ErrSubmissionFailed, "dispatch", ErrEmptyBatch)
	}
	if d.batch == nil && d.legacy == nil {
		return nil, domain.NewDispatchError(domain.ErrUnsupportedProtocol, "dispatch",
			errors.New("wallet offers no submission method"))
	}
	if d.batch == nil && req.Calls.Len() > 1 {
		return nil, errLegacyBatch(req.Calls.Len())
	}

	calls := req.Calls.Map(normalize)

	if d.batch != nil {
		mode := d.selectMode(ctx)
		res, err := d.dispatchBatched(ctx, req, calls, mode)
		if !errors.Is(err, errFallThrough) {
			return res, err
		}
		metrics.FallbacksTotal.WithLabelValues(string(domain.MethodBatchedCall), string(domain.MethodLegacyTransaction)).Inc()
	}

	return d.dispatchLegacy(ctx, req, calls)
}

// selectMode resolves the attribution mode for this dispatch.
func (d *Dispatcher) selectMode(ctx context.Context) domain.AttributionMode {
	mode := domain.ModeManual
	switch {
	case d.suffix.Empty():
		mode = domain.ModeOff
	case d.cfg.ForceManual:
	case d.detector != nil && d.wallet != nil:
		if d.detector.Detect(ctx, d.wallet) == domain.CapabilitySupported {
			mode = domain.ModeCapabilities
		}
	}

	if d.wallet != nil {
		d.once(d.wallet.Identity()+"|mode", func() {
			d.log.Info("Attribution mode selected", "mode", mode, "force_manual", d.cfg.ForceManual)
		})
	}
	return mode
}

// errFallThrough tells Dispatch to continue on the legacy path.
var errFallThrough = errors.New("batched calls unsupported")

func (d *Dispatcher) dispatchBatched(
	ctx context.Context,
	req Request,
	calls domain.CallBatch,
	mode domain.AttributionMode,
) (*domain.DispatchResult, error) {
	handle, err := d.submitBatch(ctx, req, calls, mode)
	if err == nil {
		return d.result(domain.MethodBatchedCall, mode, handle, calls), nil
	}

	class := Classify(err)
	d.log.Debug("Batched submission failed", "mode", mode, "class", class, "error", err)

	switch class {
	case ClassUserRejected:
		return nil, domain.NewDispatchError(domain.ErrUserRejected, "send calls", err)

	case ClassProtocolUnsupported:
		return nil, errFallThrough

	case ClassCapabilityRejected:
		if mode != domain.ModeCapabilities {
			break
		}
		// An unrelated invalid-params failure lands here too and downgrades
		// this dispatch to manual mode.
		d.log.Warn("Wallet rejected capability payload, retrying with manual suffix", "error", err)
		metrics.FallbacksTotal.WithLabelValues(string(domain.ModeCapabilities), string(domain.ModeManual)).Inc()

		handle, err = d.submitBatch(ctx, req, calls, domain.ModeManual)
		if err == nil {
			return d.result(domain.MethodBatchedCall, domain.ModeManual, handle, calls), nil
		}
		if Classify(err) == ClassUserRejected {
			return nil, domain.NewDispatchError(domain.ErrUserRejected, "send calls", err)
		}
		return nil, domain.NewDispatchError(domain.ErrSubmissionFailed, "send calls", err)
	}

	return nil, domain.NewDispatchError(domain.ErrSubmissionFailed, "send calls", err)
}

func (d *Dispatcher) submitBatch(
	ctx context.Context,
	req Request,
	calls domain.CallBatch,
	mode domain.AttributionMode,
) (string, error) {
	sub := domain.BatchSubmission{
		ChainID: req.ChainID,
		From:    req.Account,
	}

	switch mode {
	case domain.ModeCapabilities:
		// Call data stays untouched: the wallet appends the suffix itself.
		sub.Calls = calls.Calls()
		sub.Capabilities = map[string]any{
			capability.Name: map[string]any{"value": d.suffix.Hex()},
		}
	case domain.ModeManual:
		sub.Calls = calls.Map(d.withSuffix).Calls()
	default:
		sub.Calls = calls.Calls()
	}

	return d.batch.SendCalls(ctx, sub)
}

func (d *Dispatcher) dispatchLegacy(
	ctx context.Context,
	req Request,
	calls domain.CallBatch,
) (*domain.DispatchResult, error) {
	if d.legacy == nil {
		return nil, domain.NewDispatchError(domain.ErrUnsupportedProtocol, "dispatch",
			errors.New("wallet supports neither batched calls nor single transactions"))
	}
	if calls.Len() > 1 {
		return nil, errLegacyBatch(calls.Len())
	}

	mode := domain.ModeOff
	if !d.suffix.Empty() {
		mode = domain.ModeManual
	}
	suffixed := calls.Map(d.withSuffix)
	call := suffixed.At(0)

	if d.sim != nil {
		if err := d.sim.Simulate(ctx, call, req.Account); err != nil {
			return nil, domain.NewDispatchError(domain.ErrSimulationFailed, "simulate", err)
		}
	}

	hash, err := d.legacy.SendTransaction(ctx, domain.LegacySubmission{
		ChainID: req.ChainID,
		From:    req.Account,
		Call:    call,
	})
	if err != nil {
		if Classify(err) == ClassUserRejected {
			return nil, domain.NewDispatchError(domain.ErrUserRejected, "send transaction", err)
		}
		return nil, domain.NewDispatchError(domain.ErrSubmissionFailed, "send transaction", err)
	}

	return d.result(domain.MethodLegacyTransaction, mode, hash, suffixed), nil
}

func (d *Dispatcher) result(
	method domain.DispatchMethod,
	mode domain.AttributionMode,
	handle string,
	calls domain.CallBatch,
) *domain.DispatchResult {
	d.log.Info("Dispatch submitted", "method", method, "mode", mode, "handle", handle, "calls", calls.Len())
	return &domain.DispatchResult{
		Method: method,
		Mode:   mode,
		Handle: handle,
		Calls:  calls,
	}
}

func (d *Dispatcher) withSuffix(c domain.Call) domain.Call {
	c.Data = attribution.AppendSuffix(c.Data, d.suffix)
	return c
}

// once runs fn the first time key is seen by this dispatcher.
func (d *Dispatcher) once(key string, fn func()) {
	d.mu.Lock()
	_, seen := d.logged[key]
	d.logged[key] = struct{}{}
	d.mu.Unlock()
	if !seen {
		fn()
	}
}

func normalize(c domain.Call) domain.Call {
	if c.Data == nil {
		c.Data = hexutil.Bytes{}
	}
	return c
}

func errLegacyBatch(n int) error {
	return domain.NewDispatchError(domain.ErrUnsupportedProtocol, "dispatch",
		fmt.Errorf("single transaction path cannot carry %d calls", n))
}

func errorKind(err error) string {
	var de *domain.DispatchError
	if errors.As(err, &de) {
		switch de.Kind {
		case domain.ErrUserRejected:
			return "user_rejected"
		case domain.ErrUnsupportedProtocol:
			return "unsupported_protocol"
		case domain.ErrSimulationFailed:
			return "simulation_failed"
		}
	}
	return "submission_failed"
}
