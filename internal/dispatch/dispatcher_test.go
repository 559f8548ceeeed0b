package dispatch

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/vietddude/calldispatch/internal/attribution"
	"github.com/vietddude/calldispatch/internal/capability"
	"github.com/vietddude/calldispatch/internal/core/domain"
	"github.com/vietddude/calldispatch/internal/infra/rpc/provider"
)

const testCode = "testbuilder"

var (
	testAccount = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	testTarget  = common.HexToAddress("0x00000000000000000000000000000000000000bb")
)

type mockBatch struct {
	subs []domain.BatchSubmission
	errs []error
}

func (m *mockBatch) SendCalls(_ context.Context, sub domain.BatchSubmission) (string, error) {
	m.subs = append(m.subs, sub)
	if i := len(m.subs) - 1; i < len(m.errs) && m.errs[i] != nil {
		return "", m.errs[i]
	}
	return "bundle-1", nil
}

type mockLegacy struct {
	subs []domain.LegacySubmission
	err  error
}

func (m *mockLegacy) SendTransaction(_ context.Context, sub domain.LegacySubmission) (string, error) {
	m.subs = append(m.subs, sub)
	if m.err != nil {
		return "", m.err
	}
	return "0xhash", nil
}

type mockSimulator struct {
	calls []domain.Call
	err   error
}

func (m *mockSimulator) Simulate(_ context.Context, call domain.Call, _ common.Address) error {
	m.calls = append(m.calls, call)
	return m.err
}

type mockDetector struct {
	support domain.CapabilitySupport
	calls   int
}

func (m *mockDetector) Detect(context.Context, capability.Wallet) domain.CapabilitySupport {
	m.calls++
	return m.support
}

type mockWallet struct{}

func (mockWallet) Request(context.Context, string, ...any) (any, error) { return nil, nil }
func (mockWallet) Identity() string                                     { return "test" }
func (mockWallet) ChainID() uint64                                      { return domain.ChainIDBase }
func (mockWallet) Account() common.Address                              { return testAccount }

func oneCall() domain.CallBatch {
	return domain.NewCallBatch(domain.Call{To: testTarget, Data: hexutil.MustDecode("0xa9059cbb")})
}

func request(calls domain.CallBatch) Request {
	return Request{Calls: calls, ChainID: domain.ChainIDBase, Account: testAccount}
}

func newDispatcher(cfg Config, support domain.CapabilitySupport, opts ...Option) (*Dispatcher, *mockDetector) {
	det := &mockDetector{support: support}
	opts = append([]Option{WithWallet(mockWallet{}), WithDetector(det)}, opts...)
	return New(cfg, opts...), det
}

func capabilityRejected() error {
	return &provider.RPCError{Code: provider.CodeInvalidParams, Message: "invalid params: unknown capability dataSuffix"}
}

func TestDispatch_CapabilitiesMode(t *testing.T) {
	batch := &mockBatch{}
	d, _ := newDispatcher(Config{BuilderCode: testCode}, domain.CapabilitySupported, WithBatchSubmitter(batch))

	res, err := d.Dispatch(context.Background(), request(oneCall()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Method != domain.MethodBatchedCall || res.Mode != domain.ModeCapabilities {
		t.Errorf("got method=%s mode=%s", res.Method, res.Mode)
	}
	if res.Handle != "bundle-1" {
		t.Errorf("handle = %q", res.Handle)
	}
	if len(batch.subs) != 1 {
		t.Fatalf("expected 1 submission, got %d", len(batch.subs))
	}

	sub := batch.subs[0]
	if got := sub.Calls[0].Data; !bytes.Equal(got, hexutil.MustDecode("0xa9059cbb")) {
		t.Errorf("call data mutated: %x", got)
	}
	capField, ok := sub.Capabilities[capability.Name].(map[string]any)
	if !ok {
		t.Fatalf("missing capability field: %v", sub.Capabilities)
	}
	if capField["value"] != attribution.EncodeSuffix(testCode).Hex() {
		t.Errorf("capability value = %v", capField["value"])
	}
}

func TestDispatch_LegacyWhenBatchedUnsupported(t *testing.T) {
	batch := &mockBatch{errs: []error{&provider.RPCError{Code: provider.CodeMethodNotFound, Message: "the method wallet_sendCalls does not exist"}}}
	legacy := &mockLegacy{}
	sim := &mockSimulator{}
	d, _ := newDispatcher(Config{BuilderCode: testCode}, domain.CapabilityUnsupported,
		WithBatchSubmitter(batch), WithLegacySubmitter(legacy), WithSimulator(sim))

	res, err := d.Dispatch(context.Background(), request(oneCall()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Method != domain.MethodLegacyTransaction || res.Mode != domain.ModeManual {
		t.Errorf("got method=%s mode=%s", res.Method, res.Mode)
	}
	if len(batch.subs) != 1 {
		t.Errorf("expected no batched retry, got %d submissions", len(batch.subs))
	}
	if len(legacy.subs) != 1 {
		t.Fatalf("expected 1 legacy attempt, got %d", len(legacy.subs))
	}

	suffix := attribution.EncodeSuffix(testCode)
	if !bytes.HasSuffix(legacy.subs[0].Call.Data, suffix) {
		t.Errorf("legacy data missing suffix: %x", legacy.subs[0].Call.Data)
	}
	if len(sim.calls) != 1 || !bytes.Equal(sim.calls[0].Data, legacy.subs[0].Call.Data) {
		t.Error("expected the suffixed call to be simulated before submission")
	}
}

func TestDispatch_CapabilityRejectedRetriesManual(t *testing.T) {
	batch := &mockBatch{errs: []error{capabilityRejected()}}
	legacy := &mockLegacy{}
	d, _ := newDispatcher(Config{BuilderCode: testCode}, domain.CapabilitySupported,
		WithBatchSubmitter(batch), WithLegacySubmitter(legacy))

	res, err := d.Dispatch(context.Background(), request(oneCall()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Method != domain.MethodBatchedCall || res.Mode != domain.ModeManual {
		t.Errorf("got method=%s mode=%s", res.Method, res.Mode)
	}
	if len(batch.subs) != 2 {
		t.Fatalf("expected 2 submissions, got %d", len(batch.subs))
	}
	if len(legacy.subs) != 0 {
		t.Error("legacy path should not run")
	}

	retry := batch.subs[1]
	if retry.Capabilities != nil {
		t.Errorf("retry must not carry capabilities: %v", retry.Capabilities)
	}
	if !attribution.HasSuffix(retry.Calls[0].Data, attribution.EncodeSuffix(testCode)) {
		t.Error("retry call data missing suffix")
	}
}

func TestDispatch_CapabilityRetryIsFinal(t *testing.T) {
	batch := &mockBatch{errs: []error{
		capabilityRejected(),
		&provider.RPCError{Code: provider.CodeMethodNotFound, Message: "method not found"},
	}}
	legacy := &mockLegacy{}
	d, _ := newDispatcher(Config{BuilderCode: testCode}, domain.CapabilitySupported,
		WithBatchSubmitter(batch), WithLegacySubmitter(legacy))

	_, err := d.Dispatch(context.Background(), request(oneCall()))
	if !errors.Is(err, domain.ErrSubmissionFailed) {
		t.Fatalf("expected submission failure, got %v", err)
	}
	if len(batch.subs) != 2 || len(legacy.subs) != 0 {
		t.Errorf("expected exactly two prompts, got batched=%d legacy=%d", len(batch.subs), len(legacy.subs))
	}
}

func TestDispatch_CapabilityRejectedOutsideCapabilitiesMode(t *testing.T) {
	batch := &mockBatch{errs: []error{capabilityRejected()}}
	d, _ := newDispatcher(Config{BuilderCode: testCode}, domain.CapabilityUnsupported, WithBatchSubmitter(batch))

	_, err := d.Dispatch(context.Background(), request(oneCall()))
	if !errors.Is(err, domain.ErrSubmissionFailed) {
		t.Fatalf("expected submission failure, got %v", err)
	}
	if len(batch.subs) != 1 {
		t.Errorf("expected no retry, got %d submissions", len(batch.subs))
	}
}

func TestDispatch_UserRejected(t *testing.T) {
	batch := &mockBatch{errs: []error{&provider.RPCError{Code: provider.CodeUserRejected, Message: "User rejected the request."}}}
	legacy := &mockLegacy{}
	d, _ := newDispatcher(Config{BuilderCode: testCode}, domain.CapabilitySupported,
		WithBatchSubmitter(batch), WithLegacySubmitter(legacy))

	_, err := d.Dispatch(context.Background(), request(oneCall()))
	if !errors.Is(err, domain.ErrUserRejected) {
		t.Fatalf("expected user rejection, got %v", err)
	}
	if len(batch.subs) != 1 || len(legacy.subs) != 0 {
		t.Error("rejection must not be retried")
	}
}

func TestDispatch_OpaqueErrorPropagates(t *testing.T) {
	cause := errors.New("insufficient funds for gas")
	batch := &mockBatch{errs: []error{cause}}
	legacy := &mockLegacy{}
	d, _ := newDispatcher(Config{BuilderCode: testCode}, domain.CapabilityUnsupported,
		WithBatchSubmitter(batch), WithLegacySubmitter(legacy))

	_, err := d.Dispatch(context.Background(), request(oneCall()))
	if !errors.Is(err, domain.ErrSubmissionFailed) || !errors.Is(err, cause) {
		t.Fatalf("expected wrapped submission failure, got %v", err)
	}
	if len(legacy.subs) != 0 {
		t.Error("opaque errors must not fall through to legacy")
	}
}

func TestDispatch_LegacyOnlyRejectsBatch(t *testing.T) {
	legacy := &mockLegacy{}
	sim := &mockSimulator{}
	d, det := newDispatcher(Config{BuilderCode: testCode}, domain.CapabilitySupported,
		WithLegacySubmitter(legacy), WithSimulator(sim))

	calls := domain.NewCallBatch(
		domain.Call{To: testTarget, Data: hexutil.MustDecode("0x01")},
		domain.Call{To: testTarget, Data: hexutil.MustDecode("0x02")},
	)
	_, err := d.Dispatch(context.Background(), request(calls))
	if !errors.Is(err, domain.ErrUnsupportedProtocol) {
		t.Fatalf("expected unsupported protocol, got %v", err)
	}
	if len(legacy.subs) != 0 || len(sim.calls) != 0 || det.calls != 0 {
		t.Error("no prompt, simulation or detection should happen")
	}
}

func TestDispatch_LegacyFallbackRejectsBatch(t *testing.T) {
	batch := &mockBatch{errs: []error{errors.New("wallet_sendCalls is not supported")}}
	legacy := &mockLegacy{}
	d, _ := newDispatcher(Config{BuilderCode: testCode}, domain.CapabilityUnsupported,
		WithBatchSubmitter(batch), WithLegacySubmitter(legacy))

	calls := domain.NewCallBatch(domain.Call{To: testTarget}, domain.Call{To: testTarget})
	_, err := d.Dispatch(context.Background(), request(calls))
	if !errors.Is(err, domain.ErrUnsupportedProtocol) {
		t.Fatalf("expected unsupported protocol, got %v", err)
	}
	if len(legacy.subs) != 0 {
		t.Error("legacy must not be attempted for a multi-call batch")
	}
}

func TestDispatch_NoSubmitters(t *testing.T) {
	d, _ := newDispatcher(Config{BuilderCode: testCode}, domain.CapabilitySupported)
	_, err := d.Dispatch(context.Background(), request(oneCall()))
	if !errors.Is(err, domain.ErrUnsupportedProtocol) {
		t.Fatalf("expected unsupported protocol, got %v", err)
	}
}

func TestDispatch_SimulationFailure(t *testing.T) {
	legacy := &mockLegacy{}
	sim := &mockSimulator{err: &provider.RPCError{Code: 3, Message: "execution reverted"}}
	d, _ := newDispatcher(Config{BuilderCode: testCode}, domain.CapabilityUnsupported,
		WithLegacySubmitter(legacy), WithSimulator(sim))

	_, err := d.Dispatch(context.Background(), request(oneCall()))
	if !errors.Is(err, domain.ErrSimulationFailed) {
		t.Fatalf("expected simulation failure, got %v", err)
	}
	if len(legacy.subs) != 0 {
		t.Error("a reverting call must not reach the wallet")
	}
}

func TestDispatch_ModeSelection(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		support domain.CapabilitySupport
		want    domain.AttributionMode
		detects bool
	}{
		{"no code, supported", Config{}, domain.CapabilitySupported, domain.ModeOff, false},
		{"no code, force manual", Config{ForceManual: true}, domain.CapabilitySupported, domain.ModeOff, false},
		{"force manual beats support", Config{BuilderCode: testCode, ForceManual: true}, domain.CapabilitySupported, domain.ModeManual, false},
		{"supported", Config{BuilderCode: testCode}, domain.CapabilitySupported, domain.ModeCapabilities, true},
		{"unsupported", Config{BuilderCode: testCode}, domain.CapabilityUnsupported, domain.ModeManual, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch := &mockBatch{}
			d, det := newDispatcher(tt.cfg, tt.support, WithBatchSubmitter(batch))

			res, err := d.Dispatch(context.Background(), request(oneCall()))
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if res.Mode != tt.want {
				t.Errorf("mode = %s, want %s", res.Mode, tt.want)
			}
			if (det.calls > 0) != tt.detects {
				t.Errorf("detector calls = %d", det.calls)
			}
		})
	}
}

func TestDispatch_OffModeLeavesDataAlone(t *testing.T) {
	batch := &mockBatch{}
	d, _ := newDispatcher(Config{}, domain.CapabilityUnknown, WithBatchSubmitter(batch))

	if _, err := d.Dispatch(context.Background(), request(oneCall())); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sub := batch.subs[0]
	if sub.Capabilities != nil {
		t.Error("off mode must not set capabilities")
	}
	if !bytes.Equal(sub.Calls[0].Data, hexutil.MustDecode("0xa9059cbb")) {
		t.Errorf("data changed: %x", sub.Calls[0].Data)
	}
}

func TestDispatch_NormalizesEmptyData(t *testing.T) {
	batch := &mockBatch{}
	d, _ := newDispatcher(Config{}, domain.CapabilityUnknown, WithBatchSubmitter(batch))

	calls := domain.NewCallBatch(domain.Call{To: testTarget})
	if _, err := d.Dispatch(context.Background(), request(calls)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if batch.subs[0].Calls[0].Data == nil {
		t.Error("expected non-nil empty data")
	}
}

func TestDispatch_ManualIsIdempotent(t *testing.T) {
	batch := &mockBatch{}
	d, _ := newDispatcher(Config{BuilderCode: testCode, ForceManual: true}, domain.CapabilityUnknown, WithBatchSubmitter(batch))

	suffix := attribution.EncodeSuffix(testCode)
	already := attribution.AppendSuffix(hexutil.MustDecode("0xa9059cbb"), suffix)
	calls := domain.NewCallBatch(domain.Call{To: testTarget, Data: already})

	if _, err := d.Dispatch(context.Background(), request(calls)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !bytes.Equal(batch.subs[0].Calls[0].Data, already) {
		t.Error("suffix appended twice")
	}
}

func TestDispatch_EmptyBatch(t *testing.T) {
	d, _ := newDispatcher(Config{}, domain.CapabilityUnknown, WithBatchSubmitter(&mockBatch{}))
	_, err := d.Dispatch(context.Background(), request(domain.NewCallBatch()))
	if !errors.Is(err, ErrEmptyBatch) {
		t.Fatalf("expected empty batch error, got %v", err)
	}
}
