package status

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/calldispatch/internal/core/domain"
)

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func stateIs(tr *Tracker, s State) func() bool {
	return func() bool { return tr.Status().State == s }
}

func newFakeTracker(opts ...Option) (*Tracker, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClock()
	tr := NewTracker(Config{}, append([]Option{WithClock(clock)}, opts...)...)
	return tr, clock
}

func userRejected() error {
	return domain.NewDispatchError(domain.ErrUserRejected, "send calls", errors.New("rpc error 4001: User rejected the request."))
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{domain.StateIdle, domain.StateSending, true},
		{domain.StateIdle, domain.StateNeedsWallet, true},
		{domain.StateNeedsWallet, domain.StateSending, true},
		{domain.StateSending, domain.StateSent, true},
		{domain.StateSending, domain.StateCancelled, true},
		{domain.StateSending, domain.StateError, true},
		{domain.StateSent, domain.StateConfirmed, true},
		{domain.StateSent, domain.StateError, true},
		{domain.StateCancelled, domain.StateSending, true},
		{domain.StateError, domain.StateSending, true},
		{domain.StateConfirmed, domain.StateIdle, true},

		{domain.StateIdle, domain.StateSent, false},
		{domain.StateSending, domain.StateConfirmed, false},
		{domain.StateSent, domain.StateCancelled, false},
		{domain.StateSent, domain.StateSending, false},
		{domain.StateConfirmed, domain.StateConfirmed, false},
		{domain.StateConfirmed, domain.StateError, false},
		{domain.StateCancelled, domain.StateError, false},
		{domain.StateSending, domain.StateIdle, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestTracker_UserRejectionCancels(t *testing.T) {
	tr, clock := newFakeTracker()
	defer tr.Close()

	if err := tr.Begin(true); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	tr.Fail(userRejected())

	st := tr.Status()
	if st.State != domain.StateCancelled {
		t.Fatalf("state = %s, want cancelled", st.State)
	}
	if st.Message != "Transaction cancelled" {
		t.Errorf("message = %q", st.Message)
	}

	clock.Advance(DefaultWindows.Error)
	eventually(t, stateIs(tr, domain.StateIdle))

	for _, h := range tr.History() {
		if h.To == domain.StateError {
			t.Fatal("error state must not be entered on rejection")
		}
	}
	want := []State{domain.StateSending, domain.StateCancelled, domain.StateIdle}
	hist := tr.History()
	if len(hist) != len(want) {
		t.Fatalf("history = %+v", hist)
	}
	for i, s := range want {
		if hist[i].To != s {
			t.Errorf("history[%d] = %s, want %s", i, hist[i].To, s)
		}
	}
}

func TestTracker_ErrorResetWindow(t *testing.T) {
	tr, clock := newFakeTracker()
	defer tr.Close()

	tr.Begin(true)
	tr.Fail(domain.NewDispatchError(domain.ErrSubmissionFailed, "send calls", errors.New("boom")))
	if st := tr.Status(); st.State != domain.StateError || st.Message != "Transaction failed" {
		t.Fatalf("unexpected status %+v", st)
	}

	clock.Advance(DefaultWindows.Error - time.Millisecond)
	time.Sleep(10 * time.Millisecond)
	if s := tr.Status().State; s != domain.StateError {
		t.Fatalf("reset too early: %s", s)
	}

	clock.Advance(time.Millisecond)
	eventually(t, stateIs(tr, domain.StateIdle))
}

func TestTracker_NewDispatchCancelsReset(t *testing.T) {
	tr, clock := newFakeTracker()
	defer tr.Close()

	tr.Begin(true)
	tr.Fail(errors.New("boom"))
	if err := tr.Begin(true); err != nil {
		t.Fatalf("Begin from error: %v", err)
	}

	clock.Advance(DefaultWindows.Confirmed)
	time.Sleep(10 * time.Millisecond)
	if s := tr.Status().State; s != domain.StateSending {
		t.Errorf("state = %s, want sending", s)
	}
}

func TestTracker_SentResetWindow(t *testing.T) {
	tr, clock := newFakeTracker()
	defer tr.Close()

	tr.Begin(true)
	if err := tr.Track(context.Background(), &domain.DispatchResult{
		Method: domain.MethodBatchedCall,
		Handle: "bundle-1",
	}); err != nil {
		t.Fatalf("Track: %v", err)
	}
	if st := tr.Status(); st.State != domain.StateSent || st.Handle != "bundle-1" {
		t.Fatalf("unexpected status %+v", st)
	}

	clock.Advance(DefaultWindows.Sent)
	eventually(t, stateIs(tr, domain.StateIdle))
}

func TestTracker_Busy(t *testing.T) {
	tr, _ := newFakeTracker()
	defer tr.Close()

	tr.Begin(true)
	if err := tr.Begin(true); !errors.Is(err, domain.ErrBusy) {
		t.Errorf("Begin while sending: %v", err)
	}
	tr.Track(context.Background(), &domain.DispatchResult{Method: domain.MethodLegacyTransaction, Handle: "0xabc"})
	if err := tr.Begin(true); !errors.Is(err, domain.ErrBusy) {
		t.Errorf("Begin while sent: %v", err)
	}
}

func TestTracker_NeedsWallet(t *testing.T) {
	tr, _ := newFakeTracker()
	defer tr.Close()

	if err := tr.Begin(false); !errors.Is(err, domain.ErrNeedsWallet) {
		t.Fatalf("Begin without account: %v", err)
	}
	if s := tr.Status().State; s != domain.StateNeedsWallet {
		t.Fatalf("state = %s", s)
	}
	if err := tr.Begin(true); err != nil {
		t.Fatalf("Begin after connect: %v", err)
	}
	if s := tr.Status().State; s != domain.StateSending {
		t.Errorf("state = %s", s)
	}
}

func TestTracker_TrackRequiresSending(t *testing.T) {
	tr, _ := newFakeTracker()
	defer tr.Close()

	err := tr.Track(context.Background(), &domain.DispatchResult{Handle: "x"})
	if !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("expected invalid transition, got %v", err)
	}
	if s := tr.Status().State; s != domain.StateIdle {
		t.Errorf("state = %s", s)
	}
}

func TestTracker_Diagnostics(t *testing.T) {
	tr, _ := newFakeTracker()
	defer tr.Close()

	cause := errors.New("rpc error -32000: nonce too low")
	tr.Begin(true)
	tr.Fail(domain.NewDispatchError(domain.ErrSubmissionFailed, "send calls", cause))

	d := tr.Diagnostics()
	if d == nil {
		t.Fatal("expected diagnostics")
	}
	if d.Message != "Transaction failed" {
		t.Errorf("message = %q", d.Message)
	}
	found := false
	for _, c := range d.Causes {
		if c == cause.Error() {
			found = true
		}
	}
	if !found {
		t.Errorf("cause chain %v missing raw error", d.Causes)
	}

	tr.Begin(true)
	if tr.Diagnostics() != nil {
		t.Error("diagnostics should clear on new dispatch")
	}
}

func TestTracker_Subscribe(t *testing.T) {
	tr, _ := newFakeTracker()
	defer tr.Close()

	ch, cancel := tr.Subscribe()
	defer cancel()

	if st := <-ch; st.State != domain.StateIdle {
		t.Fatalf("first value = %s", st.State)
	}
	tr.Begin(true)
	tr.Fail(userRejected())

	if st := <-ch; st.State != domain.StateSending {
		t.Errorf("got %s, want sending", st.State)
	}
	if st := <-ch; st.State != domain.StateCancelled {
		t.Errorf("got %s, want cancelled", st.State)
	}
}

func TestTracker_TransitionCallback(t *testing.T) {
	tr, _ := newFakeTracker()
	defer tr.Close()

	var mu sync.Mutex
	var seen []State
	tr.SetTransitionCallback(func(tn Transition, _ domain.TxStatus) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, tn.To)
	})

	tr.Begin(true)
	tr.Fail(errors.New("boom"))

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != domain.StateSending || seen[1] != domain.StateError {
		t.Errorf("callback saw %v", seen)
	}
}

type scriptedBundles struct {
	mu       sync.Mutex
	statuses []*domain.BundleStatus
	calls    int
}

func (s *scriptedBundles) GetCallsStatus(context.Context, string) (*domain.BundleStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i >= len(s.statuses) {
		i = len(s.statuses) - 1
	}
	return s.statuses[i], nil
}

type scriptedReceipts struct {
	mu      sync.Mutex
	pending int
	status  uint64
}

func (s *scriptedReceipts) GetTransactionReceipt(_ context.Context, hash string) (*domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending > 0 {
		s.pending--
		return nil, nil
	}
	return &domain.Receipt{TransactionHash: hash, Status: s.status}, nil
}

func pollingTracker(opts ...Option) *Tracker {
	cfg := Config{
		Windows: Windows{Error: time.Minute, Sent: time.Minute, Confirmed: time.Minute},
		Poll:    PollConfig{Interval: time.Millisecond, MaxAttempts: 50},
	}
	return NewTracker(cfg, opts...)
}

func TestTracker_BundleConfirmed(t *testing.T) {
	src := &scriptedBundles{statuses: []*domain.BundleStatus{
		{State: domain.BundlePending, StatusCode: 100},
		{State: domain.BundleSuccess, StatusCode: 200, Receipts: []domain.Receipt{{TransactionHash: "0xfeed"}}},
	}}
	tr := pollingTracker(WithBundleSource(src))
	defer tr.Close()

	tr.Begin(true)
	tr.Track(context.Background(), &domain.DispatchResult{Method: domain.MethodBatchedCall, Handle: "bundle-1"})

	eventually(t, stateIs(tr, domain.StateConfirmed))
	st := tr.Status()
	if st.TxHash != "0xfeed" || st.Handle != "bundle-1" {
		t.Errorf("unexpected status %+v", st)
	}

	// A repeated confirmation must not move the status.
	before := len(tr.History())
	tr.resolve(tr.gen, "bundle-1", &Outcome{Success: true, TxHash: "0xfeed"})
	if got := len(tr.History()); got != before {
		t.Errorf("duplicate confirmation changed history: %d -> %d", before, got)
	}
}

func TestTracker_BundleFailed(t *testing.T) {
	src := &scriptedBundles{statuses: []*domain.BundleStatus{
		{State: domain.BundleFailure, StatusCode: 500},
	}}
	tr := pollingTracker(WithBundleSource(src))
	defer tr.Close()

	tr.Begin(true)
	tr.Track(context.Background(), &domain.DispatchResult{Method: domain.MethodBatchedCall, Handle: "bundle-1"})

	eventually(t, stateIs(tr, domain.StateError))
	d := tr.Diagnostics()
	if d == nil || d.Raw != "execution failed: status 500" {
		t.Errorf("unexpected diagnostics %+v", d)
	}
}

func TestTracker_ReceiptConfirmed(t *testing.T) {
	src := &scriptedReceipts{pending: 2, status: 1}
	tr := pollingTracker(WithReceiptSource(src))
	defer tr.Close()

	tr.Begin(true)
	tr.Track(context.Background(), &domain.DispatchResult{Method: domain.MethodLegacyTransaction, Handle: "0xabc"})
	if st := tr.Status(); st.TxHash != "0xabc" {
		t.Errorf("legacy handle should be the tx hash, got %+v", st)
	}

	eventually(t, stateIs(tr, domain.StateConfirmed))
	if st := tr.Status(); st.TxHash != "0xabc" {
		t.Errorf("tx hash = %q", st.TxHash)
	}
}

func TestTracker_StalePollIgnored(t *testing.T) {
	tr, clock := newFakeTracker()
	defer tr.Close()

	tr.Begin(true)
	tr.Track(context.Background(), &domain.DispatchResult{Method: domain.MethodBatchedCall, Handle: "old"})
	staleGen := tr.gen

	clock.Advance(DefaultWindows.Sent)
	eventually(t, stateIs(tr, domain.StateIdle))
	tr.Begin(true)
	tr.Track(context.Background(), &domain.DispatchResult{Method: domain.MethodBatchedCall, Handle: "new"})

	tr.resolve(staleGen, "old", &Outcome{Success: true})
	if st := tr.Status(); st.State != domain.StateSent || st.Handle != "new" {
		t.Errorf("stale result applied: %+v", st)
	}
}

func TestTracker_ConfirmationAfterSentWindow(t *testing.T) {
	pending := &domain.BundleStatus{State: domain.BundlePending, StatusCode: 100}
	src := &scriptedBundles{statuses: []*domain.BundleStatus{
		pending, pending, pending, pending,
		{State: domain.BundleSuccess, StatusCode: 200, Receipts: []domain.Receipt{{TransactionHash: "0xfeed"}}},
	}}
	tr, clock := newFakeTracker(WithBundleSource(src))
	defer tr.Close()
	start := clock.Now()

	tr.Begin(true)
	tr.Track(context.Background(), &domain.DispatchResult{Method: domain.MethodBatchedCall, Handle: "bundle-1"})

	// Only the poll interval is pending; the Sent window is not armed while polling.
	for i := 0; i < 4; i++ {
		clock.BlockUntil(1)
		clock.Advance(DefaultPollConfig.Interval)
	}

	eventually(t, stateIs(tr, domain.StateConfirmed))
	if elapsed := clock.Since(start); elapsed <= DefaultWindows.Sent {
		t.Fatalf("confirmation arrived at %s, want after the sent window", elapsed)
	}
	for _, h := range tr.History() {
		if h.To == domain.StateIdle {
			t.Fatalf("status reset while polling: %+v", tr.History())
		}
	}
}

func TestTracker_SentWindowAfterPollTimeout(t *testing.T) {
	src := &scriptedBundles{statuses: []*domain.BundleStatus{
		{State: domain.BundlePending, StatusCode: 100},
	}}
	clock := clockwork.NewFakeClock()
	tr := NewTracker(Config{Poll: PollConfig{Interval: time.Second, MaxAttempts: 1}},
		WithClock(clock), WithBundleSource(src))
	defer tr.Close()

	tr.Begin(true)
	tr.Track(context.Background(), &domain.DispatchResult{Method: domain.MethodBatchedCall, Handle: "bundle-1"})

	// The poll gives up after one attempt and arms the reset timer.
	clock.BlockUntil(1)
	if s := tr.Status().State; s != domain.StateSent {
		t.Fatalf("state = %s, want sent", s)
	}
	clock.Advance(DefaultWindows.Sent)
	eventually(t, stateIs(tr, domain.StateIdle))
}

func TestTracker_CloseEndsSubscriptions(t *testing.T) {
	tr, _ := newFakeTracker()
	ch, _ := tr.Subscribe()
	<-ch

	tr.Close()
	if _, ok := <-ch; ok {
		t.Error("expected closed channel")
	}
}
