// Package status turns dispatch outcomes into one observable status and
// resolves confirmation of submitted bundles and transactions.
package status

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vietddude/calldispatch/internal/core/domain"
	"github.com/vietddude/calldispatch/internal/metrics"
)

// Windows are the grace periods before a status falls back to idle.
// The Sent window starts once confirmation polling ends without a result,
// or right away when nothing polls the handle.
type Windows struct {
	Error     time.Duration `yaml:"error"`
	Sent      time.Duration `yaml:"sent"`
	Confirmed time.Duration `yaml:"confirmed"`
}

// DefaultWindows keeps results on screen long enough to be read.
var DefaultWindows = Windows{
	Error:     3 * time.Second,
	Sent:      6 * time.Second,
	Confirmed: 10 * time.Second,
}

func (w Windows) forState(s State) time.Duration {
	switch s {
	case domain.StateSent:
		return w.Sent
	case domain.StateConfirmed:
		return w.Confirmed
	default:
		return w.Error
	}
}

// Config configures a Tracker.
type Config struct {
	Windows Windows    `yaml:"windows"`
	Poll    PollConfig `yaml:"poll"`
}

// Diagnostics keeps full detail about the last failure for debugging surfaces.
type Diagnostics struct {
	Raw     string    `json:"raw"`
	Message string    `json:"message"`
	Causes  []string  `json:"causes"`
	At      time.Time `json:"at"`
}

const historySize = 32

// Tracker owns the TxStatus. All state changes go through transition.
type Tracker struct {
	cfg      Config
	clock    clockwork.Clock
	log      *slog.Logger
	bundles  *BundlePoller
	receipts *ReceiptPoller

	mu         sync.Mutex
	status     domain.TxStatus
	gen        uint64
	reset      clockwork.Timer
	pollCancel context.CancelFunc
	diag       *Diagnostics
	history    []Transition
	subs       map[int]chan domain.TxStatus
	nextSub    int
	onChange   func(Transition, domain.TxStatus)
	closed     bool

	wg sync.WaitGroup
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock injects the clock used for reset windows and polling.
func WithClock(c clockwork.Clock) Option {
	return func(t *Tracker) { t.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(t *Tracker) { t.log = l }
}

// WithBundleSource enables confirmation polling of batched calls.
func WithBundleSource(src BundleSource) Option {
	return func(t *Tracker) { t.bundles = &BundlePoller{src: src} }
}

// WithReceiptSource enables confirmation polling of legacy transactions.
func WithReceiptSource(src ReceiptSource) Option {
	return func(t *Tracker) { t.receipts = &ReceiptPoller{src: src} }
}

// NewTracker creates an idle tracker.
func NewTracker(cfg Config, opts ...Option) *Tracker {
	if cfg.Windows == (Windows{}) {
		cfg.Windows = DefaultWindows
	}
	t := &Tracker{
		cfg:    cfg,
		clock:  clockwork.NewRealClock(),
		log:    slog.Default(),
		status: domain.TxStatus{State: domain.StateIdle},
		subs:   make(map[int]chan domain.TxStatus),
	}
	for _, opt := range opts {
		opt(t)
	}

	if t.bundles != nil {
		t.bundles.poller = newPoller("bundle", cfg.Poll, t.clock, t.log)
	}
	if t.receipts != nil {
		t.receipts.poller = newPoller("receipt", cfg.Poll, t.clock, t.log)
	}
	return t
}

// SetTransitionCallback registers a callback invoked after every transition.
// It runs with the tracker lock released and must not block for long.
func (t *Tracker) SetTransitionCallback(fn func(Transition, domain.TxStatus)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// Status returns the current status.
func (t *Tracker) Status() domain.TxStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Begin marks the start of a dispatch. It fails with domain.ErrNeedsWallet
// when no account is connected and with domain.ErrBusy while a previous
// dispatch is still in flight or on display.
func (t *Tracker) Begin(hasAccount bool) error {
	t.mu.Lock()
	var fired []func()
	defer func() {
		t.mu.Unlock()
		runAll(fired)
	}()

	if t.closed {
		return domain.ErrBusy
	}

	if !hasAccount {
		switch t.status.State {
		case domain.StateIdle:
		case domain.StateCancelled, domain.StateError:
			fired = append(fired, t.transition(domain.TxStatus{State: domain.StateIdle}, "new send")...)
		case domain.StateNeedsWallet:
			return domain.ErrNeedsWallet
		default:
			return domain.ErrBusy
		}
		fired = append(fired, t.transition(domain.TxStatus{
			State:   domain.StateNeedsWallet,
			Message: domain.UserMessage(domain.ErrNeedsWallet),
		}, "no account")...)
		return domain.ErrNeedsWallet
	}

	if !CanTransition(t.status.State, domain.StateSending) {
		return domain.ErrBusy
	}
	t.gen++
	t.diag = nil
	fired = append(fired, t.transition(domain.TxStatus{State: domain.StateSending}, "dispatch started")...)
	return nil
}

// Fail records a dispatch failure. A user rejection moves to Cancelled,
// anything else to Error.
func (t *Tracker) Fail(err error) {
	if err == nil {
		return
	}
	t.mu.Lock()
	var fired []func()
	defer func() {
		t.mu.Unlock()
		runAll(fired)
	}()

	next := domain.StateError
	if errors.Is(err, domain.ErrUserRejected) {
		next = domain.StateCancelled
	}
	if !CanTransition(t.status.State, next) {
		t.log.Debug("Ignoring failure outside a dispatch", "state", t.status.State, "error", err)
		return
	}

	t.diag = newDiagnostics(err, t.clock.Now())
	fired = append(fired, t.transition(domain.TxStatus{
		State:   next,
		Message: domain.UserMessage(err),
	}, err.Error())...)
}

// Track records the dispatcher's handle and starts confirmation polling.
// The status stays Sent while polling runs. Polling stops when ctx is
// cancelled, another dispatch begins or the tracker is closed.
func (t *Tracker) Track(ctx context.Context, res *domain.DispatchResult) error {
	t.mu.Lock()
	var fired []func()
	defer func() {
		t.mu.Unlock()
		runAll(fired)
	}()

	if !CanTransition(t.status.State, domain.StateSent) {
		return fmt.Errorf("%w: cannot transition from %s to %s",
			ErrInvalidTransition, t.status.State, domain.StateSent)
	}

	next := domain.TxStatus{State: domain.StateSent, Handle: res.Handle}
	if res.Method == domain.MethodLegacyTransaction {
		next.TxHash = res.Handle
	}
	fired = append(fired, t.transition(next, string(res.Method))...)

	t.startPoll(ctx, res)
	if t.pollCancel == nil {
		t.armReset(domain.StateSent)
	}
	return nil
}

// Subscribe returns a stream of status changes starting with the current
// status, and a function that ends the subscription. Slow subscribers miss
// intermediate values.
func (t *Tracker) Subscribe() (<-chan domain.TxStatus, func()) {
	t.mu.Lock()
	defer t.mu.Unlock()

	ch := make(chan domain.TxStatus, 16)
	if t.closed {
		close(ch)
		return ch, func() {}
	}

	id := t.nextSub
	t.nextSub++
	t.subs[id] = ch
	ch <- t.status

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if c, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(c)
			}
		})
	}
}

// Diagnostics returns detail about the last failure, or nil.
func (t *Tracker) Diagnostics() *Diagnostics {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.diag == nil {
		return nil
	}
	d := *t.diag
	d.Causes = append([]string(nil), t.diag.Causes...)
	return &d
}

// History returns the most recent transitions, oldest first.
func (t *Tracker) History() []Transition {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Transition(nil), t.history...)
}

// Close stops the reset timer and any poll, and ends all subscriptions.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	t.stopTimers()
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
	t.mu.Unlock()

	t.wg.Wait()
	return nil
}

// transition moves to next if the table allows it and returns the
// notifications to run once the lock is released. Must hold t.mu.
func (t *Tracker) transition(next domain.TxStatus, reason string) []func() {
	from := t.status.State
	if !CanTransition(from, next.State) {
		t.log.Debug("Rejected status transition", "from", from, "to", next.State)
		return nil
	}

	if t.reset != nil {
		t.reset.Stop()
		t.reset = nil
	}
	if next.State == domain.StateIdle || next.State == domain.StateSending {
		t.cancelPoll()
	}

	tr := NewTransition(from, next.State, reason, t.clock.Now())
	t.status = next
	t.history = append(t.history, tr)
	if len(t.history) > historySize {
		t.history = t.history[len(t.history)-historySize:]
	}
	metrics.StatusTransitions.WithLabelValues(string(from), string(next.State)).Inc()
	t.log.Info("Status changed", "from", from, "to", next.State, "handle", next.Handle)

	if next.State.IsTerminal() && next.State != domain.StateSent {
		t.armReset(next.State)
	}

	for _, ch := range t.subs {
		select {
		case ch <- next:
		default:
			t.log.Debug("Dropping status update for slow subscriber", "state", next.State)
		}
	}

	if t.onChange == nil {
		return nil
	}
	fn := t.onChange
	return []func(){func() { fn(tr, next) }}
}

// armReset schedules the fall back to idle for state. Must hold t.mu.
func (t *Tracker) armReset(state State) {
	if t.closed {
		return
	}
	gen := t.gen
	t.reset = t.clock.AfterFunc(t.cfg.Windows.forState(state), func() {
		t.expire(gen, state)
	})
}

// expire resets a terminal status once its window has passed.
func (t *Tracker) expire(gen uint64, state State) {
	t.mu.Lock()
	var fired []func()
	defer func() {
		t.mu.Unlock()
		runAll(fired)
	}()

	if t.closed || t.gen != gen || t.status.State != state {
		return
	}
	fired = t.transition(domain.TxStatus{State: domain.StateIdle}, "reset window elapsed")
}

// startPoll launches the poller matching the dispatch method. Must hold t.mu.
func (t *Tracker) startPoll(ctx context.Context, res *domain.DispatchResult) {
	t.cancelPoll()

	var poll func(context.Context) (*Outcome, error)
	switch {
	case res.Method == domain.MethodBatchedCall && t.bundles != nil:
		poll = func(ctx context.Context) (*Outcome, error) { return t.bundles.Poll(ctx, res.Handle) }
	case res.Method == domain.MethodLegacyTransaction && t.receipts != nil:
		poll = func(ctx context.Context) (*Outcome, error) { return t.receipts.Poll(ctx, res.Handle) }
	default:
		return
	}

	pollCtx, cancel := context.WithCancel(ctx)
	t.pollCancel = cancel
	gen := t.gen

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer cancel()

		out, err := poll(pollCtx)
		if err != nil {
			if pollCtx.Err() == nil {
				t.log.Warn("Confirmation polling stopped", "handle", res.Handle, "error", err)
			}
			t.pollEnded(gen, res.Handle)
			return
		}
		t.resolve(gen, res.Handle, out)
	}()
}

// pollEnded starts the Sent window after polling gave up without a result.
func (t *Tracker) pollEnded(gen uint64, handle string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed || t.gen != gen || t.status.State != domain.StateSent || t.status.Handle != handle {
		return
	}
	t.pollCancel = nil
	t.armReset(domain.StateSent)
}

// resolve applies a poll outcome if it still belongs to the current dispatch.
func (t *Tracker) resolve(gen uint64, handle string, out *Outcome) {
	t.mu.Lock()
	var fired []func()
	defer func() {
		t.mu.Unlock()
		runAll(fired)
	}()

	if t.closed || t.gen != gen || t.status.State != domain.StateSent || t.status.Handle != handle {
		t.log.Debug("Ignoring stale poll result", "handle", handle)
		return
	}

	if out.Success {
		txHash := out.TxHash
		if txHash == "" {
			txHash = t.status.TxHash
		}
		fired = t.transition(domain.TxStatus{
			State:  domain.StateConfirmed,
			Handle: handle,
			TxHash: txHash,
		}, "confirmed")
		return
	}

	err := out.Err()
	t.diag = newDiagnostics(err, t.clock.Now())
	fired = t.transition(domain.TxStatus{
		State:   domain.StateError,
		Handle:  handle,
		TxHash:  out.TxHash,
		Message: domain.UserMessage(err),
	}, err.Error())
}

func (t *Tracker) cancelPoll() {
	if t.pollCancel != nil {
		t.pollCancel()
		t.pollCancel = nil
	}
}

func (t *Tracker) stopTimers() {
	if t.reset != nil {
		t.reset.Stop()
		t.reset = nil
	}
	t.cancelPoll()
}

func newDiagnostics(err error, at time.Time) *Diagnostics {
	return &Diagnostics{
		Raw:     err.Error(),
		Message: domain.UserMessage(err),
		Causes:  causeChain(err),
		At:      at,
	}
}

// causeChain flattens the wrapped errors of err, depth first.
func causeChain(err error) []string {
	var out []string
	var walk func(error)
	walk = func(e error) {
		if e == nil {
			return
		}
		out = append(out, e.Error())
		switch u := e.(type) {
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		}
	}
	walk(err)
	return out
}

func runAll(fns []func()) {
	for _, fn := range fns {
		fn()
	}
}
