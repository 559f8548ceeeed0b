// Package capability detects whether the connected wallet attaches the
// attribution suffix itself through its batched-call capability channel.
package capability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/vietddude/calldispatch/internal/core/domain"
	"github.com/vietddude/calldispatch/internal/metrics"
)

// Wallet is the part of a wallet client the detector needs.
type Wallet interface {
	Request(ctx context.Context, method string, params ...any) (any, error)
	Identity() string
	ChainID() uint64
	Account() common.Address
}

// Store shares detection results beyond this process. Implementations must
// be safe for concurrent use.
type Store interface {
	Get(ctx context.Context, identity string) (domain.CapabilitySupport, bool, error)
	Set(ctx context.Context, identity string, support domain.CapabilitySupport) error
}

// Session is the detector state for one wallet session.
type Session struct {
	ID         string
	Identity   string
	Support    domain.CapabilitySupport
	DetectedAt time.Time
}

// Detector memoizes capability support per wallet session.
// A zero Detector is not usable; use NewDetector.
type Detector struct {
	mu      sync.Mutex
	session *Session
	flight  singleflight.Group
	store   Store
	log     *slog.Logger
}

// NewDetector creates a detector. store may be nil.
func NewDetector(store Store, log *slog.Logger) *Detector {
	if log == nil {
		log = slog.Default()
	}
	return &Detector{store: store, log: log}
}

// Detect returns whether w supports the suffix capability. It never returns
// CapabilityUnknown: failures are reported (and cached) as unsupported.
func (d *Detector) Detect(ctx context.Context, w Wallet) domain.CapabilitySupport {
	if w == nil {
		return domain.CapabilityUnsupported
	}

	identity := w.Identity()
	if s := d.current(identity); s.Support != domain.CapabilityUnknown {
		return s.Support
	}

	ch := d.flight.DoChan(identity, func() (any, error) {
		// The shared request outlives any single caller giving up.
		return d.resolve(context.WithoutCancel(ctx), w, identity), nil
	})

	select {
	case res := <-ch:
		return res.Val.(domain.CapabilitySupport)
	case <-ctx.Done():
		return domain.CapabilityUnsupported
	}
}

// Session returns a snapshot of the current session, or nil before the first detection.
func (d *Detector) Session() *Session {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return nil
	}
	s := *d.session
	return &s
}

// Invalidate drops the current session, e.g. on wallet disconnect.
func (d *Detector) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session != nil {
		d.log.Info("Capability session invalidated", "session", d.session.ID)
	}
	d.session = nil
}

// current returns the session for identity, starting a new one when the
// wallet identity changed.
func (d *Detector) current(identity string) Session {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.session == nil || d.session.Identity != identity {
		if d.session != nil {
			d.log.Info("Wallet identity changed, resetting capability cache",
				"previous_session", d.session.ID)
		}
		d.session = &Session{ID: uuid.NewString(), Identity: identity}
	}
	return *d.session
}

func (d *Detector) resolve(ctx context.Context, w Wallet, identity string) domain.CapabilitySupport {
	if d.store != nil {
		if support, ok, err := d.store.Get(ctx, identity); err != nil {
			d.log.Warn("Capability store read failed", "error", err)
		} else if ok && support != domain.CapabilityUnknown {
			d.remember(identity, support)
			metrics.CapabilityDetections.WithLabelValues(support.String(), "store").Inc()
			return support
		}
	}

	support := domain.CapabilityUnsupported
	raw, err := w.Request(ctx, "wallet_getCapabilities", w.Account().Hex(), []string{domain.ChainIDHex(w.ChainID())})
	if err != nil {
		d.log.Info("Capability detection failed, assuming unsupported", "error", err)
	} else if ParseSupport(raw, w.ChainID()) {
		support = domain.CapabilitySupported
	}

	d.remember(identity, support)
	metrics.CapabilityDetections.WithLabelValues(support.String(), "wallet").Inc()

	if d.store != nil {
		if err := d.store.Set(ctx, identity, support); err != nil {
			d.log.Warn("Capability store write failed", "error", err)
		}
	}
	d.log.Debug("Capability detected", "capability", Name, "support", support.String())
	return support
}

func (d *Detector) remember(identity string, support domain.CapabilitySupport) {
	d.mu.Lock()
	defer d.mu.Unlock()
	// The wallet may have switched while the request was in flight.
	if d.session == nil || d.session.Identity != identity {
		return
	}
	d.session.Support = support
	d.session.DetectedAt = time.Now()
}
