// Package control wires configuration, wallet, detector, dispatcher,
// tracker and journal into one application.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/vietddude/calldispatch/internal/capability"
	"github.com/vietddude/calldispatch/internal/core/config"
	"github.com/vietddude/calldispatch/internal/core/domain"
	"github.com/vietddude/calldispatch/internal/core/worker"
	"github.com/vietddude/calldispatch/internal/dispatch"
	"github.com/vietddude/calldispatch/internal/health"
	redisclient "github.com/vietddude/calldispatch/internal/infra/redis"
	"github.com/vietddude/calldispatch/internal/infra/rpc"
	"github.com/vietddude/calldispatch/internal/infra/storage"
	"github.com/vietddude/calldispatch/internal/infra/storage/memory"
	"github.com/vietddude/calldispatch/internal/infra/storage/postgres"
	"github.com/vietddude/calldispatch/internal/infra/wallet"
	"github.com/vietddude/calldispatch/internal/status"
)

// App is the dispatch application.
type App struct {
	cfg          *config.AppConfig
	wallet       *wallet.Client
	detector     *capability.Detector
	dispatcher   *dispatch.Dispatcher
	tracker      *status.Tracker
	journal      storage.JournalRepository
	db           *postgres.DB
	redisClient  *redisclient.Client
	healthMon    *health.Monitor
	healthServer *health.Server
	log          *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	entryID string
}

// NewApp creates an App with all dependencies initialized.
func NewApp(cfg *config.AppConfig) (*App, error) {
	log := slog.Default()
	a := &App{cfg: cfg, log: log}
	a.ctx, a.cancel = context.WithCancel(context.Background())

	// 1. Initialize Storage
	if cfg.Database.URL != "" {
		db, err := postgres.NewDB(context.Background(), cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to init db: %w", err)
		}
		if err := db.Migrate(context.Background()); err != nil {
			_ = db.Close()
			return nil, err
		}
		a.db = db
		a.journal = postgres.NewJournalRepo(db)
		log.Info("Using PostgreSQL journal")
	} else {
		a.journal = memory.NewJournalRepo(memory.NewMemoryStorage())
		log.Info("Using Memory journal")
	}

	// 2. Shared capability cache
	var store capability.Store
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			a.closeStores()
			return nil, fmt.Errorf("failed to init redis: %w", err)
		}
		a.redisClient = client
		store = redisclient.NewCapabilityStore(client, cfg.Redis.TTL)
		log.Info("Sharing capability detection through Redis")
	}

	// 3. Wallet and read providers
	walletProvider := rpc.NewHTTPProvider(cfg.Wallet.Name, cfg.Wallet.URL, cfg.Wallet.Timeout)
	walletOpts := []wallet.Option{wallet.WithLogger(log)}

	router := rpc.NewRouter()
	chainKey := domain.ChainName(cfg.Wallet.ChainID)
	for _, p := range cfg.Chain.ReadProviders {
		router.AddProvider(chainKey, rpc.NewHTTPProvider(p.Name, p.URL, 10*time.Second))
	}
	if len(cfg.Chain.ReadProviders) > 0 {
		reader := rpc.NewClient(chainKey, router)
		walletOpts = append(walletOpts, wallet.WithReader(reader))
		log.Info("Routing reads through chain providers", "chain", chainKey, "count", reader.ProviderCount())
	}

	var account common.Address
	if cfg.Wallet.Account != "" {
		account = common.HexToAddress(cfg.Wallet.Account)
	}
	a.wallet = wallet.NewClient(walletProvider, account, cfg.Wallet.ChainID, walletOpts...)

	// 4. Pipeline
	a.detector = capability.NewDetector(store, log)

	dispatchOpts := []dispatch.Option{
		dispatch.WithWallet(a.wallet),
		dispatch.WithDetector(a.detector),
		dispatch.WithLogger(log),
	}
	if !cfg.Wallet.DisableBatch {
		dispatchOpts = append(dispatchOpts, dispatch.WithBatchSubmitter(a.wallet))
	}
	if !cfg.Wallet.DisableLegacy {
		dispatchOpts = append(dispatchOpts, dispatch.WithLegacySubmitter(a.wallet))
	}
	if cfg.Wallet.Simulate {
		dispatchOpts = append(dispatchOpts, dispatch.WithSimulator(a.wallet))
	}
	a.dispatcher = dispatch.New(cfg.Attribution, dispatchOpts...)

	a.tracker = status.NewTracker(cfg.Tracker,
		status.WithLogger(log),
		status.WithBundleSource(a.wallet),
		status.WithReceiptSource(a.wallet),
	)
	a.tracker.SetTransitionCallback(a.recordTransition)

	// 5. Health
	a.healthMon = health.NewMonitor(10 * time.Second)
	a.healthMon.Register("wallet", health.ProviderCheck(walletProvider, true))
	for _, p := range router.GetAllProviders(chainKey) {
		a.healthMon.Register("read:"+p.GetName(), health.ProviderCheck(p, false))
	}
	if a.db != nil {
		a.healthMon.Register("database", health.PingCheck(a.db.Health))
	}
	if a.redisClient != nil {
		a.healthMon.Register("redis", health.PingCheck(a.redisClient.Ping))
	}
	a.healthServer = health.NewServer(a.healthMon, a, cfg.Server.Port)

	return a, nil
}

// Start starts the HTTP server and background collectors.
func (a *App) Start(ctx context.Context) error {
	go func() {
		if err := a.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Error("Health server failed", "error", err)
		}
	}()

	if a.db != nil {
		a.db.StartMetricsCollector(ctx)
	}

	if a.cfg.Journal.Retention > 0 {
		pruner := worker.NewPruner(a.cfg.Journal.Retention, a.journal, nil)
		a.wg.Add(1)
		go func() {
			defer a.wg.Done()
			pruner.Start(a.ctx)
		}()
	}

	a.log.Info("Dispatcher ready",
		"port", a.cfg.Server.Port,
		"chain", domain.ChainName(a.cfg.Wallet.ChainID),
		"attribution", !a.dispatcher.Suffix().Empty(),
	)
	return nil
}

// Stop stops the server, waits for in-flight dispatches and releases resources.
func (a *App) Stop(ctx context.Context) error {
	a.log.Info("Stopping dispatcher...")

	err := a.healthServer.Stop(ctx)
	a.cancel()
	a.wg.Wait()
	a.tracker.Close()
	a.wallet.Close()
	a.closeStores()
	return err
}

// Send starts a dispatch and returns without waiting for the wallet.
// Progress is observed through Status and Subscribe. It fails right away
// when no account is connected or a previous dispatch is still pending.
func (a *App) Send(ctx context.Context, calls ...domain.Call) error {
	batch := domain.NewCallBatch(calls...)
	if err := a.tracker.Begin(a.wallet.HasAccount()); err != nil {
		return err
	}

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.run(context.WithoutCancel(ctx), batch)
	}()
	return nil
}

func (a *App) run(ctx context.Context, batch domain.CallBatch) {
	// Stop aborts dispatches that are still waiting on the wallet.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(a.ctx, cancel)
	defer stop()

	res, err := a.dispatcher.Dispatch(ctx, dispatch.Request{
		Calls:   batch,
		ChainID: a.wallet.ChainID(),
		Account: a.wallet.Account(),
	})

	entry := &domain.JournalEntry{
		ID:        uuid.New().String(),
		ChainID:   a.wallet.ChainID(),
		CallCount: batch.Len(),
		CreatedAt: time.Now(),
	}
	if s := a.detector.Session(); s != nil {
		entry.SessionID = s.ID
	}

	if err != nil {
		if errors.Is(err, domain.ErrUserRejected) {
			a.log.Info("Dispatch cancelled by user")
			entry.State = string(domain.StateCancelled)
		} else {
			a.log.Error("Dispatch failed", "error", err)
			entry.State = string(domain.StateError)
		}
		entry.ErrorDetail = err.Error()
		a.saveEntry(entry)
		a.tracker.Fail(err)
		return
	}

	entry.Method = string(res.Method)
	entry.Mode = string(res.Mode)
	entry.Handle = res.Handle
	entry.State = string(domain.StateSent)
	if res.Method == domain.MethodLegacyTransaction {
		entry.TxHash = res.Handle
	}
	a.saveEntry(entry)

	if err := a.tracker.Track(a.ctx, res); err != nil {
		a.log.Warn("Failed to track dispatch", "handle", res.Handle, "error", err)
	}
}

func (a *App) saveEntry(entry *domain.JournalEntry) {
	a.mu.Lock()
	a.entryID = entry.ID
	a.mu.Unlock()

	if err := a.journal.Create(a.ctx, entry); err != nil {
		a.log.Warn("Failed to write journal entry", "error", err)
	}
}

// recordTransition writes confirmation results back to the journal.
func (a *App) recordTransition(t status.Transition, st domain.TxStatus) {
	if t.From != domain.StateSent || (t.To != domain.StateConfirmed && t.To != domain.StateError) {
		return
	}

	a.mu.Lock()
	id := a.entryID
	a.mu.Unlock()
	if id == "" {
		return
	}

	detail := ""
	if d := a.tracker.Diagnostics(); d != nil && t.To == domain.StateError {
		detail = d.Raw
	}
	if err := a.journal.UpdateStatus(a.ctx, id, t.To, st.TxHash, detail); err != nil {
		a.log.Warn("Failed to update journal entry", "id", id, "error", err)
	}
}

// Status returns the current dispatch status.
func (a *App) Status() domain.TxStatus {
	return a.tracker.Status()
}

// Subscribe streams status changes. Call the returned function to stop.
func (a *App) Subscribe() (<-chan domain.TxStatus, func()) {
	return a.tracker.Subscribe()
}

// Detail returns diagnostics for debugging surfaces.
func (a *App) Detail() any {
	st := a.tracker.Status()
	detail := map[string]any{
		"status":      st,
		"description": status.StateDescription(st.State),
		"diagnostics": a.tracker.Diagnostics(),
		"history":     a.tracker.History(),
		"suffix":      a.dispatcher.Suffix().Hex(),
	}
	if s := a.detector.Session(); s != nil {
		detail["capability_session"] = map[string]any{
			"id":          s.ID,
			"support":     s.Support.String(),
			"detected_at": s.DetectedAt,
		}
	}
	if entries, err := a.journal.ListRecent(context.Background(), 10); err == nil {
		detail["journal"] = entries
	}
	return detail
}

// Capabilities runs capability detection for the configured wallet.
func (a *App) Capabilities(ctx context.Context) (domain.CapabilitySupport, any, error) {
	raw, err := a.wallet.GetCapabilities(ctx)
	if err != nil {
		return domain.CapabilityUnsupported, nil, err
	}
	return a.detector.Detect(ctx, a.wallet), raw, nil
}

// Journal returns the dispatch journal.
func (a *App) Journal() storage.JournalRepository {
	return a.journal
}

func (a *App) closeStores() {
	if a.redisClient != nil {
		if err := a.redisClient.Close(); err != nil {
			a.log.Warn("Failed to close Redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			a.log.Warn("Failed to close database", "error", err)
		}
	}
}
