package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/calldispatch/internal/core/domain"
	"github.com/vietddude/calldispatch/internal/infra/storage"
)

type MemoryStorage struct {
	entries map[string]*domain.JournalEntry
	mu      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		entries: make(map[string]*domain.JournalEntry),
	}
}

// -----------------------------------------------------------------------------
// Journal Repository
// -----------------------------------------------------------------------------

type JournalRepo struct {
	store *MemoryStorage
}

func NewJournalRepo(store *MemoryStorage) *JournalRepo {
	return &JournalRepo{store: store}
}

func (r *JournalRepo) Create(ctx context.Context, entry *domain.JournalEntry) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e := *entry
	r.store.entries[entry.ID] = &e
	return nil
}

func (r *JournalRepo) UpdateStatus(
	ctx context.Context,
	id string,
	state domain.StatusState,
	txHash, errorDetail string,
) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	e, ok := r.store.entries[id]
	if !ok {
		return storage.ErrEntryNotFound
	}
	e.State = string(state)
	if txHash != "" {
		e.TxHash = txHash
	}
	if errorDetail != "" {
		e.ErrorDetail = errorDetail
	}
	e.UpdatedAt = time.Now()
	return nil
}

func (r *JournalRepo) Get(ctx context.Context, id string) (*domain.JournalEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()
	e, ok := r.store.entries[id]
	if !ok {
		return nil, storage.ErrEntryNotFound
	}
	out := *e
	return &out, nil
}

func (r *JournalRepo) ListRecent(ctx context.Context, limit int) ([]*domain.JournalEntry, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	out := make([]*domain.JournalEntry, 0, len(r.store.entries))
	for _, e := range r.store.entries {
		c := *e
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *JournalRepo) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()
	var n int64
	for id, e := range r.store.entries {
		if e.CreatedAt.Before(before) {
			delete(r.store.entries, id)
			n++
		}
	}
	return n, nil
}
