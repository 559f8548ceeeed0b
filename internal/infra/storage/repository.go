package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/calldispatch/internal/core/domain"
)

var (
	// ErrEntryNotFound is returned when a journal entry doesn't exist
	ErrEntryNotFound = errors.New("journal entry not found")
)

// JournalRepository records dispatches and their final status
type JournalRepository interface {
	// Create stores a new entry
	Create(ctx context.Context, entry *domain.JournalEntry) error

	// UpdateStatus records the latest status of an entry
	UpdateStatus(ctx context.Context, id string, state domain.StatusState, txHash, errorDetail string) error

	// Get retrieves an entry by id
	Get(ctx context.Context, id string) (*domain.JournalEntry, error)

	// ListRecent returns the newest entries first
	ListRecent(ctx context.Context, limit int) ([]*domain.JournalEntry, error)

	// PurgeBefore deletes entries created before the given time
	PurgeBefore(ctx context.Context, before time.Time) (int64, error)
}
