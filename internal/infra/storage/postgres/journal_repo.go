package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/calldispatch/internal/core/domain"
	"github.com/vietddude/calldispatch/internal/infra/storage"
)

// JournalRepo implements storage.JournalRepository using PostgreSQL.
type JournalRepo struct {
	db *DB
}

// NewJournalRepo creates a new PostgreSQL journal repository.
func NewJournalRepo(db *DB) *JournalRepo {
	return &JournalRepo{db: db}
}

const insertEntry = `
INSERT INTO dispatch_journal
    (id, session_id, chain_id, method, mode, handle, call_count, state, tx_hash, error_detail, created_at, updated_at)
VALUES
    (:id, :session_id, :chain_id, :method, :mode, :handle, :call_count, :state, :tx_hash, :error_detail, :created_at, :updated_at)`

// Create stores a new entry.
func (r *JournalRepo) Create(ctx context.Context, entry *domain.JournalEntry) error {
	e := *entry
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	if e.UpdatedAt.IsZero() {
		e.UpdatedAt = e.CreatedAt
	}
	if _, err := r.db.NamedExecContext(ctx, insertEntry, &e); err != nil {
		return fmt.Errorf("failed to create journal entry: %w", err)
	}
	return nil
}

// UpdateStatus records the latest status of an entry. Empty hash or
// detail leave the stored values untouched.
func (r *JournalRepo) UpdateStatus(
	ctx context.Context,
	id string,
	state domain.StatusState,
	txHash, errorDetail string,
) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE dispatch_journal
SET state = $2,
    tx_hash = COALESCE(NULLIF($3, ''), tx_hash),
    error_detail = COALESCE(NULLIF($4, ''), error_detail),
    updated_at = now()
WHERE id = $1`, id, string(state), txHash, errorDetail)
	if err != nil {
		return fmt.Errorf("failed to update journal entry: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update journal entry: %w", err)
	}
	if n == 0 {
		return storage.ErrEntryNotFound
	}
	return nil
}

// Get retrieves an entry by id.
func (r *JournalRepo) Get(ctx context.Context, id string) (*domain.JournalEntry, error) {
	var e domain.JournalEntry
	err := r.db.GetContext(ctx, &e, `SELECT * FROM dispatch_journal WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrEntryNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get journal entry: %w", err)
	}
	return &e, nil
}

// ListRecent returns the newest entries first.
func (r *JournalRepo) ListRecent(ctx context.Context, limit int) ([]*domain.JournalEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	var entries []*domain.JournalEntry
	err := r.db.SelectContext(ctx, &entries,
		`SELECT * FROM dispatch_journal ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list journal entries: %w", err)
	}
	return entries, nil
}

// PurgeBefore deletes entries created before the given time.
func (r *JournalRepo) PurgeBefore(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM dispatch_journal WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge journal: %w", err)
	}
	return res.RowsAffected()
}
