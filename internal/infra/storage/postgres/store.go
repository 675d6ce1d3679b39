package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/vietddude/relayer/internal/core/domain"
	"github.com/vietddude/relayer/internal/infra/storage"
)

// Store implements storage.ProcessedStore on PostgreSQL. The primary key
// on event_key makes claim-and-commit a single atomic statement.
type Store struct {
	db *DB
}

// NewStore creates a PostgreSQL-backed processed-event store.
func NewStore(db *DB) *Store {
	return &Store{db: db}
}

// HasProcessed reports whether the key has been committed.
func (s *Store) HasProcessed(ctx context.Context, key domain.EventKey) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_key = $1)`, key.String())
	if err != nil {
		return false, fmt.Errorf("failed to query processed state: %w", err)
	}
	return exists, nil
}

// MarkProcessed commits the key. A duplicate key surfaces as
// storage.ErrAlreadyProcessed; any other failure wraps
// storage.ErrPersistence and leaves committed rows untouched.
func (s *Store) MarkProcessed(ctx context.Context, key domain.EventKey, rec domain.ProcessedRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO processed_events (event_key, processed_at, event_data) VALUES ($1, $2, $3)`,
		key.String(), rec.Timestamp, rec.EventData)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" { // unique_violation
			return storage.ErrAlreadyProcessed
		}
		return fmt.Errorf("%w: %v", storage.ErrPersistence, err)
	}
	return nil
}

// Count returns the number of committed records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM processed_events`); err != nil {
		return 0, fmt.Errorf("failed to count processed events: %w", err)
	}
	return n, nil
}
