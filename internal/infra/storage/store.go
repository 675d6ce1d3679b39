package storage

import (
	"context"
	"errors"

	"github.com/vietddude/relayer/internal/core/domain"
)

var (
	// ErrAlreadyProcessed is returned by MarkProcessed when the key is
	// already committed. A double-commit is a caller logic error, distinct
	// from I/O failure.
	ErrAlreadyProcessed = errors.New("event already processed")

	// ErrPersistence is returned when the durable medium could not be
	// written. Prior committed state is left intact.
	ErrPersistence = errors.New("state persistence failed")
)

// ProcessedStore is the durable idempotency record of fully applied events.
// Once MarkProcessed succeeds for a key, HasProcessed reports true for that
// key forever, including across process restarts.
type ProcessedStore interface {
	// HasProcessed reports whether the key has been committed. Safe to
	// call concurrently with writes; never observes a partial write.
	HasProcessed(ctx context.Context, key domain.EventKey) (bool, error)

	// MarkProcessed commits the key with its audit record. Fails with
	// ErrAlreadyProcessed if the key exists, or an error wrapping
	// ErrPersistence if the medium is unwritable.
	MarkProcessed(ctx context.Context, key domain.EventKey, rec domain.ProcessedRecord) error

	// Count returns the number of committed records.
	Count(ctx context.Context) (int, error)
}
