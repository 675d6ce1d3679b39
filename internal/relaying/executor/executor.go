package executor

import (
	"context"
	"errors"

	"github.com/vietddude/relayer/internal/core/domain"
)

// ErrExecution is returned when the destination-side relay action failed.
// The event is not committed and stays eligible for a future retry.
var ErrExecution = errors.New("relay execution failed")

// Executor applies a validated lock event's effect on the destination
// system. Opaque to the pipeline: possibly slow, possibly failing, and
// safe to invoke again for the same event (destination-side idempotency
// is the executor's own responsibility).
type Executor interface {
	Execute(ctx context.Context, ev domain.ValidatedEvent) error
}
