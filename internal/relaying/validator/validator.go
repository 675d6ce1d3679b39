package validator

import (
	"errors"
	"fmt"

	"github.com/vietddude/relayer/internal/core/domain"
)

var (
	// ErrMissingField is returned when a required field is absent. The
	// wrapping error names the field.
	ErrMissingField = errors.New("missing required field")

	// ErrNonPositiveAmount is returned when the lock amount is zero or
	// negative.
	ErrNonPositiveAmount = errors.New("lock amount must be positive")
)

// Validate checks a raw event's structural and semantic well-formedness.
// Pure and deterministic: no I/O, no side effects.
func Validate(e *domain.RawEvent) (domain.ValidatedEvent, error) {
	switch {
	case e.TxHash == "":
		return domain.ValidatedEvent{}, fmt.Errorf("%w: transactionHash", ErrMissingField)
	case e.Sender == "":
		return domain.ValidatedEvent{}, fmt.Errorf("%w: sender", ErrMissingField)
	case e.Token == "":
		return domain.ValidatedEvent{}, fmt.Errorf("%w: token", ErrMissingField)
	case e.Amount == nil:
		return domain.ValidatedEvent{}, fmt.Errorf("%w: amount", ErrMissingField)
	case e.DestinationChainID == 0:
		return domain.ValidatedEvent{}, fmt.Errorf("%w: destinationChainId", ErrMissingField)
	}

	if e.Amount.Sign() <= 0 {
		return domain.ValidatedEvent{}, ErrNonPositiveAmount
	}

	return domain.ValidatedEvent{RawEvent: e}, nil
}
