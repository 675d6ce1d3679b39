package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/relayer/internal/core/domain"
)

// Simulated stands in for the destination chain. It constructs the mint
// transaction that a real deployment would sign and broadcast, logs it,
// and reports success after an optional artificial delay.
type Simulated struct {
	log   *slog.Logger
	delay time.Duration
}

// NewSimulated creates a simulated executor.
func NewSimulated(log *slog.Logger, delay time.Duration) *Simulated {
	return &Simulated{log: log, delay: delay}
}

// Execute simulates creating, signing and sending the destination
// transaction.
func (s *Simulated) Execute(ctx context.Context, ev domain.ValidatedEvent) error {
	destTxID := uuid.New().String()

	s.log.Info("simulating destination mint transaction",
		"event", ev.Key().String(),
		"destination_chain_id", ev.DestinationChainID,
		"function", "mintBridgedTokens",
		"token", ev.Token,
		"amount", ev.Amount.String(),
		"recipient_bytes", len(ev.Recipient),
		"dest_tx_id", destTxID,
	)

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.delay):
		}
	}

	s.log.Info("destination transaction confirmed",
		"event", ev.Key().String(), "dest_tx_id", destTxID)
	return nil
}
