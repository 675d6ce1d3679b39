package domain

import (
	"fmt"
	"math/big"
)

// RawEvent is a TokensLocked occurrence as decoded from a source-chain log.
// Immutable once fetched.
type RawEvent struct {
	TxHash             string
	LogIndex           uint
	BlockNumber        uint64
	Sender             string
	Token              string
	Amount             *big.Int
	DestinationChainID uint64
	Recipient          []byte
}

// Key returns the deduplication identity of the event. Two fetches of the
// same underlying occurrence always yield the same key.
func (e *RawEvent) Key() EventKey {
	return EventKey{TxHash: e.TxHash, LogIndex: e.LogIndex}
}

// EventKey uniquely identifies an occurrence on the source chain.
type EventKey struct {
	TxHash   string
	LogIndex uint
}

// String renders the persisted key form "<txHash>-<logIndex>".
func (k EventKey) String() string {
	return fmt.Sprintf("%s-%d", k.TxHash, k.LogIndex)
}

// ValidatedEvent is a RawEvent that passed structural and semantic checks.
// Transient, never persisted.
type ValidatedEvent struct {
	*RawEvent
}
