package rpc

import (
	"context"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/vietddude/relayer/internal/core/domain"
)

// EventDescriptor identifies a contract event by name and topic0 hash.
type EventDescriptor struct {
	Name      string
	Signature string // keccak256 of the canonical event signature
}

// eventTopic computes the topic0 hash for a canonical event signature.
func eventTopic(signature string) string {
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(signature))
	return "0x" + hex.EncodeToString(h.Sum(nil))
}

// TokensLocked is the bridge lock event:
// TokensLocked(address indexed sender, address indexed token,
// uint256 amount, uint256 destinationChainId, bytes recipient)
var TokensLocked = EventDescriptor{
	Name:      "TokensLocked",
	Signature: eventTopic("TokensLocked(address,address,uint256,uint256,bytes)"),
}

var (
	addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)
	topicPattern   = regexp.MustCompile(`^0x[0-9a-fA-F]{64}$`)
)

// ContractHandle is a bound (address, event) log filter. It carries an
// advisory in-memory block cursor; losing it on restart is safe because
// the processed store stays authoritative for dedup.
type ContractHandle struct {
	conn    *Connector
	address string
	event   EventDescriptor

	// next block to poll from; 0 until the first poll anchors at head
	fromBlock uint64
}

// Contract binds a contract address to an event descriptor. An invalid
// pairing is misconfiguration and is reported, not retried.
func (c *Connector) Contract(address string, event EventDescriptor) (*ContractHandle, error) {
	if !addressPattern.MatchString(address) {
		return nil, fmt.Errorf("%w: bad contract address %q", ErrInvalidBinding, address)
	}
	if event.Name == "" || !topicPattern.MatchString(event.Signature) {
		return nil, fmt.Errorf("%w: bad event descriptor for %q", ErrInvalidBinding, event.Name)
	}

	return &ContractHandle{
		conn:    c,
		address: strings.ToLower(address),
		event:   event,
	}, nil
}

// PollNewEvents returns events that appeared since the last poll, in
// ledger order (block number, then log index within a block). The first
// call anchors the cursor at the current head and returns nothing.
// Each call advances the cursor.
func (h *ContractHandle) PollNewEvents(ctx context.Context) ([]*domain.RawEvent, error) {
	head, err := h.conn.blockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch head block: %w", err)
	}

	if h.fromBlock == 0 {
		h.fromBlock = head + 1
		return nil, nil
	}
	if head < h.fromBlock {
		return nil, nil
	}

	params := []any{map[string]any{
		"fromBlock": hexUint64(h.fromBlock),
		"toBlock":   hexUint64(head),
		"address":   h.address,
		"topics":    []any{h.event.Signature},
	}}
	result, err := h.conn.call(ctx, "eth_getLogs", params)
	if err != nil {
		return nil, fmt.Errorf("fetch logs: %w", err)
	}

	rawLogs, ok := result.([]any)
	if !ok {
		return nil, fmt.Errorf("unexpected eth_getLogs result type %T", result)
	}

	events := make([]*domain.RawEvent, 0, len(rawLogs))
	for _, raw := range rawLogs {
		logData, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		ev, err := decodeLockLog(logData)
		if err != nil {
			h.conn.log.Warn("skipping undecodable log", "error", err)
			continue
		}
		events = append(events, ev)
	}

	// eth_getLogs usually returns ledger order already; enforce it anyway
	// since downstream consumers rely on causal ordering per sender.
	sort.SliceStable(events, func(i, j int) bool {
		if events[i].BlockNumber != events[j].BlockNumber {
			return events[i].BlockNumber < events[j].BlockNumber
		}
		return events[i].LogIndex < events[j].LogIndex
	})

	h.fromBlock = head + 1
	return events, nil
}

// Address returns the bound contract address.
func (h *ContractHandle) Address() string {
	return h.address
}
