package rpc

import (
	"encoding/hex"
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/vietddude/relayer/internal/core/domain"
)

// decodeLockLog decodes a raw eth_getLogs entry into a RawEvent per the
// fixed TokensLocked schema: sender and token are indexed (topics 1 and 2),
// data carries (amount uint256, destinationChainId uint256, recipient bytes).
func decodeLockLog(logData map[string]any) (*domain.RawEvent, error) {
	txHash, _ := logData["transactionHash"].(string)
	if txHash == "" {
		return nil, fmt.Errorf("log missing transactionHash")
	}

	logIndexHex, _ := logData["logIndex"].(string)
	logIndex, err := parseHexUint64(logIndexHex)
	if err != nil {
		return nil, fmt.Errorf("log %s: bad logIndex: %w", txHash, err)
	}

	blockNumHex, _ := logData["blockNumber"].(string)
	blockNum, err := parseHexUint64(blockNumHex)
	if err != nil {
		return nil, fmt.Errorf("log %s: bad blockNumber: %w", txHash, err)
	}

	topics, ok := logData["topics"].([]any)
	if !ok || len(topics) < 3 {
		return nil, fmt.Errorf("log %s: expected 3 topics, got %d", txHash, len(topics))
	}
	senderTopic, _ := topics[1].(string)
	tokenTopic, _ := topics[2].(string)

	dataHex, _ := logData["data"].(string)
	data, err := hex.DecodeString(strings.TrimPrefix(dataHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("log %s: bad data: %w", txHash, err)
	}
	if len(data) < 96 { // amount word + destChainId word + recipient offset word
		return nil, fmt.Errorf("log %s: data too short (%d bytes)", txHash, len(data))
	}

	amount := new(big.Int).SetBytes(data[0:32])

	destChainID := new(big.Int).SetBytes(data[32:64])
	if !destChainID.IsUint64() {
		return nil, fmt.Errorf("log %s: destinationChainId out of range", txHash)
	}

	recipient, err := decodeBytesAt(data, 64)
	if err != nil {
		return nil, fmt.Errorf("log %s: bad recipient: %w", txHash, err)
	}

	return &domain.RawEvent{
		TxHash:             strings.ToLower(txHash),
		LogIndex:           uint(logIndex),
		BlockNumber:        blockNum,
		Sender:             extractAddress(senderTopic),
		Token:              extractAddress(tokenTopic),
		Amount:             amount,
		DestinationChainID: destChainID.Uint64(),
		Recipient:          recipient,
	}, nil
}

// decodeBytesAt reads a dynamic `bytes` value whose offset word sits at
// wordPos in the ABI-encoded data section. Offset and length words are
// untrusted 256-bit values; all bounds checks happen in big.Int space
// before any native slicing so oversized words cannot wrap around.
func decodeBytesAt(data []byte, wordPos int) ([]byte, error) {
	dataLen := big.NewInt(int64(len(data)))

	offset := new(big.Int).SetBytes(data[wordPos : wordPos+32])
	lengthEnd := new(big.Int).Add(offset, big.NewInt(32))
	if lengthEnd.Cmp(dataLen) > 0 {
		return nil, fmt.Errorf("offset %s out of bounds", offset)
	}
	start := int(offset.Int64())

	length := new(big.Int).SetBytes(data[start : start+32])
	bytesEnd := new(big.Int).Add(lengthEnd, length)
	if bytesEnd.Cmp(dataLen) > 0 {
		return nil, fmt.Errorf("length %s out of bounds", length)
	}

	out := make([]byte, int(length.Int64()))
	copy(out, data[start+32:start+32+len(out)])
	return out, nil
}

// extractAddress pulls the 20-byte address out of a 32-byte topic word.
func extractAddress(topic string) string {
	t := strings.TrimPrefix(strings.ToLower(topic), "0x")
	if len(t) < 40 {
		return ""
	}
	return "0x" + t[len(t)-40:]
}

func parseHexUint64(s string) (uint64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty hex value")
	}
	return strconv.ParseUint(strings.TrimPrefix(s, "0x"), 16, 64)
}

func hexUint64(v uint64) string {
	return "0x" + strconv.FormatUint(v, 16)
}
