package rpc

import (
	"strings"
	"testing"
)

func TestDecodeLockLog_StableKey(t *testing.T) {
	raw := lockLog("0xABC", 4, 50, 100)

	first, err := decodeLockLog(raw)
	if err != nil {
		t.Fatal(err)
	}
	second, err := decodeLockLog(raw)
	if err != nil {
		t.Fatal(err)
	}
	if first.Key() != second.Key() {
		t.Errorf("same occurrence decoded to different keys: %s vs %s", first.Key(), second.Key())
	}
	if first.Key().String() != "0xabc-4" {
		t.Errorf("unexpected key form: %s", first.Key())
	}
}

func TestDecodeLockLog_Malformed(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(map[string]any)
	}{
		{"missing tx hash", func(m map[string]any) { delete(m, "transactionHash") }},
		{"bad log index", func(m map[string]any) { m["logIndex"] = "xyz" }},
		{"missing topics", func(m map[string]any) { m["topics"] = []any{TokensLocked.Signature} }},
		{"short data", func(m map[string]any) { m["data"] = "0x" + word(1) }},
		{"bad recipient offset", func(m map[string]any) {
			m["data"] = "0x" + word(1) + word(137) + word(4096)
		}},
		{"recipient offset overflows int64", func(m map[string]any) {
			// offset word of MaxInt64 must be rejected, not wrapped into a
			// negative slice bound
			m["data"] = "0x" + word(1) + word(137) + word(1<<63-1)
		}},
		{"recipient offset wider than 64 bits", func(m map[string]any) {
			m["data"] = "0x" + word(1) + word(137) + strings.Repeat("ff", 32)
		}},
		{"recipient length overflows int64", func(m map[string]any) {
			m["data"] = "0x" + word(1) + word(137) + word(96) + word(1<<63-1)
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := lockLog("0x1", 0, 10, 100)
			tc.mutate(raw)
			if _, err := decodeLockLog(raw); err == nil {
				t.Error("expected decode error")
			}
		})
	}
}

func TestTokensLockedTopic(t *testing.T) {
	// topic0 of the canonical event signature; eth_getLogs filters on this,
	// so a stale value silently returns zero events
	const want = "0x5ebe2ec1ad1e8bacdea8e6bbd2d6ad2625a33477a2d0d2c81afd1fbbf397933c"
	if TokensLocked.Signature != want {
		t.Errorf("TokensLocked topic0 = %s, want %s", TokensLocked.Signature, want)
	}

	// sanity-check the hash helper against the well-known ERC-20 Transfer topic
	got := eventTopic("Transfer(address,address,uint256)")
	if got != "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef" {
		t.Errorf("unexpected Transfer topic0: %s", got)
	}
}

func TestExtractAddress(t *testing.T) {
	topic := "0x000000000000000000000000" + strings.Repeat("AB", 20)
	got := extractAddress(topic)
	if got != "0x"+strings.Repeat("ab", 20) {
		t.Errorf("unexpected address %s", got)
	}
	if extractAddress("0x12") != "" {
		t.Error("expected empty address for short topic")
	}
}
