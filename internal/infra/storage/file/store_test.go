package file

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/vietddude/relayer/internal/core/domain"
	"github.com/vietddude/relayer/internal/infra/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testRecord() domain.ProcessedRecord {
	return domain.ProcessedRecord{Timestamp: 1700000000, EventData: `{"amount":"100"}`}
}

func TestStore_MarkThenHas(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path, testLogger())
	ctx := context.Background()

	key := domain.EventKey{TxHash: "0xabc", LogIndex: 0}

	has, err := s.HasProcessed(ctx, key)
	if err != nil || has {
		t.Fatalf("expected unprocessed key, got has=%v err=%v", has, err)
	}

	if err := s.MarkProcessed(ctx, key, testRecord()); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		has, err := s.HasProcessed(ctx, key)
		if err != nil || !has {
			t.Fatalf("call %d: expected processed key, got has=%v err=%v", i, has, err)
		}
	}
}

func TestStore_DoubleMarkIsAlreadyProcessed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path, testLogger())
	ctx := context.Background()

	key := domain.EventKey{TxHash: "0xabc", LogIndex: 1}
	if err := s.MarkProcessed(ctx, key, testRecord()); err != nil {
		t.Fatalf("first MarkProcessed failed: %v", err)
	}

	before, _ := os.ReadFile(path)

	err := s.MarkProcessed(ctx, key, testRecord())
	if !errors.Is(err, storage.ErrAlreadyProcessed) {
		t.Fatalf("expected ErrAlreadyProcessed, got %v", err)
	}

	after, _ := os.ReadFile(path)
	if string(before) != string(after) {
		t.Error("state file changed by a rejected double commit")
	}

	if n, _ := s.Count(ctx); n != 1 {
		t.Errorf("expected 1 record, got %d", n)
	}
}

func TestStore_SurvivesRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	ctx := context.Background()

	key := domain.EventKey{TxHash: "0xdef", LogIndex: 2}
	s1 := New(path, testLogger())
	if err := s1.MarkProcessed(ctx, key, testRecord()); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}

	// Simulated process restart: reload from the persisted file.
	s2 := New(path, testLogger())
	has, err := s2.HasProcessed(ctx, key)
	if err != nil || !has {
		t.Fatalf("expected key to survive restart, got has=%v err=%v", has, err)
	}
	has, err = s2.HasProcessed(ctx, domain.EventKey{TxHash: "0xdef", LogIndex: 3})
	if err != nil || has {
		t.Fatalf("unexpected key after restart, got has=%v err=%v", has, err)
	}
}

func TestStore_CorruptFileIsColdStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(path, testLogger())
	ctx := context.Background()

	if n, _ := s.Count(ctx); n != 0 {
		t.Fatalf("expected empty state from corrupt file, got %d records", n)
	}

	// Store is usable after the cold start.
	key := domain.EventKey{TxHash: "0x1", LogIndex: 0}
	if err := s.MarkProcessed(ctx, key, testRecord()); err != nil {
		t.Fatalf("MarkProcessed after cold start failed: %v", err)
	}
}

func TestStore_PersistenceFailureLeavesStateUnchanged(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	ctx := context.Background()

	s := New(path, testLogger())
	committed := domain.EventKey{TxHash: "0xaaa", LogIndex: 0}
	if err := s.MarkProcessed(ctx, committed, testRecord()); err != nil {
		t.Fatalf("MarkProcessed failed: %v", err)
	}
	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	// Make the medium unwritable: the temp file is created next to the
	// state file, so pointing the store at a vanished directory fails
	// the write before the rename.
	s.path = filepath.Join(dir, "gone", "state.json")

	key := domain.EventKey{TxHash: "0xbbb", LogIndex: 0}
	markErr := s.MarkProcessed(ctx, key, testRecord())
	if !errors.Is(markErr, storage.ErrPersistence) {
		t.Fatalf("expected ErrPersistence, got %v", markErr)
	}

	// Failed commit is not visible.
	if has, _ := s.HasProcessed(ctx, key); has {
		t.Error("failed commit must not mark the key processed")
	}
	// Prior durable state is byte-for-byte unchanged.
	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("persistence failure corrupted previously committed state")
	}
}

func TestStore_PersistedLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	s := New(path, testLogger())
	ctx := context.Background()

	key := domain.EventKey{TxHash: "0xfeed", LogIndex: 7}
	if err := s.MarkProcessed(ctx, key, testRecord()); err != nil {
		t.Fatal(err)
	}

	reloaded := New(path, testLogger())
	has, _ := reloaded.HasProcessed(ctx, key)
	if !has {
		t.Fatal("expected key under \"<txHash>-<logIndex>\" to round-trip")
	}
	if rec, ok := reloaded.records["0xfeed-7"]; !ok {
		t.Error("expected persisted key \"0xfeed-7\"")
	} else if rec.Timestamp != 1700000000 || rec.EventData != `{"amount":"100"}` {
		t.Errorf("record fields did not round-trip: %+v", rec)
	}
}
