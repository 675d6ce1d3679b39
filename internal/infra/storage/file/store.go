package file

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/vietddude/relayer/internal/core/domain"
	"github.com/vietddude/relayer/internal/infra/storage"
)

// Store persists processed-event records in a single JSON file keyed by
// "<txHash>-<logIndex>". Commits go through a temp file plus rename so a
// crash mid-write can never corrupt previously committed records.
type Store struct {
	path    string
	log     *slog.Logger
	mu      sync.RWMutex
	records map[string]domain.ProcessedRecord
}

// New loads the store from path. A missing or corrupt file is a cold
// start, never a fatal error.
func New(path string, log *slog.Logger) *Store {
	s := &Store{
		path:    path,
		log:     log,
		records: make(map[string]domain.ProcessedRecord),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("state file unreadable, starting with empty state", "path", path, "error", err)
		}
		return s
	}
	if err := json.Unmarshal(data, &s.records); err != nil {
		log.Warn("state file invalid, starting with empty state", "path", path, "error", err)
		s.records = make(map[string]domain.ProcessedRecord)
		return s
	}

	log.Info("state store loaded", "path", path, "records", len(s.records))
	return s
}

// HasProcessed reports whether the key has been committed.
func (s *Store) HasProcessed(ctx context.Context, key domain.EventKey) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.records[key.String()]
	return ok, nil
}

// MarkProcessed commits the key. The in-memory map is only updated after
// the file write succeeds, so a persistence failure leaves both the file
// and the visible state unchanged.
func (s *Store) MarkProcessed(ctx context.Context, key domain.EventKey, rec domain.ProcessedRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := key.String()
	if _, ok := s.records[k]; ok {
		return storage.ErrAlreadyProcessed
	}

	next := make(map[string]domain.ProcessedRecord, len(s.records)+1)
	for existing, r := range s.records {
		next[existing] = r
	}
	next[k] = rec

	if err := s.persist(next); err != nil {
		return fmt.Errorf("%w: %v", storage.ErrPersistence, err)
	}

	s.records = next
	return nil
}

// Count returns the number of committed records.
func (s *Store) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// persist writes the full map to a temp file in the same directory and
// atomically replaces the durable location. Never truncates in place.
func (s *Store) persist(records map[string]domain.ProcessedRecord) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp state file: %w", err)
	}

	if err := os.Rename(tmp.Name(), s.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace state file: %w", err)
	}
	return nil
}
