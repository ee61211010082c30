package studysync

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"

	"github.com/hyperengineering/studysync/internal/kv"
)

// LocalStore is the safe wrapper around the persistent key-value backend.
//
// Reads and writes never fail from the caller's point of view. Serialization
// and quota failures are absorbed here: history logs are truncated to the most
// recent HistoryCap entries and retried once, other writes are logged and
// dropped.
type LocalStore struct {
	backend kv.Backend
	logger  *slog.Logger

	mu      sync.RWMutex
	history map[string]bool
}

// NewLocalStore wraps backend. A nil logger uses slog.Default().
func NewLocalStore(backend kv.Backend, logger *slog.Logger) *LocalStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalStore{
		backend: backend,
		logger:  logger,
		history: make(map[string]bool),
	}
}

// MarkHistory registers key as an append-only history log.
func (s *LocalStore) MarkHistory(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.history[key] = true
}

func (s *LocalStore) isHistory(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.history[key]
}

// Read returns the decoded value under key, or def when the key is absent or
// unreadable. A payload that is not valid JSON is returned as the raw string.
func (s *LocalStore) Read(key string, def any) any {
	raw, ok, err := s.backend.Get(key)
	if err != nil {
		s.logger.Warn("local read failed", "key", key, "error", err)
		return def
	}
	if !ok {
		return def
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}

// ReadInto decodes the value under key into dst. It reports false, leaving
// dst untouched, when the key is absent or the payload does not decode.
func (s *LocalStore) ReadInto(key string, dst any) bool {
	raw, ok, err := s.backend.Get(key)
	if err != nil {
		s.logger.Warn("local read failed", "key", key, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		s.logger.Debug("local payload not decodable", "key", key, "error", err)
		return false
	}
	return true
}

// Write serializes v under key. It reports whether the value was persisted.
func (s *LocalStore) Write(key string, v any) bool {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Warn("local write dropped: encode failed", "key", key, "error", err)
		return false
	}

	err = s.backend.Set(key, string(data))
	if err == nil {
		return true
	}
	if !errors.Is(err, kv.ErrQuotaExceeded) {
		s.logger.Warn("local write dropped", "key", key, "error", err)
		return false
	}
	if !s.isHistory(key) {
		s.logger.Warn("local write dropped: quota exceeded", "key", key, "bytes", len(data))
		return false
	}

	truncated, ok := truncateHistory(data, HistoryCap)
	if !ok {
		s.logger.Warn("local write dropped: history payload is not a list", "key", key)
		return false
	}
	if err := s.backend.Set(key, string(truncated)); err != nil {
		s.logger.Warn("local write dropped after history truncation", "key", key, "error", err)
		return false
	}
	s.logger.Info("history truncated to fit quota", "key", key, "kept", HistoryCap)
	return true
}

// Remove deletes key.
func (s *LocalStore) Remove(key string) {
	if err := s.backend.Delete(key); err != nil {
		s.logger.Warn("local remove failed", "key", key, "error", err)
	}
}

// Keys lists every stored key.
func (s *LocalStore) Keys() []string {
	keys, err := s.backend.Keys()
	if err != nil {
		s.logger.Warn("local key listing failed", "error", err)
		return nil
	}
	return keys
}

// Close closes the backend.
func (s *LocalStore) Close() error {
	return s.backend.Close()
}

// truncateHistory keeps the last n elements of a JSON array. History logs are
// stored in append order, so the tail holds the most recent entries.
func truncateHistory(data []byte, n int) ([]byte, bool) {
	var entries []json.RawMessage
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, false
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out, err := json.Marshal(entries)
	if err != nil {
		return nil, false
	}
	return out, true
}
