package kvstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/visionqa/vqa/internal/storage"
)

// SQLite adapts storage.Store to the Store contract.
type SQLite struct {
	db     *storage.Store
	logger *slog.Logger
}

// NewSQLite wraps an open storage.Store.
func NewSQLite(db *storage.Store) *SQLite {
	return &SQLite{db: db, logger: slog.Default()}
}

func (s *SQLite) Get(key string) (json.RawMessage, bool) {
	v, err := s.db.GetValue(key)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("kvstore: read failed, treating as absent", "key", key, "error", err)
		}
		return nil, false
	}
	if !json.Valid([]byte(v)) {
		s.logger.Debug("kvstore: malformed entry treated as absent", "key", key)
		return nil, false
	}
	return json.RawMessage(v), true
}

func (s *SQLite) Set(key string, value any) error {
	enc, err := encode(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.db.PutValue(key, enc); err != nil {
		if errors.Is(err, storage.ErrQuotaExceeded) {
			return fmt.Errorf("writing %s: %w", key, errors.Join(ErrQuotaExceeded, err))
		}
		return fmt.Errorf("writing %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) SetIfAbsent(key string, value any) (bool, error) {
	enc, err := encode(value)
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", key, err)
	}
	ok, err := s.db.PutValueIfAbsent(key, enc, func(existing string) bool {
		return !json.Valid([]byte(existing))
	})
	if err != nil {
		if errors.Is(err, storage.ErrQuotaExceeded) {
			return false, fmt.Errorf("writing %s: %w", key, errors.Join(ErrQuotaExceeded, err))
		}
		return false, fmt.Errorf("writing %s: %w", key, err)
	}
	return ok, nil
}

func (s *SQLite) Remove(key string) error {
	if err := s.db.DeleteValue(key); err != nil {
		return fmt.Errorf("removing %s: %w", key, err)
	}
	return nil
}

func (s *SQLite) Keys() ([]string, error) {
	entries, err := s.db.ListEntries()
	if err != nil {
		return nil, fmt.Errorf("listing keys: %w", err)
	}
	keys := make([]string, len(entries))
	for i, e := range entries {
		keys[i] = e.Key
	}
	return keys, nil
}

func (s *SQLite) Clear() error {
	return s.db.ClearValues()
}
