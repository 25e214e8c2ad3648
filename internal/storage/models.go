package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested key does not exist.
var ErrNotFound = errors.New("not found")

// ErrQuotaExceeded is returned when a write would push the stored values
// past the configured quota. The write is not applied.
var ErrQuotaExceeded = errors.New("storage quota exceeded")

// Entry is one row of the key/value table.
type Entry struct {
	Key       string
	Value     string
	UpdatedAt time.Time
}
