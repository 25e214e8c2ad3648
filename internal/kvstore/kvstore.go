// Package kvstore is the persistent key/value store the session layer keeps
// its intermediate pipeline state in. Values are JSON documents; a missing
// or unreadable entry is reported as absent, never as an error.
package kvstore

import (
	"encoding/json"
	"errors"
)

// ErrQuotaExceeded is returned by Set when the store refuses the write.
// The previously stored value, if any, is untouched.
var ErrQuotaExceeded = errors.New("persistent store quota exceeded")

// Logical keys.
const (
	KeyChatThread       = "thread_id_chat"
	KeyOnboardingThread = "thread_id_onboarding"
	KeyProjectName      = "project_name"
	KeyProjectLinks     = "project_links"
	KeyOnboardingDraft  = "onboarding_draft"
	KeyAPIDetails       = "api_details"
	KeyAPIDetailsRaw    = "api_details_raw"
	KeyProjectSummary   = "project_summary"
	KeyBDDTests         = "bdd_tests"
	KeyReportURL        = "report_url"
	KeyChatHistory      = "chat_history"
)

// Store is the key/value contract. Implementations must be safe for
// concurrent use.
type Store interface {
	// Get returns the stored JSON document. ok is false when the key is
	// absent or the stored bytes are not valid JSON.
	Get(key string) (raw json.RawMessage, ok bool)
	Set(key string, value any) error
	// SetIfAbsent writes value only when Get would report the key absent.
	SetIfAbsent(key string, value any) (written bool, err error)
	Remove(key string) error
	Keys() ([]string, error)
	Clear() error
}

// Load decodes the value stored under key into a T. A value that does not
// decode into T is treated like a missing one.
func Load[T any](s Store, key string) (T, bool) {
	var v T
	raw, ok := s.Get(key)
	if !ok {
		return v, false
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		var zero T
		return zero, false
	}
	return v, true
}

func encode(value any) (string, error) {
	b, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
