package kvstore

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
)

// Memory is an in-memory Store, used as a test double and for ephemeral
// sessions. It applies the same quota rule as the SQLite store.
type Memory struct {
	mu    sync.Mutex
	data  map[string]string
	quota int
}

// NewMemory returns an empty Memory store. quota <= 0 means unbounded.
func NewMemory(quota int) *Memory {
	return &Memory{data: make(map[string]string), quota: quota}
}

// Put stores raw bytes without encoding them. Tests use it to plant
// malformed entries.
func (m *Memory) Put(key, raw string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = raw
}

func (m *Memory) Get(key string) (json.RawMessage, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	if !ok || !json.Valid([]byte(v)) {
		return nil, false
	}
	return json.RawMessage(v), true
}

func (m *Memory) Set(key string, value any) error {
	enc, err := encode(value)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.put(key, enc)
}

func (m *Memory) SetIfAbsent(key string, value any) (bool, error) {
	enc, err := encode(value)
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if v, ok := m.data[key]; ok && json.Valid([]byte(v)) {
		return false, nil
	}
	if err := m.put(key, enc); err != nil {
		return false, err
	}
	return true, nil
}

func (m *Memory) put(key, enc string) error {
	if m.quota > 0 {
		used := 0
		for k, v := range m.data {
			if k != key {
				used += len(k) + len(v)
			}
		}
		if used+len(key)+len(enc) > m.quota {
			return fmt.Errorf("writing %s: %w", key, ErrQuotaExceeded)
		}
	}
	m.data[key] = enc
	return nil
}

func (m *Memory) Remove(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Keys() ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *Memory) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = make(map[string]string)
	return nil
}
