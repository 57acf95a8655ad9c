// Package snapstore persists serialized run snapshots under caller-chosen
// keys. Payloads are opaque bytes produced by State.Dump; the text helpers
// render them as URL-safe base64 for transports that cannot carry raw bytes.
package snapstore

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// ErrNotFound is returned by Load and Delete when no payload exists for the
// given key.
var ErrNotFound = errors.New("snapshot not found")

// Store persists snapshot payloads. Implementations must be safe for
// concurrent use.
type Store interface {
	// Save stores the payload under key, replacing any previous value.
	Save(ctx context.Context, key string, payload []byte) error
	// Load returns the payload stored under key, ErrNotFound when absent.
	Load(ctx context.Context, key string) ([]byte, error)
	// Delete removes the payload stored under key, ErrNotFound when absent.
	Delete(ctx context.Context, key string) error
}

// EncodePayload renders a snapshot payload as padded URL-safe base64 text.
func EncodePayload(payload []byte) string {
	return base64.URLEncoding.EncodeToString(payload)
}

// DecodePayload decodes URL-safe base64 text back into snapshot bytes.
// Missing padding is tolerated.
func DecodePayload(text string) ([]byte, error) {
	padded := text + strings.Repeat("=", (4-len(text)%4)%4)
	payload, err := base64.URLEncoding.DecodeString(padded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 snapshot payload: %w", err)
	}
	return payload, nil
}

// Memory is an in-process Store for development and tests.
type Memory struct {
	mu       sync.RWMutex
	payloads map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{payloads: make(map[string][]byte)}
}

// Save stores a copy of the payload under key.
func (m *Memory) Save(_ context.Context, key string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.payloads[key] = cp
	return nil
}

// Load returns a copy of the payload stored under key.
func (m *Memory) Load(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	payload, ok := m.payloads[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return cp, nil
}

// Delete removes the payload stored under key.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.payloads[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(m.payloads, key)
	return nil
}
