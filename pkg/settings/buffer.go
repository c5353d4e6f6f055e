// Package settings provides an in-memory settings source for hosts that do
// not keep their own viewer state.
package settings

import "sync"

// Buffer is a thread-safe types.SettingsSource holding the current blob.
type Buffer struct {
	mu      sync.RWMutex
	data    []byte
	applied int
}

// NewBuffer creates a buffer holding a copy of initial.
func NewBuffer(initial []byte) *Buffer {
	return &Buffer{data: clone(initial)}
}

// Set replaces the current settings.
func (b *Buffer) Set(data []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = clone(data)
}

// Bytes returns a copy of the current settings.
func (b *Buffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return clone(b.data)
}

// Applied returns how many times ApplySettings was called.
func (b *Buffer) Applied() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.applied
}

// SerializeSettings implements types.SettingsSource.
func (b *Buffer) SerializeSettings() ([]byte, error) {
	return b.Bytes(), nil
}

// ApplySettings implements types.SettingsSource.
func (b *Buffer) ApplySettings(data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = clone(data)
	b.applied++
	return nil
}

func clone(data []byte) []byte {
	if data == nil {
		return nil
	}
	return append([]byte{}, data...)
}
