// Package memory implements the ability to read and write ledger records to
// memory using a map.
package memory

import (
	"bytes"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/storage"
	"github.com/ardanlabs/powledger/foundation/metrics"
)

// Memory represents the implementation for reading and storing records in
// memory. This implements the storage.Store interface.
type Memory struct {
	mu      sync.RWMutex
	records map[string][]byte
	obs     metrics.Store
}

// New constructs an Memory value for use.
func New() *Memory {
	return &Memory{
		records: make(map[string][]byte),
		obs:     metrics.NewStore("memory"),
	}
}

// Close in this implementation has nothing to do since everything
// is in memory.
func (m *Memory) Close() error {
	return nil
}

// Get returns a copy of the value stored under key.
func (m *Memory) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, exists := m.records[string(key)]
	if !exists {
		m.obs.ObserveOp("get", storage.ErrNotFound)
		return nil, storage.ErrNotFound
	}

	m.obs.ObserveOp("get", nil)
	return bytes.Clone(v), nil
}

// Set stores a copy of value under key.
func (m *Memory) Set(key []byte, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records[string(key)] = bytes.Clone(value)
	m.obs.ObserveOp("set", nil)
	return nil
}

// Remove deletes the value under key. Removing a missing key is not an error.
func (m *Memory) Remove(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.records, string(key))
	m.obs.ObserveOp("remove", nil)
	return nil
}

// Increment adds one to the counter under key and returns its previous value.
func (m *Memory) Increment(key []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, err := storage.DecodeCounter(m.records[string(key)])
	if err != nil {
		m.obs.ObserveOp("increment", err)
		return 0, err
	}

	m.records[string(key)] = storage.EncodeCounter(prev + 1)
	m.obs.ObserveOp("increment", nil)
	return prev, nil
}

// Decrement subtracts one from the counter under key and returns its
// previous value. A zero counter fails with storage.ErrUnderflow.
func (m *Memory) Decrement(key []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	prev, err := storage.DecodeCounter(m.records[string(key)])
	if err == nil && prev == 0 {
		err = storage.ErrUnderflow
	}
	if err != nil {
		m.obs.ObserveOp("decrement", err)
		return 0, err
	}

	m.records[string(key)] = storage.EncodeCounter(prev - 1)
	m.obs.ObserveOp("decrement", nil)
	return prev, nil
}

// Reset will clear out every record.
func (m *Memory) Reset() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.records = make(map[string][]byte)
	return nil
}

// Len returns the number of records held.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.records)
}
