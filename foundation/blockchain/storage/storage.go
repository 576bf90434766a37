// Package storage defines the key value store the ledger persists through.
// Implementations live in the memory and badger subpackages.
package storage

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Set of errors returned by store implementations.
var (
	ErrNotFound  = errors.New("key not found")
	ErrUnderflow = errors.New("counter underflow")
)

// Store is the key value collaborator. Increment and Decrement return the
// value the counter held before the call and must be applied atomically
// per key.
type Store interface {
	Get(key []byte) ([]byte, error)
	Set(key []byte, value []byte) error
	Remove(key []byte) error
	Increment(key []byte) (uint64, error)
	Decrement(key []byte) (uint64, error)
	Close() error
}

// =============================================================================

// EncodeCounter returns the stored form of a counter.
func EncodeCounter(n uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], n)
	return b[:]
}

// DecodeCounter reads the stored form of a counter. A missing value is zero.
func DecodeCounter(b []byte) (uint64, error) {
	switch len(b) {
	case 0:
		return 0, nil
	case 8:
		return binary.BigEndian.Uint64(b), nil
	}
	return 0, fmt.Errorf("counter has %d bytes", len(b))
}

// Key hashes the parts into a store key.
func Key(parts ...[]byte) []byte {
	h := sha256.New()
	for _, p := range parts {
		h.Write(p)
	}
	return h.Sum(nil)
}

// Counter returns the counter value under key, zero when missing.
func Counter(s Store, key []byte) (uint64, error) {
	b, err := s.Get(key)
	switch {
	case errors.Is(err, ErrNotFound):
		return 0, nil
	case err != nil:
		return 0, err
	}
	return DecodeCounter(b)
}

// Hash returns the value under key as a hash.
func Hash(s Store, key []byte) (common.Hash, error) {
	b, err := s.Get(key)
	if err != nil {
		return common.Hash{}, err
	}
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("value under key has %d bytes, want %d", len(b), common.HashLength)
	}
	return common.BytesToHash(b), nil
}
