// Package badger implements the ledger store on top of a badger database.
package badger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/storage"
	"github.com/ardanlabs/powledger/foundation/metrics"
	"github.com/dgraph-io/badger/v4"
)

// maxConflictRetries bounds the retries of a counter update that lost a
// write conflict to a concurrent Set or Remove.
const maxConflictRetries = 16

// Config holds the settings for opening the database.
type Config struct {
	Path       string
	InMemory   bool
	SyncWrites bool
}

// Badger represents the implementation for reading and storing records in
// a badger database. This implements the storage.Store interface.
type Badger struct {
	db  *badger.DB
	obs metrics.Store
	mu  sync.Mutex
}

// New opens the database described by the config.
func New(cfg Config) (*Badger, error) {
	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil
	opts.SyncWrites = cfg.SyncWrites

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	return &Badger{
		db:  db,
		obs: metrics.NewStore("badger"),
	}, nil
}

// Close flushes and releases the database.
func (b *Badger) Close() error {
	return b.db.Close()
}

// Get returns the value stored under key.
func (b *Badger) Get(key []byte) ([]byte, error) {
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})

	if errors.Is(err, badger.ErrKeyNotFound) {
		err = storage.ErrNotFound
	}
	b.obs.ObserveOp("get", err)

	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stores value under key.
func (b *Badger) Set(key []byte, value []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	b.obs.ObserveOp("set", err)
	return err
}

// Remove deletes the value under key.
func (b *Badger) Remove(key []byte) error {
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	b.obs.ObserveOp("remove", err)
	return err
}

// Increment adds one to the counter under key and returns its previous value.
func (b *Badger) Increment(key []byte) (uint64, error) {
	prev, err := b.update(key, func(n uint64) (uint64, error) {
		return n + 1, nil
	})
	b.obs.ObserveOp("increment", err)
	return prev, err
}

// Decrement subtracts one from the counter under key and returns its
// previous value. A zero counter fails with storage.ErrUnderflow.
func (b *Badger) Decrement(key []byte) (uint64, error) {
	prev, err := b.update(key, func(n uint64) (uint64, error) {
		if n == 0 {
			return 0, storage.ErrUnderflow
		}
		return n - 1, nil
	})
	b.obs.ObserveOp("decrement", err)
	return prev, err
}

// update reads, changes and writes a counter inside one transaction.
func (b *Badger) update(key []byte, change func(uint64) (uint64, error)) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var prev uint64

	fn := func(txn *badger.Txn) error {
		var raw []byte
		item, err := txn.Get(key)
		switch {
		case errors.Is(err, badger.ErrKeyNotFound):
		case err != nil:
			return err
		default:
			if raw, err = item.ValueCopy(nil); err != nil {
				return err
			}
		}

		if prev, err = storage.DecodeCounter(raw); err != nil {
			return err
		}

		next, err := change(prev)
		if err != nil {
			return err
		}

		return txn.Set(key, storage.EncodeCounter(next))
	}

	for range maxConflictRetries {
		err := b.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) {
			continue
		}
		if err != nil {
			return 0, err
		}
		return prev, nil
	}

	return 0, fmt.Errorf("update counter: %w", badger.ErrConflict)
}
