// Package mempool maintains the messages waiting to be committed in a typed
// batch of the next block.
package mempool

import (
	"errors"
	"sort"
	"sync"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool/selector"
	"github.com/ethereum/go-ethereum/common"
)

// ErrEmpty is returned when a pending transaction carries no data.
var ErrEmpty = errors.New("empty transaction")

// Tx is a pending message of a registered type.
type Tx = selector.Tx

// Mempool represents a cache of pending messages keyed by their content hash
// and grouped by type.
type Mempool struct {
	pool     map[common.Hash]Tx
	seq      uint64
	mu       sync.RWMutex
	selectFn selector.Func
}

// New constructs a new mempool using the default select strategy.
func New() (*Mempool, error) {
	return NewWithStrategy(selector.StrategyFair)
}

// NewWithStrategy constructs a new mempool with specified select strategy.
func NewWithStrategy(strategy string) (*Mempool, error) {
	selectFn, err := selector.Retrieve(strategy)
	if err != nil {
		return nil, err
	}

	mp := Mempool{
		pool:     make(map[common.Hash]Tx),
		selectFn: selectFn,
	}

	return &mp, nil
}

// Count returns the current number of transaction in the pool.
func (mp *Mempool) Count() int {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	return len(mp.pool)
}

// Upsert adds a transaction to the mempool. A transaction already pending
// keeps its place.
func (mp *Mempool) Upsert(tx Tx) (int, error) {
	if len(tx.Data) == 0 {
		return 0, ErrEmpty
	}

	mp.mu.Lock()
	defer mp.mu.Unlock()

	key := codec.TransactionHash(tx.Data)
	if _, exists := mp.pool[key]; exists {
		return len(mp.pool), nil
	}

	mp.seq++
	tx.Seq = mp.seq
	mp.pool[key] = tx

	return len(mp.pool), nil
}

// Delete removes the transactions from the mempool.
func (mp *Mempool) Delete(txs ...[]byte) {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	for _, data := range txs {
		delete(mp.pool, codec.TransactionHash(data))
	}
}

// Lookup returns the pending transaction with the content hash.
func (mp *Mempool) Lookup(hash common.Hash) (Tx, bool) {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	tx, exists := mp.pool[hash]
	return tx, exists
}

// Truncate clears all the transactions from the pool.
func (mp *Mempool) Truncate() {
	mp.mu.Lock()
	defer mp.mu.Unlock()

	mp.pool = make(map[common.Hash]Tx)
}

// Types returns the types with pending transactions, oldest pending first.
func (mp *Mempool) Types() []common.Hash {
	mp.mu.RLock()
	defer mp.mu.RUnlock()

	oldest := make(map[common.Hash]uint64)
	for _, tx := range mp.pool {
		if seq, exists := oldest[tx.Type]; !exists || tx.Seq < seq {
			oldest[tx.Type] = tx.Seq
		}
	}

	types := make([]common.Hash, 0, len(oldest))
	for typeID := range oldest {
		types = append(types, typeID)
	}

	sort.Slice(types, func(i, j int) bool {
		return oldest[types[i]] < oldest[types[j]]
	})

	return types
}

// Copy returns every pending transaction in arrival order.
func (mp *Mempool) Copy() []Tx {
	m := make(map[common.Address][]Tx)

	mp.mu.RLock()
	{
		for _, tx := range mp.pool {
			m[tx.Author] = append(m[tx.Author], tx)
		}
	}
	mp.mu.RUnlock()

	fn, _ := selector.Retrieve(selector.StrategyArrival)
	return fn(m, -1)
}

// PickBest uses the configured select strategy to return the next set
// of transactions of the type for the next batch.
func (mp *Mempool) PickBest(typeID common.Hash, howMany int) []Tx {

	// Group the transactions of the type by author.
	m := make(map[common.Address][]Tx)
	mp.mu.RLock()
	{
		for _, tx := range mp.pool {
			if tx.Type == typeID {
				m[tx.Author] = append(m[tx.Author], tx)
			}
		}
	}
	mp.mu.RUnlock()

	return mp.selectFn(m, howMany)
}
