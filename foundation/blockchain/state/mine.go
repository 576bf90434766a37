package state

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/powledger/foundation/blockchain/merkle"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
	"github.com/ardanlabs/powledger/foundation/blockchain/query"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNoTransactions is returned when a block is requested to be created
// and there are not enough transactions.
var ErrNoTransactions = errors.New("no transactions in mempool")

// batchSize is the number of messages one typed batch can take. A batch
// is bounded by its transaction capacity and by the leaves its includes
// tree can hold.
var batchSize = min(codec.NumberOfTransactions, merkle.MaxLeaves)

// =============================================================================

// MineNewBlock attempts to create a new block with a proper hash that can become
// the next block in the chain. Every type with pending messages gets a typed
// batch, oldest first, up to the blob capacity of the block.
func (s *State) MineNewBlock(ctx context.Context) (chain.Sealed, codec.Queries, error) {
	s.evHandler("state: MineNewBlock: MINING: check mempool count")

	// Are there enough transactions in the pool.
	if s.mempool.Count() == 0 {
		return chain.Sealed{}, codec.Queries{}, ErrNoTransactions
	}

	latestHash, latest, err := s.index.LatestBlock()
	if err != nil {
		return chain.Sealed{}, codec.Queries{}, err
	}
	prev := chain.Link{Hash: latestHash, ID: latest.ID}

	limit, err := s.controller.Limit()
	if err != nil {
		return chain.Sealed{}, codec.Queries{}, err
	}

	s.evHandler("state: MineNewBlock: MINING: pick batches")

	types := s.mempool.Types()
	if len(types) > codec.NumberOfBlobs {
		types = types[:codec.NumberOfBlobs]
	}

	var batches []codec.TypedQueryBatch
	for _, typeID := range types {
		txs := s.pickBatch(typeID, limit)
		if len(txs) == 0 {
			continue
		}

		batch, err := query.CreateBatch(ctx, s.assembler.Miner, limit, prev.Hash, typeID, s.author, txs)
		if err != nil {
			return chain.Sealed{}, codec.Queries{}, err
		}
		batches = append(batches, batch)
	}

	if len(batches) == 0 {
		return chain.Sealed{}, codec.Queries{}, ErrNoTransactions
	}

	s.evHandler("state: MineNewBlock: MINING: perform POW: batches[%d]", len(batches))

	// Attempt to create a new block by solving the POW puzzle. This can be cancelled.
	sealed, err := s.assembler.Assemble(ctx, prev, limit, batches, s.author, time.Now())
	if err != nil {
		return chain.Sealed{}, codec.Queries{}, err
	}

	// Just check one more time we were not cancelled.
	if ctx.Err() != nil {
		return chain.Sealed{}, codec.Queries{}, ctx.Err()
	}

	s.evHandler("state: MineNewBlock: MINING: validate and update database")

	queries := codec.Queries{
		Hash:    sealed.Hash,
		Index:   sealed.Block.ID,
		Results: batches,
	}

	// Validate the block and then update the ledger.
	if _, err := s.validateUpdateDatabase(ctx, sealed.Encoded, &queries); err != nil {
		return chain.Sealed{}, codec.Queries{}, err
	}

	return sealed, queries, nil
}

// pickBatch selects the pending messages of the type that can go into the
// next batch. Messages that no longer pass the checks of a batch are
// dropped from the mempool.
func (s *State) pickBatch(typeID common.Hash, limit *big.Int) [][]byte {
	h, err := s.registry.Resolve(typeID)
	if err != nil {
		s.evHandler("state: pickBatch: WARNING: %s", err)
		s.dropType(typeID)
		return nil
	}

	threshold := difficulty.Threshold(limit, difficulty.Transaction)
	seen := make(map[string]bool)

	var txs [][]byte
	for _, tx := range s.mempool.PickBest(typeID, batchSize) {
		if err := s.checkMessage(h, tx.Data, threshold); err != nil {
			s.evHandler("state: pickBatch: tx[%s]: dropped: %s", codec.TransactionHash(tx.Data), err)
			s.mempool.Delete(tx.Data)
			continue
		}

		if _, err := s.index.Item(tx.Data); err == nil {
			s.evHandler("state: pickBatch: tx[%s]: dropped: already committed", codec.TransactionHash(tx.Data))
			s.mempool.Delete(tx.Data)
			continue
		}

		// A message sharing a unique key with one already picked waits for
		// a later block.
		keys, _ := h.UniqueKeys(tx.Data)
		if duplicate(seen, keys) {
			continue
		}
		for j, key := range keys {
			seen[fmt.Sprintf("%d/%x", j, key)] = true
		}

		txs = append(txs, tx.Data)
	}

	return txs
}

// checkMessage applies the checks a batch applies to every transaction it
// carries.
func (s *State) checkMessage(h schema.Handle, tx []byte, threshold *big.Int) error {
	_, item, err := h.Message(tx)
	if err != nil {
		return err
	}

	if ok, _, _ := pow.Verify[codec.Message](tx, threshold); !ok {
		return fmt.Errorf("%w: message is not below the TRANSACTION threshold", pow.ErrInvalidDifficulty)
	}

	if s.batches.Evaluator != nil {
		if err := h.Evaluate(s.batches.Evaluator, item); err != nil {
			return err
		}
	}

	return nil
}

// dropType removes every pending message of the type.
func (s *State) dropType(typeID common.Hash) {
	for _, tx := range s.mempool.PickBest(typeID, -1) {
		s.mempool.Delete(tx.Data)
	}
}

func duplicate(seen map[string]bool, keys [][]byte) bool {
	for j, key := range keys {
		if seen[fmt.Sprintf("%d/%x", j, key)] {
			return true
		}
	}
	return false
}

// =============================================================================

// SubmitMessage validates a message submitted to this node and adds it to
// the mempool. The message is shared with the known peers and mining is
// signaled.
func (s *State) SubmitMessage(tx []byte) error {
	if err := s.upsertMessage(tx); err != nil {
		return err
	}

	if s.Worker != nil {
		s.Worker.SignalShareTx(tx)
		s.Worker.SignalStartMining()
	}

	return nil
}

// UpsertNodeMessage adds a message received from a peer to the mempool.
func (s *State) UpsertNodeMessage(tx []byte) error {
	if err := s.upsertMessage(tx); err != nil {
		return err
	}

	if s.Worker != nil {
		s.Worker.SignalStartMining()
	}

	return nil
}

func (s *State) upsertMessage(tx []byte) error {
	if len(tx) == 0 {
		return mempool.ErrEmpty
	}

	msg, err := codec.Decode[codec.Message](tx)
	if err != nil {
		return err
	}

	h, err := s.registry.ResolveShort(msg.To)
	if err != nil {
		return err
	}

	threshold, err := s.controller.Threshold(difficulty.Transaction)
	if err != nil {
		return err
	}

	if err := s.checkMessage(h, tx, threshold); err != nil {
		return err
	}

	n, err := s.mempool.Upsert(mempool.Tx{Type: h.ID, Author: msg.From, Data: tx})
	if err != nil {
		return err
	}

	s.evHandler("state: upsertMessage: tx[%s]: type[%s]: mempool[%d]", codec.TransactionHash(tx), h.Name, n)

	return nil
}
