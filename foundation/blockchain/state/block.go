package state

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powledger/foundation/blockchain/query"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// Set of errors returned while accepting blocks.
var (
	ErrChainForked  = errors.New("block conflicts with the local chain")
	ErrChainBehind  = errors.New("block is ahead of the local chain")
	ErrUnknownBlock = errors.New("queries name a block outside the local chain")
)

// =============================================================================

// ProcessProposedBlock takes a block received from a peer, validates it and
// if that passes, adds the block to the local ledger. A block the ledger
// already holds is accepted without changes.
func (s *State) ProcessProposedBlock(ctx context.Context, encoded []byte) error {
	block, err := chain.Decode(encoded)
	if err != nil {
		return err
	}

	s.evHandler("state: ProcessProposedBlock: started: blk[%d]: prevBlk[%s]: blobs[%d]", block.ID, block.PrevHash, len(block.Blobs))
	defer s.evHandler("state: ProcessProposedBlock: completed: blk[%d]", block.ID)

	_, latest, err := s.index.LatestBlock()
	if err != nil {
		return err
	}

	switch {
	case block.ID <= latest.ID:
		_, local, _, err := s.index.BlockByID(ctx, block.ID)
		if err != nil {
			return err
		}
		if !bytes.Equal(local, encoded) {
			return fmt.Errorf("%w: blk[%d]", ErrChainForked, block.ID)
		}
		return nil

	case block.ID > latest.ID+1:
		return fmt.Errorf("%w: blk[%d]: latest[%d]", ErrChainBehind, block.ID, latest.ID)
	}

	// If the runMiningOperation function is being executed it needs to stop
	// immediately. The G executing runMiningOperation will not return from the
	// function until done is called. That allows this function to complete
	// its state changes before a new mining operation takes place.
	if s.Worker != nil {
		done := s.Worker.SignalCancelMining()
		defer func() {
			s.evHandler("state: ProcessProposedBlock: signal runMiningOperation to terminate")
			done()
		}()
	}

	// Validate the block and then update the ledger.
	_, err = s.validateUpdateDatabase(ctx, encoded, nil)
	return err
}

// ProcessQueries takes the batches a peer committed with one of its blocks,
// validates them in full against that block and commits them to the latest
// index. Queries already committed are ignored.
func (s *State) ProcessQueries(ctx context.Context, payload []byte) error {
	queries, err := codec.Decode[codec.Queries](payload)
	if err != nil {
		return err
	}

	s.evHandler("state: ProcessQueries: started: blk[%d]: batches[%d]", queries.Index, len(queries.Results))
	defer s.evHandler("state: ProcessQueries: completed: blk[%d]", queries.Index)

	s.mu.Lock()
	defer s.mu.Unlock()

	hash, _, _, err := s.index.BlockByID(ctx, queries.Index)
	if err != nil || hash != queries.Hash {
		return fmt.Errorf("%w: blk[%d]: hash[%s]", ErrUnknownBlock, queries.Index, queries.Hash)
	}

	committed, err := s.committed(queries)
	if err != nil {
		return err
	}
	if committed {
		s.evHandler("state: ProcessQueries: blk[%d]: already committed", queries.Index)
		return nil
	}

	if err := s.batches.ValidateQueries(ctx, s.index, queries, query.Full); err != nil {
		return err
	}

	return s.commit(queries)
}

// committed reports whether the latest index holds items of the queries.
func (s *State) committed(queries codec.Queries) (bool, error) {
	for _, batch := range queries.Results {
		items, err := s.index.ItemsByBlock(queries.Hash, batch.Type)
		if err != nil {
			return false, err
		}
		if len(items) > 0 {
			return true, nil
		}
	}
	return false, nil
}

// commit pushes the queries into the latest index and removes the messages
// from the mempool.
func (s *State) commit(queries codec.Queries) error {
	if err := query.Commit(s.index, s.registry, queries); err != nil {
		return err
	}

	for _, batch := range queries.Results {
		s.mempool.Delete(batch.Transactions()...)
	}

	return nil
}

// =============================================================================

// validateUpdateDatabase takes the block and validates the block against the
// consensus rules. If the block passes, then the state of the node is updated
// including adding the block to the store. Queries, when present, are
// validated in full and committed with the block.
func (s *State) validateUpdateDatabase(ctx context.Context, encoded []byte, queries *codec.Queries) (common.Hash, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.evHandler("state: validateUpdateDatabase: validate block")

	latestHash, latest, err := s.index.LatestBlock()
	if err != nil {
		return common.Hash{}, err
	}
	// The block must carry the current MAIN limit.
	limit, err := s.controller.Limit()
	if err != nil {
		return common.Hash{}, err
	}
	prev := chain.Link{Hash: latestHash, ID: latest.ID, Limit: limit}

	block, hash, err := s.validator.ValidateBlock(encoded, &prev)
	if err != nil {
		return common.Hash{}, err
	}

	if queries != nil {
		s.evHandler("state: validateUpdateDatabase: validate batches")

		if queries.Hash != hash || queries.Index != block.ID {
			return common.Hash{}, fmt.Errorf("%w: queries name blk[%d]: hash[%s]", ErrUnknownBlock, queries.Index, queries.Hash)
		}
		if err := s.batches.ValidateBatches(block, queries.Results, query.Full); err != nil {
			return common.Hash{}, err
		}
	}

	s.evHandler("state: validateUpdateDatabase: write to store")

	if err := s.index.StoreBlock(hash, encoded); err != nil {
		return common.Hash{}, err
	}

	if queries != nil {
		s.evHandler("state: validateUpdateDatabase: commit batches and remove from mempool")

		if err := s.commit(*queries); err != nil {
			return common.Hash{}, err
		}
	}

	if err := s.retarget(ctx, block.ID); err != nil {
		return common.Hash{}, err
	}

	// Send an event about this new block.
	s.blockEvent(hash, block)

	return hash, nil
}

// retarget recomputes the MAIN limit from the timestamps of the blocks in
// the retarget window ending at the specified block. The genesis block's
// timestamp is a chain parameter, not a mining time, so it is never part of
// the window.
func (s *State) retarget(ctx context.Context, id int64) error {
	from := difficulty.WindowStart(id, s.genesis.RetargetWindow)
	if id-from < 1 {
		return nil
	}

	timestamps := make([]int64, 0, id-from+1)
	for i := from; i <= id; i++ {
		_, _, block, err := s.index.BlockByID(ctx, i)
		if err != nil {
			return err
		}
		timestamps = append(timestamps, block.Timestamp)
	}

	limit, err := s.controller.ApplyRetarget(timestamps)
	switch {
	case errors.Is(err, difficulty.ErrRetargetWindow):
		s.evHandler("state: retarget: blk[%d]: skipped: %s", id, err)
		return nil
	case err != nil:
		return err
	}

	s.evHandler("state: retarget: blk[%d]: limit[%s]", id, hexutil.EncodeBig(limit))

	return nil
}

// blockEvent provides a specific event about a new block in the chain for
// application specific support.
func (s *State) blockEvent(hash common.Hash, block codec.MainBlock) {
	type blob struct {
		Type     common.Hash    `json:"type"`
		Includes common.Hash    `json:"includes"`
		Query    common.Hash    `json:"query"`
		Author   common.Address `json:"author"`
	}

	header := struct {
		ID        int64          `json:"id"`
		Timestamp int64          `json:"timestamp"`
		PrevHash  common.Hash    `json:"prev_hash"`
		Author    common.Address `json:"author"`
		Limit     string         `json:"limit"`
		Padding   int            `json:"padding"`
		Blobs     []blob         `json:"blobs"`
	}{
		ID:        block.ID,
		Timestamp: block.Timestamp,
		PrevHash:  block.PrevHash,
		Author:    block.Author,
		Limit:     hexutil.EncodeBig(codec.LimitFromBytes(block.Limit)),
		Padding:   len(block.Padding),
		Blobs:     make([]blob, len(block.Blobs)),
	}
	for i, b := range block.Blobs {
		header.Blobs[i] = blob{Type: b.Type, Includes: b.Merkle.Includes, Query: b.Merkle.Query, Author: b.Author}
	}

	blockHeaderJSON, err := json.Marshal(header)
	if err != nil {
		blockHeaderJSON = []byte(fmt.Sprintf("%q", err.Error()))
	}

	s.evHandler(`viewer: block: {"hash":%q,"header":%s}`, hash, string(blockHeaderJSON))
}
