package state

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
	"github.com/ardanlabs/powledger/foundation/blockchain/query"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage"
	"github.com/ethereum/go-ethereum/common"
)

// ErrGenesisMismatch is returned when a peer runs another chain.
var ErrGenesisMismatch = errors.New("peer does not share the genesis block")

// Reorganize corrects an identified fork. The ledger is rewound to the last
// block it shares with the peer, so the peer's chain can be synced on top of
// it. No mining is allowed to take place while this process is running. New
// transactions can be placed into the mempool and the messages of the
// rewound blocks are put back into it.
func (s *State) Reorganize(ctx context.Context, pr peer.Peer) error {
	s.evHandler("state: Reorganize: started: peer[%s] *****************************", pr.Host)
	defer s.evHandler("state: Reorganize: completed: peer[%s] *****************************", pr.Host)

	if s.messenger == nil {
		return errors.New("reorganize: no messenger")
	}

	// Don't allow mining to continue.
	s.allowMining.Store(false)
	defer s.allowMining.Store(true)

	s.mu.Lock()
	defer s.mu.Unlock()

	_, latest, err := s.index.LatestBlock()
	if err != nil {
		return err
	}

	ancestor, err := s.commonAncestor(ctx, pr, latest.ID)
	if err != nil {
		return err
	}

	for id := latest.ID; id > ancestor; id-- {
		if err := s.rewind(ctx, id); err != nil {
			return err
		}
	}

	hash, _, block, err := s.index.BlockByID(ctx, ancestor)
	if err != nil {
		return err
	}

	if err := s.index.SetLatestBlock(hash); err != nil {
		return err
	}

	// The limit is the one the ancestor was mined with, moved by the
	// retarget that followed it.
	if err := s.controller.SetLimit(codec.LimitFromBytes(block.Limit)); err != nil {
		return err
	}
	if ancestor > 0 {
		if err := s.retarget(ctx, ancestor); err != nil {
			return err
		}
	}

	s.evHandler("state: Reorganize: rewound to blk[%d]: hash[%s]", ancestor, hash)

	return nil
}

// commonAncestor walks back from the specified block until the local block
// and the peer's block at the same height are identical.
func (s *State) commonAncestor(ctx context.Context, pr peer.Peer, from int64) (int64, error) {
	for id := from; id >= 0; id-- {
		_, local, _, err := s.index.BlockByID(ctx, id)
		if err != nil {
			return 0, err
		}

		remote, err := s.messenger.RequestBlock(ctx, pr, id)
		switch {
		case errors.Is(err, peer.ErrNotFound):
			continue
		case err != nil:
			return 0, err
		}

		if bytes.Equal(local, remote) {
			return id, nil
		}
	}

	return 0, ErrGenesisMismatch
}

// rewind reverts the items committed by the block at the specified height
// and puts its messages back into the mempool.
func (s *State) rewind(ctx context.Context, id int64) error {
	hash, _, block, err := s.index.BlockByID(ctx, id)
	if err != nil {
		return err
	}

	queries, err := s.blockQueries(hash, block)
	if err != nil {
		return err
	}

	if err := query.Revert(s.index, s.registry, queries); err != nil {
		return fmt.Errorf("rewind blk[%d]: %w", id, err)
	}

	for _, batch := range queries.Results {
		for _, tx := range batch.Transactions() {
			msg, err := codec.Decode[codec.Message](tx)
			if err != nil {
				continue
			}
			s.mempool.Upsert(mempool.Tx{Type: batch.Type, Author: msg.From, Data: tx})
		}
	}

	s.evHandler("state: rewind: blk[%d]: hash[%s]: batches[%d]", id, hash, len(queries.Results))

	return nil
}

// blockQueries rebuilds the queries the latest index holds for the block.
// Types whose batch was never committed locally are left out.
func (s *State) blockQueries(hash common.Hash, block codec.MainBlock) (codec.Queries, error) {
	queries := codec.Queries{Hash: hash, Index: block.ID}

	for _, blob := range block.Blobs {
		items, err := s.index.ItemsByBlock(hash, blob.Type)
		if err != nil {
			return codec.Queries{}, err
		}
		if len(items) == 0 {
			continue
		}

		records, err := s.index.SmallPadding(hash, blob.Type)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return codec.Queries{}, err
		}

		batch := codec.TypedQueryBatch{
			Type:    blob.Type,
			Author:  blob.Author,
			Queries: make([]codec.Query, len(items)),
			Padding: records,
		}
		for i, item := range items {
			batch.Queries[i] = codec.Query{Transaction: item.Transaction}
		}

		queries.Results = append(queries.Results, batch)
	}

	return queries, nil
}
