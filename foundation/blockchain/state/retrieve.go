package state

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RetrieveHost returns a copy of host information.
func (s *State) RetrieveHost() string {
	return s.host
}

// RetrieveAuthor returns the address blocks mined by this node carry.
func (s *State) RetrieveAuthor() common.Address {
	return s.author
}

// RetrieveGenesis returns a copy of the genesis information.
func (s *State) RetrieveGenesis() genesis.Genesis {
	return s.genesis
}

// RetrieveKnownPeers retrieves a copy of the known peer list.
func (s *State) RetrieveKnownPeers() []peer.Peer {
	return s.knownPeers.Copy(s.host)
}

// AddKnownPeer provides the ability to add a new peer to
// the known peer list.
func (s *State) AddKnownPeer(pr peer.Peer) bool {
	return s.knownPeers.Add(pr)
}

// RemoveKnownPeer provides the ability to remove a peer from
// the known peer list.
func (s *State) RemoveKnownPeer(pr peer.Peer) {
	s.knownPeers.Remove(pr)
}

// IsMiningAllowed identifies if we are allowed to mine blocks. This
// might be turned off if the ledger needs to be reorganized.
func (s *State) IsMiningAllowed() bool {
	return s.allowMining.Load()
}

// =============================================================================

// RetrieveLatestBlock returns the hash and the block at the tip of the chain.
func (s *State) RetrieveLatestBlock() (common.Hash, codec.MainBlock, error) {
	return s.index.LatestBlock()
}

// RetrieveBlock returns the encoded block stored for the height.
func (s *State) RetrieveBlock(ctx context.Context, id int64) ([]byte, error) {
	_, encoded, _, err := s.index.BlockByID(ctx, id)
	return encoded, err
}

// RetrieveQueries returns the encoded queries the latest index holds for
// the block with the hash.
func (s *State) RetrieveQueries(hash common.Hash) ([]byte, error) {
	encoded, err := s.index.LocalBlock(hash)
	if err != nil {
		return nil, err
	}

	block, err := codec.Decode[codec.MainBlock](encoded)
	if err != nil {
		return nil, err
	}

	queries, err := s.blockQueries(hash, block)
	if err != nil {
		return nil, err
	}

	return queries.MarshalBinary()
}

// RetrieveByHash returns the record stored under the content hash. Blocks
// are looked up first, then committed transactions and finally the messages
// still pending in the mempool.
func (s *State) RetrieveByHash(hash common.Hash) ([]byte, error) {
	encoded, err := s.index.LocalBlock(hash)
	if err == nil {
		return encoded, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	rec, err := s.index.ItemByHash(hash)
	if err == nil {
		return rec.Transaction, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}

	if tx, exists := s.mempool.Lookup(hash); exists {
		return tx.Data, nil
	}

	return nil, fmt.Errorf("hash %s: %w", hash, storage.ErrNotFound)
}

// RetrieveItem returns the latest committed item under the latest-key.
func (s *State) RetrieveItem(key common.Hash) (codec.ItemRecord, error) {
	return s.index.Latest(key)
}

// RetrieveLimit returns the current MAIN limit.
func (s *State) RetrieveLimit() (*big.Int, error) {
	return s.controller.Limit()
}

// RetrieveMempool returns a copy of the mempool in arrival order.
func (s *State) RetrieveMempool() []mempool.Tx {
	return s.mempool.Copy()
}

// QueryMempoolLength returns the number of messages in the mempool.
func (s *State) QueryMempoolLength() int {
	return s.mempool.Count()
}

// Status returns the latest block of the node and the peers it knows.
func (s *State) Status() (peer.PeerStatus, error) {
	hash, block, err := s.index.LatestBlock()
	if err != nil {
		return peer.PeerStatus{}, err
	}

	limit, err := s.controller.Limit()
	if err != nil {
		return peer.PeerStatus{}, err
	}

	ps := peer.PeerStatus{
		LatestBlockHash: hash.Hex(),
		LatestBlockID:   block.ID,
		Limit:           hexutil.EncodeBig(limit),
		KnownPeers:      s.RetrieveKnownPeers(),
	}

	return ps, nil
}

// =============================================================================

// Freshness proves that the latest-key of the type, updated at block b, is
// not updated again in any block strictly between b and c and is present in
// block c. A negative b stands for the block of the most recent committed
// update. The proof is verified before it is returned.
func (s *State) Freshness(ctx context.Context, typeID common.Hash, key common.Hash, b int64, c int64) (codec.FreshnessProof, error) {
	if b < 0 {
		rec, err := s.index.Latest(key)
		if err != nil {
			return codec.FreshnessProof{}, err
		}
		b = rec.BlockIndex
	}

	if c < b {
		return codec.FreshnessProof{}, fmt.Errorf("block %d precedes block %d", c, b)
	}

	proof, err := s.prover.Create(ctx, key, typeID, b, c)
	if err != nil {
		return codec.FreshnessProof{}, err
	}

	if err := s.prover.Verify(ctx, key, typeID, proof, c); err != nil {
		return codec.FreshnessProof{}, err
	}

	return proof, nil
}

// VerifyFreshness checks a freshness proof for the latest-key of the type at
// block at.
func (s *State) VerifyFreshness(ctx context.Context, typeID common.Hash, key common.Hash, proof codec.FreshnessProof, at int64) error {
	return s.prover.Verify(ctx, key, typeID, proof, at)
}
