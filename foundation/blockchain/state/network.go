package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
	"github.com/ardanlabs/powledger/foundation/blockchain/signature"
	"github.com/ethereum/go-ethereum/common"
)

// ErrNoMessenger is returned by network operations of a node running
// without peers.
var ErrNoMessenger = errors.New("node has no messenger")

// NetSendBlockToPeers takes the new mined block and sends it to all known
// peers, followed by the batches it commits.
func (s *State) NetSendBlockToPeers(ctx context.Context, sealed chain.Sealed, queries codec.Queries) error {
	s.evHandler("state: NetSendBlockToPeers: started: blk[%d]", sealed.Block.ID)
	defer s.evHandler("state: NetSendBlockToPeers: completed: blk[%d]", sealed.Block.ID)

	if s.messenger == nil {
		return ErrNoMessenger
	}

	if err := s.messenger.Broadcast(ctx, codec.TopicUpdateMain, sealed.Encoded); err != nil {
		return err
	}

	payload, err := queries.MarshalBinary()
	if err != nil {
		return err
	}

	return s.messenger.Broadcast(ctx, codec.TopicQueriesTransaction, payload)
}

// NetSendTxToPeers shares a new message with the known peers.
func (s *State) NetSendTxToPeers(ctx context.Context, tx []byte) error {
	s.evHandler("state: NetSendTxToPeers: started: tx[%s]", codec.TransactionHash(tx))
	defer s.evHandler("state: NetSendTxToPeers: completed")

	if s.messenger == nil {
		return ErrNoMessenger
	}

	return s.messenger.Broadcast(ctx, codec.TopicSendMessage, tx)
}

// NetRequestPeerStatus asks the peer for its latest block.
func (s *State) NetRequestPeerStatus(ctx context.Context, pr peer.Peer) (peer.PeerStatus, error) {
	if s.messenger == nil {
		return peer.PeerStatus{}, ErrNoMessenger
	}

	return s.messenger.RequestStatus(ctx, pr)
}

// NetSyncPeer queries the specified node asking for blocks this node does
// not have, with their batches, and adds them to the local ledger. A fork
// against a longer peer chain is reorganized before syncing.
func (s *State) NetSyncPeer(ctx context.Context, pr peer.Peer) error {
	s.evHandler("state: NetSyncPeer: started: %s", pr.Host)
	defer s.evHandler("state: NetSyncPeer: completed: %s", pr.Host)

	return s.syncPeer(ctx, pr, true)
}

func (s *State) syncPeer(ctx context.Context, pr peer.Peer, reorganize bool) error {
	ps, err := s.NetRequestPeerStatus(ctx, pr)
	if err != nil {
		return err
	}

	_, latest, err := s.index.LatestBlock()
	if err != nil {
		return err
	}

	if !ps.Ahead(latest.ID) {
		return nil
	}

	s.evHandler("state: NetSyncPeer: peer[%s]: latest[%d]: local[%d]", pr.Host, ps.LatestBlockID, latest.ID)

	for id := latest.ID + 1; id <= ps.LatestBlockID; id++ {
		encoded, err := s.messenger.RequestBlock(ctx, pr, id)
		if err != nil {
			return fmt.Errorf("request blk[%d]: %w", id, err)
		}

		err = s.ProcessProposedBlock(ctx, encoded)
		switch {
		case errors.Is(err, chain.ErrLinkageMismatch) && reorganize:
			if err := s.Reorganize(ctx, pr); err != nil {
				return err
			}
			return s.syncPeer(ctx, pr, false)

		case err != nil:
			return err
		}

		if err := s.syncQueries(ctx, pr, encoded); err != nil {
			s.evHandler("state: NetSyncPeer: blk[%d]: WARNING: queries: %s", id, err)
		}
	}

	return nil
}

// syncQueries requests the batches of the block from the peer and commits
// them.
func (s *State) syncQueries(ctx context.Context, pr peer.Peer, encoded []byte) error {
	block, err := chain.Decode(encoded)
	if err != nil {
		return err
	}
	if len(block.Blobs) == 0 {
		return nil
	}

	hash, _, _, err := s.index.BlockByID(ctx, block.ID)
	if err != nil {
		return err
	}

	payload, err := s.messenger.RequestQueries(ctx, pr, hash)
	if err != nil {
		return err
	}
	if payload == nil {
		return nil
	}

	return s.ProcessQueries(ctx, payload)
}

// =============================================================================

// HandleTopic opens a payload sealed by a peer and processes it under the
// topic it was broadcast on. It returns the address of the peer's key.
func (s *State) HandleTopic(ctx context.Context, topic string, sealed []byte) (common.Address, error) {
	from, payload, err := signature.Open(sealed)
	if err != nil {
		return common.Address{}, err
	}

	s.evHandler("state: HandleTopic: topic[%s]: from[%s]: bytes[%d]", topic, from, len(payload))

	switch topic {
	case codec.TopicUpdateMain:
		err := s.ProcessProposedBlock(ctx, payload)
		if (errors.Is(err, ErrChainBehind) || errors.Is(err, chain.ErrLinkageMismatch)) && s.Worker != nil {
			s.Worker.SignalSync()
		}
		return from, err

	case codec.TopicQueriesTransaction:
		return from, s.ProcessQueries(ctx, payload)

	case codec.TopicSendMessage:
		return from, s.UpsertNodeMessage(payload)

	case codec.TopicQueryTransaction:
		return from, s.answerQuery(ctx, payload)
	}

	return from, fmt.Errorf("unknown topic %q", topic)
}

// answerQuery shares the pending message with the requested content hash
// again so peers that missed it can pick it up.
func (s *State) answerQuery(ctx context.Context, payload []byte) error {
	if len(payload) != codec.HashLength {
		return fmt.Errorf("%w: query carries %d bytes", codec.ErrMalformedRecord, len(payload))
	}

	tx, exists := s.mempool.Lookup(common.BytesToHash(payload))
	if !exists {
		return nil
	}

	if s.messenger == nil {
		return nil
	}

	return s.messenger.Broadcast(ctx, codec.TopicSendMessage, tx.Data)
}
