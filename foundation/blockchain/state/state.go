// Package state is the core API for the ledger and implements all the
// business rules and processing of a node.
package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powledger/foundation/blockchain/freshness"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/index"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool"
	"github.com/ardanlabs/powledger/foundation/blockchain/mempool/selector"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
	"github.com/ardanlabs/powledger/foundation/blockchain/query"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage"
	"github.com/ethereum/go-ethereum/common"
)

// =============================================================================

// EventHandler defines a function that is called when events
// occur in the processing of persisting blocks.
type EventHandler func(v string, args ...any)

// Worker interface represents the behavior required to be implemented by any
// package providing support for mining, peer sync, and message sharing.
type Worker interface {
	Shutdown()
	Sync()
	SignalSync()
	SignalStartMining()
	SignalCancelMining() (done func())
	SignalShareTx(tx []byte)
}

// Messenger interface represents the behavior required to talk to the other
// nodes of the network.
type Messenger interface {
	index.Fetcher
	Broadcast(ctx context.Context, topic string, payload []byte) error
	RequestStatus(ctx context.Context, pr peer.Peer) (peer.PeerStatus, error)
	RequestBlock(ctx context.Context, pr peer.Peer, id int64) ([]byte, error)
	RequestQueries(ctx context.Context, pr peer.Peer, hash common.Hash) ([]byte, error)
}

// =============================================================================

// Config represents the configuration required to start
// the ledger node.
type Config struct {
	Author         common.Address
	Host           string
	Genesis        genesis.Genesis
	Store          storage.Store
	Registry       *schema.Registry
	Evaluator      schema.Evaluator
	SelectStrategy string
	KnownPeers     *peer.PeerSet
	Messenger      Messenger
	EvHandler      EventHandler
}

// State manages the ledger of a node.
type State struct {
	author    common.Address
	host      string
	evHandler EventHandler

	allowMining atomic.Bool
	mu          sync.Mutex

	knownPeers *peer.PeerSet
	genesis    genesis.Genesis
	mempool    *mempool.Mempool
	store      storage.Store
	registry   *schema.Registry
	index      *index.Index
	controller *difficulty.Controller
	messenger  Messenger

	assembler chain.Assembler
	validator chain.Validator
	batches   query.Validator
	prover    freshness.Prover

	Worker Worker
}

// New constructs a new ledger node. A store without blocks gets a genesis
// block mined from the genesis parameters.
func New(cfg Config) (*State, error) {

	// Build a safe event handler function for use.
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	if err := cfg.Genesis.Validate(); err != nil {
		return nil, fmt.Errorf("genesis: %w", err)
	}

	registry := cfg.Registry
	if registry == nil {
		registry = schema.Default()
	}

	knownPeers := cfg.KnownPeers
	if knownPeers == nil {
		knownPeers = peer.NewPeerSet()
	}

	// Construct a mempool with the specified select strategy.
	strategy := cfg.SelectStrategy
	if strategy == "" {
		strategy = selector.StrategyFair
	}
	mp, err := mempool.NewWithStrategy(strategy)
	if err != nil {
		return nil, err
	}

	var fetcher index.Fetcher
	if cfg.Messenger != nil {
		fetcher = cfg.Messenger
	}
	idx := index.New(cfg.Store, fetcher, index.EventHandler(ev))

	miner := pow.Miner{
		Workers:   cfg.Genesis.Workers,
		EvHandler: pow.EventHandler(ev),
	}

	state := State{
		author:    cfg.Author,
		host:      cfg.Host,
		evHandler: ev,

		knownPeers: knownPeers,
		genesis:    cfg.Genesis,
		mempool:    mp,
		store:      cfg.Store,
		registry:   registry,
		index:      idx,
		controller: difficulty.NewController(cfg.Store),
		messenger:  cfg.Messenger,

		assembler: chain.Assembler{Miner: miner, Registry: registry, EvHandler: chain.EventHandler(ev)},
		validator: chain.Validator{Limit: cfg.Genesis.LimitInt(), RetargetWindow: cfg.Genesis.RetargetWindow, EvHandler: chain.EventHandler(ev)},
		batches:   query.Validator{Registry: registry, Evaluator: cfg.Evaluator},
		prover:    freshness.Prover{Index: idx, Registry: registry, EvHandler: freshness.EventHandler(ev)},
	}

	state.allowMining.Store(true)

	if _, _, err := idx.LatestBlock(); errors.Is(err, index.ErrNoBlocks) {
		if err := state.mineGenesis(context.Background()); err != nil {
			return nil, err
		}
	}

	// The Worker is not set here. The call to worker.Run will assign itself
	// and start everything up and running for the node.

	return &state, nil
}

// Shutdown cleanly brings the node down.
func (s *State) Shutdown() error {
	s.evHandler("state: shutdown: started")
	defer s.evHandler("state: shutdown: completed")

	// Stop all ledger writing activity.
	if s.Worker != nil {
		s.Worker.Shutdown()
	}

	return nil
}

// =============================================================================

// mineGenesis mines the first block of the chain and resets the MAIN limit
// to the genesis limit.
func (s *State) mineGenesis(ctx context.Context) error {
	s.evHandler("state: mineGenesis: started")
	defer s.evHandler("state: mineGenesis: completed")

	limit := s.genesis.LimitInt()
	if err := s.controller.SetLimit(limit); err != nil {
		return err
	}

	sealed, err := s.assembler.Genesis(ctx, limit, s.genesis.AuthorAddress(), s.genesis.Date)
	if err != nil {
		return fmt.Errorf("mine genesis: %w", err)
	}

	if err := s.index.StoreBlock(sealed.Hash, sealed.Encoded); err != nil {
		return fmt.Errorf("mine genesis: %w", err)
	}

	s.blockEvent(sealed.Hash, sealed.Block)

	return nil
}
