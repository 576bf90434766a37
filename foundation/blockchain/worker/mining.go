package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
)

// miningOperations runs a mining session for every start signal until the
// worker shuts down.
func (w *Worker) miningOperations() {
	w.evHandler("worker: miningOperations: G started")
	defer w.evHandler("worker: miningOperations: G completed")

	for {
		select {
		case <-w.startMining:
			if !w.isShutdown() {
				w.runMiningOperation()
			}
		case <-w.shut:
			w.evHandler("worker: miningOperations: received shut signal")
			return
		}
	}
}

// runMiningOperation mines one block over the batches the mempool holds and
// proposes it to the known peers. A block accepted from a peer cancels the
// session, and the session does not return until that block is stored so
// the next session extends it. A session that runs past GiveUpHashing is
// abandoned.
func (w *Worker) runMiningOperation() {
	w.evHandler("worker: runMiningOperation: MINING: started")
	defer w.evHandler("worker: runMiningOperation: MINING: completed")

	if !w.state.IsMiningAllowed() {
		w.evHandler("worker: runMiningOperation: MINING: turned off")
		return
	}

	if n := w.state.QueryMempoolLength(); n == 0 {
		w.evHandler("worker: runMiningOperation: MINING: mempool empty")
		return
	}

	// Messages left over after this session get a session of their own.
	defer func() {
		if n := w.state.QueryMempoolLength(); n > 0 {
			w.evHandler("worker: runMiningOperation: MINING: messages pending[%d]: signal again", n)
			w.SignalStartMining()
		}
	}()

	// A cancel request left from a block stored between sessions does not
	// apply to this one.
	select {
	case <-w.cancelMining:
		w.evHandler("worker: runMiningOperation: MINING: drained stale cancel")
	default:
	}

	ctx, cancel := context.WithTimeout(context.Background(), codec.GiveUpHashing)
	defer cancel()

	held := make(chan chan struct{}, 1)

	var wg sync.WaitGroup
	wg.Go(func() {
		select {
		case wait := <-w.cancelMining:
			w.evHandler("worker: runMiningOperation: MINING: CANCEL: requested")
			held <- wait
			cancel()
		case <-ctx.Done():
		}
	})

	sealed, queries, err := w.mine(ctx)
	cancel()
	wg.Wait()

	select {
	case wait := <-held:
		w.evHandler("worker: runMiningOperation: MINING: CANCEL: waiting for the peer block")
		<-wait
		w.evHandler("worker: runMiningOperation: MINING: CANCEL: peer block stored")
	default:
	}

	if err != nil {
		return
	}

	w.propose(sealed, queries)
}

// mine runs MineNewBlock and reports how the session ended.
func (w *Worker) mine(ctx context.Context) (chain.Sealed, codec.Queries, error) {
	start := time.Now()
	sealed, queries, err := w.state.MineNewBlock(ctx)
	took := time.Since(start)

	switch {
	case err == nil:
		w.evHandler("worker: runMiningOperation: MINING: blk[%d]: hash[%s]: duration[%v]", sealed.Block.ID, sealed.Hash, took)

	case errors.Is(err, state.ErrNoTransactions):
		w.evHandler("worker: runMiningOperation: MINING: no minable batches: duration[%v]", took)

	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		w.evHandler("worker: runMiningOperation: MINING: gave up: duration[%v]", took)

	case ctx.Err() != nil:
		w.evHandler("worker: runMiningOperation: MINING: CANCEL: complete: duration[%v]", took)

	default:
		w.evHandler("worker: runMiningOperation: MINING: ERROR: %s", err)
	}

	return sealed, queries, err
}

// propose sends the stored block and its batches to the known peers.
// Peers that cannot be reached pick the block up on their next sync.
func (w *Worker) propose(sealed chain.Sealed, queries codec.Queries) {
	ctx, cancel := context.WithTimeout(context.Background(), codec.ResponseTimeout)
	defer cancel()

	if err := w.state.NetSendBlockToPeers(ctx, sealed, queries); err != nil {
		w.evHandler("worker: runMiningOperation: MINING: propose blk[%d]: WARNING: %s", sealed.Block.ID, err)
	}
}
