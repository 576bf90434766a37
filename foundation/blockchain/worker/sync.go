package worker

import (
	"context"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
)

// Sync pulls the blocks this node is missing, with their batches, from the
// known peers. Peers that cannot be reached are kept, since the peer list
// is static.
func (w *Worker) Sync() {
	w.evHandler("worker: sync: started")
	defer w.evHandler("worker: sync: completed")

	for _, peer := range w.state.RetrieveKnownPeers() {
		ctx, cancel := context.WithTimeout(context.Background(), codec.ResponseTimeout)

		if err := w.state.NetSyncPeer(ctx, peer); err != nil {
			w.evHandler("worker: sync: syncPeer: %s: ERROR: %s", peer.Host, err)
		}

		cancel()
	}
}
