// Package private maintains the group of handlers for node to node access.
package private

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/ardanlabs/powledger/business/web/errs"
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/peer"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
	"github.com/ardanlabs/powledger/foundation/validate"
	"github.com/ardanlabs/powledger/foundation/web"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"
)

// maxPayload is the largest record a peer may post.
const maxPayload = 16 << 20

// Handlers manages the set of node endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
}

// SubmitPeer is called by a node so they can be added to the known peer list.
func (h Handlers) SubmitPeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var pr peer.Peer
	if err := web.Decode(r, &pr); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(pr); err != nil {
		return err
	}

	if !h.State.AddKnownPeer(pr) {
		h.Log.Infow("adding peer", "traceid", v.TraceID, "host", pr.Host)
	}

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// RemovePeer drops a host from the known peer list.
func (h Handlers) RemovePeer(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	pr := peer.New(web.Param(r, "host"))
	h.State.RemoveKnownPeer(pr)

	h.Log.Infow("removing peer", "traceid", v.TraceID, "host", pr.Host)

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// Status returns the current status of the node.
func (h Handlers) Status(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	status, err := h.State.Status()
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, status, http.StatusOK)
}

// BlockByID returns the encoded block stored at the height.
func (h Handlers) BlockByID(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	id, err := strconv.ParseInt(web.Param(r, "id"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block id: %w", err), http.StatusBadRequest)
	}

	encoded, err := h.State.RetrieveBlock(ctx, id)
	if err != nil {
		return err
	}

	return web.RespondBytes(ctx, w, encoded, http.StatusOK)
}

// ByHash returns the block or message stored under the content hash.
func (h Handlers) ByHash(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := hashParam(r, "hash")
	if err != nil {
		return err
	}

	data, err := h.State.RetrieveByHash(hash)
	if err != nil {
		return err
	}

	return web.RespondBytes(ctx, w, data, http.StatusOK)
}

// Queries returns the encoded batches committed with the block.
func (h Handlers) Queries(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, err := hashParam(r, "hash")
	if err != nil {
		return err
	}

	data, err := h.State.RetrieveQueries(hash)
	if err != nil {
		return err
	}

	return web.RespondBytes(ctx, w, data, http.StatusOK)
}

// Topic processes a sealed payload a peer broadcast under the topic.
func (h Handlers) Topic(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	sealed, err := web.ReadBody(r, maxPayload)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	topic := web.Param(r, "topic")
	from, err := h.State.HandleTopic(ctx, topic, sealed)
	if err != nil {
		if errors.Is(err, state.ErrChainBehind) {
			h.Log.Infow("topic", "traceid", v.TraceID, "topic", topic, "from", from, "status", err)
			return web.Respond(ctx, w, nil, http.StatusNoContent)
		}
		return errs.NewTrusted(err, http.StatusNotAcceptable)
	}

	h.Log.Infow("topic", "traceid", v.TraceID, "topic", topic, "from", from)

	return web.Respond(ctx, w, nil, http.StatusNoContent)
}

// SubmitMessage adds an encoded message to the mempool and shares it with
// the known peers.
func (h Handlers) SubmitMessage(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	tx, err := web.ReadBody(r, maxPayload)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := h.State.SubmitMessage(tx); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	hash := codec.TransactionHash(tx)
	return web.RespondBytes(ctx, w, hash[:], http.StatusAccepted)
}

// Freshness returns the encoded freshness proof of the latest update of the
// key, checked at the block in the at parameter.
func (h Handlers) Freshness(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	typeID := schema.ParseTypeID(web.Param(r, "type"))

	key, err := hashParam(r, "key")
	if err != nil {
		return err
	}

	at, err := strconv.ParseInt(web.Param(r, "at"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block id: %w", err), http.StatusBadRequest)
	}

	proof, err := h.State.Freshness(ctx, typeID, key, -1, at)
	if err != nil {
		return errs.NewTrusted(err, http.StatusUnprocessableEntity)
	}

	data, err := proof.MarshalBinary()
	if err != nil {
		return err
	}

	return web.RespondBytes(ctx, w, data, http.StatusOK)
}

// Mempool returns the content hashes of the pending messages.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	txs := h.State.RetrieveMempool()

	hashes := make([]common.Hash, len(txs))
	for i, tx := range txs {
		hashes[i] = codec.TransactionHash(tx.Data)
	}

	return web.Respond(ctx, w, hashes, http.StatusOK)
}

// =============================================================================

func hashParam(r *http.Request, name string) (common.Hash, error) {
	b, err := hexutil.Decode(web.Param(r, name))
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, errs.NewTrusted(fmt.Errorf("invalid %s: %q", name, web.Param(r, name)), http.StatusBadRequest)
	}
	return common.BytesToHash(b), nil
}
