// Package public maintains the group of handlers for public access.
package public

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/ardanlabs/powledger/business/web/errs"
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
	"github.com/ardanlabs/powledger/foundation/events"
	"github.com/ardanlabs/powledger/foundation/validate"
	"github.com/ardanlabs/powledger/foundation/web"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Handlers manages the set of ledger endpoints.
type Handlers struct {
	Log   *zap.SugaredLogger
	State *state.State
	WS    websocket.Upgrader
	Evts  *events.Events
}

// Events handles a web socket to provide events to a client.
func (h Handlers) Events(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	h.WS.CheckOrigin = func(r *http.Request) bool { return true }

	c, err := h.WS.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	defer c.Close()

	// A filter query parameter narrows the stream to lines with that prefix,
	// for example ?filter=viewer:+block: for new blocks only.
	ch := h.Evts.Acquire(v.TraceID, r.URL.Query()["filter"]...)
	defer func() {
		if dropped, err := h.Evts.Release(v.TraceID); err == nil && dropped > 0 {
			h.Log.Infow("events", "traceid", v.TraceID, "dropped", dropped)
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case msg, wd := <-ch:
			if !wd {
				return nil
			}

			if err := c.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
				return err
			}

		case <-ticker.C:
			if err := c.WriteMessage(websocket.PingMessage, []byte("ping")); err != nil {
				return nil
			}
		}
	}
}

// SubmitMessage adds a hex encoded message to the mempool.
func (h Handlers) SubmitMessage(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	v, err := web.GetValues(ctx)
	if err != nil {
		return web.NewShutdownError("web value missing from context")
	}

	var req submit
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	data, err := hexutil.Decode(req.Data)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("data: %w", err), http.StatusBadRequest)
	}

	hash := codec.TransactionHash(data)
	h.Log.Infow("submit message", "traceid", v.TraceID, "hash", hash, "bytes", len(data))

	if err := h.State.SubmitMessage(data); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	return web.Respond(ctx, w, submitted{Hash: hash}, http.StatusAccepted)
}

// Genesis returns the genesis information.
func (h Handlers) Genesis(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	gen := h.State.RetrieveGenesis()
	return web.Respond(ctx, w, gen, http.StatusOK)
}

// Info returns the identity of the node and the peers it knows.
func (h Handlers) Info(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	peers := h.State.RetrieveKnownPeers()

	resp := info{
		Host:       h.State.RetrieveHost(),
		Author:     h.State.RetrieveAuthor(),
		Mining:     h.State.IsMiningAllowed(),
		KnownPeers: make([]string, len(peers)),
	}
	for i, pr := range peers {
		resp.KnownPeers[i] = pr.Host
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// LatestBlock returns the header of the block at the tip of the chain.
func (h Handlers) LatestBlock(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	hash, blk, err := h.State.RetrieveLatestBlock()
	if err != nil {
		return err
	}

	return web.Respond(ctx, w, toBlock(hash, blk), http.StatusOK)
}

// Difficulty returns the current MAIN limit and the threshold of every
// difficulty category under it.
func (h Handlers) Difficulty(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	limit, err := h.State.RetrieveLimit()
	if err != nil {
		return err
	}

	resp := limits{
		Limit:      hexutil.EncodeBig(limit),
		Thresholds: make(map[string]string, len(difficulty.Categories)),
	}
	for _, c := range difficulty.Categories {
		resp.Thresholds[c.String()] = hexutil.EncodeBig(difficulty.Threshold(limit, c))
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Item returns the latest committed item under the latest-key.
func (h Handlers) Item(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	key, err := hexutil.Decode(web.Param(r, "key"))
	if err != nil || len(key) != common.HashLength {
		return errs.NewTrusted(fmt.Errorf("invalid key: %q", web.Param(r, "key")), http.StatusBadRequest)
	}

	rec, err := h.State.RetrieveItem(common.BytesToHash(key))
	if err != nil {
		return err
	}

	it := item{
		BlockHash:   rec.BlockHash,
		BlockIndex:  rec.BlockIndex,
		Transaction: rec.Transaction,
	}

	return web.Respond(ctx, w, it, http.StatusOK)
}

// Freshness proves the latest update of the key is still current at the
// block in the at parameter.
func (h Handlers) Freshness(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	typeID := schema.ParseTypeID(web.Param(r, "type"))

	key, err := hexutil.Decode(web.Param(r, "key"))
	if err != nil || len(key) != common.HashLength {
		return errs.NewTrusted(fmt.Errorf("invalid key: %q", web.Param(r, "key")), http.StatusBadRequest)
	}

	at, err := strconv.ParseInt(web.Param(r, "at"), 10, 64)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("invalid block id: %w", err), http.StatusBadRequest)
	}

	proof, err := h.State.Freshness(ctx, typeID, common.BytesToHash(key), -1, at)
	if err != nil {
		return errs.NewTrusted(err, http.StatusUnprocessableEntity)
	}

	data, err := proof.MarshalBinary()
	if err != nil {
		return err
	}

	resp := freshness{
		BlockIndex: proof.BlockIndex,
		At:         at,
		Negatives:  make([]int64, len(proof.Negatives)),
		Proof:      data,
	}
	for i, neg := range proof.Negatives {
		resp.Negatives[i] = neg.Block
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// VerifyFreshness checks a freshness proof produced by any node of the chain
// against the local ledger.
func (h Handlers) VerifyFreshness(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	var req verify
	if err := web.Decode(r, &req); err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	if err := validate.Check(req); err != nil {
		return err
	}

	key, err := hexutil.Decode(req.Key)
	if err != nil || len(key) != common.HashLength {
		return errs.NewTrusted(fmt.Errorf("invalid key: %q", req.Key), http.StatusBadRequest)
	}

	data, err := hexutil.Decode(req.Proof)
	if err != nil {
		return errs.NewTrusted(fmt.Errorf("proof: %w", err), http.StatusBadRequest)
	}

	proof, err := codec.Decode[codec.FreshnessProof](data)
	if err != nil {
		return errs.NewTrusted(err, http.StatusBadRequest)
	}

	resp := verified{Fresh: true}
	if err := h.State.VerifyFreshness(ctx, schema.ParseTypeID(req.Type), common.BytesToHash(key), proof, req.At); err != nil {
		resp = verified{Error: err.Error()}
	}

	return web.Respond(ctx, w, resp, http.StatusOK)
}

// Mempool returns the set of uncommitted messages.
func (h Handlers) Mempool(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	mempool := h.State.RetrieveMempool()

	txs := make([]tx, len(mempool))
	for i, t := range mempool {
		txs[i] = tx{
			Hash:   codec.TransactionHash(t.Data),
			Type:   t.Type,
			Author: t.Author,
			Seq:    t.Seq,
			Data:   t.Data,
		}
	}

	return web.Respond(ctx, w, txs, http.StatusOK)
}
