package chain

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/bloom"
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powledger/foundation/blockchain/merkle"
	"github.com/ardanlabs/powledger/foundation/blockchain/padding"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/ethereum/go-ethereum/common"
)

// Sealed is a mined main block with the bytes that were hashed and their
// digest.
type Sealed struct {
	Block   codec.MainBlock
	Encoded []byte
	Hash    common.Hash
}

// Link returns the link a successor of the block extends.
func (s Sealed) Link() Link {
	return Link{Hash: s.Hash, ID: s.Block.ID}
}

// Assembler turns typed query batches into a mined main block.
type Assembler struct {
	Miner     pow.Miner
	Registry  *schema.Registry
	EvHandler EventHandler
}

// Assemble builds one blob summary per batch, mines each under SIDE, mines
// the big padding bound to the previous block hash and finally mines the
// block under MAIN. The block carries the limit it was mined with.
func (a Assembler) Assemble(ctx context.Context, prev Link, limit *big.Int, batches []codec.TypedQueryBatch, author common.Address, timestamp time.Time) (Sealed, error) {
	if len(batches) > codec.NumberOfBlobs {
		return Sealed{}, fmt.Errorf("%w: %d batches exceeds capacity %d", ErrInvalidBatches, len(batches), codec.NumberOfBlobs)
	}

	limitBytes, err := codec.LimitToBytes(limit)
	if err != nil {
		return Sealed{}, err
	}

	id := prev.ID + 1
	ev := a.EvHandler

	ev.send("chain: Assemble: blk[%d]: started: batches[%d]", id, len(batches))

	blobs := make([]codec.BlobSummary, 0, len(batches))
	for _, batch := range batches {
		blob, err := a.blob(ctx, limit, batch)
		if err != nil {
			return Sealed{}, fmt.Errorf("assemble blk[%d]: %w", id, err)
		}
		blobs = append(blobs, blob)
	}

	ev.send("chain: Assemble: blk[%d]: mining padding: count[%d]", id, padding.BigCount(len(blobs)))

	pm := a.Miner
	pm.Label = difficulty.PaddingBig.String()
	records, err := padding.Create(ctx, pm, limit, prev.Hash, padding.BigCount(len(blobs)), difficulty.PaddingBig)
	if err != nil {
		return Sealed{}, fmt.Errorf("assemble blk[%d]: %w", id, err)
	}

	block := codec.MainBlock{
		ID:        id,
		Timestamp: timestamp.UTC().UnixMilli(),
		PrevHash:  prev.Hash,
		Author:    author,
		Blobs:     blobs,
		Padding:   records,
		Limit:     limitBytes,
	}

	ev.send("chain: Assemble: blk[%d]: mining block", id)

	mm := a.Miner
	mm.Label = difficulty.Main.String()
	res, err := pow.MineRecord[codec.MainBlock](ctx, mm, &block, difficulty.Threshold(limit, difficulty.Main))
	if err != nil {
		return Sealed{}, fmt.Errorf("assemble blk[%d]: %w", id, err)
	}

	sealed := Sealed{
		Block:   res.Record,
		Encoded: res.Encoded,
		Hash:    common.BytesToHash(res.Digest.FillBytes(make([]byte, codec.HashLength))),
	}

	ev.send("chain: Assemble: blk[%d]: completed: hash[%s]", id, sealed.Hash)

	return sealed, nil
}

// Genesis mines the first block of a chain. It carries no blobs and extends
// the zero hash. Mining is deterministic, so nodes sharing the genesis
// parameters share the genesis block.
func (a Assembler) Genesis(ctx context.Context, limit *big.Int, author common.Address, timestamp time.Time) (Sealed, error) {
	a.Miner.Deterministic = true
	return a.Assemble(ctx, GenesisLink, limit, nil, author, timestamp)
}

func (a Assembler) blob(ctx context.Context, limit *big.Int, batch codec.TypedQueryBatch) (codec.BlobSummary, error) {
	if a.Registry == nil {
		return codec.BlobSummary{}, fmt.Errorf("blob: no schema registry")
	}

	h, err := a.Registry.Resolve(batch.Type)
	if err != nil {
		return codec.BlobSummary{}, err
	}

	roots, filter, err := Roots(h, batch.Transactions())
	if err != nil {
		return codec.BlobSummary{}, fmt.Errorf("blob %s: %w", h.Name, err)
	}

	blob := codec.BlobSummary{
		Type:   h.ID,
		Merkle: roots,
		Author: batch.Author,
		Bloom:  filter,
	}

	sm := a.Miner
	sm.Label = difficulty.Side.String()
	res, err := pow.MineRecord[codec.BlobSummary](ctx, sm, &blob, difficulty.Threshold(limit, difficulty.Side))
	if err != nil {
		return codec.BlobSummary{}, fmt.Errorf("blob %s: %w", h.Name, err)
	}

	return res.Record, nil
}

// =============================================================================

// LatestKeys extracts the latest-key of every transaction in order.
func LatestKeys(h schema.Handle, txs [][]byte) ([][]byte, error) {
	keys := make([][]byte, len(txs))
	for i, tx := range txs {
		key, err := h.QueryKey(tx)
		if err != nil {
			return nil, fmt.Errorf("transaction %d: %w", i, err)
		}
		keys[i] = key.Bytes()
	}
	return keys, nil
}

// IncludesRoot returns the root over the hashes of the transactions.
func IncludesRoot(txs [][]byte) (common.Hash, error) {
	if len(txs) == 0 {
		return common.Hash{}, fmt.Errorf("%w: empty batch", ErrInvalidBatches)
	}

	values := make([][]byte, len(txs))
	for i, tx := range txs {
		values[i] = codec.TransactionHash(tx).Bytes()
	}

	tree, err := merkle.Build(values)
	if err != nil {
		return common.Hash{}, err
	}
	return tree.RootHash(), nil
}

// Roots returns the merkle roots and the serialized bloom filter a blob
// summary commits to for the transactions of one type.
func Roots(h schema.Handle, txs [][]byte) (codec.MerkleRoots, []byte, error) {
	includes, err := IncludesRoot(txs)
	if err != nil {
		return codec.MerkleRoots{}, nil, err
	}

	keys, err := LatestKeys(h, txs)
	if err != nil {
		return codec.MerkleRoots{}, nil, err
	}

	tree, err := merkle.Build(keys)
	if err != nil {
		return codec.MerkleRoots{}, nil, err
	}

	filter, err := bloom.Build(keys)
	if err != nil {
		return codec.MerkleRoots{}, nil, err
	}

	roots := codec.MerkleRoots{
		Includes: includes,
		Query:    tree.RootHash(),
	}

	return roots, filter, nil
}
