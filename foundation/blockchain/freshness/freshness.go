// Package freshness builds and checks proofs that a latest-key updated at
// one block was not updated again before a later block. Blocks whose bloom
// filter rules the key out need no proof, so both sides read the filter
// bytes the block committed to.
package freshness

import (
	"context"
	"errors"
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/bloom"
	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/index"
	"github.com/ardanlabs/powledger/foundation/blockchain/merkle"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/ethereum/go-ethereum/common"
)

// Set of proof failure kinds.
var (
	ErrNonInclusionFailed = errors.New("non-inclusion proof failed")
	ErrInclusionFailed    = errors.New("inclusion proof failed")
	ErrSuperseded         = errors.New("key was updated inside the range")
)

// ProofError names the block whose proof failed and the kind of failure.
type ProofError struct {
	Kind  error
	Block int64
	Err   error
}

func (pe *ProofError) Error() string {
	if pe.Err == nil {
		return fmt.Sprintf("block %d: %s", pe.Block, pe.Kind)
	}
	return fmt.Sprintf("block %d: %s: %s", pe.Block, pe.Kind, pe.Err)
}

// Is matches the kind of the failure.
func (pe *ProofError) Is(target error) bool {
	return pe.Kind == target
}

// Unwrap returns the cause of the failure.
func (pe *ProofError) Unwrap() error {
	return pe.Err
}

// EventHandler defines a function that is called when events occur in the
// processing of proofs.
type EventHandler func(v string, args ...any)

// Prover creates and verifies freshness proofs over the latest index.
type Prover struct {
	Index     *index.Index
	Registry  *schema.Registry
	EvHandler EventHandler
}

func (p Prover) ev(v string, args ...any) {
	if p.EvHandler != nil {
		p.EvHandler(v, args...)
	}
}

// Latest resolves the latest-key of the transaction and the most recent
// committed item under it.
func (p Prover) Latest(tx []byte) (common.Hash, codec.ItemRecord, error) {
	var msg codec.Message
	if err := msg.UnmarshalBinary(tx); err != nil {
		return common.Hash{}, codec.ItemRecord{}, err
	}

	h, err := p.Registry.ResolveShort(msg.To)
	if err != nil {
		return common.Hash{}, codec.ItemRecord{}, err
	}

	key, err := h.QueryKey(tx)
	if err != nil {
		return common.Hash{}, codec.ItemRecord{}, err
	}

	rec, err := p.Index.Latest(key)
	if err != nil {
		return common.Hash{}, codec.ItemRecord{}, err
	}

	return key, rec, nil
}

// Create builds the proof that the key updated at block b is not updated
// in any block strictly between b and c, and is present in block c.
func (p Prover) Create(ctx context.Context, key common.Hash, typeID common.Hash, b int64, c int64) (codec.FreshnessProof, error) {
	h, err := p.Registry.Resolve(typeID)
	if err != nil {
		return codec.FreshnessProof{}, err
	}

	proof := codec.FreshnessProof{BlockIndex: b}

	for i := b + 1; i < c; i++ {
		flagged, err := p.flagged(ctx, key, typeID, i)
		if err != nil {
			return codec.FreshnessProof{}, err
		}
		if !flagged {
			continue
		}

		tree, err := p.queryTree(h, i)
		if err != nil {
			return codec.FreshnessProof{}, err
		}

		neg, err := tree.NegativeProof(key[:])
		if errors.Is(err, merkle.ErrPresent) {
			return codec.FreshnessProof{}, &ProofError{Kind: ErrSuperseded, Block: i}
		}
		if err != nil {
			return codec.FreshnessProof{}, fmt.Errorf("negative proof blk[%d]: %w", i, err)
		}

		p.ev("freshness: Create: blk[%d]: negative proof", i)

		proof.Negatives = append(proof.Negatives, codec.BlockNegative{Block: i, Proof: neg})
	}

	tree, err := p.queryTree(h, c)
	if err != nil {
		return codec.FreshnessProof{}, err
	}

	pos, err := tree.PositiveProof(key[:])
	if err != nil {
		return codec.FreshnessProof{}, &ProofError{Kind: ErrInclusionFailed, Block: c, Err: err}
	}
	proof.Positive = pos

	p.ev("freshness: Create: key[%s]: blks[%d:%d]: negatives[%d]", key, b, c, len(proof.Negatives))

	return proof, nil
}

// Verify replays the bloom filtered scan of Create. Every flagged block must
// be answered, in order, by a negative proof against its own query root and
// the positive proof must hold against the query root of block c.
func (p Prover) Verify(ctx context.Context, key common.Hash, typeID common.Hash, proof codec.FreshnessProof, c int64) error {
	negatives := proof.Negatives

	for i := proof.BlockIndex + 1; i < c; i++ {
		flagged, err := p.flagged(ctx, key, typeID, i)
		if err != nil {
			return err
		}
		if !flagged {
			continue
		}

		if len(negatives) == 0 || negatives[0].Block != i {
			return &ProofError{Kind: ErrNonInclusionFailed, Block: i, Err: errors.New("no proof for flagged block")}
		}
		neg := negatives[0].Proof
		negatives = negatives[1:]

		if len(neg.Absent) != codec.HashLengthWithIndex || common.BytesToHash(neg.Absent[:codec.HashLength]) != key {
			return &ProofError{Kind: ErrNonInclusionFailed, Block: i, Err: errors.New("proof is for another key")}
		}

		blob, err := p.blob(ctx, typeID, i)
		if err != nil {
			return err
		}

		capacity, err := p.Index.CountByIndex(i, typeID)
		if err != nil {
			return err
		}

		if !merkle.VerifyNegative(blob.Merkle.Query, neg, int(capacity)) {
			return &ProofError{Kind: ErrNonInclusionFailed, Block: i}
		}
	}

	if len(negatives) > 0 {
		return &ProofError{Kind: ErrNonInclusionFailed, Block: negatives[0].Block, Err: errors.New("proof for a block that was not flagged")}
	}

	blob, err := p.blob(ctx, typeID, c)
	if err != nil {
		return err
	}

	leaf := proof.Positive.Leaf
	if len(leaf) != codec.HashLengthWithIndex || common.BytesToHash(leaf[:codec.HashLength]) != key {
		return &ProofError{Kind: ErrInclusionFailed, Block: c, Err: errors.New("proof is for another key")}
	}

	if !merkle.VerifyBranch(blob.Merkle.Query, proof.Positive) {
		return &ProofError{Kind: ErrInclusionFailed, Block: c}
	}

	return nil
}

// =============================================================================

func (p Prover) blob(ctx context.Context, typeID common.Hash, id int64) (codec.BlobSummary, error) {
	_, _, block, err := p.Index.BlockByID(ctx, id)
	if err != nil {
		return codec.BlobSummary{}, err
	}

	blob, ok := block.Blob(typeID)
	if !ok {
		return codec.BlobSummary{}, &ProofError{Kind: ErrInclusionFailed, Block: id, Err: fmt.Errorf("no blob of type %s", typeID)}
	}

	return blob, nil
}

func (p Prover) flagged(ctx context.Context, key common.Hash, typeID common.Hash, id int64) (bool, error) {
	_, _, block, err := p.Index.BlockByID(ctx, id)
	if err != nil {
		return false, err
	}

	blob, ok := block.Blob(typeID)
	if !ok {
		return false, nil
	}

	return bloom.MayContain(blob.Bloom, key[:])
}

func (p Prover) queryTree(h schema.Handle, id int64) (*merkle.Tree, error) {
	items, err := p.Index.ItemsByIndex(id, h.ID)
	if err != nil {
		return nil, err
	}

	txs := make([][]byte, len(items))
	for i, item := range items {
		txs[i] = item.Transaction
	}

	keys, err := chain.LatestKeys(h, txs)
	if err != nil {
		return nil, fmt.Errorf("blk[%d]: %w", id, err)
	}

	return merkle.Build(keys)
}
