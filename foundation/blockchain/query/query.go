// Package query creates and validates the typed query batches a main block
// commits to, and commits validated batches into the latest index.
package query

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powledger/foundation/blockchain/index"
	"github.com/ardanlabs/powledger/foundation/blockchain/merkle"
	"github.com/ardanlabs/powledger/foundation/blockchain/padding"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/ardanlabs/powledger/foundation/metrics"
	"github.com/ethereum/go-ethereum/common"
)

// Set of errors returned when validating batches.
var (
	ErrBatchCount       = errors.New("batch count does not match the block")
	ErrTypeMismatch     = errors.New("batch type does not match the blob")
	ErrDuplicateUnique  = errors.New("duplicate unique key in batch")
	ErrIncludesMismatch = errors.New("includes root does not match transactions")
	ErrInclusionFailed  = errors.New("transaction inclusion proof failed")
)

// Mode selects how much of a batch is checked.
type Mode int

// Set of validation modes. Full batches carry their padding and every
// transaction of the type. Partial batches carry a subset of transactions,
// each with its inclusion branch.
const (
	Full Mode = iota
	Partial
)

func (m Mode) String() string {
	if m == Partial {
		return "partial"
	}
	return "full"
}

// PaddingHash is the context hash small padding of a type is bound to.
func PaddingHash(prevHash common.Hash, typeID common.Hash) common.Hash {
	return sha256.Sum256(append(prevHash.Bytes(), typeID[:]...))
}

// =============================================================================

// Validator checks batches against the blob summaries of their block.
type Validator struct {
	Registry  *schema.Registry
	Evaluator schema.Evaluator
}

// ValidateBatches checks the batches of a block in blob order.
func (v Validator) ValidateBatches(block codec.MainBlock, batches []codec.TypedQueryBatch, mode Mode) (err error) {
	started := time.Now()
	defer func() { metrics.NewValidator("batch_" + mode.String()).Observe(err, started) }()

	if len(batches) != len(block.Blobs) {
		return fmt.Errorf("%w: batches[%d] blobs[%d]", ErrBatchCount, len(batches), len(block.Blobs))
	}

	limit := codec.LimitFromBytes(block.Limit)

	for i := range batches {
		if err := v.validateBatch(block, limit, block.Blobs[i], batches[i], mode); err != nil {
			return fmt.Errorf("batch %d: %w", i, err)
		}
	}

	return nil
}

func (v Validator) validateBatch(block codec.MainBlock, limit *big.Int, blob codec.BlobSummary, batch codec.TypedQueryBatch, mode Mode) error {
	if batch.Type != blob.Type {
		return fmt.Errorf("%w: got %s, exp %s", ErrTypeMismatch, batch.Type, blob.Type)
	}

	h, err := v.Registry.Resolve(batch.Type)
	if err != nil {
		return err
	}

	txs := batch.Transactions()

	if err := v.checkContent(h, limit, txs); err != nil {
		return err
	}

	switch mode {
	case Full:
		if !padding.Filled(codec.NumberOfTransactions, len(txs), len(batch.Padding), codec.SmallPaddingCoeff) {
			return fmt.Errorf("%w: transactions[%d] padding[%d]", padding.ErrWrongPaddingCount, len(txs), len(batch.Padding))
		}

		ctxHash := PaddingHash(block.PrevHash, batch.Type)
		if err := padding.Verify(limit, ctxHash, padding.SmallCount(len(txs)), batch.Padding, difficulty.PaddingSmall); err != nil {
			return err
		}

		root, err := chain.IncludesRoot(txs)
		if err != nil {
			return err
		}
		if root != blob.Merkle.Includes {
			return fmt.Errorf("%w: got %s, exp %s", ErrIncludesMismatch, root, blob.Merkle.Includes)
		}

	case Partial:
		for i, q := range batch.Queries {
			digest := codec.TransactionHash(q.Transaction)
			if len(q.Proof.Leaf) != codec.HashLengthWithIndex || !bytes.Equal(q.Proof.Leaf[:codec.HashLength], digest[:]) {
				return fmt.Errorf("%w: transaction %d: branch is for another leaf", ErrInclusionFailed, i)
			}
			if !merkle.VerifyBranch(blob.Merkle.Includes, q.Proof) {
				return fmt.Errorf("%w: transaction %d", ErrInclusionFailed, i)
			}
		}

	default:
		return fmt.Errorf("unknown validation mode %d", mode)
	}

	return nil
}

// checkContent decodes every transaction, checks its proof of work under
// TRANSACTION, its uniqueness inside the batch and the rules of its type.
func (v Validator) checkContent(h schema.Handle, limit *big.Int, txs [][]byte) error {
	threshold := difficulty.Threshold(limit, difficulty.Transaction)
	seen := make(map[string]int)

	for i, tx := range txs {
		_, item, err := h.Message(tx)
		if err != nil {
			return fmt.Errorf("transaction %d: %w", i, err)
		}

		if ok, _, _ := pow.Verify[codec.Message](tx, threshold); !ok {
			return fmt.Errorf("%w: transaction %d", pow.ErrInvalidDifficulty, i)
		}

		for j, key := range item.UniqueKeys() {
			k := fmt.Sprintf("%d/%x", j, key)
			if first, exists := seen[k]; exists {
				return fmt.Errorf("%w: transactions %d and %d", ErrDuplicateUnique, first, i)
			}
			seen[k] = i
		}

		if v.Evaluator != nil {
			if err := h.Evaluate(v.Evaluator, item); err != nil {
				return fmt.Errorf("transaction %d: %w", i, err)
			}
		}
	}

	return nil
}

// ValidateQueries loads the block the queries name from the index and checks
// the batches against it.
func (v Validator) ValidateQueries(ctx context.Context, idx *index.Index, queries codec.Queries, mode Mode) error {
	_, block, err := idx.BlockByHash(ctx, queries.Hash)
	if err != nil {
		return err
	}

	if block.ID != queries.Index {
		return fmt.Errorf("%w: queries name block %d, got %d", chain.ErrLinkageMismatch, queries.Index, block.ID)
	}

	return v.ValidateBatches(block, queries.Results, mode)
}

// =============================================================================

// CreateBatch builds the full batch of a type for the block extending
// prevHash and mines the small padding that fills it.
func CreateBatch(ctx context.Context, m pow.Miner, limit *big.Int, prevHash common.Hash, typeID common.Hash, author common.Address, txs [][]byte) (codec.TypedQueryBatch, error) {
	if len(txs) > codec.NumberOfTransactions {
		return codec.TypedQueryBatch{}, fmt.Errorf("%d transactions exceeds capacity %d", len(txs), codec.NumberOfTransactions)
	}

	m.Label = difficulty.PaddingSmall.String()
	records, err := padding.Create(ctx, m, limit, PaddingHash(prevHash, typeID), padding.SmallCount(len(txs)), difficulty.PaddingSmall)
	if err != nil {
		return codec.TypedQueryBatch{}, err
	}

	batch := codec.TypedQueryBatch{
		Type:    typeID,
		Author:  author,
		Queries: make([]codec.Query, len(txs)),
		Padding: records,
	}
	for i, tx := range txs {
		batch.Queries[i] = codec.Query{Transaction: tx}
	}

	return batch, nil
}

// PartialBatch returns the batch reduced to the transactions at the positions,
// each carrying its inclusion branch under the includes root.
func PartialBatch(batch codec.TypedQueryBatch, positions ...int) (codec.TypedQueryBatch, error) {
	txs := batch.Transactions()

	values := make([][]byte, len(txs))
	for i, tx := range txs {
		values[i] = codec.TransactionHash(tx).Bytes()
	}

	tree, err := merkle.Build(values)
	if err != nil {
		return codec.TypedQueryBatch{}, err
	}

	part := codec.TypedQueryBatch{
		Type:    batch.Type,
		Author:  batch.Author,
		Queries: make([]codec.Query, 0, len(positions)),
	}

	for _, p := range positions {
		if p < 0 || p >= len(txs) {
			return codec.TypedQueryBatch{}, fmt.Errorf("position %d out of range", p)
		}

		branch, err := tree.PositiveProof(values[p])
		if err != nil {
			return codec.TypedQueryBatch{}, err
		}

		part.Queries = append(part.Queries, codec.Query{Transaction: txs[p], Proof: branch})
	}

	return part, nil
}

// Commit pushes the transactions of every batch into the latest index under
// the block the queries name and keeps the small padding of each type.
func Commit(idx *index.Index, reg *schema.Registry, queries codec.Queries) error {
	for i, batch := range queries.Results {
		h, err := reg.Resolve(batch.Type)
		if err != nil {
			return fmt.Errorf("commit batch %d: %w", i, err)
		}

		if err := idx.PushItems(queries.Hash, queries.Index, h, batch.Transactions()); err != nil {
			return fmt.Errorf("commit batch %d: %w", i, err)
		}

		if len(batch.Padding) > 0 {
			if err := idx.StoreSmallPadding(queries.Hash, batch.Type, batch.Padding); err != nil {
				return fmt.Errorf("commit batch %d: %w", i, err)
			}
		}
	}

	return nil
}

// Revert pops what Commit pushed, last batch first.
func Revert(idx *index.Index, reg *schema.Registry, queries codec.Queries) error {
	for i := len(queries.Results) - 1; i >= 0; i-- {
		batch := queries.Results[i]

		h, err := reg.Resolve(batch.Type)
		if err != nil {
			return fmt.Errorf("revert batch %d: %w", i, err)
		}

		if err := idx.PopItems(queries.Hash, queries.Index, h, batch.Transactions()); err != nil {
			return fmt.Errorf("revert batch %d: %w", i, err)
		}
	}

	return nil
}
