// Package padding mines and checks the filler records that bring blocks and
// query batches up to their fixed capacity. Filler is cheaper than content
// but still costs proof of work, so sparse blocks are not free to produce.
package padding

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
	"github.com/ethereum/go-ethereum/common"
)

// Set of errors returned when checking padding.
var (
	ErrWrongPaddingCount = errors.New("wrong padding count")
	ErrMalformedPadding  = errors.New("malformed padding")
	ErrCategory          = errors.New("padding category must be PADDING_BIG or PADDING_SMALL")
)

func checkCategory(cat difficulty.Category) error {
	if cat != difficulty.PaddingBig && cat != difficulty.PaddingSmall {
		return fmt.Errorf("%w: got %s", ErrCategory, cat)
	}
	return nil
}

// Create mines count records bound to the context hash, one after the other,
// under the threshold of the category for the MAIN limit.
func Create(ctx context.Context, m pow.Miner, limit *big.Int, contextHash common.Hash, count int, cat difficulty.Category) ([]codec.Padding, error) {
	if err := checkCategory(cat); err != nil {
		return nil, err
	}

	threshold := difficulty.Threshold(limit, cat)
	records := make([]codec.Padding, 0, count)

	for i := range count {
		p := codec.Padding{
			Index: int64(i),
			Hash:  contextHash,
		}

		res, err := pow.MineRecord[codec.Padding](ctx, m, &p, threshold)
		if err != nil {
			return nil, fmt.Errorf("padding %d: %w", i, err)
		}

		records = append(records, res.Record)
	}

	return records, nil
}

// Verify checks the count, binding and proof of work of every record.
func Verify(limit *big.Int, contextHash common.Hash, expected int, records []codec.Padding, cat difficulty.Category) error {
	if err := checkCategory(cat); err != nil {
		return err
	}

	if len(records) != expected {
		return fmt.Errorf("%w: got %d, expected %d", ErrWrongPaddingCount, len(records), expected)
	}

	for i := range records {
		if !bytes.Equal(records[i].Hash[:], contextHash[:]) || records[i].Index != int64(i) {
			return fmt.Errorf("%w: record %d", ErrMalformedPadding, i)
		}
	}

	threshold := difficulty.Threshold(limit, cat)
	for i := range records {
		data, err := records[i].MarshalBinary()
		if err != nil {
			return fmt.Errorf("%w: record %d: %w", ErrMalformedPadding, i, err)
		}

		if ok, _, _ := pow.Verify[codec.Padding](data, threshold); !ok {
			return fmt.Errorf("%w: padding record %d", pow.ErrInvalidDifficulty, i)
		}
	}

	return nil
}

// BigCount returns the smallest number of big padding records that brings a
// block with the number of blobs up to capacity.
func BigCount(blobs int) int {
	return fill(codec.NumberOfBlobs, blobs, codec.BigPaddingCoeff)
}

// SmallCount returns the smallest number of small padding records that
// brings a query batch with the number of transactions up to capacity.
func SmallCount(transactions int) int {
	return fill(codec.NumberOfTransactions, transactions, codec.SmallPaddingCoeff)
}

// Filled reports whether content plus padding weighted by coeff reaches the
// capacity.
func Filled(capacity int, content int, records int, coeff int) bool {
	return content+records*coeff >= capacity
}

func fill(capacity int, content int, coeff int) int {
	if content >= capacity {
		return 0
	}
	return (capacity - content + coeff - 1) / coeff
}
