package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powledger/foundation/blockchain/padding"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
	"github.com/ardanlabs/powledger/foundation/metrics"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/sync/errgroup"
)

// Validator checks main blocks and ranges of main blocks. With Limit set,
// ranges that start at genesis are also checked against the MAIN limit
// schedule: genesis carries Limit and every later block the limit retargeted
// over the RetargetWindow blocks before it.
type Validator struct {
	Limit          *big.Int
	RetargetWindow int
	EvHandler      EventHandler
}

// ValidateBlock checks a single encoded block. When prev is not nil the
// linkage is checked first, before any hashing. The block is then checked
// for its own proof of work under MAIN, its capacity, its big padding bound
// to the previous hash and the proof of work of every blob under SIDE. The
// first failing check is returned as a *ValidationError.
func (v Validator) ValidateBlock(encoded []byte, prev *Link) (block codec.MainBlock, hash common.Hash, err error) {
	started := time.Now()
	defer func() { metrics.NewValidator("block").Observe(err, started) }()

	ev := v.EvHandler

	block, err = Decode(encoded)
	if err != nil {
		id := int64(-1)
		if prev != nil {
			id = prev.ID + 1
		}
		return codec.MainBlock{}, common.Hash{}, invalid(codec.ErrMalformedRecord, id, err)
	}

	if prev != nil {
		ev.send("chain: ValidateBlock: validate: blk[%d]: check: block extends the previous block", block.ID)

		if block.PrevHash != prev.Hash {
			return block, common.Hash{}, invalid(ErrLinkageMismatch, block.ID, fmt.Errorf("previous hash got %s, exp %s", block.PrevHash, prev.Hash))
		}
		if block.ID != prev.ID+1 {
			return block, common.Hash{}, invalid(ErrLinkageMismatch, block.ID, fmt.Errorf("block id got %d, exp %d", block.ID, prev.ID+1))
		}

		if prev.Limit != nil {
			ev.send("chain: ValidateBlock: validate: blk[%d]: check: block carries the expected MAIN limit", block.ID)

			if err := checkLimit(block, prev.Limit); err != nil {
				return block, common.Hash{}, err
			}
		}
	}

	ev.send("chain: ValidateBlock: validate: blk[%d]: check: block hash has been solved", block.ID)

	ok, _, digest := pow.Verify[codec.MainBlock](encoded, difficulty.LimitFromBlock(block, difficulty.Main))
	if !ok {
		return block, common.Hash{}, invalid(pow.ErrInvalidDifficulty, block.ID, errors.New("block digest is not below the MAIN threshold"))
	}
	hash = common.BytesToHash(digest.FillBytes(make([]byte, codec.HashLength)))

	ev.send("chain: ValidateBlock: validate: blk[%d]: check: blobs and padding fill the block", block.ID)

	if !padding.Filled(codec.NumberOfBlobs, len(block.Blobs), len(block.Padding), codec.BigPaddingCoeff) {
		return block, hash, invalid(padding.ErrWrongPaddingCount, block.ID, fmt.Errorf("blobs[%d] padding[%d]", len(block.Blobs), len(block.Padding)))
	}

	ev.send("chain: ValidateBlock: validate: blk[%d]: check: padding is bound to the previous block", block.ID)

	limit := codec.LimitFromBytes(block.Limit)
	if err := padding.Verify(limit, block.PrevHash, padding.BigCount(len(block.Blobs)), block.Padding, difficulty.PaddingBig); err != nil {
		return block, hash, invalid(paddingKind(err), block.ID, err)
	}

	ev.send("chain: ValidateBlock: validate: blk[%d]: check: blob hashes have been solved", block.ID)

	threshold := difficulty.Threshold(limit, difficulty.Side)
	for i := range block.Blobs {
		data, err := block.Blobs[i].MarshalBinary()
		if err != nil {
			return block, hash, invalid(codec.ErrMalformedRecord, block.ID, err)
		}

		if ok, _, _ := pow.Verify[codec.BlobSummary](data, threshold); !ok {
			return block, hash, invalid(pow.ErrInvalidDifficulty, block.ID, fmt.Errorf("blob %d is not below the SIDE threshold", i))
		}
	}

	return block, hash, nil
}

func paddingKind(err error) error {
	switch {
	case errors.Is(err, padding.ErrWrongPaddingCount):
		return padding.ErrWrongPaddingCount
	case errors.Is(err, pow.ErrInvalidDifficulty):
		return pow.ErrInvalidDifficulty
	}
	return padding.ErrMalformedPadding
}

// checkLimit rejects a block whose limit field differs from the expected
// MAIN limit, so a block cannot pick an easier threshold for itself.
func checkLimit(block codec.MainBlock, exp *big.Int) error {
	if got := codec.LimitFromBytes(block.Limit); got.Cmp(exp) != 0 {
		return invalid(pow.ErrInvalidDifficulty, block.ID, fmt.Errorf("limit got %s, exp %s", hexutil.EncodeBig(got), hexutil.EncodeBig(exp)))
	}
	return nil
}

// ValidateChain validates the blocks in order, each one against the block
// before it. The first block is checked on its own, except that a genesis
// block must carry the validator's Limit when one is set. It stops at the
// first failure.
func (v Validator) ValidateChain(blocks [][]byte) error {
	var prev *Link
	var timestamps []int64

	for i, encoded := range blocks {
		block, hash, err := v.ValidateBlock(encoded, prev)
		if err != nil {
			return err
		}

		// The limit schedule is only known for ranges starting at genesis.
		scheduled := v.Limit != nil && ((i == 0 && block.ID == 0) || (prev != nil && prev.Limit != nil))
		if i == 0 && scheduled {
			if err := checkLimit(block, v.Limit); err != nil {
				return err
			}
		}

		next := Link{Hash: hash, ID: block.ID}
		if scheduled {
			timestamps = append(timestamps, block.Timestamp)
			if next.Limit, err = difficulty.Next(codec.LimitFromBytes(block.Limit), v.RetargetWindow, timestamps); err != nil {
				return err
			}
		}

		prev = &next
	}

	return nil
}

// ValidateLimits checks, without any hashing, that every block of a range
// starting at genesis carries the MAIN limit the schedule gives it.
func (v Validator) ValidateLimits(blocks [][]byte) error {
	if v.Limit == nil || len(blocks) == 0 {
		return nil
	}

	decoded := make([]codec.MainBlock, len(blocks))
	timestamps := make([]int64, len(blocks))
	for i, encoded := range blocks {
		block, err := Decode(encoded)
		if err != nil {
			return invalid(codec.ErrMalformedRecord, int64(i), err)
		}
		decoded[i] = block
		timestamps[i] = block.Timestamp
	}

	if decoded[0].ID != 0 {
		return fmt.Errorf("limit schedule starts at genesis, range starts at block %d", decoded[0].ID)
	}

	limits, err := difficulty.Schedule(v.Limit, v.RetargetWindow, timestamps)
	if err != nil {
		return err
	}

	for i, block := range decoded {
		if err := checkLimit(block, limits[i]); err != nil {
			return err
		}
	}

	return nil
}

// =============================================================================

// Segment is a half open range [From, To) of block positions.
type Segment struct {
	From int
	To   int
}

// Plan splits n blocks into contiguous segments of splitSize blocks and
// returns them together with the boundary pairs between consecutive
// segments. Each boundary holds the last block of one segment and the first
// block of the next.
func Plan(n int, splitSize int) (segments []Segment, boundaries []Segment) {
	if splitSize < 1 {
		splitSize = 1
	}

	for from := 0; from < n; from += splitSize {
		segments = append(segments, Segment{From: from, To: min(from+splitSize, n)})
	}

	for i := 1; i < len(segments); i++ {
		boundaries = append(boundaries, Segment{From: segments[i].From - 1, To: segments[i].From + 1})
	}

	return segments, boundaries
}

// SegmentFunc validates one contiguous segment of encoded blocks.
type SegmentFunc func(ctx context.Context, segment [][]byte) error

// ParallelValidateChain validates every segment concurrently through the
// segment function and, concurrently with them, every boundary pair through
// ValidateChain and the limit schedule through ValidateLimits. It succeeds
// only if every one of them does.
func (v Validator) ParallelValidateChain(ctx context.Context, blocks [][]byte, splitSize int, validateSegment SegmentFunc) (err error) {
	if splitSize < 1 {
		return fmt.Errorf("split size must be positive, got %d", splitSize)
	}

	started := time.Now()
	defer func() { metrics.NewValidator("chain").Observe(err, started) }()

	segments, boundaries := Plan(len(blocks), splitSize)

	v.EvHandler.send("chain: ParallelValidateChain: started: blocks[%d]: segments[%d]: boundaries[%d]", len(blocks), len(segments), len(boundaries))

	g, ctx := errgroup.WithContext(ctx)

	// Segments after the first do not start at genesis, so the limit
	// schedule is checked once over the whole range.
	g.Go(func() error {
		if err := v.ValidateLimits(blocks); err != nil {
			return fmt.Errorf("limits: %w", err)
		}
		return nil
	})

	for i, s := range segments {
		g.Go(func() error {
			if err := validateSegment(ctx, blocks[s.From:s.To]); err != nil {
				return fmt.Errorf("segment %d: %w", i, err)
			}
			return nil
		})
	}

	for i, b := range boundaries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			v.EvHandler.send("chain: ParallelValidateChain: boundary[%d]: blocks[%d:%d]", i, b.From, b.To)

			if err := v.ValidateChain(blocks[b.From:b.To]); err != nil {
				return fmt.Errorf("boundary %d: %w", i, err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}

	v.EvHandler.send("chain: ParallelValidateChain: completed: duration[%v]", time.Since(started))

	return nil
}

// SegmentValidator returns a segment function that validates a segment
// sequentially with ValidateChain.
func (v Validator) SegmentValidator() SegmentFunc {
	return func(ctx context.Context, segment [][]byte) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		return v.ValidateChain(segment)
	}
}
