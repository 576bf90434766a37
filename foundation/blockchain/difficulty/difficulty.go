// Package difficulty derives the proof of work threshold of every category
// from the single chain wide MAIN limit and retargets that limit from the
// observed block times.
package difficulty

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/shopspring/decimal"
)

// ErrRetargetWindow is returned when the timestamps cannot produce a ratio.
var ErrRetargetWindow = errors.New("retarget needs at least two strictly increasing timestamps")

// divisionPrecision is the number of decimal places kept by each division.
const divisionPrecision = 20

// Category identifies a kind of minable record.
type Category int

// Set of difficulty categories.
const (
	Main Category = iota
	Side
	Transaction
	PaddingBig
	PaddingSmall
)

var names = map[Category]string{
	Main:         "MAIN",
	Side:         "SIDE",
	Transaction:  "TRANSACTION",
	PaddingBig:   "PADDING_BIG",
	PaddingSmall: "PADDING_SMALL",
}

var coefficients = map[Category]int64{
	Main:         1,
	PaddingBig:   2,
	Side:         4,
	PaddingSmall: 8,
	Transaction:  16,
}

// Categories lists every category.
var Categories = []Category{Main, Side, Transaction, PaddingBig, PaddingSmall}

// String implements the fmt.Stringer interface.
func (c Category) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Category(%d)", int(c))
}

// Coefficient returns the multiplier applied to the MAIN limit.
func (c Category) Coefficient() int64 {
	return coefficients[c]
}

// ParseCategory converts a category name into a Category.
func ParseCategory(s string) (Category, error) {
	for c, n := range names {
		if strings.EqualFold(n, s) {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown difficulty category %q", s)
}

// =============================================================================

// Threshold returns the threshold of the category for the MAIN limit.
func Threshold(limit *big.Int, c Category) *big.Int {
	return new(big.Int).Mul(limit, big.NewInt(c.Coefficient()))
}

// LimitFromBlock returns the threshold of the category under the limit
// the block carries.
func LimitFromBlock(block codec.MainBlock, c Category) *big.Int {
	return Threshold(codec.LimitFromBytes(block.Limit), c)
}

// Retarget computes the next MAIN limit from the block timestamps, in
// milliseconds and in chain order. Each interval contributes the ratio
// expected / actual and the limit is scaled by their average, rounded half
// up. Slow blocks give a ratio below one and lower the limit, which makes
// mining harder, the reverse of the usual retargeting direction.
//
// Compatibility: the plain formula round_half_up(limit * average) can leave
// [1, codec.DefaultLimit]. The result is clamped to that range so it always
// fits the 32-byte limit field of a block, which makes it differ from the
// plain formula at both ends.
func Retarget(limit *big.Int, timestamps []int64) (*big.Int, error) {
	if len(timestamps) < 2 {
		return nil, ErrRetargetWindow
	}

	expected := decimal.NewFromInt(codec.ExpectedBlockTime.Milliseconds())

	sum := decimal.Zero
	for i := 1; i < len(timestamps); i++ {
		interval := timestamps[i] - timestamps[i-1]
		if interval <= 0 {
			return nil, fmt.Errorf("%w: interval %d at position %d", ErrRetargetWindow, interval, i)
		}
		sum = sum.Add(expected.DivRound(decimal.NewFromInt(interval), divisionPrecision))
	}

	ratio := sum.DivRound(decimal.NewFromInt(int64(len(timestamps)-1)), divisionPrecision)
	next := decimal.NewFromBigInt(limit, 0).Mul(ratio).Round(0).BigInt()

	switch {
	case next.Sign() <= 0:
		next = big.NewInt(1)
	case next.Cmp(codec.DefaultLimit) > 0:
		next = new(big.Int).Set(codec.DefaultLimit)
	}

	return next, nil
}

// =============================================================================

// WindowStart returns the first block of the retarget window that ends at
// block id. The genesis timestamp is a chain parameter, not a mining time,
// so the window never reaches back to block 0.
func WindowStart(id int64, window int) int64 {
	return max(1, id-int64(window)+1)
}

// Next returns the MAIN limit the block after the last of the timestamps
// must carry, given the limit that last block carried. Timestamps run from
// genesis (position 0) in chain order. A window too short to retarget keeps
// the limit.
func Next(limit *big.Int, window int, timestamps []int64) (*big.Int, error) {
	id := int64(len(timestamps) - 1)
	from := WindowStart(id, window)
	if id-from < 1 {
		return new(big.Int).Set(limit), nil
	}

	next, err := Retarget(limit, timestamps[from:id+1])
	switch {
	case errors.Is(err, ErrRetargetWindow):
		return new(big.Int).Set(limit), nil
	case err != nil:
		return nil, err
	}

	return next, nil
}

// Schedule returns the MAIN limit every block of a chain must carry, given
// the genesis limit and the block timestamps from genesis in chain order.
func Schedule(genesis *big.Int, window int, timestamps []int64) ([]*big.Int, error) {
	if len(timestamps) == 0 {
		return nil, nil
	}

	limits := make([]*big.Int, len(timestamps))
	limits[0] = new(big.Int).Set(genesis)

	for i := 1; i < len(timestamps); i++ {
		next, err := Next(limits[i-1], window, timestamps[:i])
		if err != nil {
			return nil, err
		}
		limits[i] = next
	}

	return limits, nil
}
