package codec

import (
	"errors"
	"math/big"
)

// ErrLimitOverflow is returned when a threshold does not fit the 32 byte
// limit field.
var ErrLimitOverflow = errors.New("limit does not fit in 32 bytes")

// DefaultLimit is the loosest possible MAIN limit, 2^256-1.
var DefaultLimit = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 8*LimitSize), big.NewInt(1))

// LimitToBytes converts a threshold into its fixed width big endian form.
func LimitToBytes(limit *big.Int) ([LimitSize]byte, error) {
	var out [LimitSize]byte
	if limit.Sign() < 0 || limit.BitLen() > 8*LimitSize {
		return out, ErrLimitOverflow
	}
	limit.FillBytes(out[:])
	return out, nil
}

// LimitFromBytes converts the fixed width big endian form into a threshold.
func LimitFromBytes(b [LimitSize]byte) *big.Int {
	return new(big.Int).SetBytes(b[:])
}

// DefaultLimitBytes returns the encoded form of DefaultLimit.
func DefaultLimitBytes() [LimitSize]byte {
	b, _ := LimitToBytes(DefaultLimit)
	return b
}
