// Package chain assembles main blocks from typed query batches and validates
// blocks and ranges of blocks, segment by segment in parallel.
package chain

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
	"github.com/ethereum/go-ethereum/common"
)

// ErrLinkageMismatch is returned when a block does not extend the expected
// previous block.
var ErrLinkageMismatch = errors.New("linkage mismatch")

// ErrInvalidBatches is returned when a block is assembled from more batches than
// it can hold or from an empty batch.
var ErrInvalidBatches = errors.New("invalid batches")

// EventHandler defines a function that is called when events occur in the
// processing of blocks.
type EventHandler func(v string, args ...any)

// ValidationError names the block that failed a check and the kind of
// failure. errors.Is matches the kind as well as the wrapped cause.
type ValidationError struct {
	Kind  error
	Block int64
	Err   error
}

func (ve *ValidationError) Error() string {
	if ve.Err == nil {
		return fmt.Sprintf("block %d: %s", ve.Block, ve.Kind)
	}
	return fmt.Sprintf("block %d: %s: %s", ve.Block, ve.Kind, ve.Err)
}

// Is matches the kind of the failure.
func (ve *ValidationError) Is(target error) bool {
	return ve.Kind == target
}

// Unwrap returns the cause of the failure.
func (ve *ValidationError) Unwrap() error {
	return ve.Err
}

func invalid(kind error, block int64, err error) *ValidationError {
	return &ValidationError{Kind: kind, Block: block, Err: err}
}

// Link identifies the block a new block must extend. Limit, when set, is
// the MAIN limit the new block must carry.
type Link struct {
	Hash  common.Hash
	ID    int64
	Limit *big.Int
}

// GenesisLink is the link a genesis block extends.
var GenesisLink = Link{ID: -1}

// Next returns the link of the block with the hash that extends this link.
func (l Link) Next(hash common.Hash) Link {
	return Link{Hash: hash, ID: l.ID + 1}
}

// BlockHash returns the Argon2id digest of the encoded block, the value its
// successor carries as previous hash.
func BlockHash(encoded []byte) common.Hash {
	return common.BytesToHash(pow.Hash(encoded))
}

// Decode decodes an encoded main block.
func Decode(encoded []byte) (codec.MainBlock, error) {
	return codec.Decode[codec.MainBlock](encoded)
}

func (ev EventHandler) send(v string, args ...any) {
	if ev != nil {
		ev(v, args...)
	}
}
