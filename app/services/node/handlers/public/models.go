package public

import (
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

type tx struct {
	Hash   common.Hash    `json:"hash"`
	Type   common.Hash    `json:"type"`
	Author common.Address `json:"author"`
	Seq    uint64         `json:"seq"`
	Data   hexutil.Bytes  `json:"data"`
}

type submit struct {
	Data string `json:"data" validate:"required"`
}

type submitted struct {
	Hash common.Hash `json:"hash"`
}

type item struct {
	BlockHash   common.Hash   `json:"block_hash"`
	BlockIndex  int64         `json:"block_index"`
	Transaction hexutil.Bytes `json:"transaction"`
}

type freshness struct {
	BlockIndex int64         `json:"block_index"`
	At         int64         `json:"at"`
	Negatives  []int64       `json:"negatives"`
	Proof      hexutil.Bytes `json:"proof"`
}

type info struct {
	Host       string         `json:"host"`
	Author     common.Address `json:"author"`
	Mining     bool           `json:"mining"`
	KnownPeers []string       `json:"known_peers"`
}

type verify struct {
	Type  string `json:"type" validate:"required"`
	Key   string `json:"key" validate:"required"`
	At    int64  `json:"at" validate:"gte=0"`
	Proof string `json:"proof" validate:"required"`
}

type verified struct {
	Fresh bool   `json:"fresh"`
	Error string `json:"error,omitempty"`
}

type limits struct {
	Limit      string            `json:"limit"`
	Thresholds map[string]string `json:"thresholds"`
}

type blob struct {
	Type     common.Hash    `json:"type"`
	Author   common.Address `json:"author"`
	Includes common.Hash    `json:"includes"`
	Query    common.Hash    `json:"query"`
}

type block struct {
	Hash      common.Hash    `json:"hash"`
	ID        int64          `json:"id"`
	Timestamp int64          `json:"timestamp"`
	PrevHash  common.Hash    `json:"prev_hash"`
	Author    common.Address `json:"author"`
	Limit     string         `json:"limit"`
	Padding   int            `json:"padding"`
	Blobs     []blob         `json:"blobs"`
}

func toBlock(hash common.Hash, b codec.MainBlock) block {
	blk := block{
		Hash:      hash,
		ID:        b.ID,
		Timestamp: b.Timestamp,
		PrevHash:  b.PrevHash,
		Author:    b.Author,
		Limit:     hexutil.EncodeBig(codec.LimitFromBytes(b.Limit)),
		Padding:   len(b.Padding),
		Blobs:     make([]blob, len(b.Blobs)),
	}
	for i, bs := range b.Blobs {
		blk.Blobs[i] = blob{Type: bs.Type, Author: bs.Author, Includes: bs.Merkle.Includes, Query: bs.Merkle.Query}
	}
	return blk
}
