package codec_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
)

// Success and failure markers.
const (
	success = "\u2713"
	failed  = "\u2717"
)

func sampleBlock() codec.MainBlock {
	limit, _ := codec.LimitToBytes(big.NewInt(0xdeadbeef))

	return codec.MainBlock{
		ID:        7,
		Timestamp: 1_700_000_000_000,
		PrevHash:  common.HexToHash("0x01"),
		Author:    common.HexToAddress("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4"),
		Blobs: []codec.BlobSummary{
			{
				Type:       common.HexToHash("0xaa"),
				Merkle:     codec.MerkleRoots{Includes: common.HexToHash("0xbb"), Query: common.HexToHash("0xcc")},
				Author:     common.HexToAddress("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32"),
				Difficulty: codec.NonceFromUint64(42),
				Bloom:      []byte{1, 2, 3},
			},
		},
		Difficulty: codec.NonceFromUint64(99),
		Padding: []codec.Padding{
			{Index: 0, Hash: common.HexToHash("0x01"), Difficulty: codec.NonceFromUint64(1)},
			{Index: 1, Hash: common.HexToHash("0x01"), Difficulty: codec.NonceFromUint64(2)},
		},
		Limit: limit,
	}
}

// =============================================================================

func Test_RoundTrip(t *testing.T) {
	block := sampleBlock()
	message := codec.Message{
		From:       common.HexToAddress("0x01"),
		To:         common.HexToAddress("0x02"),
		Data:       []byte("payload"),
		Note:       []byte("note"),
		Difficulty: codec.NonceFromUint64(5),
	}
	batch := codec.TypedQueryBatch{
		Type:   common.HexToHash("0xaa"),
		Author: common.HexToAddress("0x03"),
		Queries: []codec.Query{
			{Transaction: []byte("tx1"), Proof: codec.Branch{Leaf: make([]byte, codec.HashLengthWithIndex), Path: []codec.PathStep{{Position: codec.Right, Data: common.HexToHash("0x11").Bytes()}}}},
			{Transaction: []byte("tx2")},
		},
		Padding: []codec.Padding{{Index: 0, Hash: common.HexToHash("0x22")}},
	}
	queries := codec.Queries{Hash: common.HexToHash("0x33"), Index: 4, Results: []codec.TypedQueryBatch{batch}}
	item := codec.ItemRecord{BlockHash: common.HexToHash("0x44"), BlockIndex: 9, Transaction: []byte("tx")}
	proof := codec.MerkleProof{
		Negative: &codec.NegativeProof{
			Left:   &codec.Branch{Leaf: make([]byte, 33), Path: []codec.PathStep{{Position: codec.Left, Data: append(common.HexToHash("0x55").Bytes(), 3)}}},
			Absent: make([]byte, 33),
		},
	}
	fresh := codec.FreshnessProof{
		BlockIndex: 5,
		Negatives:  []codec.BlockNegative{{Block: 6, Proof: *proof.Negative}},
		Positive:   codec.Branch{Leaf: make([]byte, 33)},
	}

	type table struct {
		name   string
		record codec.Record
		empty  func() codec.Record
	}

	tt := []table{
		{name: "block", record: &block, empty: func() codec.Record { return &codec.MainBlock{} }},
		{name: "blob", record: &block.Blobs[0], empty: func() codec.Record { return &codec.BlobSummary{} }},
		{name: "padding", record: &block.Padding[1], empty: func() codec.Record { return &codec.Padding{} }},
		{name: "message", record: &message, empty: func() codec.Record { return &codec.Message{} }},
		{name: "batch", record: &batch, empty: func() codec.Record { return &codec.TypedQueryBatch{} }},
		{name: "queries", record: &queries, empty: func() codec.Record { return &codec.Queries{} }},
		{name: "item", record: &item, empty: func() codec.Record { return &codec.ItemRecord{} }},
		{name: "proof", record: &proof, empty: func() codec.Record { return &codec.MerkleProof{} }},
		{name: "freshness", record: &fresh, empty: func() codec.Record { return &codec.FreshnessProof{} }},
	}

	t.Log("Given the need to encode and decode every record.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s record.", testID, tst.name)
			{
				f := func(t *testing.T) {
					data, err := tst.record.MarshalBinary()
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to encode the record: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to encode the record.", success, testID)

					got := tst.empty()
					if err := got.UnmarshalBinary(data); err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to decode the record: %v", failed, testID, err)
					}
					t.Logf("\t%s\tTest %d:\tShould be able to decode the record.", success, testID)

					again, err := got.MarshalBinary()
					if err != nil {
						t.Fatalf("\t%s\tTest %d:\tShould be able to re-encode the record: %v", failed, testID, err)
					}
					if diff := cmp.Diff(data, again); diff != "" {
						t.Fatalf("\t%s\tTest %d:\tShould get back the same bytes, diff:\n%s", failed, testID, diff)
					}
					t.Logf("\t%s\tTest %d:\tShould get back the same bytes.", success, testID)
				}

				t.Run(tst.name, f)
			}
		}
	}
}

func Test_BlockFields(t *testing.T) {
	block := sampleBlock()

	data, err := block.MarshalBinary()
	if err != nil {
		t.Fatalf("Should be able to encode the block: %s", err)
	}

	got, err := codec.Decode[codec.MainBlock](data)
	if err != nil {
		t.Fatalf("Should be able to decode the block: %s", err)
	}

	if got.ID != block.ID || got.Timestamp != block.Timestamp || got.PrevHash != block.PrevHash || got.Author != block.Author {
		t.Logf("got: %+v", got)
		t.Logf("exp: %+v", block)
		t.Fatalf("Should get back the same header fields.")
	}

	if codec.LimitFromBytes(got.Limit).Cmp(big.NewInt(0xdeadbeef)) != 0 {
		t.Fatalf("Should get back the same limit, got %s", codec.LimitFromBytes(got.Limit))
	}

	if got.Difficulty.Uint64() != 99 {
		t.Fatalf("Should get back the same nonce, got %d", got.Difficulty.Uint64())
	}

	blob, ok := got.Blob(common.HexToHash("0xaa"))
	if !ok || string(blob.Bloom) != "\x01\x02\x03" {
		t.Fatalf("Should be able to find the blob by type.")
	}
}

func Test_Malformed(t *testing.T) {
	block := sampleBlock()
	data, err := block.MarshalBinary()
	if err != nil {
		t.Fatalf("Should be able to encode the block: %s", err)
	}

	var badProof []byte
	{
		p := codec.MerkleProof{Positive: &codec.Branch{Leaf: []byte{1}}}
		badProof, _ = p.MarshalBinary()
		badProof[0] = 7
	}

	type table struct {
		name   string
		data   []byte
		record codec.Record
	}

	tt := []table{
		{name: "empty", data: nil, record: &codec.MainBlock{}},
		{name: "truncated", data: data[:len(data)-1], record: &codec.MainBlock{}},
		{name: "trailing", data: append(append([]byte{}, data...), 0), record: &codec.MainBlock{}},
		{name: "padding-short", data: []byte{1, 2, 3}, record: &codec.Padding{}},
		{name: "proof-tag", data: badProof, record: &codec.MerkleProof{}},
	}

	t.Log("Given the need to reject malformed buffers.")
	{
		for testID, tst := range tt {
			t.Logf("\tTest %d:\tWhen handling a %s buffer.", testID, tst.name)
			{
				err := tst.record.UnmarshalBinary(tst.data)
				if !errors.Is(err, codec.ErrMalformedRecord) {
					t.Fatalf("\t%s\tTest %d:\tShould fail with a malformed record error: %v", failed, testID, err)
				}
				t.Logf("\t%s\tTest %d:\tShould fail with a malformed record error.", success, testID)
			}
		}
	}
}

func Test_Limit(t *testing.T) {
	b, err := codec.LimitToBytes(codec.DefaultLimit)
	if err != nil {
		t.Fatalf("Should be able to encode the default limit: %s", err)
	}
	for _, v := range b {
		if v != 0xff {
			t.Fatalf("Should encode the default limit as all ones.")
		}
	}

	over := new(big.Int).Add(codec.DefaultLimit, big.NewInt(1))
	if _, err := codec.LimitToBytes(over); !errors.Is(err, codec.ErrLimitOverflow) {
		t.Fatalf("Should reject a limit wider than 32 bytes.")
	}

	if codec.LimitFromBytes(b).Cmp(codec.DefaultLimit) != 0 {
		t.Fatalf("Should decode back to the default limit.")
	}

	n := codec.NonceFromUint64(0x0102030405060708)
	if n[0] != 1 || n[7] != 8 || n.Uint64() != 0x0102030405060708 {
		t.Fatalf("Should encode nonces big endian.")
	}
}
