package query_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/index"
	"github.com/ardanlabs/powledger/foundation/blockchain/padding"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
	"github.com/ardanlabs/powledger/foundation/blockchain/query"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage/memory"
	"github.com/ethereum/go-ethereum/common"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

var (
	alice = common.HexToAddress("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	bob   = common.HexToAddress("0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76")
)

func coinTx(t *testing.T, coin schema.Coin) []byte {
	t.Helper()

	h := schema.CoinHandle()
	data, err := h.Encode(&coin)
	if err != nil {
		t.Fatalf("Should be able to encode the coin: %s", err)
	}

	msg := codec.Message{From: coin.Author, To: h.Short(), Data: data}
	tx, err := msg.MarshalBinary()
	if err != nil {
		t.Fatalf("Should be able to encode the message: %s", err)
	}
	return tx
}

func coinBlock() codec.MainBlock {
	return codec.MainBlock{
		ID:    3,
		Blobs: []codec.BlobSummary{{Type: schema.CoinHandle().ID}},
		Limit: codec.DefaultLimitBytes(),
	}
}

// =============================================================================

func Test_Batches(t *testing.T) {
	ctx := context.Background()
	miner := pow.Miner{Workers: 1}
	h := schema.CoinHandle()
	prev := chain.Link{Hash: common.HexToHash("0xabc"), ID: 2}

	txs := [][]byte{
		coinTx(t, schema.Coin{Author: alice, Amount: 5, NextBalance: 5}),
		coinTx(t, schema.Coin{Author: bob, Amount: 3, NextBalance: 3}),
		coinTx(t, schema.Coin{Author: alice, Amount: 1, NextBalance: 6}),
	}

	batch, err := query.CreateBatch(ctx, miner, codec.DefaultLimit, prev.Hash, h.ID, alice, txs)
	if err != nil {
		t.Fatalf("Should be able to create the batch: %s", err)
	}

	a := chain.Assembler{Miner: miner, Registry: schema.Default()}
	sealed, err := a.Assemble(ctx, prev, codec.DefaultLimit, []codec.TypedQueryBatch{batch}, alice, time.Now())
	if err != nil {
		t.Fatalf("Should be able to assemble the block: %s", err)
	}

	v := query.Validator{Registry: schema.Default(), Evaluator: schema.Expressions{}}

	t.Log("Given the need to validate full batches.")
	{
		if len(batch.Padding) != padding.SmallCount(3) || batch.Padding[0].Hash != query.PaddingHash(prev.Hash, h.ID) {
			t.Fatalf("\t%s\tShould pad the batch bound to the previous block and type.", failed)
		}
		t.Logf("\t%s\tShould pad the batch bound to the previous block and type.", success)

		if err := v.ValidateBatches(sealed.Block, []codec.TypedQueryBatch{batch}, query.Full); err != nil {
			t.Fatalf("\t%s\tShould validate the full batch: %s", failed, err)
		}
		t.Logf("\t%s\tShould validate the full batch.", success)

		short := batch
		short.Padding = batch.Padding[1:]
		if err := v.ValidateBatches(sealed.Block, []codec.TypedQueryBatch{short}, query.Full); !errors.Is(err, padding.ErrWrongPaddingCount) {
			t.Fatalf("\t%s\tShould reject missing padding: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject missing padding.", success)

		other := batch
		other.Queries = append([]codec.Query{}, batch.Queries...)
		other.Queries[1] = codec.Query{Transaction: coinTx(t, schema.Coin{Author: bob, Amount: 4, NextBalance: 4})}
		if err := v.ValidateBatches(sealed.Block, []codec.TypedQueryBatch{other}, query.Full); !errors.Is(err, query.ErrIncludesMismatch) {
			t.Fatalf("\t%s\tShould reject a replaced transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a replaced transaction.", success)

		if err := v.ValidateBatches(sealed.Block, nil, query.Full); !errors.Is(err, query.ErrBatchCount) {
			t.Fatalf("\t%s\tShould reject a missing batch: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a missing batch.", success)

		nft := batch
		nft.Type = schema.NFTHandle().ID
		if err := v.ValidateBatches(sealed.Block, []codec.TypedQueryBatch{nft}, query.Full); !errors.Is(err, query.ErrTypeMismatch) {
			t.Fatalf("\t%s\tShould reject a batch of another type: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a batch of another type.", success)
	}

	t.Log("Given the need to validate partial batches.")
	{
		part, err := query.PartialBatch(batch, 0, 2)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to reduce the batch: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to reduce the batch.", success)

		if err := v.ValidateBatches(sealed.Block, []codec.TypedQueryBatch{part}, query.Partial); err != nil {
			t.Fatalf("\t%s\tShould validate the partial batch: %s", failed, err)
		}
		t.Logf("\t%s\tShould validate the partial batch.", success)

		forged := part
		forged.Queries = append([]codec.Query{}, part.Queries...)
		forged.Queries[1].Transaction = txs[1]
		if err := v.ValidateBatches(sealed.Block, []codec.TypedQueryBatch{forged}, query.Partial); !errors.Is(err, query.ErrInclusionFailed) {
			t.Fatalf("\t%s\tShould reject a branch for another transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a branch for another transaction.", success)
	}

	t.Log("Given the need to commit validated batches.")
	{
		idx := index.New(memory.New(), nil, nil)
		if err := idx.StoreBlock(sealed.Hash, sealed.Encoded); err != nil {
			t.Fatalf("\t%s\tShould be able to store the block: %s", failed, err)
		}

		queries := codec.Queries{Hash: sealed.Hash, Index: sealed.Block.ID, Results: []codec.TypedQueryBatch{batch}}
		if err := v.ValidateQueries(ctx, idx, queries, query.Full); err != nil {
			t.Fatalf("\t%s\tShould validate the queries of a stored block: %s", failed, err)
		}
		t.Logf("\t%s\tShould validate the queries of a stored block.", success)

		if err := query.Commit(idx, schema.Default(), queries); err != nil {
			t.Fatalf("\t%s\tShould be able to commit the queries: %s", failed, err)
		}

		latest, err := idx.Latest(schema.LatestKey([][]byte{alice[:]}))
		if err != nil || string(latest.Transaction) != string(txs[2]) {
			t.Fatalf("\t%s\tShould index the last coin of the author: %v", failed, err)
		}
		t.Logf("\t%s\tShould index the last coin of the author.", success)

		if pl, err := idx.SmallPadding(sealed.Hash, h.ID); err != nil || len(pl) != len(batch.Padding) {
			t.Fatalf("\t%s\tShould keep the small padding: %v", failed, err)
		}
		t.Logf("\t%s\tShould keep the small padding.", success)

		if err := query.Revert(idx, schema.Default(), queries); err != nil {
			t.Fatalf("\t%s\tShould be able to revert the queries: %s", failed, err)
		}
		if _, err := idx.Latest(schema.LatestKey([][]byte{alice[:]})); !errors.Is(err, storage.ErrNotFound) {
			t.Fatalf("\t%s\tShould remove the coins from the index: %v", failed, err)
		}
		t.Logf("\t%s\tShould remove the coins from the index.", success)
	}
}

func Test_Content(t *testing.T) {
	v := query.Validator{Registry: schema.Default(), Evaluator: schema.Expressions{}}
	related := common.HexToHash("0x77")

	t.Log("Given the need to check the content of a batch.")
	{
		dup := codec.TypedQueryBatch{
			Type: schema.CoinHandle().ID,
			Queries: []codec.Query{
				{Transaction: coinTx(t, schema.Coin{Author: alice, Amount: 1, NextBalance: 1, Kind: schema.CoinTo, RelatedTo: &related})},
				{Transaction: coinTx(t, schema.Coin{Author: bob, Amount: 1, NextBalance: 1, Kind: schema.CoinTo, RelatedTo: &related})},
			},
		}
		if err := v.ValidateBatches(coinBlock(), []codec.TypedQueryBatch{dup}, query.Partial); !errors.Is(err, query.ErrDuplicateUnique) {
			t.Fatalf("\t%s\tShould reject two answers to the same transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject two answers to the same transaction.", success)

		negative := codec.TypedQueryBatch{
			Type:    schema.CoinHandle().ID,
			Queries: []codec.Query{{Transaction: coinTx(t, schema.Coin{Author: alice, Amount: 1, NextBalance: -1})}},
		}
		if err := v.ValidateBatches(coinBlock(), []codec.TypedQueryBatch{negative}, query.Partial); !errors.Is(err, schema.ErrRuleFailed) {
			t.Fatalf("\t%s\tShould reject a negative balance: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a negative balance.", success)

		foreign := codec.TypedQueryBatch{
			Type:    schema.CoinHandle().ID,
			Queries: []codec.Query{{Transaction: []byte{1}}},
		}
		if err := v.ValidateBatches(coinBlock(), []codec.TypedQueryBatch{foreign}, query.Partial); !errors.Is(err, codec.ErrMalformedRecord) {
			t.Fatalf("\t%s\tShould reject a malformed transaction: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a malformed transaction.", success)
	}
}
