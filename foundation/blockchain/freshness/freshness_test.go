package freshness_test

import (
	"context"
	"crypto/sha256"
	"errors"
	"math/big"
	"testing"

	"github.com/ardanlabs/powledger/foundation/blockchain/bloom"
	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/freshness"
	"github.com/ardanlabs/powledger/foundation/blockchain/index"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage/memory"
	"github.com/ethereum/go-ethereum/common"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func coinTx(t *testing.T, author common.Address, balance int64) []byte {
	t.Helper()

	h := schema.CoinHandle()
	data, err := h.Encode(&schema.Coin{Author: author, Amount: balance, NextBalance: balance, Kind: schema.CoinMint})
	if err != nil {
		t.Fatalf("Should be able to encode the coin: %s", err)
	}

	msg := codec.Message{From: author, To: h.Short(), Data: data}
	tx, err := msg.MarshalBinary()
	if err != nil {
		t.Fatalf("Should be able to encode the message: %s", err)
	}
	return tx
}

func keyOf(author common.Address) common.Hash {
	return schema.LatestKey([][]byte{author[:]})
}

// commit stores a block with one coin blob over the transactions. The bloom
// filter additionally holds the flagged keys.
func commit(t *testing.T, idx *index.Index, id int64, txs [][]byte, flagged ...common.Hash) {
	t.Helper()

	h := schema.CoinHandle()

	roots, _, err := chain.Roots(h, txs)
	if err != nil {
		t.Fatalf("Should be able to compute the roots: %s", err)
	}

	keys, err := chain.LatestKeys(h, txs)
	if err != nil {
		t.Fatalf("Should be able to extract the keys: %s", err)
	}
	for _, f := range flagged {
		keys = append(keys, f.Bytes())
	}

	filter, err := bloom.Build(keys)
	if err != nil {
		t.Fatalf("Should be able to build the filter: %s", err)
	}

	block := codec.MainBlock{
		ID:    id,
		Blobs: []codec.BlobSummary{{Type: h.ID, Merkle: roots, Bloom: filter}},
		Limit: codec.DefaultLimitBytes(),
	}
	encoded, err := block.MarshalBinary()
	if err != nil {
		t.Fatalf("Should be able to encode the block: %s", err)
	}

	hash := common.Hash(sha256.Sum256(encoded))
	if err := idx.StoreBlock(hash, encoded); err != nil {
		t.Fatalf("Should be able to store the block: %s", err)
	}
	if err := idx.PushItems(hash, id, h, txs); err != nil {
		t.Fatalf("Should be able to index the items: %s", err)
	}
}

// =============================================================================

func Test_Freshness(t *testing.T) {
	idx := index.New(memory.New(), nil, nil)
	prover := freshness.Prover{Index: idx, Registry: schema.Default()}
	typeID := schema.CoinHandle().ID

	alice := common.HexToAddress("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	bob := common.HexToAddress("0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76")
	key := keyOf(alice)

	commit(t, idx, 5, [][]byte{coinTx(t, alice, 10), coinTx(t, bob, 2)})
	commit(t, idx, 6, [][]byte{coinTx(t, common.HexToAddress("0x06"), 1)}, key)

	// Block 7 touches another author whose filter does not flag the key.
	for i := int64(700); ; i++ {
		txs := [][]byte{coinTx(t, common.BigToAddress(big.NewInt(i)), 1)}
		keys, _ := chain.LatestKeys(schema.CoinHandle(), txs)
		filter, _ := bloom.Build(keys)
		if ok, _ := bloom.MayContain(filter, key[:]); !ok {
			commit(t, idx, 7, txs)
			break
		}
	}

	commit(t, idx, 8, [][]byte{coinTx(t, common.HexToAddress("0x08"), 1), coinTx(t, bob, 1)}, key)
	last := coinTx(t, alice, 12)
	commit(t, idx, 9, [][]byte{last})

	t.Log("Given the need to prove a key was not updated between two blocks.")
	{
		gotKey, rec, err := prover.Latest(last)
		if err != nil || gotKey != key || rec.BlockIndex != 9 {
			t.Fatalf("\t%s\tShould resolve the latest item of the key: %v", failed, err)
		}
		t.Logf("\t%s\tShould resolve the latest item of the key.", success)

		proof, err := prover.Create(context.Background(), key, typeID, 5, 9)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the proof: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to create the proof.", success)

		if len(proof.Negatives) != 2 || proof.Negatives[0].Block != 6 || proof.Negatives[1].Block != 8 {
			t.Fatalf("\t%s\tShould carry negative proofs for blocks 6 and 8 only: %+v", failed, proof.Negatives)
		}
		t.Logf("\t%s\tShould carry negative proofs for blocks 6 and 8 only.", success)

		if err := prover.Verify(context.Background(), key, typeID, proof, 9); err != nil {
			t.Fatalf("\t%s\tShould verify the proof: %s", failed, err)
		}
		t.Logf("\t%s\tShould verify the proof.", success)

		data, err := proof.MarshalBinary()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to encode the proof: %s", failed, err)
		}
		decoded, err := codec.Decode[codec.FreshnessProof](data)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to decode the proof: %s", failed, err)
		}
		if err := prover.Verify(context.Background(), key, typeID, decoded, 9); err != nil {
			t.Fatalf("\t%s\tShould verify the decoded proof: %s", failed, err)
		}
		t.Logf("\t%s\tShould verify the decoded proof.", success)
	}

	t.Log("Given the need to reject tampered proofs.")
	{
		proof, err := prover.Create(context.Background(), key, typeID, 5, 9)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to create the proof: %s", failed, err)
		}

		swapped := proof
		swapped.Negatives = []codec.BlockNegative{proof.Negatives[1], proof.Negatives[0]}
		var pe *freshness.ProofError
		if err := prover.Verify(context.Background(), key, typeID, swapped, 9); !errors.As(err, &pe) || pe.Block != 6 || !errors.Is(err, freshness.ErrNonInclusionFailed) {
			t.Fatalf("\t%s\tShould reject swapped negative proofs: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject swapped negative proofs.", success)

		relabeled := proof
		relabeled.Negatives = []codec.BlockNegative{
			{Block: 6, Proof: proof.Negatives[1].Proof},
			{Block: 8, Proof: proof.Negatives[0].Proof},
		}
		if err := prover.Verify(context.Background(), key, typeID, relabeled, 9); !errors.Is(err, freshness.ErrNonInclusionFailed) {
			t.Fatalf("\t%s\tShould reject a proof against the wrong block: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a proof against the wrong block.", success)

		missing := proof
		missing.Negatives = proof.Negatives[:1]
		if err := prover.Verify(context.Background(), key, typeID, missing, 9); !errors.As(err, &pe) || pe.Block != 8 {
			t.Fatalf("\t%s\tShould name the unanswered block: %v", failed, err)
		}
		t.Logf("\t%s\tShould name the unanswered block.", success)

		if err := prover.Verify(context.Background(), keyOf(bob), typeID, proof, 9); err == nil {
			t.Fatalf("\t%s\tShould reject the proof for another key.", failed)
		}
		t.Logf("\t%s\tShould reject the proof for another key.", success)

		if err := prover.Verify(context.Background(), key, typeID, proof, 8); !errors.Is(err, freshness.ErrNonInclusionFailed) {
			t.Fatalf("\t%s\tShould reject a proof with a negative beyond the range: %v", failed, err)
		}
		t.Logf("\t%s\tShould reject a proof with a negative beyond the range.", success)
	}

	t.Log("Given the need to refuse proofs for superseded keys.")
	{
		if _, err := prover.Create(context.Background(), keyOf(bob), typeID, 5, 9); !errors.Is(err, freshness.ErrSuperseded) {
			t.Fatalf("\t%s\tShould report the key was updated inside the range: %v", failed, err)
		}
		t.Logf("\t%s\tShould report the key was updated inside the range.", success)
	}
}
