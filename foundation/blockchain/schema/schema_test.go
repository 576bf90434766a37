package schema_test

import (
	"errors"
	"testing"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/ethereum/go-ethereum/common"
	"github.com/google/go-cmp/cmp"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func message(t *testing.T, h schema.Handle, item schema.Item) []byte {
	t.Helper()

	data, err := h.Encode(item)
	if err != nil {
		t.Fatalf("Should be able to encode the item: %s", err)
	}

	msg := codec.Message{From: common.HexToAddress("0x01"), To: h.Short(), Data: data}
	tx, err := msg.MarshalBinary()
	if err != nil {
		t.Fatalf("Should be able to encode the message: %s", err)
	}
	return tx
}

// =============================================================================

func Test_Registry(t *testing.T) {
	reg := schema.Default()

	t.Log("Given the need to resolve registered types.")
	{
		coin, err := reg.Resolve(schema.TypeID("COIN"))
		if err != nil || coin.Name != "COIN" {
			t.Fatalf("\t%s\tShould resolve the coin type: %v", failed, err)
		}
		t.Logf("\t%s\tShould resolve the coin type.", success)

		nft, err := reg.ResolveShort(schema.ShortID(schema.TypeID("NFT")))
		if err != nil || nft.Name != "NFT" {
			t.Fatalf("\t%s\tShould resolve the nft type by short id: %v", failed, err)
		}
		t.Logf("\t%s\tShould resolve the nft type by short id.", success)

		if _, err := reg.Resolve(common.HexToHash("0x01")); !errors.Is(err, schema.ErrUnknownType) {
			t.Fatalf("\t%s\tShould report an unknown type: %v", failed, err)
		}
		t.Logf("\t%s\tShould report an unknown type.", success)

		if hs := reg.Handles(); len(hs) != 2 || hs[0].Name != "COIN" {
			t.Fatalf("\t%s\tShould list the handles by name.", failed)
		}
		t.Logf("\t%s\tShould list the handles by name.", success)
	}
}

func Test_CoinKeys(t *testing.T) {
	h := schema.CoinHandle()
	author := common.HexToAddress("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	related := common.HexToHash("0x77")

	first := message(t, h, &schema.Coin{Author: author, Amount: 5, NextBalance: 5, Kind: schema.CoinMint})
	second := message(t, h, &schema.Coin{Author: author, Amount: 2, NextBalance: 3, Kind: schema.CoinFrom, RelatedTo: &related})

	k1, err := h.QueryKey(first)
	if err != nil {
		t.Fatalf("Should be able to extract the query key: %s", err)
	}
	k2, err := h.QueryKey(second)
	if err != nil {
		t.Fatalf("Should be able to extract the query key: %s", err)
	}
	if k1 != k2 || k1 != schema.LatestKey([][]byte{author[:]}) {
		t.Fatalf("Should key coins by author.")
	}

	unique, err := h.UniqueKeys(second)
	if err != nil || len(unique) != 1 || common.BytesToHash(unique[0]) != related {
		t.Fatalf("Should use the related transaction as unique key.")
	}

	_, item, err := h.Message(second)
	if err != nil {
		t.Fatalf("Should be able to decode the message: %s", err)
	}
	if diff := cmp.Diff(&schema.Coin{Author: author, Amount: 2, NextBalance: 3, Kind: schema.CoinFrom, RelatedTo: &related}, item); diff != "" {
		t.Fatalf("Should get back the same coin, diff:\n%s", diff)
	}

	if _, _, err := schema.NFTHandle().Message(second); !errors.Is(err, schema.ErrTypeMismatch) {
		t.Fatalf("Should refuse a message addressed to another type: %v", err)
	}
}

func Test_NFTKeys(t *testing.T) {
	h := schema.NFTHandle()
	token := schema.NFT{Series: common.HexToHash("0x0a"), Identity: common.HexToHash("0x0b"), To: common.HexToAddress("0x02"), Kind: schema.NFTTransfer}

	key, err := h.QueryKey(message(t, h, &token))
	if err != nil {
		t.Fatalf("Should be able to extract the query key: %s", err)
	}
	if key != schema.LatestKey([][]byte{token.Series[:], token.Identity[:]}) {
		t.Fatalf("Should key nfts by series and identity.")
	}

	if _, err := h.Decode([]byte{1, 2}); !errors.Is(err, codec.ErrMalformedRecord) {
		t.Fatalf("Should report a malformed payload: %v", err)
	}

	bad, _ := token.MarshalBinary()
	bad[len(bad)-1] = 9
	if _, err := h.Decode(bad); !errors.Is(err, codec.ErrMalformedRecord) {
		t.Fatalf("Should report an invalid kind: %v", err)
	}
}

func Test_Rules(t *testing.T) {
	h := schema.CoinHandle()
	var ev schema.Expressions

	if err := h.Evaluate(ev, &schema.Coin{Amount: 5, NextBalance: 1}); err != nil {
		t.Fatalf("Should accept a coin with positive values: %s", err)
	}

	if err := h.Evaluate(ev, &schema.Coin{Amount: -1}); !errors.Is(err, schema.ErrRuleFailed) {
		t.Fatalf("Should reject a negative amount: %v", err)
	}

	ok, err := ev.Evaluate(`to == "0x0000000000000000000000000000000000000002"`, (&schema.Coin{To: common.HexToAddress("0x02")}).Fields())
	if err != nil || !ok {
		t.Fatalf("Should compare string fields: %v", err)
	}

	if _, err := ev.Evaluate("missing > 1", map[string]any{}); err == nil {
		t.Fatalf("Should report an unknown field.")
	}

	fields := (&schema.Coin{Amount: 5, NextBalance: 3}).Fields()

	ok, err = ev.Evaluate("amount >= 0 && nextBalance < amount", fields)
	if err != nil || !ok {
		t.Fatalf("Should combine comparisons: %v", err)
	}

	ok, err = ev.Evaluate("amount in [1, 2, 3] || nextBalance > 10", fields)
	if err != nil || ok {
		t.Fatalf("Should evaluate a false rule: %v", err)
	}

	if _, err := ev.Evaluate("amount + 1", fields); err == nil {
		t.Fatalf("Should reject a rule that is not a boolean.")
	}

	if _, err := ev.Evaluate("amount >=", fields); err == nil {
		t.Fatalf("Should reject a malformed rule.")
	}

	ok, err = ev.Evaluate("amount >= 0", (&schema.Coin{Amount: -2}).Fields())
	if err != nil || ok {
		t.Fatalf("Should run a cached rule against new values: %v", err)
	}
}

func Test_ParseTypeID(t *testing.T) {
	h := schema.CoinHandle()

	t.Log("Given the need to name a type in a request.")
	{
		if got := schema.ParseTypeID(h.Name); got != h.ID {
			t.Fatalf("\t%s\tShould resolve the type by name: %s", failed, got)
		}
		t.Logf("\t%s\tShould resolve the type by name.", success)

		if got := schema.ParseTypeID(h.ID.Hex()); got != h.ID {
			t.Fatalf("\t%s\tShould resolve the type by hex id: %s", failed, got)
		}
		t.Logf("\t%s\tShould resolve the type by hex id.", success)
	}
}
