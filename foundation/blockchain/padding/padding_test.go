package padding_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powledger/foundation/blockchain/padding"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
	"github.com/ethereum/go-ethereum/common"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_CreateVerify(t *testing.T) {
	bound := common.HexToHash("0x1234")
	miner := pow.Miner{Workers: 1, Label: difficulty.PaddingBig.String()}

	records, err := padding.Create(context.Background(), miner, codec.DefaultLimit, bound, 3, difficulty.PaddingBig)
	if err != nil {
		t.Fatalf("Should be able to create padding: %s", err)
	}

	clone := func() []codec.Padding {
		return append([]codec.Padding(nil), records...)
	}

	type table struct {
		name    string
		records func() []codec.Padding
		limit   *big.Int
		hash    common.Hash
		count   int
		cat     difficulty.Category
		err     error
	}

	tt := []table{
		{name: "valid", records: clone, limit: codec.DefaultLimit, hash: bound, count: 3, cat: difficulty.PaddingBig},
		{name: "count", records: clone, limit: codec.DefaultLimit, hash: bound, count: 2, cat: difficulty.PaddingBig, err: padding.ErrWrongPaddingCount},
		{name: "bound", records: clone, limit: codec.DefaultLimit, hash: common.HexToHash("0x99"), count: 3, cat: difficulty.PaddingBig, err: padding.ErrMalformedPadding},
		{name: "index", records: func() []codec.Padding {
			r := clone()
			r[0], r[1] = r[1], r[0]
			return r
		}, limit: codec.DefaultLimit, hash: bound, count: 3, cat: difficulty.PaddingBig, err: padding.ErrMalformedPadding},
		{name: "difficulty", records: clone, limit: big.NewInt(1), hash: bound, count: 3, cat: difficulty.PaddingBig, err: pow.ErrInvalidDifficulty},
		{name: "category", records: clone, limit: codec.DefaultLimit, hash: bound, count: 3, cat: difficulty.Main, err: padding.ErrCategory},
	}

	t.Log("Given the need to check padding records.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				err := padding.Verify(tst.limit, tst.hash, tst.count, tst.records(), tst.cat)

				switch {
				case tst.err == nil && err != nil:
					t.Fatalf("\t%s\tTest %d:\tShould accept the padding: %s", failed, testID, err)
				case tst.err != nil && !errors.Is(err, tst.err):
					t.Fatalf("\t%s\tTest %d:\tShould fail with %v, got %v", failed, testID, tst.err, err)
				}
				t.Logf("\t%s\tTest %d:\tShould get the expected result.", success, testID)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_Counts(t *testing.T) {
	if got := padding.BigCount(7); got != 1 {
		t.Fatalf("Should need 1 big padding record for 7 blobs, got %d", got)
	}
	if got := padding.BigCount(10); got != 0 {
		t.Fatalf("Should need no big padding for a full block, got %d", got)
	}
	if got := padding.BigCount(0); got != 2 {
		t.Fatalf("Should need 2 big padding records for an empty block, got %d", got)
	}
	if got := padding.BigCount(5); got != 1 {
		t.Fatalf("Should need 1 big padding record for 5 blobs, got %d", got)
	}
	if got := padding.SmallCount(260); got != 2 {
		t.Fatalf("Should need 2 small padding records for 260 transactions, got %d", got)
	}
	if got := padding.SmallCount(1); got != 15 {
		t.Fatalf("Should need 15 small padding records for 1 transaction, got %d", got)
	}
	for blobs := 0; blobs <= 10; blobs++ {
		if !padding.Filled(10, blobs, padding.BigCount(blobs), 5) {
			t.Fatalf("Should fill a block with %d blobs.", blobs)
		}
	}
	if got := padding.SmallCount(301); got != 0 {
		t.Fatalf("Should never need negative padding, got %d", got)
	}
}

func Test_CreateCategory(t *testing.T) {
	_, err := padding.Create(context.Background(), pow.Miner{}, codec.DefaultLimit, common.Hash{}, 1, difficulty.Side)
	if !errors.Is(err, padding.ErrCategory) {
		t.Fatalf("Should refuse to mine padding under SIDE: %v", err)
	}
}
