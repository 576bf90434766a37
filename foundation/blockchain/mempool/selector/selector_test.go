package selector_test

import (
	"testing"

	"github.com/ardanlabs/powledger/foundation/blockchain/mempool/selector"
	"github.com/ethereum/go-ethereum/common"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

var (
	bill  = common.HexToAddress("0xF01813E4B85e178A83e29B8E7bF26BD830a25f32")
	pavel = common.HexToAddress("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")
	ed    = common.HexToAddress("0xbEE6ACE826eC3DE1B6349888B9151B92522F7F76")
)

func pending() map[common.Address][]selector.Tx {
	return map[common.Address][]selector.Tx{
		bill:  {{Author: bill, Seq: 4}, {Author: bill, Seq: 1}, {Author: bill, Seq: 6}},
		pavel: {{Author: pavel, Seq: 2}, {Author: pavel, Seq: 5}},
		ed:    {{Author: ed, Seq: 3}},
	}
}

func seqs(txs []selector.Tx) []uint64 {
	out := make([]uint64, len(txs))
	for i, tx := range txs {
		out[i] = tx.Seq
	}
	return out
}

func equal(a, b []uint64) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func Test_Select(t *testing.T) {
	type table struct {
		name     string
		strategy string
		howMany  int
		exp      []uint64
	}

	tt := []table{
		{name: "fair-all", strategy: selector.StrategyFair, howMany: -1, exp: []uint64{1, 2, 3, 4, 5, 6}},
		{name: "fair-two", strategy: selector.StrategyFair, howMany: 2, exp: []uint64{1, 2}},
		{name: "fair-row", strategy: selector.StrategyFair, howMany: 4, exp: []uint64{1, 2, 3, 4}},
		{name: "arrival-all", strategy: selector.StrategyArrival, howMany: -1, exp: []uint64{1, 2, 3, 4, 5, 6}},
		{name: "arrival-more", strategy: selector.StrategyArrival, howMany: 10, exp: []uint64{1, 2, 3, 4, 5, 6}},
	}

	t.Log("Given the need to select pending transactions.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				fn, err := selector.Retrieve(tst.strategy)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to retrieve the strategy: %s", failed, testID, err)
				}

				got := seqs(fn(pending(), tst.howMany))
				if !equal(got, tst.exp) {
					t.Logf("\t\tTest %d:\tgot: %v", testID, got)
					t.Logf("\t\tTest %d:\texp: %v", testID, tst.exp)
					t.Fatalf("\t%s\tTest %d:\tShould get back the right order.", failed, testID)
				}
				t.Logf("\t%s\tTest %d:\tShould get back the right order.", success, testID)
			}

			t.Run(tst.name, f)
		}

		if _, err := selector.Retrieve("tip"); err == nil {
			t.Fatalf("\t%s\tShould reject an unknown strategy.", failed)
		}
		t.Logf("\t%s\tShould reject an unknown strategy.", success)
	}
}

func Test_FairRounds(t *testing.T) {
	t.Log("Given the need to keep a busy author from filling a batch.")
	{
		m := map[common.Address][]selector.Tx{
			bill:  {{Author: bill, Seq: 1}, {Author: bill, Seq: 2}, {Author: bill, Seq: 3}},
			pavel: {{Author: pavel, Seq: 9}},
		}

		fn, _ := selector.Retrieve(selector.StrategyFair)
		if got := seqs(fn(m, 2)); !equal(got, []uint64{1, 9}) {
			t.Fatalf("\t%s\tShould take one transaction per author first: %v", failed, got)
		}
		t.Logf("\t%s\tShould take one transaction per author first.", success)
	}
}
