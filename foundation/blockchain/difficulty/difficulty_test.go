package difficulty_test

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage/memory"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_Retarget(t *testing.T) {
	type table struct {
		name       string
		limit      int64
		timestamps []int64
		exp        int64
	}

	tt := []table{
		{name: "on-time", limit: 1000, timestamps: []int64{0, 60_000, 120_000}, exp: 1000},
		{name: "fast-raises", limit: 1000, timestamps: []int64{0, 30_000}, exp: 2000},
		{name: "slow-lowers", limit: 1000, timestamps: []int64{0, 120_000}, exp: 500},
		{name: "average", limit: 1000, timestamps: []int64{0, 30_000, 150_000}, exp: 1250},
		{name: "half-up", limit: 5, timestamps: []int64{0, 120_000}, exp: 3},
		{name: "half-up-small", limit: 1, timestamps: []int64{0, 40_000}, exp: 2},
		{name: "thirds", limit: 3, timestamps: []int64{0, 180_000}, exp: 1},
		{name: "floor", limit: 1, timestamps: []int64{0, 600_000}, exp: 1},
	}

	t.Log("Given the need to retarget the MAIN limit from block times.")
	{
		for testID, tst := range tt {
			f := func(t *testing.T) {
				got, err := difficulty.Retarget(big.NewInt(tst.limit), tst.timestamps)
				if err != nil {
					t.Fatalf("\t%s\tTest %d:\tShould be able to retarget: %s", failed, testID, err)
				}

				if got.Cmp(big.NewInt(tst.exp)) != 0 {
					t.Fatalf("\t%s\tTest %d:\tShould get %d, got %s", failed, testID, tst.exp, got)
				}
				t.Logf("\t%s\tTest %d:\tShould get %d.", success, testID, tst.exp)
			}

			t.Run(tst.name, f)
		}
	}
}

func Test_RetargetLargeLimit(t *testing.T) {
	half := new(big.Int).Rsh(codec.DefaultLimit, 1)

	got, err := difficulty.Retarget(half, []int64{0, 120_000})
	if err != nil {
		t.Fatalf("Should be able to retarget a 255 bit limit: %s", err)
	}

	exp := new(big.Int).Rsh(codec.DefaultLimit, 2)
	exp.Add(exp, big.NewInt(1))
	if got.Cmp(exp) != 0 {
		t.Fatalf("Should halve without drift, got %s exp %s", got, exp)
	}

	got, err = difficulty.Retarget(codec.DefaultLimit, []int64{0, 1_000})
	if err != nil {
		t.Fatalf("Should be able to retarget: %s", err)
	}
	if got.Cmp(codec.DefaultLimit) != 0 {
		t.Fatalf("Should clamp to the widest limit, got %s", got)
	}
}

func Test_RetargetWindow(t *testing.T) {
	for _, ts := range [][]int64{nil, {5}, {10, 10}, {10, 5}} {
		if _, err := difficulty.Retarget(big.NewInt(10), ts); !errors.Is(err, difficulty.ErrRetargetWindow) {
			t.Fatalf("Should reject timestamps %v: %v", ts, err)
		}
	}
}

func Test_Threshold(t *testing.T) {
	exp := map[difficulty.Category]int64{
		difficulty.Main:         100,
		difficulty.PaddingBig:   200,
		difficulty.Side:         400,
		difficulty.PaddingSmall: 800,
		difficulty.Transaction:  1600,
	}

	for _, c := range difficulty.Categories {
		if got := difficulty.Threshold(big.NewInt(100), c); got.Cmp(big.NewInt(exp[c])) != 0 {
			t.Fatalf("Should scale %s by its coefficient, got %s", c, got)
		}

		parsed, err := difficulty.ParseCategory(c.String())
		if err != nil || parsed != c {
			t.Fatalf("Should parse the name of %s back.", c)
		}
	}

	limit, _ := codec.LimitToBytes(big.NewInt(7))
	block := codec.MainBlock{Limit: limit}
	if got := difficulty.LimitFromBlock(block, difficulty.Side); got.Int64() != 28 {
		t.Fatalf("Should derive the threshold from the block limit, got %s", got)
	}
}

func Test_Controller(t *testing.T) {
	ctrl := difficulty.NewController(memory.New())

	t.Log("Given the need to persist the MAIN limit.")
	{
		limit, err := ctrl.Limit()
		if err != nil || limit.Cmp(codec.DefaultLimit) != 0 {
			t.Fatalf("\t%s\tShould start from the default limit: %v", failed, err)
		}
		t.Logf("\t%s\tShould start from the default limit.", success)

		if err := ctrl.SetLimit(big.NewInt(1000)); err != nil {
			t.Fatalf("\t%s\tShould be able to store a limit: %s", failed, err)
		}

		th, err := ctrl.Threshold(difficulty.Transaction)
		if err != nil || th.Int64() != 16_000 {
			t.Fatalf("\t%s\tShould derive thresholds from the stored limit: %v %v", failed, th, err)
		}
		t.Logf("\t%s\tShould derive thresholds from the stored limit.", success)

		next, err := ctrl.ApplyRetarget([]int64{0, 120_000})
		if err != nil || next.Int64() != 500 {
			t.Fatalf("\t%s\tShould retarget and store the limit: %v %v", failed, next, err)
		}

		b, err := ctrl.LimitBytes()
		if err != nil || codec.LimitFromBytes(b).Int64() != 500 {
			t.Fatalf("\t%s\tShould return the stored limit as block bytes.", failed)
		}
		t.Logf("\t%s\tShould retarget and store the limit.", success)

		if err := ctrl.SetLimit(new(big.Int).Lsh(codec.DefaultLimit, 1)); !errors.Is(err, codec.ErrLimitOverflow) {
			t.Fatalf("\t%s\tShould refuse a limit wider than 32 bytes: %v", failed, err)
		}
		t.Logf("\t%s\tShould refuse a limit wider than 32 bytes.", success)
	}
}

func Test_Schedule(t *testing.T) {
	t.Log("Given the need to derive the MAIN limit every block must carry.")
	{
		// Genesis time is far in the past and must not count.
		timestamps := []int64{-1_000_000, 1_000, 31_000, 151_000, 181_000}

		limits, err := difficulty.Schedule(big.NewInt(1000), 3, timestamps)
		if err != nil {
			t.Fatalf("\t%s\tShould be able to build the schedule: %s", failed, err)
		}
		t.Logf("\t%s\tShould be able to build the schedule.", success)

		exp := []int64{1000, 1000, 1000, 2000, 2500}
		if len(limits) != len(exp) {
			t.Fatalf("\t%s\tShould get %d limits, got %d", failed, len(exp), len(limits))
		}
		for i := range exp {
			if limits[i].Cmp(big.NewInt(exp[i])) != 0 {
				t.Fatalf("\t%s\tShould get limit %d for block %d, got %s", failed, exp[i], i, limits[i])
			}
		}
		t.Logf("\t%s\tShould keep the genesis limit until two blocks follow genesis.", success)

		next, err := difficulty.Next(limits[3], 3, timestamps[:4])
		if err != nil {
			t.Fatalf("\t%s\tShould be able to get the next limit: %s", failed, err)
		}
		if next.Cmp(limits[4]) != 0 {
			t.Fatalf("\t%s\tShould agree with the schedule, got %s exp %s", failed, next, limits[4])
		}
		t.Logf("\t%s\tShould agree with the schedule.", success)

		if got := difficulty.WindowStart(10, 3); got != 8 {
			t.Fatalf("\t%s\tShould start the window at 8, got %d", failed, got)
		}
		if got := difficulty.WindowStart(2, 10); got != 1 {
			t.Fatalf("\t%s\tShould never start the window at genesis, got %d", failed, got)
		}
		t.Logf("\t%s\tShould never start the window at genesis.", success)
	}
}
