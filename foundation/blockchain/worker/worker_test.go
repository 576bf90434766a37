package worker_test

import (
	"testing"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/ardanlabs/powledger/foundation/blockchain/state"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage/memory"
	"github.com/ardanlabs/powledger/foundation/blockchain/worker"
	"github.com/ethereum/go-ethereum/common"
)

// Success and failure markers.
const (
	success = "✓"
	failed  = "✗"
)

func Test_MineOnSubmit(t *testing.T) {
	author := common.HexToAddress("0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4")

	gen := genesis.Default()
	gen.Workers = 1

	st, err := state.New(state.Config{
		Author:    author,
		Host:      "0.0.0.0:9080",
		Genesis:   gen,
		Store:     memory.New(),
		Evaluator: schema.Expressions{},
		EvHandler: func(v string, args ...any) { t.Logf(v, args...) },
	})
	if err != nil {
		t.Fatalf("Should be able to construct the node: %s", err)
	}

	t.Log("Given the need to mine the messages submitted to a node.")
	{
		w := worker.Run(st, func(v string, args ...any) { t.Logf(v, args...) })
		defer w.Shutdown()
		t.Logf("\t%s\tShould be able to start the worker.", success)

		h := schema.CoinHandle()
		data, err := h.Encode(&schema.Coin{Author: author, Amount: 5, NextBalance: 5, Kind: schema.CoinMint})
		if err != nil {
			t.Fatalf("\t%s\tShould be able to encode the coin: %s", failed, err)
		}
		msg := codec.Message{From: author, To: h.Short(), Data: data}
		tx, err := msg.MarshalBinary()
		if err != nil {
			t.Fatalf("\t%s\tShould be able to encode the message: %s", failed, err)
		}

		if err := st.SubmitMessage(tx); err != nil {
			t.Fatalf("\t%s\tShould accept the message: %s", failed, err)
		}
		t.Logf("\t%s\tShould accept the message.", success)

		deadline := time.Now().Add(codec.GiveUpHashing)
		for {
			ps, err := st.Status()
			if err != nil {
				t.Fatalf("\t%s\tShould be able to read the status: %s", failed, err)
			}
			if ps.LatestBlockID == 1 && st.QueryMempoolLength() == 0 {
				break
			}
			if time.Now().After(deadline) {
				t.Fatalf("\t%s\tShould mine a block for the message: latest[%d]", failed, ps.LatestBlockID)
			}
			time.Sleep(100 * time.Millisecond)
		}
		t.Logf("\t%s\tShould mine a block for the message.", success)
	}
}
