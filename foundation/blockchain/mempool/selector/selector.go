// Package selector provides different transaction selecting algorithms.
package selector

import (
	"fmt"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// List of different select strategies.
const (
	StrategyFair    = "fair"
	StrategyArrival = "arrival"
)

// Map of different select strategies with functions.
var strategies = map[string]Func{
	StrategyFair:    fairSelect,
	StrategyArrival: arrivalSelect,
}

// Tx is a pending message waiting to be committed in a typed batch.
type Tx struct {
	Type   common.Hash
	Author common.Address
	Seq    uint64 // Arrival order inside the pool.
	Data   []byte // Encoded message.
}

// Func defines a function that takes the pending transactions of one type
// grouped by author and selects howMany of them in an order based on the
// functions strategy. All selector functions MUST respect arrival ordering
// per author. Receiving -1 for howMany must return all the transactions in
// the strategies ordering.
type Func func(transactions map[common.Address][]Tx, howMany int) []Tx

// Retrieve returns the specified select strategy function.
func Retrieve(strategy string) (Func, error) {
	fn, exists := strategies[strategy]
	if !exists {
		return nil, fmt.Errorf("strategy %q does not exist", strategy)
	}
	return fn, nil
}

// =============================================================================

// bySeq provides sorting support by the arrival order of transactions.
type bySeq []Tx

// Len returns the number of transactions in the list.
func (bs bySeq) Len() int {
	return len(bs)
}

// Less helps to sort the list by arrival in ascending order.
func (bs bySeq) Less(i, j int) bool {
	return bs[i].Seq < bs[j].Seq
}

// Swap moves transactions in the order of arrival.
func (bs bySeq) Swap(i, j int) {
	bs[i], bs[j] = bs[j], bs[i]
}

// sortAuthors orders the pending transactions of every author by arrival.
func sortAuthors(m map[common.Address][]Tx) {
	for key := range m {
		if len(m[key]) > 1 {
			sort.Sort(bySeq(m[key]))
		}
	}
}
