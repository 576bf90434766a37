package selector

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// arrivalSelect returns the transactions in the order the pool received them.
var arrivalSelect = func(m map[common.Address][]Tx, howMany int) []Tx {
	var all []Tx
	for _, txs := range m {
		all = append(all, txs...)
	}
	sort.Sort(bySeq(all))

	if howMany == -1 || howMany > len(all) {
		howMany = len(all)
	}

	return all[:howMany]
}
