package selector

import (
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// fairSelect takes one transaction per author per round so a busy author
// cannot fill a batch while others wait. Inside a round the earliest
// arrivals go first.
var fairSelect = func(m map[common.Address][]Tx, howMany int) []Tx {

	/*
		Bill: {Seq: 4}, {Seq: 1}
		Pavl: {Seq: 2}, {Seq: 5}
		Edua: {Seq: 3}
	*/

	sortAuthors(m)

	// Pick the first transaction in the slice for each author. Each iteration
	// represents a new row of selections. Keep doing that until all the
	// transactions have been selected.
	var rows [][]Tx
	for {
		var row []Tx
		for key := range m {
			if len(m[key]) > 0 {
				row = append(row, m[key][0])
				m[key] = m[key][1:]
			}
		}
		if row == nil {
			break
		}
		sort.Sort(bySeq(row))
		rows = append(rows, row)
	}

	/*
		0: Bill: {Seq: 1}, Pavl: {Seq: 2}, Edua: {Seq: 3}
		1: Bill: {Seq: 4}, Pavl: {Seq: 5}
	*/

	if howMany == -1 {
		howMany = 0
		for _, row := range rows {
			howMany += len(row)
		}
	}

	final := []Tx{}
done:
	for _, row := range rows {
		need := howMany - len(final)
		if len(row) >= need {
			final = append(final, row[:need]...)
			break done
		}
		final = append(final, row...)
	}

	return final
}
