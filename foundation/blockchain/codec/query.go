package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Message is a signed transaction envelope. The payload in Data is encoded
// with the schema registered for the type whose short id is To.
type Message struct {
	From       common.Address
	To         common.Address
	Data       []byte
	Note       []byte
	Difficulty Nonce
}

// Nonce implements the Minable interface.
func (m *Message) Nonce() Nonce { return m.Difficulty }

// SetNonce implements the Minable interface.
func (m *Message) SetNonce(n Nonce) { m.Difficulty = n }

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (m *Message) MarshalBinary() ([]byte, error) {
	var w writer
	w.fixed(m.From[:])
	w.fixed(m.To[:])
	w.bytes(m.Data)
	w.bytes(m.Note)
	w.fixed(m.Difficulty[:])
	return w.result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (m *Message) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	m.From = r.address("message.from")
	m.To = r.address("message.to")
	m.Data = r.bytes("message.data")
	m.Note = r.bytes("message.note")
	m.Difficulty = r.nonce("message.difficulty")
	return r.finish("message")
}

// =============================================================================

// Query is one transaction inside a typed batch plus, for partial
// verification, the inclusion branch of its hash under the blob's includes
// root.
type Query struct {
	Transaction []byte
	Proof       Branch
}

func (q *Query) write(w *writer) {
	w.bytes(q.Transaction)
	q.Proof.write(w)
}

func (q *Query) read(r *reader) {
	q.Transaction = r.bytes("query.transaction")
	q.Proof.read(r, "query.proof")
}

// TypedQueryBatch carries the transactions of one type destined for one
// block together with the small padding run filling the type's capacity.
type TypedQueryBatch struct {
	Type    common.Hash
	Author  common.Address
	Queries []Query
	Padding []Padding
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (t *TypedQueryBatch) MarshalBinary() ([]byte, error) {
	var w writer
	if err := t.write(&w); err != nil {
		return nil, err
	}
	return w.result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (t *TypedQueryBatch) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	t.read(r)
	return r.finish("typed query batch")
}

// Transactions returns the raw transactions of the batch in order.
func (t *TypedQueryBatch) Transactions() [][]byte {
	txs := make([][]byte, len(t.Queries))
	for i, q := range t.Queries {
		txs[i] = q.Transaction
	}
	return txs
}

func (t *TypedQueryBatch) write(w *writer) error {
	if len(t.Queries) > NumberOfTransactions {
		return fmt.Errorf("encode typed batch: %d transactions exceeds capacity %d", len(t.Queries), NumberOfTransactions)
	}

	w.fixed(t.Type[:])
	w.fixed(t.Author[:])
	w.count(len(t.Queries))
	for i := range t.Queries {
		t.Queries[i].write(w)
	}
	writePadding(w, t.Padding)
	return nil
}

func (t *TypedQueryBatch) read(r *reader) {
	t.Type = r.hash("batch.type")
	t.Author = r.address("batch.author")
	n := r.length("batch.queries")
	if n > NumberOfTransactions {
		r.fail(fmt.Errorf("%w: %d transactions exceeds capacity %d", ErrMalformedRecord, n, NumberOfTransactions))
	}
	t.Queries = nil
	if r.err == nil && n > 0 {
		t.Queries = make([]Query, n)
		for i := range t.Queries {
			t.Queries[i].read(r)
		}
	}
	t.Padding = readPadding(r, "batch.padding")
}

// Queries is the set of typed batches committed by the block with the
// specified hash and index.
type Queries struct {
	Hash    common.Hash
	Index   int64
	Results []TypedQueryBatch
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (q *Queries) MarshalBinary() ([]byte, error) {
	var w writer
	w.fixed(q.Hash[:])
	w.int64(q.Index)
	w.count(len(q.Results))
	for i := range q.Results {
		if err := q.Results[i].write(&w); err != nil {
			return nil, err
		}
	}
	return w.result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (q *Queries) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	q.Hash = r.hash("queries.hash")
	q.Index = r.int64("queries.index")
	n := r.length("queries.results")
	if n > NumberOfBlobs {
		r.fail(fmt.Errorf("%w: %d batches exceeds capacity %d", ErrMalformedRecord, n, NumberOfBlobs))
	}
	q.Results = nil
	if r.err == nil && n > 0 {
		q.Results = make([]TypedQueryBatch, n)
		for i := range q.Results {
			q.Results[i].read(r)
		}
	}
	return r.finish("queries")
}

// =============================================================================

// ItemRecord is a committed transaction together with the block that
// committed it. It is what the latest index stores per item.
type ItemRecord struct {
	BlockHash   common.Hash
	BlockIndex  int64
	Transaction []byte
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (it *ItemRecord) MarshalBinary() ([]byte, error) {
	var w writer
	w.fixed(it.BlockHash[:])
	w.int64(it.BlockIndex)
	w.bytes(it.Transaction)
	return w.result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (it *ItemRecord) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	it.BlockHash = r.hash("item.blockHash")
	it.BlockIndex = r.int64("item.blockIndex")
	it.Transaction = r.bytes("item.transaction")
	return r.finish("item")
}
