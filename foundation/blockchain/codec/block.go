package codec

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// MerkleRoots holds the two roots committed by a blob summary.
type MerkleRoots struct {
	Includes common.Hash // Root over the raw transactions of the type.
	Query    common.Hash // Root over the latest-keys touched in the block.
}

// BlobSummary is the per transaction type digest inside a main block.
type BlobSummary struct {
	Type       common.Hash
	Merkle     MerkleRoots
	Author     common.Address
	Difficulty Nonce
	Bloom      []byte
}

// Nonce implements the Minable interface.
func (b *BlobSummary) Nonce() Nonce { return b.Difficulty }

// SetNonce implements the Minable interface.
func (b *BlobSummary) SetNonce(n Nonce) { b.Difficulty = n }

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (b *BlobSummary) MarshalBinary() ([]byte, error) {
	var w writer
	b.write(&w)
	return w.result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (b *BlobSummary) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	b.read(r)
	return r.finish("blob summary")
}

func (b *BlobSummary) write(w *writer) {
	w.fixed(b.Type[:])
	w.fixed(b.Merkle.Includes[:])
	w.fixed(b.Merkle.Query[:])
	w.fixed(b.Author[:])
	w.fixed(b.Difficulty[:])
	w.bytes(b.Bloom)
}

func (b *BlobSummary) read(r *reader) {
	b.Type = r.hash("blob.type")
	b.Merkle.Includes = r.hash("blob.merkle.includes")
	b.Merkle.Query = r.hash("blob.merkle.query")
	b.Author = r.address("blob.author")
	b.Difficulty = r.nonce("blob.difficulty")
	b.Bloom = r.bytes("blob.bloom")
}

// =============================================================================

// Padding is a proof of work backed filler record bound to a context hash.
type Padding struct {
	Index      int64
	Hash       common.Hash
	Difficulty Nonce
}

// Nonce implements the Minable interface.
func (p *Padding) Nonce() Nonce { return p.Difficulty }

// SetNonce implements the Minable interface.
func (p *Padding) SetNonce(n Nonce) { p.Difficulty = n }

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (p *Padding) MarshalBinary() ([]byte, error) {
	var w writer
	p.write(&w)
	return w.result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (p *Padding) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	p.read(r)
	return r.finish("padding")
}

func (p *Padding) write(w *writer) {
	w.int64(p.Index)
	w.fixed(p.Hash[:])
	w.fixed(p.Difficulty[:])
}

func (p *Padding) read(r *reader) {
	p.Index = r.int64("padding.index")
	p.Hash = r.hash("padding.hash")
	p.Difficulty = r.nonce("padding.difficulty")
}

// PaddingList is the encoded form of a run of padding records.
type PaddingList []Padding

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (pl PaddingList) MarshalBinary() ([]byte, error) {
	var w writer
	writePadding(&w, pl)
	return w.result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (pl *PaddingList) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	*pl = readPadding(r, "padding list")
	return r.finish("padding list")
}

func writePadding(w *writer, pl []Padding) {
	w.count(len(pl))
	for i := range pl {
		pl[i].write(w)
	}
}

func readPadding(r *reader, field string) []Padding {
	n := r.length(field)
	if n == 0 {
		return nil
	}
	pl := make([]Padding, n)
	for i := range pl {
		pl[i].read(r)
	}
	return pl
}

// =============================================================================

// MainBlock is the unit of consensus. It is constructed by the assembler,
// immutable once mined and referenced by its Argon2id digest.
type MainBlock struct {
	ID         int64
	Timestamp  int64 // Milliseconds since epoch.
	PrevHash   common.Hash
	Author     common.Address
	Blobs      []BlobSummary
	Difficulty Nonce
	Padding    []Padding
	Limit      [LimitSize]byte // MAIN limit the block was mined under, big endian.
}

// Nonce implements the Minable interface.
func (b *MainBlock) Nonce() Nonce { return b.Difficulty }

// SetNonce implements the Minable interface.
func (b *MainBlock) SetNonce(n Nonce) { b.Difficulty = n }

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (b *MainBlock) MarshalBinary() ([]byte, error) {
	if len(b.Blobs) > NumberOfBlobs {
		return nil, fmt.Errorf("encode main block: %d blobs exceeds capacity %d", len(b.Blobs), NumberOfBlobs)
	}

	var w writer
	w.int64(b.ID)
	w.int64(b.Timestamp)
	w.fixed(b.PrevHash[:])
	w.fixed(b.Author[:])
	w.count(len(b.Blobs))
	for i := range b.Blobs {
		b.Blobs[i].write(&w)
	}
	w.fixed(b.Difficulty[:])
	writePadding(&w, b.Padding)
	w.fixed(b.Limit[:])

	return w.result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (b *MainBlock) UnmarshalBinary(data []byte) error {
	r := newReader(data)

	b.ID = r.int64("block.id")
	b.Timestamp = r.int64("block.timestamp")
	b.PrevHash = r.hash("block.prevHash")
	b.Author = r.address("block.author")

	n := r.length("block.blobs")
	if n > NumberOfBlobs {
		r.fail(fmt.Errorf("%w: %d blobs exceeds capacity %d", ErrMalformedRecord, n, NumberOfBlobs))
	}
	b.Blobs = nil
	if r.err == nil && n > 0 {
		b.Blobs = make([]BlobSummary, n)
		for i := range b.Blobs {
			b.Blobs[i].read(r)
		}
	}

	b.Difficulty = r.nonce("block.difficulty")
	b.Padding = readPadding(r, "block.padding")
	copy(b.Limit[:], r.take(LimitSize, "block.limit"))

	return r.finish("main block")
}

// Blob returns the summary for the specified type if the block carries one.
func (b *MainBlock) Blob(typeID common.Hash) (BlobSummary, bool) {
	for _, blob := range b.Blobs {
		if blob.Type == typeID {
			return blob, true
		}
	}
	return BlobSummary{}, false
}
