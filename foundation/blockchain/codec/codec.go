// Package codec provides the fixed layout binary encoding for every record
// that is hashed, mined or exchanged by the blockchain. Field order and width
// are consensus visible: changing them changes every block hash.
//
// Layout rules:
//
//	address            20 bytes
//	hash               32 bytes
//	difficulty         8 bytes (nonce, big endian)
//	integer            8 bytes little endian signed
//	bytes / list       8 byte little endian length followed by the content
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// ErrMalformedRecord is returned when a buffer does not decode into the
// requested record.
var ErrMalformedRecord = errors.New("malformed record")

// Record represents the behavior every encoded value provides.
type Record interface {
	encoding.BinaryMarshaler
	encoding.BinaryUnmarshaler
}

// Minable represents a record carrying a proof of work nonce.
type Minable interface {
	Record
	Nonce() Nonce
	SetNonce(nonce Nonce)
}

// =============================================================================

// Nonce is the 8 byte difficulty field written by the miner.
type Nonce [DifficultySize]byte

// NonceFromUint64 encodes the nonce value as big endian bytes.
func NonceFromUint64(n uint64) Nonce {
	var nonce Nonce
	binary.BigEndian.PutUint64(nonce[:], n)
	return nonce
}

// Uint64 returns the nonce value.
func (n Nonce) Uint64() uint64 {
	return binary.BigEndian.Uint64(n[:])
}

// TransactionHash returns the sha256 of an encoded transaction, the value a
// blob's includes root commits to.
func TransactionHash(tx []byte) common.Hash {
	return sha256.Sum256(tx)
}

// =============================================================================

// Encode is a helper for records implementing encoding.BinaryMarshaler.
func Encode(r encoding.BinaryMarshaler) ([]byte, error) {
	return r.MarshalBinary()
}

// Decode constructs a record of type T from the buffer.
func Decode[T any, P interface {
	*T
	encoding.BinaryUnmarshaler
}](data []byte) (T, error) {
	var v T
	if err := P(&v).UnmarshalBinary(data); err != nil {
		return v, err
	}
	return v, nil
}

// =============================================================================

// writer accumulates the fixed layout encoding of a record.
type writer struct {
	buf bytes.Buffer
}

func (w *writer) int64(v int64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	w.buf.Write(b[:])
}

func (w *writer) fixed(b []byte) {
	w.buf.Write(b)
}

func (w *writer) bytes(b []byte) {
	w.int64(int64(len(b)))
	w.buf.Write(b)
}

func (w *writer) count(n int) {
	w.int64(int64(n))
}

func (w *writer) byte(b byte) {
	w.buf.WriteByte(b)
}

func (w *writer) result() []byte {
	return w.buf.Bytes()
}

// reader walks an encoded record. The first failure is sticky so decoders
// can read every field and check the error once.
type reader struct {
	data []byte
	off  int
	err  error
}

func newReader(data []byte) *reader {
	return &reader{data: data}
}

func (r *reader) take(n int, field string) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || len(r.data)-r.off < n {
		r.err = fmt.Errorf("%w: short buffer reading %s", ErrMalformedRecord, field)
		return nil
	}
	b := r.data[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) int64(field string) int64 {
	b := r.take(8, field)
	if b == nil {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(b))
}

func (r *reader) length(field string) int {
	n := r.int64(field)
	if r.err != nil {
		return 0
	}
	if n < 0 || n > int64(len(r.data)-r.off) {
		r.err = fmt.Errorf("%w: invalid length %d for %s", ErrMalformedRecord, n, field)
		return 0
	}
	return int(n)
}

func (r *reader) bytes(field string) []byte {
	n := r.length(field)
	b := r.take(n, field)
	if b == nil {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (r *reader) byte(field string) byte {
	b := r.take(1, field)
	if b == nil {
		return 0
	}
	return b[0]
}

func (r *reader) hash(field string) common.Hash {
	var h common.Hash
	copy(h[:], r.take(HashLength, field))
	return h
}

func (r *reader) address(field string) common.Address {
	var a common.Address
	copy(a[:], r.take(AddressLength, field))
	return a
}

func (r *reader) nonce(field string) Nonce {
	var n Nonce
	copy(n[:], r.take(DifficultySize, field))
	return n
}

func (r *reader) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

// finish reports the sticky error or trailing bytes.
func (r *reader) finish(record string) error {
	if r.err != nil {
		return fmt.Errorf("decode %s: %w", record, r.err)
	}
	if r.off != len(r.data) {
		return fmt.Errorf("decode %s: %w: %d trailing bytes", record, ErrMalformedRecord, len(r.data)-r.off)
	}
	return nil
}
