package codec

import (
	"github.com/ethereum/go-ethereum/common"
)

// Encoder exposes the layout rules to record types defined outside this
// package, such as the payloads registered with the schema registry.
type Encoder struct {
	w writer
}

// Int64 writes an 8 byte little endian signed integer.
func (e *Encoder) Int64(v int64) { e.w.int64(v) }

// Hash writes a 32 byte hash.
func (e *Encoder) Hash(h common.Hash) { e.w.fixed(h[:]) }

// Address writes a 20 byte address.
func (e *Encoder) Address(a common.Address) { e.w.fixed(a[:]) }

// Byte writes a single byte.
func (e *Encoder) Byte(b byte) { e.w.byte(b) }

// Bytes writes length prefixed bytes.
func (e *Encoder) Bytes(b []byte) { e.w.bytes(b) }

// Result returns the encoded bytes.
func (e *Encoder) Result() []byte { return e.w.result() }

// Decoder reads fields written by an Encoder. Errors are sticky and
// reported by Finish.
type Decoder struct {
	r *reader
}

// NewDecoder constructs a decoder over the buffer.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{r: newReader(data)}
}

// Int64 reads an 8 byte little endian signed integer.
func (d *Decoder) Int64(field string) int64 { return d.r.int64(field) }

// Hash reads a 32 byte hash.
func (d *Decoder) Hash(field string) common.Hash { return d.r.hash(field) }

// Address reads a 20 byte address.
func (d *Decoder) Address(field string) common.Address { return d.r.address(field) }

// Byte reads a single byte.
func (d *Decoder) Byte(field string) byte { return d.r.byte(field) }

// Bytes reads length prefixed bytes.
func (d *Decoder) Bytes(field string) []byte { return d.r.bytes(field) }

// Fail records an error unless one was already recorded.
func (d *Decoder) Fail(err error) { d.r.fail(err) }

// Finish reports the first error or any trailing bytes.
func (d *Decoder) Finish(record string) error { return d.r.finish(record) }
