// Package bloom builds and queries the serialized bloom filters carried by
// blob summaries. A filter answering "absent" is authoritative. A filter
// answering "present" only means a non-inclusion proof has to be checked.
package bloom

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/bits-and-blooms/bloom/v3"
)

// FalsePositiveRate is the rate every filter is sized for.
const FalsePositiveRate = 0.01

// MaxKeys is the most keys a filter is ever built for: one per transaction
// of a full batch.
const MaxKeys = codec.NumberOfTransactions

// Bounds on the header of a serialized filter: bit count, hash count and
// bitset length, each a big endian uint64.
var maxBits, maxHashes = bloom.EstimateParameters(MaxKeys, FalsePositiveRate)

const headerLen = 24

// Build returns the serialized filter holding the specified keys.
func Build(keys [][]byte) ([]byte, error) {
	n := uint(len(keys))
	switch {
	case n == 0:
		n = 1
	case n > MaxKeys:
		return nil, fmt.Errorf("filter: %d keys exceeds %d", n, MaxKeys)
	}

	filter := bloom.NewWithEstimates(n, FalsePositiveRate)
	for _, key := range keys {
		filter.Add(key)
	}

	var buf bytes.Buffer
	if _, err := filter.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("serialize filter: %w", err)
	}

	return buf.Bytes(), nil
}

// MayContain reports whether the serialized filter may hold the key. The
// filter bytes are used as they are, never rebuilt from content.
func MayContain(serialized []byte, key []byte) (bool, error) {
	filter, err := Decode(serialized)
	if err != nil {
		return false, err
	}

	return filter.Test(key), nil
}

// Decode restores a serialized filter so it can be tested repeatedly. The
// header is checked against the largest filter Build can produce before
// anything is allocated.
func Decode(serialized []byte) (*bloom.BloomFilter, error) {
	if len(serialized) < headerLen {
		return nil, fmt.Errorf("decode filter: %d bytes is shorter than the header", len(serialized))
	}

	m := binary.BigEndian.Uint64(serialized[0:8])
	k := binary.BigEndian.Uint64(serialized[8:16])
	length := binary.BigEndian.Uint64(serialized[16:24])

	switch {
	case m > uint64(maxBits) || length > uint64(maxBits):
		return nil, fmt.Errorf("decode filter: %d bits exceeds %d", max(m, length), maxBits)
	case k > uint64(maxHashes):
		return nil, fmt.Errorf("decode filter: %d hashes exceeds %d", k, maxHashes)
	}

	var filter bloom.BloomFilter
	n, err := filter.ReadFrom(bytes.NewReader(serialized))
	if err != nil {
		return nil, fmt.Errorf("decode filter: %w", err)
	}

	if n != int64(len(serialized)) {
		return nil, fmt.Errorf("decode filter: %d trailing bytes", int64(len(serialized))-n)
	}

	return &filter, nil
}
