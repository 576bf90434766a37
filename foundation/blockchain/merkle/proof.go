package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"sort"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ethereum/go-ethereum/common"
)

// Set of errors returned when building proofs.
var (
	ErrPresent = errors.New("value is present in tree")
	ErrAbsent  = errors.New("value is absent from tree")
)

// Absent returns the form of a value carried by a negative proof, the value
// followed by a zero index byte.
func Absent(value []byte) []byte {
	absent := make([]byte, 0, codec.HashLengthWithIndex)
	absent = append(absent, value...)
	return append(absent, 0)
}

// =============================================================================

// Branch returns the inclusion proof of the specified leaf.
func (t *Tree) Branch(leaf []byte) (codec.Branch, error) {
	path, err := t.Proof(leaf)
	if err != nil {
		return codec.Branch{}, err
	}

	return codec.Branch{
		Leaf: bytes.Clone(leaf),
		Path: path,
	}, nil
}

// PositiveProof returns the inclusion proof of the leaf whose value equals
// the specified value.
func (t *Tree) PositiveProof(val []byte) (codec.Branch, error) {
	i := t.search(val)
	if i == len(t.Leafs) || !bytes.Equal(value(t.Leafs[i].Hash), val) {
		return codec.Branch{}, ErrAbsent
	}

	return t.Branch(t.Leafs[i].Hash)
}

// NegativeProof returns the non-inclusion proof of the specified value. The
// proof carries the sorted neighbours of the value with their own paths.
func (t *Tree) NegativeProof(val []byte) (codec.NegativeProof, error) {
	if len(val) != codec.HashLength {
		return codec.NegativeProof{}, ErrValueLength
	}

	i := t.search(val)
	if i < len(t.Leafs) && bytes.Equal(value(t.Leafs[i].Hash), val) {
		return codec.NegativeProof{}, ErrPresent
	}

	np := codec.NegativeProof{
		Absent: Absent(val),
	}

	if i > 0 {
		left, err := t.Branch(t.Leafs[i-1].Hash)
		if err != nil {
			return codec.NegativeProof{}, err
		}
		np.Left = &left
	}

	if i < len(t.Leafs) {
		right, err := t.Branch(t.Leafs[i].Hash)
		if err != nil {
			return codec.NegativeProof{}, err
		}
		np.Right = &right
	}

	return np, nil
}

// Prove returns a positive proof when the value is in the tree and a
// negative proof otherwise.
func (t *Tree) Prove(val []byte) (codec.MerkleProof, error) {
	positive, err := t.PositiveProof(val)
	switch {
	case err == nil:
		return codec.MerkleProof{Positive: &positive}, nil
	case !errors.Is(err, ErrAbsent):
		return codec.MerkleProof{}, err
	}

	negative, err := t.NegativeProof(val)
	if err != nil {
		return codec.MerkleProof{}, err
	}

	return codec.MerkleProof{Negative: &negative}, nil
}

// search returns the position of the first leaf whose value is not less than
// the specified value.
func (t *Tree) search(val []byte) int {
	return sort.Search(len(t.Leafs), func(i int) bool {
		return bytes.Compare(value(t.Leafs[i].Hash), val) >= 0
	})
}

// =============================================================================

// PositiveProof builds the tree over the leaves and returns the inclusion
// proof of the specified value.
func PositiveProof(leaves [][]byte, val []byte) (codec.Branch, error) {
	t, err := NewTree(leaves)
	if err != nil {
		return codec.Branch{}, err
	}

	return t.PositiveProof(val)
}

// NegativeProof builds the tree over the leaves and returns the non-inclusion
// proof of the specified value.
func NegativeProof(leaves [][]byte, val []byte) (codec.NegativeProof, error) {
	t, err := NewTree(leaves)
	if err != nil {
		return codec.NegativeProof{}, err
	}

	return t.NegativeProof(val)
}

// Prove builds the tree over the leaves and returns whichever proof applies
// to the specified value.
func Prove(leaves [][]byte, val []byte) (codec.MerkleProof, error) {
	t, err := NewTree(leaves)
	if err != nil {
		return codec.MerkleProof{}, err
	}

	return t.Prove(val)
}

// =============================================================================

// Verify checks a proof against a root. Capacity is the number of leaves the
// root commits to and is needed to show a lone left neighbour is the last leaf.
func Verify(root common.Hash, proof codec.MerkleProof, capacity int) bool {
	switch {
	case proof.Positive != nil && proof.Negative == nil:
		return VerifyBranch(root, *proof.Positive)
	case proof.Negative != nil && proof.Positive == nil:
		return VerifyNegative(root, *proof.Negative, capacity)
	}

	return false
}

// VerifyBranch recomputes the root from the leaf and its path.
func VerifyBranch(root common.Hash, b codec.Branch) bool {
	if len(b.Leaf) != codec.HashLengthWithIndex {
		return false
	}

	// A lone leaf is its own root and only its value is compared below.
	if len(b.Path) == 0 && Index(b.Leaf) != 0 {
		return false
	}

	h := b.Leaf
	for _, step := range b.Path {
		if n := len(step.Data); n != codec.HashLength && n != codec.HashLengthWithIndex {
			return false
		}

		sum := sha256.New()
		switch step.Position {
		case codec.Left:
			sum.Write(step.Data)
			sum.Write(h)
		case codec.Right:
			sum.Write(h)
			sum.Write(step.Data)
		default:
			return false
		}
		h = sum.Sum(nil)
	}

	return bytes.Equal(h[:codec.HashLength], root[:])
}

// VerifyNegative checks the neighbours of an absent value. Each present side
// must be included under the root, the values must bracket the absent value,
// and the neighbours must leave no slot between them.
func VerifyNegative(root common.Hash, np codec.NegativeProof, capacity int) bool {
	if len(np.Absent) != codec.HashLengthWithIndex {
		return false
	}
	absent := value(np.Absent)

	if np.Left != nil && !VerifyBranch(root, *np.Left) {
		return false
	}
	if np.Right != nil && !VerifyBranch(root, *np.Right) {
		return false
	}

	switch {
	case np.Left != nil && np.Right != nil:
		if Index(np.Left.Leaf)+1 != Index(np.Right.Leaf) {
			return false
		}
		return bytes.Compare(value(np.Left.Leaf), absent) < 0 &&
			bytes.Compare(absent, value(np.Right.Leaf)) < 0

	case np.Left != nil:
		if Index(np.Left.Leaf) != capacity-1 {
			return false
		}
		return bytes.Compare(value(np.Left.Leaf), absent) < 0

	case np.Right != nil:
		if Index(np.Right.Leaf) != 0 {
			return false
		}
		return bytes.Compare(absent, value(np.Right.Leaf)) < 0
	}

	return false
}
