package codec

import (
	"fmt"
)

// Position tells a verifier which side a sibling hash is concatenated on.
type Position byte

// Set of sibling positions.
const (
	Left  Position = 0 // Sibling is concatenated first.
	Right Position = 1 // Sibling is concatenated second.
)

// String implements the fmt.Stringer interface.
func (p Position) String() string {
	switch p {
	case Left:
		return "left"
	case Right:
		return "right"
	}
	return fmt.Sprintf("Position(%d)", byte(p))
}

// PathStep is one sibling on the way from a leaf to the root. Data is an
// inner node hash, or a whole leaf when the sibling is a leaf or a leaf
// promoted from the odd end of a level.
type PathStep struct {
	Position Position
	Data     []byte
}

func writePath(w *writer, path []PathStep) {
	w.count(len(path))
	for _, step := range path {
		w.byte(byte(step.Position))
		w.bytes(step.Data)
	}
}

func readPath(r *reader, field string) []PathStep {
	n := r.length(field)
	if n == 0 {
		return nil
	}
	path := make([]PathStep, n)
	for i := range path {
		pos := Position(r.byte(field + ".position"))
		if pos != Left && pos != Right {
			r.fail(fmt.Errorf("%w: invalid position tag %d", ErrMalformedRecord, pos))
			return nil
		}
		path[i] = PathStep{Position: pos, Data: r.bytes(field + ".data")}
	}
	return path
}

// =============================================================================

// Branch is a leaf together with its inclusion path.
type Branch struct {
	Leaf []byte
	Path []PathStep
}

func (b *Branch) write(w *writer) {
	w.bytes(b.Leaf)
	writePath(w, b.Path)
}

func (b *Branch) read(r *reader, field string) {
	b.Leaf = r.bytes(field + ".leaf")
	b.Path = readPath(r, field+".path")
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (b *Branch) MarshalBinary() ([]byte, error) {
	var w writer
	b.write(&w)
	return w.result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (b *Branch) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	b.read(r, "branch")
	return r.finish("branch")
}

// NegativeProof proves a value is absent through its sorted neighbours. At
// least one of Left and Right is set.
type NegativeProof struct {
	Left   *Branch
	Right  *Branch
	Absent []byte // Value with a zero index suffix, HashLengthWithIndex bytes.
}

const (
	sideLeft  byte = 1 << 0
	sideRight byte = 1 << 1
)

func (np *NegativeProof) write(w *writer) {
	var sides byte
	if np.Left != nil {
		sides |= sideLeft
	}
	if np.Right != nil {
		sides |= sideRight
	}
	w.byte(sides)
	if np.Left != nil {
		np.Left.write(w)
	}
	if np.Right != nil {
		np.Right.write(w)
	}
	w.bytes(np.Absent)
}

func (np *NegativeProof) read(r *reader, field string) {
	sides := r.byte(field + ".sides")
	if r.err == nil && (sides == 0 || sides&^(sideLeft|sideRight) != 0) {
		r.fail(fmt.Errorf("%w: invalid negative proof sides tag %d", ErrMalformedRecord, sides))
		return
	}
	np.Left, np.Right = nil, nil
	if sides&sideLeft != 0 {
		np.Left = &Branch{}
		np.Left.read(r, field+".left")
	}
	if sides&sideRight != 0 {
		np.Right = &Branch{}
		np.Right.read(r, field+".right")
	}
	np.Absent = r.bytes(field + ".absent")
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (np *NegativeProof) MarshalBinary() ([]byte, error) {
	if np.Left == nil && np.Right == nil {
		return nil, fmt.Errorf("encode negative proof: no neighbour present")
	}
	var w writer
	np.write(&w)
	return w.result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (np *NegativeProof) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	np.read(r, "negative")
	return r.finish("negative proof")
}

// =============================================================================

// ProofKind is the tag of the MerkleProof union.
type ProofKind byte

// Set of proof kinds.
const (
	ProofPositive ProofKind = 0
	ProofNegative ProofKind = 1
)

// MerkleProof is either a positive (inclusion) or a negative (non-inclusion)
// proof. Exactly one of the fields is set.
type MerkleProof struct {
	Positive *Branch
	Negative *NegativeProof
}

// Kind returns the tag of the proof.
func (mp *MerkleProof) Kind() ProofKind {
	if mp.Positive != nil {
		return ProofPositive
	}
	return ProofNegative
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (mp *MerkleProof) MarshalBinary() ([]byte, error) {
	if (mp.Positive == nil) == (mp.Negative == nil) {
		return nil, fmt.Errorf("encode merkle proof: exactly one of positive and negative must be set")
	}

	var w writer
	w.byte(byte(mp.Kind()))
	switch mp.Kind() {
	case ProofPositive:
		mp.Positive.write(&w)
	default:
		if mp.Negative.Left == nil && mp.Negative.Right == nil {
			return nil, fmt.Errorf("encode merkle proof: no neighbour present")
		}
		mp.Negative.write(&w)
	}
	return w.result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (mp *MerkleProof) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	mp.Positive, mp.Negative = nil, nil

	switch kind := ProofKind(r.byte("proof.kind")); {
	case r.err != nil:
	case kind == ProofPositive:
		mp.Positive = &Branch{}
		mp.Positive.read(r, "proof.positive")
	case kind == ProofNegative:
		mp.Negative = &NegativeProof{}
		mp.Negative.read(r, "proof.negative")
	default:
		r.fail(fmt.Errorf("%w: invalid proof kind tag %d", ErrMalformedRecord, kind))
	}

	return r.finish("merkle proof")
}

// =============================================================================

// BlockNegative binds a non-inclusion proof to the block it was built for.
type BlockNegative struct {
	Block int64
	Proof NegativeProof
}

// FreshnessProof shows a latest-key updated at BlockIndex has not been
// superseded up to the block the positive proof was built against.
type FreshnessProof struct {
	BlockIndex int64
	Negatives  []BlockNegative
	Positive   Branch
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (fp *FreshnessProof) MarshalBinary() ([]byte, error) {
	var w writer
	w.int64(fp.BlockIndex)
	w.count(len(fp.Negatives))
	for i := range fp.Negatives {
		neg := &fp.Negatives[i]
		if neg.Proof.Left == nil && neg.Proof.Right == nil {
			return nil, fmt.Errorf("encode freshness proof: block %d: no neighbour present", neg.Block)
		}
		w.int64(neg.Block)
		neg.Proof.write(&w)
	}
	fp.Positive.write(&w)
	return w.result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (fp *FreshnessProof) UnmarshalBinary(data []byte) error {
	r := newReader(data)
	fp.BlockIndex = r.int64("freshness.blockIndex")
	n := r.length("freshness.negatives")
	fp.Negatives = nil
	if n > 0 {
		fp.Negatives = make([]BlockNegative, 0, n)
		for i := 0; i < n && r.err == nil; i++ {
			var neg BlockNegative
			neg.Block = r.int64("freshness.negative.block")
			neg.Proof.read(r, "freshness.negative")
			fp.Negatives = append(fp.Negatives, neg)
		}
	}
	fp.Positive.read(r, "freshness.positive")
	return r.finish("freshness proof")
}
