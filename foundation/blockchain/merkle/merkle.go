// Copyright 2017 Cameron Bergoon
// https://github.com/cbergoon/merkletree
// Licensed under the MIT License, see LICENCE file for details.
// This code has been cleaned up, refactored, and reworked for sorted leaves.

// Package merkle provides a merkle tree over sorted, index suffixed leaves.
// The tree supports inclusion proofs and non-inclusion proofs, the latter
// built from the sorted neighbours of an absent value.
//
// Leaves are not hashed before entering the tree. Pairs are hashed in order
// (left || right) and never sorted. When a level has an odd number of nodes
// the last node is promoted to the next level unchanged.
package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
	"hash"
	"sort"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MaxLeaves is the number of positions a one byte index suffix can address.
const MaxLeaves = 1 << (8 * codec.IndexLength)

// Set of errors returned by the tree.
var (
	ErrNoContent     = errors.New("cannot construct tree with no content")
	ErrTooManyLeaves = fmt.Errorf("tree cannot hold more than %d leaves", MaxLeaves)
	ErrValueLength   = fmt.Errorf("leaf values must be %d bytes", codec.HashLength)
	ErrNotFound      = errors.New("unable to find data in tree")
)

// =============================================================================

// Leaves sorts the values ascending and appends the positional index byte to
// each of them. The input slice is not modified.
func Leaves(values [][]byte) ([][]byte, error) {
	if len(values) == 0 {
		return nil, ErrNoContent
	}
	if len(values) > MaxLeaves {
		return nil, ErrTooManyLeaves
	}

	sorted := make([][]byte, len(values))
	for i, v := range values {
		if len(v) != codec.HashLength {
			return nil, ErrValueLength
		}
		sorted[i] = v
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		return bytes.Compare(sorted[i], sorted[j]) < 0
	})

	leaves := make([][]byte, len(sorted))
	for i, v := range sorted {
		leaf := make([]byte, 0, codec.HashLengthWithIndex)
		leaf = append(leaf, v...)
		leaf = append(leaf, byte(i))
		leaves[i] = leaf
	}

	return leaves, nil
}

// Index returns the positional index suffix of a leaf.
func Index(leaf []byte) int {
	return int(leaf[len(leaf)-1])
}

// value returns a leaf without its index suffix.
func value(leaf []byte) []byte {
	return leaf[:len(leaf)-codec.IndexLength]
}

// =============================================================================

// Tree represents a merkle tree over index suffixed leaves.
type Tree struct {
	Root         *Node
	Leafs        []*Node
	MerkleRoot   []byte
	hashStrategy func() hash.Hash
}

// WithHashStrategy is used to change the default hash strategy of using sha256
// when constructing a new tree.
func WithHashStrategy(hashStrategy func() hash.Hash) func(t *Tree) {
	return func(t *Tree) {
		t.hashStrategy = hashStrategy
	}
}

// Build sorts and suffixes the values and constructs the tree over the
// resulting leaves.
func Build(values [][]byte, options ...func(t *Tree)) (*Tree, error) {
	leaves, err := Leaves(values)
	if err != nil {
		return nil, err
	}

	return NewTree(leaves, options...)
}

// NewTree constructs a new merkle tree over leaves that were already sorted
// and suffixed by Leaves.
func NewTree(leaves [][]byte, options ...func(t *Tree)) (*Tree, error) {
	t := Tree{
		hashStrategy: sha256.New,
	}

	for _, option := range options {
		option(&t)
	}

	if err := t.Generate(leaves); err != nil {
		return nil, err
	}

	return &t, nil
}

// Generate constructs the leafs and nodes of the tree from the specified
// leaves. If the tree has been generated previously, the tree is re-generated
// from scratch.
func (t *Tree) Generate(leaves [][]byte) error {
	if len(leaves) == 0 {
		return ErrNoContent
	}
	if len(leaves) > MaxLeaves {
		return ErrTooManyLeaves
	}

	leafs := make([]*Node, len(leaves))
	for i, leaf := range leaves {
		leafs[i] = &Node{
			Hash: leaf,
			leaf: true,
			Tree: t,
		}
	}

	t.Root = buildIntermediate(leafs, t)
	t.Leafs = leafs
	t.MerkleRoot = t.Root.Hash

	return nil
}

// Rebuild regenerates the tree from the leaves it currently holds.
func (t *Tree) Rebuild() error {
	return t.Generate(t.Values())
}

// Proof returns the path of sibling hashes from the specified leaf to the
// root. A step with position Left means the sibling is concatenated first.
func (t *Tree) Proof(leaf []byte) ([]codec.PathStep, error) {
	for _, node := range t.Leafs {
		if !bytes.Equal(node.Hash, leaf) {
			continue
		}

		var path []codec.PathStep
		for parent := node.Parent; parent != nil; parent = parent.Parent {
			var step codec.PathStep
			if parent.Left == node {
				step.Position = codec.Right
				step.Data = bytes.Clone(parent.Right.Hash)
			} else {
				step.Position = codec.Left
				step.Data = bytes.Clone(parent.Left.Hash)
			}
			path = append(path, step)
			node = parent
		}

		return path, nil
	}

	return nil, ErrNotFound
}

// Verify recomputes every level of the tree and compares the result with
// the stored merkle root.
func (t *Tree) Verify() error {
	calculated := t.Root.verify()
	if !bytes.Equal(t.MerkleRoot, calculated) {
		return errors.New("root hash invalid")
	}

	return nil
}

// Values returns the leaves held by the tree in order.
func (t *Tree) Values() [][]byte {
	values := make([][]byte, len(t.Leafs))
	for i, node := range t.Leafs {
		values[i] = node.Hash
	}
	return values
}

// RootHash returns the merkle root as a hash. A single leaf tree has the
// 33 byte leaf as its root, which is truncated to its value here.
func (t *Tree) RootHash() common.Hash {
	return common.BytesToHash(t.MerkleRoot[:codec.HashLength])
}

// RootHex converts the merkle root byte hash to a hex encoded string.
func (t *Tree) RootHex() string {
	return hexutil.Encode(t.MerkleRoot)
}

// String returns a string representation of the tree. Only leaf nodes are
// included in the output.
func (t *Tree) String() string {
	var sb bytes.Buffer
	for _, l := range t.Leafs {
		sb.WriteString(l.String())
		sb.WriteString("\n")
	}
	return sb.String()
}

// MarshalText implements the TextMarshaler interface and produces a panic
// if anyone tries to marshal the Merkle tree. Use Values instead.
func (t *Tree) MarshalText() (text []byte, err error) {
	panic("do not marshal the merkle tree, use Values")
}

// =============================================================================

// Node represents a node, root, or leaf in the tree.
type Node struct {
	Tree   *Tree
	Parent *Node
	Left   *Node
	Right  *Node
	Hash   []byte
	leaf   bool
}

// verify walks down the tree until hitting a leaf, calculating the hash at
// each level and returning the resulting hash of the node.
func (n *Node) verify() []byte {
	if n.leaf {
		return n.Hash
	}

	h := n.Tree.hashStrategy()
	h.Write(n.Left.verify())
	h.Write(n.Right.verify())
	return h.Sum(nil)
}

// String returns a string representation of the node.
func (n *Node) String() string {
	return fmt.Sprintf("%t %s", n.leaf, hexutil.Encode(n.Hash))
}

// =============================================================================

// buildIntermediate constructs the intermediate and root levels of the tree
// for the given level of nodes and returns the root.
func buildIntermediate(nl []*Node, t *Tree) *Node {
	if len(nl) == 1 {
		return nl[0]
	}

	nodes := make([]*Node, 0, (len(nl)+1)/2)
	for i := 0; i < len(nl); i += 2 {
		if i+1 == len(nl) {
			nodes = append(nodes, nl[i])
			continue
		}

		h := t.hashStrategy()
		h.Write(nl[i].Hash)
		h.Write(nl[i+1].Hash)

		n := Node{
			Left:  nl[i],
			Right: nl[i+1],
			Hash:  h.Sum(nil),
			Tree:  t,
		}

		nl[i].Parent = &n
		nl[i+1].Parent = &n
		nodes = append(nodes, &n)
	}

	return buildIntermediate(nodes, t)
}
