package schema

import (
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ethereum/go-ethereum/common"
)

// NFTKind is the role an nft transaction plays.
type NFTKind byte

// Set of nft transaction kinds.
const (
	NFTMint NFTKind = iota
	NFTTransfer
	NFTAttestation
)

// NFT moves one token of a series. The latest transaction of a token names
// its owner.
type NFT struct {
	Author   common.Address
	Series   common.Hash
	Identity common.Hash
	From     common.Address
	To       common.Address
	Kind     NFTKind
}

// NFTHandle returns the registry handle of the nft type.
func NFTHandle() Handle {
	return NewHandle("NFT", func(data []byte) (Item, error) {
		n, err := codec.Decode[NFT](data)
		if err != nil {
			return nil, err
		}
		return &n, nil
	})
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (n *NFT) MarshalBinary() ([]byte, error) {
	var e codec.Encoder
	e.Address(n.Author)
	e.Hash(n.Series)
	e.Hash(n.Identity)
	e.Address(n.From)
	e.Address(n.To)
	e.Byte(byte(n.Kind))
	return e.Result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (n *NFT) UnmarshalBinary(data []byte) error {
	d := codec.NewDecoder(data)
	n.Author = d.Address("nft.author")
	n.Series = d.Hash("nft.series")
	n.Identity = d.Hash("nft.identity")
	n.From = d.Address("nft.from")
	n.To = d.Address("nft.to")

	n.Kind = NFTKind(d.Byte("nft.kind"))
	if n.Kind > NFTAttestation {
		d.Fail(fmt.Errorf("%w: invalid nft kind %d", codec.ErrMalformedRecord, n.Kind))
	}

	return d.Finish("nft")
}

// QueryKey implements the Item interface. Transactions supersede each other
// per token.
func (n *NFT) QueryKey() [][]byte {
	return [][]byte{n.Series[:], n.Identity[:]}
}

// UniqueKeys implements the Item interface. A token moves at most once per
// batch.
func (n *NFT) UniqueKeys() [][]byte {
	return [][]byte{append(n.Series.Bytes(), n.Identity[:]...)}
}

// Fields implements the Item interface.
func (n *NFT) Fields() map[string]any {
	return map[string]any{
		"author":   n.Author.Hex(),
		"series":   n.Series.Hex(),
		"identity": n.Identity.Hex(),
		"from":     n.From.Hex(),
		"to":       n.To.Hex(),
		"type":     int(n.Kind),
	}
}
