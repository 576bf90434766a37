package schema

import (
	"fmt"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ethereum/go-ethereum/common"
)

// CoinKind is the role a coin transaction plays.
type CoinKind byte

// Set of coin transaction kinds.
const (
	CoinMint CoinKind = iota
	CoinFrom
	CoinTo
	CoinAttestation
)

// Coin is a balance update of the coin type. The latest coin transaction of
// an author carries the author's balance.
type Coin struct {
	From        common.Address
	To          common.Address
	Author      common.Address
	Amount      int64
	NextBalance int64
	Kind        CoinKind
	RelatedTo   *common.Hash
}

// CoinHandle returns the registry handle of the coin type.
func CoinHandle() Handle {
	return NewHandle("COIN", func(data []byte) (Item, error) {
		c, err := codec.Decode[Coin](data)
		if err != nil {
			return nil, err
		}
		return &c, nil
	}, "amount >= 0", "nextBalance >= 0")
}

// MarshalBinary implements the encoding.BinaryMarshaler interface.
func (c *Coin) MarshalBinary() ([]byte, error) {
	var e codec.Encoder
	e.Address(c.From)
	e.Address(c.To)
	e.Address(c.Author)
	e.Int64(c.Amount)
	e.Int64(c.NextBalance)
	e.Byte(byte(c.Kind))
	if c.RelatedTo == nil {
		e.Byte(0)
	} else {
		e.Byte(1)
		e.Hash(*c.RelatedTo)
	}
	return e.Result(), nil
}

// UnmarshalBinary implements the encoding.BinaryUnmarshaler interface.
func (c *Coin) UnmarshalBinary(data []byte) error {
	d := codec.NewDecoder(data)
	c.From = d.Address("coin.from")
	c.To = d.Address("coin.to")
	c.Author = d.Address("coin.author")
	c.Amount = d.Int64("coin.amount")
	c.NextBalance = d.Int64("coin.nextBalance")

	c.Kind = CoinKind(d.Byte("coin.kind"))
	if c.Kind > CoinAttestation {
		d.Fail(fmt.Errorf("%w: invalid coin kind %d", codec.ErrMalformedRecord, c.Kind))
	}

	c.RelatedTo = nil
	switch tag := d.Byte("coin.relatedTo"); tag {
	case 0:
	case 1:
		h := d.Hash("coin.relatedTo")
		c.RelatedTo = &h
	default:
		d.Fail(fmt.Errorf("%w: invalid related tag %d", codec.ErrMalformedRecord, tag))
	}

	return d.Finish("coin")
}

// QueryKey implements the Item interface. Coins supersede each other per
// author.
func (c *Coin) QueryKey() [][]byte {
	return [][]byte{c.Author[:]}
}

// UniqueKeys implements the Item interface. A related transaction can only
// be answered once per batch.
func (c *Coin) UniqueKeys() [][]byte {
	if c.RelatedTo == nil {
		return nil
	}
	return [][]byte{c.RelatedTo[:]}
}

// Fields implements the Item interface.
func (c *Coin) Fields() map[string]any {
	return map[string]any{
		"from":        c.From.Hex(),
		"to":          c.To.Hex(),
		"author":      c.Author.Hex(),
		"amount":      c.Amount,
		"nextBalance": c.NextBalance,
		"type":        int(c.Kind),
	}
}
