// Package genesis maintains access to the genesis file that sets the
// parameters every node of a chain must agree on.
package genesis

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/codec"
	"github.com/ardanlabs/powledger/foundation/validate"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// DefaultPath is where nodes look for the genesis file.
const DefaultPath = "zblock/genesis.json"

// Genesis represents the genesis file.
type Genesis struct {
	Date           time.Time `json:"date" validate:"required"`
	ChainID        uint16    `json:"chain_id" validate:"required"`               // The chain id represents an unique id for this running instance.
	Author         string    `json:"author" validate:"required,address"`         // Author of the genesis block.
	Limit          string    `json:"limit" validate:"required,hexbig"`           // Initial MAIN limit, hex encoded.
	Workers        int       `json:"workers" validate:"gte=1,lte=256"`           // Parallel nonce searches per mining session.
	RetargetWindow int       `json:"retarget_window" validate:"gte=2,lte=10000"` // Number of block timestamps a retarget reads.
}

// Default returns the parameters of a development chain.
func Default() Genesis {
	return Genesis{
		Date:           time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC),
		ChainID:        1,
		Author:         "0xdd6B972ffcc631a62CAE1BB9d80b7ff429c8ebA4",
		Limit:          hexutil.EncodeBig(codec.DefaultLimit),
		Workers:        4,
		RetargetWindow: 10,
	}
}

// =============================================================================

// Load opens and consumes the genesis file.
func Load(path string) (Genesis, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Genesis{}, err
	}

	var genesis Genesis
	if err := json.Unmarshal(content, &genesis); err != nil {
		return Genesis{}, err
	}

	if err := genesis.Validate(); err != nil {
		return Genesis{}, err
	}

	return genesis, nil
}

// Save writes the genesis file.
func (g Genesis) Save(path string) error {
	if err := g.Validate(); err != nil {
		return err
	}

	data, err := json.MarshalIndent(g, "", "    ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

// Validate checks the genesis values.
func (g Genesis) Validate() error {
	if err := validate.Check(g); err != nil {
		return err
	}

	limit, err := hexutil.DecodeBig(g.Limit)
	if err != nil {
		return err
	}
	if limit.Sign() <= 0 || limit.Cmp(codec.DefaultLimit) > 0 {
		return fmt.Errorf("limit %s out of range [1, 2^256-1]", g.Limit)
	}

	return nil
}

// LimitInt returns the initial MAIN limit.
func (g Genesis) LimitInt() *big.Int {
	limit, err := hexutil.DecodeBig(g.Limit)
	if err != nil {
		return new(big.Int).Set(codec.DefaultLimit)
	}
	return limit
}

// AuthorAddress returns the author of the genesis block.
func (g Genesis) AuthorAddress() common.Address {
	return common.HexToAddress(g.Author)
}
