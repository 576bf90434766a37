package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/index"
	"github.com/ardanlabs/powledger/foundation/blockchain/storage/badger"
	"github.com/spf13/cobra"
)

var (
	dbPath    string
	splitSize int
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate every block of a node's store in parallel segments",
	RunE:  validateRun,
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateCmd.Flags().StringVarP(&dbPath, "db", "d", "zblock/ledger.db", "Path to the node's store.")
	validateCmd.Flags().IntVarP(&splitSize, "split", "s", 64, "Number of blocks per segment.")
}

func validateRun(cmd *cobra.Command, args []string) error {
	gen, err := loadGenesis()
	if err != nil {
		return err
	}

	store, err := badger.New(badger.Config{Path: dbPath})
	if err != nil {
		return err
	}
	defer store.Close()

	idx := index.New(store, nil, index.EventHandler(ev))

	_, latest, err := idx.LatestBlock()
	if err != nil {
		if errors.Is(err, index.ErrNoBlocks) {
			return fmt.Errorf("store %s holds no blocks", dbPath)
		}
		return err
	}

	blocks := make([][]byte, 0, latest.ID+1)
	for id := int64(0); id <= latest.ID; id++ {
		_, encoded, _, err := idx.BlockByID(cmd.Context(), id)
		if err != nil {
			return err
		}
		blocks = append(blocks, encoded)
	}

	started := time.Now()

	v := chain.Validator{
		Limit:          gen.LimitInt(),
		RetargetWindow: gen.RetargetWindow,
		EvHandler:      chain.EventHandler(ev),
	}
	if err := v.ParallelValidateChain(cmd.Context(), blocks, splitSize, v.SegmentValidator()); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "blocks: %d\nvalid:  true\nin:     %v\n", len(blocks), time.Since(started))
	return nil
}

// loadGenesis reads the genesis file named by the genesis flag.
func loadGenesis() (genesis.Genesis, error) {
	return genesis.Load(genesisPath)
}
