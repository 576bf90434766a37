package commands

import (
	"fmt"
	"time"

	"github.com/ardanlabs/powledger/foundation/blockchain/chain"
	"github.com/ardanlabs/powledger/foundation/blockchain/genesis"
	"github.com/ardanlabs/powledger/foundation/blockchain/pow"
	"github.com/ardanlabs/powledger/foundation/blockchain/schema"
	"github.com/spf13/cobra"
)

var gen = genesis.Default()

var genesisCmd = &cobra.Command{
	Use:   "genesis",
	Short: "Write a genesis file and print the genesis block it produces",
	RunE:  genesisRun,
}

func init() {
	rootCmd.AddCommand(genesisCmd)
	genesisCmd.Flags().StringVarP(&gen.Author, "author", "a", gen.Author, "Author address of the genesis block.")
	genesisCmd.Flags().StringVarP(&gen.Limit, "limit", "l", gen.Limit, "Initial MAIN limit, hex encoded.")
	genesisCmd.Flags().Uint16VarP(&gen.ChainID, "chain", "c", gen.ChainID, "Chain id.")
	genesisCmd.Flags().IntVarP(&gen.Workers, "workers", "w", gen.Workers, "Parallel nonce searches per mining session.")
	genesisCmd.Flags().IntVarP(&gen.RetargetWindow, "window", "r", gen.RetargetWindow, "Number of timestamps a retarget reads.")
}

func genesisRun(cmd *cobra.Command, args []string) error {
	gen.Date = time.Now().UTC().Truncate(time.Second)

	if err := gen.Validate(); err != nil {
		return err
	}

	a := chain.Assembler{
		Miner:     pow.Miner{Workers: gen.Workers, EvHandler: pow.EventHandler(ev)},
		Registry:  schema.Default(),
		EvHandler: chain.EventHandler(ev),
	}

	sealed, err := a.Genesis(cmd.Context(), gen.LimitInt(), gen.AuthorAddress(), gen.Date)
	if err != nil {
		return fmt.Errorf("mine genesis: %w", err)
	}

	if err := gen.Save(genesisPath); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "genesis: %s\nblock:   %s\n", genesisPath, sealed.Hash)
	return nil
}
