package commands

import (
	"fmt"
	"strconv"

	"github.com/ardanlabs/powledger/foundation/blockchain/difficulty"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/spf13/cobra"
)

var retargetLimit string

var retargetCmd = &cobra.Command{
	Use:   "retarget <timestamp> <timestamp> ...",
	Short: "Compute the MAIN limit that follows a window of block timestamps in milliseconds",
	Args:  cobra.MinimumNArgs(2),
	RunE:  retargetRun,
}

func init() {
	rootCmd.AddCommand(retargetCmd)
	retargetCmd.Flags().StringVarP(&retargetLimit, "limit", "l", "", "Current MAIN limit, hex encoded. Defaults to the genesis limit.")
}

func retargetRun(cmd *cobra.Command, args []string) error {
	if retargetLimit == "" {
		gen, err := loadGenesis()
		if err != nil {
			return err
		}
		retargetLimit = gen.Limit
	}

	limit, err := hexutil.DecodeBig(retargetLimit)
	if err != nil {
		return fmt.Errorf("limit: %w", err)
	}

	timestamps := make([]int64, len(args))
	for i, arg := range args {
		if timestamps[i], err = strconv.ParseInt(arg, 10, 64); err != nil {
			return fmt.Errorf("timestamp %d: %w", i, err)
		}
	}

	next, err := difficulty.Retarget(limit, timestamps)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), hexutil.EncodeBig(next))
	return nil
}
