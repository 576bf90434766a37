// Package commands contains the admin commands.
package commands

import (
	"go.uber.org/zap"

	"github.com/spf13/cobra"
)

var (
	genesisPath string
	log         *zap.SugaredLogger
)

var rootCmd = &cobra.Command{
	Use:           "admin",
	Short:         "Administrative tasks for the ledger",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&genesisPath, "genesis", "g", "zblock/genesis.json", "Path to the genesis file.")
}

// Execute runs the command named on the command line.
func Execute(build string, l *zap.SugaredLogger) error {
	log = l
	rootCmd.Version = build
	return rootCmd.Execute()
}

// ev sends the events of the ledger packages to the log.
func ev(v string, args ...any) {
	if log != nil {
		log.Debugf(v, args...)
	}
}
