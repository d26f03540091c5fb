// Package cli implements offerctl, which runs importer operations
// synchronously against the configured database.
package cli

import (
	"os"

	"github.com/spf13/cobra"
)

const defaultConfigPath = "configs/worker-service/config.yaml"

func NewRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "offerctl",
		Short: "offerctl - run job offer imports from the command line",
		Long: `offerctl imports job offers from a configured connection, detects the
fields of a provider response and runs the offer status sweep, without going
through the API or the worker queue.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}

	if env := os.Getenv("OFFERCTL_CONFIG_PATH"); env != "" {
		configPath = env
	} else {
		configPath = defaultConfigPath
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", configPath, "Path to configuration file")

	rootCmd.AddCommand(newImportCmd(&configPath))
	rootCmd.AddCommand(newReprocessCmd(&configPath))
	rootCmd.AddCommand(newDetectCmd(&configPath))
	rootCmd.AddCommand(newSweepCmd(&configPath))

	return rootCmd
}
