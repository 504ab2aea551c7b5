package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/palisade/palisade/pkg/commons/logger"
)

var version = "0.1.0"

var logLevel string

var rootCmd = &cobra.Command{
	Use:     "palisade",
	Short:   "palisade classifies, tracks, and relays obfuscated proxy connections",
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger.Setup(logLevel)
	},
}

func Execute() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newDetectCmd(),
		newProfileCmd(),
		newSimulateCmd(),
		newProbeCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
