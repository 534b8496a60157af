// Copyright (C) 2025, ADXYZ Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Command vastplay resolves and plays VAST ads from the command line.
package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/luxfi/vastplayer/pkg/config"
	"github.com/luxfi/vastplayer/pkg/log"
)

var (
	version = "dev"

	logLevel string
	cfg      *config.Config
	logger   log.Logger
)

var rootCmd = &cobra.Command{
	Use:          "vastplay",
	Short:        "Resolve and play VAST video ads",
	Version:      version,
	SilenceUsage: true,
	PersistentPreRunE: func(*cobra.Command, []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		level := cfg.LogLevel
		if logLevel != "" {
			level = logLevel
		}
		logger = log.NewWithLevel(level)
		return nil
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level, overrides VASTPLAYER_LOG_LEVEL")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
