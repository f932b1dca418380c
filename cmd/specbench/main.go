package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"specbench/internal/config"
	"specbench/internal/logging"
	"specbench/pkg/config/env"
)

const (
	exitFailure     = 1
	exitInterrupted = 130
)

var cfgPath string

func main() {
	rootCmd := &cobra.Command{
		Use:   "specbench",
		Short: "Orchestrates speculative-decoding benchmark runs",
		Long: "specbench sequences baseline and speculative-decoding inference runs,\n" +
			"uploads their answer files to the object store and records speed\n" +
			"comparisons against the baseline in the experiment tracker.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "config.yaml", "configuration file path")

	rootCmd.AddCommand(
		newRunCmd(),
		newUploadCmd(),
		newSpeedCmd(),
		newCheckCmd(),
		newDownloadCmd(),
	)

	// Commands re-run Setup with the configured level once the config file
	// is read; the env file has to load before that, so it logs through a
	// default-level handler installed here.
	logging.Setup(config.DefaultLogLevel)
	env.Load(".env")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
}
