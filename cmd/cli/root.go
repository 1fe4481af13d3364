package main

import (
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var commandPrefix string

var rootCmd = &cobra.Command{
	Use:   "warden-cli",
	Short: "warden-cli is the command-line interface for Release Warden.",
	Long:  `A CLI for inspecting and operating the Release Warden service: previewing handler dispatch, validating package configuration, and running reconciliation sweeps by hand.`,
}

func init() { //nolint:gochecknoinits // Cobra's init function for command registration
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&commandPrefix, "command-prefix", "/warden", "comment command prefix")

	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(babysitCmd)
}

// initConfig reads in config file and ENV variables if set.
func initConfig() {
	viper.SetEnvPrefix("RW")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
