package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sevigo/release-warden/internal/config"
)

var validateCmd = &cobra.Command{
	Use:   "validate [package-config.yml]",
	Short: "Validate a package configuration file.",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		pkg, err := config.ParsePackageConfig(data)
		if err != nil {
			return err
		}
		fmt.Printf("ok: %d jobs configured\n", len(pkg.Jobs))
		return nil
	},
}
