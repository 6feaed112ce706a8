package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ethpandaops/resultoor/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the merged effective configuration",
	Long: `Load the configuration files, apply environment overrides and
defaults, and print the result as YAML. Useful for debugging multi-file
setups.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
}

func runConfig(cmd *cobra.Command, args []string) error {
	if len(cfgFiles) == 0 {
		return fmt.Errorf("config file is required (use --config)")
	}

	cfg, err := config.Load(cfgFiles...)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}

	_, err = os.Stdout.Write(out)

	return err
}
