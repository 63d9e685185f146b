package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jlabarca/ghost/internal/ghostconfig"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the fully resolved configuration as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := ghostconfig.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		out, err := cfg.Dump()
		if err != nil {
			return err
		}
		fmt.Print(out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
