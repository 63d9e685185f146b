package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jlabarca/ghost/internal/ghosttypes"
)

var startCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Start a registered process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := sendCommand(ghosttypes.CommandStart, args[0]); err != nil {
			return err
		}
		fmt.Printf("started %s\n", args[0])
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <id>",
	Short: "Stop a running process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := sendCommand(ghosttypes.CommandStop, args[0]); err != nil {
			return err
		}
		fmt.Printf("stopped %s\n", args[0])
		return nil
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart <id>",
	Short: "Restart a process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := sendCommand(ghosttypes.CommandRestart, args[0]); err != nil {
			return err
		}
		fmt.Printf("restarted %s\n", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(startCmd, stopCmd, restartCmd)
}
