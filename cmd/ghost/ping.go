package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jlabarca/ghost/internal/ghosttypes"
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Check whether ghostd is reachable over the bus",
	RunE: func(cmd *cobra.Command, args []string) error {
		if _, err := sendCommand(ghosttypes.CommandPing, ""); err != nil {
			return err
		}
		fmt.Println("pong")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pingCmd)
}
