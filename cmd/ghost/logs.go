package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jlabarca/ghost/internal/ghosttypes"
)

var logsCmd = &cobra.Command{
	Use:   "logs <id>",
	Short: "Print the captured stdout/stderr ring buffer for a process",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := sendCommand(ghosttypes.CommandLogs, args[0])
		if err != nil {
			return err
		}
		if resp.Data != nil {
			fmt.Println(resp.Data.String)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(logsCmd)
}
