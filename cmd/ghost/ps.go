package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/jlabarca/ghost/internal/ghosttypes"
)

var psCmd = &cobra.Command{
	Use:   "ps",
	Short: "List processes registered with ghostd",
	RunE: func(cmd *cobra.Command, args []string) error {
		resp, err := sendCommand(ghosttypes.CommandList, "")
		if err != nil {
			return err
		}
		states := []ghosttypes.ProcessState{}
		if resp.Data != nil && resp.Data.Kind == ghosttypes.ResponseDataProcessList {
			states = resp.Data.ProcessList
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tRUNNING\tSERVICE\tLAST SEEN")
		for _, s := range states {
			fmt.Fprintf(w, "%s\t%s\t%t\t%t\t%s\n", s.ID, s.Name, s.IsRunning, s.IsService, s.LastSeen.Format("15:04:05"))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(psCmd)
}
