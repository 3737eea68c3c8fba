package main

import (
	"encoding/json"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var (
	listJSON bool
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List notes, newest first",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		rt := openRuntime(cmd.Context())
		defer rt.Close()

		notes, err := rt.Service().ListNotes(cmd.Context())
		if err != nil {
			fatal("Failed to list notes", err)
		}

		if listJSON {
			_ = json.NewEncoder(os.Stdout).Encode(notes)
			return
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tCREATED\tTITLE")
		for _, n := range notes {
			fmt.Fprintf(w, "%d\t%s\t%s\n", n.ID, n.CreatedAt.Format("2006-01-02 15:04:05"), n.Title)
		}
		_ = w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().BoolVar(&listJSON, "json", false, "Print notes as JSON")
}
