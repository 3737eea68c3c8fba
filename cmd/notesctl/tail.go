package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
)

var (
	tailCount int64
)

type tailLine struct {
	EntryID  string               `json:"entry_id"`
	Envelope domain.EventEnvelope `json:"envelope,omitempty"`
	Error    string               `json:"error,omitempty"`
}

var tailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Print the latest entries of the notes stream",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		rt := openRuntime(cmd.Context())
		defer rt.Close()

		entries, err := rt.Redis().XRevRangeN(cmd.Context(), rt.Config().StreamName, "+", "-", tailCount).Result()
		if err != nil {
			fatal("Failed to read stream", err)
		}

		enc := json.NewEncoder(os.Stdout)
		for i := len(entries) - 1; i >= 0; i-- {
			line := tailLine{EntryID: entries[i].ID}
			env, perr := domain.ParseStreamEntry(entries[i].Values)
			if perr != nil {
				line.Error = perr.Error()
			} else {
				line.Envelope = env
			}
			_ = enc.Encode(line)
		}
	},
}

func init() {
	rootCmd.AddCommand(tailCmd)
	tailCmd.Flags().Int64VarP(&tailCount, "count", "n", 10, "Number of entries to print")
}
