package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/application"
	"github.com/viralforge/mesh/services/core-platform/M04-notes-service/internal/domain"
)

var (
	createTitle   string
	createContent string
	createKey     string
)

var createCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a note and publish its event",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		rt := openRuntime(cmd.Context())
		defer rt.Close()

		res, err := rt.Service().CreateNote(cmd.Context(), application.CreateNoteRequest{
			Title:   createTitle,
			Content: createContent,
		}, createKey)
		if err != nil {
			var verr *domain.ValidationError
			if errors.As(err, &verr) {
				for _, f := range verr.Fields {
					fmt.Fprintf(os.Stderr, "%s: %s\n", f.Field, f.Message)
				}
				os.Exit(2)
			}
			fatal("Failed to create note", err)
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(res.Note)
		fmt.Fprintf(os.Stderr, "event %s (trace %s, attempts %d)\n", res.Delivery.Status, res.Delivery.TraceID, res.Delivery.Attempts)
		if res.Delivery.Err != nil {
			fmt.Fprintf(os.Stderr, "delivery error: %v\n", res.Delivery.Err)
		}
	},
}

func init() {
	rootCmd.AddCommand(createCmd)
	createCmd.Flags().StringVarP(&createTitle, "title", "t", "", "Note title")
	createCmd.Flags().StringVarP(&createContent, "content", "b", "", "Note content")
	createCmd.Flags().StringVar(&createKey, "idempotency-key", "", "Replay-safe key for retried invocations")
	_ = createCmd.MarkFlagRequired("title")
	_ = createCmd.MarkFlagRequired("content")
}
