package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		rt := openRuntime(cmd.Context())
		defer rt.Close()

		if err := rt.Migrate(cmd.Context()); err != nil {
			fatal("Failed to migrate", err)
		}
		fmt.Println("Migrations applied.")
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
