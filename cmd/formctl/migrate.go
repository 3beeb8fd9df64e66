package main

import (
	"fmt"

	"formflow/internal/database"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update tables and seed reference data",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, _, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		if err := database.SeedReferenceData(cmd.Context(), db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
