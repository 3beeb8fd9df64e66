package main

import (
	"fmt"
	"strings"

	"formflow/internal/database"

	"github.com/spf13/cobra"
)

var seedDemoCmd = &cobra.Command{
	Use:   "seed-demo",
	Short: "Create the demo accounts (idempotent)",
	RunE: func(cmd *cobra.Command, args []string) error {
		_, db, _, err := connect(cmd.Context())
		if err != nil {
			return err
		}
		if err := database.SeedReferenceData(cmd.Context(), db); err != nil {
			return err
		}
		created, err := database.SeedDemoUsers(cmd.Context(), db)
		if err != nil {
			return err
		}
		if len(created) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "Demo users already exist")
			return nil
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created demo users: %s (password %q)\n", strings.Join(created, ", "), database.DemoPassword)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedDemoCmd)
}
