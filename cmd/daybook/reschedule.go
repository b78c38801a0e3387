package main

import (
	"fmt"

	"github.com/dukerupert/daybook/internal/server"
	"github.com/spf13/cobra"
)

var rescheduleCmd = &cobra.Command{
	Use:   "reschedule",
	Short: "Rebuild the reminder registry",
	Long: `Reschedule drops reminders whose time has passed and registers every
upcoming reminder of notes, schedules and routines again.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		n, err := server.New(db, serverOptions(), logger).Scheduler().Reschedule(cmd.Context())
		if err != nil {
			return fmt.Errorf("reschedule reminders: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Registered %d reminders\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rescheduleCmd)
}
