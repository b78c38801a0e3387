package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/dukerupert/daybook/internal/server"
	"github.com/spf13/cobra"
)

var importPassphrase string

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Restore records from a backup file",
	Long: `Import adds every record of a backup document to the database. Records
that cannot be restored are skipped and counted. Reminders are rebuilt
afterwards.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()

		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := server.New(db, serverOptions(), logger).BackupService()
		res := svc.ReadFrom(cmd.Context(), f, importPassphrase)

		fmt.Fprintln(cmd.OutOrStdout(), res.Message)
		for table, n := range res.Tables {
			fmt.Fprintf(cmd.OutOrStdout(), "  %-14s %d\n", table, n)
		}
		if !res.Success {
			return errors.New("import failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(importCmd)
	importCmd.Flags().StringVarP(&importPassphrase, "passphrase", "p", "", "Passphrase for an encrypted backup")
}
