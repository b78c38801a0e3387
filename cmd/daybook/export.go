package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dukerupert/daybook/internal/server"
	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
)

var (
	exportOut        string
	exportPassphrase string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Write a backup of every record",
	Long: `Export writes the whole collection as a JSON backup document. With
--passphrase the document is encrypted. Without --out it goes to stdout.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := openDB()
		if err != nil {
			return err
		}
		defer db.Close()

		svc := server.New(db, serverOptions(), logger).BackupService()

		var w io.Writer = cmd.OutOrStdout()
		if exportOut != "" {
			f, err := os.OpenFile(exportOut, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
			if err != nil {
				return fmt.Errorf("create %s: %w", exportOut, err)
			}
			defer f.Close()
			w = f
		}

		start := time.Now()
		n, err := svc.WriteTo(w, exportPassphrase)
		if err != nil {
			return err
		}
		logger.Info("export complete", "size", humanize.Bytes(uint64(n)), "encrypted", exportPassphrase != "", "took", time.Since(start))
		if exportOut != "" {
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s to %s\n", humanize.Bytes(uint64(n)), exportOut)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "Output file (default stdout)")
	exportCmd.Flags().StringVarP(&exportPassphrase, "passphrase", "p", "", "Encrypt the backup with this passphrase")
}
