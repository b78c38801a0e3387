package main

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	"github.com/dukerupert/daybook/internal/backup"
	"github.com/dukerupert/daybook/internal/config"
	"github.com/dukerupert/daybook/internal/database"
	"github.com/dukerupert/daybook/internal/logging"
	"github.com/dukerupert/daybook/internal/reminder"
	"github.com/dukerupert/daybook/internal/server"
	"github.com/spf13/cobra"
)

var (
	verbose bool
	dbPath  string

	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "daybook",
	Short: "Personal notes, schedules, routines and expenses",
	Long: `Daybook keeps notes, schedules, routines and a small expense ledger in a
local SQLite database, fires reminders for them, and exports or restores the
whole collection as a single JSON backup.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		if dbPath != "" {
			cfg.DBPath = dbPath
		}
		if verbose {
			cfg.LogLevel = "debug"
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger = logging.Setup(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (overrides DAYBOOK_DB_PATH)")
}

func openDB() (*sql.DB, error) {
	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.DBPath, err)
	}
	return db, nil
}

func serverOptions() server.Options {
	return server.Options{
		Backup: backup.Config{
			Dir:        cfg.Backup.Dir,
			Passphrase: cfg.Backup.Passphrase,
			S3: backup.S3Config{
				Endpoint:  cfg.Backup.S3.Endpoint,
				Bucket:    cfg.Backup.S3.Bucket,
				Region:    cfg.Backup.S3.Region,
				AccessKey: cfg.Backup.S3.AccessKey,
				SecretKey: cfg.Backup.S3.SecretKey,
				Prefix:    cfg.Backup.S3.Prefix,
			},
		},
		Reminders: reminder.Options{
			Exact:    cfg.Reminders.Exact,
			Interval: cfg.Reminders.Interval,
		},
		WebPush: server.WebPushConfig{
			PublicKey:  cfg.WebPush.PublicKey,
			PrivateKey: cfg.WebPush.PrivateKey,
			Subscriber: cfg.WebPush.Subscriber,
		},
		AllowedOrigins: cfg.AllowedOrigins,
	}
}
