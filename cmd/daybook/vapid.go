package main

import (
	"fmt"

	"github.com/dukerupert/daybook/internal/notify"
	"github.com/spf13/cobra"
)

var vapidCmd = &cobra.Command{
	Use:   "vapid-keys",
	Short: "Generate a VAPID key pair for web push",
	Args:  cobra.NoArgs,
	// Key generation needs neither config nor database.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		pub, priv, err := notify.GenerateVAPIDKeys()
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "DAYBOOK_VAPID_PUBLIC_KEY=%s\nDAYBOOK_VAPID_PRIVATE_KEY=%s\n", pub, priv)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(vapidCmd)
}
