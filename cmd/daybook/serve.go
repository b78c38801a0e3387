package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/daybook/internal/backup"
	"github.com/dukerupert/daybook/internal/notify"
	"github.com/dukerupert/daybook/internal/server"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API, reminder scheduler and backup manager",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context) error {
	db, err := openDB()
	if err != nil {
		return err
	}
	defer db.Close()

	opts := serverOptions()
	if cfg.Desktop {
		desktop, err := notify.NewDesktop("Daybook")
		if err != nil {
			logger.Warn("desktop notifications unavailable", "error", err)
		} else {
			defer desktop.Close()
			opts.Notifiers = append(opts.Notifiers, desktop)
		}
	}
	if cfg.AMQP.URL != "" {
		q, err := notify.DialAMQP(ctx, cfg.AMQP.URL, cfg.AMQP.Exchange, 5, logger)
		if err != nil {
			logger.Warn("amqp reminders unavailable", "error", err)
		} else {
			defer q.Close()
			opts.Notifiers = append(opts.Notifiers, q)
		}
	}

	srv := server.New(db, opts, logger)
	g, gctx := errgroup.WithContext(ctx)

	scheduler := srv.Scheduler()
	scheduler.Start(gctx)
	defer scheduler.Stop()
	if _, err := scheduler.Reschedule(gctx); err != nil {
		logger.Error("reschedule reminders", "error", err)
	}

	manager := srv.BackupManager()
	if err := manager.Start(gctx); err != nil {
		return err
	}
	defer manager.Stop()

	if cfg.Backup.InboxDir != "" {
		inbox, err := backup.NewInbox(cfg.Backup.InboxDir, cfg.Backup.InboxPattern, cfg.Backup.Passphrase, manager, logger)
		if err != nil {
			return err
		}
		g.Go(func() error { return inbox.Run(gctx) })
	}

	g.Go(func() error {
		ticker := time.NewTicker(5 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if n := srv.RateLimiter().Cleanup(); n > 0 {
					logger.Debug("rate limiter cleanup", "removed", n)
				}
			}
		}
	})

	httpServer := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	g.Go(func() error {
		logger.Info("daybook listening", "addr", httpServer.Addr, "db", cfg.DBPath)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		srv.Hub().Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
