package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"kvitto/internal/amqp"
	"kvitto/internal/cache"
	"kvitto/internal/core"
	apphttp "kvitto/internal/http"
	applog "kvitto/internal/log"
	"kvitto/internal/middleware/ratelimit"
	"kvitto/internal/services"
)

const groupCacheEntries = 64

func newServeCmd(a *app) *cobra.Command {
	var (
		port   string
		sender string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the monthly report, receipt details and chart over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd, port, sender)
		},
	}
	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (default from PORT)")
	cmd.Flags().StringVar(&sender, "sender", "", "serve one sender's cached list")
	return cmd
}

func (a *app) serve(cmd *cobra.Command, port, sender string) error {
	cfg, err := a.config(sender)
	if err != nil {
		return err
	}
	if port != "" {
		cfg.Port = port
		if err := cfg.Validate(); err != nil {
			return err
		}
	}
	ctx := cmd.Context()
	logger := a.logger

	groups := cache.NewLRUCache[[]core.Group](groupCacheEntries, cfg.GroupCacheTTL)
	manager := cache.NewManager(logger)
	manager.Register(groups)
	manager.StartCleanup(cfg.GroupCacheTTL)
	defer manager.Stop()

	store, err := a.openStore(cfg)
	if err != nil {
		return err
	}
	reports := services.NewReportService(store, groups, logger)

	// Pick up fetches made by other processes.
	watcher, err := cache.NewWatcher(store.Root(), []string{cache.ReceiptsName, cache.ReceiptDetailName}, logger,
		func(string, string) { reports.Invalidate() })
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrIO, err)
	}
	defer watcher.Close()
	go watcher.Run(ctx)

	checks := []apphttp.Check{{
		Name: "cache",
		Probe: func(context.Context) error {
			if !fileExists(store.Root()) {
				return fmt.Errorf("cache directory %s missing", store.Root())
			}
			return nil
		},
	}}

	journal, err := OpenJournal(logger, cfg.JournalPath)
	if err != nil {
		logger.Warn("Fetch journal unavailable", applog.FieldError, err)
	} else if journal != nil {
		defer journal.Close()
		checks = append(checks, apphttp.Check{Name: "journal", Probe: journal.Ping})
	}

	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.FetchRequestQueue, cfg.FetchCompletedQueue)
		if err != nil {
			logger.Warn("AMQP unavailable, relying on the cache watcher", applog.FieldError, err)
		} else {
			defer client.Close()
			go func() {
				err := client.ConsumeFetchCompleted(ctx, func(ctx context.Context, msg *amqp.FetchCompletedMessage) error {
					logger.InfoContext(ctx, "Fetch completed elsewhere, refreshing report",
						applog.FieldRunID, msg.RunID,
						applog.FieldSender, msg.Sender)
					reports.Invalidate()
					return nil
				})
				if err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("Fetch completion consumer stopped", applog.FieldError, err)
				}
			}()
		}
	}

	srv, err := apphttp.NewServer(":"+cfg.Port, reports, apphttp.Options{
		Sender:     cfg.Sender,
		Logger:     logger,
		Checks:     checks,
		CacheStats: groups.Stats,
		RateLimit:  ratelimit.DefaultConfig(),
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()
	fmt.Fprintf(cmd.OutOrStdout(), "Server running on http://localhost:%s/\n", cfg.Port)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("%w: listen: %v", core.ErrIO, err)
		}
		return nil
	case <-ctx.Done():
	}
	return GracefulShutdown(ctx, logger, apphttp.ShutdownTimeout, srv.Shutdown)
}
