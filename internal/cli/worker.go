package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"kvitto/internal/amqp"
	"kvitto/internal/config"
	"kvitto/internal/core"
	applog "kvitto/internal/log"
	"kvitto/internal/worker"
)

func newWorkerCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run queued fetch requests and periodically retry failed details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.ValidateFetch(); err != nil {
				return err
			}
			if cfg.AMQPURL == "" {
				return fmt.Errorf("%w: the worker requires AMQP_URL", core.ErrConfig)
			}

			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.FetchRequestQueue, cfg.FetchCompletedQueue)
			if err != nil {
				return fmt.Errorf("%w: connect to AMQP: %v", core.ErrTransport, err)
			}
			defer client.Close()

			svc, cleanup, err := a.fetchService(cmd, cfg, client)
			if err != nil {
				return err
			}
			defer cleanup()

			ctx := cmd.Context()
			logger := a.logger.WithComponent(applog.ComponentWorker)
			w := worker.NewFetchWorker(svc, cfg.Sender, logger)

			if cfg.JournalPath != "" {
				go w.RunPeriodicRetry(ctx, cfg.RetryInterval)
				logger.Info("Periodic retry enabled", "interval", cfg.RetryInterval)
			}

			logger.Info("Worker started",
				"request_queue", cfg.FetchRequestQueue,
				"completed_queue", cfg.FetchCompletedQueue)
			err = client.ConsumeFetchRequests(ctx, w.HandleFetchRequest)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			logger.Info("Worker stopped")
			return nil
		},
	}
}
