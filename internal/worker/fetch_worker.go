// Package worker runs fetches requested over the message bus.
package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"kvitto/internal/amqp"
	"kvitto/internal/core"
	applog "kvitto/internal/log"
	"kvitto/internal/services"
	"kvitto/internal/source/kivra"
)

// Fetcher runs one fetch. Satisfied by *services.FetchService.
type Fetcher interface {
	Run(ctx context.Context, opts services.RunOptions) (services.FetchResult, error)
}

// FetchWorker turns fetch requests into fetch runs.
type FetchWorker struct {
	fetcher Fetcher
	sender  string
	logger  *applog.Logger
}

// NewFetchWorker builds a worker. sender is the default used by periodic
// retries and by requests that leave it empty.
func NewFetchWorker(fetcher Fetcher, sender string, logger *applog.Logger) *FetchWorker {
	if logger == nil {
		logger = applog.Discard()
	}
	return &FetchWorker{
		fetcher: fetcher,
		sender:  sender,
		logger:  logger.WithComponent(applog.ComponentWorker),
	}
}

// HandleFetchRequest processes a single fetch request from AMQP.
//
// Transport failures are returned as-is so the broker redelivers the
// request. Every other failure is marked permanent: retrying a request with
// bad credentials or a malformed response only repeats the failure.
func (w *FetchWorker) HandleFetchRequest(ctx context.Context, msg *amqp.FetchRequestMessage) error {
	sender := msg.Sender
	if sender == "" {
		sender = w.sender
	}
	w.logger.InfoContext(ctx, "Processing fetch request",
		applog.FieldSender, sender,
		"retry_failed", msg.RetryFailed,
		"requested_at", msg.Timestamp)

	res, err := w.fetcher.Run(ctx, services.RunOptions{
		Sender:      sender,
		SkipCached:  msg.SkipCached,
		RetryFailed: msg.RetryFailed,
	})
	if err != nil {
		if kivra.IsRetryable(err) {
			return fmt.Errorf("fetch %s: %w", sender, err)
		}
		return fmt.Errorf("%w: fetch %s: %v", amqp.ErrPermanent, sender, err)
	}

	w.logger.InfoContext(ctx, "Fetch request completed",
		applog.FieldRunID, res.RunID,
		applog.FieldSender, sender,
		applog.FieldCount, res.Receipts,
		applog.FieldFailures, len(res.Failures))
	return nil
}

// RetryFailed re-fetches details the journal marks as failed.
func (w *FetchWorker) RetryFailed(ctx context.Context) error {
	res, err := w.fetcher.Run(ctx, services.RunOptions{Sender: w.sender, RetryFailed: true})
	if err != nil {
		return fmt.Errorf("retry failed details: %w", err)
	}
	if res.Receipts > 0 {
		w.logger.InfoContext(ctx, "Retried failed details",
			applog.FieldRunID, res.RunID,
			applog.FieldCount, res.Receipts,
			applog.FieldFailures, len(res.Failures))
	}
	return nil
}

// RunPeriodicRetry calls RetryFailed every interval until ctx is done.
// Errors are logged and do not stop the loop.
func (w *FetchWorker) RunPeriodicRetry(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.RetryFailed(ctx); err != nil && !errors.Is(err, core.ErrNotFound) {
				w.logger.ErrorContext(ctx, "Periodic retry failed", applog.FieldError, err)
			}
		}
	}
}
