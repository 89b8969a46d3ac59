package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"kvitto/internal/amqp"
	"kvitto/internal/config"
	"kvitto/internal/core"
	applog "kvitto/internal/log"
	"kvitto/internal/services"
)

func newFetchCmd(a *app) *cobra.Command {
	var (
		opts  services.RunOptions
		async bool
	)
	cmd := &cobra.Command{
		Use:   "fetch",
		Short: "Download the receipt list and every receipt detail into the cache",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if async {
				return a.queueFetch(cmd, opts)
			}
			return a.runFetch(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.Sender, "sender", "", "restrict the fetch to one sender")
	cmd.Flags().BoolVar(&opts.SkipCached, "skip-cached", false, "do not re-download details already in the cache")
	cmd.Flags().BoolVar(&opts.RetryFailed, "retry-failed", false, "only re-fetch details that failed in earlier runs")
	cmd.Flags().BoolVar(&async, "async", false, "queue the fetch for a worker instead of running it")
	return cmd
}

func (a *app) runFetch(cmd *cobra.Command, opts services.RunOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if opts.Sender != "" {
		cfg.Sender = opts.Sender
	}
	opts.Sender = cfg.Sender
	if err := cfg.ValidateFetch(); err != nil {
		return err
	}

	svc, cleanup, err := a.fetchService(cmd, cfg, nil)
	if err != nil {
		return err
	}
	defer cleanup()

	res, err := svc.Run(cmd.Context(), opts)
	if err != nil {
		return err
	}
	printFetchResult(cmd.OutOrStdout(), res)
	return nil
}

// fetchService assembles the pipeline. notifier overrides the AMQP client
// the service would otherwise open from cfg.
func (a *app) fetchService(cmd *cobra.Command, cfg *config.Config, notifier services.Notifier) (*services.FetchService, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	src, err := a.newSource(cmd, cfg)
	if err != nil {
		return nil, nil, err
	}
	store, err := a.openStore(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts := []services.FetchOption{
		services.WithDetailWorkers(cfg.DetailWorkers),
		services.WithFetchLogger(a.logger),
	}

	journal, err := OpenJournal(a.logger, cfg.JournalPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: journal: %v", core.ErrIO, err)
	}
	if journal != nil {
		closers = append(closers, func() { journal.Close() })
		opts = append(opts, services.WithJournal(journal))
	}

	if notifier == nil && cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.FetchRequestQueue, cfg.FetchCompletedQueue)
		if err != nil {
			a.logger.Warn("AMQP unavailable, completion events disabled", applog.FieldError, err)
		} else {
			closers = append(closers, func() { client.Close() })
			notifier = client
		}
	}
	if notifier != nil {
		opts = append(opts, services.WithNotifier(notifier))
	}

	return services.NewFetchService(src, store, cfg.Source(), opts...), cleanup, nil
}

func (a *app) queueFetch(cmd *cobra.Command, opts services.RunOptions) error {
	cfg, err := a.config(opts.Sender)
	if err != nil {
		return err
	}
	if cfg.AMQPURL == "" {
		return fmt.Errorf("%w: --async requires AMQP_URL", core.ErrConfig)
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.FetchRequestQueue, cfg.FetchCompletedQueue)
	if err != nil {
		return fmt.Errorf("%w: connect to AMQP: %v", core.ErrTransport, err)
	}
	defer client.Close()

	msg := amqp.NewFetchRequestMessage(cfg.Sender)
	msg.SkipCached = opts.SkipCached
	msg.RetryFailed = opts.RetryFailed
	if err := client.PublishFetchRequest(cmd.Context(), msg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Fetch queued for %s\n", services.ListKey(cfg.Sender))
	return nil
}

func printFetchResult(w io.Writer, res services.FetchResult) {
	fmt.Fprintf(w, "Fetched %d receipts for %s: %d details downloaded, %d skipped\n",
		res.Receipts, services.ListKey(res.Sender), res.DetailsFetched, res.DetailsSkipped)
	if len(res.Failures) == 0 {
		return
	}
	fmt.Fprintf(w, "%d details failed:\n", len(res.Failures))
	for _, f := range res.Failures {
		fmt.Fprintf(w, "  %s: %v\n", f.Key, f.Err)
	}
}
