package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"kvitto/internal/amqp"
	"kvitto/internal/cache"
	"kvitto/internal/config"
	"kvitto/internal/core"
	applog "kvitto/internal/log"
	"kvitto/internal/source"
	"kvitto/internal/storage"
)

// DefaultDetailWorkers bounds concurrent detail requests.
const DefaultDetailWorkers = 4

// Journal records fetch runs and per-key detail outcomes.
type Journal interface {
	StartRun(ctx context.Context, runID, sender string) error
	FinishRun(ctx context.Context, run storage.Run) error
	RecordDetail(ctx context.Context, runID, sender, key string, fetchErr error) error
	FailedKeys(ctx context.Context, sender string) ([]string, error)
}

// Notifier announces completed runs to other processes.
type Notifier interface {
	PublishFetchCompleted(ctx context.Context, msg *amqp.FetchCompletedMessage) error
}

// RunOptions selects what a fetch run does.
type RunOptions struct {
	// Sender overrides the configured sender.
	Sender string
	// SkipCached fetches only details that are not cached yet.
	SkipCached bool
	// RetryFailed skips pagination and re-fetches only details the journal
	// marks as failed.
	RetryFailed bool
}

// FetchResult summarizes one run. Failures are sorted by key.
type FetchResult struct {
	RunID          string
	Sender         string
	Receipts       int
	DetailsFetched int
	DetailsSkipped int
	Failures       []*core.ItemError
}

// FetchService runs the paginate, persist and detail-fetch pipeline.
type FetchService struct {
	source   source.Source
	store    cache.Store
	cfg      config.SourceConfig
	workers  int
	journal  Journal
	notifier Notifier
	logger   *applog.Logger
	events   *applog.StructuredLogger
	newID    func() string
}

type FetchOption func(*FetchService)

func WithDetailWorkers(n int) FetchOption {
	return func(s *FetchService) {
		if n > 0 {
			s.workers = n
		}
	}
}

func WithJournal(j Journal) FetchOption {
	return func(s *FetchService) { s.journal = j }
}

func WithNotifier(n Notifier) FetchOption {
	return func(s *FetchService) { s.notifier = n }
}

func WithFetchLogger(l *applog.Logger) FetchOption {
	return func(s *FetchService) {
		if l != nil {
			s.logger = l
		}
	}
}

func NewFetchService(src source.Source, store cache.Store, cfg config.SourceConfig, opts ...FetchOption) *FetchService {
	s := &FetchService{
		source:  src,
		store:   store,
		cfg:     cfg,
		workers: DefaultDetailWorkers,
		logger:  applog.Discard(),
		newID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cfg.PageSize <= 0 {
		s.cfg.PageSize = 200
	}
	s.logger = s.logger.WithComponent(applog.ComponentFetch)
	s.events = applog.NewStructuredLogger(s.logger)
	return s
}

// Run executes one fetch run.
//
// Pagination and the list write are all-or-nothing: any error aborts the run
// and leaves the previous cached list untouched. Detail failures are isolated
// per receipt, reported in the result, and never abort siblings.
func (s *FetchService) Run(ctx context.Context, opts RunOptions) (FetchResult, error) {
	sender := opts.Sender
	if sender == "" {
		sender = s.cfg.Sender
	}
	res := FetchResult{RunID: s.newID(), Sender: sender}
	logger := s.logger.With(applog.FieldRunID, res.RunID, applog.FieldSender, sender)
	s.startRun(ctx, logger, res)

	var (
		receipts []core.Receipt
		err      error
	)
	if opts.RetryFailed {
		receipts, err = s.failedReceipts(ctx, sender)
	} else {
		receipts, err = s.paginate(ctx, logger, sender)
		if err == nil {
			err = s.persistList(ctx, sender, receipts)
		}
	}
	if err != nil {
		s.finishRun(ctx, logger, res, err)
		return FetchResult{}, err
	}
	res.Receipts = len(receipts)

	s.fetchDetails(ctx, logger, &res, receipts, opts.SkipCached)

	s.finishRun(ctx, logger, res, nil)
	s.events.LogFetchCompleted(ctx, res.RunID, sender, res.Receipts, len(res.Failures))
	s.notify(ctx, logger, res)
	return res, nil
}

// paginate reads every page in order. It stops on an empty page or when the
// source reports no more rows; offset advances by the rows received.
func (s *FetchService) paginate(ctx context.Context, logger *applog.Logger, sender string) ([]core.Receipt, error) {
	receipts := []core.Receipt{}
	seen := make(map[string]struct{})
	offset := 0
	for {
		page, err := s.source.ListReceipts(ctx, sender, s.cfg.PageSize, offset)
		if err != nil {
			return nil, fmt.Errorf("list receipts at offset %d: %w", offset, err)
		}
		logger.DebugContext(ctx, "Fetched receipt page",
			applog.FieldOffset, offset,
			applog.FieldCount, len(page.Receipts),
			"has_more", page.HasMore)

		if len(page.Receipts) == 0 {
			break
		}
		for _, r := range page.Receipts {
			if _, dup := seen[r.Key]; dup {
				logger.WarnContext(ctx, "Duplicate receipt key in listing", applog.FieldReceiptKey, r.Key)
				continue
			}
			seen[r.Key] = struct{}{}
			receipts = append(receipts, r)
		}
		offset += len(page.Receipts)
		if !page.HasMore {
			break
		}
	}
	logger.InfoContext(ctx, "Receipt listing complete", applog.FieldCount, len(receipts))
	return receipts, nil
}

func (s *FetchService) persistList(ctx context.Context, sender string, receipts []core.Receipt) error {
	list := core.ReceiptList{Sender: sender, Receipts: receipts}
	if err := s.store.Put(ctx, cache.ReceiptsName, ListKey(sender), list); err != nil {
		return fmt.Errorf("persist receipt list: %w", err)
	}
	return nil
}

// failedReceipts returns the cached receipts whose last detail fetch failed.
func (s *FetchService) failedReceipts(ctx context.Context, sender string) ([]core.Receipt, error) {
	if s.journal == nil {
		return nil, fmt.Errorf("%w: retrying failed details requires the fetch journal", core.ErrConfig)
	}
	keys, err := s.journal.FailedKeys(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("load failed keys: %w", err)
	}
	var list core.ReceiptList
	if err := s.store.Get(ctx, cache.ReceiptsName, ListKey(sender), &list); err != nil {
		return nil, fmt.Errorf("load cached receipt list: %w", err)
	}

	out := []core.Receipt{}
	for _, r := range list.Receipts {
		if slices.Contains(keys, r.Key) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *FetchService) fetchDetails(ctx context.Context, logger *applog.Logger, res *FetchResult, receipts []core.Receipt, skipCached bool) {
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	g.SetLimit(s.workers)

	for _, r := range receipts {
		key := r.Key
		g.Go(func() error {
			start := time.Now()
			hit, err := s.fetchDetail(ctx, key, skipCached)

			mu.Lock()
			switch {
			case err != nil:
				res.Failures = append(res.Failures, &core.ItemError{Key: key, Err: err})
			case hit:
				res.DetailsSkipped++
			default:
				res.DetailsFetched++
			}
			mu.Unlock()

			if err != nil {
				s.events.LogDetailFailed(ctx, res.RunID, key, err)
			} else {
				logger.DebugContext(ctx, "Receipt detail stored",
					applog.FieldReceiptKey, key, "cached", hit,
					applog.FieldDuration, time.Since(start).Milliseconds())
			}
			if !hit && s.journal != nil {
				if jerr := s.journal.RecordDetail(ctx, res.RunID, res.Sender, key, err); jerr != nil {
					logger.WarnContext(ctx, "Failed to record detail outcome",
						applog.FieldReceiptKey, key, applog.FieldError, jerr)
				}
			}
			// Item failures never cancel siblings.
			return nil
		})
	}
	_ = g.Wait()

	slices.SortFunc(res.Failures, func(a, b *core.ItemError) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
}

func (s *FetchService) fetchDetail(ctx context.Context, key string, skipCached bool) (bool, error) {
	fetch := func(ctx context.Context) (core.ReceiptDetail, error) {
		return s.source.GetReceiptDetail(ctx, key)
	}
	if skipCached {
		_, hit, err := cache.GetOrFetch(ctx, s.store, cache.ReceiptDetailName, key, fetch)
		return hit, err
	}
	d, err := fetch(ctx)
	if err != nil {
		return false, err
	}
	return false, s.store.Put(ctx, cache.ReceiptDetailName, key, d)
}

func (s *FetchService) startRun(ctx context.Context, logger *applog.Logger, res FetchResult) {
	logger.InfoContext(ctx, "Fetch run started")
	if s.journal == nil {
		return
	}
	if err := s.journal.StartRun(ctx, res.RunID, res.Sender); err != nil {
		logger.WarnContext(ctx, "Failed to record run start", applog.FieldError, err)
	}
}

func (s *FetchService) finishRun(ctx context.Context, logger *applog.Logger, res FetchResult, runErr error) {
	if runErr != nil {
		logger.ErrorContext(ctx, "Fetch run failed", applog.FieldError, runErr)
	}
	if s.journal == nil {
		return
	}
	run := storage.Run{
		ID:             res.RunID,
		Status:         storage.RunSucceeded,
		Receipts:       res.Receipts,
		DetailsFetched: res.DetailsFetched,
		DetailsSkipped: res.DetailsSkipped,
		Failures:       len(res.Failures),
	}
	switch {
	case runErr != nil:
		run.Status = storage.RunFailed
		run.Error = runErr.Error()
	case len(res.Failures) > 0:
		run.Status = storage.RunPartial
	}
	// The run context may already be cancelled; the outcome is still recorded.
	if err := s.journal.FinishRun(context.WithoutCancel(ctx), run); err != nil {
		logger.WarnContext(ctx, "Failed to record run outcome", applog.FieldError, err)
	}
}

func (s *FetchService) notify(ctx context.Context, logger *applog.Logger, res FetchResult) {
	if s.notifier == nil {
		return
	}
	msg := amqp.NewFetchCompletedMessage(res.RunID, res.Sender, res.Receipts, res.DetailsFetched, len(res.Failures))
	if err := s.notifier.PublishFetchCompleted(ctx, msg); err != nil {
		logger.WarnContext(ctx, "Failed to publish fetch completion", applog.FieldError, err)
	}
}

// ListKey maps a sender to the cache key of its receipt list.
func ListKey(sender string) string {
	if sender == "" {
		return "all"
	}
	return sender
}

// FailureKeys returns the keys of failed items.
func (r FetchResult) FailureKeys() []string {
	keys := make([]string, len(r.Failures))
	for i, f := range r.Failures {
		keys[i] = f.Key
	}
	return keys
}

// Err joins the item failures, or returns nil when every detail succeeded.
func (r FetchResult) Err() error {
	if len(r.Failures) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failures))
	for i, f := range r.Failures {
		errs[i] = f
	}
	return errors.Join(errs...)
}
