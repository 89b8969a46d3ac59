package services

import (
	"context"
	"fmt"
	"sync/atomic"

	"kvitto/internal/cache"
	"kvitto/internal/core"
	applog "kvitto/internal/log"
)

// ReportService reads the cache and aggregates it. It never talks to the
// remote source.
type ReportService struct {
	store  cache.Store
	groups cache.Cache[[]core.Group]
	logger *applog.Logger

	// generation is bumped by Invalidate; results read under an older
	// generation are not cached.
	generation atomic.Uint64
}

// NewReportService builds a report service. groups may be nil to disable
// in-memory caching of aggregated results.
func NewReportService(store cache.Store, groups cache.Cache[[]core.Group], logger *applog.Logger) *ReportService {
	if logger == nil {
		logger = applog.Discard()
	}
	return &ReportService{
		store:  store,
		groups: groups,
		logger: logger.WithComponent(applog.ComponentReport),
	}
}

// Receipts returns the cached receipt list of sender.
func (s *ReportService) Receipts(ctx context.Context, sender string) ([]core.Receipt, error) {
	var list core.ReceiptList
	if err := s.store.Get(ctx, cache.ReceiptsName, ListKey(sender), &list); err != nil {
		return nil, fmt.Errorf("load receipts: %w", err)
	}
	return list.Receipts, nil
}

// Groups returns the receipts of sender grouped by month in ascending order.
func (s *ReportService) Groups(ctx context.Context, sender string) ([]core.Group, error) {
	key := ListKey(sender)
	if s.groups != nil {
		if g, ok := s.groups.Get(key); ok {
			return g, nil
		}
	}

	gen := s.generation.Load()
	receipts, err := s.Receipts(ctx, sender)
	if err != nil {
		return nil, err
	}
	groups, err := core.GroupByMonth(receipts)
	if err != nil {
		s.logger.ErrorContext(ctx, "Aggregation failed", applog.FieldSender, sender, applog.FieldError, err)
		return nil, fmt.Errorf("group receipts: %w", err)
	}
	s.logger.DebugContext(ctx, "Receipts grouped",
		applog.FieldSender, sender,
		applog.FieldCount, len(receipts),
		"groups", len(groups))

	if s.groups != nil && s.generation.Load() == gen {
		s.groups.Set(key, groups)
	}
	return groups, nil
}

// Detail returns the cached detail of one receipt.
func (s *ReportService) Detail(ctx context.Context, key string) (core.ReceiptDetail, error) {
	var d core.ReceiptDetail
	if err := s.store.Get(ctx, cache.ReceiptDetailName, key, &d); err != nil {
		return core.ReceiptDetail{}, fmt.Errorf("load receipt %s: %w", key, err)
	}
	return d, nil
}

// Invalidate drops aggregated results so the next read goes to the store.
func (s *ReportService) Invalidate() {
	s.generation.Add(1)
	if s.groups != nil {
		s.groups.Purge()
	}
}
