package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvitto/internal/cache"
	"kvitto/internal/core"
)

func seedList(t *testing.T, store *cache.FileStore, sender string, receipts ...core.Receipt) {
	t.Helper()
	list := core.ReceiptList{Sender: sender, Receipts: receipts}
	require.NoError(t, store.Put(context.Background(), cache.ReceiptsName, ListKey(sender), list))
}

func TestReportGroups(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	seedList(t, store, "",
		receipt(t, "a", "2024-01-05T10:00:00Z", "12.50"),
		receipt(t, "b", "2024-02-01T09:00:00Z", "3.00"),
		receipt(t, "c", "2024-01-20T18:30:00Z", "7.50"),
	)

	svc := NewReportService(store, nil, nil)
	groups, err := svc.Groups(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, core.MonthKey("2024-01"), groups[0].Month)
	assert.Equal(t, "20.00", groups[0].Total.Display())
	assert.Equal(t, core.MonthKey("2024-02"), groups[1].Month)
	assert.Equal(t, "3.00", groups[1].Total.Display())
}

func TestReportGroupsMissingCache(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	_, err = NewReportService(store, nil, nil).Groups(context.Background(), "shop")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestReportGroupsParseError(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	seedList(t, store, "shop", receipt(t, "bad", "yesterday", "1"))

	groups, err := NewReportService(store, nil, nil).Groups(context.Background(), "shop")
	assert.ErrorIs(t, err, core.ErrParse)
	assert.Nil(t, groups)
}

func TestReportGroupsCorruptCache(t *testing.T) {
	root := t.TempDir()
	store, err := cache.NewFileStore(root)
	require.NoError(t, err)
	dir := filepath.Join(root, cache.ReceiptsName)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shop.json"), []byte("{not json"), 0o644))

	_, err = NewReportService(store, nil, nil).Groups(context.Background(), "shop")
	assert.ErrorIs(t, err, core.ErrIO)
}

func TestReportGroupsUsesMemoryCacheUntilInvalidated(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	seedList(t, store, "shop", receipt(t, "a", "2024-03-01T00:00:00Z", "1"))

	svc := NewReportService(store, cache.NewLRUCache[[]core.Group](4, time.Minute), nil)
	first, err := svc.Groups(context.Background(), "shop")
	require.NoError(t, err)
	require.Len(t, first, 1)

	seedList(t, store, "shop",
		receipt(t, "a", "2024-03-01T00:00:00Z", "1"),
		receipt(t, "b", "2024-04-01T00:00:00Z", "2"),
	)
	cached, err := svc.Groups(context.Background(), "shop")
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	svc.Invalidate()
	fresh, err := svc.Groups(context.Background(), "shop")
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

// rewritingStore simulates a fetch finishing while Groups is reading: the
// first Get returns the old list, then the list is replaced and onRewrite runs.
type rewritingStore struct {
	*cache.FileStore
	once      bool
	rewrite   func()
	onRewrite func()
}

func (s *rewritingStore) Get(ctx context.Context, name, key string, out any) error {
	err := s.FileStore.Get(ctx, name, key, out)
	if !s.once && name == cache.ReceiptsName {
		s.once = true
		s.rewrite()
		s.onRewrite()
	}
	return err
}

func TestReportGroupsInvalidatedDuringRead(t *testing.T) {
	fs, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	seedList(t, fs, "shop", receipt(t, "a", "2024-03-01T00:00:00Z", "1"))

	store := &rewritingStore{FileStore: fs}
	svc := NewReportService(store, cache.NewLRUCache[[]core.Group](4, time.Minute), nil)
	store.rewrite = func() {
		seedList(t, fs, "shop",
			receipt(t, "a", "2024-03-01T00:00:00Z", "1"),
			receipt(t, "b", "2024-04-01T00:00:00Z", "2"),
		)
	}
	store.onRewrite = svc.Invalidate

	stale, err := svc.Groups(context.Background(), "shop")
	require.NoError(t, err)
	assert.Len(t, stale, 1, "the in-flight read sees the old list")

	fresh, err := svc.Groups(context.Background(), "shop")
	require.NoError(t, err)
	assert.Len(t, fresh, 2, "results read before an invalidation must not be cached")
}

func TestReportDetail(t *testing.T) {
	store, err := cache.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.Put(context.Background(), cache.ReceiptDetailName, "k1",
		core.ReceiptDetail{Key: "k1", StoreName: "ICA", Items: []core.LineItem{{Text: "bread", Quantity: 1}}}))

	svc := NewReportService(store, nil, nil)
	d, err := svc.Detail(context.Background(), "k1")
	require.NoError(t, err)
	assert.Equal(t, "ICA", d.StoreName)
	require.Len(t, d.Items, 1)

	_, err = svc.Detail(context.Background(), "missing")
	assert.ErrorIs(t, err, core.ErrNotFound)
}
