package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWatcherReportsWrites(t *testing.T) {
	s := newStore(t)
	changes := make(chan string, 16)
	w, err := NewWatcher(s.Root(), []string{ReceiptsName}, nil, func(name, key string) {
		changes <- name + "/" + key
	})
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go w.Run(ctx)

	require.NoError(t, s.Put(context.Background(), ReceiptsName, "shop", payload{Name: "x"}))

	select {
	case got := <-changes:
		require.Equal(t, "receipts/shop", got)
	case <-time.After(5 * time.Second):
		t.Fatal("no change event")
	}
}
