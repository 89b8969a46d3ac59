package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvitto/internal/amqp"
	"kvitto/internal/core"
	"kvitto/internal/services"
)

type fakeFetcher struct {
	calls []services.RunOptions
	err   error
}

func (f *fakeFetcher) Run(_ context.Context, opts services.RunOptions) (services.FetchResult, error) {
	f.calls = append(f.calls, opts)
	if f.err != nil {
		return services.FetchResult{}, f.err
	}
	return services.FetchResult{RunID: "run", Sender: opts.Sender, Receipts: 2}, nil
}

func TestHandleFetchRequestDefaultsSender(t *testing.T) {
	f := &fakeFetcher{}
	w := NewFetchWorker(f, "default-shop", nil)

	require.NoError(t, w.HandleFetchRequest(context.Background(), &amqp.FetchRequestMessage{SkipCached: true}))
	require.Len(t, f.calls, 1)
	assert.Equal(t, "default-shop", f.calls[0].Sender)
	assert.True(t, f.calls[0].SkipCached)

	require.NoError(t, w.HandleFetchRequest(context.Background(), amqp.NewFetchRequestMessage("other")))
	assert.Equal(t, "other", f.calls[1].Sender)
}

func TestHandleFetchRequestErrorClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		permanent bool
	}{
		{"transport is retried", fmt.Errorf("list: %w", core.ErrTransport), false},
		{"auth is permanent", fmt.Errorf("list: %w", core.ErrAuth), true},
		{"protocol is permanent", fmt.Errorf("list: %w", core.ErrProtocol), true},
		{"unknown is permanent", errors.New("boom"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := NewFetchWorker(&fakeFetcher{err: tc.err}, "shop", nil)
			err := w.HandleFetchRequest(context.Background(), amqp.NewFetchRequestMessage("shop"))
			require.Error(t, err)
			assert.Equal(t, tc.permanent, errors.Is(err, amqp.ErrPermanent))
		})
	}
}

func TestRetryFailed(t *testing.T) {
	f := &fakeFetcher{}
	w := NewFetchWorker(f, "shop", nil)
	require.NoError(t, w.RetryFailed(context.Background()))
	require.Len(t, f.calls, 1)
	assert.True(t, f.calls[0].RetryFailed)
	assert.Equal(t, "shop", f.calls[0].Sender)
}
