package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kvitto/internal/core"
)

func TestGetOrFetch(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	calls := 0
	fetch := func(context.Context) (payload, error) {
		calls++
		return payload{Name: "fresh", Count: calls}, nil
	}

	v, hit, err := GetOrFetch(ctx, s, ReceiptDetailName, "k", fetch)
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Equal(t, "fresh", v.Name)

	v, hit, err = GetOrFetch(ctx, s, ReceiptDetailName, "k", fetch)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Equal(t, 1, v.Count)
	assert.Equal(t, 1, calls)
}

func TestGetOrFetchErrorWritesNothing(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	boom := errors.New("boom")

	_, hit, err := GetOrFetch(ctx, s, ReceiptDetailName, "k", func(context.Context) (payload, error) {
		return payload{}, boom
	})
	assert.ErrorIs(t, err, boom)
	assert.False(t, hit)

	var got payload
	assert.ErrorIs(t, s.Get(ctx, ReceiptDetailName, "k", &got), core.ErrNotFound)
}
