package db

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arcade-backend/internal/config"
)

func fakeDial(calls *atomic.Int32) DialFunc {
	return func(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
		calls.Add(1)
		return &Pool{dsn: cfg.DSN()}, nil
	}
}

func TestPoolCache_ReusesPoolPerDSN(t *testing.T) {
	var calls atomic.Int32
	cache := NewPoolCache(fakeDial(&calls))
	ctx := context.Background()

	a := &config.DatabaseConfig{URL: "postgres://a@localhost/one"}
	b := &config.DatabaseConfig{URL: "postgres://a@localhost/two"}

	p1, err := cache.Get(ctx, a)
	require.NoError(t, err)
	p2, err := cache.Get(ctx, a)
	require.NoError(t, err)
	p3, err := cache.Get(ctx, b)
	require.NoError(t, err)

	assert.Same(t, p1, p2)
	assert.NotSame(t, p1, p3)
	assert.Equal(t, "postgres://a@localhost/two", p3.DSN())
	assert.Equal(t, int32(2), calls.Load())
}

func TestPoolCache_ConcurrentGetReturnsOnePool(t *testing.T) {
	var calls atomic.Int32
	cache := NewPoolCache(fakeDial(&calls))
	cfg := &config.DatabaseConfig{URL: "postgres://a@localhost/one"}

	const workers = 32
	got := make([]*Pool, workers)
	var wg sync.WaitGroup
	for i := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := cache.Get(context.Background(), cfg)
			if err == nil {
				got[i] = p
			}
		}()
	}
	wg.Wait()

	for _, p := range got {
		assert.Same(t, got[0], p)
	}
}

func TestPoolCache_DialErrorNotCached(t *testing.T) {
	fail := true
	cache := NewPoolCache(func(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
		if fail {
			return nil, errors.New("connection refused")
		}
		return &Pool{dsn: cfg.DSN()}, nil
	})
	cfg := &config.DatabaseConfig{URL: "postgres://a@localhost/one"}

	_, err := cache.Get(context.Background(), cfg)
	require.Error(t, err)

	fail = false
	p, err := cache.Get(context.Background(), cfg)
	require.NoError(t, err)
	assert.NotNil(t, p)
}

func TestPoolCache_GetAfterClose(t *testing.T) {
	var calls atomic.Int32
	cache := NewPoolCache(fakeDial(&calls))
	cfg := &config.DatabaseConfig{URL: "postgres://a@localhost/one"}

	_, err := cache.Get(context.Background(), cfg)
	require.NoError(t, err)

	cache.Close()

	_, err = cache.Get(context.Background(), cfg)
	assert.ErrorIs(t, err, ErrCacheClosed)
}
