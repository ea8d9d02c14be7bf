package db

import (
	"context"
	"errors"
	"sync"

	"arcade-backend/internal/config"
)

// ErrCacheClosed is returned by Get after Close.
var ErrCacheClosed = errors.New("pool cache closed")

// DialFunc opens a pool for a database configuration.
type DialFunc func(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error)

// PoolCache shares one pool per connection string across the process.
// Only connections are shared; no wallet state lives here.
type PoolCache struct {
	pools  sync.Map // map[string]*Pool
	dial   DialFunc
	mu     sync.Mutex
	closed bool
}

// NewPoolCache creates a cache that opens pools with dial. A nil dial uses NewPool.
func NewPoolCache(dial DialFunc) *PoolCache {
	if dial == nil {
		dial = NewPool
	}
	return &PoolCache{dial: dial}
}

// Get returns the cached pool for cfg's DSN, dialing one on first use.
// When two callers race, the loser's pool is closed and the winner's returned.
func (c *PoolCache) Get(ctx context.Context, cfg *config.DatabaseConfig) (*Pool, error) {
	dsn := cfg.DSN()
	if v, ok := c.pools.Load(dsn); ok {
		return v.(*Pool), nil
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, ErrCacheClosed
	}

	pool, err := c.dial(ctx, cfg)
	if err != nil {
		return nil, err
	}

	actual, loaded := c.pools.LoadOrStore(dsn, pool)
	if loaded {
		pool.Close()
	}
	return actual.(*Pool), nil
}

// Close closes every cached pool.
func (c *PoolCache) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.pools.Range(func(key, value any) bool {
		value.(*Pool).Close()
		c.pools.Delete(key)
		return true
	})
}
