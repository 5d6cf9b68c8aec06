package accounts

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// CachedStore keeps recently used accounts in memory for ttl.
type CachedStore struct {
	next  Store
	cache *expirable.LRU[int64, Account]
}

// NewCachedStore wraps next with an LRU of the given size.
func NewCachedStore(next Store, size int, ttl time.Duration) *CachedStore {
	return &CachedStore{next: next, cache: expirable.NewLRU[int64, Account](size, nil, ttl)}
}

// Account implements Store. Lookup failures are not cached.
func (c *CachedStore) Account(ctx context.Context, id int64) (Account, error) {
	if a, ok := c.cache.Get(id); ok {
		return a, nil
	}
	a, err := c.next.Account(ctx, id)
	if err != nil {
		return Account{}, err
	}
	c.cache.Add(id, a)
	return a, nil
}

// Forget drops id from the cache.
func (c *CachedStore) Forget(id int64) {
	c.cache.Remove(id)
}
