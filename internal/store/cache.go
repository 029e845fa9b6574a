package store

import (
	"sync"

	"github.com/golang/groupcache/lru"
)

// AccountCache wraps a Store, memoizing AccountInfo lookups so that
// repeated ACCOUNT_INFO calls against the same user don't round-trip to
// MySQL every time. Every other Store method passes straight through to
// the wrapped Store uncached. Grounded on
// driver/redis/redis.go's lru.Cache usage inside RedisDriver.get.
type AccountCache struct {
	Store
	mu    sync.Mutex
	cache *lru.Cache
}

// NewAccountCache wraps store with an LRU of the given capacity.
func NewAccountCache(store Store, capacity int) *AccountCache {
	return &AccountCache{Store: store, cache: lru.New(capacity)}
}

// AccountInfo serves from cache when possible, falling through to the
// wrapped Store and populating the cache on a miss.
func (c *AccountCache) AccountInfo(username string) (User, error) {
	c.mu.Lock()
	if v, hit := c.cache.Get(username); hit {
		c.mu.Unlock()
		return v.(User), nil
	}
	c.mu.Unlock()

	u, err := c.Store.AccountInfo(username)
	if err != nil {
		return User{}, err
	}
	c.mu.Lock()
	c.cache.Add(username, u)
	c.mu.Unlock()
	return u, nil
}

// UpdateUser invalidates the cached entry for oldUser before delegating,
// since the update may change the username the entry is keyed by.
func (c *AccountCache) UpdateUser(oldUser, oldPass, newPass, newUser, newMail, newCell string) error {
	c.mu.Lock()
	c.cache.Remove(oldUser)
	c.mu.Unlock()
	return c.Store.UpdateUser(oldUser, oldPass, newPass, newUser, newMail, newCell)
}
