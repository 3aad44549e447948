package conversation

import (
	"time"

	"github.com/patrickmn/go-cache"
)

// Store holds the current state per sender.
type Store interface {
	Get(sender string) (State, bool)
	Set(sender string, st State)
	Delete(sender string)
	Count() int
}

// CacheStore keeps states in memory. Entries are evicted after ttl so
// abandoned flows do not accumulate; the engine applies the shorter per step
// timeouts itself.
type CacheStore struct {
	c *cache.Cache
}

func NewCacheStore(ttl time.Duration) *CacheStore {
	return &CacheStore{c: cache.New(ttl, ttl/2)}
}

func (s *CacheStore) Get(sender string) (State, bool) {
	v, ok := s.c.Get(sender)
	if !ok {
		return nil, false
	}
	st, ok := v.(State)
	return st, ok
}

func (s *CacheStore) Set(sender string, st State) {
	s.c.SetDefault(sender, st)
}

func (s *CacheStore) Delete(sender string) {
	s.c.Delete(sender)
}

func (s *CacheStore) Count() int {
	return s.c.ItemCount()
}
