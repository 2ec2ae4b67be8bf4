package index

import (
	"context"
	"time"

	"github.com/bradfitz/gomemcache/memcache"
)

const (
	keyPrefix   = "wheelhouse:index:"
	absentValue = "\x00absent"
)

// Cache memoises index lookups in memcached. The daemon sweeps the whole
// catalog every few minutes; most packages don't publish nearly that often.
// Only definite answers are cached -- transient errors always fall through
// to the next sweep.
type Cache struct {
	Next   Client
	Client *memcache.Client
	Expiry time.Duration
}

func NewCache(next Client, hosts []string, expiry time.Duration) *Cache {
	return &Cache{
		Next:   next,
		Client: memcache.New(hosts...),
		Expiry: expiry,
	}
}

func (c *Cache) LatestVersion(ctx context.Context, name string) (string, error) {
	key := keyPrefix + name
	if item, err := c.Client.Get(key); err == nil {
		if string(item.Value) == absentValue {
			return "", ErrNotPublished
		}
		return string(item.Value), nil
	}

	version, err := c.Next.LatestVersion(ctx, name)
	switch err {
	case nil:
		c.set(key, version)
	case ErrNotPublished:
		c.set(key, absentValue)
	}
	return version, err
}

func (c *Cache) set(key, value string) {
	// A failed write just means the next lookup misses; not worth failing
	// the sweep over.
	_ = c.Client.Set(&memcache.Item{
		Key:        key,
		Value:      []byte(value),
		Expiration: int32(c.Expiry / time.Second),
	})
}
