package sources

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ethpandaops/resultoor/pkg/hive"
)

// Compile-time interface check.
var _ Reader = (*cachingReader)(nil)

type cacheEntry struct {
	value     any
	expiresAt time.Time
}

// cachingReader wraps a Reader with per-key TTL caches. Listings
// change whenever new runs land and get a short TTL; result details
// are immutable once written and get a long one. Concurrent fetches
// for the same key are collapsed through singleflight. Errors are
// never cached.
type cachingReader struct {
	inner      Reader
	listingTTL time.Duration
	detailTTL  time.Duration

	mu      sync.Mutex
	entries map[string]cacheEntry

	group singleflight.Group
}

// NewCachingReader wraps inner with TTL caching for listings and test
// details. File reads pass through uncached.
func NewCachingReader(inner Reader, listingTTL, detailTTL time.Duration) Reader {
	return &cachingReader{
		inner:      inner,
		listingTTL: listingTTL,
		detailTTL:  detailTTL,
		entries:    make(map[string]cacheEntry),
	}
}

func (c *cachingReader) Directories() []Directory {
	return c.inner.Directories()
}

func (c *cachingReader) ListRuns(
	ctx context.Context, directory string,
) ([]hive.RunRecord, error) {
	key := "listing:" + directory

	v, err := c.fetch(ctx, key, c.listingTTL, func() (any, error) {
		return c.inner.ListRuns(ctx, directory)
	})
	if err != nil {
		return nil, err
	}

	return v.([]hive.RunRecord), nil
}

func (c *cachingReader) GetTestDetail(
	ctx context.Context, directory, fileName string,
) (*hive.TestDetail, error) {
	key := "detail:" + directory + "/" + fileName

	v, err := c.fetch(ctx, key, c.detailTTL, func() (any, error) {
		return c.inner.GetTestDetail(ctx, directory, fileName)
	})
	if err != nil {
		return nil, err
	}

	return v.(*hive.TestDetail), nil
}

func (c *cachingReader) GetFile(
	ctx context.Context, directory, name string,
) ([]byte, error) {
	return c.inner.GetFile(ctx, directory, name)
}

func (c *cachingReader) fetch(
	_ context.Context,
	key string,
	ttl time.Duration,
	load func() (any, error),
) (any, error) {
	c.mu.Lock()

	if entry, ok := c.entries[key]; ok && time.Now().Before(entry.expiresAt) {
		c.mu.Unlock()

		return entry.value, nil
	}

	c.mu.Unlock()

	v, err, _ := c.group.Do(key, func() (any, error) {
		value, err := load()
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.entries[key] = cacheEntry{
			value:     value,
			expiresAt: time.Now().Add(ttl),
		}
		c.mu.Unlock()

		return value, nil
	})
	if err != nil {
		return nil, err
	}

	return v, nil
}
