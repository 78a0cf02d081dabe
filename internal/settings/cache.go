package settings

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// CachedSource wraps a Source with a short TTL cache. The scheduler reads
// the same business settings for every candidate of that business each
// tick; caching keeps a large tick from hammering the settings tables.
// Settings edits take effect within one TTL.
type CachedSource struct {
	next  Source
	cache *gocache.Cache
}

func NewCachedSource(next Source, ttl time.Duration) *CachedSource {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedSource{
		next:  next,
		cache: gocache.New(ttl, 2*ttl),
	}
}

var _ Source = (*CachedSource)(nil)

func (c *CachedSource) BusinessSettings(ctx context.Context, businessID string) (BusinessSettings, error) {
	key := "biz:" + businessID
	if v, found := c.cache.Get(key); found {
		return v.(BusinessSettings), nil
	}
	s, err := c.next.BusinessSettings(ctx, businessID)
	if err != nil {
		return BusinessSettings{}, err
	}
	c.cache.SetDefault(key, s)
	return s, nil
}

func (c *CachedSource) UserPreferences(ctx context.Context, customerID string) (UserPreferences, error) {
	key := "cust:" + customerID
	if v, found := c.cache.Get(key); found {
		return v.(UserPreferences), nil
	}
	p, err := c.next.UserPreferences(ctx, customerID)
	if err != nil {
		return UserPreferences{}, err
	}
	c.cache.SetDefault(key, p)
	return p, nil
}

func (c *CachedSource) DistinctReminderOffsets(ctx context.Context) ([]int, error) {
	const key = "offsets"
	if v, found := c.cache.Get(key); found {
		return v.([]int), nil
	}
	offsets, err := c.next.DistinctReminderOffsets(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.SetDefault(key, offsets)
	return offsets, nil
}
