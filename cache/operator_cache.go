package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"go.pilab.hu/sentinel/domain"
)

const operatorsKey = "operators"

// OperatorCache wraps an OperatorDirectory with a TTL cache so the tracking
// hot path never hits the user directory once per alert.
type OperatorCache struct {
	directory domain.OperatorDirectory
	cache     *ttlcache.Cache[string, []domain.Operator]
}

// NewOperatorCache creates the cache. Entries expire after ttl and are
// re-fetched from the directory on the next lookup.
func NewOperatorCache(directory domain.OperatorDirectory, ttl time.Duration) *OperatorCache {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, []domain.Operator](ttl),
		ttlcache.WithDisableTouchOnHit[string, []domain.Operator](),
	)

	// Start the expired-entry cleanup process.
	go cache.Start()

	return &OperatorCache{
		directory: directory,
		cache:     cache,
	}
}

// ListOperators implements domain.OperatorDirectory.
func (c *OperatorCache) ListOperators(ctx context.Context) ([]domain.Operator, error) {
	if item := c.cache.Get(operatorsKey); item != nil {
		return item.Value(), nil
	}

	operators, err := c.directory.ListOperators(ctx)
	if err != nil {
		return nil, err
	}
	c.cache.Set(operatorsKey, operators, ttlcache.DefaultTTL)
	return operators, nil
}

// Stop shuts down the cache's cleanup goroutine.
func (c *OperatorCache) Stop() {
	c.cache.Stop()
}
