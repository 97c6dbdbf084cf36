package store

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/JineeshTS/GanakysPortal-sub004/pkg/schema"
)

// CachedDefinitions fronts a DefinitionStore with a bounded TTL cache keyed
// by definition ID. Stored definitions never change, so a hit is always current.
type CachedDefinitions struct {
	DefinitionStore
	c *ttlcache.Cache[string, *schema.ProcessDefinition]
}

// NewCachedDefinitions wraps next with a cache holding at most size entries for ttl each.
func NewCachedDefinitions(next DefinitionStore, size int, ttl time.Duration) *CachedDefinitions {
	c := ttlcache.New(
		ttlcache.WithCapacity[string, *schema.ProcessDefinition](uint64(size)),
		ttlcache.WithTTL[string, *schema.ProcessDefinition](ttl),
	)
	return &CachedDefinitions{DefinitionStore: next, c: c}
}

// GetDefinition returns the cached definition or loads and caches it.
func (cd *CachedDefinitions) GetDefinition(ctx context.Context, id string) (*schema.ProcessDefinition, error) {
	if item := cd.c.Get(id); item != nil {
		return item.Value(), nil
	}
	def, err := cd.DefinitionStore.GetDefinition(ctx, id)
	if err != nil {
		return nil, err
	}
	cd.c.Set(id, def, ttlcache.DefaultTTL)
	return def, nil
}

// CreateDefinition stores def and primes the cache with it.
func (cd *CachedDefinitions) CreateDefinition(ctx context.Context, def *schema.ProcessDefinition) error {
	if err := cd.DefinitionStore.CreateDefinition(ctx, def); err != nil {
		return err
	}
	cd.c.Set(def.ID, def, ttlcache.DefaultTTL)
	return nil
}

// Len reports the number of cached definitions.
func (cd *CachedDefinitions) Len() int { return cd.c.Len() }

// StartEviction runs the expiry loop until ctx is done.
func (cd *CachedDefinitions) StartEviction(ctx context.Context) {
	go cd.c.Start()

	<-ctx.Done()

	cd.c.Stop()
}
