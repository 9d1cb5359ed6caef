package hub

import (
	"sync"
	"time"

	"modelmgr/pkg/types"
)

// resultCache holds the last discovery result with a TTL. It is an explicit
// per-instance object so tests can construct and reset it deterministically.
type resultCache struct {
	mu        sync.Mutex
	artifacts []types.Artifact
	fetchedAt time.Time
	ttl       time.Duration
}

func newResultCache(ttl time.Duration) *resultCache {
	return &resultCache{ttl: ttl}
}

// valid is the pure invalidation check.
func (c *resultCache) valid(now time.Time) bool {
	return !c.fetchedAt.IsZero() && now.Sub(c.fetchedAt) < c.ttl
}

func (c *resultCache) get(now time.Time) ([]types.Artifact, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.valid(now) {
		return nil, false
	}
	out := make([]types.Artifact, len(c.artifacts))
	copy(out, c.artifacts)
	return out, true
}

func (c *resultCache) put(arts []types.Artifact, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifacts = make([]types.Artifact, len(arts))
	copy(c.artifacts, arts)
	c.fetchedAt = now
}

func (c *resultCache) reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.artifacts = nil
	c.fetchedAt = time.Time{}
}
