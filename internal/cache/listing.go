// Package cache holds the single-entry listing cache that fronts the full
// appointment listing. The cache is deliberately not invalidated on writes:
// readers of the cached listing may observe results up to one TTL stale, and
// callers that cannot tolerate that bypass it entirely.
package cache

import (
	"sync"
	"time"

	"clinicqueue/backend/internal/domain"
)

type entry struct {
	items    []domain.Appointment
	deadline time.Time
	ttl      time.Duration
}

// ListingCache stores one snapshot of the full appointment listing with a
// sliding expiration: every hit pushes the deadline out by the entry's TTL
// from the time of the read. Expiry is checked lazily on Get.
type ListingCache struct {
	mu    sync.Mutex
	entry *entry

	now func() time.Time
}

func NewListingCache() *ListingCache {
	return &ListingCache{now: time.Now}
}

// Get returns the cached listing and slides the expiration window forward.
// The second return is false on a miss or an expired entry.
func (c *ListingCache) Get() ([]domain.Appointment, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.entry == nil {
		return nil, false
	}
	now := c.now()
	if now.After(c.entry.deadline) {
		c.entry = nil
		return nil, false
	}
	c.entry.deadline = now.Add(c.entry.ttl)
	return c.entry.items, true
}

// Set replaces the snapshot. The stored slice is a copy, so later mutation of
// the caller's slice cannot corrupt what concurrent readers see.
func (c *ListingCache) Set(items []domain.Appointment, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	snapshot := make([]domain.Appointment, len(items))
	copy(snapshot, items)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entry = &entry{
		items:    snapshot,
		deadline: c.now().Add(ttl),
		ttl:      ttl,
	}
}
