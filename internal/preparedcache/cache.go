// Package preparedcache caches planned queries keyed by snapshot and IR
// digest (§4.L), so repeated queries against an unchanged snapshot skip
// parse/elaborate/plan and go straight to execution.
package preparedcache

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/axiograph/axiograph/internal/axql"
	"github.com/axiograph/axiograph/internal/elaborate"
	"github.com/axiograph/axiograph/internal/planner"
)

// DefaultCapacity is the LRU capacity used when no configuration overrides
// it (§4.L, §6 configuration table).
const DefaultCapacity = 32

// Entry is one cached prepared query: its elaborated IR plus the compiled
// plan that was built against a specific snapshot.
type Entry struct {
	Elaborated *elaborate.Elaborated
	Plan       *planner.Plan
}

// CacheKey is (snapshot-key, digest(query-IR)) per §4.L.
type CacheKey struct {
	SnapshotKey string
	IRDigest    string
}

// Cache is an LRU of prepared queries. The zero value is not usable; use
// New. Capacity and eviction are delegated entirely to
// hashicorp/golang-lru; Cache only adds the snapshot+digest keying and the
// Clear-on-reload hook (§4.L "clear() on snapshot reload").
type Cache struct {
	lru *lru.Cache[CacheKey, *Entry]
}

// New builds a Cache with the given capacity; a capacity <= 0 uses
// DefaultCapacity.
func New(capacity int) (*Cache, error) {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	l, err := lru.New[CacheKey, *Entry](capacity)
	if err != nil {
		return nil, err
	}
	return &Cache{lru: l}, nil
}

// Key computes the cache key for a query against a given snapshot.
func Key(snapshotKey string, q *axql.Query) CacheKey {
	return CacheKey{SnapshotKey: snapshotKey, IRDigest: axql.Digest(q)}
}

// Get touches the entry (moving it to the most-recently-used position)
// and returns it if present.
func (c *Cache) Get(snapshotKey string, q *axql.Query) (*Entry, bool) {
	return c.lru.Get(Key(snapshotKey, q))
}

// Put inserts or replaces the prepared entry for (snapshotKey, q), also
// touching it to the most-recently-used position.
func (c *Cache) Put(snapshotKey string, q *axql.Query, e *Entry) {
	c.lru.Add(Key(snapshotKey, q), e)
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	return c.lru.Len()
}

// Clear evicts every entry, called when the underlying snapshot reloads
// (§4.L): a stale plan referencing the old snapshot's entity ids must
// never be reused.
func (c *Cache) Clear() {
	c.lru.Purge()
}
