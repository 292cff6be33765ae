// Package cache wraps the generic LRU cache for the two read paths the
// store needs: resolved (key, value) records read off disk, and the
// (key, vector) pairs that back brute-force and parallel KNN (spec.md
// §4.5, invariant I9).
package cache

import (
	"vectorstore/internal/lrucache"
)

// RecordCache speeds up repeated point lookups against SSTs. Entries are
// invalidated on every write so a reader never observes a stale value.
type RecordCache struct {
	inner *lrucache.Cache[uint64, []byte]
}

// NewRecordCache creates a record cache with the given capacity.
func NewRecordCache(capacity int) *RecordCache {
	return &RecordCache{inner: lrucache.New[uint64, []byte](capacity)}
}

func (c *RecordCache) Get(key uint64) ([]byte, bool) {
	v, err := c.inner.Get(key)
	return v, err == nil
}

func (c *RecordCache) Put(key uint64, value []byte) { c.inner.Put(key, value) }

func (c *RecordCache) Invalidate(key uint64) { c.inner.Remove(key) }

// VectorCache holds the dense embedding for every logically live key
// (invariant I9): created or overwritten on put, erased on delete. It is
// the data KNN's brute-force and parallel variants iterate over.
type VectorCache struct {
	inner *lrucache.Cache[uint64, []float32]
}

// NewVectorCache creates a vector cache with the given capacity. A
// non-positive capacity means unbounded, appropriate for a cache that
// must mirror every live key rather than merely accelerate reads.
func NewVectorCache(capacity int) *VectorCache {
	return &VectorCache{inner: lrucache.New[uint64, []float32](capacity)}
}

func (c *VectorCache) Put(key uint64, vector []float32) { c.inner.Put(key, vector) }

func (c *VectorCache) Get(key uint64) ([]float32, bool) {
	v, err := c.inner.Get(key)
	return v, err == nil
}

func (c *VectorCache) Delete(key uint64) { c.inner.Remove(key) }

func (c *VectorCache) Len() int { return c.inner.Len() }

// Range visits every (key, vector) pair. Used by the brute-force KNN
// scan and to partition work for the parallel variant.
func (c *VectorCache) Range(fn func(key uint64, vector []float32) bool) {
	c.inner.Range(fn)
}

// Snapshot copies every (key, vector) pair into a slice, giving the
// parallel KNN map phase a stable, immutable view to partition across
// worker goroutines without holding the cache lock during compute
// (spec.md §5).
func (c *VectorCache) Snapshot() []Pair {
	out := make([]Pair, 0, c.inner.Len())
	c.inner.Range(func(key uint64, vector []float32) bool {
		out = append(out, Pair{Key: key, Vector: vector})
		return true
	})
	return out
}

// Pair is a (key, vector) entry returned by Snapshot.
type Pair struct {
	Key    uint64
	Vector []float32
}
