// Package knn implements the three k-nearest-neighbor search variants
// of spec.md §4.5: a brute-force scan of the vector cache, a
// map-reduce parallel variant bounded by hardware concurrency, and an
// HNSW-accelerated variant. All three resolve surviving keys to
// stored values through a caller-supplied resolver, keeping this
// package ignorant of the LSM engine's internals.
//
// The parallel variant's map/reduce shape is grounded on the worker
// partitioning in lsm/flush_worker.go, generalized from a fixed flush
// pipeline to an ad hoc fan-out over golang.org/x/sync/errgroup.
package knn

import (
	"container/heap"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"vectorstore/internal/cache"
	"vectorstore/internal/hnsw"
	"vectorstore/internal/vecmath"
	"vectorstore/internal/vserrors"
)

// Resolver maps a live key to its stored value. A resolver should
// return vserrors.ErrNotFound if the key is no longer present.
type Resolver func(key uint64) ([]byte, error)

// Result is one ranked match: a key, its resolved value, and its
// cosine similarity to the query vector.
type Result struct {
	Key        uint64
	Value      []byte
	Similarity float32
}

// topK scans pairs and keeps the k most similar to query, breaking
// ties by ascending key for determinism (spec.md P6).
func topK(pairs []cache.Pair, query []float32, k int) []scored {
	if k <= 0 {
		return nil
	}
	h := make(minSimHeap, 0, k)
	for _, p := range pairs {
		sim := vecmath.Cosine(query, p.Vector)
		if h.Len() < k {
			heap.Push(&h, scored{key: p.Key, sim: sim})
			continue
		}
		if sim > h[0].sim || (sim == h[0].sim && p.Key < h[0].key) {
			heap.Pop(&h)
			heap.Push(&h, scored{key: p.Key, sim: sim})
		}
	}
	return finalize(h)
}

func finalize(h minSimHeap) []scored {
	out := make([]scored, len(h))
	copy(out, h)
	sort.Slice(out, func(i, j int) bool {
		if out[i].sim != out[j].sim {
			return out[i].sim > out[j].sim
		}
		return out[i].key < out[j].key
	})
	return out
}

func resolveAll(scores []scored, resolve Resolver) ([]Result, error) {
	out := make([]Result, 0, len(scores))
	for _, s := range scores {
		v, err := resolve(s.key)
		if err == vserrors.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Result{Key: s.key, Value: v, Similarity: s.sim})
	}
	return out, nil
}

// BruteForce iterates the entire vector cache, keyed by cosine
// similarity against query, and resolves the top-k keys to values
// (spec.md §4.5 "Brute-force").
func BruteForce(snapshot []cache.Pair, query []float32, k int, resolve Resolver) ([]Result, error) {
	if len(snapshot) == 0 || k <= 0 {
		return nil, nil
	}
	return resolveAll(topK(snapshot, query, k), resolve)
}

// Parallel partitions the cache snapshot into P = hardware-concurrency
// contiguous chunks, computes a local top-k per chunk concurrently,
// merges the P results with a global top-k pass, then resolves
// surviving keys to values concurrently (spec.md §4.5 "Parallel
// variant (map-reduce)").
func Parallel(snapshot []cache.Pair, query []float32, k int, resolve Resolver) ([]Result, error) {
	if len(snapshot) == 0 || k <= 0 {
		return nil, nil
	}

	p := runtime.GOMAXPROCS(0)
	if p > len(snapshot) {
		p = len(snapshot)
	}
	if p < 1 {
		p = 1
	}

	chunkSize := (len(snapshot) + p - 1) / p
	partials := make([][]scored, p)

	var g errgroup.Group
	for i := 0; i < p; i++ {
		i := i
		lo := i * chunkSize
		hi := lo + chunkSize
		if hi > len(snapshot) {
			hi = len(snapshot)
		}
		if lo >= hi {
			continue
		}
		g.Go(func() error {
			partials[i] = topK(snapshot[lo:hi], query, k)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Reduce: merge the P local top-k sets and re-rank; similarities
	// were already computed per-partition, so this is a pure merge.
	var all []scored
	for _, part := range partials {
		all = append(all, part...)
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].sim != all[j].sim {
			return all[i].sim > all[j].sim
		}
		return all[i].key < all[j].key
	})
	seen := make(map[uint64]bool, len(all))
	deduped := all[:0]
	for _, s := range all {
		if seen[s.key] {
			continue
		}
		seen[s.key] = true
		deduped = append(deduped, s)
	}
	if len(deduped) > k {
		deduped = deduped[:k]
	}

	return resolveConcurrently(deduped, resolve)
}

// resolveConcurrently resolves each surviving key's value in its own
// goroutine (spec.md §4.5 "Fetch: resolve each surviving key to its
// value concurrently").
func resolveConcurrently(scores []scored, resolve Resolver) ([]Result, error) {
	results := make([]Result, len(scores))
	var g errgroup.Group
	for i, s := range scores {
		i, s := i, s
		g.Go(func() error {
			v, err := resolve(s.key)
			if err == vserrors.ErrNotFound {
				results[i] = Result{Key: s.key, Similarity: s.sim}
				return nil
			}
			if err != nil {
				return err
			}
			results[i] = Result{Key: s.key, Value: v, Similarity: s.sim}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	final := make([]Result, 0, len(results))
	for _, r := range results {
		if r.Value == nil {
			continue
		}
		final = append(final, r)
	}
	return final, nil
}

// HNSWSearch delegates ranking to the HNSW graph and resolves the
// returned keys to values (spec.md §4.5 "the HNSW-accelerated
// variant"). The graph reports keys only, so Similarity is zero in
// every Result it returns.
func HNSWSearch(g *hnsw.Graph, query []float32, k int, resolve Resolver) ([]Result, error) {
	keys, err := g.Search(query, k)
	if err != nil {
		return nil, err
	}
	out := make([]Result, 0, len(keys))
	for _, key := range keys {
		v, err := resolve(key)
		if err == vserrors.ErrNotFound {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, Result{Key: key, Value: v})
	}
	return out, nil
}
