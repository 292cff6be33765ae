package knn

import (
	"fmt"
	"testing"

	"vectorstore/internal/cache"
	"vectorstore/internal/vserrors"
)

func buildSnapshot(n int) []cache.Pair {
	out := make([]cache.Pair, n)
	for i := 0; i < n; i++ {
		out[i] = cache.Pair{Key: uint64(i), Vector: []float32{float32(i), 0}}
	}
	return out
}

func resolveFromMap(values map[uint64][]byte) Resolver {
	return func(key uint64) ([]byte, error) {
		v, ok := values[key]
		if !ok {
			return nil, vserrors.ErrNotFound
		}
		return v, nil
	}
}

func TestBruteForceRanksByCosine(t *testing.T) {
	// Cosine ignores magnitude, so the vectors need distinct directions:
	// {i, 10-i} turns toward the x-axis as i grows.
	snapshot := make([]cache.Pair, 10)
	for i := range snapshot {
		snapshot[i] = cache.Pair{Key: uint64(i), Vector: []float32{float32(i), float32(10 - i)}}
	}
	values := make(map[uint64][]byte)
	for i := 0; i < 10; i++ {
		values[uint64(i)] = []byte(fmt.Sprintf("v%d", i))
	}

	results, err := BruteForce(snapshot, []float32{9, 0}, 3, resolveFromMap(values))
	if err != nil {
		t.Fatalf("BruteForce: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Key != 9 {
		t.Fatalf("expected closest match to be key 9, got %d", results[0].Key)
	}
	for _, r := range results {
		if string(r.Value) != fmt.Sprintf("v%d", r.Key) {
			t.Fatalf("key %d: expected resolved value v%d, got %q", r.Key, r.Key, r.Value)
		}
	}
}

func TestBruteForceEmptyCacheReturnsEmpty(t *testing.T) {
	results, err := BruteForce(nil, []float32{1, 0}, 5, resolveFromMap(nil))
	if err != nil {
		t.Fatalf("expected no error on empty cache, got %v", err)
	}
	if len(results) != 0 {
		t.Fatalf("expected empty result, got %v", results)
	}
}

func TestParallelMatchesBruteForceKeySet(t *testing.T) {
	snapshot := buildSnapshot(500)
	values := make(map[uint64][]byte)
	for i := 0; i < 500; i++ {
		values[uint64(i)] = []byte(fmt.Sprintf("v%d", i))
	}

	query := []float32{321, 0}
	serial, err := BruteForce(snapshot, query, 7, resolveFromMap(values))
	if err != nil {
		t.Fatalf("BruteForce: %v", err)
	}
	parallel, err := Parallel(snapshot, query, 7, resolveFromMap(values))
	if err != nil {
		t.Fatalf("Parallel: %v", err)
	}

	if len(serial) != len(parallel) {
		t.Fatalf("length mismatch: serial=%d parallel=%d", len(serial), len(parallel))
	}
	want := make(map[uint64]bool, len(serial))
	for _, r := range serial {
		want[r.Key] = true
	}
	for _, r := range parallel {
		if !want[r.Key] {
			t.Fatalf("parallel key %d absent from serial result", r.Key)
		}
	}
}

func TestResolverNotFoundIsSkipped(t *testing.T) {
	snapshot := buildSnapshot(3)
	values := map[uint64][]byte{0: []byte("zero"), 2: []byte("two")} // key 1 deleted from the LSM

	results, err := BruteForce(snapshot, []float32{0, 0}, 3, resolveFromMap(values))
	if err != nil {
		t.Fatalf("BruteForce: %v", err)
	}
	for _, r := range results {
		if r.Key == 1 {
			t.Fatal("expected deleted key 1 to be skipped by the resolver")
		}
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 resolvable results, got %d", len(results))
	}
}
