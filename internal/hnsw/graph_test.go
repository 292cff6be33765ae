package hnsw

import (
	"math"
	"math/rand"
	"testing"

	"vectorstore/internal/vecmath"
)

func testConfig(dim int) Config {
	return Config{Dim: dim, M: 8, MMax: 16, EfConstruction: 25, MLNorm: 9}
}

func randomUnitVector(rng *rand.Rand, dim int) []float32 {
	v := make([]float32, dim)
	var norm float64
	for i := range v {
		f := rng.Float64()*2 - 1
		v[i] = float32(f)
		norm += f * f
	}
	norm = math.Sqrt(norm)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
	return v
}

func TestInsertAndSearchFindsExactMatch(t *testing.T) {
	g := New(testConfig(4))
	if err := g.Insert(1, []float32{1, 0, 0, 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}
	if err := g.Insert(2, []float32{0, 1, 0, 0}); err != nil {
		t.Fatalf("Insert: %v", err)
	}

	keys, err := g.Search([]float32{1, 0, 0, 0}, 1)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(keys) != 1 || keys[0] != 1 {
		t.Fatalf("expected [1], got %v", keys)
	}
}

func TestInsertRejectsDimensionMismatch(t *testing.T) {
	g := New(testConfig(4))
	if err := g.Insert(1, []float32{1, 2}); err == nil {
		t.Fatal("expected dimension mismatch error")
	}
}

func TestDeleteExcludesFromSearch(t *testing.T) {
	g := New(testConfig(4))
	g.Insert(1, []float32{1, 0, 0, 0})
	g.Insert(2, []float32{0.9, 0.1, 0, 0})

	if ok := g.Delete(1); !ok {
		t.Fatal("expected delete to report true for present key")
	}
	if ok := g.Delete(1); ok {
		t.Fatal("expected second delete to report false")
	}

	keys, err := g.Search([]float32{1, 0, 0, 0}, 2)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	for _, k := range keys {
		if k == 1 {
			t.Fatal("deleted key should not appear in search results")
		}
	}
}

func TestOverwriteReplacesVectorNotAddsSecondMatch(t *testing.T) {
	g := New(testConfig(4))
	g.Insert(1, []float32{1, 0, 0, 0})
	g.Insert(1, []float32{0, 1, 0, 0})

	keys, err := g.Search([]float32{0, 1, 0, 0}, 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	count := 0
	for _, k := range keys {
		if k == 1 {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("expected key 1 to appear exactly once, got %d", count)
	}
}

func TestSymmetricEdgesWithinMMax(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	g := New(testConfig(8))
	for i := uint64(0); i < 200; i++ {
		if err := g.Insert(i, randomUnitVector(rng, 8)); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	for _, nd := range g.nodes {
		if nd == nil || nd.Deleted {
			continue
		}
		for lev, neighbors := range nd.Adj {
			if len(neighbors) > g.cfg.MMax {
				t.Fatalf("node %d level %d exceeds M_max: %d neighbors", nd.ID, lev, len(neighbors))
			}
			for _, nID := range neighbors {
				nn := g.nodes[nID]
				found := false
				for _, back := range nn.Adj[lev] {
					if back == nd.ID {
						found = true
						break
					}
				}
				if !found {
					t.Fatalf("asymmetric edge: node %d -> %d at level %d not reciprocated", nd.ID, nID, lev)
				}
			}
		}
	}
}

func TestSearchRecallOnSyntheticVectors(t *testing.T) {
	const (
		dim     = 8
		n       = 1000
		queries = 50
	)
	rng := rand.New(rand.NewSource(7))
	g := New(testConfig(dim))

	vectors := make([][]float32, n)
	for i := 0; i < n; i++ {
		vectors[i] = randomUnitVector(rng, dim)
		if err := g.Insert(uint64(i), vectors[i]); err != nil {
			t.Fatalf("Insert: %v", err)
		}
	}

	hits := 0
	for q := 0; q < queries; q++ {
		idx := rng.Intn(n)
		keys, err := g.Search(vectors[idx], 1)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(keys) == 1 && keys[0] == uint64(idx) {
			hits++
		}
	}

	recall := float64(hits) / float64(queries)
	if recall < 0.95 {
		t.Fatalf("recall %.3f below 0.95 threshold", recall)
	}
}

func TestCosineSimilarityZeroNormIsNegativeInfinity(t *testing.T) {
	s := vecmath.Cosine([]float32{0, 0, 0}, []float32{1, 2, 3})
	if !math.IsInf(float64(s), -1) {
		t.Fatalf("expected -Inf for zero-norm vector, got %v", s)
	}
}

func TestSearchOnEmptyGraphReturnsEmpty(t *testing.T) {
	g := New(testConfig(4))
	keys, err := g.Search([]float32{1, 0, 0, 0}, 3)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected empty result, got %v", keys)
	}
}
