package embed

import (
	"math"
	"os"
	"path/filepath"
	"testing"
)

func TestHashEmbedderDeterministic(t *testing.T) {
	e := NewHashEmbedder(16)
	a, err := e.Embed("hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	b, err := e.Embed("hello world")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("expected deterministic output, component %d differs: %v vs %v", i, a[i], b[i])
		}
	}
	c, _ := e.Embed("goodbye world")
	same := true
	for i := range a {
		if a[i] != c[i] {
			same = false
		}
	}
	if same {
		t.Fatal("expected different inputs to produce different vectors")
	}
}

func TestHashEmbedderUnitNorm(t *testing.T) {
	e := NewHashEmbedder(32)
	vec, err := e.Embed("some text")
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	var normSq float64
	for _, f := range vec {
		normSq += float64(f) * float64(f)
	}
	if math.Abs(math.Sqrt(normSq)-1) > 1e-4 {
		t.Fatalf("expected unit norm, got %f", math.Sqrt(normSq))
	}
}

func TestLoadPrecomputedAndFallback(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vectors.txt")
	content := "alpha\t1,2,3\nbeta\t4,5,6\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	table, err := LoadPrecomputed(path)
	if err != nil {
		t.Fatalf("LoadPrecomputed: %v", err)
	}
	if len(table) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(table))
	}

	fallback := NewHashEmbedder(3)
	emb := NewPrecomputedEmbedder(table, fallback)

	vec, err := emb.Embed("alpha")
	if err != nil {
		t.Fatalf("Embed(alpha): %v", err)
	}
	if vec[0] != 1 || vec[1] != 2 || vec[2] != 3 {
		t.Fatalf("expected precomputed [1 2 3], got %v", vec)
	}

	fallbackVec, err := emb.Embed("unseen text")
	if err != nil {
		t.Fatalf("Embed(unseen): %v", err)
	}
	if len(fallbackVec) != 3 {
		t.Fatalf("expected fallback dimension 3, got %d", len(fallbackVec))
	}
}
