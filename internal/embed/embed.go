// Package embed bridges the store to the external embedding function
// spec.md §6 treats as a black box: "a pure function embed(text:
// string) -> array<f32, D>". The core never introspects vector
// semantics beyond cosine similarity (internal/vecmath), so this
// package stays narrow: one interface, one deterministic default
// implementation for tests and the CLI demo, and a loader for the
// original prototype's "process that loads pre-computed embeddings
// from text files" (spec.md §1 names this out of scope as a
// component, but original_source/kvstore.cc's sentence2line table —
// a precomputed text-to-vector map read at startup — is worth keeping
// as a minimal utility, since something has to feed the CLI).
package embed

import (
	"bufio"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"strconv"
	"strings"
)

// Embedder computes the fixed-dimension vector for a string. The core
// calls it once per Put (on the stored value) and once per KNN query
// string; implementations may memoize or batch internally.
type Embedder interface {
	Embed(text string) ([]float32, error)
}

// HashEmbedder is a deterministic, seed-free Embedder: each output
// component is a hash of the input text salted with its component
// index, normalized to a unit vector so cosine similarity behaves
// sensibly in tests. It has no linguistic meaning — it exists so the
// core and the CLI have something to call without depending on a real
// model.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a HashEmbedder producing vectors of length dim.
func NewHashEmbedder(dim int) *HashEmbedder {
	return &HashEmbedder{dim: dim}
}

// Embed deterministically maps text to a unit vector of length dim.
func (h *HashEmbedder) Embed(text string) ([]float32, error) {
	if h.dim <= 0 {
		return nil, fmt.Errorf("embed: dimension must be positive, got %d", h.dim)
	}
	vec := make([]float32, h.dim)
	var normSq float64
	for i := range vec {
		sum := fnv.New64a()
		sum.Write([]byte(text))
		sum.Write([]byte{byte(i), byte(i >> 8), byte(i >> 16), byte(i >> 24)})
		// Map the 64-bit digest onto [-1, 1] via its top 32 bits.
		bits := uint32(sum.Sum64() >> 32)
		f := (float64(bits)/float64(math.MaxUint32))*2 - 1
		vec[i] = float32(f)
		normSq += f * f
	}
	if normSq > 0 {
		norm := float32(math.Sqrt(normSq))
		for i := range vec {
			vec[i] /= norm
		}
	}
	return vec, nil
}

// PrecomputedEmbedder resolves vectors from a fixed table loaded via
// LoadPrecomputed, falling back to a wrapped Embedder for any text not
// present in the table (mirroring original_source/kvstore.cc's
// sentence2line lookup, which assumed a comprehensive precomputed
// table but is hardened here with a fallback rather than panicking on
// a miss).
type PrecomputedEmbedder struct {
	table    map[string][]float32
	fallback Embedder
}

// NewPrecomputedEmbedder wraps table with fallback for cache misses.
func NewPrecomputedEmbedder(table map[string][]float32, fallback Embedder) *PrecomputedEmbedder {
	return &PrecomputedEmbedder{table: table, fallback: fallback}
}

// Embed returns the precomputed vector for text if present, else
// delegates to the fallback embedder.
func (p *PrecomputedEmbedder) Embed(text string) ([]float32, error) {
	if vec, ok := p.table[text]; ok {
		out := make([]float32, len(vec))
		copy(out, vec)
		return out, nil
	}
	return p.fallback.Embed(text)
}

// LoadPrecomputed reads a text file of tab-separated
// "text<TAB>f1,f2,...,fD" lines into a text-to-vector table, the Go
// analogue of original_source/kvstore.cc's line-oriented embedding
// file loader. Blank lines are skipped; every vector must have the
// same dimension as the first one read.
func LoadPrecomputed(path string) (map[string][]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("embed: opening %s: %w", path, err)
	}
	defer f.Close()

	table := make(map[string][]float32)
	dim := -1
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1<<20), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			continue
		}
		tab := strings.IndexByte(line, '\t')
		if tab < 0 {
			return nil, fmt.Errorf("embed: %s:%d: missing tab separator", path, lineNo)
		}
		text := line[:tab]
		fields := strings.Split(line[tab+1:], ",")
		vec := make([]float32, len(fields))
		for i, field := range fields {
			v, err := strconv.ParseFloat(strings.TrimSpace(field), 32)
			if err != nil {
				return nil, fmt.Errorf("embed: %s:%d: component %d: %w", path, lineNo, i, err)
			}
			vec[i] = float32(v)
		}
		if dim < 0 {
			dim = len(vec)
		} else if len(vec) != dim {
			return nil, fmt.Errorf("embed: %s:%d: expected dimension %d, got %d", path, lineNo, dim, len(vec))
		}
		table[text] = vec
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("embed: reading %s: %w", path, err)
	}
	return table, nil
}
