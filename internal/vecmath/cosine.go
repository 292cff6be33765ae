// Package vecmath holds the small numeric core shared by the HNSW
// index and the KNN search layer: cosine similarity over float32
// vectors, per spec.md §4.4.
package vecmath

import "math"

// Cosine computes cosine similarity between a and b. A zero norm on
// either side is "incompatible" and reported as negative infinity.
func Cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return float32(math.Inf(-1))
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
