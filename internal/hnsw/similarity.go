package hnsw

import "vectorstore/internal/vecmath"

// similarity computes cosine similarity between two vectors. A zero
// norm on either side is "incompatible" and treated as negative
// infinity, per spec.md §4.4.
func (g *Graph) similarity(a, b []float32) float32 {
	return vecmath.Cosine(a, b)
}

// simItem pairs an internal node id with its similarity to a query.
type simItem struct {
	id  uint32
	sim float32
}

// maxSimHeap is a max-heap ordered by similarity (most similar first);
// used as the best-first candidate frontier during beam search.
type maxSimHeap []simItem

func (h maxSimHeap) Len() int            { return len(h) }
func (h maxSimHeap) Less(i, j int) bool  { return h[i].sim > h[j].sim }
func (h maxSimHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxSimHeap) Push(x interface{}) { *h = append(*h, x.(simItem)) }
func (h *maxSimHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// minSimHeap is a min-heap ordered by similarity (least similar
// first); used as the kept-results set so the worst entry is evicted
// in O(log ef) when the pool exceeds ef.
type minSimHeap []simItem

func (h minSimHeap) Len() int            { return len(h) }
func (h minSimHeap) Less(i, j int) bool  { return h[i].sim < h[j].sim }
func (h minSimHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minSimHeap) Push(x interface{}) { *h = append(*h, x.(simItem)) }
func (h *minSimHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
