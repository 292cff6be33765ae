package knn

// scored pairs a key with its cosine similarity to a query vector.
type scored struct {
	key uint64
	sim float32
}

// minSimHeap is a min-heap ordered by similarity (ties: larger key
// first), used to track the top-k largest similarities seen so far:
// when the heap exceeds k, popping drops the current worst candidate.
type minSimHeap []scored

func (h minSimHeap) Len() int { return len(h) }
func (h minSimHeap) Less(i, j int) bool {
	if h[i].sim != h[j].sim {
		return h[i].sim < h[j].sim
	}
	return h[i].key > h[j].key
}
func (h minSimHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minSimHeap) Push(x interface{}) { *h = append(*h, x.(scored)) }
func (h *minSimHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}
