package cache

import "testing"

func TestRecordCachePutGetInvalidate(t *testing.T) {
	c := NewRecordCache(10)
	c.Put(1, []byte("v"))
	if v, ok := c.Get(1); !ok || string(v) != "v" {
		t.Fatalf("expected v, got %q ok=%v", v, ok)
	}
	c.Invalidate(1)
	if _, ok := c.Get(1); ok {
		t.Fatal("expected invalidated entry to be gone")
	}
}

func TestVectorCacheLifecycle(t *testing.T) {
	c := NewVectorCache(10)
	c.Put(1, []float32{1, 2, 3})
	c.Put(2, []float32{4, 5, 6})
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}

	snap := c.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected snapshot of 2, got %d", len(snap))
	}

	c.Delete(1)
	if _, ok := c.Get(1); ok {
		t.Fatal("expected key 1 to be gone after delete")
	}
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry remaining, got %d", c.Len())
	}
}
