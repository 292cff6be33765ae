package lrucache

import "testing"

func TestPutGet(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	v, err := c.Get("a")
	if err != nil || v != 1 {
		t.Fatalf("expected 1, got %d err=%v", v, err)
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	c.Put("b", 2)
	c.Get("a") // a is now most-recently-used
	c.Put("c", 3)

	if _, err := c.Get("b"); err == nil {
		t.Fatal("expected b to be evicted")
	}
	if _, err := c.Get("a"); err != nil {
		t.Fatal("expected a to survive eviction")
	}
	if _, err := c.Get("c"); err != nil {
		t.Fatal("expected c to be present")
	}
}

func TestRemove(t *testing.T) {
	c := New[string, int](2)
	c.Put("a", 1)
	c.Remove("a")
	if _, err := c.Get("a"); err == nil {
		t.Fatal("expected a to be removed")
	}
}

func TestRangeVisitsAll(t *testing.T) {
	c := New[int, int](10)
	for i := 0; i < 5; i++ {
		c.Put(i, i*i)
	}
	seen := make(map[int]int)
	c.Range(func(k, v int) bool {
		seen[k] = v
		return true
	})
	if len(seen) != 5 {
		t.Fatalf("expected 5 entries, got %d", len(seen))
	}
}
