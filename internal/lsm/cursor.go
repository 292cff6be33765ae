package lsm

import (
	"vectorstore/internal/memtable"
	"vectorstore/internal/sstable"
)

// scanCursor is one contributing source to a Scan's k-way merge: the
// memtable (timestamp treated as infinite, so it always wins ties) or
// a single bounded SST cursor (spec.md §4.3 "scan").
type scanCursor interface {
	valid() bool
	key() uint64
	ts() uint64
	value() (value []byte, tombstone bool, err error)
	advance()
}

// memCursor walks an already range-filtered, ascending slice of
// memtable entries.
type memCursor struct {
	entries []memtable.Entry
	pos     int
}

func (c *memCursor) valid() bool { return c.pos < len(c.entries) }
func (c *memCursor) key() uint64 { return c.entries[c.pos].Key }
func (c *memCursor) ts() uint64  { return ^uint64(0) } // infinite: the memtable is always newest
func (c *memCursor) value() ([]byte, bool, error) {
	e := c.entries[c.pos]
	return e.Value, e.Tombstone, nil
}
func (c *memCursor) advance() { c.pos++ }

// sstCursor walks a single SST's bounded index cursor, tagged with
// that table's creation timestamp for tie-breaking against other
// sources.
type sstCursor struct {
	cur       *sstable.Cursor
	timestamp uint64
}

func (c *sstCursor) valid() bool { return c.cur.Valid() }
func (c *sstCursor) key() uint64 { return c.cur.Key() }
func (c *sstCursor) ts() uint64  { return c.timestamp }
func (c *sstCursor) value() ([]byte, bool, error) {
	raw, err := c.cur.Value()
	if err != nil {
		return nil, false, err
	}
	return raw, sstable.IsTombstone(raw), nil
}
func (c *sstCursor) advance() { c.cur.Advance() }

// scanHeap is a min-heap over cursor indices, ordered by (key asc,
// timestamp desc) so that among several sources holding the same key,
// the most recent write pops first.
type scanHeap struct {
	cursors []scanCursor
	idx     []int
}

func (h scanHeap) Len() int { return len(h.idx) }
func (h scanHeap) Less(i, j int) bool {
	ci, cj := h.cursors[h.idx[i]], h.cursors[h.idx[j]]
	if ci.key() != cj.key() {
		return ci.key() < cj.key()
	}
	return ci.ts() > cj.ts()
}
func (h scanHeap) Swap(i, j int) { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *scanHeap) Push(x interface{}) { h.idx = append(h.idx, x.(int)) }
func (h *scanHeap) Pop() interface{} {
	old := h.idx
	n := len(old)
	x := old[n-1]
	h.idx = old[:n-1]
	return x
}
