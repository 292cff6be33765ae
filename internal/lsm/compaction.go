package lsm

import (
	"container/heap"
	"os"
	"path/filepath"
	"sort"

	"vectorstore/internal/sstable"
)

// compactLocked runs compaction on every overfull level, in ascending
// order, repeating until no level is overfull — compacting level l may
// push level l+1 over its own limit, per spec.md §4.3 and invariant I5.
func (e *Engine) compactLocked() error {
	for {
		progressed := false
		for lvl := 0; lvl < len(e.levels); lvl++ {
			if !e.isOverfullLocked(lvl) {
				continue
			}
			if err := e.compactLevelLocked(lvl); err != nil {
				return err
			}
			progressed = true
		}
		if !progressed {
			return nil
		}
	}
}

// isOverfullLocked reports whether level l holds more SSTs than its
// configured strategy allows. The deepest configured level is exempt
// (P4(ii): "unless l is the deepest existing level") since there is no
// level to cascade into.
func (e *Engine) isOverfullLocked(lvl int) bool {
	if lvl >= len(e.levels)-1 {
		return false
	}
	switch e.compactionType {
	case "size":
		return e.maxTablesPerLvl > 0 && len(e.levels[lvl]) > e.maxTablesPerLvl
	default: // "leveled", per spec.md I5: level l is overfull above 2^(l+1) SSTs.
		return len(e.levels[lvl]) > 1<<uint(lvl+1)
	}
}

// compactLevelLocked selects victims from level lvl, merges them with
// overlapping SSTs from lvl+1, and packs the result back into lvl+1,
// per spec.md §4.3 "Compaction" steps 1-6.
func (e *Engine) compactLevelLocked(lvl int) error {
	e.levelLocks[lvl].Lock()
	defer e.levelLocks[lvl].Unlock()
	target := lvl + 1
	e.levelLocks[target].Lock()
	defer e.levelLocks[target].Unlock()

	victims := e.selectVictimsLocked(lvl)
	if len(victims) == 0 {
		return nil
	}

	minKey, maxKey := victims[0].Header.MinKey, victims[0].Header.MaxKey
	for _, v := range victims[1:] {
		if v.Header.MinKey < minKey {
			minKey = v.Header.MinKey
		}
		if v.Header.MaxKey > maxKey {
			maxKey = v.Header.MaxKey
		}
	}

	var overlapping []*sstable.Table
	for _, t := range e.levels[target] {
		if !(t.Header.MaxKey < minKey || t.Header.MinKey > maxKey) {
			overlapping = append(overlapping, t)
		}
	}

	merged, err := mergeTables(lvl, victims, target, overlapping)
	if err != nil {
		return err
	}

	dropTombstones := target == len(e.levels)-1
	newTables, err := e.packLocked(merged, target, dropTombstones)
	if err != nil {
		return err
	}

	for _, v := range victims {
		os.Remove(v.Path)
	}
	for _, o := range overlapping {
		os.Remove(o.Path)
	}

	e.levels[lvl] = removeTables(e.levels[lvl], victims)
	e.levels[target] = append(removeTables(e.levels[target], overlapping), newTables...)
	sort.Slice(e.levels[target], func(i, j int) bool {
		return e.levels[target][i].Header.Time < e.levels[target][j].Header.Time
	})
	return nil
}

// selectVictimsLocked picks the SSTs to compact out of level lvl, per
// spec.md §4.3 step 1: every table at level 0, or (for level >= 1
// under the leveled strategy) the oldest "excess" tables ordered by
// (timestamp asc, min-key asc); at level >= 1 the size-tiered strategy
// takes, in the same order, the oldest tables in excess of
// maxTablesPerLvl, mirroring the teacher's size-tiered compaction.
func (e *Engine) selectVictimsLocked(lvl int) []*sstable.Table {
	tables := e.levels[lvl]
	if lvl == 0 {
		out := make([]*sstable.Table, len(tables))
		copy(out, tables)
		return out
	}

	sorted := make([]*sstable.Table, len(tables))
	copy(sorted, tables)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Header.Time != sorted[j].Header.Time {
			return sorted[i].Header.Time < sorted[j].Header.Time
		}
		return sorted[i].Header.MinKey < sorted[j].Header.MinKey
	})

	var n int
	switch e.compactionType {
	case "size":
		n = len(sorted) - e.maxTablesPerLvl
	default:
		n = len(sorted) - (1 << uint(lvl+1))
	}
	if n <= 0 {
		return nil
	}
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n]
}

// mergeSource tags a full-table cursor with the level it came from, so
// the merge can apply "lower source-level beats higher; ties larger
// timestamp wins" (spec.md §4.3 step 4).
type mergeSource struct {
	cur       *sstable.Cursor
	level     int
	timestamp uint64
}

type mergeHeap struct {
	sources []*mergeSource
	idx     []int
}

func (h mergeHeap) Len() int { return len(h.idx) }
func (h mergeHeap) Less(i, j int) bool {
	si, sj := h.sources[h.idx[i]], h.sources[h.idx[j]]
	ki, kj := si.cur.Key(), sj.cur.Key()
	if ki != kj {
		return ki < kj
	}
	if si.level != sj.level {
		return si.level < sj.level // lower level wins
	}
	return si.timestamp > sj.timestamp // newer write wins within a level
}
func (h mergeHeap) Swap(i, j int) { h.idx[i], h.idx[j] = h.idx[j], h.idx[i] }
func (h *mergeHeap) Push(x interface{}) { h.idx = append(h.idx, x.(int)) }
func (h *mergeHeap) Pop() interface{} {
	old := h.idx
	n := len(old)
	x := old[n-1]
	h.idx = old[:n-1]
	return x
}

// mergeTables k-way merges victims (from srcLevel) and overlapping
// (from dstLevel) into one ascending, deduplicated stream, keeping the
// winning record at each key per spec.md §4.3 step 4. Any equivalent
// tournament or heap-based merge satisfies the same invariant as the
// teacher's pairwise two-way fold (spec.md §4.3 "Binary merge").
func mergeTables(srcLevel int, victims []*sstable.Table, dstLevel int, overlapping []*sstable.Table) ([]sstable.Entry, error) {
	var sources []*mergeSource
	for _, t := range victims {
		sources = append(sources, &mergeSource{cur: t.FullCursor(), level: srcLevel, timestamp: t.Header.Time})
	}
	for _, t := range overlapping {
		sources = append(sources, &mergeSource{cur: t.FullCursor(), level: dstLevel, timestamp: t.Header.Time})
	}

	h := &mergeHeap{sources: sources}
	for i, s := range sources {
		if s.cur.Valid() {
			heap.Push(h, i)
		}
	}

	var out []sstable.Entry
	hasLast := false
	var lastKey uint64
	for h.Len() > 0 {
		i := heap.Pop(h).(int)
		s := sources[i]
		if !hasLast || s.cur.Key() != lastKey {
			raw, err := s.cur.Value()
			if err != nil {
				return nil, err
			}
			out = append(out, sstable.Entry{Key: s.cur.Key(), Value: raw, Tombstone: sstable.IsTombstone(raw)})
			lastKey = s.cur.Key()
			hasLast = true
		}
		s.cur.Advance()
		if s.cur.Valid() {
			heap.Push(h, i)
		}
	}
	return out, nil
}

// packLocked chunks a merged, ascending entry stream into new SSTs at
// level, starting a fresh table whenever appending the next record
// would exceed FLUSH_LIMIT (spec.md §4.3 step 5). Tombstones are kept
// unless level is the deepest, per the spec's documented Open Question
// resolution (retain until the deepest level, then drop).
func (e *Engine) packLocked(entries []sstable.Entry, level int, dropTombstones bool) ([]*sstable.Table, error) {
	var filtered []sstable.Entry
	for _, en := range entries {
		if en.Tombstone && dropTombstones {
			continue
		}
		filtered = append(filtered, en)
	}
	if len(filtered) == 0 {
		return nil, nil
	}

	dir := sstable.LevelDir(e.root, level)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	const baseOverhead = int64(sstable.HeaderBytes + sstable.BloomBytes)
	const indexEntryOverhead = int64(12)

	var tables []*sstable.Table
	var chunk []sstable.Entry
	running := baseOverhead

	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		e.timestamp++
		ts := e.timestamp
		path := filepath.Join(dir, sstable.FileName(ts))
		if _, err := sstable.Write(path, chunk, ts); err != nil {
			return err
		}
		tbl, err := sstable.Open(path)
		if err != nil {
			return err
		}
		tables = append(tables, tbl)
		chunk = nil
		running = baseOverhead
		return nil
	}

	for _, en := range filtered {
		cost := indexEntryOverhead
		if en.Tombstone {
			cost += int64(len(sstable.DelMarker))
		} else {
			cost += int64(len(en.Value))
		}
		if len(chunk) > 0 && running+cost > e.flushLimitBytes {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		chunk = append(chunk, en)
		running += cost
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return tables, nil
}

// removeTables returns tables with every entry in victims removed (by
// file path), preserving relative order.
func removeTables(tables []*sstable.Table, victims []*sstable.Table) []*sstable.Table {
	if len(victims) == 0 {
		return tables
	}
	drop := make(map[string]bool, len(victims))
	for _, v := range victims {
		drop[v.Path] = true
	}
	out := tables[:0]
	for _, t := range tables {
		if !drop[t.Path] {
			out = append(out, t)
		}
	}
	return out
}
