// Package lsm implements the storage engine of spec.md §4.3: a single
// mutable memtable backed by tiered, on-disk SSTs organized into
// levels 0..L, with flush-on-full and recursive tiered compaction.
//
// Grounded on hunddb's lsm/lsm.go (the levels slice, per-level
// sync.Mutex serializing same-level compactions, the monotonic
// SSTable-index counter restored from on-disk state at load time) and
// lsm/flush_worker.go (the flush-then-compact pipeline), generalized
// from hunddb's string-keyed, multi-memtable, WAL-backed design down
// to spec.md's single active memtable and the exact victim-selection/
// merge algorithm of §4.3 (no WAL: crash recovery beyond SST replay is
// an explicit Non-goal).
package lsm

import (
	"container/heap"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"vectorstore/internal/memtable"
	"vectorstore/internal/sstable"
)

// Entry is one logically live (key, value) pair returned by Scan.
type Entry struct {
	Key   uint64
	Value []byte
}

// Engine is the LSM storage engine: memtable + tiered SSTs. Put, Del,
// flush and compaction are serialized under mu; Get and Scan may run
// concurrently with each other but not with a mutator (spec.md §5).
type Engine struct {
	mu sync.RWMutex

	root            string
	maxLevels       int
	maxTablesPerLvl int
	flushLimitBytes int64
	compactionType  string // "leveled" or "size"

	memtable *memtable.Memtable
	levels   [][]*sstable.Table // levels[l] holds every SST currently at level l
	timestamp uint64            // T: monotonic, incremented at every SST creation

	levelLocks []sync.Mutex // one per level, serializes compactions touching that level
}

// Options configures a new Engine. Open rejects a MaxLevels or
// FlushLimitBytes below 1; a CompactionType other than "leveled" or
// "size" falls back to "leveled".
type Options struct {
	MaxLevels       int
	MaxTablesPerLvl int
	FlushLimitBytes int64
	CompactionType  string
}

// Open reconstructs an Engine from root, scanning every level-<L>
// directory for existing SSTs and restoring the monotonic timestamp
// counter from the maximum timestamp observed on disk (spec.md §9: "a
// process-wide global timestamp T ... persist it by deriving from the
// maximum SST timestamp at startup"). A missing level directory simply
// terminates that level's scan (spec.md §7 "Propagation").
func Open(root string, opts Options) (*Engine, error) {
	if opts.MaxLevels < 1 {
		return nil, fmt.Errorf("lsm: MaxLevels must be at least 1")
	}
	if opts.FlushLimitBytes < 1 {
		return nil, fmt.Errorf("lsm: FlushLimitBytes must be at least 1")
	}
	if opts.CompactionType != "leveled" && opts.CompactionType != "size" {
		opts.CompactionType = "leveled"
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}

	e := &Engine{
		root:            root,
		maxLevels:       opts.MaxLevels,
		maxTablesPerLvl: opts.MaxTablesPerLvl,
		flushLimitBytes: opts.FlushLimitBytes,
		compactionType:  opts.CompactionType,
		memtable:        memtable.New(),
		levels:          make([][]*sstable.Table, opts.MaxLevels),
		levelLocks:      make([]sync.Mutex, opts.MaxLevels),
	}

	for l := 0; l < opts.MaxLevels; l++ {
		dir := sstable.LevelDir(root, l)
		files, err := os.ReadDir(dir)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("lsm: reading %s: %w", dir, err)
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != ".sst" {
				continue
			}
			tbl, err := sstable.Open(filepath.Join(dir, f.Name()))
			if err != nil {
				return nil, fmt.Errorf("lsm: opening %s: %w", f.Name(), err)
			}
			e.levels[l] = append(e.levels[l], tbl)
			if tbl.Header.Time > e.timestamp {
				e.timestamp = tbl.Header.Time
			}
		}
		sort.Slice(e.levels[l], func(i, j int) bool {
			return e.levels[l][i].Header.Time < e.levels[l][j].Header.Time
		})
	}

	return e, nil
}

// Put inserts or overwrites key's value. If the memtable lacks room
// for the new record, it is first sealed to a fresh level-0 SST and
// compaction runs to quiescence, per spec.md §4.3 "put".
func (e *Engine) Put(key uint64, value []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.wouldOverflow(value) {
		if err := e.flushLocked(); err != nil {
			return err
		}
	}
	e.memtable.Put(key, value)
	return nil
}

// Get performs a point lookup, returning the current live value, the
// memtable first and then each level in ascending order, resolving to
// the highest-timestamp record among level-0 candidates (spec.md §4.3
// "get").
func (e *Engine) Get(key uint64) ([]byte, bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.get(key)
}

// Del writes a tombstone for key, reporting whether key was
// previously resolvable via Get (spec.md §4.3 "del": "Equivalent to
// put(key, DEL_MARKER); returns true iff get(key) was previously
// found").
func (e *Engine) Del(key uint64) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, existed, err := e.get(key)
	if err != nil {
		return false, err
	}

	if e.wouldOverflow(sstable.DelMarker) {
		if err := e.flushLocked(); err != nil {
			return existed, err
		}
	}
	e.memtable.Delete(key)
	return existed, nil
}

// Scan returns every logically live entry with key in [lo, hi],
// ascending, merging the memtable with every overlapping SST via a
// k-way min-heap keyed by (key asc, timestamp desc), per spec.md §4.3
// "scan".
func (e *Engine) Scan(lo, hi uint64) ([]Entry, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	var cursors []scanCursor
	cursors = append(cursors, &memCursor{entries: e.memtable.Scan(lo, hi)})
	for _, tables := range e.levels {
		for _, t := range tables {
			if t.Header.MaxKey < lo || t.Header.MinKey > hi {
				continue
			}
			cur := t.Cursor(lo, hi)
			if cur.Valid() {
				cursors = append(cursors, &sstCursor{cur: cur, timestamp: t.Header.Time})
			}
		}
	}

	h := &scanHeap{cursors: cursors}
	for i, c := range cursors {
		if c.valid() {
			heap.Push(h, i)
		}
	}

	var out []Entry
	hasLast := false
	var lastKey uint64
	for h.Len() > 0 {
		i := heap.Pop(h).(int)
		c := cursors[i]
		if !hasLast || c.key() != lastKey {
			val, tomb, err := c.value()
			if err != nil {
				return nil, err
			}
			if !tomb {
				out = append(out, Entry{Key: c.key(), Value: append([]byte(nil), val...)})
			}
			lastKey = c.key()
			hasLast = true
		}
		c.advance()
		if c.valid() {
			heap.Push(h, i)
		}
	}
	return out, nil
}

// Flush seals the current memtable to a level-0 SST and runs
// compaction to quiescence, regardless of whether it has reached
// FLUSH_LIMIT; an empty memtable writes no SST. Used by the owning store on a clean shutdown,
// since this engine carries no write-ahead log (crash recovery beyond
// SST replay is a spec.md Non-goal).
func (e *Engine) Flush() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.flushLocked()
}

// Reset erases all data: the memtable, every on-disk SST, and the
// timestamp counter, per spec.md §6 "reset()".
func (e *Engine) Reset() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for l := 0; l < e.maxLevels; l++ {
		if err := os.RemoveAll(sstable.LevelDir(e.root, l)); err != nil {
			return err
		}
	}
	e.memtable.Reset()
	e.levels = make([][]*sstable.Table, e.maxLevels)
	e.timestamp = 0
	return nil
}

// LevelCounts returns the current number of SSTs at each level, used
// by tests and operators to observe compaction progress.
func (e *Engine) LevelCounts() []int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]int, len(e.levels))
	for l, tables := range e.levels {
		out[l] = len(tables)
	}
	return out
}

// KeyRanges returns the [min, max] key span of every SST at level l,
// used by tests to check invariant I4 (pairwise-disjoint ranges at
// levels >= 1).
func (e *Engine) KeyRanges(level int) [][2]uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if level < 0 || level >= len(e.levels) {
		return nil
	}
	out := make([][2]uint64, len(e.levels[level]))
	for i, t := range e.levels[level] {
		out[i] = [2]uint64{t.Header.MinKey, t.Header.MaxKey}
	}
	return out
}

// get assumes the caller holds at least a read lock.
func (e *Engine) get(key uint64) ([]byte, bool, error) {
	if v, tomb, found := e.memtable.Lookup(key); found {
		if tomb {
			return nil, false, nil
		}
		return v, true, nil
	}

	for _, tables := range e.levels {
		var bestVal []byte
		var bestTomb bool
		var bestTS uint64
		foundAny := false
		for _, t := range tables {
			if !t.InRange(key) {
				continue
			}
			v, tomb, found, err := t.Get(key)
			if err != nil {
				return nil, false, err
			}
			if !found {
				continue
			}
			if !foundAny || t.Header.Time > bestTS {
				bestVal, bestTomb, bestTS, foundAny = v, tomb, t.Header.Time, true
			}
		}
		if foundAny {
			if bestTomb {
				return nil, false, nil
			}
			return bestVal, true, nil
		}
	}
	return nil, false, nil
}

// wouldOverflow reports whether inserting value would push the
// memtable's projected size past FLUSH_LIMIT (spec.md §4.1's byte-size
// accessor, consulted by the flush predicate in §4.3).
func (e *Engine) wouldOverflow(value []byte) bool {
	if e.memtable.Count() == 0 {
		return false
	}
	const indexEntryOverhead = 12
	return e.memtable.Size()+int64(indexEntryOverhead+len(value)) > e.flushLimitBytes
}

// flushLocked seals the current memtable into a fresh level-0 SST
// (spec.md §4.3 "Flush"), then runs compaction to quiescence.
func (e *Engine) flushLocked() error {
	entries := e.memtable.All()
	if len(entries) == 0 {
		return nil
	}

	e.timestamp++
	ts := e.timestamp

	dir := sstable.LevelDir(e.root, 0)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := filepath.Join(dir, sstable.FileName(ts))

	sstEntries := make([]sstable.Entry, len(entries))
	for i, en := range entries {
		sstEntries[i] = sstable.Entry{Key: en.Key, Value: en.Value, Tombstone: en.Tombstone}
	}
	if _, err := sstable.Write(path, sstEntries, ts); err != nil {
		return err
	}
	tbl, err := sstable.Open(path)
	if err != nil {
		return err
	}

	e.levels[0] = append(e.levels[0], tbl)
	e.memtable.Reset()

	return e.compactLocked()
}
