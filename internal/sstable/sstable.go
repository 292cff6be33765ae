// Package sstable implements the immutable, sorted, on-disk SST file
// format that backs each level of the LSM engine: a 32-byte header, a
// fixed 10240-byte bloom filter, a sparse (key, end-offset) index, and
// a data blob of concatenated values, exactly as laid out in spec.md
// §4.2. Grounded on the on-disk record layout conventions of
// lsm/sstable/sstable.go and lsm/block_manager/block_manager.go, but
// reshaped to the spec's single fixed-size file rather than the
// teacher's multi-component, CRC-checked design.
package sstable

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// HeaderBytes is the fixed size of the SST header block.
const HeaderBytes = 32

// indexEntryBytes is the encoded size of one sparse-index entry
// (key uint64 + end-offset uint32).
const indexEntryBytes = 12

// DelMarker is the reserved sentinel value denoting a tombstone
// (spec.md §3). It is chosen to be implausible as a genuine user value.
var DelMarker = []byte("\x00__vectorstore.tombstone__\x00")

// IsTombstone reports whether value is the deletion sentinel.
func IsTombstone(value []byte) bool {
	if len(value) != len(DelMarker) {
		return false
	}
	for i := range value {
		if value[i] != DelMarker[i] {
			return false
		}
	}
	return true
}

// Entry is one (key, value) pair destined for an SST; Tombstone
// entries are written as DelMarker.
type Entry struct {
	Key       uint64
	Value     []byte
	Tombstone bool
}

// Header is the 32-byte record prefixing every SST file.
type Header struct {
	Time   uint64
	Count  uint64
	MinKey uint64
	MaxKey uint64
}

func (h Header) marshal() []byte {
	buf := make([]byte, HeaderBytes)
	binary.LittleEndian.PutUint64(buf[0:8], h.Time)
	binary.LittleEndian.PutUint64(buf[8:16], h.Count)
	binary.LittleEndian.PutUint64(buf[16:24], h.MinKey)
	binary.LittleEndian.PutUint64(buf[24:32], h.MaxKey)
	return buf
}

func unmarshalHeader(buf []byte) Header {
	return Header{
		Time:   binary.LittleEndian.Uint64(buf[0:8]),
		Count:  binary.LittleEndian.Uint64(buf[8:16]),
		MinKey: binary.LittleEndian.Uint64(buf[16:24]),
		MaxKey: binary.LittleEndian.Uint64(buf[24:32]),
	}
}

type indexEntry struct {
	Key       uint64
	EndOffset uint32
}

// FileName returns the SST file name for a given creation timestamp,
// per spec.md §6 ("<T>.sst").
func FileName(timestamp uint64) string {
	return fmt.Sprintf("%d.sst", timestamp)
}

// LevelDir returns the on-disk directory name for a level, per
// spec.md §6 ("level-<L>/").
func LevelDir(root string, level int) string {
	return filepath.Join(root, fmt.Sprintf("level-%d", level))
}

// Write packs sorted, deduplicated entries into a single SST file at
// path, per the layout in spec.md §4.2. Callers are responsible for
// chunking entries so the resulting file does not exceed FLUSH_LIMIT
// (the LSM engine owns that policy, since it alone knows the running
// byte estimate while iterating a merge stream).
func Write(path string, entries []Entry, timestamp uint64) (Header, error) {
	if len(entries) == 0 {
		return Header{}, errors.New("sstable: cannot write an empty table")
	}

	filter := newBloomFilter()
	index := make([]indexEntry, len(entries))
	var dataBuf []byte
	var end uint32

	for i, e := range entries {
		value := e.Value
		if e.Tombstone {
			value = DelMarker
		}
		filter.add(e.Key)
		dataBuf = append(dataBuf, value...)
		end += uint32(len(value))
		index[i] = indexEntry{Key: e.Key, EndOffset: end}
	}

	header := Header{
		Time:   timestamp,
		Count:  uint64(len(entries)),
		MinKey: entries[0].Key,
		MaxKey: entries[len(entries)-1].Key,
	}

	f, err := os.Create(path)
	if err != nil {
		return Header{}, err
	}
	defer f.Close()

	if _, err := f.Write(header.marshal()); err != nil {
		return Header{}, err
	}
	if _, err := f.Write(filter.marshal()); err != nil {
		return Header{}, err
	}

	idxBuf := make([]byte, indexEntryBytes*len(index))
	for i, e := range index {
		off := i * indexEntryBytes
		binary.LittleEndian.PutUint64(idxBuf[off:off+8], e.Key)
		binary.LittleEndian.PutUint32(idxBuf[off+8:off+12], e.EndOffset)
	}
	if _, err := f.Write(idxBuf); err != nil {
		return Header{}, err
	}
	if _, err := f.Write(dataBuf); err != nil {
		return Header{}, err
	}

	return header, f.Sync()
}

// EstimatedSize returns the number of bytes an SST holding these
// entries (in data-blob order) would occupy, header and filter
// included, matching the FLUSH_LIMIT accounting in spec.md §4.3 step 5.
func EstimatedSize(entries []Entry) int64 {
	size := int64(HeaderBytes + BloomBytes + indexEntryBytes*len(entries))
	for _, e := range entries {
		if e.Tombstone {
			size += int64(len(DelMarker))
		} else {
			size += int64(len(e.Value))
		}
	}
	return size
}

// Table is an opened, read-only handle onto an SST file. The header,
// bloom filter and sparse index are loaded eagerly; the data blob is
// read on demand via ReadAt.
type Table struct {
	Path       string
	Header     Header
	filter     *bloomFilter
	index      []indexEntry
	dataOffset int64
}

// Open loads an SST's header, bloom filter and sparse index into
// memory, per the "probe metadata before touching the data blob"
// access pattern in spec.md §4.3.
func Open(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	prefix := make([]byte, HeaderBytes+BloomBytes)
	if _, err := f.ReadAt(prefix, 0); err != nil {
		return nil, fmt.Errorf("sstable: reading header/bloom: %w", err)
	}
	header := unmarshalHeader(prefix[:HeaderBytes])
	filter := unmarshalBloom(prefix[HeaderBytes:])

	idxBuf := make([]byte, indexEntryBytes*int(header.Count))
	if _, err := f.ReadAt(idxBuf, int64(HeaderBytes+BloomBytes)); err != nil {
		return nil, fmt.Errorf("sstable: reading index: %w", err)
	}
	index := make([]indexEntry, header.Count)
	for i := range index {
		off := i * indexEntryBytes
		index[i] = indexEntry{
			Key:       binary.LittleEndian.Uint64(idxBuf[off : off+8]),
			EndOffset: binary.LittleEndian.Uint32(idxBuf[off+8 : off+12]),
		}
	}

	return &Table{
		Path:       path,
		Header:     header,
		filter:     filter,
		index:      index,
		dataOffset: int64(HeaderBytes+BloomBytes) + int64(indexEntryBytes*len(index)),
	}, nil
}

// Count returns the number of records in the table.
func (t *Table) Count() int { return len(t.index) }

// InRange reports whether key could fall within this table's key span.
func (t *Table) InRange(key uint64) bool {
	return key >= t.Header.MinKey && key <= t.Header.MaxKey
}

// search returns the index position holding key, or -1 if absent.
func (t *Table) search(key uint64) int {
	lo, hi := 0, len(t.index)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		switch {
		case t.index[mid].Key == key:
			return mid
		case t.index[mid].Key < key:
			lo = mid + 1
		default:
			hi = mid - 1
		}
	}
	return -1
}

// LowerBound returns the first index position p with index[p].Key >=
// key, or Count() if none, per spec.md §4.2.
func (t *Table) LowerBound(key uint64) int {
	return sort.Search(len(t.index), func(i int) bool {
		return t.index[i].Key >= key
	})
}

func (t *Table) recordBounds(pos int) (start, length uint32) {
	end := t.index[pos].EndOffset
	if pos == 0 {
		return 0, end
	}
	prev := t.index[pos-1].EndOffset
	return prev, end - prev
}

// readRecord opens the file fresh for a single positional read. SSTs are
// immutable once written, so no caller-visible handle needs to stay open.
func (t *Table) readRecord(pos int) ([]byte, error) {
	start, length := t.recordBounds(pos)
	if length == 0 {
		return nil, nil
	}
	f, err := os.Open(t.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf := make([]byte, length)
	if _, err := f.ReadAt(buf, t.dataOffset+int64(start)); err != nil {
		return nil, err
	}
	return buf, nil
}

// Get performs a point lookup. found is false when the bloom filter or
// the sparse index rules out the key entirely; when found is true,
// tombstone reports whether the stored value is DelMarker.
func (t *Table) Get(key uint64) (value []byte, tombstone bool, found bool, err error) {
	if !t.InRange(key) || !t.filter.test(key) {
		return nil, false, false, nil
	}
	pos := t.search(key)
	if pos < 0 {
		return nil, false, false, nil
	}
	raw, err := t.readRecord(pos)
	if err != nil {
		return nil, false, false, err
	}
	if IsTombstone(raw) {
		return nil, true, true, nil
	}
	return raw, false, true, nil
}

// Cursor walks a bounded range of a table's index in ascending key order.
type Cursor struct {
	table *Table
	pos   int
	end   int
}

// Cursor returns a bounded cursor over [lowerBound(lo), lowerBound(hi+1)),
// matching the scan cursor construction in spec.md §4.3 ("bounded cursor
// [lower-bound(k1), lower-bound(k2)]").
func (t *Table) Cursor(lo, hi uint64) *Cursor {
	start := t.LowerBound(lo)
	stop := len(t.index)
	if hi < ^uint64(0) {
		stop = t.LowerBound(hi + 1)
	}
	return &Cursor{table: t, pos: start, end: stop}
}

// Valid reports whether the cursor still has records to yield.
func (c *Cursor) Valid() bool { return c.pos < c.end }

// Key returns the key at the cursor's current position.
func (c *Cursor) Key() uint64 { return c.table.index[c.pos].Key }

// Value reads the value at the cursor's current position.
func (c *Cursor) Value() ([]byte, error) { return c.table.readRecord(c.pos) }

// Advance moves the cursor to the next position.
func (c *Cursor) Advance() { c.pos++ }

// FullCursor returns a cursor over the entire table, used by compaction.
func (t *Table) FullCursor() *Cursor {
	return &Cursor{table: t, pos: 0, end: len(t.index)}
}
