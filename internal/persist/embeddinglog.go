// Package persist implements the append-only embedding log of spec.md
// §4.6: the durable record of every (key, vector) pair backing the
// vector cache (invariant I9), read in reverse on startup so the most
// recent write for a key always wins.
//
// Grounded on the teacher's append/replay style in
// lsm/wal/wal.go (sequential binary records, replayed forward at
// load), inverted to a reverse scan per spec.md's explicit "last
// write wins" reconstruction rule, since the log here has no
// checkpoint/compaction step of its own (that's the HNSW snapshot's
// job, handled by internal/hnsw's SaveSnapshot/LoadSnapshot).
package persist

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
)

// dimHeaderBytes is the encoded size of the log's leading dimension
// field.
const dimHeaderBytes = 8

// tombstoneBits is the all-ones 32-bit pattern spec.md §4.6 uses to
// mark a deleted key's entry ("an entry is appended with all-ones
// float bit pattern (e.g. FLT_MAX) meaning 'tombstone'").
const tombstoneBits uint32 = 0xFFFFFFFF

func entrySize(dim int) int { return 8 + 4*dim }

// isTombstoneVector reports whether every component of vec carries the
// tombstone bit pattern.
func isTombstoneVector(vec []float32) bool {
	for _, f := range vec {
		if math.Float32bits(f) != tombstoneBits {
			return false
		}
	}
	return true
}

func tombstoneVector(dim int) []float32 {
	vec := make([]float32, dim)
	bits := math.Float32frombits(tombstoneBits)
	for i := range vec {
		vec[i] = bits
	}
	return vec
}

func encodeEntry(key uint64, vec []float32) []byte {
	buf := make([]byte, entrySize(len(vec)))
	binary.LittleEndian.PutUint64(buf[0:8], key)
	for i, f := range vec {
		binary.LittleEndian.PutUint32(buf[8+4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeEntry(buf []byte, dim int) (key uint64, vec []float32) {
	key = binary.LittleEndian.Uint64(buf[0:8])
	vec = make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[8+4*i:]))
	}
	return key, vec
}

// LoadEmbeddingLog reads every entry at path in reverse order,
// returning the map of keys still live at the end of the log: per
// spec.md §4.6, "the first occurrence of a key in the reverse scan is
// authoritative". A missing file is not an error; it simply yields an
// empty store (a fresh startup).
func LoadEmbeddingLog(path string, dim int) (map[uint64][]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[uint64][]float32{}, nil
		}
		return nil, fmt.Errorf("persist: reading %s: %w", path, err)
	}
	if len(data) == 0 {
		return map[uint64][]float32{}, nil
	}
	if len(data) < dimHeaderBytes {
		return nil, fmt.Errorf("persist: %s: truncated header", path)
	}
	loggedDim := int(binary.LittleEndian.Uint64(data[:dimHeaderBytes]))
	if loggedDim != dim {
		return nil, fmt.Errorf("persist: %s: dimension mismatch, log has %d, store configured for %d", path, loggedDim, dim)
	}

	body := data[dimHeaderBytes:]
	size := entrySize(dim)
	if len(body)%size != 0 {
		return nil, fmt.Errorf("persist: %s: truncated entry (body length %d not a multiple of %d)", path, len(body), size)
	}

	live := make(map[uint64][]float32)
	seen := make(map[uint64]bool)
	for off := len(body) - size; off >= 0; off -= size {
		key, vec := decodeEntry(body[off:off+size], dim)
		if seen[key] {
			continue
		}
		seen[key] = true
		if !isTombstoneVector(vec) {
			live[key] = vec
		}
	}
	return live, nil
}

// DumpEmbeddingLog overwrites path with a fresh full dump of every
// live (key, vector) pair, used when no log yet exists at shutdown
// (spec.md §4.6 "Shutdown": "otherwise a fresh full dump").
func DumpEmbeddingLog(path string, dim int, live map[uint64][]float32) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	header := make([]byte, dimHeaderBytes)
	binary.LittleEndian.PutUint64(header, uint64(dim))
	if _, err := f.Write(header); err != nil {
		return err
	}
	for key, vec := range live {
		if _, err := f.Write(encodeEntry(key, vec)); err != nil {
			return err
		}
	}
	return f.Sync()
}

// AppendEmbeddingLog appends one entry per key in dirty: a vector
// record for keys still present in live, a tombstone record for keys
// absent from it (spec.md §4.6 "Shutdown": "append dirty keys only if
// the log already exists"). The file must already carry the
// dimension header; callers fall back to DumpEmbeddingLog otherwise.
func AppendEmbeddingLog(path string, dim int, dirty []uint64, live map[uint64][]float32) error {
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	for _, key := range dirty {
		vec, ok := live[key]
		if !ok {
			vec = tombstoneVector(dim)
		}
		if _, err := f.Write(encodeEntry(key, vec)); err != nil {
			return err
		}
	}
	return f.Sync()
}
