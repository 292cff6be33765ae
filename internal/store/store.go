// Package store assembles the LSM engine, the HNSW index, the two
// read-path caches, and the embedding bridge into the single
// coherent core spec.md §2 describes: put/get/del/scan against the
// LSM, mirrored writes into HNSW and the vector cache, and three KNN
// search variants over the result.
//
// Grounded on hunddb's top-level `KVEngine`/`LSM` composition root
// (lsm/lsm.go's single struct owning the memtable, levels, and
// caches) generalized to also own the HNSW graph and embedding
// bridge spec.md adds; mutation ordering and locking follow spec.md
// §5 "Single mutator, multi-reader within one process".
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"vectorstore/internal/cache"
	"vectorstore/internal/config"
	"vectorstore/internal/embed"
	"vectorstore/internal/hnsw"
	"vectorstore/internal/knn"
	"vectorstore/internal/lsm"
	"vectorstore/internal/persist"
	"vectorstore/internal/vserrors"
)

// hnswDirName is the on-disk directory holding the HNSW snapshot
// (spec.md §4.6 calls it "hnsw_root/"; this is the name used under
// the store's root directory).
const hnswDirName = "hnsw"

// embeddingLogName is the on-disk file name of the embedding log
// (spec.md §6 filesystem layout).
const embeddingLogName = "embedding.bin"

// Store is the public embeddable key-value store: LSM + HNSW +
// caches, coordinated so that Put/Del/Reset mutate all three together
// under one lock and never interleave with each other. Readers (Get,
// Scan, the KNN searches, IsEmpty) do not take that lock, so a read
// that runs concurrently with a mutation can observe it partly applied.
type Store struct {
	mu sync.Mutex // serializes Put/Del/Reset across engine + graph + vector cache

	root     string
	cfg      *config.Config
	engine   *lsm.Engine
	graph    *hnsw.Graph
	vectors  *cache.VectorCache
	records  *cache.RecordCache
	embedder embed.Embedder

	dirty map[uint64]bool // keys touched since the last persist, for the embedding-log append-on-shutdown path
}

func hnswGraphConfig(cfg *config.Config) hnsw.Config {
	return hnsw.Config{
		Dim:            int(cfg.Vector.Dim),
		M:              cfg.HNSW.M,
		MMax:           cfg.HNSW.MMax,
		EfConstruction: cfg.HNSW.EfConstruction,
		MLNorm:         cfg.HNSW.MLNorm,
	}
}

// Open creates or reopens a store rooted at dir: it reconstitutes the
// vector cache from the embedding log, then (if present) the HNSW
// snapshot, attaching vectors to nodes by key lookup, per spec.md
// §4.6 "Startup".
func Open(dir string, cfg *config.Config, embedder embed.Embedder) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	engine, err := lsm.Open(dir, lsm.Options{
		MaxLevels:       int(cfg.LSM.MaxLevels),
		MaxTablesPerLvl: int(cfg.LSM.MaxTablesPerLvl),
		FlushLimitBytes: int64(cfg.LSM.FlushLimitBytes),
		CompactionType:  cfg.LSM.CompactionType,
	})
	if err != nil {
		return nil, fmt.Errorf("store: opening LSM engine: %w", err)
	}

	live, err := persist.LoadEmbeddingLog(filepath.Join(dir, embeddingLogName), int(cfg.Vector.Dim))
	if err != nil {
		return nil, fmt.Errorf("store: %w", vserrors.ErrCorruption)
	}

	vectors := cache.NewVectorCache(int(cfg.Cache.VectorCapacity))
	for key, vec := range live {
		vectors.Put(key, vec)
	}

	var graph *hnsw.Graph
	hnswDir := filepath.Join(dir, hnswDirName)
	if _, statErr := os.Stat(filepath.Join(hnswDir, "global_header.bin")); statErr == nil {
		graph, err = hnsw.LoadSnapshot(hnswDir, vectors.Get)
		if err != nil {
			return nil, fmt.Errorf("store: loading HNSW snapshot: %w", vserrors.ErrCorruption)
		}
	} else {
		graph = hnsw.New(hnswGraphConfig(cfg))
	}

	return &Store{
		root:     dir,
		cfg:      cfg,
		engine:   engine,
		graph:    graph,
		vectors:  vectors,
		records:  cache.NewRecordCache(int(cfg.Cache.ReadPathCapacity)),
		embedder: embedder,
		dirty:    make(map[uint64]bool),
	}, nil
}

// Put embeds value, inserts the resulting vector into the HNSW graph
// and the vector cache, and writes (key, value) into the LSM engine,
// per spec.md §2 "Control flow" — all under one lock, so no other
// Put, Del or Reset interleaves with it.
func (s *Store) Put(key uint64, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	vec, err := s.embedder.Embed(string(value))
	if err != nil {
		return fmt.Errorf("store: embedding value for key %d: %w", key, err)
	}
	if len(vec) != int(s.cfg.Vector.Dim) {
		return fmt.Errorf("store: %w", vserrors.ErrDimensionMismatch)
	}

	if err := s.graph.Insert(key, vec); err != nil {
		return err
	}
	s.vectors.Put(key, vec)

	if err := s.engine.Put(key, value); err != nil {
		return err
	}
	s.records.Invalidate(key)
	s.dirty[key] = true
	return nil
}

// Get performs a point lookup, consulting the record cache before
// falling through to the LSM engine's memtable-then-levels walk.
func (s *Store) Get(key uint64) ([]byte, error) {
	if v, ok := s.records.Get(key); ok {
		return v, nil
	}
	v, ok, err := s.engine.Get(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, vserrors.ErrNotFound
	}
	s.records.Put(key, v)
	return v, nil
}

// Del writes a tombstone into the LSM engine and marks the
// corresponding HNSW node deleted, removing the vector cache entry
// (spec.md §4.3 "del", invariant I9).
func (s *Store) Del(key uint64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existed, err := s.engine.Del(key)
	if err != nil {
		return false, err
	}
	s.graph.Delete(key)
	s.vectors.Delete(key)
	s.records.Invalidate(key)
	s.dirty[key] = true
	return existed, nil
}

// Scan returns the live entries in [lo, hi], ascending, merged from
// the memtable and every overlapping SST (spec.md §4.3 "scan").
func (s *Store) Scan(lo, hi uint64) ([]lsm.Entry, error) {
	return s.engine.Scan(lo, hi)
}

func (s *Store) resolver() knn.Resolver {
	return func(key uint64) ([]byte, error) {
		v, ok, err := s.engine.Get(key)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, vserrors.ErrNotFound
		}
		return v, nil
	}
}

// IsEmpty reports whether the store holds no vectors, letting callers
// that want KNN-on-empty-store to surface as vserrors.ErrEmptyIndex
// check before searching (spec.md: the core KNN entry points
// themselves return an empty sequence, not an error).
func (s *Store) IsEmpty() bool {
	return s.vectors.Len() == 0
}

// SearchKNN embeds query and runs the brute-force scan of the vector
// cache, returning the k most-similar keys and their stored values
// (spec.md §4.5 "Brute-force").
func (s *Store) SearchKNN(query string, k int) ([]knn.Result, error) {
	vec, err := s.embedder.Embed(query)
	if err != nil {
		return nil, err
	}
	return knn.BruteForce(s.vectors.Snapshot(), vec, k, s.resolver())
}

// SearchKNNParallel embeds query and runs the map-reduce parallel
// variant of KNN (spec.md §4.5 "Parallel variant").
func (s *Store) SearchKNNParallel(query string, k int) ([]knn.Result, error) {
	vec, err := s.embedder.Embed(query)
	if err != nil {
		return nil, err
	}
	return knn.Parallel(s.vectors.Snapshot(), vec, k, s.resolver())
}

// SearchKNNHNSW embeds query and runs the HNSW-accelerated variant of
// KNN (spec.md §4.5 "HNSW-backed variant").
func (s *Store) SearchKNNHNSW(query string, k int) ([]knn.Result, error) {
	vec, err := s.embedder.Embed(query)
	if err != nil {
		return nil, err
	}
	return knn.HNSWSearch(s.graph, vec, k, s.resolver())
}

// Reset erases all data: the LSM engine's memtable and every SST, the
// HNSW graph, both caches, the embedding log, and the HNSW snapshot
// (spec.md §6 "reset()").
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.Reset(); err != nil {
		return err
	}
	s.graph = hnsw.New(hnswGraphConfig(s.cfg))
	s.vectors = cache.NewVectorCache(int(s.cfg.Cache.VectorCapacity))
	s.records = cache.NewRecordCache(int(s.cfg.Cache.ReadPathCapacity))
	s.dirty = make(map[uint64]bool)

	if err := os.Remove(filepath.Join(s.root, embeddingLogName)); err != nil && !os.IsNotExist(err) {
		return err
	}
	if err := os.RemoveAll(filepath.Join(s.root, hnswDirName)); err != nil {
		return err
	}
	return nil
}

// Close flushes the memtable, then persists the embedding log
// (appending dirty keys if a log already exists, else writing a fresh
// full dump) and a new HNSW snapshot, per spec.md §4.6 "Shutdown".
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.engine.Flush(); err != nil {
		return err
	}

	logPath := filepath.Join(s.root, embeddingLogName)
	live := make(map[uint64][]float32)
	s.vectors.Range(func(key uint64, vec []float32) bool {
		live[key] = vec
		return true
	})

	if _, err := os.Stat(logPath); err == nil {
		dirtyKeys := make([]uint64, 0, len(s.dirty))
		for key := range s.dirty {
			dirtyKeys = append(dirtyKeys, key)
		}
		if err := persist.AppendEmbeddingLog(logPath, int(s.cfg.Vector.Dim), dirtyKeys, live); err != nil {
			return err
		}
	} else if os.IsNotExist(err) {
		if err := persist.DumpEmbeddingLog(logPath, int(s.cfg.Vector.Dim), live); err != nil {
			return err
		}
	} else {
		return err
	}
	s.dirty = make(map[uint64]bool)

	return hnsw.SaveSnapshot(filepath.Join(s.root, hnswDirName), s.graph)
}
