package hnsw

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"
)

// globalHeaderBytes is the encoded size of global_header.bin: seven
// little-endian uint64 fields (M, M_max, efConstruction, m_L,
// max-level, node-count, D), per spec.md §4.6.
const globalHeaderBytes = 7 * 8

// SaveSnapshot writes the HNSW graph under dir, in the node/edge
// layout of spec.md §4.6: a global header, a deleted-node log, and
// one header.bin plus one edges/<level>.bin per node.
func SaveSnapshot(dir string, g *Graph) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	header := make([]byte, globalHeaderBytes)
	fields := []uint64{
		uint64(g.cfg.M), uint64(g.cfg.MMax), uint64(g.cfg.EfConstruction), uint64(g.cfg.MLNorm),
		uint64(g.maxLevel), uint64(len(g.nodes)), uint64(g.cfg.Dim),
	}
	for i, v := range fields {
		binary.LittleEndian.PutUint64(header[i*8:], v)
	}
	if err := os.WriteFile(filepath.Join(dir, "global_header.bin"), header, 0o644); err != nil {
		return err
	}

	var deleted []byte
	for _, nd := range g.nodes {
		if nd == nil || !nd.Deleted {
			continue
		}
		rec := make([]byte, 8+4*g.cfg.Dim)
		binary.LittleEndian.PutUint64(rec[:8], uint64(nd.ID))
		putVector(rec[8:], nd.Vector)
		deleted = append(deleted, rec...)
	}
	if err := os.WriteFile(filepath.Join(dir, "deleted_notes.bin"), deleted, 0o644); err != nil {
		return err
	}

	nodesDir := filepath.Join(dir, "nodes")
	for _, nd := range g.nodes {
		if nd == nil {
			continue
		}
		nodeDir := filepath.Join(nodesDir, fmt.Sprintf("%d", nd.ID))
		if err := os.MkdirAll(filepath.Join(nodeDir, "edges"), 0o755); err != nil {
			return err
		}

		hdr := make([]byte, 12)
		binary.LittleEndian.PutUint32(hdr[0:4], uint32(nd.MaxLevel))
		binary.LittleEndian.PutUint64(hdr[4:12], nd.Key)
		if err := os.WriteFile(filepath.Join(nodeDir, "header.bin"), hdr, 0o644); err != nil {
			return err
		}

		for lev, neighbors := range nd.Adj {
			buf := make([]byte, 4+8*len(neighbors))
			binary.LittleEndian.PutUint32(buf[0:4], uint32(len(neighbors)))
			for i, nID := range neighbors {
				binary.LittleEndian.PutUint64(buf[4+8*i:], uint64(g.nodes[nID].Key))
			}
			path := filepath.Join(nodeDir, "edges", fmt.Sprintf("%d.bin", lev))
			if err := os.WriteFile(path, buf, 0o644); err != nil {
				return err
			}
		}
	}
	return nil
}

// LoadSnapshot reconstructs a graph from a directory written by
// SaveSnapshot. vectorLookup resolves a node's vector by key, since
// the snapshot's node/edge files carry only keys (spec.md §4.6:
// "vectors attach to nodes by key lookup in the cache").
func LoadSnapshot(dir string, vectorLookup func(key uint64) ([]float32, bool)) (*Graph, error) {
	headerBuf, err := os.ReadFile(filepath.Join(dir, "global_header.bin"))
	if err != nil {
		return nil, err
	}
	if len(headerBuf) != globalHeaderBytes {
		return nil, fmt.Errorf("hnsw: corrupt global header: got %d bytes, want %d", len(headerBuf), globalHeaderBytes)
	}
	cfg := Config{
		M:              int(binary.LittleEndian.Uint64(headerBuf[0:8])),
		MMax:           int(binary.LittleEndian.Uint64(headerBuf[8:16])),
		EfConstruction: int(binary.LittleEndian.Uint64(headerBuf[16:24])),
		MLNorm:         int(binary.LittleEndian.Uint64(headerBuf[24:32])),
	}
	maxLevel := int(binary.LittleEndian.Uint64(headerBuf[32:40]))
	nodeCount := int(binary.LittleEndian.Uint64(headerBuf[40:48]))
	cfg.Dim = int(binary.LittleEndian.Uint64(headerBuf[48:56]))

	g := New(cfg)
	g.maxLevel = maxLevel
	g.nodes = make([]*Node, nodeCount)

	nodesDir := filepath.Join(dir, "nodes")
	for id := 0; id < nodeCount; id++ {
		nodeDir := filepath.Join(nodesDir, fmt.Sprintf("%d", id))
		hdr, err := os.ReadFile(filepath.Join(nodeDir, "header.bin"))
		if err != nil {
			return nil, fmt.Errorf("hnsw: reading node %d header: %w", id, err)
		}
		nodeMaxLevel := int(binary.LittleEndian.Uint32(hdr[0:4]))
		key := binary.LittleEndian.Uint64(hdr[4:12])

		vec, _ := vectorLookup(key)
		nd := &Node{Key: key, ID: uint32(id), Vector: vec, MaxLevel: nodeMaxLevel, Adj: make([][]uint32, nodeMaxLevel+1)}
		g.nodes[id] = nd
		g.keyToID[key] = uint32(id)
	}

	// Second pass: edges reference neighbors by key, resolved now that
	// every node's key is known.
	for id := 0; id < nodeCount; id++ {
		nd := g.nodes[id]
		nodeDir := filepath.Join(nodesDir, fmt.Sprintf("%d", id), "edges")
		for lev := 0; lev <= nd.MaxLevel; lev++ {
			buf, err := os.ReadFile(filepath.Join(nodeDir, fmt.Sprintf("%d.bin", lev)))
			if err != nil {
				return nil, fmt.Errorf("hnsw: reading node %d level %d edges: %w", id, lev, err)
			}
			if len(buf) < 4 {
				return nil, fmt.Errorf("hnsw: corrupt edge file for node %d level %d", id, lev)
			}
			count := int(binary.LittleEndian.Uint32(buf[0:4]))
			neighbors := make([]uint32, count)
			for i := 0; i < count; i++ {
				nKey := binary.LittleEndian.Uint64(buf[4+8*i:])
				nID, ok := g.keyToID[nKey]
				if !ok {
					return nil, fmt.Errorf("hnsw: edge references unknown key %d", nKey)
				}
				neighbors[i] = nID
			}
			nd.Adj[lev] = neighbors
		}
	}

	deletedBuf, err := os.ReadFile(filepath.Join(dir, "deleted_notes.bin"))
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	recSize := 8 + 4*cfg.Dim
	for off := 0; off+recSize <= len(deletedBuf); off += recSize {
		id := binary.LittleEndian.Uint64(deletedBuf[off : off+8])
		if int(id) < len(g.nodes) && g.nodes[id] != nil {
			g.nodes[id].Deleted = true
			g.nodes[id].Vector = getVector(deletedBuf[off+8:off+recSize], cfg.Dim)
		}
	}

	// Elect the entry point as the first node with the highest level,
	// deleted nodes included, mirroring the build-time invariant that
	// the entry point sits at max-level.
	g.entryID = -1
	for _, nd := range g.nodes {
		if nd == nil {
			continue
		}
		if g.entryID < 0 || nd.MaxLevel > g.nodes[g.entryID].MaxLevel {
			g.entryID = int64(nd.ID)
		}
	}

	return g, nil
}

func putVector(dst []byte, vec []float32) {
	for i, f := range vec {
		binary.LittleEndian.PutUint32(dst[i*4:], math.Float32bits(f))
	}
}

func getVector(src []byte, dim int) []float32 {
	vec := make([]float32, dim)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(src[i*4:]))
	}
	return vec
}
