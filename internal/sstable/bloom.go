package sstable

import (
	"encoding/binary"

	"github.com/bits-and-blooms/bitset"
	"github.com/spaolacci/murmur3"
)

// BloomBytes is the fixed on-disk size of an SST's bloom filter block,
// per spec.md §4.2/§6.
const BloomBytes = 10240

const (
	bloomBits  = BloomBytes * 8 // 81920
	bloomWords = BloomBytes / 8 // 1280 uint64 words
)

// defaultHashCount keeps the expected false-positive rate under 1% at
// the load a single 2MiB SST holds (spec.md §9 leaves the hash scheme
// and count to the implementer, as long as FP ≲ 1%).
const defaultHashCount = 7

// bloomFilter is a fixed-size bit array tested with Kirsch-Mitzenmacher
// double hashing over a murmur3 128-bit hash, matching the contract in
// spec.md §6 ("any standard k-hash scheme").
type bloomFilter struct {
	bits *bitset.BitSet
	k    uint
}

func newBloomFilter() *bloomFilter {
	return &bloomFilter{bits: bitset.New(bloomBits), k: defaultHashCount}
}

func (f *bloomFilter) locations(key uint64) []uint {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], key)
	h1, h2 := murmur3.Sum128(buf[:])

	locs := make([]uint, f.k)
	for i := uint(0); i < f.k; i++ {
		locs[i] = uint((h1 + uint64(i)*h2) % bloomBits)
	}
	return locs
}

func (f *bloomFilter) add(key uint64) {
	for _, loc := range f.locations(key) {
		f.bits.Set(loc)
	}
}

func (f *bloomFilter) test(key uint64) bool {
	for _, loc := range f.locations(key) {
		if !f.bits.Test(loc) {
			return false
		}
	}
	return true
}

// marshal packs the bit array into exactly BloomBytes bytes, little-endian.
func (f *bloomFilter) marshal() []byte {
	words := f.bits.Bytes()
	out := make([]byte, BloomBytes)
	for i := 0; i < bloomWords; i++ {
		var w uint64
		if i < len(words) {
			w = words[i]
		}
		binary.LittleEndian.PutUint64(out[i*8:], w)
	}
	return out
}

// unmarshalBloom reconstructs a bloomFilter from exactly BloomBytes bytes.
func unmarshalBloom(data []byte) *bloomFilter {
	words := make([]uint64, bloomWords)
	for i := 0; i < bloomWords; i++ {
		words[i] = binary.LittleEndian.Uint64(data[i*8:])
	}
	return &bloomFilter{bits: bitset.From(words), k: defaultHashCount}
}
