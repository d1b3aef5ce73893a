package zran

import (
	"hash/maphash"

	"github.com/dgryski/go-tinylfu"
)

// blockSize is the block-cache's unit of storage, independent of
// spacing/window_size.
const blockSize = 65536

// blockKey identifies one decompressed block: a cache generation (bumped
// on invalidate/truncate so stale blocks from a superseded build never
// leak into a later one) plus the block-aligned uncompressed offset.
type blockKey struct {
	generation int64
	blockIndex int64
}

var cacheSeed = maphash.MakeSeed()

func hashBlockKey(k blockKey) uint64 {
	return maphash.Comparable(cacheSeed, k)
}

// blockCache is C7: a bounded, admission-filtered cache of already
// decompressed uncompressed blocks, consulted by read before running
// the locate->resume->discard->inflate pipeline. It never changes a
// read's result, only how much decoding work it costs.
type blockCache struct {
	lfu        *tinylfu.T[blockKey, []byte]
	generation int64
}

// newBlockCache builds a cache sized for nBlocks entries, or returns nil
// when nBlocks <= 0 (disabling C7 entirely, per the WithBlockCache(0)
// option).
func newBlockCache(nBlocks int) *blockCache {
	if nBlocks <= 0 {
		return nil
	}
	return &blockCache{lfu: tinylfu.New[blockKey, []byte](nBlocks, nBlocks*10, hashBlockKey)}
}

// invalidate bumps the generation, making every previously cached block
// unreachable without needing to evict them individually.
func (c *blockCache) invalidate() {
	if c == nil {
		return
	}
	c.generation++
}

func (c *blockCache) get(blockIndex int64) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	return c.lfu.Get(blockKey{c.generation, blockIndex})
}

func (c *blockCache) put(blockIndex int64, data []byte) {
	if c == nil {
		return
	}
	c.lfu.Add(blockKey{c.generation, blockIndex}, data)
}
