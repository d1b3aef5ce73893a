// Package zran provides random read access into a DEFLATE-compressed
// byte stream (a raw zlib stream, a single GZIP member, or a
// concatenation of GZIP members) without decompressing the whole
// stream on every seek. It builds an auxiliary access index recording,
// at DEFLATE block boundaries, the decoder state needed to resume
// decompression from that point: a compressed byte offset, a leftover
// bit count, the corresponding uncompressed offset, and a 32 KiB
// history window.
package zran

import (
	"io"

	"github.com/pkg/errors"

	"github.com/zrajna/indexed-gzip/internal/capnslog"
)

// Index is the public random-access API (C6): build/seek/tell/read over
// a Source. It satisfies io.Reader and io.Seeker, so *Index is a
// drop-in io.ReadSeeker over the uncompressed stream.
type Index struct {
	src Source

	store       *pointStore
	eng         *engine
	cache       *blockCache
	spacing     int64
	windowSize  int64
	readbufSize int64
	autoBuild   bool
	log         *capnslog.PackageLogger

	compressedSize int64
	seekPos        int64
	closed         bool

	scratch []byte // reused 4*spacing discard/ring buffer
}

// Open validates src and opts, measures the compressed size, and
// returns an Index with an empty point store (Build must be called, or
// AutoBuild left on, before Seek/Read can make progress).
func Open(src Source, opts ...Option) (*Index, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.WindowSize < 32768 {
		return nil, ErrBadWindowSize
	}
	if o.Spacing <= o.WindowSize {
		return nil, ErrBadSpacing
	}

	size, err := measureCompressedSize(src)
	if err != nil {
		return nil, err
	}

	ix := &Index{
		src:            src,
		store:          newPointStore(),
		eng:            newEngine(src, int(o.ReadbufSize)),
		cache:          newBlockCache(o.CacheBlocks),
		spacing:        o.Spacing,
		windowSize:     o.WindowSize,
		readbufSize:    o.ReadbufSize,
		autoBuild:      o.AutoBuild,
		log:            o.Logger,
		compressedSize: size,
		scratch:        make([]byte, 4*o.Spacing),
	}
	return ix, nil
}

func measureCompressedSize(src Source) (int64, error) {
	cur := src.Tell()
	end, err := src.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, errors.Wrap(err, ErrSourceNotSeekable.Error())
	}
	if _, err := src.Seek(cur, io.SeekStart); err != nil {
		return 0, errors.Wrap(err, ErrSourceNotSeekable.Error())
	}
	return end, nil
}

// Close releases the point store and the engine's decoder and read
// buffer. The underlying Source is left for the caller to close.
func (ix *Index) Close() error {
	if ix.closed {
		return nil
	}
	ix.store.freeAll()
	ix.eng.step(flagFreeStream|flagFreeReadbuf|flagClearReadbufOffsets, nil, nil)
	ix.closed = true
	return nil
}

// Build composes invalidate(from) with expand(until), per spec §4.5.
// until == 0 means "to the end of the compressed stream".
func (ix *Index) Build(from, until int64) error {
	if ix.closed {
		return ErrClosed
	}
	ix.store.truncate(from)
	ix.cache.invalidate()
	u := until
	if u == 0 {
		u = ix.compressedSize
	}
	if ix.log.DEBUG() {
		ix.log.Debugf("build: from=%d until=%d", from, u)
	}
	if err := expand(ix.store, ix.eng, ix.spacing, ix.windowSize, u); err != nil {
		return err
	}
	if ix.log.TRACE() {
		if last, ok := ix.store.last(); ok {
			ix.log.Tracef("build: %d entries, last uncmp=%d window_checksum=%x", ix.store.len(), last.UncmpOffset, last.windowChecksum())
		}
	}
	return nil
}

// estimateTarget produces the compressed-offset bound expand should aim
// for given an uncompressed Seek/Read target, per spec §9's linear
// estimator: with fewer than two entries, guess conservatively; with
// two or more, extrapolate from the last entry's compressed/
// uncompressed ratio.
func (ix *Index) estimateTarget(uncompressedOffset int64) int64 {
	if ix.store.len() < 2 {
		return int64(0.8 * float64(uncompressedOffset))
	}
	last, _ := ix.store.last()
	if last.UncmpOffset == 0 {
		return int64(0.8 * float64(uncompressedOffset))
	}
	ratio := float64(last.CmpOffset) / float64(last.UncmpOffset)
	target := int64(ratio * float64(uncompressedOffset))
	if target <= last.CmpOffset {
		target = last.CmpOffset + 1
	}
	return target
}

// Seek accepts io.SeekStart and io.SeekCurrent only, translates to an
// absolute non-negative uncompressed offset, locates (and if AutoBuild
// is on, expands to cover) the preceding entry, and repositions the
// source to that entry's compressed byte. It does not decompress
// anything.
func (ix *Index) Seek(offset int64, whence int) (int64, error) {
	if ix.closed {
		return 0, ErrClosed
	}
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = ix.seekPos + offset
	default:
		return 0, errors.New("zran: seek: whence must be SEEK_SET or SEEK_CUR")
	}
	if abs < 0 {
		return 0, errors.New("zran: seek: negative resulting offset")
	}

	entry, outcome := ix.store.locateByUncompressed(abs, ix.spacing)
	if outcome != located {
		if !ix.autoBuild {
			if outcome == notYetIndexed {
				return 0, ErrNotCovered
			}
			// outOfRange: defer to the next read, which will observe EOF.
			ix.seekPos = abs
			return abs, nil
		}
		target := ix.estimateTarget(abs)
		if err := expand(ix.store, ix.eng, ix.spacing, ix.windowSize, target); err != nil {
			return 0, err
		}
		entry, outcome = ix.store.locateByUncompressed(abs, ix.spacing)
	}

	ix.seekPos = abs
	if outcome != located {
		// Still not covered after expanding: likely past the true
		// uncompressed end. Leave the source position alone; the next
		// Read will discover EOF via the inflate engine.
		return abs, nil
	}

	at := entry.CmpOffset
	if entry.Bits > 0 {
		at--
	}
	if _, err := ix.src.Seek(at, io.SeekStart); err != nil {
		return 0, errors.Wrap(err, "zran: seek: reposition source")
	}
	if ix.log.TRACE() {
		ix.log.Tracef("seek: offset=%d entry.uncmp=%d entry.bits=%d window_checksum=%x", abs, entry.UncmpOffset, entry.Bits, entry.windowChecksum())
	}
	return abs, nil
}

// Tell returns the logical uncompressed seek position.
func (ix *Index) Tell() int64 { return ix.seekPos }

// Read locates the entry preceding the current seek position,
// discards the uncompressed prefix between the entry and the seek
// position, then inflates up to len(p) bytes directly into p. A short
// read (n < len(p), err == nil) means EOF was reached partway; n == 0
// with err == io.EOF means nothing could be delivered at all.
func (ix *Index) Read(p []byte) (int, error) {
	if ix.closed {
		return 0, ErrClosed
	}
	if len(p) == 0 {
		return 0, nil
	}

	if n, ok := ix.readFromCache(p); ok {
		ix.seekPos += int64(n)
		return n, nil
	}

	entry, outcome := ix.store.locateByUncompressed(ix.seekPos, ix.spacing)
	if outcome != located {
		if !ix.autoBuild {
			return 0, ErrNotCovered
		}
		target := ix.estimateTarget(ix.seekPos)
		if err := expand(ix.store, ix.eng, ix.spacing, ix.windowSize, target); err != nil {
			return 0, err
		}
		entry, outcome = ix.store.locateByUncompressed(ix.seekPos, ix.spacing)
		if outcome != located {
			last, ok := ix.store.last()
			if !ok {
				return 0, ErrNotCovered
			}
			entry = last
		}
	}

	discard := ix.seekPos - entry.UncmpOffset
	// Seeding must happen unconditionally, even when the seek position
	// lands exactly on entry.UncmpOffset and there is nothing to discard:
	// it is what gives ix.eng an active decoder at all, and this empty
	// call is a no-op beyond that (engine.step returns immediately on a
	// zero-length out once flagUseOffset has seeded the stream).
	initFlags := flagInitStream | flagInitReadbuf | flagClearReadbufOffsets | flagUseOffset
	if _, _, _, err := ix.eng.step(initFlags, &entry, nil); err != nil {
		return 0, err
	}
	for discard > 0 {
		chunk := ix.scratch
		if int64(len(chunk)) > discard {
			chunk = chunk[:discard]
		}
		n, _, code, err := ix.eng.step(0, nil, chunk)
		discard -= int64(n)
		if err != nil {
			ix.eng.step(flagFreeStream|flagFreeReadbuf|flagClearReadbufOffsets, nil, nil)
			return 0, err
		}
		if code == returnEOF {
			ix.eng.step(flagFreeStream|flagFreeReadbuf|flagClearReadbufOffsets, nil, nil)
			return 0, io.EOF
		}
	}

	delivered := 0
	for delivered < len(p) {
		n, _, code, err := ix.eng.step(0, nil, p[delivered:])
		delivered += n
		if err != nil {
			ix.eng.step(flagFreeStream|flagFreeReadbuf|flagClearReadbufOffsets, nil, nil)
			return delivered, err
		}
		if code == returnEOF {
			break
		}
	}

	if _, _, _, err := ix.eng.step(flagFreeStream|flagFreeReadbuf|flagClearReadbufOffsets, nil, nil); err != nil {
		return delivered, err
	}

	ix.fillCache(ix.seekPos, p[:delivered])
	ix.seekPos += int64(delivered)
	if delivered == 0 {
		return 0, io.EOF
	}
	return delivered, nil
}

// readFromCache serves p entirely from the block cache when the whole
// requested range falls within one cached, block-aligned block - the
// common case for small reads that re-visit recently decoded data. It
// is strictly an accelerant: returning (0, false) always falls through
// to the normal pipeline.
func (ix *Index) readFromCache(p []byte) (int, bool) {
	if ix.cache == nil {
		return 0, false
	}
	blockIndex := ix.seekPos / blockSize
	blockStart := blockIndex * blockSize
	block, ok := ix.cache.get(blockIndex)
	if !ok {
		return 0, false
	}
	within := ix.seekPos - blockStart
	if within < 0 || within >= int64(len(block)) {
		return 0, false
	}
	if int64(len(p)) > int64(len(block))-within {
		// p reaches past this block's end: fall through to the normal
		// pipeline rather than silently handing back a short, non-EOF
		// read for what the caller asked for as one contiguous range.
		return 0, false
	}
	n := copy(p, block[within:])
	return n, true
}

// fillCache opportunistically caches data that was delivered exactly on
// a block boundary, so a later re-read of the same block hits C7
// without re-running the decode pipeline.
func (ix *Index) fillCache(start int64, data []byte) {
	if ix.cache == nil || len(data) == 0 {
		return
	}
	if start%blockSize != 0 {
		return
	}
	block := data
	if len(block) > blockSize {
		block = block[:blockSize]
	}
	cp := make([]byte, len(block))
	copy(cp, block)
	ix.cache.put(start/blockSize, cp)
}
