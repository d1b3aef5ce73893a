// Copyright 2009 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package flate is a DEFLATE (RFC 1951) decompressor adapted from the
// pure-Go decompressor historically vendored by this repository's
// teacher (itself a port of the Go standard library's original
// compress/flate, before it moved to an unexported, non-resumable
// implementation). It is extended here with exactly the handful of
// extra primitives random access needs that a stock decompressor does
// not expose: resuming mid-stream from a caller-supplied dictionary and
// leftover bit count (Prime/SetDictionary), and stopping output at
// DEFLATE block boundaries instead of only at history-buffer wraps
// (Inflate's stopAtBlock).
package flate

import (
	"io"
	"strconv"
)

const (
	maxCodeLen = 16    // max length of Huffman code
	MaxHist    = 32768 // max history required
	// The next three numbers come from the RFC, section 3.2.7.
	MaxLit   = 286
	MaxDist  = 32
	NumCodes = 19 // number of codes in Huffman meta-code
)

// A CorruptInputError reports the presence of corrupt input at a given offset.
type CorruptInputError int64

func (e CorruptInputError) Error() string {
	return "flate: corrupt input before offset " + strconv.FormatInt(int64(e), 10)
}

// An InternalError reports an error in the flate code itself.
type InternalError string

func (e InternalError) Error() string { return "flate: internal error: " + string(e) }

// A ReadError reports an error encountered while reading input.
type ReadError struct {
	Offset int64
	Err    error
}

func (e *ReadError) Error() string {
	return "flate: read error at offset " + strconv.FormatInt(e.Offset, 10) + ": " + e.Err.Error()
}

// Reader is the minimal input interface the decompressor needs.
type Reader interface {
	io.Reader
	io.ByteReader
}

const (
	huffmanChunkBits  = 9
	huffmanNumChunks  = 1 << huffmanChunkBits
	huffmanCountMask  = 15
	huffmanValueShift = 4
)

// HuffmanDecoder is zlib-style lookup-table Huffman decoding state. It is
// rebuilt from the block header every block and never carried across a
// block boundary, so unlike the teacher's point type, Point never needs
// to snapshot it.
type HuffmanDecoder struct {
	Min      int
	Chunks   [huffmanNumChunks]uint32
	Links    [][]uint32
	LinkMask uint32
}

func (h *HuffmanDecoder) init(bits []int) bool {
	if h.Min != 0 {
		*h = HuffmanDecoder{}
	}

	var count [maxCodeLen]int
	var min, max int
	for _, n := range bits {
		if n == 0 {
			continue
		}
		if min == 0 || n < min {
			min = n
		}
		if n > max {
			max = n
		}
		count[n]++
	}
	if max == 0 {
		return false
	}

	h.Min = min
	var linkBits uint
	var numLinks int
	if max > huffmanChunkBits {
		linkBits = uint(max) - huffmanChunkBits
		numLinks = 1 << linkBits
		h.LinkMask = uint32(numLinks - 1)
	}
	code := 0
	var nextcode [maxCodeLen]int
	for i := min; i <= max; i++ {
		if i == huffmanChunkBits+1 {
			link := code >> 1
			if huffmanNumChunks < link {
				return false
			}
			h.Links = make([][]uint32, huffmanNumChunks-link)
			for j := uint(link); j < huffmanNumChunks; j++ {
				reverse := int(reverseByte[j>>8]) | int(reverseByte[j&0xff])<<8
				reverse >>= uint(16 - huffmanChunkBits)
				off := j - uint(link)
				h.Chunks[reverse] = uint32(off<<huffmanValueShift + uint(i))
				h.Links[off] = make([]uint32, 1<<linkBits)
			}
		}
		n := count[i]
		nextcode[i] = code
		code += n
		code <<= 1
	}

	for i, n := range bits {
		if n == 0 {
			continue
		}
		code := nextcode[n]
		nextcode[n]++
		chunk := uint32(i<<huffmanValueShift | n)
		reverse := int(reverseByte[code>>8]) | int(reverseByte[code&0xff])<<8
		reverse >>= uint(16 - n)
		if n <= huffmanChunkBits {
			for off := reverse; off < huffmanNumChunks; off += 1 << uint(n) {
				h.Chunks[off] = chunk
			}
		} else {
			value := h.Chunks[reverse&(huffmanNumChunks-1)] >> huffmanValueShift
			if value >= uint32(len(h.Links)) {
				return false
			}
			linktab := h.Links[value]
			reverse >>= huffmanChunkBits
			for off := reverse; off < numLinks; off += 1 << uint(n-huffmanChunkBits) {
				linktab[off] = chunk
			}
		}
	}
	return true
}

// Status is the outcome of a single Inflate call.
type Status int

const (
	// StatusOK means the output buffer was filled with no stop condition.
	StatusOK Status = iota
	// StatusBlockBoundary means decoding paused right before the next
	// block's header would be parsed; Decompressor.Final reports
	// whether the block just finished was the stream's last block.
	StatusBlockBoundary
	// StatusStreamEnd means the DEFLATE stream (not necessarily the
	// container) ended.
	StatusStreamEnd
)

// Decompressor is DEFLATE decode state. Every field but blockDone is exported so that
// callers outside the package (the codec adapter) can read Roffset,
// Woffset, Final and the residual bit count after a block boundary, and
// so a fresh Decompressor can be seeded directly from a dictionary
// without re-running the whole stream.
type Decompressor struct {
	R       Reader
	Roffset int64 // bytes consumed from R so far
	Woffset int64 // bytes produced so far

	// Input bits, in the bottom of B; Nb of them are valid.
	B  uint32
	Nb uint

	H1, H2 HuffmanDecoder

	Bits     *[MaxLit + MaxDist]int
	Codebits *[NumCodes]int

	Hist  *[MaxHist]byte
	Hp    int
	Hw    int
	Hfull bool

	Buf [4]byte

	Step      func(*Decompressor)
	Final     bool // true if the block just finished was the last block
	blockDone bool // true right after a block finishes, before its successor's header is parsed
	Err       error
	ToRead    []byte
	Hl, Hd    *HuffmanDecoder
	CopyLen   int
	CopyDist  int
}

// NewDecompressor returns a raw-mode (headerless) decompressor reading
// from r, with no preset dictionary. Callers that need container-mode
// (GZIP/zlib header) decoding strip the header first (see the codec
// adapter) and always end up here afterwards, since DEFLATE itself never
// has a header of its own.
func NewDecompressor(r Reader) *Decompressor {
	f := &Decompressor{
		R:        r,
		Bits:     new([MaxLit + MaxDist]int),
		Codebits: new([NumCodes]int),
		Hist:     new([MaxHist]byte),
	}
	f.Step = (*Decompressor).nextBlock
	return f
}

// SetDictionary seeds the history buffer with the given preset
// dictionary, as if those bytes had just been produced. Only the last
// MaxHist bytes of dict are kept.
func (f *Decompressor) SetDictionary(dict []byte) {
	if len(dict) > len(f.Hist) {
		dict = dict[len(dict)-len(f.Hist):]
	}
	f.Hp = copy(f.Hist[:], dict)
	if f.Hp == len(f.Hist) {
		f.Hp = 0
		f.Hfull = true
	}
	f.Hw = f.Hp
}

// Prime feeds the top bits of b into the decoder as the first bits bits
// of compressed input, for resuming at a non-byte-aligned block start.
// bits must be in [0,7]. It must be called immediately after
// NewDecompressor, before any Inflate call.
func (f *Decompressor) Prime(bits int, b byte) {
	if bits <= 0 {
		return
	}
	f.B = uint32(b) >> uint(8-bits)
	f.Nb = uint(bits)
}

// AtBlockBoundary reports whether a block has just finished and nextBlock
// has not yet run to start parsing its successor's header. Inflate itself
// clears this the moment it stops for a boundary, so this only observes
// the brief window before stopAtBlock is even checked - e.g. immediately
// after finishBlock runs mid-Inflate with stopAtBlock false.
func (f *Decompressor) AtBlockBoundary() bool { return f.blockDone }

// Inflate writes decompressed bytes into out, stopping when out is
// full, when the stream ends, or - if stopAtBlock is true - at the next
// DEFLATE block boundary. It returns the number of bytes written.
func (f *Decompressor) Inflate(out []byte, stopAtBlock bool) (n int, status Status, err error) {
	for n < len(out) {
		if len(f.ToRead) > 0 {
			c := copy(out[n:], f.ToRead)
			f.ToRead = f.ToRead[c:]
			n += c
			continue
		}
		if f.Err != nil {
			if f.Err == io.EOF {
				return n, StatusStreamEnd, nil
			}
			return n, StatusOK, f.Err
		}
		if stopAtBlock && f.blockDone {
			// Hand over whatever the finished block left in the history
			// ring first, so the bytes returned before a boundary stop are
			// exactly the bytes preceding that boundary.
			if f.Hw != f.Hp {
				f.flush(f.Step)
				continue
			}
			// Clear blockDone before returning: otherwise a resumed call
			// would see it still set and stop again immediately instead
			// of stepping into the block nextBlock is waiting to parse.
			f.blockDone = false
			// A boundary at the final block is never reported: there is
			// no subsequent block to resume into, so the driver just
			// keeps going, which runs straight into end-of-stream.
			if !f.Final {
				return n, StatusBlockBoundary, nil
			}
		}
		f.Step(f)
	}
	return n, StatusOK, nil
}

// finishBlock marks the decompressor as paused at a block boundary and
// arranges for the next Step to parse the following block's header.
func (f *Decompressor) finishBlock() {
	f.blockDone = true
	f.Step = (*Decompressor).nextBlock
}

func (f *Decompressor) nextBlock() {
	f.blockDone = false
	if f.Final {
		if f.Hw != f.Hp {
			f.flush((*Decompressor).nextBlock)
			return
		}
		f.Err = io.EOF
		return
	}
	for f.Nb < 1+2 {
		if f.Err = f.moreBits(); f.Err != nil {
			return
		}
	}
	f.Final = f.B&1 == 1
	f.B >>= 1
	typ := f.B & 3
	f.B >>= 2
	f.Nb -= 1 + 2
	switch typ {
	case 0:
		f.dataBlock()
	case 1:
		f.Hl = &fixedHuffmanDecoder
		f.Hd = nil
		f.huffmanBlock()
	case 2:
		if f.Err = f.readHuffman(); f.Err != nil {
			return
		}
		f.Hl = &f.H1
		f.Hd = &f.H2
		f.huffmanBlock()
	default:
		f.Err = CorruptInputError(f.Roffset)
	}
}

var codeOrder = [...]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

func (f *Decompressor) readHuffman() error {
	for f.Nb < 5+5+4 {
		if err := f.moreBits(); err != nil {
			return err
		}
	}
	nlit := int(f.B&0x1F) + 257
	if nlit > MaxLit {
		return CorruptInputError(f.Roffset)
	}
	f.B >>= 5
	ndist := int(f.B&0x1F) + 1
	f.B >>= 5
	nclen := int(f.B&0xF) + 4
	f.B >>= 4
	f.Nb -= 5 + 5 + 4

	for i := 0; i < nclen; i++ {
		for f.Nb < 3 {
			if err := f.moreBits(); err != nil {
				return err
			}
		}
		f.Codebits[codeOrder[i]] = int(f.B & 0x7)
		f.B >>= 3
		f.Nb -= 3
	}
	for i := nclen; i < len(codeOrder); i++ {
		f.Codebits[codeOrder[i]] = 0
	}
	if !f.H1.init(f.Codebits[0:]) {
		return CorruptInputError(f.Roffset)
	}

	for i, n := 0, nlit+ndist; i < n; {
		x, err := f.huffSym(&f.H1)
		if err != nil {
			return err
		}
		if x < 16 {
			f.Bits[i] = x
			i++
			continue
		}
		var rep int
		var nb uint
		var b int
		switch x {
		default:
			return InternalError("unexpected length code")
		case 16:
			rep = 3
			nb = 2
			if i == 0 {
				return CorruptInputError(f.Roffset)
			}
			b = f.Bits[i-1]
		case 17:
			rep = 3
			nb = 3
			b = 0
		case 18:
			rep = 11
			nb = 7
			b = 0
		}
		for f.Nb < nb {
			if err := f.moreBits(); err != nil {
				return err
			}
		}
		rep += int(f.B & uint32(1<<nb-1))
		f.B >>= nb
		f.Nb -= nb
		if i+rep > n {
			return CorruptInputError(f.Roffset)
		}
		for j := 0; j < rep; j++ {
			f.Bits[i] = b
			i++
		}
	}

	if !f.H1.init(f.Bits[0:nlit]) || !f.H2.init(f.Bits[nlit:nlit+ndist]) {
		return CorruptInputError(f.Roffset)
	}
	return nil
}

func (f *Decompressor) huffmanBlock() {
	for {
		v, err := f.huffSym(f.Hl)
		if err != nil {
			f.Err = err
			return
		}
		var n uint
		var length int
		switch {
		case v < 256:
			f.Hist[f.Hp] = byte(v)
			f.Hp++
			if f.Hp == len(f.Hist) {
				f.flush((*Decompressor).huffmanBlock)
				return
			}
			continue
		case v == 256:
			f.finishBlock()
			return
		case v < 265:
			length = v - (257 - 3)
			n = 0
		case v < 269:
			length = v*2 - (265*2 - 11)
			n = 1
		case v < 273:
			length = v*4 - (269*4 - 19)
			n = 2
		case v < 277:
			length = v*8 - (273*8 - 35)
			n = 3
		case v < 281:
			length = v*16 - (277*16 - 67)
			n = 4
		case v < 285:
			length = v*32 - (281*32 - 131)
			n = 5
		default:
			length = 258
			n = 0
		}
		if n > 0 {
			for f.Nb < n {
				if err = f.moreBits(); err != nil {
					f.Err = err
					return
				}
			}
			length += int(f.B & uint32(1<<n-1))
			f.B >>= n
			f.Nb -= n
		}

		var dist int
		if f.Hd == nil {
			for f.Nb < 5 {
				if err = f.moreBits(); err != nil {
					f.Err = err
					return
				}
			}
			dist = int(reverseByte[(f.B&0x1F)<<3])
			f.B >>= 5
			f.Nb -= 5
		} else {
			if dist, err = f.huffSym(f.Hd); err != nil {
				f.Err = err
				return
			}
		}

		switch {
		case dist < 4:
			dist++
		case dist >= 30:
			f.Err = CorruptInputError(f.Roffset)
			return
		default:
			nb := uint(dist-2) >> 1
			extra := (dist & 1) << nb
			for f.Nb < nb {
				if err = f.moreBits(); err != nil {
					f.Err = err
					return
				}
			}
			extra |= int(f.B & uint32(1<<nb-1))
			f.B >>= nb
			f.Nb -= nb
			dist = 1<<(nb+1) + 1 + extra
		}

		if dist > len(f.Hist) {
			f.Err = InternalError("bad history distance")
			return
		}
		if !f.Hfull && dist > f.Hp {
			f.Err = CorruptInputError(f.Roffset)
			return
		}

		f.CopyLen, f.CopyDist = length, dist
		if f.copyHist() {
			return
		}
	}
}

func (f *Decompressor) copyHist() bool {
	p := f.Hp - f.CopyDist
	if p < 0 {
		p += len(f.Hist)
	}
	for f.CopyLen > 0 {
		n := f.CopyLen
		if x := len(f.Hist) - f.Hp; n > x {
			n = x
		}
		if x := len(f.Hist) - p; n > x {
			n = x
		}
		forwardCopy(f.Hist[:], f.Hp, p, n)
		p += n
		f.Hp += n
		f.CopyLen -= n
		if f.Hp == len(f.Hist) {
			f.flush((*Decompressor).copyHuff)
			return true
		}
		if p == len(f.Hist) {
			p = 0
		}
	}
	return false
}

func (f *Decompressor) copyHuff() {
	if f.copyHist() {
		return
	}
	f.huffmanBlock()
}

func (f *Decompressor) dataBlock() {
	f.Nb = 0
	f.B = 0

	nr, err := io.ReadFull(f.R, f.Buf[0:4])
	f.Roffset += int64(nr)
	if err != nil {
		f.Err = &ReadError{f.Roffset, err}
		return
	}
	n := int(f.Buf[0]) | int(f.Buf[1])<<8
	nn := int(f.Buf[2]) | int(f.Buf[3])<<8
	if uint16(nn) != uint16(^n) {
		f.Err = CorruptInputError(f.Roffset)
		return
	}

	if n == 0 {
		f.finishBlock()
		return
	}

	f.CopyLen = n
	f.copyData()
}

func (f *Decompressor) copyData() {
	n := f.CopyLen
	for n > 0 {
		m := len(f.Hist) - f.Hp
		if m > n {
			m = n
		}
		m, err := io.ReadFull(f.R, f.Hist[f.Hp:f.Hp+m])
		f.Roffset += int64(m)
		if err != nil {
			f.Err = &ReadError{f.Roffset, err}
			return
		}
		n -= m
		f.Hp += m
		if f.Hp == len(f.Hist) {
			f.CopyLen = n
			f.flush((*Decompressor).copyData)
			return
		}
	}
	f.finishBlock()
}

func (f *Decompressor) moreBits() error {
	c, err := f.R.ReadByte()
	if err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return err
	}
	f.Roffset++
	f.B |= uint32(c) << f.Nb
	f.Nb += 8
	return nil
}

func (f *Decompressor) huffSym(h *HuffmanDecoder) (int, error) {
	n := uint(h.Min)
	for {
		for f.Nb < n {
			if err := f.moreBits(); err != nil {
				return 0, err
			}
		}
		chunk := h.Chunks[f.B&(huffmanNumChunks-1)]
		n = uint(chunk & huffmanCountMask)
		if n > huffmanChunkBits {
			chunk = h.Links[chunk>>huffmanValueShift][(f.B>>huffmanChunkBits)&h.LinkMask]
			n = uint(chunk & huffmanCountMask)
			if n == 0 {
				f.Err = CorruptInputError(f.Roffset)
				return 0, f.Err
			}
		}
		if n <= f.Nb {
			f.B >>= n
			f.Nb -= n
			return int(chunk >> huffmanValueShift), nil
		}
	}
}

// flush drains the history ring into ToRead and arranges for step to run
// on the next Step invocation. This happens on every MaxHist-byte wrap,
// independent of block boundaries.
func (f *Decompressor) flush(step func(*Decompressor)) {
	f.ToRead = f.Hist[f.Hw:f.Hp]
	f.Woffset += int64(f.Hp - f.Hw)
	f.Hw = f.Hp
	if f.Hp == len(f.Hist) {
		f.Hp = 0
		f.Hw = 0
		f.Hfull = true
	}
	f.Step = step
}

func forwardCopy(dst []byte, dstPos, srcPos, n int) {
	if dstPos-srcPos < n {
		for i := 0; i < n; i++ {
			dst[dstPos+i] = dst[srcPos+i]
		}
		return
	}
	copy(dst[dstPos:dstPos+n], dst[srcPos:srcPos+n])
}
