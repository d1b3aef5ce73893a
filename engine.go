package zran

import (
	"io"

	"github.com/pkg/errors"
)

// inflateFlags mirrors spec §4.4's flag set driving a single C4 call.
type inflateFlags uint

const (
	flagInitStream inflateFlags = 1 << iota
	flagFreeStream
	flagInitReadbuf
	flagFreeReadbuf
	flagClearReadbufOffsets
	flagUseOffset
	flagStopAtBlock
)

// returnCode is C4's closed return-code set.
type returnCode int

const (
	returnOK returnCode = iota
	returnOutputFull
	returnBlockBoundary
	returnEOF
	returnNotCovered
	returnError
)

// engine is C4, the workhorse loop driving C2 (readBuffer) and C3
// (decoder) together. It tracks running compressed/uncompressed offsets
// across calls so a caller (C5's expand) can drive it repeatedly
// without re-seeking, and recognises concatenated GZIP members.
type engine struct {
	src         Source
	rb          *readBuffer
	dec         *decoder
	readbufSize int

	cmpOffset   int64 // absolute compressed offset at the engine's current position
	uncmpOffset int64 // absolute uncompressed offset at the engine's current position

	lastBlockFinal bool // set after a BLOCK_BOUNDARY stop: was that block the stream's last
	lastBits       int  // set after a BLOCK_BOUNDARY stop: residual bits at the stop point
}

func newEngine(src Source, readbufSize int) *engine {
	return &engine{src: src, readbufSize: readbufSize}
}

// step runs one C4 call: it applies flags, then drives the decoder
// until out is full, a block boundary is hit (if flagStopAtBlock), EOF
// is observed, or an error occurs. It returns bytes produced this call,
// the stopping return code, and total bytes consumed this call.
func (e *engine) step(flags inflateFlags, point *Point, out []byte) (produced int, consumed int64, code returnCode, err error) {
	if flags&flagInitReadbuf != 0 {
		e.rb = newReadBuffer(e.src, e.readbufSize)
	}
	if flags&flagClearReadbufOffsets != 0 && e.rb != nil {
		e.rb.reset()
	}
	if e.rb == nil {
		e.rb = newReadBuffer(e.src, e.readbufSize)
	}

	// Captured before any header/seek consumption below, so that a
	// container-mode seedContainer's header bytes land in this call's
	// "consumed" delta and get folded into e.cmpOffset - otherwise the
	// very first entry's CmpOffset comes out short by the header length
	// and every later seedFromPoint seeks to the wrong byte.
	consumedStart := e.rb.bytesRead

	if flags&flagUseOffset != 0 {
		if point == nil {
			return 0, 0, returnNotCovered, errors.New("zran: USE_OFFSET with no entry")
		}
		if err := e.seedFromPoint(*point); err != nil {
			return 0, 0, returnError, err
		}
	} else if flags&flagInitStream != 0 {
		if point != nil {
			if err := e.seedFromPoint(*point); err != nil {
				return 0, 0, returnError, err
			}
		} else {
			if err := e.seedContainer(); err != nil {
				return 0, 0, returnError, err
			}
		}
	}

	if flags&flagFreeStream != 0 {
		e.dec = nil
	}
	if flags&flagFreeReadbuf != 0 {
		e.rb = nil
	}
	if flags&(flagFreeStream|flagFreeReadbuf) != 0 && len(out) == 0 {
		return 0, 0, returnOK, nil
	}

	if len(out) == 0 {
		return 0, 0, returnOK, nil
	}
	if e.dec == nil {
		return 0, 0, returnError, errors.New("zran: inflate called with no active stream")
	}

	stopAtBlock := flags&flagStopAtBlock != 0
	n := 0
	for n < len(out) {
		k, status, lastBlock, bits, ferr := e.dec.inflate(out[n:], stopAtBlock)
		n += k
		e.uncmpOffset += int64(k)
		if ferr != nil {
			consumed = e.rb.bytesRead - consumedStart
			e.cmpOffset += consumed
			return n, consumed, returnError, errors.Wrap(ferr, "zran: inflate")
		}
		switch status {
		case codecBlockBoundary:
			e.lastBlockFinal = lastBlock
			e.lastBits = bits
			consumed = e.rb.bytesRead - consumedStart
			e.cmpOffset += consumed
			return n, consumed, returnBlockBoundary, nil
		case codecStreamEnd:
			handled, herr := e.tryConcatenated()
			if herr != nil {
				consumed = e.rb.bytesRead - consumedStart
				e.cmpOffset += consumed
				return n, consumed, returnError, herr
			}
			if handled {
				continue
			}
			consumed = e.rb.bytesRead - consumedStart
			e.cmpOffset += consumed
			return n, consumed, returnEOF, nil
		default:
			// codecOK: keep looping, out not yet full.
		}
	}
	consumed = e.rb.bytesRead - consumedStart
	e.cmpOffset += consumed
	return n, consumed, returnOutputFull, nil
}

// seedFromPoint resumes raw-mode decoding from entry, priming the
// decoder with the byte at CmpOffset-1 when the entry is not
// byte-aligned, and installing its window as the history dictionary.
// The zeroth entry (CmpOffset 0) instead restarts in container mode at
// the start of the source, since the stream header lies in front of it.
func (e *engine) seedFromPoint(entry Point) error {
	if entry.CmpOffset == 0 {
		if _, err := e.src.Seek(0, io.SeekStart); err != nil {
			return errors.Wrap(err, "zran: seek to entry")
		}
		e.rb.reset()
		e.cmpOffset = 0
		e.uncmpOffset = 0
		return e.seedContainer()
	}
	var primeByte byte
	if entry.Bits > 0 {
		if _, err := e.src.Seek(entry.CmpOffset-1, io.SeekStart); err != nil {
			return errors.Wrap(err, "zran: seek to prime byte")
		}
		b, err := e.src.ReadByte()
		if err != nil {
			return errors.Wrap(err, "zran: read prime byte")
		}
		primeByte = b
	} else {
		if _, err := e.src.Seek(entry.CmpOffset, io.SeekStart); err != nil {
			return errors.Wrap(err, "zran: seek to entry")
		}
	}
	e.rb.reset()
	e.dec = newRawDecoder(e.rb, entry.Window, entry.Bits, primeByte)
	e.cmpOffset = entry.CmpOffset
	e.uncmpOffset = entry.UncmpOffset
	return nil
}

// seedContainer (re)starts decoding in container mode at the engine's
// current read-buffer position - used both for the very first entry
// (offset 0) and for re-synchronising onto a concatenated GZIP member.
func (e *engine) seedContainer() error {
	dec, err := newContainerDecoder(e.rb)
	if err != nil {
		return err
	}
	e.dec = dec
	return nil
}

// tryConcatenated implements spec §4.4's concatenated-stream handling:
// scan forward for the GZIP magic, skipping padding (charged to
// consumed, not produced), and re-init in container mode on a match.
func (e *engine) tryConcatenated() (bool, error) {
	var prev byte
	havePrev := false
	for {
		c, err := e.rb.ReadByte()
		if err != nil {
			if err == io.EOF {
				return false, nil
			}
			return false, errors.Wrap(err, "zran: scan for concatenated member")
		}
		if havePrev && prev == gzipMagic0 && c == gzipMagic1 {
			dec, err := newContainerDecoderAfterMagic(e.rb)
			if err != nil {
				return false, err
			}
			e.dec = dec
			return true, nil
		}
		prev = c
		havePrev = true
	}
}
