package zran

import (
	"io"

	"github.com/pkg/errors"

	"github.com/zrajna/indexed-gzip/internal/flate"
)

// decoderStatus mirrors the closed completion-code set spec §4.3/§6.2
// requires from the codec contract, trimmed to the subset this adapter
// can actually produce: internal/flate has no allocator and never
// demands an external dictionary mid-stream, so MEM_ERROR and NEED_DICT
// never arise from it in practice; data errors are reported through the
// returned error rather than as a status.
type decoderStatus int

const (
	codecOK decoderStatus = iota
	codecBlockBoundary
	codecStreamEnd
)

// decoder is C3, the thin contract over internal/flate: container-mode
// or raw-mode init, prime, dictionary installation and block-boundary
// inflate, with the bits/last-block bookkeeping spec §4.3's data_type
// field packs into one word in the original codec.
type decoder struct {
	fd *flate.Decompressor
}

// gzip/zlib magic bytes, used both for container-mode header skipping
// and for the concatenated-stream scan in the inflate engine.
const (
	gzipMagic0 = 0x1f
	gzipMagic1 = 0x8b
)

// newContainerDecoder parses a GZIP or zlib header from r and returns a
// decoder ready to inflate the raw DEFLATE stream that follows. This is
// the "init_container(window_bits)" operation of spec §4.3; window_bits
// itself is implicit since internal/flate always uses a 32 KiB window.
func newContainerDecoder(r flate.Reader) (*decoder, error) {
	b0, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "zran: read container header")
	}
	b1, err := r.ReadByte()
	if err != nil {
		return nil, errors.Wrap(err, "zran: read container header")
	}
	switch {
	case b0 == gzipMagic0 && b1 == gzipMagic1:
		if err := skipGzipHeader(r); err != nil {
			return nil, err
		}
	case (b0&0x0f) == 8 && (int(b0)<<8|int(b1))%31 == 0:
		if err := skipZlibHeader(b1, r); err != nil {
			return nil, err
		}
	default:
		return nil, errors.Wrap(flate.CorruptInputError(0), "zran: unrecognised container header")
	}
	return &decoder{fd: flate.NewDecompressor(r)}, nil
}

// newContainerDecoderAfterMagic builds a container-mode decoder for a
// GZIP member whose two magic bytes have already been consumed by the
// caller (the concatenated-stream scan in the inflate engine).
func newContainerDecoderAfterMagic(r flate.Reader) (*decoder, error) {
	if err := skipGzipHeader(r); err != nil {
		return nil, err
	}
	return &decoder{fd: flate.NewDecompressor(r)}, nil
}

// GZIP header flag bits, RFC 1952 §2.3.1.
const (
	flagText    = 1 << 0
	flagHdrCRC  = 1 << 1
	flagExtra   = 1 << 2
	flagName    = 1 << 3
	flagComment = 1 << 4
)

// skipGzipHeader consumes the remainder of a GZIP member header (CM,
// FLG, MTIME, XFL, OS, and any optional fields) after the two magic
// bytes have already been read. It does not validate the header CRC;
// random access does not need the header's metadata, only its length.
func skipGzipHeader(r flate.Reader) error {
	var hdr [8]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return errors.Wrap(err, "zran: read gzip header")
	}
	method, flg := hdr[0], hdr[1]
	if method != 8 {
		return errors.Errorf("zran: unsupported gzip compression method %d", method)
	}
	if flg&flagExtra != 0 {
		var lenBuf [2]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return errors.Wrap(err, "zran: read gzip extra length")
		}
		n := int(lenBuf[0]) | int(lenBuf[1])<<8
		if err := discard(r, n); err != nil {
			return errors.Wrap(err, "zran: read gzip extra field")
		}
	}
	if flg&flagName != 0 {
		if err := skipCString(r); err != nil {
			return errors.Wrap(err, "zran: read gzip name")
		}
	}
	if flg&flagComment != 0 {
		if err := skipCString(r); err != nil {
			return errors.Wrap(err, "zran: read gzip comment")
		}
	}
	if flg&flagHdrCRC != 0 {
		if err := discard(r, 2); err != nil {
			return errors.Wrap(err, "zran: read gzip header crc")
		}
	}
	return nil
}

// skipZlibHeader consumes the remainder of a zlib header (RFC 1950):
// both header bytes (CMF/FLG) are already consumed by the caller as
// part of its checksum check; the only thing that can still follow is
// a 4-byte preset-dictionary id when FLG's FDICT bit is set.
const zlibFlagFDict = 1 << 5

func skipZlibHeader(flg byte, r flate.Reader) error {
	if flg&zlibFlagFDict == 0 {
		return nil
	}
	return discard(r, 4)
}

func skipCString(r flate.Reader) error {
	for {
		c, err := r.ReadByte()
		if err != nil {
			return err
		}
		if c == 0 {
			return nil
		}
	}
}

func discard(r flate.Reader, n int) error {
	var buf [256]byte
	for n > 0 {
		k := n
		if k > len(buf) {
			k = len(buf)
		}
		if _, err := io.ReadFull(r, buf[:k]); err != nil {
			return err
		}
		n -= k
	}
	return nil
}

// newRawDecoder builds a decoder in raw mode (no header), seeded with
// dict as the history window and, when bits>0, primed with the high
// bits bits of primeByte so decoding resumes exactly at a non-byte-
// aligned block start.
func newRawDecoder(r flate.Reader, dict []byte, bits int, primeByte byte) *decoder {
	fd := flate.NewDecompressor(r)
	if len(dict) > 0 {
		fd.SetDictionary(dict)
	}
	if bits > 0 {
		fd.Prime(bits, primeByte)
	}
	return &decoder{fd: fd}
}

// inflate drives the decoder, writing into out and stopping at the next
// block boundary when stopAtBlock is true. It returns the number of
// bytes produced and the resulting status; lastBlock reports whether
// the block that just ended (on codecBlockBoundary) was the stream's
// final block, and residualBits is the number of leftover bits at the
// stop point (spec §4.3's "bits to record").
func (d *decoder) inflate(out []byte, stopAtBlock bool) (n int, status decoderStatus, lastBlock bool, residualBits int, err error) {
	n, st, ferr := d.fd.Inflate(out, stopAtBlock)
	switch st {
	case flate.StatusBlockBoundary:
		return n, codecBlockBoundary, d.fd.Final, int(d.fd.Nb), ferr
	case flate.StatusStreamEnd:
		return n, codecStreamEnd, d.fd.Final, int(d.fd.Nb), ferr
	default:
		return n, codecOK, d.fd.Final, int(d.fd.Nb), ferr
	}
}
