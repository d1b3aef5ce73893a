package zran

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

// Source is the file-like contract C2 needs from the compressed input:
// ordinary reads, a one-byte read used only to fetch the byte preceding
// a non-byte-aligned entry, seeking, and the bookkeeping (Tell/EOF/Err)
// a real OS file gives for free but an arbitrary io.ReadSeeker does not.
type Source interface {
	io.Reader
	io.ByteReader
	Seek(offset int64, whence int) (int64, error)
	Tell() int64
	EOF() bool
	Err() error
}

// source adapts any io.ReadSeeker into a Source, measuring its size once
// via seek-end/tell/seek-start exactly as spec §6.3 describes, so a
// bytes.Reader fixture behaves identically to an *os.File in tests.
type source struct {
	rs   io.ReadSeeker
	pos  int64
	size int64
	err  error
}

// NewSource wraps an arbitrary io.ReadSeeker as a Source.
func NewSource(rs io.ReadSeeker) (Source, error) {
	size, err := measureSize(rs)
	if err != nil {
		return nil, err
	}
	return &source{rs: rs, size: size}, nil
}

// NewFileSource opens path and wraps it as a Source.
func NewFileSource(path string) (Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "zran: open source")
	}
	size, err := measureSize(f)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &source{rs: f, size: size}, nil
}

func measureSize(rs io.ReadSeeker) (int64, error) {
	cur, err := rs.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, ErrSourceNotSeekable
	}
	end, err := rs.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, ErrSourceNotSeekable
	}
	if _, err := rs.Seek(cur, io.SeekStart); err != nil {
		return 0, ErrSourceNotSeekable
	}
	return end, nil
}

func (s *source) Read(p []byte) (int, error) {
	n, err := s.rs.Read(p)
	s.pos += int64(n)
	if err != nil && err != io.EOF {
		s.err = err
	}
	return n, err
}

func (s *source) ReadByte() (byte, error) {
	var b [1]byte
	n, err := s.rs.Read(b[:])
	s.pos += int64(n)
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		if err != io.EOF {
			s.err = err
		}
		return 0, err
	}
	return b[0], nil
}

func (s *source) Seek(offset int64, whence int) (int64, error) {
	pos, err := s.rs.Seek(offset, whence)
	if err != nil {
		s.err = err
		return pos, err
	}
	s.pos = pos
	return pos, nil
}

func (s *source) Tell() int64 { return s.pos }

func (s *source) EOF() bool { return s.pos >= s.size }

func (s *source) Err() error { return s.err }

// readBuffer is C2's compressed-data read buffer: a fixed-size window
// with two cursors, offset (bytes already handed to the decoder) and
// end (bytes currently valid). When the decoder exhausts [offset,end)
// the buffer is refilled from Source starting at position 0 - it is
// refilled, never ring-shifted, matching spec §4.2.
type readBuffer struct {
	src       Source
	buf       []byte
	offset    int
	end       int
	bytesRead int64 // cumulative bytes ever handed out; starts at zero with a new buffer and is not cleared by reset
}

func newReadBuffer(src Source, size int) *readBuffer {
	return &readBuffer{src: src, buf: make([]byte, size)}
}

// reset clears both cursors (CLEAR_READBUF_OFFSETS).
func (b *readBuffer) reset() {
	b.offset = 0
	b.end = 0
}

func (b *readBuffer) refill() error {
	n, err := b.src.Read(b.buf)
	b.offset = 0
	b.end = n
	if n == 0 {
		if err == nil {
			err = io.EOF
		}
		return err
	}
	return nil
}

func (b *readBuffer) Read(p []byte) (int, error) {
	if b.offset >= b.end {
		if err := b.refill(); err != nil {
			return 0, err
		}
	}
	n := copy(p, b.buf[b.offset:b.end])
	b.offset += n
	b.bytesRead += int64(n)
	return n, nil
}

func (b *readBuffer) ReadByte() (byte, error) {
	if b.offset >= b.end {
		if err := b.refill(); err != nil {
			return 0, err
		}
	}
	c := b.buf[b.offset]
	b.offset++
	b.bytesRead++
	return c, nil
}
