package zran

import (
	"bytes"
	"io"
	"testing"
)

func TestSourceReadSeekTell(t *testing.T) {
	data := []byte("0123456789abcdef")
	src, err := NewSource(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	if src.Tell() != 0 {
		t.Fatalf("expected initial Tell()==0, got %d", src.Tell())
	}
	if src.EOF() {
		t.Fatalf("should not report EOF at position 0")
	}

	buf := make([]byte, 4)
	n, err := src.Read(buf)
	if err != nil || n != 4 || string(buf) != "0123" {
		t.Fatalf("unexpected read: n=%d err=%v buf=%q", n, err, buf)
	}
	if src.Tell() != 4 {
		t.Fatalf("expected Tell()==4, got %d", src.Tell())
	}

	pos, err := src.Seek(-2, io.SeekEnd)
	if err != nil {
		t.Fatalf("Seek: %v", err)
	}
	if pos != int64(len(data))-2 {
		t.Fatalf("unexpected seek result %d", pos)
	}
	b, err := src.ReadByte()
	if err != nil || b != 'e' {
		t.Fatalf("expected 'e', got %q err=%v", b, err)
	}
}

func TestReadBufferRefillsFromZero(t *testing.T) {
	data := bytes.Repeat([]byte{0xAA}, 10)
	src, err := NewSource(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	rb := newReadBuffer(src, 4)

	var got []byte
	for i := 0; i < len(data); i++ {
		c, err := rb.ReadByte()
		if err != nil {
			t.Fatalf("ReadByte at %d: %v", i, err)
		}
		got = append(got, c)
	}
	if !bytes.Equal(got, data) {
		t.Fatalf("got %x want %x", got, data)
	}
	if rb.bytesRead != int64(len(data)) {
		t.Fatalf("expected bytesRead==%d, got %d", len(data), rb.bytesRead)
	}
}

func TestReadBufferResetClearsOffsets(t *testing.T) {
	data := []byte("abcdefgh")
	src, err := NewSource(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	rb := newReadBuffer(src, 4)
	if _, err := rb.ReadByte(); err != nil {
		t.Fatalf("ReadByte: %v", err)
	}
	rb.reset()
	if rb.offset != 0 || rb.end != 0 {
		t.Fatalf("reset should zero both cursors, got offset=%d end=%d", rb.offset, rb.end)
	}
}
