package zran

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"io"
	"testing"
)

func compressGzip(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func compressZlib(t *testing.T, payload []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zlib.NewWriter(&buf)
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("zlib write: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("zlib close: %v", err)
	}
	return buf.Bytes()
}

func TestContainerDecoderGzipRoundTrip(t *testing.T) {
	payload := []byte("the quick brown fox jumps over the lazy dog, repeatedly, " +
		"the quick brown fox jumps over the lazy dog")
	compressed := compressGzip(t, payload)

	src, err := NewSource(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	rb := newReadBuffer(src, 64)
	dec, err := newContainerDecoder(rb)
	if err != nil {
		t.Fatalf("newContainerDecoder: %v", err)
	}
	out := make([]byte, len(payload))
	n, _, _, _, err := dec.inflate(out, false)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if n != len(payload) || !bytes.Equal(out, payload) {
		t.Fatalf("round trip mismatch: n=%d out=%q", n, out)
	}
}

func TestContainerDecoderZlibRoundTrip(t *testing.T) {
	payload := bytes.Repeat([]byte("zlib payload "), 50)
	compressed := compressZlib(t, payload)

	src, err := NewSource(bytes.NewReader(compressed))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	rb := newReadBuffer(src, 64)
	dec, err := newContainerDecoder(rb)
	if err != nil {
		t.Fatalf("newContainerDecoder: %v", err)
	}
	out := make([]byte, len(payload))
	n, _, _, _, err := dec.inflate(out, false)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if n != len(payload) || !bytes.Equal(out, payload) {
		t.Fatalf("round trip mismatch: n=%d", n)
	}
}

func TestContainerDecoderRejectsGarbageHeader(t *testing.T) {
	src, err := NewSource(bytes.NewReader([]byte{0x00, 0x01, 0x02, 0x03}))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	rb := newReadBuffer(src, 64)
	if _, err := newContainerDecoder(rb); err == nil {
		t.Fatalf("expected an error for an unrecognised header")
	}
}

func TestContainerDecoderAfterMagicMatchesGzipHeaderSkip(t *testing.T) {
	payload := []byte("second member payload")
	compressed := compressGzip(t, payload)
	// Simulate the concatenated-stream scanner: the two magic bytes are
	// already consumed by the time newContainerDecoderAfterMagic runs.
	rest := compressed[2:]

	src, err := NewSource(bytes.NewReader(rest))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	rb := newReadBuffer(src, 64)
	dec, err := newContainerDecoderAfterMagic(rb)
	if err != nil {
		t.Fatalf("newContainerDecoderAfterMagic: %v", err)
	}
	out := make([]byte, len(payload))
	n, _, _, _, err := dec.inflate(out, false)
	if err != nil {
		t.Fatalf("inflate: %v", err)
	}
	if !bytes.Equal(out[:n], payload) {
		t.Fatalf("mismatch: got %q want %q", out[:n], payload)
	}
}

func TestSkipCString(t *testing.T) {
	r := bytes.NewReader([]byte("hello\x00trailing"))
	if err := skipCString(r); err != nil {
		t.Fatalf("skipCString: %v", err)
	}
	rest, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(rest) != "trailing" {
		t.Fatalf("expected to stop right after the NUL, got %q", rest)
	}
}
