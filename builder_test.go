package zran

import (
	"bytes"
	"compress/gzip"
	"crypto/rand"
	"testing"
)

func TestExpandProducesIncreasingEntries(t *testing.T) {
	payload := make([]byte, 200*1024)
	if _, err := rand.Read(payload); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	for off := 0; off < len(payload); off += 8192 {
		end := off + 8192
		if end > len(payload) {
			end = len(payload)
		}
		if _, err := w.Write(payload[off:end]); err != nil {
			t.Fatalf("write: %v", err)
		}
		if err := w.Flush(); err != nil {
			t.Fatalf("flush: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	src, err := NewSource(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("NewSource: %v", err)
	}
	store := newPointStore()
	eng := newEngine(src, defaultReadbufSize)
	if err := expand(store, eng, 40*1024, 32768, int64(buf.Len())); err != nil {
		t.Fatalf("expand: %v", err)
	}

	if store.len() < 2 {
		t.Fatalf("expected multiple entries at 40 KiB spacing over 200 KiB, got %d", store.len())
	}
	var prevCmp, prevUncmp int64
	for i := 0; i < store.len(); i++ {
		p := store.points[i]
		if i > 0 {
			if p.CmpOffset <= prevCmp || p.UncmpOffset <= prevUncmp {
				t.Fatalf("entries must be strictly increasing: entry %d cmp=%d uncmp=%d (prev cmp=%d uncmp=%d)",
					i, p.CmpOffset, p.UncmpOffset, prevCmp, prevUncmp)
			}
			if len(p.Window) != 32768 {
				t.Fatalf("entry %d should carry a full window, got %d bytes", i, len(p.Window))
			}
		} else {
			if p.CmpOffset != 0 || p.UncmpOffset != 0 {
				t.Fatalf("the first entry must be the organic zeroth entry, got cmp=%d uncmp=%d", p.CmpOffset, p.UncmpOffset)
			}
			if p.Window != nil {
				t.Fatalf("the zeroth entry must have a nil window")
			}
		}
		prevCmp, prevUncmp = p.CmpOffset, p.UncmpOffset
	}
}

func TestMakePointWraparoundWindow(t *testing.T) {
	ring := make([]byte, 16)
	for i := range ring {
		ring[i] = byte(i)
	}
	// ringOffset < windowSize: the window straddles the wrap point.
	p := makePoint(0, 100, 500, 4, ring, 10)
	if len(p.Window) != 10 {
		t.Fatalf("expected a 10-byte window, got %d", len(p.Window))
	}
	want := append(append([]byte{}, ring[10:]...), ring[:4]...)
	if !bytes.Equal(p.Window, want) {
		t.Fatalf("wraparound window mismatch: got %v want %v", p.Window, want)
	}
}

func TestMakePointStraightWindow(t *testing.T) {
	ring := make([]byte, 16)
	for i := range ring {
		ring[i] = byte(i)
	}
	p := makePoint(0, 100, 500, 12, ring, 10)
	want := ring[2:12]
	if !bytes.Equal(p.Window, want) {
		t.Fatalf("straight window mismatch: got %v want %v", p.Window, want)
	}
}

func TestMakePointZerothEntryHasNilWindow(t *testing.T) {
	ring := make([]byte, 16)
	p := makePoint(0, 0, 0, 0, ring, 10)
	if p.Window != nil {
		t.Fatalf("the zeroth entry must have a nil window")
	}
}
