package zran

import "github.com/cespare/xxhash/v2"

// Point is a single access index entry: everything needed to resume
// DEFLATE decompression partway through a compressed stream.
//
// CmpOffset is the byte offset, in the compressed stream, of the first
// full compressed byte at or after the DEFLATE block boundary this
// entry records. Bits, in [0,7], is the number of leftover bits before
// CmpOffset that still belong to the block; the true bit position is
// 8*CmpOffset - Bits. UncmpOffset is the corresponding offset in the
// decompressed stream. Window holds the W bytes of uncompressed output
// immediately preceding UncmpOffset, used to seed the decoder's history
// dictionary on resume; only the zeroth entry (CmpOffset==0,
// UncmpOffset==0) has a nil Window.
type Point struct {
	CmpOffset   int64
	Bits        int
	UncmpOffset int64
	Window      []byte
}

// windowChecksum hashes the entry's history window with xxhash, cheap
// enough to compute on every build/seek TRACE line and in tests that
// want to assert a rebuilt index reproduces byte-identical windows
// without comparing the full 32 KiB by value.
func (p Point) windowChecksum() uint64 {
	if len(p.Window) == 0 {
		return 0
	}
	return xxhash.Sum64(p.Window)
}

// effectiveCmpOffset is the true start of the entry's block, one byte
// earlier than CmpOffset whenever Bits straddles a byte boundary.
func (p Point) effectiveCmpOffset() int64 {
	if p.Bits > 0 {
		return p.CmpOffset - 1
	}
	return p.CmpOffset
}

// locateOutcome distinguishes why locate did or did not return an entry.
type locateOutcome int

const (
	// located means Point is a valid, non-nil result.
	located locateOutcome = iota
	// notYetIndexed means the target lies beyond the last entry but
	// within plausible range; the caller should expand the index.
	notYetIndexed
	// outOfRange means the target cannot be covered: for a compressed
	// offset, it is past compressed_size; for an uncompressed offset,
	// it is beyond the conservative 2*spacing cushion past the last
	// entry, which - since the uncompressed size is unknown until the
	// stream is fully walked - is only ever a hint, not proof of EOF.
	outOfRange
)

// pointStore is the ordered, growable array of index entries (C1). It
// owns no spacing/window_size configuration of its own; locate takes
// those as parameters so the store stays a pure container.
type pointStore struct {
	points []Point
}

func newPointStore() *pointStore {
	return &pointStore{points: make([]Point, 0, 8)}
}

func (s *pointStore) len() int { return len(s.points) }

func (s *pointStore) last() (Point, bool) {
	if len(s.points) == 0 {
		return Point{}, false
	}
	return s.points[len(s.points)-1], true
}

// append adds entry to the end of the store. Entries must arrive in
// strictly increasing CmpOffset/UncmpOffset order (equality is only
// permitted for a lone zeroth entry); append does not itself enforce
// this, the builder does, since the store has no window_size/spacing
// context to validate against.
func (s *pointStore) append(entry Point) {
	s.points = append(s.points, entry)
}

// shrinkToFit reallocates the backing array to exactly len(points),
// matching the teacher's realloc-to-size discipline at the end of
// every expansion.
func (s *pointStore) shrinkToFit() {
	if cap(s.points) == len(s.points) {
		return
	}
	tight := make([]Point, len(s.points))
	copy(tight, s.points)
	s.points = tight
}

// freeAll drops every window and the list itself.
func (s *pointStore) freeAll() {
	s.points = nil
}

// truncate drops all entries with CmpOffset >= from, keeping one
// strictly-preceding entry as a seed when any such entry existed.
func (s *pointStore) truncate(from int64) {
	keep := 0
	for keep < len(s.points) && s.points[keep].CmpOffset < from {
		keep++
	}
	s.points = s.points[:keep]
}

// locateByCompressed returns the greatest entry whose effective start is
// <= offset, within a stream of the given compressedSize.
func (s *pointStore) locateByCompressed(offset, compressedSize int64) (Point, locateOutcome) {
	if offset >= compressedSize {
		return Point{}, outOfRange
	}
	if len(s.points) == 0 {
		return Point{}, notYetIndexed
	}
	best := -1
	for i, p := range s.points {
		if p.effectiveCmpOffset() <= offset {
			best = i
		} else {
			break
		}
	}
	if best < 0 {
		return Point{}, outOfRange
	}
	if best == len(s.points)-1 && s.points[best].CmpOffset < offset {
		// Beyond the last known entry but still inside compressedSize:
		// the index simply hasn't been walked this far yet.
		return Point{}, notYetIndexed
	}
	return s.points[best], located
}

// locateByUncompressed returns the greatest entry whose UncmpOffset is
// <= offset, applying the 2*spacing plausibility cushion past the last
// entry described in spec §4.1.
func (s *pointStore) locateByUncompressed(offset, spacing int64) (Point, locateOutcome) {
	if len(s.points) == 0 {
		return Point{}, notYetIndexed
	}
	best := -1
	for i, p := range s.points {
		if p.UncmpOffset <= offset {
			best = i
		} else {
			break
		}
	}
	if best < 0 {
		return Point{}, outOfRange
	}
	last := s.points[best]
	if best == len(s.points)-1 && last.UncmpOffset < offset {
		if offset < last.UncmpOffset+2*spacing {
			return Point{}, notYetIndexed
		}
		return Point{}, outOfRange
	}
	return last, located
}
