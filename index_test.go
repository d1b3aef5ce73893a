package zran

import (
	"bytes"
	"compress/gzip"
	"crypto/rand"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildGzipFixture produces a GZIP stream covering size bytes of
// pseudo-random data, flushed every flushEvery bytes so the DEFLATE
// stream has several genuine block boundaries rather than one giant
// block - spacing small enough to exercise more than a single index
// entry needs that.
func buildGzipFixture(t *testing.T, size, flushEvery int) ([]byte, []byte) {
	t.Helper()
	payload := make([]byte, size)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	for off := 0; off < size; off += flushEvery {
		end := off + flushEvery
		if end > size {
			end = size
		}
		_, err := w.Write(payload[off:end])
		require.NoError(t, err)
		require.NoError(t, w.Flush())
	}
	require.NoError(t, w.Close())
	return buf.Bytes(), payload
}

// buildGzipFixtureNoFlush writes size bytes of low-entropy data in a
// single call and never flushes, so the only block boundaries in the
// resulting stream are the ones compress/flate's own encoder inserts
// as its token buffer fills - genuine DEFLATE block splits, not the
// byte-aligned empty stored blocks a Flush() call produces. Those
// splits land at whatever bit position the preceding Huffman-coded
// symbol happened to end on, so unlike buildGzipFixture this is able
// to produce non-byte-aligned entries - but only if the encoder
// actually emits Huffman-coded blocks rather than falling back to
// stored (byte-aligned) ones, which is why the payload is drawn from a
// narrow byte alphabet instead of being uniformly random: uniformly
// random bytes are incompressible, and compress/flate's block splitter
// gives up on Huffman coding and stores such runs verbatim, which can
// never produce a non-byte-aligned boundary.
func buildGzipFixtureNoFlush(t *testing.T, size int) ([]byte, []byte) {
	t.Helper()
	payload := make([]byte, size)
	raw := make([]byte, size)
	_, err := rand.Read(raw)
	require.NoError(t, err)
	for i, b := range raw {
		payload[i] = 'a' + b%26
	}

	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes(), payload
}

func openTestIndex(t *testing.T, compressed []byte, opts ...Option) *Index {
	t.Helper()
	src, err := NewSource(bytes.NewReader(compressed))
	require.NoError(t, err)
	ix, err := Open(src, opts...)
	require.NoError(t, err)
	return ix
}

func TestBuildAndFullSequentialRead(t *testing.T) {
	compressed, payload := buildGzipFixture(t, 300*1024, 16*1024)

	ix := openTestIndex(t, compressed, WithSpacing(64*1024), WithAutoBuild(false))
	defer ix.Close()

	require.NoError(t, ix.Build(0, 0))
	require.Greaterf(t, ix.store.len(), 1, "expected more than one index entry")

	got := make([]byte, len(payload))
	n, err := io.ReadFull(ix, got)
	require.NoError(t, err)
	require.Equal(t, len(payload), n)
	require.Equal(t, payload, got)
}

func TestRandomAccessParity(t *testing.T) {
	compressed, payload := buildGzipFixture(t, 300*1024, 16*1024)

	ix := openTestIndex(t, compressed, WithSpacing(64*1024), WithAutoBuild(false))
	defer ix.Close()
	require.NoError(t, ix.Build(0, 0))

	cases := []struct {
		offset, length int64
	}{
		{0, 100},
		{70000, 5000},
		{150000, 20000},
		{int64(len(payload)) - 10, 10},
	}
	for _, c := range cases {
		_, err := ix.Seek(c.offset, io.SeekStart)
		require.NoErrorf(t, err, "Seek(%d)", c.offset)

		got := make([]byte, c.length)
		n, err := io.ReadFull(ix, got)
		require.NoErrorf(t, err, "ReadFull at %d", c.offset)
		require.Equal(t, payload[c.offset:c.offset+int64(n)], got[:n])
	}
}

func TestAutoBuildExpandsOnDemand(t *testing.T) {
	compressed, payload := buildGzipFixture(t, 300*1024, 16*1024)

	ix := openTestIndex(t, compressed, WithSpacing(64*1024), WithAutoBuild(true))
	defer ix.Close()

	// No explicit Build call: the store starts empty and AutoBuild must
	// expand on first use.
	target := int64(200000)
	_, err := ix.Seek(target, io.SeekStart)
	require.NoError(t, err)

	got := make([]byte, 1000)
	n, err := io.ReadFull(ix, got)
	require.NoError(t, err)
	require.Equal(t, payload[target:target+int64(n)], got[:n])
	require.NotZero(t, ix.store.len(), "expected AutoBuild to have populated the store")
}

func TestAutoBuildDisabledReturnsNotCovered(t *testing.T) {
	compressed, _ := buildGzipFixture(t, 300*1024, 16*1024)
	ix := openTestIndex(t, compressed, WithSpacing(64*1024), WithAutoBuild(false))
	defer ix.Close()

	_, err := ix.Seek(200000, io.SeekStart)
	require.Equal(t, ErrNotCovered, err)

	_, err = ix.Read(make([]byte, 10))
	require.Equal(t, ErrNotCovered, err)
}

func TestConcatenatedGzipMembers(t *testing.T) {
	first := bytes.Repeat([]byte("first-member-"), 2000)
	second := bytes.Repeat([]byte("second-member-"), 2000)

	var buf bytes.Buffer
	w1 := gzip.NewWriter(&buf)
	_, err := w1.Write(first)
	require.NoError(t, err)
	require.NoError(t, w1.Close())

	w2 := gzip.NewWriter(&buf)
	_, err = w2.Write(second)
	require.NoError(t, err)
	require.NoError(t, w2.Close())

	want := append(append([]byte{}, first...), second...)
	ix := openTestIndex(t, buf.Bytes(), WithSpacing(64*1024), WithAutoBuild(false))
	defer ix.Close()
	require.NoError(t, ix.Build(0, 0))

	got, err := io.ReadAll(ix)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSeekPastEndDefersEOFToRead(t *testing.T) {
	compressed, payload := buildGzipFixture(t, 50*1024, 16*1024)
	ix := openTestIndex(t, compressed, WithSpacing(64*1024), WithAutoBuild(true))
	defer ix.Close()

	past := int64(len(payload)) + 1000
	_, err := ix.Seek(past, io.SeekStart)
	require.NoError(t, err, "Seek itself should not fail")

	n, err := ix.Read(make([]byte, 10))
	require.Zero(t, n)
	require.Equal(t, io.EOF, err)
}

func TestSeekRejectsNegativeOffset(t *testing.T) {
	compressed, _ := buildGzipFixture(t, 10*1024, 4096)
	ix := openTestIndex(t, compressed)
	defer ix.Close()
	_, err := ix.Seek(-1, io.SeekStart)
	require.Error(t, err)
}

func TestOpenRejectsBadWindowSize(t *testing.T) {
	compressed, _ := buildGzipFixture(t, 4096, 4096)
	src, err := NewSource(bytes.NewReader(compressed))
	require.NoError(t, err)
	_, err = Open(src, WithWindowSize(16384))
	require.Equal(t, ErrBadWindowSize, err)
}

func TestOpenRejectsSpacingNotGreaterThanWindow(t *testing.T) {
	compressed, _ := buildGzipFixture(t, 4096, 4096)
	src, err := NewSource(bytes.NewReader(compressed))
	require.NoError(t, err)
	_, err = Open(src, WithSpacing(32768))
	require.Equal(t, ErrBadSpacing, err)
}

func TestReadZeroLengthBufferIsANoop(t *testing.T) {
	compressed, _ := buildGzipFixture(t, 4096, 4096)
	ix := openTestIndex(t, compressed)
	defer ix.Close()
	n, err := ix.Read(nil)
	require.Zero(t, n)
	require.NoError(t, err)
}

func TestOperationsAfterCloseReturnErrClosed(t *testing.T) {
	compressed, _ := buildGzipFixture(t, 4096, 4096)
	ix := openTestIndex(t, compressed)
	require.NoError(t, ix.Close())

	_, err := ix.Read(make([]byte, 1))
	require.Equal(t, ErrClosed, err)

	_, err = ix.Seek(0, io.SeekStart)
	require.Equal(t, ErrClosed, err)

	require.Equal(t, ErrClosed, ix.Build(0, 0))
}

func TestTruncatedRebuildDropsStaleEntries(t *testing.T) {
	compressed, _ := buildGzipFixture(t, 300*1024, 16*1024)
	ix := openTestIndex(t, compressed, WithSpacing(64*1024), WithAutoBuild(false))
	defer ix.Close()

	require.NoError(t, ix.Build(0, 0))
	full := ix.store.len()
	require.Greaterf(t, full, 1, "need at least 2 entries to test truncation")

	last, _ := ix.store.last()
	require.NoError(t, ix.Build(last.CmpOffset, 0))
	require.LessOrEqual(t, ix.store.len(), full)
}

// TestNonByteAlignedEntryCrossingRead covers spec.md's bit-exact
// resume scenario: at least one real, built index entry must land at a
// non-byte-aligned block boundary (bits > 0), and a read straddling
// that entry's uncompressed offset must still return correct bytes.
func TestNonByteAlignedEntryCrossingRead(t *testing.T) {
	compressed, payload := buildGzipFixtureNoFlush(t, 256*1024)

	ix := openTestIndex(t, compressed, WithSpacing(40*1024), WithAutoBuild(false))
	defer ix.Close()
	require.NoError(t, ix.Build(0, 0))

	var misaligned *Point
	for i := range ix.store.points {
		if ix.store.points[i].Bits > 0 {
			misaligned = &ix.store.points[i]
			break
		}
	}
	require.NotNilf(t, misaligned, "expected at least one non-byte-aligned entry among %d built", ix.store.len())

	start := misaligned.UncmpOffset - 100
	if start < 0 {
		start = 0
	}
	length := int64(500)
	if start+length > int64(len(payload)) {
		length = int64(len(payload)) - start
	}

	_, err := ix.Seek(start, io.SeekStart)
	require.NoError(t, err)
	got := make([]byte, length)
	n, err := io.ReadFull(ix, got)
	require.NoError(t, err)
	require.Equal(t, payload[start:start+int64(n)], got[:n])
}
