package zran

// expand is C5: it grows store so that its last entry's CmpOffset >=
// until, or the stream ends, driving eng in STOP_AT_BLOCK mode and
// recording an entry at every eligible block boundary. It is grounded
// directly on _zran_expand_index in the original zran.c: eligibility,
// the ring-buffer window extraction, and the "at least one point
// created" termination guarantee are all ported from there rather than
// re-derived. With fewer than two entries the walk restarts from the
// beginning: the store is emptied, the zeroth entry (0/0, no window) is
// appended, and decoding resumes through it in container mode.
func expand(store *pointStore, eng *engine, spacing, windowSize, until int64) error {
	var seed *Point
	if store.len() >= 2 {
		last, _ := store.last()
		if until <= last.CmpOffset {
			return nil
		}
		seed = &last
	}
	pointsCreated := 0
	if seed == nil {
		store.truncate(0)
		store.append(Point{})
		pointsCreated++
		seed = &Point{}
	}

	ringSize := int(4 * spacing)
	ring := make([]byte, ringSize)
	ringOffset := 0

	cmpOffset := int64(0)
	uncmpOffset := int64(0)
	lastRecordedUncmp := int64(0)
	if seed != nil {
		cmpOffset = seed.CmpOffset
		uncmpOffset = seed.UncmpOffset
		lastRecordedUncmp = uncmpOffset
	}

	firstCall := true

	for {
		var flags inflateFlags
		if firstCall {
			firstCall = false
			flags = flagInitStream | flagInitReadbuf | flagClearReadbufOffsets | flagStopAtBlock
			if seed != nil {
				flags |= flagUseOffset
			}
		} else {
			flags = flagStopAtBlock
		}

		space := ringSize - ringOffset
		n, _, code, err := eng.step(flags, seed, ring[ringOffset:ringOffset+space])
		seed = nil // USE_OFFSET only applies to the first call
		cmpOffset = eng.cmpOffset
		uncmpOffset += int64(n)
		ringOffset = (ringOffset + n) % ringSize
		if err != nil {
			return err
		}

		switch code {
		case returnOutputFull:
			continue
		case returnEOF:
			goto done
		case returnBlockBoundary:
			// fall through to eligibility check below
		default:
			continue
		}

		// internal/flate never reports a boundary at the final block, so
		// every point recorded here is, by construction, not the last.
		if uncmpOffset-lastRecordedUncmp >= spacing {
			store.append(makePoint(eng.lastBits, cmpOffset, uncmpOffset, ringOffset, ring, windowSize))
			pointsCreated++
			lastRecordedUncmp = uncmpOffset
		}

		if cmpOffset >= until && pointsCreated > 0 {
			goto done
		}
	}

done:
	if _, _, _, err := eng.step(flagFreeStream|flagFreeReadbuf|flagClearReadbufOffsets, nil, nil); err != nil {
		return err
	}
	store.shrinkToFit()
	return nil
}

// makePoint extracts the windowSize bytes logically preceding
// ringOffset in ring (a 4*spacing modular scratch buffer), copying two
// linear ranges when the window straddles the wrap point.
func makePoint(bits int, cmpOffset, uncmpOffset int64, ringOffset int, ring []byte, windowSize int64) Point {
	p := Point{CmpOffset: cmpOffset, Bits: bits, UncmpOffset: uncmpOffset}
	if uncmpOffset == 0 {
		return p
	}
	w := int(windowSize)
	window := make([]byte, w)
	if ringOffset >= w {
		copy(window, ring[ringOffset-w:ringOffset])
	} else {
		tailLen := w - ringOffset
		copy(window, ring[len(ring)-tailLen:])
		copy(window[tailLen:], ring[:ringOffset])
	}
	p.Window = window
	return p
}
