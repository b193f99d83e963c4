package disk

// pieceCoverage tracks, for one piece, which byte ranges have been
// written so far, as a sorted/merged interval set rather than a per-byte
// bitmap. A bad piece calls reset, so a subsequent full rewrite
// re-triggers verification.
type pieceCoverage struct {
	length    int64
	intervals [][2]int64
}

func newPieceCoverage(length int64) *pieceCoverage {
	return &pieceCoverage{length: length}
}

// markWritten records that [offset, offset+n) within the piece has been
// written, and reports whether the piece is now fully covered.
func (c *pieceCoverage) markWritten(offset, n int64) bool {
	c.add(offset, offset+n)
	return c.coveredLength() >= c.length
}

func (c *pieceCoverage) reset() {
	c.intervals = c.intervals[:0]
}

func (c *pieceCoverage) add(start, end int64) {
	if start >= end {
		return
	}
	merged := make([][2]int64, 0, len(c.intervals)+1)
	inserted := false
	for _, iv := range c.intervals {
		if iv[1] < start {
			merged = append(merged, iv)
			continue
		}
		if iv[0] > end {
			if !inserted {
				merged = append(merged, [2]int64{start, end})
				inserted = true
			}
			merged = append(merged, iv)
			continue
		}
		if iv[0] < start {
			start = iv[0]
		}
		if iv[1] > end {
			end = iv[1]
		}
	}
	if !inserted {
		merged = append(merged, [2]int64{start, end})
	}
	c.intervals = merged
}

func (c *pieceCoverage) coveredLength() int64 {
	var total int64
	for _, iv := range c.intervals {
		total += iv[1] - iv[0]
	}
	return total
}
