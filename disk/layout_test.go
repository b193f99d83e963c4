package disk

import (
	"testing"

	"github.com/ozkant/bitswarm/metainfo"
)

func TestBuildLayoutAndSplitRange(t *testing.T) {
	info := metainfo.Info{
		Files: []metainfo.File{
			{Path: []string{"a.bin"}, Length: 1023},
			{Path: []string{"b.bin"}, Length: 2000},
		},
	}
	spans := buildLayout(info)
	if spans[0].start != 0 || spans[0].end != 1023 {
		t.Fatalf("span 0 = %+v", spans[0])
	}
	if spans[1].start != 1023 || spans[1].end != 3023 {
		t.Fatalf("span 1 = %+v", spans[1])
	}

	segs := splitRange(spans, 1000, 1050)
	if len(segs) != 2 {
		t.Fatalf("expected 2 segments, got %d: %+v", len(segs), segs)
	}
	if segs[0].span.path != "a.bin" || segs[0].fileOffset != 1000 || segs[0].length != 23 {
		t.Fatalf("seg0 = %+v", segs[0])
	}
	if segs[1].span.path != "b.bin" || segs[1].fileOffset != 0 || segs[1].length != 27 {
		t.Fatalf("seg1 = %+v", segs[1])
	}
}

func TestPieceCoverageTracksPartialWrites(t *testing.T) {
	c := newPieceCoverage(1024)
	if c.markWritten(0, 300) {
		t.Fatal("should not be complete yet")
	}
	if c.markWritten(300, 300) {
		t.Fatal("should not be complete yet")
	}
	if !c.markWritten(600, 424) {
		t.Fatal("expected piece complete after covering all 1024 bytes")
	}
}

func TestPieceCoverageResetAfterBadPiece(t *testing.T) {
	c := newPieceCoverage(100)
	c.markWritten(0, 100)
	c.reset()
	if c.coveredLength() != 0 {
		t.Fatalf("expected zero coverage after reset, got %d", c.coveredLength())
	}
}

func TestPieceCoverageHandlesOverlap(t *testing.T) {
	c := newPieceCoverage(100)
	c.markWritten(0, 60)
	if c.markWritten(30, 20) {
		t.Fatal("overlapping write should not yet complete the piece")
	}
	if c.coveredLength() != 60 {
		t.Fatalf("expected merged coverage of 60, got %d", c.coveredLength())
	}
	if !c.markWritten(60, 40) {
		t.Fatal("expected completion")
	}
}
