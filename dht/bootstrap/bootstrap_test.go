package bootstrap

import (
	"testing"

	"github.com/ozkant/bitswarm/bt"
)

func TestFlipBitTogglesExactBit(t *testing.T) {
	var id bt.Hash20
	flipped := flipBit(id, 0)
	if flipped[0] != 0x80 {
		t.Fatalf("expected high bit set, got %x", flipped[0])
	}
	flipped = flipBit(id, 7)
	if flipped[0] != 0x01 {
		t.Fatalf("expected low bit of byte 0 set, got %x", flipped[0])
	}
}

func TestTrackerRecognizesConfiguredRouters(t *testing.T) {
	tr := NewTracker(bt.Hash20{}, []string{"router1:6881"})
	if !tr.IsRouter("router1:6881") {
		t.Fatal("expected router1:6881 to be recognized as a router")
	}
	if tr.IsRouter("10.0.0.1:6881") {
		t.Fatal("unexpected router classification")
	}
}

func TestAdvanceProducesQueriesAndEventuallyCompletes(t *testing.T) {
	tr := NewTracker(bt.Hash20{}, nil)
	for i := 0; i < 20; i++ {
		tr.DiscoveredNode("10.0.0.1:6881")
	}

	sawQueries := false
	done := false
	for i := 0; i < 1000 && !done; i++ {
		var qs []Query
		qs, done = tr.Advance(8)
		if len(qs) > 0 {
			sawQueries = true
		}
	}
	if !sawQueries {
		t.Fatal("expected at least one round of queries")
	}
	if !done {
		t.Fatal("expected bootstrap to eventually complete")
	}
}

func TestMaxConcurrentPhasesScalesWithDiscoveredNodes(t *testing.T) {
	tr := NewTracker(bt.Hash20{}, nil)
	if got := tr.maxConcurrentPhases(); got != 1 {
		t.Fatalf("expected 1 with no discovered nodes, got %d", got)
	}
	for i := 0; i < 25; i++ {
		tr.DiscoveredNode("10.0.0.1:6881")
	}
	if got := tr.maxConcurrentPhases(); got != 2 {
		t.Fatalf("expected 2 with 25 discovered nodes, got %d", got)
	}
}
