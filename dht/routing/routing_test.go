package routing

import (
	"testing"
	"time"

	"github.com/ozkant/bitswarm/bt"
)

func TestNodeStatusTransitions(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	n := NewNode(bt.Hash20{1}, nil)

	if got := n.Status(base); got != Bad {
		t.Fatalf("never-contacted node should be Bad, got %v", got)
	}

	n.RemoteResponse(base)
	if got := n.Status(base); got != Good {
		t.Fatalf("just-responded node should be Good, got %v", got)
	}

	later := base.Add(20 * time.Minute)
	if got := n.Status(later); got != Questionable {
		t.Fatalf("stale node should be Questionable, got %v", got)
	}

	n.LocalRequest(later)
	n.LocalRequest(later)
	if got := n.Status(later); got != Bad {
		t.Fatalf("node with 2 outstanding refreshes should be Bad, got %v", got)
	}

	n.RemoteResponse(later)
	if got := n.Status(later); got != Good {
		t.Fatalf("response should clear refresh count and restore Good, got %v", got)
	}
}

func TestNodeRemoteRequestDoesNotClearRefreshCount(t *testing.T) {
	base := time.Unix(1_700_000_000, 0)
	n := NewNode(bt.Hash20{1}, nil)
	n.RemoteResponse(base)
	later := base.Add(20 * time.Minute)
	n.LocalRequest(later)
	n.RemoteRequest(later)
	if n.refreshCount != 1 {
		t.Fatalf("expected refreshCount to survive RemoteRequest, got %d", n.refreshCount)
	}
}

func TestBucketInsertReplacesBadSlot(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	b := &Bucket{}
	var residents []*Node
	for i := 0; i < BucketSize; i++ {
		id := bt.Hash20{byte(i)}
		n := NewNode(id, nil)
		n.RemoteResponse(now)
		if !b.Insert(n, now) {
			t.Fatalf("expected insert %d to succeed", i)
		}
		residents = append(residents, n)
	}
	full := bt.Hash20{99}
	if b.Insert(NewNode(full, nil), now) {
		t.Fatal("expected insert into full bucket of non-Bad nodes to fail")
	}

	// A resident that stops answering goes Bad, so its slot can be reused.
	later := now.Add(20 * time.Minute)
	residents[0].LocalRequest(later)
	residents[0].LocalRequest(later)
	fresh := bt.Hash20{200}
	if !b.Insert(NewNode(fresh, nil), later) {
		t.Fatal("expected insert to replace a Bad slot")
	}
}

func TestTableClosestNodesOrdersByXORDistance(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	local := bt.Hash20{}
	tbl := NewTable(local)

	ids := []bt.Hash20{{0x01}, {0x02}, {0xFF}, {0x80}}
	for _, id := range ids {
		n := NewNode(id, nil)
		n.RemoteResponse(now)
		tbl.Insert(n, now)
	}

	target := bt.Hash20{}
	closest := tbl.ClosestNodes(target, 2, now)
	if len(closest) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(closest))
	}
	if closest[0].ID != ids[0] || closest[1].ID != ids[1] {
		t.Fatalf("expected closest-first order, got %v, %v", closest[0].ID, closest[1].ID)
	}
}

func TestTableClosestNodesExcludesBad(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	tbl := NewTable(bt.Hash20{})
	bad := NewNode(bt.Hash20{0x01}, nil) // never responded -> Bad
	tbl.Insert(bad, now)
	good := NewNode(bt.Hash20{0x02}, nil)
	good.RemoteResponse(now)
	tbl.Insert(good, now)

	closest := tbl.ClosestNodes(bt.Hash20{}, 8, now)
	if len(closest) != 1 || closest[0].ID != good.ID {
		t.Fatalf("expected only the Good node, got %v", closest)
	}
}
