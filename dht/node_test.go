package dht

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/ozkant/bitswarm/bt"
)

func newTestNode(t *testing.T) *Node {
	t.Helper()
	n, err := New(Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { n.Close() })
	go n.Serve(context.Background())
	return n
}

// loopbackAddr returns n's bound port reachable via 127.0.0.1, since
// New binds to all interfaces (the right behavior for a real node) and
// Addr's IP may come back unspecified.
func loopbackAddr(n *Node) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: n.Addr().Port}
}

func TestPingRoundTripBetweenTwoNodes(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	id, err := a.Ping(ctx, loopbackAddr(b))
	if err != nil {
		t.Fatalf("Ping: %v", err)
	}
	if id != b.LocalID() {
		t.Fatalf("expected id %x, got %x", b.LocalID(), id)
	}
}

func TestFindNodeReturnsKnownNode(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)
	c := newTestNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// Seed b's routing table with c so b has something to return.
	if _, err := b.Ping(ctx, loopbackAddr(c)); err != nil {
		t.Fatalf("seeding ping: %v", err)
	}

	nodes, err := a.FindNode(ctx, loopbackAddr(b), c.LocalID())
	if err != nil {
		t.Fatalf("FindNode: %v", err)
	}
	var found bool
	for _, n := range nodes {
		if n.ID == c.LocalID() {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected c's id among b's returned nodes, got %v", nodes)
	}
}

// TestGetPeersAnnounceRoundTrip checks that a token issued by
// a get_peers reply must validate on a subsequent announce_peer from the
// same address.
func TestGetPeersAnnounceRoundTrip(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var infoHash bt.InfoHash
	infoHash[0] = 0x42

	resp := a.GetPeers(ctx, loopbackAddr(b), infoHash)
	if resp.Failed {
		t.Fatal("expected get_peers to succeed")
	}
	if resp.Token == "" {
		t.Fatal("expected a token")
	}

	if err := a.AnnouncePeer(ctx, loopbackAddr(b), infoHash, 6881, resp.Token); err != nil {
		t.Fatalf("AnnouncePeer: %v", err)
	}

	peers := b.announces.Find(infoHash)
	if len(peers) != 1 {
		t.Fatalf("expected one announced peer, got %d", len(peers))
	}
}

func TestFindPeersDiscoversAnnouncedPeer(t *testing.T) {
	a := newTestNode(t)
	b := newTestNode(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var infoHash bt.InfoHash
	infoHash[0] = 0x7

	if _, err := a.Ping(ctx, loopbackAddr(b)); err != nil {
		t.Fatalf("seeding ping: %v", err)
	}
	resp := a.GetPeers(ctx, loopbackAddr(b), infoHash)
	if err := a.AnnouncePeer(ctx, loopbackAddr(b), infoHash, 6882, resp.Token); err != nil {
		t.Fatalf("AnnouncePeer: %v", err)
	}

	peers, err := a.FindPeers(ctx, infoHash)
	if err != nil {
		t.Fatalf("FindPeers: %v", err)
	}
	if len(peers) != 1 || peers[0].Port != 6882 {
		t.Fatalf("expected the announced peer back, got %v", peers)
	}
}
