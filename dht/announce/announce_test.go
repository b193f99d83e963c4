package announce

import (
	"net"
	"testing"
	"time"

	"github.com/ozkant/bitswarm/bt"
)

func dummyAddr(n int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.IPv4(10, 0, byte(n>>8), byte(n)), Port: 6881}
}

// TestAnnounceRenewal fills the store to capacity,
// a fresh insert is rejected, then after 24h it succeeds and find_items
// yields exactly one address.
func TestAnnounceRenewal(t *testing.T) {
	cur := time.Unix(1_700_000_000, 0)
	s := &Store{byHash: make(map[bt.InfoHash][]*contact), now: func() time.Time { return cur }}

	var h bt.InfoHash
	h[0] = 1
	for i := 0; i < MaxItemsStored; i++ {
		if !s.Add(h, dummyAddr(i)) {
			t.Fatalf("expected insert %d to succeed", i)
		}
	}

	var h2 bt.InfoHash
	h2[0] = 2
	newAddr := dummyAddr(9999)
	if s.Add(h2, newAddr) {
		t.Fatal("expected insert into full store to be rejected")
	}

	cur = cur.Add(ExpirationTime + time.Second)
	if !s.Add(h2, newAddr) {
		t.Fatal("expected insert to succeed after 24h expiration")
	}

	found := s.Find(h2)
	if len(found) != 1 || found[0].String() != newAddr.String() {
		t.Fatalf("expected exactly one address for h2, got %v", found)
	}
}

func TestAddRenewsExistingEntry(t *testing.T) {
	cur := time.Unix(1_700_000_000, 0)
	s := &Store{byHash: make(map[bt.InfoHash][]*contact), now: func() time.Time { return cur }}
	var h bt.InfoHash
	addr := dummyAddr(1)

	if !s.Add(h, addr) {
		t.Fatal("expected first add to succeed")
	}
	cur = cur.Add(1 * time.Hour)
	if !s.Add(h, addr) {
		t.Fatal("expected renewal add to succeed")
	}
	if len(s.expires) != 1 {
		t.Fatalf("expected renewal not to duplicate the entry, got %d", len(s.expires))
	}
}

func TestFindReturnsEmptyForUnknownHash(t *testing.T) {
	s := New()
	var h bt.InfoHash
	if got := s.Find(h); len(got) != 0 {
		t.Fatalf("expected no results, got %v", got)
	}
}
