// Package announce implements the DHT's announce store: FIFO-ordered,
// 24h-expiring, globally-capped storage of (info_hash, peer) contacts.
// Ported from original_source/bip_dht/src/storage.rs
// (AnnounceStorage), keeping its expiration-queue-plus-map shape.
package announce

import (
	"net"
	"time"

	"github.com/ozkant/bitswarm/bt"
)

// MaxItemsStored is the global cap across all info hashes.
const MaxItemsStored = 500

// ExpirationTime is how long an entry survives without being renewed.
const ExpirationTime = 24 * time.Hour

type contact struct {
	infoHash bt.InfoHash
	addr     string // net.UDPAddr.String(), used as a map/equality key
	udpAddr  *net.UDPAddr
	inserted time.Time
}

// Store holds announced peer contacts.
type Store struct {
	byHash  map[bt.InfoHash][]*contact
	expires []*contact // FIFO insertion order
	now     func() time.Time
}

// New returns an empty Store.
func New() *Store {
	return &Store{byHash: make(map[bt.InfoHash][]*contact), now: time.Now}
}

// Add records that addr announced for infoHash, renewing its position if
// already present. Returns false if the store is full and this is not a
// renewal.
func (s *Store) Add(infoHash bt.InfoHash, addr *net.UDPAddr) bool {
	now := s.now()
	s.removeExpired(now)

	key := addr.String()
	existing := s.findContact(infoHash, key)
	if existing != nil {
		s.removeFromExpires(existing)
		existing.inserted = now
		s.expires = append(s.expires, existing)
		return true
	}

	if len(s.expires) >= MaxItemsStored {
		return false
	}

	c := &contact{infoHash: infoHash, addr: key, udpAddr: addr, inserted: now}
	s.byHash[infoHash] = append(s.byHash[infoHash], c)
	s.expires = append(s.expires, c)
	return true
}

// Find returns every non-expired peer address announced for infoHash.
func (s *Store) Find(infoHash bt.InfoHash) []*net.UDPAddr {
	s.removeExpired(s.now())
	contacts := s.byHash[infoHash]
	out := make([]*net.UDPAddr, len(contacts))
	for i, c := range contacts {
		out[i] = c.udpAddr
	}
	return out
}

func (s *Store) findContact(infoHash bt.InfoHash, key string) *contact {
	for _, c := range s.byHash[infoHash] {
		if c.addr == key {
			return c
		}
	}
	return nil
}

func (s *Store) removeFromExpires(target *contact) {
	for i, c := range s.expires {
		if c == target {
			s.expires = append(s.expires[:i], s.expires[i+1:]...)
			return
		}
	}
}

// removeExpired drains entries older than ExpirationTime from the head of
// the FIFO queue.
func (s *Store) removeExpired(now time.Time) {
	i := 0
	for i < len(s.expires) && now.Sub(s.expires[i].inserted) >= ExpirationTime {
		i++
	}
	if i == 0 {
		return
	}
	for _, c := range s.expires[:i] {
		s.removeFromHash(c)
	}
	s.expires = s.expires[i:]
}

func (s *Store) removeFromHash(target *contact) {
	list := s.byHash[target.infoHash]
	for i, c := range list {
		if c == target {
			list = append(list[:i], list[i+1:]...)
			break
		}
	}
	if len(list) == 0 {
		delete(s.byHash, target.infoHash)
	} else {
		s.byHash[target.infoHash] = list
	}
}
