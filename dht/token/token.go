// Package token implements the DHT's get_peers/announce_peer token
// scheme: SHA1(source_ip || secret) over a pair of lazily-rotating 32-bit
// secrets. Ported from
// original_source/bip_dht/src/token.rs, which this package follows
// closely (including its "don't store issued tokens, just remember the
// two secrets" design) but using the standard library's math/rand and
// time.Time instead of chrono, since no pack dependency covers either
// concern more idiomatically in Go.
package token

import (
	"crypto/sha1"
	"encoding/binary"
	"math/rand"
	"net"
	"time"
)

// RefreshInterval is how often the secret nominally rotates; a token
// therefore remains valid for somewhere between one and two intervals
// since it is checked against both the current and previous secret.
const RefreshInterval = 10 * time.Minute

// Token is an opaque 20-byte value handed to a peer by checkout and
// presented back by checkin.
type Token [sha1.Size]byte

// Store issues and validates tokens for get_peers/announce_peer.
type Store struct {
	currSecret  uint32
	lastSecret  uint32
	lastRefresh time.Time
	now         func() time.Time
	rnd         func() uint32
}

// New returns a Store with freshly randomized secrets.
func New() *Store {
	s := &Store{now: time.Now, rnd: rand.Uint32}
	s.currSecret = s.rnd()
	s.lastSecret = s.rnd()
	s.lastRefresh = s.now()
	return s
}

// Checkout issues a token for addr, rotating secrets first if the refresh
// interval has elapsed.
func (s *Store) Checkout(addr net.IP) Token {
	s.refreshCheck()
	return generate(addr, s.currSecret)
}

// Checkin validates a token against the current or previous secret,
// rotating secrets first if due.
func (s *Store) Checkin(addr net.IP, t Token) bool {
	s.refreshCheck()
	return generate(addr, s.currSecret) == t || generate(addr, s.lastSecret) == t
}

func (s *Store) refreshCheck() {
	switch intervalsPassed(s.lastRefresh, s.now()) {
	case 0:
	case 1:
		s.lastSecret = s.currSecret
		s.currSecret = s.rnd()
		s.lastRefresh = s.now()
	default:
		s.lastSecret = s.rnd()
		s.currSecret = s.rnd()
		s.lastRefresh = s.now()
	}
}

func intervalsPassed(lastRefresh, now time.Time) int64 {
	return int64(now.Sub(lastRefresh) / RefreshInterval)
}

func generate(addr net.IP, secret uint32) Token {
	var buf []byte
	if ip4 := addr.To4(); ip4 != nil {
		buf = make([]byte, 0, 4+4)
		buf = append(buf, ip4...)
	} else {
		buf = make([]byte, 0, 16+4)
		buf = append(buf, addr.To16()...)
	}
	var secretBytes [4]byte
	binary.BigEndian.PutUint32(secretBytes[:], secret)
	buf = append(buf, secretBytes[:]...)
	return sha1.Sum(buf)
}
