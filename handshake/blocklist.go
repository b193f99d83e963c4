package handshake

import (
	"net"
	"sync"

	"github.com/ozkant/bitswarm/bt"
)

// Blocklist is a concrete Filter that rejects connections from a configured
// set of IP addresses, grounded on the teacher's internal/blocklist used at
// the incoming-connection gate in session/run.go ("t.blocklist.Blocked(ip)").
// It only has an opinion on DecideAddress; every other query passes.
type Blocklist struct {
	mu      sync.RWMutex
	blocked map[string]struct{}
}

// NewBlocklist returns an empty blocklist.
func NewBlocklist() *Blocklist {
	return &Blocklist{blocked: make(map[string]struct{})}
}

// Add blocks ip.
func (b *Blocklist) Add(ip net.IP) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.blocked[ip.String()] = struct{}{}
}

// Remove unblocks ip.
func (b *Blocklist) Remove(ip net.IP) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.blocked, ip.String())
}

// Blocked reports whether ip is currently blocked.
func (b *Blocklist) Blocked(ip net.IP) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.blocked[ip.String()]
	return ok
}

func (b *Blocklist) DecideAddress(addr *net.TCPAddr) Decision {
	if addr == nil {
		return NeedData
	}
	if b.Blocked(addr.IP) {
		return Block
	}
	return Pass
}

func (b *Blocklist) DecideProtocol(*Protocol) Decision     { return Pass }
func (b *Blocklist) DecideExtensions(*Extensions) Decision { return Pass }
func (b *Blocklist) DecideInfoHash(*bt.Hash20) Decision    { return Pass }
func (b *Blocklist) DecidePeerID(*bt.Hash20) Decision      { return Pass }
