// Package bootstrap tracks the DHT's bootstrap phase progression: a
// sequence of lookups toward the local id with one bit flipped at a
// configurable stride, scaling how many phases run concurrently with how
// many nodes have been discovered so far. Ported from
// original_source/bip_dht/src/worker/bootstrap.rs's TableBootstrap /
// BucketBootstrap split, decoupled here from the network send so the
// phase state machine is independently testable.
package bootstrap

import "github.com/ozkant/bitswarm/bt"

const (
	// BucketSkip is the number of bucket indices skipped between
	// successive bootstrap phases: each phase targets the bit
	// BucketSkip+1 past the previous one.
	BucketSkip = 5
	// PingsPerPhase is how many find_node requests one phase sends before
	// it is considered done.
	PingsPerPhase = 8
	// NodesPerConcurrency scales how many phases run in parallel with how
	// many nodes have been discovered.
	NodesPerConcurrency = 10
	// NumBuckets bounds the phase index the same way the routing table is
	// bounded.
	NumBuckets = 160
)

// Phase tracks one in-flight bootstrap lookup targeting TargetID.
type Phase struct {
	TargetID   bt.Hash20
	nextIndex  int
	pingsSent  int
}

// Done reports whether this phase has sent its full quota of pings.
func (p *Phase) Done() bool { return p.pingsSent >= PingsPerPhase }

// NextTargets returns up to PingsPerPhase addresses (cycling through
// discovered, round-robin) to ping next for this phase.
func (p *Phase) NextTargets(discovered []string, parallelRequests int) []string {
	if p.Done() || len(discovered) == 0 {
		return nil
	}
	var out []string
	for i := 0; i < parallelRequests && !p.Done(); i++ {
		idx := p.nextIndex % len(discovered)
		out = append(out, discovered[idx])
		p.nextIndex++
		p.pingsSent++
	}
	return out
}

// Tracker drives the overall bootstrap: which phases are active, and when
// a new one can start.
type Tracker struct {
	localID           bt.Hash20
	active            []*Phase
	discoveredNodes    []string // addr strings
	discoveredRouters  map[string]bool
	nextBucketIndex   int
	nextNodeIndex     int
	completed         bool
}

// NewTracker returns a bootstrap tracker for localID, given the configured
// bootstrap router addresses.
func NewTracker(localID bt.Hash20, routers []string) *Tracker {
	set := make(map[string]bool, len(routers))
	for _, r := range routers {
		set[r] = true
	}
	return &Tracker{localID: localID, discoveredRouters: set}
}

// IsRouter reports whether addr, as a string, is one of the configured
// bootstrap routers. The tracker only records the addresses; it does not
// keep routers out of the routing table.
func (t *Tracker) IsRouter(addr string) bool { return t.discoveredRouters[addr] }

// RouterAddrs returns the configured bootstrap router addresses, for the
// initial round of pings before phase-based discovery starts.
func (t *Tracker) RouterAddrs() []string {
	out := make([]string, 0, len(t.discoveredRouters))
	for addr := range t.discoveredRouters {
		out = append(out, addr)
	}
	return out
}

// DiscoveredNode records a node address the bootstrap has learned about,
// for use as a ping target in subsequent phases.
func (t *Tracker) DiscoveredNode(addr string) {
	t.discoveredNodes = append(t.discoveredNodes, addr)
}

// maxConcurrentPhases scales with how many nodes have been discovered so
// far  "max(1, |discovered| / 10)".
func (t *Tracker) maxConcurrentPhases() int {
	n := len(t.discoveredNodes) / NodesPerConcurrency
	if n < 1 {
		n = 1
	}
	return n
}

// Advance retires finished phases, starts new ones if capacity allows,
// and returns the set of (targetID, addr) pairs to query this tick. It
// reports done=true once every phase has been started and finished.
func (t *Tracker) Advance(parallelRequests int) (queries []Query, done bool) {
	alive := t.active[:0]
	for _, p := range t.active {
		if !p.Done() {
			alive = append(alive, p)
		}
	}
	t.active = alive

	for len(t.active) < t.maxConcurrentPhases() && t.nextBucketIndex < NumBuckets {
		target := flipBit(t.localID, t.nextBucketIndex)
		p := &Phase{TargetID: target, nextIndex: t.nextNodeIndex}
		t.active = append(t.active, p)
		t.nextNodeIndex += PingsPerPhase
		t.nextBucketIndex += BucketSkip + 1
	}

	if t.nextBucketIndex >= NumBuckets && len(t.active) == 0 {
		t.completed = true
		return nil, true
	}

	for _, p := range t.active {
		for _, addr := range p.NextTargets(t.discoveredNodes, parallelRequests) {
			queries = append(queries, Query{TargetID: p.TargetID, Addr: addr})
		}
	}
	return queries, false
}

// Query is one find_node request the caller should send.
type Query struct {
	TargetID bt.Hash20
	Addr     string
}

func flipBit(id bt.Hash20, bitIndex int) bt.Hash20 {
	out := id
	byteIdx := bitIndex / 8
	bitInByte := uint(bitIndex % 8)
	out[byteIdx] ^= 1 << (7 - bitInByte)
	return out
}
