package routing

import (
	"sync"
	"time"
)

// BucketSize is the maximum number of nodes a single bucket holds.
const BucketSize = 8

// Bucket holds up to BucketSize nodes sharing a common prefix length with
// the local id. A bucket is reached through its owning Table from the
// reader goroutine, the refresh loop, and concurrent lookups alike, so mu
// guards nodes and lastChanged against all of them.
type Bucket struct {
	mu          sync.Mutex
	nodes       []*Node
	lastChanged time.Time
}

// Nodes returns a snapshot of the bucket's current entries.
func (b *Bucket) Nodes() []*Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*Node, len(b.nodes))
	copy(out, b.nodes)
	return out
}

// Insert adds n to the bucket if there is room, or replaces the first Bad
// slot. If the bucket is full of non-Bad nodes, the insertion is dropped
// (eviction is passive.).
func (b *Bucket) Insert(n *Node, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, existing := range b.nodes {
		if existing.ID == n.ID {
			return false
		}
	}
	if len(b.nodes) < BucketSize {
		b.nodes = append(b.nodes, n)
		b.lastChanged = now
		return true
	}
	for i, existing := range b.nodes {
		if existing.Status(now) == Bad {
			b.nodes[i] = n
			b.lastChanged = now
			return true
		}
	}
	return false
}

// TriggerRefresh stamps last_changed = now.
func (b *Bucket) TriggerRefresh(now time.Time) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastChanged = now
}

// LastChanged returns the last time TriggerRefresh (or an Insert) touched
// this bucket.
func (b *Bucket) LastChanged() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastChanged
}

// QuestionableNodes returns the bucket's nodes currently classified as
// Questionable, used by the refresh loop to pick a ping target.
func (b *Bucket) QuestionableNodes(now time.Time) []*Node {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []*Node
	for _, n := range b.nodes {
		if n.Status(now) == Questionable {
			out = append(out, n)
		}
	}
	return out
}
