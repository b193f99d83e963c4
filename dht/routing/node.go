// Package routing implements the Kademlia routing table: buckets of
// candidate nodes ordered by XOR distance from the local id, and the
// derived Good/Questionable/Bad status model.
// Grounded on original_source/bip_dht/src/routing/{node.rs,bucket.rs,table.rs}.
package routing

import (
	"net"
	"sync"
	"time"

	"github.com/ozkant/bitswarm/bt"
)

// Status is a node's derived liveness classification. Never stored
// directly — always recomputed from timestamps against "now".
type Status int

const (
	Good Status = iota
	Questionable
	Bad
)

// goodWindow is the recency window within which a node counts as Good.
const goodWindow = 15 * time.Minute

// maxRefreshRequests is the number of outstanding unanswered refresh
// requests a node tolerates before becoming Bad.
const maxRefreshRequests = 2

// Node is one entry in the routing table. A *Node is shared between the
// bucket that holds it and any goroutine that looked it up (a refresh
// cycle, a concurrent lookup, an incoming query); mu guards the fields
// below against that concurrent access.
type Node struct {
	ID   bt.Hash20
	Addr *net.UDPAddr

	mu            sync.Mutex
	lastResponse  time.Time
	lastRequest   time.Time
	everResponded bool
	refreshCount  int
}

// NewNode creates a fresh, never-contacted node.
func NewNode(id bt.Hash20, addr *net.UDPAddr) *Node {
	return &Node{ID: id, Addr: addr}
}

// Status derives this node's liveness as of now.
func (n *Node) Status(now time.Time) Status {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.statusLocked(now)
}

func (n *Node) statusLocked(now time.Time) Status {
	if !n.everResponded {
		return Bad
	}
	if now.Sub(n.lastResponse) < goodWindow || now.Sub(n.lastRequest) < goodWindow {
		return Good
	}
	if n.refreshCount < maxRefreshRequests {
		return Questionable
	}
	return Bad
}

// LocalRequest records that the local node sent this node a request (a
// refresh ping), incrementing the refresh counter only when the node is
// not currently Good.
func (n *Node) LocalRequest(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.statusLocked(now) != Good {
		n.refreshCount++
	}
}

// RemoteResponse records a response from this node: clears the refresh
// counter and stamps the response time.
func (n *Node) RemoteResponse(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.everResponded = true
	n.refreshCount = 0
	n.lastResponse = now
}

// RemoteRequest records an incoming request from this node, stamping the
// request time without touching the refresh counter.
func (n *Node) RemoteRequest(now time.Time) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lastRequest = now
}
