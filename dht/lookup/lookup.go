// Package lookup implements the DHT's iterative get_peers lookup: an
// alpha-width frontier ordered by XOR distance that converges once the
// closest K nodes have all been queried without revealing anyone closer.
// Grounded on the worker/lookup dispatch semantics described in
// original_source/bip_dht/src/worker/{workers.rs,bootstrap.rs} (the
// crate's own lookup.rs was not part of this retrieval, so the
// frontier/queried-set bookkeeping below follows that description
// directly, cross-checked against the routing table's own closest_nodes
// ordering in dht/routing/table.go).
package lookup

import (
	"net"
	"sort"

	"github.com/ozkant/bitswarm/bt"
)

// Alpha is the default frontier width.
const Alpha = 3

// K is the default convergence width (closest K nodes fully queried).
const K = 8

// Candidate is one node in the lookup frontier.
type Candidate struct {
	ID      bt.Hash20
	Addr    *net.UDPAddr
	queried bool
}

// Response is what a single get_peers round-trip to one candidate
// yields.
type Response struct {
	Token  string
	Values []*net.UDPAddr
	Nodes  []Candidate
	Failed bool
}

// QueryFunc issues a get_peers query to c and blocks for its response (or
// a failure/timeout, reported via Response.Failed).
type QueryFunc func(c Candidate) Response

// Result is the outcome of a completed lookup.
type Result struct {
	Peers      []*net.UDPAddr
	// Tokens maps each responder's address string to the token it
	// returned, for a subsequent announce_peer.
	Tokens map[string]string
	// Queried is the final set of candidates the lookup considered,
	// closest-first, for the caller to route announce_peer to the
	// converged-closest nodes.
	Queried []Candidate
}

// Run drives the iterative lookup to completion against target, starting
// from the given seed candidates (normally the routing table's current
// closest_nodes(target)).
func Run(target bt.Hash20, seeds []Candidate, query QueryFunc) Result {
	frontier := append([]Candidate{}, seeds...)
	sortByDistance(frontier, target)

	tokens := make(map[string]string)
	var peers []*net.UDPAddr
	seen := make(map[bt.Hash20]bool)
	for _, c := range frontier {
		seen[c.ID] = true
	}

	for {
		batch := nextUnqueried(frontier, Alpha)
		if len(batch) == 0 {
			break
		}

		closestBefore := closestKIDs(frontier, target, K)

		for i := range batch {
			idx := batch[i]
			frontier[idx].queried = true
			resp := query(frontier[idx])
			if resp.Failed {
				continue
			}
			if resp.Token != "" {
				tokens[frontier[idx].Addr.String()] = resp.Token
			}
			peers = append(peers, resp.Values...)
			for _, n := range resp.Nodes {
				if !seen[n.ID] {
					seen[n.ID] = true
					frontier = append(frontier, n)
				}
			}
		}
		sortByDistance(frontier, target)

		closestAfter := closestKIDs(frontier, target, K)
		if allQueried(frontier, K) && sameIDs(closestBefore, closestAfter) {
			break
		}
	}

	if len(frontier) > K {
		frontier = frontier[:K]
	}
	return Result{Peers: peers, Tokens: tokens, Queried: frontier}
}

func nextUnqueried(frontier []Candidate, n int) []int {
	var out []int
	for i := range frontier {
		if !frontier[i].queried {
			out = append(out, i)
			if len(out) == n {
				break
			}
		}
	}
	return out
}

func allQueried(frontier []Candidate, k int) bool {
	if len(frontier) > k {
		frontier = frontier[:k]
	}
	for _, c := range frontier {
		if !c.queried {
			return false
		}
	}
	return true
}

func sortByDistance(frontier []Candidate, target bt.Hash20) {
	sort.Slice(frontier, func(i, j int) bool {
		return bt.CompareDistance(frontier[i].ID, frontier[j].ID, target) < 0
	})
}

func closestKIDs(frontier []Candidate, target bt.Hash20, k int) []bt.Hash20 {
	if len(frontier) > k {
		frontier = frontier[:k]
	}
	out := make([]bt.Hash20, len(frontier))
	for i, c := range frontier {
		out[i] = c.ID
	}
	return out
}

func sameIDs(a, b []bt.Hash20) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
