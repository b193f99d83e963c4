package dht

import (
	"context"
	"net"
	"time"

	"github.com/ozkant/bitswarm/bt"
	"github.com/ozkant/bitswarm/dht/lookup"
	"github.com/ozkant/bitswarm/dht/routing"
)

// announcePort, when non-zero, is advertised in announce_peer as the
// port the caller is listening for peer connections on.
type lookupOptions struct {
	announcePort int
}

// LookupOption configures FindPeers.
type LookupOption func(*lookupOptions)

// WithAnnounce causes FindPeers to also announce_peer this node as a
// peer for infoHash on port, to every node the lookup converges on, per
//'s "announce to the closest K nodes collected".
func WithAnnounce(port int) LookupOption {
	return func(o *lookupOptions) { o.announcePort = port }
}

// FindPeers runs an iterative get_peers lookup for infoHash and returns
// the peers discovered. If WithAnnounce is given, it also announces this
// node to the converged set of closest nodes using each node's returned
// token.-5.
func (n *Node) FindPeers(ctx context.Context, infoHash bt.InfoHash, opts ...LookupOption) ([]*net.UDPAddr, error) {
	var o lookupOptions
	for _, opt := range opts {
		opt(&o)
	}

	now := time.Now()
	seeds := make([]lookup.Candidate, 0)
	for _, rn := range n.table.ClosestNodes(infoHash, lookup.K, now) {
		seeds = append(seeds, lookup.Candidate{ID: rn.ID, Addr: rn.Addr})
	}

	result := lookup.Run(infoHash, seeds, func(c lookup.Candidate) lookup.Response {
		return n.GetPeers(ctx, c.Addr, infoHash)
	})

	for _, c := range result.Queried {
		n.table.Insert(routing.NewNode(c.ID, c.Addr), time.Now())
	}

	if o.announcePort != 0 {
		for _, c := range result.Queried {
			tok, ok := result.Tokens[c.Addr.String()]
			if !ok {
				continue
			}
			_ = n.AnnouncePeer(ctx, c.Addr, infoHash, o.announcePort, tok)
		}
	}

	return dedupePeers(result.Peers), nil
}

func dedupePeers(peers []*net.UDPAddr) []*net.UDPAddr {
	seen := make(map[string]bool, len(peers))
	out := make([]*net.UDPAddr, 0, len(peers))
	for _, p := range peers {
		key := p.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}
