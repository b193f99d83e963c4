package dht

import (
	"context"
	"net"
	"time"

	"github.com/ozkant/bitswarm/bt"
	"github.com/ozkant/bitswarm/dht/routing"
)

// bootstrapTick is how often the bootstrap driver advances its phase
// state machine and fires off the next round of find_node queries.
const bootstrapTick = 1 * time.Second

// bootstrapParallelRequests is how many find_node queries one phase
// issues per tick.
const bootstrapParallelRequests = 8

// Bootstrap drives the node through its initial bootstrap sequence:
// querying the configured routers, then fanning out bit-flip lookups
// until every bucket has been seeded or ctx is cancelled. It returns once
// bootstrap.Tracker reports completion.
func (n *Node) Bootstrap(ctx context.Context) error {
	for _, addr := range n.boot.RouterAddrs() {
		udpAddr, err := net.ResolveUDPAddr("udp", addr)
		if err != nil {
			continue
		}
		id, err := n.Ping(ctx, udpAddr)
		if err != nil {
			continue
		}
		n.boot.DiscoveredNode(addr)
		now := time.Now()
		node := routing.NewNode(id, udpAddr)
		node.RemoteResponse(now)
		n.table.Insert(node, now)
	}

	ticker := time.NewTicker(bootstrapTick)
	defer ticker.Stop()

	for {
		queries, done := n.boot.Advance(bootstrapParallelRequests)
		if done {
			return nil
		}
		for _, q := range queries {
			udpAddr, err := net.ResolveUDPAddr("udp", q.Addr)
			if err != nil {
				continue
			}
			go n.bootstrapQuery(ctx, udpAddr, q.TargetID)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (n *Node) bootstrapQuery(ctx context.Context, addr *net.UDPAddr, target bt.Hash20) {
	nodes, err := n.FindNode(ctx, addr, target)
	if err != nil {
		return
	}
	now := time.Now()
	for _, cn := range nodes {
		if cn.ID == n.localID {
			continue
		}
		n.table.Insert(routing.NewNode(cn.ID, cn.Addr), now)
		n.boot.DiscoveredNode(cn.Addr.String())
	}
}
