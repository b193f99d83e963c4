package dht

import (
	"context"
	"math/rand"
	"time"

	"github.com/ozkant/bitswarm/bt"
	"github.com/ozkant/bitswarm/dht/routing"
)

// refreshInterval is how often one bucket gets its turn in the
// round-robin refresh schedule.
const refreshInterval = 6 * time.Second

// RefreshLoop drives the routing table's periodic bucket refresh: every
// refreshInterval it advances to the next bucket in round-robin order,
// pings a Questionable node in it with find_node toward a random id in
// that bucket's range, and stamps the bucket's refresh timer regardless
// of whether a candidate was available. It runs until
// ctx is cancelled.
func (n *Node) RefreshLoop(ctx context.Context) {
	ticker := time.NewTicker(refreshInterval)
	defer ticker.Stop()

	next := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			next = n.refreshOne(ctx, next)
		}
	}
}

func (n *Node) refreshOne(ctx context.Context, bucketIdx int) (nextIdx int) {
	now := time.Now()
	b := n.table.Bucket(bucketIdx)

	candidates := b.QuestionableNodes(now)
	if len(candidates) > 0 {
		target := n.table.RandomIDInBucket(bucketIdx, randomHash20)
		pick := candidates[rand.Intn(len(candidates))]
		pick.LocalRequest(now)
		n.refreshPing(ctx, pick, target)
	}
	b.TriggerRefresh(now)

	return (bucketIdx + 1) % routing.NumBuckets
}

func (n *Node) refreshPing(ctx context.Context, target *routing.Node, findTarget bt.Hash20) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	nodes, err := n.FindNode(ctx, target.Addr, findTarget)
	now := time.Now()
	if err != nil {
		return
	}
	target.RemoteResponse(now)
	n.table.Insert(target, now)
	for _, cn := range nodes {
		if cn.ID == n.localID {
			continue
		}
		n.table.Insert(routing.NewNode(cn.ID, cn.Addr), now)
	}
}

func randomHash20() bt.Hash20 {
	var h bt.Hash20
	for i := range h {
		h[i] = byte(rand.Intn(256))
	}
	return h
}
