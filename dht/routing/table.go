package routing

import (
	"sort"
	"time"

	"github.com/ozkant/bitswarm/bt"
)

// NumBuckets is the maximum number of buckets: one per possible shared
// prefix length of a 160-bit id.
const NumBuckets = 160

// Table is the Kademlia routing table for one local id: bucket i holds
// nodes whose id shares i leading bits with the local id. There is
// exactly one Table per MainlineDht instance.
type Table struct {
	localID bt.Hash20
	buckets [NumBuckets]Bucket
}

// NewTable returns an empty table for localID.
func NewTable(localID bt.Hash20) *Table {
	return &Table{localID: localID}
}

// LocalID returns the id this table is rooted at.
func (t *Table) LocalID() bt.Hash20 { return t.localID }

// bucketIndex returns which bucket id belongs in: the number of leading
// bits id shares with the local id.
func (t *Table) bucketIndex(id bt.Hash20) int {
	if id == t.localID {
		return NumBuckets - 1
	}
	n := bt.PrefixLen(t.localID, id)
	if n >= NumBuckets {
		n = NumBuckets - 1
	}
	return n
}

// Bucket returns the bucket at index i.
func (t *Table) Bucket(i int) *Bucket { return &t.buckets[i] }

// Insert places n into its bucket.
func (t *Table) Insert(n *Node, now time.Time) bool {
	idx := t.bucketIndex(n.ID)
	return t.buckets[idx].Insert(n, now)
}

// ClosestNodes returns the k nodes (among all non-Bad entries) closest in
// XOR distance to target, scanning buckets in increasing distance order.
func (t *Table) ClosestNodes(target bt.Hash20, k int, now time.Time) []*Node {
	var all []*Node
	for i := range t.buckets {
		for _, n := range t.buckets[i].Nodes() {
			if n.Status(now) != Bad {
				all = append(all, n)
			}
		}
	}
	sort.Slice(all, func(i, j int) bool {
		return bt.CompareDistance(all[i].ID, all[j].ID, target) < 0
	})
	if len(all) > k {
		all = all[:k]
	}
	return all
}

// RandomIDInBucket returns a random id that would land in bucket i, used
// by the refresh loop and bootstrap phase targets to pick a lookup target
// within a specific bucket's range.
func (t *Table) RandomIDInBucket(i int, randSource func() bt.Hash20) bt.Hash20 {
	id := randSource()
	// Force the first i bits to match the local id, and bit i to differ,
	// so the result lands precisely in bucket i.
	for bit := 0; bit < i; bit++ {
		setBit(&id, bit, getBit(t.localID, bit))
	}
	if i < NumBuckets {
		setBit(&id, i, 1-getBit(t.localID, i))
	}
	return id
}

func getBit(h bt.Hash20, bit int) byte {
	byteIdx := bit / 8
	bitIdx := uint(bit % 8)
	return (h[byteIdx] >> (7 - bitIdx)) & 1
}

func setBit(h *bt.Hash20, bit int, v byte) {
	byteIdx := bit / 8
	bitIdx := uint(bit % 8)
	mask := byte(1) << (7 - bitIdx)
	if v != 0 {
		h[byteIdx] |= mask
	} else {
		h[byteIdx] &^= mask
	}
}
