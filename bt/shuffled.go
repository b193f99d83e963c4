package bt

import "math/rand"

// blockSize is the number of ids drawn and shuffled together before being
// handed out, matching the original Rust implementation's block width.
const blockSize = 2048

// Unsigned is the set of integer types LocallyShuffledIDs can generate.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// LocallyShuffledIDs produces a randomized, non-repeating sequence of ids,
// drawn in blocks of blockSize sequential numbers shuffled with
// Fisher-Yates before being handed out one at a time. This guarantees no
// duplicates within any window narrower than the id space, while remaining
// unpredictable at short range -- exactly the property the DHT needs for
// KRPC transaction ids.
//
// For types whose value range is smaller than blockSize (e.g. uint8 has
// only 256 distinct values) a block is oversubscribed: values repeat within
// the block, but each value appears at most ceil(blockSize/|T|) times.
type LocallyShuffledIDs[T Unsigned] struct {
	rng   *rand.Rand
	block []T
	next  int
	// base is added modulo the type's range to the next raw counter value
	// before a new block is drawn, so consecutive blocks keep counting up
	// rather than repeating the same numbers forever.
	base T
}

// NewLocallyShuffledIDs creates a generator seeded from seed (callers pass a
// value derived from crypto/rand at startup to avoid cross-process
// correlation).
func NewLocallyShuffledIDs[T Unsigned](seed int64) *LocallyShuffledIDs[T] {
	g := &LocallyShuffledIDs[T]{
		rng: rand.New(rand.NewSource(seed)),
	}
	g.fillBlock()
	return g
}

func (g *LocallyShuffledIDs[T]) fillBlock() {
	g.block = make([]T, blockSize)
	for i := range g.block {
		g.block[i] = g.base + T(i)
	}
	g.base += T(len(g.block))
	// Fisher-Yates shuffle.
	for i := len(g.block) - 1; i > 0; i-- {
		j := g.rng.Intn(i + 1)
		g.block[i], g.block[j] = g.block[j], g.block[i]
	}
	g.next = 0
}

// Generate returns the next id in the current shuffled block, drawing a new
// block when the current one is exhausted.
func (g *LocallyShuffledIDs[T]) Generate() T {
	if g.next >= len(g.block) {
		g.fillBlock()
	}
	v := g.block[g.next]
	g.next++
	return v
}
