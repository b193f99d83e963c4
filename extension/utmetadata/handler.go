package utmetadata

import (
	"errors"
	"sync"
)

// ErrRejected is an error for Fetcher.Fail when every peer rejected our
// requests before the metadata could be completed; Assembled then returns
// it.
var ErrRejected = errors.New("utmetadata: request rejected by peer")

// Fetcher accumulates metadata pieces from one peer, mirroring the
// teacher's infodownloader block bookkeeping (createBlocks / GotBlock /
// Done) but addressed in whole PieceSize units instead of 16 KiB request
// blocks, since ut_metadata already frames at that granularity.
type Fetcher struct {
	mu        sync.Mutex
	totalSize int
	pieces    [][]byte
	have      []bool
	remaining int
	done      chan struct{}
	err       error
}

// NewFetcher prepares a Fetcher for a metadata blob of totalSize bytes.
func NewFetcher(totalSize int) *Fetcher {
	n := NumPieces(totalSize)
	return &Fetcher{
		totalSize: totalSize,
		pieces:    make([][]byte, n),
		have:      make([]bool, n),
		remaining: n,
		done:      make(chan struct{}),
	}
}

// NextRequest returns the index of the next piece we don't have yet, or
// ok=false if every piece has arrived.
func (f *Fetcher) NextRequest() (index int, ok bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, have := range f.have {
		if !have {
			return i, true
		}
	}
	return 0, false
}

// GotPiece records a received data chunk for the given piece index.
func (f *Fetcher) GotPiece(index int, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if index < 0 || index >= len(f.have) || f.have[index] {
		return
	}
	f.have[index] = true
	f.pieces[index] = data
	f.remaining--
	if f.remaining == 0 {
		close(f.done)
	}
}

// Reject takes notice that a peer refused a piece request and records
// nothing: a single reject does not fail the fetch, and the piece stays
// pending for NextRequest.
func (f *Fetcher) Reject(index int) {}

// Fail marks the fetch as permanently failed, e.g. every known peer
// rejected every piece.
func (f *Fetcher) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	select {
	case <-f.done:
		return
	default:
	}
	f.err = err
	close(f.done)
}

// Done returns a channel closed once the fetch completes or fails.
func (f *Fetcher) Done() <-chan struct{} { return f.done }

// Assembled returns the concatenated metadata blob once complete, or false
// if it isn't ready yet.
func (f *Fetcher) Assembled() ([]byte, error, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err, true
	}
	if f.remaining != 0 {
		return nil, nil, false
	}
	out := make([]byte, 0, f.totalSize)
	for _, p := range f.pieces {
		out = append(out, p...)
	}
	return out, nil, true
}
