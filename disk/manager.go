package disk

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"sync"

	"github.com/ozkant/bitswarm/bt"
	"github.com/ozkant/bitswarm/metainfo"
)

// Block is a contiguous range of bytes within one piece, addressed the way
// wire Request/Piece messages address them.
type Block struct {
	InfoHash bt.InfoHash
	Piece    int
	Offset   int64
	Length   int64
	Data     []byte // populated for ProcessBlock input and LoadBlock output
}

// EventKind discriminates a disk engine event.
type EventKind int

const (
	TorrentAdded EventKind = iota
	FoundGoodPiece
	FoundBadPiece
	BlockProcessed
	BlockError
	BlockLoaded
)

// Event is emitted on the engine's Events channel.
type Event struct {
	Kind     EventKind
	InfoHash bt.InfoHash
	Piece    int
	Block    Block
	Err      error
}

var (
	// ErrExistingInfoHash is returned by AddTorrent for a duplicate add:
	// at most one AddTorrent per info hash may be in flight at a time.
	ErrExistingInfoHash = errors.New("disk: torrent already added")
	ErrUnknownTorrent   = errors.New("disk: unknown info hash")
	ErrUnknownPiece     = errors.New("disk: unknown piece index")
	ErrBlockOutOfRange  = errors.New("disk: block exceeds piece bounds")
	ErrZeroLengthBlock  = errors.New("disk: zero-length block")
)

type torrentState struct {
	info     metainfo.Info
	spans    []fileSpan
	files    map[string]File
	coverage []*pieceCoverage
	good     []bool
}

// Manager is the disk engine. It starts no goroutines and has no worker
// pool: every operation runs on the caller's goroutine, and at most
// sinkBufferCapacity of them run at once (a channel semaphore; further
// callers block until a slot frees, in no defined order).
type Manager struct {
	fs FileSystem

	mu       sync.RWMutex
	torrents map[bt.InfoHash]*torrentState

	events chan Event
	sem    chan struct{}
}

// NewManager returns a disk engine writing through fs, with up to
// sinkBufferCapacity work items in flight at once.
func NewManager(fs FileSystem, sinkBufferCapacity int) *Manager {
	return &Manager{
		fs:       fs,
		torrents: make(map[bt.InfoHash]*torrentState),
		events:   make(chan Event, 256),
		sem:      make(chan struct{}, sinkBufferCapacity),
	}
}

// Events returns the channel every engine event is delivered on.
func (m *Manager) Events() <-chan Event { return m.events }

// AddTorrent opens every file in info's layout, validates existing file
// lengths, and scans already-present bytes for already-complete pieces,
//  AddTorrent sequence. It runs synchronously with respect
// to the caller (the async framing lives one level up, in the session
// that owns the Manager) but still participates in the work-budget
// semaphore so it is throttled the same as block operations.
func (m *Manager) AddTorrent(infoHash bt.InfoHash, info metainfo.Info) error {
	m.mu.Lock()
	if _, exists := m.torrents[infoHash]; exists {
		m.mu.Unlock()
		return ErrExistingInfoHash
	}
	m.torrents[infoHash] = nil // reserve the slot before releasing the lock
	m.mu.Unlock()

	m.acquire()
	defer m.release()

	spans := buildLayout(info)
	files := make(map[string]File, len(spans))
	for _, sp := range spans {
		f, err := m.fs.Open(sp.path, sp.end-sp.start)
		if err != nil {
			m.mu.Lock()
			delete(m.torrents, infoHash)
			m.mu.Unlock()
			return fmt.Errorf("disk: open %s: %w", sp.path, err)
		}
		files[sp.path] = f
	}

	st := &torrentState{
		info:     info,
		spans:    spans,
		files:    files,
		coverage: make([]*pieceCoverage, info.NumPieces()),
		good:     make([]bool, info.NumPieces()),
	}
	for i := range st.coverage {
		st.coverage[i] = newPieceCoverage(info.PieceLen(i))
	}

	m.mu.Lock()
	m.torrents[infoHash] = st
	m.mu.Unlock()

	for i := 0; i < info.NumPieces(); i++ {
		good, err := m.scanExistingPiece(st, i)
		if err != nil {
			return err
		}
		if good {
			st.good[i] = true
			m.events <- Event{Kind: FoundGoodPiece, InfoHash: infoHash, Piece: i}
		}
	}
	m.events <- Event{Kind: TorrentAdded, InfoHash: infoHash}
	return nil
}

// RemoveTorrent closes every open file and drops the torrent's state.
// Underlying bytes on the FileSystem are left in place; callers that want
// the data deleted call FileSystem.Remove themselves (mirrors the
// teacher's session-level Stop/removeTorrent split between closing
// handles and reclaiming disk space).
func (m *Manager) RemoveTorrent(infoHash bt.InfoHash) error {
	m.mu.Lock()
	st, ok := m.torrents[infoHash]
	delete(m.torrents, infoHash)
	m.mu.Unlock()
	if !ok {
		return ErrUnknownTorrent
	}
	var firstErr error
	for _, f := range st.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ProcessBlock validates and writes a block, updating piece coverage, and
// always emits exactly one BlockProcessed or BlockError. When the block
// completes its piece, FoundGoodPiece or FoundBadPiece follows the
// BlockProcessed.
func (m *Manager) ProcessBlock(b Block) {
	m.acquire()
	defer m.release()

	st, err := m.lookupTorrent(b.InfoHash)
	if err != nil {
		m.events <- Event{Kind: BlockError, InfoHash: b.InfoHash, Piece: b.Piece, Block: b, Err: err}
		return
	}
	if err := m.validateBlock(st, b); err != nil {
		m.events <- Event{Kind: BlockError, InfoHash: b.InfoHash, Piece: b.Piece, Block: b, Err: err}
		return
	}

	linearStart := int64(b.Piece)*st.info.PieceLength + b.Offset
	if err := m.writeRange(st, linearStart, b.Data); err != nil {
		m.events <- Event{Kind: BlockError, InfoHash: b.InfoHash, Piece: b.Piece, Block: b, Err: err}
		return
	}

	complete := st.coverage[b.Piece].markWritten(b.Offset, int64(len(b.Data)))
	m.events <- Event{Kind: BlockProcessed, InfoHash: b.InfoHash, Piece: b.Piece, Block: b}
	if complete {
		m.verifyPiece(st, b.InfoHash, b.Piece)
	}
}

// LoadBlock reads the requested range back into a freshly allocated
// buffer and emits BlockLoaded.
func (m *Manager) LoadBlock(b Block) {
	m.acquire()
	defer m.release()

	st, err := m.lookupTorrent(b.InfoHash)
	if err != nil {
		m.events <- Event{Kind: BlockError, InfoHash: b.InfoHash, Piece: b.Piece, Block: b, Err: err}
		return
	}
	if err := m.validateBlock(st, b); err != nil {
		m.events <- Event{Kind: BlockError, InfoHash: b.InfoHash, Piece: b.Piece, Block: b, Err: err}
		return
	}

	linearStart := int64(b.Piece)*st.info.PieceLength + b.Offset
	buf := make([]byte, b.Length)
	if err := m.readRange(st, linearStart, buf); err != nil {
		m.events <- Event{Kind: BlockError, InfoHash: b.InfoHash, Piece: b.Piece, Block: b, Err: err}
		return
	}
	b.Data = buf
	m.events <- Event{Kind: BlockLoaded, InfoHash: b.InfoHash, Piece: b.Piece, Block: b}
}

func (m *Manager) acquire() { m.sem <- struct{}{} }
func (m *Manager) release() { <-m.sem }

func (m *Manager) lookupTorrent(infoHash bt.InfoHash) (*torrentState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.torrents[infoHash]
	if !ok || st == nil {
		return nil, ErrUnknownTorrent
	}
	return st, nil
}

func (m *Manager) validateBlock(st *torrentState, b Block) error {
	if b.Piece < 0 || b.Piece >= st.info.NumPieces() {
		return ErrUnknownPiece
	}
	if b.Length <= 0 {
		return ErrZeroLengthBlock
	}
	if b.Offset+b.Length > st.info.PieceLen(b.Piece) {
		return ErrBlockOutOfRange
	}
	return nil
}

func (m *Manager) writeRange(st *torrentState, linearStart int64, data []byte) error {
	for _, seg := range splitRange(st.spans, linearStart, linearStart+int64(len(data))) {
		f := st.files[seg.span.path]
		chunk := data[seg.rangeStart : seg.rangeStart+seg.length]
		if _, err := f.WriteAt(chunk, seg.fileOffset); err != nil {
			return err
		}
	}
	return nil
}

func (m *Manager) readRange(st *torrentState, linearStart int64, buf []byte) error {
	for _, seg := range splitRange(st.spans, linearStart, linearStart+int64(len(buf))) {
		f := st.files[seg.span.path]
		chunk := buf[seg.rangeStart : seg.rangeStart+seg.length]
		if _, err := f.ReadAt(chunk, seg.fileOffset); err != nil {
			return err
		}
	}
	return nil
}

// verifyPiece hashes the piece by streaming it back from disk and compares
// it against the metainfo hash, emitting FoundGoodPiece/FoundBadPiece. A
// bad piece resets coverage so a later full rewrite re-triggers
// verification.
func (m *Manager) verifyPiece(st *torrentState, infoHash bt.InfoHash, index int) {
	length := st.info.PieceLen(index)
	buf := make([]byte, length)
	linearStart := int64(index) * st.info.PieceLength
	if err := m.readRange(st, linearStart, buf); err != nil {
		m.events <- Event{Kind: BlockError, InfoHash: infoHash, Piece: index, Err: err}
		return
	}
	sum := sha1.Sum(buf)
	if bt.Hash20(sum) == st.info.Pieces[index] {
		st.good[index] = true
		m.events <- Event{Kind: FoundGoodPiece, InfoHash: infoHash, Piece: index}
		return
	}
	st.coverage[index].reset()
	m.events <- Event{Kind: FoundBadPiece, InfoHash: infoHash, Piece: index}
}

// scanExistingPiece hashes a piece's current on-disk bytes, used during
// AddTorrent to detect pieces that are already complete from a prior run.
func (m *Manager) scanExistingPiece(st *torrentState, index int) (bool, error) {
	length := st.info.PieceLen(index)
	buf := make([]byte, length)
	linearStart := int64(index) * st.info.PieceLength
	if err := m.readRange(st, linearStart, buf); err != nil {
		return false, err
	}
	sum := sha1.Sum(buf)
	if bt.Hash20(sum) == st.info.Pieces[index] {
		st.coverage[index].add(0, length)
		return true, nil
	}
	return false, nil
}
