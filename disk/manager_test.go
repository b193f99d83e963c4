package disk

import (
	"crypto/sha1"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ozkant/bitswarm/bt"
	"github.com/ozkant/bitswarm/metainfo"
)

// memFS is an in-memory FileSystem used to test the disk engine without
// touching the real filesystem.
type memFS struct {
	mu    sync.Mutex
	files map[string]*memFile
}

func newMemFS() *memFS { return &memFS{files: make(map[string]*memFile)} }

func (fs *memFS) Open(path string, expectedLength int64) (File, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	f, ok := fs.files[path]
	if !ok {
		f = &memFile{data: make([]byte, expectedLength)}
		fs.files[path] = f
		return f, nil
	}
	if expectedLength > 0 && int64(len(f.data)) != expectedLength {
		return nil, errors.New("length mismatch")
	}
	return f, nil
}

func (fs *memFS) Remove(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	delete(fs.files, path)
	return nil
}

type memFile struct {
	mu   sync.Mutex
	data []byte
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(p, f.data[off:])
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := copy(f.data[off:], p)
	return n, nil
}

func (f *memFile) Size() (int64, error) { return int64(len(f.data)), nil }
func (f *memFile) Close() error         { return nil }

func buildTestInfo() metainfo.Info {
	// Two files of 1023 and 2000 bytes, piece_length 1024: 3 pieces of
	// 1024 + 1024 + 975 bytes, spanning a piece boundary across both files.
	total := int64(1023 + 2000)
	info := metainfo.Info{
		Name:        "t",
		PieceLength: 1024,
		TotalLength: total,
		Files: []metainfo.File{
			{Path: []string{"a.bin"}, Length: 1023},
			{Path: []string{"b.bin"}, Length: 2000},
		},
	}
	n := int(total / 1024)
	if total%1024 != 0 {
		n++
	}
	info.Pieces = make([]bt.Hash20, n)
	return info
}

func waitEvent(t *testing.T, ch <-chan Event, kind EventKind, piece int) Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case e := <-ch:
			if e.Kind == kind && e.Piece == piece {
				return e
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event kind=%v piece=%d", kind, piece)
		}
	}
}

func TestCompleteTorrentWrite(t *testing.T) {
	info := buildTestInfo()

	// Build the full linear content up front so piece hashes can be
	// computed, then drive the manager through S3's write sequence.
	content := make([]byte, info.TotalLength)
	for i := range content {
		content[i] = byte(i)
	}
	for i := 0; i < info.NumPieces(); i++ {
		start := int64(i) * info.PieceLength
		end := start + info.PieceLen(i)
		sum := sha1.Sum(content[start:end])
		info.Pieces[i] = bt.Hash20(sum)
	}

	fs := newMemFS()
	m := NewManager(fs, 4)

	var infoHash bt.InfoHash
	infoHash[0] = 0x42
	if err := m.AddTorrent(infoHash, info); err != nil {
		t.Fatalf("AddTorrent: %v", err)
	}
	waitEvent(t, m.Events(), TorrentAdded, 0)

	piece0 := append([]byte{}, content[0:1024]...)
	// Invert the last byte of the final block so piece 0 hashes wrong.
	corrupted := append([]byte{}, piece0...)
	corrupted[len(corrupted)-1] ^= 0xFF

	blockLen := int64(1024) / 3
	for i := 0; i < 3; i++ {
		start := int64(i) * blockLen
		end := start + blockLen
		if i == 2 {
			end = 1024
		}
		data := corrupted[start:end]
		m.ProcessBlock(Block{InfoHash: infoHash, Piece: 0, Offset: start, Length: int64(len(data)), Data: data})
		waitEvent(t, m.Events(), BlockProcessed, 0)
	}
	waitEvent(t, m.Events(), FoundBadPiece, 0)

	// Piece 1 and 2, written correctly in one block each.
	for _, idx := range []int{1, 2} {
		start := int64(idx) * info.PieceLength
		end := start + info.PieceLen(idx)
		data := content[start:end]
		m.ProcessBlock(Block{InfoHash: infoHash, Piece: idx, Offset: 0, Length: int64(len(data)), Data: data})
		waitEvent(t, m.Events(), BlockProcessed, idx)
		waitEvent(t, m.Events(), FoundGoodPiece, idx)
	}

	// Re-write piece 0 correctly.
	m.ProcessBlock(Block{InfoHash: infoHash, Piece: 0, Offset: 0, Length: int64(len(piece0)), Data: piece0})
	waitEvent(t, m.Events(), BlockProcessed, 0)
	waitEvent(t, m.Events(), FoundGoodPiece, 0)
}

func TestAddTorrentRejectsDuplicate(t *testing.T) {
	info := buildTestInfo()
	fs := newMemFS()
	m := NewManager(fs, 4)
	var infoHash bt.InfoHash
	if err := m.AddTorrent(infoHash, info); err != nil {
		t.Fatalf("AddTorrent: %v", err)
	}
	waitEvent(t, m.Events(), TorrentAdded, 0)

	if err := m.AddTorrent(infoHash, info); err != ErrExistingInfoHash {
		t.Fatalf("expected ErrExistingInfoHash, got %v", err)
	}
}

func TestProcessBlockUnknownTorrent(t *testing.T) {
	fs := newMemFS()
	m := NewManager(fs, 4)
	m.ProcessBlock(Block{Piece: 0, Offset: 0, Length: 1, Data: []byte{1}})
	e := <-m.Events()
	if e.Kind != BlockError || e.Err != ErrUnknownTorrent {
		t.Fatalf("got %+v", e)
	}
}
