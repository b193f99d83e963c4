package metainfo

import (
	"strings"
	"testing"

	"github.com/zeebo/bencode"

	"github.com/ozkant/bitswarm/internal/bencodeutil"
)

func buildTorrentBytes(t *testing.T, files []infoFileEntry, singleLength int64, pieces string) []byte {
	t.Helper()
	info := infoRaw{
		Name:        "testdir",
		PieceLength: 1024,
		Pieces:      pieces,
	}
	if len(files) > 0 {
		info.FilesRaw = files
	} else {
		info.Length = singleLength
	}
	rawInfo, err := bencodeutil.Marshal(info)
	if err != nil {
		t.Fatalf("marshal info: %v", err)
	}

	full := struct {
		RawInfo  bencode.RawMessage `bencode:"info"`
		Announce string             `bencode:"announce"`
	}{RawInfo: bencode.RawMessage(rawInfo), Announce: "http://tracker.example/announce"}

	data, err := bencodeutil.Marshal(full)
	if err != nil {
		t.Fatalf("marshal outer: %v", err)
	}
	return data
}

func TestParseSingleFileTorrent(t *testing.T) {
	pieces := strings.Repeat("a", 20) + strings.Repeat("b", 20)
	data := buildTorrentBytes(t, nil, 2000, pieces)

	mi, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if mi.Announce != "http://tracker.example/announce" {
		t.Fatalf("announce = %q", mi.Announce)
	}
	if mi.Info.NumPieces() != 2 {
		t.Fatalf("NumPieces = %d", mi.Info.NumPieces())
	}
	if len(mi.Info.Files) != 1 || mi.Info.Files[0].Length != 2000 {
		t.Fatalf("files = %+v", mi.Info.Files)
	}
	if mi.InfoHash.IsZero() {
		t.Fatal("expected non-zero info hash")
	}
}

func TestParseMultiFileTorrent(t *testing.T) {
	pieces := strings.Repeat("c", 20)
	files := []infoFileEntry{
		{Length: 500, Path: []string{"sub", "a.bin"}},
		{Length: 300, Path: []string{"b.bin"}},
	}
	data := buildTorrentBytes(t, files, 0, pieces)

	mi, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(mi.Info.Files) != 2 {
		t.Fatalf("files = %+v", mi.Info.Files)
	}
	if mi.Info.TotalLength != 800 {
		t.Fatalf("TotalLength = %d", mi.Info.TotalLength)
	}
}

func TestPieceLenAccountsForShortFinalPiece(t *testing.T) {
	pieces := strings.Repeat("a", 20) + strings.Repeat("b", 20)
	data := buildTorrentBytes(t, nil, 1500, pieces)
	mi, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got := mi.Info.PieceLen(0); got != 1024 {
		t.Fatalf("PieceLen(0) = %d, want 1024", got)
	}
	if got := mi.Info.PieceLen(1); got != 1500-1024 {
		t.Fatalf("PieceLen(1) = %d, want %d", got, 1500-1024)
	}
}

func TestParseMissingInfoDict(t *testing.T) {
	data, err := bencodeutil.Marshal(struct {
		Announce string `bencode:"announce"`
	}{Announce: "x"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if _, err := Parse(data); err != ErrNoInfoDict {
		t.Fatalf("expected ErrNoInfoDict, got %v", err)
	}
}

func TestBadPiecesLength(t *testing.T) {
	data := buildTorrentBytes(t, nil, 100, "short")
	if _, err := Parse(data); err == nil {
		t.Fatal("expected error for malformed pieces field")
	}
}
