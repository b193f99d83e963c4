// Package metainfo reads .torrent files, adapted from the teacher's
// internal/metainfo package: same RawInfo-preserving decode shape (needed
// to derive the info hash from the exact bytes that were sent, not a
// re-encoding of them), generalized to expose the piece hash list and file
// layout the disk engine needs.
package metainfo

import (
	"errors"
	"io"

	"github.com/zeebo/bencode"

	"github.com/ozkant/bitswarm/bt"
	"github.com/ozkant/bitswarm/internal/bencodeutil"
)

// ErrNoInfoDict is returned when a torrent file has no "info" dictionary.
var ErrNoInfoDict = errors.New("metainfo: no info dict in torrent file")

// File describes one file within a (possibly multi-file) torrent, in the
// order it appears in the info dictionary.
type File struct {
	Path   []string
	Length int64
}

// Info is the parsed "info" dictionary: piece layout and file list.
type Info struct {
	Name        string
	PieceLength int64
	Pieces      []bt.Hash20
	Private     bool
	Files       []File
	TotalLength int64
}

// infoRaw mirrors the bencode shape of the info dictionary.
type infoRaw struct {
	Name        string          `bencode:"name"`
	PieceLength int64           `bencode:"piece length"`
	Pieces      string          `bencode:"pieces"`
	Private     int             `bencode:"private,omitempty"`
	Length      int64           `bencode:"length,omitempty"`
	FilesRaw    []infoFileEntry `bencode:"files,omitempty"`
}

type infoFileEntry struct {
	Length int64    `bencode:"length"`
	Path   []string `bencode:"path"`
}

// MetaInfo is the full decoded .torrent file.
type MetaInfo struct {
	Info         Info
	InfoHash     bt.InfoHash
	RawInfo      bencode.RawMessage
	Announce     string
	AnnounceList [][]string
	CreationDate int64
	Comment      string
	CreatedBy    string
	Encoding     string
}

type metainfoRaw struct {
	RawInfo      bencode.RawMessage `bencode:"info"`
	Announce     string             `bencode:"announce"`
	AnnounceList [][]string         `bencode:"announce-list"`
	CreationDate int64              `bencode:"creation date"`
	Comment      string             `bencode:"comment"`
	CreatedBy    string             `bencode:"created by"`
	Encoding     string             `bencode:"encoding"`
}

// New parses a .torrent file from r.
func New(r io.Reader) (*MetaInfo, error) {
	var raw metainfoRaw
	if err := bencode.NewDecoder(r).Decode(&raw); err != nil {
		return nil, err
	}
	return fromRaw(raw)
}

// Parse decodes an already-buffered .torrent file. A bare "info"
// dictionary, such as one received over ut_metadata, has no outer "info"
// key and is decoded by ParseInfoDict instead.
func Parse(data []byte) (*MetaInfo, error) {
	var raw metainfoRaw
	if err := bencodeutil.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return fromRaw(raw)
}

// ParseInfoDict builds a MetaInfo from a standalone info dictionary, as
// assembled by the ut_metadata fetcher when no tracker URL is known.
func ParseInfoDict(infoDict []byte) (*MetaInfo, error) {
	return fromRaw(metainfoRaw{RawInfo: infoDict})
}

func fromRaw(raw metainfoRaw) (*MetaInfo, error) {
	if len(raw.RawInfo) == 0 {
		return nil, ErrNoInfoDict
	}
	info, err := parseInfo(raw.RawInfo)
	if err != nil {
		return nil, err
	}
	m := &MetaInfo{
		Info:         info,
		InfoHash:     bt.InfoHash(bencodeutil.HashRaw(raw.RawInfo)),
		RawInfo:      raw.RawInfo,
		Announce:     raw.Announce,
		AnnounceList: raw.AnnounceList,
		CreationDate: raw.CreationDate,
		Comment:      raw.Comment,
		CreatedBy:    raw.CreatedBy,
		Encoding:     raw.Encoding,
	}
	return m, nil
}

func parseInfo(raw bencode.RawMessage) (Info, error) {
	var ir infoRaw
	if err := bencodeutil.Unmarshal(raw, &ir); err != nil {
		return Info{}, err
	}
	pieces, err := splitPieces(ir.Pieces)
	if err != nil {
		return Info{}, err
	}

	info := Info{
		Name:        ir.Name,
		PieceLength: ir.PieceLength,
		Pieces:      pieces,
		Private:     ir.Private != 0,
	}

	if len(ir.FilesRaw) == 0 {
		info.Files = []File{{Path: []string{ir.Name}, Length: ir.Length}}
		info.TotalLength = ir.Length
	} else {
		info.Files = make([]File, len(ir.FilesRaw))
		for i, f := range ir.FilesRaw {
			info.Files[i] = File{Path: f.Path, Length: f.Length}
			info.TotalLength += f.Length
		}
	}
	return info, nil
}

func splitPieces(raw string) ([]bt.Hash20, error) {
	if len(raw)%20 != 0 {
		return nil, errors.New("metainfo: pieces field is not a multiple of 20 bytes")
	}
	n := len(raw) / 20
	out := make([]bt.Hash20, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], raw[i*20:(i+1)*20])
	}
	return out, nil
}

// NumPieces returns the number of pieces described by the info dictionary.
func (i Info) NumPieces() int { return len(i.Pieces) }

// PieceLen returns the length in bytes of the piece at index, accounting
// for the final, possibly short, piece.
func (i Info) PieceLen(index int) int64 {
	if index < 0 || index >= len(i.Pieces) {
		return 0
	}
	if index == len(i.Pieces)-1 {
		last := i.TotalLength - int64(index)*i.PieceLength
		return last
	}
	return i.PieceLength
}
