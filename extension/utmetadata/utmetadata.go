// Package utmetadata implements the ut_metadata BEP-10 sub-extension:
// exchanging the .torrent info dictionary over the wire in 16 KiB chunks.
// Block-size constant and block-splitting logic are adapted directly from
// the teacher's internal/infodownloader, which downloads blocks of
// exactly this shape.
package utmetadata

import (
	"fmt"

	"github.com/zeebo/bencode"
)

// ExtensionName is the "m" map key peers use to advertise ut_metadata
// support.
const ExtensionName = "ut_metadata"

// PieceSize is 16 KiB except for the final piece.
const PieceSize = 16 * 1024

// MessageType discriminates a ut_metadata message.
type MessageType int

const (
	MsgRequest MessageType = 0
	MsgData    MessageType = 1
	MsgReject  MessageType = 2
)

// Message is the bencoded dict prefix of a ut_metadata message; for
// MsgData it is immediately followed by the raw metadata chunk bytes on
// the wire (not embedded in the dict).
type Message struct {
	MsgType   MessageType `bencode:"msg_type"`
	Piece     int         `bencode:"piece"`
	TotalSize int         `bencode:"total_size,omitempty"`
}

// Encode bencodes the message dict. For MsgData, data must be appended by
// the caller after this dict when writing the extended-message payload.
func (m Message) Encode() ([]byte, error) {
	return bencode.EncodeBytes(m)
}

// Decode parses a dict prefix, returning the dict and the number of bytes
// it consumed so the caller can slice off the remaining raw chunk for
// MsgData messages. The extended-message payload has already been read in
// full by the wire decoder, so the dict boundary is found by scanning the
// bencode value itself rather than trusting a stream decoder's internal
// buffering to stop exactly at 'e'.
func Decode(payload []byte) (Message, int, error) {
	consumed, err := dictEnd(payload)
	if err != nil {
		return Message{}, 0, err
	}
	var m Message
	if err := bencode.DecodeBytes(payload[:consumed], &m); err != nil {
		return Message{}, 0, err
	}
	return m, consumed, nil
}

// dictEnd scans a single bencoded value starting at offset 0 and returns
// the index of the byte just past it.
func dictEnd(b []byte) (int, error) {
	i, err := scanValue(b, 0)
	if err != nil {
		return 0, err
	}
	return i, nil
}

func scanValue(b []byte, i int) (int, error) {
	if i >= len(b) {
		return 0, fmt.Errorf("utmetadata: truncated bencode value")
	}
	switch {
	case b[i] == 'i':
		j := i + 1
		for j < len(b) && b[j] != 'e' {
			j++
		}
		if j >= len(b) {
			return 0, fmt.Errorf("utmetadata: unterminated integer")
		}
		return j + 1, nil
	case b[i] == 'l' || b[i] == 'd':
		j := i + 1
		for {
			if j >= len(b) {
				return 0, fmt.Errorf("utmetadata: unterminated list/dict")
			}
			if b[j] == 'e' {
				return j + 1, nil
			}
			n, err := scanValue(b, j)
			if err != nil {
				return 0, err
			}
			j = n
		}
	case b[i] >= '0' && b[i] <= '9':
		j := i
		for j < len(b) && b[j] != ':' {
			j++
		}
		if j >= len(b) {
			return 0, fmt.Errorf("utmetadata: malformed string length")
		}
		n := 0
		for _, c := range b[i:j] {
			n = n*10 + int(c-'0')
		}
		start := j + 1
		end := start + n
		if end > len(b) {
			return 0, fmt.Errorf("utmetadata: truncated string")
		}
		return end, nil
	default:
		return 0, fmt.Errorf("utmetadata: invalid bencode tag %q", b[i])
	}
}

// NumPieces returns how many PieceSize chunks totalSize splits into.
func NumPieces(totalSize int) int {
	n := totalSize / PieceSize
	if totalSize%PieceSize != 0 {
		n++
	}
	return n
}

// PieceBounds returns the [start, end) byte range of piece index within a
// totalSize-byte metadata blob.
func PieceBounds(index, totalSize int) (start, end int, err error) {
	if index < 0 || index >= NumPieces(totalSize) {
		return 0, 0, fmt.Errorf("utmetadata: piece index %d out of range for size %d", index, totalSize)
	}
	start = index * PieceSize
	end = start + PieceSize
	if end > totalSize {
		end = totalSize
	}
	return start, end, nil
}
