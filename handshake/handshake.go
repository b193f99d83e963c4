// Package handshake performs the fixed-length BitTorrent handshake and
// admits or rejects the resulting session through a pluggable filter
// chain. Grounded on the teacher's internal/btconn connection wrapper and
// on the bip_handshake crate's protocol/filter split.
package handshake

import (
	"errors"
	"fmt"
	"io"

	"github.com/ozkant/bitswarm/bt"
)

// MaxProtocolLen is enforced at every boundary that encodes or decodes a
// Protocol, closing the ambiguity in the original source over where this
// length was and wasn't checked.
const MaxProtocolLen = 255

// bittorrentProtocolString is the literal protocol string new wire
// sessions use ("BitTorrent protocol", length 19).
const bittorrentProtocolString = "BitTorrent protocol"

// Protocol identifies the application-layer protocol a handshake claims to
// speak: either the standard BitTorrent constant or a custom byte string.
type Protocol struct {
	custom []byte
	isBT   bool
}

// BitTorrentProtocol is the well-known protocol constant.
var BitTorrentProtocol = Protocol{isBT: true}

// CustomProtocol wraps an arbitrary protocol string of length <= MaxProtocolLen.
func CustomProtocol(b []byte) (Protocol, error) {
	if len(b) > MaxProtocolLen {
		return Protocol{}, fmt.Errorf("handshake: protocol string exceeds %d bytes", MaxProtocolLen)
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	return Protocol{custom: cp}, nil
}

// Bytes returns the raw protocol string bytes.
func (p Protocol) Bytes() []byte {
	if p.isBT {
		return []byte(bittorrentProtocolString)
	}
	return p.custom
}

// Equal reports whether two protocols carry identical bytes.
func (p Protocol) Equal(o Protocol) bool {
	return string(p.Bytes()) == string(o.Bytes())
}

// Extensions is the fixed 8-byte reserved bitmask exchanged during
// handshake.
type Extensions [8]byte

// Test reports whether bit index (0 = most significant bit of byte 0) is set.
func (e Extensions) Test(index int) bool {
	byteIdx := index / 8
	bit := index % 8
	if byteIdx >= len(e) {
		return false
	}
	return e[byteIdx]&(0x80>>uint(bit)) != 0
}

// Set returns a copy of e with bit index set.
func (e Extensions) Set(index int) Extensions {
	byteIdx := index / 8
	bit := index % 8
	if byteIdx >= len(e) {
		return e
	}
	e[byteIdx] |= 0x80 >> uint(bit)
	return e
}

// Union returns the bitwise OR of two Extensions.
func Union(a, b Extensions) Extensions {
	var u Extensions
	for i := range u {
		u[i] = a[i] | b[i]
	}
	return u
}

// Message is the wire representation of a handshake:
// [len:u8][protocol bytes][reserved:8][info_hash:20][peer_id:20].
type Message struct {
	Protocol   Protocol
	Extensions Extensions
	InfoHash   bt.InfoHash
	PeerID     bt.PeerId
}

var errProtocolTooLong = errors.New("handshake: protocol length exceeds maximum")

// WriteTo encodes the handshake to w.
func (m Message) WriteTo(w io.Writer) (int64, error) {
	proto := m.Protocol.Bytes()
	if len(proto) > MaxProtocolLen {
		return 0, errProtocolTooLong
	}
	buf := make([]byte, 1+len(proto)+8+20+20)
	buf[0] = byte(len(proto))
	off := 1
	off += copy(buf[off:], proto)
	off += copy(buf[off:], m.Extensions[:])
	off += copy(buf[off:], m.InfoHash[:])
	copy(buf[off:], m.PeerID[:])
	n, err := w.Write(buf)
	return int64(n), err
}

// ReadFrom decodes a handshake from r. It reads exactly one length byte,
// then allocates exactly plen+8+20+20 bytes and reads the rest in one
// call, matching the ReadLen/ReadHSBody split.
func ReadFrom(r io.Reader) (Message, error) {
	var lenByte [1]byte
	if _, err := io.ReadFull(r, lenByte[:]); err != nil {
		return Message{}, err
	}
	plen := int(lenByte[0])
	if plen > MaxProtocolLen {
		return Message{}, errProtocolTooLong
	}
	body := make([]byte, plen+8+20+20)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, err
	}
	var m Message
	protoBytes := body[:plen]
	if plen == len(bittorrentProtocolString) && string(protoBytes) == bittorrentProtocolString {
		m.Protocol = BitTorrentProtocol
	} else {
		cp, err := CustomProtocol(protoBytes)
		if err != nil {
			return Message{}, err
		}
		m.Protocol = cp
	}
	copy(m.Extensions[:], body[plen:plen+8])
	copy(m.InfoHash[:], body[plen+8:plen+8+20])
	copy(m.PeerID[:], body[plen+8+20:])
	return m, nil
}

func init() {
	// Sanity: the literal protocol string must fit the single length byte
	// and stay within MaxProtocolLen, or every handshake using it would be
	// malformed by construction.
	if len(bittorrentProtocolString) > MaxProtocolLen {
		panic("handshake: bittorrentProtocolString too long")
	}
}
