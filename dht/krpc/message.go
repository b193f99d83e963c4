// Package krpc implements the KRPC wire format used by the Mainline DHT:
// bencoded dictionaries with keys {t, y, q|r|e, a|r}, and the compact node
///peer encodings. Grounded on
// original_source/bip_dht/src/message/{find_node,get_peers,announce_peer,
// response,request,compact_info}.rs, reworked from that crate's
// per-message-type structs into a single envelope the way
// github.com/zeebo/bencode's struct-tag model expects.
package krpc

import (
	"errors"

	"github.com/zeebo/bencode"

	"github.com/ozkant/bitswarm/bt"
)

// Query names, the "q" field of a query message.
const (
	QueryPing         = "ping"
	QueryFindNode      = "find_node"
	QueryGetPeers      = "get_peers"
	QueryAnnouncePeer  = "announce_peer"
)

// Message is the single envelope every KRPC packet decodes into; which of
// A/R/E is populated is determined by Y.
type Message struct {
	T string `bencode:"t"`
	Y string `bencode:"y"` // "q", "r", or "e"
	Q string `bencode:"q,omitempty"`

	A *QueryArgs `bencode:"a,omitempty"`
	R *ReplyArgs `bencode:"r,omitempty"`
	E *Error     `bencode:"e,omitempty"`
}

// QueryArgs covers the union of arguments across all four query types;
// unused fields are simply omitted on encode.
type QueryArgs struct {
	ID       string `bencode:"id"`
	Target   string `bencode:"target,omitempty"`
	InfoHash string `bencode:"info_hash,omitempty"`
	Port     int    `bencode:"port,omitempty"`
	Token    string `bencode:"token,omitempty"`
}

// ReplyArgs covers the union of reply fields across all four query types.
type ReplyArgs struct {
	ID     string   `bencode:"id"`
	Nodes  string   `bencode:"nodes,omitempty"`
	Token  string   `bencode:"token,omitempty"`
	Values []string `bencode:"values,omitempty"`
}

// Error is the KRPC error list: [code, message].
type Error struct {
	Code    int
	Message string
}

func (e *Error) MarshalBencode() ([]byte, error) {
	return bencode.EncodeBytes([]interface{}{e.Code, e.Message})
}

func (e *Error) UnmarshalBencode(data []byte) error {
	var parts []interface{}
	if err := bencode.DecodeBytes(data, &parts); err != nil {
		return err
	}
	if len(parts) != 2 {
		return errors.New("krpc: malformed error list")
	}
	code, ok := parts[0].(int64)
	if !ok {
		return errors.New("krpc: error code is not an integer")
	}
	msg, ok := parts[1].(string)
	if !ok {
		return errors.New("krpc: error message is not a string")
	}
	e.Code = int(code)
	e.Message = msg
	return nil
}

// Encode bencodes the message.
func (m *Message) Encode() ([]byte, error) {
	return bencode.EncodeBytes(m)
}

// Decode parses a raw KRPC packet.
func Decode(data []byte) (*Message, error) {
	var m Message
	if err := bencode.DecodeBytes(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// NodeID returns the sender's id from whichever of A/R is populated.
func (m *Message) NodeID() (bt.Hash20, bool) {
	var s string
	switch {
	case m.A != nil:
		s = m.A.ID
	case m.R != nil:
		s = m.R.ID
	default:
		return bt.Hash20{}, false
	}
	return stringToHash(s)
}

func stringToHash(s string) (bt.Hash20, bool) {
	var h bt.Hash20
	if len(s) != 20 {
		return h, false
	}
	copy(h[:], s)
	return h, true
}
