// Package extension implements the BEP-10 extended handshake and its
// pluggable per-extension listener registry, plus the concretely specified
// ut_metadata sub-extension. Grounded on the teacher's
// peerprotocol.NewExtensionHandshake/ExtensionMessage call sites
// (session/run.go sendFirstMessage, infodownloader.go) and
// original_source/bip_peer/src/message/prot_extension.rs.
package extension

import (
	"net"

	"github.com/zeebo/bencode"
)

// HandshakeID is the extended-message id reserved for the handshake dict
// itself; every other id is a peer-assigned extension id.
const HandshakeID uint8 = 0

// Handshake is the BEP-10 extended handshake dictionary.
type Handshake struct {
	M            map[string]uint8 `bencode:"m"`
	V            string           `bencode:"v,omitempty"`
	Port         uint16           `bencode:"p,omitempty"`
	YourIP       string           `bencode:"yourip,omitempty"`
	IPv4         string           `bencode:"ipv4,omitempty"`
	IPv6         string           `bencode:"ipv6,omitempty"`
	ReqQ         int              `bencode:"reqq,omitempty"`
	MetadataSize uint32           `bencode:"metadata_size,omitempty"`
}

// NewHandshake builds the outgoing extended handshake dict, mirroring the
// teacher's peerprotocol.NewExtensionHandshake(metadataSize, clientVersion,
// remoteIP) constructor.
func NewHandshake(metadataSize uint32, clientVersion string, remoteIP net.IP, ourPort uint16, reqQ int) Handshake {
	h := Handshake{
		M:            map[string]uint8{},
		V:            clientVersion,
		Port:         ourPort,
		ReqQ:         reqQ,
		MetadataSize: metadataSize,
	}
	if remoteIP != nil {
		h.YourIP = remoteIP.String()
	}
	return h
}

// Encode bencodes the handshake dict.
func (h Handshake) Encode() ([]byte, error) {
	return bencode.EncodeBytes(h)
}

// DecodeHandshake parses an incoming extended handshake payload.
func DecodeHandshake(data []byte) (Handshake, error) {
	var h Handshake
	err := bencode.DecodeBytes(data, &h)
	return h, err
}
