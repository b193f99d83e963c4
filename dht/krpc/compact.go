package krpc

import (
	"encoding/binary"
	"fmt"
	"net"

	"github.com/ozkant/bitswarm/bt"
)

// CompactNode is one entry of a "nodes" field: 26 bytes of
// (node_id:20, ipv4:4, port:2).
type CompactNode struct {
	ID   bt.Hash20
	Addr *net.UDPAddr
}

// EncodeNodes packs a list of nodes into the compact "nodes" string.
func EncodeNodes(nodes []CompactNode) string {
	buf := make([]byte, 0, 26*len(nodes))
	for _, n := range nodes {
		ip4 := n.Addr.IP.To4()
		if ip4 == nil {
			continue // compact form is IPv4-only.
		}
		buf = append(buf, n.ID[:]...)
		buf = append(buf, ip4...)
		var portBytes [2]byte
		binary.BigEndian.PutUint16(portBytes[:], uint16(n.Addr.Port))
		buf = append(buf, portBytes[:]...)
	}
	return string(buf)
}

// DecodeNodes unpacks a compact "nodes" string.
func DecodeNodes(raw string) ([]CompactNode, error) {
	if len(raw)%26 != 0 {
		return nil, fmt.Errorf("krpc: nodes field length %d is not a multiple of 26", len(raw))
	}
	n := len(raw) / 26
	out := make([]CompactNode, n)
	for i := 0; i < n; i++ {
		chunk := raw[i*26 : (i+1)*26]
		var id bt.Hash20
		copy(id[:], chunk[:20])
		ip := net.IPv4(chunk[20], chunk[21], chunk[22], chunk[23])
		port := binary.BigEndian.Uint16([]byte(chunk[24:26]))
		out[i] = CompactNode{ID: id, Addr: &net.UDPAddr{IP: ip, Port: int(port)}}
	}
	return out, nil
}

// EncodeValue packs one peer endpoint into its 6-byte compact form.
func EncodeValue(addr *net.UDPAddr) (string, error) {
	ip4 := addr.IP.To4()
	if ip4 == nil {
		return "", fmt.Errorf("krpc: compact values are IPv4-only")
	}
	buf := make([]byte, 6)
	copy(buf[:4], ip4)
	binary.BigEndian.PutUint16(buf[4:6], uint16(addr.Port))
	return string(buf), nil
}

// DecodeValues unpacks a "values" list of 6-byte compact peer endpoints.
func DecodeValues(values []string) ([]*net.UDPAddr, error) {
	out := make([]*net.UDPAddr, 0, len(values))
	for _, v := range values {
		if len(v) != 6 {
			return nil, fmt.Errorf("krpc: value length %d != 6", len(v))
		}
		ip := net.IPv4(v[0], v[1], v[2], v[3])
		port := binary.BigEndian.Uint16([]byte(v[4:6]))
		out = append(out, &net.UDPAddr{IP: ip, Port: int(port)})
	}
	return out, nil
}
