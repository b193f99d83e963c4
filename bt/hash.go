// Package bt holds the shared value types and small utilities every other
// bitswarm package depends on: 20-byte content/peer identifiers, XOR
// distance, the transaction-id generator and the contiguous-buffer chain.
package bt

import (
	"bytes"
	"encoding/hex"
)

// Hash20 is an opaque 20-byte value, comparable and orderable by
// lexicographic byte compare.
type Hash20 [20]byte

// InfoHash identifies the content of a torrent: the SHA-1 of the canonical
// bencoded info dictionary.
type InfoHash = Hash20

// PeerId is a self-chosen identifier a peer presents during handshake.
type PeerId = Hash20

// String renders the hash as lowercase hex.
func (h Hash20) String() string {
	return hex.EncodeToString(h[:])
}

// Equal reports byte-for-byte equality.
func (h Hash20) Equal(o Hash20) bool {
	return h == o
}

// Less orders two hashes by lexicographic byte compare.
func (h Hash20) Less(o Hash20) bool {
	return bytes.Compare(h[:], o[:]) < 0
}

// IsZero reports whether h is the all-zero hash.
func (h Hash20) IsZero() bool {
	return h == Hash20{}
}

// Distance is the XOR of two Hash20s, used by DHT routing to measure
// Kademlia closeness.
type Distance Hash20

// XOR computes the Kademlia distance between two ids.
func XOR(a, b Hash20) Distance {
	var d Distance
	for i := range a {
		d[i] = a[i] ^ b[i]
	}
	return d
}

// Less reports whether d is numerically closer (smaller) than o, comparing
// as a big-endian unsigned integer.
func (d Distance) Less(o Distance) bool {
	return bytes.Compare(d[:], o[:]) < 0
}

// CompareDistance orders a and b by their distance to target: negative if a
// is closer, positive if b is closer, zero if equidistant.
func CompareDistance(a, b, target Hash20) int {
	da := XOR(a, target)
	db := XOR(b, target)
	return bytes.Compare(da[:], db[:])
}

// PrefixLen returns the number of leading bits a and b share, from 0 to 160.
func PrefixLen(a, b Hash20) int {
	for i := range a {
		x := a[i] ^ b[i]
		if x == 0 {
			continue
		}
		for bit := 0; bit < 8; bit++ {
			if x&(0x80>>uint(bit)) != 0 {
				return i*8 + bit
			}
		}
	}
	return 160
}
