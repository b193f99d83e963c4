// Package bencodeutil collects small bencode helpers used by metainfo
// (krpc and extension call zeebo/bencode directly), grounded on the teacher's use of
// github.com/zeebo/bencode for its torrent-file RawInfo round-trip
// (internal/metainfo/metainfo.go).
package bencodeutil

import (
	"crypto/sha1"
	"sort"

	"github.com/zeebo/bencode"
)

// HashRaw returns the SHA-1 digest of a raw bencoded dictionary, used both
// for deriving a torrent's info hash from its "info" dict and for deriving
// ut_metadata's info hash check.
func HashRaw(raw bencode.RawMessage) [20]byte {
	return sha1.Sum(raw)
}

// DictKeys returns the keys of a bencode dictionary in the sorted order
// the bencode spec requires for canonical encoding, for callers building
// dictionaries by hand (e.g. KRPC query/response arguments) rather than
// through struct tags.
func DictKeys(d map[string]interface{}) []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Marshal bencodes v using the shared library, as a thin wrapper; the
// krpc, extension and utmetadata packages import zeebo/bencode directly
// instead.
func Marshal(v interface{}) ([]byte, error) {
	return bencode.EncodeBytes(v)
}

// Unmarshal decodes bencoded data into v.
func Unmarshal(data []byte, v interface{}) error {
	return bencode.DecodeBytes(data, v)
}
