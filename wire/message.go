// Package wire translates a bidirectional byte stream into BitTorrent wire
// messages and back. Decoder reads through a bufio.Reader, so it can read
// bytes beyond the end of the current message; once a Decoder wraps a
// connection, every later read of that connection goes through it.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MessageID is the fixed single-byte id that follows the length prefix of
// every non-keep-alive message.
type MessageID uint8

// Id assignments are fixed by the wire protocol.
const (
	IDChoke         MessageID = 0
	IDUnchoke       MessageID = 1
	IDInterested    MessageID = 2
	IDNotInterested MessageID = 3
	IDHave          MessageID = 4
	IDBitfield      MessageID = 5
	IDRequest       MessageID = 6
	IDPiece         MessageID = 7
	IDCancel        MessageID = 8
	IDPort          MessageID = 9
	IDExtended      MessageID = 20
)

// Message is implemented by every concrete wire message type.
type Message interface {
	// Encode writes the full frame -- length prefix, id byte (if any), and
	// payload -- to w.
	Encode(w io.Writer) error
}

func writeFrame(w io.Writer, id MessageID, hasID bool, payload []byte) error {
	length := uint32(len(payload))
	if hasID {
		length++
	}
	var header [5]byte
	binary.BigEndian.PutUint32(header[:4], length)
	n := 4
	if hasID {
		header[4] = byte(id)
		n = 5
	}
	if _, err := w.Write(header[:n]); err != nil {
		return err
	}
	if len(payload) > 0 {
		if _, err := w.Write(payload); err != nil {
			return err
		}
	}
	return nil
}

// KeepAliveMessage is the literal four-byte zero-length frame.
type KeepAliveMessage struct{}

func (KeepAliveMessage) Encode(w io.Writer) error {
	_, err := w.Write([]byte{0, 0, 0, 0})
	return err
}

type ChokeMessage struct{}

func (ChokeMessage) Encode(w io.Writer) error { return writeFrame(w, IDChoke, true, nil) }

type UnchokeMessage struct{}

func (UnchokeMessage) Encode(w io.Writer) error { return writeFrame(w, IDUnchoke, true, nil) }

type InterestedMessage struct{}

func (InterestedMessage) Encode(w io.Writer) error { return writeFrame(w, IDInterested, true, nil) }

type NotInterestedMessage struct{}

func (NotInterestedMessage) Encode(w io.Writer) error {
	return writeFrame(w, IDNotInterested, true, nil)
}

// HaveMessage announces a completed piece index.
type HaveMessage struct {
	Index uint32
}

func (m HaveMessage) Encode(w io.Writer) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], m.Index)
	return writeFrame(w, IDHave, true, b[:])
}

// BitfieldMessage carries an opaque bitmap, one bit per piece, MSB first
// within each byte.
type BitfieldMessage struct {
	Data []byte
}

func (m BitfieldMessage) Encode(w io.Writer) error {
	return writeFrame(w, IDBitfield, true, m.Data)
}

// Iterate calls f(index) once for every set bit, MSB first within each
// byte.
func (m BitfieldMessage) Iterate(f func(index uint32)) {
	for byteIdx, b := range m.Data {
		for bit := 0; bit < 8; bit++ {
			if b&(0x80>>uint(bit)) != 0 {
				f(uint32(byteIdx*8 + bit))
			}
		}
	}
}

// RequestMessage asks for a block of a piece.
type RequestMessage struct {
	Index, Begin, Length uint32
}

func (m RequestMessage) Encode(w io.Writer) error {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], m.Index)
	binary.BigEndian.PutUint32(b[4:8], m.Begin)
	binary.BigEndian.PutUint32(b[8:12], m.Length)
	return writeFrame(w, IDRequest, true, b[:])
}

// PieceMessage carries a block of piece data.
type PieceMessage struct {
	Index, Begin uint32
	Data         []byte
}

func (m PieceMessage) Encode(w io.Writer) error {
	header := make([]byte, 8, 8+len(m.Data))
	binary.BigEndian.PutUint32(header[0:4], m.Index)
	binary.BigEndian.PutUint32(header[4:8], m.Begin)
	payload := append(header, m.Data...)
	return writeFrame(w, IDPiece, true, payload)
}

// CancelMessage cancels a previously sent RequestMessage.
type CancelMessage struct {
	Index, Begin, Length uint32
}

func (m CancelMessage) Encode(w io.Writer) error {
	var b [12]byte
	binary.BigEndian.PutUint32(b[0:4], m.Index)
	binary.BigEndian.PutUint32(b[4:8], m.Begin)
	binary.BigEndian.PutUint32(b[8:12], m.Length)
	return writeFrame(w, IDCancel, true, b[:])
}

// PortMessage advertises the sender's DHT port (BEP 5).
type PortMessage struct {
	Port uint16
}

func (m PortMessage) Encode(w io.Writer) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], m.Port)
	return writeFrame(w, IDPort, true, b[:])
}

// ExtensionMessage carries a BEP-10 extended-protocol payload. ExtendedID 0
// is the extended handshake; any other id is looked up against the peer's
// advertised id map by the extension package.
type ExtensionMessage struct {
	ExtendedID uint8
	Payload    []byte
}

func (m ExtensionMessage) Encode(w io.Writer) error {
	payload := make([]byte, 1+len(m.Payload))
	payload[0] = m.ExtendedID
	copy(payload[1:], m.Payload)
	return writeFrame(w, IDExtended, true, payload)
}

// errUnrecognizedLength reports an id/length combination the protocol
// forbids (e.g. a Have message whose length isn't 5).
func errUnrecognizedLength(id MessageID, length uint32) error {
	return fmt.Errorf("wire: invalid length %d for message id %d", length, id)
}
