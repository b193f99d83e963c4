package wire

import (
	"bufio"
	"encoding/binary"
	"errors"
	"io"
)

// ErrNeedMore is returned by DecodeStep when buf does not yet hold a full
// frame. Decoder itself is driven by a blocking io.Reader (bufio already
// buffers and blocks until enough bytes are available), so callers never
// observe this value from Decode -- it exists so tests can exercise the
// same framing logic against a partially filled in-memory buffer via
// DecodeStep.
var ErrNeedMore = errors.New("wire: need more data")

// ErrMessageTooLarge guards against a peer claiming an absurd frame length.
var ErrMessageTooLarge = errors.New("wire: message length exceeds maximum")

// MaxMessageLength bounds a single frame's length field to defend against a
// malicious or buggy peer exhausting memory.
const MaxMessageLength = 32 * 1024 * 1024

// Decoder reads length-prefixed wire messages from a byte stream.
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r. r should already be positioned immediately after the
// 68-byte handshake.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Decode blocks until one full message is available and returns it.
// KeepAlive frames are returned as KeepAliveMessage rather than being
// swallowed here -- the peer session manager decides whether to surface
// them upward.
func (d *Decoder) Decode() (interface{}, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(d.r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(lenBuf[:])
	if length > MaxMessageLength {
		return nil, ErrMessageTooLarge
	}
	if length == 0 {
		return KeepAliveMessage{}, nil
	}
	idByte, err := d.r.ReadByte()
	if err != nil {
		return nil, err
	}
	id := MessageID(idByte)
	payloadLen := int(length) - 1
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(d.r, payload); err != nil {
		return nil, err
	}
	return decodeBody(id, length, payload)
}

func decodeBody(id MessageID, length uint32, payload []byte) (interface{}, error) {
	switch id {
	case IDChoke:
		if length != 1 {
			return nil, errUnrecognizedLength(id, length)
		}
		return ChokeMessage{}, nil
	case IDUnchoke:
		if length != 1 {
			return nil, errUnrecognizedLength(id, length)
		}
		return UnchokeMessage{}, nil
	case IDInterested:
		if length != 1 {
			return nil, errUnrecognizedLength(id, length)
		}
		return InterestedMessage{}, nil
	case IDNotInterested:
		if length != 1 {
			return nil, errUnrecognizedLength(id, length)
		}
		return NotInterestedMessage{}, nil
	case IDHave:
		if length != 5 {
			return nil, errUnrecognizedLength(id, length)
		}
		return HaveMessage{Index: binary.BigEndian.Uint32(payload)}, nil
	case IDBitfield:
		return BitfieldMessage{Data: payload}, nil
	case IDRequest:
		if length != 13 {
			return nil, errUnrecognizedLength(id, length)
		}
		return RequestMessage{
			Index:  binary.BigEndian.Uint32(payload[0:4]),
			Begin:  binary.BigEndian.Uint32(payload[4:8]),
			Length: binary.BigEndian.Uint32(payload[8:12]),
		}, nil
	case IDPiece:
		if length < 9 {
			return nil, errUnrecognizedLength(id, length)
		}
		return PieceMessage{
			Index: binary.BigEndian.Uint32(payload[0:4]),
			Begin: binary.BigEndian.Uint32(payload[4:8]),
			Data:  payload[8:],
		}, nil
	case IDCancel:
		if length != 13 {
			return nil, errUnrecognizedLength(id, length)
		}
		return CancelMessage{
			Index:  binary.BigEndian.Uint32(payload[0:4]),
			Begin:  binary.BigEndian.Uint32(payload[4:8]),
			Length: binary.BigEndian.Uint32(payload[8:12]),
		}, nil
	case IDPort:
		if length != 3 {
			return nil, errUnrecognizedLength(id, length)
		}
		return PortMessage{Port: binary.BigEndian.Uint16(payload)}, nil
	case IDExtended:
		if length < 2 {
			return nil, errUnrecognizedLength(id, length)
		}
		return ExtensionMessage{ExtendedID: payload[0], Payload: payload[1:]}, nil
	default:
		// Unrecognized ids are tolerated: the payload bytes are already
		// consumed by Decode, so the message is simply discarded by the
		// caller (we hand back a typed placeholder instead of an error).
		return UnknownMessage{ID: id, Payload: payload}, nil
	}
}

// UnknownMessage is returned for message ids the codec does not recognize.
// This is tolerant, not fatal: the bytes are consumed and the message is
// discarded by the caller.
type UnknownMessage struct {
	ID      MessageID
	Payload []byte
}

// DecodeStep exposes decode_step(buffer) directly against an in-memory
// buffer for property-based testing, without requiring a live stream. It
// returns the message, the number of bytes of buf consumed, or ErrNeedMore
// if buf does not yet contain a full frame.
func DecodeStep(buf []byte) (interface{}, int, error) {
	if len(buf) < 4 {
		return nil, 0, ErrNeedMore
	}
	length := binary.BigEndian.Uint32(buf[:4])
	if length > MaxMessageLength {
		return nil, 0, ErrMessageTooLarge
	}
	total := 4 + int(length)
	if len(buf) < total {
		return nil, 0, ErrNeedMore
	}
	if length == 0 {
		return KeepAliveMessage{}, 4, nil
	}
	id := MessageID(buf[4])
	payload := buf[5:total]
	msg, err := decodeBody(id, length, payload)
	if err != nil {
		return nil, 0, err
	}
	return msg, total, nil
}
