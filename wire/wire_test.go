package wire

import (
	"bytes"
	"reflect"
	"testing"
)

func roundTrip(t *testing.T, msg Message) interface{} {
	t.Helper()
	var buf bytes.Buffer
	if err := msg.Encode(&buf); err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, _, err := DecodeStep(buf.Bytes())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	return got
}

func TestRoundTripEachMessageType(t *testing.T) {
	cases := []Message{
		ChokeMessage{},
		UnchokeMessage{},
		InterestedMessage{},
		NotInterestedMessage{},
		HaveMessage{Index: 7},
		BitfieldMessage{Data: []byte{0xAF, 0x00, 0xC1}},
		RequestMessage{Index: 1, Begin: 2, Length: 16384},
		PieceMessage{Index: 1, Begin: 0, Data: []byte("hello")},
		CancelMessage{Index: 1, Begin: 2, Length: 16384},
		PortMessage{Port: 6881},
		ExtensionMessage{ExtendedID: 0, Payload: []byte("d1:md1:uti1ee")},
	}
	for _, c := range cases {
		got := roundTrip(t, c)
		if !reflect.DeepEqual(got, c) {
			t.Fatalf("round trip mismatch: got %#v want %#v", got, c)
		}
	}
}

func TestKeepAliveRoundTrip(t *testing.T) {
	got := roundTrip(t, KeepAliveMessage{})
	if _, ok := got.(KeepAliveMessage); !ok {
		t.Fatalf("expected KeepAliveMessage, got %#v", got)
	}
}

// TestBitfieldIteration checks that Iterate visits set bits MSB first
// within each byte, in byte order.
func TestBitfieldIteration(t *testing.T) {
	bf := BitfieldMessage{Data: []byte{0xAF, 0x00, 0xC1}}
	var got []uint32
	bf.Iterate(func(index uint32) { got = append(got, index) })
	want := []uint32{0, 2, 4, 5, 6, 7, 16, 17, 23}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
}

func TestInvalidLengthRejected(t *testing.T) {
	cases := []struct {
		name string
		buf  []byte
	}{
		{"have wrong length", []byte{0, 0, 0, 3, byte(IDHave), 0, 0}},
		{"request wrong length", []byte{0, 0, 0, 5, byte(IDRequest), 0, 0, 0, 0}},
		{"port wrong length", []byte{0, 0, 0, 4, byte(IDPort), 0, 0, 0}},
	}
	for _, c := range cases {
		if _, _, err := DecodeStep(c.buf); err == nil {
			t.Fatalf("%s: expected error", c.name)
		}
	}
}

func TestUnknownIDIsTolerated(t *testing.T) {
	buf := []byte{0, 0, 0, 3, 99, 0xAA, 0xBB}
	msg, n, err := DecodeStep(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != len(buf) {
		t.Fatalf("expected to consume whole buffer, consumed %d", n)
	}
	u, ok := msg.(UnknownMessage)
	if !ok || u.ID != 99 {
		t.Fatalf("expected UnknownMessage id 99, got %#v", msg)
	}
}

func TestDecodeStepNeedsMore(t *testing.T) {
	buf := []byte{0, 0, 0, 5, byte(IDHave)} // length 5 covers the id plus a 4-byte index; only the id is present
	if _, _, err := DecodeStep(buf); err != ErrNeedMore {
		t.Fatalf("expected ErrNeedMore, got %v", err)
	}
}
