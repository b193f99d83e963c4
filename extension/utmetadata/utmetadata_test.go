package utmetadata

import (
	"bytes"
	"testing"
)

func TestNumPiecesAndBounds(t *testing.T) {
	cases := []struct {
		total int
		n     int
	}{
		{0, 0},
		{1, 1},
		{PieceSize, 1},
		{PieceSize + 1, 2},
		{PieceSize * 3, 3},
	}
	for _, c := range cases {
		if got := NumPieces(c.total); got != c.n {
			t.Errorf("NumPieces(%d) = %d, want %d", c.total, got, c.n)
		}
	}

	start, end, err := PieceBounds(0, PieceSize+100)
	if err != nil || start != 0 || end != PieceSize {
		t.Fatalf("PieceBounds(0) = (%d,%d,%v)", start, end, err)
	}
	start, end, err = PieceBounds(1, PieceSize+100)
	if err != nil || start != PieceSize || end != PieceSize+100 {
		t.Fatalf("PieceBounds(1) = (%d,%d,%v)", start, end, err)
	}
	if _, _, err := PieceBounds(2, PieceSize+100); err == nil {
		t.Fatal("expected out-of-range error")
	}
}

func TestMessageEncodeDecode(t *testing.T) {
	m := Message{MsgType: MsgRequest, Piece: 3}
	enc, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, consumed, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if consumed != len(enc) {
		t.Fatalf("consumed = %d, want %d", consumed, len(enc))
	}
	if got.MsgType != MsgRequest || got.Piece != 3 {
		t.Fatalf("got %+v", got)
	}
}

func TestDecodeDataMessageWithTrailingChunk(t *testing.T) {
	m := Message{MsgType: MsgData, Piece: 0, TotalSize: 42}
	dict, err := m.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	chunk := bytes.Repeat([]byte{0xAB}, 42)
	payload := append(append([]byte{}, dict...), chunk...)

	got, consumed, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.MsgType != MsgData || got.Piece != 0 || got.TotalSize != 42 {
		t.Fatalf("got %+v", got)
	}
	if consumed != len(dict) {
		t.Fatalf("consumed = %d, want %d", consumed, len(dict))
	}
	rest := payload[consumed:]
	if !bytes.Equal(rest, chunk) {
		t.Fatalf("trailing chunk mismatch: got %d bytes", len(rest))
	}
}

func TestFetcherAssemblesInOrder(t *testing.T) {
	total := PieceSize + 10
	f := NewFetcher(total)

	idx, ok := f.NextRequest()
	if !ok || idx != 0 {
		t.Fatalf("NextRequest = %d,%v", idx, ok)
	}
	f.GotPiece(0, bytes.Repeat([]byte{1}, PieceSize))

	idx, ok = f.NextRequest()
	if !ok || idx != 1 {
		t.Fatalf("NextRequest = %d,%v", idx, ok)
	}
	f.GotPiece(1, bytes.Repeat([]byte{2}, 10))

	select {
	case <-f.Done():
	default:
		t.Fatal("expected Done to be closed")
	}

	blob, err, ready := f.Assembled()
	if !ready || err != nil {
		t.Fatalf("Assembled: ready=%v err=%v", ready, err)
	}
	if len(blob) != total {
		t.Fatalf("len(blob) = %d, want %d", len(blob), total)
	}
	if blob[0] != 1 || blob[PieceSize] != 2 {
		t.Fatalf("assembled bytes out of order")
	}
}

func TestFetcherFail(t *testing.T) {
	f := NewFetcher(PieceSize)
	f.Fail(ErrRejected)
	<-f.Done()
	_, err, ready := f.Assembled()
	if !ready || err != ErrRejected {
		t.Fatalf("Assembled after Fail: ready=%v err=%v", ready, err)
	}
}
