package extension

import (
	"net"
	"testing"
)

type recordingListener struct {
	name     string
	built    []*Handshake
	observed []Handshake
}

func (l *recordingListener) Name() string { return l.name }

func (l *recordingListener) BuildOutgoing(h *Handshake) {
	h.MetadataSize = 1024
	l.built = append(l.built, h)
}

func (l *recordingListener) PeerUpdated(peer Handshake) {
	l.observed = append(l.observed, peer)
}

func TestRegistryAssignsStableIDsStartingAtOne(t *testing.T) {
	r := NewRegistry()
	first := r.Register(&recordingListener{name: "ut_metadata"})
	second := r.Register(&recordingListener{name: "ut_pex"})

	if first != 1 || second != 2 {
		t.Fatalf("expected ids 1 and 2, got %d and %d", first, second)
	}

	// Re-registering the same name returns the id already assigned.
	again := r.Register(&recordingListener{name: "ut_metadata"})
	if again != first {
		t.Fatalf("expected idempotent id for re-registration, got %d", again)
	}
}

func TestRegistryLocalIDAndNameForID(t *testing.T) {
	r := NewRegistry()
	id := r.Register(&recordingListener{name: "ut_metadata"})

	got, ok := r.LocalID("ut_metadata")
	if !ok || got != id {
		t.Fatalf("expected LocalID to return %d, got %d (ok=%v)", id, got, ok)
	}

	name, ok := r.NameForID(id)
	if !ok || name != "ut_metadata" {
		t.Fatalf("expected NameForID to return ut_metadata, got %q (ok=%v)", name, ok)
	}

	if _, ok := r.LocalID("unknown"); ok {
		t.Fatalf("expected LocalID for an unregistered name to report ok=false")
	}
}

func TestRegistryBuildOutgoingAssembliesMAndCallsListeners(t *testing.T) {
	r := NewRegistry()
	l := &recordingListener{name: "ut_metadata"}
	id := r.Register(l)

	h := r.BuildOutgoing(NewHandshake(0, "bitswarm/0.1", nil, 6881, 250))
	if h.M["ut_metadata"] != id {
		t.Fatalf("expected m[ut_metadata]=%d, got %v", id, h.M)
	}
	if h.MetadataSize != 1024 {
		t.Fatalf("expected BuildOutgoing listener to set MetadataSize, got %d", h.MetadataSize)
	}
	if len(l.built) != 1 {
		t.Fatalf("expected listener to be invoked once, got %d", len(l.built))
	}
}

func TestRegistryObserveFansOutToListeners(t *testing.T) {
	r := NewRegistry()
	l := &recordingListener{name: "ut_metadata"}
	r.Register(l)

	peer := Handshake{M: map[string]uint8{"ut_metadata": 3}, V: "peerclient/1.0"}
	r.Observe(peer)

	if len(l.observed) != 1 || l.observed[0].V != "peerclient/1.0" {
		t.Fatalf("expected listener to observe the peer handshake, got %v", l.observed)
	}
}

func TestHandshakeEncodeDecodeRoundTrip(t *testing.T) {
	h := NewHandshake(16384, "bitswarm/0.1", net.ParseIP("203.0.113.7"), 6881, 250)
	h.M["ut_metadata"] = 1

	data, err := h.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := DecodeHandshake(data)
	if err != nil {
		t.Fatalf("DecodeHandshake: %v", err)
	}
	if got.MetadataSize != 16384 {
		t.Fatalf("expected metadata size 16384, got %d", got.MetadataSize)
	}
	if got.YourIP != "203.0.113.7" {
		t.Fatalf("expected yourip to round trip, got %q", got.YourIP)
	}
	if got.M["ut_metadata"] != 1 {
		t.Fatalf("expected m[ut_metadata]=1, got %v", got.M)
	}
}
