package handshake

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/ozkant/bitswarm/bt"
	"github.com/ozkant/bitswarm/log"
)

// DefaultTimeout is the total handshake timeout both sides enforce.
const DefaultTimeout = 1500 * time.Millisecond

var (
	// ErrFilterBlocked is returned when the filter chain rejects a peer.
	// It is silent at the transport layer: callers drop the connection
	// without retry.
	ErrFilterBlocked = errors.New("handshake: blocked by filter")
	// ErrInfoHashMismatch is returned by Initiate when the responder
	// echoes a different info hash than requested.
	ErrInfoHashMismatch = errors.New("handshake: info hash mismatch")
	// ErrProtocolMismatch is returned by Initiate when the responder
	// speaks a different protocol than requested.
	ErrProtocolMismatch = errors.New("handshake: protocol mismatch")
	// ErrPeerIDMismatch is returned when an expected peer id was supplied
	// and the responder's id does not match it.
	ErrPeerIDMismatch = errors.New("handshake: peer id mismatch")
	// ErrOwnConnection is returned when the remote peer id echoes our own,
	// meaning the connection looped back to ourselves (e.g. via a NAT
	// hairpin or a self-announce).
	ErrOwnConnection = errors.New("handshake: dropped own connection")
)

// CompleteSession is what the engine emits to the peer session manager on
// a successful handshake.
type CompleteSession struct {
	Protocol   Protocol
	Extensions Extensions
	InfoHash   bt.InfoHash
	PeerID     bt.PeerId
	Addr       *net.TCPAddr
	Conn       net.Conn
}

// Engine performs handshakes and applies the filter chain.
type Engine struct {
	Filters    *FilterList
	Extensions Extensions
	Timeout    time.Duration
	Log        log.Logger
}

// NewEngine returns an Engine with DefaultTimeout and an empty filter
// chain.
func NewEngine(extensions Extensions, l log.Logger) *Engine {
	return &Engine{
		Filters:    NewFilterList(),
		Extensions: extensions,
		Timeout:    DefaultTimeout,
		Log:        l,
	}
}

func (e *Engine) timeout() time.Duration {
	if e.Timeout <= 0 {
		return DefaultTimeout
	}
	return e.Timeout
}

// Initiate implements the WriteHS -> ReadLen -> ReadHSBody -> Filter -> Done
// state machine for an outgoing connection.
func (e *Engine) Initiate(ctx context.Context, conn net.Conn, infoHash bt.InfoHash, ourPeerID bt.PeerId, expectedPeerID *bt.PeerId) (CompleteSession, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()
	type result struct {
		sess CompleteSession
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sess, err := e.initiate(conn, infoHash, ourPeerID, expectedPeerID)
		done <- result{sess, err}
	}()
	select {
	case <-ctx.Done():
		conn.Close()
		return CompleteSession{}, ctx.Err()
	case r := <-done:
		return r.sess, r.err
	}
}

func (e *Engine) initiate(conn net.Conn, infoHash bt.InfoHash, ourPeerID bt.PeerId, expectedPeerID *bt.PeerId) (CompleteSession, error) {
	out := Message{
		Protocol:   BitTorrentProtocol,
		Extensions: e.Extensions,
		InfoHash:   infoHash,
		PeerID:     ourPeerID,
	}
	if _, err := out.WriteTo(conn); err != nil {
		return CompleteSession{}, err
	}
	in, err := ReadFrom(conn)
	if err != nil {
		return CompleteSession{}, err
	}
	if !in.Protocol.Equal(BitTorrentProtocol) {
		return CompleteSession{}, ErrProtocolMismatch
	}
	if in.InfoHash != infoHash {
		return CompleteSession{}, ErrInfoHashMismatch
	}
	if in.PeerID == ourPeerID {
		return CompleteSession{}, ErrOwnConnection
	}
	if expectedPeerID != nil && in.PeerID != *expectedPeerID {
		return CompleteSession{}, ErrPeerIDMismatch
	}
	addr, _ := conn.RemoteAddr().(*net.TCPAddr)
	if !Admit(addr, &in.Protocol, &in.Extensions, &in.InfoHash, &in.PeerID, e.Filters) {
		return CompleteSession{}, ErrFilterBlocked
	}
	return CompleteSession{
		Protocol:   in.Protocol,
		Extensions: Union(e.Extensions, in.Extensions),
		InfoHash:   infoHash,
		PeerID:     in.PeerID,
		Addr:       addr,
		Conn:       conn,
	}, nil
}

// AcceptFunc is asked whether infoHash is one the local side is willing to
// serve; it stands in for the "getSKey"-style lookup the teacher performs
// before completing an incoming handshake.
type AcceptFunc func(ih bt.InfoHash) (accept bool)

// Accept implements the ReadLen -> ReadHSBody -> Filter -> WriteHS -> Done
// state machine for an incoming connection.
func (e *Engine) Accept(ctx context.Context, conn net.Conn, ourPeerID bt.PeerId, acceptInfoHash AcceptFunc) (CompleteSession, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()
	type result struct {
		sess CompleteSession
		err  error
	}
	done := make(chan result, 1)
	go func() {
		sess, err := e.accept(conn, ourPeerID, acceptInfoHash)
		done <- result{sess, err}
	}()
	select {
	case <-ctx.Done():
		conn.Close()
		return CompleteSession{}, ctx.Err()
	case r := <-done:
		return r.sess, r.err
	}
}

func (e *Engine) accept(conn net.Conn, ourPeerID bt.PeerId, acceptInfoHash AcceptFunc) (CompleteSession, error) {
	in, err := ReadFrom(conn)
	if err != nil {
		return CompleteSession{}, err
	}
	if in.PeerID == ourPeerID {
		return CompleteSession{}, ErrOwnConnection
	}
	addr, _ := conn.RemoteAddr().(*net.TCPAddr)
	if !Admit(addr, &in.Protocol, &in.Extensions, &in.InfoHash, &in.PeerID, e.Filters) {
		return CompleteSession{}, ErrFilterBlocked
	}
	if acceptInfoHash != nil && !acceptInfoHash(in.InfoHash) {
		return CompleteSession{}, fmt.Errorf("handshake: info hash not served: %s", in.InfoHash)
	}
	out := Message{
		Protocol:   in.Protocol,
		Extensions: e.Extensions,
		InfoHash:   in.InfoHash,
		PeerID:     ourPeerID,
	}
	if _, err := out.WriteTo(conn); err != nil {
		return CompleteSession{}, err
	}
	return CompleteSession{
		Protocol:   in.Protocol,
		Extensions: Union(e.Extensions, in.Extensions),
		InfoHash:   in.InfoHash,
		PeerID:     in.PeerID,
		Addr:       addr,
		Conn:       conn,
	}, nil
}
