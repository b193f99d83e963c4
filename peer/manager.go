// Package peer owns each established wire session: it frames messages
// through the wire codec, detects dead peers with two independent
// heartbeat timers, and fans messages in and out to the rest of the
// system. Grounded on the teacher's torrent/internal/
// peerconn.Peer (reader/writer goroutine fan-in over closeC/closedC) and
// session/torrent.go's per-peer rate counters.
package peer

import (
	"errors"
	"net"
	"sync"
	"time"

	"github.com/ozkant/bitswarm/bt"
	"github.com/ozkant/bitswarm/handshake"
	"github.com/ozkant/bitswarm/log"
	"github.com/ozkant/bitswarm/wire"
)

// Info is the unique key used throughout the session layer.
type Info struct {
	Addr     *net.TCPAddr
	PeerID   bt.PeerId
	InfoHash bt.InfoHash
}

var (
	// ErrAlreadyPresent is returned by AddPeer for an already-registered Info.
	ErrAlreadyPresent = errors.New("peer: already present")
	// ErrUnknownPeer is returned by SendMessage/RemovePeer for an Info the
	// manager has no session for.
	ErrUnknownPeer = errors.New("peer: unknown peer")
	// ErrManagerFull is returned by AddPeer when the configured peer cap
	// has been reached.
	ErrManagerFull = errors.New("peer: manager at capacity")
)

// Event is the union of events the manager emits on its source side.
type Event struct {
	Kind          EventKind
	Info          Info
	CorrelationID uint64
	Message       interface{}
	Err           error
}

// EventKind discriminates Event.
type EventKind int

const (
	PeerAdded EventKind = iota
	PeerRemoved
	SentMessage
	ReceivedMessage
	PeerDisconnect
	PeerError
)

// Config bundles the two heartbeat timers and the peer cap.
type Config struct {
	HeartbeatSendInterval   time.Duration
	HeartbeatReceiveTimeout time.Duration
	MaxPeers                int
	OutboxCapacity          int
}

// DefaultConfig holds conservative heartbeat timings and peer limits.
var DefaultConfig = Config{
	HeartbeatSendInterval:   2 * time.Minute,
	HeartbeatReceiveTimeout: 4 * time.Minute,
	MaxPeers:                500,
	OutboxCapacity:          64,
}

// Manager owns every established session.
type Manager struct {
	cfg Config
	log log.Logger

	mu       sync.Mutex
	sessions map[Info]*session

	events chan Event

	// OnPeerAdded fires synchronously from AddPeer, before PeerAdded is
	// published. OnPeerRemoved fires once a session has stopped (from
	// RemovePeer, or when the session ends on its own), after its terminal
	// event has been published. They are hook points a peer-exchange extension can
	// attach to without this manager needing to know anything about PEX
	// itself; piece selection and peer discovery stay a collaborator's
	// concern, not this manager's.
	OnPeerAdded   func(Info)
	OnPeerRemoved func(Info)
}

// NewManager creates a Manager. Call Events to obtain the event stream, and
// Close to shut every peer task down.
func NewManager(cfg Config, l log.Logger) *Manager {
	if cfg.HeartbeatSendInterval <= 0 {
		cfg = DefaultConfig
	}
	return &Manager{
		cfg:      cfg,
		log:      l,
		sessions: make(map[Info]*session),
		events:   make(chan Event, 256),
	}
}

// Events returns the manager's single event stream.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// AddPeer registers a completed handshake session and starts its per-peer
// task. AddPeer is rejected for an already-present Info.
func (m *Manager) AddPeer(cs handshake.CompleteSession) error {
	info := Info{Addr: cs.Addr, PeerID: cs.PeerID, InfoHash: cs.InfoHash}
	m.mu.Lock()
	if _, ok := m.sessions[info]; ok {
		m.mu.Unlock()
		return ErrAlreadyPresent
	}
	if m.cfg.MaxPeers > 0 && len(m.sessions) >= m.cfg.MaxPeers {
		m.mu.Unlock()
		return ErrManagerFull
	}
	s := newSession(info, cs.Conn, m.cfg, m.events)
	m.sessions[info] = s
	m.mu.Unlock()

	if m.OnPeerAdded != nil {
		m.OnPeerAdded(info)
	}
	m.emit(Event{Kind: PeerAdded, Info: info})
	go s.run(m)
	return nil
}

// RemovePeer tears down an established session. It is rejected for an
// unknown Info.
func (m *Manager) RemovePeer(info Info) error {
	m.mu.Lock()
	s, ok := m.sessions[info]
	if !ok {
		m.mu.Unlock()
		return ErrUnknownPeer
	}
	delete(m.sessions, info)
	m.mu.Unlock()
	s.close()
	if m.OnPeerRemoved != nil {
		m.OnPeerRemoved(info)
	}
	return nil
}

// SendMessage queues msg for delivery to info's session. It is rejected for
// an unknown Info; it may block (backpressure) if the outbound channel is
// full.
func (m *Manager) SendMessage(info Info, correlationID uint64, msg wire.Message) error {
	m.mu.Lock()
	s, ok := m.sessions[info]
	m.mu.Unlock()
	if !ok {
		return ErrUnknownPeer
	}
	s.outbox <- outboundMessage{msg: msg, correlationID: correlationID}
	return nil
}

// Rates returns info's session's 1-minute moving average download and
// upload throughput, in bytes/second, counting piece data only.
func (m *Manager) Rates(info Info) (download, upload float64, err error) {
	m.mu.Lock()
	s, ok := m.sessions[info]
	m.mu.Unlock()
	if !ok {
		return 0, 0, ErrUnknownPeer
	}
	download, upload = s.rates()
	return download, upload, nil
}

// Count returns the number of active sessions.
func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close shuts down every peer task. In-flight sends may be lost, but no
// Info is reused until its PeerRemoved has been observed by the caller
// draining Events.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := make([]*session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[Info]*session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}

func (m *Manager) emit(e Event) {
	m.events <- e
}

func (m *Manager) removeSession(info Info) {
	m.mu.Lock()
	_, ok := m.sessions[info]
	delete(m.sessions, info)
	m.mu.Unlock()
	if ok && m.OnPeerRemoved != nil {
		m.OnPeerRemoved(info)
	}
}
