package peer

import (
	"net"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/ozkant/bitswarm/wire"
)

type outboundMessage struct {
	msg           wire.Message
	correlationID uint64
}

// session is the per-peer task: it merges an outgoing-message channel with
// the peer's incoming stream, behind two independent timers (send
// heartbeat, receive liveness).
type session struct {
	info Info
	conn net.Conn
	cfg  Config

	outbox chan outboundMessage
	events chan<- Event

	closeOnce sync.Once
	closeC    chan struct{}
	closedC   chan struct{}

	// downloadSpeed and uploadSpeed track piece-data throughput only,
	// not protocol overhead, ticked once per rateTickInterval.
	downloadSpeed metrics.EWMA
	uploadSpeed   metrics.EWMA
}

// rateTickInterval is how often the session's EWMA rate counters decay.
const rateTickInterval = 5 * time.Second

func newSession(info Info, conn net.Conn, cfg Config, events chan<- Event) *session {
	return &session{
		info:          info,
		conn:          conn,
		cfg:           cfg,
		outbox:        make(chan outboundMessage, cfg.OutboxCapacity),
		events:        events,
		closeC:        make(chan struct{}),
		closedC:       make(chan struct{}),
		downloadSpeed: metrics.NewEWMA1(),
		uploadSpeed:   metrics.NewEWMA1(),
	}
}

// rates returns the session's 1-minute moving average piece-data
// throughput, in bytes/second.
func (s *session) rates() (download, upload float64) {
	return s.downloadSpeed.Rate(), s.uploadSpeed.Rate()
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.closeC)
	})
	<-s.closedC
}

// run is the session's event loop, executed on its own goroutine.
func (s *session) run(m *Manager) {
	defer close(s.closedC)
	defer s.conn.Close()

	incoming := make(chan interface{}, 16)
	readErrC := make(chan error, 1)
	go s.readLoop(incoming, readErrC)

	sendTimer := time.NewTimer(s.cfg.HeartbeatSendInterval)
	defer sendTimer.Stop()
	recvTimer := time.NewTimer(s.cfg.HeartbeatReceiveTimeout)
	defer recvTimer.Stop()
	rateTicker := time.NewTicker(rateTickInterval)
	defer rateTicker.Stop()

	var terminal Event
	terminalSet := false

	finish := func(kind EventKind, err error) {
		if terminalSet {
			return
		}
		terminalSet = true
		terminal = Event{Kind: kind, Info: s.info, Err: err}
	}

loop:
	for {
		select {
		case <-s.closeC:
			finish(PeerRemoved, nil)
			break loop

		case out, ok := <-s.outbox:
			if !ok {
				continue
			}
			if err := out.msg.Encode(s.conn); err != nil {
				finish(PeerError, err)
				break loop
			}
			if pm, ok := out.msg.(wire.PieceMessage); ok {
				s.uploadSpeed.Update(int64(len(pm.Data)))
			}
			resetTimer(sendTimer, s.cfg.HeartbeatSendInterval)
			s.events <- Event{Kind: SentMessage, Info: s.info, CorrelationID: out.correlationID}

		case <-rateTicker.C:
			s.downloadSpeed.Tick()
			s.uploadSpeed.Tick()

		case <-sendTimer.C:
			if err := (wire.KeepAliveMessage{}).Encode(s.conn); err != nil {
				finish(PeerError, err)
				break loop
			}
			sendTimer.Reset(s.cfg.HeartbeatSendInterval)

		case <-recvTimer.C:
			finish(PeerDisconnect, nil)
			break loop

		case msg, ok := <-incoming:
			if !ok {
				continue
			}
			resetTimer(recvTimer, s.cfg.HeartbeatReceiveTimeout)
			if _, isKeepAlive := msg.(wire.KeepAliveMessage); isKeepAlive {
				// KeepAlive resets the receive timer but is never
				// delivered upward.
				continue
			}
			if pm, ok := msg.(wire.PieceMessage); ok {
				s.downloadSpeed.Update(int64(len(pm.Data)))
			}
			s.events <- Event{Kind: ReceivedMessage, Info: s.info, Message: msg}

		case err := <-readErrC:
			finish(PeerDisconnect, err)
			break loop
		}
	}

	if terminalSet {
		s.events <- terminal
	}
	m.removeSession(s.info)
}

func (s *session) readLoop(out chan<- interface{}, errC chan<- error) {
	dec := wire.NewDecoder(s.conn)
	for {
		msg, err := dec.Decode()
		if err != nil {
			errC <- err
			return
		}
		select {
		case out <- msg:
		case <-s.closeC:
			return
		}
	}
}

func resetTimer(t *time.Timer, d time.Duration) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
	t.Reset(d)
}
