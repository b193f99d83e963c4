// Package dht implements the Mainline DHT node: a UDP socket, the KRPC
// request/response dispatch keyed by transaction id, and the glue
// between the routing table, token store, announce store, bootstrap
// tracker, and iterative lookup. Grounded on
// original_source/bip_dht/src/worker/{workers.rs,bootstrap.rs,refresh.rs}'s
// dispatch loop, reworked from its actor/mailbox model into a single
// reader goroutine plus a pending-transaction map guarded by a mutex,
// the same shape a UDP tracker client uses to dispatch responses by
// transaction id.
package dht

import (
	"context"
	cryptorand "crypto/rand"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rcrowley/go-metrics"

	"github.com/ozkant/bitswarm/bt"
	"github.com/ozkant/bitswarm/dht/announce"
	"github.com/ozkant/bitswarm/dht/bootstrap"
	"github.com/ozkant/bitswarm/dht/krpc"
	"github.com/ozkant/bitswarm/dht/lookup"
	"github.com/ozkant/bitswarm/dht/routing"
	"github.com/ozkant/bitswarm/dht/token"
	"github.com/ozkant/bitswarm/log"
)

// queryTimeout bounds how long a query waits for a response before its
// pending entry is dropped and the node is left Questionable/Bad per the
// routing table's own recency derivation.
const queryTimeout = 5 * time.Second

// Config configures a Node.
type Config struct {
	// ID is the local node id. If zero, a random one is generated.
	ID bt.Hash20
	// Port is the UDP port to bind, 0 for an OS-assigned port.
	Port int
	// BootstrapRouters seeds the bootstrap tracker; these addresses are
	// queried first. The routing table does not tell routers apart from
	// other nodes, so a router that answers is inserted like any responder.
	BootstrapRouters []string
}

type pendingQuery struct {
	resp chan *krpc.Message
}

// Node is a running Mainline DHT participant.
type Node struct {
	conn   *net.UDPConn
	localID bt.Hash20

	table    *routing.Table
	tokens   *token.Store
	announces *announce.Store
	boot     *bootstrap.Tracker

	log log.Logger

	mu      sync.Mutex
	pending map[string]*pendingQuery
	txIDs   *bt.LocallyShuffledIDs[uint16]

	queryRate metrics.EWMA

	closeOnce sync.Once
	closed    chan struct{}
}

// QueryRate returns the node's 1-minute moving average of outgoing
// queries per second.
func (n *Node) QueryRate() float64 { return n.queryRate.Rate() }

func (n *Node) tickMetrics(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-n.closed:
			return
		case <-ticker.C:
			n.queryRate.Tick()
		}
	}
}

// New binds a UDP socket and returns a Node ready to Serve.
func New(cfg Config) (*Node, error) {
	id := cfg.ID
	if id == (bt.Hash20{}) {
		if _, err := cryptorand.Read(id[:]); err != nil {
			return nil, fmt.Errorf("dht: generating local id: %w", err)
		}
	}

	conn, err := net.ListenUDP("udp", &net.UDPAddr{Port: cfg.Port})
	if err != nil {
		return nil, fmt.Errorf("dht: listening: %w", err)
	}

	n := &Node{
		conn:      conn,
		localID:   id,
		table:     routing.NewTable(id),
		tokens:    token.New(),
		announces: announce.New(),
		boot:      bootstrap.NewTracker(id, cfg.BootstrapRouters),
		log:       log.New("dht"),
		pending:   make(map[string]*pendingQuery),
		txIDs:     bt.NewLocallyShuffledIDs[uint16](time.Now().UnixNano()),
		queryRate: metrics.NewEWMA1(),
		closed:    make(chan struct{}),
	}
	go n.tickMetrics(context.Background())
	return n, nil
}

// LocalID returns the node's own id.
func (n *Node) LocalID() bt.Hash20 { return n.localID }

// Addr returns the bound local UDP address.
func (n *Node) Addr() *net.UDPAddr { return n.conn.LocalAddr().(*net.UDPAddr) }

// Close shuts down the socket and unblocks Serve.
func (n *Node) Close() error {
	n.closeOnce.Do(func() { close(n.closed) })
	return n.conn.Close()
}

// Serve runs the read loop until Close is called or ctx is done. It
// should be run in its own goroutine.
func (n *Node) Serve(ctx context.Context) error {
	go func() {
		select {
		case <-ctx.Done():
			n.Close()
		case <-n.closed:
		}
	}()

	buf := make([]byte, 2048)
	for {
		nr, addr, err := n.conn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-n.closed:
				return nil
			default:
			}
			return err
		}
		msg, err := krpc.Decode(buf[:nr])
		if err != nil {
			n.log.Debugln("dropping malformed packet from", addr, ":", err)
			continue
		}
		n.handle(msg, addr)
	}
}

func (n *Node) handle(msg *krpc.Message, addr *net.UDPAddr) {
	switch msg.Y {
	case "r", "e":
		n.dispatchResponse(msg, addr)
	case "q":
		n.handleQuery(msg, addr)
	}

	if id, ok := msg.NodeID(); ok && msg.Y == "r" {
		now := time.Now()
		node := routing.NewNode(id, addr)
		node.RemoteResponse(now)
		n.table.Insert(node, now)
	}
}

func (n *Node) dispatchResponse(msg *krpc.Message, addr *net.UDPAddr) {
	n.mu.Lock()
	p, ok := n.pending[msg.T]
	if ok {
		delete(n.pending, msg.T)
	}
	n.mu.Unlock()
	if !ok {
		return
	}
	select {
	case p.resp <- msg:
	default:
	}
}

func (n *Node) handleQuery(msg *krpc.Message, addr *net.UDPAddr) {
	if msg.A == nil {
		return
	}
	now := time.Now()
	if id, ok := msg.NodeID(); ok {
		rn := routing.NewNode(id, addr)
		rn.RemoteRequest(now)
		n.table.Insert(rn, now)
	}

	var reply *krpc.Message
	switch msg.Q {
	case krpc.QueryPing:
		reply = krpc.NewReply(msg.T, n.localID)
	case krpc.QueryFindNode:
		target, ok := stringToHash(msg.A.Target)
		if !ok {
			return
		}
		nodes := n.compactClosest(target, now)
		reply = krpc.NewFindNodeReply(msg.T, n.localID, nodes)
	case krpc.QueryGetPeers:
		infoHash, ok := stringToHash(msg.A.InfoHash)
		if !ok {
			return
		}
		tok := n.tokens.Checkout(addr.IP)
		peers := n.announces.Find(infoHash)
		if len(peers) > 0 {
			values := make([]string, 0, len(peers))
			for _, p := range peers {
				v, err := krpc.EncodeValue(p)
				if err == nil {
					values = append(values, v)
				}
			}
			reply = krpc.NewGetPeersReply(msg.T, n.localID, string(tok[:]), values, nil)
		} else {
			nodes := n.compactClosest(infoHash, now)
			reply = krpc.NewGetPeersReply(msg.T, n.localID, string(tok[:]), nil, nodes)
		}
	case krpc.QueryAnnouncePeer:
		infoHash, ok := stringToHash(msg.A.InfoHash)
		if !ok {
			return
		}
		var tok token.Token
		copy(tok[:], msg.A.Token)
		if !n.tokens.Checkin(addr.IP, tok) {
			n.send(krpc.NewError(msg.T, 203, "bad token"), addr)
			return
		}
		n.announces.Add(infoHash, &net.UDPAddr{IP: addr.IP, Port: msg.A.Port})
		reply = krpc.NewReply(msg.T, n.localID)
	default:
		reply = krpc.NewError(msg.T, 204, "method unknown")
	}
	n.send(reply, addr)
}

func (n *Node) compactClosest(target bt.Hash20, now time.Time) []krpc.CompactNode {
	closest := n.table.ClosestNodes(target, 8, now)
	out := make([]krpc.CompactNode, len(closest))
	for i, c := range closest {
		out[i] = krpc.CompactNode{ID: c.ID, Addr: c.Addr}
	}
	return out
}

func (n *Node) send(msg *krpc.Message, addr *net.UDPAddr) error {
	data, err := msg.Encode()
	if err != nil {
		return err
	}
	_, err = n.conn.WriteToUDP(data, addr)
	return err
}

// query sends msg to addr and blocks until a reply arrives or ctx expires.
func (n *Node) query(ctx context.Context, msg *krpc.Message, addr *net.UDPAddr) (*krpc.Message, error) {
	p := &pendingQuery{resp: make(chan *krpc.Message, 1)}
	n.mu.Lock()
	n.pending[msg.T] = p
	n.mu.Unlock()
	defer func() {
		n.mu.Lock()
		delete(n.pending, msg.T)
		n.mu.Unlock()
	}()

	if err := n.send(msg, addr); err != nil {
		return nil, err
	}
	n.queryRate.Update(1)

	select {
	case r := <-p.resp:
		if r.E != nil {
			return nil, fmt.Errorf("dht: remote error %d: %s", r.E.Code, r.E.Message)
		}
		return r, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (n *Node) nextTxID() string {
	id := n.txIDs.Generate()
	return string([]byte{byte(id >> 8), byte(id)})
}

// Ping sends a ping query to addr.
func (n *Node) Ping(ctx context.Context, addr *net.UDPAddr) (bt.Hash20, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	msg := krpc.NewPing(n.nextTxID(), n.localID)
	r, err := n.query(ctx, msg, addr)
	if err != nil {
		return bt.Hash20{}, err
	}
	id, ok := r.NodeID()
	if !ok {
		return bt.Hash20{}, fmt.Errorf("dht: ping reply missing id")
	}
	return id, nil
}

// FindNode sends a find_node query to addr and decodes the returned
// compact node list.
func (n *Node) FindNode(ctx context.Context, addr *net.UDPAddr, target bt.Hash20) ([]krpc.CompactNode, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	msg := krpc.NewFindNode(n.nextTxID(), n.localID, target)
	r, err := n.query(ctx, msg, addr)
	if err != nil {
		return nil, err
	}
	if r.R == nil || r.R.Nodes == "" {
		return nil, nil
	}
	return krpc.DecodeNodes(r.R.Nodes)
}

// GetPeers queries addr for infoHash, returning the lookup.Response
// shape the lookup package consumes directly.
func (n *Node) GetPeers(ctx context.Context, addr *net.UDPAddr, infoHash bt.Hash20) lookup.Response {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	msg := krpc.NewGetPeers(n.nextTxID(), n.localID, infoHash)
	r, err := n.query(ctx, msg, addr)
	if err != nil || r.R == nil {
		return lookup.Response{Failed: true}
	}

	resp := lookup.Response{Token: r.R.Token}
	if len(r.R.Values) > 0 {
		if values, err := krpc.DecodeValues(r.R.Values); err == nil {
			resp.Values = values
		}
	}
	if r.R.Nodes != "" {
		if nodes, err := krpc.DecodeNodes(r.R.Nodes); err == nil {
			resp.Nodes = make([]lookup.Candidate, len(nodes))
			for i, cn := range nodes {
				resp.Nodes[i] = lookup.Candidate{ID: cn.ID, Addr: cn.Addr}
			}
		}
	}
	return resp
}

// AnnouncePeer announces this node as a peer for infoHash to addr, using
// a token obtained from a prior GetPeers call to that same address.
func (n *Node) AnnouncePeer(ctx context.Context, addr *net.UDPAddr, infoHash bt.Hash20, port int, tok string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()
	msg := krpc.NewAnnouncePeer(n.nextTxID(), n.localID, infoHash, port, tok)
	r, err := n.query(ctx, msg, addr)
	if err != nil {
		return err
	}
	if r.E != nil {
		return fmt.Errorf("dht: announce_peer rejected: %s", r.E.Message)
	}
	return nil
}

func stringToHash(s string) (bt.Hash20, bool) {
	var h bt.Hash20
	if len(s) != 20 {
		return h, false
	}
	copy(h[:], s)
	return h, true
}
