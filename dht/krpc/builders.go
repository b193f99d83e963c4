package krpc

import "github.com/ozkant/bitswarm/bt"

func idString(id bt.Hash20) string { return string(id[:]) }

// NewPing builds a ping query.
func NewPing(t string, id bt.Hash20) *Message {
	return &Message{T: t, Y: "q", Q: QueryPing, A: &QueryArgs{ID: idString(id)}}
}

// NewFindNode builds a find_node query.
func NewFindNode(t string, id, target bt.Hash20) *Message {
	return &Message{T: t, Y: "q", Q: QueryFindNode, A: &QueryArgs{ID: idString(id), Target: idString(target)}}
}

// NewGetPeers builds a get_peers query.
func NewGetPeers(t string, id, infoHash bt.Hash20) *Message {
	return &Message{T: t, Y: "q", Q: QueryGetPeers, A: &QueryArgs{ID: idString(id), InfoHash: idString(infoHash)}}
}

// NewAnnouncePeer builds an announce_peer query.
func NewAnnouncePeer(t string, id, infoHash bt.Hash20, port int, token string) *Message {
	return &Message{
		T: t, Y: "q", Q: QueryAnnouncePeer,
		A: &QueryArgs{ID: idString(id), InfoHash: idString(infoHash), Port: port, Token: token},
	}
}

// NewReply builds a bare id-only reply, sufficient for ping and
// announce_peer responses.
func NewReply(t string, id bt.Hash20) *Message {
	return &Message{T: t, Y: "r", R: &ReplyArgs{ID: idString(id)}}
}

// NewFindNodeReply builds a find_node reply.
func NewFindNodeReply(t string, id bt.Hash20, nodes []CompactNode) *Message {
	return &Message{T: t, Y: "r", R: &ReplyArgs{ID: idString(id), Nodes: EncodeNodes(nodes)}}
}

// NewGetPeersReply builds a get_peers reply carrying either values,
// nodes, or both.
func NewGetPeersReply(t string, id bt.Hash20, token string, values []string, nodes []CompactNode) *Message {
	r := &ReplyArgs{ID: idString(id), Token: token, Values: values}
	if len(nodes) > 0 {
		r.Nodes = EncodeNodes(nodes)
	}
	return &Message{T: t, Y: "r", R: r}
}

// NewError builds an error message.
func NewError(t string, code int, message string) *Message {
	return &Message{T: t, Y: "e", E: &Error{Code: code, Message: message}}
}
