package handshake

import (
	"net"
	"sync"

	"github.com/ozkant/bitswarm/bt"
)

// Decision is a filter's answer to one of its five queries.
type Decision int

const (
	// Pass means the filter has no opinion.
	Pass Decision = iota
	// Block rejects the connection, unless overridden by an Allow from
	// another filter.
	Block
	// NeedData defers judgement: the filter was asked before the relevant
	// piece of data was available and wants to be re-invoked once it is.
	NeedData
	// Allow whitelist-overrides a Block from any other filter.
	Allow
)

// Filter answers five queries during the handshake. Any field may be
// called with the zero value of its argument type before that piece of
// data is available, in which case it should return NeedData.
type Filter interface {
	DecideAddress(addr *net.TCPAddr) Decision
	DecideProtocol(p *Protocol) Decision
	DecideExtensions(e *Extensions) Decision
	DecideInfoHash(ih *bt.Hash20) Decision
	DecidePeerID(id *bt.Hash20) Decision
}

// FilterList is a thread-safe, insertion-unique collection of filters.
// Filters are assigned a monotonically increasing id on Add so they remain
// removable without requiring value-equality comparison or a downcast,
// per the DESIGN NOTES' guidance.
type FilterList struct {
	mu      sync.RWMutex
	nextID  uint64
	filters map[uint64]Filter
}

// NewFilterList returns an empty filter list.
func NewFilterList() *FilterList {
	return &FilterList{filters: make(map[uint64]Filter)}
}

// Add registers a filter and returns an id that can later be passed to
// Remove.
func (l *FilterList) Add(f Filter) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	id := l.nextID
	l.nextID++
	l.filters[id] = f
	return id
}

// Remove unregisters a previously added filter. It is a no-op if id is not
// present.
func (l *FilterList) Remove(id uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.filters, id)
}

// snapshot returns the currently registered filters without holding the
// lock while they are invoked.
func (l *FilterList) snapshot() []Filter {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Filter, 0, len(l.filters))
	for _, f := range l.filters {
		out = append(out, f)
	}
	return out
}

// decideAll runs query across every registered filter and combines the
// results: Allow overrides any Block; otherwise a single Block wins; a
// NeedData from any filter means the caller should defer and re-invoke once
// the missing data is available (unless an Allow is already present).
func decideAll(filters []Filter, query func(Filter) Decision) Decision {
	sawBlock := false
	sawNeedData := false
	for _, f := range filters {
		switch query(f) {
		case Block:
			sawBlock = true
		case Allow:
			return Allow
		case NeedData:
			sawNeedData = true
		}
	}
	if sawNeedData {
		return NeedData
	}
	if sawBlock {
		return Block
	}
	return Pass
}

// DecideAddress runs every filter's address query.
func (l *FilterList) DecideAddress(addr *net.TCPAddr) Decision {
	return decideAll(l.snapshot(), func(f Filter) Decision { return f.DecideAddress(addr) })
}

// DecideProtocol runs every filter's protocol query.
func (l *FilterList) DecideProtocol(p *Protocol) Decision {
	return decideAll(l.snapshot(), func(f Filter) Decision { return f.DecideProtocol(p) })
}

// DecideExtensions runs every filter's extensions query.
func (l *FilterList) DecideExtensions(e *Extensions) Decision {
	return decideAll(l.snapshot(), func(f Filter) Decision { return f.DecideExtensions(e) })
}

// DecideInfoHash runs every filter's info-hash query.
func (l *FilterList) DecideInfoHash(ih *bt.Hash20) Decision {
	return decideAll(l.snapshot(), func(f Filter) Decision { return f.DecideInfoHash(ih) })
}

// DecidePeerID runs every filter's peer-id query.
func (l *FilterList) DecidePeerID(id *bt.Hash20) Decision {
	return decideAll(l.snapshot(), func(f Filter) Decision { return f.DecidePeerID(id) })
}

// Admit reports whether the combined decisions across address, protocol,
// extensions, info hash and peer id admit the connection: admitted iff
// max(decisions) != Block, where Allow always wins over Block.
func Admit(addr *net.TCPAddr, p *Protocol, e *Extensions, ih *bt.Hash20, id *bt.Hash20, l *FilterList) bool {
	decisions := []Decision{
		l.DecideAddress(addr),
		l.DecideProtocol(p),
		l.DecideExtensions(e),
		l.DecideInfoHash(ih),
		l.DecidePeerID(id),
	}
	blocked := false
	for _, d := range decisions {
		if d == Allow {
			return true
		}
		if d == Block {
			blocked = true
		}
	}
	return !blocked
}
