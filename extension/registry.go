package extension

import "sync"

// Listener lets an extension contribute to the outgoing handshake dict and
// observe updates to the peer's dict through the pluggable extended
// listener registry.
type Listener interface {
	// Name is the key this extension registers itself under in the "m" map.
	Name() string
	// BuildOutgoing lets the extension annotate the outgoing Handshake
	// before it is sent (e.g. setting MetadataSize).
	BuildOutgoing(h *Handshake)
	// PeerUpdated is called whenever the peer's extended handshake dict
	// changes (first handshake, and any subsequent re-handshake).
	PeerUpdated(peer Handshake)
}

// Registry holds the extensions a session supports and assigns each one a
// local extended-message id.
type Registry struct {
	mu        sync.Mutex
	listeners map[string]Listener
	localIDs  map[string]uint8
	nextID    uint8
}

// NewRegistry returns an empty registry. Local ids start at 1 because 0 is
// reserved for the handshake itself.
func NewRegistry() *Registry {
	return &Registry{
		listeners: make(map[string]Listener),
		localIDs:  make(map[string]uint8),
		nextID:    1,
	}
}

// Register adds a listener under its own name, assigning it the next free
// local extended-message id.
func (r *Registry) Register(l Listener) uint8 {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := l.Name()
	if id, ok := r.localIDs[name]; ok {
		return id
	}
	id := r.nextID
	r.nextID++
	r.listeners[name] = l
	r.localIDs[name] = id
	return id
}

// LocalID returns the local extended-message id assigned to name, if any.
func (r *Registry) LocalID(name string) (uint8, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.localIDs[name]
	return id, ok
}

// NameForID reverse-looks-up which extension owns a local id.
func (r *Registry) NameForID(id uint8) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, lid := range r.localIDs {
		if lid == id {
			return name, true
		}
	}
	return "", false
}

// BuildOutgoing assembles the outgoing Handshake: the "m" map reflects every
// registered extension's local id, then each listener gets a chance to
// annotate further fields.
func (r *Registry) BuildOutgoing(base Handshake) Handshake {
	r.mu.Lock()
	defer r.mu.Unlock()
	if base.M == nil {
		base.M = make(map[string]uint8, len(r.localIDs))
	}
	for name, id := range r.localIDs {
		base.M[name] = id
	}
	for _, l := range r.listeners {
		l.BuildOutgoing(&base)
	}
	return base
}

// Observe fans out an incoming peer Handshake to every registered listener.
func (r *Registry) Observe(peer Handshake) {
	r.mu.Lock()
	listeners := make([]Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		listeners = append(listeners, l)
	}
	r.mu.Unlock()
	for _, l := range listeners {
		l.PeerUpdated(peer)
	}
}
