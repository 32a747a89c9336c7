package registry

import (
	"sync"

	"github.com/RoseWrightdev/sfu-go/internal/id"
)

// PeerRegistry maps a SessionKey to its peer handle. It is generic over
// the peer type so internal/peer can depend on internal/registry without
// a cycle back.
type PeerRegistry[P any] struct {
	mu    sync.RWMutex
	peers map[id.SessionKey]P
}

// NewPeerRegistry creates an empty peer registry.
func NewPeerRegistry[P any]() *PeerRegistry[P] {
	return &PeerRegistry[P]{peers: make(map[id.SessionKey]P)}
}

// Insert registers a peer under key, overwriting any previous entry.
func (p *PeerRegistry[P]) Insert(key id.SessionKey, peer P) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.peers[key] = peer
}

// Get returns the peer for key, if present.
func (p *PeerRegistry[P]) Get(key id.SessionKey) (P, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.peers[key]
	return v, ok
}

// Remove deletes key, returning the removed peer (if any) so the caller
// can run its own cleanup (e.g. closing the media transport).
func (p *PeerRegistry[P]) Remove(key id.SessionKey) (P, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.peers[key]
	if ok {
		delete(p.peers, key)
	}
	return v, ok
}

// Len returns the number of registered peers.
func (p *PeerRegistry[P]) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.peers)
}

// Each calls fn for a snapshot of the current (key, peer) pairs.
func (p *PeerRegistry[P]) Each(fn func(id.SessionKey, P)) {
	p.mu.RLock()
	snapshot := make(map[id.SessionKey]P, len(p.peers))
	for k, v := range p.peers {
		snapshot[k] = v
	}
	p.mu.RUnlock()

	for k, v := range snapshot {
		fn(k, v)
	}
}
