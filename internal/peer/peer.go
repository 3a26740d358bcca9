// Package peer models discovered remote hosts and the shared, mutex-guarded
// table DiscoveryService maintains over them (§3, §5, §9).
//
// Peers are keyed by (address, protocol) rather than address alone, since
// a single host can be reachable over both Dukto and NitroShare at once.
package peer

import (
	"sync"
	"time"
)

// Protocol tags which wire dialect a Peer speaks.
type Protocol string

const (
	Dukto      Protocol = "Dukto"
	NitroShare Protocol = "NitroShare"
)

// Peer is the identity of a remote host observed via discovery.
type Peer struct {
	Address   string
	Port      int
	Signature string
	Protocol  Protocol
	LastSeen  time.Time
}

// Key uniquely identifies a Peer by (address, protocol), the invariant
// §3 requires.
type Key struct {
	Address  string
	Protocol Protocol
}

func (p Peer) Key() Key { return Key{Address: p.Address, Protocol: p.Protocol} }

// EventKind distinguishes the two PeerEvent variants emitted by
// DiscoveryService.
type EventKind int

const (
	Added EventKind = iota
	Removed
)

// Event is the tagged record onPeerAdded/onPeerRemoved actually carry,
// modeled as a discriminated struct per §9 rather than two
// free callback signatures.
type Event struct {
	Kind EventKind
	Peer Peer
}

// Table is the shared mutable peer table: the only piece of shared state
// in the whole system (§5). All mutation happens under mu, matching the
// teacher's single-mutex-guarded-map discipline.
type Table struct {
	mu    sync.Mutex
	peers map[Key]Peer
}

// NewTable returns an empty peer table.
func NewTable() *Table {
	return &Table{peers: make(map[Key]Peer)}
}

// Upsert adds a new peer or refreshes an existing one's LastSeen/Port/
// Signature. It reports whether this is the first time (address, protocol)
// was seen — callers use that to decide whether to emit an Added event,
// per the invariant that duplicate hellos never re-emit Added.
func (t *Table) Upsert(p Peer) (isNew bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := p.Key()
	_, existed := t.peers[k]
	t.peers[k] = p
	return !existed
}

// Remove deletes a peer if present, reporting whether it was present. A
// goodbye for an address never seen is therefore a no-op, per invariant.
func (t *Table) Remove(k Key) (existed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, existed = t.peers[k]
	delete(t.peers, k)
	return existed
}

// Snapshot returns a point-in-time copy of every known peer.
func (t *Table) Snapshot() []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Peer, 0, len(t.peers))
	for _, p := range t.peers {
		out = append(out, p)
	}
	return out
}

// EvictIdle removes and returns every peer whose LastSeen is older than
// olderThan, the optional idle-eviction sweep from §9. Not
// required for interoperability; disabled by a zero duration upstream.
func (t *Table) EvictIdle(olderThan time.Duration) []Peer {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := time.Now().Add(-olderThan)
	var evicted []Peer
	for k, p := range t.peers {
		if p.LastSeen.Before(cutoff) {
			evicted = append(evicted, p)
			delete(t.peers, k)
		}
	}
	return evicted
}
