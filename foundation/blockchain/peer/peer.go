// Package peer maintains the peer related information such as the set
// of know peers and their status, and the messenger nodes use to talk.
package peer

import (
	"slices"
	"strings"
	"sync"
)

// nodeRoutes is the route group of the private node API every peer serves.
const nodeRoutes = "/v1/node"

// Peer represents information about a Node in the network.
type Peer struct {
	Host string `json:"host" validate:"required"`
}

// New constructs a peer from a host, dropping any scheme or trailing slash
// so the same node always maps to the same set entry.
func New(host string) Peer {
	host = strings.TrimSpace(host)
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimSuffix(host, "/")

	return Peer{
		Host: host,
	}
}

// Match validates if the specified host matches this node.
func (p Peer) Match(host string) bool {
	return p.Host == New(host).Host
}

// URL returns the address of a private node route on this peer.
func (p Peer) URL(route string) string {
	return "http://" + p.Host + nodeRoutes + route
}

// =============================================================================

// PeerStatus is what a node reports about its chain: the tip it holds, the
// MAIN limit it mines under and the peers it knows.
type PeerStatus struct {
	LatestBlockHash string `json:"latest_block_hash"`
	LatestBlockID   int64  `json:"latest_block_id"`
	Limit           string `json:"limit,omitempty"`
	KnownPeers      []Peer `json:"known_peers"`
}

// Ahead reports whether the peer holds blocks past the local height.
func (ps PeerStatus) Ahead(localID int64) bool {
	return ps.LatestBlockID > localID
}

// =============================================================================

// PeerSet is the set of nodes this node broadcasts to and syncs from.
type PeerSet struct {
	mu  sync.RWMutex
	set map[Peer]struct{}
}

// NewPeerSet constructs a peer set seeded with the hosts.
func NewPeerSet(hosts ...string) *PeerSet {
	ps := PeerSet{
		set: make(map[Peer]struct{}, len(hosts)),
	}

	for _, host := range hosts {
		if p := New(host); p.Host != "" {
			ps.set[p] = struct{}{}
		}
	}

	return &ps
}

// Add adds a new node to the set. It reports false when the node was
// already known.
func (ps *PeerSet) Add(peer Peer) bool {
	peer = New(peer.Host)
	if peer.Host == "" {
		return false
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if _, exists := ps.set[peer]; exists {
		return false
	}

	ps.set[peer] = struct{}{}
	return true
}

// Remove removes a node from the set.
func (ps *PeerSet) Remove(peer Peer) {
	ps.mu.Lock()
	defer ps.mu.Unlock()

	delete(ps.set, New(peer.Host))
}

// Len returns the number of known peers.
func (ps *PeerSet) Len() int {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	return len(ps.set)
}

// Copy returns the known peers other than host, ordered by host so every
// sync pass visits them in the same order.
func (ps *PeerSet) Copy(host string) []Peer {
	ps.mu.RLock()
	defer ps.mu.RUnlock()

	peers := make([]Peer, 0, len(ps.set))
	for peer := range ps.set {
		if !peer.Match(host) {
			peers = append(peers, peer)
		}
	}

	slices.SortFunc(peers, func(a, b Peer) int {
		return strings.Compare(a.Host, b.Host)
	})

	return peers
}
