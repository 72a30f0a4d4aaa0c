package peers

import (
	"sort"
	"sync"
)

// PeerStore provides access to a list of peers.
type PeerStore interface {
	Peers() (*Peers, error)
	SetPeers([]*Peer) error
}

// Peers is a set of peers indexed by address.
type Peers struct {
	sync.RWMutex
	Sorted    []*Peer
	ByAddress map[string]*Peer
}

/* Constructors */

// NewPeers ...
func NewPeers() *Peers {
	return &Peers{
		ByAddress: make(map[string]*Peer),
	}
}

// NewPeersFromSlice fills the address of every peer from its public key.
// Peers with an invalid key are returned as an error.
func NewPeersFromSlice(source []*Peer) (*Peers, error) {
	peers := NewPeers()

	for _, peer := range source {
		if err := peers.addPeerRaw(peer); err != nil {
			return nil, err
		}
	}

	peers.internalSort()

	return peers, nil
}

/* Add Methods */

// Add a peer without sorting the set.
// Useful for adding a bunch of peers at the same time
// This method is private and is not protected by mutex.
// Handle with care
func (p *Peers) addPeerRaw(peer *Peer) error {
	if err := peer.computeAddress(); err != nil {
		return err
	}
	p.ByAddress[peer.Address] = peer
	return nil
}

// AddPeer ...
func (p *Peers) AddPeer(peer *Peer) error {
	p.Lock()
	defer p.Unlock()

	if err := p.addPeerRaw(peer); err != nil {
		return err
	}

	p.internalSort()
	return nil
}

func (p *Peers) internalSort() {
	res := []*Peer{}

	for _, p := range p.ByAddress {
		res = append(res, p)
	}

	sort.Sort(ByAddress(res))

	p.Sorted = res
}

/* Remove Methods */

// RemovePeer ...
func (p *Peers) RemovePeer(peer *Peer) {
	p.Lock()
	defer p.Unlock()

	if _, ok := p.ByAddress[peer.Address]; !ok {
		return
	}

	delete(p.ByAddress, peer.Address)

	p.internalSort()
}

/* ToSlice Methods */

// ToPeerSlice ...
func (p *Peers) ToPeerSlice() []*Peer {
	p.RLock()
	defer p.RUnlock()
	return append([]*Peer{}, p.Sorted...)
}

/* Utilities */

// Len ...
func (p *Peers) Len() int {
	p.RLock()
	defer p.RUnlock()

	return len(p.ByAddress)
}

// ByAddress implements sort.Interface for Peers based on the Address field.
type ByAddress []*Peer

func (a ByAddress) Len() int      { return len(a) }
func (a ByAddress) Swap(i, j int) { a[i], a[j] = a[j], a[i] }
func (a ByAddress) Less(i, j int) bool {
	return a[i].Address < a[j].Address
}
