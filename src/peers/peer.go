package peers

import (
	"fmt"

	"github.com/mosaicnetworks/xln/src/crypto/keys"
	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/mosaicnetworks/xln/src/net"
)

// Peer is a party this node knows how to reach.
type Peer struct {
	Address   string
	NetAddr   string
	PubKeyHex string
}

// NewPeer derives the address of the peer from its public key.
func NewPeer(pubKeyHex, netAddr string) (*Peer, error) {
	peer := &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
	}

	if err := peer.computeAddress(); err != nil {
		return nil, err
	}

	return peer, nil
}

func (p *Peer) computeAddress() error {
	pub, err := keys.ParsePublicKeyHex(p.PubKeyHex)
	if err != nil {
		return err
	}

	addr := keys.AddressHex(pub)
	if p.Address != "" && ledger.NewAddress(p.Address).String() != addr {
		return fmt.Errorf("peer %s: address does not match public key", p.Address)
	}
	p.Address = addr

	return nil
}

// Profile converts the peer into the profile exchanged in handshakes.
func (p *Peer) Profile() *net.Profile {
	return &net.Profile{
		Address:   p.Address,
		PubKeyHex: p.PubKeyHex,
		NetAddr:   p.NetAddr,
	}
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, address string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.Address != address {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
