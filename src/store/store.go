package store

import (
	"github.com/mosaicnetworks/xln/src/ledger"
)

// Snapshot is what a Store remembers about one channel.
type Snapshot struct {
	State          *ledger.ChannelState
	PeerSignatures []string
}

// Clone ...
func (s *Snapshot) Clone() *Snapshot {
	return &Snapshot{
		State:          s.State.Clone(),
		PeerSignatures: append([]string{}, s.PeerSignatures...),
	}
}

// Store is an interface for backend stores.
type Store interface {
	SetChannelState(peer ledger.Address, state *ledger.ChannelState, peerSignatures []string) error
	GetChannelState(peer ledger.Address) (*Snapshot, error)
	ListChannels() ([]ledger.Address, error)
	StorePath() string
	Close() error
}
