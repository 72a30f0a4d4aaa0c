package store

import (
	"sort"
	"sync"

	cm "github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/ledger"
)

// InmemStore implements the Store interface with a map. Nothing survives the
// process.
type InmemStore struct {
	sync.RWMutex
	snapshots map[ledger.Address]*Snapshot
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		snapshots: make(map[ledger.Address]*Snapshot),
	}
}

// SetChannelState implements the Store interface.
func (s *InmemStore) SetChannelState(peer ledger.Address, state *ledger.ChannelState, peerSignatures []string) error {
	if state == nil {
		return cm.NewStoreErr("ChannelState", cm.Empty, peer.String())
	}
	snap := &Snapshot{State: state, PeerSignatures: peerSignatures}

	s.Lock()
	defer s.Unlock()
	s.snapshots[ledger.NewAddress(peer.String())] = snap.Clone()
	return nil
}

// GetChannelState implements the Store interface.
func (s *InmemStore) GetChannelState(peer ledger.Address) (*Snapshot, error) {
	s.RLock()
	defer s.RUnlock()
	snap, ok := s.snapshots[ledger.NewAddress(peer.String())]
	if !ok {
		return nil, cm.NewStoreErr("ChannelState", cm.KeyNotFound, peer.String())
	}
	return snap.Clone(), nil
}

// ListChannels implements the Store interface. Peers are sorted.
func (s *InmemStore) ListChannels() ([]ledger.Address, error) {
	s.RLock()
	defer s.RUnlock()
	res := make([]ledger.Address, 0, len(s.snapshots))
	for p := range s.snapshots {
		res = append(res, p)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Less(res[j]) })
	return res, nil
}

// StorePath implements the Store interface.
func (s *InmemStore) StorePath() string {
	return ""
}

// Close implements the Store interface.
func (s *InmemStore) Close() error {
	return nil
}
