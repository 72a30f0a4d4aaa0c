package net

import (
	"context"
	"sort"
	"sync"

	"github.com/mosaicnetworks/xln/src/common"
)

// TransportStore is the registry of open transports keyed by peer address.
// It is safe for concurrent use.
type TransportStore struct {
	sync.RWMutex
	transports map[string]Transport
}

// NewTransportStore ...
func NewTransportStore() *TransportStore {
	return &TransportStore{
		transports: make(map[string]Transport),
	}
}

// Add registers t for peer. A transport already registered for peer is closed
// and replaced.
func (s *TransportStore) Add(peer string, t Transport) {
	s.Lock()
	old, ok := s.transports[peer]
	s.transports[peer] = t
	s.Unlock()

	if ok && old != t {
		old.Close()
	}
}

// Get returns the open transport of peer.
func (s *TransportStore) Get(peer string) (Transport, bool) {
	s.RLock()
	defer s.RUnlock()
	t, ok := s.transports[peer]
	if !ok || !t.IsOpen() {
		return nil, false
	}
	return t, true
}

// Remove unregisters t if it is still the transport of peer.
func (s *TransportStore) Remove(peer string, t Transport) {
	s.Lock()
	defer s.Unlock()
	if cur, ok := s.transports[peer]; ok && cur == t {
		delete(s.transports, peer)
	}
}

// Peers returns the sorted addresses of all registered peers.
func (s *TransportStore) Peers() []string {
	s.RLock()
	defer s.RUnlock()
	res := make([]string, 0, len(s.transports))
	for p := range s.transports {
		res = append(res, p)
	}
	sort.Strings(res)
	return res
}

// Len ...
func (s *TransportStore) Len() int {
	s.RLock()
	defer s.RUnlock()
	return len(s.transports)
}

// Send routes msg to the transport of msg.Header.To.
func (s *TransportStore) Send(ctx context.Context, msg *Message) error {
	t, ok := s.Get(msg.Header.To)
	if !ok {
		return common.NewChannelErr("Transport", common.NotFound, msg.Header.To)
	}
	return t.Send(ctx, msg)
}

// CloseAll closes and unregisters every transport.
func (s *TransportStore) CloseAll() {
	s.Lock()
	transports := s.transports
	s.transports = make(map[string]Transport)
	s.Unlock()

	for _, t := range transports {
		t.Close()
	}
}
