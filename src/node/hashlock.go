package node

import (
	"sync"

	"github.com/mosaicnetworks/xln/src/ledger"
)

// HashlockData correlates the legs of one multi-hop payment at this node.
// The inbound leg is the payment we received, the outbound leg the one we
// sent. The origin of a payment has no inbound leg, its payee no outbound
// leg.
type HashlockData struct {
	OutTransitionID *uint64
	OutAddress      ledger.Address
	InTransitionID  *uint64
	InAddress       ledger.Address
	Secret          string
}

// HasIn reports whether the payment reached us from a previous hop.
func (h *HashlockData) HasIn() bool {
	return h.InTransitionID != nil
}

func (h *HashlockData) clone() *HashlockData {
	c := *h
	if h.OutTransitionID != nil {
		id := *h.OutTransitionID
		c.OutTransitionID = &id
	}
	if h.InTransitionID != nil {
		id := *h.InTransitionID
		c.InTransitionID = &id
	}
	return &c
}

// hashlockTable is shared by all the channels of a node. Every
// read-modify-write happens under its single lock.
type hashlockTable struct {
	sync.Mutex
	entries map[string]*HashlockData
}

func newHashlockTable() *hashlockTable {
	return &hashlockTable{
		entries: make(map[string]*HashlockData),
	}
}

func (t *hashlockTable) entry(hashlock string) *HashlockData {
	e, ok := t.entries[hashlock]
	if !ok {
		e = &HashlockData{}
		t.entries[hashlock] = e
	}
	return e
}

func (t *hashlockTable) get(hashlock string) (*HashlockData, bool) {
	t.Lock()
	defer t.Unlock()
	e, ok := t.entries[hashlock]
	if !ok {
		return nil, false
	}
	return e.clone(), true
}

func (t *hashlockTable) setOut(hashlock string, transitionID uint64, peer ledger.Address) {
	t.Lock()
	defer t.Unlock()
	e := t.entry(hashlock)
	e.OutTransitionID = &transitionID
	e.OutAddress = peer
}

func (t *hashlockTable) setIn(hashlock string, transitionID uint64, peer ledger.Address, secret string) {
	t.Lock()
	defer t.Unlock()
	e := t.entry(hashlock)
	e.InTransitionID = &transitionID
	e.InAddress = peer
	if secret != "" {
		e.Secret = secret
	}
}

// settle records secret unless one is known already. It returns the entry
// and whether this call recorded the secret.
func (t *hashlockTable) settle(hashlock, secret string) (*HashlockData, bool) {
	t.Lock()
	defer t.Unlock()
	e, ok := t.entries[hashlock]
	if !ok {
		return nil, false
	}
	if e.Secret != "" {
		return e.clone(), false
	}
	e.Secret = secret
	return e.clone(), true
}

func (t *hashlockTable) remove(hashlock string) (*HashlockData, bool) {
	t.Lock()
	defer t.Unlock()
	e, ok := t.entries[hashlock]
	if !ok {
		return nil, false
	}
	delete(t.entries, hashlock)
	return e, true
}

func (t *hashlockTable) snapshot() map[string]*HashlockData {
	t.Lock()
	defer t.Unlock()
	res := make(map[string]*HashlockData, len(t.entries))
	for k, e := range t.entries {
		res[k] = e.clone()
	}
	return res
}

func (t *hashlockTable) len() int {
	t.Lock()
	defer t.Unlock()
	return len(t.entries)
}
