package channel

import (
	"sync/atomic"
)

// Phase is the state of the flush protocol.
type Phase uint32

const (
	// Idle means no locally authored block is in flight.
	Idle Phase = iota
	// AwaitingAck means a locally authored block waits for the peer.
	AwaitingAck
	// Halted means the channel hit an invariant violation and stopped.
	Halted
)

// String ...
func (p Phase) String() string {
	switch p {
	case Idle:
		return "Idle"
	case AwaitingAck:
		return "AwaitingAck"
	case Halted:
		return "Halted"
	default:
		return "Unknown"
	}
}

type phase struct {
	phase Phase
}

func (p *phase) getPhase() Phase {
	addr := (*uint32)(&p.phase)
	return Phase(atomic.LoadUint32(addr))
}

func (p *phase) setPhase(s Phase) {
	addr := (*uint32)(&p.phase)
	atomic.StoreUint32(addr, uint32(s))
}
