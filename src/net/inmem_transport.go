package net

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
)

// NewInmemAddr returns a new in-memory addr with a random UUID.
func NewInmemAddr() string {
	return uuid.New().String()
}

// InmemTransport implements the Transport interface over an in-memory pipe,
// to allow channels to be tested without going over a network. Messages are
// still passed through Encode and Decode.
type InmemTransport struct {
	sync.RWMutex
	consumerCh chan *Message
	localAddr  string
	remoteAddr string
	peer       *InmemTransport
	shutdown   bool
	shutdownCh chan struct{}
}

func newInmemTransport(local, remote string) *InmemTransport {
	return &InmemTransport{
		consumerCh: make(chan *Message, 256),
		localAddr:  local,
		remoteAddr: remote,
		shutdownCh: make(chan struct{}),
	}
}

// NewInmemPipe returns the two connected ends of a pipe.
func NewInmemPipe(addrA, addrB string) (*InmemTransport, *InmemTransport) {
	a := newInmemTransport(addrA, addrB)
	b := newInmemTransport(addrB, addrA)
	a.peer = b
	b.peer = a
	return a, b
}

// Send implements the Transport interface.
func (i *InmemTransport) Send(ctx context.Context, msg *Message) error {
	if !i.IsOpen() {
		return ErrTransportShutdown
	}
	data, err := Encode(msg)
	if err != nil {
		return err
	}
	copied, err := Decode(data)
	if err != nil {
		return err
	}

	select {
	case i.peer.consumerCh <- copied:
		return nil
	case <-i.peer.shutdownCh:
		return ErrTransportShutdown
	case <-i.shutdownCh:
		return ErrTransportShutdown
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive implements the Transport interface.
func (i *InmemTransport) Receive(ctx context.Context) (*Message, error) {
	select {
	case msg := <-i.consumerCh:
		return msg, nil
	default:
	}
	select {
	case msg := <-i.consumerCh:
		return msg, nil
	case <-i.shutdownCh:
		return nil, ErrTransportShutdown
	case <-i.peer.shutdownCh:
		return nil, ErrTransportShutdown
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// IsOpen implements the Transport interface.
func (i *InmemTransport) IsOpen() bool {
	select {
	case <-i.shutdownCh:
		return false
	case <-i.peer.shutdownCh:
		return false
	default:
		return true
	}
}

// LocalAddr ...
func (i *InmemTransport) LocalAddr() string {
	return i.localAddr
}

// RemoteAddr implements the Transport interface.
func (i *InmemTransport) RemoteAddr() string {
	return i.remoteAddr
}

// Close is used to permanently disable the transport
func (i *InmemTransport) Close() error {
	i.Lock()
	defer i.Unlock()
	if !i.shutdown {
		i.shutdown = true
		close(i.shutdownCh)
	}
	return nil
}

// InmemNetwork routes in-memory dials to in-memory listeners by address.
type InmemNetwork struct {
	sync.RWMutex
	listeners map[string]*InmemListener
}

// NewInmemNetwork ...
func NewInmemNetwork() *InmemNetwork {
	return &InmemNetwork{
		listeners: make(map[string]*InmemListener),
	}
}

// Listen registers a listener on addr. An empty addr picks a random one.
func (n *InmemNetwork) Listen(addr string) (*InmemListener, error) {
	if addr == "" {
		addr = NewInmemAddr()
	}
	n.Lock()
	defer n.Unlock()
	if _, ok := n.listeners[addr]; ok {
		return nil, fmt.Errorf("address %s already in use", addr)
	}
	l := &InmemListener{
		network:  n,
		addr:     addr,
		acceptCh: make(chan *InmemTransport, 16),
		closeCh:  make(chan struct{}),
	}
	n.listeners[addr] = l
	return l, nil
}

// Dial implements the Dialer interface.
func (n *InmemNetwork) Dial(ctx context.Context, addr string) (Transport, error) {
	n.RLock()
	l, ok := n.listeners[addr]
	n.RUnlock()
	if !ok {
		return nil, fmt.Errorf("failed to connect to peer: %v", addr)
	}

	local, remote := NewInmemPipe(NewInmemAddr(), addr)
	select {
	case l.acceptCh <- remote:
		return local, nil
	case <-l.closeCh:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InmemListener implements the Listener interface.
type InmemListener struct {
	network  *InmemNetwork
	addr     string
	acceptCh chan *InmemTransport
	closeCh  chan struct{}
	once     sync.Once
}

// Accept implements the Listener interface.
func (l *InmemListener) Accept(ctx context.Context) (Transport, error) {
	select {
	case t := <-l.acceptCh:
		return t, nil
	case <-l.closeCh:
		return nil, ErrListenerClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Addr implements the Listener interface.
func (l *InmemListener) Addr() string {
	return l.addr
}

// Close implements the Listener interface.
func (l *InmemListener) Close() error {
	l.once.Do(func() {
		close(l.closeCh)
		l.network.Lock()
		delete(l.network.listeners, l.addr)
		l.network.Unlock()
	})
	return nil
}
