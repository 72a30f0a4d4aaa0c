package net

import (
	"context"
	"errors"
)

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been closed.
	ErrTransportShutdown = errors.New("transport shutdown")
	// ErrListenerClosed is returned by Accept after Close.
	ErrListenerClosed = errors.New("listener closed")
)

// Transport is a message oriented connection to one peer.
type Transport interface {
	// Send delivers msg to the peer.
	Send(ctx context.Context, msg *Message) error

	// Receive blocks until the next message arrives, the transport closes or
	// ctx is done.
	Receive(ctx context.Context) (*Message, error)

	// IsOpen reports whether the transport can still be used.
	IsOpen() bool

	// RemoteAddr is the network address of the other end.
	RemoteAddr() string

	// Close permanently closes the transport.
	Close() error
}

// Listener accepts inbound transports.
type Listener interface {
	Accept(ctx context.Context) (Transport, error)
	Addr() string
	Close() error
}

// Dialer opens outbound transports.
type Dialer interface {
	Dial(ctx context.Context, addr string) (Transport, error)
}

// Handshake introduces self over a new outbound transport.
func Handshake(ctx context.Context, t Transport, self *Profile, to string) error {
	return t.Send(ctx, NewProfileMessage(self.Address, to, self))
}

// AwaitHandshake waits for the profile of the party on the other end of an
// inbound transport.
func AwaitHandshake(ctx context.Context, t Transport) (*Profile, error) {
	msg, err := t.Receive(ctx)
	if err != nil {
		return nil, err
	}
	if msg.Type != BroadcastProfile {
		return nil, errors.New("expected profile, got " + msg.Type.String())
	}
	if msg.Profile.Address != msg.Header.From {
		return nil, errors.New("profile address does not match sender")
	}
	return msg.Profile, nil
}
