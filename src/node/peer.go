package node

import (
	"context"
	"errors"
	"fmt"

	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/mosaicnetworks/xln/src/net"
	"github.com/sirupsen/logrus"
)

// Listen accepts inbound transports on l until the node shuts down. Every
// transport must start with the caller's profile.
func (n *Node) Listen(l net.Listener) {
	n.logger.WithField("addr", l.Addr()).Debug("Listening")

	n.goFunc(func() {
		<-n.ctx.Done()
		l.Close()
	})

	n.goFunc(func() {
		for {
			t, err := l.Accept(n.ctx)
			if err != nil {
				if n.getState() != Shutdown && !errors.Is(err, net.ErrListenerClosed) {
					n.logger.WithError(err).Error("Accepting transport")
				}
				return
			}
			n.goFunc(func() { n.accept(t) })
		}
	})
}

func (n *Node) accept(t net.Transport) {
	ctx, cancel := context.WithTimeout(n.ctx, n.conf.DialTimeout)
	defer cancel()

	profile, err := net.AwaitHandshake(ctx, t)
	if err != nil {
		n.logger.WithError(err).WithField("remote", t.RemoteAddr()).Warn("Handshake")
		t.Close()
		return
	}
	if err := n.AddProfile(profile); err != nil {
		n.logger.WithError(err).WithField("remote", t.RemoteAddr()).Warn("Invalid profile")
		t.Close()
		return
	}
	if err := n.register(ledger.NewAddress(profile.Address), t); err != nil {
		n.logger.WithError(err).Warn("Registering transport")
		t.Close()
	}
}

// Connect dials the party described by profile, introduces this node and
// starts serving the transport.
func (n *Node) Connect(ctx context.Context, profile *net.Profile) error {
	if n.dialer == nil {
		return fmt.Errorf("no dialer")
	}
	if err := n.AddProfile(profile); err != nil {
		return err
	}
	peer := ledger.NewAddress(profile.Address)
	if peer == n.self {
		return fmt.Errorf("cannot connect to self")
	}

	ctx, cancel := context.WithTimeout(ctx, n.conf.DialTimeout)
	defer cancel()

	t, err := n.dialer.Dial(ctx, profile.NetAddr)
	if err != nil {
		return err
	}
	if err := net.Handshake(ctx, t, n.profile, peer.String()); err != nil {
		t.Close()
		return err
	}
	return n.register(peer, t)
}

// register makes t the transport of peer, starts reading from it and resends
// whatever the channel had in flight.
func (n *Node) register(peer ledger.Address, t net.Transport) error {
	ch, err := n.Channel(peer)
	if err != nil {
		return err
	}

	n.transports.Add(peer.String(), t)
	n.metrics.setPeers(n.transports.Len())
	n.logger.WithFields(logrus.Fields{
		"peer":   peer,
		"remote": t.RemoteAddr(),
	}).Debug("Peer connected")

	// queued ahead of anything read from the new transport
	err = n.queues.Enqueue(peer.String(), func() {
		if err := ch.Reconnected(n.ctx); err != nil {
			n.logger.WithError(err).WithField("peer", peer).Warn("Resending after reconnect")
		}
	})
	if err != nil {
		return err
	}

	n.goFunc(func() { n.readLoop(peer, t) })
	return nil
}

func (n *Node) readLoop(peer ledger.Address, t net.Transport) {
	defer func() {
		n.transports.Remove(peer.String(), t)
		n.metrics.setPeers(n.transports.Len())
	}()

	for {
		msg, err := t.Receive(n.ctx)
		if err != nil {
			if n.getState() != Shutdown {
				n.logger.WithError(err).WithField("peer", peer).Debug("Transport closed")
			}
			t.Close()
			return
		}
		if err := n.queues.Enqueue(peer.String(), func() { n.dispatch(peer, t, msg) }); err != nil {
			return
		}
	}
}

// dispatch runs on the peer's inbound queue.
func (n *Node) dispatch(peer ledger.Address, t net.Transport, msg *net.Message) {
	logger := n.logger.WithFields(logrus.Fields{
		"peer": peer,
		"type": msg.Type.String(),
	})

	if err := msg.Validate(); err != nil {
		logger.WithError(err).Warn("Invalid message")
		return
	}
	if ledger.NewAddress(msg.Header.From) != peer {
		logger.WithField("from", msg.Header.From).Warn("Message from unexpected sender")
		return
	}

	switch msg.Type {
	case net.Flush:
		ch, err := n.Channel(peer)
		if err != nil {
			logger.WithError(err).Error("Channel")
			return
		}
		if err := ch.Receive(n.ctx, msg); err != nil {
			logger.WithError(err).WithField("block_id", msg.Flush.BlockID).Warn("Rejected flush")
		}
	case net.BroadcastProfile:
		if err := n.AddProfile(msg.Profile); err != nil {
			logger.WithError(err).Warn("Invalid profile")
		}
	case net.GetProfile:
		if err := t.Send(n.ctx, net.NewProfileMessage(n.self.String(), peer.String(), n.profile)); err != nil {
			logger.WithError(err).Warn("Sending profile")
		}
	}
}
