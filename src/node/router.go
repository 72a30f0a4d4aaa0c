package node

import (
	"fmt"
	"math/big"

	"github.com/mosaicnetworks/xln/src/channel"
	"github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/crypto"
	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/sirupsen/logrus"
)

// The Node is the Owner of all its channels: committed payment events drive
// forwarding and settlement across channels.

// PaymentAdded implements channel.Owner.
func (n *Node) PaymentAdded(ch *channel.Channel, sc *ledger.StoredSubcontract, isSender bool) {
	p, ok := sc.Payment()
	if !ok {
		return
	}
	defer n.metrics.setHashlocks(n.hashlocks.len())

	if isSender {
		n.hashlocks.setOut(p.Hashlock, sc.TransitionID, ch.Peer())
		return
	}
	n.receivePayment(ch, sc.TransitionID, p)
}

func (n *Node) receivePayment(ch *channel.Channel, transitionID uint64, p *ledger.AddPayment) {
	logger := n.logger.WithFields(logrus.Fields{
		"peer":     ch.Peer(),
		"hashlock": p.Hashlock,
		"amount":   p.Amount.String(),
	})

	// the payment is committed, so it must fit in what the peer can send us
	derived, err := ch.DeriveDelta(p.ChainID, p.TokenID)
	if err != nil {
		logger.WithError(err).Warn("Inbound payment on unknown token")
		n.cancelInbound(ch, transitionID, "unknown token")
		return
	}
	if derived.InCapacity.Sign() < 0 {
		logger.WithError(common.NewChannelErr("Payment", common.InsufficientCapacity, p.Hashlock)).Warn("Inbound payment")
		n.cancelInbound(ch, transitionID, "capacity")
		return
	}

	layer, err := OpenOnion(n.key, p.EncryptedPackage)
	if err != nil {
		logger.WithError(err).Warn("Cannot open forwarding package")
		n.cancelInbound(ch, transitionID, "package")
		return
	}

	if layer.IsFinal() {
		n.receiveFinal(ch, transitionID, p, layer, logger)
		return
	}
	n.forward(ch, transitionID, p, layer, logger)
}

func (n *Node) receiveFinal(ch *channel.Channel, transitionID uint64, p *ledger.AddPayment, layer *Onion, logger *logrus.Entry) {
	if ledger.NewAddress(layer.FinalRecipient) != n.self {
		logger.WithField("final", layer.FinalRecipient).Warn("Payment for another party")
		n.cancelInbound(ch, transitionID, "recipient")
		return
	}
	if crypto.Hashlock(layer.Secret) != p.Hashlock {
		logger.Warn("Secret does not match hashlock")
		n.cancelInbound(ch, transitionID, "secret")
		return
	}
	if p.Amount.Cmp(layer.Min()) < 0 {
		logger.WithField("min", layer.MinAmount).Warn("Payment below agreed amount")
		n.cancelInbound(ch, transitionID, "amount")
		return
	}

	n.hashlocks.setIn(p.Hashlock, transitionID, ch.Peer(), layer.Secret)
	n.metrics.recordPayment("payee", "received")
	logger.Debug("Payment received, settling")

	if err := ch.Submit(&ledger.SettlePayment{TransitionID: transitionID, Secret: layer.Secret}); err != nil {
		logger.WithError(err).Error("Submitting settlement")
	}
}

func (n *Node) forward(ch *channel.Channel, transitionID uint64, p *ledger.AddPayment, layer *Onion, logger *logrus.Entry) {
	next := ledger.NewAddress(layer.NextHop)
	logger = logger.WithField("next", next)

	timelock := p.Timelock - n.conf.TimelockDelta
	if timelock <= 0 {
		logger.WithField("timelock", p.Timelock).Warn("Timelock budget exhausted")
		n.cancelInbound(ch, transitionID, "timelock")
		return
	}

	fee := n.conf.Fee.Fee(p.Amount)
	amount := new(big.Int).Sub(p.Amount, fee)
	if amount.Sign() <= 0 || amount.Cmp(layer.Min()) < 0 {
		logger.WithField("fee", fee.String()).Warn("Nothing left to forward")
		n.cancelInbound(ch, transitionID, "fee")
		return
	}

	if next == n.self || next == ch.Peer() || !n.Connected(next) {
		logger.Warn("Next hop unreachable")
		n.cancelInbound(ch, transitionID, "unreachable")
		return
	}
	out, err := n.Channel(next)
	if err != nil {
		logger.WithError(err).Warn("Next hop channel")
		n.cancelInbound(ch, transitionID, "unreachable")
		return
	}

	available, err := out.State().Spendable(p.ChainID, p.TokenID, out.IsLeft())
	if err != nil || available.Cmp(amount) < 0 {
		if err == nil {
			err = common.NewChannelErr("Payment", common.InsufficientCapacity,
				fmt.Sprintf("forward %s > capacity %s", amount, available))
		}
		logger.WithError(err).Warn("Cannot forward")
		n.cancelInbound(ch, transitionID, "capacity")
		return
	}

	n.hashlocks.setIn(p.Hashlock, transitionID, ch.Peer(), "")

	err = out.Submit(&ledger.AddPayment{
		ChainID:          p.ChainID,
		TokenID:          p.TokenID,
		Amount:           amount,
		Hashlock:         p.Hashlock,
		Timelock:         timelock,
		EncryptedPackage: layer.EncryptedNext,
	})
	if err != nil {
		logger.WithError(err).Warn("Submitting forward")
		n.hashlocks.remove(p.Hashlock)
		n.cancelInbound(ch, transitionID, "unreachable")
		return
	}

	n.metrics.recordPayment("hop", "forwarded")
	logger.WithFields(logrus.Fields{
		"fee":      fee.String(),
		"timelock": timelock,
	}).Debug("Forwarding payment")
}

// PaymentSettled implements channel.Owner.
func (n *Node) PaymentSettled(ch *channel.Channel, sc *ledger.StoredSubcontract, secret string, isSender bool) {
	p, ok := sc.Payment()
	if !ok {
		return
	}
	defer n.metrics.setHashlocks(n.hashlocks.len())

	logger := n.logger.WithFields(logrus.Fields{
		"peer":     ch.Peer(),
		"hashlock": p.Hashlock,
	})

	if isSender {
		// we claimed an inbound payment: this hop is done
		n.hashlocks.remove(p.Hashlock)
		n.metrics.recordPayment("hop", "claimed")
		logger.Debug("Inbound payment claimed")
		return
	}

	entry, recorded := n.hashlocks.settle(p.Hashlock, secret)
	switch {
	case entry == nil:
		if n.resolve(p.Hashlock, secret, nil) {
			n.metrics.recordPayment("payer", "settled")
		}
		logger.Debug("Settlement of unknown hashlock")
	case !entry.HasIn():
		n.hashlocks.remove(p.Hashlock)
		if n.resolve(p.Hashlock, secret, nil) {
			n.metrics.recordPayment("payer", "settled")
			logger.Debug("Payment settled")
		}
	case !recorded:
		logger.Debug("Secret already known")
	default:
		in, err := n.Channel(entry.InAddress)
		if err != nil {
			logger.WithError(err).Error("Inbound channel")
			return
		}
		logger.WithField("upstream", entry.InAddress).Debug("Settling upstream")
		if err := in.Submit(&ledger.SettlePayment{TransitionID: *entry.InTransitionID, Secret: secret}); err != nil {
			logger.WithError(err).Error("Submitting upstream settlement")
		}
	}
}

// PaymentCancelled implements channel.Owner.
func (n *Node) PaymentCancelled(ch *channel.Channel, sc *ledger.StoredSubcontract, isSender bool) {
	p, ok := sc.Payment()
	if !ok || isSender {
		return
	}
	n.unwind(p.Hashlock, ErrPaymentCancelled)
}

// TransitionRejected implements channel.Owner. A forwarded or originated
// payment that could not be proposed is unwound like a cancelled one.
func (n *Node) TransitionRejected(ch *channel.Channel, t ledger.Transition, err error) {
	n.logger.WithFields(logrus.Fields{
		"peer": ch.Peer(),
		"type": t.Type().String(),
	}).WithError(err).Warn("Transition rejected")

	if p, ok := t.(*ledger.AddPayment); ok {
		n.unwind(p.Hashlock, err)
	}
}

// Committed implements channel.Owner.
func (n *Node) Committed(ch *channel.Channel, state *ledger.ChannelState, peerSignatures []string) {
	if err := n.store.SetChannelState(ch.Peer(), state, peerSignatures); err != nil {
		n.logger.WithError(err).WithField("peer", ch.Peer()).Error("Saving channel state")
	}
}

// Halted implements channel.Owner.
func (n *Node) Halted(ch *channel.Channel, err error) {
	n.logger.WithError(err).WithField("peer", ch.Peer()).Error("Channel halted")
}

// unwind releases the inbound leg of hashlock, or fails the local payment
// promise when this node started the payment.
func (n *Node) unwind(hashlock string, reason error) {
	defer n.metrics.setHashlocks(n.hashlocks.len())

	entry, ok := n.hashlocks.remove(hashlock)
	if ok && entry.HasIn() {
		if entry.Secret != "" {
			return
		}
		in, err := n.Channel(entry.InAddress)
		if err != nil {
			n.logger.WithError(err).Error("Inbound channel")
			return
		}
		n.cancelInbound(in, *entry.InTransitionID, "downstream")
		return
	}

	if n.resolve(hashlock, "", reason) {
		n.metrics.recordPayment("payer", "cancelled")
		n.logger.WithError(reason).WithField("hashlock", hashlock).Debug("Payment failed")
	}
}

func (n *Node) cancelInbound(ch *channel.Channel, transitionID uint64, reason string) {
	n.metrics.recordPayment("hop", "cancelled_"+reason)
	if err := ch.Submit(&ledger.CancelPayment{TransitionID: transitionID}); err != nil {
		n.logger.WithError(err).WithField("peer", ch.Peer()).Error("Submitting cancel")
	}
}
