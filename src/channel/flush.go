package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/mosaicnetworks/xln/src/net"
	"github.com/sirupsen/logrus"
)

// flush proposes up to FlushBatchLimit mempool transitions and/or
// acknowledges the last received block. Runs on the worker.
func (c *Channel) flush() error {
	if err := c.Err(); err != nil {
		return err
	}
	if c.getPhase() == AwaitingAck {
		return nil
	}

	state := c.committed()
	pendingSignatures, err := c.sign(state)
	if err != nil {
		return c.halt(err)
	}

	msg := &net.FlushMessage{
		BlockID:           state.BlockID,
		PendingSignatures: pendingSignatures,
	}

	for msg.Block == nil && c.MempoolLen() > 0 {
		block, dry, txs, err := c.buildBlock(state, c.take(c.conf.FlushBatchLimit))
		if err != nil {
			return c.halt(err)
		}
		if block == nil {
			continue
		}
		newSignatures, err := c.sign(dry)
		if err != nil {
			return c.halt(err)
		}
		msg.Block = block
		msg.NewSignatures = newSignatures

		c.pendingBlock = block
		c.pendingState = dry
		c.pendingTxs = txs
		c.lastSent = msg
		c.setPhase(AwaitingAck)
	}

	if msg.Block == nil && !c.needAck {
		return nil
	}
	c.needAck = false

	return c.send(msg)
}

// buildBlock dry-runs txs on top of state. Transitions that fail are dropped
// and reported to the owner. A nil block means nothing was left.
func (c *Channel) buildBlock(state *ledger.ChannelState, txs []ledger.Transition) (*ledger.Block, *ledger.ChannelState, []ledger.Transition, error) {
	for len(txs) > 0 {
		block, err := ledger.NewBlock(state, c.isLeft, txs, time.Now().UnixMilli())
		if err != nil {
			return nil, nil, nil, invariant("Block", err)
		}

		dry, _, err := ledger.ApplyBlock(state, block, true)
		if err == nil {
			return block, dry, txs, nil
		}

		var txErr *ledger.TransitionError
		if !errors.As(err, &txErr) {
			return nil, nil, nil, invariant("Block", err)
		}

		rejected := txs[txErr.Index]
		c.logger.WithFields(logrus.Fields{
			"type":  txErr.Type.String(),
			"error": txErr.Err,
		}).Warn("Dropping transition")
		c.metrics.recordRejected("transition")
		c.owner.TransitionRejected(c, rejected, txErr.Err)

		txs = append(txs[:txErr.Index:txErr.Index], txs[txErr.Index+1:]...)
	}
	return nil, nil, nil, nil
}

// receive handles a flush message from the peer. Runs on the worker.
func (c *Channel) receive(m *net.FlushMessage) error {
	if err := c.Err(); err != nil {
		return err
	}
	if m.Counter <= c.recvCounter {
		c.metrics.recordRejected("counter")
		return common.NewChannelErr("FlushMessage", common.ProtocolViolation,
			fmt.Sprintf("counter %d after %d", m.Counter, c.recvCounter))
	}
	c.recvCounter = m.Counter
	c.metrics.recordFlush("in", m.Block != nil)

	if c.getPhase() == AwaitingAck && m.BlockID == c.pendingBlock.BlockID+1 {
		if err := c.commitPending(m.PendingSignatures); err != nil {
			return err
		}
	}

	state := c.committed()

	if m.Block == nil {
		switch {
		case m.BlockID == state.BlockID:
			if err := c.builder.Verify(state, c.peer.String(), m.PendingSignatures); err != nil {
				c.metrics.recordRejected("signature")
				return err
			}
			c.publish(state, m.PendingSignatures)
		case m.BlockID > state.BlockID:
			c.metrics.recordRejected("protocol")
			return common.NewChannelErr("FlushMessage", common.ProtocolViolation,
				fmt.Sprintf("ack of block %d without pending block", m.BlockID))
		default:
			c.logger.WithField("block_id", m.BlockID).Debug("Stale acknowledgement")
		}
		return c.flush()
	}

	if c.alreadyApplied(state, m.Block) {
		if c.getPhase() == AwaitingAck {
			resend := *c.lastSent
			return c.send(&resend)
		}
		c.needAck = true
		return c.flush()
	}

	if c.getPhase() == AwaitingAck {
		if c.isLeft {
			c.logger.WithField("block_id", m.Block.BlockID).Debug("Conflicting proposal, keeping ours")
			return nil
		}
		c.rollback()
	}

	if err := c.applyRemote(state, m); err != nil {
		return err
	}

	c.needAck = true
	return c.flush()
}

func (c *Channel) alreadyApplied(state *ledger.ChannelState, block *ledger.Block) bool {
	if block.BlockID+1 != state.BlockID {
		return false
	}
	hash, err := block.Hash()
	return err == nil && hash == state.PreviousBlockHash
}

// commitPending commits the in-flight block once the peer has signed the
// state it leads to.
func (c *Channel) commitPending(signatures []string) error {
	if err := c.builder.Verify(c.pendingState, c.peer.String(), signatures); err != nil {
		c.metrics.recordRejected("signature")
		return err
	}

	block := c.pendingBlock
	next, events, err := ledger.ApplyBlock(c.committed(), block, false)
	if err != nil {
		return c.halt(invariant("Block", err))
	}
	if err := sameState(c.pendingState, next); err != nil {
		return c.halt(err)
	}

	c.publish(next, signatures)
	c.pendingBlock = nil
	c.pendingState = nil
	c.pendingTxs = nil
	c.lastSent = nil
	c.setPhase(Idle)

	c.afterCommit(block, next, signatures, events)
	return nil
}

// applyRemote validates and commits a block proposed by the peer. A block that
// fails validation leaves the committed state untouched.
func (c *Channel) applyRemote(state *ledger.ChannelState, m *net.FlushMessage) error {
	if m.Block.IsLeft == c.isLeft {
		c.metrics.recordRejected("protocol")
		return common.NewChannelErr("Block", common.ProtocolViolation, "block authored for our side")
	}

	dry, _, err := ledger.ApplyBlock(state, m.Block, true)
	if err != nil {
		c.metrics.recordRejected("block")
		return err
	}
	if err := c.builder.Verify(state, c.peer.String(), m.PendingSignatures); err != nil {
		c.metrics.recordRejected("signature")
		return err
	}
	if err := c.builder.Verify(dry, c.peer.String(), m.NewSignatures); err != nil {
		c.metrics.recordRejected("signature")
		return err
	}

	next, events, err := ledger.ApplyBlock(state, m.Block, false)
	if err != nil {
		return c.halt(invariant("Block", err))
	}
	if err := sameState(dry, next); err != nil {
		return c.halt(err)
	}

	c.publish(next, m.NewSignatures)
	c.afterCommit(m.Block, next, m.NewSignatures, events)
	return nil
}

func (c *Channel) rollback() {
	c.logger.WithField("block_id", c.pendingBlock.BlockID).Debug("Conflicting proposal, yielding to left")
	c.pushFront(c.pendingTxs...)
	c.pendingBlock = nil
	c.pendingState = nil
	c.pendingTxs = nil
	c.lastSent = nil
	c.setPhase(Idle)
}

func (c *Channel) afterCommit(block *ledger.Block, state *ledger.ChannelState, signatures []string, events []ledger.Event) {
	author := "peer"
	if block.IsLeft == c.isLeft {
		author = "self"
	}
	types := make([]string, len(block.Transitions))
	for i, t := range block.Transitions {
		types[i] = t.Type().String()
	}
	c.metrics.recordCommit(c.peer.String(), author, state.BlockID, types)

	c.logger.WithFields(logrus.Fields{
		"block_id":    state.BlockID,
		"author":      author,
		"transitions": len(block.Transitions),
	}).Debug("Committed block")

	c.owner.Committed(c, state.Clone(), append([]string{}, signatures...))

	for _, e := range events {
		switch ev := e.(type) {
		case ledger.PaymentAdded:
			c.owner.PaymentAdded(c, ev.Subcontract, ev.Subcontract.IsLeft == c.isLeft)
		case ledger.PaymentSettled:
			c.owner.PaymentSettled(c, ev.Subcontract, ev.Secret, ev.SettledByLeft == c.isLeft)
		case ledger.PaymentCancelled:
			c.owner.PaymentCancelled(c, ev.Subcontract, ev.CancelledByLeft == c.isLeft)
		}
	}
}

func (c *Channel) send(msg *net.FlushMessage) error {
	c.sendCounter++
	msg.Counter = c.sendCounter

	ctx := context.Background()
	if c.conf.SendTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.conf.SendTimeout)
		defer cancel()
	}

	c.metrics.recordFlush("out", msg.Block != nil)
	if err := c.sender.Send(ctx, net.NewFlushMessage(c.self.String(), c.peer.String(), msg)); err != nil {
		c.logger.WithError(err).Warn("Sending flush")
		return err
	}
	return nil
}

func (c *Channel) sign(state *ledger.ChannelState) ([]string, error) {
	proofs, err := c.builder.BuildSigned(state, c.key)
	if err != nil {
		if common.IsChannel(err, common.Invariant) {
			return nil, err
		}
		return nil, invariant("Proofs", err)
	}
	return proofs.Signatures, nil
}

func sameState(expected, actual *ledger.ChannelState) error {
	h1, err := expected.Hash()
	if err != nil {
		return invariant("ChannelState", err)
	}
	h2, err := actual.Hash()
	if err != nil {
		return invariant("ChannelState", err)
	}
	if h1 != h2 {
		return common.NewChannelErr("ChannelState", common.Invariant, "dry run and commit diverged")
	}
	return nil
}

func invariant(what string, err error) error {
	return fmt.Errorf("%w: %v", common.NewChannelErr(what, common.Invariant, "unexpected failure"), err)
}
