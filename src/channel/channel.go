package channel

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"sync"
	"time"

	"github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/crypto/keys"
	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/mosaicnetworks/xln/src/net"
	"github.com/mosaicnetworks/xln/src/proof"
	"github.com/mosaicnetworks/xln/src/queue"
	"github.com/sirupsen/logrus"
)

// DefaultFlushBatchLimit is the maximum number of transitions in one block.
const DefaultFlushBatchLimit = 10

// Config holds the tunables of a Channel.
type Config struct {
	FlushBatchLimit int
	SendTimeout     time.Duration
	// Provider is the address of the subcontract provider referenced in
	// dispute proofs.
	Provider string
}

// DefaultConfig ...
func DefaultConfig() *Config {
	return &Config{
		FlushBatchLimit: DefaultFlushBatchLimit,
		SendTimeout:     5 * time.Second,
		Provider:        "0x0000000000000000000000000000000000000000",
	}
}

// Channel is this party's endpoint of the channel with one peer.
type Channel struct {
	phase

	conf    *Config
	self    ledger.Address
	peer    ledger.Address
	isLeft  bool
	key     *ecdsa.PrivateKey
	builder *proof.Builder

	// committed state; only the worker writes it
	stateLock      sync.RWMutex
	state          *ledger.ChannelState
	peerSignatures []string
	haltErr        error

	mempoolLock sync.Mutex
	mempool     []ledger.Transition

	// flush protocol, worker only
	pendingBlock *ledger.Block
	pendingState *ledger.ChannelState
	pendingTxs   []ledger.Transition
	lastSent     *net.FlushMessage
	needAck      bool
	sendCounter  uint64
	recvCounter  uint64

	queue   *queue.Queue
	sender  Sender
	owner   Owner
	metrics *channelMetrics
	logger  *logrus.Entry
}

// New creates the channel between the owner of key and peer. state is a
// previously persisted state of this channel, or nil for a new channel.
func New(
	conf *Config,
	key *ecdsa.PrivateKey,
	peer ledger.Address,
	state *ledger.ChannelState,
	sender Sender,
	owner Owner,
	logger *logrus.Entry,
) (*Channel, error) {

	if conf == nil {
		conf = DefaultConfig()
	}
	if conf.FlushBatchLimit <= 0 {
		conf.FlushBatchLimit = DefaultFlushBatchLimit
	}
	if owner == nil {
		owner = NopOwner{}
	}
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	self := ledger.NewAddress(keys.AddressHex(&key.PublicKey))
	peer = ledger.NewAddress(peer.String())
	left, right, err := ledger.OrderAddresses(self, peer)
	if err != nil {
		return nil, err
	}

	if state == nil {
		state, err = ledger.NewChannelState(left, right)
		if err != nil {
			return nil, err
		}
	} else if state.Left != left || state.Right != right {
		return nil, common.NewChannelErr("ChannelState", common.InvalidChannelSetup,
			fmt.Sprintf("state of %s/%s loaded for %s/%s", state.Left, state.Right, left, right))
	}

	logger = logger.WithField("peer", peer.String())

	c := &Channel{
		conf:    conf,
		self:    self,
		peer:    peer,
		isLeft:  self == left,
		key:     key,
		builder: proof.NewBuilder(conf.Provider),
		state:   state,
		mempool: []ledger.Transition{},
		queue:   queue.New(peer.String(), logger),
		sender:  sender,
		owner:   owner,
		metrics: newChannelMetrics(),
		logger:  logger,
	}

	return c, nil
}

// Self ...
func (c *Channel) Self() ledger.Address {
	return c.self
}

// Peer ...
func (c *Channel) Peer() ledger.Address {
	return c.peer
}

// IsLeft reports whether this party is the left side of the channel.
func (c *Channel) IsLeft() bool {
	return c.isLeft
}

// Key returns the channel key.
func (c *Channel) Key() string {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.state.ChannelKey
}

// Phase returns the state of the flush protocol.
func (c *Channel) Phase() Phase {
	return c.getPhase()
}

// State returns a copy of the committed state.
func (c *Channel) State() *ledger.ChannelState {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.state.Clone()
}

// BlockID returns the committed block id.
func (c *Channel) BlockID() uint64 {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.state.BlockID
}

// PeerSignatures returns the peer's signatures over the committed state.
func (c *Channel) PeerSignatures() []string {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return append([]string{}, c.peerSignatures...)
}

// Err returns the error that halted the channel, if any.
func (c *Channel) Err() error {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.haltErr
}

// DeriveDelta returns the capacity view of a token from this side.
func (c *Channel) DeriveDelta(chainID, tokenID uint32) (ledger.DerivedDelta, error) {
	c.stateLock.RLock()
	defer c.stateLock.RUnlock()
	return c.state.DeriveDelta(chainID, tokenID, c.isLeft)
}

// MempoolLen returns the number of transitions waiting to be proposed.
func (c *Channel) MempoolLen() int {
	c.mempoolLock.Lock()
	defer c.mempoolLock.Unlock()
	return len(c.mempool)
}

// Submit appends txs to the mempool and flushes. It does not wait.
func (c *Channel) Submit(txs ...ledger.Transition) error {
	if err := c.Err(); err != nil {
		return err
	}
	return c.queue.Enqueue(func() {
		c.pushBack(txs...)
		if err := c.flush(); err != nil {
			c.logger.WithError(err).Error("Flush after submit")
		}
	})
}

// Flush proposes the mempool if no block is in flight, and waits until the
// flush message is sent.
func (c *Channel) Flush(ctx context.Context) error {
	return c.queue.Do(ctx, c.flush)
}

// Receive processes a flush message from the peer and waits for the result.
func (c *Channel) Receive(ctx context.Context, msg *net.Message) error {
	if msg.Type != net.Flush || msg.Flush == nil {
		return common.NewChannelErr("Message", common.ProtocolViolation, "not a flush message")
	}
	if ledger.NewAddress(msg.Header.From) != c.peer {
		return common.NewChannelErr("Message", common.ProtocolViolation, "sender "+msg.Header.From)
	}
	return c.queue.Do(ctx, func() error {
		return c.receive(msg.Flush)
	})
}

// Reconnected starts a new session with the peer: the peer's message counter
// may restart and the in-flight proposal, if any, is sent again.
func (c *Channel) Reconnected(ctx context.Context) error {
	return c.queue.Do(ctx, func() error {
		c.recvCounter = 0
		if c.getPhase() != AwaitingAck || c.lastSent == nil {
			return nil
		}
		msg := *c.lastSent
		return c.send(&msg)
	})
}

// RestoreSignatures installs peer signatures persisted with the state the
// channel was created from. They must verify against that state.
func (c *Channel) RestoreSignatures(ctx context.Context, sigs []string) error {
	return c.queue.Do(ctx, func() error {
		state := c.committed()
		if err := c.builder.Verify(state, c.peer.String(), sigs); err != nil {
			return err
		}
		c.publish(state, append([]string{}, sigs...))
		return nil
	})
}

// Close stops the worker. Pending work is dropped.
func (c *Channel) Close() {
	c.queue.Close()
}

func (c *Channel) pushBack(txs ...ledger.Transition) {
	c.mempoolLock.Lock()
	defer c.mempoolLock.Unlock()
	c.mempool = append(c.mempool, txs...)
	c.metrics.recordMempool(c.peer.String(), len(c.mempool))
}

func (c *Channel) pushFront(txs ...ledger.Transition) {
	c.mempoolLock.Lock()
	defer c.mempoolLock.Unlock()
	c.mempool = append(append([]ledger.Transition{}, txs...), c.mempool...)
	c.metrics.recordMempool(c.peer.String(), len(c.mempool))
}

func (c *Channel) take(n int) []ledger.Transition {
	c.mempoolLock.Lock()
	defer c.mempoolLock.Unlock()
	if n > len(c.mempool) {
		n = len(c.mempool)
	}
	txs := append([]ledger.Transition{}, c.mempool[:n]...)
	c.mempool = c.mempool[n:]
	c.metrics.recordMempool(c.peer.String(), len(c.mempool))
	return txs
}

func (c *Channel) committed() *ledger.ChannelState {
	// the worker is the only writer, so it can read without the lock
	return c.state
}

func (c *Channel) publish(state *ledger.ChannelState, peerSignatures []string) {
	c.stateLock.Lock()
	c.state = state
	c.peerSignatures = peerSignatures
	c.stateLock.Unlock()
}

func (c *Channel) halt(err error) error {
	c.stateLock.Lock()
	if c.haltErr == nil {
		c.haltErr = err
	}
	c.stateLock.Unlock()

	c.setPhase(Halted)
	c.metrics.recordHalt()
	c.logger.WithError(err).Error("Channel halted")
	c.owner.Halted(c, err)
	return err
}
