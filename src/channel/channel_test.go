package channel

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/crypto"
	"github.com/mosaicnetworks/xln/src/crypto/keys"
	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/mosaicnetworks/xln/src/net"
	"github.com/mosaicnetworks/xln/src/proof"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 5 * time.Second

type ownerLog struct {
	added     []bool
	settled   []string
	cancelled int
	rejected  []error
	committed []uint64
	halted    error
}

type recordingOwner struct {
	sync.Mutex
	log ownerLog
}

func (o *recordingOwner) PaymentAdded(ch *Channel, sc *ledger.StoredSubcontract, isSender bool) {
	o.Lock()
	defer o.Unlock()
	o.log.added = append(o.log.added, isSender)
}

func (o *recordingOwner) PaymentSettled(ch *Channel, sc *ledger.StoredSubcontract, secret string, isSender bool) {
	o.Lock()
	defer o.Unlock()
	o.log.settled = append(o.log.settled, secret)
}

func (o *recordingOwner) PaymentCancelled(ch *Channel, sc *ledger.StoredSubcontract, isSender bool) {
	o.Lock()
	defer o.Unlock()
	o.log.cancelled++
}

func (o *recordingOwner) TransitionRejected(ch *Channel, t ledger.Transition, err error) {
	o.Lock()
	defer o.Unlock()
	o.log.rejected = append(o.log.rejected, err)
}

func (o *recordingOwner) Committed(ch *Channel, state *ledger.ChannelState, sigs []string) {
	o.Lock()
	defer o.Unlock()
	o.log.committed = append(o.log.committed, state.BlockID)
}

func (o *recordingOwner) Halted(ch *Channel, err error) {
	o.Lock()
	defer o.Unlock()
	o.log.halted = err
}

func (o *recordingOwner) snapshot() ownerLog {
	o.Lock()
	defer o.Unlock()
	return ownerLog{
		added:     append([]bool{}, o.log.added...),
		settled:   append([]string{}, o.log.settled...),
		cancelled: o.log.cancelled,
		rejected:  append([]error{}, o.log.rejected...),
		committed: append([]uint64{}, o.log.committed...),
		halted:    o.log.halted,
	}
}

// orderedKeys returns two keys whose addresses sort left, right.
func orderedKeys(t *testing.T) (*ecdsa.PrivateKey, *ecdsa.PrivateKey) {
	k1, err := keys.GenerateECDSAKey()
	require.NoError(t, err)
	k2, err := keys.GenerateECDSAKey()
	require.NoError(t, err)
	if ledger.NewAddress(keys.AddressHex(&k2.PublicKey)).Less(ledger.NewAddress(keys.AddressHex(&k1.PublicKey))) {
		k1, k2 = k2, k1
	}
	return k1, k2
}

func addr(k *ecdsa.PrivateKey) ledger.Address {
	return ledger.NewAddress(keys.AddressHex(&k.PublicKey))
}

type transportSender struct {
	t net.Transport
}

func (s transportSender) Send(ctx context.Context, msg *net.Message) error {
	return s.t.Send(ctx, msg)
}

type testPair struct {
	a, b     *Channel
	oa, ob   *recordingOwner
	errsLock sync.Mutex
	errs     []error
	cancel   context.CancelFunc
}

func newTestPair(t *testing.T) *testPair {
	keyA, keyB := orderedKeys(t)
	ta, tb := net.NewInmemPipe(addr(keyA).String(), addr(keyB).String())

	p := &testPair{oa: &recordingOwner{}, ob: &recordingOwner{}}
	logger := common.NewTestEntry(t, logrus.DebugLevel)

	var err error
	p.a, err = New(DefaultConfig(), keyA, addr(keyB), nil, transportSender{ta}, p.oa, logger)
	require.NoError(t, err)
	p.b, err = New(DefaultConfig(), keyB, addr(keyA), nil, transportSender{tb}, p.ob, logger)
	require.NoError(t, err)
	require.True(t, p.a.IsLeft())
	require.False(t, p.b.IsLeft())

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	go p.pump(ctx, ta, p.a)
	go p.pump(ctx, tb, p.b)

	t.Cleanup(func() {
		cancel()
		ta.Close()
		tb.Close()
		p.a.Close()
		p.b.Close()
	})
	return p
}

func (p *testPair) pump(ctx context.Context, t net.Transport, ch *Channel) {
	for {
		msg, err := t.Receive(ctx)
		if err != nil {
			return
		}
		if err := ch.Receive(ctx, msg); err != nil {
			p.errsLock.Lock()
			p.errs = append(p.errs, err)
			p.errsLock.Unlock()
		}
	}
}

func (p *testPair) errors() []error {
	p.errsLock.Lock()
	defer p.errsLock.Unlock()
	return append([]error{}, p.errs...)
}

func (p *testPair) synced(blockID uint64) func() bool {
	return func() bool {
		if p.a.BlockID() != blockID || p.b.BlockID() != blockID {
			return false
		}
		if p.a.Phase() != Idle || p.b.Phase() != Idle {
			return false
		}
		h1, _ := p.a.State().Hash()
		h2, _ := p.b.State().Hash()
		return h1 == h2
	}
}

func (p *testPair) setup(t *testing.T, credit int64) {
	require.NoError(t, p.a.Submit(
		&ledger.AddSubchannel{ChainID: 1},
		&ledger.AddDelta{ChainID: 1, TokenID: 0},
		&ledger.SetCreditLimit{ChainID: 1, TokenID: 0, Amount: big.NewInt(credit)},
	))
	require.Eventually(t, p.synced(1), waitFor, 5*time.Millisecond)
}

func TestFlushCommitsOnBothSides(t *testing.T) {
	p := newTestPair(t)
	p.setup(t, 100)

	// left extends no credit, so it cannot pay
	require.NoError(t, p.a.Submit(&ledger.DirectPayment{ChainID: 1, TokenID: 0, Amount: big.NewInt(50)}))
	require.Eventually(t, func() bool { return len(p.oa.snapshot().rejected) == 1 }, waitFor, 5*time.Millisecond)
	assert.True(t, common.IsChannel(p.oa.snapshot().rejected[0], common.InsufficientCapacity))
	assert.Equal(t, uint64(1), p.a.BlockID())

	require.NoError(t, p.b.Submit(&ledger.DirectPayment{ChainID: 1, TokenID: 0, Amount: big.NewInt(50)}))
	require.Eventually(t, p.synced(2), waitFor, 5*time.Millisecond)

	b, err := p.b.DeriveDelta(1, 0)
	require.NoError(t, err)
	a, err := p.a.DeriveDelta(1, 0)
	require.NoError(t, err)
	assert.Equal(t, "50", b.OutCapacity.String())
	assert.Equal(t, "50", a.InCapacity.String())

	assert.Len(t, p.a.PeerSignatures(), 2)
	assert.Len(t, p.b.PeerSignatures(), 2)
	assert.Empty(t, p.errors())
}

func TestHashlockPaymentEvents(t *testing.T) {
	p := newTestPair(t)
	p.setup(t, 100)

	secret, err := crypto.NewSecret()
	require.NoError(t, err)

	require.NoError(t, p.b.Submit(&ledger.AddPayment{
		ChainID:  1,
		TokenID:  0,
		Amount:   big.NewInt(30),
		Hashlock: crypto.Hashlock(secret),
		Timelock: 100,
	}))
	require.Eventually(t, p.synced(2), waitFor, 5*time.Millisecond)
	require.Eventually(t, func() bool {
		return len(p.oa.snapshot().added) == 1 && len(p.ob.snapshot().added) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []bool{false}, p.oa.snapshot().added)
	assert.Equal(t, []bool{true}, p.ob.snapshot().added)

	id := p.a.State().Subcontracts[0].TransitionID
	require.NoError(t, p.a.Submit(&ledger.SettlePayment{TransitionID: id, Secret: secret}))
	require.Eventually(t, p.synced(3), waitFor, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		return len(p.oa.snapshot().settled) == 1 && len(p.ob.snapshot().settled) == 1
	}, waitFor, 5*time.Millisecond)
	assert.Equal(t, []string{secret}, p.oa.snapshot().settled)
	assert.Equal(t, []string{secret}, p.ob.snapshot().settled)
	assert.Empty(t, p.a.State().Subcontracts)

	d, _ := p.a.State().GetDelta(1, 0)
	assert.Equal(t, "30", d.OffDelta.String())
}

func TestConcurrentFlush(t *testing.T) {
	p := newTestPair(t)
	p.setup(t, 1000)

	// right needs credit from left as well as the other way around
	require.NoError(t, p.b.Submit(&ledger.SetCreditLimit{ChainID: 1, TokenID: 0, Amount: big.NewInt(1000)}))
	require.Eventually(t, p.synced(2), waitFor, 5*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_ = p.a.Submit(&ledger.DirectPayment{ChainID: 1, TokenID: 0, Amount: big.NewInt(1)})
			_ = p.a.Flush(context.Background())
		}()
		go func() {
			defer wg.Done()
			_ = p.b.Submit(&ledger.DirectPayment{ChainID: 1, TokenID: 0, Amount: big.NewInt(2)})
			_ = p.b.Flush(context.Background())
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return p.a.MempoolLen() == 0 && p.b.MempoolLen() == 0 &&
			p.a.Phase() == Idle && p.b.Phase() == Idle &&
			p.a.BlockID() == p.b.BlockID() && p.synced(p.a.BlockID())()
	}, waitFor, 5*time.Millisecond)

	d, _ := p.a.State().GetDelta(1, 0)
	assert.Equal(t, "40", d.OffDelta.String())

	for _, o := range []*recordingOwner{p.oa, p.ob} {
		require.Eventually(t, func() bool {
			return uint64(len(o.snapshot().committed)) == p.a.BlockID()
		}, waitFor, 5*time.Millisecond)
		committed := o.snapshot().committed
		for i, id := range committed {
			assert.Equal(t, uint64(i+1), id, "block ids must be committed once each")
		}
		assert.Equal(t, p.a.BlockID(), uint64(len(committed)))
	}
	assert.Empty(t, p.errors())
}

type captureSender struct {
	sync.Mutex
	msgs []*net.Message
}

func (s *captureSender) Send(ctx context.Context, msg *net.Message) error {
	s.Lock()
	defer s.Unlock()
	s.msgs = append(s.msgs, msg)
	return nil
}

func (s *captureSender) last() *net.Message {
	s.Lock()
	defer s.Unlock()
	if len(s.msgs) == 0 {
		return nil
	}
	return s.msgs[len(s.msgs)-1]
}

func signed(t *testing.T, key *ecdsa.PrivateKey, state *ledger.ChannelState) []string {
	proofs, err := proof.NewBuilder(DefaultConfig().Provider).BuildSigned(state, key)
	require.NoError(t, err)
	return proofs.Signatures
}

func TestReceiveValidation(t *testing.T) {
	keyA, keyB := orderedKeys(t)
	sender := &captureSender{}
	owner := &recordingOwner{}
	a, err := New(DefaultConfig(), keyA, addr(keyB), nil, sender, owner, common.NewTestEntry(t, logrus.DebugLevel))
	require.NoError(t, err)
	defer a.Close()

	ctx := context.Background()
	state := a.State()

	block, err := ledger.NewBlock(state, false, []ledger.Transition{&ledger.AddSubchannel{ChainID: 1}}, 1)
	require.NoError(t, err)
	dry, _, err := ledger.ApplyBlock(state, block, true)
	require.NoError(t, err)

	flush := func(body *net.FlushMessage) *net.Message {
		return net.NewFlushMessage(addr(keyB).String(), addr(keyA).String(), body)
	}

	// valid block from the right side
	err = a.Receive(ctx, flush(&net.FlushMessage{
		BlockID:           0,
		PendingSignatures: signed(t, keyB, state),
		NewSignatures:     signed(t, keyB, dry),
		Block:             block,
		Counter:           1,
	}))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), a.BlockID())

	ack := sender.last()
	require.NotNil(t, ack)
	assert.Nil(t, ack.Flush.Block)
	assert.Equal(t, uint64(1), ack.Flush.BlockID)
	require.NoError(t, proof.NewBuilder(DefaultConfig().Provider).Verify(a.State(), addr(keyA).String(), ack.Flush.PendingSignatures))

	// counter must increase
	err = a.Receive(ctx, flush(&net.FlushMessage{BlockID: 1, PendingSignatures: signed(t, keyB, a.State()), Counter: 1}))
	assert.True(t, common.IsChannel(err, common.ProtocolViolation))

	// nothing to acknowledge
	err = a.Receive(ctx, flush(&net.FlushMessage{BlockID: 2, PendingSignatures: []string{}, Counter: 2}))
	assert.True(t, common.IsChannel(err, common.ProtocolViolation))

	// stale block id
	stale, _ := ledger.NewBlock(state, false, []ledger.Transition{&ledger.AddSubchannel{ChainID: 2}}, 2)
	err = a.Receive(ctx, flush(&net.FlushMessage{BlockID: 0, PendingSignatures: []string{}, NewSignatures: []string{}, Block: stale, Counter: 3}))
	assert.True(t, common.IsChannel(err, common.HashChainMismatch))

	// signatures from the wrong key
	committed := a.State()
	next, _ := ledger.NewBlock(committed, false, []ledger.Transition{&ledger.AddSubchannel{ChainID: 2}}, 3)
	nextDry, _, err := ledger.ApplyBlock(committed, next, true)
	require.NoError(t, err)
	other, _ := keys.GenerateECDSAKey()
	err = a.Receive(ctx, flush(&net.FlushMessage{
		BlockID:           1,
		PendingSignatures: signed(t, keyB, committed),
		NewSignatures:     signed(t, other, nextDry),
		Block:             next,
		Counter:           4,
	}))
	assert.True(t, common.IsChannel(err, common.InvalidSignature))

	// a block claiming our side
	ours, _ := ledger.NewBlock(committed, true, []ledger.Transition{&ledger.AddSubchannel{ChainID: 2}}, 3)
	err = a.Receive(ctx, flush(&net.FlushMessage{BlockID: 1, Block: ours, Counter: 5}))
	assert.True(t, common.IsChannel(err, common.ProtocolViolation))

	assert.Equal(t, uint64(1), a.BlockID())
	assert.Nil(t, owner.snapshot().halted)
	assert.Equal(t, []uint64{1}, owner.snapshot().committed)

	// wrong sender
	wrong := net.NewFlushMessage(keys.AddressHex(&other.PublicKey), addr(keyA).String(), &net.FlushMessage{Counter: 6})
	err = a.Receive(ctx, wrong)
	assert.True(t, common.IsChannel(err, common.ProtocolViolation))
}

func TestHalt(t *testing.T) {
	keyA, keyB := orderedKeys(t)
	owner := &recordingOwner{}
	a, err := New(DefaultConfig(), keyA, addr(keyB), nil, &captureSender{}, owner, common.NewTestEntry(t, logrus.DebugLevel))
	require.NoError(t, err)
	defer a.Close()

	boom := common.NewChannelErr("ChannelState", common.Invariant, "test")
	assert.Equal(t, boom, a.halt(boom))
	assert.Equal(t, Halted, a.Phase())
	assert.Equal(t, boom, a.Err())
	assert.Equal(t, boom, owner.snapshot().halted)
	assert.Equal(t, boom, a.Submit(&ledger.AddSubchannel{ChainID: 1}))
	assert.Equal(t, boom, a.Flush(context.Background()))
}

func TestLoadState(t *testing.T) {
	keyA, keyB := orderedKeys(t)
	state, err := ledger.NewChannelState(addr(keyA), addr(keyB))
	require.NoError(t, err)
	state.BlockID = 7

	b, err := New(nil, keyB, addr(keyA), state, &captureSender{}, nil, nil)
	require.NoError(t, err)
	defer b.Close()
	assert.Equal(t, uint64(7), b.BlockID())

	other, _ := keys.GenerateECDSAKey()
	_, err = New(nil, other, addr(keyA), state, &captureSender{}, nil, nil)
	assert.True(t, common.IsChannel(err, common.InvalidChannelSetup))

	_, err = New(nil, keyA, addr(keyA), nil, &captureSender{}, nil, nil)
	assert.True(t, common.IsChannel(err, common.InvalidChannelSetup))
}
