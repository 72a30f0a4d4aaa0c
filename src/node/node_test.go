package node

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"testing"
	"time"

	"github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/crypto"
	"github.com/mosaicnetworks/xln/src/crypto/keys"
	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/mosaicnetworks/xln/src/net"
	"github.com/mosaicnetworks/xln/src/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 10 * time.Second
	tick    = 5 * time.Millisecond

	chainID = uint32(1)
	tokenID = uint32(1)
)

func newTestNode(t *testing.T, network *net.InmemNetwork, conf *Config, st store.Store) *Node {
	key, err := keys.GenerateECDSAKey()
	require.NoError(t, err)
	return startTestNode(t, network, conf, key, st)
}

func startTestNode(t *testing.T, network *net.InmemNetwork, conf *Config, key *ecdsa.PrivateKey, st store.Store) *Node {
	if conf == nil {
		conf = TestConfig(t)
	}
	if st == nil {
		st = store.NewInmemStore()
	}
	l, err := network.Listen("")
	require.NoError(t, err)

	n := NewNode(conf, key, l.Addr(), st, network)
	require.NoError(t, n.Init())
	n.Listen(l)
	t.Cleanup(n.Shutdown)
	return n
}

func connect(t *testing.T, from, to *Node) {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, from.Connect(ctx, to.Profile()))
	require.Eventually(t, func() bool {
		return from.Connected(to.Self()) && to.Connected(from.Self())
	}, waitFor, tick)
}

func hasDelta(n *Node, peer ledger.Address) bool {
	ch, err := n.Channel(peer)
	if err != nil {
		return false
	}
	_, err = ch.DeriveDelta(chainID, tokenID)
	return err == nil
}

func outCapacity(t *testing.T, n *Node, peer ledger.Address) string {
	ch, err := n.Channel(peer)
	require.NoError(t, err)
	d, err := ch.DeriveDelta(chainID, tokenID)
	if err != nil {
		return "none"
	}
	return d.OutCapacity.String()
}

// openCredit opens the token between payer and payee and lets payer spend
// up to limit.
func openCredit(t *testing.T, payer, payee *Node, limit int64) {
	require.NoError(t, payer.OpenSubchannel(payee.Self(), chainID, tokenID))
	require.Eventually(t, func() bool {
		return hasDelta(payer, payee.Self()) && hasDelta(payee, payer.Self())
	}, waitFor, tick)

	require.NoError(t, payee.ExtendCredit(payer.Self(), chainID, tokenID, big.NewInt(limit)))
	require.Eventually(t, func() bool {
		return outCapacity(t, payer, payee.Self()) == big.NewInt(limit).String()
	}, waitFor, tick)
}

func wait(t *testing.T, p *PaymentPromise) (string, error) {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	return p.Wait(ctx)
}

func settledEverywhere(nodes ...*Node) func() bool {
	return func() bool {
		for _, n := range nodes {
			if len(n.Hashlocks()) != 0 {
				return false
			}
			for _, ch := range n.Channels() {
				if len(ch.State().Subcontracts) != 0 {
					return false
				}
			}
		}
		return true
	}
}

func TestDirectPayment(t *testing.T) {
	network := net.NewInmemNetwork()
	a := newTestNode(t, network, nil, nil)
	b := newTestNode(t, network, nil, nil)
	connect(t, a, b)

	openCredit(t, a, b, 1000)
	require.NoError(t, a.DirectPay(b.Self(), chainID, tokenID, big.NewInt(300)))

	require.Eventually(t, func() bool {
		return outCapacity(t, a, b.Self()) == "700" && outCapacity(t, b, a.Self()) == "300"
	}, waitFor, tick)
}

func TestHashlockPaymentOneHop(t *testing.T) {
	network := net.NewInmemNetwork()
	a := newTestNode(t, network, nil, nil)
	b := newTestNode(t, network, nil, nil)
	connect(t, a, b)
	openCredit(t, a, b, 1000)

	promise, err := a.Pay(&PaymentRequest{
		Route:   []ledger.Address{b.Self()},
		ChainID: chainID,
		TokenID: tokenID,
		Amount:  big.NewInt(250),
	})
	require.NoError(t, err)

	secret, err := wait(t, promise)
	require.NoError(t, err)
	assert.Equal(t, promise.Hashlock, crypto.Hashlock(secret))

	require.Eventually(t, settledEverywhere(a, b), waitFor, tick)
	assert.Equal(t, "750", outCapacity(t, a, b.Self()))
	assert.Equal(t, "250", outCapacity(t, b, a.Self()))
}

func TestMultiHopPayment(t *testing.T) {
	network := net.NewInmemNetwork()

	hubConf := TestConfig(t)
	hubConf.Fee = BasisPointsFee(100)

	a := newTestNode(t, network, nil, nil)
	h := newTestNode(t, network, hubConf, nil)
	b := newTestNode(t, network, nil, nil)

	connect(t, a, h)
	connect(t, b, h)
	require.NoError(t, a.AddProfile(b.Profile()))

	openCredit(t, a, h, 1000)
	openCredit(t, h, b, 1000)

	promise, err := a.Pay(&PaymentRequest{
		Route:       []ledger.Address{h.Self(), b.Self()},
		ChainID:     chainID,
		TokenID:     tokenID,
		Amount:      big.NewInt(200),
		MinReceived: big.NewInt(198),
	})
	require.NoError(t, err)

	secret, err := wait(t, promise)
	require.NoError(t, err)
	assert.Equal(t, promise.Hashlock, crypto.Hashlock(secret))

	require.Eventually(t, settledEverywhere(a, h, b), waitFor, tick)

	// a paid 200, the hub kept 2, b got 198
	assert.Equal(t, "800", outCapacity(t, a, h.Self()))
	assert.Equal(t, "200", outCapacity(t, h, a.Self()))
	assert.Equal(t, "802", outCapacity(t, h, b.Self()))
	assert.Equal(t, "198", outCapacity(t, b, h.Self()))
}

func TestPaymentCancelledUpstream(t *testing.T) {
	network := net.NewInmemNetwork()
	a := newTestNode(t, network, nil, nil)
	h := newTestNode(t, network, nil, nil)
	b := newTestNode(t, network, nil, nil)

	// the hub cannot reach b
	connect(t, a, h)
	require.NoError(t, a.AddProfile(b.Profile()))
	openCredit(t, a, h, 1000)

	promise, err := a.Pay(&PaymentRequest{
		Route:   []ledger.Address{h.Self(), b.Self()},
		ChainID: chainID,
		TokenID: tokenID,
		Amount:  big.NewInt(100),
	})
	require.NoError(t, err)

	_, err = wait(t, promise)
	assert.ErrorIs(t, err, ErrPaymentCancelled)

	require.Eventually(t, settledEverywhere(a, h), waitFor, tick)
	assert.Equal(t, "1000", outCapacity(t, a, h.Self()))
}

func TestTimelockBudget(t *testing.T) {
	network := net.NewInmemNetwork()
	a := newTestNode(t, network, nil, nil)
	h := newTestNode(t, network, nil, nil)
	b := newTestNode(t, network, nil, nil)

	connect(t, a, h)
	connect(t, b, h)
	require.NoError(t, a.AddProfile(b.Profile()))
	openCredit(t, a, h, 1000)
	openCredit(t, h, b, 1000)

	promise, err := a.Pay(&PaymentRequest{
		Route:    []ledger.Address{h.Self(), b.Self()},
		ChainID:  chainID,
		TokenID:  tokenID,
		Amount:   big.NewInt(100),
		Timelock: h.conf.TimelockDelta,
	})
	require.NoError(t, err)

	_, err = wait(t, promise)
	assert.ErrorIs(t, err, ErrPaymentCancelled)
	require.Eventually(t, settledEverywhere(a, h, b), waitFor, tick)
}

func TestPaymentOverCapacity(t *testing.T) {
	network := net.NewInmemNetwork()
	a := newTestNode(t, network, nil, nil)
	b := newTestNode(t, network, nil, nil)
	connect(t, a, b)
	openCredit(t, a, b, 100)

	promise, err := a.Pay(&PaymentRequest{
		Route:   []ledger.Address{b.Self()},
		ChainID: chainID,
		TokenID: tokenID,
		Amount:  big.NewInt(101),
	})
	require.NoError(t, err)

	_, err = wait(t, promise)
	assert.True(t, common.IsChannel(err, common.InsufficientCapacity), "expected InsufficientCapacity, got %v", err)
	assert.Equal(t, "100", outCapacity(t, a, b.Self()))
}

func TestPayValidation(t *testing.T) {
	network := net.NewInmemNetwork()
	a := newTestNode(t, network, nil, nil)

	other, _ := keys.GenerateECDSAKey()
	stranger := ledger.NewAddress(keys.AddressHex(&other.PublicKey))

	_, err := a.Pay(&PaymentRequest{Amount: big.NewInt(1)})
	assert.Error(t, err)

	_, err = a.Pay(&PaymentRequest{Route: []ledger.Address{stranger}, Amount: big.NewInt(0)})
	assert.Error(t, err)

	_, err = a.Pay(&PaymentRequest{Route: []ledger.Address{stranger}, Amount: big.NewInt(1)})
	assert.True(t, common.IsChannel(err, common.NotFound))

	_, err = a.Pay(&PaymentRequest{Route: []ledger.Address{a.Self()}, Amount: big.NewInt(1)})
	assert.Error(t, err)
}

func TestRestoreFromStore(t *testing.T) {
	network := net.NewInmemNetwork()
	st := store.NewInmemStore()

	keyA, err := keys.GenerateECDSAKey()
	require.NoError(t, err)

	a := startTestNode(t, network, nil, keyA, st)
	b := newTestNode(t, network, nil, nil)
	connect(t, a, b)
	openCredit(t, a, b, 500)

	blockID := func() uint64 {
		ch, _ := a.Channel(b.Self())
		return ch.BlockID()
	}()
	require.Eventually(t, func() bool {
		snap, err := st.GetChannelState(b.Self())
		return err == nil && snap.State.BlockID == blockID
	}, waitFor, tick)

	a.Shutdown()
	assert.Equal(t, Shutdown, a.GetState())

	restarted := startTestNode(t, network, nil, keyA, st)
	chans := restarted.Channels()
	require.Len(t, chans, 1)
	assert.Equal(t, b.Self(), chans[0].Peer())
	assert.Equal(t, blockID, chans[0].BlockID())
	assert.Equal(t, "500", outCapacity(t, restarted, b.Self()))

	// and the channel keeps working with the peer
	connect(t, restarted, b)
	require.NoError(t, restarted.DirectPay(b.Self(), chainID, tokenID, big.NewInt(50)))
	require.Eventually(t, func() bool {
		return outCapacity(t, b, restarted.Self()) == "50"
	}, waitFor, tick)
}

func TestGetStats(t *testing.T) {
	network := net.NewInmemNetwork()
	a := newTestNode(t, network, nil, nil)
	b := newTestNode(t, network, nil, nil)
	connect(t, a, b)

	stats := a.GetStats()
	assert.Equal(t, a.Self().String(), stats["address"])
	assert.Equal(t, "Running", stats["state"])
	assert.Equal(t, "1", stats["channels"])
	assert.Equal(t, "1", stats["connected_peers"])
	assert.Equal(t, "0", stats["hashlocks"])
}
