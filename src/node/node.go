package node

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/mosaicnetworks/xln/src/channel"
	"github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/crypto"
	"github.com/mosaicnetworks/xln/src/crypto/keys"
	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/mosaicnetworks/xln/src/net"
	"github.com/mosaicnetworks/xln/src/queue"
	"github.com/mosaicnetworks/xln/src/store"
	"github.com/sirupsen/logrus"
)

// Node is one party of the network. It owns a channel with every peer it
// deals with, dispatches inbound messages to them, and routes payments
// across them.
type Node struct {
	state

	conf   *Config
	logger *logrus.Entry

	key     *ecdsa.PrivateKey
	self    ledger.Address
	profile *net.Profile

	store      store.Store
	dialer     net.Dialer
	transports *net.TransportStore
	queues     *queue.Manager

	channelsLock sync.Mutex
	channels     map[ledger.Address]*channel.Channel

	profilesLock sync.RWMutex
	profiles     map[ledger.Address]*net.Profile

	hashlocks *hashlockTable

	promisesLock sync.Mutex
	promises     map[string]*PaymentPromise

	metrics *routerMetrics

	ctx    context.Context
	cancel context.CancelFunc

	start time.Time
}

// NewNode is a factory method that returns a Node instance. netAddr is where
// peers can reach this node; it is advertised in the handshake.
func NewNode(conf *Config,
	key *ecdsa.PrivateKey,
	netAddr string,
	store store.Store,
	dialer net.Dialer,
) *Node {

	if conf.Logger == nil {
		conf.Logger = logrus.New()
	}
	if conf.Channel == nil {
		conf.Channel = channel.DefaultConfig()
	}
	if conf.Fee == nil {
		conf.Fee = BasisPointsFee(0)
	}

	self := ledger.NewAddress(keys.AddressHex(&key.PublicKey))
	logger := conf.Logger.WithField("this", self.String())
	ctx, cancel := context.WithCancel(context.Background())

	node := Node{
		conf:   conf,
		logger: logger,
		key:    key,
		self:   self,
		profile: &net.Profile{
			Address:   self.String(),
			PubKeyHex: keys.PublicKeyHex(&key.PublicKey),
			NetAddr:   netAddr,
		},
		store:      store,
		dialer:     dialer,
		transports: net.NewTransportStore(),
		queues:     queue.NewManager(logger),
		channels:   make(map[ledger.Address]*channel.Channel),
		profiles:   make(map[ledger.Address]*net.Profile),
		hashlocks:  newHashlockTable(),
		promises:   make(map[string]*PaymentPromise),
		metrics:    newRouterMetrics(),
		ctx:        ctx,
		cancel:     cancel,
		start:      time.Now(),
	}

	return &node
}

// Init recreates the channels found in the store.
func (n *Node) Init() error {
	peers, err := n.store.ListChannels()
	if err != nil {
		return err
	}
	for _, p := range peers {
		if _, err := n.Channel(p); err != nil {
			return fmt.Errorf("restoring channel with %s: %w", p, err)
		}
	}
	n.logger.WithField("channels", len(peers)).Debug("Init")
	return nil
}

// Self returns the address of this node.
func (n *Node) Self() ledger.Address {
	return n.self
}

// Profile returns what this node announces in handshakes.
func (n *Node) Profile() *net.Profile {
	p := *n.profile
	return &p
}

// GetState returns the state of the node.
func (n *Node) GetState() State {
	return n.getState()
}

// AddProfile registers a known party. Public keys of the parties on a
// payment route must be known to build its onion.
func (n *Node) AddProfile(p *net.Profile) error {
	if _, err := keys.ParsePublicKeyHex(p.PubKeyHex); err != nil {
		return err
	}
	addr := ledger.NewAddress(p.Address)

	n.profilesLock.Lock()
	defer n.profilesLock.Unlock()
	cp := *p
	cp.Address = addr.String()
	n.profiles[addr] = &cp
	return nil
}

// GetProfile ...
func (n *Node) GetProfile(addr ledger.Address) (*net.Profile, bool) {
	n.profilesLock.RLock()
	defer n.profilesLock.RUnlock()
	p, ok := n.profiles[ledger.NewAddress(addr.String())]
	if !ok {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// Channel returns the channel with peer, creating it, from the store if a
// snapshot exists, on first use.
func (n *Node) Channel(peer ledger.Address) (*channel.Channel, error) {
	peer = ledger.NewAddress(peer.String())

	n.channelsLock.Lock()
	defer n.channelsLock.Unlock()

	if ch, ok := n.channels[peer]; ok {
		return ch, nil
	}
	if n.getState() == Shutdown {
		return nil, fmt.Errorf("node is shut down")
	}

	var state *ledger.ChannelState
	var sigs []string
	snap, err := n.store.GetChannelState(peer)
	switch {
	case err == nil:
		state, sigs = snap.State, snap.PeerSignatures
	case common.IsStore(err, common.KeyNotFound):
	default:
		return nil, err
	}

	ch, err := channel.New(n.conf.Channel, n.key, peer, state, n.transports, n, n.logger)
	if err != nil {
		return nil, err
	}
	if len(sigs) > 0 {
		if err := ch.RestoreSignatures(n.ctx, sigs); err != nil {
			n.logger.WithError(err).WithField("peer", peer).Warn("Dropping stored peer signatures")
		}
	}

	n.channels[peer] = ch
	n.logger.WithFields(logrus.Fields{
		"peer":     peer,
		"block_id": ch.BlockID(),
		"left":     ch.IsLeft(),
	}).Debug("Created channel")

	return ch, nil
}

// Channels returns every channel, sorted by peer.
func (n *Node) Channels() []*channel.Channel {
	n.channelsLock.Lock()
	defer n.channelsLock.Unlock()
	res := make([]*channel.Channel, 0, len(n.channels))
	for _, ch := range n.channels {
		res = append(res, ch)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Peer().Less(res[j].Peer()) })
	return res
}

// Connected reports whether an open transport to peer exists.
func (n *Node) Connected(peer ledger.Address) bool {
	_, ok := n.transports.Get(ledger.NewAddress(peer.String()).String())
	return ok
}

// Submit queues txs on the channel with peer.
func (n *Node) Submit(peer ledger.Address, txs ...ledger.Transition) error {
	ch, err := n.Channel(peer)
	if err != nil {
		return err
	}
	return ch.Submit(txs...)
}

// OpenSubchannel proposes the sub-ledger of chainID with the given tokens.
func (n *Node) OpenSubchannel(peer ledger.Address, chainID uint32, tokenIDs ...uint32) error {
	txs := []ledger.Transition{&ledger.AddSubchannel{ChainID: chainID}}
	for _, tok := range tokenIDs {
		txs = append(txs, &ledger.AddDelta{ChainID: chainID, TokenID: tok})
	}
	return n.Submit(peer, txs...)
}

// ExtendCredit sets the credit limit this node grants peer.
func (n *Node) ExtendCredit(peer ledger.Address, chainID, tokenID uint32, amount *big.Int) error {
	return n.Submit(peer, &ledger.SetCreditLimit{ChainID: chainID, TokenID: tokenID, Amount: amount})
}

// DirectPay moves amount to peer without a hashlock.
func (n *Node) DirectPay(peer ledger.Address, chainID, tokenID uint32, amount *big.Int) error {
	return n.Submit(peer, &ledger.DirectPayment{ChainID: chainID, TokenID: tokenID, Amount: amount})
}

// PaymentRequest describes a hashlocked payment. Route lists the hops after
// this node; its last element is the payee.
type PaymentRequest struct {
	Route   []ledger.Address
	ChainID uint32
	TokenID uint32
	Amount  *big.Int
	// MinReceived is the least the payee accepts; nil means any amount.
	MinReceived *big.Int
	// Timelock defaults to Config.DefaultTimelock.
	Timelock int64
}

// Pay locks the amount on the channel with the first hop of the route. The
// promise resolves with the secret once the payee has settled.
func (n *Node) Pay(req *PaymentRequest) (*PaymentPromise, error) {
	if len(req.Route) == 0 {
		return nil, fmt.Errorf("empty route")
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}

	hops := make([]Hop, len(req.Route))
	for i, addr := range req.Route {
		addr = ledger.NewAddress(addr.String())
		if addr == n.self {
			return nil, fmt.Errorf("route goes through this node")
		}
		p, ok := n.GetProfile(addr)
		if !ok {
			return nil, common.NewChannelErr("Profile", common.NotFound, addr.String())
		}
		pub, err := keys.ParsePublicKeyHex(p.PubKeyHex)
		if err != nil {
			return nil, err
		}
		hops[i] = Hop{Address: addr, PubKey: pub}
	}

	secret, err := crypto.NewSecret()
	if err != nil {
		return nil, err
	}
	hashlock := crypto.Hashlock(secret)

	pkg, err := BuildOnion(hops, secret, req.MinReceived)
	if err != nil {
		return nil, err
	}

	timelock := req.Timelock
	if timelock == 0 {
		timelock = n.conf.DefaultTimelock
	}

	promise := NewPaymentPromise(hashlock)
	n.promisesLock.Lock()
	n.promises[hashlock] = promise
	n.promisesLock.Unlock()

	tx := &ledger.AddPayment{
		ChainID:          req.ChainID,
		TokenID:          req.TokenID,
		Amount:           new(big.Int).Set(req.Amount),
		Hashlock:         hashlock,
		Timelock:         timelock,
		EncryptedPackage: pkg,
	}
	if err := n.Submit(hops[0].Address, tx); err != nil {
		n.resolve(hashlock, "", err)
		return nil, err
	}

	n.logger.WithFields(logrus.Fields{
		"hashlock": hashlock,
		"hops":     len(hops),
		"amount":   req.Amount.String(),
	}).Debug("Payment started")

	return promise, nil
}

// Hashlocks returns a copy of the payments in flight through this node.
func (n *Node) Hashlocks() map[string]*HashlockData {
	return n.hashlocks.snapshot()
}

// GetStats returns information about the node.
func (n *Node) GetStats() map[string]string {
	channels := n.Channels()
	halted := 0
	for _, ch := range channels {
		if ch.Err() != nil {
			halted++
		}
	}

	return map[string]string{
		"address":         n.self.String(),
		"state":           n.getState().String(),
		"channels":        strconv.Itoa(len(channels)),
		"halted_channels": strconv.Itoa(halted),
		"connected_peers": strconv.Itoa(n.transports.Len()),
		"hashlocks":       strconv.Itoa(n.hashlocks.len()),
		"time_elapsed":    strconv.FormatFloat(time.Since(n.start).Seconds(), 'f', 2, 64),
	}
}

// Shutdown closes every transport and stops every channel. It waits for the
// node's goroutines to return.
func (n *Node) Shutdown() {
	if n.getState() == Shutdown {
		return
	}
	n.logger.Debug("Shutdown")
	n.setState(Shutdown)

	n.cancel()
	n.transports.CloseAll()
	n.waitRoutines()
	n.queues.Close()

	for _, ch := range n.Channels() {
		ch.Close()
	}

	n.promisesLock.Lock()
	promises := n.promises
	n.promises = make(map[string]*PaymentPromise)
	n.promisesLock.Unlock()
	for _, p := range promises {
		p.Respond("", fmt.Errorf("node shut down"))
	}
}

func (n *Node) resolve(hashlock, secret string, err error) bool {
	n.promisesLock.Lock()
	p, ok := n.promises[hashlock]
	delete(n.promises, hashlock)
	n.promisesLock.Unlock()

	if ok {
		p.Respond(secret, err)
	}
	return ok
}
