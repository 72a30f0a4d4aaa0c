package xln

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/mosaicnetworks/xln/src/config"
	"github.com/mosaicnetworks/xln/src/crypto/keys"
	"github.com/mosaicnetworks/xln/src/net"
	"github.com/mosaicnetworks/xln/src/node"
	"github.com/mosaicnetworks/xln/src/peers"
	"github.com/mosaicnetworks/xln/src/service"
	"github.com/mosaicnetworks/xln/src/store"
	"github.com/sirupsen/logrus"
)

// XLN is a struct containing the key parts of an XLN node.
type XLN struct {
	Config   *config.Config
	Node     *node.Node
	Listener net.Listener
	Dialer   net.Dialer
	Store    store.Store
	Peers    *peers.Peers
	Service  *service.Service
	logger   *logrus.Entry
}

// NewXLN is a factory method to produce an XLN instance.
func NewXLN(c *config.Config) *XLN {
	engine := &XLN{
		Config: c,
		logger: c.Logger(),
	}

	return engine
}

// Init initialises the XLN object. It reads the key and the peers from the
// data directory, opens the store, binds the listener and creates the node.
func (x *XLN) Init() error {
	if err := x.initKey(); err != nil {
		x.logger.WithError(err).Error("xln.go:Init() initKey")
		return err
	}

	if err := x.initPeers(); err != nil {
		x.logger.WithError(err).Error("xln.go:Init() initPeers")
		return err
	}

	if err := x.initStore(); err != nil {
		x.logger.WithError(err).Error("xln.go:Init() initStore")
		return err
	}

	if err := x.initTransport(); err != nil {
		x.logger.WithError(err).Error("xln.go:Init() initTransport")
		return err
	}

	if err := x.initNode(); err != nil {
		x.logger.WithError(err).Error("xln.go:Init() initNode")
		return err
	}

	if err := x.initService(); err != nil {
		x.logger.WithError(err).Error("xln.go:Init() initService")
		return err
	}

	return nil
}

func (x *XLN) initKey() error {
	if x.Config.Key == nil {
		simpleKeyfile := keys.NewSimpleKeyfile(x.Config.Keyfile())

		privKey, err := simpleKeyfile.ReadKey()
		if err != nil {
			x.logger.Errorf("Error reading private key from file: %v", err)
			return err
		}

		x.Config.Key = privKey
	}

	return nil
}

func (x *XLN) initPeers() error {
	if x.Peers != nil {
		return nil
	}

	peerStore := peers.NewJSONPeers(x.Config.DataDir)

	participants, err := peerStore.Peers()
	if os.IsNotExist(err) {
		x.logger.WithField("datadir", x.Config.DataDir).Warn("No peers.json, starting without known peers")
		participants = peers.NewPeers()
	} else if err != nil {
		return err
	}

	x.Peers = participants

	return nil
}

func (x *XLN) initStore() error {
	if !x.Config.Store {
		x.logger.Debug("Creating InmemStore")
		x.Store = store.NewInmemStore()
		return nil
	}

	dbPath := x.Config.DatabaseDir
	x.logger.WithField("path", dbPath).Debug("Creating BadgerStore")

	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return err
	}

	badgerStore, err := store.NewBadgerStore(dbPath, x.logger.WithField("component", "store"))
	if err != nil {
		return err
	}

	x.Store = badgerStore

	return nil
}

func (x *XLN) initTransport() error {
	listener, err := net.NewWebsocketListener(
		x.Config.BindAddr,
		x.logger.WithField("component", "websocket"),
	)
	if err != nil {
		return err
	}

	x.Listener = listener
	if x.Config.AdvertiseAddr == "" {
		x.Config.AdvertiseAddr = "ws://" + listener.Addr()
	}
	x.Dialer = &net.WebsocketDialer{Timeout: x.Config.DialTimeout}

	return nil
}

func (x *XLN) initNode() error {
	x.Node = node.NewNode(
		x.Config.NodeConfig(),
		x.Config.Key,
		x.Config.AdvertisedURL(),
		x.Store,
		x.Dialer,
	)

	if err := x.Node.Init(); err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	self := x.Node.Self().String()
	_, others := peers.ExcludePeer(x.Peers.ToPeerSlice(), self)
	for _, p := range others {
		if err := x.Node.AddProfile(p.Profile()); err != nil {
			return fmt.Errorf("invalid peer %s: %s", p.Address, err)
		}
	}

	x.logger.WithFields(logrus.Fields{
		"address": self,
		"peers":   x.Peers.Len(),
		"listen":  x.Listener.Addr(),
	}).Info("Node initialized")

	return nil
}

func (x *XLN) initService() error {
	if !x.Config.NoService {
		x.Service = service.NewService(x.Config.ServiceAddr, x.Node, x.logger.WithField("component", "service"))
	}
	return nil
}

// Connect dials every known peer. Failures are logged; those peers can still
// connect to us later.
func (x *XLN) Connect(ctx context.Context) {
	_, others := peers.ExcludePeer(x.Peers.ToPeerSlice(), x.Node.Self().String())
	for _, p := range others {
		if err := x.Node.Connect(ctx, p.Profile()); err != nil {
			x.logger.WithError(err).WithField("peer", p.Address).Warn("Cannot connect to peer")
		}
	}
}

// Start accepts peers, dials the known ones and serves the API. It does not
// block.
func (x *XLN) Start() {
	x.Node.Listen(x.Listener)

	if x.Service != nil {
		go x.Service.Serve()
	}

	x.Connect(context.Background())
}

// Run starts the node and blocks until the process receives SIGINT or
// SIGTERM.
func (x *XLN) Run() {
	x.Start()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-signalCh

	x.logger.WithField("signal", sig.String()).Info("Shutting down")
	x.Shutdown()
}

// Shutdown stops the node and closes the store.
func (x *XLN) Shutdown() {
	if x.Node != nil {
		x.Node.Shutdown()
	}
	if x.Listener != nil {
		x.Listener.Close()
	}
	if x.Store != nil {
		if err := x.Store.Close(); err != nil {
			x.logger.WithError(err).Error("Closing store")
		}
	}
}

// Keygen generates a new key and writes it to keyfile. It fails if a key
// already lives there.
func Keygen(keyfile string) (*ecdsa.PrivateKey, error) {
	if _, err := os.Stat(keyfile); err == nil {
		return nil, fmt.Errorf("A key already lives under: %s", filepath.Dir(keyfile))
	}

	key, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(keyfile), 0700); err != nil {
		return nil, err
	}

	if err := keys.NewSimpleKeyfile(keyfile).WriteKey(key); err != nil {
		return nil, err
	}

	return key, nil
}
