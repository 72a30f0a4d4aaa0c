package store

import (
	"fmt"
	"strings"

	"github.com/dgraph-io/badger"
	cm "github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

const (
	statePrefix      = "state"
	signaturesPrefix = "sigs"
)

// BadgerStore writes snapshots to a badger database and keeps an InmemStore
// in front of it for reads.
type BadgerStore struct {
	inmemStore *InmemStore
	db         *badger.DB
	path       string
	logger     *logrus.Entry
}

// NewBadgerStore opens an existing database or creates a new one if nothing is
// found in path.
func NewBadgerStore(path string, logger *logrus.Entry) (*BadgerStore, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.InfoLevel
		logger = logrus.NewEntry(log)
	}

	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true).
		WithLogger(logger.WithField("ns", "badger"))

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	store := &BadgerStore{
		inmemStore: NewInmemStore(),
		db:         handle,
		path:       path,
		logger:     logger,
	}
	return store, nil
}

/*******************************************************************************
Keys
*******************************************************************************/

func stateKey(peer ledger.Address) []byte {
	return []byte(fmt.Sprintf("%s_%s", statePrefix, peer))
}

func signaturesKey(peer ledger.Address) []byte {
	return []byte(fmt.Sprintf("%s_%s", signaturesPrefix, peer))
}

/*******************************************************************************
Implement the Store interface
*******************************************************************************/

// SetChannelState implements the Store interface. The state and the
// signatures are written in one transaction.
func (s *BadgerStore) SetChannelState(peer ledger.Address, state *ledger.ChannelState, peerSignatures []string) error {
	peer = ledger.NewAddress(peer.String())
	if err := s.inmemStore.SetChannelState(peer, state, peerSignatures); err != nil {
		return err
	}
	return s.dbSetChannelState(peer, state, peerSignatures)
}

// GetChannelState implements the Store interface.
func (s *BadgerStore) GetChannelState(peer ledger.Address) (*Snapshot, error) {
	peer = ledger.NewAddress(peer.String())
	snap, err := s.inmemStore.GetChannelState(peer)
	if err == nil {
		return snap, nil
	}
	if !cm.IsStore(err, cm.KeyNotFound) {
		return nil, err
	}

	snap, err = s.dbGetChannelState(peer)
	if err != nil {
		return nil, err
	}
	if err := s.inmemStore.SetChannelState(peer, snap.State, snap.PeerSignatures); err != nil {
		return nil, err
	}
	return snap, nil
}

// ListChannels implements the Store interface. It lists what is on disk.
func (s *BadgerStore) ListChannels() ([]ledger.Address, error) {
	return s.dbListChannels()
}

// StorePath implements the Store interface.
func (s *BadgerStore) StorePath() string {
	return s.path
}

// Close implements the Store interface.
func (s *BadgerStore) Close() error {
	if err := s.inmemStore.Close(); err != nil {
		return err
	}
	return s.db.Close()
}

/*******************************************************************************
DB Methods
*******************************************************************************/

func (s *BadgerStore) dbSetChannelState(peer ledger.Address, state *ledger.ChannelState, peerSignatures []string) error {
	stateBytes, err := state.Marshal()
	if err != nil {
		return err
	}
	sigBytes, err := encodeSignatures(peerSignatures)
	if err != nil {
		return err
	}

	tx := s.db.NewTransaction(true)
	defer tx.Discard()

	if err := tx.Set(stateKey(peer), stateBytes); err != nil {
		return err
	}
	if err := tx.Set(signaturesKey(peer), sigBytes); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"peer":     peer,
		"block_id": state.BlockID,
	}).Debug("Saved channel state")

	return nil
}

func (s *BadgerStore) dbGetChannelState(peer ledger.Address) (*Snapshot, error) {
	var stateBytes, sigBytes []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(stateKey(peer))
		if err != nil {
			return err
		}
		if stateBytes, err = item.ValueCopy(nil); err != nil {
			return err
		}
		item, err = txn.Get(signaturesKey(peer))
		if err != nil {
			return err
		}
		sigBytes, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, mapError(err, "ChannelState", peer.String())
	}

	state := new(ledger.ChannelState)
	if err := state.Unmarshal(stateBytes); err != nil {
		return nil, err
	}
	sigs, err := decodeSignatures(sigBytes)
	if err != nil {
		return nil, err
	}

	return &Snapshot{State: state, PeerSignatures: sigs}, nil
}

func (s *BadgerStore) dbListChannels() ([]ledger.Address, error) {
	prefix := []byte(statePrefix + "_")
	res := []ledger.Address{}

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().KeyCopy(nil))
			res = append(res, ledger.Address(strings.TrimPrefix(key, string(prefix))))
		}
		return nil
	})

	return res, err
}

func encodeSignatures(sigs []string) ([]byte, error) {
	if sigs == nil {
		sigs = []string{}
	}
	var b []byte
	enc := codec.NewEncoderBytes(&b, &codec.JsonHandle{})
	if err := enc.Encode(sigs); err != nil {
		return nil, err
	}
	return b, nil
}

func decodeSignatures(data []byte) ([]string, error) {
	var sigs []string
	dec := codec.NewDecoderBytes(data, &codec.JsonHandle{})
	if err := dec.Decode(&sigs); err != nil {
		return nil, err
	}
	return sigs, nil
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil {
		if isDBKeyNotFound(err) {
			return cm.NewStoreErr(name, cm.KeyNotFound, key)
		}
	}
	return err
}
