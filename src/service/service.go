package service

import (
	"encoding/json"
	"net/http"
	"strings"
	"sync"

	"github.com/mosaicnetworks/xln/src/channel"
	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/mosaicnetworks/xln/src/node"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Service exposes a read-only HTTP API over a node.
type Service struct {
	sync.Mutex

	bindAddress string
	node        *node.Node
	mux         *http.ServeMux
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, n *node.Node, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		node:        n,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/channels", s.makeHandler(s.GetChannels))
	s.mux.HandleFunc("/channel/", s.makeHandler(s.GetChannel))
	s.mux.HandleFunc("/hashlocks", s.makeHandler(s.GetHashlocks))
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the API handlers, for mounting in another server.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving API")

	err := http.ListenAndServe(s.bindAddress, s.mux)
	if err != nil {
		s.logger.Error(err)
	}
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.GetStats())
}

// DeltaInfo is the capacity view of one token from this node's side.
type DeltaInfo struct {
	ChainID     uint32 `json:"chainId"`
	TokenID     uint32 `json:"tokenId"`
	Delta       string `json:"delta"`
	Collateral  string `json:"collateral"`
	InCapacity  string `json:"inCapacity"`
	OutCapacity string `json:"outCapacity"`
	OwnCredit   string `json:"ownCreditLimit"`
	PeerCredit  string `json:"peerCreditLimit"`
}

// ChannelInfo summarizes a channel.
type ChannelInfo struct {
	Peer         string      `json:"peer"`
	IsLeft       bool        `json:"isLeft"`
	ChannelKey   string      `json:"channelKey"`
	Phase        string      `json:"phase"`
	BlockID      uint64      `json:"blockId"`
	Mempool      int         `json:"mempool"`
	Subcontracts int         `json:"subcontracts"`
	Connected    bool        `json:"connected"`
	Error        string      `json:"error,omitempty"`
	Deltas       []DeltaInfo `json:"deltas"`
}

func (s *Service) channelInfo(ch *channel.Channel) ChannelInfo {
	state := ch.State()
	info := ChannelInfo{
		Peer:         ch.Peer().String(),
		IsLeft:       ch.IsLeft(),
		ChannelKey:   state.ChannelKey,
		Phase:        ch.Phase().String(),
		BlockID:      state.BlockID,
		Mempool:      ch.MempoolLen(),
		Subcontracts: len(state.Subcontracts),
		Connected:    s.node.Connected(ch.Peer()),
		Deltas:       []DeltaInfo{},
	}
	if err := ch.Err(); err != nil {
		info.Error = err.Error()
	}

	for _, sc := range state.Subchannels {
		for _, d := range sc.Deltas {
			derived := d.Derive(ch.IsLeft())
			info.Deltas = append(info.Deltas, DeltaInfo{
				ChainID:     sc.ChainID,
				TokenID:     d.TokenID,
				Delta:       derived.Delta.String(),
				Collateral:  derived.Collateral.String(),
				InCapacity:  derived.InCapacity.String(),
				OutCapacity: derived.OutCapacity.String(),
				OwnCredit:   derived.OwnCreditLimit.String(),
				PeerCredit:  derived.PeerCreditLimit.String(),
			})
		}
	}

	return info
}

// GetChannels ...
func (s *Service) GetChannels(w http.ResponseWriter, r *http.Request) {
	res := []ChannelInfo{}
	for _, ch := range s.node.Channels() {
		res = append(res, s.channelInfo(ch))
	}
	writeJSON(w, res)
}

// ChannelDetail is a channel with its full committed state.
type ChannelDetail struct {
	ChannelInfo
	PeerSignatures []string        `json:"peerSignatures"`
	State          json.RawMessage `json:"state"`
}

// GetChannel ...
func (s *Service) GetChannel(w http.ResponseWriter, r *http.Request) {
	param := strings.TrimPrefix(r.URL.Path, "/channel/")
	if param == "" {
		http.Error(w, "missing peer address", http.StatusBadRequest)
		return
	}
	peer := ledger.NewAddress(param)

	var found *channel.Channel
	for _, ch := range s.node.Channels() {
		if ch.Peer() == peer {
			found = ch
			break
		}
	}
	if found == nil {
		http.Error(w, "no channel with "+peer.String(), http.StatusNotFound)
		return
	}

	state, err := found.State().Marshal()
	if err != nil {
		s.logger.WithError(err).Errorf("Encoding state of channel with %s", peer)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, ChannelDetail{
		ChannelInfo:    s.channelInfo(found),
		PeerSignatures: found.PeerSignatures(),
		State:          state,
	})
}

// GetHashlocks ...
func (s *Service) GetHashlocks(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.node.Hashlocks())
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")

	encoder := json.NewEncoder(w)

	encoder.Encode(v)
}
