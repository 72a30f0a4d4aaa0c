package ledger

import (
	"fmt"

	"github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/crypto"
)

// Subchannel holds the Deltas of one chain.
type Subchannel struct {
	ChainID          uint32
	Deltas           []*Delta
	CooperativeNonce uint64
	DisputeNonce     uint64
}

// NewSubchannel ...
func NewSubchannel(chainID uint32) *Subchannel {
	return &Subchannel{
		ChainID: chainID,
		Deltas:  []*Delta{},
	}
}

// Clone ...
func (s *Subchannel) Clone() *Subchannel {
	deltas := make([]*Delta, len(s.Deltas))
	for i, d := range s.Deltas {
		deltas[i] = d.Clone()
	}
	return &Subchannel{
		ChainID:          s.ChainID,
		Deltas:           deltas,
		CooperativeNonce: s.CooperativeNonce,
		DisputeNonce:     s.DisputeNonce,
	}
}

// DeltaIndex returns the position of tokenID in s.Deltas, or -1.
func (s *Subchannel) DeltaIndex(tokenID uint32) int {
	for i, d := range s.Deltas {
		if d.TokenID == tokenID {
			return i
		}
	}
	return -1
}

// ChannelState is the balance sheet of one channel.
type ChannelState struct {
	Left              Address
	Right             Address
	ChannelKey        string
	PreviousBlockHash string
	PreviousStateHash string
	BlockID           uint64
	Timestamp         int64
	TransitionID      uint64
	Subchannels       []*Subchannel
	Subcontracts      []*StoredSubcontract
}

// NewChannelState creates the empty state of the channel between left and
// right.
func NewChannelState(left, right Address) (*ChannelState, error) {
	if err := EnsureValidAddressOrder(left, right); err != nil {
		return nil, err
	}
	return &ChannelState{
		Left:         left,
		Right:        right,
		ChannelKey:   ChannelKey(left, right),
		Subchannels:  []*Subchannel{},
		Subcontracts: []*StoredSubcontract{},
	}, nil
}

// Clone returns a deep copy of the state. Dry runs and block applications work
// on clones only.
func (s *ChannelState) Clone() *ChannelState {
	subchannels := make([]*Subchannel, len(s.Subchannels))
	for i, sc := range s.Subchannels {
		subchannels[i] = sc.Clone()
	}
	subcontracts := make([]*StoredSubcontract, len(s.Subcontracts))
	for i, sc := range s.Subcontracts {
		subcontracts[i] = sc.Clone()
	}
	return &ChannelState{
		Left:              s.Left,
		Right:             s.Right,
		ChannelKey:        s.ChannelKey,
		PreviousBlockHash: s.PreviousBlockHash,
		PreviousStateHash: s.PreviousStateHash,
		BlockID:           s.BlockID,
		Timestamp:         s.Timestamp,
		TransitionID:      s.TransitionID,
		Subchannels:       subchannels,
		Subcontracts:      subcontracts,
	}
}

// GetSubchannel ...
func (s *ChannelState) GetSubchannel(chainID uint32) (*Subchannel, error) {
	for _, sc := range s.Subchannels {
		if sc.ChainID == chainID {
			return sc, nil
		}
	}
	return nil, common.NewChannelErr("Subchannel", common.NotFound, fmt.Sprint(chainID))
}

// GetDelta ...
func (s *ChannelState) GetDelta(chainID, tokenID uint32) (*Delta, error) {
	sc, err := s.GetSubchannel(chainID)
	if err != nil {
		return nil, err
	}
	i := sc.DeltaIndex(tokenID)
	if i < 0 {
		return nil, common.NewChannelErr("Delta", common.NotFound, fmt.Sprintf("%d/%d", chainID, tokenID))
	}
	return sc.Deltas[i], nil
}

// DeriveDelta computes the capacity view of one Delta from the left side when
// isLeft is true, or from the right side otherwise.
func (s *ChannelState) DeriveDelta(chainID, tokenID uint32, isLeft bool) (DerivedDelta, error) {
	d, err := s.GetDelta(chainID, tokenID)
	if err != nil {
		return DerivedDelta{}, err
	}
	return d.Derive(isLeft), nil
}

// FindSubcontract returns the index of the subcontract with transitionID
// proposed by the given side, or -1.
func (s *ChannelState) FindSubcontract(transitionID uint64, isLeft bool) int {
	for i, sc := range s.Subcontracts {
		if sc.TransitionID == transitionID && sc.IsLeft == isLeft {
			return i
		}
	}
	return -1
}

func (s *ChannelState) removeSubcontract(i int) {
	s.Subcontracts = append(s.Subcontracts[:i], s.Subcontracts[i+1:]...)
}

// SubcontractsOf returns the pending subcontracts addressed to chainID in
// state order.
func (s *ChannelState) SubcontractsOf(chainID uint32) []*StoredSubcontract {
	res := []*StoredSubcontract{}
	for _, sc := range s.Subcontracts {
		if sc.ChainID() == chainID {
			res = append(res, sc)
		}
	}
	return res
}

// Peer returns the counterparty of self.
func (s *ChannelState) Peer(self Address) Address {
	if self == s.Left {
		return s.Right
	}
	return s.Left
}

// Hash returns the keccak256 hash of the canonical encoding of the state.
func (s *ChannelState) Hash() (string, error) {
	bytes, err := s.Marshal()
	if err != nil {
		return "", err
	}
	return crypto.Keccak256Hex(bytes), nil
}
