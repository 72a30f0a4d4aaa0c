package ledger

import (
	"bytes"
	"fmt"
	"math/big"

	"github.com/ugorji/go/codec"
)

// The hashed encoding is canonical JSON. Amounts travel as decimal strings so
// that arbitrary precision survives the round trip.

type deltaWire struct {
	TokenID          uint32 `json:"tokenId"`
	Collateral       string `json:"collateral"`
	OnDelta          string `json:"ondelta"`
	OffDelta         string `json:"offdelta"`
	LeftCreditLimit  string `json:"leftCreditLimit"`
	RightCreditLimit string `json:"rightCreditLimit"`
	LeftAllowance    string `json:"leftAllowence"`
	RightAllowance   string `json:"rightAllowence"`
}

type subchannelWire struct {
	ChainID          uint32      `json:"chainId"`
	Deltas           []deltaWire `json:"deltas"`
	CooperativeNonce uint64      `json:"cooperativeNonce"`
	DisputeNonce     uint64      `json:"disputeNonce"`
}

type transitionWire struct {
	Type             string  `json:"type"`
	ChainID          uint32  `json:"chainId"`
	TokenID          uint32  `json:"tokenId"`
	SubTokenID       uint32  `json:"subTokenId"`
	Amount           string  `json:"amount"`
	AddAmount        string  `json:"addAmount"`
	SubAmount        string  `json:"subAmount"`
	Hashlock         string  `json:"hashlock"`
	Timelock         int64   `json:"timelock"`
	EncryptedPackage string  `json:"encryptedPackage"`
	TransitionID     uint64  `json:"transitionId"`
	Secret           string  `json:"secret"`
	OwnerIsLeft      bool    `json:"ownerIsLeft"`
	SubcontractIndex int     `json:"subcontractIndex"`
	FillingRatio     *uint32 `json:"fillingRatio"`
}

type subcontractWire struct {
	Transition   transitionWire `json:"originalTransition"`
	TransitionID uint64         `json:"transitionId"`
	BlockID      uint64         `json:"blockId"`
	Timestamp    int64          `json:"timestamp"`
	IsLeft       bool           `json:"isLeft"`
}

type stateWire struct {
	Left              string            `json:"left"`
	Right             string            `json:"right"`
	ChannelKey        string            `json:"channelKey"`
	PreviousBlockHash string            `json:"previousBlockHash"`
	PreviousStateHash string            `json:"previousStateHash"`
	BlockID           uint64            `json:"blockId"`
	Timestamp         int64             `json:"timestamp"`
	TransitionID      uint64            `json:"transitionId"`
	Subchannels       []subchannelWire  `json:"subchannels"`
	Subcontracts      []subcontractWire `json:"subcontracts"`
}

type blockWire struct {
	IsLeft            bool             `json:"isLeft"`
	PreviousBlockHash string           `json:"previousBlockHash"`
	PreviousStateHash string           `json:"previousStateHash"`
	Transitions       []transitionWire `json:"transitions"`
	BlockID           uint64           `json:"blockId"`
	Timestamp         int64            `json:"timestamp"`
}

func canonicalHandle() *codec.JsonHandle {
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	return jh
}

func encode(v interface{}) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, canonicalHandle())
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	dec := codec.NewDecoder(bytes.NewBuffer(data), canonicalHandle())
	return dec.Decode(v)
}

// Marshal returns the canonical encoding of the state.
func (s *ChannelState) Marshal() ([]byte, error) {
	w, err := stateToWire(s)
	if err != nil {
		return nil, err
	}
	return encode(w)
}

// Unmarshal ...
func (s *ChannelState) Unmarshal(data []byte) error {
	var w stateWire
	if err := decode(data, &w); err != nil {
		return err
	}
	res, err := stateFromWire(&w)
	if err != nil {
		return err
	}
	*s = *res
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (s *ChannelState) MarshalBinary() ([]byte, error) { return s.Marshal() }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (s *ChannelState) UnmarshalBinary(data []byte) error { return s.Unmarshal(data) }

// Marshal returns the canonical encoding of the block.
func (b *Block) Marshal() ([]byte, error) {
	w, err := blockToWire(b)
	if err != nil {
		return nil, err
	}
	return encode(w)
}

// Unmarshal ...
func (b *Block) Unmarshal(data []byte) error {
	var w blockWire
	if err := decode(data, &w); err != nil {
		return err
	}
	txs := make([]Transition, len(w.Transitions))
	for i := range w.Transitions {
		t, err := transitionFromWire(&w.Transitions[i])
		if err != nil {
			return err
		}
		txs[i] = t
	}
	*b = Block{
		IsLeft:            w.IsLeft,
		PreviousBlockHash: w.PreviousBlockHash,
		PreviousStateHash: w.PreviousStateHash,
		Transitions:       txs,
		BlockID:           w.BlockID,
		Timestamp:         w.Timestamp,
	}
	return nil
}

// MarshalBinary implements encoding.BinaryMarshaler.
func (b *Block) MarshalBinary() ([]byte, error) { return b.Marshal() }

// UnmarshalBinary implements encoding.BinaryUnmarshaler.
func (b *Block) UnmarshalBinary(data []byte) error { return b.Unmarshal(data) }

// MarshalTransition encodes a single transition, e.g. to queue it in a store.
func MarshalTransition(t Transition) ([]byte, error) {
	w, err := transitionToWire(t)
	if err != nil {
		return nil, err
	}
	return encode(w)
}

// UnmarshalTransition ...
func UnmarshalTransition(data []byte) (Transition, error) {
	var w transitionWire
	if err := decode(data, &w); err != nil {
		return nil, err
	}
	return transitionFromWire(&w)
}

func stateToWire(s *ChannelState) (*stateWire, error) {
	w := &stateWire{
		Left:              s.Left.String(),
		Right:             s.Right.String(),
		ChannelKey:        s.ChannelKey,
		PreviousBlockHash: s.PreviousBlockHash,
		PreviousStateHash: s.PreviousStateHash,
		BlockID:           s.BlockID,
		Timestamp:         s.Timestamp,
		TransitionID:      s.TransitionID,
		Subchannels:       make([]subchannelWire, len(s.Subchannels)),
		Subcontracts:      make([]subcontractWire, len(s.Subcontracts)),
	}
	for i, sc := range s.Subchannels {
		sw := subchannelWire{
			ChainID:          sc.ChainID,
			Deltas:           make([]deltaWire, len(sc.Deltas)),
			CooperativeNonce: sc.CooperativeNonce,
			DisputeNonce:     sc.DisputeNonce,
		}
		for j, d := range sc.Deltas {
			sw.Deltas[j] = deltaWire{
				TokenID:          d.TokenID,
				Collateral:       intString(d.Collateral),
				OnDelta:          intString(d.OnDelta),
				OffDelta:         intString(d.OffDelta),
				LeftCreditLimit:  intString(d.LeftCreditLimit),
				RightCreditLimit: intString(d.RightCreditLimit),
				LeftAllowance:    intString(d.LeftAllowance),
				RightAllowance:   intString(d.RightAllowance),
			}
		}
		w.Subchannels[i] = sw
	}
	for i, sc := range s.Subcontracts {
		tw, err := transitionToWire(sc.Transition)
		if err != nil {
			return nil, err
		}
		w.Subcontracts[i] = subcontractWire{
			Transition:   *tw,
			TransitionID: sc.TransitionID,
			BlockID:      sc.BlockID,
			Timestamp:    sc.Timestamp,
			IsLeft:       sc.IsLeft,
		}
	}
	return w, nil
}

func stateFromWire(w *stateWire) (*ChannelState, error) {
	s := &ChannelState{
		Left:              Address(w.Left),
		Right:             Address(w.Right),
		ChannelKey:        w.ChannelKey,
		PreviousBlockHash: w.PreviousBlockHash,
		PreviousStateHash: w.PreviousStateHash,
		BlockID:           w.BlockID,
		Timestamp:         w.Timestamp,
		TransitionID:      w.TransitionID,
		Subchannels:       make([]*Subchannel, len(w.Subchannels)),
		Subcontracts:      make([]*StoredSubcontract, len(w.Subcontracts)),
	}
	for i, sw := range w.Subchannels {
		sc := &Subchannel{
			ChainID:          sw.ChainID,
			Deltas:           make([]*Delta, len(sw.Deltas)),
			CooperativeNonce: sw.CooperativeNonce,
			DisputeNonce:     sw.DisputeNonce,
		}
		for j, dw := range sw.Deltas {
			d := NewDelta(dw.TokenID)
			for _, f := range []struct {
				dst *big.Int
				src string
			}{
				{d.Collateral, dw.Collateral},
				{d.OnDelta, dw.OnDelta},
				{d.OffDelta, dw.OffDelta},
				{d.LeftCreditLimit, dw.LeftCreditLimit},
				{d.RightCreditLimit, dw.RightCreditLimit},
				{d.LeftAllowance, dw.LeftAllowance},
				{d.RightAllowance, dw.RightAllowance},
			} {
				v, err := parseInt(f.src)
				if err != nil {
					return nil, err
				}
				f.dst.Set(v)
			}
			sc.Deltas[j] = d
		}
		s.Subchannels[i] = sc
	}
	for i := range w.Subcontracts {
		cw := &w.Subcontracts[i]
		t, err := transitionFromWire(&cw.Transition)
		if err != nil {
			return nil, err
		}
		s.Subcontracts[i] = &StoredSubcontract{
			Transition:   t,
			TransitionID: cw.TransitionID,
			BlockID:      cw.BlockID,
			Timestamp:    cw.Timestamp,
			IsLeft:       cw.IsLeft,
		}
	}
	return s, nil
}

func blockToWire(b *Block) (*blockWire, error) {
	w := &blockWire{
		IsLeft:            b.IsLeft,
		PreviousBlockHash: b.PreviousBlockHash,
		PreviousStateHash: b.PreviousStateHash,
		Transitions:       make([]transitionWire, len(b.Transitions)),
		BlockID:           b.BlockID,
		Timestamp:         b.Timestamp,
	}
	for i, t := range b.Transitions {
		tw, err := transitionToWire(t)
		if err != nil {
			return nil, err
		}
		w.Transitions[i] = *tw
	}
	return w, nil
}

func transitionToWire(t Transition) (*transitionWire, error) {
	w := &transitionWire{Type: t.Type().String()}
	switch v := t.(type) {
	case *AddPayment:
		w.ChainID = v.ChainID
		w.TokenID = v.TokenID
		w.Amount = intString(v.Amount)
		w.Hashlock = v.Hashlock
		w.Timelock = v.Timelock
		w.EncryptedPackage = v.EncryptedPackage
	case *SettlePayment:
		w.TransitionID = v.TransitionID
		w.Secret = v.Secret
	case *CancelPayment:
		w.TransitionID = v.TransitionID
	case *AddSwap:
		w.ChainID = v.ChainID
		w.OwnerIsLeft = v.OwnerIsLeft
		w.TokenID = v.TokenID
		w.AddAmount = intString(v.AddAmount)
		w.SubTokenID = v.SubTokenID
		w.SubAmount = intString(v.SubAmount)
	case *SettleSwap:
		w.ChainID = v.ChainID
		w.SubcontractIndex = v.SubcontractIndex
		w.FillingRatio = v.FillingRatio
	case *AddSubchannel:
		w.ChainID = v.ChainID
	case *AddDelta:
		w.ChainID = v.ChainID
		w.TokenID = v.TokenID
	case *SetCreditLimit:
		w.ChainID = v.ChainID
		w.TokenID = v.TokenID
		w.Amount = intString(v.Amount)
	case *DirectPayment:
		w.ChainID = v.ChainID
		w.TokenID = v.TokenID
		w.Amount = intString(v.Amount)
	default:
		return nil, fmt.Errorf("cannot encode transition %T", t)
	}
	return w, nil
}

func transitionFromWire(w *transitionWire) (Transition, error) {
	typ, err := ParseTransitionType(w.Type)
	if err != nil {
		return nil, err
	}
	switch typ {
	case AddPaymentType:
		amount, err := parseInt(w.Amount)
		if err != nil {
			return nil, err
		}
		return &AddPayment{
			ChainID:          w.ChainID,
			TokenID:          w.TokenID,
			Amount:           amount,
			Hashlock:         w.Hashlock,
			Timelock:         w.Timelock,
			EncryptedPackage: w.EncryptedPackage,
		}, nil
	case SettlePaymentType:
		return &SettlePayment{TransitionID: w.TransitionID, Secret: w.Secret}, nil
	case CancelPaymentType:
		return &CancelPayment{TransitionID: w.TransitionID}, nil
	case AddSwapType:
		add, err := parseInt(w.AddAmount)
		if err != nil {
			return nil, err
		}
		sub, err := parseInt(w.SubAmount)
		if err != nil {
			return nil, err
		}
		return &AddSwap{
			ChainID:     w.ChainID,
			OwnerIsLeft: w.OwnerIsLeft,
			TokenID:     w.TokenID,
			AddAmount:   add,
			SubTokenID:  w.SubTokenID,
			SubAmount:   sub,
		}, nil
	case SettleSwapType:
		return &SettleSwap{ChainID: w.ChainID, SubcontractIndex: w.SubcontractIndex, FillingRatio: w.FillingRatio}, nil
	case AddSubchannelType:
		return &AddSubchannel{ChainID: w.ChainID}, nil
	case AddDeltaType:
		return &AddDelta{ChainID: w.ChainID, TokenID: w.TokenID}, nil
	case SetCreditLimitType:
		amount, err := parseInt(w.Amount)
		if err != nil {
			return nil, err
		}
		return &SetCreditLimit{ChainID: w.ChainID, TokenID: w.TokenID, Amount: amount}, nil
	case DirectPaymentType:
		amount, err := parseInt(w.Amount)
		if err != nil {
			return nil, err
		}
		return &DirectPayment{ChainID: w.ChainID, TokenID: w.TokenID, Amount: amount}, nil
	}
	return nil, fmt.Errorf("cannot decode transition %s", w.Type)
}

func intString(x *big.Int) string {
	if x == nil {
		return "0"
	}
	return x.String()
}

func parseInt(s string) (*big.Int, error) {
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	return v, nil
}
