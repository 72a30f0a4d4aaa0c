package ledger

import (
	"fmt"
	"math/big"

	"github.com/mosaicnetworks/xln/src/common"
)

// MaxFillRatio is the denominator of SettleSwap.FillingRatio. A ratio of
// MaxFillRatio fills the whole order.
const MaxFillRatio = 65535

// AddSwap is a standing order of the owner to give AddAmount of TokenID in
// exchange for SubAmount of SubTokenID. The order is proposed by the side that
// does not own it.
type AddSwap struct {
	ChainID     uint32
	OwnerIsLeft bool
	TokenID     uint32
	AddAmount   *big.Int
	SubTokenID  uint32
	SubAmount   *big.Int
}

func (*AddSwap) transition() {}

// Type ...
func (s *AddSwap) Type() TransitionType { return AddSwapType }

// Clone ...
func (s *AddSwap) Clone() Transition {
	c := *s
	c.AddAmount = cloneOptInt(s.AddAmount)
	c.SubAmount = cloneOptInt(s.SubAmount)
	return &c
}

// ApplyTo stores the order. Balances do not change until it is settled.
func (s *AddSwap) ApplyTo(app *Application) error {
	if s.OwnerIsLeft != !app.Block.IsLeft {
		return common.NewChannelErr("AddSwap", common.InvalidOwner, fmt.Sprintf("ownerIsLeft=%v", s.OwnerIsLeft))
	}
	if err := requirePositive("AddSwap", s.AddAmount); err != nil {
		return err
	}
	if err := requirePositive("AddSwap", s.SubAmount); err != nil {
		return err
	}
	if _, err := app.State.GetDelta(s.ChainID, s.TokenID); err != nil {
		return err
	}
	if _, err := app.State.GetDelta(s.ChainID, s.SubTokenID); err != nil {
		return err
	}
	_, err := app.store(s)
	return err
}

// SettleSwap fills or cancels the swap at SubcontractIndex. A nil FillingRatio
// cancels it.
type SettleSwap struct {
	ChainID          uint32
	SubcontractIndex int
	FillingRatio     *uint32
}

func (*SettleSwap) transition() {}

// Type ...
func (s *SettleSwap) Type() TransitionType { return SettleSwapType }

// Clone ...
func (s *SettleSwap) Clone() Transition {
	c := *s
	if s.FillingRatio != nil {
		r := *s.FillingRatio
		c.FillingRatio = &r
	}
	return &c
}

// ApplyTo ...
func (s *SettleSwap) ApplyTo(app *Application) error {
	if s.SubcontractIndex < 0 || s.SubcontractIndex >= len(app.State.Subcontracts) {
		return common.NewChannelErr("Swap", common.NotFound, fmt.Sprint(s.SubcontractIndex))
	}
	sc := app.State.Subcontracts[s.SubcontractIndex]
	swap, ok := sc.Swap()
	if !ok || swap.ChainID != s.ChainID {
		return common.NewChannelErr("Swap", common.NotFound, fmt.Sprint(s.SubcontractIndex))
	}
	if swap.OwnerIsLeft == app.Block.IsLeft {
		return common.NewChannelErr("SettleSwap", common.InvalidOwner, "owner cannot settle its own swap")
	}

	if s.FillingRatio != nil {
		ratio := *s.FillingRatio
		if ratio > MaxFillRatio {
			return common.NewChannelErr("SettleSwap", common.ProtocolViolation, fmt.Sprintf("filling ratio %d", ratio))
		}
		addDelta, err := app.State.GetDelta(swap.ChainID, swap.TokenID)
		if err != nil {
			return err
		}
		subDelta, err := app.State.GetDelta(swap.ChainID, swap.SubTokenID)
		if err != nil {
			return err
		}
		filledAdd := fill(swap.AddAmount, ratio)
		filledSub := fill(swap.SubAmount, ratio)
		if swap.OwnerIsLeft {
			addDelta.OffDelta.Sub(addDelta.OffDelta, filledAdd)
			subDelta.OffDelta.Add(subDelta.OffDelta, filledSub)
		} else {
			addDelta.OffDelta.Add(addDelta.OffDelta, filledAdd)
			subDelta.OffDelta.Sub(subDelta.OffDelta, filledSub)
		}
	}

	app.State.removeSubcontract(s.SubcontractIndex)
	return nil
}

func fill(amount *big.Int, ratio uint32) *big.Int {
	res := new(big.Int).Mul(amount, big.NewInt(int64(ratio)))
	return res.Div(res, big.NewInt(MaxFillRatio))
}
