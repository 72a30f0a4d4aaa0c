package ledger

import (
	"fmt"
	"math/big"

	"github.com/mosaicnetworks/xln/src/common"
)

// AddSubchannel opens the sub-ledger of a chain.
type AddSubchannel struct {
	ChainID uint32
}

func (*AddSubchannel) transition() {}

// Type ...
func (a *AddSubchannel) Type() TransitionType { return AddSubchannelType }

// Clone ...
func (a *AddSubchannel) Clone() Transition {
	c := *a
	return &c
}

// ApplyTo ...
func (a *AddSubchannel) ApplyTo(app *Application) error {
	if _, err := app.State.GetSubchannel(a.ChainID); err == nil {
		return common.NewChannelErr("Subchannel", common.InvalidChannelSetup, fmt.Sprintf("chain %d exists", a.ChainID))
	}
	app.State.Subchannels = append(app.State.Subchannels, NewSubchannel(a.ChainID))
	return nil
}

// AddDelta adds a token to an existing subchannel.
type AddDelta struct {
	ChainID uint32
	TokenID uint32
}

func (*AddDelta) transition() {}

// Type ...
func (a *AddDelta) Type() TransitionType { return AddDeltaType }

// Clone ...
func (a *AddDelta) Clone() Transition {
	c := *a
	return &c
}

// ApplyTo ...
func (a *AddDelta) ApplyTo(app *Application) error {
	sc, err := app.State.GetSubchannel(a.ChainID)
	if err != nil {
		return err
	}
	if sc.DeltaIndex(a.TokenID) >= 0 {
		return common.NewChannelErr("Delta", common.InvalidChannelSetup, fmt.Sprintf("token %d exists on chain %d", a.TokenID, a.ChainID))
	}
	sc.Deltas = append(sc.Deltas, NewDelta(a.TokenID))
	return nil
}

// SetCreditLimit sets the credit the block author extends to the other side.
type SetCreditLimit struct {
	ChainID uint32
	TokenID uint32
	Amount  *big.Int
}

func (*SetCreditLimit) transition() {}

// Type ...
func (s *SetCreditLimit) Type() TransitionType { return SetCreditLimitType }

// Clone ...
func (s *SetCreditLimit) Clone() Transition {
	c := *s
	c.Amount = cloneOptInt(s.Amount)
	return &c
}

// ApplyTo ...
func (s *SetCreditLimit) ApplyTo(app *Application) error {
	if s.Amount == nil || s.Amount.Sign() < 0 {
		return common.NewChannelErr("SetCreditLimit", common.ProtocolViolation, "negative credit limit")
	}
	delta, err := app.State.GetDelta(s.ChainID, s.TokenID)
	if err != nil {
		return err
	}
	if app.Block.IsLeft {
		delta.RightCreditLimit = new(big.Int).Set(s.Amount)
	} else {
		delta.LeftCreditLimit = new(big.Int).Set(s.Amount)
	}
	return nil
}
