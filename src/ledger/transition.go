package ledger

import (
	"fmt"
	"math/big"

	"github.com/mosaicnetworks/xln/src/common"
)

// TransitionType tags the Transition variants.
type TransitionType uint8

const (
	AddPaymentType TransitionType = iota
	SettlePaymentType
	CancelPaymentType
	AddSwapType
	SettleSwapType
	AddSubchannelType
	AddDeltaType
	SetCreditLimitType
	DirectPaymentType
)

var transitionTypeNames = map[TransitionType]string{
	AddPaymentType:     "AddPayment",
	SettlePaymentType:  "SettlePayment",
	CancelPaymentType:  "CancelPayment",
	AddSwapType:        "AddSwap",
	SettleSwapType:     "SettleSwap",
	AddSubchannelType:  "AddSubchannel",
	AddDeltaType:       "AddDelta",
	SetCreditLimitType: "SetCreditLimit",
	DirectPaymentType:  "DirectPayment",
}

func (t TransitionType) String() string {
	if name, ok := transitionTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("TransitionType(%d)", uint8(t))
}

// ParseTransitionType is the inverse of TransitionType.String.
func ParseTransitionType(name string) (TransitionType, error) {
	for t, n := range transitionTypeNames {
		if n == name {
			return t, nil
		}
	}
	return 0, fmt.Errorf("unknown transition type %q", name)
}

// Transition is a ledger mutation. The set of variants is closed: only types
// of this package implement it.
type Transition interface {
	Type() TransitionType
	// ApplyTo mutates app.State. An error aborts the whole block.
	ApplyTo(app *Application) error
	Clone() Transition
	transition()
}

// Application carries the context of one block application.
type Application struct {
	State        *ChannelState
	Block        *Block
	DryRun       bool
	TransitionID uint64
	Events       []Event
}

func (a *Application) emit(e Event) {
	if a.DryRun {
		return
	}
	a.Events = append(a.Events, e)
}

func (a *Application) store(t Transition) (*StoredSubcontract, error) {
	if a.State.FindSubcontract(a.TransitionID, a.Block.IsLeft) >= 0 {
		return nil, common.NewChannelErr("Subcontract", common.ProtocolViolation,
			fmt.Sprintf("duplicate transition id %d", a.TransitionID))
	}
	sc := &StoredSubcontract{
		Transition:   t.Clone(),
		TransitionID: a.TransitionID,
		BlockID:      a.Block.BlockID,
		Timestamp:    a.Block.Timestamp,
		IsLeft:       a.Block.IsLeft,
	}
	a.State.Subcontracts = append(a.State.Subcontracts, sc)
	return sc, nil
}

func requirePositive(what string, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return common.NewChannelErr(what, common.ProtocolViolation, "amount must be positive")
	}
	return nil
}

func cloneOptInt(x *big.Int) *big.Int {
	if x == nil {
		return nil
	}
	return new(big.Int).Set(x)
}
