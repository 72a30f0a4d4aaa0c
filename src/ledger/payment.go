package ledger

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/crypto"
)

// AddPayment locks Amount of a token behind Hashlock until the receiver reveals
// the secret or cancels. EncryptedPackage carries the onion for the next hop.
type AddPayment struct {
	ChainID          uint32
	TokenID          uint32
	Amount           *big.Int
	Hashlock         string
	Timelock         int64
	EncryptedPackage string
}

func (*AddPayment) transition() {}

// Type ...
func (p *AddPayment) Type() TransitionType { return AddPaymentType }

// Clone ...
func (p *AddPayment) Clone() Transition {
	c := *p
	c.Amount = cloneOptInt(p.Amount)
	return &c
}

// ApplyTo checks the author's outbound capacity and stores the payment.
func (p *AddPayment) ApplyTo(app *Application) error {
	if err := requirePositive("AddPayment", p.Amount); err != nil {
		return err
	}
	if lock, err := hexutil.Decode(p.Hashlock); err != nil || len(lock) != 32 {
		return common.NewChannelErr("AddPayment", common.ProtocolViolation, "malformed hashlock "+p.Hashlock)
	}
	available, err := app.State.Spendable(p.ChainID, p.TokenID, app.Block.IsLeft)
	if err != nil {
		return err
	}
	if available.Cmp(p.Amount) < 0 {
		return common.NewChannelErr("AddPayment", common.InsufficientCapacity,
			fmt.Sprintf("amount %s > capacity %s", p.Amount, available))
	}
	sc, err := app.store(p)
	if err != nil {
		return err
	}
	app.emit(PaymentAdded{Subcontract: sc.Clone()})
	return nil
}

// SettlePayment reveals the secret of a payment proposed by the other side and
// moves its amount to the settling side.
type SettlePayment struct {
	TransitionID uint64
	Secret       string
}

func (*SettlePayment) transition() {}

// Type ...
func (s *SettlePayment) Type() TransitionType { return SettlePaymentType }

// Clone ...
func (s *SettlePayment) Clone() Transition {
	c := *s
	return &c
}

// ApplyTo ...
func (s *SettlePayment) ApplyTo(app *Application) error {
	i := app.State.FindSubcontract(s.TransitionID, !app.Block.IsLeft)
	if i < 0 {
		return common.NewChannelErr("Payment", common.NotFound, fmt.Sprint(s.TransitionID))
	}
	sc := app.State.Subcontracts[i]
	payment, ok := sc.Payment()
	if !ok {
		return common.NewChannelErr("Payment", common.NotFound, fmt.Sprintf("%d is a %s", s.TransitionID, sc.Transition.Type()))
	}
	if crypto.Hashlock(s.Secret) != payment.Hashlock {
		return common.NewChannelErr("Payment", common.InvalidSecret, payment.Hashlock)
	}
	delta, err := app.State.GetDelta(payment.ChainID, payment.TokenID)
	if err != nil {
		return err
	}
	if app.Block.IsLeft {
		delta.OffDelta.Add(delta.OffDelta, payment.Amount)
	} else {
		delta.OffDelta.Sub(delta.OffDelta, payment.Amount)
	}
	app.State.removeSubcontract(i)
	app.emit(PaymentSettled{Subcontract: sc, Secret: s.Secret, SettledByLeft: app.Block.IsLeft})
	return nil
}

// CancelPayment releases a payment proposed by the other side without moving
// funds. Only the receiver of a payment can cancel it.
type CancelPayment struct {
	TransitionID uint64
}

func (*CancelPayment) transition() {}

// Type ...
func (c *CancelPayment) Type() TransitionType { return CancelPaymentType }

// Clone ...
func (c *CancelPayment) Clone() Transition {
	n := *c
	return &n
}

// ApplyTo ...
func (c *CancelPayment) ApplyTo(app *Application) error {
	i := app.State.FindSubcontract(c.TransitionID, !app.Block.IsLeft)
	if i < 0 {
		return common.NewChannelErr("Payment", common.NotFound, fmt.Sprint(c.TransitionID))
	}
	sc := app.State.Subcontracts[i]
	if _, ok := sc.Payment(); !ok {
		return common.NewChannelErr("Payment", common.NotFound, fmt.Sprintf("%d is a %s", c.TransitionID, sc.Transition.Type()))
	}
	app.State.removeSubcontract(i)
	app.emit(PaymentCancelled{Subcontract: sc, CancelledByLeft: app.Block.IsLeft})
	return nil
}

// DirectPayment moves Amount from the block author to the other side at once.
type DirectPayment struct {
	ChainID uint32
	TokenID uint32
	Amount  *big.Int
}

func (*DirectPayment) transition() {}

// Type ...
func (p *DirectPayment) Type() TransitionType { return DirectPaymentType }

// Clone ...
func (p *DirectPayment) Clone() Transition {
	c := *p
	c.Amount = cloneOptInt(p.Amount)
	return &c
}

// ApplyTo ...
func (p *DirectPayment) ApplyTo(app *Application) error {
	if err := requirePositive("DirectPayment", p.Amount); err != nil {
		return err
	}
	available, err := app.State.Spendable(p.ChainID, p.TokenID, app.Block.IsLeft)
	if err != nil {
		return err
	}
	if available.Cmp(p.Amount) < 0 {
		return common.NewChannelErr("DirectPayment", common.InsufficientCapacity,
			fmt.Sprintf("amount %s > capacity %s", p.Amount, available))
	}
	delta, err := app.State.GetDelta(p.ChainID, p.TokenID)
	if err != nil {
		return err
	}
	if app.Block.IsLeft {
		delta.OffDelta.Sub(delta.OffDelta, p.Amount)
	} else {
		delta.OffDelta.Add(delta.OffDelta, p.Amount)
	}
	return nil
}

// Spendable is the outbound capacity of one side minus the amounts it has
// already locked in pending payments of the same token.
func (s *ChannelState) Spendable(chainID, tokenID uint32, isLeft bool) (*big.Int, error) {
	derived, err := s.DeriveDelta(chainID, tokenID, isLeft)
	if err != nil {
		return nil, err
	}
	available := new(big.Int).Set(derived.OutCapacity)
	for _, sc := range s.Subcontracts {
		p, ok := sc.Payment()
		if !ok || sc.IsLeft != isLeft || p.ChainID != chainID || p.TokenID != tokenID {
			continue
		}
		available.Sub(available, p.Amount)
	}
	return nonNegative(available), nil
}
