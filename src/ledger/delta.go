package ledger

import (
	"math/big"
)

// Delta is the balance record of one token in one subchannel. The net
// position of the left party is OnDelta + OffDelta: it grows when value moves
// to the left and shrinks when value moves to the right.
type Delta struct {
	TokenID          uint32
	Collateral       *big.Int
	OnDelta          *big.Int
	OffDelta         *big.Int
	LeftCreditLimit  *big.Int
	RightCreditLimit *big.Int
	LeftAllowance    *big.Int
	RightAllowance   *big.Int
}

// NewDelta returns a zeroed Delta for tokenID.
func NewDelta(tokenID uint32) *Delta {
	return &Delta{
		TokenID:          tokenID,
		Collateral:       new(big.Int),
		OnDelta:          new(big.Int),
		OffDelta:         new(big.Int),
		LeftCreditLimit:  new(big.Int),
		RightCreditLimit: new(big.Int),
		LeftAllowance:    new(big.Int),
		RightAllowance:   new(big.Int),
	}
}

// Clone returns a deep copy of d.
func (d *Delta) Clone() *Delta {
	return &Delta{
		TokenID:          d.TokenID,
		Collateral:       cloneInt(d.Collateral),
		OnDelta:          cloneInt(d.OnDelta),
		OffDelta:         cloneInt(d.OffDelta),
		LeftCreditLimit:  cloneInt(d.LeftCreditLimit),
		RightCreditLimit: cloneInt(d.RightCreditLimit),
		LeftAllowance:    cloneInt(d.LeftAllowance),
		RightAllowance:   cloneInt(d.RightAllowance),
	}
}

// DerivedDelta is the capacity view of a Delta from one side of the channel.
// In/out and own/peer are always relative to that side. It is never stored.
type DerivedDelta struct {
	Delta           *big.Int
	Collateral      *big.Int
	InCollateral    *big.Int
	OutCollateral   *big.Int
	InOwnCredit     *big.Int
	OutPeerCredit   *big.Int
	OutOwnCredit    *big.Int
	InPeerCredit    *big.Int
	InAllowance     *big.Int
	OutAllowance    *big.Int
	TotalCapacity   *big.Int
	OwnCreditLimit  *big.Int
	PeerCreditLimit *big.Int
	InCapacity      *big.Int
	OutCapacity     *big.Int
}

// Derive computes the capacity view of d for the left side when isLeft is
// true, and the mirrored view for the right side otherwise.
func (d *Delta) Derive(isLeft bool) DerivedDelta {
	delta := new(big.Int).Add(d.OnDelta, d.OffDelta)
	collateral := nonNegative(d.Collateral)

	ownCreditLimit := cloneInt(d.LeftCreditLimit)
	peerCreditLimit := cloneInt(d.RightCreditLimit)

	var inCollateral, outCollateral *big.Int
	if delta.Sign() > 0 {
		inCollateral = nonNegative(new(big.Int).Sub(collateral, delta))
		outCollateral = minInt(delta, collateral)
	} else {
		inCollateral = cloneInt(collateral)
		outCollateral = new(big.Int)
	}

	inOwnCredit := minInt(nonNegative(new(big.Int).Neg(delta)), ownCreditLimit)
	outPeerCredit := minInt(nonNegative(new(big.Int).Sub(delta, collateral)), peerCreditLimit)

	outOwnCredit := nonNegative(new(big.Int).Sub(ownCreditLimit, inOwnCredit))
	inPeerCredit := nonNegative(new(big.Int).Sub(peerCreditLimit, outPeerCredit))

	inAllowance := cloneInt(d.RightAllowance)
	outAllowance := cloneInt(d.LeftAllowance)

	totalCapacity := new(big.Int).Add(collateral, ownCreditLimit)
	totalCapacity.Add(totalCapacity, peerCreditLimit)

	inCapacity := new(big.Int).Add(inOwnCredit, inCollateral)
	inCapacity.Add(inCapacity, inPeerCredit)
	inCapacity = nonNegative(inCapacity.Sub(inCapacity, inAllowance))

	outCapacity := new(big.Int).Add(outPeerCredit, outCollateral)
	outCapacity.Add(outCapacity, outOwnCredit)
	outCapacity = nonNegative(outCapacity.Sub(outCapacity, outAllowance))

	if !isLeft {
		inCollateral, outCollateral = outCollateral, inCollateral
		inAllowance, outAllowance = outAllowance, inAllowance
		inCapacity, outCapacity = outCapacity, inCapacity
		ownCreditLimit, peerCreditLimit = peerCreditLimit, ownCreditLimit
		outOwnCredit, inOwnCredit, outPeerCredit, inPeerCredit =
			inPeerCredit, outPeerCredit, inOwnCredit, outOwnCredit
	}

	return DerivedDelta{
		Delta:           delta,
		Collateral:      collateral,
		InCollateral:    inCollateral,
		OutCollateral:   outCollateral,
		InOwnCredit:     inOwnCredit,
		OutPeerCredit:   outPeerCredit,
		OutOwnCredit:    outOwnCredit,
		InPeerCredit:    inPeerCredit,
		InAllowance:     inAllowance,
		OutAllowance:    outAllowance,
		TotalCapacity:   totalCapacity,
		OwnCreditLimit:  ownCreditLimit,
		PeerCreditLimit: peerCreditLimit,
		InCapacity:      inCapacity,
		OutCapacity:     outCapacity,
	}
}

func nonNegative(x *big.Int) *big.Int {
	if x == nil || x.Sign() < 0 {
		return new(big.Int)
	}
	return cloneInt(x)
}

func minInt(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return cloneInt(a)
	}
	return cloneInt(b)
}

func cloneInt(x *big.Int) *big.Int {
	if x == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(x)
}
