package node

import (
	"math/big"
)

// FeePolicy decides what a hop keeps when it forwards a payment.
type FeePolicy interface {
	Fee(incoming *big.Int) *big.Int
}

// BasisPointsFee keeps a fixed fraction of every forwarded payment, in
// hundredths of a percent, rounded down.
type BasisPointsFee uint32

// Fee implements FeePolicy.
func (b BasisPointsFee) Fee(incoming *big.Int) *big.Int {
	fee := new(big.Int).Mul(incoming, big.NewInt(int64(b)))
	return fee.Quo(fee, big.NewInt(10000))
}
