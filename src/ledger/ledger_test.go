package ledger

import (
	"errors"
	"math/big"
	"testing"

	"github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	addrA = Address("0x00000000000000000000000000000000000000aa")
	addrB = Address("0x00000000000000000000000000000000000000bb")
)

// newTestState returns an A<B channel with chain 0 and the given tokens.
func newTestState(t *testing.T, tokens ...uint32) *ChannelState {
	state, err := NewChannelState(addrA, addrB)
	require.NoError(t, err)
	sc := NewSubchannel(0)
	for _, tok := range tokens {
		sc.Deltas = append(sc.Deltas, NewDelta(tok))
	}
	state.Subchannels = append(state.Subchannels, sc)
	return state
}

func assertInt(t *testing.T, expected, actual *big.Int, i int) {
	t.Helper()
	assert.Equal(t, expected.String(), actual.String(), "case %d", i)
}

func newSecret(t *testing.T) string {
	secret, err := crypto.NewSecret()
	require.NoError(t, err)
	return secret
}

func applyTxs(t *testing.T, state *ChannelState, isLeft bool, txs ...Transition) (*ChannelState, []Event, error) {
	block, err := NewBlock(state, isLeft, txs, 1000)
	require.NoError(t, err)
	return ApplyBlock(state, block, false)
}

func TestEnsureValidAddressOrder(t *testing.T) {
	assert.NoError(t, EnsureValidAddressOrder(addrA, addrB))
	assert.True(t, common.IsChannel(EnsureValidAddressOrder(addrB, addrA), common.InvalidChannelSetup))
	assert.True(t, common.IsChannel(EnsureValidAddressOrder(addrA, addrA), common.InvalidChannelSetup))
	assert.True(t, common.IsChannel(EnsureValidAddressOrder("", addrA), common.InvalidChannelSetup))

	_, err := NewChannelState(addrB, addrA)
	assert.True(t, common.IsChannel(err, common.InvalidChannelSetup))

	left, right, err := OrderAddresses(addrB, addrA)
	require.NoError(t, err)
	assert.Equal(t, addrA, left)
	assert.Equal(t, addrB, right)

	assert.Equal(t, ChannelKey(addrA, addrB), crypto.Keccak256Hex(addrA.Bytes(), addrB.Bytes()))
}

func TestDeriveDeltaNotFound(t *testing.T) {
	state := newTestState(t, 0)
	_, err := state.DeriveDelta(1, 0, true)
	assert.True(t, common.IsChannel(err, common.NotFound))
	_, err = state.DeriveDelta(0, 7, true)
	assert.True(t, common.IsChannel(err, common.NotFound))
}

func TestDeriveDeltaMirror(t *testing.T) {
	cases := []*Delta{
		NewDelta(0),
		{
			Collateral: big.NewInt(1000), OnDelta: big.NewInt(300), OffDelta: big.NewInt(-50),
			LeftCreditLimit: big.NewInt(200), RightCreditLimit: big.NewInt(70),
			LeftAllowance: big.NewInt(5), RightAllowance: big.NewInt(11),
		},
		{
			Collateral: big.NewInt(-10), OnDelta: big.NewInt(0), OffDelta: big.NewInt(-500),
			LeftCreditLimit: big.NewInt(200), RightCreditLimit: big.NewInt(700),
			LeftAllowance: big.NewInt(0), RightAllowance: big.NewInt(0),
		},
		{
			Collateral: big.NewInt(100), OnDelta: big.NewInt(150), OffDelta: big.NewInt(0),
			LeftCreditLimit: big.NewInt(0), RightCreditLimit: big.NewInt(100),
			LeftAllowance: big.NewInt(0), RightAllowance: big.NewInt(0),
		},
	}

	for i, d := range cases {
		l := d.Derive(true)
		r := d.Derive(false)

		assert.Equal(t, l, d.Derive(true), "case %d not idempotent", i)

		assertInt(t, l.Delta, r.Delta, i)
		assertInt(t, l.TotalCapacity, r.TotalCapacity, i)
		assertInt(t, l.InCollateral, r.OutCollateral, i)
		assertInt(t, l.OutCollateral, r.InCollateral, i)
		assertInt(t, l.InAllowance, r.OutAllowance, i)
		assertInt(t, l.InCapacity, r.OutCapacity, i)
		assertInt(t, l.OutCapacity, r.InCapacity, i)
		assertInt(t, l.OwnCreditLimit, r.PeerCreditLimit, i)
		assertInt(t, l.InOwnCredit, r.OutPeerCredit, i)
		assertInt(t, l.OutOwnCredit, r.InPeerCredit, i)
		assertInt(t, l.InPeerCredit, r.OutOwnCredit, i)
		assertInt(t, l.OutPeerCredit, r.InOwnCredit, i)
	}

	negative := cases[2].Derive(true)
	assert.Equal(t, int64(0), negative.Collateral.Int64())
}

func TestCreditLineScenario(t *testing.T) {
	state := newTestState(t, 0)

	// A extends 100 of credit to B.
	state, _, err := applyTxs(t, state, true, &SetCreditLimit{TokenID: 0, Amount: big.NewInt(100)})
	require.NoError(t, err)

	a, err := state.DeriveDelta(0, 0, true)
	require.NoError(t, err)
	assert.Equal(t, int64(0), a.OutCapacity.Int64())
	assert.Equal(t, int64(100), a.InCapacity.Int64())

	_, _, err = applyTxs(t, state, true, &DirectPayment{TokenID: 0, Amount: big.NewInt(50)})
	assert.True(t, common.IsChannel(err, common.InsufficientCapacity), "got %v", err)

	state, _, err = applyTxs(t, state, false, &DirectPayment{TokenID: 0, Amount: big.NewInt(50)})
	require.NoError(t, err)

	d, err := state.GetDelta(0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(50), d.OffDelta.Int64())

	a, _ = state.DeriveDelta(0, 0, true)
	b, _ := state.DeriveDelta(0, 0, false)
	assert.Equal(t, int64(50), b.OutCapacity.Int64())
	assert.Equal(t, int64(50), a.InCapacity.Int64())
	assert.Equal(t, uint64(2), state.BlockID)
}

func TestPaymentCapacityBoundary(t *testing.T) {
	state := newTestState(t, 0)
	d, _ := state.GetDelta(0, 0)
	d.RightCreditLimit.SetInt64(100)

	lock := crypto.Hashlock(newSecret(t))

	_, _, err := applyTxs(t, state, false, &AddPayment{TokenID: 0, Amount: big.NewInt(101), Hashlock: lock})
	assert.True(t, common.IsChannel(err, common.InsufficientCapacity))

	next, _, err := applyTxs(t, state, false, &AddPayment{TokenID: 0, Amount: big.NewInt(100), Hashlock: lock})
	require.NoError(t, err)
	assert.Len(t, next.Subcontracts, 1)

	// The locked amount is no longer spendable.
	_, _, err = applyTxs(t, next, false, &AddPayment{TokenID: 0, Amount: big.NewInt(1), Hashlock: lock})
	assert.True(t, common.IsChannel(err, common.InsufficientCapacity))

	_, _, err = applyTxs(t, state, false, &AddPayment{TokenID: 0, Amount: big.NewInt(0), Hashlock: lock})
	assert.True(t, common.IsChannel(err, common.ProtocolViolation))
}

func TestAddThenSettlePayment(t *testing.T) {
	state := newTestState(t, 0)
	d, _ := state.GetDelta(0, 0)
	d.RightCreditLimit.SetInt64(100)
	before := new(big.Int).Set(d.OffDelta)

	secret := newSecret(t)
	state, events, err := applyTxs(t, state, false, &AddPayment{
		TokenID:  0,
		Amount:   big.NewInt(30),
		Hashlock: crypto.Hashlock(secret),
		Timelock: 100,
	})
	require.NoError(t, err)
	require.Len(t, events, 1)
	added := events[0].(PaymentAdded)
	assert.Equal(t, uint64(0), added.Subcontract.TransitionID)
	assert.False(t, added.Subcontract.IsLeft)

	// The proposer cannot settle its own payment.
	_, _, err = applyTxs(t, state, false, &SettlePayment{TransitionID: 0, Secret: secret})
	assert.True(t, common.IsChannel(err, common.NotFound))

	_, _, err = applyTxs(t, state, true, &SettlePayment{TransitionID: 0, Secret: newSecret(t)})
	assert.True(t, common.IsChannel(err, common.InvalidSecret))

	state, events, err = applyTxs(t, state, true, &SettlePayment{TransitionID: 0, Secret: secret})
	require.NoError(t, err)
	require.Len(t, events, 1)
	settled := events[0].(PaymentSettled)
	assert.Equal(t, secret, settled.Secret)
	assert.True(t, settled.SettledByLeft)

	d, _ = state.GetDelta(0, 0)
	assertInt(t, new(big.Int).Add(before, big.NewInt(30)), d.OffDelta, 0)
	assert.Empty(t, state.Subcontracts)
	assert.Equal(t, uint64(2), state.TransitionID)

	_, _, err = applyTxs(t, state, true, &SettlePayment{TransitionID: 0, Secret: secret})
	assert.True(t, common.IsChannel(err, common.NotFound))
}

func TestCancelPayment(t *testing.T) {
	state := newTestState(t, 0)
	d, _ := state.GetDelta(0, 0)
	d.LeftCreditLimit.SetInt64(10)

	state, _, err := applyTxs(t, state, true, &AddPayment{TokenID: 0, Amount: big.NewInt(10), Hashlock: crypto.Hashlock("0x01")})
	require.NoError(t, err)

	_, _, err = applyTxs(t, state, true, &CancelPayment{TransitionID: 0})
	assert.True(t, common.IsChannel(err, common.NotFound))

	state, events, err := applyTxs(t, state, false, &CancelPayment{TransitionID: 0})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.IsType(t, PaymentCancelled{}, events[0])
	assert.Empty(t, state.Subcontracts)
	d, _ = state.GetDelta(0, 0)
	assert.Equal(t, int64(0), d.OffDelta.Int64())
}

func TestBlockIDMismatch(t *testing.T) {
	state := newTestState(t, 0)

	for _, id := range []uint64{1, 2, 100} {
		block, err := NewBlock(state, true, nil, 1)
		require.NoError(t, err)
		block.BlockID = id
		_, _, err = ApplyBlock(state, block, true)
		assert.True(t, common.IsChannel(err, common.HashChainMismatch), "id %d: %v", id, err)
	}

	block, _ := NewBlock(state, true, nil, 1)
	block.PreviousStateHash = "0xdead"
	_, _, err := ApplyBlock(state, block, true)
	assert.True(t, common.IsChannel(err, common.HashChainMismatch))

	block, _ = NewBlock(state, true, nil, 1)
	block.PreviousBlockHash = "0xdead"
	_, _, err = ApplyBlock(state, block, true)
	assert.True(t, common.IsChannel(err, common.HashChainMismatch))
}

func TestHashChain(t *testing.T) {
	state := newTestState(t, 0)
	preHash, _ := state.Hash()

	block, err := NewBlock(state, true, []Transition{&SetCreditLimit{Amount: big.NewInt(1)}}, 42)
	require.NoError(t, err)
	blockHash, _ := block.Hash()

	next, events, err := ApplyBlock(state, block, true)
	require.NoError(t, err)
	assert.Empty(t, events)
	assert.Equal(t, uint64(1), next.BlockID)
	assert.Equal(t, int64(42), next.Timestamp)
	assert.Equal(t, blockHash, next.PreviousBlockHash)
	assert.Equal(t, preHash, next.PreviousStateHash)
	assert.Equal(t, uint64(1), next.Subchannels[0].DisputeNonce)

	// The old block no longer extends the new state.
	_, _, err = ApplyBlock(next, block, true)
	assert.True(t, common.IsChannel(err, common.HashChainMismatch))
}

func TestBlockIsAllOrNothing(t *testing.T) {
	state := newTestState(t, 0)
	d, _ := state.GetDelta(0, 0)
	d.LeftCreditLimit.SetInt64(10)
	before, _ := state.Hash()

	_, _, err := applyTxs(t, state, true,
		&DirectPayment{TokenID: 0, Amount: big.NewInt(10)},
		&DirectPayment{TokenID: 0, Amount: big.NewInt(1)},
	)
	assert.True(t, common.IsChannel(err, common.InsufficientCapacity))

	after, _ := state.Hash()
	assert.Equal(t, before, after)
	assert.Equal(t, uint64(0), state.BlockID)
	assert.Equal(t, int64(0), d.OffDelta.Int64())
}

func TestSetupTransitions(t *testing.T) {
	state, err := NewChannelState(addrA, addrB)
	require.NoError(t, err)

	state, _, err = applyTxs(t, state, true, &AddSubchannel{ChainID: 1}, &AddDelta{ChainID: 1, TokenID: 3})
	require.NoError(t, err)
	_, err = state.GetDelta(1, 3)
	require.NoError(t, err)

	_, _, err = applyTxs(t, state, false, &AddSubchannel{ChainID: 1})
	assert.True(t, common.IsChannel(err, common.InvalidChannelSetup))
	_, _, err = applyTxs(t, state, false, &AddDelta{ChainID: 1, TokenID: 3})
	assert.True(t, common.IsChannel(err, common.InvalidChannelSetup))
	_, _, err = applyTxs(t, state, false, &AddDelta{ChainID: 2, TokenID: 3})
	assert.True(t, common.IsChannel(err, common.NotFound))
}

func TestTransitionError(t *testing.T) {
	state := newTestState(t, 0)
	_, _, err := applyTxs(t, state, true,
		&AddDelta{ChainID: 0, TokenID: 1},
		&DirectPayment{TokenID: 1, Amount: big.NewInt(1)},
	)
	var txErr *TransitionError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, 1, txErr.Index)
	assert.Equal(t, DirectPaymentType, txErr.Type)
	assert.True(t, common.IsChannel(err, common.InsufficientCapacity))
}
