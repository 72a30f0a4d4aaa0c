package ledger

import (
	"math/big"
	"testing"

	"github.com/mosaicnetworks/xln/src/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSwapState(t *testing.T) *ChannelState {
	state := newTestState(t, 0, 1)
	// Right owns the order: it gives 100 of token 0 for 50 of token 1.
	next, _, err := applyTxs(t, state, true, &AddSwap{
		ChainID:     0,
		OwnerIsLeft: false,
		TokenID:     0,
		AddAmount:   big.NewInt(100),
		SubTokenID:  1,
		SubAmount:   big.NewInt(50),
	})
	require.NoError(t, err)
	require.Len(t, next.Subcontracts, 1)
	return next
}

func TestAddSwapOwner(t *testing.T) {
	state := newTestState(t, 0, 1)
	_, _, err := applyTxs(t, state, true, &AddSwap{
		OwnerIsLeft: true,
		TokenID:     0,
		AddAmount:   big.NewInt(1),
		SubTokenID:  1,
		SubAmount:   big.NewInt(1),
	})
	assert.True(t, common.IsChannel(err, common.InvalidOwner))

	_, _, err = applyTxs(t, state, false, &AddSwap{
		OwnerIsLeft: true,
		TokenID:     0,
		AddAmount:   big.NewInt(1),
		SubTokenID:  9,
		SubAmount:   big.NewInt(1),
	})
	assert.True(t, common.IsChannel(err, common.NotFound))
}

func TestSettleSwapFull(t *testing.T) {
	state := newSwapState(t)
	ratio := uint32(MaxFillRatio)

	_, _, err := applyTxs(t, state, false, &SettleSwap{SubcontractIndex: 0, FillingRatio: &ratio})
	assert.True(t, common.IsChannel(err, common.InvalidOwner))

	_, _, err = applyTxs(t, state, true, &SettleSwap{SubcontractIndex: 1, FillingRatio: &ratio})
	assert.True(t, common.IsChannel(err, common.NotFound))

	next, _, err := applyTxs(t, state, true, &SettleSwap{SubcontractIndex: 0, FillingRatio: &ratio})
	require.NoError(t, err)
	assert.Empty(t, next.Subcontracts)

	add, _ := next.GetDelta(0, 0)
	sub, _ := next.GetDelta(0, 1)
	assert.Equal(t, int64(100), add.OffDelta.Int64())
	assert.Equal(t, int64(-50), sub.OffDelta.Int64())
}

func TestSettleSwapPartialAndCancel(t *testing.T) {
	state := newSwapState(t)
	half := uint32(MaxFillRatio / 2)

	next, _, err := applyTxs(t, state, true, &SettleSwap{SubcontractIndex: 0, FillingRatio: &half})
	require.NoError(t, err)
	add, _ := next.GetDelta(0, 0)
	sub, _ := next.GetDelta(0, 1)
	assert.Equal(t, int64(49), add.OffDelta.Int64())
	assert.Equal(t, int64(-24), sub.OffDelta.Int64())

	cancelled, _, err := applyTxs(t, state, true, &SettleSwap{SubcontractIndex: 0})
	require.NoError(t, err)
	assert.Empty(t, cancelled.Subcontracts)
	add, _ = cancelled.GetDelta(0, 0)
	assert.Equal(t, int64(0), add.OffDelta.Int64())
}
