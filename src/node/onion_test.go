package node

import (
	"math/big"
	"testing"

	"github.com/mosaicnetworks/xln/src/crypto/keys"
	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOnionLayers(t *testing.T) {
	k1, _ := keys.GenerateECDSAKey()
	k2, _ := keys.GenerateECDSAKey()
	k3, _ := keys.GenerateECDSAKey()

	route := []Hop{
		{Address: ledger.NewAddress(keys.AddressHex(&k1.PublicKey)), PubKey: &k1.PublicKey},
		{Address: ledger.NewAddress(keys.AddressHex(&k2.PublicKey)), PubKey: &k2.PublicKey},
		{Address: ledger.NewAddress(keys.AddressHex(&k3.PublicKey)), PubKey: &k3.PublicKey},
	}

	pkg, err := BuildOnion(route, "0xsecret", big.NewInt(42))
	require.NoError(t, err)

	// only the first hop can open the package
	_, err = OpenOnion(k2, pkg)
	assert.Error(t, err)

	l1, err := OpenOnion(k1, pkg)
	require.NoError(t, err)
	assert.False(t, l1.IsFinal())
	assert.Equal(t, route[1].Address.String(), l1.NextHop)
	assert.Equal(t, route[2].Address.String(), l1.FinalRecipient)
	assert.Empty(t, l1.Secret)

	l2, err := OpenOnion(k2, l1.EncryptedNext)
	require.NoError(t, err)
	assert.False(t, l2.IsFinal())
	assert.Equal(t, route[2].Address.String(), l2.NextHop)
	assert.Empty(t, l2.Secret)

	l3, err := OpenOnion(k3, l2.EncryptedNext)
	require.NoError(t, err)
	assert.True(t, l3.IsFinal())
	assert.Equal(t, "0xsecret", l3.Secret)
	assert.Equal(t, "42", l3.Min().String())
	assert.Empty(t, l3.EncryptedNext)
}

func TestOnionErrors(t *testing.T) {
	k, _ := keys.GenerateECDSAKey()

	_, err := BuildOnion(nil, "0x", nil)
	assert.Error(t, err)

	_, err = BuildOnion([]Hop{{Address: "0x01"}}, "0x", nil)
	assert.Error(t, err)

	_, err = OpenOnion(k, "not hex")
	assert.Error(t, err)

	_, err = OpenOnion(k, "0x0102")
	assert.Error(t, err)

	empty := &Onion{}
	assert.Equal(t, "0", empty.Min().String())
}

func TestHashlockTable(t *testing.T) {
	table := newHashlockTable()
	peerIn := ledger.Address("0x00000000000000000000000000000000000000aa")
	peerOut := ledger.Address("0x00000000000000000000000000000000000000bb")

	_, ok := table.get("h")
	assert.False(t, ok)
	e, recorded := table.settle("h", "s")
	assert.Nil(t, e)
	assert.False(t, recorded)

	table.setIn("h", 3, peerIn, "")
	table.setOut("h", 9, peerOut)

	e, ok = table.get("h")
	require.True(t, ok)
	assert.True(t, e.HasIn())
	assert.Equal(t, uint64(3), *e.InTransitionID)
	assert.Equal(t, uint64(9), *e.OutTransitionID)
	assert.Equal(t, peerOut, e.OutAddress)

	// copies do not alias the table
	*e.InTransitionID = 100
	again, _ := table.get("h")
	assert.Equal(t, uint64(3), *again.InTransitionID)

	e, recorded = table.settle("h", "secret")
	require.NotNil(t, e)
	assert.True(t, recorded)
	assert.Equal(t, "secret", e.Secret)

	// a second settlement is a no-op
	e, recorded = table.settle("h", "other")
	require.NotNil(t, e)
	assert.False(t, recorded)
	assert.Equal(t, "secret", e.Secret)

	assert.Len(t, table.snapshot(), 1)
	_, ok = table.remove("h")
	assert.True(t, ok)
	assert.Equal(t, 0, table.len())
}

func TestBasisPointsFee(t *testing.T) {
	assert.Equal(t, "0", BasisPointsFee(0).Fee(big.NewInt(10000)).String())
	assert.Equal(t, "30", BasisPointsFee(30).Fee(big.NewInt(10000)).String())
	assert.Equal(t, "2", BasisPointsFee(100).Fee(big.NewInt(200)).String())
	// rounded down
	assert.Equal(t, "0", BasisPointsFee(1).Fee(big.NewInt(9999)).String())
}

func TestPaymentPromise(t *testing.T) {
	p := NewPaymentPromise("0xlock")
	assert.NotEmpty(t, p.ID)

	p.Respond("0xsecret", nil)
	p.Respond("", ErrPaymentCancelled)

	secret, err := wait(t, p)
	assert.NoError(t, err)
	assert.Equal(t, "0xsecret", secret)
}
