package node

import (
	"crypto/ecdsa"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto/ecies"
	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/ugorji/go/codec"
)

// Hop is one party of a payment route.
type Hop struct {
	Address ledger.Address
	PubKey  *ecdsa.PublicKey
}

// Onion is one decrypted layer of a forwarding package. Intermediate hops
// learn NextHop and the still encrypted layer for it; only the final recipient
// finds the Secret.
type Onion struct {
	FinalRecipient string `codec:"finalRecipient"`
	Secret         string `codec:"secret,omitempty"`
	NextHop        string `codec:"nextHop,omitempty"`
	// MinAmount is the least the final recipient must be paid.
	MinAmount     string `codec:"minAmount"`
	EncryptedNext string `codec:"encryptedNext,omitempty"`
}

// IsFinal reports whether the holder of this layer is the payee.
func (o *Onion) IsFinal() bool {
	return o.NextHop == ""
}

// Min returns MinAmount as an integer; zero if unset.
func (o *Onion) Min() *big.Int {
	v, ok := new(big.Int).SetString(o.MinAmount, 10)
	if !ok {
		return new(big.Int)
	}
	return v
}

// BuildOnion wraps secret for the last hop of route and every preceding layer
// for the hop before it. The result is the package for route[0].
func BuildOnion(route []Hop, secret string, minAmount *big.Int) (string, error) {
	if len(route) == 0 {
		return "", fmt.Errorf("empty route")
	}
	if minAmount == nil {
		minAmount = new(big.Int)
	}

	final := route[len(route)-1].Address.String()

	var pkg string
	for i := len(route) - 1; i >= 0; i-- {
		layer := &Onion{
			FinalRecipient: final,
			MinAmount:      minAmount.String(),
		}
		if i == len(route)-1 {
			layer.Secret = secret
		} else {
			layer.NextHop = route[i+1].Address.String()
			layer.EncryptedNext = pkg
		}

		var err error
		pkg, err = sealOnion(route[i].PubKey, layer)
		if err != nil {
			return "", fmt.Errorf("sealing layer %d: %w", i, err)
		}
	}
	return pkg, nil
}

// OpenOnion decrypts the outer layer of pkg with priv.
func OpenOnion(priv *ecdsa.PrivateKey, pkg string) (*Onion, error) {
	ct, err := hexutil.Decode(pkg)
	if err != nil {
		return nil, fmt.Errorf("decoding package: %w", err)
	}

	plain, err := ecies.ImportECDSA(priv).Decrypt(ct, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting package: %w", err)
	}

	layer := new(Onion)
	dec := codec.NewDecoderBytes(plain, onionHandle())
	if err := dec.Decode(layer); err != nil {
		return nil, fmt.Errorf("decoding layer: %w", err)
	}
	return layer, nil
}

func sealOnion(pub *ecdsa.PublicKey, layer *Onion) (string, error) {
	if pub == nil {
		return "", fmt.Errorf("unknown public key")
	}

	var plain []byte
	enc := codec.NewEncoderBytes(&plain, onionHandle())
	if err := enc.Encode(layer); err != nil {
		return "", err
	}

	ct, err := ecies.Encrypt(rand.Reader, ecies.ImportECDSAPublic(pub), plain, nil, nil)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(ct), nil
}

func onionHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{}
	h.Canonical = true
	return h
}
