package keys

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// ParsePublicKeyHex parses a 0x-prefixed secp256k1 public key, compressed (33
// bytes) or uncompressed (65 bytes), as found in peers.json. btcec does the
// point decompression and curve checks.
func ParsePublicKeyHex(pubHex string) (*ecdsa.PublicKey, error) {
	raw, err := hexutil.Decode(pubHex)
	if err != nil {
		return nil, fmt.Errorf("decoding public key: %w", err)
	}

	pub, err := btcec.ParsePubKey(raw, btcec.S256())
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: ethcrypto.S256(),
		X:     pub.X,
		Y:     pub.Y,
	}, nil
}
