package keys

import (
	"crypto/ecdsa"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// GenerateECDSAKey creates a new secp256k1 private key.
func GenerateECDSAKey() (*ecdsa.PrivateKey, error) {
	return ethcrypto.GenerateKey()
}

// DumpPrivateKey exports a private key into a 32 byte binary dump.
func DumpPrivateKey(priv *ecdsa.PrivateKey) []byte {
	if priv == nil {
		return nil
	}
	return ethcrypto.FromECDSA(priv)
}

// ParsePrivateKey creates a private key from a binary dump as produced by
// DumpPrivateKey.
func ParsePrivateKey(d []byte) (*ecdsa.PrivateKey, error) {
	priv, err := ethcrypto.ToECDSA(d)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return priv, nil
}

// PrivateKeyHex returns the 0x hex representation of a raw private key.
func PrivateKeyHex(key *ecdsa.PrivateKey) string {
	return hexutil.Encode(DumpPrivateKey(key))
}
