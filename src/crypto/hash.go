package crypto

import (
	"crypto/rand"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// SecretSize is the number of random bytes in a payment secret.
const SecretSize = 32

// Keccak256 returns the Keccak-256 hash of the concatenation of data. It is the
// hash used for states, blocks, channel keys and hashlocks.
func Keccak256(data ...[]byte) []byte {
	return ethcrypto.Keccak256(data...)
}

// Keccak256Hex is Keccak256 encoded as 0x-prefixed lowercase hex.
func Keccak256Hex(data ...[]byte) string {
	return hexutil.Encode(Keccak256(data...))
}

// NewSecret returns a fresh random payment secret in 0x hex form.
func NewSecret() (string, error) {
	buf := make([]byte, SecretSize)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("reading random secret: %w", err)
	}
	return hexutil.Encode(buf), nil
}

// Hashlock returns the hashlock locking a payment to secret. Secrets in 0x hex
// form are hashed over their decoded bytes, anything else over its raw bytes.
func Hashlock(secret string) string {
	if b, err := hexutil.Decode(secret); err == nil {
		return Keccak256Hex(b)
	}
	return Keccak256Hex([]byte(secret))
}
