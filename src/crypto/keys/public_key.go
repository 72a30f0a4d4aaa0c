package keys

import (
	"crypto/ecdsa"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

// PublicKeyHex returns the 0x hex representation of the compressed public key.
func PublicKeyHex(pub *ecdsa.PublicKey) string {
	return hexutil.Encode(ethcrypto.CompressPubkey(pub))
}

// AddressHex returns the lowercase 0x hex Ethereum address of pub. Lowercase
// keeps byte order and string order identical, which channels rely on to
// assign the left and right sides.
func AddressHex(pub *ecdsa.PublicKey) string {
	return strings.ToLower(ethcrypto.PubkeyToAddress(*pub).Hex())
}
