package keys

import (
	"crypto/ecdsa"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethcrypto "github.com/ethereum/go-ethereum/crypto"
)

const (
	signatureLength = 65
	recoveryOffset  = 27
)

// SignDigest signs digest as an Ethereum signed message ("\x19Ethereum Signed
// Message:\n32" prefix) and returns the 65 byte [R || S || V] signature in hex,
// with V in {27, 28} as expected by ecrecover.
func SignDigest(priv *ecdsa.PrivateKey, digest []byte) (string, error) {
	sig, err := ethcrypto.Sign(accounts.TextHash(digest), priv)
	if err != nil {
		return "", err
	}
	sig[signatureLength-1] += recoveryOffset
	return hexutil.Encode(sig), nil
}

// RecoverAddress returns the lowercase address of the key that produced sig
// over digest with SignDigest.
func RecoverAddress(digest []byte, sig string) (string, error) {
	raw, err := hexutil.Decode(sig)
	if err != nil {
		return "", fmt.Errorf("decoding signature: %w", err)
	}
	if len(raw) != signatureLength {
		return "", fmt.Errorf("wrong signature length: got %d, want %d", len(raw), signatureLength)
	}
	if raw[signatureLength-1] >= recoveryOffset {
		raw[signatureLength-1] -= recoveryOffset
	}

	pub, err := ethcrypto.SigToPub(accounts.TextHash(digest), raw)
	if err != nil {
		return "", err
	}
	return AddressHex(pub), nil
}

// VerifyDigest reports whether sig over digest was produced by address.
func VerifyDigest(address string, digest []byte, sig string) bool {
	signer, err := RecoverAddress(digest, sig)
	if err != nil {
		return false
	}
	return signer == strings.ToLower(address)
}
