// Package keys implements the public key cryptography used by XLN nodes.
//
// Every party owns a secp256k1 key-pair. The Ethereum address derived from the
// public key is the party's identity in channels, and dispute proofs are signed
// as Ethereum signed messages so that an on-chain contract can recover the
// signer with ecrecover.
package keys
