package ledger

import (
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/mosaicnetworks/xln/src/common"
	"github.com/mosaicnetworks/xln/src/crypto"
)

// Address identifies a party. Addresses are lowercase 0x hex strings, so that
// string order and byte order agree.
type Address string

// NewAddress normalises s into an Address.
func NewAddress(s string) Address {
	s = strings.ToLower(strings.TrimSpace(s))
	if !strings.HasPrefix(s, "0x") {
		s = "0x" + s
	}
	return Address(s)
}

// String ...
func (a Address) String() string {
	return string(a)
}

// Less reports whether a sorts before b.
func (a Address) Less(b Address) bool {
	return strings.Compare(string(a), string(b)) < 0
}

// Bytes returns the decoded address, or the raw string bytes when the address
// is not valid hex.
func (a Address) Bytes() []byte {
	if b, err := hexutil.Decode(string(a)); err == nil {
		return b
	}
	return []byte(a)
}

// EnsureValidAddressOrder accepts only left < right.
func EnsureValidAddressOrder(left, right Address) error {
	if left == "" || right == "" || left == "0x" || right == "0x" {
		return common.NewChannelErr("Address", common.InvalidChannelSetup, "empty address")
	}
	if !left.Less(right) {
		return common.NewChannelErr("Address", common.InvalidChannelSetup, left.String()+" >= "+right.String())
	}
	return nil
}

// OrderAddresses returns a and b as (left, right).
func OrderAddresses(a, b Address) (Address, Address, error) {
	if a == b {
		return "", "", common.NewChannelErr("Address", common.InvalidChannelSetup, "equal addresses "+a.String())
	}
	if a.Less(b) {
		return a, b, nil
	}
	return b, a, nil
}

// ChannelKey derives the channel identifier, hash(left || right).
func ChannelKey(left, right Address) string {
	return crypto.Keccak256Hex(left.Bytes(), right.Bytes())
}
