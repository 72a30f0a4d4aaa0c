package common

import (
	"errors"
	"fmt"
)

// ChannelErrType enumerates the failure classes of the channel core.
type ChannelErrType uint32

const (
	// InvalidChannelSetup covers equal or malformed addresses and duplicate
	// subchannels or deltas.
	InvalidChannelSetup ChannelErrType = iota
	// HashChainMismatch is returned when a block does not extend the committed
	// state (block id, previous block hash or previous state hash).
	HashChainMismatch
	// InvalidSignature is returned when proof signatures do not verify.
	InvalidSignature
	// InsufficientCapacity is returned when a payment exceeds derived capacity.
	InsufficientCapacity
	// NotFound covers missing subchannels, deltas, subcontracts and channels.
	NotFound
	// InvalidOwner is returned for swap ownership mismatches.
	InvalidOwner
	// InvalidSecret is returned when a secret does not match the hashlock.
	InvalidSecret
	// ProtocolViolation is returned for unexpected pending-block state.
	ProtocolViolation
	// Invariant marks corrupted in-memory state. It is never a user error.
	Invariant
)

// String ...
func (t ChannelErrType) String() string {
	switch t {
	case InvalidChannelSetup:
		return "Invalid Channel Setup"
	case HashChainMismatch:
		return "Hash Chain Mismatch"
	case InvalidSignature:
		return "Invalid Signature"
	case InsufficientCapacity:
		return "Insufficient Capacity"
	case NotFound:
		return "Not Found"
	case InvalidOwner:
		return "Invalid Owner"
	case InvalidSecret:
		return "Invalid Secret"
	case ProtocolViolation:
		return "Protocol Violation"
	case Invariant:
		return "Invariant Violation"
	default:
		return "Unknown"
	}
}

// ChannelErr is the error type returned by ledger, proof and channel code.
type ChannelErr struct {
	dataType string
	errType  ChannelErrType
	key      string
}

// NewChannelErr ...
func NewChannelErr(dataType string, errType ChannelErrType, key string) ChannelErr {
	return ChannelErr{
		dataType: dataType,
		errType:  errType,
		key:      key,
	}
}

// Type returns the class of the error.
func (e ChannelErr) Type() ChannelErrType {
	return e.errType
}

// Error ...
func (e ChannelErr) Error() string {
	return fmt.Sprintf("%s, %s, %s", e.dataType, e.key, e.errType)
}

// IsChannel checks that err, or an error it wraps, is a ChannelErr of type t.
func IsChannel(err error, t ChannelErrType) bool {
	var chanErr ChannelErr
	return errors.As(err, &chanErr) && chanErr.errType == t
}
