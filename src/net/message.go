package net

import (
	"bytes"
	"fmt"

	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/ugorji/go/codec"
)

// BodyType is the kind of a Message body.
type BodyType uint8

const (
	// Undef is not a valid body
	Undef BodyType = iota
	// Flush carries a FlushMessage
	Flush
	// BroadcastProfile announces the sender's Profile
	BroadcastProfile
	// GetProfile asks the receiver for its Profile
	GetProfile
)

// String ...
func (t BodyType) String() string {
	switch t {
	case Flush:
		return "Flush"
	case BroadcastProfile:
		return "BroadcastProfile"
	case GetProfile:
		return "GetProfile"
	default:
		return "Undef"
	}
}

// Header addresses a message.
type Header struct {
	From string `codec:"from"`
	To   string `codec:"to"`
}

// Message is the unit exchanged over a Transport.
type Message struct {
	Header  Header        `codec:"header"`
	Type    BodyType      `codec:"type"`
	Flush   *FlushMessage `codec:"flush,omitempty"`
	Profile *Profile      `codec:"profile,omitempty"`
}

// FlushMessage proposes and/or acknowledges a block. PendingSignatures cover
// the state the sender has committed, NewSignatures the state after Block.
// A message without Block is a pure acknowledgement.
type FlushMessage struct {
	BlockID           uint64        `codec:"blockId"`
	PendingSignatures []string      `codec:"pendingSignatures"`
	NewSignatures     []string      `codec:"newSignatures,omitempty"`
	Block             *ledger.Block `codec:"block,omitempty"`
	DebugState        string        `codec:"debugState,omitempty"`
	Counter           uint64        `codec:"counter"`
}

// Profile describes a party.
type Profile struct {
	Address   string `codec:"address"`
	PubKeyHex string `codec:"pubKey"`
	NetAddr   string `codec:"netAddr"`
}

// NewFlushMessage wraps body in a Message from -> to.
func NewFlushMessage(from, to string, body *FlushMessage) *Message {
	return &Message{
		Header: Header{From: from, To: to},
		Type:   Flush,
		Flush:  body,
	}
}

// NewProfileMessage ...
func NewProfileMessage(from, to string, profile *Profile) *Message {
	return &Message{
		Header:  Header{From: from, To: to},
		Type:    BroadcastProfile,
		Profile: profile,
	}
}

// Validate checks that the body matches Type.
func (m *Message) Validate() error {
	switch m.Type {
	case Flush:
		if m.Flush == nil {
			return fmt.Errorf("flush message without body")
		}
	case BroadcastProfile:
		if m.Profile == nil {
			return fmt.Errorf("profile message without body")
		}
	case GetProfile:
	default:
		return fmt.Errorf("unknown body type %d", m.Type)
	}
	if m.Header.From == "" {
		return fmt.Errorf("message without sender")
	}
	return nil
}

func msgpackHandle() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	mh.WriteExt = true
	mh.Canonical = true
	return mh
}

// Encode frames m with MessagePack.
func Encode(m *Message) ([]byte, error) {
	b := new(bytes.Buffer)
	enc := codec.NewEncoder(b, msgpackHandle())
	if err := enc.Encode(m); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// Decode parses a frame produced by Encode.
func Decode(data []byte) (*Message, error) {
	m := new(Message)
	dec := codec.NewDecoder(bytes.NewBuffer(data), msgpackHandle())
	if err := dec.Decode(m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}
