package channel

import (
	"context"

	"github.com/mosaicnetworks/xln/src/ledger"
	"github.com/mosaicnetworks/xln/src/net"
)

// Sender delivers messages to the peer. net.TransportStore implements it.
type Sender interface {
	Send(ctx context.Context, msg *net.Message) error
}

// Owner is notified of what the channel commits. Callbacks run on the
// channel's worker after the state they describe has been published; they
// must not wait on the same channel.
type Owner interface {
	// PaymentAdded: isSender is true when this side proposed the payment.
	PaymentAdded(ch *Channel, sc *ledger.StoredSubcontract, isSender bool)
	// PaymentSettled: isSender is true when this side revealed the secret.
	PaymentSettled(ch *Channel, sc *ledger.StoredSubcontract, secret string, isSender bool)
	// PaymentCancelled: isSender is true when this side cancelled.
	PaymentCancelled(ch *Channel, sc *ledger.StoredSubcontract, isSender bool)
	// TransitionRejected reports a mempool transition that could not be
	// proposed.
	TransitionRejected(ch *Channel, t ledger.Transition, err error)
	// Committed hands over every newly committed state, for persistence.
	Committed(ch *Channel, state *ledger.ChannelState, peerSignatures []string)
	// Halted reports a fatal invariant violation.
	Halted(ch *Channel, err error)
}

// NopOwner ignores every notification.
type NopOwner struct{}

// PaymentAdded implements Owner.
func (NopOwner) PaymentAdded(*Channel, *ledger.StoredSubcontract, bool) {}

// PaymentSettled implements Owner.
func (NopOwner) PaymentSettled(*Channel, *ledger.StoredSubcontract, string, bool) {}

// PaymentCancelled implements Owner.
func (NopOwner) PaymentCancelled(*Channel, *ledger.StoredSubcontract, bool) {}

// TransitionRejected implements Owner.
func (NopOwner) TransitionRejected(*Channel, ledger.Transition, error) {}

// Committed implements Owner.
func (NopOwner) Committed(*Channel, *ledger.ChannelState, []string) {}

// Halted implements Owner.
func (NopOwner) Halted(*Channel, error) {}
