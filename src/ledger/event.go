package ledger

// Event reports a routing-relevant effect of a real (non dry-run) block
// application. Channels hand events to their owner after the block commits.
type Event interface {
	event()
}

// PaymentAdded is emitted when an AddPayment is stored.
type PaymentAdded struct {
	Subcontract *StoredSubcontract
}

// PaymentSettled is emitted when a SettlePayment resolves a stored payment.
// SettledByLeft is the side that revealed the secret.
type PaymentSettled struct {
	Subcontract   *StoredSubcontract
	Secret        string
	SettledByLeft bool
}

// PaymentCancelled is emitted when the receiver of a payment cancels it.
type PaymentCancelled struct {
	Subcontract     *StoredSubcontract
	CancelledByLeft bool
}

func (PaymentAdded) event()     {}
func (PaymentSettled) event()   {}
func (PaymentCancelled) event() {}
