package node

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrPaymentCancelled is the result of a payment that a hop released.
var ErrPaymentCancelled = errors.New("payment cancelled")

// PaymentResult is the outcome of a payment: the revealed secret, or why it
// failed.
type PaymentResult struct {
	Secret string
	Err    error
}

// PaymentPromise is handed to the caller of Pay and resolved when the
// payment settles or is cancelled.
type PaymentPromise struct {
	ID       string
	Hashlock string
	RespCh   chan PaymentResult

	once sync.Once
}

// NewPaymentPromise ...
func NewPaymentPromise(hashlock string) *PaymentPromise {
	return &PaymentPromise{
		ID:       uuid.New().String(),
		Hashlock: hashlock,
		// buffered so that resolving never waits for a reader
		RespCh: make(chan PaymentResult, 1),
	}
}

// Respond resolves the promise. Only the first call has an effect.
func (p *PaymentPromise) Respond(secret string, err error) {
	p.once.Do(func() {
		p.RespCh <- PaymentResult{Secret: secret, Err: err}
	})
}

// Wait blocks until the promise resolves or ctx is done.
func (p *PaymentPromise) Wait(ctx context.Context) (string, error) {
	select {
	case res := <-p.RespCh:
		return res.Secret, res.Err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
