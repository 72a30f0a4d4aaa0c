// Package node implements a party of the payment network.
//
// A Node holds one Channel per peer and is the Owner of all of them. Inbound
// messages are read from each peer's transport and dispatched on a
// single-worker queue per peer, so messages from one peer are handled in
// order while different peers proceed in parallel.
//
// Routing
//
// Payments are hashlocked. The payer picks a route, draws a secret and wraps
// an onion: one layer per hop, each encrypted to that hop's public key with
// ECIES. A hop that receives an AddPayment opens its layer. If it is the
// payee it settles at once with the secret it found. Otherwise it keeps its
// fee and proposes a smaller AddPayment, with the same hashlock and a shorter
// timelock, to the next hop, handing over the inner layer.
//
// Every node records the legs of a payment in a table keyed by hashlock. When
// the next hop settles the outbound leg, the revealed secret is used to
// settle the inbound leg, so settlement travels back along the route. A
// cancellation, or an outbound payment that cannot be proposed, releases the
// inbound leg the same way. The payer's PaymentPromise resolves when its own
// outbound leg settles or is released.
package node
