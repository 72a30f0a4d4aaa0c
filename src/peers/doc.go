// Package peers manages the list of parties a node knows about.
//
// A peer is identified by its address, which is derived from its secp256k1
// public key, and is reachable at a network address (a websocket URL). Upon
// starting up, a node reads a peers.json file in its data directory and
// connects to every peer listed there. The public keys are also what payment
// onions are encrypted to, so every party on a payment route must appear in
// peers.json or have connected to the node.
package peers
