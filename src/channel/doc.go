// Package channel implements one party's endpoint of a bilateral channel.
//
// A Channel owns the committed ChannelState of one peer relationship, a
// mempool of transitions waiting to be proposed and the flush protocol that
// keeps both copies of the ledger in sync:
//
// Idle -> AwaitingAck: flush takes up to FlushBatchLimit transitions from the
// mempool, builds a Block on top of the committed state, dry-runs it and sends
// it together with signatures over the committed state (pending) and over the
// dry-run state (new).
//
// AwaitingAck -> Idle: the peer answers with a message whose BlockID is one
// past the proposed block and whose pending signatures verify against the
// dry-run state. The block is then applied for real and published.
//
// A received block is dry-run, its signatures are checked against the
// dry-run state and only then is it applied and published. The receiver always
// answers with a flush, which acknowledges the block and may carry a block of
// its own.
//
// When both sides propose a block at the same height, the left side wins: the
// right side puts its transitions back at the front of its mempool, applies the
// left block and proposes again.
//
// Every operation of a Channel runs on its own single-worker queue, so no two
// block applications or flush constructions ever interleave.
package channel
