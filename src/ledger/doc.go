// Package ledger implements the bilateral channel ledger: the per-asset Delta
// records and the capacity math derived from them, the ChannelState balance
// sheet with its pending subcontracts, Blocks of Transitions and the rules that
// apply them.
//
// A ChannelState is only ever mutated by applying a Block. ApplyBlock works on a
// copy of the state and returns it, so a failing transition never leaves a
// partially applied ledger behind. Both parties of a channel apply the same
// blocks in the same order and must arrive at byte-identical states, which is
// why the encoding used for hashing (see Marshal) is canonical.
package ledger
