// Package store persists channel state snapshots.
//
// A Store holds, per peer, the last committed ChannelState of the channel with
// that peer together with the peer's proof signatures over it. A node saves a
// snapshot after every commit and reloads it when the channel is recreated, so
// a restarted node resumes at the same block id as its peers.
//
// InmemStore keeps everything in memory and is used in tests. BadgerStore
// writes through to a badger database on disk.
package store
