// Package net carries channel messages between parties.
//
// A Message has a Header naming the sending and receiving party addresses and
// a body of one of a closed set of kinds (BodyType). Messages are framed with
// MessagePack (see Encode and Decode). FlushMessage is the body exchanged by
// channel endpoints; Profile bodies introduce a party to its peer.
//
// Transport is a bidirectional, message oriented connection to one peer. There
// are two implementations:
//
// - Inmem: in-memory pipes, connected through an InmemNetwork, used for
// testing without going over a network.
//
// - Websocket: binary websocket frames. A WebsocketListener accepts inbound
// connections, a WebsocketDialer opens outbound ones.
//
// Connections are not authenticated by the transport. The first message on a
// new connection is a BroadcastProfile from the dialing party, which tells the
// listening side which address the connection belongs to (see Handshake).
//
// TransportStore is the registry of open transports keyed by peer address.
package net
