// Package gossip synchronizes the local publisher registry with the
// statically configured peers.
//
// Each node keeps a TCP connection to every reachable peer and, once per
// gossip interval, sends the peer its own publishers and merges whatever the
// peer sent back into the local directory. A node only ever announces its own
// publishers, never what it learned from other peers, so state spreads by
// direct exchange only.
//
// A single reconciliation loop owns every connection. Outbound dials run in
// their own goroutines and report back to the loop, so an unreachable peer
// never delays gossip with the others.
package gossip
