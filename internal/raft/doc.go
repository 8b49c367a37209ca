// Package raft implements the core of the Raft consensus algorithm for a
// single cluster member.
//
// # Overview
//
// The package is layered:
//   - Node is the pure protocol state machine: roles, terms, votes, the log,
//     commit and apply progress. It never blocks and never performs I/O.
//   - Runner drives a Node from a clock: election and heartbeat deadlines,
//     a FIFO queue of inbound events, vote tallying, and outbound intents.
//   - Server adapts a Runner to a Transport (TCP or in-memory) and a
//     StateMachine for running real clusters.
//
// Protocol outcomes such as stale terms, denied votes and log mismatches are
// reported through response fields, never as Go errors.
//
// # Usage
//
// Drive a runner by hand, delivering intents yourself:
//
//	node, _ := raft.NewNode(1, []raft.NodeID{2, 3})
//	r := raft.NewRunner(node, raft.RunnerConfig{Clock: clock})
//
//	for {
//	    for _, in := range r.Tick() {
//	        deliver(in.To, raft.NewEvent(1, in.Message))
//	    }
//	}
//
// Or run a networked server:
//
//	transport := raft.NewTCPTransport("127.0.0.1:7001", peerAddrs)
//	srv, err := raft.NewServer(raft.ServerConfig{
//	    ID:           1,
//	    Peers:        []raft.NodeID{2, 3},
//	    Transport:    transport,
//	    Storage:      storage,
//	    StateMachine: store,
//	})
//	err = srv.Start(ctx)
//
// # Failure Handling
//
// The cluster can tolerate (N-1)/2 failures for N nodes:
//   - 3 nodes: tolerates 1 failure
//   - 5 nodes: tolerates 2 failures
//
// # References
//
//   - Raft Paper: https://raft.github.io/raft.pdf
package raft
