package raft

import "errors"

// Raft errors.
//
// None of these describe protocol outcomes: stale terms, log mismatches and
// denied votes are reported through response fields, never as errors.
var (
	// ErrNotLeader is returned when a proposal is made on a non-leader node.
	ErrNotLeader = errors.New("raft: not the leader")

	// ErrInvalidTransition is returned when a role change is not allowed
	// from the current state.
	ErrInvalidTransition = errors.New("raft: invalid state transition")

	// ErrLogIndexOutOfRange is returned when accessing or appending an invalid log index.
	ErrLogIndexOutOfRange = errors.New("raft: log index out of range")

	// ErrTermRegression is returned when an appended entry has a lower term
	// than its predecessor.
	ErrTermRegression = errors.New("raft: entry term lower than predecessor")

	// ErrLogCorrupted is returned when log data is corrupted.
	ErrLogCorrupted = errors.New("raft: log corrupted")

	// ErrStateCorrupted is returned when persisted hard state cannot be decoded.
	ErrStateCorrupted = errors.New("raft: hard state corrupted")

	// ErrMessageCorrupted is returned when an RPC payload cannot be decoded.
	ErrMessageCorrupted = errors.New("raft: message corrupted")

	// ErrUnknownMessage is returned for an unrecognized message type.
	ErrUnknownMessage = errors.New("raft: unknown message type")

	// ErrTransportClosed is returned when transport is closed.
	ErrTransportClosed = errors.New("raft: transport closed")

	// ErrConnectFailed is returned when connection to peer fails.
	ErrConnectFailed = errors.New("raft: connection failed")

	// ErrServerStopped is returned when an operation is attempted on a stopped server.
	ErrServerStopped = errors.New("raft: server stopped")

	// ErrInvalidConfig is returned when configuration is invalid.
	ErrInvalidConfig = errors.New("raft: invalid configuration")
)
