package raft

import "fmt"

// Event is an inbound message waiting in a Runner's queue. The four kinds
// (vote request/response, append request/response) are distinguished by the
// concrete type of Message.
type Event struct {
	From    NodeID
	Message Message
}

// NewEvent creates an event carrying msg from the given node.
func NewEvent(from NodeID, msg Message) Event {
	return Event{From: from, Message: msg}
}

// String returns a short description for logs.
func (e Event) String() string {
	return fmt.Sprintf("%s from=%d term=%d", e.Message.Type(), e.From, e.Message.MessageTerm())
}

// Intent is an outbound message a Runner wants delivered. The Runner never
// performs I/O; a transport or simulator delivers intents.
type Intent struct {
	To      NodeID
	Message Message
}

// NewIntent creates an intent addressed to the given node.
func NewIntent(to NodeID, msg Message) Intent {
	return Intent{To: to, Message: msg}
}

// String returns a short description for logs.
func (i Intent) String() string {
	return fmt.Sprintf("%s to=%d term=%d", i.Message.Type(), i.To, i.Message.MessageTerm())
}
