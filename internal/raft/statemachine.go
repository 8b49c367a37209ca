package raft

// StateMachine receives committed entries in log order, exactly once per
// node lifetime.
type StateMachine interface {
	Apply(entry *LogEntry) error
}

// StateMachineFunc adapts a function to the StateMachine interface.
type StateMachineFunc func(entry *LogEntry) error

// Apply calls f(entry).
func (f StateMachineFunc) Apply(entry *LogEntry) error {
	return f(entry)
}
