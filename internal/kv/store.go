// Package kv is a string key/value state machine driven by committed raft
// log entries.
package kv

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/KilimcininKorOglu/miniraft/internal/raft"
)

// Op names a key/value operation.
type Op string

const (
	OpPut    Op = "put"
	OpDelete Op = "delete"
)

// ErrUnknownOp is returned when a command names an unsupported operation.
var ErrUnknownOp = errors.New("kv: unknown op")

// Command is the JSON payload carried in a log entry.
type Command struct {
	Op    Op     `json:"op"`
	Key   string `json:"key"`
	Value string `json:"value,omitempty"`
}

// Encode returns the command's log payload.
func (c Command) Encode() []byte {
	data, _ := json.Marshal(c)
	return data
}

// Put returns the encoded command setting key to value.
func Put(key, value string) []byte {
	return Command{Op: OpPut, Key: key, Value: value}.Encode()
}

// Delete returns the encoded command removing key.
func Delete(key string) []byte {
	return Command{Op: OpDelete, Key: key}.Encode()
}

// DecodeCommand parses a log payload.
func DecodeCommand(data []byte) (Command, error) {
	var cmd Command
	if err := json.Unmarshal(data, &cmd); err != nil {
		return cmd, fmt.Errorf("kv: decode command: %w", err)
	}
	return cmd, nil
}

// Store is safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	data    map[string]string
	applied raft.LogIndex
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{data: make(map[string]string)}
}

// Apply implements raft.StateMachine. Entries with an empty command are
// skipped.
func (s *Store) Apply(entry *raft.LogEntry) error {
	if len(entry.Command) == 0 {
		s.mu.Lock()
		s.applied = entry.Index
		s.mu.Unlock()
		return nil
	}

	cmd, err := DecodeCommand(entry.Command)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.Op {
	case OpPut:
		s.data[cmd.Key] = cmd.Value
	case OpDelete:
		delete(s.data, cmd.Key)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownOp, cmd.Op)
	}
	s.applied = entry.Index
	return nil
}

// Get returns the value stored under key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok
}

// Len returns the number of keys.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// AppliedIndex returns the index of the last entry applied.
func (s *Store) AppliedIndex() raft.LogIndex {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.applied
}

// Snapshot returns a copy of the current contents.
func (s *Store) Snapshot() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.data))
	for k, v := range s.data {
		out[k] = v
	}
	return out
}
