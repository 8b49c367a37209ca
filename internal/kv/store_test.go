package kv

import (
	"errors"
	"testing"

	"github.com/KilimcininKorOglu/miniraft/internal/raft"
)

func apply(t *testing.T, s *Store, index raft.LogIndex, cmd []byte) {
	t.Helper()
	if err := s.Apply(&raft.LogEntry{Index: index, Term: 1, Command: cmd}); err != nil {
		t.Fatalf("Apply(%d) failed: %v", index, err)
	}
}

func TestStoreApply(t *testing.T) {
	s := NewStore()

	apply(t, s, 1, Put("a", "1"))
	apply(t, s, 2, Put("b", "2"))
	apply(t, s, 3, Put("a", "3"))
	apply(t, s, 4, nil)
	apply(t, s, 5, Delete("b"))
	apply(t, s, 6, Delete("missing"))

	if v, ok := s.Get("a"); !ok || v != "3" {
		t.Errorf("Get(a) mismatch: got %q, %v", v, ok)
	}
	if _, ok := s.Get("b"); ok {
		t.Errorf("Key b should be deleted")
	}
	if s.Len() != 1 {
		t.Errorf("Len mismatch: got %d, want 1", s.Len())
	}
	if s.AppliedIndex() != 6 {
		t.Errorf("AppliedIndex mismatch: got %d, want 6", s.AppliedIndex())
	}
}

func TestStoreApplyErrors(t *testing.T) {
	tests := []struct {
		name    string
		cmd     []byte
		wantErr error
	}{
		{"unknown op", Command{Op: "incr", Key: "a"}.Encode(), ErrUnknownOp},
		{"bad json", []byte("{not json"), nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore()
			err := s.Apply(&raft.LogEntry{Index: 1, Term: 1, Command: tt.cmd})
			if err == nil {
				t.Fatal("Expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("Error mismatch: got %v, want %v", err, tt.wantErr)
			}
			if s.AppliedIndex() != 0 {
				t.Errorf("Failed entry must not advance AppliedIndex")
			}
		})
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	s := NewStore()
	apply(t, s, 1, Put("k", "v"))

	snap := s.Snapshot()
	snap["k"] = "changed"
	snap["new"] = "x"

	if v, _ := s.Get("k"); v != "v" {
		t.Errorf("Snapshot must not alias store data, got %q", v)
	}
	if s.Len() != 1 {
		t.Errorf("Len mismatch: got %d, want 1", s.Len())
	}
}

func TestDecodeCommand(t *testing.T) {
	cmd, err := DecodeCommand(Put("key", "value"))
	if err != nil {
		t.Fatalf("DecodeCommand failed: %v", err)
	}
	if cmd.Op != OpPut || cmd.Key != "key" || cmd.Value != "value" {
		t.Errorf("Command mismatch: got %+v", cmd)
	}

	cmd, _ = DecodeCommand(Delete("key"))
	if cmd.Op != OpDelete || cmd.Value != "" {
		t.Errorf("Delete command mismatch: got %+v", cmd)
	}
}

func TestStoreIsStateMachine(t *testing.T) {
	var _ raft.StateMachine = NewStore()
}
