package sim

import (
	"testing"
	"time"

	"github.com/KilimcininKorOglu/miniraft/internal/raft"
)

func TestElectionTracker(t *testing.T) {
	clock := raft.NewManualClock(time.Unix(0, 0))
	tr := NewElectionTracker(clock, []raft.NodeID{1, 2, 3})

	clock.Advance(200 * time.Millisecond)
	tr.OnStateChange(1, 1, raft.StateFollower, raft.StateCandidate)
	clock.Advance(10 * time.Millisecond)
	tr.OnStateChange(1, 1, raft.StateCandidate, raft.StateLeader)

	// Leader crashes; a new one takes over 300ms later
	clock.Advance(time.Second)
	tr.Forget(1)
	clock.Advance(300 * time.Millisecond)
	tr.OnStateChange(2, 2, raft.StateFollower, raft.StateCandidate)
	tr.OnStateChange(2, 2, raft.StateCandidate, raft.StateLeader)

	samples := tr.Samples()
	want := []time.Duration{210 * time.Millisecond, 300 * time.Millisecond}
	if len(samples) != len(want) {
		t.Fatalf("Sample count mismatch: got %d, want %d", len(samples), len(want))
	}
	for i := range want {
		if samples[i] != want[i] {
			t.Errorf("Sample %d mismatch: got %v, want %v", i, samples[i], want[i])
		}
	}

	if got := tr.LeadersOf(1); len(got) != 1 || got[0] != 1 {
		t.Errorf("Term 1 leaders mismatch: got %v", got)
	}
	terms := tr.Terms()
	if len(terms) != 2 || terms[0] != 1 || terms[1] != 2 {
		t.Errorf("Terms mismatch: got %v", terms)
	}
}

func TestCheckElectionSafetyDetectsTwoLeaders(t *testing.T) {
	c := New(Config{Size: 3})
	c.tracker.OnStateChange(1, 5, raft.StateCandidate, raft.StateLeader)
	c.tracker.OnStateChange(2, 5, raft.StateCandidate, raft.StateLeader)

	if err := c.CheckElectionSafety(); err == nil {
		t.Error("Two leaders in term 5 should be reported")
	}
}

func TestMatchLogs(t *testing.T) {
	build := func(terms ...raft.Term) *raft.LogStore {
		l := raft.NewLogStore()
		for i, term := range terms {
			l.Append(&raft.LogEntry{Index: raft.LogIndex(i + 1), Term: term, Command: []byte{byte(term)}})
		}
		return l
	}

	tests := []struct {
		name    string
		a, b    []raft.Term
		wantErr bool
	}{
		{"identical", []raft.Term{1, 1, 2}, []raft.Term{1, 1, 2}, false},
		{"prefix", []raft.Term{1, 1}, []raft.Term{1, 1, 2, 3}, false},
		{"diverged tail", []raft.Term{1, 2}, []raft.Term{1, 3}, false},
		{"empty", nil, []raft.Term{1}, false},
		{"mismatch below match", []raft.Term{1, 2, 3}, []raft.Term{2, 2, 3}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := matchLogs(build(tt.a...), build(tt.b...))
			if (err != nil) != tt.wantErr {
				t.Errorf("matchLogs error mismatch: got %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
