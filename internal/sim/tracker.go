package sim

import (
	"sort"
	"sync"
	"time"

	"github.com/KilimcininKorOglu/miniraft/internal/raft"
)

// ElectionTracker watches role changes across a cluster. It records which
// nodes led in each term and how long the cluster went without a leader.
type ElectionTracker struct {
	mu sync.Mutex

	clock raft.Clock

	roles   map[raft.NodeID]raft.State
	leaders map[raft.Term]map[raft.NodeID]bool

	inElection      bool
	electionStart   time.Time
	electionSamples []time.Duration
}

// NewElectionTracker creates a tracker for a cluster whose nodes all start
// as followers. The initial election counts as the first sample.
func NewElectionTracker(clock raft.Clock, ids []raft.NodeID) *ElectionTracker {
	t := &ElectionTracker{
		clock:         clock,
		roles:         make(map[raft.NodeID]raft.State, len(ids)),
		leaders:       make(map[raft.Term]map[raft.NodeID]bool),
		inElection:    true,
		electionStart: clock.Now(),
	}
	for _, id := range ids {
		t.roles[id] = raft.StateFollower
	}
	return t
}

// OnStateChange is a raft.StateChangeFunc.
func (t *ElectionTracker) OnStateChange(id raft.NodeID, term raft.Term, from, to raft.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if to == raft.StateLeader {
		if t.leaders[term] == nil {
			t.leaders[term] = make(map[raft.NodeID]bool)
		}
		t.leaders[term][id] = true
	}
	t.setRole(id, to)
}

// Forget removes a crashed node. If it was the only leader an election
// starts.
func (t *ElectionTracker) Forget(id raft.NodeID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.setRole(id, raft.StateFollower)
}

func (t *ElectionTracker) setRole(id raft.NodeID, role raft.State) {
	hadLeader := t.hasLeader()
	t.roles[id] = role
	hasLeader := t.hasLeader()

	switch {
	case hadLeader && !hasLeader:
		t.inElection = true
		t.electionStart = t.clock.Now()
	case !hadLeader && hasLeader && t.inElection:
		t.electionSamples = append(t.electionSamples, t.clock.Now().Sub(t.electionStart))
		t.inElection = false
	}
}

func (t *ElectionTracker) hasLeader() bool {
	for _, r := range t.roles {
		if r == raft.StateLeader {
			return true
		}
	}
	return false
}

// Samples returns the recorded leaderless intervals.
func (t *ElectionTracker) Samples() []time.Duration {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]time.Duration, len(t.electionSamples))
	copy(out, t.electionSamples)
	return out
}

// LeadersOf returns the nodes that became leader in term, sorted.
func (t *ElectionTracker) LeadersOf(term raft.Term) []raft.NodeID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sortedIDs(t.leaders[term])
}

// Terms returns every term in which some node became leader, ascending.
func (t *ElectionTracker) Terms() []raft.Term {
	t.mu.Lock()
	defer t.mu.Unlock()
	terms := make([]raft.Term, 0, len(t.leaders))
	for term := range t.leaders {
		terms = append(terms, term)
	}
	sort.Slice(terms, func(i, j int) bool { return terms[i] < terms[j] })
	return terms
}

func sortedIDs(set map[raft.NodeID]bool) []raft.NodeID {
	ids := make([]raft.NodeID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
