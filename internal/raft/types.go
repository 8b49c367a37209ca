package raft

// Term is a logical clock partitioning time into election epochs.
// Zero is the initial term.
type Term uint64

// Next returns the term that follows t.
func (t Term) Next() Term {
	return t + 1
}

// LogIndex is the 1-based position of an entry in the log.
// Zero means "no entries".
type LogIndex uint64

// Next returns the index that follows i.
func (i LogIndex) Next() LogIndex {
	return i + 1
}

// Prev returns the index before i, saturating at zero.
func (i LogIndex) Prev() LogIndex {
	if i == 0 {
		return 0
	}
	return i - 1
}

// NodeID identifies a cluster member. Zero means "no node".
type NodeID uint64

// None is the zero NodeID, used for an empty vote or an unknown leader.
const None NodeID = 0

// State is the role a node plays in the cluster.
type State uint8

// Node states.
const (
	StateFollower State = iota
	StateCandidate
	StateLeader
)

// String returns the string representation of a node state.
func (s State) String() string {
	switch s {
	case StateFollower:
		return "follower"
	case StateCandidate:
		return "candidate"
	case StateLeader:
		return "leader"
	default:
		return "unknown"
	}
}

// Quorum returns the number of votes or acknowledgments needed in a cluster
// of the given size.
func Quorum(clusterSize int) int {
	return clusterSize/2 + 1
}
