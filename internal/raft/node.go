package raft

import (
	"sort"
)

// Logger interface for Raft logging
type Logger interface {
	Debug(msg string, args ...interface{})
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// defaultLogger is a no-op logger
type defaultLogger struct{}

func (l *defaultLogger) Debug(msg string, args ...interface{}) {}
func (l *defaultLogger) Info(msg string, args ...interface{})  {}
func (l *defaultLogger) Warn(msg string, args ...interface{})  {}
func (l *defaultLogger) Error(msg string, args ...interface{}) {}

// VoteResult is the outcome of processing a RequestVote response.
type VoteResult uint8

// Vote results.
const (
	// VoteIgnored means the response is stale or the node is no longer a
	// candidate in the term the vote was requested in.
	VoteIgnored VoteResult = iota
	// VoteStepDown means the response carried a higher term and the node
	// stepped down; the election failed.
	VoteStepDown
	// VoteGranted means the voter granted the vote for the current term.
	VoteGranted
	// VoteDenied means the voter refused the vote for the current term.
	VoteDenied
)

// String returns the string representation of a vote result.
func (v VoteResult) String() string {
	switch v {
	case VoteIgnored:
		return "ignored"
	case VoteStepDown:
		return "step-down"
	case VoteGranted:
		return "granted"
	case VoteDenied:
		return "denied"
	default:
		return "unknown"
	}
}

// Node is the Raft state machine of one cluster member. It holds persistent
// state (term, vote, log), volatile state (commit and apply progress) and,
// while leader, per-peer replication progress.
//
// Node is not safe for concurrent use. It is mutated only through its
// methods, and a Runner or Server serializes access to it.
type Node struct {
	id    NodeID
	peers []NodeID

	state State

	// Persistent state
	currentTerm Term
	votedFor    NodeID
	log         *LogStore

	// Volatile state on all servers
	commitIndex LogIndex
	lastApplied LogIndex
	leaderID    NodeID

	// Volatile state on leaders (reinitialized after election)
	nextIndex  map[NodeID]LogIndex
	matchIndex map[NodeID]LogIndex

	logger Logger
}

// NodeOption configures a Node at construction.
type NodeOption func(*Node) error

// WithLogger sets the logger used by the node.
func WithLogger(logger Logger) NodeOption {
	return func(n *Node) error {
		if logger != nil {
			n.logger = logger
		}
		return nil
	}
}

// WithHardState restores the persisted term and vote.
func WithHardState(hs HardState) NodeOption {
	return func(n *Node) error {
		n.currentTerm = hs.CurrentTerm
		n.votedFor = hs.VotedFor
		return nil
	}
}

// WithEntries restores a persisted log.
func WithEntries(entries []*LogEntry) NodeOption {
	return func(n *Node) error {
		return n.log.Append(entries...)
	}
}

// NewNode creates a follower at term 0 with an empty log. Peers equal to id
// and duplicate peers are ignored.
func NewNode(id NodeID, peers []NodeID, opts ...NodeOption) (*Node, error) {
	if id == None {
		return nil, ErrInvalidConfig
	}

	n := &Node{
		id:         id,
		state:      StateFollower,
		log:        NewLogStore(),
		nextIndex:  make(map[NodeID]LogIndex),
		matchIndex: make(map[NodeID]LogIndex),
		logger:     &defaultLogger{},
	}

	seen := make(map[NodeID]bool, len(peers))
	for _, p := range peers {
		if p == None {
			return nil, ErrInvalidConfig
		}
		if p == id || seen[p] {
			continue
		}
		seen[p] = true
		n.peers = append(n.peers, p)
	}

	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}
	return n, nil
}

// ID returns the node's ID.
func (n *Node) ID() NodeID {
	return n.id
}

// Peers returns the IDs of the other cluster members.
func (n *Node) Peers() []NodeID {
	out := make([]NodeID, len(n.peers))
	copy(out, n.peers)
	return out
}

// State returns the current state (Follower, Candidate, Leader).
func (n *Node) State() State {
	return n.state
}

// IsLeader returns true if this node is the leader.
func (n *Node) IsLeader() bool {
	return n.state == StateLeader
}

// IsFollower returns true if this node is a follower.
func (n *Node) IsFollower() bool {
	return n.state == StateFollower
}

// IsCandidate returns true if this node is a candidate.
func (n *Node) IsCandidate() bool {
	return n.state == StateCandidate
}

// CurrentTerm returns the current term.
func (n *Node) CurrentTerm() Term {
	return n.currentTerm
}

// VotedFor returns the candidate voted for in the current term, or None.
func (n *Node) VotedFor() NodeID {
	return n.votedFor
}

// LeaderID returns the leader of the current term, or None if unknown.
func (n *Node) LeaderID() NodeID {
	return n.leaderID
}

// CommitIndex returns the commit index.
func (n *Node) CommitIndex() LogIndex {
	return n.commitIndex
}

// LastApplied returns the last applied index.
func (n *Node) LastApplied() LogIndex {
	return n.lastApplied
}

// Log returns the node's log. Callers must not modify it.
func (n *Node) Log() *LogStore {
	return n.log
}

// NextIndex returns the next index to send to peer. Only meaningful on a leader.
func (n *Node) NextIndex(peer NodeID) LogIndex {
	return n.nextIndex[peer]
}

// MatchIndex returns the highest index known replicated on peer.
// Only meaningful on a leader.
func (n *Node) MatchIndex(peer NodeID) LogIndex {
	return n.matchIndex[peer]
}

// ClusterSize returns the number of voting members including this node.
func (n *Node) ClusterSize() int {
	return len(n.peers) + 1
}

// Quorum returns the number of votes needed to win an election.
func (n *Node) Quorum() int {
	return Quorum(n.ClusterSize())
}

// HardState returns the state that must be persisted before answering RPCs.
func (n *Node) HardState() HardState {
	return HardState{CurrentTerm: n.currentTerm, VotedFor: n.votedFor}
}

// BecomeFollower transitions to follower state. The vote is cleared only
// when term advances, so a candidate that steps down within its own term
// keeps its self-vote. A term lower than the current one is ignored.
func (n *Node) BecomeFollower(term Term) {
	if term > n.currentTerm {
		n.currentTerm = term
		n.votedFor = None
		n.leaderID = None
	}
	n.state = StateFollower
}

// BecomeCandidate starts a new election: the term is incremented and the
// node votes for itself.
func (n *Node) BecomeCandidate() error {
	if n.state == StateLeader {
		return ErrInvalidTransition
	}
	n.state = StateCandidate
	n.currentTerm = n.currentTerm.Next()
	n.votedFor = n.id
	n.leaderID = None
	return nil
}

// BecomeLeader transitions a candidate to leader and initializes per-peer
// replication progress.
func (n *Node) BecomeLeader() error {
	if n.state != StateCandidate {
		return ErrInvalidTransition
	}
	n.state = StateLeader
	n.leaderID = n.id

	next := n.log.LastIndex().Next()
	n.nextIndex = make(map[NodeID]LogIndex, len(n.peers))
	n.matchIndex = make(map[NodeID]LogIndex, len(n.peers))
	for _, p := range n.peers {
		n.nextIndex[p] = next
		n.matchIndex[p] = 0
	}
	return nil
}

// IsLogUpToDate reports whether a candidate's log is at least as up to date
// as this node's: a higher last term wins, and on equal terms the longer or
// equal log wins.
func (n *Node) IsLogUpToDate(lastTerm Term, lastIndex LogIndex) bool {
	myTerm := n.log.LastTerm()
	if lastTerm != myTerm {
		return lastTerm > myTerm
	}
	return lastIndex >= n.log.LastIndex()
}

// HandleRequestVote processes a vote request and returns the response.
func (n *Node) HandleRequestVote(req *RequestVoteRequest) *RequestVoteResponse {
	if req.Term > n.currentTerm {
		n.BecomeFollower(req.Term)
	}

	grant := req.Term >= n.currentTerm &&
		(n.votedFor == None || n.votedFor == req.CandidateID) &&
		n.IsLogUpToDate(req.LastLogTerm, req.LastLogIndex)

	if grant {
		n.votedFor = req.CandidateID
	} else {
		n.logger.Debug("vote denied",
			"node", n.id, "candidate", req.CandidateID, "term", req.Term,
			"currentTerm", n.currentTerm, "votedFor", n.votedFor)
	}

	return &RequestVoteResponse{Term: n.currentTerm, VoteGranted: grant}
}

// HandleRequestVoteResponse processes a vote response. Tallying is left to
// the caller; the node only decides whether the response counts.
func (n *Node) HandleRequestVoteResponse(resp *RequestVoteResponse) VoteResult {
	if resp.Term > n.currentTerm {
		n.BecomeFollower(resp.Term)
		return VoteStepDown
	}
	if n.state != StateCandidate || resp.Term != n.currentTerm {
		return VoteIgnored
	}
	if resp.VoteGranted {
		return VoteGranted
	}
	return VoteDenied
}

// CreateAppendEntries builds the AppendEntries request for peer from the
// leader's replication progress. An empty entry list is a heartbeat.
func (n *Node) CreateAppendEntries(peer NodeID) *AppendEntriesRequest {
	next := n.nextIndex[peer]
	if next == 0 {
		next = 1
	}
	prev := next.Prev()

	return &AppendEntriesRequest{
		Term:         n.currentTerm,
		LeaderID:     n.id,
		PrevLogIndex: prev,
		PrevLogTerm:  n.log.TermAt(prev),
		Entries:      n.log.EntriesFrom(next),
		LeaderCommit: n.commitIndex,
	}
}

// HandleAppendEntries processes an AppendEntries request and returns the
// response.
func (n *Node) HandleAppendEntries(req *AppendEntriesRequest) *AppendEntriesResponse {
	// Reply false if term < currentTerm
	if req.Term < n.currentTerm {
		return &AppendEntriesResponse{Term: n.currentTerm, MatchIndex: n.log.LastIndex()}
	}

	if req.Term == n.currentTerm && n.state == StateLeader {
		n.logger.Error("append entries from another leader in the same term",
			"node", n.id, "leader", req.LeaderID, "term", req.Term)
		return &AppendEntriesResponse{Term: n.currentTerm, MatchIndex: n.log.LastIndex()}
	}

	if req.Term > n.currentTerm || n.state == StateCandidate {
		n.BecomeFollower(req.Term)
	}
	n.leaderID = req.LeaderID

	resp := &AppendEntriesResponse{Term: n.currentTerm}

	// Check log consistency
	if !n.log.Contains(req.PrevLogIndex, req.PrevLogTerm) {
		resp.MatchIndex = n.log.LastIndex()
		n.logger.Debug("append entries log mismatch",
			"node", n.id, "prevLogIndex", req.PrevLogIndex, "prevLogTerm", req.PrevLogTerm,
			"lastIndex", n.log.LastIndex())
		return resp
	}
	for i, e := range req.Entries {
		if e.Index != req.PrevLogIndex+LogIndex(i)+1 {
			resp.MatchIndex = n.log.LastIndex()
			n.logger.Warn("append entries with non-contiguous indexes", "node", n.id, "leader", req.LeaderID)
			return resp
		}
	}

	last := req.PrevLogIndex
	for _, e := range req.Entries {
		if e.Index <= n.log.LastIndex() {
			if n.log.TermAt(e.Index) == e.Term {
				last = e.Index
				continue
			}
			if e.Index <= n.commitIndex {
				n.logger.Error("refusing to truncate committed entry",
					"node", n.id, "index", e.Index, "commitIndex", n.commitIndex)
				resp.MatchIndex = last
				return resp
			}
			n.log.TruncateFrom(e.Index)
		}
		if err := n.log.Append(e.Clone()); err != nil {
			n.logger.Warn("append entries rejected", "node", n.id, "index", e.Index, "error", err)
			resp.MatchIndex = last
			return resp
		}
		last = e.Index
	}

	if req.LeaderCommit > n.commitIndex {
		commit := req.LeaderCommit
		if last < commit {
			commit = last
		}
		if commit > n.commitIndex {
			n.commitIndex = commit
		}
	}

	resp.Success = true
	resp.MatchIndex = last
	return resp
}

// HandleAppendEntriesResponse processes a follower's response and reports
// whether the commit index advanced.
func (n *Node) HandleAppendEntriesResponse(peer NodeID, resp *AppendEntriesResponse) bool {
	if resp.Term > n.currentTerm {
		n.BecomeFollower(resp.Term)
		return false
	}
	if n.state != StateLeader || resp.Term < n.currentTerm {
		return false
	}
	next, ok := n.nextIndex[peer]
	if !ok {
		n.logger.Debug("append entries response from unknown peer", "node", n.id, "peer", peer)
		return false
	}

	if resp.Success {
		if resp.MatchIndex > n.log.LastIndex() {
			n.logger.Warn("peer acknowledged entries beyond leader log",
				"node", n.id, "peer", peer, "matchIndex", resp.MatchIndex)
			return false
		}
		if resp.MatchIndex > n.matchIndex[peer] {
			n.matchIndex[peer] = resp.MatchIndex
		}
		if n.matchIndex[peer].Next() > next {
			n.nextIndex[peer] = n.matchIndex[peer].Next()
		}
		return n.advanceCommitIndex()
	}

	// Decrement nextIndex and retry, jumping to the follower's log end when
	// that is further back. Never probe below what is known to match.
	newNext := next.Prev()
	if hint := resp.MatchIndex.Next(); hint < newNext {
		newNext = hint
	}
	if floor := n.matchIndex[peer].Next(); newNext < floor {
		newNext = floor
	}
	n.nextIndex[peer] = newNext
	return false
}

// advanceCommitIndex moves commitIndex to the highest index stored on a
// quorum, provided that entry belongs to the current term.
func (n *Node) advanceCommitIndex() bool {
	matches := make([]LogIndex, 0, n.ClusterSize())
	matches = append(matches, n.log.LastIndex())
	for _, p := range n.peers {
		matches = append(matches, n.matchIndex[p])
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i] > matches[j] })

	candidate := matches[n.Quorum()-1]
	if candidate <= n.commitIndex || n.log.TermAt(candidate) != n.currentTerm {
		return false
	}
	n.commitIndex = candidate
	return true
}

// Propose appends a command to the leader's log in the current term and
// returns its index and term. Replication happens on the next AppendEntries.
func (n *Node) Propose(command []byte) (LogIndex, Term, error) {
	if n.state != StateLeader {
		return 0, 0, ErrNotLeader
	}

	entry := &LogEntry{
		Term:    n.currentTerm,
		Index:   n.log.LastIndex().Next(),
		Command: append([]byte(nil), command...),
	}
	if err := n.log.Append(entry); err != nil {
		return 0, 0, err
	}

	// Single node cluster - commit immediately
	n.advanceCommitIndex()
	return entry.Index, entry.Term, nil
}

// ApplyFunc applies one committed entry to an external state machine.
type ApplyFunc func(entry *LogEntry) error

// ApplyCommitted advances lastApplied towards commitIndex, calling fn for
// each entry in order. It stops at the first error; the failed entry is not
// marked applied.
func (n *Node) ApplyCommitted(fn ApplyFunc) (int, error) {
	applied := 0
	for n.lastApplied < n.commitIndex {
		entry, err := n.log.Get(n.lastApplied.Next())
		if err != nil {
			return applied, err
		}
		if fn != nil {
			if err := fn(entry.Clone()); err != nil {
				return applied, err
			}
		}
		n.lastApplied++
		applied++
	}
	return applied, nil
}
