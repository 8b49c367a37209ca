package raft

import (
	"time"
)

// StateChangeFunc observes role transitions.
type StateChangeFunc func(id NodeID, term Term, from, to State)

// RunnerConfig holds the collaborators of a Runner. Zero fields get defaults.
type RunnerConfig struct {
	Clock             Clock         // Defaults to SystemClock
	ElectionTimeouts  TimeoutSource // Defaults to random timeouts in [150ms, 300ms]
	HeartbeatInterval time.Duration // Defaults to 50ms
	Logger            Logger
	Storage           Storage // Optional; nil disables persistence
	OnStateChange     StateChangeFunc
}

// Runner drives a Node: it owns the election and heartbeat timers, queues
// inbound events, tallies votes and turns everything into outbound intents.
// It performs no I/O beyond Storage; delivering intents is the caller's job.
//
// Runner is not safe for concurrent use.
type Runner struct {
	node  *Node
	peers map[NodeID]bool

	clock          Clock
	timeouts       TimeoutSource
	electionTimer  *Timer
	heartbeatTimer *Timer

	queue  []Event
	outbox []Intent

	// Vote tally for the election in electionTerm
	electionTerm Term
	votes        map[NodeID]bool

	storage         Storage
	savedHardState  HardState
	savedLogVersion uint64
	onStateChange   StateChangeFunc
	logger          Logger
}

// NewRunner creates a runner for node. The node is assumed to already
// reflect the contents of cfg.Storage.
func NewRunner(node *Node, cfg RunnerConfig) *Runner {
	r := &Runner{
		node:            node,
		peers:           make(map[NodeID]bool),
		clock:           cfg.Clock,
		timeouts:        cfg.ElectionTimeouts,
		storage:         cfg.Storage,
		savedHardState:  node.HardState(),
		savedLogVersion: node.Log().Version(),
		onStateChange:   cfg.OnStateChange,
		logger:          cfg.Logger,
	}
	if r.clock == nil {
		r.clock = SystemClock{}
	}
	if r.timeouts == nil {
		r.timeouts = NewRandomTimeouts(DefaultElectionTimeoutMin, DefaultElectionTimeoutMax, time.Now().UnixNano())
	}
	heartbeat := cfg.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeatInterval
	}
	if r.logger == nil {
		r.logger = &defaultLogger{}
	}
	for _, p := range node.Peers() {
		r.peers[p] = true
	}

	now := r.clock.Now()
	r.electionTimer = NewTimer(now, r.timeouts.Next())
	r.heartbeatTimer = NewTimer(now, heartbeat)
	return r
}

// Node returns the driven node.
func (r *Runner) Node() *Node {
	return r.node
}

// PushEvent queues an inbound message for the next Tick.
func (r *Runner) PushEvent(ev Event) {
	r.queue = append(r.queue, ev)
}

// Pending returns the number of queued events.
func (r *Runner) Pending() int {
	return len(r.queue)
}

// ElectionDeadline returns when the election timer next expires.
func (r *Runner) ElectionDeadline() time.Time {
	return r.electionTimer.Deadline()
}

// Tick advances the runner once: it checks the election timer (follower or
// candidate), then the heartbeat timer (leader), then drains the event
// queue in arrival order. The returned intents are in emission order.
func (r *Runner) Tick() []Intent {
	now := r.clock.Now()

	intents := r.outbox
	r.outbox = nil

	switch r.node.State() {
	case StateFollower, StateCandidate:
		if r.electionTimer.Elapsed(now) {
			intents = append(intents, r.startElection(now)...)
		}
	case StateLeader:
		if r.heartbeatTimer.Elapsed(now) {
			r.heartbeatTimer.Reset(now)
			intents = append(intents, r.broadcastAppendEntries()...)
		}
	}

	for len(r.queue) > 0 {
		ev := r.queue[0]
		r.queue[0] = Event{}
		r.queue = r.queue[1:]
		intents = append(intents, r.handleEvent(now, ev)...)
	}

	if err := r.sync(); err != nil {
		r.logger.Error("failed to persist raft state, dropping outbound messages",
			"node", r.node.ID(), "dropped", len(intents), "error", err)
		return nil
	}
	return intents
}

// HandleRequestVote answers a vote request immediately. The response is
// only returned once the resulting hard state is durable.
func (r *Runner) HandleRequestVote(from NodeID, req *RequestVoteRequest) (*RequestVoteResponse, error) {
	resp := r.handleRequestVote(r.clock.Now(), req)
	if err := r.sync(); err != nil {
		return nil, err
	}
	return resp, nil
}

// HandleAppendEntries answers an AppendEntries request immediately. The
// response is only returned once the resulting state is durable.
func (r *Runner) HandleAppendEntries(from NodeID, req *AppendEntriesRequest) (*AppendEntriesResponse, error) {
	resp := r.handleAppendEntries(r.clock.Now(), req)
	if err := r.sync(); err != nil {
		return nil, err
	}
	return resp, nil
}

// Propose appends command to the leader's log. AppendEntries for every peer
// are emitted by the next Tick.
func (r *Runner) Propose(command []byte) (LogIndex, Term, error) {
	index, term, err := r.node.Propose(command)
	if err != nil {
		return 0, 0, err
	}
	if err := r.sync(); err != nil {
		return 0, 0, err
	}
	r.outbox = append(r.outbox, r.broadcastAppendEntries()...)
	return index, term, nil
}

// Apply hands committed but unapplied entries to fn in log order.
func (r *Runner) Apply(fn ApplyFunc) (int, error) {
	return r.node.ApplyCommitted(fn)
}

func (r *Runner) handleEvent(now time.Time, ev Event) []Intent {
	switch msg := ev.Message.(type) {
	case *RequestVoteRequest:
		return []Intent{NewIntent(ev.From, r.handleRequestVote(now, msg))}

	case *RequestVoteResponse:
		return r.handleVoteResponse(now, ev.From, msg)

	case *AppendEntriesRequest:
		return []Intent{NewIntent(ev.From, r.handleAppendEntries(now, msg))}

	case *AppendEntriesResponse:
		before := r.node.State()
		if r.node.HandleAppendEntriesResponse(ev.From, msg) {
			r.logger.Debug("commit index advanced",
				"node", r.node.ID(), "commitIndex", r.node.CommitIndex())
		}
		r.transitioned(now, before)
		return nil

	default:
		r.logger.Warn("dropping unknown event", "node", r.node.ID(), "from", ev.From)
		return nil
	}
}

func (r *Runner) handleRequestVote(now time.Time, req *RequestVoteRequest) *RequestVoteResponse {
	before := r.node.State()
	resp := r.node.HandleRequestVote(req)
	if resp.VoteGranted {
		r.electionTimer.ResetWith(now, r.timeouts.Next())
		r.logger.Debug("granted vote",
			"node", r.node.ID(), "candidate", req.CandidateID, "term", req.Term)
	}
	r.transitioned(now, before)
	return resp
}

func (r *Runner) handleAppendEntries(now time.Time, req *AppendEntriesRequest) *AppendEntriesResponse {
	before := r.node.State()
	resp := r.node.HandleAppendEntries(req)
	if req.Term == r.node.CurrentTerm() && !r.node.IsLeader() {
		r.electionTimer.ResetWith(now, r.timeouts.Next())
	}
	r.transitioned(now, before)
	return resp
}

func (r *Runner) handleVoteResponse(now time.Time, from NodeID, resp *RequestVoteResponse) []Intent {
	before := r.node.State()
	switch r.node.HandleRequestVoteResponse(resp) {
	case VoteGranted:
		if !r.peers[from] || r.electionTerm != r.node.CurrentTerm() {
			return nil
		}
		r.votes[from] = true
		if len(r.votes) >= r.node.Quorum() {
			return r.becomeLeader(now)
		}
	case VoteStepDown:
		r.transitioned(now, before)
	}
	return nil
}

// startElection moves the node to a new term as candidate and requests
// votes from every peer.
func (r *Runner) startElection(now time.Time) []Intent {
	before := r.node.State()
	if err := r.node.BecomeCandidate(); err != nil {
		return nil
	}
	r.electionTimer.ResetWith(now, r.timeouts.Next())
	r.electionTerm = r.node.CurrentTerm()
	r.votes = map[NodeID]bool{r.node.ID(): true}

	r.logger.Info("starting election", "node", r.node.ID(), "term", r.electionTerm)
	r.transitioned(now, before)

	if len(r.votes) >= r.node.Quorum() {
		return r.becomeLeader(now)
	}

	lastIndex := r.node.Log().LastIndex()
	lastTerm := r.node.Log().LastTerm()
	intents := make([]Intent, 0, len(r.peers))
	for _, p := range r.node.Peers() {
		intents = append(intents, NewIntent(p, &RequestVoteRequest{
			Term:         r.electionTerm,
			CandidateID:  r.node.ID(),
			LastLogIndex: lastIndex,
			LastLogTerm:  lastTerm,
		}))
	}
	return intents
}

func (r *Runner) becomeLeader(now time.Time) []Intent {
	before := r.node.State()
	if err := r.node.BecomeLeader(); err != nil {
		return nil
	}
	r.heartbeatTimer.Reset(now)
	r.logger.Info("became leader",
		"node", r.node.ID(), "term", r.node.CurrentTerm(), "votes", len(r.votes))
	r.transitioned(now, before)
	return r.broadcastAppendEntries()
}

func (r *Runner) broadcastAppendEntries() []Intent {
	peers := r.node.Peers()
	intents := make([]Intent, 0, len(peers))
	for _, p := range peers {
		intents = append(intents, NewIntent(p, r.node.CreateAppendEntries(p)))
	}
	return intents
}

// transitioned notifies the observer when the role changed since before.
// A leader stepping down gets a fresh election timeout.
func (r *Runner) transitioned(now time.Time, before State) {
	after := r.node.State()
	if after == before {
		return
	}
	if before == StateLeader {
		r.electionTimer.ResetWith(now, r.timeouts.Next())
	}
	r.logger.Debug("state changed",
		"node", r.node.ID(), "term", r.node.CurrentTerm(), "from", before.String(), "to", after.String())
	if r.onStateChange != nil {
		r.onStateChange(r.node.ID(), r.node.CurrentTerm(), before, after)
	}
}

// sync persists hard state and log if they changed since the last save.
func (r *Runner) sync() error {
	if r.storage == nil {
		return nil
	}
	if hs := r.node.HardState(); hs != r.savedHardState {
		if err := r.storage.SaveHardState(hs); err != nil {
			return err
		}
		r.savedHardState = hs
	}
	if v := r.node.Log().Version(); v != r.savedLogVersion {
		if err := r.storage.SaveLog(r.node.Log().EntriesFrom(1)); err != nil {
			return err
		}
		r.savedLogVersion = v
	}
	return nil
}
