package raft

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultTickInterval is how often a Server ticks its Runner.
const DefaultTickInterval = 10 * time.Millisecond

// senderQueueSize bounds the per-peer outbound queue. Messages beyond it are
// dropped, which Raft tolerates as message loss.
const senderQueueSize = 256

// ServerConfig holds configuration for a Server.
type ServerConfig struct {
	ID        NodeID
	Peers     []NodeID
	PeerAddrs map[NodeID]string // For status reporting only

	Transport    Transport
	Storage      Storage      // Optional
	StateMachine StateMachine // Optional

	Clock             Clock
	ElectionTimeouts  TimeoutSource
	HeartbeatInterval time.Duration
	TickInterval      time.Duration

	Logger        Logger
	OnStateChange StateChangeFunc
}

// Server runs a Runner against a real Transport. The Runner sits behind a
// mutex; the tick loop, inbound RPC handlers and per-peer senders take turns
// holding it. Each peer gets its own sender goroutine so messages to one
// peer stay in order.
type Server struct {
	id        NodeID
	peerAddrs map[NodeID]string

	mu     sync.Mutex
	runner *Runner

	transport    Transport
	stateMachine StateMachine
	tickInterval time.Duration

	senders map[NodeID]chan Message

	started  int32
	running  int32
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	logger Logger
}

// NewServer creates a server, restoring node state from cfg.Storage when set.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.ID == None || cfg.Transport == nil {
		return nil, ErrInvalidConfig
	}

	logger := cfg.Logger
	if logger == nil {
		logger = &defaultLogger{}
	}

	var (
		node *Node
		err  error
	)
	if cfg.Storage != nil {
		node, err = RestoreNode(cfg.ID, cfg.Peers, cfg.Storage, WithLogger(logger))
	} else {
		node, err = NewNode(cfg.ID, cfg.Peers, WithLogger(logger))
	}
	if err != nil {
		return nil, err
	}

	tick := cfg.TickInterval
	if tick <= 0 {
		tick = DefaultTickInterval
	}

	s := &Server{
		id:           cfg.ID,
		peerAddrs:    cfg.PeerAddrs,
		transport:    cfg.Transport,
		stateMachine: cfg.StateMachine,
		tickInterval: tick,
		senders:      make(map[NodeID]chan Message),
		stopCh:       make(chan struct{}),
		logger:       logger,
	}
	s.runner = NewRunner(node, RunnerConfig{
		Clock:             cfg.Clock,
		ElectionTimeouts:  cfg.ElectionTimeouts,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Logger:            logger,
		Storage:           cfg.Storage,
		OnStateChange:     cfg.OnStateChange,
	})
	for _, p := range node.Peers() {
		s.senders[p] = make(chan Message, senderQueueSize)
	}

	return s, nil
}

// ID returns the server's node ID.
func (s *Server) ID() NodeID {
	return s.id
}

// Start begins listening for RPCs and ticking. The server stops when ctx is
// cancelled or Stop is called.
func (s *Server) Start(ctx context.Context) error {
	if !atomic.CompareAndSwapInt32(&s.started, 0, 1) {
		return nil // Already started
	}

	if err := s.transport.Listen(s.handleRPC); err != nil {
		atomic.StoreInt32(&s.started, 0)
		return err
	}
	atomic.StoreInt32(&s.running, 1)

	for peer, ch := range s.senders {
		s.wg.Add(1)
		go s.sendLoop(peer, ch)
	}

	s.wg.Add(1)
	go s.run(ctx)

	s.logger.Info("raft server started", "node", s.id, "addr", s.transport.LocalAddr())
	return nil
}

// Stop shuts the server down and waits for its goroutines. Every call
// waits, including one racing with a cancelled context. A stopped server
// cannot be started again.
func (s *Server) Stop() {
	if atomic.LoadInt32(&s.started) == 0 {
		return // Never started
	}

	s.stopOnce.Do(func() {
		atomic.StoreInt32(&s.running, 0)
		close(s.stopCh)
		s.transport.Close()
		s.logger.Info("raft server stopping", "node", s.id)
	})
	s.wg.Wait()
}

// Running reports whether the server has been started and not stopped.
func (s *Server) Running() bool {
	return atomic.LoadInt32(&s.running) == 1
}

// Propose submits a command. Only the leader accepts proposals; the entry
// is replicated asynchronously.
func (s *Server) Propose(command []byte) (LogIndex, Term, error) {
	if !s.Running() {
		return 0, 0, ErrServerStopped
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner.Propose(command)
}

// IsLeader returns true if this node is the leader.
func (s *Server) IsLeader() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner.Node().IsLeader()
}

// LeaderID returns the current leader's ID, or None.
func (s *Server) LeaderID() NodeID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runner.Node().LeaderID()
}

// run is the tick loop.
func (s *Server) run(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ctx.Done():
			go s.Stop()
			return
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Server) tick() {
	s.mu.Lock()
	intents := s.runner.Tick()
	s.applyLocked()
	s.mu.Unlock()

	for _, in := range intents {
		s.dispatch(in)
	}
}

// dispatch queues an intent on its peer's sender.
func (s *Server) dispatch(in Intent) {
	ch, ok := s.senders[in.To]
	if !ok {
		s.logger.Warn("dropping message for unknown peer", "node", s.id, "peer", in.To)
		return
	}
	select {
	case ch <- in.Message:
	default:
		s.logger.Debug("peer queue full, dropping message",
			"node", s.id, "peer", in.To, "type", in.Message.Type().String())
	}
}

// sendLoop delivers messages to one peer in order and feeds responses back
// into the runner.
func (s *Server) sendLoop(peer NodeID, ch chan Message) {
	defer s.wg.Done()

	for {
		select {
		case <-s.stopCh:
			return
		case msg := <-ch:
			resp, err := s.call(peer, msg)
			if err != nil {
				s.logger.Debug("rpc failed", "node", s.id, "peer", peer,
					"type", msg.Type().String(), "error", err)
				continue
			}
			if resp == nil {
				continue
			}
			s.mu.Lock()
			s.runner.PushEvent(NewEvent(peer, resp))
			s.mu.Unlock()
		}
	}
}

// call sends a request and decodes the matching response. Response
// messages are never sent on their own.
func (s *Server) call(peer NodeID, msg Message) (Message, error) {
	var respType MessageType
	switch msg.Type() {
	case MsgRequestVote:
		respType = MsgRequestVoteResponse
	case MsgAppendEntries:
		respType = MsgAppendEntriesResponse
	default:
		return nil, nil
	}

	msgType, data := EncodeMessage(msg)
	respData, err := s.transport.Send(peer, msgType, data)
	if err != nil {
		return nil, err
	}
	return DecodeMessage(respType, respData)
}

// handleRPC handles incoming RPC messages.
func (s *Server) handleRPC(msgType MessageType, data []byte) ([]byte, error) {
	msg, err := DecodeMessage(msgType, data)
	if err != nil {
		s.logger.Warn("bad rpc", "node", s.id, "type", msgType.String(), "error", err)
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch req := msg.(type) {
	case *RequestVoteRequest:
		resp, err := s.runner.HandleRequestVote(req.CandidateID, req)
		if err != nil {
			s.logger.Error("failed to persist vote", "node", s.id, "error", err)
			return nil, err
		}
		return resp.Serialize(), nil

	case *AppendEntriesRequest:
		resp, err := s.runner.HandleAppendEntries(req.LeaderID, req)
		if err != nil {
			s.logger.Error("failed to persist entries", "node", s.id, "error", err)
			return nil, err
		}
		s.applyLocked()
		return resp.Serialize(), nil

	default:
		return nil, ErrUnknownMessage
	}
}

// applyLocked applies newly committed entries. Caller holds s.mu.
func (s *Server) applyLocked() {
	_, err := s.runner.Apply(func(entry *LogEntry) error {
		if s.stateMachine == nil {
			return nil
		}
		return s.stateMachine.Apply(entry)
	})
	if err != nil {
		s.logger.Error("failed to apply committed entry",
			"node", s.id, "lastApplied", s.runner.Node().LastApplied(), "error", err)
	}
}

// Status describes a server for operators.
type Status struct {
	NodeID       NodeID       `json:"nodeId"`
	State        string       `json:"state"`
	Term         Term         `json:"term"`
	VotedFor     NodeID       `json:"votedFor"`
	LeaderID     NodeID       `json:"leaderId"`
	LeaderAddr   string       `json:"leaderAddr"`
	CommitIndex  LogIndex     `json:"commitIndex"`
	LastApplied  LogIndex     `json:"lastApplied"`
	LastLogIndex LogIndex     `json:"lastLogIndex"`
	LastLogTerm  Term         `json:"lastLogTerm"`
	Peers        []PeerStatus `json:"peers"`
}

// PeerStatus represents a peer's status. Replication progress is only
// reported by the leader.
type PeerStatus struct {
	ID         NodeID   `json:"id"`
	Addr       string   `json:"addr"`
	NextIndex  LogIndex `json:"nextIndex,omitempty"`
	MatchIndex LogIndex `json:"matchIndex,omitempty"`
}

// Status returns a snapshot of the server's state.
func (s *Server) Status() *Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.runner.Node()
	status := &Status{
		NodeID:       n.ID(),
		State:        n.State().String(),
		Term:         n.CurrentTerm(),
		VotedFor:     n.VotedFor(),
		LeaderID:     n.LeaderID(),
		LeaderAddr:   s.peerAddrs[n.LeaderID()],
		CommitIndex:  n.CommitIndex(),
		LastApplied:  n.LastApplied(),
		LastLogIndex: n.Log().LastIndex(),
		LastLogTerm:  n.Log().LastTerm(),
		Peers:        make([]PeerStatus, 0, len(n.Peers())),
	}
	if n.LeaderID() == n.ID() {
		status.LeaderAddr = s.transport.LocalAddr()
	}

	for _, p := range n.Peers() {
		ps := PeerStatus{ID: p, Addr: s.peerAddrs[p]}
		if n.IsLeader() {
			ps.NextIndex = n.NextIndex(p)
			ps.MatchIndex = n.MatchIndex(p)
		}
		status.Peers = append(status.Peers, ps)
	}

	return status
}
