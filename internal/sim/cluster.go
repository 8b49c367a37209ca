// Package sim runs a whole raft cluster inside one goroutine on simulated
// time. It routes intents between runners, and can drop messages, partition
// the network and crash or restart nodes. It never counts votes or decides
// anything on behalf of a node.
package sim

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/KilimcininKorOglu/miniraft/internal/kv"
	"github.com/KilimcininKorOglu/miniraft/internal/raft"
)

// Default simulation parameters.
const (
	DefaultStepInterval = 10 * time.Millisecond
	DefaultSize         = 3
)

// ErrNoLeader is returned when a proposal finds no live leader.
var ErrNoLeader = errors.New("sim: no leader")

// ErrUnknownNode is returned for a node ID outside the cluster.
var ErrUnknownNode = errors.New("sim: unknown node")

// Config describes a simulated cluster.
type Config struct {
	Size int   // Number of nodes, IDs 1..Size
	Seed int64 // Seeds message drops and random election timeouts

	// DropRate is the probability that any single message is lost.
	DropRate float64

	// ElectionTimeouts overrides the timeout source per node. Nodes without
	// an entry get random timeouts in [ElectionTimeoutMin, ElectionTimeoutMax].
	ElectionTimeouts   map[raft.NodeID]raft.TimeoutSource
	ElectionTimeoutMin time.Duration
	ElectionTimeoutMax time.Duration
	HeartbeatInterval  time.Duration

	// StepInterval is how far RunUntil advances the clock per step.
	StepInterval time.Duration

	Logger raft.Logger
}

func (c *Config) setDefaults() {
	if c.Size <= 0 {
		c.Size = DefaultSize
	}
	if c.ElectionTimeoutMin <= 0 {
		c.ElectionTimeoutMin = raft.DefaultElectionTimeoutMin
	}
	if c.ElectionTimeoutMax < c.ElectionTimeoutMin {
		c.ElectionTimeoutMax = raft.DefaultElectionTimeoutMax
		if c.ElectionTimeoutMax < c.ElectionTimeoutMin {
			c.ElectionTimeoutMax = c.ElectionTimeoutMin
		}
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = raft.DefaultHeartbeatInterval
	}
	if c.StepInterval <= 0 {
		c.StepInterval = DefaultStepInterval
	}
}

// Stats counts routed messages.
type Stats struct {
	Steps       int
	Delivered   int
	Dropped     int
	Partitioned int
}

// member is one simulated node. A crashed member keeps its storage only.
type member struct {
	id       raft.NodeID
	runner   *raft.Runner
	storage  *raft.MemoryStorage
	store    *kv.Store
	timeouts raft.TimeoutSource
	crashed  bool

	// Highest commit index seen in the current incarnation
	commitIndex raft.LogIndex
}

// appliedEntry is the first value any node applied at an index.
type appliedEntry struct {
	node    raft.NodeID
	term    raft.Term
	command string
}

// Cluster is a simulated raft cluster. It is not safe for concurrent use.
type Cluster struct {
	cfg     Config
	clock   *raft.ManualClock
	rng     *rand.Rand
	ids     []raft.NodeID
	members map[raft.NodeID]*member

	// Partition group per node; nodes in different groups cannot talk.
	groups map[raft.NodeID]int

	tracker *ElectionTracker
	stats   Stats

	applied   map[raft.LogIndex]appliedEntry
	maxTerms  map[raft.NodeID]raft.Term
	violation error
}

// New builds a cluster of fresh followers at term 0.
func New(cfg Config) *Cluster {
	cfg.setDefaults()

	c := &Cluster{
		cfg:      cfg,
		clock:    raft.NewManualClock(time.Unix(0, 0)),
		rng:      rand.New(rand.NewSource(cfg.Seed)),
		members:  make(map[raft.NodeID]*member, cfg.Size),
		groups:   make(map[raft.NodeID]int, cfg.Size),
		applied:  make(map[raft.LogIndex]appliedEntry),
		maxTerms: make(map[raft.NodeID]raft.Term, cfg.Size),
	}
	for i := 1; i <= cfg.Size; i++ {
		c.ids = append(c.ids, raft.NodeID(i))
	}
	c.tracker = NewElectionTracker(c.clock, c.ids)

	for _, id := range c.ids {
		timeouts := cfg.ElectionTimeouts[id]
		if timeouts == nil {
			timeouts = raft.NewRandomTimeouts(cfg.ElectionTimeoutMin, cfg.ElectionTimeoutMax, cfg.Seed*31+int64(id))
		}
		m := &member{
			id:       id,
			storage:  raft.NewMemoryStorage(),
			timeouts: timeouts,
		}
		if err := c.boot(m); err != nil {
			// Fresh memory storage cannot fail to load
			panic(fmt.Sprintf("sim: boot node %d: %v", id, err))
		}
		c.members[id] = m
	}
	return c
}

// boot (re)creates a member's runner from its storage.
func (c *Cluster) boot(m *member) error {
	var opts []raft.NodeOption
	if c.cfg.Logger != nil {
		opts = append(opts, raft.WithLogger(c.cfg.Logger))
	}
	node, err := raft.RestoreNode(m.id, c.ids, m.storage, opts...)
	if err != nil {
		return err
	}
	m.runner = raft.NewRunner(node, raft.RunnerConfig{
		Clock:             c.clock,
		ElectionTimeouts:  m.timeouts,
		HeartbeatInterval: c.cfg.HeartbeatInterval,
		Logger:            c.cfg.Logger,
		Storage:           m.storage,
		OnStateChange:     c.tracker.OnStateChange,
	})
	m.store = kv.NewStore()
	m.commitIndex = 0
	m.crashed = false
	return nil
}

// IDs returns the node IDs in ascending order.
func (c *Cluster) IDs() []raft.NodeID {
	out := make([]raft.NodeID, len(c.ids))
	copy(out, c.ids)
	return out
}

// Clock returns the shared simulated clock.
func (c *Cluster) Clock() *raft.ManualClock {
	return c.clock
}

// Tracker returns the cluster's election tracker.
func (c *Cluster) Tracker() *ElectionTracker {
	return c.tracker
}

// Stats returns message counters.
func (c *Cluster) Stats() Stats {
	return c.stats
}

// Node returns the live node with the given ID, or nil if it is unknown
// or crashed.
func (c *Cluster) Node(id raft.NodeID) *raft.Node {
	m, ok := c.members[id]
	if !ok || m.crashed {
		return nil
	}
	return m.runner.Node()
}

// Store returns the key/value state machine of a live node.
func (c *Cluster) Store(id raft.NodeID) *kv.Store {
	m, ok := c.members[id]
	if !ok || m.crashed {
		return nil
	}
	return m.store
}

// Alive reports whether a node is running.
func (c *Cluster) Alive(id raft.NodeID) bool {
	m, ok := c.members[id]
	return ok && !m.crashed
}

// Step advances the clock by d and ticks every live node in ID order.
// Intents are queued at their destination and handled on its next tick,
// which for higher IDs is later in the same step.
func (c *Cluster) Step(d time.Duration) {
	c.clock.Advance(d)
	c.stats.Steps++

	for _, id := range c.ids {
		m := c.members[id]
		if m.crashed {
			continue
		}
		intents := m.runner.Tick()
		c.observe(m)
		for _, in := range intents {
			c.route(id, in)
		}
	}
}

// route delivers one intent unless the destination is down, the link is
// partitioned or the message is dropped.
func (c *Cluster) route(from raft.NodeID, in raft.Intent) {
	dst, ok := c.members[in.To]
	if !ok || dst.crashed {
		c.stats.Dropped++
		return
	}
	if c.groups[from] != c.groups[in.To] {
		c.stats.Partitioned++
		return
	}
	if c.cfg.DropRate > 0 && c.rng.Float64() < c.cfg.DropRate {
		c.stats.Dropped++
		return
	}
	dst.runner.PushEvent(raft.NewEvent(from, in.Message))
	c.stats.Delivered++
}

// observe applies newly committed entries and checks per-node invariants.
func (c *Cluster) observe(m *member) {
	node := m.runner.Node()

	if term := node.CurrentTerm(); term < c.maxTerms[m.id] {
		c.fail(fmt.Errorf("node %d term went from %d to %d", m.id, c.maxTerms[m.id], term))
	} else {
		c.maxTerms[m.id] = term
	}
	if ci := node.CommitIndex(); ci < m.commitIndex {
		c.fail(fmt.Errorf("node %d commit index went from %d to %d", m.id, m.commitIndex, ci))
	} else {
		m.commitIndex = ci
	}

	_, err := m.runner.Apply(func(e *raft.LogEntry) error {
		if first, ok := c.applied[e.Index]; ok {
			if first.term != e.Term || first.command != string(e.Command) {
				c.fail(fmt.Errorf("node %d applied (%d, %d) but node %d applied (%d, %d)",
					m.id, e.Index, e.Term, first.node, e.Index, first.term))
			}
		} else {
			c.applied[e.Index] = appliedEntry{node: m.id, term: e.Term, command: string(e.Command)}
		}
		return m.store.Apply(e)
	})
	if err != nil {
		c.fail(fmt.Errorf("node %d apply: %w", m.id, err))
	}
}

func (c *Cluster) fail(err error) {
	if c.violation == nil {
		c.violation = err
	}
}

// Violation returns the first invariant violation observed while stepping.
func (c *Cluster) Violation() error {
	return c.violation
}

// Partition splits the network. Each argument is a group of nodes that can
// reach each other; nodes not named in any group form one more group.
func (c *Cluster) Partition(groups ...[]raft.NodeID) {
	c.groups = make(map[raft.NodeID]int, len(c.ids))
	for i, g := range groups {
		for _, id := range g {
			c.groups[id] = i + 1
		}
	}
}

// Isolate cuts a single node off from everyone else.
func (c *Cluster) Isolate(id raft.NodeID) {
	c.Partition([]raft.NodeID{id})
}

// Heal removes every partition.
func (c *Cluster) Heal() {
	c.groups = make(map[raft.NodeID]int, len(c.ids))
}

// Crash stops a node. Its queued messages are lost; its storage survives.
func (c *Cluster) Crash(id raft.NodeID) error {
	m, ok := c.members[id]
	if !ok {
		return ErrUnknownNode
	}
	if m.crashed {
		return nil
	}
	m.crashed = true
	m.runner = nil
	m.store = nil
	c.tracker.Forget(id)
	return nil
}

// Restart rebuilds a crashed node from its storage. It comes back as a
// follower with an empty state machine.
func (c *Cluster) Restart(id raft.NodeID) error {
	m, ok := c.members[id]
	if !ok {
		return ErrUnknownNode
	}
	if !m.crashed {
		return nil
	}
	return c.boot(m)
}

// Leader returns the live leader with the highest term, or raft.None.
// A deposed leader that has not heard of the new term yet can coexist with
// the real one.
func (c *Cluster) Leader() raft.NodeID {
	leader := raft.None
	var best raft.Term
	for _, id := range c.ids {
		n := c.Node(id)
		if n != nil && n.IsLeader() && (leader == raft.None || n.CurrentTerm() > best) {
			leader, best = id, n.CurrentTerm()
		}
	}
	return leader
}

// Propose submits a command to the current leader.
func (c *Cluster) Propose(command []byte) (raft.NodeID, raft.LogIndex, error) {
	id := c.Leader()
	if id == raft.None {
		return raft.None, 0, ErrNoLeader
	}
	index, _, err := c.members[id].runner.Propose(command)
	if err != nil {
		return id, 0, err
	}
	return id, index, nil
}

// RunUntil steps until cond holds or maxSteps steps have run. It reports
// whether cond was met.
func (c *Cluster) RunUntil(cond func(*Cluster) bool, maxSteps int) bool {
	for i := 0; i < maxSteps; i++ {
		if cond(c) {
			return true
		}
		c.Step(c.cfg.StepInterval)
	}
	return cond(c)
}

// Run steps for the given simulated duration.
func (c *Cluster) Run(d time.Duration) {
	for elapsed := time.Duration(0); elapsed < d; elapsed += c.cfg.StepInterval {
		c.Step(c.cfg.StepInterval)
	}
}

// HasLeader is a RunUntil condition.
func HasLeader(c *Cluster) bool {
	return c.Leader() != raft.None
}

// AllApplied returns a RunUntil condition that holds once every live node
// has applied through index.
func AllApplied(index raft.LogIndex) func(*Cluster) bool {
	return func(c *Cluster) bool {
		for _, id := range c.ids {
			n := c.Node(id)
			if n != nil && n.LastApplied() < index {
				return false
			}
		}
		return true
	}
}
