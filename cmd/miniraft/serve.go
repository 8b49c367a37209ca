package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/KilimcininKorOglu/miniraft/internal/config"
	"github.com/KilimcininKorOglu/miniraft/internal/kv"
	"github.com/KilimcininKorOglu/miniraft/internal/logging"
	"github.com/KilimcininKorOglu/miniraft/internal/raft"
)

// RaftNode is one cluster member served over TCP with a key/value state
// machine.
type RaftNode struct {
	config    *config.Config
	logger    logging.Logger
	server    *raft.Server
	transport *raft.TCPTransport
	store     *kv.Store

	statusInterval time.Duration
	wg             sync.WaitGroup
}

// NewRaftNode wires storage, transport and the state machine for cfg.
func NewRaftNode(cfg *config.Config, logger logging.Logger) (*RaftNode, error) {
	id := raft.NodeID(cfg.Node.ID)

	peers := make([]raft.NodeID, 0, cfg.ClusterSize())
	peers = append(peers, id)
	addrs := make(map[raft.NodeID]string, len(cfg.Node.Peers))
	for _, p := range cfg.Node.Peers {
		peers = append(peers, raft.NodeID(p.ID))
		addrs[raft.NodeID(p.ID)] = p.Addr
	}

	transport := raft.NewTCPTransport(cfg.Node.RaftAddr, addrs)
	transport.SetTimeout(cfg.Raft.RPCTimeout)

	var storage raft.Storage
	if cfg.Storage.DataDir != "" {
		fs, err := raft.NewFileStorage(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("failed to open raft storage: %w", err)
		}
		storage = fs
		logger.Info("raft state persisted", "dataDir", fs.Dir())
	} else {
		storage = raft.NewMemoryStorage()
		logger.Warn("no data directory configured, raft state is kept in memory")
	}

	store := kv.NewStore()
	n := &RaftNode{
		config:    cfg,
		logger:    logger,
		transport: transport,
		store:     store,
	}

	seed := time.Now().UnixNano() + int64(id)
	srv, err := raft.NewServer(raft.ServerConfig{
		ID:                id,
		Peers:             peers,
		PeerAddrs:         addrs,
		Transport:         transport,
		Storage:           storage,
		StateMachine:      store,
		ElectionTimeouts:  raft.NewRandomTimeouts(cfg.Raft.ElectionTimeoutMin, cfg.Raft.ElectionTimeoutMax, seed),
		HeartbeatInterval: cfg.Raft.HeartbeatInterval,
		TickInterval:      cfg.Raft.TickInterval,
		Logger:            logger,
		OnStateChange:     n.onStateChange,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create raft server: %w", err)
	}
	n.server = srv
	return n, nil
}

func (n *RaftNode) onStateChange(id raft.NodeID, term raft.Term, from, to raft.State) {
	n.logger.Info("role changed", "node", id, "term", term, "from", from.String(), "to", to.String())
}

// Start begins serving RPCs and ticking the node.
func (n *RaftNode) Start(ctx context.Context) error {
	if err := n.server.Start(ctx); err != nil {
		return err
	}
	n.logger.Info("raft node started",
		"node", n.server.ID(),
		"addr", n.transport.LocalAddr(),
		"clusterSize", n.config.ClusterSize())

	if n.statusInterval > 0 {
		n.wg.Add(1)
		go n.statusLoop(ctx)
	}
	return nil
}

// Stop shuts the node down and waits for background goroutines.
func (n *RaftNode) Stop() {
	n.server.Stop()
	n.wg.Wait()
	n.logger.Info("raft node stopped", "node", n.server.ID(), "applied", n.store.AppliedIndex())
}

func (n *RaftNode) statusLoop(ctx context.Context) {
	defer n.wg.Done()

	ticker := time.NewTicker(n.statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			st := n.server.Status()
			n.logger.Info("status",
				"state", st.State,
				"term", st.Term,
				"leader", st.LeaderID,
				"commitIndex", st.CommitIndex,
				"lastApplied", st.LastApplied,
				"lastLogIndex", st.LastLogIndex,
				"keys", n.store.Len())
		}
	}
}

// serveCmd handles the serve command.
func serveCmd(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	configFile := fs.String("config", "", "Path to configuration file")
	id := fs.Uint64("id", 0, "Node ID (overrides config)")
	addr := fs.String("addr", "", "Raft listen address (overrides config)")
	dataDir := fs.String("data-dir", "", "Data directory path (overrides config)")
	logLevel := fs.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	statusInterval := fs.Duration("status-interval", 5*time.Second, "How often to log node status")
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help || *helpLong {
		printServeUsage(os.Stdout)
		return 0
	}

	cfg := config.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
	}

	// Command-line overrides, then environment (highest priority)
	if *id != 0 {
		cfg.Node.ID = *id
	}
	if *addr != "" {
		cfg.Node.RaftAddr = *addr
	}
	if *dataDir != "" {
		cfg.Storage.DataDir = *dataDir
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if err := applyEnvOverrides(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to apply environment: %v\n", err)
		return 1
	}

	if !reportValidation(cfg) {
		return 1
	}

	logger := logging.New(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}).WithFields("node", cfg.Node.ID)

	node, err := NewRaftNode(cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create node: %v\n", err)
		return 1
	}
	node.statusInterval = *statusInterval

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := node.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start node: %v\n", err)
		return 1
	}

	<-ctx.Done()
	logger.Info("received signal, shutting down")
	node.Stop()
	return 0
}
