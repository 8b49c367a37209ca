// Package config provides configuration parsing and validation for miniraft.
package config

import "time"

// Config holds the complete node configuration.
type Config struct {
	Node    NodeConfig    `yaml:"node"`
	Raft    RaftConfig    `yaml:"raft"`
	Storage StorageConfig `yaml:"storage"`
	Logging LogConfig     `yaml:"logging"`
}

// NodeConfig identifies this node and its peers.
type NodeConfig struct {
	ID       uint64       `yaml:"id"`
	RaftAddr string       `yaml:"raftAddr"`
	Peers    []PeerConfig `yaml:"peers"`
}

// PeerConfig is one other member of the cluster.
type PeerConfig struct {
	ID   uint64 `yaml:"id"`
	Addr string `yaml:"addr"`
}

// RaftConfig holds protocol timing.
type RaftConfig struct {
	ElectionTimeoutMin time.Duration `yaml:"electionTimeoutMin"`
	ElectionTimeoutMax time.Duration `yaml:"electionTimeoutMax"`
	HeartbeatInterval  time.Duration `yaml:"heartbeatInterval"`
	TickInterval       time.Duration `yaml:"tickInterval"`
	RPCTimeout         time.Duration `yaml:"rpcTimeout"`
}

// StorageConfig holds persistence configuration. An empty DataDir keeps
// all state in memory.
type StorageConfig struct {
	DataDir string `yaml:"dataDir"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// ClusterSize returns the number of voting members including this node.
func (c *Config) ClusterSize() int {
	return len(c.Node.Peers) + 1
}

// PeerAddr returns the address of the peer with the given ID.
func (c *Config) PeerAddr(id uint64) (string, bool) {
	for _, p := range c.Node.Peers {
		if p.ID == id {
			return p.Addr, true
		}
	}
	return "", false
}
