package config

import "time"

// DefaultConfig returns a Config with sensible default values.
func DefaultConfig() *Config {
	return &Config{
		Node: NodeConfig{
			ID:       0,
			RaftAddr: "127.0.0.1:7001",
			Peers:    nil,
		},
		Raft: RaftConfig{
			ElectionTimeoutMin: 150 * time.Millisecond,
			ElectionTimeoutMax: 300 * time.Millisecond,
			HeartbeatInterval:  50 * time.Millisecond,
			TickInterval:       10 * time.Millisecond,
			RPCTimeout:         time.Second,
		},
		Storage: StorageConfig{
			DataDir: "",
		},
		Logging: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}
