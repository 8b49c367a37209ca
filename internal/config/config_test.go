package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	t.Run("raft defaults", func(t *testing.T) {
		if config.Raft.ElectionTimeoutMin != 150*time.Millisecond {
			t.Errorf("expected election timeout min 150ms, got %v", config.Raft.ElectionTimeoutMin)
		}
		if config.Raft.ElectionTimeoutMax != 300*time.Millisecond {
			t.Errorf("expected election timeout max 300ms, got %v", config.Raft.ElectionTimeoutMax)
		}
		if config.Raft.HeartbeatInterval != 50*time.Millisecond {
			t.Errorf("expected heartbeat 50ms, got %v", config.Raft.HeartbeatInterval)
		}
		if config.Raft.TickInterval != 10*time.Millisecond {
			t.Errorf("expected tick 10ms, got %v", config.Raft.TickInterval)
		}
	})

	t.Run("logging defaults", func(t *testing.T) {
		if config.Logging.Level != "info" {
			t.Errorf("expected log level 'info', got %q", config.Logging.Level)
		}
		if config.Logging.Format != "text" {
			t.Errorf("expected log format 'text', got %q", config.Logging.Format)
		}
		if config.Logging.Output != "stdout" {
			t.Errorf("expected log output 'stdout', got %q", config.Logging.Output)
		}
	})

	t.Run("storage defaults", func(t *testing.T) {
		if config.Storage.DataDir != "" {
			t.Errorf("expected in-memory storage by default, got %q", config.Storage.DataDir)
		}
	})
}

const clusterYAML = `
# node 1 of 3
node:
  id: 1
  raftAddr: "127.0.0.1:7001"
  peers:
    - id: 2
      addr: "127.0.0.1:7002"
    - id: 3
      addr: 127.0.0.1:7003

raft:
  electionTimeoutMin: 200ms
  electionTimeoutMax: 400ms
  heartbeatInterval: 40ms
  tickInterval: 5ms
  rpcTimeout: 2s

storage:
  dataDir: /var/lib/miniraft/node1

logging:
  level: debug
  format: json
  output: stderr
`

func TestParseConfig(t *testing.T) {
	config, err := ParseConfig([]byte(clusterYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if config.Node.ID != 1 {
		t.Errorf("node.id: expected 1, got %d", config.Node.ID)
	}
	if config.Node.RaftAddr != "127.0.0.1:7001" {
		t.Errorf("node.raftAddr: expected '127.0.0.1:7001', got %q", config.Node.RaftAddr)
	}
	if len(config.Node.Peers) != 2 {
		t.Fatalf("node.peers: expected 2 peers, got %d", len(config.Node.Peers))
	}
	if config.Node.Peers[0] != (PeerConfig{ID: 2, Addr: "127.0.0.1:7002"}) {
		t.Errorf("node.peers[0] mismatch: %+v", config.Node.Peers[0])
	}
	if config.Node.Peers[1] != (PeerConfig{ID: 3, Addr: "127.0.0.1:7003"}) {
		t.Errorf("node.peers[1] mismatch: %+v", config.Node.Peers[1])
	}
	if config.ClusterSize() != 3 {
		t.Errorf("expected cluster size 3, got %d", config.ClusterSize())
	}

	if config.Raft.ElectionTimeoutMin != 200*time.Millisecond || config.Raft.ElectionTimeoutMax != 400*time.Millisecond {
		t.Errorf("election timeouts mismatch: %v..%v", config.Raft.ElectionTimeoutMin, config.Raft.ElectionTimeoutMax)
	}
	if config.Raft.HeartbeatInterval != 40*time.Millisecond {
		t.Errorf("raft.heartbeatInterval: expected 40ms, got %v", config.Raft.HeartbeatInterval)
	}
	if config.Raft.TickInterval != 5*time.Millisecond {
		t.Errorf("raft.tickInterval: expected 5ms, got %v", config.Raft.TickInterval)
	}
	if config.Raft.RPCTimeout != 2*time.Second {
		t.Errorf("raft.rpcTimeout: expected 2s, got %v", config.Raft.RPCTimeout)
	}
	if config.Storage.DataDir != "/var/lib/miniraft/node1" {
		t.Errorf("storage.dataDir mismatch: got %q", config.Storage.DataDir)
	}
	if config.Logging != (LogConfig{Level: "debug", Format: "json", Output: "stderr"}) {
		t.Errorf("logging mismatch: %+v", config.Logging)
	}

	if errs := ValidateConfig(config); len(errs) != 0 {
		t.Errorf("expected valid config, got %v", errs)
	}
}

func TestParseConfigKeepsDefaults(t *testing.T) {
	config, err := ParseConfig([]byte("node:\n  id: 4\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defaults := DefaultConfig()
	if config.Raft != defaults.Raft {
		t.Errorf("raft section should keep defaults, got %+v", config.Raft)
	}
	if config.Node.RaftAddr != defaults.Node.RaftAddr {
		t.Errorf("node.raftAddr should keep default, got %q", config.Node.RaftAddr)
	}
}

func TestPeerAddr(t *testing.T) {
	config, err := ParseConfig([]byte(clusterYAML))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr, ok := config.PeerAddr(3); !ok || addr != "127.0.0.1:7003" {
		t.Errorf("expected peer 3 at 127.0.0.1:7003, got %q, %v", addr, ok)
	}
	if _, ok := config.PeerAddr(9); ok {
		t.Error("peer 9 should not exist")
	}
}

func TestEnvironmentVariableSubstitution(t *testing.T) {
	t.Run("simple substitution", func(t *testing.T) {
		t.Setenv("TEST_MINIRAFT_ADDR", "10.0.0.1:9001")

		config, err := ParseConfig([]byte("node:\n  raftAddr: \"${TEST_MINIRAFT_ADDR}\"\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Node.RaftAddr != "10.0.0.1:9001" {
			t.Errorf("expected address '10.0.0.1:9001', got %q", config.Node.RaftAddr)
		}
	})

	t.Run("substitution with default value", func(t *testing.T) {
		os.Unsetenv("TEST_MINIRAFT_MISSING")

		config, err := ParseConfig([]byte("node:\n  id: ${TEST_MINIRAFT_MISSING:-7}\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Node.ID != 7 {
			t.Errorf("expected id 7, got %d", config.Node.ID)
		}
	})

	t.Run("substitution with default when var is set", func(t *testing.T) {
		t.Setenv("TEST_MINIRAFT_ID", "3")

		config, err := ParseConfig([]byte("node:\n  id: ${TEST_MINIRAFT_ID:-7}\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Node.ID != 3 {
			t.Errorf("expected id 3, got %d", config.Node.ID)
		}
	})

	t.Run("unset variable keeps default", func(t *testing.T) {
		os.Unsetenv("TEST_MINIRAFT_UNSET")

		config, err := ParseConfig([]byte("storage:\n  dataDir: \"${TEST_MINIRAFT_UNSET}\"\n"))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Storage.DataDir != "" {
			t.Errorf("expected empty dataDir, got %q", config.Storage.DataDir)
		}
	})
}

func TestLoadConfig(t *testing.T) {
	t.Run("load from file", func(t *testing.T) {
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configPath, []byte(clusterYAML), 0644); err != nil {
			t.Fatalf("failed to write config file: %v", err)
		}

		config, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if config.Node.ID != 1 || len(config.Node.Peers) != 2 {
			t.Errorf("loaded config mismatch: %+v", config.Node)
		}
	})

	t.Run("file not found", func(t *testing.T) {
		_, err := LoadConfig("/nonexistent/path/config.yaml")
		if err != ErrFileNotFound {
			t.Errorf("expected ErrFileNotFound, got %v", err)
		}
	})
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		input    string
		expected time.Duration
		hasError bool
	}{
		{"150ms", 150 * time.Millisecond, false},
		{"30s", 30 * time.Second, false},
		{"1m30s", 90 * time.Second, false},
		{"", 0, false},
		{"invalid", 0, true},
		{"5d", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result, err := parseDuration(tt.input)
			if tt.hasError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				return
			}
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if result != tt.expected {
				t.Errorf("expected %v, got %v", tt.expected, result)
			}
		})
	}
}

func TestInvalidYAML(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{"missing colon", "node\n  id: 1\n", ErrInvalidYAML},
		{"invalid node id", "node:\n  id: one\n", ErrInvalidNumber},
		{"negative node id", "node:\n  id: -1\n", ErrInvalidNumber},
		{"invalid peer id", "node:\n  peers:\n    - id: x\n      addr: a:1\n", ErrInvalidNumber},
		{"invalid duration", "raft:\n  heartbeatInterval: soon\n", ErrInvalidDuration},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseConfig([]byte(tt.yaml))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateConfig(t *testing.T) {
	valid := func() *Config {
		c := DefaultConfig()
		c.Node.ID = 1
		c.Node.RaftAddr = "127.0.0.1:7001"
		c.Node.Peers = []PeerConfig{{ID: 2, Addr: "127.0.0.1:7002"}, {ID: 3, Addr: "127.0.0.1:7003"}}
		return c
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		field  string
	}{
		{"valid", func(c *Config) {}, ""},
		{"single node", func(c *Config) { c.Node.Peers = nil }, ""},
		{"zero id", func(c *Config) { c.Node.ID = 0 }, "node.id"},
		{"missing raft addr", func(c *Config) { c.Node.RaftAddr = "" }, "node.raftAddr"},
		{"bad raft addr", func(c *Config) { c.Node.RaftAddr = "localhost" }, "node.raftAddr"},
		{"peer zero id", func(c *Config) { c.Node.Peers[0].ID = 0 }, "node.peers[0].id"},
		{"peer is self", func(c *Config) { c.Node.Peers[1].ID = 1 }, "node.peers[1].id"},
		{"duplicate peer id", func(c *Config) { c.Node.Peers[1].ID = 2 }, "node.peers[1].id"},
		{"missing peer addr", func(c *Config) { c.Node.Peers[0].Addr = "" }, "node.peers[0].addr"},
		{"duplicate peer addr", func(c *Config) { c.Node.Peers[1].Addr = "127.0.0.1:7002" }, "node.peers[1].addr"},
		{"peer uses own addr", func(c *Config) { c.Node.Peers[0].Addr = "127.0.0.1:7001" }, "node.peers[0].addr"},
		{"zero heartbeat", func(c *Config) { c.Raft.HeartbeatInterval = 0 }, "raft.heartbeatInterval"},
		{"inverted election range", func(c *Config) { c.Raft.ElectionTimeoutMax = 100 * time.Millisecond }, "raft.electionTimeoutMax"},
		{"heartbeat too slow", func(c *Config) { c.Raft.HeartbeatInterval = 150 * time.Millisecond }, "raft.heartbeatInterval"},
		{"tick too slow", func(c *Config) { c.Raft.TickInterval = 50 * time.Millisecond }, "raft.tickInterval"},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"relative log file", func(c *Config) { c.Logging.Output = "raft.log" }, "logging.output"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			errs := ValidateConfig(c)

			if tt.field == "" {
				if len(errs) != 0 {
					t.Errorf("expected no errors, got %v", errs)
				}
				return
			}
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %d: %v", len(errs), errs)
			}
			var ve ValidationError
			if !errors.As(errs[0], &ve) {
				t.Fatalf("expected ValidationError, got %T", errs[0])
			}
			if ve.Field != tt.field {
				t.Errorf("expected field %q, got %q (%s)", tt.field, ve.Field, ve.Message)
			}
		})
	}
}

func TestValidationErrorString(t *testing.T) {
	err := ValidationError{Field: "node.id", Message: "must be greater than zero"}
	if !strings.HasPrefix(err.Error(), "node.id: ") {
		t.Errorf("unexpected error string %q", err.Error())
	}
}

func TestSubstituteEnvVars(t *testing.T) {
	t.Setenv("TEST_VAR", "value")

	tests := []struct {
		input    string
		expected string
	}{
		{"key: ${TEST_VAR}", "key: value"},
		{"key: ${TEST_MINIRAFT_NOPE:-default}", "key: default"},
		{"key: value", "key: value"},
	}
	for _, tt := range tests {
		if result := substituteEnvVars([]byte(tt.input)); string(result) != tt.expected {
			t.Errorf("expected %q, got %q", tt.expected, string(result))
		}
	}
}
