package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/KilimcininKorOglu/miniraft/internal/logging"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateConfig validates the configuration and returns a list of validation errors.
// An empty slice indicates the configuration is valid.
func ValidateConfig(config *Config) []error {
	var errs []error

	errs = append(errs, validateNodeConfig(&config.Node)...)
	errs = append(errs, validateRaftConfig(&config.Raft)...)
	errs = append(errs, validateLogConfig(&config.Logging)...)

	return errs
}

func validateNodeConfig(config *NodeConfig) []error {
	var errs []error

	if config.ID == 0 {
		errs = append(errs, ValidationError{
			Field:   "node.id",
			Message: "must be greater than zero",
		})
	}

	if config.RaftAddr == "" {
		errs = append(errs, ValidationError{
			Field:   "node.raftAddr",
			Message: "raft address is required",
		})
	} else if err := validateAddress(config.RaftAddr); err != nil {
		errs = append(errs, ValidationError{
			Field:   "node.raftAddr",
			Message: err.Error(),
		})
	}

	ids := map[uint64]bool{config.ID: true}
	addrs := map[string]bool{config.RaftAddr: true}
	for i, peer := range config.Peers {
		field := fmt.Sprintf("node.peers[%d]", i)

		switch {
		case peer.ID == 0:
			errs = append(errs, ValidationError{Field: field + ".id", Message: "must be greater than zero"})
		case peer.ID == config.ID:
			errs = append(errs, ValidationError{Field: field + ".id", Message: "must differ from node.id"})
		case ids[peer.ID]:
			errs = append(errs, ValidationError{Field: field + ".id", Message: fmt.Sprintf("duplicate peer id %d", peer.ID)})
		}
		ids[peer.ID] = true

		if peer.Addr == "" {
			errs = append(errs, ValidationError{Field: field + ".addr", Message: "peer address is required"})
			continue
		}
		if err := validateAddress(peer.Addr); err != nil {
			errs = append(errs, ValidationError{Field: field + ".addr", Message: err.Error()})
		} else if addrs[peer.Addr] {
			errs = append(errs, ValidationError{Field: field + ".addr", Message: fmt.Sprintf("duplicate address %s", peer.Addr)})
		}
		addrs[peer.Addr] = true
	}

	return errs
}

func validateRaftConfig(config *RaftConfig) []error {
	var errs []error

	positive := []struct {
		field string
		value time.Duration
	}{
		{"raft.electionTimeoutMin", config.ElectionTimeoutMin},
		{"raft.electionTimeoutMax", config.ElectionTimeoutMax},
		{"raft.heartbeatInterval", config.HeartbeatInterval},
		{"raft.tickInterval", config.TickInterval},
		{"raft.rpcTimeout", config.RPCTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, ValidationError{Field: p.field, Message: "must be positive"})
		}
	}
	if len(errs) > 0 {
		return errs
	}

	if config.ElectionTimeoutMax < config.ElectionTimeoutMin {
		errs = append(errs, ValidationError{
			Field:   "raft.electionTimeoutMax",
			Message: "must not be less than electionTimeoutMin",
		})
	}

	// Followers must hear at least one heartbeat per election timeout.
	if config.HeartbeatInterval >= config.ElectionTimeoutMin {
		errs = append(errs, ValidationError{
			Field:   "raft.heartbeatInterval",
			Message: "must be less than electionTimeoutMin",
		})
	}

	if config.TickInterval >= config.HeartbeatInterval {
		errs = append(errs, ValidationError{
			Field:   "raft.tickInterval",
			Message: "must be less than heartbeatInterval",
		})
	}

	return errs
}

func validateLogConfig(config *LogConfig) []error {
	var errs []error

	if config.Level != "" && !logging.ValidLevel(config.Level) {
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: "must be debug, info, warn, or error",
		})
	}

	if config.Format != "" && !logging.ValidFormat(config.Format) {
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: "must be text or json",
		})
	}

	if config.Output != "" && config.Output != "stdout" && config.Output != "stderr" {
		dir := filepath.Dir(config.Output)
		if !filepath.IsAbs(config.Output) {
			errs = append(errs, ValidationError{
				Field:   "logging.output",
				Message: "must be stdout, stderr, or an absolute file path",
			})
		} else if _, err := os.Stat(dir); os.IsNotExist(err) {
			errs = append(errs, ValidationError{
				Field:   "logging.output",
				Message: fmt.Sprintf("directory %s does not exist", dir),
			})
		}
	}

	return errs
}

// validateAddress validates a network address in host:port format.
func validateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid address format: %v", err)
	}
	if port == "" {
		return fmt.Errorf("port is required")
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return fmt.Errorf("invalid port %q", port)
	}
	return nil
}
