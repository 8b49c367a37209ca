package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/KilimcininKorOglu/miniraft/internal/config"
)

// configCmd handles the config command.
func configCmd(args []string) int {
	if len(args) == 0 {
		printConfigUsage(os.Stdout)
		return 0
	}

	if args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printConfigUsage(os.Stdout)
		return 0
	}

	switch args[0] {
	case "validate":
		return configValidateCmd(args[1:])
	case "init":
		return configInitCmd(args[1:])
	case "show":
		return configShowCmd(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config subcommand: %s\n", args[0])
		fmt.Fprintln(os.Stderr, "Run 'miniraft config help' for usage.")
		return 1
	}
}

// configValidateCmd handles the config validate subcommand.
func configValidateCmd(args []string) int {
	fs := flag.NewFlagSet("config validate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	configFile := fs.String("config", "", "Path to configuration file")
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help || *helpLong {
		fmt.Println("Validate configuration file")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  miniraft config validate -config FILE")
		return 0
	}

	if *configFile == "" {
		fmt.Fprintln(os.Stderr, "Error: -config is required")
		return 1
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	if !reportValidation(cfg) {
		return 1
	}

	fmt.Println("Configuration is valid")
	return 0
}

// reportValidation prints validation errors to stderr and reports whether
// the configuration is usable.
func reportValidation(cfg *config.Config) bool {
	errs := config.ValidateConfig(cfg)
	if len(errs) == 0 {
		return true
	}
	fmt.Fprintln(os.Stderr, "Configuration errors:")
	for _, e := range errs {
		fmt.Fprintf(os.Stderr, "  - %s\n", e)
	}
	return false
}

// configInitCmd handles the config init subcommand.
func configInitCmd(args []string) int {
	fs := flag.NewFlagSet("config init", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help || *helpLong {
		fmt.Println("Generate default configuration")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  miniraft config init")
		fmt.Println()
		fmt.Println("Outputs default configuration to stdout in YAML format.")
		return 0
	}

	fmt.Print(marshalConfigToYAML(config.DefaultConfig()))
	return 0
}

// configShowCmd handles the config show subcommand.
func configShowCmd(args []string) int {
	fs := flag.NewFlagSet("config show", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	configFile := fs.String("config", "", "Path to configuration file")
	format := fs.String("format", "yaml", "Output format (yaml, json)")
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help || *helpLong {
		fmt.Println("Show effective configuration")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  miniraft config show [options]")
		fmt.Println()
		fmt.Println("Options:")
		fmt.Println("  -config string")
		fmt.Println("        Path to configuration file")
		fmt.Println("  -format string")
		fmt.Println("        Output format: yaml, json (default \"yaml\")")
		return 0
	}

	cfg, err := loadConfig(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	switch strings.ToLower(*format) {
	case "json":
		data, err := json.MarshalIndent(cfg, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to marshal config: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
	default:
		fmt.Print(marshalConfigToYAML(cfg))
	}

	return 0
}

// loadConfig reads path, or starts from defaults when path is empty, and
// applies environment overrides.
func loadConfig(path string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if path != "" {
		var err error
		cfg, err = config.LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern MINIRAFT_<SECTION>_<KEY>.
func applyEnvOverrides(cfg *config.Config) error {
	if v := os.Getenv("MINIRAFT_NODE_ID"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return fmt.Errorf("MINIRAFT_NODE_ID: %w", config.ErrInvalidNumber)
		}
		cfg.Node.ID = id
	}
	if v := os.Getenv("MINIRAFT_RAFT_ADDR"); v != "" {
		cfg.Node.RaftAddr = v
	}

	durations := []struct {
		env string
		dst *time.Duration
	}{
		{"MINIRAFT_RAFT_ELECTION_TIMEOUT_MIN", &cfg.Raft.ElectionTimeoutMin},
		{"MINIRAFT_RAFT_ELECTION_TIMEOUT_MAX", &cfg.Raft.ElectionTimeoutMax},
		{"MINIRAFT_RAFT_HEARTBEAT_INTERVAL", &cfg.Raft.HeartbeatInterval},
		{"MINIRAFT_RAFT_TICK_INTERVAL", &cfg.Raft.TickInterval},
		{"MINIRAFT_RAFT_RPC_TIMEOUT", &cfg.Raft.RPCTimeout},
	}
	for _, d := range durations {
		v := os.Getenv(d.env)
		if v == "" {
			continue
		}
		dur, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %w", d.env, config.ErrInvalidDuration)
		}
		*d.dst = dur
	}

	if v := os.Getenv("MINIRAFT_STORAGE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}

	if v := os.Getenv("MINIRAFT_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("MINIRAFT_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("MINIRAFT_LOGGING_OUTPUT"); v != "" {
		cfg.Logging.Output = v
	}
	return nil
}

// marshalConfigToYAML converts a Config to the YAML subset the config
// parser reads back.
func marshalConfigToYAML(cfg *config.Config) string {
	var sb strings.Builder

	sb.WriteString("# miniraft node configuration\n")
	sb.WriteString("# Generated by: miniraft config init\n\n")

	sb.WriteString("node:\n")
	sb.WriteString(fmt.Sprintf("  id: %d\n", cfg.Node.ID))
	sb.WriteString(fmt.Sprintf("  raftAddr: %q\n", cfg.Node.RaftAddr))
	if len(cfg.Node.Peers) > 0 {
		sb.WriteString("  peers:\n")
		for _, p := range cfg.Node.Peers {
			sb.WriteString(fmt.Sprintf("    - id: %d\n", p.ID))
			sb.WriteString(fmt.Sprintf("      addr: %q\n", p.Addr))
		}
	}
	sb.WriteString("\n")

	sb.WriteString("raft:\n")
	sb.WriteString(fmt.Sprintf("  electionTimeoutMin: %s\n", formatDuration(cfg.Raft.ElectionTimeoutMin)))
	sb.WriteString(fmt.Sprintf("  electionTimeoutMax: %s\n", formatDuration(cfg.Raft.ElectionTimeoutMax)))
	sb.WriteString(fmt.Sprintf("  heartbeatInterval: %s\n", formatDuration(cfg.Raft.HeartbeatInterval)))
	sb.WriteString(fmt.Sprintf("  tickInterval: %s\n", formatDuration(cfg.Raft.TickInterval)))
	sb.WriteString(fmt.Sprintf("  rpcTimeout: %s\n", formatDuration(cfg.Raft.RPCTimeout)))
	sb.WriteString("\n")

	sb.WriteString("storage:\n")
	sb.WriteString(fmt.Sprintf("  dataDir: %q\n", cfg.Storage.DataDir))
	sb.WriteString("\n")

	sb.WriteString("logging:\n")
	sb.WriteString(fmt.Sprintf("  level: %q\n", cfg.Logging.Level))
	sb.WriteString(fmt.Sprintf("  format: %q\n", cfg.Logging.Format))
	sb.WriteString(fmt.Sprintf("  output: %q\n", cfg.Logging.Output))

	return sb.String()
}

// formatDuration formats a duration for YAML output.
func formatDuration(d time.Duration) string {
	if d == 0 {
		return "0s"
	}
	return d.String()
}
