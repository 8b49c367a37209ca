package main

import (
	"fmt"
	"io"
)

// printUsage prints the main usage information to the given writer.
func printUsage(w io.Writer) {
	fmt.Fprint(w, `miniraft - Raft consensus node and cluster simulator

Usage:
  miniraft <command> [options]

Commands:
  serve       Run a raft node over TCP
  simulate    Run a simulated cluster on virtual time
  config      Configuration management
  version     Show version information

Use "miniraft <command> -h" for more information about a command.
`)
}

// printServeUsage prints the serve command usage.
func printServeUsage(w io.Writer) {
	fmt.Fprint(w, `Run a raft node over TCP

Usage:
  miniraft serve [options]

Options:
  -config string
        Path to configuration file
  -id uint
        Node ID (overrides config)
  -addr string
        Raft listen address (overrides config)
  -data-dir string
        Data directory path (overrides config, empty keeps state in memory)
  -log-level string
        Log level: debug, info, warn, error (overrides config)
  -status-interval duration
        How often to log node status, 0 disables (default 5s)
  -h, -help
        Show this help message

Environment Variables:
  MINIRAFT_NODE_ID           Override node ID
  MINIRAFT_RAFT_ADDR         Override raft listen address
  MINIRAFT_STORAGE_DATA_DIR  Override data directory path
  MINIRAFT_LOGGING_LEVEL     Override log level
`)
}

// printSimulateUsage prints the simulate command usage.
func printSimulateUsage(w io.Writer) {
	fmt.Fprint(w, `Run a simulated cluster on virtual time

Usage:
  miniraft simulate [options]

Options:
  -nodes int
        Cluster size (default 5)
  -seed int
        Random seed (default 1)
  -duration duration
        Simulated run time (default 10s)
  -commands int
        Number of key/value commands to propose (default 20)
  -drop float
        Probability of losing each message (default 0)
  -crash
        Crash the first leader halfway through and restart it later
  -format string
        Report format: text, json (default "text")
  -log-level string
        Log raft events at this level, empty disables
  -h, -help
        Show this help message

The command exits with status 1 if a safety check fails.
`)
}

// printConfigUsage prints the config command usage.
func printConfigUsage(w io.Writer) {
	fmt.Fprint(w, `Configuration management

Usage:
  miniraft config <subcommand> [options]

Subcommands:
  validate    Validate configuration file
  init        Print default configuration
  show        Show effective configuration
`)
}

// printVersionUsage prints the version command usage.
func printVersionUsage(w io.Writer) {
	fmt.Fprint(w, `Show version information

Usage:
  miniraft version [options]

Options:
  -short
        Show only version number
  -h, -help
        Show this help message
`)
}
