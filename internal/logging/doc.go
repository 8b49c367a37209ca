// Package logging provides structured logging for miniraft.
//
// # Creating a Logger
//
//	logger := logging.New(logging.Config{
//	    Level:  "info",
//	    Format: "json",
//	    Output: "/var/log/miniraft/node1.log",
//	})
//
// Or use defaults (info level, text format, stdout):
//
//	logger := logging.NewDefault()
//
// For tests, logging.NewNop discards everything.
//
// # Structured Logging
//
// Messages take alternating key-value pairs. Error values are logged by
// their message:
//
//	logger.Info("became leader", "node", 1, "term", 4, "votes", 2)
//
// Text output lists fields in key order:
//
//	2026-02-18T10:30:00.123Z [info] became leader node=1 term=4 votes=2
//
// JSON output carries the same fields:
//
//	{"level":"info","msg":"became leader","node":1,"term":4,"ts":"2026-02-18T10:30:00.123Z","votes":2}
//
// # Contextual Fields
//
// WithFields derives a logger that adds fields to every entry:
//
//	nodeLogger := logger.WithFields("node", id, "component", "raft")
//
// Every Logger satisfies raft.Logger and can be handed to the raft package
// directly.
package logging
