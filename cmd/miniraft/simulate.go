package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/KilimcininKorOglu/miniraft/internal/kv"
	"github.com/KilimcininKorOglu/miniraft/internal/logging"
	"github.com/KilimcininKorOglu/miniraft/internal/raft"
	"github.com/KilimcininKorOglu/miniraft/internal/sim"
)

// simOptions controls a simulation run.
type simOptions struct {
	Nodes    int
	Seed     int64
	Duration time.Duration
	Commands int
	DropRate float64
	Crash    bool
	Logger   raft.Logger
}

// nodeReport is one node's state at the end of a run.
type nodeReport struct {
	ID          raft.NodeID   `json:"id"`
	Alive       bool          `json:"alive"`
	State       string        `json:"state,omitempty"`
	Term        raft.Term     `json:"term,omitempty"`
	CommitIndex raft.LogIndex `json:"commitIndex,omitempty"`
	LastApplied raft.LogIndex `json:"lastApplied,omitempty"`
	Keys        int           `json:"keys,omitempty"`
}

// simReport summarizes a simulation run.
type simReport struct {
	Seed          int64         `json:"seed"`
	Steps         int           `json:"steps"`
	SimulatedTime string        `json:"simulatedTime"`
	Leader        raft.NodeID   `json:"leader"`
	Term          raft.Term     `json:"term"`
	Proposed      int           `json:"proposed"`
	Accepted      int           `json:"accepted"`
	Stats         sim.Stats     `json:"stats"`
	Elections     int           `json:"elections"`
	ElectionMin   time.Duration `json:"electionMinNs"`
	ElectionMax   time.Duration `json:"electionMaxNs"`
	ElectionAvg   time.Duration `json:"electionAvgNs"`
	Nodes         []nodeReport  `json:"nodes"`
	Violation     string        `json:"violation,omitempty"`
}

// runSimulation drives a simulated cluster for opts.Duration of virtual
// time, proposing opts.Commands puts spread evenly over the run. Safety is
// checked after every step and the run stops at the first violation.
func runSimulation(opts simOptions) *simReport {
	c := sim.New(sim.Config{
		Size:     opts.Nodes,
		Seed:     opts.Seed,
		DropRate: opts.DropRate,
		Logger:   opts.Logger,
	})

	steps := int(opts.Duration / sim.DefaultStepInterval)
	if steps < 1 {
		steps = 1
	}
	every := 1
	if opts.Commands > 0 && steps/opts.Commands > 1 {
		every = steps / opts.Commands
	}

	report := &simReport{Seed: opts.Seed}
	var crashed raft.NodeID

	for step := 0; step < steps; step++ {
		if report.Proposed < opts.Commands && step%every == 0 {
			report.Proposed++
		}
		for report.Accepted < report.Proposed {
			i := report.Accepted
			if _, _, err := c.Propose(kv.Put(fmt.Sprintf("key%d", i), fmt.Sprintf("value%d", i))); err != nil {
				break
			}
			report.Accepted++
		}

		if opts.Crash {
			switch {
			case step == steps/3 && crashed == raft.None:
				if id := c.Leader(); id != raft.None {
					c.Crash(id)
					crashed = id
				}
			case step == 2*steps/3 && crashed != raft.None:
				c.Restart(crashed)
			}
		}

		c.Step(sim.DefaultStepInterval)
		report.Steps++

		if err := c.Check(); err != nil {
			report.Violation = err.Error()
			break
		}
	}

	report.SimulatedTime = (time.Duration(report.Steps) * sim.DefaultStepInterval).String()
	report.Stats = c.Stats()
	if id := c.Leader(); id != raft.None {
		report.Leader = id
		report.Term = c.Node(id).CurrentTerm()
	}

	samples := c.Tracker().Samples()
	report.Elections = len(samples)
	if len(samples) > 0 {
		var total time.Duration
		report.ElectionMin = samples[0]
		for _, s := range samples {
			total += s
			if s < report.ElectionMin {
				report.ElectionMin = s
			}
			if s > report.ElectionMax {
				report.ElectionMax = s
			}
		}
		report.ElectionAvg = total / time.Duration(len(samples))
	}

	for _, id := range c.IDs() {
		nr := nodeReport{ID: id, Alive: c.Alive(id)}
		if n := c.Node(id); n != nil {
			nr.State = n.State().String()
			nr.Term = n.CurrentTerm()
			nr.CommitIndex = n.CommitIndex()
			nr.LastApplied = n.LastApplied()
			nr.Keys = c.Store(id).Len()
		}
		report.Nodes = append(report.Nodes, nr)
	}

	return report
}

// validReportFormat reports whether writeReport understands format.
func validReportFormat(format string) bool {
	switch strings.ToLower(format) {
	case "text", "json":
		return true
	default:
		return false
	}
}

// writeReport prints r as text or JSON.
func writeReport(w io.Writer, r *simReport, format string) error {
	if strings.ToLower(format) == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(w, "Seed:        %d\n", r.Seed)
	fmt.Fprintf(w, "Simulated:   %s (%d steps)\n", r.SimulatedTime, r.Steps)
	if r.Leader != raft.None {
		fmt.Fprintf(w, "Leader:      node %d (term %d)\n", r.Leader, r.Term)
	} else {
		fmt.Fprintln(w, "Leader:      none")
	}
	fmt.Fprintf(w, "Commands:    %d proposed, %d accepted\n", r.Proposed, r.Accepted)
	fmt.Fprintf(w, "Messages:    %d delivered, %d dropped, %d partitioned\n",
		r.Stats.Delivered, r.Stats.Dropped, r.Stats.Partitioned)
	if r.Elections > 0 {
		fmt.Fprintf(w, "Elections:   %d (min %s, avg %s, max %s)\n",
			r.Elections, r.ElectionMin, r.ElectionAvg, r.ElectionMax)
	} else {
		fmt.Fprintln(w, "Elections:   0")
	}
	fmt.Fprintln(w)

	fmt.Fprintf(w, "%-6s %-10s %-6s %-8s %-8s %s\n", "NODE", "STATE", "TERM", "COMMIT", "APPLIED", "KEYS")
	for _, n := range r.Nodes {
		if !n.Alive {
			fmt.Fprintf(w, "%-6d %-10s\n", n.ID, "crashed")
			continue
		}
		fmt.Fprintf(w, "%-6d %-10s %-6d %-8d %-8d %d\n", n.ID, n.State, n.Term, n.CommitIndex, n.LastApplied, n.Keys)
	}

	fmt.Fprintln(w)
	if r.Violation != "" {
		fmt.Fprintf(w, "Safety:      VIOLATED: %s\n", r.Violation)
	} else {
		fmt.Fprintln(w, "Safety:      ok")
	}
	return nil
}

// simulateCmd handles the simulate command.
func simulateCmd(args []string) int {
	fs := flag.NewFlagSet("simulate", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	nodes := fs.Int("nodes", 5, "Cluster size")
	seed := fs.Int64("seed", 1, "Random seed")
	duration := fs.Duration("duration", 10*time.Second, "Simulated run time")
	commands := fs.Int("commands", 20, "Number of key/value commands to propose")
	dropRate := fs.Float64("drop", 0, "Probability of losing each message")
	crash := fs.Bool("crash", false, "Crash the first leader and restart it later")
	format := fs.String("format", "text", "Report format (text, json)")
	logLevel := fs.String("log-level", "", "Log raft events at this level")
	help := fs.Bool("h", false, "Show help message")
	helpLong := fs.Bool("help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *help || *helpLong {
		printSimulateUsage(os.Stdout)
		return 0
	}

	switch {
	case *nodes < 1:
		fmt.Fprintln(os.Stderr, "Error: -nodes must be at least 1")
		return 1
	case *duration <= 0:
		fmt.Fprintln(os.Stderr, "Error: -duration must be positive")
		return 1
	case *commands < 0:
		fmt.Fprintln(os.Stderr, "Error: -commands must not be negative")
		return 1
	case *dropRate < 0 || *dropRate >= 1:
		fmt.Fprintln(os.Stderr, "Error: -drop must be in [0, 1)")
		return 1
	case !validReportFormat(*format):
		fmt.Fprintf(os.Stderr, "Error: unknown format %q\n", *format)
		return 1
	}

	opts := simOptions{
		Nodes:    *nodes,
		Seed:     *seed,
		Duration: *duration,
		Commands: *commands,
		DropRate: *dropRate,
		Crash:    *crash,
	}
	if *logLevel != "" {
		if !logging.ValidLevel(*logLevel) {
			fmt.Fprintf(os.Stderr, "Error: unknown log level %q\n", *logLevel)
			return 1
		}
		opts.Logger = logging.NewWithWriter(logging.Config{Level: *logLevel, Format: "text"}, os.Stderr)
	}

	report := runSimulation(opts)
	if err := writeReport(os.Stdout, report, *format); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write report: %v\n", err)
		return 1
	}
	if report.Violation != "" {
		return 1
	}
	return 0
}
