package sim

import (
	"fmt"

	"github.com/KilimcininKorOglu/miniraft/internal/raft"
)

// CheckElectionSafety returns an error if two nodes ever led the same term.
func (c *Cluster) CheckElectionSafety() error {
	for _, term := range c.tracker.Terms() {
		if leaders := c.tracker.LeadersOf(term); len(leaders) > 1 {
			return fmt.Errorf("term %d has %d leaders: %v", term, len(leaders), leaders)
		}
	}
	return nil
}

// CheckLogMatching returns an error if two live logs hold an entry with the
// same index and term but differ in any earlier entry.
func (c *Cluster) CheckLogMatching() error {
	for i, a := range c.ids {
		for _, b := range c.ids[i+1:] {
			na, nb := c.Node(a), c.Node(b)
			if na == nil || nb == nil {
				continue
			}
			if err := matchLogs(na.Log(), nb.Log()); err != nil {
				return fmt.Errorf("nodes %d and %d: %w", a, b, err)
			}
		}
	}
	return nil
}

func matchLogs(a, b *raft.LogStore) error {
	last := a.LastIndex()
	if b.LastIndex() < last {
		last = b.LastIndex()
	}

	// The highest index where both agree on the term bounds the prefix
	// that must be identical.
	for i := last; i > 0; i-- {
		if a.TermAt(i) != b.TermAt(i) {
			continue
		}
		for j := raft.LogIndex(1); j <= i; j++ {
			ea, _ := a.Get(j)
			eb, _ := b.Get(j)
			if ea.Term != eb.Term || string(ea.Command) != string(eb.Command) {
				return fmt.Errorf("entry %d differs below matching entry %d", j, i)
			}
		}
		return nil
	}
	return nil
}

// CheckLeaderCompleteness returns an error if the current leader is missing
// an entry that some node has applied. A stale leader cut off from newer
// terms is not checked.
func (c *Cluster) CheckLeaderCompleteness() error {
	id := c.Leader()
	if id == raft.None {
		return nil
	}
	term := c.Node(id).CurrentTerm()
	for _, seen := range c.maxTerms {
		if seen > term {
			return nil
		}
	}
	log := c.Node(id).Log()
	for index, e := range c.applied {
		if !log.Contains(index, e.term) {
			return fmt.Errorf("leader %d lacks applied entry (%d, %d)", id, index, e.term)
		}
	}
	return nil
}

// Check runs every cluster-wide invariant check, including violations seen
// while stepping.
func (c *Cluster) Check() error {
	if c.violation != nil {
		return c.violation
	}
	if err := c.CheckElectionSafety(); err != nil {
		return err
	}
	if err := c.CheckLogMatching(); err != nil {
		return err
	}
	return c.CheckLeaderCompleteness()
}
