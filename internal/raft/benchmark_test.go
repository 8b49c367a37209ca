package raft

import (
	"testing"
)

// BenchmarkLogStoreAppend benchmarks appending single entries.
func BenchmarkLogStoreAppend(b *testing.B) {
	log := NewLogStore()
	cmd := []byte("put key value")
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = log.Append(&LogEntry{Term: 1, Index: LogIndex(i + 1), Command: cmd})
	}
}

// BenchmarkAppendEntriesEncode benchmarks encoding a 64-entry batch.
func BenchmarkAppendEntriesEncode(b *testing.B) {
	req := &AppendEntriesRequest{Term: 3, LeaderID: 1, PrevLogIndex: 100, PrevLogTerm: 2, LeaderCommit: 90}
	for i := 0; i < 64; i++ {
		req.Entries = append(req.Entries, &LogEntry{Term: 3, Index: LogIndex(101 + i), Command: make([]byte, 128)})
	}
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_ = req.Serialize()
	}
}

// BenchmarkAppendEntriesDecode benchmarks decoding a 64-entry batch.
func BenchmarkAppendEntriesDecode(b *testing.B) {
	req := &AppendEntriesRequest{Term: 3, LeaderID: 1, PrevLogIndex: 100, PrevLogTerm: 2, LeaderCommit: 90}
	for i := 0; i < 64; i++ {
		req.Entries = append(req.Entries, &LogEntry{Term: 3, Index: LogIndex(101 + i), Command: make([]byte, 128)})
	}
	data := req.Serialize()
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		_, _ = DeserializeAppendEntriesRequest(data)
	}
}

// BenchmarkHandleAppendEntries benchmarks a follower accepting one entry
// per request.
func BenchmarkHandleAppendEntries(b *testing.B) {
	node, err := NewNode(2, []NodeID{1, 2, 3})
	if err != nil {
		b.Fatal(err)
	}
	cmd := []byte("put key value")
	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		prev := LogIndex(i)
		var prevTerm Term
		if prev > 0 {
			prevTerm = 1
		}
		_ = node.HandleAppendEntries(&AppendEntriesRequest{
			Term:         1,
			LeaderID:     1,
			PrevLogIndex: prev,
			PrevLogTerm:  prevTerm,
			Entries:      []*LogEntry{{Term: 1, Index: prev + 1, Command: cmd}},
			LeaderCommit: prev,
		})
	}
}
