package raft

import (
	"encoding/binary"
)

// LogEntry represents a single entry in the Raft log.
type LogEntry struct {
	Term    Term     // Term when entry was created
	Index   LogIndex // Log index (1-based)
	Command []byte   // Opaque command payload
}

// Clone returns a deep copy of the entry.
func (e *LogEntry) Clone() *LogEntry {
	c := &LogEntry{Term: e.Term, Index: e.Index}
	if e.Command != nil {
		c.Command = append([]byte(nil), e.Command...)
	}
	return c
}

// Serialize encodes the log entry to bytes.
// Format: [Index:8][Term:8][CommandLen:4][Command:N]
func (e *LogEntry) Serialize() []byte {
	buf := make([]byte, 20+len(e.Command))

	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.Index))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.Term))
	binary.LittleEndian.PutUint32(buf[16:20], uint32(len(e.Command)))
	copy(buf[20:], e.Command)

	return buf
}

// DeserializeLogEntry decodes a log entry from bytes.
func DeserializeLogEntry(data []byte) (*LogEntry, error) {
	if len(data) < 20 {
		return nil, ErrLogCorrupted
	}

	cmdLen := binary.LittleEndian.Uint32(data[16:20])
	if uint64(len(data)) < 20+uint64(cmdLen) {
		return nil, ErrLogCorrupted
	}

	entry := &LogEntry{
		Index: LogIndex(binary.LittleEndian.Uint64(data[0:8])),
		Term:  Term(binary.LittleEndian.Uint64(data[8:16])),
	}
	if cmdLen > 0 {
		entry.Command = append([]byte(nil), data[20:20+cmdLen]...)
	}
	return entry, nil
}

// LogStore is the ordered, append-only sequence of log entries.
// The entry at position k always has index k+1.
type LogStore struct {
	entries []*LogEntry
	version uint64
}

// NewLogStore creates an empty log.
func NewLogStore() *LogStore {
	return &LogStore{}
}

// Append adds entries to the end of the log. Each entry must carry the next
// index and a term no lower than its predecessor's.
func (l *LogStore) Append(entries ...*LogEntry) error {
	for _, e := range entries {
		if e.Index != l.LastIndex().Next() {
			return ErrLogIndexOutOfRange
		}
		if e.Term < l.LastTerm() {
			return ErrTermRegression
		}
		l.entries = append(l.entries, e)
		l.version++
	}
	return nil
}

// Get returns the entry at the given index.
func (l *LogStore) Get(index LogIndex) (*LogEntry, error) {
	if index == 0 || uint64(index) > uint64(len(l.entries)) {
		return nil, ErrLogIndexOutOfRange
	}
	return l.entries[index-1], nil
}

// TermAt returns the term of the entry at index, or zero if there is none.
func (l *LogStore) TermAt(index LogIndex) Term {
	e, err := l.Get(index)
	if err != nil {
		return 0
	}
	return e.Term
}

// Contains reports whether the log has an entry at index with the given term.
// Index zero always matches.
func (l *LogStore) Contains(index LogIndex, term Term) bool {
	if index == 0 {
		return true
	}
	e, err := l.Get(index)
	return err == nil && e.Term == term
}

// LastIndex returns the index of the last entry, or zero when empty.
func (l *LogStore) LastIndex() LogIndex {
	return LogIndex(len(l.entries))
}

// LastTerm returns the term of the last entry, or zero when empty.
func (l *LogStore) LastTerm() Term {
	if len(l.entries) == 0 {
		return 0
	}
	return l.entries[len(l.entries)-1].Term
}

// EntriesFrom returns copies of every entry with index >= from.
func (l *LogStore) EntriesFrom(from LogIndex) []*LogEntry {
	return l.Entries(from, l.LastIndex().Next())
}

// Entries returns copies of the entries in [from, to).
func (l *LogStore) Entries(from, to LogIndex) []*LogEntry {
	if from == 0 {
		from = 1
	}
	if to > l.LastIndex().Next() {
		to = l.LastIndex().Next()
	}
	if from >= to {
		return nil
	}
	out := make([]*LogEntry, 0, to-from)
	for _, e := range l.entries[from-1 : to-1] {
		out = append(out, e.Clone())
	}
	return out
}

// TruncateFrom removes every entry with index >= index.
func (l *LogStore) TruncateFrom(index LogIndex) {
	if index == 0 {
		index = 1
	}
	if uint64(index) <= uint64(len(l.entries)) {
		for i := index - 1; i < LogIndex(len(l.entries)); i++ {
			l.entries[i] = nil
		}
		l.entries = l.entries[:index-1]
		l.version++
	}
}

// Len returns the number of entries in the log.
func (l *LogStore) Len() int {
	return len(l.entries)
}

// Version changes every time the log is appended to or truncated.
func (l *LogStore) Version() uint64 {
	return l.version
}
