package raft

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// HardState is the state that must be durable before a node answers an RPC.
type HardState struct {
	CurrentTerm Term
	VotedFor    NodeID
}

// Storage persists a node's hard state and log.
type Storage interface {
	LoadHardState() (HardState, error)
	SaveHardState(hs HardState) error
	LoadLog() ([]*LogEntry, error)
	SaveLog(entries []*LogEntry) error
}

// MemoryStorage keeps state in memory. It survives a Runner being rebuilt,
// which is how the simulator models a crash and restart.
type MemoryStorage struct {
	mu      sync.RWMutex
	hs      HardState
	entries []*LogEntry
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{}
}

// LoadHardState returns the saved hard state.
func (m *MemoryStorage) LoadHardState() (HardState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.hs, nil
}

// SaveHardState stores the hard state.
func (m *MemoryStorage) SaveHardState(hs HardState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hs = hs
	return nil
}

// LoadLog returns a copy of the saved log.
func (m *MemoryStorage) LoadLog() ([]*LogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return cloneEntries(m.entries), nil
}

// SaveLog replaces the saved log with a copy of entries.
func (m *MemoryStorage) SaveLog(entries []*LogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = cloneEntries(entries)
	return nil
}

func cloneEntries(entries []*LogEntry) []*LogEntry {
	if len(entries) == 0 {
		return nil
	}
	out := make([]*LogEntry, len(entries))
	for i, e := range entries {
		out[i] = e.Clone()
	}
	return out
}

// File names used by FileStorage.
const (
	hardStateFile = "term.dat"
	logFile       = "log.dat"
)

// FileStorage persists state as two files in a data directory:
// term.dat holds [Term:8][VotedFor:8] and log.dat holds a sequence of
// [Length:4][Entry] records. Both are replaced atomically.
type FileStorage struct {
	dir string
	mu  sync.Mutex
}

// NewFileStorage creates a file storage rooted at dir, creating it if needed.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("raft: create data dir: %w", err)
	}
	return &FileStorage{dir: dir}, nil
}

// Dir returns the data directory.
func (f *FileStorage) Dir() string {
	return f.dir
}

// LoadHardState reads term.dat. A missing file yields the zero state.
func (f *FileStorage) LoadHardState() (HardState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(f.dir, hardStateFile))
	if err != nil {
		if os.IsNotExist(err) {
			return HardState{}, nil
		}
		return HardState{}, err
	}
	if len(data) < 16 {
		return HardState{}, ErrStateCorrupted
	}
	return HardState{
		CurrentTerm: Term(binary.LittleEndian.Uint64(data[0:8])),
		VotedFor:    NodeID(binary.LittleEndian.Uint64(data[8:16])),
	}, nil
}

// SaveHardState writes term.dat.
func (f *FileStorage) SaveHardState(hs HardState) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data := make([]byte, 16)
	binary.LittleEndian.PutUint64(data[0:8], uint64(hs.CurrentTerm))
	binary.LittleEndian.PutUint64(data[8:16], uint64(hs.VotedFor))
	return writeFileAtomic(filepath.Join(f.dir, hardStateFile), data)
}

// LoadLog reads log.dat. A missing file yields an empty log.
func (f *FileStorage) LoadLog() ([]*LogEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(filepath.Join(f.dir, logFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []*LogEntry
	reader := bytes.NewReader(data)
	for reader.Len() > 0 {
		var entryLen uint32
		if err := binary.Read(reader, binary.LittleEndian, &entryLen); err != nil {
			return nil, ErrLogCorrupted
		}
		if int64(entryLen) > int64(reader.Len()) {
			return nil, ErrLogCorrupted
		}
		entryData := make([]byte, entryLen)
		if _, err := io.ReadFull(reader, entryData); err != nil {
			return nil, ErrLogCorrupted
		}
		entry, err := DeserializeLogEntry(entryData)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// SaveLog rewrites log.dat with entries.
func (f *FileStorage) SaveLog(entries []*LogEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	var buf bytes.Buffer
	var lenBuf [4]byte
	for _, e := range entries {
		data := e.Serialize()
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(data)))
		buf.Write(lenBuf[:])
		buf.Write(data)
	}
	return writeFileAtomic(filepath.Join(f.dir, logFile), buf.Bytes())
}

// writeFileAtomic writes data to a temporary file, syncs it and renames it
// over path.
func writeFileAtomic(path string, data []byte) error {
	tmpPath := path + ".tmp"

	file, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Sync(); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return os.Rename(tmpPath, path)
}

// RestoreNode loads hard state and log from storage and creates a node
// from them.
func RestoreNode(id NodeID, peers []NodeID, storage Storage, opts ...NodeOption) (*Node, error) {
	hs, err := storage.LoadHardState()
	if err != nil {
		return nil, fmt.Errorf("raft: load hard state: %w", err)
	}
	entries, err := storage.LoadLog()
	if err != nil {
		return nil, fmt.Errorf("raft: load log: %w", err)
	}
	opts = append([]NodeOption{WithHardState(hs), WithEntries(entries)}, opts...)
	return NewNode(id, peers, opts...)
}
