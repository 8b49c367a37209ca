package raft

import (
	"bytes"
	"encoding/binary"
	"io"
)

// MessageType identifies an RPC message on the wire.
type MessageType uint8

// RPC message types.
const (
	MsgRequestVote MessageType = iota
	MsgRequestVoteResponse
	MsgAppendEntries
	MsgAppendEntriesResponse
)

// String returns the string representation of a message type.
func (t MessageType) String() string {
	switch t {
	case MsgRequestVote:
		return "RequestVote"
	case MsgRequestVoteResponse:
		return "RequestVoteResponse"
	case MsgAppendEntries:
		return "AppendEntries"
	case MsgAppendEntriesResponse:
		return "AppendEntriesResponse"
	default:
		return "Unknown"
	}
}

// Message is implemented by the four RPC payloads.
type Message interface {
	Type() MessageType
	MessageTerm() Term
	Serialize() []byte
}

// RequestVoteRequest is sent by candidates to gather votes.
type RequestVoteRequest struct {
	Term         Term     // Candidate's term
	CandidateID  NodeID   // Candidate requesting vote
	LastLogIndex LogIndex // Index of candidate's last log entry
	LastLogTerm  Term     // Term of candidate's last log entry
}

// Type implements Message.
func (r *RequestVoteRequest) Type() MessageType { return MsgRequestVote }

// MessageTerm implements Message.
func (r *RequestVoteRequest) MessageTerm() Term { return r.Term }

// Serialize encodes RequestVoteRequest to bytes.
func (r *RequestVoteRequest) Serialize() []byte {
	buf := make([]byte, 32)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.Term))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(r.CandidateID))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(r.LastLogIndex))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(r.LastLogTerm))
	return buf
}

// DeserializeRequestVoteRequest decodes RequestVoteRequest from bytes.
func DeserializeRequestVoteRequest(data []byte) (*RequestVoteRequest, error) {
	if len(data) < 32 {
		return nil, ErrMessageCorrupted
	}
	return &RequestVoteRequest{
		Term:         Term(binary.LittleEndian.Uint64(data[0:8])),
		CandidateID:  NodeID(binary.LittleEndian.Uint64(data[8:16])),
		LastLogIndex: LogIndex(binary.LittleEndian.Uint64(data[16:24])),
		LastLogTerm:  Term(binary.LittleEndian.Uint64(data[24:32])),
	}, nil
}

// RequestVoteResponse is the response to RequestVote.
type RequestVoteResponse struct {
	Term        Term // Current term, for candidate to update itself
	VoteGranted bool // True if candidate received vote
}

// Type implements Message.
func (r *RequestVoteResponse) Type() MessageType { return MsgRequestVoteResponse }

// MessageTerm implements Message.
func (r *RequestVoteResponse) MessageTerm() Term { return r.Term }

// Serialize encodes RequestVoteResponse to bytes.
func (r *RequestVoteResponse) Serialize() []byte {
	buf := make([]byte, 9)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.Term))
	if r.VoteGranted {
		buf[8] = 1
	}
	return buf
}

// DeserializeRequestVoteResponse decodes RequestVoteResponse from bytes.
func DeserializeRequestVoteResponse(data []byte) (*RequestVoteResponse, error) {
	if len(data) < 9 {
		return nil, ErrMessageCorrupted
	}
	return &RequestVoteResponse{
		Term:        Term(binary.LittleEndian.Uint64(data[0:8])),
		VoteGranted: data[8] == 1,
	}, nil
}

// AppendEntriesRequest is sent by leader to replicate log entries.
type AppendEntriesRequest struct {
	Term         Term        // Leader's term
	LeaderID     NodeID      // So follower can learn the leader
	PrevLogIndex LogIndex    // Index of log entry immediately preceding new ones
	PrevLogTerm  Term        // Term of prevLogIndex entry
	Entries      []*LogEntry // Log entries to store (empty for heartbeat)
	LeaderCommit LogIndex    // Leader's commitIndex
}

// Type implements Message.
func (a *AppendEntriesRequest) Type() MessageType { return MsgAppendEntries }

// MessageTerm implements Message.
func (a *AppendEntriesRequest) MessageTerm() Term { return a.Term }

// IsHeartbeat reports whether the request carries no entries.
func (a *AppendEntriesRequest) IsHeartbeat() bool { return len(a.Entries) == 0 }

// Serialize encodes AppendEntriesRequest to bytes.
func (a *AppendEntriesRequest) Serialize() []byte {
	var buf bytes.Buffer

	header := make([]byte, 48)
	binary.LittleEndian.PutUint64(header[0:8], uint64(a.Term))
	binary.LittleEndian.PutUint64(header[8:16], uint64(a.LeaderID))
	binary.LittleEndian.PutUint64(header[16:24], uint64(a.PrevLogIndex))
	binary.LittleEndian.PutUint64(header[24:32], uint64(a.PrevLogTerm))
	binary.LittleEndian.PutUint64(header[32:40], uint64(len(a.Entries)))
	binary.LittleEndian.PutUint64(header[40:48], uint64(a.LeaderCommit))
	buf.Write(header)

	var lenBuf [4]byte
	for _, entry := range a.Entries {
		entryData := entry.Serialize()
		binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(entryData)))
		buf.Write(lenBuf[:])
		buf.Write(entryData)
	}

	return buf.Bytes()
}

// DeserializeAppendEntriesRequest decodes AppendEntriesRequest from bytes.
func DeserializeAppendEntriesRequest(data []byte) (*AppendEntriesRequest, error) {
	if len(data) < 48 {
		return nil, ErrMessageCorrupted
	}

	req := &AppendEntriesRequest{
		Term:         Term(binary.LittleEndian.Uint64(data[0:8])),
		LeaderID:     NodeID(binary.LittleEndian.Uint64(data[8:16])),
		PrevLogIndex: LogIndex(binary.LittleEndian.Uint64(data[16:24])),
		PrevLogTerm:  Term(binary.LittleEndian.Uint64(data[24:32])),
		LeaderCommit: LogIndex(binary.LittleEndian.Uint64(data[40:48])),
	}

	numEntries := binary.LittleEndian.Uint64(data[32:40])
	// Every entry takes at least 24 bytes, which bounds a hostile count.
	if numEntries > uint64(len(data)-48)/24 {
		return nil, ErrMessageCorrupted
	}
	if numEntries > 0 {
		req.Entries = make([]*LogEntry, 0, numEntries)
	}

	reader := bytes.NewReader(data[48:])
	for i := uint64(0); i < numEntries; i++ {
		var entryLen uint32
		if err := binary.Read(reader, binary.LittleEndian, &entryLen); err != nil {
			return nil, ErrMessageCorrupted
		}
		if int64(entryLen) > int64(reader.Len()) {
			return nil, ErrMessageCorrupted
		}

		entryData := make([]byte, entryLen)
		if _, err := io.ReadFull(reader, entryData); err != nil {
			return nil, ErrMessageCorrupted
		}

		entry, err := DeserializeLogEntry(entryData)
		if err != nil {
			return nil, ErrMessageCorrupted
		}
		req.Entries = append(req.Entries, entry)
	}

	return req, nil
}

// AppendEntriesResponse is the response to AppendEntries.
type AppendEntriesResponse struct {
	Term    Term // Current term, for leader to update itself
	Success bool // True if follower contained entry matching prevLogIndex/prevLogTerm

	// MatchIndex is the index through which the follower agrees with the
	// leader on success. On failure it is the follower's last log index,
	// which the leader uses as a back-off hint.
	MatchIndex LogIndex
}

// Type implements Message.
func (r *AppendEntriesResponse) Type() MessageType { return MsgAppendEntriesResponse }

// MessageTerm implements Message.
func (r *AppendEntriesResponse) MessageTerm() Term { return r.Term }

// Serialize encodes AppendEntriesResponse to bytes.
func (r *AppendEntriesResponse) Serialize() []byte {
	buf := make([]byte, 17)
	binary.LittleEndian.PutUint64(buf[0:8], uint64(r.Term))
	if r.Success {
		buf[8] = 1
	}
	binary.LittleEndian.PutUint64(buf[9:17], uint64(r.MatchIndex))
	return buf
}

// DeserializeAppendEntriesResponse decodes AppendEntriesResponse from bytes.
func DeserializeAppendEntriesResponse(data []byte) (*AppendEntriesResponse, error) {
	if len(data) < 17 {
		return nil, ErrMessageCorrupted
	}
	return &AppendEntriesResponse{
		Term:       Term(binary.LittleEndian.Uint64(data[0:8])),
		Success:    data[8] == 1,
		MatchIndex: LogIndex(binary.LittleEndian.Uint64(data[9:17])),
	}, nil
}

// EncodeMessage returns the wire type and payload of msg.
func EncodeMessage(msg Message) (MessageType, []byte) {
	return msg.Type(), msg.Serialize()
}

// DecodeMessage decodes a payload of the given type.
func DecodeMessage(msgType MessageType, data []byte) (Message, error) {
	var (
		msg Message
		err error
	)
	switch msgType {
	case MsgRequestVote:
		var m *RequestVoteRequest
		m, err = DeserializeRequestVoteRequest(data)
		msg = m
	case MsgRequestVoteResponse:
		var m *RequestVoteResponse
		m, err = DeserializeRequestVoteResponse(data)
		msg = m
	case MsgAppendEntries:
		var m *AppendEntriesRequest
		m, err = DeserializeAppendEntriesRequest(data)
		msg = m
	case MsgAppendEntriesResponse:
		var m *AppendEntriesResponse
		m, err = DeserializeAppendEntriesResponse(data)
		msg = m
	default:
		return nil, ErrUnknownMessage
	}
	if err != nil {
		return nil, err
	}
	return msg, nil
}
