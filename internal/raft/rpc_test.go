package raft

import (
	"bytes"
	"testing"
)

func TestRequestVoteSerialization(t *testing.T) {
	req := &RequestVoteRequest{
		Term:         5,
		CandidateID:  3,
		LastLogIndex: 100,
		LastLogTerm:  4,
	}

	restored, err := DeserializeRequestVoteRequest(req.Serialize())
	if err != nil {
		t.Fatalf("DeserializeRequestVoteRequest failed: %v", err)
	}
	if *restored != *req {
		t.Errorf("RequestVoteRequest mismatch: got %+v, want %+v", restored, req)
	}
}

func TestAppendEntriesSerialization(t *testing.T) {
	req := &AppendEntriesRequest{
		Term:         5,
		LeaderID:     1,
		PrevLogIndex: 10,
		PrevLogTerm:  4,
		Entries: []*LogEntry{
			{Index: 11, Term: 5, Command: []byte("cmd1")},
			{Index: 12, Term: 5, Command: nil},
		},
		LeaderCommit: 9,
	}

	restored, err := DeserializeAppendEntriesRequest(req.Serialize())
	if err != nil {
		t.Fatalf("DeserializeAppendEntriesRequest failed: %v", err)
	}

	if restored.Term != req.Term || restored.LeaderID != req.LeaderID {
		t.Errorf("Header mismatch: got %+v", restored)
	}
	if restored.PrevLogIndex != 10 || restored.PrevLogTerm != 4 || restored.LeaderCommit != 9 {
		t.Errorf("Prev/commit mismatch: got %+v", restored)
	}
	if len(restored.Entries) != 2 {
		t.Fatalf("Entries count mismatch: got %d, want 2", len(restored.Entries))
	}
	if restored.Entries[0].Index != 11 || !bytes.Equal(restored.Entries[0].Command, []byte("cmd1")) {
		t.Errorf("Entry 0 mismatch: got %+v", restored.Entries[0])
	}
	if restored.IsHeartbeat() {
		t.Errorf("Request with entries is not a heartbeat")
	}
}

func TestAppendEntriesHeartbeatSerialization(t *testing.T) {
	req := &AppendEntriesRequest{Term: 2, LeaderID: 3}

	restored, err := DeserializeAppendEntriesRequest(req.Serialize())
	if err != nil {
		t.Fatalf("DeserializeAppendEntriesRequest failed: %v", err)
	}
	if !restored.IsHeartbeat() {
		t.Errorf("Expected heartbeat, got %d entries", len(restored.Entries))
	}
}

func TestResponseSerialization(t *testing.T) {
	vote := &RequestVoteResponse{Term: 7, VoteGranted: true}
	gotVote, err := DeserializeRequestVoteResponse(vote.Serialize())
	if err != nil {
		t.Fatalf("DeserializeRequestVoteResponse failed: %v", err)
	}
	if *gotVote != *vote {
		t.Errorf("RequestVoteResponse mismatch: got %+v, want %+v", gotVote, vote)
	}

	ae := &AppendEntriesResponse{Term: 7, Success: false, MatchIndex: 42}
	gotAppend, err := DeserializeAppendEntriesResponse(ae.Serialize())
	if err != nil {
		t.Fatalf("DeserializeAppendEntriesResponse failed: %v", err)
	}
	if *gotAppend != *ae {
		t.Errorf("AppendEntriesResponse mismatch: got %+v, want %+v", gotAppend, ae)
	}
}

func TestDeserializeCorruptedData(t *testing.T) {
	short := []byte{1, 2, 3}

	if _, err := DeserializeRequestVoteRequest(short); err != ErrMessageCorrupted {
		t.Errorf("RequestVoteRequest: expected ErrMessageCorrupted, got %v", err)
	}
	if _, err := DeserializeRequestVoteResponse(short); err != ErrMessageCorrupted {
		t.Errorf("RequestVoteResponse: expected ErrMessageCorrupted, got %v", err)
	}
	if _, err := DeserializeAppendEntriesRequest(short); err != ErrMessageCorrupted {
		t.Errorf("AppendEntriesRequest: expected ErrMessageCorrupted, got %v", err)
	}
	if _, err := DeserializeAppendEntriesResponse(short); err != ErrMessageCorrupted {
		t.Errorf("AppendEntriesResponse: expected ErrMessageCorrupted, got %v", err)
	}

	// Header claims far more entries than the payload can hold
	header := (&AppendEntriesRequest{Term: 1}).Serialize()
	header[32] = 0xFF
	header[33] = 0xFF
	if _, err := DeserializeAppendEntriesRequest(header); err != ErrMessageCorrupted {
		t.Errorf("Hostile entry count: expected ErrMessageCorrupted, got %v", err)
	}

	// Truncated entry body
	full := (&AppendEntriesRequest{
		Term:    1,
		Entries: []*LogEntry{{Index: 1, Term: 1, Command: []byte("payload")}},
	}).Serialize()
	if _, err := DeserializeAppendEntriesRequest(full[:len(full)-3]); err != ErrMessageCorrupted {
		t.Errorf("Truncated entry: expected ErrMessageCorrupted, got %v", err)
	}
}

func TestDecodeMessage(t *testing.T) {
	msgs := []Message{
		&RequestVoteRequest{Term: 1, CandidateID: 2},
		&RequestVoteResponse{Term: 1, VoteGranted: true},
		&AppendEntriesRequest{Term: 1, LeaderID: 2},
		&AppendEntriesResponse{Term: 1, Success: true, MatchIndex: 3},
	}

	for _, msg := range msgs {
		msgType, data := EncodeMessage(msg)
		decoded, err := DecodeMessage(msgType, data)
		if err != nil {
			t.Fatalf("DecodeMessage(%s) failed: %v", msgType, err)
		}
		if decoded.Type() != msg.Type() || decoded.MessageTerm() != msg.MessageTerm() {
			t.Errorf("DecodeMessage(%s) returned %s term %d", msgType, decoded.Type(), decoded.MessageTerm())
		}
	}

	if _, err := DecodeMessage(MessageType(99), nil); err != ErrUnknownMessage {
		t.Errorf("Expected ErrUnknownMessage, got %v", err)
	}
	msg, err := DecodeMessage(MsgRequestVote, []byte{1})
	if err != ErrMessageCorrupted {
		t.Errorf("Expected ErrMessageCorrupted, got %v", err)
	}
	if msg != nil {
		t.Errorf("Expected nil message on error, got %#v", msg)
	}
}
