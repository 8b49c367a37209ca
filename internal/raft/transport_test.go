package raft

import (
	"errors"
	"net"
	"sync/atomic"
	"testing"
	"time"
)

// newLoopbackPair listens on two ephemeral ports and points each transport
// at the other.
func newLoopbackPair(t *testing.T, h1, h2 RPCHandler) (*TCPTransport, *TCPTransport) {
	t.Helper()

	t1 := NewTCPTransport("127.0.0.1:0", nil)
	t2 := NewTCPTransport("127.0.0.1:0", nil)
	if err := t1.Listen(h1); err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	if err := t2.Listen(h2); err != nil {
		t1.Close()
		t.Fatalf("Listen failed: %v", err)
	}
	t1.AddPeer(2, t2.LocalAddr())
	t2.AddPeer(1, t1.LocalAddr())

	t.Cleanup(func() {
		t1.Close()
		t2.Close()
	})
	return t1, t2
}

func TestTCPTransportSendReceive(t *testing.T) {
	received := make(chan []byte, 1)
	echo := func(msgType MessageType, data []byte) ([]byte, error) {
		received <- data
		return []byte("response"), nil
	}
	t1, _ := newLoopbackPair(t, nil, echo)

	resp, err := t1.Send(2, MsgRequestVote, []byte("hello"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(resp) != "response" {
		t.Errorf("Response mismatch: got %s", string(resp))
	}

	select {
	case data := <-received:
		if string(data) != "hello" {
			t.Errorf("Received data mismatch: got %s", string(data))
		}
	case <-time.After(time.Second):
		t.Error("Timeout waiting for received data")
	}
}

func TestTCPTransportConnectionReuse(t *testing.T) {
	var count int32
	handler := func(msgType MessageType, data []byte) ([]byte, error) {
		atomic.AddInt32(&count, 1)
		return data, nil
	}
	t1, _ := newLoopbackPair(t, nil, handler)

	for i := 0; i < 5; i++ {
		resp, err := t1.Send(2, MsgAppendEntries, []byte{byte(i)})
		if err != nil {
			t.Fatalf("Send %d failed: %v", i, err)
		}
		if len(resp) != 1 || resp[0] != byte(i) {
			t.Errorf("Send %d: echo mismatch %v", i, resp)
		}
	}

	t1.mu.RLock()
	conns := len(t1.conns)
	t1.mu.RUnlock()
	if conns != 1 {
		t.Errorf("Expected one cached connection, got %d", conns)
	}
	if got := atomic.LoadInt32(&count); got != 5 {
		t.Errorf("Handler call count mismatch: got %d, want 5", got)
	}
}

func TestTCPTransportRaftMessages(t *testing.T) {
	handler := func(msgType MessageType, data []byte) ([]byte, error) {
		msg, err := DecodeMessage(msgType, data)
		if err != nil {
			return nil, err
		}
		req := msg.(*RequestVoteRequest)
		return (&RequestVoteResponse{Term: req.Term, VoteGranted: true}).Serialize(), nil
	}
	t1, _ := newLoopbackPair(t, nil, handler)

	msgType, data := EncodeMessage(&RequestVoteRequest{Term: 4, CandidateID: 1})
	respData, err := t1.Send(2, msgType, data)
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	resp, err := DeserializeRequestVoteResponse(respData)
	if err != nil {
		t.Fatalf("DeserializeRequestVoteResponse failed: %v", err)
	}
	if resp.Term != 4 || !resp.VoteGranted {
		t.Errorf("Response mismatch: %+v", resp)
	}
}

func TestTCPTransportHandlerError(t *testing.T) {
	handler := func(msgType MessageType, data []byte) ([]byte, error) {
		return nil, errors.New("cannot persist")
	}
	t1, _ := newLoopbackPair(t, nil, handler)
	t1.SetTimeout(time.Second)

	if _, err := t1.Send(2, MsgRequestVote, []byte("x")); err == nil {
		t.Errorf("Send should fail when the peer refuses to answer")
	}
}

// A peer whose dial never completes must not hold up sends to other peers,
// inbound RPCs or LocalAddr.
func TestTCPTransportUnreachablePeerDoesNotBlock(t *testing.T) {
	echo := func(msgType MessageType, data []byte) ([]byte, error) {
		return data, nil
	}
	t1, t2 := newLoopbackPair(t, echo, echo)

	release := make(chan struct{})
	dialing := make(chan struct{})
	t1.mu.Lock()
	t1.peers[3] = "10.255.255.1:7000"
	t1.dial = func(network, addr string, timeout time.Duration) (net.Conn, error) {
		if addr == "10.255.255.1:7000" {
			close(dialing)
			<-release
			return nil, errors.New("dial timeout")
		}
		return net.DialTimeout(network, addr, timeout)
	}
	t1.mu.Unlock()

	stuck := make(chan error, 1)
	go func() {
		_, err := t1.Send(3, MsgAppendEntries, []byte("lost"))
		stuck <- err
	}()
	t.Cleanup(func() { close(release) })

	select {
	case <-dialing:
	case <-time.After(time.Second):
		t.Fatal("Dial to the unreachable peer never started")
	}

	done := make(chan error, 1)
	go func() {
		_, err := t1.Send(2, MsgAppendEntries, []byte("ping"))
		if err == nil {
			_, err = t2.Send(1, MsgAppendEntries, []byte("pong"))
		}
		_ = t1.LocalAddr()
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Send to healthy peer failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Send to a healthy peer blocked behind an unreachable peer")
	}

	select {
	case err := <-stuck:
		t.Errorf("Send to the unreachable peer returned early: %v", err)
	default:
	}
}

func TestTCPTransportErrors(t *testing.T) {
	tr := NewTCPTransport("127.0.0.1:0", map[NodeID]string{})
	if _, err := tr.Send(7, MsgRequestVote, nil); err != ErrConnectFailed {
		t.Errorf("Unknown peer: expected ErrConnectFailed, got %v", err)
	}

	tr.Close()
	if _, err := tr.Send(7, MsgRequestVote, nil); err != ErrTransportClosed {
		t.Errorf("Closed transport: expected ErrTransportClosed, got %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Errorf("Second Close should be a no-op, got %v", err)
	}
}

func TestInMemoryTransport(t *testing.T) {
	network := NewInMemoryNetwork()
	t1 := network.NewTransport(1, "node1")
	t2 := network.NewTransport(2, "node2")

	t2.Listen(func(msgType MessageType, data []byte) ([]byte, error) {
		return append([]byte("echo:"), data...), nil
	})

	resp, err := t1.Send(2, MsgAppendEntries, []byte("x"))
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if string(resp) != "echo:x" {
		t.Errorf("Response mismatch: got %s", resp)
	}

	network.Disconnect(2)
	if _, err := t1.Send(2, MsgAppendEntries, nil); err != ErrConnectFailed {
		t.Errorf("Disconnected peer: expected ErrConnectFailed, got %v", err)
	}
	network.Reconnect(2)
	if _, err := t1.Send(2, MsgAppendEntries, nil); err != nil {
		t.Errorf("Reconnected peer: %v", err)
	}

	network.Disconnect(1)
	if _, err := t1.Send(2, MsgAppendEntries, nil); err != ErrConnectFailed {
		t.Errorf("Disconnected sender: expected ErrConnectFailed, got %v", err)
	}
	network.Reconnect(1)

	if _, err := t1.Send(3, MsgAppendEntries, nil); err != ErrConnectFailed {
		t.Errorf("Unknown peer: expected ErrConnectFailed, got %v", err)
	}

	t2.Close()
	if _, err := t1.Send(2, MsgAppendEntries, nil); err != ErrConnectFailed {
		t.Errorf("Closed peer: expected ErrConnectFailed, got %v", err)
	}
	t1.Close()
	if _, err := t1.Send(2, MsgAppendEntries, nil); err != ErrTransportClosed {
		t.Errorf("Closed transport: expected ErrTransportClosed, got %v", err)
	}
}
