package raft

import (
	"encoding/binary"
	"io"
	"net"
	"sync"
	"time"
)

// maxFrameSize bounds the payload of a single RPC frame.
const maxFrameSize = 64 * 1024 * 1024

// Transport defines the interface for Raft RPC communication.
type Transport interface {
	// Send sends an RPC to a peer and waits for response.
	Send(peer NodeID, msgType MessageType, data []byte) ([]byte, error)

	// Listen starts listening for incoming RPCs.
	Listen(handler RPCHandler) error

	// Close shuts down the transport.
	Close() error

	// LocalAddr returns the local address.
	LocalAddr() string
}

// RPCHandler handles incoming RPC messages and returns the response payload.
// An error means no response is sent.
type RPCHandler func(msgType MessageType, data []byte) ([]byte, error)

// TCPTransport implements Transport using TCP.
// Frame format: [type:1][length:4][data:N]
type TCPTransport struct {
	addr     string
	listener net.Listener
	peers    map[NodeID]string   // peer -> address
	conns    map[NodeID]net.Conn // peer -> connection
	inbound  map[net.Conn]struct{}
	handler  RPCHandler
	timeout  time.Duration
	dial     func(network, addr string, timeout time.Duration) (net.Conn, error)
	closed   bool
	mu       sync.RWMutex
	wg       sync.WaitGroup
}

// NewTCPTransport creates a new TCP transport.
func NewTCPTransport(addr string, peers map[NodeID]string) *TCPTransport {
	p := make(map[NodeID]string, len(peers))
	for id, a := range peers {
		p[id] = a
	}
	return &TCPTransport{
		addr:    addr,
		peers:   p,
		conns:   make(map[NodeID]net.Conn),
		inbound: make(map[net.Conn]struct{}),
		timeout: 5 * time.Second,
		dial:    net.DialTimeout,
	}
}

// SetTimeout sets the per-call deadline.
func (t *TCPTransport) SetTimeout(d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.timeout = d
}

// LocalAddr returns the listening address once Listen has succeeded,
// otherwise the configured one.
func (t *TCPTransport) LocalAddr() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}

// Send sends an RPC message to a peer and waits for response.
func (t *TCPTransport) Send(peer NodeID, msgType MessageType, data []byte) ([]byte, error) {
	conn, timeout, err := t.connFor(peer)
	if err != nil {
		return nil, err
	}

	conn.SetDeadline(time.Now().Add(timeout))

	if err := writeFrame(conn, msgType, data); err != nil {
		t.removeConn(peer, conn)
		return nil, err
	}

	_, resp, err := readFrame(conn)
	if err != nil {
		t.removeConn(peer, conn)
		return nil, err
	}
	return resp, nil
}

// connFor returns the cached connection to peer, dialing a new one if
// needed. The dial runs without holding t.mu so an unreachable peer does not
// stall traffic to the others.
func (t *TCPTransport) connFor(peer NodeID) (net.Conn, time.Duration, error) {
	t.mu.RLock()
	if t.closed {
		t.mu.RUnlock()
		return nil, 0, ErrTransportClosed
	}
	timeout := t.timeout
	conn, ok := t.conns[peer]
	addr, exists := t.peers[peer]
	dial := t.dial
	t.mu.RUnlock()

	if ok && conn != nil {
		return conn, timeout, nil
	}
	if !exists {
		return nil, 0, ErrConnectFailed
	}

	conn, err := dial("tcp", addr, timeout)
	if err != nil {
		return nil, 0, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		conn.Close()
		return nil, 0, ErrTransportClosed
	}
	if existing, ok := t.conns[peer]; ok && existing != nil {
		conn.Close()
		return existing, timeout, nil
	}
	t.conns[peer] = conn
	return conn, timeout, nil
}

// Listen starts accepting connections and handling RPCs.
func (t *TCPTransport) Listen(handler RPCHandler) error {
	listener, err := net.Listen("tcp", t.addr)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.listener = listener
	t.handler = handler
	t.mu.Unlock()

	t.wg.Add(1)
	go t.acceptLoop(listener)

	return nil
}

func (t *TCPTransport) acceptLoop(listener net.Listener) {
	defer t.wg.Done()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if t.isClosed() {
				return
			}
			continue
		}

		t.mu.Lock()
		if t.closed {
			t.mu.Unlock()
			conn.Close()
			return
		}
		t.inbound[conn] = struct{}{}
		t.wg.Add(1)
		t.mu.Unlock()

		go t.handleConn(conn)
	}
}

func (t *TCPTransport) handleConn(conn net.Conn) {
	defer t.wg.Done()
	defer func() {
		t.mu.Lock()
		delete(t.inbound, conn)
		t.mu.Unlock()
		conn.Close()
	}()

	for {
		if t.isClosed() {
			return
		}

		t.mu.RLock()
		timeout := t.timeout
		handler := t.handler
		t.mu.RUnlock()

		conn.SetReadDeadline(time.Now().Add(timeout * 2))
		msgType, data, err := readFrame(conn)
		if err != nil {
			return
		}

		if handler == nil {
			return
		}
		resp, err := handler(msgType, data)
		if err != nil {
			return
		}

		conn.SetWriteDeadline(time.Now().Add(timeout))
		if err := writeFrame(conn, msgType, resp); err != nil {
			return
		}
	}
}

func (t *TCPTransport) isClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}

// removeConn closes conn and forgets it if it is still the cached
// connection to peer.
func (t *TCPTransport) removeConn(peer NodeID, conn net.Conn) {
	conn.Close()

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.conns[peer] == conn {
		delete(t.conns, peer)
	}
}

// Close shuts down the transport.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	listener := t.listener
	for _, conn := range t.conns {
		conn.Close()
	}
	t.conns = make(map[NodeID]net.Conn)
	for conn := range t.inbound {
		conn.Close()
	}
	t.mu.Unlock()

	if listener != nil {
		listener.Close()
	}

	// Wait for goroutines
	t.wg.Wait()

	return nil
}

// AddPeer adds a new peer to the transport.
func (t *TCPTransport) AddPeer(peer NodeID, addr string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.peers[peer] = addr
}

func writeFrame(w io.Writer, msgType MessageType, data []byte) error {
	frame := make([]byte, 5+len(data))
	frame[0] = byte(msgType)
	binary.LittleEndian.PutUint32(frame[1:5], uint32(len(data)))
	copy(frame[5:], data)
	_, err := w.Write(frame)
	return err
}

func readFrame(r io.Reader) (MessageType, []byte, error) {
	var header [5]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return 0, nil, err
	}

	dataLen := binary.LittleEndian.Uint32(header[1:5])
	if dataLen > maxFrameSize {
		return 0, nil, ErrMessageCorrupted
	}

	data := make([]byte, dataLen)
	if dataLen > 0 {
		if _, err := io.ReadFull(r, data); err != nil {
			return 0, nil, err
		}
	}
	return MessageType(header[0]), data, nil
}

// InMemoryNetwork connects InMemoryTransports within one process.
// Nodes can be disconnected to model a partition.
type InMemoryNetwork struct {
	transports   map[NodeID]*InMemoryTransport
	disconnected map[NodeID]bool
	mu           sync.RWMutex
}

// NewInMemoryNetwork creates a new in-memory network.
func NewInMemoryNetwork() *InMemoryNetwork {
	return &InMemoryNetwork{
		transports:   make(map[NodeID]*InMemoryTransport),
		disconnected: make(map[NodeID]bool),
	}
}

// NewTransport creates a new in-memory transport for a node.
func (n *InMemoryNetwork) NewTransport(id NodeID, addr string) *InMemoryTransport {
	t := &InMemoryTransport{
		id:      id,
		addr:    addr,
		network: n,
	}

	n.mu.Lock()
	n.transports[id] = t
	n.mu.Unlock()

	return t
}

// Disconnect cuts a node off: every message to or from it fails.
func (n *InMemoryNetwork) Disconnect(id NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.disconnected[id] = true
}

// Reconnect undoes Disconnect.
func (n *InMemoryNetwork) Reconnect(id NodeID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.disconnected, id)
}

// Connected reports whether a node is currently reachable.
func (n *InMemoryNetwork) Connected(id NodeID) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return !n.disconnected[id]
}

func (n *InMemoryNetwork) route(from, to NodeID) (*InMemoryTransport, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.disconnected[from] || n.disconnected[to] {
		return nil, false
	}
	t, ok := n.transports[to]
	return t, ok
}

// InMemoryTransport implements Transport for testing.
type InMemoryTransport struct {
	id      NodeID
	addr    string
	network *InMemoryNetwork
	handler RPCHandler
	closed  bool
	mu      sync.RWMutex
}

// Send sends an RPC to a peer.
func (t *InMemoryTransport) Send(peer NodeID, msgType MessageType, data []byte) ([]byte, error) {
	t.mu.RLock()
	closed := t.closed
	t.mu.RUnlock()
	if closed {
		return nil, ErrTransportClosed
	}

	target, ok := t.network.route(t.id, peer)
	if !ok {
		return nil, ErrConnectFailed
	}

	target.mu.RLock()
	handler := target.handler
	closed = target.closed
	target.mu.RUnlock()

	if closed || handler == nil {
		return nil, ErrConnectFailed
	}

	return handler(msgType, append([]byte(nil), data...))
}

// Listen starts listening for RPCs.
func (t *InMemoryTransport) Listen(handler RPCHandler) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = handler
	return nil
}

// Close shuts down the transport.
func (t *InMemoryTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	t.handler = nil
	return nil
}

// LocalAddr returns the local address.
func (t *InMemoryTransport) LocalAddr() string {
	return t.addr
}
