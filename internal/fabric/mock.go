package fabric

import (
	"net"
	"sync"
)

// SendCall records a single Send invocation against a Mock.
type SendCall struct {
	Data   []byte
	Family Family
	Dest   *net.UDPAddr
}

// Mock is a test double standing in for a real Fabric: it records every
// Send call and lets tests inject Inbound datagrams without opening any
// socket, so the engine layers above fabric can be tested headless.
type Mock struct {
	mu      sync.Mutex
	sends   []SendCall
	inbound chan Inbound
	closed  bool
}

// NewMock returns a ready-to-use Mock fabric.
func NewMock() *Mock {
	return &Mock{inbound: make(chan Inbound, 64)}
}

// Send records the call for later assertion.
func (m *Mock) Send(data []byte, family Family, dest *net.UDPAddr) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sends = append(m.sends, SendCall{Data: append([]byte(nil), data...), Family: family, Dest: dest})
	return nil
}

// SendCalls returns a copy of every recorded Send call.
func (m *Mock) SendCalls() []SendCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SendCall, len(m.sends))
	copy(out, m.sends)
	return out
}

// Inbound exposes the channel tests can push datagrams onto and the
// code under test reads from, mirroring Fabric.Inbound.
func (m *Mock) Inbound() <-chan Inbound {
	return m.inbound
}

// Deliver injects a datagram as if it had arrived on the wire and
// passed the subnet filter.
func (m *Mock) Deliver(in Inbound) {
	m.inbound <- in
}

// Close marks the mock closed and stops accepting further delivery.
func (m *Mock) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	close(m.inbound)
	return nil
}
