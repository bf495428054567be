// Package fabric owns the socket layer: one UDP socket per
// (interface, address family, multicast group), multicast group
// membership, platform-specific socket options, and the subnet-scope
// filter applied to every inbound datagram before it reaches the wire
// codec.
package fabric

import (
	"context"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/joshuafuller/beacon/internal/errors"
	"github.com/joshuafuller/beacon/internal/protocol"
)

// Inbound is one received datagram, tagged with the binding it arrived
// on so callers can reason about scope and reply routing.
type Inbound struct {
	Data      []byte
	Src       *net.UDPAddr
	Interface string
	Family    Family
}

// Binding is one socket bound to one (interface, family, group) triple.
type Binding struct {
	Interface string
	Family    Family

	group  *net.UDPAddr
	filter *SubnetFilter

	pc4 *ipv4.PacketConn
	pc6 *ipv6.PacketConn
	raw net.PacketConn
}

// Fabric manages the full set of bindings for a node and multiplexes
// their inbound datagrams onto a single channel.
type Fabric struct {
	mu       sync.Mutex
	bindings []*Binding
	inbound  chan Inbound
	wg       sync.WaitGroup
	cancel   context.CancelFunc
	started  bool
}

// New constructs a Fabric with no bindings yet; call Start to open
// sockets for the interfaces an InterfaceProvider reports.
func New() *Fabric {
	return &Fabric{
		inbound: make(chan Inbound, 64),
	}
}

// Inbound returns the channel on which every binding delivers datagrams
// that pass the subnet filter.
func (f *Fabric) Inbound() <-chan Inbound {
	return f.inbound
}

// Start opens one socket per (interface, family) reported by provider,
// for every family the interface has an address for, joins the mDNS
// multicast group on each, and begins the receive loop.
func (f *Fabric) Start(ctx context.Context, provider InterfaceProvider) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.started {
		return errors.NotRunning("fabric.Start")
	}

	ifaces, err := provider()
	if err != nil {
		return &errors.SocketError{Kind: "INTERFACE_LIST", Err: err}
	}

	runCtx, cancel := context.WithCancel(ctx)
	f.cancel = cancel

	for name, addrs := range ifaces {
		hasV4, hasV6 := false, false
		for _, a := range addrs {
			if a.Family == FamilyV4 {
				hasV4 = true
			} else {
				hasV6 = true
			}
		}

		if hasV4 {
			b, err := newBindingV4(name, addrs)
			if err != nil {
				continue
			}
			f.bindings = append(f.bindings, b)
			f.wg.Add(1)
			go f.receiveLoopV4(runCtx, b)
		}
		if hasV6 {
			b, err := newBindingV6(name, addrs)
			if err != nil {
				continue
			}
			f.bindings = append(f.bindings, b)
			f.wg.Add(1)
			go f.receiveLoopV6(runCtx, b)
		}
	}

	if len(f.bindings) == 0 {
		cancel()
		return &errors.SocketError{Kind: "NO_USABLE_INTERFACE"}
	}

	f.started = true
	return nil
}

// Stop closes every binding's socket and waits for receive loops to exit.
func (f *Fabric) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.started {
		return nil
	}

	f.cancel()
	for _, b := range f.bindings {
		if b.raw != nil {
			_ = b.raw.Close()
		}
	}
	f.wg.Wait()
	close(f.inbound)
	f.started = false
	return nil
}

// Send writes a packet to the mDNS multicast group on every binding of
// the given family, or to dest instead of the group when dest is non-nil.
func (f *Fabric) Send(data []byte, family Family, dest *net.UDPAddr) error {
	f.mu.Lock()
	bindings := append([]*Binding(nil), f.bindings...)
	f.mu.Unlock()

	var lastErr error
	sent := false
	for _, b := range bindings {
		if b.Family != family {
			continue
		}
		target := dest
		if target == nil {
			target = b.group
		}

		var err error
		switch b.Family {
		case FamilyV4:
			_, err = b.pc4.WriteTo(data, nil, target)
		case FamilyV6:
			_, err = b.pc6.WriteTo(data, nil, target)
		}
		if err != nil {
			lastErr = err
			continue
		}
		sent = true
	}

	if !sent && lastErr != nil {
		return &errors.SocketError{Kind: "SEND", Err: lastErr}
	}
	return nil
}

func newBindingV4(ifaceName string, addrs []InterfaceAddress) (*Binding, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{Control: platformControl(false)}
	conn, err := lc.ListenPacket(context.Background(), "udp4", fmt.Sprintf(":%d", protocol.Port))
	if err != nil {
		return nil, err
	}

	pc := ipv4.NewPacketConn(conn)
	group := &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv4), Port: protocol.Port}
	if err := pc.JoinGroup(iface, group); err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = pc.SetMulticastTTL(255)
	_ = pc.SetMulticastLoopback(true)

	return &Binding{
		Interface: ifaceName,
		Family:    FamilyV4,
		group:     group,
		filter:    NewSubnetFilter(ifaceName, addrs),
		pc4:       pc,
		raw:       conn,
	}, nil
}

func newBindingV6(ifaceName string, addrs []InterfaceAddress) (*Binding, error) {
	iface, err := net.InterfaceByName(ifaceName)
	if err != nil {
		return nil, err
	}

	lc := net.ListenConfig{Control: platformControl(true)}
	conn, err := lc.ListenPacket(context.Background(), "udp6", fmt.Sprintf(":%d", protocol.Port))
	if err != nil {
		return nil, err
	}

	pc := ipv6.NewPacketConn(conn)
	group := &net.UDPAddr{IP: net.ParseIP(protocol.MulticastAddrIPv6), Port: protocol.Port, Zone: ifaceName}
	if err := pc.JoinGroup(iface, group); err != nil {
		_ = conn.Close()
		return nil, err
	}
	_ = pc.SetMulticastHopLimit(255)
	_ = pc.SetMulticastLoopback(true)

	return &Binding{
		Interface: ifaceName,
		Family:    FamilyV6,
		group:     group,
		filter:    NewSubnetFilter(ifaceName, addrs),
		pc6:       pc,
		raw:       conn,
	}, nil
}

func (f *Fabric) receiveLoopV4(ctx context.Context, b *Binding) {
	defer f.wg.Done()
	for {
		bufPtr := GetBuffer()
		n, _, src, err := b.pc4.ReadFrom(*bufPtr)
		if err != nil {
			PutBuffer(bufPtr)
			if ctx.Err() != nil {
				return
			}
			continue
		}

		udpSrc, ok := src.(*net.UDPAddr)
		if !ok || !b.filter.IsValid(udpSrc.IP) {
			PutBuffer(bufPtr)
			continue
		}

		data := make([]byte, n)
		copy(data, (*bufPtr)[:n])
		PutBuffer(bufPtr)

		select {
		case f.inbound <- Inbound{Data: data, Src: udpSrc, Interface: b.Interface, Family: b.Family}:
		case <-ctx.Done():
			return
		}
	}
}

func (f *Fabric) receiveLoopV6(ctx context.Context, b *Binding) {
	defer f.wg.Done()
	for {
		bufPtr := GetBuffer()
		n, _, src, err := b.pc6.ReadFrom(*bufPtr)
		if err != nil {
			PutBuffer(bufPtr)
			if ctx.Err() != nil {
				return
			}
			continue
		}

		udpSrc, ok := src.(*net.UDPAddr)
		if !ok || !b.filter.IsValid(udpSrc.IP) {
			PutBuffer(bufPtr)
			continue
		}
		// A link-local source carrying a zone must have arrived on this
		// binding's own interface.
		if udpSrc.IP.IsLinkLocalUnicast() && udpSrc.Zone != "" && udpSrc.Zone != b.Interface {
			PutBuffer(bufPtr)
			continue
		}

		data := make([]byte, n)
		copy(data, (*bufPtr)[:n])
		PutBuffer(bufPtr)

		select {
		case f.inbound <- Inbound{Data: data, Src: udpSrc, Interface: b.Interface, Family: b.Family}:
		case <-ctx.Done():
			return
		}
	}
}
