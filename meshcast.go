// Package meshcast is a mDNS (RFC 6762) and DNS-SD (RFC 6763) node: it
// advertises locally registered services, answers queries for them, and
// discovers services advertised by other nodes on the local network.
package meshcast

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/joshuafuller/beacon/internal/advertise"
	"github.com/joshuafuller/beacon/internal/cache"
	"github.com/joshuafuller/beacon/internal/errors"
	"github.com/joshuafuller/beacon/internal/fabric"
	"github.com/joshuafuller/beacon/internal/localstore"
	"github.com/joshuafuller/beacon/internal/logging"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/query"
	"github.com/joshuafuller/beacon/internal/reassemble"
	"github.com/joshuafuller/beacon/internal/responder"
	"github.com/joshuafuller/beacon/internal/wire"
)

// EventKind distinguishes the three event types a Node emits.
type EventKind uint8

const (
	EventServiceAppeared EventKind = iota
	EventServiceRemoved
	EventError
)

// Event is one item on a Node's event stream.
type Event struct {
	Kind        EventKind
	Service     reassemble.Service
	ErrorKind   string
	ErrorDetail string
}

// lifecycleState tracks a Node through construct -> start -> stop -> destroy.
type lifecycleState uint8

const (
	stateConstructed lifecycleState = iota
	stateRunning
	stateStopped
	stateDestroyed
)

// Node is an mDNS/DNS-SD instance: one local record store, one observed
// record cache, one socket fabric, and the engines wired between them.
type Node struct {
	mu    sync.Mutex
	state lifecycleState

	logger   logging.Logger
	hostname string

	ifaceProvider    fabric.InterfaceProvider
	advertiseOnStart bool

	fab         *fabric.Fabric
	recordCache *cache.Cache
	store       *localstore.Store
	reassembler *reassemble.Reassembler
	queryEngine *query.Engine
	advertiser  *advertise.Advertiser

	events chan Event
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// ConstructOption configures a Node at construction time.
type ConstructOption func(*Node) error

// WithLogger supplies the Logger the node reports diagnostics through.
// Without one, the node is silent.
func WithLogger(l logging.Logger) ConstructOption {
	return func(n *Node) error { n.logger = l; return nil }
}

// WithInterfaceProvider overrides the default UP+MULTICAST interface
// enumeration, the getNetworkInterfaces collaborator.
func WithInterfaceProvider(p fabric.InterfaceProvider) ConstructOption {
	return func(n *Node) error { n.ifaceProvider = p; return nil }
}

// WithHostname overrides os.Hostname() as the node's own .local name.
func WithHostname(hostname string) ConstructOption {
	return func(n *Node) error { n.hostname = hostname; return nil }
}

// Construct builds a Node ready for Start. No sockets are opened yet.
func Construct(opts ...ConstructOption) (*Node, error) {
	n := &Node{
		logger:           logging.NewNoop(),
		ifaceProvider:    fabric.DefaultInterfaces,
		advertiseOnStart: true,
		events:           make(chan Event, 256),
	}

	for _, opt := range opts {
		if err := opt(n); err != nil {
			return nil, err
		}
	}

	if n.hostname == "" {
		h, err := os.Hostname()
		if err != nil {
			h = "localhost"
		}
		n.hostname = h + ".local"
	}

	return n, nil
}

// StartOption configures a Node at start time.
type StartOption func(*Node)

// WithAdvertise controls whether registering a service while running
// also triggers the two-shot announce; false suppresses start-time and
// registration-time announcements (useful for query-only peers).
func WithAdvertise(advertiseOnRegister bool) StartOption {
	return func(n *Node) { n.advertiseOnStart = advertiseOnRegister }
}

// Start opens the socket fabric across every interface ifaceProvider
// reports, and begins the inbound-datagram processing loop.
func (n *Node) Start(ctx context.Context, opts ...StartOption) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state == stateDestroyed {
		return errors.Destroyed("Start")
	}
	if n.state == stateRunning {
		return nil
	}

	for _, opt := range opts {
		opt(n)
	}

	ifaces, err := n.ifaceProvider()
	if err != nil {
		return &errors.ConfigError{Kind: "BIND_FAILED", Cause: err}
	}
	if len(ifaces) == 0 {
		return &errors.ConfigError{Kind: "WILDCARD_NO_INTERFACES"}
	}

	var addrs []net.IP
	for _, entries := range ifaces {
		for _, e := range entries {
			addrs = append(addrs, e.Address)
		}
	}

	registry := localstore.NewRegistry()
	n.store = localstore.New(n.hostname, registry)
	n.store.SetAddresses(addrs)

	var reassembler *reassemble.Reassembler
	n.recordCache = cache.New(protocol.DefaultCacheMax, func(e cache.Entry) {
		reassembler.OnExpired(e)
	})
	reassembler = reassemble.New(n.recordCache)
	n.reassembler = reassembler

	n.fab = fabric.New()
	if err := n.fab.Start(ctx, n.ifaceProvider); err != nil {
		return &errors.ConfigError{Kind: "BIND_FAILED", Cause: err}
	}

	n.queryEngine = query.New(n.fab)
	n.advertiser = advertise.New(n.fab)

	loopCtx, cancel := context.WithCancel(ctx)
	n.cancel = cancel

	n.wg.Add(2)
	go n.inboundLoop(loopCtx)
	go n.reassembleEventLoop(loopCtx)

	n.state = stateRunning
	return nil
}

// Stop cancels all schedules, sends best-effort goodbyes for every
// registered service, and closes the socket fabric. The Node can be
// reused via Start after Stop.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()

	if n.state != stateRunning {
		return nil
	}

	if n.queryEngine != nil {
		n.queryEngine.StopAll()
	}

	if n.store != nil && n.advertiser != nil {
		for _, svc := range n.store.Registry().List() {
			recs := recordsForService(n.store, svc.FDQN())
			_ = n.advertiser.Goodbye(svc.FDQN(), recs)
		}
		n.advertiser.CancelAll()
	}

	if n.cancel != nil {
		n.cancel()
	}
	n.wg.Wait()

	if n.fab != nil {
		_ = n.fab.Stop()
	}
	if n.recordCache != nil {
		n.recordCache.Destroy()
	}

	n.state = stateStopped
	return nil
}

// Close permanently destroys the node; it cannot be started again.
func (n *Node) Close() error {
	if err := n.Stop(); err != nil {
		return err
	}
	n.mu.Lock()
	n.state = stateDestroyed
	n.mu.Unlock()
	return nil
}

// Events returns the stream of SERVICE_APPEARED, SERVICE_REMOVED, and
// ERROR notifications.
func (n *Node) Events() <-chan Event {
	return n.events
}

// RegisterService validates and adds a service to the local store, then
// (unless advertising is disabled) announces it twice per RFC 6762 §8.3.
func (n *Node) RegisterService(svc *localstore.Service) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != stateRunning {
		return errors.NotRunning("RegisterService")
	}

	if err := n.store.Register(svc); err != nil {
		return err
	}

	if n.advertiseOnStart {
		recs := recordsForService(n.store, svc.FDQN())
		return n.advertiser.Announce(svc.FDQN(), recs)
	}
	return nil
}

// UnregisterService removes a service and sends a goodbye for it.
func (n *Node) UnregisterService(fdqn string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != stateRunning {
		return errors.NotRunning("UnregisterService")
	}

	recs := recordsForService(n.store, fdqn)
	if !n.store.Unregister(fdqn) {
		return nil
	}
	return n.advertiser.Goodbye(fdqn, recs)
}

// StartQuery begins a scheduled PTR browse for "_<type>._<protocol>.local".
func (n *Node) StartQuery(svcType, proto string, minDelay, maxDelay time.Duration) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.state != stateRunning {
		return errors.NotRunning("StartQuery")
	}
	if minDelay <= 0 {
		minDelay = protocol.DefaultQueryMinDelay
	}
	if maxDelay <= 0 {
		maxDelay = protocol.DefaultQueryMaxDelay
	}
	return n.queryEngine.StartQuery(queryName(svcType, proto), minDelay, maxDelay)
}

// StopQuery cancels a previously started browse synchronously.
func (n *Node) StopQuery(svcType, proto string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.queryEngine != nil {
		n.queryEngine.StopQuery(queryName(svcType, proto))
	}
}

func queryName(svcType, proto string) string {
	return fmt.Sprintf("_%s._%s.local", svcType, proto)
}

// recordsForService returns the subset of the store's record set
// belonging to one FDQN (its SRV, TXT, and the two PTRs that name it),
// plus the node's own host address records.
func recordsForService(store *localstore.Store, fdqn string) []wire.Record {
	var out []wire.Record
	sawMeta := false
	for _, r := range store.Records() {
		switch r.Type {
		case protocol.RecordTypeSRV, protocol.RecordTypeTXT:
			if r.Header.Name == fdqn {
				out = append(out, r)
			}
		case protocol.RecordTypePTR:
			if r.PTR == fdqn {
				out = append(out, r)
			} else if r.Header.Name == localstore.MetaPTRName && strings.HasSuffix(fdqn, "."+r.PTR) && !sawMeta {
				sawMeta = true
				out = append(out, r)
			}
		case protocol.RecordTypeA, protocol.RecordTypeAAAA:
			out = append(out, r)
		}
	}
	return out
}

func (n *Node) inboundLoop(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case in, ok := <-n.fab.Inbound():
			if !ok {
				return
			}
			n.handleInbound(in)
		}
	}
}

func (n *Node) handleInbound(in fabric.Inbound) {
	msg, err := wire.ParseMessage(in.Data)
	if err != nil {
		n.events <- Event{Kind: EventError, ErrorKind: "PARSE_ERROR", ErrorDetail: err.Error()}
		return
	}

	switch msg.Flags.Type {
	case wire.TypeQuery:
		resp := responder.Respond(msg, n.store.Records())
		if resp == nil {
			return
		}
		packet, err := wire.Generate(resp)
		if err != nil {
			return
		}
		_ = n.fab.Send(packet, in.Family, nil)

	case wire.TypeResponse:
		if err := protocol.ValidateResponse(msg.Flags.Raw()); err != nil {
			n.logger.Warn("dropping malformed response", "error", err)
			return
		}
		remaining := n.reassembler.HandleResponse(msg)
		if len(remaining) == 0 {
			return
		}
		followup := &wire.Message{Flags: wire.QueryFlags(), Questions: remaining}
		packet, err := wire.Generate(followup)
		if err != nil {
			return
		}
		_ = n.fab.Send(packet, in.Family, nil)
	}
}

func (n *Node) reassembleEventLoop(ctx context.Context) {
	defer n.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-n.reassembler.Events():
			if !ok {
				return
			}
			kind := EventServiceAppeared
			if ev.Kind == reassemble.ServiceRemoved {
				kind = EventServiceRemoved
			}
			select {
			case n.events <- Event{Kind: kind, Service: ev.Service}:
			case <-ctx.Done():
				return
			}
		}
	}
}
