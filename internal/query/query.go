// Package query implements scheduled PTR browsing: a started query sends
// immediately, then retransmits at an exponentially growing interval
// until stopped.
package query

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/joshuafuller/beacon/internal/fabric"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

// Sender is the minimal fabric capability the query engine needs; both
// *fabric.Fabric and *fabric.Mock satisfy it.
type Sender interface {
	Send(data []byte, family fabric.Family, dest *net.UDPAddr) error
}

// Engine tracks every in-flight scheduled query, keyed by service type.
type Engine struct {
	mu      sync.Mutex
	sender  Sender
	active  map[string]*scheduledQuery
}

type scheduledQuery struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// New returns an Engine that transmits queries through sender.
func New(sender Sender) *Engine {
	return &Engine{
		sender: sender,
		active: make(map[string]*scheduledQuery),
	}
}

// key is the coalescing key for a started query: multiple StartQuery
// calls for the same (name) share one schedule, per spec.md §4.5's
// "coalesced" option.
func key(name string) string { return name }

// StartQuery builds a PTR question for name ("_<type>._<protocol>.local")
// and begins sending it immediately, then at minDelay, doubling up to
// maxDelay, until StopQuery is called for the same name. Calling
// StartQuery again for a name already running replaces its schedule.
func (e *Engine) StartQuery(name string, minDelay, maxDelay time.Duration) error {
	packet, err := wire.BuildQuery(name, protocol.RecordTypePTR)
	if err != nil {
		return fmt.Errorf("build query for %s: %w", name, err)
	}

	e.mu.Lock()
	if existing, ok := e.active[key(name)]; ok {
		existing.cancel()
		<-existing.done
	}

	ctx, cancel := context.WithCancel(context.Background())
	sq := &scheduledQuery{cancel: cancel, done: make(chan struct{})}
	e.active[key(name)] = sq
	e.mu.Unlock()

	go e.run(ctx, sq, packet, minDelay, maxDelay)
	return nil
}

// StopQuery cancels the schedule for name synchronously: StopQuery does
// not return until no further sends will occur.
func (e *Engine) StopQuery(name string) {
	e.mu.Lock()
	sq, ok := e.active[key(name)]
	if ok {
		delete(e.active, key(name))
	}
	e.mu.Unlock()

	if !ok {
		return
	}
	sq.cancel()
	<-sq.done
}

// StopAll cancels every in-flight query, used on node shutdown.
func (e *Engine) StopAll() {
	e.mu.Lock()
	names := make([]string, 0, len(e.active))
	for n := range e.active {
		names = append(names, n)
	}
	e.mu.Unlock()

	for _, n := range names {
		e.StopQuery(n)
	}
}

func (e *Engine) run(ctx context.Context, sq *scheduledQuery, packet []byte, minDelay, maxDelay time.Duration) {
	defer close(sq.done)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = minDelay
	bo.MaxInterval = maxDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	bo.MaxElapsedTime = 0 // retry forever until StopQuery cancels ctx
	bo.Reset()

	_ = e.sender.Send(packet, fabric.FamilyV4, nil)
	_ = e.sender.Send(packet, fabric.FamilyV6, nil)

	for {
		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			return
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
			_ = e.sender.Send(packet, fabric.FamilyV4, nil)
			_ = e.sender.Send(packet, fabric.FamilyV6, nil)
		}
	}
}
