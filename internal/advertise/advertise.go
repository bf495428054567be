// Package advertise implements the two-shot announce/goodbye cycle for
// locally-registered services, keyed by fully-qualified service name so
// a re-registration supersedes any still in-flight announcement.
package advertise

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/joshuafuller/beacon/internal/fabric"
	"github.com/joshuafuller/beacon/internal/protocol"
	"github.com/joshuafuller/beacon/internal/wire"
)

// Sender is the minimal fabric capability the advertiser needs.
type Sender interface {
	Send(data []byte, family fabric.Family, dest *net.UDPAddr) error
}

// Advertiser tracks one in-flight announce schedule per FDQN.
type Advertiser struct {
	mu       sync.Mutex
	sender   Sender
	inflight map[string]context.CancelFunc
}

// New returns an Advertiser that transmits through sender.
func New(sender Sender) *Advertiser {
	return &Advertiser{
		sender:   sender,
		inflight: make(map[string]context.CancelFunc),
	}
}

// Announce builds a RESPONSE packet from records and sends it
// immediately, then again ~1 second later (RFC 6762 §8.3's two
// unsolicited announcements). A prior in-flight announcement for the
// same fdqn is canceled and replaced.
func (a *Advertiser) Announce(fdqn string, records []wire.Record) error {
	packet, err := wire.BuildResponse(records, nil)
	if err != nil {
		return err
	}

	ctx := a.supersede(fdqn)

	_ = a.sender.Send(packet, fabric.FamilyV4, nil)
	_ = a.sender.Send(packet, fabric.FamilyV6, nil)

	go func() {
		t := time.NewTimer(protocol.AnnounceInterval)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			_ = a.sender.Send(packet, fabric.FamilyV4, nil)
			_ = a.sender.Send(packet, fabric.FamilyV6, nil)
		}
	}()

	return nil
}

// Goodbye cancels any in-flight announcement for fdqn and sends records
// once with ttl=0, the best-effort withdrawal notice.
func (a *Advertiser) Goodbye(fdqn string, records []wire.Record) error {
	a.cancel(fdqn)

	goodbye := make([]wire.Record, len(records))
	copy(goodbye, records)
	for i := range goodbye {
		goodbye[i].Header.TTL = protocol.GoodbyeTTL
	}

	packet, err := wire.BuildResponse(goodbye, nil)
	if err != nil {
		return err
	}

	_ = a.sender.Send(packet, fabric.FamilyV4, nil)
	_ = a.sender.Send(packet, fabric.FamilyV6, nil)
	return nil
}

// CancelAll cancels every in-flight announcement's follow-up send,
// used on node shutdown after goodbyes have been sent.
func (a *Advertiser) CancelAll() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for fdqn, cancel := range a.inflight {
		cancel()
		delete(a.inflight, fdqn)
	}
}

func (a *Advertiser) supersede(fdqn string) context.Context {
	a.mu.Lock()
	defer a.mu.Unlock()

	if cancel, ok := a.inflight[fdqn]; ok {
		cancel()
	}
	ctx, cancel := context.WithCancel(context.Background())
	a.inflight[fdqn] = cancel
	return ctx
}

func (a *Advertiser) cancel(fdqn string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cancel, ok := a.inflight[fdqn]; ok {
		cancel()
		delete(a.inflight, fdqn)
	}
}
