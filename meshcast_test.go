package meshcast

import (
	"testing"

	"github.com/joshuafuller/beacon/internal/localstore"
)

func TestOperationsBeforeStartReturnNotRunning(t *testing.T) {
	n, err := Construct()
	if err != nil {
		t.Fatalf("Construct: %v", err)
	}

	if err := n.RegisterService(&localstore.Service{InstanceName: "x", ServiceType: "_http._tcp.local", Port: 80}); err == nil {
		t.Fatal("expected NOT_RUNNING error before Start")
	}
	if err := n.UnregisterService("x._http._tcp.local"); err == nil {
		t.Fatal("expected NOT_RUNNING error before Start")
	}
	if err := n.StartQuery("http", "tcp", 0, 0); err == nil {
		t.Fatal("expected NOT_RUNNING error before Start")
	}
}

func TestRecordsForServiceFiltersToOwnFDQN(t *testing.T) {
	reg := localstore.NewRegistry()
	store := localstore.New("myhost.local", reg)
	if err := store.Register(&localstore.Service{InstanceName: "A", ServiceType: "_http._tcp.local", Port: 1}); err != nil {
		t.Fatalf("register A: %v", err)
	}
	if err := store.Register(&localstore.Service{InstanceName: "B", ServiceType: "_http._tcp.local", Port: 2}); err != nil {
		t.Fatalf("register B: %v", err)
	}

	recs := recordsForService(store, "A._http._tcp.local")

	sawBTouch := false
	for _, r := range recs {
		if r.Header.Name == "B._http._tcp.local" {
			sawBTouch = true
		}
	}
	if sawBTouch {
		t.Fatal("expected only service A's own SRV/TXT records, not service B's")
	}
}
