package broadcast

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/danmuck/opencab/internal/discovery"
	"github.com/danmuck/opencab/internal/protocol"
	"github.com/danmuck/opencab/internal/testutil/testlog"
)

type staticDirectory discovery.Directory

func (s staticDirectory) Directory() discovery.Directory {
	return discovery.Directory(s)
}

type fakeDeliverer struct {
	mu       sync.Mutex
	attempts []discovery.Descriptor
	fail     map[string]error
	panics   map[string]bool
}

func (f *fakeDeliverer) Deliver(_ context.Context, target discovery.Descriptor, _ protocol.Event) error {
	f.mu.Lock()
	f.attempts = append(f.attempts, target)
	f.mu.Unlock()
	if f.panics[target.Owner] {
		panic("receiver crashed")
	}
	return f.fail[target.Owner]
}

func (f *fakeDeliverer) attempted() map[string]bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]bool{}
	for _, d := range f.attempts {
		out[d.Owner] = true
	}
	return out
}

func threeReceivers() staticDirectory {
	return staticDirectory{Packages: []discovery.Package{
		{Identity: "a.app", Receivers: []string{"a.app.IdentityChangedReceiver"}},
		{Identity: "b.app", Receivers: []string{"b.app.IdentityChangedReceiver"}},
		{Identity: "c.app", Receivers: []string{"c.app.IdentityChangedReceiver", "c.app.VehicleInformationChangedReceiver"}},
	}}
}

func TestBroadcastContinuesPastFailingTarget(t *testing.T) {
	testlog.Start(t)
	for _, parallelism := range []int{0, 3} {
		d := &fakeDeliverer{fail: map[string]error{"b.app": errors.New("receiver gone")}}
		f := &Fanout{Source: threeReceivers(), Deliverer: d, Parallelism: parallelism}
		if err := f.Broadcast(context.Background(), protocol.NewEvent(ActionDriverLogin, protocol.Bundle{})); err != nil {
			t.Fatalf("broadcast: %v", err)
		}
		got := d.attempted()
		if len(got) != 3 || !got["a.app"] || !got["c.app"] {
			t.Fatalf("parallelism=%d: expected all three attempted, got %v", parallelism, got)
		}
	}
}

func TestBroadcastContinuesPastPanickingTarget(t *testing.T) {
	testlog.Start(t)
	d := &fakeDeliverer{panics: map[string]bool{"b.app": true}}
	f := &Fanout{Source: threeReceivers(), Deliverer: d}
	if err := f.Broadcast(context.Background(), protocol.NewEvent(ActionDriverLogout, protocol.Bundle{})); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if got := d.attempted(); len(got) != 3 {
		t.Fatalf("expected all three attempted, got %v", got)
	}
}

func TestBroadcastRoutesByAction(t *testing.T) {
	testlog.Start(t)
	d := &fakeDeliverer{}
	f := &Fanout{Source: threeReceivers(), Deliverer: d}
	if err := f.Broadcast(context.Background(), protocol.NewEvent(ActionVehicleInformationChanged, protocol.Bundle{})); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
	if len(d.attempts) != 1 || d.attempts[0].Endpoint != "c.app.VehicleInformationChangedReceiver" {
		t.Fatalf("unexpected targets: %v", d.attempts)
	}
}

func TestBroadcastUnknownActionDeliversNothing(t *testing.T) {
	testlog.Start(t)
	d := &fakeDeliverer{}
	f := &Fanout{Source: threeReceivers(), Deliverer: d}
	err := f.Broadcast(context.Background(), protocol.NewEvent("org.example.NOTHING", protocol.Bundle{}))
	if !errors.Is(err, ErrUnknownEvent) {
		t.Fatalf("expected unknown event, got %v", err)
	}
	if len(d.attempts) != 0 {
		t.Fatalf("nothing should be delivered: %v", d.attempts)
	}
}

func TestBroadcastNoReceivers(t *testing.T) {
	testlog.Start(t)
	d := &fakeDeliverer{}
	f := &Fanout{Source: staticDirectory{}, Deliverer: d}
	if err := f.Broadcast(context.Background(), protocol.NewEvent(ActionIdentityInformationChanged, protocol.Bundle{})); err != nil {
		t.Fatalf("broadcast: %v", err)
	}
}

func TestReceiverFor(t *testing.T) {
	testlog.Start(t)
	for _, action := range []string{ActionDriverLogin, ActionDriverLogout, ActionIdentityInformationChanged} {
		if r, ok := ReceiverFor(action); !ok || r != ReceiverIdentityChanged {
			t.Fatalf("%s mapped to %q", action, r)
		}
	}
	if r, _ := ReceiverFor(ActionVehicleInformationChanged); r != ReceiverVehicleInformationChanged {
		t.Fatalf("vehicle action mapped to %q", r)
	}
}
