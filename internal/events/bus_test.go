package events

import (
	"testing"
	"time"

	"github.com/sweeney/oven-heater/internal/door"
)

func TestPublishSubscribe(t *testing.T) {
	bus := New()
	defer bus.Close()

	got := make(chan DoorChecked, 4)
	unsub := Subscribe(bus, func(e DoorChecked) { got <- e })
	defer unsub()

	// Other event types must not reach the DoorChecked handler.
	Publish(bus, HeaterToggled{Enabled: true})
	Publish(bus, DoorChecked{State: door.Open})
	Publish(bus, DoorChecked{State: door.Closed})

	for _, want := range []door.State{door.Open, door.Closed} {
		select {
		case e := <-got:
			if e.State != want {
				t.Errorf("got %s, want %s", e.State, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %s", want)
		}
	}

	select {
	case e := <-got:
		t.Errorf("unexpected extra event: %+v", e)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPublishNilBus(t *testing.T) {
	// Must not panic.
	Publish[DoorChecked](nil, DoorChecked{State: door.Open})
}

func TestTypesDistinct(t *testing.T) {
	seen := map[uint32]string{}
	for name, ev := range map[string]Event{
		"door":      DoorChecked{},
		"heater":    HeaterToggled{},
		"animation": AnimationStopped{},
		"coalesced": SpawnCoalesced{},
	} {
		if other, ok := seen[ev.Type()]; ok {
			t.Errorf("%s and %s share type %d", name, other, ev.Type())
		}
		seen[ev.Type()] = name
	}
}
