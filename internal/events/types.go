package events

import (
	"time"

	"github.com/sweeney/oven-heater/internal/door"
)

// Event type constants for kelindar/event.
const (
	TypeDoorChecked uint32 = iota + 1
	TypeHeaterToggled
	TypeAnimationStopped
	TypeSpawnCoalesced
)

// Event is the interface required by kelindar/event.
type Event interface {
	Type() uint32
}

// DoorChecked is published after every debounced door sample.
type DoorChecked struct {
	State door.State
	At    time.Time
}

// Type returns the event type identifier for DoorChecked.
func (DoorChecked) Type() uint32 { return TypeDoorChecked }

// HeaterToggled is published when the check task enables or disables the heater.
type HeaterToggled struct {
	Enabled bool
	At      time.Time
}

// Type returns the event type identifier for HeaterToggled.
func (HeaterToggled) Type() uint32 { return TypeHeaterToggled }

// AnimationStopped is published when the drive loop stops rescheduling.
// Completed is false when the heater was disabled before the cycle ended.
type AnimationStopped struct {
	Completed bool
	Step      int
	At        time.Time
}

// Type returns the event type identifier for AnimationStopped.
func (AnimationStopped) Type() uint32 { return TypeAnimationStopped }

// SpawnCoalesced is published when a spawn was dropped because the task
// was already pending.
type SpawnCoalesced struct {
	Task string
	At   time.Time
}

// Type returns the event type identifier for SpawnCoalesced.
func (SpawnCoalesced) Type() uint32 { return TypeSpawnCoalesced }
