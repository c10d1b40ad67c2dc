// Package status keeps a thread-safe view of the controller for the
// heartbeat, the status file and the state command.
package status

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/oven-heater/internal/door"
	"github.com/sweeney/oven-heater/internal/events"
)

// Config contains daemon configuration for display.
type Config struct {
	Board       string
	Chip        string
	Line        int
	SPIPort     string
	SettleMs    int64
	CadenceMs   int64
	HeartbeatMs int64
}

// Counts are totals since start.
type Counts struct {
	Checks    int
	Completed int
	Halted    int
	Coalesced int
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Door          door.State
	HeaterEnabled bool
	Step          int
	LastCheck     time.Time
	Counts        Counts
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	clock clockwork.Clock

	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker started now on clock.
func NewTracker(clock clockwork.Clock, cfg Config) *Tracker {
	return &Tracker{
		clock: clock,
		snap: Snapshot{
			StartTime: clock.Now(),
			Config:    cfg,
		},
	}
}

// Attach subscribes the tracker to bus and returns a function that
// unsubscribes it.
func (t *Tracker) Attach(bus *events.Bus) func() {
	cancels := []func(){
		events.Subscribe(bus, t.doorChecked),
		events.Subscribe(bus, t.heaterToggled),
		events.Subscribe(bus, t.animationStopped),
		events.Subscribe(bus, t.spawnCoalesced),
	}
	return func() {
		for _, cancel := range cancels {
			cancel()
		}
	}
}

func (t *Tracker) doorChecked(ev events.DoorChecked) {
	t.mu.Lock()
	t.snap.Door = ev.State
	t.snap.LastCheck = ev.At
	t.mu.Unlock()
}

// heaterToggled counts checks: every check publishes exactly one toggle.
func (t *Tracker) heaterToggled(ev events.HeaterToggled) {
	t.mu.Lock()
	t.snap.HeaterEnabled = ev.Enabled
	t.snap.Counts.Checks++
	t.mu.Unlock()
}

func (t *Tracker) animationStopped(ev events.AnimationStopped) {
	t.mu.Lock()
	t.snap.HeaterEnabled = false
	t.snap.Step = ev.Step
	if ev.Completed {
		t.snap.Counts.Completed++
	} else {
		t.snap.Counts.Halted++
	}
	t.mu.Unlock()
}

func (t *Tracker) spawnCoalesced(events.SpawnCoalesced) {
	t.mu.Lock()
	t.snap.Counts.Coalesced++
	t.mu.Unlock()
}

// SetHeater records the heater state sampled from the controller.
func (t *Tracker) SetHeater(enabled bool, step int) {
	t.mu.Lock()
	t.snap.HeaterEnabled = enabled
	t.snap.Step = step
	t.mu.Unlock()
}

// SetConfig replaces the displayed config after a reload.
func (t *Tracker) SetConfig(cfg Config) {
	t.mu.Lock()
	t.snap.Config = cfg
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the clock's time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	t.mu.RUnlock()
	s.Now = t.clock.Now()
	return s
}
