package status

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/sweeney/oven-heater/internal/door"
	"github.com/sweeney/oven-heater/internal/events"
)

var epoch = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func TestNewTracker(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	cfg := Config{Board: "pi4", SettleMs: 100, CadenceMs: 10}
	tr := NewTracker(clock, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(epoch) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, epoch)
	}
	if snap.Config.SettleMs != 100 {
		t.Errorf("Config.SettleMs: got %d, want 100", snap.Config.SettleMs)
	}
	if snap.Door != "" {
		t.Errorf("Door: got %q, want empty before the first sample", snap.Door)
	}
	if snap.HeaterEnabled {
		t.Error("expected HeaterEnabled=false initially")
	}
}

func TestEventHandlers(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClockAt(epoch), Config{})

	at := epoch.Add(time.Second)
	tr.doorChecked(events.DoorChecked{State: door.Closed, At: at})
	tr.heaterToggled(events.HeaterToggled{Enabled: true, At: at})
	tr.spawnCoalesced(events.SpawnCoalesced{Task: "door-check"})
	tr.spawnCoalesced(events.SpawnCoalesced{Task: "door-check"})

	snap := tr.Snapshot()
	if snap.Door != door.Closed {
		t.Errorf("Door: got %q, want CLOSED", snap.Door)
	}
	if !snap.LastCheck.Equal(at) {
		t.Errorf("LastCheck: got %v, want %v", snap.LastCheck, at)
	}
	if !snap.HeaterEnabled {
		t.Error("expected HeaterEnabled=true")
	}
	if snap.Counts.Checks != 1 {
		t.Errorf("Checks: got %d, want 1", snap.Counts.Checks)
	}
	if snap.Counts.Coalesced != 2 {
		t.Errorf("Coalesced: got %d, want 2", snap.Counts.Coalesced)
	}

	tests := []struct {
		name          string
		ev            events.AnimationStopped
		wantCompleted int
		wantHalted    int
	}{
		{"completed", events.AnimationStopped{Completed: true, Step: 0}, 1, 0},
		{"halted", events.AnimationStopped{Completed: false, Step: 37}, 1, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr.animationStopped(tt.ev)
			snap := tr.Snapshot()
			if snap.HeaterEnabled {
				t.Error("heater should read disabled after a stop")
			}
			if snap.Step != tt.ev.Step {
				t.Errorf("Step: got %d, want %d", snap.Step, tt.ev.Step)
			}
			if snap.Counts.Completed != tt.wantCompleted || snap.Counts.Halted != tt.wantHalted {
				t.Errorf("counts: got completed=%d halted=%d, want %d/%d",
					snap.Counts.Completed, snap.Counts.Halted, tt.wantCompleted, tt.wantHalted)
			}
		})
	}
}

func TestAttach(t *testing.T) {
	bus := events.New()
	defer bus.Close()

	tr := NewTracker(clockwork.NewFakeClockAt(epoch), Config{})
	detach := tr.Attach(bus)

	events.Publish(bus, events.DoorChecked{State: door.Open, At: epoch})

	deadline := time.Now().Add(2 * time.Second)
	for tr.Snapshot().Door != door.Open {
		if time.Now().After(deadline) {
			t.Fatal("door event not delivered")
		}
		time.Sleep(time.Millisecond)
	}

	detach()
	events.Publish(bus, events.DoorChecked{State: door.Closed, At: epoch})
	time.Sleep(20 * time.Millisecond)
	if got := tr.Snapshot().Door; got != door.Open {
		t.Errorf("Door after detach: got %q, want OPEN", got)
	}
}

func TestSetHeaterAndConfig(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClockAt(epoch), Config{SettleMs: 100})

	tr.SetHeater(true, 512)
	tr.SetConfig(Config{SettleMs: 50})

	snap := tr.Snapshot()
	if !snap.HeaterEnabled || snap.Step != 512 {
		t.Errorf("heater: got enabled=%v step=%d", snap.HeaterEnabled, snap.Step)
	}
	if snap.Config.SettleMs != 50 {
		t.Errorf("SettleMs: got %d, want 50", snap.Config.SettleMs)
	}
}

func TestSnapshotUptime(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	tr := NewTracker(clock, Config{})
	clock.Advance(15 * time.Minute)

	if got := tr.Snapshot().Uptime(); got != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", got)
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClockAt(epoch), Config{})
	tr.SetHeater(true, 10)

	snap1 := tr.Snapshot()
	tr.SetHeater(false, 20)

	if !snap1.HeaterEnabled || snap1.Step != 10 {
		t.Error("snapshot should be a copy")
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(clockwork.NewFakeClockAt(epoch), Config{})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tr.SetHeater(i%2 == 0, i)
			tr.heaterToggled(events.HeaterToggled{Enabled: true})
		}(i)
		go func() {
			defer wg.Done()
			_ = tr.Snapshot()
		}()
	}
	wg.Wait()

	if got := tr.Snapshot().Counts.Checks; got != 10 {
		t.Errorf("Checks: got %d, want 10", got)
	}
}

func TestFormatJSON(t *testing.T) {
	snap := Snapshot{
		Door:          door.Closed,
		HeaterEnabled: true,
		Step:          300,
		LastCheck:     epoch.Add(time.Minute),
		Counts:        Counts{Checks: 5, Completed: 2, Halted: 1, Coalesced: 7},
		StartTime:     epoch,
		Now:           epoch.Add(15 * time.Minute),
		Config:        Config{Board: "pi5", Chip: "gpiochip4", Line: 17, SPIPort: "/dev/spidev0.0", SettleMs: 100, CadenceMs: 10, HeartbeatMs: 60000},
	}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}

	s := parsed.Status
	if s.Door != "CLOSED" {
		t.Errorf("Door: got %q, want CLOSED", s.Door)
	}
	if !s.Heater.Enabled || s.Heater.Step != 300 {
		t.Errorf("Heater: got %+v", s.Heater)
	}
	if s.UptimeSeconds != 900 {
		t.Errorf("UptimeSeconds: got %d, want 900", s.UptimeSeconds)
	}
	if s.LastCheck != "2026-01-01T00:01:00Z" {
		t.Errorf("LastCheck: got %q", s.LastCheck)
	}
	if s.Counts.Completed != 2 || s.Counts.Halted != 1 || s.Counts.Coalesced != 7 {
		t.Errorf("Counts: got %+v", s.Counts)
	}
	if s.Config.Chip != "gpiochip4" || s.Config.SettleMs != 100 {
		t.Errorf("Config: got %+v", s.Config)
	}
}

func TestFormatJSONUnknownDoor(t *testing.T) {
	snap := Snapshot{StartTime: epoch, Now: epoch.Add(time.Second)}

	var parsed StatusJSON
	if err := json.Unmarshal(FormatJSON(snap), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Door != "UNKNOWN" {
		t.Errorf("Door: got %q, want UNKNOWN", parsed.Status.Door)
	}
	if parsed.Status.LastCheck != "" {
		t.Errorf("LastCheck should be omitted, got %q", parsed.Status.LastCheck)
	}
}

func TestWriteFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	snap := Snapshot{Door: door.Open, StartTime: epoch, Now: epoch}

	if err := WriteFile(path, snap); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if parsed.Status.Door != "OPEN" {
		t.Errorf("Door: got %q, want OPEN", parsed.Status.Door)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temporary file left behind: %d entries", len(entries))
	}
}

func TestWriteFileReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "status.json")
	if err := os.WriteFile(path, []byte("stale"), 0o600); err != nil {
		t.Fatal(err)
	}

	if err := WriteFile(path, Snapshot{Door: door.Closed, StartTime: epoch, Now: epoch}); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var parsed StatusJSON
	if err := json.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("old content not replaced: %v: %q", err, data)
	}
	if parsed.Status.Door != "CLOSED" {
		t.Errorf("Door: got %q, want CLOSED", parsed.Status.Door)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 1 {
		t.Errorf("temporary file left behind: %d entries", len(entries))
	}
}

func TestWriteFileMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "status.json")
	if err := WriteFile(path, Snapshot{}); err == nil {
		t.Error("expected error for missing directory")
	}
}
