package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jonboulle/clockwork"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog"

	"github.com/sweeney/oven-heater/internal/config"
	"github.com/sweeney/oven-heater/internal/gpio"
	"github.com/sweeney/oven-heater/internal/ledstrip"
	"github.com/sweeney/oven-heater/internal/oven"
	"github.com/sweeney/oven-heater/internal/status"
)

// notifier records service manager notifications.
type notifier struct {
	mu     sync.Mutex
	states []string
	ch     chan string
}

func newNotifier() *notifier {
	return &notifier{ch: make(chan string, 64)}
}

func (n *notifier) notify(s string) {
	n.mu.Lock()
	n.states = append(n.states, s)
	n.mu.Unlock()
	n.ch <- s
}

func (n *notifier) waitFor(t *testing.T, want string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case s := <-n.ch:
			if s == want {
				return
			}
		case <-timeout:
			t.Fatalf("no %q notification", want)
		}
	}
}

func testConfig(t *testing.T) config.Config {
	t.Helper()
	cfg, err := config.LoadFile("", false, nil)
	if err != nil {
		t.Fatalf("default config: %v", err)
	}
	dir := t.TempDir()
	cfg.StatusFile = filepath.Join(dir, "status.json")
	cfg.MetricsFile = filepath.Join(dir, "oven.prom")
	return cfg
}

func newTestApp(cfg config.Config, n *notifier) *app {
	return &app{
		cfg:    cfg,
		log:    zerolog.Nop(),
		clock:  clockwork.NewFakeClock(),
		notify: n.notify,
	}
}

func TestServeHeartbeatAndShutdown(t *testing.T) {
	cfg := testConfig(t)
	n := newNotifier()
	a := newTestApp(cfg, n)

	line := gpio.NewFakeLine(false)
	strip := ledstrip.NewFakeWriter()
	tick := make(chan time.Time)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- a.serve(ctx, line, strip, tick) }()

	n.waitFor(t, daemon.SdNotifyReady)

	tick <- time.Now()
	n.waitFor(t, daemon.SdNotifyWatchdog)

	data, err := os.ReadFile(cfg.StatusFile)
	if err != nil {
		t.Fatalf("status file: %v", err)
	}
	var parsed status.StatusJSON
	if err := jsoniter.Unmarshal(data, &parsed); err != nil {
		t.Fatalf("status JSON: %v", err)
	}
	if parsed.Status.Config.Chip != cfg.Chip {
		t.Errorf("status chip: got %q, want %q", parsed.Status.Config.Chip, cfg.Chip)
	}
	if parsed.Status.Heater.Enabled {
		t.Error("heater should be disabled with the door open")
	}

	prom, err := os.ReadFile(cfg.MetricsFile)
	if err != nil {
		t.Fatalf("metrics file: %v", err)
	}
	if !strings.Contains(string(prom), "oven_heater_frames_total") {
		t.Errorf("metrics file missing frame counter:\n%s", prom)
	}

	cancel()
	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("serve: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return")
	}
	n.waitFor(t, daemon.SdNotifyStopping)

	if strip.Count() == 0 {
		t.Error("startup frame was not written")
	}
}

func TestServeReturnsControllerFailure(t *testing.T) {
	n := newNotifier()
	a := newTestApp(testConfig(t), n)

	strip := ledstrip.NewFakeWriter()
	boom := errors.New("spi gone")
	strip.SetError(boom)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := a.serve(ctx, gpio.NewFakeLine(true), strip, nil)
	if !errors.Is(err, boom) {
		t.Fatalf("serve: got %v, want %v", err, boom)
	}
}

func TestApplyReload(t *testing.T) {
	cfg := testConfig(t)
	clock := clockwork.NewFakeClock()
	ctrl := oven.New(gpio.NewFakeLine(true), ledstrip.NewFakeWriter(),
		oven.Config{Settle: cfg.Settle(), Cadence: cfg.Cadence()}, oven.WithClock(clock))
	tracker := status.NewTracker(clock, statusConfig(cfg))

	next := cfg
	next.SettleMs = 40
	next.CadenceMs = 25
	next.Line = 22
	applyReload(cfg, ctrl, tracker, zerolog.Nop())(next)

	if got := ctrl.Settle(); got != 40*time.Millisecond {
		t.Errorf("settle: got %v, want 40ms", got)
	}
	if got := ctrl.Cadence(); got != 25*time.Millisecond {
		t.Errorf("cadence: got %v, want 25ms", got)
	}

	shown := tracker.Snapshot().Config
	if shown.SettleMs != 40 || shown.CadenceMs != 25 {
		t.Errorf("status config timing: got %+v", shown)
	}
	if shown.Line != cfg.Line {
		t.Errorf("status line: got %d, want %d until restart", shown.Line, cfg.Line)
	}
}

func TestPrintState(t *testing.T) {
	cfg := testConfig(t)
	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	tests := []struct {
		name string
		high bool
		want string
	}{
		{"closed", true, "door: CLOSED\n"},
		{"open", false, "door: OPEN\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := printState(&buf, gpio.NewFakeLine(tt.high), cfg, clock, zerolog.Nop(), false); err != nil {
				t.Fatalf("printState: %v", err)
			}
			if buf.String() != tt.want {
				t.Errorf("got %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestPrintStateReadFailure(t *testing.T) {
	line := gpio.NewFakeLine(false)
	line.SetReadError(errors.New("no chip"))

	var buf bytes.Buffer
	if err := printState(&buf, line, testConfig(t), clockwork.NewFakeClock(), zerolog.Nop(), false); err != nil {
		t.Fatalf("printState: %v", err)
	}
	if buf.String() != "door: CLOSED\n" {
		t.Errorf("got %q, want a failed read reported as closed", buf.String())
	}
}

func TestPrintStateJSON(t *testing.T) {
	cfg := testConfig(t)
	var buf bytes.Buffer
	if err := printState(&buf, gpio.NewFakeLine(false), cfg, clockwork.NewFakeClock(), zerolog.Nop(), true); err != nil {
		t.Fatalf("printState: %v", err)
	}

	var parsed status.StatusJSON
	if err := jsoniter.Unmarshal(buf.Bytes(), &parsed); err != nil {
		t.Fatalf("invalid JSON: %v\n%s", err, buf.String())
	}
	if parsed.Status.Door != "OPEN" {
		t.Errorf("door: got %q, want OPEN", parsed.Status.Door)
	}
	if parsed.Status.Config.SettleMs != int64(cfg.SettleMs) {
		t.Errorf("settle: got %d", parsed.Status.Config.SettleMs)
	}
}

func TestRootCommand(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"run", "state"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd.Name() != name {
			t.Errorf("subcommand %s not found: %v", name, err)
		}
	}
	for _, flag := range []string{"config", "board", "settle-ms", "cadence-ms", "status-file"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("missing flag --%s", flag)
		}
	}

	state, _, _ := root.Find([]string{"state"})
	if state.Flags().Lookup("json") == nil {
		t.Error("state: missing --json")
	}
}

func TestReloadSource(t *testing.T) {
	if rl := reloadSource("", false, nil); rl != nil {
		t.Error("no path should disable reload")
	}
	if rl := reloadSource(filepath.Join(t.TempDir(), "missing.toml"), false, nil); rl != nil {
		t.Error("missing file should disable reload")
	}

	path := filepath.Join(t.TempDir(), "oven-heater.toml")
	if err := os.WriteFile(path, []byte("[door]\nsettle_ms = 75\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	rl := reloadSource(path, true, nil)
	if rl == nil {
		t.Fatal("existing file should enable reload")
	}
	cfg, err := rl.load(rl.path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SettleMs != 75 {
		t.Errorf("SettleMs: got %d, want 75", cfg.SettleMs)
	}
}
