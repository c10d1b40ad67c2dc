package main

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sweeney/oven-heater/internal/config"
	"github.com/sweeney/oven-heater/internal/events"
	"github.com/sweeney/oven-heater/internal/gpio"
	"github.com/sweeney/oven-heater/internal/ledstrip"
	"github.com/sweeney/oven-heater/internal/logger"
	"github.com/sweeney/oven-heater/internal/metrics"
	"github.com/sweeney/oven-heater/internal/oven"
	"github.com/sweeney/oven-heater/internal/status"
)

// reloader names the config file to watch and how to load it.
type reloader struct {
	path string
	load func(path string) (config.Config, error)
}

// app is everything serve needs besides the hardware.
type app struct {
	cfg    config.Config
	log    zerolog.Logger
	clock  clockwork.Clock
	reload *reloader
	notify func(state string)
}

func sdNotify(state string) {
	// Outside systemd there is no socket and SdNotify reports false, nil.
	daemon.SdNotify(false, state)
}

// serve runs the controller on line and strip until ctx is done or the
// controller halts, beating the heartbeat on every tick.
func (a *app) serve(ctx context.Context, line gpio.Line, strip ledstrip.Writer, tick <-chan time.Time) error {
	bus := events.New()
	defer bus.Close()

	m := metrics.New()
	ctrl := oven.New(line, strip,
		oven.Config{Settle: a.cfg.Settle(), Cadence: a.cfg.Cadence()},
		oven.WithClock(a.clock),
		oven.WithLogger(logger.Component(a.log, "oven")),
		oven.WithBus(bus),
		oven.WithMetrics(m),
	)

	tracker := status.NewTracker(a.clock, statusConfig(a.cfg))
	detach := tracker.Attach(bus)
	defer detach()

	if a.reload != nil {
		w := config.NewWatcher(a.reload.path, a.reload.load, logger.Component(a.log, "config"))
		w.OnReload(applyReload(a.cfg, ctrl, tracker, a.log))
		if err := w.Start(ctx); err != nil {
			a.log.Warn().Err(err).Msg("config reload disabled")
		} else {
			defer w.Stop()
		}
	}

	if err := ctrl.Start(); err != nil {
		return fmt.Errorf("start controller: %w", err)
	}

	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	a.log.Info().
		Str("board", a.cfg.Board).
		Str("chip", a.cfg.Chip).
		Int("line", a.cfg.Line).
		Str("spi", a.cfg.SPIPort).
		Dur("settle", a.cfg.Settle()).
		Dur("cadence", a.cfg.Cadence()).
		Dur("heartbeat", a.cfg.Heartbeat()).
		Msg("started")
	a.notify(daemon.SdNotifyReady)

	hb := &heartbeat{
		ctrl:        ctrl,
		tracker:     tracker,
		metrics:     m,
		statusFile:  a.cfg.StatusFile,
		metricsFile: a.cfg.MetricsFile,
		notify:      a.notify,
		log:         a.log,
	}
	err := runLoop(ctx, hb, tick, done, a.log)
	a.notify(daemon.SdNotifyStopping)
	return err
}

func runLoop(ctx context.Context, hb *heartbeat, tick <-chan time.Time, done <-chan error, log zerolog.Logger) error {
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			err := <-done
			hb.beat()
			return err

		case err := <-done:
			if err != nil {
				log.Error().Err(err).Msg("controller halted")
				return err
			}
			return nil

		case <-tick:
			hb.beat()
		}
	}
}

// heartbeat refreshes the tracker, logs a summary, rewrites the status and
// metrics files and pings the service watchdog.
type heartbeat struct {
	ctrl        *oven.Controller
	tracker     *status.Tracker
	metrics     *metrics.Metrics
	statusFile  string
	metricsFile string
	notify      func(string)
	log         zerolog.Logger
}

func (h *heartbeat) beat() {
	enabled, step := h.ctrl.HeaterState()
	h.tracker.SetHeater(enabled, step)
	snap := h.tracker.Snapshot()

	h.log.Info().
		Str("door", string(snap.Door)).
		Bool("heater", enabled).
		Int("step", step).
		Dur("uptime", snap.Uptime().Truncate(time.Second)).
		Int("checks", snap.Counts.Checks).
		Int("completed", snap.Counts.Completed).
		Int("halted", snap.Counts.Halted).
		Int("coalesced", snap.Counts.Coalesced).
		Msg("heartbeat")

	if h.statusFile != "" {
		if err := status.WriteFile(h.statusFile, snap); err != nil {
			h.log.Warn().Err(err).Msg("status file")
		}
	}
	if h.metricsFile != "" {
		if err := h.metrics.WriteTextfile(h.metricsFile); err != nil {
			h.log.Warn().Err(err).Msg("metrics file")
		}
	}
	h.notify(daemon.SdNotifyWatchdog)
}

// applyReload returns the handler for config file changes. Only the timing
// fields apply live; wiring changes need a restart.
func applyReload(current config.Config, ctrl *oven.Controller, tracker *status.Tracker, log zerolog.Logger) func(config.Config) {
	return func(next config.Config) {
		if next.Chip != current.Chip || next.Line != current.Line || next.SPIPort != current.SPIPort || next.SPIHz != current.SPIHz {
			log.Warn().Msg("hardware settings changed, restart to apply")
		}
		ctrl.SetSettle(next.Settle())
		ctrl.SetCadence(next.Cadence())

		applied := current
		applied.SettleMs = next.SettleMs
		applied.CadenceMs = next.CadenceMs
		tracker.SetConfig(statusConfig(applied))

		log.Info().Dur("settle", next.Settle()).Dur("cadence", next.Cadence()).Msg("timing updated")
	}
}

func statusConfig(cfg config.Config) status.Config {
	return status.Config{
		Board:       cfg.Board,
		Chip:        cfg.Chip,
		Line:        cfg.Line,
		SPIPort:     cfg.SPIPort,
		SettleMs:    int64(cfg.SettleMs),
		CadenceMs:   int64(cfg.CadenceMs),
		HeartbeatMs: int64(cfg.HeartbeatMs),
	}
}
