package main

import (
	"fmt"
	"io"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sweeney/oven-heater/internal/config"
	"github.com/sweeney/oven-heater/internal/door"
	"github.com/sweeney/oven-heater/internal/gpio"
	"github.com/sweeney/oven-heater/internal/status"
)

// printState samples the door once and writes it to w.
func printState(w io.Writer, line gpio.Line, cfg config.Config, clock clockwork.Clock, log zerolog.Logger, asJSON bool) error {
	state := door.NewMonitor(line, cfg.Settle(), log).State()

	if !asJSON {
		_, err := fmt.Fprintf(w, "door: %s\n", state)
		return err
	}

	snap := status.NewTracker(clock, statusConfig(cfg)).Snapshot()
	snap.Door = state
	snap.LastCheck = snap.Now
	_, err := fmt.Fprintf(w, "%s\n", status.FormatJSON(snap))
	return err
}
