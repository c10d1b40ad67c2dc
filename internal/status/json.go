package status

import (
	"fmt"
	"time"

	"github.com/google/renameio/v2"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Door          string     `json:"door"`
	Heater        HeaterJSON `json:"heater"`
	UptimeSeconds int64      `json:"uptime_seconds"`
	StartTime     string     `json:"start_time"`
	Timestamp     string     `json:"timestamp"`
	LastCheck     string     `json:"last_check,omitempty"`
	Counts        CountsJSON `json:"counts"`
	Config        ConfigJSON `json:"config"`
}

// HeaterJSON reports the animation state.
type HeaterJSON struct {
	Enabled bool `json:"enabled"`
	Step    int  `json:"step"`
}

// CountsJSON is the JSON representation of Counts.
type CountsJSON struct {
	Checks    int `json:"checks"`
	Completed int `json:"cycles_completed"`
	Halted    int `json:"cycles_halted"`
	Coalesced int `json:"spawns_coalesced"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	Board       string `json:"board"`
	Chip        string `json:"chip"`
	Line        int    `json:"line"`
	SPIPort     string `json:"spi_port"`
	SettleMs    int64  `json:"settle_ms"`
	CadenceMs   int64  `json:"cadence_ms"`
	HeartbeatMs int64  `json:"heartbeat_ms"`
}

func buildInner(snap Snapshot) StatusInner {
	doorState := string(snap.Door)
	if doorState == "" {
		doorState = "UNKNOWN"
	}

	inner := StatusInner{
		Door:          doorState,
		Heater:        HeaterJSON{Enabled: snap.HeaterEnabled, Step: snap.Step},
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Counts: CountsJSON{
			Checks:    snap.Counts.Checks,
			Completed: snap.Counts.Completed,
			Halted:    snap.Counts.Halted,
			Coalesced: snap.Counts.Coalesced,
		},
		Config: ConfigJSON{
			Board:       snap.Config.Board,
			Chip:        snap.Config.Chip,
			Line:        snap.Config.Line,
			SPIPort:     snap.Config.SPIPort,
			SettleMs:    snap.Config.SettleMs,
			CadenceMs:   snap.Config.CadenceMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
		},
	}
	if !snap.LastCheck.IsZero() {
		inner.LastCheck = snap.LastCheck.UTC().Format(time.RFC3339)
	}
	return inner
}

// FormatJSON returns the indented JSON status.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// WriteFile writes the JSON status to path through a temporary file in the
// same directory, so readers never see a partial file.
func WriteFile(path string, snap Snapshot) error {
	if err := renameio.WriteFile(path, append(FormatJSON(snap), '\n'), 0o644); err != nil {
		return fmt.Errorf("write status: %w", err)
	}
	return nil
}
