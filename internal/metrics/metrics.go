// Package metrics exposes controller counters in Prometheus format. The
// daemon writes them to a node_exporter textfile; nothing listens on the
// network.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "oven"

// Metrics holds the controller's collectors on a private registry.
type Metrics struct {
	Registry *prometheus.Registry

	Edges         prometheus.Counter
	Checks        prometheus.Counter
	Coalesced     *prometheus.CounterVec
	Frames        prometheus.Counter
	Runs          *prometheus.CounterVec
	DoorClosed    prometheus.Gauge
	HeaterEnabled prometheus.Gauge
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		Edges: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "door_edges_total",
			Help:      "Edge interrupts seen on the door line.",
		}),
		Checks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "door_checks_total",
			Help:      "Debounced door checks executed.",
		}),
		Coalesced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spawns_coalesced_total",
			Help:      "Spawn requests dropped because the task was already pending.",
		}, []string{"task"}),
		Frames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heater_frames_total",
			Help:      "Frames written to the LED strip.",
		}),
		Runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "heater_runs_total",
			Help:      "Animation drive loops that stopped, by result.",
		}, []string{"result"}),
		DoorClosed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "door_closed",
			Help:      "1 if the last door sample was closed.",
		}),
		HeaterEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "heater_enabled",
			Help:      "1 if the heater animation is enabled.",
		}),
	}
	m.Registry.MustRegister(
		m.Edges,
		m.Checks,
		m.Coalesced,
		m.Frames,
		m.Runs,
		m.DoorClosed,
		m.HeaterEnabled,
	)
	return m
}

// Run results.
const (
	ResultCompleted = "completed"
	ResultHalted    = "halted"
)

// RunStopped counts a drive loop that stopped.
func (m *Metrics) RunStopped(completed bool) {
	if completed {
		m.Runs.WithLabelValues(ResultCompleted).Inc()
		return
	}
	m.Runs.WithLabelValues(ResultHalted).Inc()
}

// SetDoorClosed records the last door sample.
func (m *Metrics) SetDoorClosed(closed bool) {
	m.DoorClosed.Set(boolToFloat(closed))
}

// SetHeaterEnabled records the heater enable flag.
func (m *Metrics) SetHeaterEnabled(on bool) {
	m.HeaterEnabled.Set(boolToFloat(on))
}

// WriteTextfile writes every metric to path in the text exposition format.
// The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.Registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
