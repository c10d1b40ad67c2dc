// Package door turns the oven door reed switch into a debounced door state.
//
// An edge on the line clears the pending flag and asks for one delayed
// re-check. While a check is pending, further edges are absorbed: the check
// samples the line when it runs, not when the edge arrived.
package door

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/oven-heater/internal/gpio"
	"github.com/sweeney/oven-heater/internal/sched"
)

// State is the logical door state.
type State string

const (
	Open   State = "OPEN"
	Closed State = "CLOSED"
)

// DefaultSettle is the debounce window between an edge and the re-check.
const DefaultSettle = 100 * time.Millisecond

// Spawner requests a delayed task run. *sched.Task implements it.
type Spawner interface {
	SpawnAfter(d time.Duration) error
}

// Monitor owns the door line.
type Monitor struct {
	line   gpio.Line
	settle atomic.Int64
	log    zerolog.Logger
}

// NewMonitor creates a Monitor with the given settle window.
func NewMonitor(line gpio.Line, settle time.Duration, log zerolog.Logger) *Monitor {
	m := &Monitor{line: line, log: log}
	m.SetSettle(settle)
	return m
}

// Line returns the underlying input line.
func (m *Monitor) Line() gpio.Line {
	return m.line
}

// Settle returns the current debounce window.
func (m *Monitor) Settle() time.Duration {
	return time.Duration(m.settle.Load())
}

// SetSettle changes the debounce window for subsequent edges. Non-positive
// values fall back to DefaultSettle.
func (m *Monitor) SetSettle(d time.Duration) {
	if d <= 0 {
		d = DefaultSettle
	}
	m.settle.Store(int64(d))
}

// State samples the line now. High means closed: the switch input is pulled
// up, so an unconnected switch reads closed. A failed read is also treated
// as closed.
func (m *Monitor) State() State {
	high, err := m.line.Level()
	if err != nil {
		m.log.Warn().Err(err).Msg("door read failed, assuming closed")
		return Closed
	}
	if high {
		return Closed
	}
	return Open
}

// OnEdge handles an edge interrupt: it clears the pending flag and requests
// the debounced check after the settle window. It reports whether a check
// was scheduled; a request while one is pending is dropped, which is not an
// error. sched.ErrStopped is returned as is so the caller can wind down
// quietly. Any other spawn failure is wrapped and returned.
func (m *Monitor) OnEdge(check Spawner) (bool, error) {
	m.line.ClearPending()

	err := check.SpawnAfter(m.Settle())
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, sched.ErrAlreadyPending):
		m.log.Debug().Msg("door check already pending, edge absorbed")
		return false, nil
	case errors.Is(err, sched.ErrStopped):
		m.log.Debug().Msg("shutting down, edge dropped")
		return false, err
	default:
		return false, fmt.Errorf("schedule door check: %w", err)
	}
}
