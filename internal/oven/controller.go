// Package oven wires the door monitor and the heater animation into a task
// graph:
//
//	door edge (interrupt) -> door check (after settle) -> animate (every cadence)
//
// The door line and the heater engine are shared resources. The door is
// locked by the interrupt and the check; the heater by the check and the
// animation. No task holds both at once.
package oven

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"

	"github.com/sweeney/oven-heater/internal/door"
	"github.com/sweeney/oven-heater/internal/events"
	"github.com/sweeney/oven-heater/internal/gpio"
	"github.com/sweeney/oven-heater/internal/heater"
	"github.com/sweeney/oven-heater/internal/ledstrip"
	"github.com/sweeney/oven-heater/internal/metrics"
	"github.com/sweeney/oven-heater/internal/sched"
)

// Task priorities. The door edge runs at the interrupt level.
const (
	prioAnimate sched.Priority = 1
	prioCheck   sched.Priority = 2
	prioEdge    sched.Priority = 3
)

// DefaultCadence is the delay between animation frames.
const DefaultCadence = 10 * time.Millisecond

// Config holds the controller's tunables.
type Config struct {
	Settle  time.Duration
	Cadence time.Duration
}

// Option configures a Controller.
type Option func(*options)

type options struct {
	clock   clockwork.Clock
	log     zerolog.Logger
	bus     *events.Bus
	metrics *metrics.Metrics
}

// WithClock sets the clock behind every delay.
func WithClock(c clockwork.Clock) Option {
	return func(o *options) { o.clock = c }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithBus publishes state changes to bus.
func WithBus(b *events.Bus) Option {
	return func(o *options) { o.bus = b }
}

// WithMetrics records counters into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Controller owns the dispatcher, the shared resources and the tasks.
type Controller struct {
	d      *sched.Dispatcher
	line   gpio.Line
	door   *sched.Resource[door.Monitor]
	heater *sched.Resource[heater.Engine]

	edge    *sched.Task
	check   *sched.Task
	animate *sched.Task

	// driving is true while the animation loop has a frame scheduled. Only
	// the animate task touches it.
	driving bool

	cadence atomic.Int64
	clock   clockwork.Clock
	log     zerolog.Logger
	bus     *events.Bus
	metrics *metrics.Metrics
}

// New builds the controller around the door line and the LED strip.
// Nothing runs until Start and Run are called.
func New(line gpio.Line, strip ledstrip.Writer, cfg Config, opts ...Option) *Controller {
	o := options{
		clock: clockwork.NewRealClock(),
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.metrics == nil {
		o.metrics = metrics.New()
	}

	d := sched.New(prioEdge,
		sched.WithClock(o.clock),
		sched.WithLogger(o.log.With().Str("component", "sched").Logger()),
	)

	c := &Controller{
		d:       d,
		line:    line,
		clock:   o.clock,
		log:     o.log,
		bus:     o.bus,
		metrics: o.metrics,
	}
	c.SetCadence(cfg.Cadence)

	mon := door.NewMonitor(line, cfg.Settle, o.log.With().Str("component", "door").Logger())
	c.door = sched.NewResource(d, "door", prioEdge, mon)
	c.heater = sched.NewResource(d, "heater", prioCheck, heater.NewEngine(strip))

	c.edge = d.BindInterrupt("door-edge", c.onEdge)
	c.check = d.NewTask("door-check", prioCheck, c.onCheck)
	c.animate = d.NewTask("animate", prioAnimate, c.onAnimate)
	return c
}

// Dispatcher returns the underlying dispatcher.
func (c *Controller) Dispatcher() *sched.Dispatcher {
	return c.d
}

// Start samples and reports the initial door state, hooks the line's edge
// handler to the interrupt task, and spawns one animation step so the strip
// is driven to a known frame. The heater starts disabled, so that frame is
// blank.
func (c *Controller) Start() error {
	state := c.DoorState()
	c.log.Info().Str("door", string(state)).Msg("init done")
	c.metrics.SetDoorClosed(state == door.Closed)
	events.Publish(c.bus, events.DoorChecked{State: state, At: c.clock.Now()})

	c.line.OnEdge(c.raise)

	if err := c.animate.Spawn(); err != nil {
		return fmt.Errorf("spawn %s: %w", c.animate.Name(), err)
	}
	return nil
}

// Run dispatches tasks until ctx is done or a fatal error halts the
// controller.
func (c *Controller) Run(ctx context.Context) error {
	return c.d.Run(ctx)
}

// SetSettle changes the debounce window for subsequent edges. It updates
// the monitor from outside the task graph under the resource mutex.
func (c *Controller) SetSettle(d time.Duration) {
	c.door.Read(func(m *door.Monitor) { m.SetSettle(d) })
}

// Settle returns the debounce window.
func (c *Controller) Settle() time.Duration {
	var d time.Duration
	c.door.Read(func(m *door.Monitor) { d = m.Settle() })
	return d
}

// SetCadence changes the frame delay for subsequent frames. Non-positive
// values fall back to DefaultCadence.
func (c *Controller) SetCadence(d time.Duration) {
	if d <= 0 {
		d = DefaultCadence
	}
	c.cadence.Store(int64(d))
}

// Cadence returns the frame delay.
func (c *Controller) Cadence() time.Duration {
	return time.Duration(c.cadence.Load())
}

// DoorState samples the door line from outside the task graph.
func (c *Controller) DoorState() door.State {
	var s door.State
	c.door.Read(func(m *door.Monitor) { s = m.State() })
	return s
}

// HeaterState reports the heater enable flag and step from outside the
// task graph.
func (c *Controller) HeaterState() (enabled bool, step int) {
	c.heater.Read(func(e *heater.Engine) {
		enabled = e.Enabled()
		step = e.Step()
	})
	return enabled, step
}

// raise is the line's edge handler. It only pends the interrupt task; an
// edge while the task is already pending folds into it.
func (c *Controller) raise() {
	switch err := c.edge.Pend(); {
	case err == nil:
	case errors.Is(err, sched.ErrAlreadyPending):
		c.log.Debug().Msg("door edge already pending")
	case errors.Is(err, sched.ErrStopped):
		c.log.Debug().Msg("door edge after stop, dropped")
	default:
		c.log.Warn().Err(err).Msg("door edge dropped")
	}
}

func (c *Controller) onEdge(tc *sched.Context) {
	c.metrics.Edges.Inc()

	var scheduled bool
	var err error
	c.door.Lock(tc, func(m *door.Monitor) {
		scheduled, err = m.OnEdge(c.check)
	})
	if err != nil {
		if !errors.Is(err, sched.ErrStopped) {
			tc.Fail(err)
		}
		return
	}
	if !scheduled {
		c.coalesced(c.check)
	}
}

func (c *Controller) onCheck(tc *sched.Context) {
	c.metrics.Checks.Inc()

	var state door.State
	c.door.Lock(tc, func(m *door.Monitor) {
		state = m.State()
	})

	closed := state == door.Closed
	c.heater.Lock(tc, func(e *heater.Engine) {
		e.Enable(closed)
	})

	c.log.Info().Str("door", string(state)).Msg("door state")
	c.metrics.SetDoorClosed(closed)
	c.metrics.SetHeaterEnabled(closed)
	now := c.clock.Now()
	events.Publish(c.bus, events.DoorChecked{State: state, At: now})
	events.Publish(c.bus, events.HeaterToggled{Enabled: closed, At: now})

	// Closed starts the drive loop. Open spawns it too so an idle strip is
	// blanked; an in-flight loop blanks on its own next frame.
	c.spawn(tc, c.animate)
}

func (c *Controller) onAnimate(tc *sched.Context) {
	var wasEnabled, done bool
	var step int
	var err error
	c.heater.Lock(tc, func(e *heater.Engine) {
		wasEnabled = e.Enabled()
		done, err = e.StepOnce()
		step = e.Step()
	})
	if err != nil {
		tc.Fail(fmt.Errorf("write frame: %w", err))
		return
	}
	c.metrics.Frames.Inc()

	if !done {
		c.driving = true
		c.spawnAfter(tc, c.animate, c.Cadence())
		return
	}

	wasDriving := c.driving
	c.driving = false
	c.metrics.SetHeaterEnabled(false)
	switch {
	case wasEnabled:
		c.stopped(true, step)
	case wasDriving:
		c.stopped(false, step)
	}
}

func (c *Controller) stopped(completed bool, step int) {
	c.metrics.RunStopped(completed)
	c.log.Info().Bool("completed", completed).Int("step", step).Msg("heater run stopped")
	events.Publish(c.bus, events.AnimationStopped{Completed: completed, Step: step, At: c.clock.Now()})
}

func (c *Controller) spawn(tc *sched.Context, t *sched.Task) {
	c.handleSpawn(tc, t, t.Spawn())
}

func (c *Controller) spawnAfter(tc *sched.Context, t *sched.Task, d time.Duration) {
	c.handleSpawn(tc, t, t.SpawnAfter(d))
}

// handleSpawn drops rejected duplicate spawns: the pending run produces the
// same effect. A spawn refused because the controller is shutting down ends
// the chain quietly. Any other failure halts the controller.
func (c *Controller) handleSpawn(tc *sched.Context, t *sched.Task, err error) {
	switch {
	case err == nil:
	case errors.Is(err, sched.ErrAlreadyPending):
		c.coalesced(t)
	case errors.Is(err, sched.ErrStopped):
		c.log.Debug().Str("task", t.Name()).Msg("spawn after stop, dropped")
	default:
		tc.Fail(fmt.Errorf("spawn %s: %w", t.Name(), err))
	}
}

func (c *Controller) coalesced(t *sched.Task) {
	c.metrics.Coalesced.WithLabelValues(t.Name()).Inc()
	c.log.Debug().Str("task", t.Name()).Msg("spawn coalesced")
	events.Publish(c.bus, events.SpawnCoalesced{Task: t.Name(), At: c.clock.Now()})
}
