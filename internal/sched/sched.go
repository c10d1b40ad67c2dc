// Package sched is a small fixed-priority, run-to-completion task dispatcher.
//
// Tasks are registered up front with a priority and a capacity-1 spawn slot.
// Interrupt-bound tasks sit at the top priority. State shared between tasks
// lives in a Resource whose ceiling is the highest priority of any task that
// touches it; while a resource is held, no task at or below its ceiling is
// started, so a started task never waits behind a lower-priority lock holder.
package sched

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
)

// Priority orders tasks. Higher runs first. Zero is the idle level.
type Priority uint8

var (
	// ErrAlreadyPending is returned when a task's single spawn slot is taken.
	ErrAlreadyPending = errors.New("sched: task already pending")
	// ErrQueueFull is returned when a priority level's ready queue is at capacity.
	ErrQueueFull = errors.New("sched: ready queue full")
	// ErrStopped is returned by spawns after the dispatcher has halted.
	ErrStopped = errors.New("sched: dispatcher stopped")
)

const defaultQueueCapacity = 4

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithClock sets the clock used for delayed spawns. Defaults to the real clock.
func WithClock(c clockwork.Clock) Option {
	return func(d *Dispatcher) { d.clock = c }
}

// WithLogger sets the dispatcher logger.
func WithLogger(l zerolog.Logger) Option {
	return func(d *Dispatcher) { d.log = l }
}

// WithQueueCapacity sets the ready queue capacity of every priority level.
func WithQueueCapacity(n int) Option {
	return func(d *Dispatcher) { d.qcap = n }
}

// Dispatcher starts ready tasks in priority order.
type Dispatcher struct {
	clock clockwork.Clock
	log   zerolog.Logger
	top   Priority
	qcap  int

	mu       sync.Mutex
	cond     *sync.Cond
	tasks    []*Task
	ready    [][]*Task
	running  []Priority
	ceilings []Priority
	due      map[*Task]time.Time
	started  bool
	stopped  bool
	err      error
}

// New creates a dispatcher whose interrupt level is top. Software tasks use
// priorities 1 through top-1.
func New(top Priority, opts ...Option) *Dispatcher {
	if top < 2 {
		panic("sched: top priority must be at least 2")
	}
	d := &Dispatcher{
		clock: clockwork.NewRealClock(),
		log:   zerolog.Nop(),
		top:   top,
		qcap:  defaultQueueCapacity,
		ready: make([][]*Task, int(top)+1),
		due:   make(map[*Task]time.Time),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Top returns the interrupt priority level.
func (d *Dispatcher) Top() Priority {
	return d.top
}

// Clock returns the dispatcher clock.
func (d *Dispatcher) Clock() clockwork.Clock {
	return d.clock
}

// NewTask registers a software task. It panics if called after Run or with
// a priority outside 1..top-1.
func (d *Dispatcher) NewTask(name string, prio Priority, fn TaskFunc) *Task {
	if prio == 0 || prio >= d.top {
		panic(fmt.Sprintf("sched: task %s: priority %d outside 1..%d", name, prio, d.top-1))
	}
	return d.register(name, prio, fn)
}

// BindInterrupt registers a task at the interrupt level. Hardware event
// sources trigger it with Pend.
func (d *Dispatcher) BindInterrupt(name string, fn TaskFunc) *Task {
	return d.register(name, d.top, fn)
}

func (d *Dispatcher) register(name string, prio Priority, fn TaskFunc) *Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.started {
		panic(fmt.Sprintf("sched: task %s registered after start", name))
	}
	t := &Task{d: d, name: name, prio: prio, fn: fn}
	d.tasks = append(d.tasks, t)
	return t
}

// Run dispatches tasks until ctx is done, Stop is called or a task fails.
// It waits for running tasks to return and reports the failure, if any.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return errors.New("sched: already running")
	}
	d.started = true
	d.mu.Unlock()

	stop := context.AfterFunc(ctx, d.Stop)
	defer stop()

	d.mu.Lock()
	defer d.mu.Unlock()
	for {
		var t *Task
		for !d.stopped {
			if t = d.nextLocked(); t != nil {
				break
			}
			d.cond.Wait()
		}
		if d.stopped {
			for len(d.running) > 0 {
				d.cond.Wait()
			}
			return d.err
		}
		d.startLocked(t)
	}
}

// Stop halts dispatching. Running tasks finish; ready tasks are discarded.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.cond.Broadcast()
	d.mu.Unlock()
}

// Fail halts the dispatcher with err. Run returns the first failure.
func (d *Dispatcher) Fail(err error) {
	d.mu.Lock()
	d.failLocked(err)
	d.mu.Unlock()
}

// Err returns the failure that halted the dispatcher, if any.
func (d *Dispatcher) Err() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// Stopped reports whether the dispatcher has stopped, by Stop, context
// cancellation or failure.
func (d *Dispatcher) Stopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

// Quiesce blocks until no task is ready, running or due on the clock.
func (d *Dispatcher) Quiesce(ctx context.Context) error {
	stop := context.AfterFunc(ctx, func() {
		d.mu.Lock()
		d.cond.Broadcast()
		d.mu.Unlock()
	})
	defer stop()

	for {
		// Read the clock outside d.mu; timer callbacks take d.mu.
		now := d.clock.Now()
		d.mu.Lock()
		if d.idleLocked(now) {
			d.mu.Unlock()
			return nil
		}
		if err := ctx.Err(); err != nil {
			d.mu.Unlock()
			return err
		}
		d.cond.Wait()
		d.mu.Unlock()
	}
}

func (d *Dispatcher) idleLocked(now time.Time) bool {
	if len(d.running) > 0 {
		return false
	}
	if !d.stopped {
		for _, q := range d.ready {
			if len(q) > 0 {
				return false
			}
		}
	}
	for _, at := range d.due {
		if !at.After(now) {
			return false
		}
	}
	return true
}

// currentLocked is the priority a ready task must exceed to start.
func (d *Dispatcher) currentLocked() Priority {
	var cur Priority
	for _, p := range d.running {
		cur = max(cur, p)
	}
	for _, p := range d.ceilings {
		cur = max(cur, p)
	}
	return cur
}

func (d *Dispatcher) preemptedLocked(p Priority) bool {
	for _, r := range d.running {
		if r > p {
			return true
		}
	}
	return false
}

func (d *Dispatcher) nextLocked() *Task {
	floor := d.currentLocked()
	for p := int(d.top); p > int(floor); p-- {
		q := d.ready[p]
		if len(q) == 0 {
			continue
		}
		t := q[0]
		copy(q, q[1:])
		d.ready[p] = q[:len(q)-1]
		return t
	}
	return nil
}

func (d *Dispatcher) startLocked(t *Task) {
	// The slot frees on dispatch so a task may re-spawn itself.
	t.pending = false
	t.runs++
	d.running = append(d.running, t.prio)
	go d.execute(t)
}

func (d *Dispatcher) execute(t *Task) {
	defer func() {
		r := recover()
		d.mu.Lock()
		d.running = removePriority(d.running, t.prio)
		if r != nil {
			d.failLocked(fmt.Errorf("task %s panicked: %v", t.name, r))
		}
		d.cond.Broadcast()
		d.mu.Unlock()
	}()
	t.fn(&Context{task: t})
}

func (d *Dispatcher) claimLocked(t *Task) error {
	if d.stopped {
		return ErrStopped
	}
	if t.pending {
		return ErrAlreadyPending
	}
	return nil
}

func (d *Dispatcher) enqueueLocked(t *Task) error {
	q := d.ready[t.prio]
	if len(q) >= d.qcap {
		return ErrQueueFull
	}
	d.ready[t.prio] = append(q, t)
	d.cond.Broadcast()
	return nil
}

func (d *Dispatcher) spawn(t *Task) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.claimLocked(t); err != nil {
		return err
	}
	if err := d.enqueueLocked(t); err != nil {
		return err
	}
	t.pending = true
	return nil
}

func (d *Dispatcher) spawnAfter(t *Task, after time.Duration) error {
	if after <= 0 {
		return d.spawn(t)
	}
	at := d.clock.Now().Add(after)
	d.mu.Lock()
	if err := d.claimLocked(t); err != nil {
		d.mu.Unlock()
		return err
	}
	t.pending = true
	d.due[t] = at
	d.mu.Unlock()

	d.clock.AfterFunc(after, func() { d.fire(t) })
	return nil
}

func (d *Dispatcher) fire(t *Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.due, t)
	if d.stopped {
		t.pending = false
		d.cond.Broadcast()
		return
	}
	if err := d.enqueueLocked(t); err != nil {
		t.pending = false
		d.failLocked(fmt.Errorf("spawn %s: %w", t.name, err))
	}
}

func (d *Dispatcher) failLocked(err error) {
	if d.err == nil {
		d.err = err
		d.log.Error().Err(err).Msg("dispatcher halted")
	}
	d.stopped = true
	d.cond.Broadcast()
}

func removePriority(s []Priority, p Priority) []Priority {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == p {
			return append(s[:i], s[i+1:]...)
		}
	}
	return s
}
