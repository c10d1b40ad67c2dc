package sched

import (
	"fmt"
	"sync"
	"time"
)

// TaskFunc is a task body. It runs to completion; waiting is expressed by
// spawning a task for later, never by sleeping.
type TaskFunc func(tc *Context)

// Task is a registered unit of work with a single spawn slot.
type Task struct {
	d    *Dispatcher
	name string
	prio Priority
	fn   TaskFunc

	// guarded by d.mu
	pending bool
	runs    uint64
}

// Name returns the task name.
func (t *Task) Name() string { return t.name }

// Priority returns the task priority.
func (t *Task) Priority() Priority { return t.prio }

// Spawn makes the task ready now. It returns ErrAlreadyPending if the task
// is already ready or armed.
func (t *Task) Spawn() error {
	return t.d.spawn(t)
}

// SpawnAfter makes the task ready once after elapses on the dispatcher clock.
// A second request while one is pending is rejected, not queued.
func (t *Task) SpawnAfter(after time.Duration) error {
	return t.d.spawnAfter(t, after)
}

// Pend raises an interrupt-bound task. It returns ErrAlreadyPending when the
// task was already pending, like a hardware pending bit that is already set,
// and ErrStopped once the dispatcher has stopped.
func (t *Task) Pend() error {
	return t.d.spawn(t)
}

// Pending reports whether the task's slot is occupied.
func (t *Task) Pending() bool {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	return t.pending
}

// Runs returns how many times the task has been dispatched.
func (t *Task) Runs() uint64 {
	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	return t.runs
}

// Context is handed to a running task body.
type Context struct {
	task *Task
}

// Task returns the running task.
func (c *Context) Task() *Task { return c.task }

// Priority returns the running task's priority.
func (c *Context) Priority() Priority { return c.task.prio }

// Fail halts the dispatcher with err.
func (c *Context) Fail(err error) {
	c.task.d.Fail(fmt.Errorf("%s: %w", c.task.name, err))
}

// Resource is state shared between tasks, guarded by an immediate priority
// ceiling. The ceiling must be at least the priority of every task that
// locks it.
type Resource[T any] struct {
	d       *Dispatcher
	name    string
	ceiling Priority
	mu      sync.Mutex
	v       *T
}

// NewResource wraps v. Tasks reach it only through Lock.
func NewResource[T any](d *Dispatcher, name string, ceiling Priority, v *T) *Resource[T] {
	if ceiling == 0 || ceiling > d.top {
		panic(fmt.Sprintf("sched: resource %s: ceiling %d outside 1..%d", name, ceiling, d.top))
	}
	return &Resource[T]{d: d, name: name, ceiling: ceiling, v: v}
}

// Name returns the resource name.
func (r *Resource[T]) Name() string { return r.name }

// Ceiling returns the resource ceiling.
func (r *Resource[T]) Ceiling() Priority { return r.ceiling }

// Lock runs fn with exclusive access to the value. While fn runs, tasks at
// or below the ceiling are not started. A task that has been preempted by a
// higher running task waits for it before entering.
func (r *Resource[T]) Lock(tc *Context, fn func(v *T)) {
	p := tc.Priority()
	if p > r.ceiling {
		panic(fmt.Sprintf("sched: task %s (priority %d) locks %s above ceiling %d", tc.task.name, p, r.name, r.ceiling))
	}

	d := r.d
	d.mu.Lock()
	for d.preemptedLocked(p) {
		d.cond.Wait()
	}
	d.ceilings = append(d.ceilings, r.ceiling)
	d.mu.Unlock()

	defer func() {
		d.mu.Lock()
		d.ceilings = removePriority(d.ceilings, r.ceiling)
		d.cond.Broadcast()
		d.mu.Unlock()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.v)
}

// Read gives code outside the task graph (status, metrics, reload) short
// access to the value. It does not raise the ceiling; fn must not block.
// It shares the value's mutex with Lock, so fn may also apply small updates
// such as a changed setting.
func (r *Resource[T]) Read(fn func(v *T)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fn(r.v)
}
