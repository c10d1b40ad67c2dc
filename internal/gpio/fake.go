package gpio

import "sync"

var _ Line = (*FakeLine)(nil)

// FakeLine is a test double with a settable level and scripted edges.
type FakeLine struct {
	mu      sync.Mutex
	high    bool
	readErr error
	pending bool
	cleared int
	reads   int
	closed  bool
	handler func()
}

// NewFakeLine creates a FakeLine at the given level.
func NewFakeLine(high bool) *FakeLine {
	return &FakeLine{high: high}
}

// Level returns the scripted level, or ReadError if one is set.
func (f *FakeLine) Level() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.readErr != nil {
		return false, f.readErr
	}
	return f.high, nil
}

// ClearPending clears the pending flag and counts the call.
func (f *FakeLine) ClearPending() {
	f.mu.Lock()
	f.pending = false
	f.cleared++
	f.mu.Unlock()
}

// OnEdge sets the edge handler.
func (f *FakeLine) OnEdge(fn func()) {
	f.mu.Lock()
	f.handler = fn
	f.mu.Unlock()
}

// Close marks the line as closed.
func (f *FakeLine) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	return nil
}

// SetLevel changes the level without raising an edge.
func (f *FakeLine) SetLevel(high bool) {
	f.mu.Lock()
	f.high = high
	f.mu.Unlock()
}

// SetReadError makes Level fail with err. Nil restores normal reads.
func (f *FakeLine) SetReadError(err error) {
	f.mu.Lock()
	f.readErr = err
	f.mu.Unlock()
}

// Edge raises an edge: sets pending and calls the handler.
func (f *FakeLine) Edge() {
	f.mu.Lock()
	f.pending = true
	fn := f.handler
	f.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// Drive sets the level and raises an edge, as a real switch transition would.
func (f *FakeLine) Drive(high bool) {
	f.SetLevel(high)
	f.Edge()
}

// Pending reports whether an edge is waiting to be cleared.
func (f *FakeLine) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pending
}

// Cleared returns how many times ClearPending was called.
func (f *FakeLine) Cleared() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cleared
}

// Reads returns how many times Level was called.
func (f *FakeLine) Reads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.reads
}

// Closed reports whether Close was called.
func (f *FakeLine) Closed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}
