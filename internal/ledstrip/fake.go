package ledstrip

import "sync"

var _ Writer = (*FakeWriter)(nil)

// FakeWriter records written frames for test assertions.
type FakeWriter struct {
	mu     sync.Mutex
	frames []Frame
	err    error
}

// NewFakeWriter creates a FakeWriter.
func NewFakeWriter() *FakeWriter {
	return &FakeWriter{}
}

// Write records f, or returns the configured error without recording.
func (f *FakeWriter) Write(fr Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.frames = append(f.frames, fr)
	return nil
}

// SetError makes subsequent writes fail with err.
func (f *FakeWriter) SetError(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

// Frames returns a copy of every recorded frame.
func (f *FakeWriter) Frames() []Frame {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Frame(nil), f.frames...)
}

// Count returns the number of recorded frames.
func (f *FakeWriter) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.frames)
}

// Last returns the most recent frame and whether there was one.
func (f *FakeWriter) Last() (Frame, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.frames) == 0 {
		return Frame{}, false
	}
	return f.frames[len(f.frames)-1], true
}

// Reset clears recorded frames and the error.
func (f *FakeWriter) Reset() {
	f.mu.Lock()
	f.frames = nil
	f.err = nil
	f.mu.Unlock()
}
