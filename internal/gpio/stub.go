//go:build !linux

package gpio

import "errors"

// RealLine is not available on non-Linux platforms.
type RealLine struct{}

// NewRealLine returns an error on non-Linux platforms.
func NewRealLine(chip string, offset int) (*RealLine, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

// Level is not implemented on non-Linux platforms.
func (l *RealLine) Level() (bool, error) {
	return false, errors.New("gpio: not supported")
}

// ClearPending is a no-op on non-Linux platforms.
func (l *RealLine) ClearPending() {}

// OnEdge is a no-op on non-Linux platforms.
func (l *RealLine) OnEdge(fn func()) {}

// Close is not implemented on non-Linux platforms.
func (l *RealLine) Close() error {
	return nil
}
