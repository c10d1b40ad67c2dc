//go:build linux

package gpio

import (
	"fmt"
	"sync/atomic"

	"github.com/warthog618/go-gpiocdev"
)

// RealLine reads the door switch from actual hardware using the Linux GPIO
// character device.
type RealLine struct {
	line    *gpiocdev.Line
	handler atomic.Pointer[func()]
}

// NewRealLine requests offset on chip as an input with pull-up and edge
// detection on both edges. An unconnected switch therefore reads high.
func NewRealLine(chip string, offset int) (*RealLine, error) {
	l := &RealLine{}
	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.WithConsumer("oven-heater"),
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithBothEdges,
		gpiocdev.WithEventHandler(l.handleEvent),
	)
	if err != nil {
		return nil, fmt.Errorf("request line %s:%d: %w", chip, offset, err)
	}
	l.line = line
	return l, nil
}

func (l *RealLine) handleEvent(gpiocdev.LineEvent) {
	if fn := l.handler.Load(); fn != nil {
		(*fn)()
	}
}

// Level returns the raw line value: true = high.
func (l *RealLine) Level() (bool, error) {
	v, err := l.line.Value()
	if err != nil {
		return false, fmt.Errorf("read line: %w", err)
	}
	return v == 1, nil
}

// ClearPending is a no-op: the kernel has already consumed the edge event
// by the time the handler runs, so nothing is left to re-fire.
func (l *RealLine) ClearPending() {}

// OnEdge sets the edge handler.
func (l *RealLine) OnEdge(fn func()) {
	l.handler.Store(&fn)
}

// Close releases the line. The line is left as a plain input so the switch
// does not see a driven pin after exit.
func (l *RealLine) Close() error {
	var errs []error
	if l.line != nil {
		if err := l.line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
		}
		if err := l.line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
