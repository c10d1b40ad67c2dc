// Package gpio provides the door switch input line with hardware abstraction.
// The real implementation uses the Linux GPIO character device.
// The fake implementation allows testing without hardware.
package gpio

// Line is a digital input that signals both rising and falling edges.
type Line interface {
	// Level returns the physical level of the line: true = high.
	Level() (bool, error)

	// ClearPending acknowledges the pending edge so it does not re-fire.
	ClearPending()

	// OnEdge sets the handler invoked for every edge. The handler runs on
	// the line's event goroutine and must not block.
	OnEdge(fn func())

	// Close releases GPIO resources.
	Close() error
}

var _ Line = (*RealLine)(nil)

// Defaults match a Raspberry Pi with the reed switch on BCM 17.
const (
	DefaultChip = "gpiochip0"
	DefaultLine = 17
)
