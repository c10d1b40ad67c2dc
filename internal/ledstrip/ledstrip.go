// Package ledstrip drives the addressable LED strip that stands in for the
// heating element. Frames are written whole; a failed write is reported to
// the caller and never retried here.
package ledstrip

// NumLEDs is the number of elements on the strip.
const NumLEDs = 8

// Color is an 8-bit RGB value.
type Color struct {
	R, G, B uint8
}

// Frame is one complete set of colors, index 0 nearest the data input.
type Frame [NumLEDs]Color

// Blank is the all-off frame.
var Blank Frame

// IsBlank reports whether every LED in f is off.
func (f Frame) IsBlank() bool {
	return f == Blank
}

// Writer transmits frames to a strip.
type Writer interface {
	Write(f Frame) error
}
