// Package heater renders the heating-element animation: one pass around a
// colour wheel across the strip, one frame per call.
package heater

import (
	"github.com/sweeney/oven-heater/internal/ledstrip"
)

// CycleLength is the number of frames in one animation run.
const CycleLength = 1024

// Animation constants.
const (
	hueSpread  = 3   // hue offset between neighbouring LEDs
	saturation = 255 // fixed
	brightness = 100 // HSV value on a 0-255 scale
)

// Engine holds the animation state and owns the strip. It is not safe for
// concurrent use; callers share it through a lock.
type Engine struct {
	out     ledstrip.Writer
	enabled bool
	step    int
}

// NewEngine creates a disabled engine at step zero.
func NewEngine(out ledstrip.Writer) *Engine {
	return &Engine{out: out}
}

// Enable sets whether the animation should run. Stepping is driven
// separately; disabling takes effect on the next StepOnce.
func (e *Engine) Enable(on bool) {
	e.enabled = on
}

// Enabled reports whether the animation is enabled.
func (e *Engine) Enabled() bool {
	return e.enabled
}

// Step returns the index of the next frame to render.
func (e *Engine) Step() int {
	return e.step
}

// Next advances the state and returns the frame to show and whether the
// cycle has finished. A disabled engine yields a blank frame and done.
// Completing the cycle wraps the step to zero and disables the engine.
func (e *Engine) Next() (ledstrip.Frame, bool) {
	if !e.enabled {
		return ledstrip.Blank, true
	}

	j := e.step
	e.step++
	if e.step == CycleLength {
		e.step = 0
		e.enabled = false
	}
	return Frame(j), e.step == 0
}

// StepOnce renders and writes exactly one frame. The returned error is the
// strip's; the engine has already advanced when it is returned.
func (e *Engine) StepOnce() (bool, error) {
	f, done := e.Next()
	if err := e.out.Write(f); err != nil {
		return done, err
	}
	return done, nil
}

// Hue returns the hue of LED i at step j.
func Hue(i, j int) uint8 {
	return uint8((i*hueSpread + j) % 256)
}

// RawFrame is the uncorrected frame for step j.
func RawFrame(j int) ledstrip.Frame {
	var f ledstrip.Frame
	for i := range f {
		f[i] = HSVToRGB(HSV{Hue: Hue(i, j), Sat: saturation, Val: brightness})
	}
	return f
}

// Frame is the gamma-corrected frame for step j.
func Frame(j int) ledstrip.Frame {
	return GammaFrame(RawFrame(j))
}
