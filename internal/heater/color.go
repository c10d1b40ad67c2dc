package heater

import (
	"math"

	"github.com/sweeney/oven-heater/internal/ledstrip"
)

// HSV is an 8-bit hue/saturation/value triple. Hue wraps at 256.
type HSV struct {
	Hue, Sat, Val uint8
}

// HSVToRGB converts with integer arithmetic. The hue circle is split into
// six sectors of ~43 steps.
func HSVToRGB(c HSV) ledstrip.Color {
	v := int(c.Val)
	s := int(c.Sat)
	f := (int(c.Hue) * 2 % 85) * 3 // position within the sector, 0..252

	p := v * (255 - s) / 255
	q := v * (255 - s*f/255) / 255
	t := v * (255 - s*(255-f)/255) / 255

	switch {
	case c.Hue <= 42:
		return rgb(v, t, p)
	case c.Hue <= 84:
		return rgb(q, v, p)
	case c.Hue <= 127:
		return rgb(p, v, t)
	case c.Hue <= 169:
		return rgb(p, q, v)
	case c.Hue <= 212:
		return rgb(t, p, v)
	case c.Hue <= 254:
		return rgb(v, p, q)
	default:
		return rgb(v, t, p)
	}
}

func rgb(r, g, b int) ledstrip.Color {
	return ledstrip.Color{R: uint8(r), G: uint8(g), B: uint8(b)}
}

// gammaExp is the exponent behind the correction table.
const gammaExp = 2.8

var gammaTable = func() (t [256]uint8) {
	for i := range t {
		t[i] = uint8(math.Pow(float64(i)/255, gammaExp)*255 + 0.5)
	}
	return t
}()

// Gamma maps each channel through the perceptual correction table.
func Gamma(c ledstrip.Color) ledstrip.Color {
	return ledstrip.Color{R: gammaTable[c.R], G: gammaTable[c.G], B: gammaTable[c.B]}
}

// GammaFrame corrects every LED of f.
func GammaFrame(f ledstrip.Frame) ledstrip.Frame {
	for i := range f {
		f[i] = Gamma(f[i])
	}
	return f
}
