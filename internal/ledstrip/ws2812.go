package ledstrip

// WS2812 timing over SPI at ~3 MHz: every SPI byte carries two data bits,
// a short high pulse for 0 and a long one for 1.
var bitPatterns = [4]byte{
	0b1000_1000, // 00
	0b1000_1110, // 01
	0b1110_1000, // 10
	0b1110_1110, // 11
}

// resetBytes of low level latch the frame (>280us at 3 MHz).
const resetBytes = 140

// EncodedLen is the SPI payload size of one frame.
const EncodedLen = NumLEDs*3*4 + resetBytes

// Encode appends the SPI payload for f to dst. Colors go out in the GRB
// order the WS2812 expects.
func Encode(dst []byte, f Frame) []byte {
	for _, c := range f {
		dst = encodeByte(dst, c.G)
		dst = encodeByte(dst, c.R)
		dst = encodeByte(dst, c.B)
	}
	for i := 0; i < resetBytes; i++ {
		dst = append(dst, 0)
	}
	return dst
}

func encodeByte(dst []byte, b byte) []byte {
	for shift := 6; shift >= 0; shift -= 2 {
		dst = append(dst, bitPatterns[(b>>shift)&0b11])
	}
	return dst
}
