package ledstrip

import (
	"fmt"

	"periph.io/x/periph/conn/physic"
	"periph.io/x/periph/conn/spi"
	"periph.io/x/periph/conn/spi/spireg"
	"periph.io/x/periph/host"
)

// DefaultSPIHz is the bus clock the bit patterns are timed for.
const DefaultSPIHz = 3_000_000

// txer is the part of spi.Conn the strip needs.
type txer interface {
	Tx(w, r []byte) error
}

// SPIStrip writes frames to a WS2812 strip wired to an SPI MOSI pin.
type SPIStrip struct {
	conn  txer
	close func() error
	buf   []byte
}

// OpenSPI opens the named SPI port ("" for the first one) at hz.
func OpenSPI(port string, hz int64) (*SPIStrip, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("init periph host: %w", err)
	}
	p, err := spireg.Open(port)
	if err != nil {
		return nil, fmt.Errorf("open spi port %q: %w", port, err)
	}
	c, err := p.Connect(physic.Frequency(hz)*physic.Hertz, spi.Mode0, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("connect spi port %q: %w", port, err)
	}
	s := newSPIStrip(c)
	s.close = p.Close
	return s, nil
}

func newSPIStrip(c txer) *SPIStrip {
	return &SPIStrip{
		conn: c,
		buf:  make([]byte, 0, EncodedLen),
	}
}

// Write encodes f and sends it in one transfer.
func (s *SPIStrip) Write(f Frame) error {
	s.buf = Encode(s.buf[:0], f)
	if err := s.conn.Tx(s.buf, nil); err != nil {
		return fmt.Errorf("spi write: %w", err)
	}
	return nil
}

// Close blanks the strip and releases the port.
func (s *SPIStrip) Close() error {
	var errs []error
	if err := s.Write(Blank); err != nil {
		errs = append(errs, err)
	}
	if s.close != nil {
		if err := s.close(); err != nil {
			errs = append(errs, fmt.Errorf("close spi port: %w", err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
