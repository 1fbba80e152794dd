package epd

import (
	"fmt"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/host/v3"
)

// Bus is the wiring the controller needs: an SPI data line with a
// data/command select, a reset line and a busy input.
type Bus interface {
	Command(cmd byte) error
	Data(p []byte) error
	Reset()
	Busy() bool
	Close() error
}

// Pins names the periph.io SPI port and GPIO lines (e.g. "GPIO25").
type Pins struct {
	SPIPort string
	DC      string
	RST     string
	Busy    string
}

// SPIBus drives the panel through periph.io.
type SPIBus struct {
	port spi.PortCloser
	conn spi.Conn
	dc   gpio.PinOut
	rst  gpio.PinOut
	busy gpio.PinIn

	// maxTx is the largest single SPI transfer the port accepts.
	maxTx int
}

// OpenSPI initializes periph.io, opens the SPI port and configures the GPIO
// lines.
func OpenSPI(pins Pins) (*SPIBus, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("epd: periph host init failed: %w", err)
	}

	port, err := spireg.Open(pins.SPIPort)
	if err != nil {
		return nil, fmt.Errorf("epd: failed to open SPI port: %w", err)
	}

	const maxHz = 4 * physic.MegaHertz
	conn, err := port.Connect(maxHz, spi.Mode0, 8)
	if err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("epd: failed to connect SPI: %w", err)
	}

	out := func(name string, level gpio.Level) (gpio.PinOut, error) {
		p := gpioreg.ByName(name)
		if p == nil {
			return nil, fmt.Errorf("epd: gpio %s not found", name)
		}
		if err := p.Out(level); err != nil {
			return nil, fmt.Errorf("epd: gpio %s Out failed: %w", name, err)
		}
		return p, nil
	}

	b := &SPIBus{port: port, conn: conn, maxTx: 4096}
	if lim, ok := conn.(interface{ MaxTxSize() int }); ok && lim.MaxTxSize() > 0 {
		b.maxTx = lim.MaxTxSize()
	}

	if b.dc, err = out(pins.DC, gpio.Low); err != nil {
		_ = port.Close()
		return nil, err
	}
	if b.rst, err = out(pins.RST, gpio.High); err != nil {
		_ = port.Close()
		return nil, err
	}

	busy := gpioreg.ByName(pins.Busy)
	if busy == nil {
		_ = port.Close()
		return nil, fmt.Errorf("epd: gpio %s not found", pins.Busy)
	}
	if err := busy.In(gpio.PullDown, gpio.NoEdge); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("epd: gpio %s In failed: %w", pins.Busy, err)
	}
	b.busy = busy

	return b, nil
}

func (b *SPIBus) Command(cmd byte) error {
	if err := b.dc.Out(gpio.Low); err != nil {
		return err
	}
	return b.conn.Tx([]byte{cmd}, nil)
}

func (b *SPIBus) Data(p []byte) error {
	if err := b.dc.Out(gpio.High); err != nil {
		return err
	}
	for len(p) > 0 {
		n := len(p)
		if n > b.maxTx {
			n = b.maxTx
		}
		if err := b.conn.Tx(p[:n], nil); err != nil {
			return err
		}
		p = p[n:]
	}
	return nil
}

// Reset pulses the reset line low.
func (b *SPIBus) Reset() {
	_ = b.rst.Out(gpio.High)
	time.Sleep(20 * time.Millisecond)
	_ = b.rst.Out(gpio.Low)
	time.Sleep(2 * time.Millisecond)
	_ = b.rst.Out(gpio.High)
	time.Sleep(20 * time.Millisecond)
}

// Busy reports the BUSY line; the SSD1680 holds it high while working.
func (b *SPIBus) Busy() bool {
	return b.busy.Read() == gpio.High
}

func (b *SPIBus) Close() error {
	return b.port.Close()
}
