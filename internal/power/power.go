// Package power reads the battery gauge of a UPS HAT (PiSugar 3) over I2C.
package power

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

// ErrUnavailable is returned by readers that have no gauge to talk to.
var ErrUnavailable = errors.New("power: battery gauge unavailable")

// PiSugar 3 registers.
const (
	regVoltageHigh = 0x22
	regVoltageLow  = 0x23
	regPercent     = 0x2A
)

// Status is the battery state reported on /api/status.
type Status struct {
	Percent   int       `json:"percent"`
	VoltageMv int       `json:"voltage_mv"`
	ReadAt    time.Time `json:"read_at"`
}

// Reader abstracts how battery information is obtained.
type Reader interface {
	Read(ctx context.Context) (Status, error)
}

type unavailableReader struct{}

// Unavailable returns a Reader that always fails with ErrUnavailable.
func Unavailable() Reader { return unavailableReader{} }

func (unavailableReader) Read(context.Context) (Status, error) {
	return Status{}, ErrUnavailable
}

// i2cReader talks to the gauge via periph.io.
//   - 0x22 (high), 0x23 (low): battery voltage in millivolts
//   - 0x2A: battery percentage (0-100)
type i2cReader struct {
	busName string
	addr    uint16

	mu sync.Mutex
}

// NewI2CReader returns a Reader for the gauge at addr on busName ("" picks
// the first bus, /dev/i2c-1 on a Raspberry Pi). Nothing is opened until
// the first Read.
func NewI2CReader(busName string, addr uint16) Reader {
	return &i2cReader{busName: busName, addr: addr}
}

func (r *i2cReader) Read(ctx context.Context) (Status, error) {
	if runtime.GOOS != "linux" {
		return Status{}, ErrUnavailable
	}
	if err := ctx.Err(); err != nil {
		return Status{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := host.Init(); err != nil {
		return Status{}, fmt.Errorf("power: host init: %w", err)
	}
	bus, err := i2creg.Open(r.busName)
	if err != nil {
		return Status{}, fmt.Errorf("power: open i2c %q: %w", r.busName, err)
	}
	defer bus.Close()

	dev := &i2c.Dev{Bus: bus, Addr: r.addr}
	return readGauge(dev)
}

// readGauge reads the three registers from a connected device.
func readGauge(dev txer) (Status, error) {
	readReg := func(reg byte) (byte, error) {
		buf := []byte{0}
		if err := dev.Tx([]byte{reg}, buf); err != nil {
			return 0, fmt.Errorf("power: read reg %#02x: %w", reg, err)
		}
		return buf[0], nil
	}

	high, err := readReg(regVoltageHigh)
	if err != nil {
		return Status{}, err
	}
	low, err := readReg(regVoltageLow)
	if err != nil {
		return Status{}, err
	}
	pct, err := readReg(regPercent)
	if err != nil {
		return Status{}, err
	}
	if pct > 100 {
		pct = 100
	}

	return Status{
		Percent:   int(pct),
		VoltageMv: int(uint16(high)<<8 | uint16(low)),
		ReadAt:    time.Now(),
	}, nil
}

// txer is the part of *i2c.Dev readGauge uses.
type txer interface {
	Tx(w, r []byte) error
}

// Detect probes the gauge once and returns the I2C reader if it answers,
// or Unavailable otherwise.
func Detect(ctx context.Context, busName string, addr uint16) (Reader, error) {
	r := NewI2CReader(busName, addr)
	if _, err := r.Read(ctx); err != nil {
		return Unavailable(), err
	}
	return r, nil
}
