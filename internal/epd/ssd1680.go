// Package epd drives a 2.9" 128x296 tri-color e-paper panel built on the
// SSD1680 controller (Waveshare 2.9" B V4, GoodDisplay GDEM029C90).
//
// A refresh is a full black/white/red update: the panel flickers for about
// fifteen seconds and then keeps the image without power, so the driver puts
// the controller into deep sleep after every frame and re-initializes it on
// the next one.
package epd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"epdcard/internal/convert"
	appLog "epdcard/internal/log"
)

// SSD1680 commands used by the driver.
const (
	cmdDriverOutput   = 0x01
	cmdDeepSleep      = 0x10
	cmdDataEntryMode  = 0x11
	cmdSWReset        = 0x12
	cmdTempSensor     = 0x18
	cmdMasterActivate = 0x20
	cmdUpdateControl2 = 0x22
	cmdWriteBlackRAM  = 0x24
	cmdWriteRedRAM    = 0x26
	cmdBorderWaveform = 0x3C
	cmdRAMXRange      = 0x44
	cmdRAMYRange      = 0x45
	cmdRAMXCounter    = 0x4E
	cmdRAMYCounter    = 0x4F
)

const (
	busyPollInterval = 10 * time.Millisecond
	// DefaultBusyTimeout bounds a single wait; a tri-color full refresh
	// takes 15-20s.
	DefaultBusyTimeout = 40 * time.Second
)

// ErrBusyTimeout is returned when the panel stays busy past the timeout.
var ErrBusyTimeout = errors.New("epd: panel busy timeout")

// Driver sequences SSD1680 commands over a Bus.
type Driver struct {
	bus         Bus
	busyTimeout time.Duration
	asleep      bool
}

// New wraps bus. The controller is not touched until Init.
func New(bus Bus) *Driver {
	return &Driver{bus: bus, busyTimeout: DefaultBusyTimeout, asleep: true}
}

// Init resets the controller and configures full-panel addressing.
func (d *Driver) Init(ctx context.Context) error {
	d.bus.Reset()
	if err := d.waitIdle(ctx); err != nil {
		return err
	}
	if err := d.bus.Command(cmdSWReset); err != nil {
		return fmt.Errorf("epd: sw reset: %w", err)
	}
	if err := d.waitIdle(ctx); err != nil {
		return err
	}

	lastRow := convert.PanelHeight - 1
	steps := []struct {
		cmd  byte
		data []byte
	}{
		{cmdDriverOutput, []byte{byte(lastRow), byte(lastRow >> 8), 0x00}},
		// X increment, Y increment, address counter updated in X direction.
		{cmdDataEntryMode, []byte{0x03}},
		{cmdRAMXRange, []byte{0x00, convert.ByteStride - 1}},
		{cmdRAMYRange, []byte{0x00, 0x00, byte(lastRow), byte(lastRow >> 8)}},
		{cmdBorderWaveform, []byte{0x05}},
		// internal temperature sensor
		{cmdTempSensor, []byte{0x80}},
	}
	for _, s := range steps {
		if err := d.send(s.cmd, s.data...); err != nil {
			return err
		}
	}
	if err := d.waitIdle(ctx); err != nil {
		return err
	}
	d.asleep = false
	return nil
}

// Display writes both planes (see convert.Pack for the bit layout) and
// runs a full refresh. It blocks until the panel is idle again.
func (d *Driver) Display(ctx context.Context, black, red []byte) error {
	if len(black) != convert.PlaneSize || len(red) != convert.PlaneSize {
		return fmt.Errorf("epd: invalid buffer size, expected %d bytes per plane", convert.PlaneSize)
	}
	if d.asleep {
		if err := d.Init(ctx); err != nil {
			return err
		}
	}

	if err := d.resetCounters(); err != nil {
		return err
	}
	if err := d.send(cmdWriteBlackRAM, black...); err != nil {
		return err
	}
	if err := d.resetCounters(); err != nil {
		return err
	}
	if err := d.send(cmdWriteRedRAM, red...); err != nil {
		return err
	}

	return d.refresh(ctx)
}

// refresh triggers the full update waveform and waits for completion.
func (d *Driver) refresh(ctx context.Context) error {
	start := time.Now()
	if err := d.send(cmdUpdateControl2, 0xF7); err != nil {
		return err
	}
	if err := d.send(cmdMasterActivate); err != nil {
		return err
	}
	if err := d.waitIdle(ctx); err != nil {
		return err
	}
	appLog.Debug("epd refresh complete", "elapsed", time.Since(start).Round(time.Millisecond))
	return nil
}

// Sleep puts the controller into deep sleep mode 1 (RAM retained).
func (d *Driver) Sleep() error {
	if d.asleep {
		return nil
	}
	if err := d.send(cmdDeepSleep, 0x01); err != nil {
		return err
	}
	d.asleep = true
	return nil
}

// Close sleeps the panel and releases the bus.
func (d *Driver) Close() error {
	serr := d.Sleep()
	cerr := d.bus.Close()
	return errors.Join(serr, cerr)
}

func (d *Driver) resetCounters() error {
	if err := d.send(cmdRAMXCounter, 0x00); err != nil {
		return err
	}
	return d.send(cmdRAMYCounter, 0x00, 0x00)
}

func (d *Driver) send(cmd byte, data ...byte) error {
	if err := d.bus.Command(cmd); err != nil {
		return fmt.Errorf("epd: command %#02x: %w", cmd, err)
	}
	if len(data) == 0 {
		return nil
	}
	if err := d.bus.Data(data); err != nil {
		return fmt.Errorf("epd: data for %#02x: %w", cmd, err)
	}
	return nil
}

func (d *Driver) waitIdle(ctx context.Context) error {
	if !d.bus.Busy() {
		return nil
	}
	deadline := time.NewTimer(d.busyTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(busyPollInterval)
	defer tick.Stop()

	for d.bus.Busy() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrBusyTimeout
		case <-tick.C:
		}
	}
	return nil
}
