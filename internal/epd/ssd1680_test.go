package epd

import (
	"context"
	"errors"
	"testing"
	"time"

	"epdcard/internal/convert"
)

type op struct {
	cmd  byte
	data int
}

// fakeBus records commands and the length of the data that follows them.
type fakeBus struct {
	ops       []op
	resets    int
	busyPolls int // Busy reports true this many times, then false
	closed    bool
	failCmd   byte
}

func (b *fakeBus) Command(cmd byte) error {
	if b.failCmd != 0 && cmd == b.failCmd {
		return errors.New("spi write failed")
	}
	b.ops = append(b.ops, op{cmd: cmd})
	return nil
}

func (b *fakeBus) Data(p []byte) error {
	b.ops[len(b.ops)-1].data += len(p)
	return nil
}

func (b *fakeBus) Reset() { b.resets++ }

func (b *fakeBus) Busy() bool {
	if b.busyPolls > 0 {
		b.busyPolls--
		return true
	}
	return false
}

func (b *fakeBus) Close() error {
	b.closed = true
	return nil
}

func (b *fakeBus) cmds() []byte {
	out := make([]byte, 0, len(b.ops))
	for _, o := range b.ops {
		out = append(out, o.cmd)
	}
	return out
}

func planes() ([]byte, []byte) {
	return make([]byte, convert.PlaneSize), make([]byte, convert.PlaneSize)
}

func TestDisplayInitsWritesAndRefreshes(t *testing.T) {
	bus := &fakeBus{}
	d := New(bus)

	black, red := planes()
	if err := d.Display(context.Background(), black, red); err != nil {
		t.Fatalf("Display: %v", err)
	}
	if bus.resets != 1 {
		t.Fatalf("resets=%d", bus.resets)
	}

	want := []byte{
		cmdSWReset, cmdDriverOutput, cmdDataEntryMode, cmdRAMXRange, cmdRAMYRange,
		cmdBorderWaveform, cmdTempSensor,
		cmdRAMXCounter, cmdRAMYCounter, cmdWriteBlackRAM,
		cmdRAMXCounter, cmdRAMYCounter, cmdWriteRedRAM,
		cmdUpdateControl2, cmdMasterActivate,
	}
	got := bus.cmds()
	if string(got) != string(want) {
		t.Fatalf("commands=% x\nwant      % x", got, want)
	}
	for _, o := range bus.ops {
		if (o.cmd == cmdWriteBlackRAM || o.cmd == cmdWriteRedRAM) && o.data != convert.PlaneSize {
			t.Fatalf("cmd %#x wrote %d bytes", o.cmd, o.data)
		}
	}
}

func TestSleepThenDisplayReinitializes(t *testing.T) {
	bus := &fakeBus{}
	d := New(bus)
	black, red := planes()

	if err := d.Display(context.Background(), black, red); err != nil {
		t.Fatal(err)
	}
	if err := d.Sleep(); err != nil {
		t.Fatal(err)
	}
	if err := d.Sleep(); err != nil {
		t.Fatal(err)
	}
	if err := d.Display(context.Background(), black, red); err != nil {
		t.Fatal(err)
	}
	if bus.resets != 2 {
		t.Fatalf("resets=%d, want re-init after sleep", bus.resets)
	}
	sleeps := 0
	for _, c := range bus.cmds() {
		if c == cmdDeepSleep {
			sleeps++
		}
	}
	if sleeps != 1 {
		t.Fatalf("deep sleep sent %d times", sleeps)
	}
}

func TestDisplayRejectsBadBuffers(t *testing.T) {
	d := New(&fakeBus{})
	if err := d.Display(context.Background(), make([]byte, 10), make([]byte, 10)); err == nil {
		t.Fatal("expected size error")
	}
}

func TestWaitIdleTimeout(t *testing.T) {
	d := New(&fakeBus{busyPolls: 1 << 30})
	d.busyTimeout = 30 * time.Millisecond
	if err := d.Init(context.Background()); !errors.Is(err, ErrBusyTimeout) {
		t.Fatalf("err=%v", err)
	}
}

func TestWaitIdleHonorsContext(t *testing.T) {
	d := New(&fakeBus{busyPolls: 1 << 30})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := d.Init(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err=%v", err)
	}
}

func TestCommandErrorPropagates(t *testing.T) {
	d := New(&fakeBus{failCmd: cmdWriteRedRAM})
	black, red := planes()
	if err := d.Display(context.Background(), black, red); err == nil {
		t.Fatal("expected error")
	}
}

func TestCloseSleepsAndClosesBus(t *testing.T) {
	bus := &fakeBus{}
	d := New(bus)
	if err := d.Init(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := d.Close(); err != nil {
		t.Fatal(err)
	}
	if !bus.closed {
		t.Fatal("bus not closed")
	}
	if got := bus.cmds(); got[len(got)-1] != cmdDeepSleep {
		t.Fatalf("last command %#x", got[len(got)-1])
	}
}
