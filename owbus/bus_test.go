// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"bytes"
	"errors"
	"log/slog"
	"math/bits"
	"strings"
	"testing"
	"time"

	"github.com/GermanBionicSystems/owbus/owbus/owbustest"
	"github.com/GermanBionicSystems/owbus/owline"
	"github.com/GermanBionicSystems/owbus/owtiming"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/onewire"
)

func TestNew(t *testing.T) {
	w := owbustest.NewWire()
	b, err := New(w, &Opts{Capacity: 3, Timing: owtiming.Standard, Delayer: w})
	if err != nil {
		t.Fatal(err)
	}
	if b.Capacity() != 3 {
		t.Fatal(b.Capacity())
	}
	if d := b.Devices(); len(d) != 0 {
		t.Fatal(d)
	}
	if s := b.String(); s != "owbus{owbustest.Wire{0 devices}}" {
		t.Fatal(s)
	}
	if w.Elapsed() != owtiming.Standard.Slot {
		t.Fatal(w.Elapsed())
	}
	if b.Q() != gpio.INVALID {
		t.Fatal("a simulated wire has no pin")
	}
	if err := b.Halt(); err != nil {
		t.Fatal(err)
	}
	if err := b.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestNew_default(t *testing.T) {
	b, err := New(owbustest.NewWire(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if b.Capacity() != DefaultOpts.Capacity {
		t.Fatal(b.Capacity())
	}
	if b.Timing() != owtiming.Standard {
		t.Fatal(b.Timing())
	}
	if _, ok := b.d.(*owtiming.Spin); !ok {
		t.Fatalf("%T", b.d)
	}
}

func TestNew_fail(t *testing.T) {
	w := owbustest.NewWire()
	bad := owtiming.Standard
	bad.Sample = 0
	data := []struct {
		name string
		l    owline.Line
		opts Opts
	}{
		{"line", nil, Opts{Capacity: 1, Timing: owtiming.Standard, Delayer: w}},
		{"capacity", w, Opts{Timing: owtiming.Standard, Delayer: w}},
		{"timing", w, Opts{Capacity: 1, Timing: bad, Delayer: w}},
	}
	for _, line := range data {
		t.Run(line.name, func(t *testing.T) {
			if b, err := New(line.l, &line.opts); b != nil || err == nil {
				t.Fatal("expected failure")
			}
		})
	}
}

func TestBus_Pins(t *testing.T) {
	p := &gpiotest.Pin{N: "GPIO4", Num: 4}
	b, err := New(owline.FromPin(p), &Opts{Capacity: 1, Timing: owtiming.Standard, Delayer: owbustest.NewWire()})
	if err != nil {
		t.Fatal(err)
	}
	if b.Q() != p {
		t.Fatal("expected the pin")
	}
	if s := b.String(); s != "owbus{GPIO4(4)}" {
		t.Fatal(s)
	}
}

func TestReset(t *testing.T) {
	b, w, log := newBus(t, 8, owbustest.NewDevice(0x28))
	if !b.Reset() {
		t.Fatal("expected presence")
	}
	if w.Resets() != 1 || b.ErrorCount() != 0 {
		t.Fatal(w.Resets(), b.ErrorCount())
	}
	if log.Len() != 0 {
		t.Fatal(log.String())
	}
}

func TestReset_no_presence(t *testing.T) {
	b, _, log := newBus(t, 8)
	if b.Reset() {
		t.Fatal("idle bus")
	}
	if b.ErrorCount() != 1 {
		t.Fatal(b.ErrorCount())
	}
	if !strings.Contains(log.String(), "owbus: no presence") {
		t.Fatal(log.String())
	}
	err := b.reset()
	if e, ok := err.(onewire.NoDevicesError); !ok || !e.NoDevices() {
		t.Fatalf("%v", err)
	}
}

func TestReset_timeout(t *testing.T) {
	d := owbustest.NewDevice(0x28)
	d.Presence = time.Second
	b, _, log := newBus(t, 8, d)
	if b.Reset() {
		t.Fatal("presence pulse never ends")
	}
	if b.ErrorCount() != 1 {
		t.Fatal(b.ErrorCount())
	}
	if !strings.Contains(log.String(), "owbus: reset timeout") {
		t.Fatal(log.String())
	}
	err := b.reset()
	if e, ok := err.(onewire.BusError); !ok || !e.BusError() {
		t.Fatalf("%v", err)
	}
	if _, ok := err.(onewire.NoDevicesError); ok {
		t.Fatal("a timeout is not an absence")
	}
}

func TestWriteByte_echo(t *testing.T) {
	d := owbustest.NewDevice(0x28)
	b, _, _ := newBus(t, 8, d)
	for i := 0; i < 256; i++ {
		c := byte(i)
		if err := b.Tx([]byte{cmdSkipROM, 0x4e, c, c, c}, nil, onewire.WeakPullup); err != nil {
			t.Fatal(err)
		}
		var spad [9]byte
		if err := b.Tx([]byte{cmdSkipROM, 0xbe}, spad[:], onewire.WeakPullup); err != nil {
			t.Fatal(err)
		}
		if spad[2] != c || spad[3] != c || spad[4] != c {
			t.Fatalf("%#02x: %#x", c, spad)
		}
		if !onewire.CheckCRC(spad[:]) {
			t.Fatalf("%#02x: bad CRC %#x", c, spad)
		}
	}
}

func TestWriteByteRev(t *testing.T) {
	d := owbustest.NewDevice(0x28)
	b, _, _ := newBus(t, 8, d)
	for i := 0; i < 256; i++ {
		c := byte(i)
		if !b.Reset() {
			t.Fatal("expected presence")
		}
		if err := b.SkipROM(); err != nil {
			t.Fatal(err)
		}
		if err := b.WriteByte(0x4e); err != nil {
			t.Fatal(err)
		}
		for j := 0; j < 3; j++ {
			if err := b.WriteByteRev(c); err != nil {
				t.Fatal(err)
			}
		}
		if got := d.Scratchpad[2]; bits.Reverse8(got) != c {
			t.Fatalf("%#02x: got %#02x", c, got)
		}
	}
}

func TestReadBit_idle(t *testing.T) {
	b, w, _ := newBus(t, 8)
	if !b.ReadBit() {
		t.Fatal("idle line reads 1")
	}
	if c, err := b.ReadByte(); c != 0xff || err != nil {
		t.Fatal(c, err)
	}
	if w.Slots() != 9 {
		t.Fatal(w.Slots())
	}
}

func TestWriteBit_critical(t *testing.T) {
	w := owbustest.NewWire()
	l := &countLock{}
	b, err := New(w, &Opts{Capacity: 1, Timing: owtiming.Standard, Delayer: w, Critical: l})
	if err != nil {
		t.Fatal(err)
	}
	b.WriteBit(true)
	b.WriteBit(false)
	b.ReadBit()
	if l.locks != 3 || l.held {
		t.Fatal(l.locks, l.held)
	}
}

func TestWriteBit_whole_slot_critical(t *testing.T) {
	w := owbustest.NewWire()
	l := &countLock{}
	d := &lockedDelayer{d: w, l: l}
	b, err := New(w, &Opts{Capacity: 1, Timing: owtiming.Standard, Delayer: d, Critical: l})
	if err != nil {
		t.Fatal(err)
	}
	d.delays, d.unlocked = 0, 0
	for _, bit := range []bool{true, false} {
		b.WriteBit(bit)
		b.ReadBit()
	}
	if d.delays != 10 || d.unlocked != 0 {
		t.Fatalf("%d delays, %d outside the critical section", d.delays, d.unlocked)
	}
}

func TestLineErr(t *testing.T) {
	p := &failingPin{Pin: gpiotest.Pin{N: "GPIO5", Num: 5}}
	b, err := New(owline.FromPin(p), &Opts{Capacity: 1, Timing: owtiming.Standard, Delayer: owbustest.NewWire()})
	if err != nil {
		t.Fatal(err)
	}
	if err := b.WriteByte(0); err == nil || err.Error() != "owline: GPIO5(5): not an output" {
		t.Fatalf("%v", err)
	}
	if _, err := b.ReadByte(); err == nil {
		t.Fatal("expected error")
	}
	if err := b.Halt(); err == nil {
		t.Fatal("expected error")
	}
}

//

// newBus returns a bus on a simulated wire with devs, logging into the
// returned buffer.
func newBus(t *testing.T, capacity int, devs ...*owbustest.Device) (*Bus, *owbustest.Wire, *bytes.Buffer) {
	w := owbustest.NewWire(devs...)
	var buf bytes.Buffer
	opts := DefaultOpts
	opts.Capacity = capacity
	opts.Delayer = w
	opts.Logger = slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	b, err := New(w, &opts)
	if err != nil {
		t.Fatal(err)
	}
	return b, w, &buf
}

type countLock struct {
	locks int
	held  bool
}

func (c *countLock) Lock() {
	c.locks++
	c.held = true
}

func (c *countLock) Unlock() {
	c.held = false
}

// lockedDelayer counts the delays run outside the critical section.
type lockedDelayer struct {
	d        owtiming.Delayer
	l        *countLock
	delays   int
	unlocked int
}

func (l *lockedDelayer) Delay(d time.Duration) {
	l.delays++
	if !l.l.held {
		l.unlocked++
	}
	l.d.Delay(d)
}

type failingPin struct {
	gpiotest.Pin
}

func (f *failingPin) Out(l gpio.Level) error {
	return errors.New("not an output")
}
