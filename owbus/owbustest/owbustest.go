// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owbustest simulates a 1-wire bus at the time slot level, to test
// bit-banged bus masters without hardware.
//
// A Wire is both the owline.Line and the owtiming.Delayer of the master under
// test: delays advance a virtual clock instead of burning time, and the
// simulated devices decode the low pulses of the master by their width, the
// way real devices do.
package owbustest

import (
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/onewire"
)

// Slot boundaries as seen by a device.
const (
	// A low pulse at least this long is a write 0; a shorter one is a write
	// 1 or opens a read slot.
	WriteZeroMin = 15 * time.Microsecond
	// ResetMin is the shortest reset pulse a device accepts by default.
	ResetMin = 480 * time.Microsecond
	// PresenceDelay is the time between the end of the reset pulse and the
	// start of the presence pulse.
	PresenceDelay = 15 * time.Microsecond
	// PresenceWidth is the default presence pulse length.
	PresenceWidth = 120 * time.Microsecond
	// ReadHold is how long, from the start of a read slot, a device sending
	// a 0 holds the wire low.
	ReadHold = 30 * time.Microsecond
)

// fakeClock is implemented by clockwork's fake clock.
type fakeClock interface {
	clockwork.Clock
	Advance(d time.Duration)
}

// Wire is a simulated wired-AND 1-wire line shared by the master and the
// simulated devices.
//
// Wire implements owline.Line, owline.Driver and owtiming.Delayer.
type Wire struct {
	Devices []*Device
	// PollCost is the virtual time taken by each sample of the line.
	PollCost time.Duration

	clk     fakeClock
	start   time.Time
	low     bool      // master is pulling the line low
	fell    time.Time // when the master started pulling low
	resets  int
	slots   int
	pullups int
}

// NewWire returns a wire with the devices connected to it.
func NewWire(devs ...*Device) *Wire {
	clk := clockwork.NewFakeClock()
	return &Wire{Devices: devs, PollCost: 250 * time.Nanosecond, clk: clk, start: clk.Now()}
}

func (w *Wire) String() string {
	return fmt.Sprintf("owbustest.Wire{%d devices}", len(w.Devices))
}

// Clock returns the virtual clock of the wire.
func (w *Wire) Clock() clockwork.Clock {
	return w.clk
}

// Elapsed returns the virtual time elapsed since the wire was created.
func (w *Wire) Elapsed() time.Duration {
	return w.clk.Since(w.start)
}

// Resets returns the number of reset pulses seen by the devices.
func (w *Wire) Resets() int {
	return w.resets
}

// Slots returns the number of read and write time slots seen by the devices.
func (w *Wire) Slots() int {
	return w.slots
}

// Delay implements owtiming.Delayer.
func (w *Wire) Delay(d time.Duration) {
	if d > 0 {
		w.clk.Advance(d)
	}
}

// AssertLow implements owline.Line.
func (w *Wire) AssertLow() {
	if w.low {
		return
	}
	w.low = true
	w.fell = w.clk.Now()
}

// Release implements owline.Line.
func (w *Wire) Release() {
	if !w.low {
		return
	}
	w.low = false
	now := w.clk.Now()
	width := now.Sub(w.fell)
	reset := false
	for _, d := range w.Devices {
		if width >= d.resetMin() {
			d.reset(now)
			reset = true
		} else {
			d.slot(width < WriteZeroMin, w.fell)
		}
	}
	if reset {
		w.resets++
	} else {
		w.slots++
	}
}

// Pullups returns the number of times the master actively drove the line
// high.
func (w *Wire) Pullups() int {
	return w.pullups
}

// DriveHigh implements owline.Driver.
func (w *Wire) DriveHigh() {
	w.pullups++
	w.Release()
}

// SampleHigh implements owline.Line. Each sample takes PollCost.
func (w *Wire) SampleHigh() bool {
	now := w.clk.Now()
	v := !w.low
	for _, d := range w.Devices {
		if d.holding(now) {
			v = false
		}
	}
	w.Delay(w.PollCost)
	return v
}

type state int

const (
	idle     state = iota // waiting for a reset
	romCmd                // receiving the ROM command
	search                // taking part in a search
	match                 // receiving a Match ROM identifier
	function              // receiving a function command
	receive               // receiving scratchpad bytes
	transmit              // sending bytes
	done                  // ignoring everything until the next reset
)

// Device is a simulated 1-wire device with a DS18B20 style scratchpad.
//
// It understands Search ROM, Alarm Search, Match ROM, Skip ROM and Read ROM,
// then the function commands Write Scratchpad (0x4E), Read Scratchpad (0xBE),
// Convert T (0x44) and Copy Scratchpad (0x48).
type Device struct {
	ROM        uint64
	Alarm      bool          // takes part in alarm searches
	Silent     bool          // answers resets but no command
	ResetMin   time.Duration // shortest reset pulse accepted; ResetMin if 0
	Presence   time.Duration // presence pulse width; PresenceWidth if 0
	Scratchpad [9]byte

	state    state
	selected bool
	n        int    // bits handled in the current state
	shift    uint64 // bits received in the current state
	phase    int    // search: 0 sends the bit, 1 the complement, 2 receives
	out      []byte // bytes being sent
	next     state  // state after the transmission
	holdFrom time.Time
	holdTo   time.Time
}

// NewDevice returns a device with the power-on scratchpad of a DS18B20: 85°C
// and 12 bits resolution.
func NewDevice(rom uint64) *Device {
	d := &Device{ROM: rom}
	d.Scratchpad = [9]byte{0x50, 0x05, 0x4b, 0x46, 0x7f, 0xff, 0x0c, 0x10}
	d.updateCRC()
	return d
}

func (d *Device) String() string {
	return fmt.Sprintf("Device{%#016x}", d.ROM)
}

// Selected returns true if the device completed a ROM command since the last
// reset and still listens to function commands.
func (d *Device) Selected() bool {
	return d.selected
}

// SetTemperature sets the raw 12.4 fixed point temperature of the
// scratchpad.
func (d *Device) SetTemperature(raw int16) {
	d.Scratchpad[0] = byte(raw)
	d.Scratchpad[1] = byte(uint16(raw) >> 8)
	d.updateCRC()
}

func (d *Device) resetMin() time.Duration {
	if d.ResetMin > 0 {
		return d.ResetMin
	}
	return ResetMin
}

func (d *Device) reset(now time.Time) {
	w := d.Presence
	if w <= 0 {
		w = PresenceWidth
	}
	d.holdFrom = now.Add(PresenceDelay)
	d.holdTo = d.holdFrom.Add(w)
	d.selected = false
	d.enter(romCmd)
	if d.Silent {
		d.state = idle
	}
}

func (d *Device) holding(now time.Time) bool {
	return !now.Before(d.holdFrom) && now.Before(d.holdTo)
}

func (d *Device) enter(s state) {
	d.state = s
	d.n = 0
	d.shift = 0
	d.phase = 0
}

// slot handles one time slot that started at fell. bit is what the master
// wrote; it is 1 for a read slot.
func (d *Device) slot(bit bool, fell time.Time) {
	if v, ok := d.sending(); ok && !v {
		d.holdFrom, d.holdTo = fell, fell.Add(ReadHold)
	}
	switch d.state {
	case romCmd:
		if c, ok := d.receiveBits(bit, 8); ok {
			d.romCommand(byte(c))
		}
	case search:
		rom := d.ROM>>uint(d.n)&1 != 0
		if d.phase < 2 {
			d.phase++
			return
		}
		d.phase = 0
		if bit != rom {
			d.state = idle
			return
		}
		if d.n++; d.n == 64 {
			d.selectDevice()
		}
	case match:
		if bit != (d.ROM>>uint(d.n)&1 != 0) {
			d.state = idle
			return
		}
		if d.n++; d.n == 64 {
			d.selectDevice()
		}
	case function:
		if c, ok := d.receiveBits(bit, 8); ok {
			d.functionCommand(byte(c))
		}
	case receive:
		if c, ok := d.receiveBits(bit, 8); ok {
			d.Scratchpad[2+len(d.out)] = byte(c)
			d.out = append(d.out, byte(c))
			if len(d.out) == 3 {
				d.out = nil
				d.updateCRC()
				d.state = done
			}
		}
	case transmit:
		if d.n++; d.n == 8*len(d.out) {
			d.out = nil
			d.enter(d.next)
		}
	}
}

// sending returns the bit the device drives in the current slot, if any.
func (d *Device) sending() (bool, bool) {
	switch d.state {
	case search:
		rom := d.ROM>>uint(d.n)&1 != 0
		switch d.phase {
		case 0:
			return rom, true
		case 1:
			return !rom, true
		}
	case transmit:
		return d.out[d.n/8]>>uint(d.n%8)&1 != 0, true
	}
	return false, false
}

// receiveBits shifts bit in, least significant bit first, and returns the
// value once n bits were received.
func (d *Device) receiveBits(bit bool, n int) (uint64, bool) {
	if bit {
		d.shift |= 1 << uint(d.n)
	}
	if d.n++; d.n < n {
		return 0, false
	}
	v := d.shift
	d.n, d.shift = 0, 0
	return v, true
}

func (d *Device) romCommand(c byte) {
	switch c {
	case 0xf0:
		d.enter(search)
	case 0xec:
		if d.Alarm {
			d.enter(search)
		} else {
			d.state = idle
		}
	case 0x55:
		d.enter(match)
	case 0xcc:
		d.selectDevice()
	case 0x33:
		d.selected = true
		d.send(romBytes(d.ROM), function)
	default:
		d.state = idle
	}
}

func (d *Device) functionCommand(c byte) {
	switch c {
	case 0xbe:
		d.send(d.Scratchpad[:], done)
	case 0x4e:
		d.enter(receive)
		d.out = d.out[:0]
	case 0x44, 0x48:
		d.state = done
	default:
		d.state = idle
		d.selected = false
	}
}

func (d *Device) selectDevice() {
	d.selected = true
	d.enter(function)
}

func (d *Device) send(b []byte, next state) {
	d.enter(transmit)
	d.out = append([]byte(nil), b...)
	d.next = next
}

func (d *Device) updateCRC() {
	d.Scratchpad[8] = onewire.CalcCRC(d.Scratchpad[:8])
}

func romBytes(rom uint64) []byte {
	b := make([]byte, 8)
	for i := range b {
		b[i] = byte(rom >> (8 * i))
	}
	return b
}
