// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sync"

	"github.com/GermanBionicSystems/owbus/owline"
	"github.com/GermanBionicSystems/owbus/owtiming"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/onewire"
)

// Opts contains options to pass to the constructor.
type Opts struct {
	Capacity    int                  // number of slots in the identifier registry
	Timing      owtiming.Timing      // time slot parameters
	Calibration owtiming.Calibration // reset pulse sweep used by AutoTiming

	// Delayer generates the delays. If nil, a spin loop calibrated against
	// the real clock is used.
	Delayer owtiming.Delayer
	// Critical brackets every time slot so that it is not interrupted. If
	// nil, the goroutine is locked to its OS thread for the duration of the
	// slot.
	Critical sync.Locker
	// Logger receives diagnostics. It is never used to make decisions. If
	// nil, diagnostics are discarded.
	Logger *slog.Logger
}

// DefaultOpts is the recommended default options.
var DefaultOpts = Opts{
	Capacity:    8,
	Timing:      owtiming.Standard,
	Calibration: owtiming.DefaultCalibration,
}

// New returns a bus master on the line l.
//
// The registry is allocated once here. The line is released and given one
// slot of idle time before New returns.
func New(l owline.Line, opts *Opts) (*Bus, error) {
	if l == nil {
		return nil, errors.New("owbus: line is required")
	}
	if opts == nil {
		opts = &DefaultOpts
	}
	o := *opts
	if o.Capacity <= 0 {
		return nil, errors.New("owbus: Capacity must be positive")
	}
	if err := o.Timing.Validate(); err != nil {
		return nil, err
	}
	if o.Delayer == nil {
		s, err := owtiming.Calibrate(nil)
		if err != nil {
			return nil, err
		}
		o.Delayer = s
	}
	if o.Critical == nil {
		o.Critical = threadLock{}
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	b := &Bus{
		line:     l,
		t:        o.Timing,
		cal:      o.Calibration,
		d:        o.Delayer,
		critical: o.Critical,
		log:      o.Logger,
		ids:      newRegistry(o.Capacity),
	}
	l.Release()
	b.d.Delay(b.t.Slot)
	return b, nil
}

// Bus is a bit-banged 1-wire bus master and the registry of the devices
// found on it. It implements onewire.Bus.
//
// One Bus drives one physical wire. A Bus is not safe for concurrent use.
type Bus struct {
	line     owline.Line
	t        owtiming.Timing
	cal      owtiming.Calibration
	d        owtiming.Delayer
	critical sync.Locker
	log      *slog.Logger
	ids      registry
	errors   int // number of bus errors seen, for diagnostics
}

func (b *Bus) String() string {
	if s, ok := b.line.(fmt.Stringer); ok {
		return "owbus{" + s.String() + "}"
	}
	return "owbus"
}

// Halt implements conn.Resource.
//
// It releases the line.
func (b *Bus) Halt() error {
	b.line.Release()
	return b.lineErr()
}

// Close implements onewire.BusCloser.
func (b *Bus) Close() error {
	return b.Halt()
}

// Q implements onewire.Pins when the line is a GPIO pin.
func (b *Bus) Q() gpio.PinIO {
	if p, ok := b.line.(interface{ Q() gpio.PinIO }); ok {
		return p.Q()
	}
	return gpio.INVALID
}

// Timing returns the timing in use, including the calibrated reset pulse
// width.
func (b *Bus) Timing() owtiming.Timing {
	return b.t
}

// ErrorCount returns the number of bus errors seen since the bus was
// created.
func (b *Bus) ErrorCount() int {
	return b.errors
}

// Reset sends a reset pulse and returns true if at least one device answered
// with a presence pulse.
//
// Failures are reported to the logger. Reset is normally followed by a ROM
// command: MatchROM, SkipROM, ReadID or a search.
func (b *Bus) Reset() bool {
	return b.reset() == nil
}

// WriteBit writes one bit in a single time slot.
//
// A 0 holds the line low for most of the slot, a 1 only briefly; listening
// devices sample the line about 15µs into the slot.
func (b *Bus) WriteBit(bit bool) {
	b.critical.Lock()
	b.line.AssertLow()
	if bit {
		b.d.Delay(b.t.Short)
		b.line.Release()
		b.d.Delay(b.t.Slot)
		b.critical.Unlock()
		return
	}
	b.d.Delay(b.t.Slot)
	b.line.Release()
	b.d.Delay(b.t.Short)
	b.critical.Unlock()
}

// ReadBit reads one bit in a single time slot.
//
// The master opens the slot with a short low pulse; a device sending a 0
// keeps the line low past the sample point.
func (b *Bus) ReadBit() bool {
	b.critical.Lock()
	b.line.AssertLow()
	b.d.Delay(b.t.Short)
	b.line.Release()
	b.d.Delay(b.t.Sample)
	v := b.line.SampleHigh()
	b.d.Delay(b.t.Recovery)
	b.critical.Unlock()
	return v
}

// WriteByte writes c least significant bit first. It implements
// io.ByteWriter.
//
// The only error returned is the persistent error of a line built on
// fallible I/O.
func (b *Bus) WriteByte(c byte) error {
	for mask := byte(0x01); mask != 0; mask <<= 1 {
		b.WriteBit(c&mask != 0)
	}
	return b.lineErr()
}

// WriteByteRev writes c most significant bit first.
func (b *Bus) WriteByteRev(c byte) error {
	for mask := byte(0x80); mask != 0; mask >>= 1 {
		b.WriteBit(c&mask != 0)
	}
	return b.lineErr()
}

// ReadByte reads one byte least significant bit first. It implements
// io.ByteReader.
//
// No integrity check is done at this level.
func (b *Bus) ReadByte() (byte, error) {
	var c byte
	for mask := byte(0x01); mask != 0; mask <<= 1 {
		if b.ReadBit() {
			c |= mask
		}
	}
	return c, b.lineErr()
}

//

func (b *Bus) reset() error {
	b.line.AssertLow()
	b.d.Delay(b.t.Reset)
	b.line.Release()
	b.d.Delay(b.t.Presence)
	// Nobody pulled the line low: nobody's home.
	if b.line.SampleHigh() {
		b.errors++
		b.log.Warn("owbus: no presence", "bus", b.String())
		return noDevicesError("owbus: no device present")
	}
	for i := 0; !b.line.SampleHigh(); i++ {
		if i >= b.t.PresencePolls {
			b.errors++
			b.log.Warn("owbus: reset timeout", "bus", b.String(), "polls", b.t.PresencePolls)
			return busError("owbus: timeout waiting for the presence pulse to end")
		}
	}
	b.d.Delay(b.t.Slot)
	return b.lineErr()
}

// pullup drives the line high to power parasitic devices, when the line
// supports it.
func (b *Bus) pullup() {
	if d, ok := b.line.(owline.Driver); ok {
		d.DriveHigh()
	}
}

func (b *Bus) lineErr() error {
	if f, ok := b.line.(owline.Failer); ok {
		return f.Err()
	}
	return nil
}

// threadLock keeps the goroutine on its OS thread for the duration of a
// time slot.
type threadLock struct{}

func (threadLock) Lock()   { runtime.LockOSThread() }
func (threadLock) Unlock() { runtime.UnlockOSThread() }

// busError implements error and onewire.BusError.
type busError string

func (e busError) Error() string  { return string(e) }
func (e busError) BusError() bool { return true }

// noDevicesError implements error, onewire.NoDevicesError and
// onewire.BusError.
type noDevicesError string

func (e noDevicesError) Error() string   { return string(e) }
func (e noDevicesError) NoDevices() bool { return true }
func (e noDevicesError) BusError() bool  { return true }

var _ conn.Resource = &Bus{}
var _ onewire.BusCloser = &Bus{}
var _ onewire.BusSearcher = &Bus{}
var _ onewire.Pins = &Bus{}
var _ io.ByteWriter = &Bus{}
var _ io.ByteReader = &Bus{}
var _ onewire.NoDevicesError = noDevicesError("")
var _ onewire.BusError = busError("")
