// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owline

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
)

// Line is one shared open-drain 1-wire data line.
//
// Implementations must be fast: the bus master calls them inside the timed
// sections of every bit slot.
type Line interface {
	// AssertLow pulls the line low.
	AssertLow()
	// Release stops driving the line and lets the pull-up take it high.
	Release()
	// SampleHigh returns true if the line currently reads high.
	SampleHigh() bool
}

// Driver is implemented by lines that can actively drive the wire high.
//
// This is the strong pull-up used to power parasitic devices during
// temperature conversions and EEPROM writes. The strong pull-up ends with
// the next AssertLow or Release.
type Driver interface {
	DriveHigh()
}

// Failer is implemented by lines that sit on top of fallible I/O.
//
// Err returns the first error encountered, the error is persistent.
type Failer interface {
	Err() error
}

// Pin is a Line on a periph GPIO pin.
//
// Pin implements a persistent error model: the first error returned by the
// underlying pin is kept and reported by Err. The line primitives themselves
// keep running so the bit timing stays the same.
type Pin struct {
	p   gpio.PinIO
	err error
}

// FromPin returns a Line that uses p as the 1-wire data pin. The pin is
// released so the bus idles high.
func FromPin(p gpio.PinIO) *Pin {
	l := &Pin{p: p}
	l.Release()
	return l
}

// ByName looks the pin up in the gpioreg registry and returns a Line on it.
//
// host.Init() must have been called first.
func ByName(name string) (*Pin, error) {
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, fmt.Errorf("owline: pin %q not found", name)
	}
	return FromPin(p), nil
}

// AssertLow implements Line.
func (l *Pin) AssertLow() {
	l.check(l.p.Out(gpio.Low))
}

// Release implements Line.
func (l *Pin) Release() {
	l.check(l.p.In(gpio.PullUp, gpio.NoEdge))
}

// SampleHigh implements Line.
func (l *Pin) SampleHigh() bool {
	return l.p.Read() == gpio.High
}

// DriveHigh implements Driver.
func (l *Pin) DriveHigh() {
	l.check(l.p.Out(gpio.High))
}

// Err implements Failer.
func (l *Pin) Err() error {
	return l.err
}

// Q returns the underlying pin.
func (l *Pin) Q() gpio.PinIO {
	return l.p
}

func (l *Pin) String() string {
	return l.p.String()
}

func (l *Pin) check(err error) {
	if err != nil && l.err == nil {
		l.err = fmt.Errorf("owline: %s: %w", l.p, err)
	}
}

// Register is one 8 bit I/O register of a port.
type Register interface {
	Load() uint8
	Store(v uint8)
}

// Port is a Line on a microcontroller I/O port described by its three
// registers: the input register that reflects the pin levels, the output
// register that holds the level driven (and enables the internal pull-up
// when the pin is an input) and the data direction register.
type Port struct {
	in   Register
	out  Register
	dir  Register
	mask uint8
}

// NewPort returns a Line on bit of the port described by in, out and dir.
// The pin is released so the bus idles high.
func NewPort(in, out, dir Register, bit uint8) (*Port, error) {
	if in == nil || out == nil || dir == nil {
		return nil, errors.New("owline: port registers must be set")
	}
	if bit > 7 {
		return nil, fmt.Errorf("owline: invalid bit %d", bit)
	}
	p := &Port{in: in, out: out, dir: dir, mask: 1 << bit}
	p.Release()
	return p, nil
}

// AssertLow implements Line.
//
// The output latch is cleared before the pin becomes an output so the line
// never glitches high.
func (p *Port) AssertLow() {
	p.out.Store(p.out.Load() &^ p.mask)
	p.dir.Store(p.dir.Load() | p.mask)
}

// Release implements Line.
func (p *Port) Release() {
	p.dir.Store(p.dir.Load() &^ p.mask)
	p.out.Store(p.out.Load() | p.mask)
}

// SampleHigh implements Line.
func (p *Port) SampleHigh() bool {
	return p.in.Load()&p.mask != 0
}

// DriveHigh implements Driver.
func (p *Port) DriveHigh() {
	p.out.Store(p.out.Load() | p.mask)
	p.dir.Store(p.dir.Load() | p.mask)
}

// Mask returns the bit mask of the data pin within the port.
func (p *Port) Mask() uint8 {
	return p.mask
}

func (p *Port) String() string {
	return fmt.Sprintf("Port{0b%08b}", p.mask)
}

var _ Line = &Pin{}
var _ Driver = &Pin{}
var _ Failer = &Pin{}
var _ Line = &Port{}
var _ Driver = &Port{}
