// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owline

import (
	"errors"
	"testing"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/gpio/gpiotest"
)

func TestPin(t *testing.T) {
	p := &gpiotest.Pin{N: "GPIO4", Num: 4, L: gpio.Low}
	l := FromPin(p)
	if !l.SampleHigh() {
		t.Fatal("expected released line to idle high")
	}
	if p.P != gpio.PullUp {
		t.Fatalf("expected pull-up, got %s", p.P)
	}
	l.AssertLow()
	if l.SampleHigh() {
		t.Fatal("expected line low after AssertLow")
	}
	l.Release()
	if !l.SampleHigh() {
		t.Fatal("expected line high after Release")
	}
	l.AssertLow()
	l.DriveHigh()
	if !l.SampleHigh() {
		t.Fatal("expected line high after DriveHigh")
	}
	if err := l.Err(); err != nil {
		t.Fatal(err)
	}
	if l.Q() != p {
		t.Fatal("Q() returned a different pin")
	}
	if s := l.String(); s != "GPIO4(4)" {
		t.Fatal(s)
	}
}

type failingPin struct {
	gpiotest.Pin
}

func (f *failingPin) Out(l gpio.Level) error {
	return errors.New("not an output")
}

func TestPin_persistent_error(t *testing.T) {
	p := &failingPin{Pin: gpiotest.Pin{N: "GPIO5", Num: 5}}
	l := FromPin(p)
	if err := l.Err(); err != nil {
		t.Fatalf("release should not fail: %v", err)
	}
	l.AssertLow()
	l.AssertLow()
	err := l.Err()
	if err == nil {
		t.Fatal("expected an error")
	}
	if err.Error() != "owline: GPIO5(5): not an output" {
		t.Fatal(err)
	}
}

func TestByName(t *testing.T) {
	p := &gpiotest.Pin{N: "OWTEST1", Num: 101}
	if err := gpioreg.Register(p); err != nil {
		t.Fatal(err)
	}
	defer func() {
		if err := gpioreg.Unregister("OWTEST1"); err != nil {
			t.Fatal(err)
		}
	}()
	l, err := ByName("OWTEST1")
	if err != nil {
		t.Fatal(err)
	}
	if l.Q() != p {
		t.Fatal("wrong pin")
	}
	if _, err := ByName("OWTEST_MISSING"); err == nil {
		t.Fatal("expected lookup failure")
	}
}

// port models an AVR style I/O port: the input register reflects the output
// latch for output pins and the pulled-up level, minus any external pull
// down, for input pins.
type port struct {
	out, dir, extLow uint8
}

type reg struct {
	load  func() uint8
	store func(uint8)
}

func (r reg) Load() uint8   { return r.load() }
func (r reg) Store(v uint8) { r.store(v) }

func (p *port) regs() (in, out, dir Register) {
	in = reg{
		load:  func() uint8 { return p.out &^ (^p.dir & p.extLow) },
		store: func(uint8) {},
	}
	out = reg{load: func() uint8 { return p.out }, store: func(v uint8) { p.out = v }}
	dir = reg{load: func() uint8 { return p.dir }, store: func(v uint8) { p.dir = v }}
	return
}

func TestPort(t *testing.T) {
	p := &port{out: 0x01, dir: 0x80}
	in, out, dir := p.regs()
	l, err := NewPort(in, out, dir, 4)
	if err != nil {
		t.Fatal(err)
	}
	if l.Mask() != 0x10 {
		t.Fatalf("mask %#x", l.Mask())
	}
	if !l.SampleHigh() {
		t.Fatal("expected released line to idle high")
	}
	l.AssertLow()
	if l.SampleHigh() {
		t.Fatal("expected line low")
	}
	if p.dir != 0x90 || p.out != 0x01 {
		t.Fatalf("other pins were touched: dir=%#x out=%#x", p.dir, p.out)
	}
	l.Release()
	if p.dir != 0x80 || p.out != 0x11 {
		t.Fatalf("dir=%#x out=%#x", p.dir, p.out)
	}
	// A device holding the wire low.
	p.extLow = 0x10
	if l.SampleHigh() {
		t.Fatal("expected external pull down to be seen")
	}
	p.extLow = 0
	l.DriveHigh()
	if p.dir != 0x90 || p.out != 0x11 {
		t.Fatalf("dir=%#x out=%#x", p.dir, p.out)
	}
	if s := l.String(); s != "Port{0b00010000}" {
		t.Fatal(s)
	}
}

func TestNewPort_fail(t *testing.T) {
	p := &port{}
	in, out, dir := p.regs()
	if _, err := NewPort(in, out, dir, 8); err == nil {
		t.Fatal("expected invalid bit")
	}
	if _, err := NewPort(nil, out, dir, 1); err == nil {
		t.Fatal("expected missing register")
	}
}
