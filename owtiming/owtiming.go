// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

// Package owtiming holds the time slot parameters of a bit-banged 1-wire bus
// and the calibrated software delay loops used to generate them.
//
// A bit-banged master has no timer peripheral to lean on: every pulse width is
// the product of a busy loop whose iteration count is derived from the
// processor clock, or measured against a reference clock at start up.
package owtiming

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/jonboulle/clockwork"
	"periph.io/x/conn/v3/physic"
)

// Timing contains the durations used to generate 1-wire standard speed time
// slots.
type Timing struct {
	Reset         time.Duration // reset pulse low time, at least 480µs
	Presence      time.Duration // wait after the reset pulse before sampling for a presence pulse
	PresencePolls int           // number of samples allowed for a presence pulse to end
	Short         time.Duration // low pulse that opens a read slot or writes a 1
	Sample        time.Duration // wait between the end of the short pulse and the read sample
	Recovery      time.Duration // rest of a read slot after the sample
	Slot          time.Duration // long part of a write slot
}

// Standard is the timing used when nothing better is known. The poll budget
// matches a 16MHz processor.
var Standard = Timing{
	Reset:         500 * time.Microsecond,
	Presence:      70 * time.Microsecond,
	PresencePolls: 160000,
	Short:         1 * time.Microsecond,
	Sample:        15 * time.Microsecond,
	Recovery:      45 * time.Microsecond,
	Slot:          90 * time.Microsecond,
}

// ForClock returns the timing for a processor running at f.
//
// The slot durations are protocol constants; what depends on the processor is
// the number of samples that fit in the presence pulse, one per hundred
// clock cycles.
func ForClock(f physic.Frequency) Timing {
	t := Standard
	if n := int(f / (100 * physic.Hertz)); n > 0 {
		t.PresencePolls = n
	}
	return t
}

// Validate returns an error if the timing cannot produce valid time slots.
func (t *Timing) Validate() error {
	switch {
	case t.Reset <= 0 || t.Presence <= 0 || t.Short <= 0 || t.Sample <= 0 || t.Recovery <= 0 || t.Slot <= 0:
		return errors.New("owtiming: all durations must be positive")
	case t.PresencePolls <= 0:
		return errors.New("owtiming: PresencePolls must be positive")
	case t.Short >= t.Sample:
		return fmt.Errorf("owtiming: Short %s must be shorter than Sample %s", t.Short, t.Sample)
	case t.Slot <= t.Sample:
		return fmt.Errorf("owtiming: Slot %s must be longer than Sample %s", t.Slot, t.Sample)
	}
	return nil
}

// Calibration bounds the reset pulse sweep performed by a bus auto timing.
type Calibration struct {
	Min    time.Duration // first reset pulse width tried
	Max    time.Duration // last reset pulse width tried
	Step   time.Duration // increment between two trials
	Margin time.Duration // added to the first width that produced a presence pulse
}

// DefaultCalibration sweeps around the 480µs minimum of the standard.
var DefaultCalibration = Calibration{
	Min:    240 * time.Microsecond,
	Max:    960 * time.Microsecond,
	Step:   16 * time.Microsecond,
	Margin: 32 * time.Microsecond,
}

// Delayer waits for a duration without yielding the processor.
type Delayer interface {
	Delay(d time.Duration)
}

// Spin is a Delayer that burns a calibrated number of loop iterations.
//
// Spin never sleeps: the scheduler granularity is orders of magnitude coarser
// than a 1-wire time slot.
type Spin struct {
	perMicro float64 // loop iterations per microsecond
}

// NewSpin returns a Spin for a processor running at f that needs
// cyclesPerLoop clock cycles per loop iteration.
func NewSpin(f physic.Frequency, cyclesPerLoop int) (*Spin, error) {
	if f <= 0 || cyclesPerLoop <= 0 {
		return nil, errors.New("owtiming: frequency and cycles per loop must be positive")
	}
	return &Spin{perMicro: float64(f) / float64(physic.MegaHertz) / float64(cyclesPerLoop)}, nil
}

// Calibrate measures the loop speed against clk and returns a Spin that uses
// it. A nil clk uses the real clock.
func Calibrate(clk clockwork.Clock) (*Spin, error) {
	if clk == nil {
		clk = clockwork.NewRealClock()
	}
	start := clk.Now()
	spin(calibrationLoops)
	elapsed := clk.Since(start)
	if elapsed <= 0 {
		return nil, errors.New("owtiming: clock did not advance during calibration")
	}
	return &Spin{perMicro: float64(calibrationLoops) * float64(time.Microsecond) / float64(elapsed)}, nil
}

// Loops returns the number of loop iterations used to wait for d. It is at
// least one for any positive d.
func (s *Spin) Loops(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	n := int(float64(d) / float64(time.Microsecond) * s.perMicro)
	if n == 0 {
		n = 1
	}
	return n
}

// Delay implements Delayer.
func (s *Spin) Delay(d time.Duration) {
	spin(s.Loops(d))
}

func (s *Spin) String() string {
	return fmt.Sprintf("Spin{%.3f loops/µs}", s.perMicro)
}

const calibrationLoops = 1 << 22

// spin is replaced in tests.
var spin = func(n int) {
	var x uint32
	for i := 0; i < n; i++ {
		x += uint32(i)
	}
	runtime.KeepAlive(x)
}

var _ Delayer = &Spin{}
