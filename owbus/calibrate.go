// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"time"
)

// AutoTiming searches for a reset pulse width that makes the devices on the
// bus answer, and keeps it for all the following resets.
//
// Pulse widths from Opts.Calibration.Min to Max are tried in increasing
// order; the first one that produces a presence pulse is kept, plus the
// calibration margin, and confirmed with a full Reset. It returns false,
// leaving the previous width in place, if no width works.
//
// Processor clock tolerance and device batches shift the pulse widths
// devices accept, this lets a bus tune itself at run time.
func (b *Bus) AutoTiming() bool {
	c := b.cal
	if c.Min <= 0 || c.Step <= 0 || c.Max < c.Min {
		b.log.Warn("owbus: invalid calibration bounds", "bus", b.String(), "min", c.Min, "max", c.Max, "step", c.Step)
		return false
	}
	for w := c.Min; w <= c.Max; w += c.Step {
		if !b.probe(w) {
			b.log.Debug("owbus: reset pulse bad", "bus", b.String(), "width", w)
			continue
		}
		b.log.Debug("owbus: reset pulse ok", "bus", b.String(), "width", w)
		old := b.t.Reset
		b.t.Reset = w + c.Margin
		if !b.Reset() {
			b.t.Reset = old
			return false
		}
		b.log.Info("owbus: reset pulse calibrated", "bus", b.String(), "reset", b.t.Reset)
		return true
	}
	b.errors++
	b.log.Warn("owbus: no reset pulse width produced a presence pulse", "bus", b.String(), "max", c.Max)
	return false
}

// probe sends a reset pulse of width w and returns true if a presence pulse
// followed. It then waits for the bus to go idle again.
func (b *Bus) probe(w time.Duration) bool {
	b.line.AssertLow()
	b.d.Delay(w)
	b.line.Release()
	b.d.Delay(b.t.Presence)
	present := !b.line.SampleHigh()
	for i := 0; i < b.t.PresencePolls && !b.line.SampleHigh(); i++ {
	}
	b.d.Delay(b.t.Slot)
	return present
}
