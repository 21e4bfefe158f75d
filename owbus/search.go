// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"strconv"

	"periph.io/x/conn/v3/onewire"
)

// Search enumerates the devices on the bus, stores their identifiers in the
// registry and returns them. With alarmOnly, only devices in alarm state take
// part. It implements onewire.Bus.
//
// The registry is cleared first. Each pass of the search resolves one
// identifier by walking the binary tree of the identifiers present, zero
// branch first, so every device is visited exactly once. The search stops
// when no unexplored branch is left, when the registry is full or on a bus
// error. A full registry is not an error: the devices beyond its capacity
// are silently left out.
//
// If an error occurs the identifiers already found are returned with it.
func (b *Bus) Search(alarmOnly bool) ([]onewire.Address, error) {
	cmd := byte(cmdSearchROM)
	if alarmOnly {
		cmd = cmdAlarmSearch
	}
	err := b.search(cmd)
	return b.Devices(), err
}

func (b *Bus) search(cmd byte) error {
	b.ids.clear()
	last := -1 // highest unresolved conflict of the previous pass
	var prev onewire.Address
	for {
		if err := b.reset(); err != nil {
			return err
		}
		if err := b.WriteByte(cmd); err != nil {
			return err
		}
		var id onewire.Address
		conflict := -1 // highest unresolved conflict of this pass
		for bit := 0; bit < 64; bit++ {
			// Every participating device sends its bit then the complement;
			// the wire is the AND of all of them.
			a := b.ReadBit()
			c := b.ReadBit()
			var one bool
			switch {
			case a && !c:
				one = true
			case !a && c:
			case a && c:
				if cmd == cmdAlarmSearch && bit == 0 && b.ids.n == 0 {
					// Present but nobody is in alarm state.
					return nil
				}
				b.errors++
				b.log.Warn("owbus: search bit error", "bus", b.String(), "bit", bit, "found", b.ids.n)
				return busError("owbus: no device answered search bit " + strconv.Itoa(bit))
			default:
				// Both values are present. Below the branch point of the last
				// pass, follow the previous identifier. At it, the 0 side has
				// been explored: take 1. Above it, this is a new branch: 0 first.
				if bit < last {
					one = bitOf(prev, bit)
				} else {
					one = bit == last
				}
				if !one {
					conflict = bit
				}
			}
			if one {
				id |= 1 << uint(bit)
			}
			b.WriteBit(one)
		}
		b.ids.add(id)
		if conflict == -1 {
			return b.lineErr()
		}
		if b.ids.full() {
			b.log.Warn("owbus: registry full, devices left out", "bus", b.String(), "capacity", len(b.ids.slots))
			return b.lineErr()
		}
		last, prev = conflict, id
	}
}

// SearchTriplet performs a single bit search triplet on the bus: it reads a
// bit and its complement and writes the direction taken. It implements
// onewire.BusSearcher so that onewire.Search can be used on a Bus.
//
// SearchTriplet should not be used directly, use Search instead.
func (b *Bus) SearchTriplet(direction byte) (onewire.TripletResult, error) {
	a := b.ReadBit()
	c := b.ReadBit()
	tr := onewire.TripletResult{GotZero: !a, GotOne: !c}
	switch {
	case tr.GotZero && tr.GotOne:
		if direction != 0 {
			tr.Taken = 1
		}
	case tr.GotOne:
		tr.Taken = 1
	}
	b.WriteBit(tr.Taken == 1)
	return tr, b.lineErr()
}
