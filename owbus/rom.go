// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"fmt"

	"periph.io/x/conn/v3/onewire"
)

// MatchROM addresses the device in registry slot i: only that device keeps
// listening to the commands that follow. It must be called right after
// Reset.
//
// The 64 identifier bits are sent one time slot at a time; every other
// device drops out at the first bit that differs from its own identifier.
func (b *Bus) MatchROM(i int) error {
	a := b.ID(i)
	if a == 0 {
		return fmt.Errorf("owbus: no device in registry slot %d", i)
	}
	if err := b.WriteByte(cmdMatchROM); err != nil {
		return err
	}
	for bit := 0; bit < 64; bit++ {
		b.WriteBit(bitOf(a, bit))
	}
	return b.lineErr()
}

// SkipROM addresses all the devices on the bus at once. It must be called
// right after Reset.
//
// It is the way to talk to the only device of a single-device bus, or to
// broadcast a command such as a temperature conversion.
func (b *Bus) SkipROM() error {
	return b.WriteByte(cmdSkipROM)
}

// ReadID reads the identifier of the only device on the bus with Read ROM
// and stores it in registry slot 0, bypassing the search. It must be called
// right after Reset.
//
// With more than one device on the bus the result is the AND of their
// identifiers; use Search instead.
func (b *Bus) ReadID() (onewire.Address, error) {
	if err := b.WriteByte(cmdReadROM); err != nil {
		return 0, err
	}
	var a onewire.Address
	for i := 0; i < 8; i++ {
		c, err := b.ReadByte()
		if err != nil {
			return 0, err
		}
		a |= onewire.Address(c) << uint(8*i)
	}
	b.ids.clear()
	b.ids.add(a)
	return a, nil
}

// Tx performs a bus transaction: a reset, then w is written and r is read.
// It implements onewire.Bus.
//
// With onewire.StrongPullup the line is driven high right after the last
// byte to power parasitic devices, if the line supports it. The strong
// pull-up lasts until the next bus operation.
func (b *Bus) Tx(w, r []byte, power onewire.Pullup) error {
	if err := b.reset(); err != nil {
		return err
	}
	for i, c := range w {
		if err := b.WriteByte(c); err != nil {
			return err
		}
		if power == onewire.StrongPullup && i == len(w)-1 && len(r) == 0 {
			b.pullup()
		}
	}
	for i := range r {
		c, err := b.ReadByte()
		if err != nil {
			return err
		}
		r[i] = c
		if power == onewire.StrongPullup && i == len(r)-1 {
			b.pullup()
		}
	}
	return nil
}

const (
	cmdReadROM     = 0x33 // read the identifier of the only device on the bus
	cmdMatchROM    = 0x55 // address one device
	cmdSkipROM     = 0xcc // address all devices
	cmdAlarmSearch = 0xec // search among devices in alarm state
	cmdSearchROM   = 0xf0 // search all devices
)
