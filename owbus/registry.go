// Copyright 2025 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package owbus

import (
	"periph.io/x/conn/v3/onewire"
)

// NotFound is returned by FindByID and FindByType when no registry slot
// matches.
const NotFound = -1

// Family returns the family code of a device identifier: its least
// significant byte.
func Family(a onewire.Address) byte {
	return byte(a)
}

// ValidROM returns true if the last byte of a is the CRC-8 of its first
// seven bytes.
//
// The search does not check identifiers; this is for callers that want to.
func ValidROM(a onewire.Address) bool {
	var buf [8]byte
	for i := range buf {
		buf[i] = byte(a >> (8 * i))
	}
	return onewire.CheckCRC(buf[:])
}

// ID returns the identifier in registry slot i, or 0 if i is out of range or
// the slot is empty.
func (b *Bus) ID(i int) onewire.Address {
	if i < 0 || i >= len(b.ids.slots) {
		return 0
	}
	return b.ids.slots[i]
}

// FindByID returns the registry slot holding a, or NotFound.
func (b *Bus) FindByID(a onewire.Address) int {
	if a == 0 {
		return NotFound
	}
	for i, s := range b.ids.slots {
		if s == a {
			return i
		}
	}
	return NotFound
}

// FindByType returns the first registry slot whose identifier has the family
// code family, or NotFound.
//
// When several devices of the same family are on the bus, the one with the
// lowest slot is returned; use Devices to see all of them.
func (b *Bus) FindByType(family byte) int {
	for i, s := range b.ids.slots {
		if s != 0 && Family(s) == family {
			return i
		}
	}
	return NotFound
}

// Devices returns a copy of the populated registry slots.
func (b *Bus) Devices() []onewire.Address {
	out := make([]onewire.Address, b.ids.n)
	copy(out, b.ids.slots)
	return out
}

// Capacity returns the number of registry slots.
func (b *Bus) Capacity() int {
	return len(b.ids.slots)
}

// registry is a fixed-capacity table of device identifiers. Populated slots
// are packed at the front in ascending order; zero marks an empty slot.
type registry struct {
	slots []onewire.Address
	n     int
}

func newRegistry(capacity int) registry {
	return registry{slots: make([]onewire.Address, capacity)}
}

func (r *registry) clear() {
	for i := range r.slots {
		r.slots[i] = 0
	}
	r.n = 0
}

func (r *registry) full() bool {
	return r.n == len(r.slots)
}

// add inserts a keeping the slots sorted. It returns false when the registry
// is full.
func (r *registry) add(a onewire.Address) bool {
	if r.full() {
		return false
	}
	i := r.n
	for ; i > 0 && r.slots[i-1] > a; i-- {
		r.slots[i] = r.slots[i-1]
	}
	r.slots[i] = a
	r.n++
	return true
}

// bitOf returns bit i of a, in transmission order.
func bitOf(a onewire.Address, i int) bool {
	return a>>uint(i)&1 != 0
}
